package catalog

// Stats holds the aggregate counters the backend reports: area, branch and
// course totals plus per-document-kind counts (dbf, dm, bom, cop). The key
// set is open-ended; new counters from the backend pass through unchanged.
type Stats map[string]int

// Merge overlays other onto s key by key. Keys absent from other keep their
// current value; the counters are never replaced wholesale, so a partial
// payload arriving mid-stream cannot zero unrelated counts.
func (s Stats) Merge(other Stats) Stats {
	if s == nil {
		s = Stats{}
	}
	for k, v := range other {
		s[k] = v
	}
	return s
}

// Clone returns an independent copy.
func (s Stats) Clone() Stats {
	if s == nil {
		return nil
	}
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
