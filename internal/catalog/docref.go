package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DocRef is a document-URL field as stored by the backend. Historically the
// same column holds either a single URL string or a JSON-encoded map of URLs
// keyed by grade ("9".."12"), sometimes double-encoded as a string inside the
// response. DocRef decodes all of those once at the boundary into a tagged
// variant so no caller ever re-parses the raw text.
type DocRef struct {
	URL     string            // set when the field is a single URL
	ByGrade map[string]string // set when the field is a grade-keyed map
}

// IsZero reports whether the reference carries no URL at all.
func (d DocRef) IsZero() bool {
	return d.URL == "" && len(d.ByGrade) == 0
}

// For returns the URL for the given grade. A single-URL reference applies to
// every grade.
func (d DocRef) For(grade string) (string, bool) {
	if d.URL != "" {
		return d.URL, true
	}
	u, ok := d.ByGrade[grade]
	return u, ok && u != ""
}

// Grades returns the grade keys of a map-valued reference in ascending order.
func (d DocRef) Grades() []string {
	if len(d.ByGrade) == 0 {
		return nil
	}
	grades := make([]string, 0, len(d.ByGrade))
	for g := range d.ByGrade {
		grades = append(grades, g)
	}
	sort.Strings(grades)
	return grades
}

// UnmarshalJSON accepts a JSON object, a plain URL string, or a string that
// itself contains JSON. A string that fails to parse as JSON is kept as a
// single URL (the legacy fallback the old clients re-implemented ad hoc).
func (d *DocRef) UnmarshalJSON(data []byte) error {
	*d = DocRef{}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		return json.Unmarshal(data, &d.ByGrade)
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("doc ref is neither object nor string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "{") {
		var m map[string]string
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			d.ByGrade = m
			return nil
		}
		// Not valid embedded JSON after all; treat as a single URL.
	}
	d.URL = s
	return nil
}

// MarshalJSON writes the map form as an object and the single form as a
// string, matching what the backend accepts back.
func (d DocRef) MarshalJSON() ([]byte, error) {
	if len(d.ByGrade) > 0 {
		return json.Marshal(d.ByGrade)
	}
	return json.Marshal(d.URL)
}
