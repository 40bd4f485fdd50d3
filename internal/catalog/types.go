// Package catalog defines the vocational-education data model mirrored from
// the scraper backend: areas (alan), branches (dal), courses (ders) and the
// learning-unit tree underneath a course. JSON field names follow the
// upstream wire format, which is Turkish.
package catalog

// Area is a field of vocational study (e.g. "Bilişim Teknolojileri").
type Area struct {
	ID     int    `json:"id"`
	Adi    string `json:"adi"`
	CopURL DocRef `json:"cop_url,omitempty"`
	DbfURL DocRef `json:"dbf_urls,omitempty"`
}

// Branch is a specialization within an Area.
type Branch struct {
	ID     int    `json:"id"`
	Adi    string `json:"adi"`
	AlanID int    `json:"alan_id"`
}

// CourseRow is one flat row of the course table.
type CourseRow struct {
	DersID    int    `json:"ders_id"`
	AlanID    int    `json:"alan_id,omitempty"`
	AlanAdi   string `json:"alan_adi"`
	DalID     int    `json:"dal_id,omitempty"`
	DalAdi    string `json:"dal_adi"`
	DersAdi   string `json:"ders_adi"`
	Sinif     int    `json:"sinif"`
	DersSaati int    `json:"ders_saati"`
	DmURL     string `json:"dm_url,omitempty"`
	DbfURL    string `json:"dbf_url,omitempty"`
	BomURL    string `json:"bom_url,omitempty"`
}

// Course is the full editable record for one course, including its
// learning-unit tree.
type Course struct {
	ID               int            `json:"id"`
	DersAdi          string         `json:"ders_adi"`
	Sinif            int            `json:"sinif"`
	DersSaati        int            `json:"ders_saati"`
	AlanID           int            `json:"alan_id"`
	DalID            int            `json:"dal_id"`
	DmURL            string         `json:"dm_url,omitempty"`
	DbfURL           string         `json:"dbf_url,omitempty"`
	BomURL           string         `json:"bom_url,omitempty"`
	Amac             string         `json:"amac,omitempty"`
	OgrenmeBirimleri []LearningUnit `json:"ogrenme_birimleri"`
}

// LearningUnit is a top-level syllabus division within a Course.
// A nil ID marks a unit created locally and not yet persisted; the backend
// assigns an ID on save.
type LearningUnit struct {
	ID      *int    `json:"id"`
	Adi     string  `json:"adi"`
	Sure    int     `json:"sure"` // duration in course hours
	Sira    int     `json:"sira"` // 1-based order among siblings
	Konular []Topic `json:"konular"`
}

// Topic is a subdivision of a LearningUnit.
//
// Key is a client-local handle assigned when the tree is loaded into an edit
// session; it stays stable across mutations so cross-links can reference
// topics that have no backend ID yet. The backend ignores it.
type Topic struct {
	ID         *int      `json:"id"`
	Key        string    `json:"key,omitempty"`
	Adi        string    `json:"adi"`
	Sira       int       `json:"sira"`
	Kazanimlar []Outcome `json:"kazanimlar"`
}

// Outcome is a learning objective (kazanım) attached to a Topic.
type Outcome struct {
	ID       *int   `json:"id"`
	Aciklama string `json:"aciklama"`
	Sira     int    `json:"sira"`
}

// Options holds the Area/Branch selector data. Dallar is keyed by the
// stringified owning area ID, as the backend sends it.
type Options struct {
	Alanlar []Area              `json:"alanlar"`
	Dallar  map[string][]Branch `json:"dallar"`
}

// BranchesFor returns the branches belonging to the given area, in backend
// order. Selecting a new area therefore never leaves a stale branch choice
// valid: callers must re-pick from this list.
func (o Options) BranchesFor(alanID string) []Branch {
	if o.Dallar == nil {
		return nil
	}
	return o.Dallar[alanID]
}

// CloneUnits returns a deep copy of the unit tree. Edit sessions mutate only
// copies, never slices shared with a previous snapshot.
func CloneUnits(units []LearningUnit) []LearningUnit {
	if units == nil {
		return nil
	}
	out := make([]LearningUnit, len(units))
	for i, u := range units {
		out[i] = u
		out[i].ID = cloneID(u.ID)
		out[i].Konular = cloneTopics(u.Konular)
	}
	return out
}

func cloneTopics(topics []Topic) []Topic {
	if topics == nil {
		return nil
	}
	out := make([]Topic, len(topics))
	for i, tp := range topics {
		out[i] = tp
		out[i].ID = cloneID(tp.ID)
		out[i].Kazanimlar = cloneOutcomes(tp.Kazanimlar)
	}
	return out
}

func cloneOutcomes(outcomes []Outcome) []Outcome {
	if outcomes == nil {
		return nil
	}
	out := make([]Outcome, len(outcomes))
	for i, k := range outcomes {
		out[i] = k
		out[i].ID = cloneID(k.ID)
	}
	return out
}

func cloneID(id *int) *int {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// Clone returns a deep copy of the course, tree included.
func (c Course) Clone() Course {
	out := c
	out.OgrenmeBirimleri = CloneUnits(c.OgrenmeBirimleri)
	return out
}
