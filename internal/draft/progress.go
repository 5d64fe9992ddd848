package draft

import "math"

// SectionProgress is the fill state of one section, sub-sections included.
type SectionProgress struct {
	Filled          int `json:"filled"`
	Total           int `json:"total"`
	MissingRequired int `json:"missingRequired"`
}

// Percent is the rounded completion percentage.
func (p SectionProgress) Percent() int {
	return Percent(p.Filled, p.Total)
}

// DocumentProgress is the fill state of the whole document.
type DocumentProgress struct {
	Filled         int `json:"filled"`
	Total          int `json:"total"`
	Required       int `json:"required"`
	RequiredFilled int `json:"requiredFilled"`
}

// Percent is the rounded completion percentage.
func (p DocumentProgress) Percent() int {
	return Percent(p.Filled, p.Total)
}

// Issue is a required field that has not been filled.
type Issue struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	SectionID    string `json:"sectionId"`
	SectionIndex int    `json:"sectionIndex"`
}

// Percent returns round(filled/total*100), or 0 for an empty set.
func Percent(filled, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(filled) / float64(total) * 100))
}

// FieldsProgress counts filled and missing required fields in a field list.
func FieldsProgress(fields []*Field) SectionProgress {
	var p SectionProgress
	for _, f := range fields {
		p.Total++
		filled := IsFilled(f)
		if filled {
			p.Filled++
		}
		if f.Required && !filled {
			p.MissingRequired++
		}
	}
	return p
}

// ProgressOf computes the progress of a section over its own and sub-section fields.
func ProgressOf(s *Section) SectionProgress {
	return FieldsProgress(s.AllFields())
}

// ProgressOfDocument aggregates progress across every section.
func ProgressOfDocument(d *Document) DocumentProgress {
	var p DocumentProgress
	for _, f := range d.Fields() {
		p.Total++
		filled := IsFilled(f)
		if filled {
			p.Filled++
		}
		if f.Required {
			p.Required++
			if filled {
				p.RequiredFilled++
			}
		}
	}
	return p
}

// IssuesOf lists every required, unfilled field in document order.
func IssuesOf(d *Document) []Issue {
	issues := make([]Issue, 0)
	for i := range d.Sections {
		section := &d.Sections[i]
		for _, f := range section.AllFields() {
			if f.Required && !IsFilled(f) {
				issues = append(issues, Issue{
					Key:          f.Key,
					Label:        f.Label,
					SectionID:    section.ID,
					SectionIndex: i,
				})
			}
		}
	}
	return issues
}
