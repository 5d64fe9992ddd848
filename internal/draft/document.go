package draft

import (
	"fmt"
	"strings"
)

// Owner is the party responsible for completing a section.
type Owner string

const (
	OwnerBiz     Owner = "BIZ"
	OwnerTechOps Owner = "TECH_OPS"
	OwnerFinance Owner = "FINANCE"
	OwnerRMG     Owner = "RMG"
	OwnerLCS     Owner = "LCS"
)

// Valid reports whether o is a known owner.
func (o Owner) Valid() bool {
	switch o {
	case OwnerBiz, OwnerTechOps, OwnerFinance, OwnerRMG, OwnerLCS:
		return true
	default:
		return false
	}
}

// AppendixPrefix marks the ids of appendix sections.
const AppendixPrefix = "APP"

// SubSection groups fields inside a section. It is owned by exactly one section.
type SubSection struct {
	ID        string  `json:"id" yaml:"id"`
	Numbering string  `json:"numbering" yaml:"numbering"`
	Label     string  `json:"label" yaml:"label"`
	Fields    []Field `json:"fields" yaml:"fields"`
}

// Section is a top-level group of the document.
type Section struct {
	ID          string       `json:"id" yaml:"id"`
	Numbering   string       `json:"numbering" yaml:"numbering"`
	Label       string       `json:"label" yaml:"label"`
	Owner       Owner        `json:"owner" yaml:"owner"`
	Fields      []Field      `json:"fields" yaml:"fields"`
	SubSections []SubSection `json:"subSections,omitempty" yaml:"sub_sections,omitempty"`
}

// IsAppendix reports whether the section belongs to the appendix.
func (s *Section) IsAppendix() bool {
	return strings.HasPrefix(s.ID, AppendixPrefix)
}

// AllFields returns pointers to the section's own fields followed by the
// fields of each sub-section, in declaration order.
func (s *Section) AllFields() []*Field {
	out := make([]*Field, 0, len(s.Fields))
	for i := range s.Fields {
		out = append(out, &s.Fields[i])
	}
	for i := range s.SubSections {
		sub := &s.SubSections[i]
		for j := range sub.Fields {
			out = append(out, &sub.Fields[j])
		}
	}
	return out
}

// HasField reports whether the section or one of its sub-sections holds key.
func (s *Section) HasField(key string) bool {
	for _, f := range s.AllFields() {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Document is an ordered sequence of sections.
type Document struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Sections []Section `json:"sections" yaml:"sections"`
}

// Fields returns every field of the document in document order.
func (d *Document) Fields() []*Field {
	var out []*Field
	for i := range d.Sections {
		out = append(out, d.Sections[i].AllFields()...)
	}
	return out
}

// Field looks a field up by key.
func (d *Document) Field(key string) (*Field, bool) {
	for i := range d.Sections {
		for _, f := range d.Sections[i].AllFields() {
			if f.Key == key {
				return f, true
			}
		}
	}
	return nil, false
}

// SectionIndexOf returns the index of the first section containing key, or -1.
func (d *Document) SectionIndexOf(key string) int {
	for i := range d.Sections {
		if d.Sections[i].HasField(key) {
			return i
		}
	}
	return -1
}

// IsApplicable evaluates f.DependsOn against the current document. Fields
// without a precondition, or whose precondition names an unknown field, are
// applicable. Progress does not consult this.
func (d *Document) IsApplicable(f *Field) bool {
	if f.DependsOn == nil || f.DependsOn.Field == "" {
		return true
	}
	other, ok := d.Field(f.DependsOn.Field)
	if !ok {
		return true
	}
	if other.Type == TypeMultiselect {
		return contains(other.selection, f.DependsOn.Value)
	}
	return other.Value == f.DependsOn.Value
}

// Normalize restores derived field representations after the document was
// decoded from a template or a stored snapshot.
func (d *Document) Normalize() {
	for _, f := range d.Fields() {
		f.normalize()
	}
}

// Validate checks the structural rules of a loaded document and normalises it.
func (d *Document) Validate() error {
	if len(d.Sections) == 0 {
		return fmt.Errorf("document %q has no sections", d.ID)
	}
	seenSections := make(map[string]struct{}, len(d.Sections))
	seenFields := make(map[string]string)
	for i := range d.Sections {
		section := &d.Sections[i]
		if strings.TrimSpace(section.ID) == "" {
			return fmt.Errorf("section %d has no id", i)
		}
		if _, dup := seenSections[section.ID]; dup {
			return fmt.Errorf("duplicate section id %q", section.ID)
		}
		seenSections[section.ID] = struct{}{}
		if section.Owner != "" && !section.Owner.Valid() {
			return fmt.Errorf("section %s: unknown owner %q", section.ID, section.Owner)
		}
		for _, f := range section.AllFields() {
			if strings.TrimSpace(f.Key) == "" {
				return fmt.Errorf("section %s: field without key", section.ID)
			}
			if prev, dup := seenFields[f.Key]; dup {
				return fmt.Errorf("field key %q declared in %s and %s", f.Key, prev, section.ID)
			}
			seenFields[f.Key] = section.ID
			if !f.Type.Valid() {
				return fmt.Errorf("field %s: unknown type %q", f.Key, f.Type)
			}
			if f.Lineage != "" && !f.Lineage.Valid() {
				return fmt.Errorf("field %s: unknown lineage %q", f.Key, f.Lineage)
			}
			if f.Strategy != "" && !f.Strategy.Valid() {
				return fmt.Errorf("field %s: unknown strategy %q", f.Key, f.Strategy)
			}
		}
	}
	d.Normalize()
	return nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() Document {
	out := Document{ID: d.ID, Title: d.Title, Sections: make([]Section, len(d.Sections))}
	for i, section := range d.Sections {
		copied := section
		copied.Fields = cloneFields(section.Fields)
		if section.SubSections != nil {
			copied.SubSections = make([]SubSection, len(section.SubSections))
			for j, sub := range section.SubSections {
				sub.Fields = cloneFields(sub.Fields)
				copied.SubSections[j] = sub
			}
		}
		out.Sections[i] = copied
	}
	return out
}

func cloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i := range fields {
		out[i] = fields[i].clone()
	}
	return out
}
