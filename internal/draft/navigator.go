package draft

import "strings"

// Navigator tracks the active section of a document.
type Navigator struct {
	doc    *Document
	active int
}

// NewNavigator starts on the first section.
func NewNavigator(doc *Document) *Navigator {
	return &Navigator{doc: doc}
}

// Active returns the active section index.
func (n *Navigator) Active() int {
	return n.active
}

// Len returns the number of sections.
func (n *Navigator) Len() int {
	return len(n.doc.Sections)
}

// Select makes index active. Indexes outside [0, Len-1] are ignored.
func (n *Navigator) Select(index int) Outcome {
	if index < 0 || index >= len(n.doc.Sections) {
		return NoOpOutOfRange
	}
	n.active = index
	return Applied
}

// Next moves one section forward; it stays put on the last section.
func (n *Navigator) Next() Outcome {
	return n.Select(n.active + 1)
}

// Prev moves one section back; it stays put on the first section.
func (n *Navigator) Prev() Outcome {
	return n.Select(n.active - 1)
}

// JumpToField activates the first section containing key. Unknown keys
// leave the active section unchanged.
func (n *Navigator) JumpToField(key string) Outcome {
	index := n.doc.SectionIndexOf(key)
	if index < 0 {
		return NoOpUnknownField
	}
	return n.Select(index)
}

// IsAppendixBoundary reports whether index is the first appendix section
// after a non-appendix one.
func (n *Navigator) IsAppendixBoundary(index int) bool {
	if index <= 0 || index >= len(n.doc.Sections) {
		return false
	}
	return strings.HasPrefix(n.doc.Sections[index].ID, AppendixPrefix) &&
		!strings.HasPrefix(n.doc.Sections[index-1].ID, AppendixPrefix)
}

// BoundaryFlags returns IsAppendixBoundary for every section.
func (n *Navigator) BoundaryFlags() []bool {
	flags := make([]bool, len(n.doc.Sections))
	for i := range flags {
		flags[i] = n.IsAppendixBoundary(i)
	}
	return flags
}

// SectionProgress returns the progress badge for the section at index.
func (n *Navigator) SectionProgress(index int) (SectionProgress, bool) {
	if index < 0 || index >= len(n.doc.Sections) {
		return SectionProgress{}, false
	}
	return ProgressOf(&n.doc.Sections[index]), true
}

// ProgressPercent returns the completion percentage of the section at index.
func (n *Navigator) ProgressPercent(index int) int {
	p, ok := n.SectionProgress(index)
	if !ok {
		return 0
	}
	return p.Percent()
}
