package store

import (
	"time"

	"npa/draftbuilder/internal/draft"
)

type Draft struct {
	ID         string
	TemplateID string
	Title      string
	Document   draft.Document
	Revision   uint64
	CommitHash string
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DraftSummary is a draft listing row.
type DraftSummary struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	Title      string    `json:"title"`
	Revision   uint64    `json:"revision"`
	CommitHash string    `json:"commitHash"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FieldRow is the per-field projection written on every save.
type FieldRow struct {
	DraftID    string    `json:"draftId"`
	FieldKey   string    `json:"fieldKey"`
	SectionID  string    `json:"sectionId"`
	Label      string    `json:"label"`
	Type       string    `json:"type"`
	Value      string    `json:"value"`
	Lineage    string    `json:"lineage"`
	Strategy   string    `json:"strategy,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// LineageCount is how many fields of a draft carry one lineage.
type LineageCount struct {
	Lineage draft.Lineage `json:"lineage"`
	Count   int           `json:"count"`
}
