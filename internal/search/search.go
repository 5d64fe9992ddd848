package search

import (
	"context"
	"regexp"
	"strings"

	"npa/draftbuilder/internal/draft"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDraft   ResultType = "draft"
	ResultField   ResultType = "field"
	ResultComment ResultType = "comment"
)

// ParseResultType accepts the type filter of the search endpoint. Unknown
// values mean no filter.
func ParseResultType(raw string) ResultType {
	switch ResultType(strings.ToLower(strings.TrimSpace(raw))) {
	case ResultDraft:
		return ResultDraft
	case ResultField:
		return ResultField
	case ResultComment:
		return ResultComment
	default:
		return ""
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	DraftID  string     `json:"draftId"`
	FieldKey string     `json:"fieldKey,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterDraftID string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexDraft(d DraftRecord) error
	IndexFields(fields []FieldRecord) error
	IndexComments(comments []CommentRecord) error
}

// DraftRecord is the data we index for a draft.
type DraftRecord struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	TemplateID string `json:"templateId"`
}

// FieldRecord is the data we index for one field of a draft.
type FieldRecord struct {
	ID        string `json:"id"`
	DraftID   string `json:"draftId"`
	FieldKey  string `json:"fieldKey"`
	SectionID string `json:"sectionId"`
	Label     string `json:"label"`
	Value     string `json:"value"`
	Lineage   string `json:"lineage"`
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID       string `json:"id"`
	DraftID  string `json:"draftId"`
	FieldKey string `json:"fieldKey"`
	Author   string `json:"author"`
	Body     string `json:"body"`
	Resolved bool   `json:"resolved"`
}

var invalidDocumentID = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// FieldDocumentID is the index primary key of a draft field.
func FieldDocumentID(draftID, fieldKey string) string {
	return invalidDocumentID.ReplaceAllString(draftID+"__"+fieldKey, "-")
}

// FieldRecords flattens a draft document into indexable field records.
// Empty fields are skipped.
func FieldRecords(draftID string, doc *draft.Document) []FieldRecord {
	records := make([]FieldRecord, 0)
	for i := range doc.Sections {
		section := &doc.Sections[i]
		for _, f := range section.AllFields() {
			if strings.TrimSpace(f.Value) == "" {
				continue
			}
			records = append(records, FieldRecord{
				ID:        FieldDocumentID(draftID, f.Key),
				DraftID:   draftID,
				FieldKey:  f.Key,
				SectionID: section.ID,
				Label:     f.Label,
				Value:     f.Value,
				Lineage:   string(f.Lineage),
			})
		}
	}
	return records
}
