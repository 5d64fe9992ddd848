package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"npa/draftbuilder/internal/draft"
)

//go:embed templates/*.html
var templateFS embed.FS

var draftTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(layout)
		},
	}
	draftTemplate = template.Must(template.New("draft.html").Funcs(funcMap).ParseFS(templateFS, "templates/draft.html"))
}

// TemplateData holds data for draft template rendering
type TemplateData struct {
	DraftID         string
	Title           string
	Revision        uint64
	Author          string
	UpdatedAt       time.Time
	Filled          int
	Total           int
	ProgressPercent int
	Issues          []draft.Issue
	Sections        []TemplateSection
}

// TemplateSection is one rendered section; the first appendix section
// starts a new part of the document.
type TemplateSection struct {
	ID               string
	Numbering        string
	Label            string
	Percent          int
	AppendixBoundary bool
	Fields           []TemplateField
}

type TemplateField struct {
	Key       string
	Label     string
	Lineage   string
	Strategy  string
	Required  bool
	Missing   bool
	ValueHTML template.HTML
	Comments  []TemplateComment
}

type TemplateComment struct {
	Author    string
	Text      string
	Resolved  bool
	CreatedAt time.Time
}

// BuildTemplateData lays a draft out for rendering. Resolved comments are
// dropped unless includeResolved is set; all comments are dropped when
// includeComments is not.
func BuildTemplateData(data DraftData, includeComments, includeResolved bool) TemplateData {
	doc := data.Document.Clone()
	progress := draft.ProgressOfDocument(&doc)

	byField := make(map[string][]TemplateComment)
	if includeComments {
		for _, c := range data.Comments {
			if c.Resolved && !includeResolved {
				continue
			}
			byField[c.FieldKey] = append(byField[c.FieldKey], TemplateComment{
				Author:    c.Author,
				Text:      c.Text,
				Resolved:  c.Resolved,
				CreatedAt: c.Timestamp,
			})
		}
	}

	title := data.Title
	if title == "" {
		title = doc.Title
	}
	out := TemplateData{
		DraftID:         data.DraftID,
		Title:           title,
		Revision:        data.Revision,
		Author:          data.Author,
		UpdatedAt:       data.UpdatedAt,
		Filled:          progress.Filled,
		Total:           progress.Total,
		ProgressPercent: progress.Percent(),
		Issues:          draft.IssuesOf(&doc),
		Sections:        make([]TemplateSection, 0, len(doc.Sections)),
	}

	seenAppendix := false
	for i := range doc.Sections {
		section := &doc.Sections[i]
		ts := TemplateSection{
			ID:        section.ID,
			Numbering: section.Numbering,
			Label:     section.Label,
			Percent:   draft.ProgressOf(section).Percent(),
		}
		if section.IsAppendix() && !seenAppendix {
			ts.AppendixBoundary = true
			seenAppendix = true
		}
		for _, f := range section.AllFields() {
			ts.Fields = append(ts.Fields, TemplateField{
				Key:       f.Key,
				Label:     f.Label,
				Lineage:   string(f.Lineage),
				Strategy:  string(f.Strategy),
				Required:  f.Required,
				Missing:   f.Required && !draft.IsFilled(f),
				ValueHTML: FieldValueHTML(f),
				Comments:  byField[f.Key],
			})
		}
		out.Sections = append(out.Sections, ts)
	}
	return out
}

// commentCount is the number of comments that made it into data.
func commentCount(data TemplateData) int {
	n := 0
	for _, s := range data.Sections {
		for _, f := range s.Fields {
			n += len(f.Comments)
		}
	}
	return n
}

// RenderDraftHTML renders the draft template with provided data
func RenderDraftHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := draftTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
