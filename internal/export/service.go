package export

import (
	"context"
	"fmt"
	"time"

	"npa/draftbuilder/internal/logx"
)

// DataStore loads the draft to export.
type DataStore interface {
	LoadDraftData(ctx context.Context, draftID string) (DraftData, error)
}

// DataStoreFunc adapts a function to DataStore.
type DataStoreFunc func(ctx context.Context, draftID string) (DraftData, error)

func (f DataStoreFunc) LoadDraftData(ctx context.Context, draftID string) (DraftData, error) {
	return f(ctx, draftID)
}

type converter func(ctx context.Context, html string, title string) (*Result, error)

// Service provides draft export functionality
type Service struct {
	store   DataStore
	objects ObjectStore
	now     func() time.Time

	pdf  converter
	docx converter
}

// NewService creates an export service. objects may be nil.
func NewService(store DataStore, objects ObjectStore) *Service {
	return &Service{
		store:   store,
		objects: objects,
		now:     time.Now,
		pdf:     exportPDF,
		docx:    pandocDOCX(""),
	}
}

// UseReferenceDoc styles DOCX exports with a pandoc reference document.
func (s *Service) UseReferenceDoc(path string) {
	s.docx = pandocDOCX(path)
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	data, err := s.store.LoadDraftData(ctx, req.DraftID)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}

	tmpl := BuildTemplateData(data, req.IncludeComments, req.IncludeResolved)
	html, err := RenderDraftHTML(tmpl)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var result *Result
	switch req.Format {
	case FormatPDF:
		result, err = s.pdf(ctx, html, tmpl.Title)
	case FormatDOCX:
		result, err = s.docx(ctx, html, tmpl.Title)
	case FormatHTML:
		result = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(tmpl.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}

	logx.Info().
		Str("draft", req.DraftID).
		Str("format", string(req.Format)).
		Int("bytes", len(result.Data)).
		Int("comments", commentCount(tmpl)).
		Msg("draft exported")

	if req.Archive && s.objects != nil {
		key := objectKey(req.DraftID, data.Revision, s.now(), result.Filename)
		if err := s.objects.Put(ctx, key, result.Data, result.MimeType); err != nil {
			return nil, fmt.Errorf("archive export: %w", err)
		}
		result.ObjectKey = key
	}
	return result, nil
}

// ArchiveURL presigns a download link for an archived export.
func (s *Service) ArchiveURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if s.objects == nil {
		return "", fmt.Errorf("object storage is not configured")
	}
	return s.objects.URL(ctx, key, expires)
}
