package search

import (
	"context"
	"strings"
	"sync"

	"npa/draftbuilder/internal/comments"
	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/logx"
)

// Backend is a primary search engine that is also fed by indexing.
type Backend interface {
	Searcher
	Indexer
}

// RecordLoader reads every searchable record for a full reindex.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]DraftRecord, []FieldRecord, []CommentRecord, error)
}

// Service is the facade that tries the primary backend first and falls back
// to Postgres FTS.
type Service struct {
	primary  Backend
	fallback Searcher
	wg       sync.WaitGroup
}

// NewService creates a search service. primary may be nil when Meilisearch
// is not configured; pass a nil interface, not a typed nil pointer.
func NewService(primary Backend, fallback Searcher) *Service {
	return &Service{primary: primary, fallback: fallback}
}

func (s *Service) primaryReady() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search tries the primary backend if healthy, otherwise falls back.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if s.primaryReady() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		logx.Warn().Err(err).Msg("search: primary backend error, falling back to pgfts")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		logx.Error().Err(err).Msg("search: pgfts error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument indexes a saved draft and its non-empty fields
// (fire-and-forget).
func (s *Service) IndexDocument(draftID, templateID string, doc draft.Document) {
	if !s.primaryReady() {
		return
	}
	record := DraftRecord{ID: draftID, Title: doc.Title, TemplateID: templateID}
	fields := FieldRecords(draftID, &doc)
	s.async("draft "+draftID, func() error {
		if err := s.primary.IndexDraft(record); err != nil {
			return err
		}
		return s.primary.IndexFields(fields)
	})
}

// IndexComment indexes one comment on the caller's goroutine, so the index
// sees a comment's insert and resolve in the order they were stored.
func (s *Service) IndexComment(c comments.Comment) error {
	if !s.primaryReady() {
		return nil
	}
	record := CommentRecord{
		ID:       c.ID,
		DraftID:  c.DraftID,
		FieldKey: c.FieldKey,
		Author:   c.Author,
		Body:     c.Text,
		Resolved: c.Resolved,
	}
	return s.primary.IndexComments([]CommentRecord{record})
}

// ReindexAll pushes every stored record to the primary backend.
func (s *Service) ReindexAll(ctx context.Context, loader RecordLoader) {
	if !s.primaryReady() || loader == nil {
		return
	}
	drafts, fields, comments, err := loader.LoadAllRecords(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("search: reindex load failed")
		return
	}
	for _, d := range drafts {
		if err := s.primary.IndexDraft(d); err != nil {
			logx.Warn().Err(err).Str("draft", d.ID).Msg("search: reindex draft")
		}
	}
	if err := s.primary.IndexFields(fields); err != nil {
		logx.Warn().Err(err).Msg("search: reindex fields")
	}
	if err := s.primary.IndexComments(comments); err != nil {
		logx.Warn().Err(err).Msg("search: reindex comments")
	}
	logx.Info().Int("drafts", len(drafts)).Int("fields", len(fields)).Int("comments", len(comments)).Msg("search: reindex complete")
}

// Wait blocks until in-flight index calls finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) async(what string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			logx.Warn().Err(err).Str("target", what).Msg("search: index failed")
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
