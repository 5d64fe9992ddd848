package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"npa/draftbuilder/internal/comments"
	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/logx"
)

type fakeBackend struct {
	mu       sync.Mutex
	healthy  bool
	results  []Result
	err      error
	drafts   []DraftRecord
	fields   []FieldRecord
	comments []CommentRecord
}

func (f *fakeBackend) Search(_ context.Context, q Query) ([]Result, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeBackend) Healthy() bool { return f.healthy }

func (f *fakeBackend) IndexDraft(d DraftRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	return nil
}

func (f *fakeBackend) IndexFields(fields []FieldRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = append(f.fields, fields...)
	return nil
}

func (f *fakeBackend) IndexComments(comments []CommentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, comments...)
	return nil
}

type fakeLoader struct{}

func (fakeLoader) LoadAllRecords(context.Context) ([]DraftRecord, []FieldRecord, []CommentRecord, error) {
	return []DraftRecord{{ID: "d1"}, {ID: "d2"}}, []FieldRecord{{ID: "d1__a"}}, []CommentRecord{{ID: "c1"}}, nil
}

func sampleDocument() draft.Document {
	return draft.Document{
		ID:    "npa-standard",
		Title: "Green Deposit",
		Sections: []draft.Section{{
			ID: "PC.I",
			Fields: []draft.Field{
				{Key: "product_name", Label: "Product name", Value: "Green Deposit", Lineage: draft.LineageAuto},
				{Key: "summary", Label: "Summary"},
			},
			SubSections: []draft.SubSection{{
				ID:     "PC.I.1",
				Fields: []draft.Field{{Key: "target.market", Label: "Target market", Value: "Retail"}},
			}},
		}},
	}
}

func TestParseResultType(t *testing.T) {
	tests := map[string]ResultType{
		"field":    ResultField,
		" Comment": ResultComment,
		"draft":    ResultDraft,
		"section":  "",
		"":         "",
	}
	for in, want := range tests {
		if got := ParseResultType(in); got != want {
			t.Errorf("ParseResultType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFieldRecordsSkipsEmptyAndSanitisesIDs(t *testing.T) {
	doc := sampleDocument()
	records := FieldRecords("draft_1", &doc)

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %+v", records)
	}
	if records[0].FieldKey != "product_name" || records[0].Lineage != "AUTO" || records[0].SectionID != "PC.I" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].ID != "draft_1__target-market" {
		t.Errorf("unexpected sanitised id %q", records[1].ID)
	}
}

func TestBuildFTSQuery(t *testing.T) {
	if data, _, _ := buildFTSQuery(Query{Text: "   "}); data != "" {
		t.Fatal("blank text should not build a query")
	}

	data, count, args := buildFTSQuery(Query{Text: "risk", FilterType: ResultComment, FilterDraftID: "d1", Limit: 5, Offset: 10})
	if len(args) != 2 || args[1] != "d1" {
		t.Fatalf("unexpected args: %v", args)
	}
	if !strings.Contains(data, "FROM comments c") || strings.Contains(data, "FROM draft_fields") {
		t.Fatalf("type filter not applied: %s", data)
	}
	if !strings.Contains(data, "c.draft_id = $2") || !strings.Contains(data, "LIMIT 5 OFFSET 10") {
		t.Fatalf("draft filter or paging missing: %s", data)
	}
	if !strings.HasPrefix(count, "SELECT count(*)") {
		t.Fatalf("unexpected count query: %s", count)
	}

	all, _, args := buildFTSQuery(Query{Text: "risk"})
	if len(args) != 1 || strings.Count(all, "UNION ALL") != 2 || !strings.Contains(all, "LIMIT 20 OFFSET 0") {
		t.Fatalf("unexpected unfiltered query: %s", all)
	}
}

func TestServiceFallsBackWhenPrimaryFails(t *testing.T) {
	logx.Discard()
	primary := &fakeBackend{healthy: true, err: errors.New("down")}
	fallback := &fakeBackend{healthy: true, results: []Result{{Type: ResultField, ID: "f1"}}}
	svc := NewService(primary, fallback)

	resp := svc.Search(context.Background(), Query{Text: "  risk "})
	if resp.Total != 1 || resp.Results[0].ID != "f1" || resp.Query != "risk" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServiceWithoutBackendsReturnsEmpty(t *testing.T) {
	resp := NewService(nil, nil).Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
}

func TestServiceIndexesDocumentAndComment(t *testing.T) {
	primary := &fakeBackend{healthy: true}
	svc := NewService(primary, nil)

	svc.IndexDocument("draft_1", "npa-standard", sampleDocument())
	if err := svc.IndexComment(comments.Comment{ID: "c1", DraftID: "draft_1", FieldKey: "summary", Author: "Avery", Text: "fill me"}); err != nil {
		t.Fatalf("IndexComment() error = %v", err)
	}
	svc.Wait()

	if len(primary.drafts) != 1 || primary.drafts[0].TemplateID != "npa-standard" || primary.drafts[0].Title != "Green Deposit" {
		t.Fatalf("unexpected drafts: %+v", primary.drafts)
	}
	if len(primary.fields) != 2 {
		t.Fatalf("unexpected fields: %+v", primary.fields)
	}
	if len(primary.comments) != 1 || primary.comments[0].Body != "fill me" {
		t.Fatalf("unexpected comments: %+v", primary.comments)
	}
}

func TestServiceSkipsIndexingWhenUnhealthy(t *testing.T) {
	primary := &fakeBackend{healthy: false}
	svc := NewService(primary, nil)

	svc.IndexDocument("draft_1", "npa-standard", sampleDocument())
	svc.ReindexAll(context.Background(), fakeLoader{})
	svc.Wait()

	if len(primary.drafts) != 0 || len(primary.fields) != 0 {
		t.Fatal("unhealthy backend must not be indexed")
	}
}

func TestServiceReindexAll(t *testing.T) {
	logx.Discard()
	primary := &fakeBackend{healthy: true}
	NewService(primary, nil).ReindexAll(context.Background(), fakeLoader{})

	if len(primary.drafts) != 2 || len(primary.fields) != 1 || len(primary.comments) != 1 {
		t.Fatalf("unexpected reindex: %+v", primary)
	}
}

func TestSearchRequestsFilterOnFilterableAttributes(t *testing.T) {
	filterable := make(map[string][]string)
	for _, idx := range indexSettings {
		filterable[idx.uid] = idx.filterable
	}

	requests := searchRequests(Query{Text: "deposit", FilterDraftID: "draft_1"})
	if len(requests) != 3 {
		t.Fatalf("expected one request per index, got %d", len(requests))
	}
	for _, req := range requests {
		filters, ok := req.Filter.([]string)
		if !ok || len(filters) != 1 {
			t.Fatalf("%s: unexpected filter %#v", req.IndexUID, req.Filter)
		}
		attr := strings.Fields(filters[0])[0]
		found := false
		for _, candidate := range filterable[req.IndexUID] {
			if candidate == attr {
				found = true
			}
		}
		if !found {
			t.Errorf("%s filters on %q, which is not filterable (%v)", req.IndexUID, attr, filterable[req.IndexUID])
		}
	}

	drafts := searchRequests(Query{Text: "deposit", FilterType: ResultDraft, FilterDraftID: "draft_1", Limit: 5})
	if len(drafts) != 1 || drafts[0].IndexUID != idxDrafts || drafts[0].Limit != 5 {
		t.Fatalf("unexpected draft-only requests: %+v", drafts)
	}
	if got := drafts[0].Filter.([]string)[0]; got != `id = "draft_1"` {
		t.Fatalf("draft filter = %q", got)
	}
}
