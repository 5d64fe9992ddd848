package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"npa/draftbuilder/internal/agent"
	"npa/draftbuilder/internal/builder"
	"npa/draftbuilder/internal/comments"
	"npa/draftbuilder/internal/config"
	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/export"
	"npa/draftbuilder/internal/gitrepo"
	"npa/draftbuilder/internal/logx"
	"npa/draftbuilder/internal/session"
	"npa/draftbuilder/internal/store"
	"npa/draftbuilder/internal/templates"
)

const testSecret = "test-secret"

type fakeStore struct {
	mu        sync.Mutex
	drafts    map[string]store.Draft
	comments  map[string][]comments.Comment
	snapshots []builder.Snapshot
	hashes    []string
	saveErr   error
	lineage   []store.LineageCount
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		drafts:   make(map[string]store.Draft),
		comments: make(map[string][]comments.Comment),
	}
}

func (f *fakeStore) ListDrafts(context.Context) ([]store.DraftSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.DraftSummary, 0, len(f.drafts))
	for _, d := range f.drafts {
		out = append(out, store.DraftSummary{ID: d.ID, TemplateID: d.TemplateID, Title: d.Title, Revision: d.Revision})
	}
	return out, nil
}

func (f *fakeStore) GetDraft(_ context.Context, id string) (store.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return store.Draft{}, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) InsertDraft(_ context.Context, d store.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[d.ID] = d
	return nil
}

func (f *fakeStore) SaveSnapshot(_ context.Context, snap builder.Snapshot, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.snapshots = append(f.snapshots, snap)
	f.hashes = append(f.hashes, hash)
	if d, ok := f.drafts[snap.DraftID]; ok {
		d.Document = snap.Document
		d.Revision = snap.Revision
		d.CommitHash = hash
		f.drafts[snap.DraftID] = d
	}
	return nil
}

func (f *fakeStore) ListComments(_ context.Context, draftID string) ([]comments.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]comments.Comment(nil), f.comments[draftID]...), nil
}

func (f *fakeStore) InsertComment(_ context.Context, c comments.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[c.DraftID] = append(f.comments[c.DraftID], c)
	return nil
}

func (f *fakeStore) ResolveComment(_ context.Context, draftID, commentID, by string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.comments[draftID] {
		if c.ID == commentID && !c.Resolved {
			c.Resolved = true
			c.ResolvedBy = by
			c.ResolvedAt = &at
			f.comments[draftID][i] = c
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) LineageCounts(context.Context, string) ([]store.LineageCount, error) {
	return f.lineage, nil
}

func (f *fakeStore) ListFieldRows(_ context.Context, draftID string) ([]store.FieldRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[draftID]
	if !ok {
		return []store.FieldRow{}, nil
	}
	rows := make([]store.FieldRow, 0)
	for _, field := range d.Document.Fields() {
		rows = append(rows, store.FieldRow{DraftID: draftID, FieldKey: field.Key, Value: field.Value, Lineage: string(field.Lineage)})
	}
	return rows, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

func (f *fakeStore) setSaveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

func (f *fakeStore) lastSnapshot() (builder.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return builder.Snapshot{}, false
	}
	return f.snapshots[len(f.snapshots)-1], true
}

func (f *fakeStore) storedComments(draftID string) []comments.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]comments.Comment(nil), f.comments[draftID]...)
}

type fakeGit struct {
	mu      sync.Mutex
	commits map[string][]gitrepo.Content
	infos   map[string][]gitrepo.CommitInfo
	// gate, when set, holds every commit until it is closed; started
	// receives a signal as each held commit begins.
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeGit) CommitSnapshot(draftID string, content gitrepo.Content, author, message string) (gitrepo.CommitInfo, error) {
	if f.gate != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commits == nil {
		f.commits = make(map[string][]gitrepo.Content)
		f.infos = make(map[string][]gitrepo.CommitInfo)
	}
	info := gitrepo.CommitInfo{
		Hash:      strings.Repeat("a", 39) + string(rune('0'+len(f.commits[draftID]))),
		Message:   message,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}
	f.commits[draftID] = append(f.commits[draftID], content)
	f.infos[draftID] = append(f.infos[draftID], info)
	return info, nil
}

func (f *fakeGit) GetHeadContent(draftID string) (gitrepo.Content, gitrepo.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.commits[draftID]
	if len(list) == 0 {
		return gitrepo.Content{}, gitrepo.CommitInfo{}, errors.New("no commits")
	}
	return list[len(list)-1], f.infos[draftID][len(list)-1], nil
}

func (f *fakeGit) GetContentByHash(draftID, hash string) (gitrepo.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, info := range f.infos[draftID] {
		if info.Hash == hash {
			return f.commits[draftID][i], nil
		}
	}
	return gitrepo.Content{}, errors.New("unknown commit")
}

func (f *fakeGit) History(draftID string, limit int) ([]gitrepo.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := f.infos[draftID]
	out := make([]gitrepo.CommitInfo, 0, len(infos))
	for i := len(infos) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, infos[i])
	}
	return out, nil
}

type fakeTranscripts struct {
	mu       sync.Mutex
	messages map[string][]agent.Message
	leases   map[string]string
	released []string
}

func newFakeTranscripts() *fakeTranscripts {
	return &fakeTranscripts{messages: make(map[string][]agent.Message), leases: make(map[string]string)}
}

func (f *fakeTranscripts) AppendMessage(_ context.Context, draftID string, msg agent.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[draftID] = append(f.messages[draftID], msg)
	return nil
}

func (f *fakeTranscripts) LoadTranscript(_ context.Context, draftID string) ([]agent.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.Message{}, f.messages[draftID]...), nil
}

func (f *fakeTranscripts) AcquireLease(_ context.Context, draftID, owner string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.leases[draftID]; ok && current != owner {
		return session.ErrLeaseHeld
	}
	f.leases[draftID] = owner
	return nil
}

func (f *fakeTranscripts) ReleaseLease(_ context.Context, draftID, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leases[draftID] == owner {
		delete(f.leases, draftID)
	}
	f.released = append(f.released, draftID)
	return nil
}

func (f *fakeTranscripts) held(draftID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.leases[draftID]
	return ok
}

type fakeTemplates struct {
	docs map[string]draft.Document
}

func (f fakeTemplates) List(context.Context) ([]templates.Summary, error) {
	out := make([]templates.Summary, 0, len(f.docs))
	for id, doc := range f.docs {
		out = append(out, templates.Summary{ID: id, Title: doc.Title, Sections: len(doc.Sections)})
	}
	return out, nil
}

func (f fakeTemplates) Load(_ context.Context, id string) (draft.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return draft.Document{}, templates.ErrNotFound
	}
	return doc.Clone(), nil
}

func testDocument() draft.Document {
	return draft.Document{
		ID:    "npa-standard",
		Title: "New Product Approval",
		Sections: []draft.Section{
			{ID: "PC.I", Label: "Product", Fields: []draft.Field{
				{Key: "product_name", Label: "Product name", Type: draft.TypeText, Required: true, Value: "Green Deposit", Lineage: draft.LineageAuto},
				{Key: "summary", Label: "Summary", Type: draft.TypeTextarea, Required: true},
				{Key: "fees", Label: "Fees", Type: draft.TypeBulletList},
			}},
			{ID: "PC.IV", Label: "Risk", Fields: []draft.Field{
				{Key: "cross_border", Label: "Cross border", Type: draft.TypeYesNo},
				{Key: "channels", Label: "Channels", Type: draft.TypeMultiselect, Options: []string{"Web", "Branch", "App"}},
			}},
			{ID: "APP.1", Label: "Appendix", Fields: []draft.Field{
				{Key: "legal_opinion", Label: "Legal opinion", Type: draft.TypeTextarea},
			}},
		},
	}
}

type testEnv struct {
	svc         *Service
	store       *fakeStore
	git         *fakeGit
	transcripts *fakeTranscripts
	server      http.Handler
	token       string
}

func newTestService(t *testing.T) *testEnv {
	t.Helper()
	logx.Discard()

	fs := newFakeStore()
	fg := &fakeGit{}
	ft := newFakeTranscripts()
	doc := testDocument()
	fs.drafts["draft_1"] = store.Draft{ID: "draft_1", TemplateID: "npa-standard", Title: doc.Title, Document: doc, CreatedBy: "Avery"}

	svc := &Service{
		cfg:         config.Config{TokenSecret: testSecret},
		store:       fs,
		git:         fg,
		templates:   fakeTemplates{docs: map[string]draft.Document{"npa-standard": testDocument()}},
		transcripts: ft,
		opts: builder.Options{
			AutosaveInterval:  time.Hour,
			SaveTimeout:       time.Second,
			AgentReplyDelay:   0,
			AgentReplyTimeout: time.Second,
		},
		nodeID:   "node-test",
		sessions: make(map[string]*openDraft),
	}
	svc.exporter = export.NewService(export.DataStoreFunc(svc.LoadDraftData), nil)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	token, _, err := svc.Login("Avery", "biz")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return &testEnv{
		svc:         svc,
		store:       fs,
		git:         fg,
		transcripts: ft,
		server:      NewHTTPServer(svc, "*").Handler(),
		token:       token,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}
