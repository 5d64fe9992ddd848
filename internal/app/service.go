package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"npa/draftbuilder/internal/agent"
	"npa/draftbuilder/internal/auth"
	"npa/draftbuilder/internal/builder"
	"npa/draftbuilder/internal/comments"
	"npa/draftbuilder/internal/config"
	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/export"
	"npa/draftbuilder/internal/gitrepo"
	"npa/draftbuilder/internal/logx"
	"npa/draftbuilder/internal/search"
	"npa/draftbuilder/internal/session"
	"npa/draftbuilder/internal/store"
	"npa/draftbuilder/internal/templates"
	"npa/draftbuilder/internal/util"
)

const (
	defaultLeaseTTL = 2 * time.Hour
	closeSaveLimit  = 10 * time.Second
	tokenTTL        = 12 * time.Hour
)

type dataStore interface {
	ListDrafts(context.Context) ([]store.DraftSummary, error)
	GetDraft(context.Context, string) (store.Draft, error)
	InsertDraft(context.Context, store.Draft) error
	SaveSnapshot(context.Context, builder.Snapshot, string) error
	ListComments(context.Context, string) ([]comments.Comment, error)
	InsertComment(context.Context, comments.Comment) error
	ResolveComment(context.Context, string, string, string, time.Time) (bool, error)
	LineageCounts(context.Context, string) ([]store.LineageCount, error)
	ListFieldRows(context.Context, string) ([]store.FieldRow, error)
	Ping(ctx context.Context) error
}

type gitService interface {
	CommitSnapshot(string, gitrepo.Content, string, string) (gitrepo.CommitInfo, error)
	GetHeadContent(string) (gitrepo.Content, gitrepo.CommitInfo, error)
	GetContentByHash(string, string) (gitrepo.Content, error)
	History(string, int) ([]gitrepo.CommitInfo, error)
}

type transcriptStore interface {
	builder.TranscriptSink
	LoadTranscript(context.Context, string) ([]agent.Message, error)
	AcquireLease(context.Context, string, string, time.Duration) error
	ReleaseLease(context.Context, string, string) error
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

func WithTemplates(src templates.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.templates = src
		}
	}
}

func WithTranscripts(rs *session.RedisStore) Option {
	return func(s *Service) {
		if rs != nil {
			s.transcripts = rs
		}
	}
}

func WithSearch(svc *search.Service) Option {
	return func(s *Service) {
		s.search = svc
	}
}

func WithExportObjects(objects export.ObjectStore) Option {
	return func(s *Service) {
		s.objects = objects
	}
}

func WithReplier(r agent.Replier) Option {
	return func(s *Service) {
		s.replier = r
	}
}

type Service struct {
	cfg         config.Config
	store       dataStore
	git         gitService
	templates   templates.Source
	transcripts transcriptStore
	search      *search.Service
	objects     export.ObjectStore
	exporter    *export.Service
	replier     agent.Replier
	opts        builder.Options
	nodeID      string
	leaseTTL    time.Duration

	mu       sync.Mutex
	sessions map[string]*openDraft
	closing  map[string]chan struct{}
}

type openDraft struct {
	session     *builder.Session
	templateID  string
	openedBy    auth.Reviewer
	openedAt    time.Time
	stopRenewal func()
}

func New(cfg config.Config, dataStore *store.PostgresStore, gitService *gitrepo.Service, options ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		opts:     builder.OptionsFromConfig(cfg.Draft),
		nodeID:   util.NewID("node"),
		leaseTTL: defaultLeaseTTL,
		sessions: make(map[string]*openDraft),
		closing:  make(map[string]chan struct{}),
	}
	if dataStore != nil {
		s.store = dataStore
	}
	if gitService != nil {
		s.git = gitService
	}
	for _, opt := range options {
		opt(s)
	}
	s.exporter = export.NewService(export.DataStoreFunc(s.LoadDraftData), s.objects)
	if cfg.PandocReferenceDoc != "" {
		s.exporter.UseReferenceDoc(cfg.PandocReferenceDoc)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type Check struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ReadinessReport struct {
	Ready        bool             `json:"ok"`
	Status       string           `json:"status"`
	Checks       map[string]Check `json:"checks"`
	OpenSessions int              `json:"openSessions"`
}

// Readiness checks the database and, when configured, the transcript store.
// Either failing marks the process not ready.
func (s *Service) Readiness(ctx context.Context) ReadinessReport {
	report := ReadinessReport{Ready: true, Status: "ready", Checks: map[string]Check{}}
	record := func(name string, err error) {
		if err != nil {
			report.Ready = false
			report.Status = "not_ready"
			report.Checks[name] = Check{Status: "error", Error: err.Error()}
			return
		}
		report.Checks[name] = Check{Status: "ok"}
	}

	record("database", s.Ping(ctx))
	switch t := s.transcripts.(type) {
	case nil:
		report.Checks["redis"] = Check{Status: "disabled"}
	case interface{ Ping(context.Context) error }:
		record("redis", t.Ping(ctx))
	default:
		report.Checks["redis"] = Check{Status: "ok"}
	}

	s.mu.Lock()
	report.OpenSessions = len(s.sessions)
	s.mu.Unlock()
	return report
}

// Login issues a reviewer token for name.
func (s *Service) Login(name, team string) (string, auth.Reviewer, error) {
	if strings.TrimSpace(name) == "" {
		return "", auth.Reviewer{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	token, err := auth.IssueReviewerToken([]byte(s.cfg.TokenSecret), name, team, tokenTTL)
	if err != nil {
		return "", auth.Reviewer{}, err
	}
	reviewer, err := auth.ParseReviewer([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return "", auth.Reviewer{}, err
	}
	return token, reviewer, nil
}

func (s *Service) ReviewerFromToken(token string) (auth.Reviewer, error) {
	return auth.ParseReviewer([]byte(s.cfg.TokenSecret), token)
}

func (s *Service) ListTemplates(ctx context.Context) ([]templates.Summary, error) {
	if s.templates == nil {
		return []templates.Summary{}, nil
	}
	return s.templates.List(ctx)
}

func (s *Service) ListDrafts(ctx context.Context) ([]store.DraftSummary, error) {
	return s.store.ListDrafts(ctx)
}

// CreateDraft starts a new draft from a template.
func (s *Service) CreateDraft(ctx context.Context, templateID, title string, reviewer auth.Reviewer) (store.DraftSummary, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return store.DraftSummary{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "templateId is required", nil)
	}
	if s.templates == nil {
		return store.DraftSummary{}, templates.ErrNotFound
	}
	doc, err := s.templates.Load(ctx, templateID)
	if err != nil {
		return store.DraftSummary{}, err
	}
	if title = strings.TrimSpace(title); title != "" {
		doc.Title = title
	}

	item := store.Draft{
		ID:         util.NewID("draft"),
		TemplateID: templateID,
		Title:      doc.Title,
		Document:   doc,
		CreatedBy:  reviewer.Name,
	}
	if err := s.store.InsertDraft(ctx, item); err != nil {
		return store.DraftSummary{}, err
	}
	if s.search != nil {
		s.search.IndexDocument(item.ID, templateID, doc)
	}
	logx.Info().Str("draft", item.ID).Str("template", templateID).Str("by", reviewer.Name).Msg("draft created")
	return store.DraftSummary{ID: item.ID, TemplateID: templateID, Title: item.Title, UpdatedAt: time.Now().UTC()}, nil
}

// OpenSession loads a draft with its comments and transcript and starts its
// autosave loop. Opening an already open draft returns its current state.
func (s *Service) OpenSession(ctx context.Context, draftID string, reviewer auth.Reviewer) (builder.State, error) {
	for {
		s.mu.Lock()
		open, ok := s.sessions[draftID]
		closing, busy := s.closing[draftID]
		s.mu.Unlock()
		if ok {
			return open.session.State(), nil
		}
		if !busy {
			break
		}
		select {
		case <-closing:
		case <-ctx.Done():
			return builder.State{}, ctx.Err()
		}
	}

	if s.transcripts != nil {
		if err := s.transcripts.AcquireLease(ctx, draftID, s.nodeID, s.leaseDuration()); err != nil {
			if errors.Is(err, session.ErrLeaseHeld) {
				return builder.State{}, domainError(http.StatusConflict, "SESSION_HELD", "Draft is open on another node", nil)
			}
			return builder.State{}, err
		}
	}

	sess, templateID, err := s.openBuilder(ctx, draftID, reviewer)
	if err != nil {
		s.releaseLease(draftID)
		return builder.State{}, err
	}

	s.mu.Lock()
	if existing, ok := s.sessions[draftID]; ok {
		s.mu.Unlock()
		sess.Close()
		return existing.session.State(), nil
	}
	s.sessions[draftID] = &openDraft{
		session:     sess,
		templateID:  templateID,
		openedBy:    reviewer,
		openedAt:    time.Now().UTC(),
		stopRenewal: s.renewLease(draftID),
	}
	s.mu.Unlock()

	return sess.State(), nil
}

func (s *Service) openBuilder(ctx context.Context, draftID string, reviewer auth.Reviewer) (*builder.Session, string, error) {
	item, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, "", err
	}
	existing, err := s.store.ListComments(ctx, draftID)
	if err != nil {
		return nil, "", err
	}

	var messages []agent.Message
	var sink builder.TranscriptSink
	if s.transcripts != nil {
		messages, err = s.transcripts.LoadTranscript(ctx, draftID)
		if err != nil {
			return nil, "", err
		}
		sink = s.transcripts
	}

	templateID := item.TemplateID
	saver := &store.DraftSaver{
		Writer:    s.store,
		Committer: s.git,
		Author:    reviewer.Name,
		OnSaved: func(_ context.Context, snap builder.Snapshot, commit gitrepo.CommitInfo) {
			if s.search != nil && !commit.Unchanged {
				s.search.IndexDocument(snap.DraftID, templateID, snap.Document)
			}
		},
	}

	sess, err := builder.Open(ctx, builder.Params{
		DraftID:          draftID,
		Document:         item.Document,
		Comments:         existing,
		Messages:         messages,
		Persister:        saver,
		CommentPersister: &indexedComments{store: s.store, search: s.search},
		Transcripts:      sink,
		Replier:          s.replier,
		Options:          s.opts,
	})
	if err != nil {
		return nil, "", domainError(http.StatusUnprocessableEntity, "INVALID_DRAFT", err.Error(), nil)
	}
	return sess, templateID, nil
}

// CloseSession flushes unsaved changes, stops the session and releases its
// lease. When the flush fails the session stays open and SAVE_FAILED is
// returned.
func (s *Service) CloseSession(ctx context.Context, draftID string) error {
	open, done, ok := s.beginClose(draftID)
	if !ok {
		return errSessionNotOpen
	}
	defer s.endClose(draftID, done)

	flushCtx, cancel := context.WithTimeout(ctx, closeSaveLimit)
	defer cancel()
	if err := open.session.Flush(flushCtx); err != nil {
		s.mu.Lock()
		s.sessions[draftID] = open
		s.mu.Unlock()
		logx.Warn().Err(err).Str("draft", draftID).Msg("final save before close failed, session kept open")
		return domainError(http.StatusBadGateway, "SAVE_FAILED", "Draft could not be saved before closing", map[string]any{"reason": err.Error()})
	}
	s.stopDraft(draftID, open)
	return nil
}

// Shutdown flushes and closes every open session.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for draftID := range s.sessions {
		ids = append(ids, draftID)
	}
	s.mu.Unlock()

	for _, draftID := range ids {
		open, done, ok := s.beginClose(draftID)
		if !ok {
			continue
		}
		flushCtx, cancel := context.WithTimeout(ctx, closeSaveLimit)
		if err := open.session.Flush(flushCtx); err != nil {
			logx.Error().Err(err).Str("draft", draftID).Msg("unsaved edits lost at shutdown")
		}
		cancel()
		s.stopDraft(draftID, open)
		s.endClose(draftID, done)
	}
	if s.search != nil {
		s.search.Wait()
	}
}

// beginClose takes the draft out of the registry. Opens of the same draft
// wait until endClose.
func (s *Service) beginClose(draftID string) (*openDraft, chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	open, ok := s.sessions[draftID]
	if !ok {
		return nil, nil, false
	}
	delete(s.sessions, draftID)
	if s.closing == nil {
		s.closing = make(map[string]chan struct{})
	}
	done := make(chan struct{})
	s.closing[draftID] = done
	return open, done, true
}

func (s *Service) endClose(draftID string, done chan struct{}) {
	s.mu.Lock()
	delete(s.closing, draftID)
	s.mu.Unlock()
	close(done)
}

func (s *Service) stopDraft(draftID string, open *openDraft) {
	open.session.Close()
	if open.stopRenewal != nil {
		open.stopRenewal()
	}
	s.releaseLease(draftID)
}

func (s *Service) leaseDuration() time.Duration {
	if s.leaseTTL > 0 {
		return s.leaseTTL
	}
	return defaultLeaseTTL
}

// renewLease extends the draft lease every third of its TTL while the draft
// is open. The returned func stops renewing and waits for the loop to exit.
func (s *Service) renewLease(draftID string) func() {
	if s.transcripts == nil {
		return func() {}
	}
	ttl := s.leaseDuration()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				renewCtx, cancelRenew := context.WithTimeout(ctx, 5*time.Second)
				err := s.transcripts.AcquireLease(renewCtx, draftID, s.nodeID, ttl)
				cancelRenew()
				switch {
				case errors.Is(err, session.ErrLeaseHeld):
					logx.Error().Str("draft", draftID).Str("node", s.nodeID).Msg("draft lease taken by another node")
				case err != nil && ctx.Err() == nil:
					logx.Warn().Err(err).Str("draft", draftID).Msg("lease renewal failed")
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *Service) releaseLease(draftID string) {
	if s.transcripts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.transcripts.ReleaseLease(ctx, draftID, s.nodeID); err != nil {
		logx.Warn().Err(err).Str("draft", draftID).Msg("release lease failed")
	}
}

func (s *Service) lookup(draftID string) (*openDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	open, ok := s.sessions[draftID]
	return open, ok
}

func (s *Service) session(draftID string) (*builder.Session, error) {
	open, ok := s.lookup(draftID)
	if !ok {
		return nil, errSessionNotOpen
	}
	return open.session, nil
}

func (s *Service) State(draftID string) (builder.State, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return builder.State{}, err
	}
	return sess.State(), nil
}

type NavigateInput struct {
	Direction string `json:"direction"`
	Index     *int   `json:"index"`
	FieldKey  string `json:"fieldKey"`
	Citation  string `json:"citation"`
}

func (s *Service) Navigate(draftID string, input NavigateInput) (builder.State, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return builder.State{}, err
	}

	var outcome draft.Outcome
	switch {
	case input.Index != nil:
		outcome = sess.JumpTo(*input.Index)
	case strings.TrimSpace(input.FieldKey) != "":
		outcome = sess.JumpToField(strings.TrimSpace(input.FieldKey))
	case strings.TrimSpace(input.Citation) != "":
		outcome = sess.FollowCitation(input.Citation)
	case input.Direction == "next":
		outcome = sess.Next()
	case input.Direction == "prev":
		outcome = sess.Prev()
	default:
		return builder.State{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "direction, index, fieldKey or citation is required", nil)
	}
	return s.outcomeState(sess, outcome)
}

type FieldInput struct {
	Value *string `json:"value"`
	YesNo *bool   `json:"yesNo"`
}

func (s *Service) SetField(draftID, key string, input FieldInput) (draft.Field, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return draft.Field{}, err
	}
	var outcome draft.Outcome
	switch {
	case input.YesNo != nil:
		outcome = sess.SetYesNo(key, *input.YesNo)
	case input.Value != nil:
		outcome = sess.SetValue(key, *input.Value)
	default:
		return draft.Field{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "value or yesNo is required", nil)
	}
	return s.outcomeField(sess, key, outcome)
}

func (s *Service) AddBullet(draftID, key, text string) (draft.Field, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return draft.Field{}, err
	}
	return s.outcomeField(sess, key, sess.AddBulletItem(key, text))
}

func (s *Service) UpdateBullet(draftID, key string, index int, text string) (draft.Field, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return draft.Field{}, err
	}
	return s.outcomeField(sess, key, sess.UpdateBulletItem(key, index, text))
}

func (s *Service) RemoveBullet(draftID, key string, index int) (draft.Field, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return draft.Field{}, err
	}
	return s.outcomeField(sess, key, sess.RemoveBulletItem(key, index))
}

func (s *Service) ToggleOption(draftID, key, option string) (draft.Field, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return draft.Field{}, err
	}
	return s.outcomeField(sess, key, sess.ToggleMultiselectOption(key, option))
}

func (s *Service) Comments(draftID, fieldKey string) ([]comments.Comment, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return nil, err
	}
	if fieldKey != "" {
		return sess.CommentsForField(fieldKey), nil
	}
	return sess.Comments(), nil
}

func (s *Service) AddComment(draftID, fieldKey, text string, reviewer auth.Reviewer) (comments.Comment, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return comments.Comment{}, err
	}
	comment, outcome := sess.AddComment(fieldKey, reviewer.Name, text)
	if err := outcomeError(outcome); err != nil {
		return comments.Comment{}, err
	}
	return comment, nil
}

func (s *Service) ResolveComment(draftID, commentID string, reviewer auth.Reviewer) (comments.Comment, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return comments.Comment{}, err
	}
	comment, outcome := sess.ResolveComment(commentID, reviewer.Name)
	if err := outcomeError(outcome); err != nil {
		return comments.Comment{}, err
	}
	return comment, nil
}

func (s *Service) AgentMessages(draftID string) ([]agent.Message, int, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return nil, 0, err
	}
	return sess.Messages(), sess.PendingReplies(), nil
}

func (s *Service) SubmitAgentMessage(draftID, text string, reviewer auth.Reviewer) (agent.Message, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return agent.Message{}, err
	}
	msg, outcome := sess.SubmitAgentMessage(reviewer.Name, text)
	if err := outcomeError(outcome); err != nil {
		return agent.Message{}, err
	}
	return msg, nil
}

// SetAgentPanel opens or closes the panel; nil toggles it.
func (s *Service) SetAgentPanel(draftID string, open *bool) (builder.AgentPanel, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return "", err
	}
	switch {
	case open == nil:
		return sess.ToggleAgentPanel(), nil
	case *open:
		return sess.OpenAgentPanel(), nil
	default:
		return sess.CloseAgentPanel(), nil
	}
}

func (s *Service) Save(ctx context.Context, draftID string) (builder.State, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return builder.State{}, err
	}
	if err := sess.Save(ctx); err != nil {
		if errors.Is(err, builder.ErrSaveInProgress) {
			return builder.State{}, domainError(http.StatusConflict, "SAVE_IN_PROGRESS", "A save is already in progress", nil)
		}
		return builder.State{}, domainError(http.StatusBadGateway, "SAVE_FAILED", "Save failed", map[string]any{"reason": err.Error()})
	}
	return sess.State(), nil
}

func (s *Service) History(draftID string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.git == nil {
		return []gitrepo.CommitInfo{}, nil
	}
	return s.git.History(draftID, limit)
}

// Compare lists field changes between a saved commit and the latest save.
func (s *Service) Compare(draftID, hash string) (map[string]any, error) {
	if s.git == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "History is not available", nil)
	}
	from, err := s.git.GetContentByHash(draftID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "COMMIT_NOT_FOUND", "Commit not found", nil)
	}
	head, info, err := s.git.GetHeadContent(draftID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"from":       hash,
		"to":         info.Hash,
		"hasChanges": gitrepo.HasChanges(from, head),
		"changes":    gitrepo.DiffFields(from, head),
	}, nil
}

// Lineage reports the provenance of the last saved field values.
func (s *Service) Lineage(ctx context.Context, draftID string) (map[string]any, error) {
	counts, err := s.store.LineageCounts(ctx, draftID)
	if err != nil {
		return nil, err
	}
	fields, err := s.store.ListFieldRows(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"counts": counts, "fields": fields}, nil
}

type ExportInput struct {
	Format          string
	IncludeComments bool
	IncludeResolved bool
	Archive         bool
}

func (s *Service) Export(ctx context.Context, draftID string, input ExportInput) (*export.Result, error) {
	format, err := export.ParseFormat(input.Format)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be pdf, docx or html", nil)
	}
	return s.exporter.Export(ctx, export.Request{
		DraftID:         draftID,
		Format:          format,
		IncludeComments: input.IncludeComments,
		IncludeResolved: input.IncludeResolved,
		Archive:         input.Archive,
	})
}

// LoadDraftData reads the live session when the draft is open and the
// stored draft otherwise.
func (s *Service) LoadDraftData(ctx context.Context, draftID string) (export.DraftData, error) {
	if open, ok := s.lookup(draftID); ok {
		snap := open.session.Snapshot()
		return export.DraftData{
			DraftID:   draftID,
			Title:     snap.Title,
			Document:  snap.Document,
			Comments:  open.session.Comments(),
			Revision:  snap.Revision,
			Author:    open.openedBy.Name,
			UpdatedAt: snap.TakenAt,
		}, nil
	}

	item, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return export.DraftData{}, err
	}
	list, err := s.store.ListComments(ctx, draftID)
	if err != nil {
		return export.DraftData{}, err
	}
	return export.DraftData{
		DraftID:   draftID,
		Title:     item.Title,
		Document:  item.Document,
		Comments:  list,
		Revision:  item.Revision,
		Author:    item.CreatedBy,
		UpdatedAt: item.UpdatedAt,
	}, nil
}

func (s *Service) Search(ctx context.Context, text, filterType, draftID string, limit, offset int) (search.Response, error) {
	if strings.TrimSpace(text) == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: strings.TrimSpace(text)}, nil
	}
	return s.search.Search(ctx, search.Query{
		Text:          text,
		FilterType:    search.ParseResultType(filterType),
		FilterDraftID: draftID,
		Limit:         limit,
		Offset:        offset,
	}), nil
}

func (s *Service) outcomeState(sess *builder.Session, outcome draft.Outcome) (builder.State, error) {
	if err := outcomeError(outcome); err != nil {
		return builder.State{}, err
	}
	return sess.State(), nil
}

func (s *Service) outcomeField(sess *builder.Session, key string, outcome draft.Outcome) (draft.Field, error) {
	if err := outcomeError(outcome); err != nil {
		return draft.Field{}, err
	}
	field, ok := sess.Field(key)
	if !ok {
		return draft.Field{}, outcomeError(draft.NoOpUnknownField)
	}
	return field, nil
}

// indexedComments persists comment changes and mirrors them into search.
// It runs on the session's write worker, so index updates keep store order.
type indexedComments struct {
	store  dataStore
	search *search.Service
}

func (c *indexedComments) InsertComment(ctx context.Context, comment comments.Comment) error {
	if err := c.store.InsertComment(ctx, comment); err != nil {
		return err
	}
	c.index(comment)
	return nil
}

func (c *indexedComments) ResolveComment(ctx context.Context, draftID, commentID, resolvedBy string, resolvedAt time.Time) (bool, error) {
	ok, err := c.store.ResolveComment(ctx, draftID, commentID, resolvedBy, resolvedAt)
	if err != nil {
		return false, fmt.Errorf("resolve comment %s: %w", commentID, err)
	}
	if !ok || c.search == nil {
		return ok, nil
	}
	list, err := c.store.ListComments(ctx, draftID)
	if err != nil {
		logx.Warn().Err(err).Str("comment", commentID).Msg("search: reload resolved comment")
		return ok, nil
	}
	for _, comment := range list {
		if comment.ID == commentID {
			c.index(comment)
			break
		}
	}
	return ok, nil
}

// index failures leave the store authoritative; the next reindex repairs them.
func (c *indexedComments) index(comment comments.Comment) {
	if c.search == nil {
		return
	}
	if err := c.search.IndexComment(comment); err != nil {
		logx.Warn().Err(err).Str("comment", comment.ID).Msg("search: index comment failed")
	}
}
