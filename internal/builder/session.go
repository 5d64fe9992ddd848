package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"npa/draftbuilder/internal/agent"
	"npa/draftbuilder/internal/comments"
	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/logx"
)

var (
	ErrClosed           = errors.New("draft session closed")
	ErrSaveInProgress   = errors.New("save already in progress")
	ErrPersisterMissing = errors.New("persister is required")
)

// backgroundTimeout bounds each queued comment or transcript write.
const backgroundTimeout = 10 * time.Second

// flushAttempts caps the saves Flush runs while edits keep arriving.
const flushAttempts = 3

// Params are everything a session is initialised from.
type Params struct {
	DraftID          string
	Document         draft.Document
	Comments         []comments.Comment
	Messages         []agent.Message
	Persister        Persister
	CommentPersister comments.Persister
	Transcripts      TranscriptSink
	Replier          agent.Replier
	Options          Options
}

// Session is one open draft. All methods are safe to call from multiple
// goroutines; state changes are serialised on a single mutex and no method
// waits on an external collaborator except Save.
type Session struct {
	id string

	persister        Persister
	commentPersister comments.Persister
	transcripts      TranscriptSink
	opts             Options

	mu         sync.Mutex
	saveIdle   *sync.Cond
	doc        *draft.Document
	nav        *draft.Navigator
	comments   *comments.Store
	transcript *agent.Transcript
	status     AutoSaveStatus
	phase      Phase
	panel      AgentPanel
	inFlight   bool
	revision   uint64
	savedAt    time.Time
	saveErr    string
	closed     bool

	dispatcher *agent.Dispatcher
	writes     *writeQueue
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once

	// guarded by mu
	stopAutosave context.CancelFunc
	autosaveDone chan struct{}
}

// Open loads the canonical state and starts the autosave loop. The session
// outlives ctx; Close ends it.
func Open(ctx context.Context, p Params) (*Session, error) {
	if p.Persister == nil {
		return nil, ErrPersisterMissing
	}
	doc := p.Document.Clone()
	if doc.ID == "" {
		doc.ID = p.DraftID
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("open draft %s: %w", p.DraftID, err)
	}
	draftID := p.DraftID
	if draftID == "" {
		draftID = doc.ID
	}
	replier := p.Replier
	if replier == nil {
		replier = agent.DigestReplier{}
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		id:               draftID,
		persister:        p.Persister,
		commentPersister: p.CommentPersister,
		transcripts:      p.Transcripts,
		opts:             p.Options.withDefaults(),
		doc:              &doc,
		comments:         comments.NewStore(draftID, p.Comments),
		transcript:       agent.NewTranscript(p.Messages),
		status:           StatusSaved,
		phase:            PhaseEditing,
		panel:            PanelClosed,
		writes:           newWriteQueue(),
		ctx:              sessionCtx,
		cancel:           cancel,
	}
	s.saveIdle = sync.NewCond(&s.mu)
	s.nav = draft.NewNavigator(s.doc)
	s.dispatcher = agent.NewDispatcher(agent.DispatcherConfig{
		Replier: replier,
		Delay:   s.opts.AgentReplyDelay,
		Timeout: s.opts.AgentReplyTimeout,
		Request: s.agentRequest,
		Deliver: s.deliverReply,
		Failed: func(trigger agent.Message, err error) {
			logx.Warn().Err(err).Str("draft", draftID).Str("message", trigger.ID).Msg("agent reply dropped")
		},
	})

	s.wg.Add(1)
	go s.writeLoop()

	s.mu.Lock()
	s.startAutosaveLocked()
	s.mu.Unlock()

	logx.Info().Str("draft", draftID).Int("sections", len(doc.Sections)).Dur("autosave", s.opts.AutosaveInterval).Msg("draft session opened")
	return s, nil
}

// ID returns the draft id.
func (s *Session) ID() string {
	return s.id
}

// Close stops the autosave loop, cancels pending agent replies and waits for
// queued comment and transcript writes. It does not save; call Flush first.
// Close is idempotent; operations on a closed session are no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		s.dispatcher.Close()
		s.writes.close()
		s.wg.Wait()
		logx.Info().Str("draft", s.id).Msg("draft session closed")
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MarkUnsaved flips the autosave indicator to unsaved.
func (s *Session) MarkUnsaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.markUnsavedLocked()
}

func (s *Session) markUnsavedLocked() {
	s.revision++
	s.status = StatusUnsaved
}

// Status returns the autosave indicator.
func (s *Session) Status() AutoSaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Navigation

func (s *Session) Prev() draft.Outcome {
	return s.navigate(func(n *draft.Navigator) draft.Outcome { return n.Prev() })
}

func (s *Session) Next() draft.Outcome {
	return s.navigate(func(n *draft.Navigator) draft.Outcome { return n.Next() })
}

// JumpTo activates the section at index.
func (s *Session) JumpTo(index int) draft.Outcome {
	return s.navigate(func(n *draft.Navigator) draft.Outcome { return n.Select(index) })
}

// JumpToField activates the first section holding key. Unknown keys leave
// the active section unchanged.
func (s *Session) JumpToField(key string) draft.Outcome {
	return s.navigate(func(n *draft.Navigator) draft.Outcome { return n.JumpToField(key) })
}

// FollowCitation jumps to the field an agent citation points at.
func (s *Session) FollowCitation(citation string) draft.Outcome {
	return s.JumpToField(agent.FieldKeyFromCitation(citation))
}

// ActiveSection returns the active section index.
func (s *Session) ActiveSection() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Active()
}

func (s *Session) navigate(fn func(*draft.Navigator) draft.Outcome) draft.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return draft.NoOpClosed
	}
	return fn(s.nav)
}

// Field edits

func (s *Session) SetValue(key, text string) draft.Outcome {
	return s.edit(key, func(f *draft.Field) draft.Outcome { return draft.SetValue(f, text) })
}

func (s *Session) SetYesNo(key string, answer bool) draft.Outcome {
	return s.edit(key, func(f *draft.Field) draft.Outcome { return draft.SetYesNo(f, answer) })
}

func (s *Session) AddBulletItem(key, text string) draft.Outcome {
	return s.edit(key, func(f *draft.Field) draft.Outcome { return draft.AddBulletItem(f, text) })
}

func (s *Session) UpdateBulletItem(key string, index int, text string) draft.Outcome {
	return s.edit(key, func(f *draft.Field) draft.Outcome { return draft.UpdateBulletItem(f, index, text) })
}

func (s *Session) RemoveBulletItem(key string, index int) draft.Outcome {
	return s.edit(key, func(f *draft.Field) draft.Outcome { return draft.RemoveBulletItem(f, index) })
}

func (s *Session) ToggleMultiselectOption(key, option string) draft.Outcome {
	return s.edit(key, func(f *draft.Field) draft.Outcome { return draft.ToggleMultiselectOption(f, option) })
}

// edit applies one field mutation. Every applied mutation marks the
// session unsaved, even when the value did not change.
func (s *Session) edit(key string, fn func(*draft.Field) draft.Outcome) draft.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return draft.NoOpClosed
	}
	f, ok := s.doc.Field(key)
	if !ok {
		return draft.NoOpUnknownField
	}
	outcome := fn(f)
	if outcome.Applied() {
		s.markUnsavedLocked()
	}
	return outcome
}

// Field returns a copy of the field with key.
func (s *Session) Field(key string) (draft.Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.doc.Field(key)
	if !ok {
		return draft.Field{}, false
	}
	return f.Copy(), true
}

// Comments

// AddComment records a comment on a field of the draft.
func (s *Session) AddComment(fieldKey, author, text string) (comments.Comment, draft.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return comments.Comment{}, draft.NoOpClosed
	}
	if _, ok := s.doc.Field(fieldKey); !ok {
		return comments.Comment{}, draft.NoOpUnknownField
	}
	c, outcome := s.comments.Add(fieldKey, author, text)
	if outcome.Applied() && s.commentPersister != nil {
		s.enqueue("insert comment", func(ctx context.Context) error {
			return s.commentPersister.InsertComment(ctx, c)
		})
	}
	return c, outcome
}

// ResolveComment marks a comment resolved. Repeats are no-ops.
func (s *Session) ResolveComment(id, resolvedBy string) (comments.Comment, draft.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return comments.Comment{}, draft.NoOpClosed
	}
	c, outcome := s.comments.Resolve(id, resolvedBy)
	if outcome.Applied() && s.commentPersister != nil {
		s.enqueue("resolve comment", func(ctx context.Context) error {
			_, err := s.commentPersister.ResolveComment(ctx, s.id, c.ID, c.ResolvedBy, *c.ResolvedAt)
			return err
		})
	}
	return c, outcome
}

func (s *Session) CommentsForField(fieldKey string) []comments.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments.ForField(fieldKey)
}

func (s *Session) UnresolvedCountForField(fieldKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments.UnresolvedCountForField(fieldKey)
}

func (s *Session) Comments() []comments.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments.All()
}

// Progress

func (s *Session) DocumentProgress() draft.DocumentProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return draft.ProgressOfDocument(s.doc)
}

func (s *Session) Issues() []draft.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return draft.IssuesOf(s.doc)
}

func (s *Session) SectionProgress(index int) (draft.SectionProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.SectionProgress(index)
}

func (s *Session) BoundaryFlags() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.BoundaryFlags()
}

// enqueue hands a persistence call to the write worker. Failures are
// logged; the in-memory state stays authoritative.
func (s *Session) enqueue(op string, fn func(ctx context.Context) error) {
	if !s.writes.push(write{op: op, fn: fn}) {
		logx.Warn().Str("draft", s.id).Str("op", op).Msg("write dropped after close")
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		w, ok := s.writes.next()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), backgroundTimeout)
		if err := w.fn(ctx); err != nil {
			logx.Error().Err(err).Str("draft", s.id).Str("op", w.op).Msg("background persistence failed")
		}
		cancel()
	}
}
