// Package builder is the draft builder session: one in-memory document with
// its comments and agent conversation, an autosave loop bound to the
// session lifetime and the operations the presentation layer drives.
package builder

import (
	"context"
	"time"

	"npa/draftbuilder/internal/agent"
	"npa/draftbuilder/internal/config"
	"npa/draftbuilder/internal/draft"
)

// Phase is the coarse session state.
type Phase string

const (
	PhaseEditing Phase = "editing"
	PhaseSaving  Phase = "saving"
)

// AutoSaveStatus is the persistence freshness indicator.
type AutoSaveStatus string

const (
	StatusSaved   AutoSaveStatus = "saved"
	StatusSaving  AutoSaveStatus = "saving"
	StatusUnsaved AutoSaveStatus = "unsaved"
)

// AgentPanel is the visibility of the agent side panel.
type AgentPanel string

const (
	PanelOpen   AgentPanel = "open"
	PanelClosed AgentPanel = "closed"
)

// FieldSnapshot is the persisted state of one field.
type FieldSnapshot struct {
	Key         string          `json:"key"`
	SectionID   string          `json:"sectionId"`
	Type        draft.FieldType `json:"type"`
	Value       string          `json:"value"`
	YesNoValue  bool            `json:"yesNoValue,omitempty"`
	BulletItems []string        `json:"bulletItems,omitempty"`
	Lineage     draft.Lineage   `json:"lineage"`
	Strategy    draft.Strategy  `json:"strategy,omitempty"`
	Confidence  *float64        `json:"confidence,omitempty"`
}

// Snapshot is what a save hands to the persister.
type Snapshot struct {
	DraftID  string          `json:"draftId"`
	Title    string          `json:"title"`
	Revision uint64          `json:"revision"`
	TakenAt  time.Time       `json:"takenAt"`
	Fields   []FieldSnapshot `json:"fields"`
	Document draft.Document  `json:"document"`
}

// Persister stores a snapshot. It is called on every autosave tick and on
// explicit saves.
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, snap Snapshot) error

func (f PersisterFunc) Save(ctx context.Context, snap Snapshot) error {
	return f(ctx, snap)
}

// TranscriptSink keeps the agent transcript outside the session.
type TranscriptSink interface {
	AppendMessage(ctx context.Context, draftID string, msg agent.Message) error
}

// Options tunes the session timers.
type Options struct {
	AutosaveInterval  time.Duration
	SaveTimeout       time.Duration
	AgentReplyDelay   time.Duration
	AgentReplyTimeout time.Duration
}

// DefaultOptions are the documented defaults.
func DefaultOptions() Options {
	return Options{
		AutosaveInterval:  30 * time.Second,
		SaveTimeout:       10 * time.Second,
		AgentReplyDelay:   1500 * time.Millisecond,
		AgentReplyTimeout: 45 * time.Second,
	}
}

// OptionsFromConfig maps the draft config block onto Options.
func OptionsFromConfig(cfg config.DraftConfig) Options {
	return Options{
		AutosaveInterval:  cfg.AutosaveInterval,
		SaveTimeout:       cfg.SaveTimeout,
		AgentReplyDelay:   cfg.AgentReplyDelay,
		AgentReplyTimeout: cfg.AgentReplyTimeout,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = def.AutosaveInterval
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = def.SaveTimeout
	}
	if o.AgentReplyDelay < 0 {
		o.AgentReplyDelay = def.AgentReplyDelay
	}
	if o.AgentReplyTimeout <= 0 {
		o.AgentReplyTimeout = def.AgentReplyTimeout
	}
	return o
}
