package builder

import (
	"time"

	"npa/draftbuilder/internal/agent"
	"npa/draftbuilder/internal/comments"
	"npa/draftbuilder/internal/draft"
)

// SectionView is a section with its computed progress.
type SectionView struct {
	draft.Section
	Progress         draft.SectionProgress `json:"progress"`
	Percent          int                   `json:"percent"`
	AppendixBoundary bool                  `json:"appendixBoundary"`
}

// State is the read model of a session.
type State struct {
	DraftID          string                 `json:"draftId"`
	Title            string                 `json:"title"`
	Phase            Phase                  `json:"phase"`
	AutoSave         AutoSaveStatus         `json:"autoSave"`
	AgentPanel       AgentPanel             `json:"agentPanel"`
	ActiveSection    int                    `json:"activeSection"`
	Sections         []SectionView          `json:"sections"`
	Progress         draft.DocumentProgress `json:"progress"`
	ProgressPercent  int                    `json:"progressPercent"`
	Issues           []draft.Issue          `json:"issues"`
	Comments         []comments.Comment     `json:"comments"`
	UnresolvedCounts map[string]int         `json:"unresolvedCounts"`
	Messages         []agent.Message        `json:"messages"`
	PendingReplies   int                    `json:"pendingReplies"`
	Revision         uint64                 `json:"revision"`
	LastSavedAt      *time.Time             `json:"lastSavedAt,omitempty"`
	LastSaveError    string                 `json:"lastSaveError,omitempty"`
	Closed           bool                   `json:"closed"`
}

// State returns a consistent copy of everything the presentation layer reads.
func (s *Session) State() State {
	pending := s.dispatcher.Pending()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc.Clone()
	flags := s.nav.BoundaryFlags()
	views := make([]SectionView, len(doc.Sections))
	for i := range doc.Sections {
		p := draft.ProgressOf(&doc.Sections[i])
		views[i] = SectionView{
			Section:          doc.Sections[i],
			Progress:         p,
			Percent:          p.Percent(),
			AppendixBoundary: flags[i],
		}
	}
	progress := draft.ProgressOfDocument(s.doc)
	st := State{
		DraftID:          s.id,
		Title:            doc.Title,
		Phase:            s.phase,
		AutoSave:         s.status,
		AgentPanel:       s.panel,
		ActiveSection:    s.nav.Active(),
		Sections:         views,
		Progress:         progress,
		ProgressPercent:  progress.Percent(),
		Issues:           draft.IssuesOf(s.doc),
		Comments:         s.comments.All(),
		UnresolvedCounts: s.comments.UnresolvedCounts(),
		Messages:         s.transcript.Messages(),
		PendingReplies:   pending,
		Revision:         s.revision,
		LastSaveError:    s.saveErr,
		Closed:           s.closed,
	}
	if !s.savedAt.IsZero() {
		at := s.savedAt
		st.LastSavedAt = &at
	}
	return st
}
