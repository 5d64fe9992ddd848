package builder

import (
	"context"
	"strings"

	"npa/draftbuilder/internal/agent"
	"npa/draftbuilder/internal/draft"
)

// SubmitAgentMessage appends the user's message to the transcript right
// away and schedules the agent's reply. Replies are appended in the order
// their messages were submitted.
func (s *Session) SubmitAgentMessage(author, text string) (agent.Message, draft.Outcome) {
	text = strings.TrimSpace(text)
	if text == "" {
		return agent.Message{}, draft.NoOpEmptyText
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return agent.Message{}, draft.NoOpClosed
	}
	msg := agent.NewUserMessage(author, text)
	s.appendMessageLocked(msg)
	s.mu.Unlock()

	s.dispatcher.Schedule(msg)
	return msg, draft.Applied
}

// Messages returns the transcript.
func (s *Session) Messages() []agent.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Messages()
}

// PendingReplies is the number of agent replies still outstanding.
func (s *Session) PendingReplies() int {
	return s.dispatcher.Pending()
}

func (s *Session) OpenAgentPanel() AgentPanel {
	return s.setPanel(func(AgentPanel) AgentPanel { return PanelOpen })
}

func (s *Session) CloseAgentPanel() AgentPanel {
	return s.setPanel(func(AgentPanel) AgentPanel { return PanelClosed })
}

func (s *Session) ToggleAgentPanel() AgentPanel {
	return s.setPanel(func(p AgentPanel) AgentPanel {
		if p == PanelOpen {
			return PanelClosed
		}
		return PanelOpen
	})
}

func (s *Session) setPanel(next func(AgentPanel) AgentPanel) AgentPanel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.panel = next(s.panel)
	}
	return s.panel
}

func (s *Session) agentRequest(trigger agent.Message) agent.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := ""
	if i := s.nav.Active(); i >= 0 && i < len(s.doc.Sections) {
		active = s.doc.Sections[i].Label
	}
	return agent.Request{
		Trigger:    trigger,
		Transcript: s.transcript.Messages(),
		Document: agent.DocumentContext{
			DraftID:       s.id,
			Title:         s.doc.Title,
			ActiveSection: active,
			Progress:      draft.ProgressOfDocument(s.doc),
			Issues:        draft.IssuesOf(s.doc),
		},
	}
}

func (s *Session) deliverReply(reply agent.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.appendMessageLocked(reply)
}

func (s *Session) appendMessageLocked(msg agent.Message) {
	s.transcript.Append(msg)
	if s.transcripts == nil {
		return
	}
	s.enqueue("append transcript", func(ctx context.Context) error {
		return s.transcripts.AppendMessage(ctx, s.id, msg)
	})
}
