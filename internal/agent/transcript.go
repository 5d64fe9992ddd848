// Package agent holds the agent conversation of a draft session: the
// append-only transcript, the deferred reply dispatcher and the repliers
// that produce agent messages.
package agent

import (
	"strings"
	"time"

	"npa/draftbuilder/internal/util"
)

// Role identifies who wrote a transcript message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	AgentTeam string    `json:"agentTeam,omitempty"`
	Citations []string  `json:"citations,omitempty"`
}

// NewUserMessage builds a user message stamped now.
func NewUserMessage(author, text string) Message {
	return Message{
		ID:        util.NewID("msg"),
		Role:      RoleUser,
		Author:    author,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// Transcript is the ordered, append-only conversation log. The owning
// session serialises access.
type Transcript struct {
	messages []Message
}

// NewTranscript seeds a transcript with previously stored messages.
func NewTranscript(existing []Message) *Transcript {
	t := &Transcript{messages: make([]Message, 0, len(existing))}
	t.messages = append(t.messages, existing...)
	return t
}

// Append adds m to the end of the log.
func (t *Transcript) Append(m Message) {
	t.messages = append(t.messages, m)
}

// Messages returns a copy of the log.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// FieldCitationPrefix marks citations that point at a draft field.
const FieldCitationPrefix = "field:"

// FieldKeyFromCitation extracts the field key a citation points at. Bare
// citations are returned as-is and resolved by the caller; a stale or
// unknown key simply matches no field.
func FieldKeyFromCitation(citation string) string {
	citation = strings.TrimSpace(citation)
	if strings.HasPrefix(citation, FieldCitationPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(citation, FieldCitationPrefix))
	}
	return citation
}

// FieldCitation builds the citation string for a field key.
func FieldCitation(key string) string {
	return FieldCitationPrefix + key
}
