// Package comments keeps field-scoped review comments for a draft session.
// Comments are never deleted; resolving is one-way.
package comments

import (
	"context"
	"strings"
	"time"

	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/util"
)

// Comment is a reviewer annotation attached to one field.
type Comment struct {
	ID         string     `json:"id"`
	DraftID    string     `json:"draftId,omitempty"`
	FieldKey   string     `json:"fieldKey"`
	Author     string     `json:"author"`
	Text       string     `json:"text"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Persister records comment changes outside the session.
type Persister interface {
	InsertComment(ctx context.Context, comment Comment) error
	ResolveComment(ctx context.Context, draftID, commentID, resolvedBy string, resolvedAt time.Time) (bool, error)
}

// Store is the in-memory, insertion-ordered comment list of one draft.
// It is not safe for concurrent use; the owning session serialises access.
type Store struct {
	draftID  string
	comments []Comment
	index    map[string]int
	now      func() time.Time
}

// NewStore seeds a store with previously persisted comments.
func NewStore(draftID string, existing []Comment) *Store {
	s := &Store{
		draftID:  draftID,
		comments: make([]Comment, 0, len(existing)),
		index:    make(map[string]int, len(existing)),
		now:      time.Now,
	}
	for _, c := range existing {
		if _, dup := s.index[c.ID]; dup || c.ID == "" {
			continue
		}
		s.index[c.ID] = len(s.comments)
		s.comments = append(s.comments, c)
	}
	return s
}

// Add records a new unresolved comment. Blank text is ignored.
func (s *Store) Add(fieldKey, author, text string) (Comment, draft.Outcome) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, draft.NoOpEmptyText
	}
	c := Comment{
		ID:        util.NewID("cmt"),
		DraftID:   s.draftID,
		FieldKey:  fieldKey,
		Author:    author,
		Text:      text,
		Timestamp: s.now().UTC(),
	}
	s.index[c.ID] = len(s.comments)
	s.comments = append(s.comments, c)
	return c, draft.Applied
}

// Resolve marks a comment resolved. Unknown and already resolved ids are no-ops.
func (s *Store) Resolve(id, resolvedBy string) (Comment, draft.Outcome) {
	i, ok := s.index[id]
	if !ok {
		return Comment{}, draft.NoOpUnknownComment
	}
	c := &s.comments[i]
	if c.Resolved {
		return *c, draft.NoOpAlreadyResolved
	}
	at := s.now().UTC()
	c.Resolved = true
	c.ResolvedBy = resolvedBy
	c.ResolvedAt = &at
	return *c, draft.Applied
}

// Get returns the comment with id.
func (s *Store) Get(id string) (Comment, bool) {
	i, ok := s.index[id]
	if !ok {
		return Comment{}, false
	}
	return s.comments[i], true
}

// ForField returns the comments on fieldKey in insertion order.
func (s *Store) ForField(fieldKey string) []Comment {
	out := make([]Comment, 0)
	for _, c := range s.comments {
		if c.FieldKey == fieldKey {
			out = append(out, c)
		}
	}
	return out
}

// UnresolvedCountForField counts open comments on fieldKey.
func (s *Store) UnresolvedCountForField(fieldKey string) int {
	n := 0
	for _, c := range s.comments {
		if c.FieldKey == fieldKey && !c.Resolved {
			n++
		}
	}
	return n
}

// UnresolvedCounts maps each field key with open comments to its count.
func (s *Store) UnresolvedCounts() map[string]int {
	out := make(map[string]int)
	for _, c := range s.comments {
		if !c.Resolved {
			out[c.FieldKey]++
		}
	}
	return out
}

// All returns a copy of every comment in insertion order.
func (s *Store) All() []Comment {
	out := make([]Comment, len(s.comments))
	copy(out, s.comments)
	return out
}

// Len returns the number of comments.
func (s *Store) Len() int {
	return len(s.comments)
}
