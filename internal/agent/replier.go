package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/util"
)

// DocumentContext is the slice of draft state an agent sees.
type DocumentContext struct {
	DraftID       string
	Title         string
	ActiveSection string
	Progress      draft.DocumentProgress
	Issues        []draft.Issue
}

// Request asks a replier for the agent's answer to Trigger.
type Request struct {
	Trigger    Message
	Transcript []Message
	Document   DocumentContext
}

// Replier produces the next agent message.
type Replier interface {
	Reply(ctx context.Context, req Request) (Message, error)
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, req Request) (Message, error)

func (f ReplierFunc) Reply(ctx context.Context, req Request) (Message, error) {
	return f(ctx, req)
}

// DigestReplier answers with the outstanding required fields of the draft,
// citing each one. It needs no model and is used when none is configured.
type DigestReplier struct {
	Team     string
	MaxItems int
}

func (r DigestReplier) Reply(ctx context.Context, req Request) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	maxItems := r.MaxItems
	if maxItems <= 0 {
		maxItems = 5
	}
	team := r.Team
	if team == "" {
		team = "governance"
	}

	p := req.Document.Progress
	var b strings.Builder
	var citations []string
	if len(req.Document.Issues) == 0 {
		fmt.Fprintf(&b, "All required fields are filled. %d of %d fields complete (%d%%).", p.Filled, p.Total, p.Percent())
	} else {
		fmt.Fprintf(&b, "%d required field(s) still need input (%d of %d required filled):", len(req.Document.Issues), p.RequiredFilled, p.Required)
		for i, issue := range req.Document.Issues {
			if i == maxItems {
				fmt.Fprintf(&b, "\n- and %d more", len(req.Document.Issues)-maxItems)
				break
			}
			fmt.Fprintf(&b, "\n- %s (%s)", firstNonBlank(issue.Label, issue.Key), issue.SectionID)
			citations = append(citations, FieldCitation(issue.Key))
		}
	}

	return Message{
		ID:        util.NewID("msg"),
		Role:      RoleAgent,
		Text:      b.String(),
		Timestamp: time.Now().UTC(),
		AgentTeam: team,
		Citations: citations,
	}, nil
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
