package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"npa/draftbuilder/internal/config"
	"npa/draftbuilder/internal/logx"
	"npa/draftbuilder/internal/util"
)

// ChatModel is the part of an eino chat model the replier needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// EinoReplier asks a chat model for the agent reply.
type EinoReplier struct {
	Model ChatModel
	Team  string
	// MaxHistory caps how many transcript messages are sent with a request.
	MaxHistory int
}

const systemPrompt = `You are the governance agent helping a product team draft a New Product Approval (NPA) document.
Answer briefly and concretely. When you refer to a field of the draft, cite it inline as [field:<key>] using the keys listed below.

Draft: %s
Active section: %s
Progress: %d of %d fields filled, %d of %d required fields filled.
%s`

var citationPattern = regexp.MustCompile(`\[field:([A-Za-z0-9_.\-]+)\]`)

// NewGeminiReplier builds an EinoReplier backed by a Gemini chat model.
func NewGeminiReplier(ctx context.Context, cfg config.GeminiConfig) (*EinoReplier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	temperature := cfg.Temperature
	maxTokens := cfg.MaxTokens
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent chat model")
		return nil, fmt.Errorf("error creating agent chat model: %w", err)
	}
	return &EinoReplier{Model: chatModel, Team: "governance", MaxHistory: 20}, nil
}

func (r *EinoReplier) Reply(ctx context.Context, req Request) (Message, error) {
	input := r.buildInput(req)
	out, err := r.Model.Generate(ctx, input)
	if err != nil {
		return Message{}, fmt.Errorf("generate agent reply: %w", err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return Message{}, fmt.Errorf("generate agent reply: empty response")
	}

	team := r.Team
	if team == "" {
		team = "governance"
	}
	return Message{
		ID:        util.NewID("msg"),
		Role:      RoleAgent,
		Text:      strings.TrimSpace(out.Content),
		Timestamp: time.Now().UTC(),
		AgentTeam: team,
		Citations: extractCitations(out.Content),
	}, nil
}

func (r *EinoReplier) buildInput(req Request) []*schema.Message {
	doc := req.Document
	var issues strings.Builder
	if len(doc.Issues) > 0 {
		issues.WriteString("Missing required fields:")
		for _, issue := range doc.Issues {
			fmt.Fprintf(&issues, "\n- %s: %s (%s)", issue.Key, issue.Label, issue.SectionID)
		}
	}
	p := doc.Progress
	input := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(systemPrompt, doc.Title, doc.ActiveSection, p.Filled, p.Total, p.RequiredFilled, p.Required, issues.String())),
	}

	history := req.Transcript
	if r.MaxHistory > 0 && len(history) > r.MaxHistory {
		history = history[len(history)-r.MaxHistory:]
	}
	triggerSeen := false
	for _, m := range history {
		if m.ID == req.Trigger.ID {
			triggerSeen = true
		}
		input = append(input, toSchema(m))
	}
	if !triggerSeen && req.Trigger.Text != "" {
		input = append(input, toSchema(req.Trigger))
	}
	return input
}

func toSchema(m Message) *schema.Message {
	if m.Role == RoleAgent {
		return schema.AssistantMessage(m.Text, nil)
	}
	return schema.UserMessage(m.Text)
}

func extractCitations(text string) []string {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		citation := FieldCitation(match[1])
		if _, ok := seen[citation]; ok {
			continue
		}
		seen[citation] = struct{}{}
		out = append(out, citation)
	}
	return out
}
