package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/igwatch/internal/models"
)

// Action is one suggested follow-up for a project.
type Action struct {
	Project string `json:"project"`
	Action  string `json:"action"`
	Reason  string `json:"reason"`
}

// Summary is the LLM-written digest of a fleet run.
type Summary struct {
	Overview string   `json:"overview"`
	Actions  []Action `json:"actions"`
}

// Client wraps the Anthropic API for fleet summaries.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildSummaryPrompt constructs the system and user prompts for a fleet summary.
func buildSummaryPrompt(fleet models.FleetResult) (system string, user string) {
	system = `You review the publication health of a fleet of FHIR Implementation Guides. Return a JSON object with exactly two fields:

- "overview": 2-5 sentences describing the overall state of the fleet: how many guides are healthy, which are unreachable, and where tags and published versions disagree.
- "actions": an array of objects with "project", "action" and "reason" fields, one per concrete follow-up (publish a tagged version, tag a published version, clean up stale branches, investigate an unreachable repository).

Rules:
- Only reference projects and versions that appear in the input
- Order actions by impact, most important first
- Return an empty "actions" array when nothing needs attention
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Fleet run %s at %s, %d projects.\n\n", fleet.RunID, fleet.GeneratedAt.Format("2006-01-02"), len(fleet.Projects))
	for _, p := range fleet.Projects {
		fmt.Fprintf(&sb, "## %s (%s)\n", p.Name, p.Repo)
		if p.Degraded() {
			sb.WriteString("- unreachable: repository metadata could not be fetched\n\n")
			continue
		}
		fmt.Fprintf(&sb, "- default branch: %s\n", p.DefaultBranch)
		if p.LastDefaultCommitAt != nil {
			fmt.Fprintf(&sb, "- last commit on default: %s\n", p.LastDefaultCommitAt.Format("2006-01-02"))
		}
		var stale []string
		for _, b := range p.Branches {
			if b.IsStale {
				stale = append(stale, fmt.Sprintf("%s (%dd)", b.Name, b.DaysSinceCommit))
			}
		}
		if len(stale) > 0 {
			fmt.Fprintf(&sb, "- stale branches: %s\n", strings.Join(stale, ", "))
		}
		if v := versionList(p.Unpublished()); v != "" {
			fmt.Fprintf(&sb, "- tagged but unpublished: %s\n", v)
		}
		if v := versionList(p.Untagged()); v != "" {
			fmt.Fprintf(&sb, "- published without tag: %s\n", v)
		}
		fmt.Fprintf(&sb, "- versions tracked: %d\n\n", len(p.Versions))
	}
	user = sb.String()
	return
}

func versionList(vs []models.ReconciledVersion) string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.Version
	}
	return strings.Join(names, ", ")
}

// Summarize sends the fleet state to the LLM and returns its digest.
func (c *Client) Summarize(ctx context.Context, fleet models.FleetResult) (*Summary, error) {
	systemPrompt, userPrompt := buildSummaryPrompt(fleet)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}
	return parseSummary(text)
}

// parseSummary decodes a model response, tolerating markdown fencing.
func parseSummary(text string) (*Summary, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var s Summary
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	if s.Actions == nil {
		s.Actions = []Action{}
	}
	return &s, nil
}
