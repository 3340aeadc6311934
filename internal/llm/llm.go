package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Suggestion holds the model's classification of a raw issue report.
type Suggestion struct {
	Severity string `json:"severity"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// Client wraps the Anthropic API for issue classification assistance.
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

// buildSuggestPrompt constructs the system and user prompts for classifying a
// raw tester report.
func buildSuggestPrompt(title, description string) (system string, user string) {
	system = `You classify tester-submitted issue reports for an education product. Given an issue's title and description, return a JSON object with exactly three fields:

- "severity": one of "S1" (critical, blocks core flows or corrupts data), "S2" (major, user-visible breakage with a workaround), "S3" (moderate), "S4" (low, cosmetic)
- "category": one of "auth_account_access", "ux_navigation", "assessment_scoring", "ai_tutor_output", "billing_subscription", "content_typo", "cosmetic_visual", "performance", "unknown"
- "summary": a one-sentence restatement of the problem, suitable for a triage list

Rules:
- Anything touching login, scoring correctness, tutoring answers, or billing is at least S2
- Use "unknown" for the category only when nothing in the report fits
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Issue title: ")
	sb.WriteString(title)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// Suggest sends a raw report to the LLM and returns a severity/category
// suggestion. The result is advisory; callers decide whether to apply it.
func (c *Client) Suggest(ctx context.Context, title, description string) (*Suggestion, error) {
	systemPrompt, userPrompt := buildSuggestPrompt(title, description)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 1024)
	if err != nil {
		return nil, err
	}

	var suggestion Suggestion
	if err := json.Unmarshal([]byte(text), &suggestion); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return &suggestion, nil
}

// buildNotePrompt constructs the system and user prompts for drafting a triage
// annotation.
func buildNotePrompt(title, description, severity, category string) (system string, user string) {
	system = `You draft short triage annotations for an issue tracker. Given an issue's title, description, severity, and category, return a JSON object with one field:

- "note": 2-4 sentences an operator could attach to the issue: likely cause area, what to verify when reproducing, and what a fix probably touches

Rules:
- Return valid JSON only, no markdown fencing or explanation
- Write in plain declarative prose, no bullet lists
- Do not restate the severity or category`

	var sb strings.Builder
	sb.WriteString("Issue title: ")
	sb.WriteString(title)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nSeverity: %s\nCategory: %s\n", severity, category)
	user = sb.String()
	return
}

// DraftNote asks the LLM for a triage annotation draft for an issue.
func (c *Client) DraftNote(ctx context.Context, title, description, severity, category string) (string, error) {
	systemPrompt, userPrompt := buildNotePrompt(title, description, severity, category)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 1024)
	if err != nil {
		return "", err
	}

	var draft struct {
		Note string `json:"note"`
	}
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		return "", fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return draft.Note, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return stripFencing(text), nil
}

// stripFencing removes markdown code fencing if the model added it anyway.
func stripFencing(text string) string {
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
	return text
}
