package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/datasmith-ai/datasmith/internal/llm"
	"github.com/datasmith-ai/datasmith/internal/stats"
	"github.com/datasmith-ai/datasmith/internal/structured"
)

var summarySchema = llm.MustSchema(`{
	"type": "object",
	"properties": {
		"one_line": {"type": "string"},
		"bullets": {"type": "array", "items": {"type": "string"}, "minItems": 3, "maxItems": 5},
		"five_sentence": {"type": "string"}
	},
	"required": ["one_line", "bullets", "five_sentence"]
}`)

type summaryResult struct {
	OneLine      string   `json:"one_line"`
	Bullets      []string `json:"bullets"`
	FiveSentence string   `json:"five_sentence"`
}

// Summarize produces the "## Summary" response: a TL;DR line, 3-5 key
// points and a five sentence detail paragraph.
type Summarize struct {
	llm llm.Client
}

func (h *Summarize) Run(ctx context.Context, st *stats.TokenStats, content string) string {
	out, err := fallbackChain(ctx,
		func(ctx context.Context) (string, error) { return h.structured(ctx, st, content) },
		func(ctx context.Context) (string, error) { return h.plain(ctx, st, content) },
	)
	if err != nil {
		return UserFacingError(err)
	}
	return out
}

func (h *Summarize) structured(ctx context.Context, st *stats.TokenStats, content string) (string, error) {
	system := `You are a summarization expert. Analyze the given content and provide a structured summary.
Return JSON: {"one_line": "...", "bullets": ["...", "...", "..."], "five_sentence": "..."}
The bullets array must contain 3 to 5 key points.`

	text, err := CallLLM(ctx, h.llm, st, "summarize",
		[]llm.Message{llm.System(system), llm.User("Summarize:\n" + content)},
		summarySchema)
	if err != nil {
		return "", err
	}

	var r summaryResult
	if err := structured.Unmarshal(text, &r); err != nil {
		return "", err
	}
	if r.OneLine == "" || len(r.Bullets) == 0 || r.FiveSentence == "" {
		return "", fmt.Errorf("summary response missing required fields")
	}

	var bullets strings.Builder
	for i, b := range r.Bullets {
		if i > 0 {
			bullets.WriteString("\n")
		}
		bullets.WriteString("• " + b)
	}

	return fmt.Sprintf("## Summary\n\n**TL;DR:** %s\n\n**Key Points:**\n%s\n\n**Details:**\n%s",
		r.OneLine, bullets.String(), r.FiveSentence), nil
}

func (h *Summarize) plain(ctx context.Context, st *stats.TokenStats, content string) (string, error) {
	text, err := CallLLM(ctx, h.llm, st, "summarize_fallback",
		[]llm.Message{
			llm.System("Summarize the content concisely."),
			llm.User("Summarize:\n" + Clip(content, FallbackPrefixLen)),
		}, nil)
	if err != nil {
		return "", err
	}
	return "## Summary\n\n" + text, nil
}
