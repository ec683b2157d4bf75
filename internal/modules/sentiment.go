package modules

import (
	"context"
	"fmt"

	"github.com/datasmith-ai/datasmith/internal/llm"
	"github.com/datasmith-ai/datasmith/internal/stats"
	"github.com/datasmith-ai/datasmith/internal/structured"
)

var sentimentSchema = llm.MustSchema(`{
	"type": "object",
	"properties": {
		"label": {"type": "string", "enum": ["Positive", "Negative", "Neutral"]},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"justification": {"type": "string"}
	},
	"required": ["label", "confidence", "justification"]
}`)

type sentimentResult struct {
	Label         string   `json:"label"`
	Confidence    *float64 `json:"confidence"`
	Justification string   `json:"justification"`
}

var sentimentEmoji = map[string]string{
	"Positive": "😊",
	"Negative": "😔",
	"Neutral":  "😐",
}

// Sentiment classifies the emotional tone of content. It gets the same
// one-shot schema-free fallback as the other handlers.
type Sentiment struct {
	llm llm.Client
}

func (h *Sentiment) Run(ctx context.Context, st *stats.TokenStats, content string) string {
	out, err := fallbackChain(ctx,
		func(ctx context.Context) (string, error) { return h.structured(ctx, st, content) },
		func(ctx context.Context) (string, error) { return h.plain(ctx, st, content) },
	)
	if err != nil {
		return UserFacingError(err)
	}
	return out
}

func (h *Sentiment) structured(ctx context.Context, st *stats.TokenStats, content string) (string, error) {
	system := `Analyze sentiment. Return JSON: {"label": "Positive"|"Negative"|"Neutral", "confidence": 0.0-1.0, "justification": "..."}`

	text, err := CallLLM(ctx, h.llm, st, "sentiment",
		[]llm.Message{llm.System(system), llm.User("Analyze:\n" + content)},
		sentimentSchema)
	if err != nil {
		return "", err
	}

	var r sentimentResult
	if err := structured.Unmarshal(text, &r); err != nil {
		return "", err
	}
	if r.Label == "" || r.Confidence == nil || r.Justification == "" {
		return "", fmt.Errorf("sentiment response missing required fields")
	}

	emoji, ok := sentimentEmoji[r.Label]
	if !ok {
		emoji = "🤔"
	}

	return fmt.Sprintf("## Sentiment\n\n**Result:** %s %s\n**Confidence:** %.0f%%\n**Reason:** %s",
		emoji, r.Label, *r.Confidence*100, r.Justification), nil
}

func (h *Sentiment) plain(ctx context.Context, st *stats.TokenStats, content string) (string, error) {
	text, err := CallLLM(ctx, h.llm, st, "sentiment_fallback",
		[]llm.Message{
			llm.System("Describe the sentiment of the content plainly."),
			llm.User("Analyze:\n" + Clip(content, FallbackPrefixLen)),
		}, nil)
	if err != nil {
		return "", err
	}
	return "## Sentiment\n\n" + text, nil
}
