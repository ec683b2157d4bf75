package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/datasmith-ai/datasmith/internal/llm"
	"github.com/datasmith-ai/datasmith/internal/stats"
	"github.com/datasmith-ai/datasmith/internal/structured"
)

var codeSchema = llm.MustSchema(`{
	"type": "object",
	"properties": {
		"explanation": {"type": "string"},
		"bugs": {"type": "array", "items": {"type": "string"}},
		"time_complexity": {"type": "string"},
		"space_complexity": {"type": "string"}
	},
	"required": ["explanation", "time_complexity"]
}`)

type codeResult struct {
	Explanation     string   `json:"explanation"`
	Bugs            []string `json:"bugs"`
	TimeComplexity  string   `json:"time_complexity"`
	SpaceComplexity string   `json:"space_complexity"`
}

// CodeAnalysis handles both the explain and code intents: a structured
// "## Code Analysis" response, degrading to a plain "## Explanation" when
// the structured attempt fails.
type CodeAnalysis struct {
	llm llm.Client
}

func (h *CodeAnalysis) Run(ctx context.Context, st *stats.TokenStats, content string) string {
	out, err := fallbackChain(ctx,
		func(ctx context.Context) (string, error) { return h.structured(ctx, st, content) },
		func(ctx context.Context) (string, error) { return h.plain(ctx, st, content) },
	)
	if err != nil {
		return UserFacingError(err)
	}
	return out
}

func (h *CodeAnalysis) structured(ctx context.Context, st *stats.TokenStats, content string) (string, error) {
	system := `You are a code analysis expert. Analyze the given code for functionality, bugs, and complexity.
Return JSON: {"explanation": "...", "bugs": [...], "time_complexity": "O(...)", "space_complexity": "O(...)"}`

	text, err := CallLLM(ctx, h.llm, st, "code_analysis",
		[]llm.Message{llm.System(system), llm.User("Analyze:\n```\n" + content + "\n```")},
		codeSchema)
	if err != nil {
		return "", err
	}

	var r codeResult
	if err := structured.Unmarshal(text, &r); err != nil {
		return "", err
	}
	if r.Explanation == "" || r.TimeComplexity == "" {
		return "", fmt.Errorf("code analysis response missing required fields")
	}
	if r.SpaceComplexity == "" {
		r.SpaceComplexity = "N/A"
	}

	issues := "✅ No issues found"
	if len(r.Bugs) > 0 {
		var b strings.Builder
		for i, bug := range r.Bugs {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("⚠️ " + bug)
		}
		issues = b.String()
	}

	return fmt.Sprintf("## Code Analysis\n\n%s\n\n**Complexity:**\n- Time: %s\n- Space: %s\n\n**Issues:**\n%s",
		r.Explanation, r.TimeComplexity, r.SpaceComplexity, issues), nil
}

func (h *CodeAnalysis) plain(ctx context.Context, st *stats.TokenStats, content string) (string, error) {
	text, err := CallLLM(ctx, h.llm, st, "explain_fallback",
		[]llm.Message{
			llm.System("Explain the content clearly."),
			llm.User("Explain:\n" + Clip(content, FallbackPrefixLen)),
		}, nil)
	if err != nil {
		return "", err
	}
	return "## Explanation\n\n" + text, nil
}
