package modules

import (
	"context"
	"fmt"

	"github.com/datasmith-ai/datasmith/internal/llm"
	"github.com/datasmith-ai/datasmith/internal/stats"
)

// Chat is the free-form conversational handler. No structured output
// contract, no fallback stage: one attempt, with extracted file content
// folded in as context when present.
type Chat struct {
	llm llm.Client
}

func (h *Chat) Run(ctx context.Context, st *stats.TokenStats, message, contextText string) string {
	user := message
	if contextText != "" {
		user = fmt.Sprintf("Context:\n%s\n\nUser: %s", Clip(contextText, ChatContextLen), message)
	}

	text, err := CallLLM(ctx, h.llm, st, "chat",
		[]llm.Message{
			llm.System("You are Datasmith AI, a helpful assistant."),
			llm.User(user),
		}, nil)
	if err != nil {
		return UserFacingError(err)
	}
	return text
}
