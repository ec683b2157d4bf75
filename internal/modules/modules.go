// Package modules contains the task handlers behind the intent router. Each
// handler owns one prompt, one expected output shape and one markdown
// renderer, and converts every failure into a user-visible response string:
// errors never cross a handler boundary.
package modules

import (
	"context"
	"log/slog"

	"github.com/qri-io/jsonschema"

	"github.com/datasmith-ai/datasmith/internal/llm"
	"github.com/datasmith-ai/datasmith/internal/stats"
)

// Task identifies which handler produced a response.
type Task string

const (
	TaskSummarize Task = "summarize"
	TaskCode      Task = "code"
	TaskSentiment Task = "sentiment"
	TaskChat      Task = "chat"
)

// Content caps, in characters. The main body ceiling is enforced by the
// coordinator; the short prefixes bound the latency and cost of secondary
// prompts.
const (
	MaxContentLength  = 50000
	ClassifyPrefixLen = 500
	ChatContextLen    = 1000
	FallbackPrefixLen = 2000
)

// TruncationMarker is appended whenever the main body ceiling cuts content.
const TruncationMarker = "\n\n[Content truncated...]"

// Canned user-facing fallback messages. Raw transport errors are never shown
// to users.
const (
	MsgRateLimited = "⚠️ Rate limit exceeded. Please wait a moment and try again."
	MsgTimedOut    = "⏱️ Request timed out. Please try with a shorter message."
	MsgGeneral     = "Something went wrong. Please try again."
)

// UserFacingError maps a transport failure to its canned message.
func UserFacingError(err error) string {
	switch llm.Classify(err) {
	case llm.KindRateLimited:
		return MsgRateLimited
	case llm.KindTimeout:
		return MsgTimedOut
	default:
		return MsgGeneral
	}
}

// Clip returns at most n characters of s, without a marker.
func Clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Truncate caps s at the main body ceiling, appending the visible marker
// when content was cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + TruncationMarker
}

// Handlers bundles the task handlers for the router.
type Handlers struct {
	Summarize *Summarize
	Code      *CodeAnalysis
	Sentiment *Sentiment
	Chat      *Chat
}

func NewHandlers(client llm.Client) *Handlers {
	return &Handlers{
		Summarize: &Summarize{llm: client},
		Code:      &CodeAnalysis{llm: client},
		Sentiment: &Sentiment{llm: client},
		Chat:      &Chat{llm: client},
	}
}

// CallLLM runs one chat completion and attributes its usage to st. When the
// backend does not report usage, tokens are approximated from character
// counts.
func CallLLM(ctx context.Context, client llm.Client, st *stats.TokenStats, op string, msgs []llm.Message, schema *jsonschema.Schema) (string, error) {
	res, err := client.CompleteChat(ctx, op, msgs, schema)
	if err != nil {
		return "", err
	}

	text := res.Content.Normalize()
	in, out := res.Usage.InputTokens, res.Usage.OutputTokens
	if !res.Usage.Reported {
		var promptChars int
		for _, m := range msgs {
			promptChars += len(m.Content)
		}
		in = promptChars / 4
		out = stats.ApproxTokens(text)
	}
	st.Add(in, out, res.Elapsed)

	slog.DebugContext(ctx, "llm call completed",
		"op", op, "input_tokens", in, "output_tokens", out, "elapsed", res.Elapsed)
	return text, nil
}

// fallbackChain tries stages in order and returns the first success. If all
// stages fail, the last error is carried out. This is the whole retry
// policy: one structured attempt, one schema-free fallback, nothing
// unbounded.
func fallbackChain(ctx context.Context, stages ...func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for _, stage := range stages {
		out, err := stage(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return "", lastErr
}
