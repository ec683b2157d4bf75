package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/datasmith-ai/datasmith/internal/metrics"
	"github.com/datasmith-ai/datasmith/internal/reqctx"
)

// observeCall updates metrics and persists one usage row per transport call.
// Persistence is best effort; failures are logged but never affect the call.
func observeCall(ctx context.Context, rec UsageRecorder, op, model string, usage Usage, elapsed time.Duration, callErr error) {
	status := StatusSuccess
	errMsg := ""
	if callErr != nil {
		status = StatusError
		errMsg = callErr.Error()
	}

	metrics.LLMCalls.WithLabelValues(op, status).Inc()
	metrics.LLMLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	metrics.LLMTokens.WithLabelValues("input").Add(float64(usage.InputTokens))
	metrics.LLMTokens.WithLabelValues("output").Add(float64(usage.OutputTokens))

	if rec == nil {
		return
	}
	// The call context may already be expired (that is how timeouts get
	// here); the usage row should still land.
	err := rec.RecordUsage(context.WithoutCancel(ctx), UsageRecord{
		RequestID:        reqctx.RequestID(ctx),
		SessionID:        reqctx.SessionID(ctx),
		Operation:        op,
		Model:            model,
		PromptTokens:     usage.InputTokens,
		CompletionTokens: usage.OutputTokens,
		TotalTokens:      usage.InputTokens + usage.OutputTokens,
		LatencyMs:        elapsed.Milliseconds(),
		Status:           status,
		ErrorMessage:     errMsg,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to persist LLM usage", "error", err)
	}
}

// statusCode extracts an HTTP status code from vendor SDK errors.
func statusCode(err error) (int, bool) {
	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return oerr.StatusCode, true
	}
	var gerr genai.APIError
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	return 0, false
}
