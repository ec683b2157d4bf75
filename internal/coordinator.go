// Package internal wires extraction, routing and per-session accounting
// into the single entry point the HTTP layer calls.
package internal

import (
	"context"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/datasmith-ai/datasmith/internal/extract"
	"github.com/datasmith-ai/datasmith/internal/modules"
	"github.com/datasmith-ai/datasmith/internal/reqctx"
	"github.com/datasmith-ai/datasmith/internal/router"
	"github.com/datasmith-ai/datasmith/internal/session"
	"github.com/datasmith-ai/datasmith/internal/stats"
)

// ProcessResult is the answer to one analyze request.
type ProcessResult struct {
	Response              string         `json:"response"`
	RequiresClarification bool           `json:"requires_clarification"`
	TaskPerformed         string         `json:"task_performed,omitempty"`
	Stats                 stats.Snapshot `json:"stats"`
}

// Coordinator owns the full lifecycle of a request: extract, route, run,
// account. It is safe for concurrent use.
type Coordinator struct {
	sessions  *session.Store
	router    *router.Router
	extractor *extract.Service
	model     string
}

func NewCoordinator(sessions *session.Store, r *router.Router, extractor *extract.Service, model string) *Coordinator {
	return &Coordinator{sessions: sessions, router: r, extractor: extractor, model: model}
}

// Process handles one request. fileContent and filename are both empty for
// text-only requests. Errors never escape: every failure mode maps to a
// user-facing response with the session's accumulated stats attached.
func (c *Coordinator) Process(ctx context.Context, sessionID, message string, fileContent []byte, filename string) (res ProcessResult) {
	ctx = reqctx.WithSessionID(ctx, sessionID)
	st := c.sessions.GetOrCreate(sessionID, c.model)

	// Catch-all boundary. A panic anywhere below becomes a generic apology
	// rather than a dropped request.
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic while processing request", "session_id", sessionID, "panic", r)
			sentry.CurrentHub().Recover(r)
			res = ProcessResult{
				Response: modules.MsgGeneral,
				Stats:    st.Snapshot(),
			}
		}
	}()

	message = strings.TrimSpace(message)
	if message == "" && len(fileContent) == 0 {
		return ProcessResult{
			Response: "Please provide a message or upload a file.",
			Stats:    st.Snapshot(),
		}
	}

	var content string
	hasFile := len(fileContent) > 0

	switch {
	case hasFile:
		er := c.extractor.File(ctx, fileContent, filename)
		if er.Err != "" {
			return ProcessResult{Response: "Error: " + er.Err, Stats: st.Snapshot()}
		}
		content = er.Text
	case extract.DetectYouTubeURL(message) != "":
		er := c.extractor.YouTube(ctx, message)
		if er.Err != "" {
			return ProcessResult{Response: "Error: " + er.Err, Stats: st.Snapshot()}
		}
		content = er.Text
	}

	return c.run(ctx, st, message, content, hasFile)
}

// ProcessExtracted handles a request whose content was already extracted,
// e.g. the multi-file upload path where the HTTP layer concatenates
// extractions before handing them over.
func (c *Coordinator) ProcessExtracted(ctx context.Context, sessionID, message, extractedText string) (res ProcessResult) {
	ctx = reqctx.WithSessionID(ctx, sessionID)
	st := c.sessions.GetOrCreate(sessionID, c.model)

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic while processing request", "session_id", sessionID, "panic", r)
			sentry.CurrentHub().Recover(r)
			res = ProcessResult{Response: modules.MsgGeneral, Stats: st.Snapshot()}
		}
	}()

	message = strings.TrimSpace(message)
	if message == "" && extractedText == "" {
		return ProcessResult{
			Response: "Please provide a message or upload a file.",
			Stats:    st.Snapshot(),
		}
	}

	return c.run(ctx, st, message, extractedText, extractedText != "")
}

func (c *Coordinator) run(ctx context.Context, st *stats.TokenStats, message, content string, hasFile bool) ProcessResult {
	content = modules.Truncate(content, modules.MaxContentLength)

	out := c.router.Route(ctx, st, message, content, hasFile)
	return ProcessResult{
		Response:              out.Response,
		RequiresClarification: out.State == router.StateClarify,
		TaskPerformed:         string(out.Task),
		Stats:                 st.Snapshot(),
	}
}

// GetStats returns the current usage snapshot for a session, creating the
// session if it does not exist yet.
func (c *Coordinator) GetStats(sessionID string) stats.Snapshot {
	return c.sessions.GetOrCreate(sessionID, c.model).Snapshot()
}

// ResetSession clears a session's accumulated usage. Returns false when the
// session was never seen.
func (c *Coordinator) ResetSession(sessionID string) bool {
	return c.sessions.Reset(sessionID)
}

// Sessions lists known session ids, sorted.
func (c *Coordinator) Sessions() []string {
	return c.sessions.IDs()
}
