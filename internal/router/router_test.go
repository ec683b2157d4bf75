package router

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/qri-io/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasmith-ai/datasmith/internal/llm"
	"github.com/datasmith-ai/datasmith/internal/modules"
	"github.com/datasmith-ai/datasmith/internal/stats"
)

type fakeCall struct {
	Op       string
	Messages []llm.Message
}

type fakeResponse struct {
	content string
	err     error
}

type fakeClient struct {
	responses []fakeResponse
	calls     []fakeCall
}

func (f *fakeClient) Config() llm.Config { return llm.Config{Model: "test-model"} }

func (f *fakeClient) CompleteChat(_ context.Context, op string, msgs []llm.Message, _ *jsonschema.Schema) (llm.Result, error) {
	f.calls = append(f.calls, fakeCall{Op: op, Messages: msgs})
	if len(f.responses) == 0 {
		return llm.Result{}, errors.New("no scripted response")
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	if next.err != nil {
		return llm.Result{}, next.err
	}
	return llm.Result{
		Content: llm.PlainText(next.content),
		Usage:   llm.Usage{InputTokens: 10, OutputTokens: 5, Reported: true},
		Elapsed: 10 * time.Millisecond,
	}, nil
}

func (f *fakeClient) DescribeImage(context.Context, string, string, string, []byte) (llm.Result, error) {
	return llm.Result{}, errors.New("not implemented")
}

func newTestRouter(responses ...fakeResponse) (*Router, *fakeClient) {
	client := &fakeClient{responses: responses}
	return New(client, modules.NewHandlers(client), 0), client
}

func intentJSON(intent string, confidence float64) string {
	return fmt.Sprintf(`{"intent": %q, "confidence": %g}`, intent, confidence)
}

func TestCommandBypassesClassification(t *testing.T) {
	// A scripted classification answer of "chat" must be ignored: the
	// explicit command wins, and the only LLM call is the summarizer's.
	r, client := newTestRouter(
		fakeResponse{content: `{"one_line": "Condensed.", "bullets": ["a", "b", "c"], "five_sentence": "Details here."}`},
	)
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "/summarize please condense this", "", false)

	assert.Equal(t, StateDispatched, out.State)
	assert.Equal(t, modules.TaskSummarize, out.Task)
	assert.Contains(t, out.Response, "**TL;DR:** Condensed.")

	require.Len(t, client.calls, 1)
	assert.Equal(t, "summarize", client.calls[0].Op)
	assert.Contains(t, client.calls[0].Messages[1].Content, "please condense this")
}

func TestCommandPrefixOrder(t *testing.T) {
	task, remainder, ok := parseCommand("/code_analysis def f(): pass")
	require.True(t, ok)
	assert.Equal(t, modules.TaskCode, task)
	assert.Equal(t, "def f(): pass", remainder)

	task, remainder, ok = parseCommand("/CODE x = 1")
	require.True(t, ok)
	assert.Equal(t, modules.TaskCode, task)
	assert.Equal(t, "x = 1", remainder)

	task, _, ok = parseCommand("/tldr the article")
	require.True(t, ok)
	assert.Equal(t, modules.TaskSummarize, task)

	_, _, ok = parseCommand("summarize this for me")
	assert.False(t, ok)
}

func TestCommandWithEmptyBody(t *testing.T) {
	r, client := newTestRouter()
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "/code_analysis", "", false)
	assert.Equal(t, StateDispatched, out.State)
	assert.Equal(t, "Please provide code to analyze after the `/code_analysis` command.", out.Response)

	out = r.Route(context.Background(), st, "/summarize", "", false)
	assert.Equal(t, "Please provide text to summarize after the `/summarize` command.", out.Response)

	assert.Empty(t, client.calls, "empty commands must not reach the LLM")
}

func TestCommandUsesFileContentWhenBodyEmpty(t *testing.T) {
	r, client := newTestRouter(
		fakeResponse{content: `{"one_line": "Doc summary.", "bullets": ["a", "b", "c"], "five_sentence": "d"}`},
	)
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "/summarize", "file body text", true)
	assert.Equal(t, StateDispatched, out.State)
	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0].Messages[1].Content, "file body text")
	_ = out
}

func TestFileWithoutMessageShowsMenu(t *testing.T) {
	r, client := newTestRouter()
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "   ", "extracted text", true)

	assert.Equal(t, StateClarify, out.State)
	assert.Equal(t, FileMenu, out.Response)
	assert.Empty(t, client.calls)
}

func TestClassifiedIntentDispatch(t *testing.T) {
	cases := []struct {
		name      string
		intent    string
		wantState State
		wantTask  modules.Task
		wantOp    string
	}{
		{"summarize", "summarize", StateDispatched, modules.TaskSummarize, "summarize"},
		{"explain", "explain", StateDispatched, modules.TaskCode, "code_analysis"},
		{"sentiment", "sentiment", StateDispatched, "", "sentiment"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, client := newTestRouter(
				fakeResponse{content: intentJSON(tc.intent, 0.95)},
				fakeResponse{err: errors.New("structured stage down")},
				fakeResponse{content: "plain fallback text"},
			)
			st := &stats.TokenStats{}

			out := r.Route(context.Background(), st, "tell me about this", "", false)

			assert.Equal(t, tc.wantState, out.State)
			assert.Equal(t, tc.wantTask, out.Task)
			require.NotEmpty(t, client.calls)
			assert.Equal(t, "classify_intent", client.calls[0].Op)
			assert.Equal(t, tc.wantOp, client.calls[1].Op)
		})
	}
}

func TestConfidenceExactlyAtThresholdAccepted(t *testing.T) {
	r, _ := newTestRouter(
		fakeResponse{content: intentJSON("summarize", 0.7)},
		fakeResponse{content: `{"one_line": "s", "bullets": ["a", "b", "c"], "five_sentence": "d"}`},
	)
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "condense this text please", "", false)
	assert.Equal(t, StateDispatched, out.State)
	assert.Equal(t, modules.TaskSummarize, out.Task)
}

func TestLowConfidenceClarifies(t *testing.T) {
	r, client := newTestRouter(
		fakeResponse{content: intentJSON("summarize", 0.4)},
	)
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "hmm do something with this", "", false)

	assert.Equal(t, StateClarify, out.State)
	assert.Equal(t, ClarifyMenu, out.Response)
	assert.Len(t, client.calls, 1, "clarify must not run a handler")
}

func TestClassificationFailureFallsBackToChat(t *testing.T) {
	r, client := newTestRouter(
		fakeResponse{err: errors.New("model unavailable")},
		fakeResponse{content: "Hi! How can I help?"},
	)
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "hello there", "", false)

	assert.Equal(t, StateDirectChat, out.State)
	assert.Equal(t, modules.Task(""), out.Task)
	assert.Equal(t, "Hi! How can I help?", out.Response)
	require.Len(t, client.calls, 2)
	assert.Equal(t, "chat", client.calls[1].Op)
}

func TestMalformedClassificationFallsBackToChat(t *testing.T) {
	r, _ := newTestRouter(
		fakeResponse{content: "I think the user wants a summary"},
		fakeResponse{content: "chat reply"},
	)
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "hello", "", false)
	assert.Equal(t, StateDirectChat, out.State)
	assert.Equal(t, "chat reply", out.Response)
}

func TestUnknownIntentDefaultsToChat(t *testing.T) {
	r, _ := newTestRouter(
		fakeResponse{content: intentJSON("translate", 0.99)},
		fakeResponse{content: "chat reply"},
	)
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "translate this", "", false)
	assert.Equal(t, StateDirectChat, out.State)
}

func TestClassificationClipsContent(t *testing.T) {
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}

	r, client := newTestRouter(
		fakeResponse{content: intentJSON("clarify", 0.9)},
	)
	st := &stats.TokenStats{}

	out := r.Route(context.Background(), st, "what now", string(long), false)
	assert.Equal(t, StateClarify, out.State)

	require.Len(t, client.calls, 1)
	user := client.calls[0].Messages[1].Content
	assert.Less(t, len(user), 700, "classification prompt must clip content to a prefix")
}
