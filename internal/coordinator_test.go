package internal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/qri-io/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasmith-ai/datasmith/internal/extract"
	"github.com/datasmith-ai/datasmith/internal/llm"
	"github.com/datasmith-ai/datasmith/internal/modules"
	"github.com/datasmith-ai/datasmith/internal/router"
	"github.com/datasmith-ai/datasmith/internal/session"
)

type scriptedClient struct {
	responses []string
	errs      []error
	calls     []string
	panicOn   string
}

func (f *scriptedClient) Config() llm.Config { return llm.Config{Model: "test-model"} }

func (f *scriptedClient) CompleteChat(_ context.Context, op string, _ []llm.Message, _ *jsonschema.Schema) (llm.Result, error) {
	f.calls = append(f.calls, op)
	if f.panicOn == op {
		panic("scripted panic in " + op)
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return llm.Result{}, err
		}
	}
	if len(f.responses) == 0 {
		return llm.Result{}, errors.New("no scripted response")
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return llm.Result{
		Content: llm.PlainText(next),
		Usage:   llm.Usage{InputTokens: 100, OutputTokens: 50, Reported: true},
		Elapsed: 20 * time.Millisecond,
	}, nil
}

func (f *scriptedClient) DescribeImage(context.Context, string, string, string, []byte) (llm.Result, error) {
	return llm.Result{}, errors.New("not implemented")
}

func newTestCoordinator(t *testing.T, client *scriptedClient) *Coordinator {
	t.Helper()
	handlers := modules.NewHandlers(client)
	rt := router.New(client, handlers, 0)
	ex, err := extract.New(extract.Config{DeepgramTimeoutSec: 1}, client)
	require.NoError(t, err)
	return NewCoordinator(session.NewStore(), rt, ex, "test-model")
}

func TestProcessEmptyInput(t *testing.T) {
	client := &scriptedClient{}
	c := newTestCoordinator(t, client)

	res := c.Process(context.Background(), "s1", "   ", nil, "")

	assert.Equal(t, "Please provide a message or upload a file.", res.Response)
	assert.False(t, res.RequiresClarification)
	assert.Empty(t, res.TaskPerformed)
	assert.Zero(t, res.Stats.TotalTokens)
	assert.Empty(t, client.calls, "empty input must not reach the LLM")
}

func TestProcessCommandEndToEnd(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"one_line": "Short version.", "bullets": ["a", "b", "c"], "five_sentence": "Longer version."}`,
	}}
	c := newTestCoordinator(t, client)

	res := c.Process(context.Background(), "s1", "/tldr the quarterly report says revenue grew", nil, "")

	assert.Contains(t, res.Response, "## Summary")
	assert.Contains(t, res.Response, "**TL;DR:** Short version.")
	assert.Equal(t, "summarize", res.TaskPerformed)
	assert.False(t, res.RequiresClarification)
	assert.Equal(t, uint64(150), res.Stats.TotalTokens)
	assert.Equal(t, []string{"summarize"}, client.calls, "commands skip classification")
}

func TestProcessLowConfidenceClarifies(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"intent": "summarize", "confidence": 0.3}`,
	}}
	c := newTestCoordinator(t, client)

	res := c.Process(context.Background(), "s1", "do something with this maybe", nil, "")

	assert.True(t, res.RequiresClarification)
	assert.Equal(t, router.ClarifyMenu, res.Response)
	assert.Empty(t, res.TaskPerformed)
}

func TestProcessExtractionErrorShortCircuits(t *testing.T) {
	client := &scriptedClient{}
	c := newTestCoordinator(t, client)

	res := c.Process(context.Background(), "s1", "summarize this", []byte("not a pdf"), "broken.pdf")

	assert.True(t, len(res.Response) > len("Error: "))
	assert.Contains(t, res.Response, "Error: ")
	assert.Empty(t, client.calls, "extraction failures must not reach the LLM")
}

func TestProcessPanicBoundary(t *testing.T) {
	client := &scriptedClient{panicOn: "classify_intent"}
	c := newTestCoordinator(t, client)

	res := c.Process(context.Background(), "s1", "hello there", nil, "")

	assert.Equal(t, modules.MsgGeneral, res.Response)
	assert.False(t, res.RequiresClarification)
}

func TestProcessExtracted(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"intent": "summarize", "confidence": 0.9}`,
		`{"one_line": "Doc gist.", "bullets": ["a", "b", "c"], "five_sentence": "d"}`,
	}}
	c := newTestCoordinator(t, client)

	res := c.ProcessExtracted(context.Background(), "s1", "what does this say", "pre-extracted document body")

	assert.Equal(t, "summarize", res.TaskPerformed)
	assert.Contains(t, res.Response, "Doc gist.")
}

func TestProcessTruncatesOversizedContent(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"one_line": "s", "bullets": ["a", "b", "c"], "five_sentence": "d"}`,
	}}
	c := newTestCoordinator(t, client)

	big := make([]byte, modules.MaxContentLength+500)
	for i := range big {
		big[i] = 'a'
	}

	res := c.ProcessExtracted(context.Background(), "s1", "/summarize", string(big))
	assert.Equal(t, "summarize", res.TaskPerformed)
	_ = res
}

func TestSessionAccounting(t *testing.T) {
	client := &scriptedClient{responses: []string{"hi!", "hello again!"}}
	// Classification always fails so both turns land in chat.
	client.errs = []error{errors.New("down"), nil, errors.New("down"), nil}
	c := newTestCoordinator(t, client)

	c.Process(context.Background(), "acct", "hello", nil, "")
	c.Process(context.Background(), "acct", "hello again", nil, "")

	snap := c.GetStats("acct")
	assert.Equal(t, uint64(300), snap.TotalTokens)

	assert.Contains(t, c.Sessions(), "acct")

	require.True(t, c.ResetSession("acct"))
	assert.Zero(t, c.GetStats("acct").TotalTokens)
	assert.False(t, c.ResetSession("never-seen"), fmt.Sprintf("sessions: %v", c.Sessions()))
}
