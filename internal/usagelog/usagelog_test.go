package usagelog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasmith-ai/datasmith/internal/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordUsage(ctx, llm.UsageRecord{
		RequestID:        "req-1",
		SessionID:        "sess-1",
		Operation:        "summarize",
		Model:            "gemini-2.0-flash-exp",
		PromptTokens:     100,
		CompletionTokens: 40,
		TotalTokens:      140,
		LatencyMs:        1200,
		Status:           llm.StatusSuccess,
	}))
	require.NoError(t, s.RecordUsage(ctx, llm.UsageRecord{
		SessionID:    "sess-2",
		Operation:    "classify_intent",
		Model:        "gemini-2.0-flash-exp",
		Status:       llm.StatusError,
		ErrorMessage: "generating response: timeout",
	}))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	bySession, err := s.List(ctx, Filter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, "summarize", bySession[0].Operation)
	assert.Equal(t, 140, bySession[0].TotalTokens)
	assert.Equal(t, llm.StatusSuccess, bySession[0].Status)

	failed, err := s.List(ctx, Filter{Operation: "classify_intent"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "generating response: timeout", failed[0].ErrorMessage)
}

func TestListSinceAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordUsage(ctx, llm.UsageRecord{
			Operation: "chat",
			Model:     "default",
			Status:    llm.StatusSuccess,
		}))
	}

	limited, err := s.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	future, err := s.List(ctx, Filter{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)
}
