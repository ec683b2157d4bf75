package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotTotals(t *testing.T) {
	s := New("gemini-2.0-flash-exp")
	s.Add(100, 40, 2*time.Second)
	s.Add(50, 10, time.Second)

	snap := s.Snapshot()
	assert.Equal(t, uint64(150), snap.InputTokens)
	assert.Equal(t, uint64(50), snap.OutputTokens)
	assert.Equal(t, snap.InputTokens+snap.OutputTokens, snap.TotalTokens)
	assert.InDelta(t, 3.0, snap.TotalTimeSec, 0.001)
}

func TestTokensPerSecZeroTime(t *testing.T) {
	s := New("gemini-2.0-flash-exp")
	s.Add(100, 100, 0)

	snap := s.Snapshot()
	assert.Equal(t, 0.0, snap.TokensPerSec)
}

func TestEstimateCostMonotonic(t *testing.T) {
	s := New("gemini-1.5-pro")

	prev := s.EstimateCost()
	for i := 0; i < 5; i++ {
		s.Add(1000, 500, time.Second)
		cost := s.EstimateCost()
		assert.GreaterOrEqual(t, cost, prev)
		prev = cost
	}
}

func TestUnknownModelUsesDefaultPricing(t *testing.T) {
	known := New("default")
	unknown := New("some-model-nobody-heard-of")

	known.Add(2_000_000, 1_000_000, time.Second)
	unknown.Add(2_000_000, 1_000_000, time.Second)

	assert.Equal(t, known.EstimateCost(), unknown.EstimateCost())
}

func TestModelPricingSubstringMatch(t *testing.T) {
	tests := []struct {
		model string
		want  Rates
	}{
		{"gemini-1.5-pro", Rates{Input: 1.25, Output: 5.00}},
		{"models/gemini-1.5-pro-002", Rates{Input: 1.25, Output: 5.00}},
		{"models/gemini-2.0-flash-exp", Rates{Input: 0.10, Output: 0.40}},
		{"qwen2.5:7b", Rates{Input: 0.10, Output: 0.40}},
		{"", Rates{Input: 0.10, Output: 0.40}},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, ModelPricing(tt.model))
		})
	}
}

func TestApproxTokens(t *testing.T) {
	require.Equal(t, 0, ApproxTokens(""))
	require.Equal(t, 1, ApproxTokens("abcd"))
	require.Equal(t, 25, ApproxTokens(string(make([]byte, 100))))
}

func TestSnapshotRounding(t *testing.T) {
	s := New("default")
	s.Add(100, 0, 3*time.Second)

	snap := s.Snapshot()
	// 100 tokens over 3s rounds to 33.33.
	assert.Equal(t, 33.33, snap.TokensPerSec)
}
