// Package stats tracks per-session token usage, elapsed time and estimated
// cost for LLM calls.
package stats

import (
	"math"
	"sync"
	"time"
)

// ApproxTokens estimates the token count of text as one token per four
// characters. This is an intentionally cheap substitute for real
// tokenization, used when the transport does not report exact usage.
func ApproxTokens(text string) int {
	return len(text) / 4
}

// TokenStats accumulates token counters for a single session. Counters only
// ever grow; cost is derived from the counters and the model's pricing entry.
// Safe for concurrent use.
type TokenStats struct {
	mu           sync.Mutex
	inputTokens  uint64
	outputTokens uint64
	totalTime    float64 // seconds
	model        string
}

// New returns empty stats priced against the given model id.
func New(model string) *TokenStats {
	return &TokenStats{model: model}
}

// Model returns the model id the stats are priced against.
func (s *TokenStats) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Add accumulates one completed LLM call. Negative values are a caller bug
// and are not guarded against.
func (s *TokenStats) Add(inputTokens, outputTokens int, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputTokens += uint64(inputTokens)
	s.outputTokens += uint64(outputTokens)
	s.totalTime += elapsed.Seconds()
}

// EstimateCost derives the accumulated cost in USD from the counters and the
// model's pricing entry.
func (s *TokenStats) EstimateCost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimateCostLocked()
}

func (s *TokenStats) estimateCostLocked() float64 {
	r := ModelPricing(s.model)
	inputCost := float64(s.inputTokens) / 1_000_000 * r.Input
	outputCost := float64(s.outputTokens) / 1_000_000 * r.Output
	return inputCost + outputCost
}

// Snapshot is a point-in-time view of the counters, formatted the way the
// API returns it.
type Snapshot struct {
	InputTokens      uint64  `json:"input_tokens"`
	OutputTokens     uint64  `json:"output_tokens"`
	TotalTokens      uint64  `json:"total_tokens"`
	TokensPerSec     float64 `json:"tokens_per_sec"`
	TotalTimeSec     float64 `json:"total_time_sec"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Snapshot returns the current counters. TokensPerSec is 0 when no time has
// been recorded.
func (s *TokenStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.inputTokens + s.outputTokens
	var perSec float64
	if s.totalTime > 0 {
		perSec = float64(total) / s.totalTime
	}

	return Snapshot{
		InputTokens:      s.inputTokens,
		OutputTokens:     s.outputTokens,
		TotalTokens:      total,
		TokensPerSec:     round(perSec, 2),
		TotalTimeSec:     round(s.totalTime, 2),
		EstimatedCostUSD: round(s.estimateCostLocked(), 4),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
