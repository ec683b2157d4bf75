package stats

import (
	"sort"
	"strings"
)

// Rates are USD per one million tokens.
type Rates struct {
	Input  float64
	Output float64
}

// pricing maps model identifiers to per-million-token rates. Lookup is by
// exact match first, then by substring, so "models/gemini-1.5-pro-002"
// resolves to the "gemini-1.5-pro" entry. Unknown models fall back to the
// "default" entry.
var pricing = map[string]Rates{
	"gemini-2.0-flash-exp": {Input: 0.10, Output: 0.40},
	"gemini-1.5-flash":     {Input: 0.075, Output: 0.30},
	"gemini-1.5-pro":       {Input: 1.25, Output: 5.00},
	"gemini-3.0-flash":     {Input: 0.50, Output: 3.00},
	"gemini-3.0-pro":       {Input: 2.00, Output: 12.00},

	"default": {Input: 0.10, Output: 0.40},
}

// ModelPricing returns the rates for the given model id.
func ModelPricing(model string) Rates {
	if r, ok := pricing[model]; ok {
		return r
	}

	// Substring matches are checked in sorted key order so the result is
	// deterministic when multiple entries match.
	keys := make([]string, 0, len(pricing))
	for k := range pricing {
		if k == "default" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.Contains(model, k) {
			return pricing[k]
		}
	}
	return pricing["default"]
}
