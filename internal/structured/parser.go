// Package structured extracts a JSON object from an LLM text response.
//
// Models asked to "return JSON" frequently wrap the object in prose or code
// fences. The parser tolerates the common deviations with a fixed cascade
// instead of grammar-aware recovery: strict parse, fenced block, then the
// outermost brace pair.
package structured

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports that no stage of the cascade produced valid JSON. It
// carries a prefix of the offending text for diagnostics.
type ParseError struct {
	Prefix string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no JSON object found in response starting %q", e.Prefix)
}

const errPrefixLen = 120

var fencePatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```"),
	regexp.MustCompile("(?s)```\\s*(.*?)\\s*```"),
}

// Parse extracts a JSON object from raw. Stages are tried in order and the
// first success wins.
func Parse(raw string) (map[string]any, error) {
	var out map[string]any
	if err := Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Unmarshal runs the same cascade as Parse but decodes into v.
func Unmarshal(raw string, v any) error {
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), v); err == nil {
		return nil
	}

	for _, pat := range fencePatterns {
		m := pat.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		if err := json.Unmarshal([]byte(m[1]), v); err == nil {
			return nil
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(raw[start:end+1]), v); err == nil {
			return nil
		}
	}

	prefix := raw
	if len(prefix) > errPrefixLen {
		prefix = prefix[:errPrefixLen]
	}
	return &ParseError{Prefix: prefix}
}
