package llm

import (
	"encoding/json"
	"strings"
)

type contentKind int

const (
	kindText contentKind = iota
	kindParts
	kindObject
)

// Part is one piece of a multi-part response.
type Part struct {
	Kind string // "text" or a vendor-specific tag
	Text string
}

// Content is the response payload as a tagged variant. Gemini responses come
// back as part lists, OpenAI-compatible backends return a single string, and
// JSON-mode replies are sometimes already an object.
type Content struct {
	kind   contentKind
	text   string
	parts  []Part
	object map[string]any
}

func PlainText(s string) Content {
	return Content{kind: kindText, text: s}
}

func MultiPart(parts []Part) Content {
	return Content{kind: kindParts, parts: parts}
}

func SingleObject(obj map[string]any) Content {
	return Content{kind: kindObject, object: obj}
}

// Normalize flattens the payload to a single string. This is the only place
// the variants are collapsed; callers never branch on the payload shape.
func (c Content) Normalize() string {
	switch c.kind {
	case kindParts:
		var b strings.Builder
		for _, p := range c.parts {
			b.WriteString(p.Text)
		}
		return b.String()
	case kindObject:
		if t, ok := c.object["text"].(string); ok {
			return t
		}
		raw, err := json.Marshal(c.object)
		if err != nil {
			return ""
		}
		return string(raw)
	default:
		return c.text
	}
}
