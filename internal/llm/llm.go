// Package llm is the transport layer for chat completions. It hides which
// vendor backs the model: callers send role/content messages, optionally with
// a JSON schema the output should conform to, and get text plus usage back.
//
// Schema conformance is best effort. A supplied schema switches the transport
// into JSON mode and validates the response, but validation failure is not a
// transport error: the content is returned as-is and callers recover with the
// structured parser.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/qri-io/jsonschema"
)

type Config struct {
	// Provider selects the transport: "openai" (any OpenAI-compatible
	// endpoint, including local Ollama) or "gemini".
	Provider string `default:"openai"`

	APIKey string `envconfig:"API_KEY"`
	URL    string `default:"http://localhost:11434/v1/"`
	Model  string `default:"qwen2.5:7b"`

	Temperature float64 `default:"0.3"`
	TimeoutSec  float64 `split_words:"true" default:"30"`
	MaxRetries  int     `split_words:"true" default:"3"`
}

func DefaultConfig() Config {
	c := Config{}
	if err := envconfig.Process("", &c); err != nil {
		slog.Error("error processing environment variables", "error", err)
		os.Exit(1)
	}
	return c
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutSec * float64(time.Second))
}

// Message is one exchange unit sent to the model.
type Message struct {
	Role    string // "system" or "user"
	Content string
}

func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

// Usage reports token counts for one call. Reported is false when the
// backend did not include usage and the caller should approximate.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Reported     bool
}

// Result is a completed chat call.
type Result struct {
	Content Content
	Usage   Usage
	Elapsed time.Duration
}

// Client is the LLM capability the rest of the system consumes. The op
// argument labels the call for metrics and the usage log; it never reaches
// the model.
type Client interface {
	Config() Config

	CompleteChat(ctx context.Context, op string, msgs []Message, schema *jsonschema.Schema) (Result, error)
	DescribeImage(ctx context.Context, op string, instruction string, mimeType string, data []byte) (Result, error)
}

// UsageRecord is one LLM call as persisted to the usage log.
type UsageRecord struct {
	RequestID        string
	SessionID        string
	Operation        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
	Status           string
	ErrorMessage     string
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// UsageRecorder persists call records. Implementations must be best effort:
// a failed write is logged by the transport, never surfaced.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

// New builds a client for the configured provider. The recorder may be nil.
func New(ctx context.Context, cfg Config, rec UsageRecorder) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return newOpenAI(ctx, cfg, rec)
	case "gemini":
		return newGemini(ctx, cfg, rec)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// ErrorKind classifies a transport failure into the buckets the user-facing
// fallback messages distinguish.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindRateLimited
	KindTimeout
)

// Classify inspects a transport error and assigns it a kind. Unknown errors
// are generic.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindGeneric
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if code, ok := statusCode(err); ok {
		switch code {
		case 429:
			return KindRateLimited
		case 408, 504:
			return KindTimeout
		}
	}

	// Vendor SDKs are inconsistent about error types, so fall back to the
	// message text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate"), strings.Contains(msg, "quota"), strings.Contains(msg, "429"):
		return KindRateLimited
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return KindTimeout
	default:
		return KindGeneric
	}
}

// validateSchema checks content against schema and logs a debug line on
// mismatch. Parser-level recovery downstream makes this advisory only.
func validateSchema(ctx context.Context, schema *jsonschema.Schema, content string) {
	if schema == nil {
		return
	}
	keyErrs, err := schema.ValidateBytes(ctx, []byte(content))
	if err != nil || len(keyErrs) > 0 {
		slog.DebugContext(ctx, "response failed schema validation", "key_errors", len(keyErrs), "error", err)
	}
}

// MustSchema parses a JSON schema document, panicking on malformed input.
// Schemas are compile-time constants, so a bad one is a programming error.
func MustSchema(doc string) *jsonschema.Schema {
	s := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(doc), s); err != nil {
		panic(fmt.Sprintf("invalid schema: %v", err))
	}
	return s
}
