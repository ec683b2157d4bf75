// Package extract turns uploaded files, YouTube links and raw text into
// plain text the task handlers can work with. Extraction never returns a Go
// error to callers: failures are carried in Result.Err so the coordinator
// can surface them verbatim.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/datasmith-ai/datasmith/internal/llm"
)

// InputType labels where extracted text came from.
type InputType string

const (
	InputText    InputType = "text"
	InputPDF     InputType = "pdf"
	InputImage   InputType = "image"
	InputAudio   InputType = "audio"
	InputYouTube InputType = "youtube"
)

// Result is one completed extraction. Err is a user-facing message, not an
// internal error chain.
type Result struct {
	InputType InputType      `json:"input_type"`
	Text      string         `json:"extracted_text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Err       string         `json:"error,omitempty"`
}

// extensionKinds is the whole registry. New extractors register here, not
// through init-time side effects.
var extensionKinds = map[string]InputType{
	"pdf":  InputPDF,
	"jpg":  InputImage,
	"jpeg": InputImage,
	"png":  InputImage,
	"gif":  InputImage,
	"webp": InputImage,
	"bmp":  InputImage,
	"wav":  InputAudio,
	"mp3":  InputAudio,
	"m4a":  InputAudio,
	"ogg":  InputAudio,
	"flac": InputAudio,
	"txt":  InputText,
	"md":   InputText,
	"csv":  InputText,
	"json": InputText,
	"log":  InputText,
}

// KindForFilename maps a filename to the extractor that will handle it.
// Unknown extensions fall back to plain text decoding.
func KindForFilename(filename string) InputType {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if kind, ok := extensionKinds[ext]; ok {
		return kind
	}
	return InputText
}

// Config holds extraction settings read from the environment.
type Config struct {
	DeepgramAPIKey     string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramTimeoutSec int    `split_words:"true" default:"60"`
}

// Service runs extractions. Expensive results (PDF parses, transcriptions,
// image descriptions, transcripts) are cached by content hash or video id.
type Service struct {
	cfg   Config
	llm   llm.Client
	http  *http.Client
	cache *ristretto.Cache[string, Result]

	// Overridable in tests.
	deepgramURL   string
	transcriptURL string
}

func New(cfg Config, client llm.Client) (*Service, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, Result]{
		NumCounters: 1e5,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:           cfg,
		llm:           client,
		http:          &http.Client{Timeout: time.Duration(cfg.DeepgramTimeoutSec) * time.Second},
		cache:         cache,
		deepgramURL:   "https://api.deepgram.com/v1/listen",
		transcriptURL: "https://video.google.com/timedtext",
	}, nil
}

// Message extracts text from a raw user message. A message containing a
// YouTube link yields the video transcript; anything else is cleaned text.
func (s *Service) Message(ctx context.Context, message string) Result {
	if url := DetectYouTubeURL(message); url != "" {
		return s.YouTube(ctx, url)
	}
	return Result{InputType: InputText, Text: CleanText(message)}
}

// File extracts text from an uploaded file based on its extension.
func (s *Service) File(ctx context.Context, data []byte, filename string) Result {
	switch KindForFilename(filename) {
	case InputPDF:
		return s.PDF(ctx, data)
	case InputImage:
		return s.Image(ctx, data, filename)
	case InputAudio:
		return s.Audio(ctx, data)
	default:
		return Result{InputType: InputText, Text: CleanText(string(data))}
	}
}

// cached runs fn once per cache key and memoizes successful results.
func (s *Service) cached(key string, fn func() Result) Result {
	if res, ok := s.cache.Get(key); ok {
		return res
	}
	res := fn()
	if res.Err == "" {
		s.cache.Set(key, res, int64(len(res.Text))+1)
	}
	return res
}

func contentKey(prefix string, data []byte) string {
	sum := sha256.Sum256(data)
	return prefix + ":" + hex.EncodeToString(sum[:])
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace to single spaces and trims the
// ends. Extracted text from any source goes through this before reaching a
// handler.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}
