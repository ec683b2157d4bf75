// Package web exposes the HTTP API: analyze endpoints, standalone
// extraction endpoints, session stats and the usage log.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datasmith-ai/datasmith/internal"
	"github.com/datasmith-ai/datasmith/internal/extract"
	"github.com/datasmith-ai/datasmith/internal/stats"
	"github.com/datasmith-ai/datasmith/internal/usagelog"
)

const defaultSessionID = "default"

// allowedMIMETypes gates uploads. Parts with no declared content type are
// allowed through and judged by extension instead.
var allowedMIMETypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"audio/wav":       true,
	"audio/mpeg":      true,
	"audio/mp3":       true,
	"text/plain":      true,
	"text/csv":        true,
	"text/markdown":   true,
}

// Processor is the coordinator surface the HTTP layer needs.
type Processor interface {
	Process(ctx context.Context, sessionID, message string, fileContent []byte, filename string) internal.ProcessResult
	ProcessExtracted(ctx context.Context, sessionID, message, extractedText string) internal.ProcessResult
	GetStats(sessionID string) stats.Snapshot
	ResetSession(sessionID string) bool
	Sessions() []string
}

// Extractor is the extraction surface used by the standalone endpoints.
type Extractor interface {
	File(ctx context.Context, data []byte, filename string) extract.Result
	YouTube(ctx context.Context, url string) extract.Result
}

// UsageLister reads the usage log.
type UsageLister interface {
	List(ctx context.Context, f usagelog.Filter) ([]usagelog.Entry, error)
}

// Config holds HTTP settings.
type Config struct {
	Addr          string `default:"127.0.0.1:8000"`
	MaxFileSizeMB int64  `split_words:"true" default:"50"`
	Environment   string `default:"development"`
}

type handlers struct {
	cfg       Config
	processor Processor
	extractor Extractor
	usage     UsageLister
	model     string
}

// New builds the full HTTP handler, middleware included.
func New(cfg Config, processor Processor, extractor Extractor, usage UsageLister, model string) http.Handler {
	h := &handlers{cfg: cfg, processor: processor, extractor: extractor, usage: usage, model: model}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyze", h.analyze)
	mux.HandleFunc("POST /api/v1/analyze/file", h.analyzeFile)
	mux.HandleFunc("POST /api/v1/analyze/upload", h.analyzeUpload)
	mux.HandleFunc("POST /api/v1/extract/pdf", h.extractPDF)
	mux.HandleFunc("POST /api/v1/extract/image", h.extractFile)
	mux.HandleFunc("POST /api/v1/extract/audio", h.extractFile)
	mux.HandleFunc("POST /api/v1/extract/youtube", h.extractYouTube)
	mux.HandleFunc("GET /api/v1/stats/{session}", h.sessionStats)
	mux.HandleFunc("POST /api/v1/reset/{session}", h.resetSession)
	mux.HandleFunc("GET /api/v1/sessions", h.sessions)
	mux.HandleFunc("GET /api/v1/usage", h.usageEntries)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /{$}", h.root)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withRequestID(withCORS(withLogging(mux)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError matches the {"detail": ...} error shape clients already parse.
func apiError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type analyzeRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		apiError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = defaultSessionID
	}

	res := h.processor.Process(r.Context(), req.SessionID, req.Text, nil, "")
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) analyzeFile(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := h.readUpload(w, r, "file")
	if !ok {
		return
	}
	sessionID := formValue(r, "session_id", defaultSessionID)
	message := r.FormValue("message")

	extraction := h.extractor.File(r.Context(), data, filename)
	if extraction.Err != "" {
		apiError(w, http.StatusBadRequest, extraction.Err)
		return
	}

	res := h.processor.ProcessExtracted(r.Context(), sessionID, message, extraction.Text)
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) analyzeUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes())
	if err := r.ParseMultipartForm(h.maxBytes()); err != nil {
		h.uploadError(w, err)
		return
	}

	sessionID := formValue(r, "session_id", defaultSessionID)
	text := r.FormValue("text")

	var extracted []string
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			if msg := h.rejectMIME(header); msg != "" {
				apiError(w, http.StatusUnsupportedMediaType, msg)
				return
			}
			data, err := readPart(header)
			if err != nil {
				apiError(w, http.StatusBadRequest, err.Error())
				return
			}

			extraction := h.extractor.File(r.Context(), data, header.Filename)
			if extraction.Err != "" {
				// One bad file does not sink the batch.
				extracted = append(extracted, fmt.Sprintf("[Error processing %s: %s]", header.Filename, extraction.Err))
			} else if extraction.Text != "" {
				extracted = append(extracted, fmt.Sprintf("[From %s]:\n%s", header.Filename, extraction.Text))
			}
		}
	}

	combined := strings.Join(extracted, "\n\n")
	if strings.TrimSpace(text) == "" && combined == "" {
		apiError(w, http.StatusBadRequest, "Please provide text or valid files")
		return
	}

	res := h.processor.ProcessExtracted(r.Context(), sessionID, text, combined)
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) extractPDF(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := h.readUpload(w, r, "file")
	if !ok {
		return
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		apiError(w, http.StatusBadRequest, "File must be a PDF")
		return
	}
	writeJSON(w, http.StatusOK, h.extractor.File(r.Context(), data, filename))
}

func (h *handlers) extractFile(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := h.readUpload(w, r, "file")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.extractor.File(r.Context(), data, filename))
}

type youtubeRequest struct {
	URL string `json:"url"`
}

func (h *handlers) extractYouTube(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		var req youtubeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			url = req.URL
		}
	}
	if url == "" {
		apiError(w, http.StatusBadRequest, "url is required")
		return
	}

	res := h.extractor.YouTube(r.Context(), url)
	if res.Err != "" {
		apiError(w, http.StatusBadRequest, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) sessionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.processor.GetStats(r.PathValue("session")))
}

func (h *handlers) resetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	h.processor.ResetSession(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "reset",
		"session_id": sessionID,
	})
}

func (h *handlers) sessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": h.processor.Sessions()})
}

func (h *handlers) usageEntries(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		apiError(w, http.StatusNotFound, "usage log disabled")
		return
	}

	f := usagelog.Filter{
		SessionID: r.URL.Query().Get("session_id"),
		Operation: r.URL.Query().Get("operation"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			apiError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = limit
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apiError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		f.Since = since
	}

	entries, err := h.usage.List(r.Context(), f)
	if err != nil {
		apiError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if entries == nil {
		entries = []usagelog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"environment": h.cfg.Environment,
		"llm_model":   h.model,
	})
}

func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "Datasmith AI API",
		"version": versioninfo.Short(),
	})
}

func (h *handlers) maxBytes() int64 {
	return h.cfg.MaxFileSizeMB << 20
}

// readUpload parses a single-file multipart request and enforces the size
// and MIME limits. On failure it writes the error response and returns
// ok=false.
func (h *handlers) readUpload(w http.ResponseWriter, r *http.Request, field string) (data []byte, filename string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes())

	file, header, err := r.FormFile(field)
	if err != nil {
		h.uploadError(w, err)
		return nil, "", false
	}
	defer file.Close()

	if msg := h.rejectMIME(header); msg != "" {
		apiError(w, http.StatusUnsupportedMediaType, msg)
		return nil, "", false
	}

	data, err = io.ReadAll(file)
	if err != nil {
		h.uploadError(w, err)
		return nil, "", false
	}
	return data, header.Filename, true
}

func (h *handlers) uploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		apiError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Maximum size: %dMB", h.cfg.MaxFileSizeMB))
		return
	}
	apiError(w, http.StatusBadRequest, "file upload is required")
}

func (h *handlers) rejectMIME(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		return ""
	}
	if mediaType, _, ok := strings.Cut(ct, ";"); ok {
		ct = mediaType
	}
	if !allowedMIMETypes[strings.TrimSpace(ct)] {
		return "Unsupported file type: " + ct
	}
	return ""
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formValue(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}
