package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

// PDF extracts the plain text of every page. Parses are cached by content
// hash since the same document is often uploaded more than once.
func (s *Service) PDF(ctx context.Context, data []byte) Result {
	return s.cached(contentKey("pdf", data), func() (res Result) {
		// The parser panics on some malformed documents.
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "pdf parse panicked", "panic", r)
				res = Result{InputType: InputPDF, Err: fmt.Sprintf("malformed PDF: %v", r)}
			}
		}()

		reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			slog.ErrorContext(ctx, "pdf parse failed", "error", err)
			return Result{InputType: InputPDF, Err: err.Error()}
		}

		plain, err := reader.GetPlainText()
		if err != nil {
			slog.ErrorContext(ctx, "pdf text extraction failed", "error", err)
			return Result{InputType: InputPDF, Err: err.Error()}
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(plain); err != nil {
			return Result{InputType: InputPDF, Err: err.Error()}
		}

		pages := reader.NumPage()
		slog.DebugContext(ctx, "pdf extracted", "pages", pages, "chars", buf.Len())
		return Result{
			InputType: InputPDF,
			Text:      CleanText(buf.String()),
			Metadata:  map[string]any{"pages": pages},
		}
	})
}
