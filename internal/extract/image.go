package extract

import (
	"context"
	"log/slog"
	"mime"
	"path"
	"strings"
)

const imageInstruction = "Extract all text from this image. If no text, describe what you see."

// Image runs the vision model over an uploaded image and returns the text
// it contains, or a description when there is none.
func (s *Service) Image(ctx context.Context, data []byte, filename string) Result {
	mimeType := mime.TypeByExtension(strings.ToLower(path.Ext(filename)))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return s.cached(contentKey("img", data), func() Result {
		res, err := s.llm.DescribeImage(ctx, "extract_image", imageInstruction, mimeType, data)
		if err != nil {
			slog.ErrorContext(ctx, "image extraction failed", "error", err)
			return Result{InputType: InputImage, Err: err.Error()}
		}
		return Result{InputType: InputImage, Text: CleanText(res.Content.Normalize())}
	})
}
