package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Audio transcribes an uploaded audio file through Deepgram.
func (s *Service) Audio(ctx context.Context, data []byte) Result {
	return s.cached(contentKey("aud", data), func() Result {
		transcript, err := s.transcribe(ctx, data)
		if err != nil {
			slog.ErrorContext(ctx, "audio extraction failed", "error", err)
			return Result{InputType: InputAudio, Err: err.Error()}
		}
		return Result{InputType: InputAudio, Text: CleanText(transcript)}
	})
}

func (s *Service) transcribe(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.deepgramURL+"?model=nova-2&smart_format=true", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+s.cfg.DeepgramAPIKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Deepgram error: %d", resp.StatusCode)
	}

	var out deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return out.Results.Channels[0].Alternatives[0].Transcript, nil
}
