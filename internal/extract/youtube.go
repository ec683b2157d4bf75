package extract

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	youtubeURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(https?://)?(www\.)?youtube\.com/watch\?v=[\w-]+`),
		regexp.MustCompile(`(https?://)?(www\.)?youtu\.be/[\w-]+`),
	}
	videoIDRE = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([^&\n?#]+)`)
)

// DetectYouTubeURL returns the first YouTube watch or short link found in
// text, or "" when there is none.
func DetectYouTubeURL(text string) string {
	for _, re := range youtubeURLPatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// ExtractVideoID pulls the video id out of a YouTube URL.
func ExtractVideoID(youtubeURL string) string {
	m := videoIDRE.FindStringSubmatch(youtubeURL)
	if m == nil {
		return ""
	}
	return m[1]
}

type timedText struct {
	Lines []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

// YouTube fetches the English transcript for a video link. Transcripts are
// cached per video id since they never change.
func (s *Service) YouTube(ctx context.Context, rawURL string) Result {
	id := ExtractVideoID(rawURL)
	if id == "" {
		return Result{InputType: InputYouTube, Err: "Invalid YouTube URL"}
	}

	return s.cached("yt:"+id, func() Result {
		text, err := s.fetchTranscript(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "youtube transcript fetch failed", "video_id", id, "error", err)
			return Result{InputType: InputYouTube, Err: err.Error()}
		}
		if text == "" {
			return Result{InputType: InputYouTube, Err: "No transcript available"}
		}
		return Result{
			InputType: InputYouTube,
			Text:      CleanText(text),
			Metadata:  map[string]any{"video_id": id},
		}
	})
}

func (s *Service) fetchTranscript(ctx context.Context, videoID string) (string, error) {
	q := url.Values{"lang": {"en"}, "v": {videoID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.transcriptURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcript service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", nil
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		if t := strings.TrimSpace(line.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
