package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qri-io/jsonschema"
	"google.golang.org/genai"
)

type geminiClient struct {
	client *genai.Client
	cfg    Config
	rec    UsageRecorder
}

func newGemini(ctx context.Context, cfg Config, rec UsageRecorder) (Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &geminiClient{client: gc, cfg: cfg, rec: rec}, nil
}

func (c *geminiClient) Config() Config {
	return c.cfg
}

func (c *geminiClient) CompleteChat(ctx context.Context, op string, msgs []Message, schema *jsonschema.Schema) (Result, error) {
	var contents []*genai.Content
	config := c.baseConfig()

	for _, m := range msgs {
		if m.Role == "system" {
			// Gemini takes the system prompt as config, not as a turn.
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	if schema != nil {
		config.ResponseMIMEType = "application/json"
	}

	return c.generate(ctx, op, contents, config, schema)
}

func (c *geminiClient) DescribeImage(ctx context.Context, op string, instruction string, mimeType string, data []byte) (Result, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: instruction},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
		},
	}}
	return c.generate(ctx, op, contents, c.baseConfig(), nil)
}

func (c *geminiClient) baseConfig() *genai.GenerateContentConfig {
	temp := float32(c.cfg.Temperature)
	return &genai.GenerateContentConfig{Temperature: &temp}
}

func (c *geminiClient) generate(ctx context.Context, op string, contents []*genai.Content, config *genai.GenerateContentConfig, schema *jsonschema.Schema) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	elapsed := time.Since(start)

	if err != nil {
		observeCall(ctx, c.rec, op, c.cfg.Model, Usage{}, elapsed, err)
		return Result{}, fmt.Errorf("generating response: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		err := errors.New("no candidates in response")
		observeCall(ctx, c.rec, op, c.cfg.Model, Usage{}, elapsed, err)
		return Result{}, err
	}

	var parts []Part
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Text == "" {
			continue
		}
		parts = append(parts, Part{Kind: "text", Text: p.Text})
	}
	content := MultiPart(parts)

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			Reported:     true,
		}
	}

	validateSchema(ctx, schema, content.Normalize())
	observeCall(ctx, c.rec, op, c.cfg.Model, usage, elapsed, nil)

	return Result{Content: content, Usage: usage, Elapsed: elapsed}, nil
}
