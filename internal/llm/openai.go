package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	ollama "github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/qri-io/jsonschema"
)

const localOllamaURL = "http://localhost:11434/v1/"

type openaiClient struct {
	client openai.Client
	cfg    Config
	rec    UsageRecorder
}

func newOpenAI(ctx context.Context, cfg Config, rec UsageRecorder) (Client, error) {
	if cfg.URL != localOllamaURL && cfg.APIKey == "" {
		return nil, fmt.Errorf("API key required for %s", cfg.URL)
	}

	oc := openai.NewClient(
		option.WithBaseURL(cfg.URL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	)

	if err := checkAndDownloadModel(ctx, oc, cfg.Model, cfg.URL); err != nil {
		return nil, err
	}

	return &openaiClient{client: oc, cfg: cfg, rec: rec}, nil
}

// checkAndDownloadModel pulls the model through Ollama when it is missing
// from a local endpoint. Remote endpoints must already serve the model.
func checkAndDownloadModel(ctx context.Context, client openai.Client, modelName string, baseURL string) error {
	if _, err := client.Models.Get(ctx, modelName); err != nil {
		var aerr *openai.Error
		if errors.As(err, &aerr) && aerr.StatusCode == http.StatusNotFound && baseURL == localOllamaURL {
			if err := downloadOllamaModel(ctx, modelName); err != nil {
				return fmt.Errorf("downloading model %s: %w", modelName, err)
			}
		} else {
			return fmt.Errorf("getting model %s: %w", modelName, err)
		}
	}
	return nil
}

func downloadOllamaModel(ctx context.Context, name string) error {
	client := ollama.NewClient(&url.URL{
		Scheme: "http",
		Host:   "localhost:11434",
	}, http.DefaultClient)
	if err := client.Pull(ctx, &ollama.PullRequest{
		Model: name,
	}, func(resp ollama.ProgressResponse) error {
		fmt.Fprintf(os.Stderr, "\r%s: %s [%d/%d]", name, resp.Status, resp.Completed, resp.Total)
		return nil
	}); err != nil {
		return fmt.Errorf("downloading model %s: %w", name, err)
	}

	slog.DebugContext(ctx, "downloaded model", "model", name)
	return nil
}

func (c *openaiClient) Config() Config {
	return c.cfg
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			out = append(out, openai.SystemMessage(m.Content))
			continue
		}
		out = append(out, openai.UserMessage(m.Content))
	}
	return out
}

func (c *openaiClient) CompleteChat(ctx context.Context, op string, msgs []Message, schema *jsonschema.Schema) (Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.cfg.Model,
		Messages:    toOpenAIMessages(msgs),
		Temperature: param.NewOpt(c.cfg.Temperature),
	}
	if schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return c.complete(ctx, op, params, schema)
}

func (c *openaiClient) DescribeImage(ctx context.Context, op string, instruction string, mimeType string, data []byte) (Result, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	params := openai.ChatCompletionNewParams{
		Model:       c.cfg.Model,
		Temperature: param.NewOpt(c.cfg.Temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							{
								OfText: &openai.ChatCompletionContentPartTextParam{Text: instruction},
							},
							{
								OfImageURL: &openai.ChatCompletionContentPartImageParam{
									ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
								},
							},
						},
					},
				},
			},
		},
	}
	return c.complete(ctx, op, params, nil)
}

func (c *openaiClient) complete(ctx context.Context, op string, params openai.ChatCompletionNewParams, schema *jsonschema.Schema) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	elapsed := time.Since(start)

	if err != nil {
		observeCall(ctx, c.rec, op, c.cfg.Model, Usage{}, elapsed, err)
		return Result{}, fmt.Errorf("generating response: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("no choices in response")
		observeCall(ctx, c.rec, op, c.cfg.Model, Usage{}, elapsed, err)
		return Result{}, err
	}

	content := resp.Choices[0].Message.Content
	usage := Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Reported:     resp.Usage.TotalTokens > 0,
	}

	validateSchema(ctx, schema, content)
	observeCall(ctx, c.rec, op, c.cfg.Model, usage, elapsed, nil)

	return Result{Content: PlainText(content), Usage: usage, Elapsed: elapsed}, nil
}
