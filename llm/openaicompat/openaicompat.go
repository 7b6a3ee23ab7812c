// Package openaicompat implements llm.Model against any OpenAI-compatible
// chat completions endpoint.
package openaicompat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/omniassist/server/llm"
)

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type Client struct {
	client *openai.Client
	model  string
}

func New(cfg Config) *Client {
	var options []option.RequestOption
	if cfg.Endpoint != "" {
		options = append(options, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APIKey != "" {
		options = append(options, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		options = append(options, option.WithRequestTimeout(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = llm.ProviderOpenAI.DefaultModel()
	}

	client := openai.NewClient(options...)
	return &Client{client: &client, model: model}
}

func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: buildMessages(req),
		Model:    c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", llm.ErrProviderFailed, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", llm.ErrEmptyResponse)
	}

	return &llm.Response{
		Text: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:   int(resp.Usage.PromptTokens),
			ResponseTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:    int(resp.Usage.TotalTokens),
		},
	}, nil
}

// buildMessages flattens the request into chat messages. Structured output is
// requested through the system prompt since compatible servers differ in
// response_format support. Inline media is described, not sent.
func buildMessages(req *llm.Request) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion

	system := req.System
	if req.Schema != "" {
		if system != "" {
			system += "\n\n"
		}
		system += "Respond only with a JSON object matching this JSON schema, with no surrounding text:\n" + req.Schema
	}
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}

	for _, m := range req.Messages {
		text := flatten(m.Parts)
		if text == "" {
			continue
		}
		if m.Role == llm.RoleModel {
			msgs = append(msgs, openai.AssistantMessage(text))
		} else {
			msgs = append(msgs, openai.UserMessage(text))
		}
	}
	return msgs
}

func flatten(parts []llm.Part) string {
	var lines []string
	for _, p := range parts {
		if p.Text != "" {
			lines = append(lines, p.Text)
		}
		if p.Media != nil {
			lines = append(lines, fmt.Sprintf("[attached %s content, %d bytes, not viewable]", p.Media.ContentType, len(p.Media.Data)))
		}
	}
	return strings.Join(lines, "\n")
}

var _ llm.Model = (*Client)(nil)
