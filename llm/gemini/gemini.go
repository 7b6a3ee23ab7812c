// Package gemini implements llm.Model over the Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/omniassist/server/llm"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = llm.ProviderGemini.DefaultModel()
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	// The key goes in a header so transport errors, which quote the URL,
	// never carry it into logs.
	url := fmt.Sprintf("%s/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", llm.ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", llm.ErrProviderFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", llm.ErrProviderFailed, resp.StatusCode, string(respBody))
	}

	return parseResponse(respBody)
}

func buildRequest(req *llm.Request) generateRequest {
	out := generateRequest{
		Contents: make([]content, 0, len(req.Messages)),
	}

	for _, m := range req.Messages {
		role := "user"
		if m.Role == llm.RoleModel {
			role = "model"
		}

		c := content{Role: role}
		for _, p := range m.Parts {
			if p.Text != "" {
				c.Parts = append(c.Parts, part{Text: p.Text})
			}
			if p.Media != nil {
				c.Parts = append(c.Parts, part{InlineData: &inlineData{
					MimeType: p.Media.ContentType,
					Data:     base64.StdEncoding.EncodeToString(p.Media.Data),
				}})
			}
		}
		if len(c.Parts) > 0 {
			out.Contents = append(out.Contents, c)
		}
	}

	if req.Schema != "" || req.MaxTokens > 0 {
		gc := &generationConfig{MaxOutputTokens: req.MaxTokens}
		if req.Schema != "" {
			var schema map[string]any
			if err := json.Unmarshal([]byte(req.Schema), &schema); err == nil {
				gc.ResponseMimeType = "application/json"
				gc.ResponseSchema = upperTypes(schema)
			}
		}
		out.GenerationConfig = gc
	}

	if req.System != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	return out
}

// upperTypes rewrites JSON-schema "type" values to the enum spelling Gemini
// expects ("object" -> "OBJECT").
func upperTypes(v any) map[string]any {
	m, _ := v.(map[string]any)
	for k, val := range m {
		switch tv := val.(type) {
		case string:
			if k == "type" {
				m[k] = strings.ToUpper(tv)
			}
		case map[string]any:
			m[k] = upperTypes(tv)
		}
	}
	return m
}

func parseResponse(body []byte) (*llm.Response, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", llm.ErrProviderFailed, err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no candidates from Gemini", llm.ErrEmptyResponse)
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	return &llm.Response{
		Text: text.String(),
		Usage: llm.Usage{
			PromptTokens:   resp.UsageMetadata.PromptTokenCount,
			ResponseTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:    resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

var _ llm.Model = (*Client)(nil)
