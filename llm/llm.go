// Package llm is the provider-neutral model gateway: a single Generate call
// taking a multi-part conversation and an optional JSON response schema.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProviderFailed = errors.New("llm: provider failed")
	ErrEmptyResponse  = errors.New("llm: empty response")
	ErrEmptyPrompt    = errors.New("llm: empty prompt")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Media is inline binary content such as an image attachment.
type Media struct {
	ContentType string
	Data        []byte
}

// Part is either text or media. When both are set, both are sent.
type Part struct {
	Text  string
	Media *Media
}

type Message struct {
	Role  Role
	Parts []Part
}

type Request struct {
	System   string
	Messages []Message
	// Schema is a JSON schema for structured output. Empty means plain text.
	Schema    string
	MaxTokens int
}

type Usage struct {
	PromptTokens   int
	ResponseTokens int
	TotalTokens    int
}

type Response struct {
	Text  string
	Usage Usage
}

// Model generates one response per request.
type Model interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ModelFunc) Generate(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// TextRequest builds a single-turn plain-text request.
func TextRequest(prompt string) *Request {
	return &Request{
		Messages: []Message{{Role: RoleUser, Parts: []Part{{Text: prompt}}}},
	}
}

// Validate rejects requests with no content at all.
func (r *Request) Validate() error {
	for _, m := range r.Messages {
		for _, p := range m.Parts {
			if strings.TrimSpace(p.Text) != "" || p.Media != nil {
				return nil
			}
		}
	}
	return ErrEmptyPrompt
}

// DecodeJSON unmarshals structured model output into v. Models sometimes wrap
// JSON in a markdown fence even when asked not to; the fence is stripped.
func DecodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
	}
	if text == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("llm: decode structured output: %w", err)
	}
	return nil
}
