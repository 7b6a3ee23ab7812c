package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/omniassist/server/llm"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Paris"}}],
  "usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
}`

func TestGenerate(t *testing.T) {
	var got capturedRequest
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionBody)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL + "/", APIKey: "sk-test", Model: "test-model"})

	resp, err := c.Generate(context.Background(), &llm.Request{
		System: "answer briefly",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Parts: []llm.Part{{Text: "hi"}}},
			{Role: llm.RoleModel, Parts: []llm.Part{{Text: "hello"}}},
			{Role: llm.RoleUser, Parts: []llm.Part{
				{Text: "capital of France?"},
				{Media: &llm.Media{ContentType: "image/png", Data: []byte{1}}},
			}},
		},
		Schema: `{"type":"object"}`,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Text != "Paris" {
		t.Errorf("got %q, want %q", resp.Text, "Paris")
	}
	if resp.Usage.TotalTokens != 6 {
		t.Errorf("got %d tokens, want 6", resp.Usage.TotalTokens)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("got auth %q", auth)
	}
	if got.Model != "test-model" {
		t.Errorf("got model %q", got.Model)
	}

	if len(got.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(got.Messages))
	}
	roles := []string{"system", "user", "assistant", "user"}
	for i, want := range roles {
		if got.Messages[i].Role != want {
			t.Errorf("message %d: got role %q, want %q", i, got.Messages[i].Role, want)
		}
	}
	if !strings.Contains(got.Messages[0].Content, `{"type":"object"}`) {
		t.Errorf("schema not in system prompt: %q", got.Messages[0].Content)
	}
	if !strings.Contains(got.Messages[3].Content, "image/png") {
		t.Errorf("media not described: %q", got.Messages[3].Content)
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL + "/", Model: "nope"})

	_, err := c.Generate(context.Background(), llm.TextRequest("hi"))
	if !errors.Is(err, llm.ErrProviderFailed) {
		t.Errorf("expected ErrProviderFailed, got %v", err)
	}
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	c := New(Config{Endpoint: "http://127.0.0.1:0/"})

	if _, err := c.Generate(context.Background(), llm.TextRequest(" ")); !errors.Is(err, llm.ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
}
