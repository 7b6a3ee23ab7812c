// Package websearch produces a model-written summary for a web query.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omniassist/server/llm"
)

var ErrEmptyQuery = errors.New("websearch: empty query")

const schema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "description": "A summary of the top search results for the query."}
  },
  "required": ["summary"]
}`

type Summary struct {
	Summary string `json:"summary"`
}

type Summarizer struct {
	model llm.Model
}

func NewSummarizer(model llm.Model) *Summarizer {
	return &Summarizer{model: model}
}

func (s *Summarizer) Summarize(ctx context.Context, query string) (Summary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Summary{}, ErrEmptyQuery
	}

	resp, err := s.model.Generate(ctx, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{{
			Text: "Summarize the top search results for the following query:\n\n" + query,
		}}}},
		Schema: schema,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize web search: %w", err)
	}

	var out Summary
	if err := llm.DecodeJSON(resp.Text, &out); err != nil {
		return Summary{}, err
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		return Summary{}, llm.ErrEmptyResponse
	}
	return out, nil
}
