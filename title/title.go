// Package title derives short session labels from the first exchange.
package title

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/omniassist/server/llm"
)

const (
	// MaxLength bounds every title produced here.
	MaxLength = 70
	// FallbackWords is how many leading words of the user message the
	// fallback keeps.
	FallbackWords = 5
	// FallbackMaxInput is the longest user message the word fallback applies to.
	FallbackMaxInput = 200

	ellipsis = "..."
)

const schema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string", "description": "A concise title for the conversation, ideally 3-5 words."}
  },
  "required": ["title"]
}`

type Generator struct {
	model         llm.Model
	assistantName string
}

func New(model llm.Model, assistantName string) *Generator {
	if assistantName == "" {
		assistantName = "Assistant"
	}
	return &Generator{model: model, assistantName: assistantName}
}

// Generate asks the model for a 3-5 word title. It always returns a non-empty
// title of at most MaxLength characters.
func (g *Generator) Generate(ctx context.Context, userText, aiText string) string {
	prompt := fmt.Sprintf(`Based on the following initial exchange in a conversation, generate a short, concise title (3-5 words) that captures the main topic or theme. The AI in this conversation is named %s.

User: %q
%s: %q

Suggest a title for this chat.`, g.assistantName, userText, g.assistantName, aiText)

	title := ""
	resp, err := g.model.Generate(ctx, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{{Text: prompt}}}},
		Schema:   schema,
	})
	if err != nil {
		slog.Warn("title generation failed", "error", err)
	} else {
		var out struct {
			Title string `json:"title"`
		}
		if err := llm.DecodeJSON(resp.Text, &out); err != nil {
			slog.Warn("title output not decodable", "error", err)
		}
		title = clean(out.Title)
	}

	if title == "" {
		title = g.Fallback(userText)
	}
	return Truncate(title, MaxLength)
}

// Fallback derives a title without the model.
func (g *Generator) Fallback(userText string) string {
	userText = strings.TrimSpace(userText)
	if userText == "" || utf8.RuneCountInString(userText) > FallbackMaxInput {
		return "Chat with " + g.assistantName
	}

	words := strings.Fields(userText)
	if len(words) > FallbackWords {
		return Truncate(strings.Join(words[:FallbackWords], " ")+ellipsis, MaxLength)
	}
	return Truncate(strings.Join(words, " "), MaxLength)
}

// Truncate cuts s so the result, including the ellipsis, is at most max characters.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	keep := max - len(ellipsis)
	if keep < 0 {
		keep = 0
	}
	return strings.TrimRight(string(runes[:keep]), " ") + ellipsis
}

// Interim is the provisional title set when the first user message arrives:
// the content cut to max characters plus an ellipsis, or a label for the
// attachment when there is no text.
func Interim(content string, hasImage bool, fileName string, max int) string {
	content = strings.Join(strings.Fields(content), " ")
	if content != "" {
		if utf8.RuneCountInString(content) > max {
			return string([]rune(content)[:max]) + ellipsis
		}
		return content
	}

	switch {
	case fileName != "":
		return Truncate("File: "+fileName, MaxLength)
	case hasImage:
		return "Image query"
	default:
		return ""
	}
}

func clean(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, "\"'`“”‘’")
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
	return strings.Join(strings.Fields(title), " ")
}
