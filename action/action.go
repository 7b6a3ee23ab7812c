// Package action classifies a free-text command into one of a closed set of
// actions and extracts the action's parameters.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/omniassist/server/llm"
)

type Kind string

const (
	OpenApplication Kind = "openApplication"
	SearchFiles     Kind = "searchFiles"
	WebSearch       Kind = "webSearch"
	AnswerQuestion  Kind = "answerQuestion"
	Unknown         Kind = "unknown"
)

// IsValid returns true if k is one of the known actions.
func (k Kind) IsValid() bool {
	switch k {
	case OpenApplication, SearchFiles, WebSearch, AnswerQuestion, Unknown:
		return true
	default:
		return false
	}
}

var ErrEmptyCommand = errors.New("action: empty command")

// Interpretation is the dispatcher's decision. Only the field belonging to
// Action is set; Reason is always set.
type Interpretation struct {
	Action          Kind   `json:"action"`
	ApplicationName string `json:"applicationName,omitempty"`
	SearchQuery     string `json:"searchQuery,omitempty"`
	WebSearchQuery  string `json:"webSearchQuery,omitempty"`
	Question        string `json:"question,omitempty"`
	Reason          string `json:"reason"`
}

type Dispatcher struct {
	model llm.Model
}

func NewDispatcher(model llm.Model) *Dispatcher {
	return &Dispatcher{model: model}
}

// Interpret classifies command. Transport failures are returned; output the
// model got wrong is normalised rather than reported.
func (d *Dispatcher) Interpret(ctx context.Context, command string, installedApplications []string) (Interpretation, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return Interpretation{}, ErrEmptyCommand
	}

	resp, err := d.model.Generate(ctx, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{{Text: buildPrompt(command, installedApplications)}}}},
		Schema:   schema,
	})
	if err != nil {
		return Interpretation{}, fmt.Errorf("interpret command: %w", err)
	}

	var raw Interpretation
	if err := llm.DecodeJSON(resp.Text, &raw); err != nil {
		slog.Warn("action output not decodable", "error", err)
		return Interpretation{
			Action: Unknown,
			Reason: "The command could not be interpreted.",
		}, nil
	}

	return normalize(raw, command, installedApplications), nil
}

func normalize(in Interpretation, command string, apps []string) Interpretation {
	out := Interpretation{Action: Kind(strings.TrimSpace(string(in.Action))), Reason: strings.TrimSpace(in.Reason)}
	if !out.Action.IsValid() {
		out.Action = Unknown
	}

	switch out.Action {
	case OpenApplication:
		name, ok := matchApplication(strings.TrimSpace(in.ApplicationName), apps)
		if !ok {
			return Interpretation{
				Action: Unknown,
				Reason: fmt.Sprintf("No installed application matches %q.", in.ApplicationName),
			}
		}
		out.ApplicationName = name
	case SearchFiles:
		out.SearchQuery = firstNonEmpty(in.SearchQuery, command)
	case WebSearch:
		out.WebSearchQuery = firstNonEmpty(in.WebSearchQuery, command)
	case AnswerQuestion:
		out.Question = command
	}

	if out.Reason == "" {
		out.Reason = defaultReason(out)
	}
	return out
}

// matchApplication resolves name against apps case-insensitively and returns
// the canonical spelling. With no list to check against, any non-empty name
// is accepted.
func matchApplication(name string, apps []string) (string, bool) {
	if name == "" {
		return "", false
	}
	if len(apps) == 0 {
		return name, true
	}
	for _, app := range apps {
		if strings.EqualFold(app, name) {
			return app, true
		}
	}
	return "", false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func defaultReason(in Interpretation) string {
	switch in.Action {
	case OpenApplication:
		return fmt.Sprintf("The command asks to open %s.", in.ApplicationName)
	case SearchFiles:
		return "The command asks to search for files."
	case WebSearch:
		return "The command asks for information from the web."
	case AnswerQuestion:
		return "The command is a direct question."
	default:
		return "The command could not be matched to a supported action."
	}
}
