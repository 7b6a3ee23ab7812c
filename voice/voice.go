// Package voice is the single-shot command entry point: it classifies a
// command, runs the matching action service and returns a typed result.
// It shares no state with chat sessions.
package voice

import (
	"context"
	"log/slog"
	"strings"

	"github.com/omniassist/server/action"
	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/desktop"
	"github.com/omniassist/server/logger"
	"github.com/omniassist/server/websearch"
)

type Interpreter interface {
	Interpret(ctx context.Context, command string, installedApplications []string) (action.Interpretation, error)
}

type Answerer interface {
	Answer(ctx context.Context, q assistant.Query) (assistant.Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, query string) (websearch.Summary, error)
}

type Launcher interface {
	Open(ctx context.Context, name string) error
}

type FileSearcher func(ctx context.Context, query string) ([]desktop.FileInfo, error)

type Deps struct {
	Interpreter Interpreter
	Answerer    Answerer
	Summarizer  Summarizer
	Launcher    Launcher
	Catalog     *desktop.Catalog
	SearchFiles FileSearcher
	// History is optional.
	History *History
}

type Assistant struct {
	deps Deps
}

func New(deps Deps) *Assistant {
	if deps.SearchFiles == nil {
		deps.SearchFiles = desktop.SearchFiles
	}
	return &Assistant{deps: deps}
}

// Handle never returns nil. Failures become an error PlainMessage.
func (a *Assistant) Handle(ctx context.Context, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return PlainMessage{Text: "Please say or type a command."}
	}

	log := slog.With("command", logger.Truncate(command, 80))

	if a.deps.History != nil {
		a.deps.History.Record(ctx, command)
	}

	var apps []string
	if a.deps.Catalog != nil {
		apps = a.deps.Catalog.Names()
	}

	in, err := a.deps.Interpreter.Interpret(ctx, command, apps)
	if err != nil {
		log.Error("interpret command failed", "error", err)
		return failure("Sorry, I couldn't process that command. Please try again.")
	}
	log.Info("command interpreted", "action", in.Action)

	switch in.Action {
	case action.OpenApplication:
		if err := a.deps.Launcher.Open(ctx, in.ApplicationName); err != nil {
			log.Error("open application failed", "app", in.ApplicationName, "error", err)
			return failure("Sorry, I couldn't open " + in.ApplicationName + ".")
		}
		return InterpretedAction{Interpretation: in, Launched: true}

	case action.SearchFiles:
		files, err := a.deps.SearchFiles(ctx, in.SearchQuery)
		if err != nil {
			log.Error("file search failed", "error", err)
			return failure("Sorry, the file search failed.")
		}
		return FileList{Query: in.SearchQuery, Files: files}

	case action.WebSearch:
		s, err := a.deps.Summarizer.Summarize(ctx, in.WebSearchQuery)
		if err != nil {
			log.Error("web search failed", "error", err)
			return failure("Sorry, I couldn't summarize the web results for that.")
		}
		return WebSummary{Query: in.WebSearchQuery, Summary: s.Summary}

	case action.AnswerQuestion:
		res, err := a.deps.Answerer.Answer(ctx, assistant.Query{Question: in.Question})
		if err != nil {
			log.Error("answer question failed", "error", err)
			return failure("Sorry, I couldn't answer that question.")
		}
		return AnsweredQuestion{Answer: res.Answer, OriginalQuestion: res.OriginalQuestion}

	default:
		return InterpretedAction{Interpretation: in}
	}
}

func failure(text string) PlainMessage {
	return PlainMessage{Text: text, IsError: true}
}
