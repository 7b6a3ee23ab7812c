// Package assistant answers free-form questions with optional image and file
// attachments and prior conversation history.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/omniassist/server/dataurl"
	"github.com/omniassist/server/llm"
	"github.com/omniassist/server/logger"
	"github.com/omniassist/server/metrics"
)

// Apology is returned when neither the structured nor the fallback call
// produced an answer.
const Apology = "Sorry, I couldn't find an answer to that. I'm still learning!"

const DefaultName = "Assistant"

var ErrEmptyQuery = errors.New("assistant: empty query")

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type HistoryEntry struct {
	Sender  Sender `json:"sender"`
	Content string `json:"content"`
}

type File struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	DataURI string `json:"dataUri"`
}

type Query struct {
	Question     string         `json:"question"`
	ImageDataURI string         `json:"imageDataUri,omitempty"`
	File         *File          `json:"fileData,omitempty"`
	History      []HistoryEntry `json:"conversationHistory,omitempty"`
}

func (q Query) empty() bool {
	return strings.TrimSpace(q.Question) == "" && q.ImageDataURI == "" && q.File == nil
}

type Result struct {
	Answer           string `json:"answer"`
	OriginalQuestion string `json:"originalQuestion"`
}

type Options struct {
	// Name is how the assistant refers to itself.
	Name      string
	MaxTokens int
}

type Service struct {
	model     llm.Model
	name      string
	maxTokens int
}

func New(model llm.Model, opts Options) *Service {
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	return &Service{model: model, name: name, maxTokens: opts.MaxTokens}
}

func (s *Service) Name() string { return s.name }

// Placeholder describes an attachment-only message, e.g. "[user sent an image]".
// It returns "" when there is no attachment.
func Placeholder(hasImage bool, fileName string) string {
	switch {
	case fileName != "":
		return fmt.Sprintf("[user sent a file: %s]", fileName)
	case hasImage:
		return "[user sent an image]"
	default:
		return ""
	}
}

// Answer runs the structured request, then one plain fallback, then Apology.
// It only fails when ctx is done or q carries nothing at all.
func (s *Service) Answer(ctx context.Context, q Query) (Result, error) {
	if q.empty() {
		return Result{}, ErrEmptyQuery
	}

	original := strings.TrimSpace(q.Question)
	if original == "" {
		fileName := ""
		if q.File != nil {
			fileName = q.File.Name
		}
		original = Placeholder(q.ImageDataURI != "", fileName)
	}

	log := slog.With("question", logger.Truncate(original, 80), "historyLen", len(q.History))

	out, err := s.structured(ctx, q)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if err == nil {
		if out.OriginalQuestion == "" {
			out.OriginalQuestion = original
		}
		return out, nil
	}

	log.Warn("structured answer failed, using fallback", "error", err)
	metrics.IncAssistantFallback("structured")

	answer, err := s.fallback(ctx, original)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if err != nil {
		log.Error("fallback answer failed", "error", err)
		metrics.IncAssistantFallback("static")
		answer = Apology
	}

	return Result{Answer: answer, OriginalQuestion: original}, nil
}

func (s *Service) structured(ctx context.Context, q Query) (Result, error) {
	req, err := s.buildRequest(q)
	if err != nil {
		return Result{}, err
	}

	resp, err := s.model.Generate(ctx, req)
	if err != nil {
		return Result{}, err
	}

	var out Result
	if err := llm.DecodeJSON(resp.Text, &out); err != nil {
		return Result{}, err
	}
	out.Answer = strings.TrimSpace(out.Answer)
	out.OriginalQuestion = strings.TrimSpace(out.OriginalQuestion)
	if out.Answer == "" {
		return Result{}, llm.ErrEmptyResponse
	}
	return out, nil
}

func (s *Service) fallback(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf("As %s, answer the following question in a friendly and empathetic tone: %s", s.name, question)

	req := llm.TextRequest(prompt)
	req.MaxTokens = s.maxTokens

	resp, err := s.model.Generate(ctx, req)
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return "", llm.ErrEmptyResponse
	}
	return answer, nil
}

func (s *Service) buildRequest(q Query) (*llm.Request, error) {
	file := prepareFile(q.File)

	prompt, err := renderPrompt(promptData{
		Name:     s.name,
		History:  q.History,
		Question: q.Question,
		HasImage: q.ImageDataURI != "",
		File:     file,
	})
	if err != nil {
		return nil, err
	}

	parts := []llm.Part{{Text: prompt}}
	if q.ImageDataURI != "" {
		if p, ok := mediaPart(q.ImageDataURI); ok {
			parts = append(parts, p)
		}
	}
	if file != nil && file.IsImage {
		if p, ok := mediaPart(q.File.DataURI); ok {
			parts = append(parts, p)
		}
	}

	return &llm.Request{
		Messages:  []llm.Message{{Role: llm.RoleUser, Parts: parts}},
		Schema:    resultSchema,
		MaxTokens: s.maxTokens,
	}, nil
}

func mediaPart(uri string) (llm.Part, bool) {
	mime, data, err := dataurl.Parse(uri)
	if err != nil {
		slog.Warn("skipping undecodable attachment", "error", err)
		return llm.Part{}, false
	}
	return llm.Part{Media: &llm.Media{ContentType: mime, Data: data}}, true
}

type fileContext struct {
	Name        string
	Type        string
	IsImage     bool
	IsText      bool
	TextPreview string
}

func prepareFile(f *File) *fileContext {
	if f == nil {
		return nil
	}

	fc := &fileContext{Name: f.Name, Type: f.Type}
	switch dataurl.Classify(f.Type) {
	case dataurl.KindImage:
		fc.IsImage = true
	case dataurl.KindText:
		fc.IsText = true
		fc.TextPreview = dataurl.TextPreview(dataurl.DecodeToText(f.DataURI))
	}
	return fc
}
