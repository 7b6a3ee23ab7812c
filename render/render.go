// Package render formats answers and voice results for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/voice"
)

const DefaultWidth = 80

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	contentStyle = lipgloss.NewStyle().
			Padding(0, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))
)

// Markdown renders content with glamour, falling back to padded plain text.
func Markdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = DefaultWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return contentStyle.Render(content)
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return contentStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func Answer(res assistant.Result, width int) string {
	var b strings.Builder
	if res.OriginalQuestion != "" {
		b.WriteString(labelStyle.Render("Q: " + res.OriginalQuestion))
		b.WriteString("\n\n")
	}
	b.WriteString(Markdown(res.Answer, width))
	return b.String()
}

// VoiceResult renders each result variant with its own header.
func VoiceResult(r voice.Result, width int) string {
	switch v := r.(type) {
	case voice.InterpretedAction:
		lines := []string{
			headerStyle.Render("Action: " + string(v.Action)),
		}
		if v.ApplicationName != "" {
			status := "not launched"
			if v.Launched {
				status = okStyle.Render("launched")
			}
			lines = append(lines, contentStyle.Render(fmt.Sprintf("%s (%s)", v.ApplicationName, status)))
		}
		if v.Reason != "" {
			lines = append(lines, contentStyle.Render(labelStyle.Render(v.Reason)))
		}
		return strings.Join(lines, "\n")

	case voice.WebSummary:
		return headerStyle.Render("Web: "+v.Query) + "\n" + Markdown(v.Summary, width)

	case voice.AnsweredQuestion:
		return Answer(assistant.Result{Answer: v.Answer, OriginalQuestion: v.OriginalQuestion}, width)

	case voice.FileList:
		lines := []string{headerStyle.Render(fmt.Sprintf("Files matching %q", v.Query))}
		if len(v.Files) == 0 {
			lines = append(lines, contentStyle.Render(labelStyle.Render("(no files found)")))
		}
		for _, f := range v.Files {
			lines = append(lines, contentStyle.Render(f.Name+"  "+labelStyle.Render(f.Path)))
		}
		return strings.Join(lines, "\n")

	case voice.PlainMessage:
		if v.IsError {
			return errorStyle.Render(v.Text)
		}
		return contentStyle.Render(v.Text)

	default:
		return contentStyle.Render(fmt.Sprintf("%v", r))
	}
}
