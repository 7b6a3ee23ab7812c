package assistant

import (
	"strings"
	"text/template"
)

const resultSchema = `{
  "type": "object",
  "properties": {
    "answer": {"type": "string", "description": "The answer to the user's question or instruction."},
    "originalQuestion": {"type": "string", "description": "The user's textual input for the current turn."}
  },
  "required": ["answer", "originalQuestion"]
}`

type promptData struct {
	Name     string
	History  []HistoryEntry
	Question string
	HasImage bool
	File     *fileContext
}

var promptTmpl = template.Must(template.New("answer").Parse(`You are {{.Name}}, a friendly and empathetic AI assistant. Give clear, concise and accurate answers to the user's questions or instructions. Use the conversation history to keep context and give relevant follow-up answers. Keep a warm, approachable, conversational tone.

When you include code, wrap it in a markdown code block with the language named, for example:
` + "```" + `html
<p>Hello</p>
` + "```" + `
{{if .History}}
--- Conversation history (oldest first) ---
{{range .History}}{{.Sender}}: {{.Content}}
{{end}}--- End of conversation history ---

Taking the history above into account, respond to the following:
{{end}}
Current user input: {{.Question}}
{{if .HasImage}}
The user also provided an image with this input. Analyze it as part of your answer.
{{end}}{{with .File}}
The user also uploaded a file named "{{.Name}}" (type: {{.Type}}) with this input.
Analyze its content and help the user with it: explain, summarize or answer questions about it.
{{if .IsText}}File content (first 2000 characters):
` + "```" + `
{{.TextPreview}}
` + "```" + `
{{else if .IsImage}}The file is an image and is attached to this message.
{{else}}This is not a text file. Discuss its likely contents or uses based on its name and type.
{{end}}{{end}}
Put your answer in the "answer" field.
Return the user's textual input for the current turn in the "originalQuestion" field.
`))

func renderPrompt(d promptData) (string, error) {
	var b strings.Builder
	if err := promptTmpl.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
