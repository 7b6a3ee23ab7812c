package action

import "strings"

const schema = `{
  "type": "object",
  "properties": {
    "action": {"type": "string", "enum": ["openApplication", "searchFiles", "webSearch", "answerQuestion", "unknown"]},
    "applicationName": {"type": "string"},
    "searchQuery": {"type": "string"},
    "webSearchQuery": {"type": "string"},
    "question": {"type": "string"},
    "reason": {"type": "string"}
  },
  "required": ["action", "reason"]
}`

func buildPrompt(command string, apps []string) string {
	var b strings.Builder
	b.WriteString(`You are an AI voice command interpreter that helps users perform tasks on their computer.

You will receive a command from the user and must decide the best action to take.

Possible actions:
- openApplication: open an installed application. Set applicationName to one of the installed applications listed below.
- searchFiles: search for files on the computer. Set searchQuery.
- webSearch: look up broad or current topics on the web. Set webSearchQuery.
- answerQuestion: answer a direct factual or how-to question. Set question to the user's command, verbatim.
- unknown: use this when no other action fits.

Always explain your choice in reason.
`)

	if len(apps) > 0 {
		b.WriteString("\nInstalled applications:\n")
		for _, app := range apps {
			b.WriteString("- ")
			b.WriteString(app)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nCommand: ")
	b.WriteString(command)
	return b.String()
}
