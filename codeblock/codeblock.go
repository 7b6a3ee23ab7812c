// Package codeblock pulls fenced code regions out of generated markdown.
package codeblock

import (
	"regexp"
	"strings"
)

const DefaultLanguage = "plaintext"

type Block struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// fence matches ```lang info\n...```. The language is the first word of the
// optional info string; the rest of the opening line is ignored.
var fence = regexp.MustCompile("(?s)```([^\\s`]*)[^\\n`]*\\n(.*?)```")

// Extract returns every fenced block in text, in order. It never returns nil.
func Extract(text string) []Block {
	blocks := []Block{}
	for _, m := range fence.FindAllStringSubmatch(text, -1) {
		lang := m[1]
		if lang == "" {
			lang = DefaultLanguage
		}
		blocks = append(blocks, Block{Language: lang, Code: trimBlankLines(m[2])})
	}
	return blocks
}

// trimBlankLines drops whitespace-only lines at either end, leaving
// indentation on the remaining lines untouched.
func trimBlankLines(code string) string {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")

	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
