package session

import (
	"time"

	"github.com/omniassist/server/codeblock"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// TitleSource records where a session's title came from. Only default and
// interim titles may be replaced by a generated one.
type TitleSource string

const (
	TitleDefault   TitleSource = "default"
	TitleInterim   TitleSource = "interim"
	TitleGenerated TitleSource = "generated"
	TitleUser      TitleSource = "user"
)

func (s TitleSource) replaceable() bool {
	return s == "" || s == TitleDefault || s == TitleInterim
}

type FileAttachment struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	DataURI string `json:"dataUri"`
}

// Attachments are the optional extras on a user message.
type Attachments struct {
	ImageDataURI string          `json:"imageDataUri,omitempty"`
	File         *FileAttachment `json:"file,omitempty"`
}

func (a Attachments) empty() bool {
	return a.ImageDataURI == "" && a.File == nil
}

type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// IsLoading marks the transient AI placeholder of an exchange in flight.
	IsLoading bool `json:"isLoading,omitempty"`
	// IsError marks an AI message that renders a failed exchange.
	IsError             bool              `json:"isError,omitempty"`
	Image               string            `json:"image,omitempty"`
	File                *FileAttachment   `json:"file,omitempty"`
	ExtractedCodeBlocks []codeblock.Block `json:"extractedCodeBlocks,omitempty"`
}

// Session is one persisted conversation thread.
type Session struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Messages       []Message   `json:"messages"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	IsPinned       bool        `json:"isPinned"`
	TitleSource    TitleSource `json:"titleSource,omitempty"`
	TitleRequested bool        `json:"titleRequested,omitempty"`
}

func (s *Session) pending() bool {
	for _, m := range s.Messages {
		if m.IsLoading {
			return true
		}
	}
	return false
}

func (s *Session) clone() Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		if m.File != nil {
			f := *m.File
			m.File = &f
		}
		if m.ExtractedCodeBlocks != nil {
			m.ExtractedCodeBlocks = append([]codeblock.Block(nil), m.ExtractedCodeBlocks...)
		}
		c.Messages[i] = m
	}
	return c
}

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// SessionChangeEvent describes one mutation. For deletes only Session.ID is set.
type SessionChangeEvent struct {
	Op      Operation
	Session Session
}

// OnChangeListener is called with the manager's lock held and must not block.
type OnChangeListener interface {
	OnSessionChange(event SessionChangeEvent)
}

// Resolution is what the caller needs after an AI message resolves.
type Resolution struct {
	// NeedsTitle is true exactly once per session: on the first completed
	// exchange while the title is still replaceable.
	NeedsTitle bool
	UserText   string
	AIText     string
}
