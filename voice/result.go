package voice

import (
	"encoding/json"

	"github.com/omniassist/server/action"
	"github.com/omniassist/server/desktop"
)

type ResultType string

const (
	TypeInterpretedAction ResultType = "interpretedAction"
	TypeWebSummary        ResultType = "webSummary"
	TypeAnsweredQuestion  ResultType = "answeredQuestion"
	TypeFileList          ResultType = "fileList"
	TypePlainMessage      ResultType = "plainMessage"
)

// Result is one of InterpretedAction, WebSummary, AnsweredQuestion, FileList
// or PlainMessage. Each marshals with a "type" discriminator.
type Result interface {
	Type() ResultType
	isResult()
}

// InterpretedAction reports an openApplication or unknown decision.
type InterpretedAction struct {
	action.Interpretation
	// Launched is true once the application open was simulated.
	Launched bool `json:"launched"`
}

type WebSummary struct {
	Query   string `json:"query"`
	Summary string `json:"summary"`
}

type AnsweredQuestion struct {
	Answer           string `json:"answer"`
	OriginalQuestion string `json:"originalQuestion"`
}

type FileList struct {
	Query string             `json:"query"`
	Files []desktop.FileInfo `json:"files"`
}

type PlainMessage struct {
	Text    string `json:"text"`
	IsError bool   `json:"isError"`
}

func (InterpretedAction) Type() ResultType { return TypeInterpretedAction }
func (WebSummary) Type() ResultType        { return TypeWebSummary }
func (AnsweredQuestion) Type() ResultType  { return TypeAnsweredQuestion }
func (FileList) Type() ResultType          { return TypeFileList }
func (PlainMessage) Type() ResultType      { return TypePlainMessage }

func (InterpretedAction) isResult() {}
func (WebSummary) isResult()        {}
func (AnsweredQuestion) isResult()  {}
func (FileList) isResult()          {}
func (PlainMessage) isResult()      {}

func (r InterpretedAction) MarshalJSON() ([]byte, error) {
	type alias InterpretedAction
	return json.Marshal(struct {
		Type ResultType `json:"type"`
		alias
	}{r.Type(), alias(r)})
}

func (r WebSummary) MarshalJSON() ([]byte, error) {
	type alias WebSummary
	return json.Marshal(struct {
		Type ResultType `json:"type"`
		alias
	}{r.Type(), alias(r)})
}

func (r AnsweredQuestion) MarshalJSON() ([]byte, error) {
	type alias AnsweredQuestion
	return json.Marshal(struct {
		Type ResultType `json:"type"`
		alias
	}{r.Type(), alias(r)})
}

func (r FileList) MarshalJSON() ([]byte, error) {
	type alias FileList
	return json.Marshal(struct {
		Type ResultType `json:"type"`
		alias
	}{r.Type(), alias(r)})
}

func (r PlainMessage) MarshalJSON() ([]byte, error) {
	type alias PlainMessage
	return json.Marshal(struct {
		Type ResultType `json:"type"`
		alias
	}{r.Type(), alias(r)})
}
