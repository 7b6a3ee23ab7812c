// Package rpc defines JSON-RPC 2.0 wire format types for WebSocket communication.
// These types represent the params and result structures for all RPC methods.
package rpc

import (
	"github.com/omniassist/server/session"
)

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
}

// SessionParams is the params for session.get, session.select, session.delete,
// session.toggle_pin and chat.attach.
type SessionParams struct {
	SessionID string `json:"session_id"`
}

type SessionRenameParams struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

type SessionListUnsubscribeParams struct {
	ID string `json:"id"`
}

type MessageParams struct {
	SessionID    string                  `json:"session_id"`
	Content      string                  `json:"content"`
	ImageDataURI string                  `json:"image_data_uri,omitempty"`
	File         *session.FileAttachment `json:"file,omitempty"`
}

type CommandParams struct {
	Command string `json:"command"`
}

// Server → Client

type SessionListResult struct {
	Sessions []session.Session `json:"sessions"`
	ActiveID string            `json:"active_id"`
}

type SessionListSubscribeResult struct {
	ID       string            `json:"id"`
	Sessions []session.Session `json:"sessions"`
}

type SessionCreateResult struct {
	Session session.Session `json:"session"`
}

type ActiveResult struct {
	ActiveID string `json:"active_id"`
}

type TogglePinResult struct {
	IsPinned bool `json:"is_pinned"`
}

type AttachResult struct {
	// Pending reports whether a response is still being produced.
	Pending bool `json:"pending"`
}

type MessageResult struct {
	UserMessageID string `json:"user_message_id"`
	MessageID     string `json:"message_id"`
}

// MessageNotifyParams is the params for chat.user_message, chat.placeholder,
// chat.resolved and chat.error notifications.
type MessageNotifyParams struct {
	SessionID string          `json:"session_id"`
	Message   session.Message `json:"message"`
}

type TitleChangedParams struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}
