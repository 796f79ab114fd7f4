// Package v1 defines the Parley chat wire contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeNewUser announces a display name for this connection (client -> server).
	TypeNewUser = "new-user"
	// TypeSelfID returns the connection's own public id after registration (server -> client).
	TypeSelfID = "self-id"
	// TypeUserList broadcasts the live roster to all connections (server -> all clients).
	TypeUserList = "user-list"

	// TypePrivateMessage requests delivery of a message to one identity (client -> server).
	TypePrivateMessage = "private-message"
	// TypeReceivePrivateMessage delivers a message to the target connection (server -> client).
	TypeReceivePrivateMessage = "receive-private-message"

	// TypeFetchChatHistory requests the shared-channel history with one identity (client -> server).
	TypeFetchChatHistory = "fetch-chat-history"
	// TypeChatHistory returns the history payload, or an error with an empty list (server -> client).
	TypeChatHistory = "chat-history"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeNewUser,
		TypeSelfID,
		TypeUserList,
		TypePrivateMessage,
		TypeReceivePrivateMessage,
		TypeFetchChatHistory,
		TypeChatHistory,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// NewUserPayload announces the self-asserted display name for this connection.
type NewUserPayload struct {
	DisplayName string `json:"displayName"`
}

// SelfIDPayload carries the requester's own stable public id.
type SelfIDPayload struct {
	PublicID string `json:"publicId"`
}

// UserListPayload maps public id -> display name for all live sessions.
type UserListPayload map[string]string

// PrivateMessagePayload requests sending a message to one target identity.
type PrivateMessagePayload struct {
	TargetPublicID string `json:"targetPublicId"`
	Content        string `json:"content"`
}

// ReceivePrivateMessagePayload delivers a message to the target's live connection.
type ReceivePrivateMessagePayload struct {
	SenderPublicID    string `json:"senderPublicId"`
	SenderDisplayName string `json:"senderDisplayName"`
	Content           string `json:"content"`
}

// FetchChatHistoryPayload requests the shared-channel history with one identity.
type FetchChatHistoryPayload struct {
	TargetPublicID string `json:"targetPublicId"`
}

// HistoryMessage is one annotated message in a chat-history reply.
// IsSelf is computed from the requester's viewpoint.
type HistoryMessage struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	IsSelf     bool      `json:"isSelf"`
}

// ChatHistoryPayload returns the full ordered history, or an explicit error
// with an empty message list. Messages is never null on the wire.
type ChatHistoryPayload struct {
	Error    string           `json:"error,omitempty"`
	Messages []HistoryMessage `json:"messages"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
