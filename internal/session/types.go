package session

import (
	"time"

	"github.com/agentrt/core/internal/message"
)

// EntryType identifies the kind of line recorded in a session's append-only
// JSONL transcript.
type EntryType string

const (
	EntryMeta            EntryType = "meta" // first line: SessionMetadata snapshot
	EntryUser            EntryType = "user"
	EntryAssistant       EntryType = "assistant"
	EntryToolUse         EntryType = "tool_use"
	EntryToolResult      EntryType = "tool_result"
	EntryCompactBoundary EntryType = "compact_boundary"
	EntryCompactSummary  EntryType = "compact_summary"
)

// entryLine is one physical line of a session's .jsonl file. Fields are a
// superset across entry types; only the ones relevant to Type are populated.
// Unknown fields are ignored on load, per the external interface's
// stability guarantee.
type entryLine struct {
	Type      EntryType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Meta      SessionMetadata `json:"meta,omitempty"`
	Message   StoredMessage   `json:"message,omitempty"`

	CompactReason    string `json:"compactReason,omitempty"`
	Summary          string `json:"summary,omitempty"`
	IsCompactSummary bool   `json:"isCompactSummary,omitempty"`
	Success          bool   `json:"success,omitempty"`
}

// SessionMetadata summarizes a session without loading its full transcript.
type SessionMetadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Cwd          string    `json:"cwd"`
	MessageCount int       `json:"messageCount"`
}

// StoredMessage is the on-disk shape of one conversation message. It mirrors
// message.Message's tagged-variant fields (no embedded ToolResult pointer).
type StoredMessage struct {
	Role       string               `json:"role"`
	Content    string                `json:"content,omitempty"`
	Thinking   string                `json:"thinking,omitempty"`
	Images     []message.ImageData  `json:"images,omitempty"`
	ToolCalls  []message.ToolCall   `json:"toolCalls,omitempty"`
	ToolCallID string               `json:"toolCallId,omitempty"`
	ToolName   string               `json:"toolName,omitempty"`
	IsError    bool                 `json:"isError,omitempty"`
}

// Session is a complete in-memory session: metadata plus its reconstructed
// message list (already resume-resolved: messages before the latest
// compact_boundary are dropped, per §4.6 resume semantics).
type Session struct {
	Metadata SessionMetadata `json:"metadata"`
	Messages []StoredMessage `json:"messages"`
}

// ToMessage converts a StoredMessage back into a message.Message.
func (sm StoredMessage) ToMessage() message.Message {
	return message.Message{
		Role:       message.Role(sm.Role),
		Content:    sm.Content,
		Thinking:   sm.Thinking,
		Images:     sm.Images,
		ToolCalls:  sm.ToolCalls,
		ToolCallID: sm.ToolCallID,
		Name:       sm.ToolName,
		IsError:    sm.IsError,
	}
}

// FromMessage converts a message.Message into its on-disk StoredMessage shape.
func FromMessage(m message.Message) StoredMessage {
	return StoredMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		Thinking:   m.Thinking,
		Images:     m.Images,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		ToolName:   m.Name,
		IsError:    m.IsError,
	}
}
