// Package message defines the canonical message types and utilities used across the codebase.
// All packages import from here to avoid circular dependencies.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a single turn in the conversation transcript.
// Tool results are their own RoleTool message carrying ToolCallID/Name,
// rather than a field embedded on a user message.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	Images     []ImageData `json:"images,omitempty"`
	Thinking   string      `json:"thinking,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"` // set on RoleTool messages
	Name       string      `json:"name,omitempty"`         // tool name, set on RoleTool messages
	IsError    bool        `json:"is_error,omitempty"`     // set on RoleTool messages
}

// ImageData represents image data for multimodal messages.
type ImageData struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	FileName  string `json:"file_name"`
	Size      int    `json:"size"`
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

// SystemMessage creates a system-role message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user message with optional images.
func UserMessage(text string, images []ImageData) Message {
	return Message{
		Role:    RoleUser,
		Content: text,
		Images:  images,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(text, thinking string, calls []ToolCall) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   text,
		Thinking:  thinking,
		ToolCalls: calls,
	}
}

// ToolMessage creates a tool-result message for a given tool call.
func ToolMessage(tc ToolCall, content string, isError bool) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: tc.ID,
		Name:       tc.Name,
		IsError:    isError,
	}
}

// ErrorToolMessage creates an error tool-result message for a tool call.
func ErrorToolMessage(tc ToolCall, content string) Message {
	return ToolMessage(tc, content, true)
}

// ParseToolInput deserializes JSON tool input into a params map.
func ParseToolInput(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// ToolCallIndex maps tool_call IDs to the assistant message that issued them,
// used to detect orphaned tool messages during compaction/trimming (a tool
// message whose issuing assistant message has been dropped).
func ToolCallIndex(msgs []Message) map[string]bool {
	ids := make(map[string]bool)
	for _, m := range msgs {
		if m.Role != RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			ids[tc.ID] = true
		}
	}
	return ids
}

// StripOrphanToolMessages removes RoleTool messages whose ToolCallID does not
// appear among the ToolCalls of any RoleAssistant message in the slice.
func StripOrphanToolMessages(msgs []Message) []Message {
	ids := ToolCallIndex(msgs)
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleTool && !ids[m.ToolCallID] {
			continue
		}
		out = append(out, m)
	}
	return out
}

// BuildConversationText converts messages to text for summarization.
func BuildConversationText(msgs []Message) string {
	var sb strings.Builder
	sb.WriteString("Please summarize this coding conversation:\n\n")

	for _, msg := range msgs {
		switch msg.Role {
		case RoleUser:
			fmt.Fprintf(&sb, "User: %s\n\n", msg.Content)

		case RoleTool:
			content := msg.Content
			if len(content) > 500 {
				content = content[:500] + "...[truncated]"
			}
			fmt.Fprintf(&sb, "[Tool Result: %s]\n%s\n\n", msg.Name, content)

		case RoleAssistant:
			if msg.Content != "" {
				fmt.Fprintf(&sb, "Assistant: %s\n\n", msg.Content)
			}
			if len(msg.ToolCalls) > 0 {
				for _, tc := range msg.ToolCalls {
					fmt.Fprintf(&sb, "[Tool Call: %s]\n", tc.Name)
				}
				sb.WriteString("\n")
			}
		}
	}

	return sb.String()
}

// NeedsCompaction reports whether token usage has crossed the trigger
// threshold (a fraction of the input limit, e.g. 0.8 for 80%).
func NeedsCompaction(inputTokens, inputLimit int, threshold float64) bool {
	if inputLimit == 0 || inputTokens == 0 {
		return false
	}
	if threshold <= 0 {
		threshold = 0.8
	}
	return float64(inputTokens) >= threshold*float64(inputLimit)
}

// CompletionResponse represents a completion response from an LLM provider.
type CompletionResponse struct {
	Content    string     `json:"content,omitempty"`
	Thinking   string     `json:"thinking,omitempty"` // Reasoning content for thinking models
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"` // "end_turn", "tool_use", "max_tokens"
	Usage      Usage      `json:"usage"`
}

// Usage contains token usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChunkType represents the type of a stream chunk.
type ChunkType string

const (
	ChunkTypeText      ChunkType = "text"
	ChunkTypeThinking  ChunkType = "thinking"
	ChunkTypeToolStart ChunkType = "tool_start"
	ChunkTypeToolInput ChunkType = "tool_input"
	ChunkTypeDone      ChunkType = "done"
	ChunkTypeError     ChunkType = "error"
)

// StreamChunk represents a chunk in a streaming response.
type StreamChunk struct {
	Type     ChunkType
	Text     string              // For text chunks
	ToolID   string              // For tool_start chunks
	ToolName string              // For tool_start chunks
	Response *CompletionResponse // For done chunks
	Error    error               // For error chunks
}
