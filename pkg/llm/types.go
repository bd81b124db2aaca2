package llm

import (
	"encoding/json"
	"strings"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates message content parts.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one piece of message content.
type Part struct {
	Type      PartType `json:"type"`
	Text      string   `json:"text,omitempty"`
	Image     []byte   `json:"image,omitempty"`
	MediaType string   `json:"mediaType,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart returns an image part. An empty media type means PNG.
func ImagePart(data []byte, mediaType string) Part {
	if mediaType == "" {
		mediaType = "image/png"
	}
	return Part{Type: PartImage, Image: data, MediaType: mediaType}
}

// Message is one turn of a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Parts      []Part     `json:"parts,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	// ContinuationToken is opaque backend state replayed verbatim with this
	// turn on later requests.
	ContinuationToken json.RawMessage `json:"continuationToken,omitempty"`
}

// NewTextMessage returns a message with a single text part.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart(text)}}
}

// NewToolMessage returns a tool result for the call with the given id.
func NewToolMessage(toolCallID, text string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Parts: []Part{TextPart(text)}}
}

// Text concatenates the text parts of m.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// HasImage reports whether m carries image content.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Type == PartImage {
			return true
		}
	}
	return false
}

// ToolCall is a model request to run a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	// ContinuationToken holds backend blocks correlated to this call.
	ContinuationToken json.RawMessage `json:"continuationToken,omitempty"`
}

// ToolSchema describes a tool offered to the model.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is one model turn.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSchema
	MaxTokens   int
	Temperature float64
	// ReasoningBudget enables extended reasoning with this many tokens.
	ReasoningBudget int
}

// EventKind discriminates stream events.
type EventKind int

const (
	EventReasoning EventKind = iota
	EventToolCall
	EventFinal
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReasoning:
		return "reasoning"
	case EventToolCall:
		return "tool_call"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one canonical stream event.
type Event struct {
	Kind EventKind
	// Text is the reasoning text or the final message text.
	Text     string
	ToolCall *ToolCall
	// ContinuationToken and ShouldContinue are set on EventFinal.
	ContinuationToken json.RawMessage
	ShouldContinue    bool
	// Err is set on EventError.
	Err error
}
