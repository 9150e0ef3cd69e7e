package models

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role indicates the message author type. Only user and assistant turns are
// modeled here; system prompts and tool acknowledgements live inside a
// message's content parts, not as a separate role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in an Interaction's ordered log. Its identity is a
// ULID assigned at construction, so messages sort lexically by creation
// order without a separate sequence counter.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   []ContentPart `json:"content"`
	CreatedAt time.Time     `json:"created_at"`

	// ProviderResponse is present on assistant messages produced by a
	// speakWith call; it captures the vendor response snapshot that
	// generated this message's content.
	ProviderResponse *ProviderResponse `json:"provider_response,omitempty"`

	// StatsSnapshot captures the interaction's token-usage triple at the
	// moment this message was appended, for audit/debugging.
	StatsSnapshot *TokenUsage `json:"stats_snapshot,omitempty"`
}

// NewMessageID returns a new ULID-formatted message identity.
func NewMessageID() string {
	return ulid.Make().String()
}

// ContentPartType tags the variant carried by a ContentPart.
type ContentPartType string

const (
	ContentText              ContentPartType = "text"
	ContentImage             ContentPartType = "image"
	ContentThinking          ContentPartType = "thinking"
	ContentRedactedThinking  ContentPartType = "redacted_thinking"
	ContentToolUse           ContentPartType = "tool_use"
	ContentToolResult        ContentPartType = "tool_result"
)

// ContentPart is a closed sum type over the kinds of content a message can
// carry. Exactly one of the typed fields is populated, selected by Type;
// adapters are responsible for translating to/from the vendor's own shape
// at the boundary rather than this type knowing about any vendor.
type ContentPart struct {
	Type ContentPartType `json:"type"`

	// text
	Text      string     `json:"text,omitempty"`
	Citations []Citation `json:"citations,omitempty"`

	// image
	ImageData     string `json:"image_data,omitempty"`
	ImageMediaType string `json:"image_media_type,omitempty"`
	ImageEncoding  string `json:"image_encoding,omitempty"`

	// thinking
	ThinkingText      string `json:"thinking_text,omitempty"`
	ThinkingSignature string `json:"thinking_signature,omitempty"`

	// redacted_thinking
	RedactedData string `json:"redacted_data,omitempty"`

	// tool_use
	ToolUseID    string          `json:"tool_use_id,omitempty"`
	ToolName     string          `json:"tool_name,omitempty"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`

	// tool_result
	ToolResultForID string        `json:"tool_result_for_id,omitempty"`
	ToolResultParts []ContentPart `json:"tool_result_parts,omitempty"`
	IsError         bool          `json:"is_error,omitempty"`
}

// Citation attaches source attribution to a text content part.
type Citation struct {
	Source string `json:"source"`
	Text   string `json:"text,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentText, Text: text}
}

// ImagePart builds an image content part (base64-encoded payload).
func ImagePart(data, mediaType string) ContentPart {
	return ContentPart{Type: ContentImage, ImageData: data, ImageMediaType: mediaType, ImageEncoding: "base64"}
}

// ThinkingPart builds a thinking content part.
func ThinkingPart(text, signature string) ContentPart {
	return ContentPart{Type: ContentThinking, ThinkingText: text, ThinkingSignature: signature}
}

// ToolUsePart builds a tool_use content part.
func ToolUsePart(id, name string, input json.RawMessage) ContentPart {
	return ContentPart{Type: ContentToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultPart builds a tool_result content part.
func ToolResultPart(toolUseID string, parts []ContentPart, isError bool) ContentPart {
	return ContentPart{Type: ContentToolResult, ToolResultForID: toolUseID, ToolResultParts: parts, IsError: isError}
}

// IsTextOnly reports whether every part in parts is a text part.
func IsTextOnly(parts []ContentPart) bool {
	for _, p := range parts {
		if p.Type != ContentText {
			return false
		}
	}
	return true
}

// ConcatText concatenates the text of every text-typed part, in order.
func ConcatText(parts []ContentPart) string {
	var out string
	for _, p := range parts {
		if p.Type == ContentText {
			out += p.Text
		}
	}
	return out
}
