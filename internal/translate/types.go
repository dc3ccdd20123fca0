// Package translate converts Chat Completions requests into Responses API
// requests and Responses API event streams back into Chat Completions chunks.
package translate

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// ConnectTimeout bounds establishing the upstream connection. Once the
// stream has started no read timeout applies.
const ConnectTimeout = 60 * time.Second

// ========== Outbound (Responses API) ==========

// Outbound describes the upstream call built for one inbound request.
type Outbound struct {
	Method         string
	URL            string
	Header         http.Header
	Body           []byte
	Request        *ResponsesRequest
	Streaming      bool
	ConnectTimeout time.Duration
	// ReadTimeout is zero: streaming reads are bounded only by the transport.
	ReadTimeout time.Duration

	// EchoModel is the inbound model string, repeated on every chunk.
	EchoModel string
	// Effort is the reasoning effort derived from EchoModel.
	Effort string
}

// ResponsesRequest is the body sent to the Responses API.
type ResponsesRequest struct {
	Instructions    string          `json:"instructions,omitempty"`
	Input           []InputItem     `json:"input,omitempty"`
	Model           string          `json:"model"`
	Tools           json.RawMessage `json:"tools,omitempty"`
	ToolChoice      json.RawMessage `json:"tool_choice,omitempty"`
	TopP            json.RawMessage `json:"top_p,omitempty"`
	MaxOutputTokens json.RawMessage `json:"max_output_tokens,omitempty"`
	PromptCacheKey  json.RawMessage `json:"prompt_cache_key,omitempty"`
	Stream          bool            `json:"stream"`
	Reasoning       Reasoning       `json:"reasoning"`
	Store           bool            `json:"store"`
	StreamOptions   StreamOptions   `json:"stream_options"`
	Truncation      string          `json:"truncation,omitempty"`
}

// PromptText concatenates the instructions and all input text, in order.
// It is used for token estimates only.
func (r *ResponsesRequest) PromptText() string {
	parts := make([]string, 0, len(r.Input)+1)
	if r.Instructions != "" {
		parts = append(parts, r.Instructions)
	}
	for _, item := range r.Input {
		switch item.Kind() {
		case ItemTypeMessage:
			for _, c := range item.Content {
				parts = append(parts, c.Text)
			}
		case ItemTypeFunctionCall:
			parts = append(parts, string(item.Arguments))
		case ItemTypeFunctionCallOutput:
			if item.Output != nil {
				parts = append(parts, *item.Output)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// Reasoning configures the provider-side reasoning pass.
type Reasoning struct {
	Effort  string `json:"effort"`
	Summary string `json:"summary,omitempty"` // auto, detailed, concise
}

// StreamOptions controls provider stream framing.
type StreamOptions struct {
	IncludeObfuscation bool `json:"include_obfuscation"`
}

// Input item types.
const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
)

// InputItem is one entry of the Responses input list. Message items carry
// no type field; function items carry their type and call id.
type InputItem struct {
	Type      string          `json:"type,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   []ContentPart   `json:"content,omitempty"`
	Name      json.RawMessage `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	CallID    *string         `json:"call_id,omitempty"`
	Output    *string         `json:"output,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// Kind returns the item variant, treating an untyped item as a message.
func (i InputItem) Kind() string {
	if i.Type == "" {
		return ItemTypeMessage
	}
	return i.Type
}

// ContentPart is a text part of a message item.
type ContentPart struct {
	Type string `json:"type"` // "input_text", "output_text"
	Text string `json:"text"`
}

// FunctionTool is a function tool in the flattened Responses shape.
type FunctionTool struct {
	Type        string          `json:"type"`
	Name        json.RawMessage `json:"name"`
	Description json.RawMessage `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict"`
}

// ========== Downstream (Chat Completions) ==========

// Finish reasons emitted on the terminal chunk.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

// ChatCompletionChunk represents a streaming chunk sent to the client.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice represents a choice in a streaming chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta represents the delta content in a streaming chunk.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ToolCallChunk `json:"tool_calls,omitempty"`
}

// ToolCallChunk represents a partial tool call in streaming. ID and
// Function.Name are set, possibly empty, on the opening delta only.
type ToolCallChunk struct {
	Index    int               `json:"index"`
	ID       *string           `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function FunctionCallChunk `json:"function"`
}

// FunctionCallChunk represents a partial function call.
type FunctionCallChunk struct {
	Name      *string `json:"name,omitempty"`
	Arguments string  `json:"arguments"`
}
