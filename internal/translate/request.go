package translate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/chat-responses-gateway/internal/callid"
	"github.com/tjfontaine/chat-responses-gateway/internal/config"
	"github.com/tjfontaine/chat-responses-gateway/internal/domain"
)

// APIKeyHeader carries the provider key on upstream requests.
const APIKeyHeader = "api-key"

// droppedHeaders are never forwarded upstream. Host and Authorization
// belong to the inbound hop; the rest are managed by the HTTP transport.
var droppedHeaders = []string{
	"Host",
	"Authorization",
	"Content-Length",
	"Accept-Encoding",
	"Connection",
	"Keep-Alive",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// efforts are the reasoning efforts a model name may select.
var efforts = map[string]bool{"high": true, "medium": true, "low": true}

// RequestTranslator builds upstream Responses API calls from inbound Chat
// Completions requests. It holds only read-only configuration and is safe
// for concurrent use.
type RequestTranslator struct {
	cfg config.AzureConfig
}

// NewRequestTranslator creates a translator for the given deployment.
func NewRequestTranslator(cfg config.AzureConfig) *RequestTranslator {
	return &RequestTranslator{cfg: cfg}
}

// Translate converts r, whose body has already been read into body, into an
// Outbound call. Requests that must be answered without contacting the
// provider return a *domain.APIError.
func (t *RequestTranslator) Translate(r *http.Request, body []byte) (*Outbound, error) {
	if !strings.EqualFold(r.Method, http.MethodPost) {
		return nil, domain.ErrMethodNotAllowed("Only POST supported for Azure backend")
	}

	payload := parsePayload(body)
	echoModel := payload.Get("model").String()

	effort, err := ReasoningEffort(echoModel)
	if err != nil {
		return nil, err
	}

	req := &ResponsesRequest{
		Model:  t.cfg.Deployment,
		Stream: true,
		Reasoning: Reasoning{
			Effort:  effort,
			Summary: summaryLevel(t.cfg.SummaryLevel),
		},
		Store:         false,
		StreamOptions: StreamOptions{IncludeObfuscation: false},
		Truncation:    t.cfg.Truncation,
	}

	if messages := payload.Get("messages"); messages.IsArray() {
		req.Instructions, req.Input = convertMessages(messages)
	}

	if tools := payload.Get("tools"); truthy(tools) {
		req.Tools = transformTools(tools)
	}
	if choice := payload.Get("tool_choice"); choice.Exists() && choice.Type != gjson.Null {
		req.ToolChoice = transformToolChoice(choice)
	}
	if topP := payload.Get("top_p"); topP.Exists() && topP.Type != gjson.Null {
		req.TopP = json.RawMessage(topP.Raw)
	}
	if maxTokens := firstTruthy(payload, "max_tokens", "max_output_tokens"); maxTokens.Exists() {
		req.MaxOutputTokens = json.RawMessage(maxTokens.Raw)
	}
	if cacheKey := firstTruthy(payload, "user", "prompt_cache_key"); cacheKey.Exists() {
		req.PromptCacheKey = json.RawMessage(cacheKey.Raw)
	}

	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal responses request: %w", err)
	}

	return &Outbound{
		Method:         http.MethodPost,
		URL:            t.cfg.ResponsesURL(),
		Header:         t.upstreamHeaders(r.Header),
		Body:           encoded,
		Request:        req,
		Streaming:      true,
		ConnectTimeout: ConnectTimeout,
		EchoModel:      echoModel,
		Effort:         effort,
	}, nil
}

// ReasoningEffort derives the effort from a model name of the form gpt-<effort>.
func ReasoningEffort(model string) (string, error) {
	effort := strings.ToLower(strings.TrimPrefix(model, "gpt-"))
	if !efforts[effort] {
		return "", domain.ErrInvalidRequest("Model name must be either gpt-high, gpt-medium, or gpt-low")
	}
	return effort, nil
}

// parsePayload returns the request body as a JSON object. Anything that is
// not a JSON object is treated as an empty object.
func parsePayload(body []byte) gjson.Result {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return gjson.Parse("{}")
	}
	payload := gjson.ParseBytes(body)
	if !payload.IsObject() {
		return gjson.Parse("{}")
	}
	return payload
}

// firstTruthy returns the first of keys whose value is truthy, or an empty
// Result. When both max_tokens and max_output_tokens are sent the first wins.
func firstTruthy(payload gjson.Result, keys ...string) gjson.Result {
	for _, key := range keys {
		if v := payload.Get(gjson.Escape(key)); truthy(v) {
			return v
		}
	}
	return gjson.Result{}
}

func summaryLevel(level string) string {
	switch level {
	case "auto", "detailed", "concise":
		return level
	default:
		return ""
	}
}

func (t *RequestTranslator) upstreamHeaders(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		out = make(http.Header)
	}
	for _, h := range droppedHeaders {
		out.Del(h)
	}
	out.Set("Content-Type", "application/json")
	out.Set(APIKeyHeader, t.cfg.APIKey)
	return out
}

// convertMessages splits chat messages into the instructions string and the
// ordered input items. Long tool call ids are normalized through a map
// scoped to this call so a function_call and its output stay paired.
func convertMessages(messages gjson.Result) (string, []InputItem) {
	ids := callid.NewMap()
	var instructions []string
	var items []InputItem

	messages.ForEach(func(_, m gjson.Result) bool {
		if !m.IsObject() {
			return true
		}

		role := m.Get("role").String()
		content := m.Get("content")

		switch role {
		case "system", "developer":
			if text := RenderContent(content); text != "" {
				instructions = append(instructions, text)
			}
		case "tool":
			callID := ids.Normalize(m.Get("tool_call_id").String())
			output := RenderContent(content)
			items = append(items, InputItem{
				Type:   ItemTypeFunctionCallOutput,
				CallID: &callID,
				Output: &output,
				Status: "completed",
			})
		default:
			partType := "output_text"
			if role == "user" {
				partType = "input_text"
			}
			itemRole := role
			if itemRole == "" {
				itemRole = "user"
			}
			items = append(items, InputItem{
				Role:    itemRole,
				Content: []ContentPart{{Type: partType, Text: RenderContent(content)}},
			})

			if toolCalls := m.Get("tool_calls"); toolCalls.IsArray() {
				toolCalls.ForEach(func(_, tc gjson.Result) bool {
					fn := tc.Get("function")
					callID := ids.Normalize(tc.Get("id").String())
					items = append(items, InputItem{
						Type:      ItemTypeFunctionCall,
						Name:      rawOrNull(fn.Get("name")),
						Arguments: rawOrNull(fn.Get("arguments")),
						CallID:    &callID,
					})
					return true
				})
			}
		}
		return true
	})

	return strings.Join(instructions, "\n\n"), items
}
