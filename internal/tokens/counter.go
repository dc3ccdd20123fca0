// Package tokens estimates prompt sizes with tiktoken encodings.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/chat-responses-gateway/internal/translate"
)

// Per-item overheads, following OpenAI's chat accounting.
const (
	tokensPerMessage  = 3
	tokensPerRole     = 1
	tokensPerToolCall = 3
	tokensPerResult   = 2
	assistantPriming  = 3
)

// Counter counts tokens for the deployment's model family. It is safe for
// concurrent use.
type Counter struct {
	// codecCache caches tokenizer codecs by encoding name
	codecCache map[tokenizer.Encoding]tokenizer.Codec
	cacheMu    sync.RWMutex
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// getCodec returns the tokenizer codec for a model.
func (c *Counter) getCodec(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(mapModelName(model)); err == nil {
		return codec, nil
	}

	// Fall back to encoding based on model prefix
	encoding := modelToEncoding(model)

	c.cacheMu.RLock()
	if cached, ok := c.codecCache[encoding]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()

	return codec, nil
}

// mapModelName maps a deployment name to tokenizer.Model.
func mapModelName(model string) tokenizer.Model {
	model = strings.ToLower(model)

	switch {
	case model == "gpt-5-mini" || strings.HasPrefix(model, "gpt-5-mini-"):
		return tokenizer.GPT5Mini
	case model == "gpt-5-nano" || strings.HasPrefix(model, "gpt-5-nano-"):
		return tokenizer.GPT5Nano
	// gpt-5, gpt-5.1, gpt-5-codex and dated snapshots
	case strings.HasPrefix(model, "gpt-5"):
		return tokenizer.GPT5
	case strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.GPT41
	case strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.GPT4o
	case model == "o3" || strings.HasPrefix(model, "o3-"):
		if strings.Contains(model, "mini") {
			return tokenizer.O3Mini
		}
		return tokenizer.O3
	case strings.HasPrefix(model, "o4-mini"):
		return tokenizer.O4Mini
	default:
		return tokenizer.Model(model)
	}
}

// modelToEncoding maps model names to encodings for fallback. Responses
// API models all use o200k_base; only the GPT-4 and 3.5 families differ.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// CountRequest estimates the input tokens of a Responses request sent to
// model. Tool definitions are not included.
func (c *Counter) CountRequest(model string, req *translate.ResponsesRequest) (int, error) {
	codec, err := c.getCodec(model)
	if err != nil {
		return 0, err
	}

	count := func(s string) int {
		ids, _, _ := codec.Encode(s)
		return len(ids)
	}

	total := 0
	if req.Instructions != "" {
		total += tokensPerMessage + tokensPerRole + count(req.Instructions)
	}

	for _, item := range req.Input {
		switch item.Kind() {
		case translate.ItemTypeMessage:
			total += tokensPerMessage + tokensPerRole
			for _, part := range item.Content {
				total += count(part.Text)
			}
		case translate.ItemTypeFunctionCall:
			total += count(string(item.Name)) + count(string(item.Arguments)) + tokensPerToolCall
		case translate.ItemTypeFunctionCallOutput:
			if item.Output != nil {
				total += count(*item.Output)
			}
			total += tokensPerResult
		}
	}

	return total + assistantPriming, nil
}

// CountText counts tokens for a plain text string.
func (c *Counter) CountText(model, text string) (int, error) {
	codec, err := c.getCodec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
