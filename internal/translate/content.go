package translate

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// RenderContent flattens a Chat Completions message content value to text.
//
//   - null or absent renders as ""
//   - a string renders as itself
//   - a list renders as its parts joined by newlines: the text of text and
//     input_text parts, else a string "content" field, and scalar parts as
//     their literal text; other object parts and empty parts are dropped
//   - anything else renders as compact JSON
func RenderContent(c gjson.Result) string {
	switch {
	case !c.Exists(), c.Type == gjson.Null:
		return ""
	case c.Type == gjson.String:
		return c.String()
	case c.IsArray():
		var parts []string
		c.ForEach(func(_, it gjson.Result) bool {
			if text := renderPart(it); text != "" {
				parts = append(parts, text)
			}
			return true
		})
		return strings.Join(parts, "\n")
	default:
		return compactJSON(c.Raw)
	}
}

func renderPart(it gjson.Result) string {
	if !it.IsObject() {
		if it.Type == gjson.String {
			return it.String()
		}
		return it.Raw
	}

	switch it.Get("type").String() {
	case "text", "input_text":
		if text := it.Get("text"); text.Exists() {
			return text.String()
		}
	}
	if content := it.Get("content"); content.Type == gjson.String {
		return content.String()
	}
	return ""
}

func compactJSON(raw string) string {
	var b bytes.Buffer
	if err := json.Compact(&b, []byte(raw)); err != nil {
		return raw
	}
	return b.String()
}

// rawOrNull returns the raw JSON of r, or null when r is absent.
func rawOrNull(r gjson.Result) json.RawMessage {
	if !r.Exists() || r.Raw == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(r.Raw)
}

// truthy mirrors the loose "present and not empty" test clients rely on
// for optional fields: null, false, 0, "" and empty containers are falsy.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return r.Float() != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		if r.IsArray() {
			return len(r.Array()) > 0
		}
		return len(r.Map()) > 0
	default:
		return true
	}
}
