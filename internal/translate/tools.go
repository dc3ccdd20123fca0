package translate

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// transformTools flattens Chat Completions function tools into the
// Responses shape. Entries of any other kind are passed through unchanged,
// as is a tools value that is not a list.
func transformTools(tools gjson.Result) json.RawMessage {
	if !tools.IsArray() {
		return json.RawMessage(tools.Raw)
	}

	out := make([]json.RawMessage, 0, len(tools.Array()))
	tools.ForEach(func(_, t gjson.Result) bool {
		fn := t.Get("function")
		if !t.IsObject() || t.Get("type").String() != "function" || !fn.IsObject() {
			out = append(out, json.RawMessage(t.Raw))
			return true
		}

		tool := FunctionTool{
			Type: "function",
			Name: rawOrNull(fn.Get("name")),
		}
		if d := fn.Get("description"); d.Exists() {
			tool.Description = json.RawMessage(d.Raw)
		}
		if p := fn.Get("parameters"); p.Exists() {
			tool.Parameters = json.RawMessage(p.Raw)
		}

		encoded, err := json.Marshal(tool)
		if err != nil {
			out = append(out, json.RawMessage(t.Raw))
			return true
		}
		out = append(out, encoded)
		return true
	})

	encoded, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage(tools.Raw)
	}
	return encoded
}

// transformToolChoice maps {"type":"function","function":{"name":N}} to
// {"type":"function","name":N}. Every other value passes through.
func transformToolChoice(choice gjson.Result) json.RawMessage {
	if choice.IsObject() && choice.Get("type").String() == "function" {
		if name := choice.Get("function.name"); truthy(name) {
			encoded, err := json.Marshal(struct {
				Type string          `json:"type"`
				Name json.RawMessage `json:"name"`
			}{Type: "function", Name: json.RawMessage(name.Raw)})
			if err == nil {
				return encoded
			}
		}
	}
	return json.RawMessage(choice.Raw)
}
