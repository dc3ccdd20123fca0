// Package redact masks secrets and bulky fields before they reach logs or
// error responses.
package redact

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Mask replaces values too short to show partially.
const Mask = "***"

const (
	ellipsis = "…"
	// InstructionsPrefix is how much of the instructions a diagnostic keeps.
	InstructionsPrefix = 40
)

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"api-key":             true,
	"api_key":             true,
	"x-azure-openai-key":  true,
	"azure-openai-key":    true,
}

// Value masks s, keeping its first and last four characters when it is
// longer than eight.
func Value(s string) string {
	if s == "" {
		return s
	}
	if utf8.RuneCountInString(s) <= 8 {
		return Mask
	}
	r := []rune(s)
	return string(r[:4]) + ellipsis + string(r[len(r)-4:])
}

// Headers returns a copy of h with credentials masked. Besides the known
// credential headers, bearer tokens and sk- keys are masked wherever they
// appear.
func Headers(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		lower := strings.ToLower(k)
		masked := make([]string, len(vs))
		for i, v := range vs {
			if sensitiveHeaders[lower] || strings.Contains(lower, "api_key") ||
				strings.HasPrefix(v, "Bearer ") || strings.HasPrefix(v, "sk-") {
				v = Value(v)
			}
			masked[i] = v
		}
		out[k] = masked
	}
	return out
}

// Endpoint hides the host of rawURL, which identifies the provider
// resource, while keeping the path and query.
func Endpoint(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Mask
	}
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(Mask)
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String()
}

// OutboundBody shrinks a Responses request body for display: instructions
// are cut to a short prefix, tools and input collapse to counts and the
// prompt cache key is masked. Bodies that are not JSON are returned as is.
func OutboundBody(body []byte) []byte {
	if !gjson.ValidBytes(body) {
		return body
	}
	out := body

	if v := gjson.GetBytes(out, "instructions"); v.Type == gjson.String {
		out = setBytes(out, "instructions", truncate(v.String(), InstructionsPrefix))
	}
	if v := gjson.GetBytes(out, "tools"); v.IsArray() {
		out = setBytes(out, "tools", fmt.Sprintf("<%d tools>", len(v.Array())))
	}
	if v := gjson.GetBytes(out, "input"); v.IsArray() {
		out = setBytes(out, "input", fmt.Sprintf("<%d items>", len(v.Array())))
	}
	if v := gjson.GetBytes(out, "prompt_cache_key"); v.Type == gjson.String {
		out = setBytes(out, "prompt_cache_key", Value(v.String()))
	}
	return out
}

// Diagnostic builds the JSON error body returned when the provider rejects
// a call. endpoint and outboundBody are redacted here; upstreamBody is
// embedded as JSON when it is JSON and as a string otherwise.
func Diagnostic(status int, endpoint string, upstreamBody, outboundBody []byte) []byte {
	out := []byte(`{"error":{}}`)
	out = setBytes(out, "error.message", fmt.Sprintf("Upstream request failed with status %d", status))
	out = setBytes(out, "error.type", "upstream_error")
	out = setBytes(out, "error.status", status)
	out = setBytes(out, "error.endpoint", Endpoint(endpoint))
	out = setRawOrString(out, "error.upstream_response", upstreamBody)
	out = setRawOrString(out, "error.request", OutboundBody(outboundBody))
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + ellipsis
}

func setRawOrString(doc []byte, path string, value []byte) []byte {
	if len(value) > 0 && gjson.ValidBytes(value) {
		if out, err := sjson.SetRawBytes(doc, path, value); err == nil {
			return out
		}
	}
	return setBytes(doc, path, string(value))
}

func setBytes(doc []byte, path string, value any) []byte {
	out, err := sjson.SetBytes(doc, path, value)
	if err != nil {
		return doc
	}
	return out
}
