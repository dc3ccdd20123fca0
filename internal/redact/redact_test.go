package redact

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "short", want: "***"},
		{in: "12345678", want: "***"},
		{in: "sk-abcdefghijkl", want: "sk-a…ijkl"},
		{in: "Bearer secret-token", want: "Bear…oken"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Value(tt.in), tt.in)
	}
}

func TestHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer shared-secret-value")
	h.Set("Api-Key", "azure-key-0123456789")
	h.Set("X-Forwarded", "sk-live-0123456789")
	h.Set("Content-Type", "application/json")

	got := Headers(h)

	assert.Equal(t, "Bear…alue", got.Get("Authorization"))
	assert.Equal(t, "azur…6789", got.Get("Api-Key"))
	assert.Equal(t, "sk-l…6789", got.Get("X-Forwarded"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "Bearer shared-secret-value", h.Get("Authorization"), "input must not be modified")
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t,
		"https://***/openai/responses?api-version=2025-04-01-preview",
		Endpoint("https://contoso.openai.azure.com/openai/responses?api-version=2025-04-01-preview"))
	assert.Equal(t, "***", Endpoint("not a url"))
}

func TestOutboundBody(t *testing.T) {
	body := []byte(`{
		"instructions": "` + strings.Repeat("a", 50) + `",
		"input": [{"role":"user"},{"role":"assistant"},{"type":"function_call"}],
		"tools": [{"type":"function"}],
		"prompt_cache_key": "user-1234567890",
		"model": "gpt-5"
	}`)

	got := OutboundBody(body)
	require.True(t, gjson.ValidBytes(got))

	assert.Equal(t, strings.Repeat("a", 40)+"…", gjson.GetBytes(got, "instructions").String())
	assert.Equal(t, "<3 items>", gjson.GetBytes(got, "input").String())
	assert.Equal(t, "<1 tools>", gjson.GetBytes(got, "tools").String())
	assert.Equal(t, "user…7890", gjson.GetBytes(got, "prompt_cache_key").String())
	assert.Equal(t, "gpt-5", gjson.GetBytes(got, "model").String())
}

func TestOutboundBody_ShortAndInvalid(t *testing.T) {
	got := OutboundBody([]byte(`{"instructions":"Be terse","prompt_cache_key":"u1"}`))
	assert.Equal(t, "Be terse", gjson.GetBytes(got, "instructions").String())
	assert.Equal(t, "***", gjson.GetBytes(got, "prompt_cache_key").String())

	assert.Equal(t, []byte("plain"), OutboundBody([]byte("plain")))
}

func TestDiagnostic(t *testing.T) {
	upstream := []byte(`{"error":{"message":"bad effort","code":"unsupported_value"}}`)
	outbound := []byte(`{"input":[{"role":"user"}],"model":"gpt-5"}`)

	got := Diagnostic(http.StatusBadRequest, "https://contoso.openai.azure.com/openai/responses?api-version=v", upstream, outbound)
	require.True(t, gjson.ValidBytes(got), string(got))

	assert.Equal(t, int64(400), gjson.GetBytes(got, "error.status").Int())
	assert.Equal(t, "upstream_error", gjson.GetBytes(got, "error.type").String())
	assert.Equal(t, "https://***/openai/responses?api-version=v", gjson.GetBytes(got, "error.endpoint").String())
	assert.Equal(t, "unsupported_value", gjson.GetBytes(got, "error.upstream_response.error.code").String())
	assert.Equal(t, "<1 items>", gjson.GetBytes(got, "error.request.input").String())
	assert.NotContains(t, string(got), "contoso")
}

func TestDiagnostic_TextUpstreamBody(t *testing.T) {
	got := Diagnostic(http.StatusBadGateway, "https://h/x", []byte("<html>bad gateway</html>"), nil)
	require.True(t, gjson.ValidBytes(got), string(got))
	assert.Equal(t, "<html>bad gateway</html>", gjson.GetBytes(got, "error.upstream_response").String())
	assert.Equal(t, "", gjson.GetBytes(got, "error.request").String())
}
