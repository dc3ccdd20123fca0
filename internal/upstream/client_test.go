package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/chat-responses-gateway/internal/config"
	"github.com/tjfontaine/chat-responses-gateway/internal/sse"
	"github.com/tjfontaine/chat-responses-gateway/internal/testutil"
	"github.com/tjfontaine/chat-responses-gateway/internal/translate"
)

func azureConfig(baseURL string) config.AzureConfig {
	return config.AzureConfig{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		Deployment:   "gpt-5",
		APIVersion:   "2025-04-01-preview",
		SummaryLevel: "detailed",
		Truncation:   "auto",
	}
}

func outbound(t *testing.T, cfg config.AzureConfig, body string) *translate.Outbound {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	out, err := translate.NewRequestTranslator(cfg).Translate(r, []byte(body))
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	return out
}

func TestClient_StreamReplay(t *testing.T) {
	recorder := testutil.NewVCRRecorder(t, "responses_stream")
	client := New(WithTransport(recorder))

	out := outbound(t, azureConfig("https://contoso.openai.azure.com"),
		`{"model":"gpt-high","messages":[{"role":"system","content":"Be terse"},{"role":"user","content":"Hi"}]}`)

	resp, err := client.Do(context.Background(), out)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Do() status = %d, want 200", resp.StatusCode)
	}

	reader := sse.NewReader(resp.Body)
	var names []string
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		names = append(names, ev.Name)
	}

	if len(names) != 9 {
		t.Fatalf("got %d events, want 9: %v", len(names), names)
	}
	if names[0] != "response.created" || names[8] != "response.completed" {
		t.Errorf("unexpected event order: %v", names)
	}
}

func TestClient_StreamReplayTranslated(t *testing.T) {
	recorder := testutil.NewVCRRecorder(t, "responses_stream")
	client := New(WithTransport(recorder))

	out := outbound(t, azureConfig("https://contoso.openai.azure.com"), `{"model":"gpt-high","messages":[{"role":"user","content":"Hi"}]}`)

	resp, err := client.Do(context.Background(), out)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	stream := translate.NewStream(resp.Body, out.EchoModel)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	var text strings.Builder
	dec := sse.NewDecoder()
	events := dec.Feed(data)
	for _, ev := range events {
		text.WriteString(ev.JSON().Get("choices.0.delta.content").String())
	}

	want := "<think>\n\nGreeting back.\n\n</think>\n\nHello!"
	if text.String() != want {
		t.Errorf("translated text = %q, want %q", text.String(), want)
	}
	if !events[len(events)-1].IsDone() {
		t.Error("translated stream must end with [DONE]")
	}
}

func TestClient_ErrorReplay(t *testing.T) {
	recorder := testutil.NewVCRRecorder(t, "responses_error")
	client := New(WithTransport(recorder))

	out := outbound(t, azureConfig("https://contoso.openai.azure.com"), `{"model":"gpt-low"}`)

	resp, err := client.Do(context.Background(), out)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Do() status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if code := gjson.GetBytes(body, "error.code").String(); code != "unsupported_value" {
		t.Errorf("error code = %q, want unsupported_value", code)
	}
}

func TestClient_SendsOutbound(t *testing.T) {
	var gotHeader http.Header
	var gotBody []byte
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotQuery = r.URL.RawQuery
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	out := outbound(t, azureConfig(srv.URL), `{"model":"gpt-medium"}`)

	resp, err := New().Do(context.Background(), out)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if got := gotHeader.Get("api-key"); got != "test-key" {
		t.Errorf("api-key = %q, want test-key", got)
	}
	if got := gotHeader.Get("Accept"); got != "text/event-stream" {
		t.Errorf("Accept = %q, want text/event-stream", got)
	}
	if gotQuery != "api-version=2025-04-01-preview" {
		t.Errorf("query = %q", gotQuery)
	}
	if got := gjson.GetBytes(gotBody, "reasoning.effort").String(); got != "medium" {
		t.Errorf("reasoning.effort = %q, want medium", got)
	}
}

func TestClient_ContextCancelAbortsBody(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: response.created\ndata: {}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	out := outbound(t, azureConfig(srv.URL), `{"model":"gpt-high"}`)

	resp, err := New().Do(ctx, out)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(resp.Body)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("ReadAll() should fail after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("body read did not stop after cancellation")
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := outbound(t, azureConfig(url), `{"model":"gpt-high"}`)
	if _, err := New().Do(context.Background(), out); err == nil {
		t.Error("Do() should fail when the provider is unreachable")
	}
}

func TestNewTransport(t *testing.T) {
	tr := NewTransport()
	if tr.TLSHandshakeTimeout != translate.ConnectTimeout {
		t.Errorf("TLSHandshakeTimeout = %v, want %v", tr.TLSHandshakeTimeout, translate.ConnectTimeout)
	}
	if tr.ResponseHeaderTimeout != 0 {
		t.Errorf("ResponseHeaderTimeout = %v, want none", tr.ResponseHeaderTimeout)
	}
}
