// Package gateway forwards Chat Completions requests to the Responses API
// and streams the translated answer back.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/chat-responses-gateway/internal/config"
	"github.com/tjfontaine/chat-responses-gateway/internal/domain"
	"github.com/tjfontaine/chat-responses-gateway/internal/recording"
	"github.com/tjfontaine/chat-responses-gateway/internal/redact"
	"github.com/tjfontaine/chat-responses-gateway/internal/server"
	"github.com/tjfontaine/chat-responses-gateway/internal/telemetry"
	"github.com/tjfontaine/chat-responses-gateway/internal/tokens"
	"github.com/tjfontaine/chat-responses-gateway/internal/translate"
	"github.com/tjfontaine/chat-responses-gateway/internal/upstream"
)

const (
	// maxErrorBody bounds how much of a failed upstream response is kept.
	maxErrorBody = 1 << 20
	// recordTimeout bounds each recording write.
	recordTimeout = 5 * time.Second
)

// hopByHopHeaders are never copied from the upstream response.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// Response is what Forward hands back to the HTTP layer. Body is always
// non-nil and must be closed.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Gateway translates and forwards requests. It holds no per-request state
// and is safe for concurrent use.
type Gateway struct {
	translator *translate.RequestTranslator
	client     *upstream.Client
	recorder   recording.Recorder
	counter    *tokens.Counter
	logger     *slog.Logger
	redactLogs bool
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRecorder stores traffic in rec.
func WithRecorder(rec recording.Recorder) Option {
	return func(g *Gateway) { g.recorder = rec }
}

// WithTokenCounter logs an input token estimate for each request.
func WithTokenCounter(c *tokens.Counter) Option {
	return func(g *Gateway) { g.counter = c }
}

// WithLogRedaction controls whether headers are masked in debug logs.
func WithLogRedaction(enabled bool) Option {
	return func(g *Gateway) { g.redactLogs = enabled }
}

// WithClock sets the time source for chunk timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a Gateway forwarding to the deployment described by cfg.
func New(cfg config.AzureConfig, client *upstream.Client, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		translator: translate.NewRequestTranslator(cfg),
		client:     client,
		recorder:   recording.Nop{},
		logger:     logger,
		redactLogs: true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Forward handles one inbound request. Translation errors become an early
// plain-text response and no upstream call is made. A failed upstream
// status becomes a redacted JSON diagnostic carrying that status. On
// success the body is a translated SSE stream bound to ctx.
func (g *Gateway) Forward(ctx context.Context, r *http.Request) *Response {
	ctx, span := telemetry.Tracer().Start(ctx, "gateway.forward",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return g.fail(ctx, span, domain.ErrInvalidRequest(fmt.Sprintf("failed to read request body: %v", err)))
	}

	g.logRequest(ctx, r, body)

	out, err := g.translator.Translate(r, body)
	if err != nil {
		return g.fail(ctx, span, domain.AsAPIError(err))
	}

	server.AddLogField(ctx, "model", out.EchoModel)
	server.AddLogField(ctx, "effort", out.Effort)
	span.SetAttributes(
		attribute.String("gateway.model", out.EchoModel),
		attribute.String("gateway.effort", out.Effort),
	)
	g.estimateTokens(ctx, span, out)

	recID := uuid.NewString()
	g.record(ctx, "start", func(rctx context.Context) error {
		return g.recorder.Start(rctx, &recording.Recording{
			ID:        recID,
			Method:    r.Method,
			Path:      r.URL.Path,
			Model:     out.EchoModel,
			CreatedAt: g.now(),
		})
	})
	g.record(ctx, recording.DownstreamRequest, func(rctx context.Context) error {
		return g.recorder.Payload(rctx, recID, recording.DownstreamRequest, body)
	})
	g.record(ctx, recording.UpstreamRequest, func(rctx context.Context) error {
		return g.recorder.Payload(rctx, recID, recording.UpstreamRequest, out.Body)
	})

	resp, err := g.client.Do(ctx, out)
	if err != nil {
		g.finishRecording(ctx, recID, recording.Result{StatusCode: http.StatusBadGateway, Error: err.Error()})
		return g.fail(ctx, span, domain.ErrUnavailable(err.Error()))
	}

	server.AddLogField(ctx, "upstream_status", strconv.Itoa(resp.StatusCode))
	span.SetAttributes(attribute.Int("gateway.upstream_status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return g.diagnostic(ctx, span, recID, out, resp)
	}

	stream := translate.NewStream(resp.Body, out.EchoModel,
		translate.WithContext(ctx),
		translate.WithClock(g.now),
		translate.WithUpstreamTap(g.chunkTap(ctx, recID, recording.UpstreamResponse)),
		translate.WithDownstreamTap(g.chunkTap(ctx, recID, recording.DownstreamResponse)),
		translate.WithFinish(func(info translate.FinishInfo) {
			server.AddLogField(ctx, "finish_reason", info.FinishReason)
			server.AddLogField(ctx, "chunks", strconv.Itoa(info.Chunks))
			span.SetAttributes(
				attribute.String("gateway.finish_reason", info.FinishReason),
				attribute.Int("gateway.chunks", info.Chunks),
			)
			res := recording.Result{
				StatusCode:   resp.StatusCode,
				FinishReason: info.FinishReason,
				Chunks:       info.Chunks,
			}
			if info.Err != nil {
				server.AddError(ctx, info.Err)
				span.RecordError(info.Err)
				res.Error = info.Err.Error()
			}
			g.finishRecording(ctx, recID, res)
			span.End()
		}),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     streamHeaders(resp.Header),
		Body:       stream,
	}
}

// diagnostic consumes a failed upstream response and builds the redacted
// report returned to the client.
func (g *Gateway) diagnostic(ctx context.Context, span trace.Span, recID string, out *translate.Outbound, resp *http.Response) *Response {
	defer resp.Body.Close()

	upstreamBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		g.logger.WarnContext(ctx, "failed to read upstream error body", slog.String("error", err.Error()))
	}
	g.record(ctx, recording.UpstreamResponse, func(rctx context.Context) error {
		return g.recorder.Chunk(rctx, recID, recording.UpstreamResponse, upstreamBody)
	})

	msg := fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	server.AddError(ctx, domain.ErrUpstream(resp.StatusCode, msg))
	g.finishRecording(ctx, recID, recording.Result{StatusCode: resp.StatusCode, Error: msg})
	span.SetStatus(codes.Error, msg)
	span.End()

	diag := redact.Diagnostic(resp.StatusCode, out.URL, upstreamBody, out.Body)
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(diag)),
	}
}

// fail converts apiErr into a response. Unavailable upstreams are reported
// as a JSON error; everything else is plain text.
func (g *Gateway) fail(ctx context.Context, span trace.Span, apiErr *domain.APIError) *Response {
	server.AddError(ctx, apiErr)
	span.SetStatus(codes.Error, apiErr.Message)
	span.End()

	status := apiErr.HTTPStatusCode()
	if apiErr.Type == domain.ErrorTypeUnavailable {
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]any{
				"message": "Upstream request failed: " + apiErr.Message,
				"type":    "upstream_error",
			},
		})
		return &Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(bytes.NewReader(payload)),
		}
	}
	return &Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(apiErr.Message))),
	}
}

func (g *Gateway) estimateTokens(ctx context.Context, span trace.Span, out *translate.Outbound) {
	if g.counter == nil || out.Request == nil {
		return
	}
	n, err := g.counter.CountRequest(out.Request.Model, out.Request)
	if err != nil {
		g.logger.DebugContext(ctx, "token estimate failed", slog.String("error", err.Error()))
		return
	}
	server.AddLogField(ctx, "input_tokens_estimate", strconv.Itoa(n))
	span.SetAttributes(attribute.Int("gateway.input_tokens_estimate", n))
}

func (g *Gateway) logRequest(ctx context.Context, r *http.Request, body []byte) {
	if !g.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	headers := r.Header
	if g.redactLogs {
		headers = redact.Headers(headers)
	}
	g.logger.DebugContext(ctx, "inbound request",
		slog.String("request_id", server.GetRequestID(ctx)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("headers", headers),
		slog.Int("body_bytes", len(body)),
	)
}

// chunkTap returns a stream tap appending to the named recording stream,
// or nil when nothing is recorded.
func (g *Gateway) chunkTap(ctx context.Context, recID, name string) func([]byte) {
	if _, ok := g.recorder.(recording.Nop); ok {
		return nil
	}
	return func(data []byte) {
		g.record(ctx, name, func(rctx context.Context) error {
			return g.recorder.Chunk(rctx, recID, name, data)
		})
	}
}

func (g *Gateway) finishRecording(ctx context.Context, recID string, res recording.Result) {
	g.record(ctx, "finish", func(rctx context.Context) error {
		return g.recorder.Finish(rctx, recID, res)
	})
}

// record runs a recording write detached from request cancellation.
// Failures are logged and never reach the client.
func (g *Gateway) record(ctx context.Context, what string, fn func(context.Context) error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := fn(rctx); err != nil {
		g.logger.WarnContext(ctx, "recording failed",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("step", what),
			slog.String("error", err.Error()),
		)
	}
}

// streamHeaders filters the upstream headers and sets the SSE response headers.
func streamHeaders(src http.Header) http.Header {
	h := src.Clone()
	if h == nil {
		h = make(http.Header)
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return h
}
