package translate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/chat-responses-gateway/internal/sse"
)

const (
	chunkObject    = "chat.completion.chunk"
	streamIDPrefix = "chatcmpl-"
	streamIDLength = 24
	idAlphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	openThink  = "<think>\n\n"
	closeThink = "</think>\n\n"
)

// ErrStreamClosed is reported to the finish callback when the consumer
// closes the stream before it ended.
var ErrStreamClosed = errors.New("stream closed before completion")

// NewStreamID returns a fresh "chatcmpl-" id with 24 random alphanumerics.
func NewStreamID() string {
	var b strings.Builder
	b.Grow(len(streamIDPrefix) + streamIDLength)
	b.WriteString(streamIDPrefix)
	for range streamIDLength {
		b.WriteByte(idAlphabet[rand.IntN(len(idAlphabet))])
	}
	return b.String()
}

// FinishInfo summarizes a finished stream.
type FinishInfo struct {
	ID           string
	FinishReason string
	Chunks       int
	// Err is nil for a clean upstream EOF.
	Err error
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithContext stops the stream once ctx is done.
func WithContext(ctx context.Context) StreamOption {
	return func(s *Stream) { s.ctx = ctx }
}

// WithClock sets the source of chunk creation timestamps.
func WithClock(now func() time.Time) StreamOption {
	return func(s *Stream) { s.now = now }
}

// WithStreamID fixes the stream id instead of generating one.
func WithStreamID(id string) StreamOption {
	return func(s *Stream) { s.state.id = id }
}

// WithUpstreamTap observes raw upstream bytes as they are read.
func WithUpstreamTap(tap func([]byte)) StreamOption {
	return func(s *Stream) { s.upstreamTap = tap }
}

// WithDownstreamTap observes each encoded SSE frame as it is produced.
func WithDownstreamTap(tap func([]byte)) StreamOption {
	return func(s *Stream) { s.downstreamTap = tap }
}

// WithFinish registers a callback invoked exactly once when the stream ends.
func WithFinish(fn func(FinishInfo)) StreamOption {
	return func(s *Stream) { s.onFinish = fn }
}

// streamState is the per-stream translation state.
type streamState struct {
	startedThinking bool
	thinking        bool
	calledFunction  bool
	id              string
}

func (st *streamState) finishReason() string {
	if st.calledFunction {
		return FinishReasonToolCalls
	}
	return FinishReasonStop
}

// Stream translates a Responses API event stream into a Chat Completions
// SSE stream. It is pull-driven: upstream is read only when the caller's
// Read finds no encoded frames pending, so nothing beyond the current
// event's frames is buffered.
//
// Exactly one terminal chunk carrying the finish reason is produced when
// the upstream ends, fails or the context is cancelled, followed by the
// DONE sentinel. The upstream body is closed once the stream ends or
// Close is called, whichever comes first.
type Stream struct {
	ctx      context.Context
	upstream io.ReadCloser
	events   *sse.Reader
	model    string
	now      func() time.Time

	state    streamState
	pending  bytes.Buffer
	finished bool
	chunks   int

	upstreamTap   func([]byte)
	downstreamTap func([]byte)
	onFinish      func(FinishInfo)

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps upstream. model is echoed on every chunk.
func NewStream(upstream io.ReadCloser, model string, opts ...StreamOption) *Stream {
	s := &Stream{
		ctx:      context.Background(),
		upstream: upstream,
		model:    model,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.state.id == "" {
		s.state.id = NewStreamID()
	}

	var readerOpts []sse.ReaderOption
	if s.upstreamTap != nil {
		readerOpts = append(readerOpts, sse.WithTap(s.upstreamTap))
	}
	s.events = sse.NewReader(upstream, readerOpts...)
	return s
}

// ID returns the stream id shared by every chunk.
func (s *Stream) ID() string {
	return s.state.id
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	for s.pending.Len() == 0 {
		if s.finished {
			return 0, io.EOF
		}
		s.pull()
	}
	return s.pending.Read(p)
}

// Close releases the upstream body. Closing an unfinished stream reports
// ErrStreamClosed to the finish callback.
func (s *Stream) Close() error {
	if !s.finished {
		s.finished = true
		s.pending.Reset()
		s.report(ErrStreamClosed)
	}
	return s.closeUpstream()
}

func (s *Stream) closeUpstream() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.upstream.Close()
	})
	return s.closeErr
}

// pull consumes one upstream event and queues the frames it produces.
func (s *Stream) pull() {
	if err := s.ctx.Err(); err != nil {
		s.finish(err)
		return
	}

	ev, err := s.events.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = nil
		} else if ctxErr := s.ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		s.finish(err)
		return
	}
	if ev.IsDone() {
		return
	}

	for _, c := range s.handle(ev) {
		s.emit(c)
	}
}

// finish queues the terminal chunk and the DONE sentinel, then releases
// the upstream.
func (s *Stream) finish(err error) {
	reason := s.state.finishReason()
	s.emit(s.chunk(ChunkDelta{}, &reason))
	s.write(sse.Done())
	s.finished = true
	s.closeUpstream()
	s.report(err)
}

func (s *Stream) report(err error) {
	if s.onFinish == nil {
		return
	}
	fn := s.onFinish
	s.onFinish = nil
	fn(FinishInfo{
		ID:           s.state.id,
		FinishReason: s.state.finishReason(),
		Chunks:       s.chunks,
		Err:          err,
	})
}

func (s *Stream) emit(c ChatCompletionChunk) {
	frame, err := sse.EncodeJSON(c)
	if err != nil {
		return
	}
	s.chunks++
	s.write(frame)
}

func (s *Stream) write(frame []byte) {
	s.pending.Write(frame)
	if s.downstreamTap != nil {
		s.downstreamTap(frame)
	}
}

// handle dispatches one upstream event. Unknown events yield no chunks.
func (s *Stream) handle(ev *sse.Event) []ChatCompletionChunk {
	payload := ev.JSON()

	switch strings.ReplaceAll(ev.Name, "response.", "") {
	case "output_item.added":
		return s.outputItemAdded(payload)
	case "function_call_arguments.delta", "function_call.arguments.delta":
		return s.functionCallArgumentsDelta(payload)
	case "output_item.done":
		return nil
	case "reasoning_summary_text.delta", "reasoning.summary_text.delta":
		return s.reasoningSummaryTextDelta(payload)
	case "reasoning_summary_text.done", "reasoning.summary_text.done":
		return []ChatCompletionChunk{s.content("\n\n")}
	case "output_text.delta":
		return s.outputTextDelta(payload)
	default:
		return nil
	}
}

func (s *Stream) outputItemAdded(payload gjson.Result) []ChatCompletionChunk {
	item := payload.Get("item")
	switch item.Get("type").String() {
	case "reasoning":
		s.state.startedThinking = true
		return nil
	case "function_call":
		out := s.closeThinking(nil)
		id := item.Get("call_id").String()
		name := item.Get("name").String()
		out = append(out, s.chunk(ChunkDelta{
			Role: "assistant",
			ToolCalls: []ToolCallChunk{{
				Index: 0,
				ID:    &id,
				Type:  "function",
				Function: FunctionCallChunk{
					Name:      &name,
					Arguments: item.Get("arguments").String(),
				},
			}},
		}, nil))
		s.state.calledFunction = true
		return out
	default:
		return nil
	}
}

func (s *Stream) functionCallArgumentsDelta(payload gjson.Result) []ChatCompletionChunk {
	out := s.closeThinking(nil)
	return append(out, s.chunk(ChunkDelta{
		ToolCalls: []ToolCallChunk{{
			Index:    0,
			Function: FunctionCallChunk{Arguments: payload.Get("delta").String()},
		}},
	}, nil))
}

func (s *Stream) reasoningSummaryTextDelta(payload gjson.Result) []ChatCompletionChunk {
	var out []ChatCompletionChunk
	if s.state.startedThinking {
		out = append(out, s.content(openThink))
		s.state.thinking = true
		s.state.startedThinking = false
	}
	return append(out, s.content(payload.Get("delta").String()))
}

func (s *Stream) outputTextDelta(payload gjson.Result) []ChatCompletionChunk {
	out := s.closeThinking(nil)
	return append(out, s.content(payload.Get("delta").String()))
}

// closeThinking appends the closing think delta when a block is open.
// The summary done event never closes the block; the next tool call or
// output text does.
func (s *Stream) closeThinking(out []ChatCompletionChunk) []ChatCompletionChunk {
	if !s.state.thinking {
		return out
	}
	s.state.thinking = false
	return append(out, s.content(closeThink))
}

func (s *Stream) content(text string) ChatCompletionChunk {
	return s.chunk(ChunkDelta{Role: "assistant", Content: &text}, nil)
}

func (s *Stream) chunk(delta ChunkDelta, finishReason *string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      s.state.id,
		Object:  chunkObject,
		Created: s.now().Unix(),
		Model:   s.model,
		Choices: []ChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
	}
}
