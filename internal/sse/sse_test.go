package sse

import (
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_SplitAcrossChunks(t *testing.T) {
	d := NewDecoder()

	var got []*Event
	for _, chunk := range []string{"event: response.out", "put_text.delta\r\nda", "ta: {\"delta\":\"hi\"}\r", "\n\r\n"} {
		got = append(got, d.Feed([]byte(chunk))...)
	}

	require.Len(t, got, 1)
	assert.Equal(t, "response.output_text.delta", got[0].Name)
	assert.Equal(t, `{"delta":"hi"}`, got[0].Data)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, "hi", got[0].JSON().Get("delta").String())
}

func TestDecoder_Fields(t *testing.T) {
	input := ": keepalive\n" +
		"id:  7\n" +
		"retry: 1500\n" +
		"data: line one\n" +
		"data:line two\n" +
		"data:  indented\n" +
		"\n" +
		"retry: soon\n" +
		"data: x\n" +
		"\n"

	events := NewDecoder().Feed([]byte(input))
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, " 7", first.ID)
	require.NotNil(t, first.Retry)
	assert.Equal(t, 1500, *first.Retry)
	assert.Equal(t, "line one\nline two\n indented", first.Data)
	assert.False(t, first.JSON().Exists())

	second := events[1]
	assert.Nil(t, second.Retry)
	assert.Equal(t, 2, second.Index)
}

func TestDecoder_BlankLinesWithoutEvent(t *testing.T) {
	events := NewDecoder().Feed([]byte("\n\n\ndata: a\n\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Index)
}

func TestDecoder_FlushTrailingEvent(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte("data: [DONE]\n")))

	ev := d.Flush()
	require.NotNil(t, ev)
	assert.True(t, ev.IsDone())
	assert.False(t, ev.JSON().Exists())
	assert.Nil(t, d.Flush())
}

func TestEvent_IsDoneTrimsWhitespace(t *testing.T) {
	assert.True(t, (&Event{Data: "  [DONE] "}).IsDone())
	assert.False(t, (&Event{Data: `"[DONE]"`}).IsDone())
}

func TestEvent_JSONIsCached(t *testing.T) {
	ev := &Event{Data: `{"a":1}`}
	first := ev.JSON()
	ev.Data = `{"a":2}`
	assert.Equal(t, first.Raw, ev.JSON().Raw)
}

func TestReader_EOFFlushes(t *testing.T) {
	var tapped strings.Builder
	r := NewReader(strings.NewReader("data: 1\n\ndata: 2"), WithChunkSize(3), WithTap(func(b []byte) {
		tapped.Write(b)
	}))

	var data []string
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data = append(data, ev.Data)
	}

	assert.Equal(t, []string{"1", "2"}, data)
	assert.Equal(t, "data: 1\n\ndata: 2", tapped.String())

	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

type failingReader struct {
	data string
	err  error
	done bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.done {
		return 0, f.err
	}
	f.done = true
	return copy(p, f.data), nil
}

func TestReader_ErrorDropsPartialEvent(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(&failingReader{data: "data: 1\n\ndata: partial", err: boom})

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "1", ev.Data)

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestEncodeData(t *testing.T) {
	tests := []struct {
		name string
		data string
		opts []FrameOption
		want string
	}{
		{name: "single line", data: "hello", want: "data: hello\n\n"},
		{name: "empty", data: "", want: "data:\n\n"},
		{name: "multi line", data: "a\nb\r\nc", want: "data: a\ndata: b\ndata: c\n\n"},
		{name: "id and event", data: "x", opts: []FrameOption{WithEvent("ping"), WithID("9")}, want: "id: 9\nevent: ping\ndata: x\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(EncodeData(tt.data, tt.opts...)))
		})
	}
}

func TestEncodeJSON_NoHTMLEscaping(t *testing.T) {
	b, err := EncodeJSON(map[string]string{"content": "<think>\n\nüber"})
	require.NoError(t, err)
	assert.Equal(t, "data: {\"content\":\"<think>\\n\\nüber\"}\n\n", string(b))
}

func TestDone(t *testing.T) {
	assert.Equal(t, "data: [DONE]\n\n", string(Done()))
}

func TestRoundTrip(t *testing.T) {
	values := []any{
		map[string]any{"id": "chatcmpl-1", "choices": []any{map[string]any{"delta": map[string]any{"content": "a\nb"}}}},
		map[string]any{"text": "line1\nline2", "n": 3.5},
		map[string]any{},
	}

	for _, v := range values {
		encoded, err := EncodeJSON(v)
		require.NoError(t, err)

		events := NewDecoder().Feed(encoded)
		require.Len(t, events, 1)
		require.True(t, events[0].JSON().Exists())

		reencoded, err := EncodeJSON(events[0].JSON().Value())
		require.NoError(t, err)
		assert.Equal(t, string(encoded), string(reencoded))
	}
}

func TestFrames(t *testing.T) {
	values := slices.Values([]any{map[string]int{"a": 1}, map[string]int{"b": 2}})

	var out strings.Builder
	for frame, err := range Frames(values, true) {
		require.NoError(t, err)
		out.Write(frame)
	}
	assert.Equal(t, "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n", out.String())

	out.Reset()
	for frame := range Frames(values, false) {
		out.Write(frame)
	}
	assert.NotContains(t, out.String(), DoneSentinel)
}
