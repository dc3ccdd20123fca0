package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
)

// FrameOption adds optional fields to an encoded frame.
type FrameOption func(*frame)

type frame struct {
	id    *string
	event *string
}

// WithID sets the "id:" field of a frame.
func WithID(id string) FrameOption {
	return func(f *frame) {
		f.id = &id
	}
}

// WithEvent sets the "event:" field of a frame.
func WithEvent(name string) FrameOption {
	return func(f *frame) {
		f.event = &name
	}
}

// EncodeData encodes data as one SSE frame. Multi-line data is split into
// one "data:" line per line.
func EncodeData(data string, opts ...FrameOption) []byte {
	var f frame
	for _, opt := range opts {
		opt(&f)
	}

	var b bytes.Buffer
	if f.id != nil {
		b.WriteString("id: ")
		b.WriteString(*f.id)
		b.WriteByte('\n')
	}
	if f.event != nil {
		b.WriteString("event: ")
		b.WriteString(*f.event)
		b.WriteByte('\n')
	}

	if data == "" {
		b.WriteString("data:\n")
	} else {
		for _, line := range splitLines(data) {
			b.WriteString("data: ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// EncodeJSON marshals v as compact JSON, without HTML escaping, and encodes it as a frame.
func EncodeJSON(v any, opts ...FrameOption) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal sse payload: %w", err)
	}
	return EncodeData(strings.TrimSuffix(b.String(), "\n"), opts...), nil
}

// Done returns the encoded [DONE] sentinel frame.
func Done() []byte {
	return EncodeData(DoneSentinel)
}

// Frames lazily encodes each value into a frame. When addDone is set the
// sequence ends with the [DONE] frame. Encoding errors are yielded in place
// of the frame and do not stop the sequence.
func Frames(values iter.Seq[any], addDone bool) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for v := range values {
			b, err := EncodeJSON(v)
			if !yield(b, err) {
				return
			}
		}
		if addDone {
			yield(Done(), nil)
		}
	}
}

// splitLines splits on \n, \r\n and \r and drops a single trailing line break.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
