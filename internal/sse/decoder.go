package sse

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

// DefaultChunkSize is the read size used by Reader.
const DefaultChunkSize = 8192

// Decoder turns arbitrarily split byte chunks into Events. It keeps only the
// unconsumed tail of the input and the lines of the event being built.
type Decoder struct {
	buf   []byte
	lines []string
	seq   int
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the decoder and returns every event completed by it.
func (d *Decoder) Feed(chunk []byte) []*Event {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []*Event
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(d.buf[:idx]), "\r")
		d.buf = d.buf[idx+1:]

		if line == "" {
			if ev := d.dispatch(); ev != nil {
				events = append(events, ev)
			}
			continue
		}
		d.lines = append(d.lines, line)
	}

	// Release the backing array once everything has been consumed.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

// Flush ends the input and returns the event that was still being built
// when the stream stopped without a trailing blank line, or nil.
func (d *Decoder) Flush() *Event {
	return d.dispatch()
}

func (d *Decoder) dispatch() *Event {
	if len(d.lines) == 0 {
		return nil
	}
	ev := parseEvent(d.lines)
	d.lines = d.lines[:0]
	d.seq++
	ev.Index = d.seq
	return ev
}

func parseEvent(lines []string) *Event {
	ev := &Event{}
	var data []string
	hasData := false

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(line[len("data:"):], " "))
			hasData = true
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "id:"):
			ev.ID = strings.TrimPrefix(line[len("id:"):], " ")
		case strings.HasPrefix(line, "retry:"):
			if ms, err := strconv.Atoi(strings.TrimSpace(line[len("retry:"):])); err == nil {
				ev.Retry = &ms
			}
		}
	}

	if hasData {
		ev.Data = strings.Join(data, "\n")
	}
	return ev
}

// Reader pulls events from an io.Reader on demand.
type Reader struct {
	src     io.Reader
	dec     *Decoder
	pending []*Event
	chunk   []byte
	tap     func([]byte)
	err     error
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTap registers a callback that observes every raw chunk read from the source.
func WithTap(fn func([]byte)) ReaderOption {
	return func(r *Reader) {
		r.tap = fn
	}
}

// WithChunkSize overrides the size of each read from the source.
func WithChunkSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.chunk = make([]byte, n)
		}
	}
}

// NewReader wraps src in a pull-based event reader.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:   src,
		dec:   NewDecoder(),
		chunk: make([]byte, DefaultChunkSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next event. At the end of a clean stream it flushes any
// trailing event and then returns io.EOF. Any other read error is returned
// as-is once the already decoded events have been handed out; the partial
// event is dropped in that case.
func (r *Reader) Next() (*Event, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return nil, r.err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			if r.tap != nil {
				r.tap(r.chunk[:n])
			}
			r.pending = append(r.pending, r.dec.Feed(r.chunk[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if ev := r.dec.Flush(); ev != nil {
					r.pending = append(r.pending, ev)
				}
			}
			r.err = err
		}
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	return ev, nil
}
