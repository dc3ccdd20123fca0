// Package sse implements an incremental Server-Sent Events decoder and the
// matching frame encoder used on both sides of the gateway.
package sse

import (
	"strings"

	"github.com/tidwall/gjson"
)

// DoneSentinel is the data payload that marks the end of an OpenAI-style stream.
const DoneSentinel = "[DONE]"

// Event is a single parsed Server-Sent Event.
type Event struct {
	// Name is the optional "event:" field.
	Name string
	// Data is the joined "data:" payload, possibly multi-line.
	Data string
	// ID is the optional "id:" field.
	ID string
	// Retry is the reconnection delay in milliseconds, nil when absent or invalid.
	Retry *int
	// Index is the 1-based position of the event within its stream.
	Index int

	parsed   bool
	jsonView gjson.Result
}

// IsDone reports whether the event carries the [DONE] sentinel.
func (e *Event) IsDone() bool {
	return strings.TrimSpace(e.Data) == DoneSentinel
}

// JSON returns the data parsed as JSON. The result is computed on first
// access and cached. Empty, invalid, or sentinel payloads yield a Result for
// which Exists reports false.
func (e *Event) JSON() gjson.Result {
	if e.parsed {
		return e.jsonView
	}
	e.parsed = true

	text := strings.TrimSpace(e.Data)
	if text == "" || text == DoneSentinel || !gjson.Valid(text) {
		return e.jsonView
	}
	e.jsonView = gjson.Parse(text)
	return e.jsonView
}
