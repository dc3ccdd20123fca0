// Package recording persists gateway traffic for later inspection.
package recording

import (
	"context"
	"time"
)

// Names of the artifacts stored for each recording.
const (
	DownstreamRequest  = "downstream_request"
	UpstreamRequest    = "upstream_request"
	UpstreamResponse   = "upstream_response"
	DownstreamResponse = "downstream_response"
)

// Recording identifies one request/response cycle.
type Recording struct {
	ID        string
	Method    string
	Path      string
	Model     string
	CreatedAt time.Time
}

// Result is stored when a recording completes.
type Result struct {
	StatusCode   int
	FinishReason string
	Chunks       int
	Error        string
}

// Recorder stores traffic. Implementations are safe for concurrent use.
type Recorder interface {
	// Start registers a new recording.
	Start(ctx context.Context, rec *Recording) error
	// Payload stores a complete request body under name.
	Payload(ctx context.Context, id, name string, body []byte) error
	// Chunk appends raw stream bytes under name, in call order.
	Chunk(ctx context.Context, id, name string, data []byte) error
	// Finish marks the recording complete.
	Finish(ctx context.Context, id string, res Result) error
	// Close releases the underlying storage.
	Close() error
}

// Nop is the Recorder used when recording is disabled.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) Start(context.Context, *Recording) error              { return nil }
func (Nop) Payload(context.Context, string, string, []byte) error { return nil }
func (Nop) Chunk(context.Context, string, string, []byte) error   { return nil }
func (Nop) Finish(context.Context, string, Result) error          { return nil }
func (Nop) Close() error                                          { return nil }
