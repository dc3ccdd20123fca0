package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/chat-responses-gateway/internal/config"
	"github.com/tjfontaine/chat-responses-gateway/internal/server"
)

// copyBufferSize is the read size used when relaying a response body.
const copyBufferSize = 32 * 1024

// Handler serves any inbound request through Forward and relays the body,
// flushing after every write.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := g.Forward(r.Context(), r)
		defer resp.Body.Close()

		for name, values := range resp.Header {
			w.Header()[name] = values
		}
		w.WriteHeader(resp.StatusCode)

		if err := relay(w, resp.Body); err != nil {
			g.logger.DebugContext(r.Context(), "response relay stopped",
				slog.String("request_id", server.GetRequestID(r.Context())),
				slog.String("error", err.Error()),
			)
		}
	})
}

// relay copies body to w until EOF or the first write error. Each chunk is
// flushed so SSE frames reach the client as soon as they are produced.
func relay(w http.ResponseWriter, body io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// ModelsHandler lists the configured model ids in the OpenAI list format.
func ModelsHandler(models []config.ModelListItem) http.HandlerFunc {
	list := modelList{Object: "list", Data: make([]modelEntry, 0, len(models))}
	for _, m := range models {
		entry := modelEntry{ID: m.ID, Object: m.Object, Created: m.Created, OwnedBy: m.OwnedBy}
		if entry.Object == "" {
			entry.Object = "model"
		}
		if entry.OwnedBy == "" {
			entry.OwnedBy = "openai"
		}
		list.Data = append(list.Data, entry)
	}
	payload, _ := json.Marshal(list)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}
