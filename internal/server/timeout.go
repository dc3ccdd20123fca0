package server

import (
	"net/http"
	"time"
)

const timeoutBody = `{"error":{"message":"request timed out","type":"timeout"}}`

// TimeoutMiddleware bounds a handler's total run time and answers 503 with
// a JSON error when it is exceeded. The response is buffered, so it must
// not wrap streaming routes.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}
