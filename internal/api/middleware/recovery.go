package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery creates a middleware that turns a handler panic into a logged 500 problem response.
// http.ErrAbortHandler is re-panicked so the server can abort the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				if rec == http.ErrAbortHandler { //nolint: errorlint,err113
					panic(rec)
				}

				logger.Error("HTTP request panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", GetCorrelationID(r.Context())),
					slog.Any("panic", rec),
					slog.String("stack_trace", string(debug.Stack())),
				)

				writeProblem(w, r, logger, http.StatusInternalServerError,
					"An unexpected error occurred while processing the request")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
