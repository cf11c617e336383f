package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// problem is the RFC 7807 body written by the middleware. It has the same shape as
// api.ProblemDetail, which cannot be imported from here.
type problem struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail"`
	Instance      string `json:"instance"`
	CorrelationID string `json:"correlation_id"` //nolint: tagliatelle
}

// writeProblem writes an RFC 7807 response, falling back to plain text when the
// body cannot be encoded.
func writeProblem(w http.ResponseWriter, r *http.Request, logger *slog.Logger, statusCode int, detail string) {
	correlationID := GetCorrelationID(r.Context())

	body := problem{
		Type:          fmt.Sprintf("https://dataengine.correlator.io/problems/%d", statusCode),
		Title:         http.StatusText(statusCode),
		Status:        statusCode,
		Detail:        detail,
		Instance:      r.URL.Path,
		CorrelationID: correlationID,
	}

	data, err := json.Marshal(body)
	if err != nil {
		logger.Error("failed to encode RFC 7807 response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("detail", detail),
			slog.Any("error", err),
		)

		http.Error(w, detail, statusCode)

		return
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	_, _ = w.Write(data)
}
