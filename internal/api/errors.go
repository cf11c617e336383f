package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/correlator-io/dataengine/internal/api/middleware"
	"github.com/correlator-io/dataengine/internal/metadata"
)

// ProblemDetail represents an RFC 7807 Problem Details structure.
// See https://tools.ietf.org/html/rfc7807 for specification.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"` //nolint: tagliatelle
}

// NewProblemDetail creates a new RFC 7807 Problem Detail titled after status.
func NewProblemDetail(status int, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://dataengine.correlator.io/problems/%d", status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

// WriteErrorResponse writes an RFC 7807 compliant error response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if problem.CorrelationID == "" {
		problem.CorrelationID = correlationID
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("Failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Any("encode_error", err),
			slog.Int("status", problem.Status),
		)
	}
}

func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, detail)
}

func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, detail)
}

func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, detail)
}

func Conflict(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusConflict, detail)
}

func UnsupportedMediaType(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusUnsupportedMediaType, detail)
}

func PayloadTooLarge(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusRequestEntityTooLarge, detail)
}

func ServiceUnavailable(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusServiceUnavailable, detail)
}

// problemFor maps a data engine error to its HTTP problem.
//
//	invalid parameter                         → 400
//	unknown entity, relationship or source    → 404
//	not owner, type mismatch, duplicate       → 409
//	repository unavailable                    → 503
//	anything else                             → 500, detail hidden
func problemFor(err error) *ProblemDetail {
	switch {
	case errors.Is(err, metadata.ErrInvalidParameter):
		return BadRequest(err.Error())
	case errors.Is(err, metadata.ErrEntityNotFound),
		errors.Is(err, metadata.ErrRelationshipNotFound),
		errors.Is(err, metadata.ErrUnknownExternalSource):
		return NotFound(err.Error())
	case errors.Is(err, metadata.ErrNotOwner),
		errors.Is(err, metadata.ErrTypeMismatch),
		errors.Is(err, metadata.ErrDuplicateQualifiedName),
		errors.Is(err, metadata.ErrDuplicateRelationship):
		return Conflict(err.Error())
	case errors.Is(err, metadata.ErrRepositoryUnavailable):
		return ServiceUnavailable("The metadata repository is unavailable")
	default:
		return InternalServerError("An unexpected error occurred while processing the request")
	}
}
