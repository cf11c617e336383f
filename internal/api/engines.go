package api

import (
	"context"
	"net/http"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// deleteFunc is the shape shared by every delete-by-qualified-name operation.
type deleteFunc func(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error

// deleteHandler returns a handler that decodes a DeleteRequestBody and calls del.
func (s *Server) deleteHandler(operation string, del deleteFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeleteRequestBody
		if !s.decode(w, r, &req) {
			return
		}

		s.logger.DebugContext(r.Context(), "delete requested",
			"operation", operation,
			"qualified_name", req.QualifiedName,
			"delete_semantic", string(req.DeleteSemantic.OrDefault()),
		)

		err := del(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.QualifiedName, req.DeleteSemantic)
		s.writeNoContent(w, r, err)
	}
}

// handleRegisterExternalDataEngine registers (or updates) the caller's engine.
// POST /api/v1/registration
func (s *Server) handleRegisterExternalDataEngine(w http.ResponseWriter, r *http.Request) {
	var req RegistrationRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.RegisterExternalDataEngine(r.Context(), userID(r, req.RequestBody), req.SoftwareServerCapability)
	s.writeUpsert(w, r, result, err)
}

// handleGetExternalDataEngine returns the GUID of a registered engine.
// GET /api/v1/registration/{qualifiedName...}
func (s *Server) handleGetExternalDataEngine(w http.ResponseWriter, r *http.Request) {
	guid, err := s.service.GetExternalDataEngine(r.Context(), r.PathValue("qualifiedName"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, GUIDResponse{GUID: guid})
}

// handleDeleteExternalDataEngine removes a registration.
// DELETE /api/v1/registration
func (s *Server) handleDeleteExternalDataEngine(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	err := s.service.DeleteExternalDataEngine(
		r.Context(), userID(r, req.RequestBody), req.QualifiedName, req.GUID, req.DeleteSemantic,
	)
	s.writeNoContent(w, r, err)
}

// POST /api/v1/processing-state
func (s *Server) handleUpsertProcessingState(w http.ResponseWriter, r *http.Request) {
	var req ProcessingStateRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	err := s.service.UpsertProcessingState(
		r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.ProcessingState,
	)
	s.writeNoContent(w, r, err)
}

// GET /api/v1/processing-state/{externalSourceName...}
func (s *Server) handleGetProcessingState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetProcessingState(r.Context(), r.PathValue("externalSourceName"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, state)
}
