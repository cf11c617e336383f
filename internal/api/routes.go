package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/correlator-io/dataengine/internal/api/middleware"
	"github.com/correlator-io/dataengine/internal/dataengine"
	"github.com/correlator-io/dataengine/internal/storage"
)

const (
	healthCheckTimeout     = 2 * time.Second
	expectedURLParts       = 2
	contentTypeJSON        = "application/json"
	contentTypeProblemJSON = "application/problem+json"
	versionHeader          = "X-Dataengine-Version"
)

// setupRoutes registers every route on mux and returns the paths that bypass authentication.
func (s *Server) setupRoutes(mux *http.ServeMux) []string {
	publicPaths := s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},     // liveness probe
		Route{"GET /ready", s.handleReady},   // readiness probe
		Route{"GET /health", s.handleHealth}, // status, uptime, version
		Route{"/", s.handleNotFound},
	)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())

		publicPaths = append(publicPaths, "/metrics")
	}

	s.registerWriteRoutes(mux,
		Route{"POST /api/v1/registration", s.handleRegisterExternalDataEngine},
		Route{"DELETE /api/v1/registration", s.handleDeleteExternalDataEngine},
		Route{"POST /api/v1/processing-state", s.handleUpsertProcessingState},

		Route{"POST /api/v1/schema-types", s.handleUpsertSchemaType},
		Route{"DELETE /api/v1/schema-types", s.deleteHandler("delete_schema_type", s.service.DeleteSchemaType)},
		Route{"POST /api/v1/port-implementations", s.handleUpsertPortImplementation},
		Route{"POST /api/v1/port-aliases", s.handleUpsertPortAlias},
		Route{"DELETE /api/v1/ports", s.deleteHandler("delete_port", s.service.DeletePort)},
		Route{"POST /api/v1/processes", s.handleUpsertProcess},
		Route{"PUT /api/v1/processes/status", s.handleUpdateProcessStatus},
		Route{"DELETE /api/v1/processes", s.deleteHandler("delete_process", s.service.DeleteProcess)},
		Route{"POST /api/v1/process-hierarchies", s.handleAddProcessHierarchy},
		Route{"POST /api/v1/lineage-mappings", s.handleAddLineageMappings},
		Route{"POST /api/v1/data-flows", s.handleAddDataFlows},

		Route{"POST /api/v1/databases", s.handleUpsertDatabase},
		Route{"DELETE /api/v1/databases", s.deleteHandler("delete_database", s.service.DeleteDatabase)},
		Route{"POST /api/v1/database-schemas", s.handleUpsertDatabaseSchema},
		Route{"DELETE /api/v1/database-schemas",
			s.deleteHandler("delete_database_schema", s.service.DeleteDatabaseSchema)},
		Route{"POST /api/v1/relational-tables", s.handleUpsertRelationalTable},
		Route{"DELETE /api/v1/relational-tables",
			s.deleteHandler("delete_relational_table", s.service.DeleteRelationalTable)},
		Route{"POST /api/v1/data-files", s.handleUpsertDataFile},
		Route{"DELETE /api/v1/data-files", s.deleteHandler("delete_data_file", s.service.DeleteDataFile)},
		Route{"POST /api/v1/folders", s.handleUpsertFolder},
		Route{"DELETE /api/v1/folders", s.deleteHandler("delete_folder", s.service.DeleteFolder)},
		Route{"POST /api/v1/topics", s.handleUpsertTopic},
		Route{"DELETE /api/v1/topics", s.deleteHandler("delete_topic", s.service.DeleteTopic)},
		Route{"POST /api/v1/event-types", s.handleUpsertEventType},
		Route{"DELETE /api/v1/event-types", s.deleteHandler("delete_event_type", s.service.DeleteEventType)},
		Route{"POST /api/v1/collections", s.handleUpsertCollection},
		Route{"DELETE /api/v1/collections", s.deleteHandler("delete_collection", s.service.DeleteCollection)},
		Route{"POST /api/v1/collections/members", s.handleAddToCollection},
	)

	s.registerReadRoutes(mux,
		Route{"GET /api/v1/registration/{qualifiedName...}", s.handleGetExternalDataEngine},
		Route{"GET /api/v1/processing-state/{externalSourceName...}", s.handleGetProcessingState},
		// Find only reads; POST carries the criteria in the body.
		Route{"POST /api/v1/find/entities", s.handleFindEntities},
		Route{"GET /api/v1/entities/{guid}", s.handleGetEntity},
		Route{"GET /api/v1/entities/{guid}/relationships", s.handleListRelationships},
	)

	return publicPaths
}

// registerPublicRoutes registers routes that bypass authentication and returns their
// paths without the method prefix ("GET /ping" → "/ping").
//
// Never register data engine operations as public routes.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) []string {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	paths := make([]string, 0, len(routes))

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", route.Path))

			continue
		}

		paths = append(paths, path)
	}

	return paths
}

func (s *Server) registerWriteRoutes(mux *http.ServeMux, routes ...Route) {
	for _, route := range routes {
		mux.Handle(route.Path, middleware.RequirePermission(storage.PermissionMetadataWrite, s.logger, route.Handler))
	}
}

func (s *Server) registerReadRoutes(mux *http.ServeMux, routes ...Route) {
	for _, route := range routes {
		mux.Handle(route.Path, middleware.RequirePermission(storage.PermissionMetadataRead, s.logger, route.Handler))
	}
}

// handlePing responds to liveness probes.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(versionHeader, s.version)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logWriteError(r, err)
	}
}

// handleReady answers 200 when the metadata repository is reachable and 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, body := http.StatusOK, "ready"

	if err := s.service.HealthCheck(ctx); err != nil {
		s.logger.Error("Repository health check failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		status, body = http.StatusServiceUnavailable, "repository unavailable"
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logWriteError(r, err)
	}
}

// handleHealth returns status, uptime and version.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(versionHeader, s.version)

	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     s.version,
		Uptime:      uptime(s.startTime),
	})
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), contentTypeJSON)
}

// decode reads a JSON request body into dst. On failure it writes the problem
// response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	var problem *ProblemDetail

	switch {
	case !hasJSONContentType(r.Header.Get("Content-Type")):
		problem = UnsupportedMediaType("Content-Type must be application/json")
	case r.ContentLength > s.config.MaxRequestSize:
		problem = PayloadTooLarge("Request body exceeds the maximum size")
	case r.ContentLength == 0:
		problem = BadRequest("Request body cannot be empty")
	default:
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)).Decode(dst)

		var tooLarge *http.MaxBytesError

		switch {
		case errors.As(err, &tooLarge):
			problem = PayloadTooLarge("Request body exceeds the maximum size")
		case err != nil:
			problem = BadRequest("Invalid JSON: " + err.Error())
		}
	}

	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return false
	}

	return true
}

// userID returns the identity a write is attributed to: the authenticated client,
// or the userId of the body when authentication is disabled.
func userID(r *http.Request, body RequestBody) string {
	if clientCtx, ok := middleware.GetClientContext(r.Context()); ok {
		return clientCtx.ClientID
	}

	return body.UserID
}

// writeUpsert answers an upsert: 201 when the entity was created, 200 otherwise.
func (s *Server) writeUpsert(w http.ResponseWriter, r *http.Request, result dataengine.UpsertResult, err error) {
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	status := http.StatusOK
	if result.Outcome == dataengine.OutcomeCreated {
		status = http.StatusCreated
	}

	s.writeJSON(w, r, status, result)
}

// writeNoContent answers an operation without a result.
func (s *Server) writeNoContent(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	problem := problemFor(err)

	if problem.Status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	WriteErrorResponse(w, r, s.logger, problem)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logWriteError(r, err)
	}
}

// logWriteError logs a failed body write; the status line has already been sent.
func (s *Server) logWriteError(r *http.Request, err error) {
	s.logger.Error("Failed to write response",
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
