package api

import (
	"net/http"
)

// POST /api/v1/schema-types
func (s *Server) handleUpsertSchemaType(w http.ResponseWriter, r *http.Request) {
	var req SchemaTypeRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertSchemaType(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.SchemaType)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/port-implementations
func (s *Server) handleUpsertPortImplementation(w http.ResponseWriter, r *http.Request) {
	var req PortImplementationRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertPortImplementation(
		r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.PortImplementation, req.ProcessQualifiedName,
	)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/port-aliases
func (s *Server) handleUpsertPortAlias(w http.ResponseWriter, r *http.Request) {
	var req PortAliasRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertPortAlias(
		r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.PortAlias, req.ProcessQualifiedName,
	)
	s.writeUpsert(w, r, result, err)
}

// handleUpsertProcess upserts a process with its ports, lineage mappings and parents.
// POST /api/v1/processes
//
// Responses:
//   - 201 Created: the process did not exist
//   - 200 OK: the process existed (outcome "updated" or "unchanged")
//   - 409 Conflict: the process belongs to another external source
func (s *Server) handleUpsertProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertProcess(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.Process)
	s.writeUpsert(w, r, result, err)
}

// PUT /api/v1/processes/status
func (s *Server) handleUpdateProcessStatus(w http.ResponseWriter, r *http.Request) {
	var req ProcessStatusRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	err := s.service.UpdateProcessStatus(
		r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.ProcessQualifiedName, req.ProcessStatus,
	)
	s.writeNoContent(w, r, err)
}

// POST /api/v1/process-hierarchies
func (s *Server) handleAddProcessHierarchy(w http.ResponseWriter, r *http.Request) {
	var req ProcessHierarchyRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	err := s.service.AddProcessHierarchy(
		r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.ParentProcess, req.ChildProcessQualifiedName,
	)
	s.writeNoContent(w, r, err)
}

// POST /api/v1/lineage-mappings
func (s *Server) handleAddLineageMappings(w http.ResponseWriter, r *http.Request) {
	var req LineageMappingsRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	err := s.service.AddLineageMappings(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.LineageMappings)
	s.writeNoContent(w, r, err)
}

// POST /api/v1/data-flows
func (s *Server) handleAddDataFlows(w http.ResponseWriter, r *http.Request) {
	var req DataFlowsRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	err := s.service.AddDataFlows(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.DataFlows)
	s.writeNoContent(w, r, err)
}
