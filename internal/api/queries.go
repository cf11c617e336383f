package api

import (
	"net/http"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// handleFindEntities finds entities by GUID or qualified name, optionally narrowed by type.
// POST /api/v1/find/entities
func (s *Server) handleFindEntities(w http.ResponseWriter, r *http.Request) {
	var req metadata.FindRequest
	if !s.decode(w, r, &req) {
		return
	}

	entities, err := s.service.Find(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if entities == nil {
		entities = []*metadata.Entity{}
	}

	s.writeJSON(w, r, http.StatusOK, EntitiesResponse{Entities: entities})
}

// GET /api/v1/entities/{guid}
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entity, err := s.service.GetEntity(r.Context(), r.PathValue("guid"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, entity)
}

// handleListRelationships lists the live relationships of an entity. The optional
// "type" query parameter narrows them to one relationship type.
// GET /api/v1/entities/{guid}/relationships
func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	relationships, err := s.service.ListRelationships(r.Context(), r.PathValue("guid"), r.URL.Query().Get("type"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if relationships == nil {
		relationships = []*metadata.Relationship{}
	}

	s.writeJSON(w, r, http.StatusOK, RelationshipsResponse{Relationships: relationships})
}
