package api

import (
	"net/http"
)

// POST /api/v1/databases
func (s *Server) handleUpsertDatabase(w http.ResponseWriter, r *http.Request) {
	var req DatabaseRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertDatabase(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.Database)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/database-schemas
func (s *Server) handleUpsertDatabaseSchema(w http.ResponseWriter, r *http.Request) {
	var req DatabaseSchemaRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertDatabaseSchema(
		r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.DatabaseSchema, req.DatabaseQualifiedName,
	)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/relational-tables
func (s *Server) handleUpsertRelationalTable(w http.ResponseWriter, r *http.Request) {
	var req RelationalTableRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertRelationalTable(
		r.Context(), userID(r, req.RequestBody), req.ExternalSourceName,
		req.RelationalTable, req.DatabaseSchemaQualifiedName,
	)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/data-files
func (s *Server) handleUpsertDataFile(w http.ResponseWriter, r *http.Request) {
	var req DataFileRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertDataFile(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.DataFile)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/folders
func (s *Server) handleUpsertFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertFolder(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.Folder)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/topics
func (s *Server) handleUpsertTopic(w http.ResponseWriter, r *http.Request) {
	var req TopicRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertTopic(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.Topic)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/event-types
func (s *Server) handleUpsertEventType(w http.ResponseWriter, r *http.Request) {
	var req EventTypeRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertEventType(
		r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.EventType, req.TopicQualifiedName,
	)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/collections
func (s *Server) handleUpsertCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.service.UpsertCollection(r.Context(), userID(r, req.RequestBody), req.ExternalSourceName, req.Collection)
	s.writeUpsert(w, r, result, err)
}

// POST /api/v1/collections/members
func (s *Server) handleAddToCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionMemberRequestBody
	if !s.decode(w, r, &req) {
		return
	}

	err := s.service.AddToCollection(
		r.Context(), userID(r, req.RequestBody), req.ExternalSourceName,
		req.CollectionQualifiedName, req.MemberQualifiedName,
	)
	s.writeNoContent(w, r, err)
}
