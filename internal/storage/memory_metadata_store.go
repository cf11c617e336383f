package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// InMemoryMetadataStore implements metadata.Repository in process memory.
// It backs local development and unit tests; contents are lost on restart.
type InMemoryMetadataStore struct {
	mu sync.RWMutex
	// txMu is held by transactions and by writes, which would otherwise be lost
	// when a transaction commits its copy.
	txMu          sync.Mutex
	entities      map[string]*metadata.Entity
	relationships map[string]*metadata.Relationship
	now           func() time.Time
}

var _ metadata.Repository = (*InMemoryMetadataStore)(nil)

// NewInMemoryMetadataStore creates an empty in-memory repository.
func NewInMemoryMetadataStore() *InMemoryMetadataStore {
	return &InMemoryMetadataStore{
		entities:      make(map[string]*metadata.Entity),
		relationships: make(map[string]*metadata.Relationship),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetEntity returns the entity with guid, including soft-deleted ones.
func (s *InMemoryMetadataStore) GetEntity(_ context.Context, guid string) (*metadata.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[guid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)
	}

	return entity.Clone(), nil
}

// FindEntity returns the live entity with qualifiedName matching typeName.
func (s *InMemoryMetadataStore) FindEntity(
	_ context.Context,
	typeName, qualifiedName string,
) (*metadata.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entity := s.liveEntity(qualifiedName); entity != nil && matchesType(entity.TypeName, typeName) {
		return entity.Clone(), nil
	}

	return nil, fmt.Errorf("%w: %s %s", metadata.ErrEntityNotFound, typeName, qualifiedName)
}

// FindEntities returns the entities matching filter ordered by qualified name.
func (s *InMemoryMetadataStore) FindEntities(
	_ context.Context,
	filter metadata.EntityFilter,
) ([]*metadata.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := []*metadata.Entity{}

	for _, entity := range s.entities {
		switch {
		case filter.GUID != "" && entity.GUID != filter.GUID,
			filter.QualifiedName != "" && entity.QualifiedName != filter.QualifiedName,
			!matchesType(entity.TypeName, filter.TypeName),
			!filter.IncludeDeleted && entity.Status == metadata.StatusDeleted:
			continue
		}

		entities = append(entities, entity.Clone())
	}

	slices.SortFunc(entities, func(a, b *metadata.Entity) int {
		if c := strings.Compare(a.QualifiedName, b.QualifiedName); c != 0 {
			return c
		}

		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if filter.Limit > 0 && len(entities) > filter.Limit {
		entities = entities[:filter.Limit]
	}

	return entities, nil
}

// CreateEntity stores a copy of entity and returns its GUID.
func (s *InMemoryMetadataStore) CreateEntity(_ context.Context, entity *metadata.Entity) (string, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.liveEntity(entity.QualifiedName) != nil {
		return "", fmt.Errorf("%w: %s", metadata.ErrDuplicateQualifiedName, entity.QualifiedName)
	}

	if guid := entity.Provenance.ExternalSourceGUID; guid != "" {
		if _, ok := s.entities[guid]; !ok {
			return "", fmt.Errorf("%w: %s", metadata.ErrUnknownExternalSource, entity.Provenance.ExternalSourceName)
		}
	}

	if entity.GUID == "" {
		entity.GUID = uuid.NewString()
	}

	if entity.Status == "" {
		entity.Status = metadata.StatusActive
	}

	if entity.UpdatedBy == "" {
		entity.UpdatedBy = entity.CreatedBy
	}

	now := s.now()
	entity.CreatedAt, entity.UpdatedAt = now, now

	stored := entity.Clone()
	if stored.Classifications == nil {
		stored.Classifications = map[string]metadata.Properties{}
	}

	s.entities[stored.GUID] = stored

	return stored.GUID, nil
}

// UpdateEntity replaces properties and status of a live entity.
func (s *InMemoryMetadataStore) UpdateEntity(_ context.Context, entity *metadata.Entity) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.live(entity.GUID)
	if err != nil {
		return err
	}

	entity.UpdatedAt = s.now()

	stored.Properties = entity.Properties.Normalized()
	stored.Status = entity.Status
	stored.UpdatedBy = entity.UpdatedBy
	stored.UpdatedAt = entity.UpdatedAt

	return nil
}

// UpdateEntityStatus changes the status of a live entity.
func (s *InMemoryMetadataStore) UpdateEntityStatus(
	_ context.Context,
	guid string,
	status metadata.InstanceStatus,
) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.live(guid)
	if err != nil {
		return err
	}

	stored.Status = status
	stored.UpdatedAt = s.now()

	return nil
}

// SetClassification replaces one classification, leaving the others in place.
func (s *InMemoryMetadataStore) SetClassification(
	_ context.Context,
	guid, name string,
	props metadata.Properties,
) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.live(guid)
	if err != nil {
		return err
	}

	stored.Classifications[name] = props.Normalized()
	stored.UpdatedAt = s.now()

	return nil
}

// DeleteEntity removes an entity and its relationships.
func (s *InMemoryMetadataStore) DeleteEntity(
	_ context.Context,
	guid string,
	semantic metadata.DeleteSemantic,
) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entities[guid]
	if !ok || (semantic.OrDefault() == metadata.DeleteSoft && stored.Status == metadata.StatusDeleted) {
		return fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)
	}

	for relGUID, rel := range s.relationships {
		if rel.End1GUID == guid || rel.End2GUID == guid {
			delete(s.relationships, relGUID)
		}
	}

	if semantic.OrDefault() == metadata.DeleteHard {
		delete(s.entities, guid)

		// Mirrors ON DELETE SET NULL on external_source_guid.
		for _, entity := range s.entities {
			if entity.Provenance.ExternalSourceGUID == guid {
				entity.Provenance.ExternalSourceGUID = ""
			}
		}

		return nil
	}

	stored.Status = metadata.StatusDeleted
	stored.UpdatedAt = s.now()

	return nil
}

// FindRelationship returns the relationship of typeName between end1GUID and end2GUID.
func (s *InMemoryMetadataStore) FindRelationship(
	_ context.Context,
	typeName, end1GUID, end2GUID string,
) (*metadata.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rel := s.findRelationship(typeName, end1GUID, end2GUID); rel != nil {
		return rel.Clone(), nil
	}

	return nil, fmt.Errorf("%w: %s %s → %s", metadata.ErrRelationshipNotFound, typeName, end1GUID, end2GUID)
}

// ListRelationships returns the relationships matching filter, oldest first.
func (s *InMemoryMetadataStore) ListRelationships(
	_ context.Context,
	filter metadata.RelationshipFilter,
) ([]*metadata.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rels := []*metadata.Relationship{}

	for _, rel := range s.relationships {
		switch {
		case filter.TypeName != "" && rel.TypeName != filter.TypeName,
			filter.End1GUID != "" && rel.End1GUID != filter.End1GUID,
			filter.End2GUID != "" && rel.End2GUID != filter.End2GUID,
			filter.EntityGUID != "" && rel.End1GUID != filter.EntityGUID && rel.End2GUID != filter.EntityGUID:
			continue
		}

		rels = append(rels, rel.Clone())
	}

	slices.SortFunc(rels, func(a, b *metadata.Relationship) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.GUID, b.GUID)
	})

	return rels, nil
}

// CreateRelationship stores a copy of rel and returns its GUID.
func (s *InMemoryMetadataStore) CreateRelationship(_ context.Context, rel *metadata.Relationship) (string, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rel.End1GUID == rel.End2GUID {
		return "", fmt.Errorf("%w: %s", metadata.ErrSelfReference, rel.TypeName)
	}

	for _, end := range []string{rel.End1GUID, rel.End2GUID} {
		if _, ok := s.entities[end]; !ok {
			return "", fmt.Errorf("%w: relationship end %s", metadata.ErrEntityNotFound, end)
		}
	}

	if s.findRelationship(rel.TypeName, rel.End1GUID, rel.End2GUID) != nil {
		return "", fmt.Errorf("%w: %s", metadata.ErrDuplicateRelationship, rel.TypeName)
	}

	if rel.GUID == "" {
		rel.GUID = uuid.NewString()
	}

	if rel.Status == "" {
		rel.Status = metadata.StatusActive
	}

	now := s.now()
	rel.CreatedAt, rel.UpdatedAt = now, now

	stored := rel.Clone()
	s.relationships[stored.GUID] = stored

	return stored.GUID, nil
}

// UpdateRelationship replaces the properties of a relationship.
func (s *InMemoryMetadataStore) UpdateRelationship(_ context.Context, rel *metadata.Relationship) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.relationships[rel.GUID]
	if !ok {
		return fmt.Errorf("%w: %s", metadata.ErrRelationshipNotFound, rel.GUID)
	}

	rel.UpdatedAt = s.now()
	stored.Properties = rel.Properties.Normalized()
	stored.UpdatedAt = rel.UpdatedAt

	return nil
}

// DeleteRelationship removes a relationship.
func (s *InMemoryMetadataStore) DeleteRelationship(_ context.Context, guid string) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.relationships[guid]; !ok {
		return fmt.Errorf("%w: %s", metadata.ErrRelationshipNotFound, guid)
	}

	delete(s.relationships, guid)

	return nil
}

// RunInTransaction serializes transactions. fn works on a private copy of the
// contents that replaces them only when fn succeeds, so readers outside the
// transaction never see uncommitted changes.
func (s *InMemoryMetadataStore) RunInTransaction(
	ctx context.Context,
	fn func(ctx context.Context, repo metadata.Repository) error,
) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	entities, relationships := s.snapshot()

	staged := &InMemoryMetadataStore{entities: entities, relationships: relationships, now: s.now}
	if err := fn(ctx, memoryTx{staged}); err != nil {
		return err
	}

	s.mu.Lock()
	s.entities, s.relationships = staged.entities, staged.relationships
	s.mu.Unlock()

	return nil
}

// Len returns the number of stored entities and relationships, soft-deleted entities included.
func (s *InMemoryMetadataStore) Len() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entities), len(s.relationships)
}

func (s *InMemoryMetadataStore) snapshot() (map[string]*metadata.Entity, map[string]*metadata.Relationship) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := make(map[string]*metadata.Entity, len(s.entities))
	for guid, entity := range s.entities {
		entities[guid] = entity.Clone()
	}

	relationships := make(map[string]*metadata.Relationship, len(s.relationships))
	for guid, rel := range s.relationships {
		relationships[guid] = rel.Clone()
	}

	return entities, relationships
}

// liveEntity returns the stored live entity with qualifiedName. Callers hold mu.
func (s *InMemoryMetadataStore) liveEntity(qualifiedName string) *metadata.Entity {
	for _, entity := range s.entities {
		if entity.QualifiedName == qualifiedName && entity.Status != metadata.StatusDeleted {
			return entity
		}
	}

	return nil
}

// live returns the stored live entity with guid. Callers hold mu.
func (s *InMemoryMetadataStore) live(guid string) (*metadata.Entity, error) {
	stored, ok := s.entities[guid]
	if !ok || stored.Status == metadata.StatusDeleted {
		return nil, fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)
	}

	return stored, nil
}

// findRelationship returns the stored relationship or nil. Callers hold mu.
func (s *InMemoryMetadataStore) findRelationship(typeName, end1GUID, end2GUID string) *metadata.Relationship {
	for _, rel := range s.relationships {
		if rel.TypeName == typeName && rel.End1GUID == end1GUID && rel.End2GUID == end2GUID {
			return rel
		}
	}

	return nil
}

func matchesType(typeName, wanted string) bool {
	types := metadata.SubTypes(wanted)

	return types == nil || slices.Contains(types, typeName)
}

// memoryTx is the repository handed to RunInTransaction callbacks. Nested
// transactions join the outer one.
type memoryTx struct {
	*InMemoryMetadataStore
}

func (t memoryTx) RunInTransaction(
	ctx context.Context,
	fn func(ctx context.Context, repo metadata.Repository) error,
) error {
	return fn(ctx, t)
}
