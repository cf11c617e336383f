// Package metadata defines the data engine domain: stored instances, the property beans
// engines report, and the Repository the upsert handlers delegate to.
//
// Concrete Repository implementations (PostgreSQL and in-memory) live in internal/storage.
package metadata

import "context"

// EntityFilter selects entities. Zero fields do not constrain the result.
// TypeName may name an abstract type such as Port or Asset.
type EntityFilter struct {
	GUID           string
	TypeName       string
	QualifiedName  string
	IncludeDeleted bool
	Limit          int
}

// RelationshipFilter selects relationships. EntityGUID matches either end.
type RelationshipFilter struct {
	TypeName   string
	End1GUID   string
	End2GUID   string
	EntityGUID string
}

// Repository is the storage the data engine handlers need.
//
// Lookups never return instances with status DELETED unless asked to.
// Missing instances are reported with ErrEntityNotFound / ErrRelationshipNotFound.
type Repository interface {
	// GetEntity returns the entity with the given GUID, including soft-deleted ones.
	GetEntity(ctx context.Context, guid string) (*Entity, error)

	// FindEntity returns the live entity with qualifiedName whose type matches typeName.
	FindEntity(ctx context.Context, typeName, qualifiedName string) (*Entity, error)

	// FindEntities returns the entities matching filter ordered by qualified name.
	FindEntities(ctx context.Context, filter EntityFilter) ([]*Entity, error)

	// CreateEntity stores entity, assigning GUID and timestamps, and returns the GUID.
	// A live entity with the same qualified name yields ErrDuplicateQualifiedName.
	CreateEntity(ctx context.Context, entity *Entity) (string, error)

	// UpdateEntity replaces the properties and status of an existing entity.
	UpdateEntity(ctx context.Context, entity *Entity) error

	// UpdateEntityStatus changes the status of an existing entity.
	UpdateEntityStatus(ctx context.Context, guid string, status InstanceStatus) error

	// SetClassification replaces the named classification of an entity.
	SetClassification(ctx context.Context, guid, name string, props Properties) error

	// DeleteEntity removes an entity and every relationship touching it.
	// SOFT marks the entity DELETED, HARD purges it.
	DeleteEntity(ctx context.Context, guid string, semantic DeleteSemantic) error

	// FindRelationship returns the relationship of typeName between the two ends.
	FindRelationship(ctx context.Context, typeName, end1GUID, end2GUID string) (*Relationship, error)

	// ListRelationships returns the relationships matching filter.
	ListRelationships(ctx context.Context, filter RelationshipFilter) ([]*Relationship, error)

	// CreateRelationship stores rel, assigning GUID and timestamps, and returns the GUID.
	CreateRelationship(ctx context.Context, rel *Relationship) (string, error)

	// UpdateRelationship replaces the properties of an existing relationship.
	UpdateRelationship(ctx context.Context, rel *Relationship) error

	// DeleteRelationship removes a relationship.
	DeleteRelationship(ctx context.Context, guid string) error

	// RunInTransaction runs fn against a repository whose changes are committed only
	// if fn returns nil.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
