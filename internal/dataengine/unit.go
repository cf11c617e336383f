package dataengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// cascades lists, per entity type, the relationships whose other end is owned by the
// entity and deleted together with it.
var cascades = map[string][]string{
	metadata.TypeProcess:                {metadata.RelProcessPort},
	metadata.TypePortImplementation:     {metadata.RelPortSchema},
	metadata.TypeSchemaType:             {metadata.RelAttributeForSchema},
	metadata.TypeRelationalTable:        {metadata.RelNestedSchemaAttribute},
	metadata.TypeDatabase:               {metadata.RelDataContentForDataSet, metadata.RelConnectionToAsset},
	metadata.TypeDeployedDatabaseSchema: {metadata.RelAssetSchemaType},
	metadata.TypeDataFile:               {metadata.RelAssetSchemaType, metadata.RelConnectionToAsset},
	metadata.TypeTopic:                  {metadata.RelSchemaTypeOption},
	metadata.TypeEventType:              {metadata.RelAttributeForSchema},
}

type upsertEvent struct {
	typeName string
	outcome  Outcome
}

// unit is one transaction of a data engine operation.
type unit struct {
	svc     *Service
	repo    metadata.Repository
	caller  caller
	upserts []upsertEvent
	deletes []string
}

// entitySpec describes the desired state of one entity.
type entitySpec struct {
	typeName      string
	qualifiedName string
	properties    metadata.Properties
	// createStatus is the status of a newly created entity; empty means ACTIVE.
	createStatus metadata.InstanceStatus
}

// upsert creates the entity when no live entity has its qualified name, otherwise
// updates it when its properties differ.
func (u *unit) upsert(ctx context.Context, spec entitySpec) (UpsertResult, error) {
	existing, err := u.repo.FindEntity(ctx, "", spec.qualifiedName)
	if errors.Is(err, metadata.ErrEntityNotFound) {
		return u.create(ctx, spec)
	}

	if err != nil {
		return UpsertResult{}, err
	}

	if err := u.checkType(existing, spec.typeName); err != nil {
		return UpsertResult{}, err
	}

	if !u.owns(existing) {
		return UpsertResult{}, fmt.Errorf("%w: %s %s belongs to %s",
			metadata.ErrNotOwner, existing.TypeName, existing.QualifiedName, existing.Provenance.ExternalSourceName)
	}

	if existing.Properties.Equal(spec.properties) {
		u.upserts = append(u.upserts, upsertEvent{spec.typeName, OutcomeUnchanged})

		return UpsertResult{GUID: existing.GUID, Outcome: OutcomeUnchanged}, nil
	}

	existing.Properties = spec.properties
	existing.UpdatedBy = u.caller.userID

	if err := u.repo.UpdateEntity(ctx, existing); err != nil {
		return UpsertResult{}, err
	}

	u.upserts = append(u.upserts, upsertEvent{spec.typeName, OutcomeUpdated})

	return UpsertResult{GUID: existing.GUID, Outcome: OutcomeUpdated}, nil
}

// ensure returns the live entity with the spec's qualified name, creating it when absent.
// Existing entities are never modified, so entities derived by several engines
// (endpoints, folders implied by file paths) can be shared.
func (u *unit) ensure(ctx context.Context, spec entitySpec) (string, error) {
	existing, err := u.repo.FindEntity(ctx, "", spec.qualifiedName)
	if errors.Is(err, metadata.ErrEntityNotFound) {
		result, err := u.create(ctx, spec)

		return result.GUID, err
	}

	if err != nil {
		return "", err
	}

	if err := u.checkType(existing, spec.typeName); err != nil {
		return "", err
	}

	return existing.GUID, nil
}

func (u *unit) create(ctx context.Context, spec entitySpec) (UpsertResult, error) {
	status := spec.createStatus
	if status == "" {
		status = metadata.StatusActive
	}

	guid, err := u.repo.CreateEntity(ctx, &metadata.Entity{
		TypeName:      spec.typeName,
		QualifiedName: spec.qualifiedName,
		Properties:    spec.properties,
		Status:        status,
		Provenance:    u.caller.source,
		CreatedBy:     u.caller.userID,
	})
	if err != nil {
		return UpsertResult{}, err
	}

	u.upserts = append(u.upserts, upsertEvent{spec.typeName, OutcomeCreated})

	return UpsertResult{GUID: guid, Outcome: OutcomeCreated}, nil
}

// find returns the live entity with qualifiedName, which must be of typeName.
func (u *unit) find(ctx context.Context, typeName, qualifiedName string) (*metadata.Entity, error) {
	entity, err := u.repo.FindEntity(ctx, "", qualifiedName)
	if err != nil {
		if errors.Is(err, metadata.ErrEntityNotFound) {
			return nil, fmt.Errorf("%w: %s %s", metadata.ErrEntityNotFound, displayType(typeName), qualifiedName)
		}

		return nil, err
	}

	if err := u.checkType(entity, typeName); err != nil {
		return nil, err
	}

	return entity, nil
}

// findReference resolves a qualified name reported as a reference to another entity.
// Aliased names are rewritten first.
func (u *unit) findReference(ctx context.Context, typeName, qualifiedName string) (*metadata.Entity, error) {
	return u.find(ctx, typeName, u.svc.resolver.ResolveQualifiedName(qualifiedName))
}

// findOwned is find plus an ownership check, for operations that modify the entity.
func (u *unit) findOwned(ctx context.Context, typeName, qualifiedName string) (*metadata.Entity, error) {
	entity, err := u.find(ctx, typeName, qualifiedName)
	if err != nil {
		return nil, err
	}

	if !u.owns(entity) {
		return nil, fmt.Errorf("%w: %s %s belongs to %s",
			metadata.ErrNotOwner, entity.TypeName, entity.QualifiedName, entity.Provenance.ExternalSourceName)
	}

	return entity, nil
}

func (u *unit) checkType(entity *metadata.Entity, typeName string) error {
	if !metadata.IsA(entity.TypeName, typeName) {
		return fmt.Errorf("%w: %s is a %s, not a %s",
			metadata.ErrTypeMismatch, entity.QualifiedName, entity.TypeName, typeName)
	}

	return nil
}

// owns reports whether the caller may modify entity. Entities without an owning
// engine can be modified by any engine. Engines are matched by qualified name as well
// as GUID, so an engine that is deleted and registered again keeps what it reported.
func (u *unit) owns(entity *metadata.Entity) bool {
	owner := entity.Provenance

	return owner.IsLocal() ||
		owner.ExternalSourceGUID == u.caller.source.ExternalSourceGUID ||
		owner.ExternalSourceName == u.caller.source.ExternalSourceName
}

// link ensures a relType relationship from end1 to end2 exists with props.
func (u *unit) link(ctx context.Context, relType, end1, end2 string, props metadata.Properties) error {
	rel, err := u.repo.FindRelationship(ctx, relType, end1, end2)
	if errors.Is(err, metadata.ErrRelationshipNotFound) {
		_, err = u.repo.CreateRelationship(ctx, &metadata.Relationship{
			TypeName:   relType,
			End1GUID:   end1,
			End2GUID:   end2,
			Properties: props,
			Status:     metadata.StatusActive,
			Provenance: u.caller.source,
			CreatedBy:  u.caller.userID,
		})

		return err
	}

	if err != nil {
		return err
	}

	if rel.Properties.Equal(props) {
		return nil
	}

	rel.Properties = props

	return u.repo.UpdateRelationship(ctx, rel)
}

// linkChild links parent to child, first removing any relType link from another
// parent: a child has at most one parent of each kind.
func (u *unit) linkChild(ctx context.Context, relType, parent, child string, props metadata.Properties) error {
	rels, err := u.repo.ListRelationships(ctx, metadata.RelationshipFilter{TypeName: relType, End2GUID: child})
	if err != nil {
		return err
	}

	for _, rel := range rels {
		if rel.End1GUID != parent {
			if err := u.repo.DeleteRelationship(ctx, rel.GUID); err != nil {
				return err
			}
		}
	}

	return u.link(ctx, relType, parent, child, props)
}

// linkTarget links from to target, first removing any relType link to another
// target: from points at most one entity of each kind.
func (u *unit) linkTarget(ctx context.Context, relType, from, target string) error {
	if err := u.unlinkTargets(ctx, relType, from, target); err != nil {
		return err
	}

	return u.link(ctx, relType, from, target, nil)
}

// unlinkTargets removes the relType links from from to anything but keep.
// An empty keep removes them all.
func (u *unit) unlinkTargets(ctx context.Context, relType, from, keep string) error {
	rels, err := u.repo.ListRelationships(ctx, metadata.RelationshipFilter{TypeName: relType, End1GUID: from})
	if err != nil {
		return err
	}

	for _, rel := range rels {
		if rel.End2GUID == keep {
			continue
		}

		if err := u.repo.DeleteRelationship(ctx, rel.GUID); err != nil {
			return err
		}
	}

	return nil
}

// prune removes the relType children of parent that are not in keep. Children owned
// by the caller are deleted, others are only detached.
func (u *unit) prune(
	ctx context.Context,
	relType, parent string,
	keep map[string]struct{},
	semantic metadata.DeleteSemantic,
) error {
	rels, err := u.repo.ListRelationships(ctx, metadata.RelationshipFilter{TypeName: relType, End1GUID: parent})
	if err != nil {
		return err
	}

	for _, rel := range rels {
		if _, ok := keep[rel.End2GUID]; ok {
			continue
		}

		if err := u.repo.DeleteRelationship(ctx, rel.GUID); err != nil {
			return err
		}

		child, err := u.repo.GetEntity(ctx, rel.End2GUID)
		if err != nil {
			return err
		}

		if child.Status != metadata.StatusDeleted && u.owns(child) {
			if err := u.delete(ctx, child, semantic, map[string]struct{}{parent: {}}); err != nil {
				return err
			}
		}
	}

	return nil
}

// delete removes entity together with the owned entities listed in cascades.
// visited guards against walking back into entities already being deleted.
func (u *unit) delete(
	ctx context.Context,
	entity *metadata.Entity,
	semantic metadata.DeleteSemantic,
	visited map[string]struct{},
) error {
	visited[entity.GUID] = struct{}{}

	for _, relType := range cascades[entity.TypeName] {
		rels, err := u.repo.ListRelationships(ctx, metadata.RelationshipFilter{
			TypeName:   relType,
			EntityGUID: entity.GUID,
		})
		if err != nil {
			return err
		}

		for _, rel := range rels {
			otherGUID := rel.OtherEnd(entity.GUID)
			if _, seen := visited[otherGUID]; seen {
				continue
			}

			other, err := u.repo.GetEntity(ctx, otherGUID)
			if err != nil {
				return err
			}

			if other.Status == metadata.StatusDeleted || !u.owns(other) {
				continue
			}

			if err := u.delete(ctx, other, semantic, visited); err != nil {
				return err
			}
		}
	}

	if err := u.repo.DeleteEntity(ctx, entity.GUID, semantic); err != nil {
		return err
	}

	u.deletes = append(u.deletes, entity.TypeName)

	return nil
}

// deleteByName deletes the caller-owned entity of typeName with qualifiedName.
func (u *unit) deleteByName(
	ctx context.Context,
	typeName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	entity, err := u.findOwned(ctx, typeName, qualifiedName)
	if err != nil {
		return err
	}

	return u.delete(ctx, entity, semantic.OrDefault(), map[string]struct{}{})
}

func displayType(typeName string) string {
	if typeName == "" {
		return metadata.TypeReferenceable
	}

	return typeName
}
