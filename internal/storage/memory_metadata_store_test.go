package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/dataengine/internal/metadata"
)

var errRollback = errors.New("rollback")

func newTestEntity(typeName, qualifiedName string) *metadata.Entity {
	return &metadata.Entity{
		TypeName:      typeName,
		QualifiedName: qualifiedName,
		Properties:    metadata.Properties{"qualifiedName": qualifiedName, "position": 1},
		CreatedBy:     "tester",
	}
}

func TestInMemoryMetadataStoreEntities(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()

	t.Run("create assigns guid and normalizes properties", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		guid, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeProcess, "proc"))
		require.NoError(t, err)
		require.NotEmpty(t, guid)

		got, err := store.GetEntity(ctx, guid)
		require.NoError(t, err)
		assert.Equal(t, metadata.StatusActive, got.Status)
		assert.Equal(t, "tester", got.UpdatedBy)
		assert.InDelta(t, 1.0, got.Properties["position"], 0)
		assert.NotNil(t, got.Classifications)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("duplicate live qualified name is rejected across types", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		_, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeProcess, "shared"))
		require.NoError(t, err)

		_, err = store.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "shared"))
		require.ErrorIs(t, err, metadata.ErrDuplicateQualifiedName)
	})

	t.Run("find entity honours abstract types", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		_, err := store.CreateEntity(ctx, newTestEntity(metadata.TypePortAlias, "port"))
		require.NoError(t, err)

		found, err := store.FindEntity(ctx, metadata.TypePort, "port")
		require.NoError(t, err)
		assert.Equal(t, metadata.TypePortAlias, found.TypeName)

		found, err = store.FindEntity(ctx, "", "port")
		require.NoError(t, err)
		assert.Equal(t, "port", found.QualifiedName)

		_, err = store.FindEntity(ctx, metadata.TypeProcess, "port")
		require.ErrorIs(t, err, metadata.ErrEntityNotFound)
	})

	t.Run("soft delete hides entity and frees the qualified name", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		guid, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "orders"))
		require.NoError(t, err)

		require.NoError(t, store.DeleteEntity(ctx, guid, metadata.DeleteSoft))

		_, err = store.FindEntity(ctx, "", "orders")
		require.ErrorIs(t, err, metadata.ErrEntityNotFound)

		deleted, err := store.GetEntity(ctx, guid)
		require.NoError(t, err)
		assert.Equal(t, metadata.StatusDeleted, deleted.Status)

		_, err = store.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "orders"))
		require.NoError(t, err)

		require.ErrorIs(t, store.DeleteEntity(ctx, guid, metadata.DeleteSoft), metadata.ErrEntityNotFound)
		require.ErrorIs(t, store.UpdateEntityStatus(ctx, guid, metadata.StatusActive), metadata.ErrEntityNotFound)
	})

	t.Run("hard delete purges entity and provenance references", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		engineGUID, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeSoftwareServerCapability, "engine"))
		require.NoError(t, err)

		owned := newTestEntity(metadata.TypeProcess, "proc")
		owned.Provenance = metadata.Provenance{ExternalSourceGUID: engineGUID, ExternalSourceName: "engine"}
		ownedGUID, err := store.CreateEntity(ctx, owned)
		require.NoError(t, err)

		require.NoError(t, store.DeleteEntity(ctx, engineGUID, metadata.DeleteHard))

		_, err = store.GetEntity(ctx, engineGUID)
		require.ErrorIs(t, err, metadata.ErrEntityNotFound)

		got, err := store.GetEntity(ctx, ownedGUID)
		require.NoError(t, err)
		assert.Empty(t, got.Provenance.ExternalSourceGUID)
	})

	t.Run("unknown external source is rejected", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		entity := newTestEntity(metadata.TypeProcess, "proc")
		entity.Provenance = metadata.Provenance{ExternalSourceGUID: "missing", ExternalSourceName: "ghost"}

		_, err := store.CreateEntity(ctx, entity)
		require.ErrorIs(t, err, metadata.ErrUnknownExternalSource)
	})

	t.Run("update and classify", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		guid, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeSoftwareServerCapability, "engine"))
		require.NoError(t, err)

		entity, err := store.GetEntity(ctx, guid)
		require.NoError(t, err)

		entity.Properties["displayName"] = "Engine"
		entity.UpdatedBy = "other"
		require.NoError(t, store.UpdateEntity(ctx, entity))

		require.NoError(t, store.SetClassification(ctx, guid, metadata.ClassificationProcessingState,
			metadata.Properties{"syncDatesByKey": map[string]int64{"orders": 42}}))

		got, err := store.GetEntity(ctx, guid)
		require.NoError(t, err)
		assert.Equal(t, "Engine", got.Properties.StringValue("displayName"))
		assert.Equal(t, "other", got.UpdatedBy)
		assert.Equal(t,
			metadata.Properties{"syncDatesByKey": map[string]any{"orders": float64(42)}},
			got.Classifications[metadata.ClassificationProcessingState])
	})

	t.Run("find entities filters and orders", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		for _, qn := range []string{"c", "a", "b"} {
			_, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeDataFile, qn))
			require.NoError(t, err)
		}

		_, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "topic"))
		require.NoError(t, err)

		files, err := store.FindEntities(ctx, metadata.EntityFilter{TypeName: metadata.TypeDataFile})
		require.NoError(t, err)
		require.Len(t, files, 3)
		assert.Equal(t, []string{"a", "b", "c"}, qualifiedNames(files))

		assets, err := store.FindEntities(ctx, metadata.EntityFilter{TypeName: metadata.TypeAsset, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, assets, 2)

		byName, err := store.FindEntities(ctx, metadata.EntityFilter{QualifiedName: "topic"})
		require.NoError(t, err)
		assert.Equal(t, []string{"topic"}, qualifiedNames(byName))
	})

	t.Run("returned entities are copies", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		guid, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "topic"))
		require.NoError(t, err)

		got, err := store.GetEntity(ctx, guid)
		require.NoError(t, err)
		got.Properties["qualifiedName"] = "mutated"

		again, err := store.GetEntity(ctx, guid)
		require.NoError(t, err)
		assert.Equal(t, "topic", again.Properties.StringValue("qualifiedName"))
	})
}

func TestInMemoryMetadataStoreRelationships(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	store := NewInMemoryMetadataStore()

	processGUID, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeProcess, "proc"))
	require.NoError(t, err)

	portGUID, err := store.CreateEntity(ctx, newTestEntity(metadata.TypePortImplementation, "proc::port"))
	require.NoError(t, err)

	rel := &metadata.Relationship{
		TypeName:   metadata.RelProcessPort,
		End1GUID:   processGUID,
		End2GUID:   portGUID,
		Properties: metadata.Properties{"formula": "x"},
	}

	relGUID, err := store.CreateRelationship(ctx, rel)
	require.NoError(t, err)

	t.Run("duplicate is rejected", func(t *testing.T) {
		_, err := store.CreateRelationship(ctx, &metadata.Relationship{
			TypeName: metadata.RelProcessPort, End1GUID: processGUID, End2GUID: portGUID,
		})
		require.ErrorIs(t, err, metadata.ErrDuplicateRelationship)
	})

	t.Run("self reference and missing ends are rejected", func(t *testing.T) {
		_, err := store.CreateRelationship(ctx, &metadata.Relationship{
			TypeName: metadata.RelDataFlow, End1GUID: processGUID, End2GUID: processGUID,
		})
		require.ErrorIs(t, err, metadata.ErrSelfReference)

		_, err = store.CreateRelationship(ctx, &metadata.Relationship{
			TypeName: metadata.RelDataFlow, End1GUID: processGUID, End2GUID: "missing",
		})
		require.ErrorIs(t, err, metadata.ErrEntityNotFound)
	})

	t.Run("find and list", func(t *testing.T) {
		found, err := store.FindRelationship(ctx, metadata.RelProcessPort, processGUID, portGUID)
		require.NoError(t, err)
		assert.Equal(t, relGUID, found.GUID)
		assert.Equal(t, portGUID, found.OtherEnd(processGUID))

		_, err = store.FindRelationship(ctx, metadata.RelProcessPort, portGUID, processGUID)
		require.ErrorIs(t, err, metadata.ErrRelationshipNotFound)

		rels, err := store.ListRelationships(ctx, metadata.RelationshipFilter{EntityGUID: portGUID})
		require.NoError(t, err)
		assert.Len(t, rels, 1)
	})

	t.Run("update properties", func(t *testing.T) {
		found, err := store.FindRelationship(ctx, metadata.RelProcessPort, processGUID, portGUID)
		require.NoError(t, err)

		found.Properties = metadata.Properties{"formula": "y"}
		require.NoError(t, store.UpdateRelationship(ctx, found))

		again, err := store.FindRelationship(ctx, metadata.RelProcessPort, processGUID, portGUID)
		require.NoError(t, err)
		assert.Equal(t, "y", again.Properties.StringValue("formula"))
	})

	t.Run("deleting an entity removes its relationships", func(t *testing.T) {
		require.NoError(t, store.DeleteEntity(ctx, portGUID, metadata.DeleteSoft))

		rels, err := store.ListRelationships(ctx, metadata.RelationshipFilter{EntityGUID: processGUID})
		require.NoError(t, err)
		assert.Empty(t, rels)

		require.ErrorIs(t, store.DeleteRelationship(ctx, relGUID), metadata.ErrRelationshipNotFound)
	})
}

func TestInMemoryMetadataStoreTransactions(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()

	t.Run("failed transaction rolls back every change", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		keptGUID, err := store.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "kept"))
		require.NoError(t, err)

		err = store.RunInTransaction(ctx, func(ctx context.Context, repo metadata.Repository) error {
			if _, err := repo.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "discarded")); err != nil {
				return err
			}

			if err := repo.DeleteEntity(ctx, keptGUID, metadata.DeleteHard); err != nil {
				return err
			}

			return errRollback
		})
		require.ErrorIs(t, err, errRollback)

		_, err = store.FindEntity(ctx, "", "discarded")
		require.ErrorIs(t, err, metadata.ErrEntityNotFound)

		_, err = store.GetEntity(ctx, keptGUID)
		require.NoError(t, err)
	})

	t.Run("readers outside the transaction see committed contents only", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		err := store.RunInTransaction(ctx, func(ctx context.Context, repo metadata.Repository) error {
			if _, err := repo.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "pending")); err != nil {
				return err
			}

			if _, err := repo.FindEntity(ctx, "", "pending"); err != nil {
				return err
			}

			_, err := store.FindEntity(ctx, "", "pending")
			require.ErrorIs(t, err, metadata.ErrEntityNotFound)

			found, err := store.FindEntities(ctx, metadata.EntityFilter{})
			require.NoError(t, err)
			assert.Empty(t, found)

			return errRollback
		})
		require.ErrorIs(t, err, errRollback)

		err = store.RunInTransaction(ctx, func(ctx context.Context, repo metadata.Repository) error {
			_, err := repo.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "committed"))

			return err
		})
		require.NoError(t, err)

		_, err = store.FindEntity(ctx, "", "committed")
		require.NoError(t, err)
	})

	t.Run("nested transaction joins the outer one", func(t *testing.T) {
		store := NewInMemoryMetadataStore()

		err := store.RunInTransaction(ctx, func(ctx context.Context, repo metadata.Repository) error {
			return repo.RunInTransaction(ctx, func(ctx context.Context, inner metadata.Repository) error {
				_, err := inner.CreateEntity(ctx, newTestEntity(metadata.TypeTopic, "nested"))

				return err
			})
		})
		require.NoError(t, err)

		entities, relationships := store.Len()
		assert.Equal(t, 1, entities)
		assert.Zero(t, relationships)
	})
}

func qualifiedNames(entities []*metadata.Entity) []string {
	names := make([]string, len(entities))
	for i, entity := range entities {
		names[i] = entity.QualifiedName
	}

	return names
}
