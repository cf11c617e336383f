package dataengine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/dataengine/internal/aliasing"
	"github.com/correlator-io/dataengine/internal/metadata"
	"github.com/correlator-io/dataengine/internal/storage"
)

const (
	testUser   = "etl-runner"
	testEngine = "(engine)=airflow-prod"
	otherUser  = "spark-runner"
	other      = "(engine)=spark-prod"
)

type countingRecorder struct {
	mu      sync.Mutex
	upserts map[string]int
	deletes map[string]int
	errors  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		upserts: map[string]int{},
		deletes: map[string]int{},
		errors:  map[string]int{},
	}
}

func (r *countingRecorder) RecordUpsert(entityType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.upserts[entityType+"/"+outcome]++
}

func (r *countingRecorder) RecordDelete(entityType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deletes[entityType]++
}

func (r *countingRecorder) RecordError(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors[operation]++
}

type testEnv struct {
	svc      *Service
	store    *storage.InMemoryMetadataStore
	recorder *countingRecorder
}

// newTestEnv returns a service over an empty in-memory store with testEngine and
// other registered.
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	store := storage.NewInMemoryMetadataStore()
	recorder := newCountingRecorder()

	opts = append([]Option{WithRecorder(recorder)}, opts...)

	svc, err := NewService(store, Config{SourceCacheTTL: time.Minute}, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	for _, engine := range []string{testEngine, other} {
		_, err := svc.RegisterExternalDataEngine(t.Context(), testUser, &metadata.SoftwareServerCapability{
			Referenceable: metadata.Referenceable{QualifiedName: engine},
			EngineType:    "DataEngine",
		})
		require.NoError(t, err)
	}

	return &testEnv{svc: svc, store: store, recorder: recorder}
}

func (e *testEnv) entity(t *testing.T, qualifiedName string) *metadata.Entity {
	t.Helper()

	entity, err := e.store.FindEntity(t.Context(), "", qualifiedName)
	require.NoError(t, err, "entity %s", qualifiedName)

	return entity
}

func (e *testEnv) absent(t *testing.T, qualifiedName string) {
	t.Helper()

	_, err := e.store.FindEntity(t.Context(), "", qualifiedName)
	require.ErrorIs(t, err, metadata.ErrEntityNotFound, "entity %s should not exist", qualifiedName)
}

func (e *testEnv) linked(t *testing.T, relType, end1QualifiedName, end2QualifiedName string) *metadata.Relationship {
	t.Helper()

	rel, err := e.store.FindRelationship(t.Context(), relType,
		e.entity(t, end1QualifiedName).GUID, e.entity(t, end2QualifiedName).GUID)
	require.NoError(t, err, "%s %s → %s", relType, end1QualifiedName, end2QualifiedName)

	return rel
}

func (e *testEnv) relationships(t *testing.T, relType, qualifiedName string) []*metadata.Relationship {
	t.Helper()

	rels, err := e.store.ListRelationships(t.Context(), metadata.RelationshipFilter{
		TypeName:   relType,
		EntityGUID: e.entity(t, qualifiedName).GUID,
	})
	require.NoError(t, err)

	return rels
}

func TestNewService(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := NewService(nil, Config{SourceCacheTTL: time.Minute})
	require.Error(t, err)

	_, err = NewService(storage.NewInMemoryMetadataStore(), Config{})
	require.ErrorIs(t, err, ErrInvalidSourceCacheTTL)
}

func TestLoadConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("DATAENGINE_SOURCE_CACHE_TTL", "30s")
	t.Setenv("DATAENGINE_SOURCE_CACHE_CAPACITY", "-5")

	cfg := LoadConfig()
	assert.Equal(t, 30*time.Second, cfg.SourceCacheTTL)
	assert.Zero(t, cfg.SourceCacheCapacity)
	require.NoError(t, cfg.Validate())
}

func TestRegisterExternalDataEngine(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	env := newTestEnv(t)

	engine := &metadata.SoftwareServerCapability{
		Referenceable: metadata.Referenceable{QualifiedName: "(engine)=nifi"},
		EngineType:    "DataEngine",
		EngineVersion: "1.0",
	}

	created, err := env.svc.RegisterExternalDataEngine(ctx, testUser, engine)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, created.Outcome)

	again, err := env.svc.RegisterExternalDataEngine(ctx, testUser, engine)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{GUID: created.GUID, Outcome: OutcomeUnchanged}, again)

	engine.EngineVersion = "1.1"

	updated, err := env.svc.RegisterExternalDataEngine(ctx, testUser, engine)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{GUID: created.GUID, Outcome: OutcomeUpdated}, updated)

	guid, err := env.svc.GetExternalDataEngine(ctx, "(engine)=nifi")
	require.NoError(t, err)
	assert.Equal(t, created.GUID, guid)

	_, err = env.svc.GetExternalDataEngine(ctx, "(engine)=unknown")
	require.ErrorIs(t, err, metadata.ErrUnknownExternalSource)

	_, err = env.svc.RegisterExternalDataEngine(ctx, "", engine)
	require.ErrorIs(t, err, metadata.ErrMissingUserID)

	_, err = env.svc.RegisterExternalDataEngine(ctx, testUser, nil)
	require.ErrorIs(t, err, metadata.ErrInvalidParameter)
}

func TestDeleteExternalDataEngine(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	env := newTestEnv(t)

	_, err := env.svc.UpsertFolder(ctx, testUser, testEngine, &metadata.FileFolder{
		Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "folder"}},
	})
	require.NoError(t, err)

	otherGUID, err := env.svc.GetExternalDataEngine(ctx, other)
	require.NoError(t, err)

	err = env.svc.DeleteExternalDataEngine(ctx, testUser, testEngine, otherGUID, metadata.DeleteSoft)
	require.ErrorIs(t, err, metadata.ErrInvalidParameter)

	require.NoError(t, env.svc.DeleteExternalDataEngine(ctx, testUser, testEngine, "", ""))

	// The cache entry is evicted, so the engine can no longer write.
	_, err = env.svc.UpsertFolder(ctx, testUser, testEngine, &metadata.FileFolder{
		Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "folder2"}},
	})
	require.ErrorIs(t, err, metadata.ErrUnknownExternalSource)

	env.entity(t, "folder")

	require.NoError(t, env.svc.DeleteExternalDataEngine(ctx, testUser, "", otherGUID, metadata.DeleteHard))

	_, err = env.store.GetEntity(ctx, otherGUID)
	require.ErrorIs(t, err, metadata.ErrEntityNotFound)

	err = env.svc.DeleteExternalDataEngine(ctx, testUser, "", "", "")
	require.ErrorIs(t, err, metadata.ErrMissingQualifiedName)

	err = env.svc.DeleteExternalDataEngine(ctx, testUser, testEngine, "", "PURGE")
	require.ErrorIs(t, err, metadata.ErrInvalidDeleteSemantic)
}

func TestReRegisteredEngineKeepsOwnership(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	env := newTestEnv(t)

	folder := &metadata.FileFolder{
		Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "folder"}},
	}

	_, err := env.svc.UpsertFolder(ctx, testUser, testEngine, folder)
	require.NoError(t, err)

	oldGUID, err := env.svc.GetExternalDataEngine(ctx, testEngine)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteExternalDataEngine(ctx, testUser, testEngine, "", ""))

	result, err := env.svc.RegisterExternalDataEngine(ctx, testUser, &metadata.SoftwareServerCapability{
		Referenceable: metadata.Referenceable{QualifiedName: testEngine},
		EngineType:    "DataEngine",
	})
	require.NoError(t, err)
	assert.NotEqual(t, oldGUID, result.GUID)

	folder.Description = "landing zone"

	updated, err := env.svc.UpsertFolder(ctx, testUser, testEngine, folder)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, updated.Outcome)

	folder.Description = "raw zone"

	_, err = env.svc.UpsertFolder(ctx, otherUser, other, folder)
	require.ErrorIs(t, err, metadata.ErrNotOwner)

	require.NoError(t, env.svc.DeleteFolder(ctx, testUser, testEngine, "folder", metadata.DeleteSoft))
	env.absent(t, "folder")
}

func TestExternalSourceAliases(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	resolver := aliasing.NewResolver(&aliasing.Config{
		ExternalSourceAliases: map[string]string{"airflow": testEngine},
		QualifiedNamePatterns: []aliasing.QualifiedNamePattern{
			{Pattern: "legacy::{name}", Canonical: "proc::{name}"},
		},
	})
	env := newTestEnv(t, WithResolver(resolver))

	result, err := env.svc.UpsertProcess(ctx, testUser, "airflow", &metadata.Process{
		Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "proc::child"}},
		ParentProcesses: []*metadata.ParentProcess{
			{QualifiedName: "legacy::parent", ProcessContainmentType: metadata.ContainmentOwned},
		},
	})
	require.ErrorIs(t, err, metadata.ErrEntityNotFound)
	assert.Empty(t, result.GUID)

	_, err = env.svc.UpsertProcess(ctx, testUser, "airflow", &metadata.Process{
		Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "proc::parent"}},
	})
	require.NoError(t, err)

	_, err = env.svc.UpsertProcess(ctx, testUser, "airflow", &metadata.Process{
		Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "proc::child"}},
		ParentProcesses: []*metadata.ParentProcess{
			{QualifiedName: "legacy::parent", ProcessContainmentType: metadata.ContainmentOwned},
		},
	})
	require.NoError(t, err)

	child := env.entity(t, "proc::child")
	assert.Equal(t, testEngine, child.Provenance.ExternalSourceName)
	env.linked(t, metadata.RelProcessHierarchy, "proc::parent", "proc::child")

	guid, err := env.svc.GetExternalDataEngine(ctx, "airflow")
	require.NoError(t, err)
	assert.Equal(t, child.Provenance.ExternalSourceGUID, guid)
}

func TestCallerValidation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	env := newTestEnv(t)
	folder := &metadata.FileFolder{Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "f"}}}

	_, err := env.svc.UpsertFolder(ctx, "", testEngine, folder)
	require.ErrorIs(t, err, metadata.ErrMissingUserID)

	_, err = env.svc.UpsertFolder(ctx, testUser, "", folder)
	require.ErrorIs(t, err, metadata.ErrMissingExternalSource)

	_, err = env.svc.UpsertFolder(ctx, testUser, "(engine)=ghost", folder)
	require.ErrorIs(t, err, metadata.ErrUnknownExternalSource)

	assert.Equal(t, 3, env.recorder.errors["upsert_folder"])
	env.absent(t, "f")
}

func TestOwnershipAndTypes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	env := newTestEnv(t)

	topic := &metadata.Topic{Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "orders"}}}

	_, err := env.svc.UpsertTopic(ctx, testUser, testEngine, topic)
	require.NoError(t, err)

	topic.TopicType = "kafka"

	_, err = env.svc.UpsertTopic(ctx, otherUser, other, topic)
	require.ErrorIs(t, err, metadata.ErrNotOwner)

	err = env.svc.DeleteTopic(ctx, otherUser, other, "orders", metadata.DeleteSoft)
	require.ErrorIs(t, err, metadata.ErrNotOwner)

	_, err = env.svc.UpsertCollection(ctx, testUser, testEngine, &metadata.Collection{
		Referenceable: metadata.Referenceable{QualifiedName: "orders"},
	})
	require.ErrorIs(t, err, metadata.ErrTypeMismatch)

	assert.Empty(t, env.entity(t, "orders").Properties.StringValue("topicType"))
}

func TestMetricsAreRecordedOnCommit(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	env := newTestEnv(t)

	_, err := env.svc.UpsertProcess(ctx, testUser, testEngine, &metadata.Process{
		Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "proc"}},
		PortAliases: []*metadata.PortAlias{{
			Port:        metadata.Port{Referenceable: metadata.Referenceable{QualifiedName: "proc::alias"}},
			DelegatesTo: "missing-port",
		}},
	})
	require.ErrorIs(t, err, metadata.ErrEntityNotFound)

	assert.Zero(t, env.recorder.upserts[metadata.TypeProcess+"/created"])
	assert.Equal(t, 1, env.recorder.errors["upsert_process"])
	env.absent(t, "proc")
	env.absent(t, "proc::alias")

	_, err = env.svc.UpsertProcess(ctx, testUser, testEngine, &metadata.Process{
		Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "proc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, env.recorder.upserts[metadata.TypeProcess+"/created"])
}

func TestReadHelpers(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	env := newTestEnv(t)

	topic, err := env.svc.UpsertTopic(ctx, testUser, testEngine, &metadata.Topic{
		Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "orders"}},
		EventTypes: []*metadata.EventType{
			{Referenceable: metadata.Referenceable{QualifiedName: "orders::created"}},
		},
	})
	require.NoError(t, err)

	found, err := env.svc.Find(ctx, &metadata.FindRequest{QualifiedName: "orders", Type: metadata.TypeAsset})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, topic.GUID, found[0].GUID)

	found, err = env.svc.Find(ctx, &metadata.FindRequest{GUID: topic.GUID, Type: metadata.TypePort})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = env.svc.Find(ctx, &metadata.FindRequest{})
	require.ErrorIs(t, err, metadata.ErrMissingFindCriteria)

	_, err = env.svc.Find(ctx, &metadata.FindRequest{QualifiedName: "orders", Type: "Spaceship"})
	require.ErrorIs(t, err, metadata.ErrUnknownType)

	entity, err := env.svc.GetEntity(ctx, topic.GUID)
	require.NoError(t, err)
	assert.Equal(t, metadata.TypeTopic, entity.TypeName)

	rels, err := env.svc.ListRelationships(ctx, topic.GUID, metadata.RelSchemaTypeOption)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	_, err = env.svc.ListRelationships(ctx, "missing", "")
	require.ErrorIs(t, err, metadata.ErrEntityNotFound)

	require.NoError(t, env.svc.HealthCheck(ctx))
}

func TestConcurrentUpserts(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	env := newTestEnv(t)

	var wg sync.WaitGroup

	results := make(chan UpsertResult, 10)

	for range 10 {
		wg.Go(func() {
			result, err := env.svc.UpsertCollection(ctx, testUser, testEngine, &metadata.Collection{
				Referenceable: metadata.Referenceable{QualifiedName: "shared"},
			})
			if err != nil {
				t.Errorf("UpsertCollection() unexpected error: %v", err)

				return
			}

			results <- result
		})
	}

	wg.Wait()
	close(results)

	created := 0
	guids := map[string]struct{}{}

	for result := range results {
		guids[result.GUID] = struct{}{}

		if result.Outcome == OutcomeCreated {
			created++
		}
	}

	assert.Equal(t, 1, created)
	assert.Len(t, guids, 1)
}
