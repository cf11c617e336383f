package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/dataengine/internal/api/middleware"
	"github.com/correlator-io/dataengine/internal/dataengine"
	"github.com/correlator-io/dataengine/internal/metadata"
	"github.com/correlator-io/dataengine/internal/metrics"
	"github.com/correlator-io/dataengine/internal/storage"
)

const (
	testUser    = "etl-runner"
	testEngine  = "(engine)=airflow-prod"
	otherEngine = "(engine)=spark-prod"
	testVersion = "v0.0.0-test"
)

type apiEnv struct {
	handler  http.Handler
	keys     *storage.InMemoryKeyStore
	registry *metrics.Registry
}

type envOptions struct {
	keys  *storage.InMemoryKeyStore
	repo  metadata.Repository
	limit middleware.RateLimiter
}

func testServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:               8080,
		Host:               "127.0.0.1",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           slog.LevelError,
		MaxRequestSize:     64 << 10,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Api-Key"},
		CORSMaxAge:         600,
	}
}

func newAPIEnv(t *testing.T, opts envOptions) *apiEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := metrics.NewRegistry()

	repo := opts.repo
	if repo == nil {
		repo = storage.NewInMemoryMetadataStore()
	}

	svc, err := dataengine.NewService(repo, dataengine.Config{SourceCacheTTL: time.Minute},
		dataengine.WithRecorder(registry),
		dataengine.WithLogger(logger),
	)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	deps := Dependencies{
		Service:     svc,
		RateLimiter: opts.limit,
		Metrics:     registry,
		Logger:      logger,
		Version:     testVersion,
	}
	if opts.keys != nil {
		deps.KeyStore = opts.keys
	}

	server, err := NewServer(testServerConfig(), deps)
	require.NoError(t, err)

	return &apiEnv{handler: server.Handler(), keys: opts.keys, registry: registry}
}

// do sends body as JSON. A nil body sends no body and no Content-Type.
func (e *apiEnv) do(t *testing.T, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	return rec
}

func (e *apiEnv) register(t *testing.T, engine string) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/registration", registration(engine), "")
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rec.Code, rec.Body.String())
}

func registration(engine string) RegistrationRequestBody {
	return RegistrationRequestBody{
		RequestBody: RequestBody{UserID: testUser},
		SoftwareServerCapability: &metadata.SoftwareServerCapability{
			Referenceable: metadata.Referenceable{QualifiedName: engine},
			EngineType:    "DataEngine",
		},
	}
}

func processRequest(engine string) ProcessRequestBody {
	return ProcessRequestBody{
		RequestBody: RequestBody{UserID: testUser, ExternalSourceName: engine},
		Process: &metadata.Process{
			Asset: metadata.Asset{
				Referenceable: metadata.Referenceable{QualifiedName: "proc::etl"},
				DisplayName:   "Nightly ETL",
			},
			PortImplementations: []*metadata.PortImplementation{
				{
					Port: metadata.Port{
						Referenceable: metadata.Referenceable{QualifiedName: "proc::etl::in"},
						PortType:      metadata.PortTypeInput,
					},
					SchemaType: &metadata.SchemaType{
						Referenceable: metadata.Referenceable{QualifiedName: "proc::etl::in::schema"},
						Attributes: []*metadata.Attribute{
							{Referenceable: metadata.Referenceable{QualifiedName: "proc::etl::in::id"}, DataType: "int"},
						},
					},
				},
				{
					Port: metadata.Port{
						Referenceable: metadata.Referenceable{QualifiedName: "proc::etl::out"},
						PortType:      metadata.PortTypeOutput,
					},
				},
			},
		},
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())

	return out
}

func TestNewServerRequiresService(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := NewServer(testServerConfig(), Dependencies{})
	require.ErrorIs(t, err, ErrNoService)
}

func TestProbes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newAPIEnv(t, envOptions{})

	ping := env.do(t, http.MethodGet, "/ping", nil, "")
	assert.Equal(t, http.StatusOK, ping.Code)
	assert.Equal(t, "pong", ping.Body.String())
	assert.Equal(t, testVersion, ping.Header().Get(versionHeader))
	assert.NotEmpty(t, ping.Header().Get(middleware.CorrelationIDHeader))

	ready := env.do(t, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, ready.Code)

	health := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, health.Code)

	status := decodeBody[HealthStatus](t, health)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, serviceName, status.ServiceName)
	assert.Equal(t, testVersion, status.Version)

	missing := env.do(t, http.MethodGet, "/api/v1/unknown", nil, "")
	require.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, contentTypeProblemJSON, missing.Header().Get("Content-Type"))
}

type unhealthyStore struct {
	*storage.InMemoryMetadataStore
}

func (unhealthyStore) HealthCheck(context.Context) error {
	return errors.New("connection refused")
}

func TestReadyReportsRepositoryFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newAPIEnv(t, envOptions{repo: unhealthyStore{storage.NewInMemoryMetadataStore()}})

	rec := env.do(t, http.MethodGet, "/ready", nil, "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "repository unavailable", rec.Body.String())
}

func TestRegistration(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newAPIEnv(t, envOptions{})

	created := env.do(t, http.MethodPost, "/api/v1/registration", registration(testEngine), "")
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	result := decodeBody[dataengine.UpsertResult](t, created)
	assert.Equal(t, dataengine.OutcomeCreated, result.Outcome)
	assert.NotEmpty(t, result.GUID)

	again := env.do(t, http.MethodPost, "/api/v1/registration", registration(testEngine), "")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, dataengine.OutcomeUnchanged, decodeBody[dataengine.UpsertResult](t, again).Outcome)

	lookup := env.do(t, http.MethodGet, "/api/v1/registration/"+testEngine, nil, "")
	require.Equal(t, http.StatusOK, lookup.Code)
	assert.Equal(t, result.GUID, decodeBody[GUIDResponse](t, lookup).GUID)

	unknown := env.do(t, http.MethodGet, "/api/v1/registration/(engine)=nobody", nil, "")
	assert.Equal(t, http.StatusNotFound, unknown.Code)

	deleted := env.do(t, http.MethodDelete, "/api/v1/registration", DeleteRequestBody{
		RequestBody:   RequestBody{UserID: testUser},
		QualifiedName: testEngine,
		GUID:          result.GUID,
	}, "")
	require.Equal(t, http.StatusNoContent, deleted.Code, deleted.Body.String())

	gone := env.do(t, http.MethodGet, "/api/v1/registration/"+testEngine, nil, "")
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestProcessLifecycle(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newAPIEnv(t, envOptions{})
	env.register(t, testEngine)
	env.register(t, otherEngine)

	created := env.do(t, http.MethodPost, "/api/v1/processes", processRequest(testEngine), "")
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	process := decodeBody[dataengine.UpsertResult](t, created)

	unchanged := env.do(t, http.MethodPost, "/api/v1/processes", processRequest(testEngine), "")
	require.Equal(t, http.StatusOK, unchanged.Code)
	assert.Equal(t, dataengine.OutcomeUnchanged, decodeBody[dataengine.UpsertResult](t, unchanged).Outcome)

	conflict := env.do(t, http.MethodPost, "/api/v1/processes", processRequest(otherEngine), "")
	require.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, http.StatusConflict, decodeBody[ProblemDetail](t, conflict).Status)

	entity := env.do(t, http.MethodGet, "/api/v1/entities/"+process.GUID, nil, "")
	require.Equal(t, http.StatusOK, entity.Code)

	stored := decodeBody[metadata.Entity](t, entity)
	assert.Equal(t, "proc::etl", stored.QualifiedName)
	assert.Equal(t, metadata.StatusActive, stored.Status)
	assert.Equal(t, testUser, stored.CreatedBy)

	ports := env.do(t, http.MethodGet,
		"/api/v1/entities/"+process.GUID+"/relationships?type="+metadata.RelProcessPort, nil, "")
	require.Equal(t, http.StatusOK, ports.Code)
	assert.Len(t, decodeBody[RelationshipsResponse](t, ports).Relationships, 2)

	found := env.do(t, http.MethodPost, "/api/v1/find/entities",
		metadata.FindRequest{QualifiedName: "proc::etl::in", Type: metadata.TypePort}, "")
	require.Equal(t, http.StatusOK, found.Code)
	assert.Len(t, decodeBody[EntitiesResponse](t, found).Entities, 1)

	status := env.do(t, http.MethodPut, "/api/v1/processes/status", ProcessStatusRequestBody{
		RequestBody:          RequestBody{UserID: testUser, ExternalSourceName: testEngine},
		ProcessQualifiedName: "proc::etl",
		ProcessStatus:        metadata.StatusDraft,
	}, "")
	require.Equal(t, http.StatusNoContent, status.Code, status.Body.String())

	deleted := env.do(t, http.MethodDelete, "/api/v1/processes", DeleteRequestBody{
		RequestBody:   RequestBody{UserID: testUser, ExternalSourceName: testEngine},
		QualifiedName: "proc::etl",
	}, "")
	require.Equal(t, http.StatusNoContent, deleted.Code, deleted.Body.String())

	after := env.do(t, http.MethodPost, "/api/v1/find/entities", metadata.FindRequest{QualifiedName: "proc::etl"}, "")
	require.Equal(t, http.StatusOK, after.Code)
	assert.Empty(t, decodeBody[EntitiesResponse](t, after).Entities)
}

func TestLineageRoutes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newAPIEnv(t, envOptions{})
	env.register(t, testEngine)

	caller := RequestBody{UserID: testUser, ExternalSourceName: testEngine}

	for _, qualifiedName := range []string{"proc::parent", "proc::child"} {
		rec := env.do(t, http.MethodPost, "/api/v1/processes", ProcessRequestBody{
			RequestBody: caller,
			Process:     &metadata.Process{Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: qualifiedName}}},
		}, "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	hierarchy := env.do(t, http.MethodPost, "/api/v1/process-hierarchies", ProcessHierarchyRequestBody{
		RequestBody: caller,
		ParentProcess: &metadata.ParentProcess{
			QualifiedName:          "proc::parent",
			ProcessContainmentType: metadata.ContainmentOwned,
		},
		ChildProcessQualifiedName: "proc::child",
	}, "")
	require.Equal(t, http.StatusNoContent, hierarchy.Code, hierarchy.Body.String())

	flows := env.do(t, http.MethodPost, "/api/v1/data-flows", DataFlowsRequestBody{
		RequestBody: caller,
		DataFlows:   []*metadata.DataFlow{{DataSupplier: "proc::parent", DataConsumer: "proc::child"}},
	}, "")
	require.Equal(t, http.StatusNoContent, flows.Code, flows.Body.String())

	missing := env.do(t, http.MethodPost, "/api/v1/data-flows", DataFlowsRequestBody{
		RequestBody: caller,
		DataFlows:   []*metadata.DataFlow{{DataSupplier: "proc::parent", DataConsumer: "proc::nowhere"}},
	}, "")
	assert.Equal(t, http.StatusNotFound, missing.Code)

	mappings := env.do(t, http.MethodPost, "/api/v1/lineage-mappings", LineageMappingsRequestBody{
		RequestBody:     caller,
		LineageMappings: []*metadata.LineageMapping{{SourceAttribute: "", TargetAttribute: "x"}},
	}, "")
	assert.Equal(t, http.StatusBadRequest, mappings.Code)
}

func TestAssetRoutes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newAPIEnv(t, envOptions{})
	env.register(t, testEngine)

	caller := RequestBody{UserID: testUser, ExternalSourceName: testEngine}

	testCases := []struct {
		path string
		body any
	}{
		{"/api/v1/databases", DatabaseRequestBody{RequestBody: caller, Database: &metadata.Database{
			Asset:          metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "db::sales"}},
			DatabaseType:   "postgres",
			NetworkAddress: "prod-db:5432",
			Protocol:       "postgresql",
		}}},
		{"/api/v1/database-schemas", DatabaseSchemaRequestBody{
			RequestBody:           caller,
			DatabaseQualifiedName: "db::sales",
			DatabaseSchema: &metadata.DatabaseSchema{
				Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "db::sales::public"}},
			},
		}},
		{"/api/v1/relational-tables", RelationalTableRequestBody{
			RequestBody:                 caller,
			DatabaseSchemaQualifiedName: "db::sales::public",
			RelationalTable: &metadata.RelationalTable{
				Referenceable: metadata.Referenceable{QualifiedName: "db::sales::public::orders"},
			},
		}},
		{"/api/v1/folders", FolderRequestBody{RequestBody: caller, Folder: &metadata.FileFolder{
			Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "folder::/landing"}},
		}}},
		{"/api/v1/data-files", DataFileRequestBody{RequestBody: caller, DataFile: &metadata.DataFile{
			Asset:    metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "file::/landing/orders.csv"}},
			PathName: "/landing/orders.csv",
		}}},
		{"/api/v1/topics", TopicRequestBody{RequestBody: caller, Topic: &metadata.Topic{
			Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "topic::orders"}},
		}}},
		{"/api/v1/event-types", EventTypeRequestBody{
			RequestBody:        caller,
			TopicQualifiedName: "topic::orders",
			EventType: &metadata.EventType{
				Referenceable: metadata.Referenceable{QualifiedName: "topic::orders::created"},
			},
		}},
		{"/api/v1/collections", CollectionRequestBody{RequestBody: caller, Collection: &metadata.Collection{
			Referenceable: metadata.Referenceable{QualifiedName: "collection::nightly"},
		}}},
		{"/api/v1/schema-types", SchemaTypeRequestBody{RequestBody: caller, SchemaType: &metadata.SchemaType{
			Referenceable: metadata.Referenceable{QualifiedName: "schema::orders"},
		}}},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tc.path, tc.body, "")
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			again := env.do(t, http.MethodPost, tc.path, tc.body, "")
			require.Equal(t, http.StatusOK, again.Code, again.Body.String())
		})
	}

	rec := env.do(t, http.MethodPost, "/api/v1/processes", ProcessRequestBody{
		RequestBody: caller,
		Process:     &metadata.Process{Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "proc::load"}}},
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	member := env.do(t, http.MethodPost, "/api/v1/collections/members", CollectionMemberRequestBody{
		RequestBody:             caller,
		CollectionQualifiedName: "collection::nightly",
		MemberQualifiedName:     "proc::load",
	}, "")
	require.Equal(t, http.StatusNoContent, member.Code, member.Body.String())

	for _, path := range []string{
		"/api/v1/event-types", "/api/v1/topics", "/api/v1/data-files", "/api/v1/folders",
		"/api/v1/relational-tables", "/api/v1/database-schemas", "/api/v1/databases",
		"/api/v1/collections", "/api/v1/schema-types",
	} {
		qualifiedName := map[string]string{
			"/api/v1/event-types":       "topic::orders::created",
			"/api/v1/topics":            "topic::orders",
			"/api/v1/data-files":        "file::/landing/orders.csv",
			"/api/v1/folders":           "folder::/landing",
			"/api/v1/relational-tables": "db::sales::public::orders",
			"/api/v1/database-schemas":  "db::sales::public",
			"/api/v1/databases":         "db::sales",
			"/api/v1/collections":       "collection::nightly",
			"/api/v1/schema-types":      "schema::orders",
		}[path]

		deleted := env.do(t, http.MethodDelete, path, DeleteRequestBody{
			RequestBody:    caller,
			QualifiedName:  qualifiedName,
			DeleteSemantic: metadata.DeleteHard,
		}, "")

		// the database cascade may already have removed its schema and table
		assert.Contains(t, []int{http.StatusNoContent, http.StatusNotFound}, deleted.Code, "%s: %s", path, deleted.Body)
	}
}

func TestProcessingStateRoutes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newAPIEnv(t, envOptions{})
	env.register(t, testEngine)

	rec := env.do(t, http.MethodPost, "/api/v1/processing-state", ProcessingStateRequestBody{
		RequestBody:     RequestBody{UserID: testUser, ExternalSourceName: testEngine},
		ProcessingState: &metadata.ProcessingState{SyncDatesByKey: map[string]int64{"orders": 1700000000000}},
	}, "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	state := env.do(t, http.MethodGet, "/api/v1/processing-state/"+testEngine, nil, "")
	require.Equal(t, http.StatusOK, state.Code)
	assert.Equal(t, int64(1700000000000), decodeBody[metadata.ProcessingState](t, state).SyncDatesByKey["orders"])
}

func TestRequestValidation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newAPIEnv(t, envOptions{})
	env.register(t, testEngine)

	send := func(contentType, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/processes", strings.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		return rec
	}

	testCases := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{name: "missing content type", body: `{}`, wantStatus: http.StatusUnsupportedMediaType},
		{name: "empty body", contentType: "application/json", wantStatus: http.StatusBadRequest},
		{name: "invalid JSON", contentType: "application/json", body: `{"process":`, wantStatus: http.StatusBadRequest},
		{
			name:        "oversized body",
			contentType: "application/json",
			body:        `{"process":{"qualifiedName":"` + strings.Repeat("x", 70<<10) + `"}}`,
			wantStatus:  http.StatusRequestEntityTooLarge,
		},
		{
			name:        "missing process",
			contentType: "application/json; charset=utf-8",
			body:        `{"userId":"etl-runner","externalSourceName":"(engine)=airflow-prod"}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "missing user",
			contentType: "application/json",
			body:        `{"externalSourceName":"(engine)=airflow-prod","process":{"qualifiedName":"p"}}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "unknown external source",
			contentType: "application/json",
			body:        `{"userId":"etl-runner","externalSourceName":"(engine)=nobody","process":{"qualifiedName":"p"}}`,
			wantStatus:  http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := send(tc.contentType, tc.body)
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())

			problem := decodeBody[ProblemDetail](t, rec)
			assert.Equal(t, tc.wantStatus, problem.Status)
			assert.Equal(t, "/api/v1/processes", problem.Instance)
			assert.NotEmpty(t, problem.CorrelationID)
		})
	}
}

func TestAuthentication(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	writerKey, err := storage.GenerateAPIKey("airflow-prod")
	require.NoError(t, err)

	readerKey, err := storage.GenerateAPIKey("catalog")
	require.NoError(t, err)

	keys := storage.NewInMemoryKeyStore()
	require.NoError(t, keys.Add(t.Context(), &storage.APIKey{
		ID:          "writer",
		Key:         writerKey,
		ClientID:    "airflow-prod",
		Permissions: []string{storage.PermissionMetadataRead, storage.PermissionMetadataWrite},
		Active:      true,
	}))
	require.NoError(t, keys.Add(t.Context(), &storage.APIKey{
		ID:          "reader",
		Key:         readerKey,
		ClientID:    "catalog",
		Permissions: []string{storage.PermissionMetadataRead},
		Active:      true,
	}))

	env := newAPIEnv(t, envOptions{keys: keys})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/ping", nil, "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics", nil, "").Code)

	anonymous := env.do(t, http.MethodPost, "/api/v1/registration", registration(testEngine), "")
	assert.Equal(t, http.StatusUnauthorized, anonymous.Code)

	readOnly := env.do(t, http.MethodPost, "/api/v1/registration", registration(testEngine), readerKey)
	assert.Equal(t, http.StatusForbidden, readOnly.Code)

	body := registration(testEngine)
	body.UserID = "spoofed"

	created := env.do(t, http.MethodPost, "/api/v1/registration", body, writerKey)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	result := decodeBody[dataengine.UpsertResult](t, created)

	entity := env.do(t, http.MethodGet, "/api/v1/entities/"+result.GUID, nil, readerKey)
	require.Equal(t, http.StatusOK, entity.Code)
	assert.Equal(t, "airflow-prod", decodeBody[metadata.Entity](t, entity).CreatedBy)
}

func TestRateLimiting(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	limiter := middleware.NewInMemoryRateLimiter(&middleware.Config{
		GlobalRPS:   100,
		ClientRPS:   100,
		UnAuthRPS:   1,
		UnAuthBurst: 2,
	}, nil)
	t.Cleanup(limiter.Close)

	env := newAPIEnv(t, envOptions{limit: limiter})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/health", nil, "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newAPIEnv(t, envOptions{})
	env.register(t, testEngine)

	rec := env.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `dataengine_upserts_total{entity_type="SoftwareServerCapability",outcome="created"} 1`)
	assert.Contains(t, body, `dataengine_http_requests_total{method="POST",status="201"} 1`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	svc, err := dataengine.NewService(storage.NewInMemoryMetadataStore(), dataengine.Config{SourceCacheTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	server, err := NewServer(testServerConfig(), Dependencies{
		Service: svc,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- server.Serve(ctx, listener)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/ping") //nolint: noctx
		if err != nil {
			return false
		}

		_ = resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
