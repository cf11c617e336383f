package intopic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/dataengine/internal/dataengine"
	"github.com/correlator-io/dataengine/internal/metadata"
	"github.com/correlator-io/dataengine/internal/storage"
)

const (
	testUser   = "etl-runner"
	testEngine = "(engine)=airflow-prod"
)

// fakeReader serves queued messages, then fails with err or blocks until the
// context is cancelled.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	err       error
	committed []int64
	closed    int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()

	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()

		return msg, nil
	}

	err := r.err
	r.mu.Unlock()

	if err != nil {
		return kafka.Message{}, err
	}

	<-ctx.Done()

	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}

	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed++

	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int64(nil), r.committed...)
}

type messageCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *messageCounts) RecordMessage(eventType, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.counts == nil {
		m.counts = map[string]int{}
	}

	m.counts[eventType+"/"+status]++
}

func (m *messageCounts) snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}

	return out
}

type consumerEnv struct {
	consumer *Consumer
	reader   *fakeReader
	service  *dataengine.Service
	counts   *messageCounts
}

func newConsumerEnv(t *testing.T, messages ...kafka.Message) *consumerEnv {
	t.Helper()

	svc, err := dataengine.NewService(storage.NewInMemoryMetadataStore(), dataengine.Config{SourceCacheTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	reader := &fakeReader{messages: messages}
	counts := &messageCounts{}

	consumer, err := NewConsumer(&Config{}, svc,
		WithReader(reader),
		WithRecorder(counts),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	return &consumerEnv{consumer: consumer, reader: reader, service: svc, counts: counts}
}

func message(t *testing.T, offset int64, event any) kafka.Message {
	t.Helper()

	value, err := json.Marshal(event)
	require.NoError(t, err)

	return kafka.Message{Topic: defaultTopic, Offset: offset, Value: value}
}

func registrationEvent() *Event {
	return &Event{
		Type:   RegistrationEvent,
		UserID: testUser,
		SoftwareServerCapability: &metadata.SoftwareServerCapability{
			Referenceable: metadata.Referenceable{QualifiedName: testEngine},
			EngineType:    "DataEngine",
		},
	}
}

func processEvent(qualifiedName string) *Event {
	return &Event{
		Type:               ProcessEvent,
		UserID:             testUser,
		ExternalSourceName: testEngine,
		Process: &metadata.Process{
			Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: qualifiedName}},
		},
	}
}

func TestNewConsumerRequiresService(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := NewConsumer(&Config{}, nil, WithReader(&fakeReader{}))
	require.ErrorIs(t, err, ErrNoService)
}

func TestNewConsumerValidatesConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	svc, err := dataengine.NewService(storage.NewInMemoryMetadataStore(), dataengine.Config{})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	_, err = NewConsumer(&Config{}, svc)
	require.ErrorIs(t, err, ErrNoBrokers)
}

func TestParseEvent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("payload beside envelope fields", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{
			"dataEngineEventType": "process_event",
			"userId": "etl-runner",
			"externalSourceName": "(engine)=airflow-prod",
			"process": {"qualifiedName": "proc::etl"}
		}`))
		require.NoError(t, err)

		assert.Equal(t, ProcessEvent, event.Type)
		assert.Equal(t, testUser, event.UserID)
		assert.Equal(t, testEngine, event.ExternalSourceName)
		require.NotNil(t, event.Process)
		assert.Equal(t, "proc::etl", event.Process.QualifiedName)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseEvent([]byte("{"))
		require.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("unknown type", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{"dataEngineEventType":"NEW_THING_EVENT"}`))
		require.ErrorIs(t, err, ErrUnknownEventType)
		assert.Equal(t, "UNKNOWN", event.Type.label())
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"userId":"etl-runner"}`))
		require.ErrorIs(t, err, ErrUnknownEventType)
	})
}

func TestHandle(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newConsumerEnv(t)
	ctx := t.Context()

	assert.Equal(t, StatusOK, env.consumer.Handle(ctx, message(t, 0, registrationEvent())))
	assert.Equal(t, StatusOK, env.consumer.Handle(ctx, message(t, 1, processEvent("proc::etl"))))
	assert.Equal(t, StatusMalformed, env.consumer.Handle(ctx, kafka.Message{Offset: 2, Value: []byte("not json")}))
	assert.Equal(t, StatusMalformed, env.consumer.Handle(ctx, message(t, 3, &Event{
		Type: ProcessEvent, UserID: testUser, ExternalSourceName: testEngine,
	})))

	unregistered := processEvent("proc::other")
	unregistered.ExternalSourceName = "(engine)=unknown"
	assert.Equal(t, StatusFailed, env.consumer.Handle(ctx, message(t, 4, unregistered)))

	want := map[string]int{
		"DATA_ENGINE_REGISTRATION_EVENT/ok": 1,
		"PROCESS_EVENT/ok":                  1,
		"PROCESS_EVENT/malformed":           1,
		"PROCESS_EVENT/failed":              1,
		"UNKNOWN/malformed":                 1,
	}
	if diff := cmp.Diff(want, env.counts.snapshot()); diff != "" {
		t.Errorf("message counts mismatch (-want +got):\n%s", diff)
	}

	found, err := env.service.Find(ctx, &metadata.FindRequest{QualifiedName: "proc::etl"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, testUser, found[0].CreatedBy)
}

func TestDispatchCoversLineageAndDeletes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newConsumerEnv(t)
	ctx := t.Context()

	events := []*Event{
		registrationEvent(),
		processEvent("proc::extract"),
		processEvent("proc::load"),
		{
			Type: DataFlowsEvent, UserID: testUser, ExternalSourceName: testEngine,
			DataFlows: []*metadata.DataFlow{{DataSupplier: "proc::extract", DataConsumer: "proc::load"}},
		},
		{
			Type: ProcessHierarchyEvent, UserID: testUser, ExternalSourceName: testEngine,
			ParentProcess: &metadata.ParentProcess{
				QualifiedName:          "proc::extract",
				ProcessContainmentType: metadata.ContainmentOwned,
			},
			ChildProcessQualifiedName: "proc::load",
		},
		{
			Type: TopicEvent, UserID: testUser, ExternalSourceName: testEngine,
			Topic: &metadata.Topic{Asset: metadata.Asset{Referenceable: metadata.Referenceable{QualifiedName: "topic::orders"}}},
		},
		{
			Type: DeleteTopicEvent, UserID: testUser, ExternalSourceName: testEngine,
			QualifiedName: "topic::orders", DeleteSemantic: metadata.DeleteHard,
		},
	}

	for i, event := range events {
		require.Equal(t, StatusOK, env.consumer.Handle(ctx, message(t, int64(i), event)), "event %d %s", i, event.Type)
	}

	topics, err := env.service.Find(ctx, &metadata.FindRequest{QualifiedName: "topic::orders"})
	require.NoError(t, err)
	assert.Empty(t, topics)

	err = Dispatch(ctx, env.service, &Event{Type: "NOPE"})
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestRunCommitsEveryMessage(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newConsumerEnv(t,
		message(t, 10, registrationEvent()),
		kafka.Message{Offset: 11, Value: []byte("garbage")},
		message(t, 12, processEvent("proc::etl")),
	)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- env.consumer.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(env.reader.commits()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}

	assert.Equal(t, []int64{10, 11, 12}, env.reader.commits())
}

func TestRunReturnsReaderFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newConsumerEnv(t)
	env.reader.err = io.ErrUnexpectedEOF

	err := env.consumer.Run(t.Context())
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestCloseIsIdempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newConsumerEnv(t)

	require.NoError(t, env.consumer.Close())
	require.NoError(t, env.consumer.Close())
	assert.Equal(t, 1, env.reader.closed)
}
