// Package dataengine implements the data engine handlers: external engines register
// themselves and report lineage metadata, which is upserted by qualified name into a
// metadata.Repository.
//
// Every write follows the same shape. The caller and its external source are resolved,
// the request is validated, and then, inside one repository transaction, each entity is
// looked up by qualified name, created when absent, otherwise compared and updated only
// when its properties changed. Relationships are linked or re-linked last.
package dataengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/correlator-io/dataengine/internal/aliasing"
	"github.com/correlator-io/dataengine/internal/metadata"
)

// Outcome tells what an upsert did to the addressed entity.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// UpsertResult is returned by every upsert.
type UpsertResult struct {
	GUID    string  `json:"guid"`
	Outcome Outcome `json:"outcome"`
}

// Recorder receives operation counts. Implemented by metrics.Registry.
type Recorder interface {
	RecordUpsert(entityType, outcome string)
	RecordDelete(entityType string)
	RecordError(operation string)
}

type noopRecorder struct{}

func (noopRecorder) RecordUpsert(string, string) {}
func (noopRecorder) RecordDelete(string)         {}
func (noopRecorder) RecordError(string)          {}

// Service implements the data engine operations over a metadata.Repository.
// It is safe for concurrent use.
type Service struct {
	repo      metadata.Repository
	validator *metadata.Validator
	resolver  *aliasing.Resolver
	recorder  Recorder
	logger    *slog.Logger
	sources   *ttlcache.Cache[string, string]
}

// Option configures a Service.
type Option func(*Service)

// WithResolver sets the alias resolver applied to external source names and
// referenced qualified names.
func WithResolver(resolver *aliasing.Resolver) Option {
	return func(s *Service) {
		s.resolver = resolver
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service and starts the expiry loop of its external source cache.
// Call Close to stop it.
func NewService(repo metadata.Repository, cfg Config, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("dataengine: repository is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cacheOpts := []ttlcache.Option[string, string]{
		ttlcache.WithTTL[string, string](cfg.SourceCacheTTL),
	}
	if cfg.SourceCacheCapacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, string](cfg.SourceCacheCapacity))
	}

	s := &Service{
		repo:      repo,
		validator: metadata.NewValidator(),
		recorder:  noopRecorder{},
		logger:    slog.Default(),
		sources:   ttlcache.New(cacheOpts...),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.sources.Start()

	return s, nil
}

// Close stops the cache expiry loop.
func (s *Service) Close() {
	s.sources.Stop()
}

// caller identifies who is writing and on behalf of which registered engine.
type caller struct {
	userID string
	source metadata.Provenance
}

// resolveCaller validates the caller identity and resolves the external source GUID.
func (s *Service) resolveCaller(ctx context.Context, userID, externalSourceName string) (caller, error) {
	if err := s.validator.ValidateCaller(userID, externalSourceName); err != nil {
		return caller{}, err
	}

	name := s.resolver.ResolveExternalSource(externalSourceName)

	guid, err := s.sourceGUID(ctx, name)
	if err != nil {
		return caller{}, err
	}

	return caller{
		userID: userID,
		source: metadata.Provenance{ExternalSourceGUID: guid, ExternalSourceName: name},
	}, nil
}

// sourceGUID returns the GUID of the registered engine with qualifiedName.
func (s *Service) sourceGUID(ctx context.Context, qualifiedName string) (string, error) {
	if item := s.sources.Get(qualifiedName); item != nil {
		return item.Value(), nil
	}

	engine, err := s.repo.FindEntity(ctx, metadata.TypeSoftwareServerCapability, qualifiedName)
	if errors.Is(err, metadata.ErrEntityNotFound) {
		return "", fmt.Errorf("%w: %s", metadata.ErrUnknownExternalSource, qualifiedName)
	}

	if err != nil {
		return "", err
	}

	s.sources.Set(qualifiedName, engine.GUID, ttlcache.DefaultTTL)

	return engine.GUID, nil
}

// write resolves the caller and runs fn in a transaction.
func (s *Service) write(
	ctx context.Context,
	operation, userID, externalSourceName string,
	fn func(ctx context.Context, u *unit) error,
) error {
	c, err := s.resolveCaller(ctx, userID, externalSourceName)
	if err != nil {
		return s.fail(ctx, operation, err)
	}

	return s.writeAs(ctx, operation, c, fn)
}

// writeAs runs fn in a transaction on behalf of c. Counts are recorded only after commit.
func (s *Service) writeAs(
	ctx context.Context,
	operation string,
	c caller,
	fn func(ctx context.Context, u *unit) error,
) error {
	start := time.Now()

	var committed *unit

	err := s.repo.RunInTransaction(ctx, func(ctx context.Context, repo metadata.Repository) error {
		u := &unit{svc: s, repo: repo, caller: c}
		if err := fn(ctx, u); err != nil {
			return err
		}

		committed = u

		return nil
	})
	if err != nil {
		return s.fail(ctx, operation, err)
	}

	for _, event := range committed.upserts {
		s.recorder.RecordUpsert(event.typeName, string(event.outcome))
	}

	for _, typeName := range committed.deletes {
		s.recorder.RecordDelete(typeName)
	}

	s.logger.DebugContext(ctx, "data engine operation completed",
		slog.String("operation", operation),
		slog.String("external_source", c.source.ExternalSourceName),
		slog.Int("upserts", len(committed.upserts)),
		slog.Int("deletes", len(committed.deletes)),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

// fail counts and logs a failed operation. Caller mistakes are logged at warn level.
func (s *Service) fail(ctx context.Context, operation string, err error) error {
	s.recorder.RecordError(operation)

	level := slog.LevelError
	if isClientError(err) {
		level = slog.LevelWarn
	}

	s.logger.Log(ctx, level, "data engine operation failed",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)

	return err
}

func isClientError(err error) bool {
	for _, target := range []error{
		metadata.ErrInvalidParameter,
		metadata.ErrEntityNotFound,
		metadata.ErrRelationshipNotFound,
		metadata.ErrUnknownExternalSource,
		metadata.ErrNotOwner,
		metadata.ErrTypeMismatch,
		metadata.ErrDuplicateQualifiedName,
		metadata.ErrDuplicateRelationship,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
