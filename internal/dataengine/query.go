package dataengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// Find returns the live entities matching req. A GUID takes precedence over a
// qualified name; Type may name an abstract type such as Port or Asset.
func (s *Service) Find(ctx context.Context, req *metadata.FindRequest) ([]*metadata.Entity, error) {
	if err := s.validator.ValidateFindRequest(req); err != nil {
		return nil, err
	}

	filter := metadata.EntityFilter{TypeName: req.Type}

	if guid := strings.TrimSpace(req.GUID); guid != "" {
		filter.GUID = guid
	} else {
		filter.QualifiedName = s.resolver.ResolveQualifiedName(strings.TrimSpace(req.QualifiedName))
	}

	return s.repo.FindEntities(ctx, filter)
}

// GetEntity returns an entity by GUID, including soft-deleted ones.
func (s *Service) GetEntity(ctx context.Context, guid string) (*metadata.Entity, error) {
	if strings.TrimSpace(guid) == "" {
		return nil, metadata.ErrMissingFindCriteria
	}

	return s.repo.GetEntity(ctx, guid)
}

// ListRelationships returns the relationships of an entity, optionally of one type.
func (s *Service) ListRelationships(ctx context.Context, guid, typeName string) ([]*metadata.Relationship, error) {
	if _, err := s.GetEntity(ctx, guid); err != nil {
		return nil, err
	}

	return s.repo.ListRelationships(ctx, metadata.RelationshipFilter{TypeName: typeName, EntityGUID: guid})
}

// HealthChecker is implemented by repositories that can report their health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck reports the health of the repository. Repositories without a health
// check are always healthy.
func (s *Service) HealthCheck(ctx context.Context) error {
	checker, ok := s.repo.(HealthChecker)
	if !ok {
		return nil
	}

	if err := checker.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %w", metadata.ErrRepositoryUnavailable, err)
	}

	return nil
}
