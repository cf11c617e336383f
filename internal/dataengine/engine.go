package dataengine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/jellydator/ttlcache/v3"

	"github.com/correlator-io/dataengine/internal/metadata"
)

const syncDatesKey = "syncDatesByKey"

// RegisterExternalDataEngine upserts the software server capability that represents an
// external engine. Registered engines are the external sources every other write names.
func (s *Service) RegisterExternalDataEngine(
	ctx context.Context,
	userID string,
	engine *metadata.SoftwareServerCapability,
) (UpsertResult, error) {
	const operation = "register_external_data_engine"

	if strings.TrimSpace(userID) == "" {
		return UpsertResult{}, s.fail(ctx, operation, metadata.ErrMissingUserID)
	}

	if err := s.validator.ValidateEngine(engine); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	var result UpsertResult

	err := s.writeAs(ctx, operation, caller{userID: userID}, func(ctx context.Context, u *unit) error {
		var err error

		result, err = u.upsert(ctx, entitySpec{
			typeName:      metadata.TypeSoftwareServerCapability,
			qualifiedName: engine.QualifiedName,
			properties:    engine.EntityProperties(),
		})

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	s.sources.Set(engine.QualifiedName, result.GUID, ttlcache.DefaultTTL)

	return result, nil
}

// GetExternalDataEngine returns the GUID of the registered engine with qualifiedName.
// Aliased names resolve to their canonical engine.
func (s *Service) GetExternalDataEngine(ctx context.Context, qualifiedName string) (string, error) {
	if strings.TrimSpace(qualifiedName) == "" {
		return "", metadata.ErrMissingQualifiedName
	}

	return s.sourceGUID(ctx, s.resolver.ResolveExternalSource(qualifiedName))
}

// DeleteExternalDataEngine deletes a registered engine identified by qualified name,
// GUID or both. Entities the engine reported stay in place.
func (s *Service) DeleteExternalDataEngine(
	ctx context.Context,
	userID, qualifiedName, guid string,
	semantic metadata.DeleteSemantic,
) error {
	const operation = "delete_external_data_engine"

	if strings.TrimSpace(userID) == "" {
		return s.fail(ctx, operation, metadata.ErrMissingUserID)
	}

	if qualifiedName == "" && guid == "" {
		return s.fail(ctx, operation, metadata.ErrMissingQualifiedName)
	}

	if !semantic.IsValid() {
		return s.fail(ctx, operation, fmt.Errorf("%w: %s", metadata.ErrInvalidDeleteSemantic, semantic))
	}

	var deleted string

	err := s.writeAs(ctx, operation, caller{userID: userID}, func(ctx context.Context, u *unit) error {
		engine, err := u.lookupEngine(ctx, qualifiedName, guid)
		if err != nil {
			return err
		}

		deleted = engine.QualifiedName

		if err := u.repo.DeleteEntity(ctx, engine.GUID, semantic.OrDefault()); err != nil {
			return err
		}

		u.deletes = append(u.deletes, engine.TypeName)

		return nil
	})
	if err != nil {
		return err
	}

	s.sources.Delete(deleted)

	return nil
}

func (u *unit) lookupEngine(ctx context.Context, qualifiedName, guid string) (*metadata.Entity, error) {
	if guid == "" {
		return u.find(ctx, metadata.TypeSoftwareServerCapability, qualifiedName)
	}

	engine, err := u.repo.GetEntity(ctx, guid)
	if err != nil {
		return nil, err
	}

	if engine.Status == metadata.StatusDeleted {
		return nil, fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)
	}

	if err := u.checkType(engine, metadata.TypeSoftwareServerCapability); err != nil {
		return nil, err
	}

	if qualifiedName != "" && engine.QualifiedName != qualifiedName {
		return nil, fmt.Errorf("%w: guid %s does not identify %s",
			metadata.ErrInvalidParameter, guid, qualifiedName)
	}

	return engine, nil
}

// UpsertProcessingState merges sync timestamps into the ProcessingState classification
// of the calling engine. Keys not in state keep their previous value.
func (s *Service) UpsertProcessingState(
	ctx context.Context,
	userID, externalSourceName string,
	state *metadata.ProcessingState,
) error {
	const operation = "upsert_processing_state"

	if err := s.validator.ValidateProcessingState(state); err != nil {
		return s.fail(ctx, operation, err)
	}

	return s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		engine, err := u.repo.GetEntity(ctx, u.caller.source.ExternalSourceGUID)
		if err != nil {
			return err
		}

		merged := syncDates(engine.Classifications[metadata.ClassificationProcessingState])
		maps.Copy(merged, state.SyncDatesByKey)

		return u.repo.SetClassification(ctx, engine.GUID, metadata.ClassificationProcessingState,
			metadata.Properties{syncDatesKey: merged})
	})
}

// GetProcessingState returns the sync timestamps stored for an engine. An engine that
// never reported any has an empty state.
func (s *Service) GetProcessingState(ctx context.Context, externalSourceName string) (*metadata.ProcessingState, error) {
	if strings.TrimSpace(externalSourceName) == "" {
		return nil, metadata.ErrMissingExternalSource
	}

	guid, err := s.sourceGUID(ctx, s.resolver.ResolveExternalSource(externalSourceName))
	if err != nil {
		return nil, err
	}

	engine, err := s.repo.GetEntity(ctx, guid)
	if errors.Is(err, metadata.ErrEntityNotFound) {
		return nil, fmt.Errorf("%w: %s", metadata.ErrUnknownExternalSource, externalSourceName)
	}

	if err != nil {
		return nil, err
	}

	return &metadata.ProcessingState{
		SyncDatesByKey: syncDates(engine.Classifications[metadata.ClassificationProcessingState]),
	}, nil
}

// syncDates decodes the stored timestamp map. JSON storage turns the values into float64.
func syncDates(props metadata.Properties) map[string]int64 {
	out := map[string]int64{}

	stored, ok := props[syncDatesKey].(map[string]any)
	if !ok {
		return out
	}

	for key, value := range stored {
		switch v := value.(type) {
		case float64:
			out[key] = int64(v)
		case int64:
			out[key] = v
		case int:
			out[key] = int64(v)
		}
	}

	return out
}
