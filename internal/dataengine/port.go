package dataengine

import (
	"context"
	"strings"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// UpsertPortImplementation upserts a port of the process processQualifiedName,
// together with its schema type.
func (s *Service) UpsertPortImplementation(
	ctx context.Context,
	userID, externalSourceName string,
	port *metadata.PortImplementation,
	processQualifiedName string,
) (UpsertResult, error) {
	const operation = "upsert_port_implementation"

	if err := s.validator.ValidatePortImplementation(port); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	if strings.TrimSpace(processQualifiedName) == "" {
		return UpsertResult{}, s.fail(ctx, operation, metadata.ErrMissingParentName)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		process, err := u.find(ctx, metadata.TypeProcess, processQualifiedName)
		if err != nil {
			return err
		}

		result, err = u.upsertPortImplementation(ctx, port, process.GUID)

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// UpsertPortAlias upserts a port alias of the process processQualifiedName and
// points it at the port it delegates to.
func (s *Service) UpsertPortAlias(
	ctx context.Context,
	userID, externalSourceName string,
	port *metadata.PortAlias,
	processQualifiedName string,
) (UpsertResult, error) {
	const operation = "upsert_port_alias"

	if err := s.validator.ValidatePortAlias(port); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	if strings.TrimSpace(processQualifiedName) == "" {
		return UpsertResult{}, s.fail(ctx, operation, metadata.ErrMissingParentName)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		process, err := u.find(ctx, metadata.TypeProcess, processQualifiedName)
		if err != nil {
			return err
		}

		result, err = u.upsertPortAlias(ctx, port, process.GUID)

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// DeletePort deletes a port implementation or alias. A port implementation takes its
// schema type with it.
func (s *Service) DeletePort(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_port", userID, externalSourceName,
		metadata.TypePort, qualifiedName, semantic)
}

func (u *unit) upsertPortImplementation(
	ctx context.Context,
	port *metadata.PortImplementation,
	processGUID string,
) (UpsertResult, error) {
	result, err := u.upsert(ctx, entitySpec{
		typeName:      metadata.TypePortImplementation,
		qualifiedName: port.QualifiedName,
		properties:    port.EntityProperties(),
	})
	if err != nil {
		return UpsertResult{}, err
	}

	if err := u.linkChild(ctx, metadata.RelProcessPort, processGUID, result.GUID, nil); err != nil {
		return UpsertResult{}, err
	}

	if port.SchemaType == nil {
		return result, nil
	}

	schema, err := u.upsertSchemaType(ctx, port.SchemaType)
	if err != nil {
		return UpsertResult{}, err
	}

	if err := u.linkTarget(ctx, metadata.RelPortSchema, result.GUID, schema.GUID); err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

func (u *unit) upsertPortAlias(ctx context.Context, port *metadata.PortAlias, processGUID string) (UpsertResult, error) {
	result, err := u.upsert(ctx, entitySpec{
		typeName:      metadata.TypePortAlias,
		qualifiedName: port.QualifiedName,
		properties:    port.EntityProperties(),
	})
	if err != nil {
		return UpsertResult{}, err
	}

	if err := u.linkChild(ctx, metadata.RelProcessPort, processGUID, result.GUID, nil); err != nil {
		return UpsertResult{}, err
	}

	if port.DelegatesTo == "" {
		if err := u.unlinkTargets(ctx, metadata.RelPortDelegation, result.GUID, ""); err != nil {
			return UpsertResult{}, err
		}

		return result, nil
	}

	delegate, err := u.findReference(ctx, metadata.TypePort, port.DelegatesTo)
	if err != nil {
		return UpsertResult{}, err
	}

	if delegate.GUID == result.GUID {
		return UpsertResult{}, metadata.ErrSelfReference
	}

	if err := u.linkTarget(ctx, metadata.RelPortDelegation, result.GUID, delegate.GUID); err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}
