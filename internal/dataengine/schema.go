package dataengine

import (
	"context"

	"github.com/correlator-io/dataengine/internal/canonicalization"
	"github.com/correlator-io/dataengine/internal/metadata"
)

// UpsertSchemaType upserts a schema type and its attributes. Attributes missing from
// the request are deleted.
func (s *Service) UpsertSchemaType(
	ctx context.Context,
	userID, externalSourceName string,
	schemaType *metadata.SchemaType,
) (UpsertResult, error) {
	const operation = "upsert_schema_type"

	if err := s.validator.ValidateSchemaType(schemaType); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		var err error

		result, err = u.upsertSchemaType(ctx, schemaType)

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// DeleteSchemaType deletes a schema type and its attributes.
func (s *Service) DeleteSchemaType(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_schema_type", userID, externalSourceName,
		metadata.TypeSchemaType, qualifiedName, semantic)
}

func (u *unit) upsertSchemaType(ctx context.Context, schemaType *metadata.SchemaType) (UpsertResult, error) {
	result, err := u.upsert(ctx, entitySpec{
		typeName:      metadata.TypeSchemaType,
		qualifiedName: schemaType.QualifiedName,
		properties:    schemaType.EntityProperties(),
	})
	if err != nil {
		return UpsertResult{}, err
	}

	columns := tabularColumns(schemaType.Attributes)
	if err := u.syncAttributes(ctx, metadata.RelAttributeForSchema, result.GUID, columns); err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// derivedSchemaType returns the schema type that holds the columns or tables of an
// asset reported without one, creating it and linking it to the asset when absent.
// An existing one is shared with whichever engine created it.
func (u *unit) derivedSchemaType(ctx context.Context, assetGUID, assetQualifiedName string) (string, error) {
	qualifiedName := canonicalization.SchemaTypeQualifiedName(assetQualifiedName)

	guid, err := u.ensure(ctx, entitySpec{
		typeName:      metadata.TypeSchemaType,
		qualifiedName: qualifiedName,
		properties:    metadata.Properties{"qualifiedName": qualifiedName},
	})
	if err != nil {
		return "", err
	}

	if err := u.linkTarget(ctx, metadata.RelAssetSchemaType, assetGUID, guid); err != nil {
		return "", err
	}

	return guid, nil
}

// syncAttributes upserts attrs as relType children of parent and deletes the
// children that are no longer reported.
func (u *unit) syncAttributes(ctx context.Context, relType, parent string, attrs []entitySpec) error {
	keep := make(map[string]struct{}, len(attrs))

	for _, attr := range attrs {
		result, err := u.upsert(ctx, attr)
		if err != nil {
			return err
		}

		if err := u.linkChild(ctx, relType, parent, result.GUID, nil); err != nil {
			return err
		}

		keep[result.GUID] = struct{}{}
	}

	return u.prune(ctx, relType, parent, keep, metadata.DeleteSoft)
}

func tabularColumns(attrs []*metadata.Attribute) []entitySpec {
	specs := make([]entitySpec, 0, len(attrs))

	for _, attr := range attrs {
		specs = append(specs, entitySpec{
			typeName:      metadata.TypeTabularColumn,
			qualifiedName: attr.QualifiedName,
			properties:    attr.EntityProperties(),
		})
	}

	return specs
}

func relationalColumns(columns []*metadata.RelationalColumn) []entitySpec {
	specs := make([]entitySpec, 0, len(columns))

	for _, column := range columns {
		specs = append(specs, entitySpec{
			typeName:      metadata.TypeRelationalColumn,
			qualifiedName: column.QualifiedName,
			properties:    column.EntityProperties(),
		})
	}

	return specs
}
