package dataengine

import (
	"context"
	"strings"

	"github.com/correlator-io/dataengine/internal/canonicalization"
	"github.com/correlator-io/dataengine/internal/metadata"
)

// UpsertDatabase upserts a database, its connection and endpoint, and the nested
// schema with its tables when one is reported.
func (s *Service) UpsertDatabase(
	ctx context.Context,
	userID, externalSourceName string,
	database *metadata.Database,
) (UpsertResult, error) {
	const operation = "upsert_database"

	if err := s.validator.ValidateDatabase(database); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		var err error

		result, err = u.upsert(ctx, entitySpec{
			typeName:      metadata.TypeDatabase,
			qualifiedName: database.QualifiedName,
			properties:    database.EntityProperties(),
		})
		if err != nil {
			return err
		}

		err = u.connect(ctx, result.GUID, database.QualifiedName, database.Protocol, database.NetworkAddress)
		if err != nil {
			return err
		}

		if database.DatabaseSchema == nil {
			return nil
		}

		_, err = u.upsertDatabaseSchema(ctx, database.DatabaseSchema, result.GUID)

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// UpsertDatabaseSchema upserts a schema of the database databaseQualifiedName and
// the tables reported with it.
func (s *Service) UpsertDatabaseSchema(
	ctx context.Context,
	userID, externalSourceName string,
	schema *metadata.DatabaseSchema,
	databaseQualifiedName string,
) (UpsertResult, error) {
	const operation = "upsert_database_schema"

	if err := s.validator.ValidateDatabaseSchema(schema); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	if strings.TrimSpace(databaseQualifiedName) == "" {
		return UpsertResult{}, s.fail(ctx, operation, metadata.ErrMissingParentName)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		database, err := u.find(ctx, metadata.TypeDatabase, databaseQualifiedName)
		if err != nil {
			return err
		}

		result, err = u.upsertDatabaseSchema(ctx, schema, database.GUID)

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// UpsertRelationalTable upserts a table of the schema schemaQualifiedName and its
// columns. Columns missing from the request are deleted.
func (s *Service) UpsertRelationalTable(
	ctx context.Context,
	userID, externalSourceName string,
	table *metadata.RelationalTable,
	schemaQualifiedName string,
) (UpsertResult, error) {
	const operation = "upsert_relational_table"

	if err := s.validator.ValidateRelationalTable(table); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	if strings.TrimSpace(schemaQualifiedName) == "" {
		return UpsertResult{}, s.fail(ctx, operation, metadata.ErrMissingParentName)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		schema, err := u.find(ctx, metadata.TypeDeployedDatabaseSchema, schemaQualifiedName)
		if err != nil {
			return err
		}

		schemaTypeGUID, err := u.derivedSchemaType(ctx, schema.GUID, schema.QualifiedName)
		if err != nil {
			return err
		}

		result, err = u.upsertRelationalTable(ctx, table, schemaTypeGUID)

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// DeleteDatabase deletes a database with its schemas, tables, columns and connection.
func (s *Service) DeleteDatabase(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_database", userID, externalSourceName,
		metadata.TypeDatabase, qualifiedName, semantic)
}

// DeleteDatabaseSchema deletes a schema with its tables and columns.
func (s *Service) DeleteDatabaseSchema(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_database_schema", userID, externalSourceName,
		metadata.TypeDeployedDatabaseSchema, qualifiedName, semantic)
}

// DeleteRelationalTable deletes a table with its columns.
func (s *Service) DeleteRelationalTable(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_relational_table", userID, externalSourceName,
		metadata.TypeRelationalTable, qualifiedName, semantic)
}

func (u *unit) upsertDatabaseSchema(
	ctx context.Context,
	schema *metadata.DatabaseSchema,
	databaseGUID string,
) (UpsertResult, error) {
	result, err := u.upsert(ctx, entitySpec{
		typeName:      metadata.TypeDeployedDatabaseSchema,
		qualifiedName: schema.QualifiedName,
		properties:    schema.EntityProperties(),
	})
	if err != nil {
		return UpsertResult{}, err
	}

	if err := u.linkChild(ctx, metadata.RelDataContentForDataSet, databaseGUID, result.GUID, nil); err != nil {
		return UpsertResult{}, err
	}

	if len(schema.Tables) == 0 {
		return result, nil
	}

	schemaTypeGUID, err := u.derivedSchemaType(ctx, result.GUID, schema.QualifiedName)
	if err != nil {
		return UpsertResult{}, err
	}

	for _, table := range schema.Tables {
		if _, err := u.upsertRelationalTable(ctx, table, schemaTypeGUID); err != nil {
			return UpsertResult{}, err
		}
	}

	return result, nil
}

func (u *unit) upsertRelationalTable(
	ctx context.Context,
	table *metadata.RelationalTable,
	schemaTypeGUID string,
) (UpsertResult, error) {
	result, err := u.upsert(ctx, entitySpec{
		typeName:      metadata.TypeRelationalTable,
		qualifiedName: table.QualifiedName,
		properties:    table.EntityProperties(),
	})
	if err != nil {
		return UpsertResult{}, err
	}

	if err := u.linkChild(ctx, metadata.RelAttributeForSchema, schemaTypeGUID, result.GUID, nil); err != nil {
		return UpsertResult{}, err
	}

	columns := relationalColumns(table.Columns)
	if err := u.syncAttributes(ctx, metadata.RelNestedSchemaAttribute, result.GUID, columns); err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// connect upserts the connection of an asset and links it to the shared endpoint of
// its network address. Assets reported without an address lose the connection the
// caller gave them earlier.
func (u *unit) connect(ctx context.Context, assetGUID, assetQualifiedName, protocol, networkAddress string) error {
	endpointQualifiedName := canonicalization.EndpointQualifiedName(protocol, networkAddress)
	if endpointQualifiedName == "" {
		return u.disconnect(ctx, assetGUID)
	}

	endpointProps := metadata.Properties{
		"qualifiedName":  endpointQualifiedName,
		"networkAddress": canonicalization.NormalizeNetworkAddress(protocol, networkAddress),
	}
	if protocol != "" {
		endpointProps["protocol"] = strings.ToLower(protocol)
	}

	endpointGUID, err := u.ensure(ctx, entitySpec{
		typeName:      metadata.TypeEndpoint,
		qualifiedName: endpointQualifiedName,
		properties:    endpointProps,
	})
	if err != nil {
		return err
	}

	connectionQualifiedName := canonicalization.ConnectionQualifiedName(assetQualifiedName)

	connection, err := u.upsert(ctx, entitySpec{
		typeName:      metadata.TypeConnection,
		qualifiedName: connectionQualifiedName,
		properties: metadata.Properties{
			"qualifiedName": connectionQualifiedName,
			"displayName":   assetQualifiedName + " connection",
		},
	})
	if err != nil {
		return err
	}

	if err := u.linkChild(ctx, metadata.RelConnectionEndpoint, endpointGUID, connection.GUID, nil); err != nil {
		return err
	}

	return u.linkChild(ctx, metadata.RelConnectionToAsset, connection.GUID, assetGUID, nil)
}

// disconnect deletes the caller-owned connections of an asset.
func (u *unit) disconnect(ctx context.Context, assetGUID string) error {
	rels, err := u.repo.ListRelationships(ctx, metadata.RelationshipFilter{
		TypeName: metadata.RelConnectionToAsset,
		End2GUID: assetGUID,
	})
	if err != nil {
		return err
	}

	for _, rel := range rels {
		connection, err := u.repo.GetEntity(ctx, rel.End1GUID)
		if err != nil {
			return err
		}

		if !u.owns(connection) {
			continue
		}

		if err := u.delete(ctx, connection, metadata.DeleteSoft, map[string]struct{}{assetGUID: {}}); err != nil {
			return err
		}
	}

	return nil
}
