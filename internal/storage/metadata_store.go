package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/correlator-io/dataengine/internal/metadata"
)

const entityColumns = `guid, type_name, qualified_name, properties, classifications, status,
	external_source_guid, external_source_name, created_by, updated_by, created_at, updated_at`

const relationshipColumns = `guid, type_name, end1_guid, end2_guid, properties, status,
	external_source_guid, external_source_name, created_by, created_at, updated_at`

// querier is the subset of *sql.DB and *sql.Tx the store needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// MetadataStore implements metadata.Repository on PostgreSQL (tables entities and relationships).
// A store returned to a RunInTransaction callback is bound to that transaction.
type MetadataStore struct {
	conn *Connection
	q    querier
	tx   *sql.Tx
	now  func() time.Time
}

var _ metadata.Repository = (*MetadataStore)(nil)

// NewMetadataStore creates a PostgreSQL-backed metadata repository. The store does not own conn.
func NewMetadataStore(conn *Connection) (*MetadataStore, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &MetadataStore{
		conn: conn,
		q:    conn.DB,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// HealthCheck verifies the database is reachable.
func (s *MetadataStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// GetEntity returns the entity with guid, including soft-deleted ones.
func (s *MetadataStore) GetEntity(ctx context.Context, guid string) (*metadata.Entity, error) {
	if !isUUID(guid) {
		return nil, fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)
	}

	row := s.q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE guid = $1`, guid)

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)
	}

	if err != nil {
		return nil, wrapStoreError("get entity", err)
	}

	return entity, nil
}

// FindEntity returns the live entity with qualifiedName matching typeName.
func (s *MetadataStore) FindEntity(ctx context.Context, typeName, qualifiedName string) (*metadata.Entity, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE qualified_name = $1
		  AND status <> 'DELETED'
		  AND ($2::text[] IS NULL OR type_name = ANY($2))
	`, qualifiedName, pq.Array(metadata.SubTypes(typeName)))

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", metadata.ErrEntityNotFound, typeName, qualifiedName)
	}

	if err != nil {
		return nil, wrapStoreError("find entity", err)
	}

	return entity, nil
}

// FindEntities returns the entities matching filter ordered by qualified name.
func (s *MetadataStore) FindEntities(ctx context.Context, filter metadata.EntityFilter) ([]*metadata.Entity, error) {
	var (
		conditions []string
		args       []any
	)

	arg := func(value any) string {
		args = append(args, value)

		return "$" + strconv.Itoa(len(args))
	}

	if filter.GUID != "" {
		if !isUUID(filter.GUID) {
			return []*metadata.Entity{}, nil
		}

		conditions = append(conditions, "guid = "+arg(filter.GUID))
	}

	if filter.QualifiedName != "" {
		conditions = append(conditions, "qualified_name = "+arg(filter.QualifiedName))
	}

	if types := metadata.SubTypes(filter.TypeName); types != nil {
		conditions = append(conditions, "type_name = ANY("+arg(pq.Array(types))+")")
	}

	if !filter.IncludeDeleted {
		conditions = append(conditions, "status <> 'DELETED'")
	}

	query := `SELECT ` + entityColumns + ` FROM entities`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	query += ` ORDER BY qualified_name, created_at`

	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreError("find entities", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	entities := []*metadata.Entity{}

	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, wrapStoreError("scan entity", err)
		}

		entities = append(entities, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("iterate entities", err)
	}

	return entities, nil
}

// CreateEntity inserts entity and returns its GUID.
func (s *MetadataStore) CreateEntity(ctx context.Context, entity *metadata.Entity) (string, error) {
	if entity.GUID == "" {
		entity.GUID = uuid.NewString()
	}

	if entity.Status == "" {
		entity.Status = metadata.StatusActive
	}

	now := s.now()
	entity.CreatedAt, entity.UpdatedAt = now, now

	if entity.UpdatedBy == "" {
		entity.UpdatedBy = entity.CreatedBy
	}

	properties, classifications, err := encodeEntity(entity)
	if err != nil {
		return "", err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		entity.GUID,
		entity.TypeName,
		entity.QualifiedName,
		properties,
		classifications,
		string(entity.Status),
		nullableUUID(entity.Provenance.ExternalSourceGUID),
		entity.Provenance.ExternalSourceName,
		entity.CreatedBy,
		entity.UpdatedBy,
		entity.CreatedAt,
		entity.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return "", fmt.Errorf("%w: %s", metadata.ErrDuplicateQualifiedName, entity.QualifiedName)
		case isForeignKeyViolation(err):
			return "", fmt.Errorf("%w: %s", metadata.ErrUnknownExternalSource, entity.Provenance.ExternalSourceName)
		default:
			return "", wrapStoreError("create entity", err)
		}
	}

	return entity.GUID, nil
}

// UpdateEntity replaces properties and status of a live entity.
func (s *MetadataStore) UpdateEntity(ctx context.Context, entity *metadata.Entity) error {
	if !isUUID(entity.GUID) {
		return fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, entity.GUID)
	}

	properties, err := json.Marshal(nonNilProperties(entity.Properties))
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	entity.UpdatedAt = s.now()

	result, err := s.q.ExecContext(ctx, `
		UPDATE entities
		SET properties = $2, status = $3, updated_by = $4, updated_at = $5
		WHERE guid = $1 AND status <> 'DELETED'
	`, entity.GUID, properties, string(entity.Status), entity.UpdatedBy, entity.UpdatedAt)
	if err != nil {
		return wrapStoreError("update entity", err)
	}

	return requireAffected(result, fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, entity.GUID))
}

// UpdateEntityStatus changes the status of a live entity.
func (s *MetadataStore) UpdateEntityStatus(ctx context.Context, guid string, status metadata.InstanceStatus) error {
	if !isUUID(guid) {
		return fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE entities SET status = $2, updated_at = $3
		WHERE guid = $1 AND status <> 'DELETED'
	`, guid, string(status), s.now())
	if err != nil {
		return wrapStoreError("update entity status", err)
	}

	return requireAffected(result, fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid))
}

// SetClassification replaces one classification, leaving the others in place.
func (s *MetadataStore) SetClassification(
	ctx context.Context,
	guid, name string,
	props metadata.Properties,
) error {
	if !isUUID(guid) {
		return fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)
	}

	encoded, err := json.Marshal(nonNilProperties(props))
	if err != nil {
		return fmt.Errorf("failed to marshal classification: %w", err)
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE entities
		SET classifications = classifications || jsonb_build_object($2::text, $3::jsonb),
		    updated_at = $4
		WHERE guid = $1 AND status <> 'DELETED'
	`, guid, name, encoded, s.now())
	if err != nil {
		return wrapStoreError("set classification", err)
	}

	return requireAffected(result, fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid))
}

// DeleteEntity removes an entity and its relationships atomically.
func (s *MetadataStore) DeleteEntity(ctx context.Context, guid string, semantic metadata.DeleteSemantic) error {
	if !isUUID(guid) {
		return fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)
	}

	notFound := fmt.Errorf("%w: %s", metadata.ErrEntityNotFound, guid)

	if semantic.OrDefault() == metadata.DeleteHard {
		result, err := s.q.ExecContext(ctx, `DELETE FROM entities WHERE guid = $1`, guid)
		if err != nil {
			return wrapStoreError("purge entity", err)
		}

		return requireAffected(result, notFound)
	}

	return s.RunInTransaction(ctx, func(ctx context.Context, repo metadata.Repository) error {
		txStore, _ := repo.(*MetadataStore)

		if _, err := txStore.q.ExecContext(ctx,
			`DELETE FROM relationships WHERE end1_guid = $1 OR end2_guid = $1`, guid); err != nil {
			return wrapStoreError("delete entity relationships", err)
		}

		result, err := txStore.q.ExecContext(ctx, `
			UPDATE entities SET status = 'DELETED', updated_at = $2
			WHERE guid = $1 AND status <> 'DELETED'
		`, guid, s.now())
		if err != nil {
			return wrapStoreError("soft delete entity", err)
		}

		return requireAffected(result, notFound)
	})
}

// FindRelationship returns the relationship of typeName between end1GUID and end2GUID.
func (s *MetadataStore) FindRelationship(
	ctx context.Context,
	typeName, end1GUID, end2GUID string,
) (*metadata.Relationship, error) {
	notFound := fmt.Errorf("%w: %s %s → %s", metadata.ErrRelationshipNotFound, typeName, end1GUID, end2GUID)

	if !isUUID(end1GUID) || !isUUID(end2GUID) {
		return nil, notFound
	}

	row := s.q.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM relationships
		WHERE type_name = $1 AND end1_guid = $2 AND end2_guid = $3
	`, typeName, end1GUID, end2GUID)

	rel, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound
	}

	if err != nil {
		return nil, wrapStoreError("find relationship", err)
	}

	return rel, nil
}

// ListRelationships returns the relationships matching filter, oldest first.
func (s *MetadataStore) ListRelationships(
	ctx context.Context,
	filter metadata.RelationshipFilter,
) ([]*metadata.Relationship, error) {
	var (
		conditions []string
		args       []any
	)

	arg := func(value any) string {
		args = append(args, value)

		return "$" + strconv.Itoa(len(args))
	}

	for _, guid := range []string{filter.End1GUID, filter.End2GUID, filter.EntityGUID} {
		if guid != "" && !isUUID(guid) {
			return []*metadata.Relationship{}, nil
		}
	}

	if filter.TypeName != "" {
		conditions = append(conditions, "type_name = "+arg(filter.TypeName))
	}

	if filter.End1GUID != "" {
		conditions = append(conditions, "end1_guid = "+arg(filter.End1GUID))
	}

	if filter.End2GUID != "" {
		conditions = append(conditions, "end2_guid = "+arg(filter.End2GUID))
	}

	if filter.EntityGUID != "" {
		placeholder := arg(filter.EntityGUID)
		conditions = append(conditions, "(end1_guid = "+placeholder+" OR end2_guid = "+placeholder+")")
	}

	query := `SELECT ` + relationshipColumns + ` FROM relationships`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	query += ` ORDER BY created_at, guid`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreError("list relationships", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	rels := []*metadata.Relationship{}

	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, wrapStoreError("scan relationship", err)
		}

		rels = append(rels, rel)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("iterate relationships", err)
	}

	return rels, nil
}

// CreateRelationship inserts rel and returns its GUID.
func (s *MetadataStore) CreateRelationship(ctx context.Context, rel *metadata.Relationship) (string, error) {
	if !isUUID(rel.End1GUID) || !isUUID(rel.End2GUID) {
		return "", fmt.Errorf("%w: relationship end", metadata.ErrEntityNotFound)
	}

	if rel.GUID == "" {
		rel.GUID = uuid.NewString()
	}

	if rel.Status == "" {
		rel.Status = metadata.StatusActive
	}

	now := s.now()
	rel.CreatedAt, rel.UpdatedAt = now, now

	properties, err := json.Marshal(nonNilProperties(rel.Properties))
	if err != nil {
		return "", fmt.Errorf("failed to marshal properties: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rel.GUID,
		rel.TypeName,
		rel.End1GUID,
		rel.End2GUID,
		properties,
		string(rel.Status),
		nullableUUID(rel.Provenance.ExternalSourceGUID),
		rel.Provenance.ExternalSourceName,
		rel.CreatedBy,
		rel.CreatedAt,
		rel.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return "", fmt.Errorf("%w: %s", metadata.ErrDuplicateRelationship, rel.TypeName)
		case isForeignKeyViolation(err):
			return "", fmt.Errorf("%w: relationship end", metadata.ErrEntityNotFound)
		case isCheckViolation(err):
			return "", fmt.Errorf("%w: %s", metadata.ErrSelfReference, rel.TypeName)
		default:
			return "", wrapStoreError("create relationship", err)
		}
	}

	return rel.GUID, nil
}

// UpdateRelationship replaces the properties of a relationship.
func (s *MetadataStore) UpdateRelationship(ctx context.Context, rel *metadata.Relationship) error {
	notFound := fmt.Errorf("%w: %s", metadata.ErrRelationshipNotFound, rel.GUID)
	if !isUUID(rel.GUID) {
		return notFound
	}

	properties, err := json.Marshal(nonNilProperties(rel.Properties))
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	rel.UpdatedAt = s.now()

	result, err := s.q.ExecContext(ctx,
		`UPDATE relationships SET properties = $2, updated_at = $3 WHERE guid = $1`,
		rel.GUID, properties, rel.UpdatedAt)
	if err != nil {
		return wrapStoreError("update relationship", err)
	}

	return requireAffected(result, notFound)
}

// DeleteRelationship removes a relationship.
func (s *MetadataStore) DeleteRelationship(ctx context.Context, guid string) error {
	notFound := fmt.Errorf("%w: %s", metadata.ErrRelationshipNotFound, guid)
	if !isUUID(guid) {
		return notFound
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM relationships WHERE guid = $1`, guid)
	if err != nil {
		return wrapStoreError("delete relationship", err)
	}

	return requireAffected(result, notFound)
}

// RunInTransaction runs fn in a database transaction. Calls made while already inside
// a transaction join it.
func (s *MetadataStore) RunInTransaction(
	ctx context.Context,
	fn func(ctx context.Context, repo metadata.Repository) error,
) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreError("begin transaction", err)
	}

	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(ctx, &MetadataStore{conn: s.conn, q: tx, tx: tx, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreError("commit transaction", err)
	}

	return nil
}

func scanEntity(row rowScanner) (*metadata.Entity, error) {
	var (
		entity             metadata.Entity
		properties         []byte
		classifications    []byte
		status             string
		externalSourceGUID sql.NullString
	)

	if err := row.Scan(
		&entity.GUID,
		&entity.TypeName,
		&entity.QualifiedName,
		&properties,
		&classifications,
		&status,
		&externalSourceGUID,
		&entity.Provenance.ExternalSourceName,
		&entity.CreatedBy,
		&entity.UpdatedBy,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	); err != nil {
		return nil, err
	}

	entity.Status = metadata.InstanceStatus(status)
	entity.Provenance.ExternalSourceGUID = externalSourceGUID.String

	if err := json.Unmarshal(properties, &entity.Properties); err != nil {
		return nil, fmt.Errorf("failed to parse properties of %s: %w", entity.GUID, err)
	}

	if err := json.Unmarshal(classifications, &entity.Classifications); err != nil {
		return nil, fmt.Errorf("failed to parse classifications of %s: %w", entity.GUID, err)
	}

	return &entity, nil
}

func scanRelationship(row rowScanner) (*metadata.Relationship, error) {
	var (
		rel                metadata.Relationship
		properties         []byte
		status             string
		externalSourceGUID sql.NullString
	)

	if err := row.Scan(
		&rel.GUID,
		&rel.TypeName,
		&rel.End1GUID,
		&rel.End2GUID,
		&properties,
		&status,
		&externalSourceGUID,
		&rel.Provenance.ExternalSourceName,
		&rel.CreatedBy,
		&rel.CreatedAt,
		&rel.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rel.Status = metadata.InstanceStatus(status)
	rel.Provenance.ExternalSourceGUID = externalSourceGUID.String

	if err := json.Unmarshal(properties, &rel.Properties); err != nil {
		return nil, fmt.Errorf("failed to parse properties of %s: %w", rel.GUID, err)
	}

	return &rel, nil
}

func encodeEntity(entity *metadata.Entity) ([]byte, []byte, error) {
	properties, err := json.Marshal(nonNilProperties(entity.Properties))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal properties: %w", err)
	}

	classifications := entity.Classifications
	if classifications == nil {
		classifications = map[string]metadata.Properties{}
	}

	encoded, err := json.Marshal(classifications)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal classifications: %w", err)
	}

	return properties, encoded, nil
}

func nonNilProperties(props metadata.Properties) metadata.Properties {
	if props == nil {
		return metadata.Properties{}
	}

	return props
}

func nullableUUID(guid string) any {
	if guid == "" {
		return nil
	}

	return guid
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)

	return err == nil
}

// wrapStoreError marks connection failures as metadata.ErrRepositoryUnavailable.
func wrapStoreError(operation string, err error) error {
	if isDatabaseConnectionError(err) {
		return fmt.Errorf("%w: %s: %w", metadata.ErrRepositoryUnavailable, operation, err)
	}

	return fmt.Errorf("failed to %s: %w", operation, err)
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func isCheckViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == "23514"
}
