package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

const (
	keyCreated = "created"
	keyUpdated = "updated"
	keyDeleted = "deleted"
)

// PersistentKeyStore implements APIKeyStore on PostgreSQL. Keys are stored as bcrypt
// hashes and every change is written to api_key_audit_log.
type PersistentKeyStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPersistentKeyStore creates a PostgreSQL key store on an existing connection.
// The store does not own the connection.
func NewPersistentKeyStore(conn *Connection, logger *slog.Logger) (*PersistentKeyStore, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PersistentKeyStore{conn: conn, logger: logger}, nil
}

const selectAPIKeyColumns = `
	SELECT id, key_hash, client_id, name, permissions, created_at, expires_at, active
	FROM api_keys
`

func scanAPIKey(rows *sql.Rows) (*APIKey, error) {
	var (
		apiKey          APIKey
		permissionsJSON []byte
	)

	if err := rows.Scan(
		&apiKey.ID,
		&apiKey.Key,
		&apiKey.ClientID,
		&apiKey.Name,
		&permissionsJSON,
		&apiKey.CreatedAt,
		&apiKey.ExpiresAt,
		&apiKey.Active,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(permissionsJSON, &apiKey.Permissions); err != nil {
		return nil, fmt.Errorf("failed to parse permissions: %w", err)
	}

	return &apiKey, nil
}

// FindByKey finds an active key by comparing key against every stored hash.
// Linear in the number of active keys (~60ms per comparison).
func (s *PersistentKeyStore) FindByKey(ctx context.Context, key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	rows, err := s.conn.QueryContext(ctx, selectAPIKeyColumns+` WHERE active = TRUE`)
	if err != nil {
		s.logger.Error("failed to query API keys", slog.String("error", err.Error()))

		return nil, false
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable API key row", slog.String("error", err.Error()))

			continue
		}

		if CompareAPIKeyHash(apiKey.Key, key) {
			apiKey.Key = MaskKey(key)

			return apiKey, true
		}
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("failed to find key",
			slog.String("key", MaskKey(key)),
			slog.String("error", err.Error()))
	}

	return nil, false
}

// Add hashes and stores a new API key.
func (s *PersistentKeyStore) Add(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	// bcrypt salts every hash, so duplicates can only be found by comparison.
	if _, found := s.FindByKey(ctx, apiKey.Key); found {
		return ErrKeyAlreadyExists
	}

	keyHash, err := HashAPIKey(apiKey.Key)
	if err != nil {
		return err
	}

	permissionsJSON, err := permissionsToJSON(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, client_id, name, permissions, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		apiKey.ID,
		keyHash,
		apiKey.ClientID,
		apiKey.Name,
		permissionsJSON,
		apiKey.CreatedAt,
		apiKey.ExpiresAt,
		apiKey.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrKeyAlreadyExists
		}

		return fmt.Errorf("failed to insert API key: %w", err)
	}

	s.audit(ctx, keyCreated, apiKey)

	return nil
}

// Update modifies name, permissions, status and expiry. The hash never changes.
func (s *PersistentKeyStore) Update(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if apiKey.ID == "" {
		return ErrKeyNotFound
	}

	permissionsJSON, err := permissionsToJSON(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	result, err := s.conn.ExecContext(ctx, `
		UPDATE api_keys
		SET name = $1, permissions = $2, active = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $5
	`,
		apiKey.Name,
		permissionsJSON,
		apiKey.Active,
		apiKey.ExpiresAt,
		apiKey.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	if err := requireAffected(result, ErrKeyNotFound); err != nil {
		return err
	}

	s.audit(ctx, keyUpdated, apiKey)

	return nil
}

// Delete deactivates a key. Rows are kept for the audit trail.
func (s *PersistentKeyStore) Delete(ctx context.Context, keyID string) error {
	if keyID == "" {
		return ErrKeyNotFound
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET active = FALSE, updated_at = NOW() WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	if err := requireAffected(result, ErrKeyNotFound); err != nil {
		return err
	}

	s.audit(ctx, keyDeleted, &APIKey{ID: keyID})

	return nil
}

// ListByClient returns the active keys of a client, newest first, with masked hashes.
func (s *PersistentKeyStore) ListByClient(ctx context.Context, clientID string) ([]*APIKey, error) {
	if clientID == "" {
		return nil, ErrClientIDEmpty
	}

	rows, err := s.conn.QueryContext(ctx,
		selectAPIKeyColumns+` WHERE client_id = $1 AND active = TRUE ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	keys := []*APIKey{}

	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}

		apiKey.Key = MaskKey(apiKey.Key)
		keys = append(keys, apiKey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return keys, nil
}

func permissionsToJSON(permissions []string) ([]byte, error) {
	if permissions == nil {
		permissions = []string{}
	}

	return json.Marshal(permissions)
}

// audit writes an audit log entry. Failures are logged, never returned.
func (s *PersistentKeyStore) audit(ctx context.Context, operation string, apiKey *APIKey) {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO api_key_audit_log (api_key_id, operation, masked_key, client_id, metadata)
		VALUES ($1, $2, $3, $4, '{}'::jsonb)
	`, apiKey.ID, operation, MaskKey(apiKey.Key), apiKey.ClientID)
	if err != nil {
		s.logger.Error("failed to write an audit log entry for API key operation",
			slog.String("operation", operation),
			slog.String("key_id", apiKey.ID),
			slog.String("error", err.Error()),
		)
	}
}

func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
