package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/colorwerkz/metacache/pkg/observability"
)

// Record is one cold-tier row: the derived key, the owning entity and
// property, the canonical serialized value, and write timestamps.
type Record struct {
	CacheKey     string    `db:"cache_key" json:"cache_key"`
	MetadataID   string    `db:"metadata_id" json:"metadata_id"`
	PropertyName string    `db:"property_name" json:"property_name"`
	Value        []byte    `db:"value" json:"value"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SQLTier is a durable cold tier on a SQL database. Supported drivers are
// "sqlite3" and "postgres". Entries never expire by time; they leave only via
// explicit invalidation.
type SQLTier struct {
	db     *sqlx.DB
	logger observability.Logger
}

// NewSQLTier opens the database and ensures the cache table exists.
func NewSQLTier(driver, dsn string, logger observability.Logger) (*SQLTier, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	t, err := NewSQLTierFromDB(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// NewSQLTierFromDB wraps an existing connection and ensures the cache table
// exists. The caller keeps ownership of db's lifecycle.
func NewSQLTierFromDB(db *sqlx.DB, logger observability.Logger) (*SQLTier, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	t := &SQLTier{db: db, logger: logger}
	if err := t.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return t, nil
}

func (t *SQLTier) ensureSchema() error {
	valueType := "BLOB"
	timeType := "TIMESTAMP"
	if t.db.DriverName() == "postgres" {
		valueType = "BYTEA"
		timeType = "TIMESTAMPTZ"
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS metadata_cache (
			cache_key     VARCHAR(64) PRIMARY KEY,
			metadata_id   VARCHAR(64) NOT NULL,
			property_name VARCHAR(64) NOT NULL,
			value         %s NOT NULL,
			created_at    %s NOT NULL,
			updated_at    %s NOT NULL
		)`, valueType, timeType, timeType)
	if _, err := t.db.Exec(ddl); err != nil {
		return err
	}

	_, err := t.db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_metadata_cache_entity ON metadata_cache (metadata_id)`)
	return err
}

// Get returns the stored bytes or ErrNotFound.
func (t *SQLTier) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	query := t.db.Rebind(`SELECT value FROM metadata_cache WHERE cache_key = ?`)
	if err := t.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// GetRecord returns the full row for key, or ErrNotFound.
func (t *SQLTier) GetRecord(ctx context.Context, key string) (*Record, error) {
	var rec Record
	query := t.db.Rebind(`
		SELECT cache_key, metadata_id, property_name, value, created_at, updated_at
		FROM metadata_cache WHERE cache_key = ?`)
	if err := t.db.GetContext(ctx, &rec, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Upsert stores value under key as an idempotent whole-value replacement.
func (t *SQLTier) Upsert(ctx context.Context, key, entityID, propertyName string, value []byte) error {
	now := time.Now().UTC()
	query := t.db.Rebind(`
		INSERT INTO metadata_cache (cache_key, metadata_id, property_name, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	_, err := t.db.ExecContext(ctx, query, key, entityID, propertyName, value, now, now)
	return err
}

// Delete removes key. Deleting an absent key is not an error.
func (t *SQLTier) Delete(ctx context.Context, key string) error {
	query := t.db.Rebind(`DELETE FROM metadata_cache WHERE cache_key = ?`)
	_, err := t.db.ExecContext(ctx, query, key)
	return err
}

// ListKeysByEntity returns every cache key stored for the entity.
func (t *SQLTier) ListKeysByEntity(ctx context.Context, entityID string) ([]string, error) {
	var keys []string
	query := t.db.Rebind(`SELECT cache_key FROM metadata_cache WHERE metadata_id = ?`)
	if err := t.db.SelectContext(ctx, &keys, query, entityID); err != nil {
		return nil, err
	}
	return keys, nil
}

// Close releases the database handle. The database itself is an externally
// owned resource.
func (t *SQLTier) Close() error {
	return t.db.Close()
}
