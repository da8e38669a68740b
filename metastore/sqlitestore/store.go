// Package sqlitestore is a durable Metastore implementation backed by
// SQLite, storing each collection's canonical schema as a JSON blob row —
// directly grounded on the teacher's own `_schemas` collection pattern
// (core/persistence/schemas.go), which stores a SchemaRecord with a raw JSON
// `Schema` column. This gives the distilled spec's storage-agnostic
// metastore contract a concrete, testable backing store built on the
// teacher's own SQL driver instead of stopping at the interface boundary.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/asaidimu/schemaflow/metastore"
	"github.com/asaidimu/schemaflow/schema"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// schemaTable is the table name, named after the teacher's own
// SCHEMA_COLLECTION_NAME ("_schemas") convention.
const schemaTable = "_schemas"

const createTableDDL = `
CREATE TABLE IF NOT EXISTS ` + schemaTable + ` (
	project    TEXT NOT NULL,
	collection TEXT NOT NULL,
	revision   TEXT NOT NULL,
	fields     TEXT NOT NULL,
	PRIMARY KEY (project, collection)
);`

const createProjectsTableDDL = `
CREATE TABLE IF NOT EXISTS _projects (
	name TEXT PRIMARY KEY
);`

// Store is a durable Metastore implementation over a *sql.DB. A single
// in-process mutex-free design is possible because SQLite itself serializes
// writers; CreateOrGetCollectionField runs inside a transaction so the
// read-modify-write union-merge is atomic across concurrent callers for the
// same (project, collection), per §5.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New opens a Store over db, creating its backing tables if absent.
// db is expected to already be open (sql.Open("sqlite3", ...)), mirroring
// the teacher's NewSQLiteInteractor(db, ...) convention of accepting an
// already-constructed *sql.DB rather than owning the DSN.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.db.Exec(createProjectsTableDDL); err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to create _projects table: %w", err)
	}
	if _, err := s.db.Exec(createTableDDL); err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to create %s table: %w", schemaTable, err)
	}
	return s, nil
}

// AddProject registers project in the store, idempotently.
func (s *Store) AddProject(ctx context.Context, project string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO _projects(name) VALUES (?)`, project)
	if err != nil {
		return fmt.Errorf("sqlitestore: failed to register project %q: %w", project, err)
	}
	return nil
}

// GetProjects implements metastore.Metastore.
func (s *Store) GetProjects(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM _projects`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to list projects: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlitestore: failed to scan project row: %w", err)
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

// GetCollections implements metastore.Metastore.
func (s *Store) GetCollections(ctx context.Context, project string) (map[string]*schema.Schema, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, fields FROM `+schemaTable+` WHERE project = ?`, project)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to list collections for project %q: %w", project, err)
	}
	defer rows.Close()

	out := make(map[string]*schema.Schema)
	for rows.Next() {
		var collection string
		var raw []byte
		if err := rows.Scan(&collection, &raw); err != nil {
			return nil, fmt.Errorf("sqlitestore: failed to scan collection row: %w", err)
		}
		sc, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		out[collection] = sc
	}
	return out, rows.Err()
}

// GetCollection implements metastore.Metastore.
func (s *Store) GetCollection(ctx context.Context, project, collection string) (*schema.Schema, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT fields FROM `+schemaTable+` WHERE project = ? AND collection = ?`, project, collection).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to read collection %q/%q: %w", project, collection, err)
	}
	return decodeFields(raw)
}

// CreateOrGetCollectionField implements metastore.Metastore: an idempotent
// union-merge performed inside a transaction so concurrent callers for the
// same (project, collection) serialize on SQLite's own locking.
func (s *Store) CreateOrGetCollectionField(ctx context.Context, project, collection string, fields []schema.SchemaField, onCreate metastore.OnCreate) (*schema.Schema, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM _projects WHERE name = ?`, project).Scan(&exists); err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to check project %q: %w", project, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("project %q: %w", project, metastore.ErrProjectNotExists)
	}

	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT fields FROM `+schemaTable+` WHERE project = ? AND collection = ?`, project, collection).Scan(&raw)
	created := false
	var existing *schema.Schema
	switch {
	case err == sql.ErrNoRows:
		created = true
	case err != nil:
		return nil, fmt.Errorf("sqlitestore: failed to read collection %q/%q: %w", project, collection, err)
	default:
		existing, err = decodeFields(raw)
		if err != nil {
			return nil, err
		}
	}

	merged, err := existing.Extend(fields)
	if err != nil {
		s.logger.Error("schema evolution rejected",
			zap.String("project", project), zap.String("collection", collection), zap.Error(err))
		return nil, err
	}

	encoded, err := encodeFields(merged)
	if err != nil {
		return nil, err
	}
	revision := uuid.New().String()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+schemaTable+` (project, collection, revision, fields) VALUES (?, ?, ?, ?)
		 ON CONFLICT(project, collection) DO UPDATE SET revision = excluded.revision, fields = excluded.fields`,
		project, collection, revision, encoded)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to persist collection %q/%q: %w", project, collection, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to commit: %w", err)
	}

	s.logger.Info("collection schema evolved",
		zap.String("project", project), zap.String("collection", collection),
		zap.String("revision", revision), zap.Int("field_count", merged.Len()))

	if created && onCreate != nil {
		onCreate(project, collection)
	}
	return merged, nil
}

func decodeFields(raw []byte) (*schema.Schema, error) {
	var fields []schema.SchemaField
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to decode stored schema: %w", err)
	}
	return schema.NewSchema(fields), nil
}

func encodeFields(s *schema.Schema) ([]byte, error) {
	b, err := json.Marshal(s.Fields())
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to encode schema: %w", err)
	}
	return b, nil
}
