package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - recipes + state buckets
const currentSchemaVersion = 1

const checklistBucket = "checklists"

// Compile-time interface checks.
var (
	_ domain.RecordStore    = (*SQLiteStore)(nil)
	_ domain.ChecklistStore = (*SQLiteStore)(nil)
)

// SQLiteStore persists recipes and checklist groups in a single SQLite
// file. SQLite allows one writer at a time, so the pool is capped at one
// connection and every write goes through it.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	hooks hooks
	log   *logger.Logger
}

// OpenSQLite creates or opens the database at path, applying pragmas and
// the schema. Safe to call on an existing file.
func OpenSQLite(path string, log *logger.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = "mealscribe.db"
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("storage: create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("sqlite store open at %s", path)
	return &SQLiteStore{db: db, path: path, log: log}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("storage: %q: %w", p, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("storage: apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("storage: set user_version: %w", err)
	}
	return nil
}

// Upsert persists a recipe, replacing any row with the same ID.
func (s *SQLiteStore) Upsert(ctx context.Context, r domain.Recipe) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("storage: encode recipe %s: %w", r.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recipes (id, created_at, state, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			state      = excluded.state,
			payload    = excluded.payload
	`, r.ID, r.CreatedAt.UnixNano(), r.State.String(), payload)
	if err != nil {
		return fmt.Errorf("storage: upsert recipe %s: %w", r.ID, err)
	}

	s.log.Debug("upserted recipe %s (state=%s)", r.ID, r.State)
	s.hooks.fire()
	return nil
}

// Get retrieves a recipe by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Recipe, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM recipes WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Recipe{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("storage: get recipe %s: %w", id, err)
	}
	return decodeRecipe(payload)
}

// Delete removes a recipe by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete recipe %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}

	s.log.Debug("deleted recipe %s", id)
	s.hooks.fire()
	return nil
}

// All returns every recipe, newest first.
func (s *SQLiteStore) All(ctx context.Context) ([]domain.Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM recipes ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list recipes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Recipe
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage: scan recipe: %w", err)
		}
		r, err := decodeRecipe(payload)
		if err != nil {
			// One corrupt row should not hide the rest of the library.
			s.log.Error("skipping undecodable recipe row: %v", err)
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list recipes: %w", err)
	}
	return out, nil
}

// OnChange registers a callback fired after every committed write.
func (s *SQLiteStore) OnChange(fn func()) {
	s.hooks.add(fn)
}

// SaveChecklists replaces the stored checklist groups in one statement.
func (s *SQLiteStore) SaveChecklists(ctx context.Context, groups []domain.ChecklistGroup) error {
	if groups == nil {
		groups = []domain.ChecklistGroup{}
	}
	payload, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("storage: encode checklists: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO state (bucket, payload) VALUES (?, ?)
		ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload
	`, checklistBucket, payload)
	if err != nil {
		return fmt.Errorf("storage: save checklists: %w", err)
	}
	return nil
}

// LoadChecklists returns the stored checklist groups, or none if nothing
// was saved yet.
func (s *SQLiteStore) LoadChecklists(ctx context.Context) ([]domain.ChecklistGroup, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, checklistBucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load checklists: %w", err)
	}

	var groups []domain.ChecklistGroup
	if err := json.Unmarshal(payload, &groups); err != nil {
		return nil, fmt.Errorf("storage: decode checklists: %w", err)
	}
	return groups, nil
}

func decodeRecipe(payload []byte) (domain.Recipe, error) {
	var r domain.Recipe
	if err := json.Unmarshal(payload, &r); err != nil {
		return domain.Recipe{}, fmt.Errorf("storage: decode recipe: %w", err)
	}
	return r, nil
}
