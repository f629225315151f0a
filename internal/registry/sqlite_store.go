package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/001_registry.sql
var sqliteMigration string

// SQLiteStore is a Store backed by an SQLite file, so mappings and tracked
// buckets survive a restart.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writes and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteMigration); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetMapping(ctx context.Context, template string) (Mapping, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT template, environment, bucket, updated_at
		FROM mappings
		WHERE template = ?
	`, template)

	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Mapping{}, false, nil
	}
	if err != nil {
		return Mapping{}, false, fmt.Errorf("get mapping %q: %w", template, err)
	}
	return m, true, nil
}

func (s *SQLiteStore) PutMapping(ctx context.Context, m Mapping) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mappings (template, environment, bucket, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (template) DO UPDATE SET
			environment = excluded.environment,
			bucket = excluded.bucket,
			updated_at = excluded.updated_at
	`, m.Template, m.Environment, m.Bucket, m.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put mapping %q: %w", m.Template, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteMapping(ctx context.Context, template string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mappings WHERE template = ?`, template); err != nil {
		return fmt.Errorf("delete mapping %q: %w", template, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteMappingsForBucket(ctx context.Context, bucket string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mappings WHERE bucket = ?`, bucket); err != nil {
		return fmt.Errorf("delete mappings for %q: %w", bucket, err)
	}
	return nil
}

func (s *SQLiteStore) Mappings(ctx context.Context) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT template, environment, bucket, updated_at
		FROM mappings
		ORDER BY template
	`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddBucket(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buckets (name, created_at) VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING
	`, name, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("track bucket %q: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveBucket(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name); err != nil {
		return fmt.Errorf("untrack bucket %q: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Buckets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM buckets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (Mapping, error) {
	var (
		m         Mapping
		updatedAt string
	)
	if err := row.Scan(&m.Template, &m.Environment, &m.Bucket, &updatedAt); err != nil {
		return Mapping{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		m.UpdatedAt = t
	}
	return m, nil
}
