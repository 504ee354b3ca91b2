// Package sqlite keeps the build catalog in a SQLite database. It is an
// alternative to the YAML file for builds that share one catalog between
// many modules.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/objectionary/eoprobe/internal/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	name      TEXT PRIMARY KEY,
	xmir_path TEXT,
	probed    INTEGER,
	probed_at TEXT,
	version   TEXT,
	attrs     TEXT NOT NULL DEFAULT '{}'
);
`

const recordColumns = `name, xmir_path, probed, probed_at, version, attrs`

// Store implements catalog.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ catalog.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway catalog.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}
	// One connection: updates are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (catalog.Record, error) {
	var (
		name                    string
		xmir, probedAt, version sql.NullString
		probed                  sql.NullInt64
		attrs                   string
	)
	if err := scanner.Scan(&name, &xmir, &probed, &probedAt, &version, &attrs); err != nil {
		return catalog.Record{}, err
	}

	row := map[string]string{}
	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &row); err != nil {
			return catalog.Record{}, fmt.Errorf("decoding attributes of %s: %w", name, err)
		}
	}
	row[catalog.AttrID] = name
	if xmir.Valid {
		row[catalog.AttrXMIR] = xmir.String
	}
	if probed.Valid {
		row[catalog.AttrProbed] = strconv.FormatInt(probed.Int64, 10)
	}
	if probedAt.Valid {
		row[catalog.AttrProbedAt] = probedAt.String
	}
	if version.Valid {
		row[catalog.AttrVersion] = version.String
	}
	return catalog.FromAttributes(row)
}

// Select implements catalog.Store.
func (s *Store) Select(ctx context.Context, pred catalog.Predicate) ([]catalog.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("selecting records: %w", err)
	}
	defer rows.Close()

	var result []catalog.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if pred(r) {
			result = append(result, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return result, nil
}

// Get implements catalog.Store.
func (s *Store) Get(ctx context.Context, name string) (catalog.Record, bool, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Record{}, false, nil
	}
	if err != nil {
		return catalog.Record{}, false, fmt.Errorf("getting record %s: %w", name, err)
	}
	return r, true, nil
}

// Update implements catalog.Store. The read and the write share one
// transaction.
func (s *Store) Update(ctx context.Context, name string, fn func(*catalog.Record) error) (catalog.Record, error) {
	if err := catalog.CheckName(name); err != nil {
		return catalog.Record{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Record{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE name = ?`, name))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		r = catalog.Record{Name: name}
	case err != nil:
		return catalog.Record{}, fmt.Errorf("reading record %s: %w", name, err)
	}

	if err := fn(&r); err != nil {
		return catalog.Record{}, err
	}
	r.Name = name

	if err := upsert(ctx, tx, r); err != nil {
		return catalog.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return catalog.Record{}, fmt.Errorf("committing record %s: %w", name, err)
	}
	return r, nil
}

func upsert(ctx context.Context, tx *sql.Tx, r catalog.Record) error {
	row := r.Attributes()
	column := func(key string) sql.NullString {
		v, ok := row[key]
		delete(row, key)
		return sql.NullString{String: v, Valid: ok}
	}

	delete(row, catalog.AttrID)
	xmir := column(catalog.AttrXMIR)
	probedAt := column(catalog.AttrProbedAt)
	version := column(catalog.AttrVersion)

	var probed sql.NullInt64
	if r.Program != nil && r.Program.Probed != nil {
		probed = sql.NullInt64{Int64: int64(*r.Program.Probed), Valid: true}
	}
	delete(row, catalog.AttrProbed)

	attrs, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encoding attributes of %s: %w", r.Name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			xmir_path = excluded.xmir_path,
			probed    = excluded.probed,
			probed_at = excluded.probed_at,
			version   = excluded.version,
			attrs     = excluded.attrs`,
		r.Name, xmir, probed, probedAt, version, string(attrs),
	)
	if err != nil {
		return fmt.Errorf("saving record %s: %w", r.Name, err)
	}
	return nil
}

// Len implements catalog.Store.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}
