package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"medicrawl/internal/types"
)

// Outcome reports what Save did with a record.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
)

func (o Outcome) String() string {
	if o == OutcomeUpdated {
		return "updated"
	}
	return "inserted"
}

const schema = `
CREATE TABLE IF NOT EXISTS medicines (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	url            TEXT    NOT NULL UNIQUE,
	korean_name    TEXT    NOT NULL,
	english_name   TEXT    NOT NULL DEFAULT '',
	category       TEXT    NOT NULL DEFAULT '',
	type           TEXT    NOT NULL DEFAULT '',
	company        TEXT    NOT NULL DEFAULT '',
	appearance     TEXT    NOT NULL DEFAULT '',
	insurance_code TEXT    NOT NULL DEFAULT '',
	shape          TEXT    NOT NULL DEFAULT '',
	color          TEXT    NOT NULL DEFAULT '',
	size           TEXT    NOT NULL DEFAULT '',
	identification TEXT    NOT NULL DEFAULT '',
	components     TEXT    NOT NULL DEFAULT '',
	efficacy       TEXT    NOT NULL DEFAULT '',
	precautions    TEXT    NOT NULL DEFAULT '',
	dosage         TEXT    NOT NULL DEFAULT '',
	storage        TEXT    NOT NULL DEFAULT '',
	period         TEXT    NOT NULL DEFAULT '',
	image_url      TEXT    NOT NULL DEFAULT '',
	image_path     TEXT    NOT NULL DEFAULT '',
	data_hash      TEXT    NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_medicines_hash ON medicines(data_hash);
CREATE INDEX IF NOT EXISTS idx_medicines_name ON medicines(korean_name);

CREATE TABLE IF NOT EXISTS api_calls (
	date  TEXT    NOT NULL UNIQUE,
	count INTEGER NOT NULL DEFAULT 0
);
`

// Store is the SQLite-backed persistence gateway for medicine records.
// A single connection is used; the crawler is single-threaded and WAL
// plus a busy timeout cover the occasional concurrent reader.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// DB exposes the underlying handle for components sharing the database
// file (the API call counter).
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

const recordColumns = `id, url, korean_name, english_name, category, type, company,
	appearance, insurance_code, shape, color, size, identification,
	components, efficacy, precautions, dosage, storage, period,
	image_url, image_path, data_hash, created_at, updated_at`

// Save persists a record, applying the two-tier dedup policy:
//
//  1. URL already stored: merge the incoming fields into the stored row,
//     recompute the hash, and update in place.
//  2. Content hash already stored under a different URL: reject with
//     types.ErrDuplicateHash.
//  3. Otherwise insert a new row.
func (s *Store) Save(ctx context.Context, rec *types.Record) (Outcome, error) {
	existing, err := s.GetByURL(ctx, rec.URL)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return 0, err
	}

	now := time.Now().UTC()

	if existing != nil {
		existing.Merge(rec)
		existing.DataHash = existing.Fingerprint()
		existing.UpdatedAt = now
		if err := s.update(ctx, existing); err != nil {
			return 0, err
		}
		rec.ID = existing.ID
		s.logger.Debug("record updated", "url", rec.URL, "id", existing.ID)
		return OutcomeUpdated, nil
	}

	dup, err := s.HashExists(ctx, rec.DataHash)
	if err != nil {
		return 0, err
	}
	if dup {
		return 0, &types.StorageError{Op: "save", Err: types.ErrDuplicateHash}
	}

	rec.CreatedAt = now
	rec.UpdatedAt = now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO medicines (
			url, korean_name, english_name, category, type, company,
			appearance, insurance_code, shape, color, size, identification,
			components, efficacy, precautions, dosage, storage, period,
			image_url, image_path, data_hash, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.URL, rec.KoreanName, rec.EnglishName, rec.Category, rec.Type, rec.Company,
		rec.Appearance, rec.InsuranceCode, rec.Shape, rec.Color, rec.Size, rec.Identification,
		rec.Components, rec.Efficacy, rec.Precautions, rec.Dosage, rec.Storage, rec.Period,
		rec.ImageURL, rec.ImagePath, rec.DataHash, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return 0, &types.StorageError{Op: "insert", Err: err}
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	s.logger.Debug("record inserted", "url", rec.URL, "id", rec.ID)
	return OutcomeInserted, nil
}

func (s *Store) update(ctx context.Context, rec *types.Record) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE medicines SET
			korean_name = ?, english_name = ?, category = ?, type = ?, company = ?,
			appearance = ?, insurance_code = ?, shape = ?, color = ?, size = ?,
			identification = ?, components = ?, efficacy = ?, precautions = ?,
			dosage = ?, storage = ?, period = ?, image_url = ?, image_path = ?,
			data_hash = ?, updated_at = ?
		WHERE id = ?`,
		rec.KoreanName, rec.EnglishName, rec.Category, rec.Type, rec.Company,
		rec.Appearance, rec.InsuranceCode, rec.Shape, rec.Color, rec.Size,
		rec.Identification, rec.Components, rec.Efficacy, rec.Precautions,
		rec.Dosage, rec.Storage, rec.Period, rec.ImageURL, rec.ImagePath,
		rec.DataHash, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return &types.StorageError{Op: "update", Err: err}
	}
	return nil
}

// GetByURL loads the record stored for url, or types.ErrNotFound.
func (s *Store) GetByURL(ctx context.Context, url string) (*types.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM medicines WHERE url = ?`, url)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.StorageError{Op: "get", Err: types.ErrNotFound}
	}
	if err != nil {
		return nil, &types.StorageError{Op: "get", Err: err}
	}
	return rec, nil
}

// URLExists reports whether a record is already stored for url.
func (s *Store) URLExists(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM medicines WHERE url = ?`, url).Scan(&n)
	if err != nil {
		return false, &types.StorageError{Op: "url_exists", Err: err}
	}
	return n > 0, nil
}

// HashExists reports whether any record carries the given content hash.
func (s *Store) HashExists(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM medicines WHERE data_hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, &types.StorageError{Op: "hash_exists", Err: err}
	}
	return n > 0, nil
}

// SetImagePath records the local path of a downloaded image.
func (s *Store) SetImagePath(ctx context.Context, id int64, path string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE medicines SET image_path = ?, updated_at = ? WHERE id = ?`,
		path, time.Now().UTC(), id)
	if err != nil {
		return &types.StorageError{Op: "set_image_path", Err: err}
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM medicines`).Scan(&n); err != nil {
		return 0, &types.StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// CategoryCount is one row of the per-category breakdown.
type CategoryCount struct {
	Category string
	Count    int64
}

// TopCategories returns the most frequent categories, for the stats report.
func (s *Store) TopCategories(ctx context.Context, limit int) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(1) AS n FROM medicines
		WHERE category != ''
		GROUP BY category ORDER BY n DESC, category LIMIT ?`, limit)
	if err != nil {
		return nil, &types.StorageError{Op: "top_categories", Err: err}
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, &types.StorageError{Op: "top_categories", Err: err}
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// All streams every stored record in insertion order.
func (s *Store) All(ctx context.Context) ([]*types.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM medicines ORDER BY id`)
	if err != nil {
		return nil, &types.StorageError{Op: "all", Err: err}
	}
	defer rows.Close()

	var out []*types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &types.StorageError{Op: "all", Err: err}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*types.Record, error) {
	rec := &types.Record{}
	err := row.Scan(
		&rec.ID, &rec.URL, &rec.KoreanName, &rec.EnglishName, &rec.Category,
		&rec.Type, &rec.Company, &rec.Appearance, &rec.InsuranceCode,
		&rec.Shape, &rec.Color, &rec.Size, &rec.Identification,
		&rec.Components, &rec.Efficacy, &rec.Precautions, &rec.Dosage,
		&rec.Storage, &rec.Period, &rec.ImageURL, &rec.ImagePath,
		&rec.DataHash, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
