package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id          INTEGER PRIMARY KEY,
	owner       TEXT    NOT NULL,
	ts          REAL    NOT NULL,
	text        TEXT    NOT NULL,
	meta        TEXT    NOT NULL,
	vec         BLOB    NOT NULL,
	fingerprint TEXT    NOT NULL,
	freq        INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner);
CREATE INDEX IF NOT EXISTS idx_memories_ts ON memories(ts);
CREATE INDEX IF NOT EXISTS idx_memories_fp ON memories(owner, fingerprint);
`

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	dim int
}

// NewSQLite opens (or creates) the record store at dsn. dim is the collection
// dimensionality; vectors of any other length are rejected.
//
// The database runs with WAL journaling and synchronous=FULL so a committed
// insert is durable before Add returns.
func NewSQLite(dsn string, dim int) (*SQLiteStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("store: invalid dimension %d", dim)
	}

	if dir := filepath.Dir(dsn); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SQLiteStore{db: db, dim: dim}, nil
}

// Dimension returns the configured vector length.
func (s *SQLiteStore) Dimension() int { return s.dim }

// Close releases the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) checkDim(vec []float32) error {
	if len(vec) != s.dim {
		return &ErrDimensionMismatch{Expected: s.dim, Actual: len(vec)}
	}
	return nil
}

// Add persists one record, deduplicating by fingerprint.
func (s *SQLiteStore) Add(ctx context.Context, rec *Record) (int64, bool, error) {
	if err := s.checkDim(rec.Vector); err != nil {
		return 0, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("store: add for %q: %w", rec.Owner, err)
	}
	defer tx.Rollback() //nolint:errcheck

	id, deduped, err := s.addTx(ctx, tx, rec)
	if err != nil {
		return 0, false, fmt.Errorf("store: add for %q: %w", rec.Owner, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("store: add for %q: commit: %w", rec.Owner, err)
	}
	return id, deduped, nil
}

// AddBatch persists records in one transaction, preserving input order.
func (s *SQLiteStore) AddBatch(ctx context.Context, recs []*Record) ([]int64, []bool, error) {
	for _, rec := range recs {
		if err := s.checkDim(rec.Vector); err != nil {
			return nil, nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("store: add batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids := make([]int64, len(recs))
	deduped := make([]bool, len(recs))
	for i, rec := range recs {
		ids[i], deduped[i], err = s.addTx(ctx, tx, rec)
		if err != nil {
			return nil, nil, fmt.Errorf("store: add batch for %q: %w", rec.Owner, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("store: add batch: commit: %w", err)
	}
	return ids, deduped, nil
}

func (s *SQLiteStore) addTx(ctx context.Context, tx *sql.Tx, rec *Record) (int64, bool, error) {
	if rec.Timestamp == 0 {
		rec.Timestamp = float64(time.Now().UnixNano()) / 1e9
	}
	if rec.Fingerprint == "" {
		rec.Fingerprint = Fingerprint(rec.Text)
	}

	// Dedup: same text for the same owner bumps freq and ts.
	var existing int64
	var freq int
	err := tx.QueryRowContext(ctx,
		`SELECT id, freq FROM memories WHERE owner = ? AND fingerprint = ? LIMIT 1;`,
		rec.Owner, rec.Fingerprint,
	).Scan(&existing, &freq)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE memories SET ts = ?, freq = ? WHERE id = ?;`,
			rec.Timestamp, freq+1, existing,
		)
		if err != nil {
			return 0, false, err
		}
		return existing, true, nil
	case err != sql.ErrNoRows:
		return 0, false, err
	}

	meta, err := json.Marshal(metaOrEmpty(rec.Metadata))
	if err != nil {
		return 0, false, fmt.Errorf("marshal metadata: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO memories (owner, ts, text, meta, vec, fingerprint, freq) VALUES (?, ?, ?, ?, ?, ?, 1);`,
		rec.Owner, rec.Timestamp, rec.Text, string(meta), encodeVector(rec.Vector), rec.Fingerprint,
	)
	if err != nil {
		return 0, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

func metaOrEmpty(m Metadata) Metadata {
	if m == nil {
		return Metadata{}
	}
	return m
}

const recordColumns = `id, owner, ts, text, meta, vec, fingerprint, freq`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	var meta string
	var vec []byte
	if err := row.Scan(&rec.ID, &rec.Owner, &rec.Timestamp, &rec.Text, &meta, &vec, &rec.Fingerprint, &rec.Freq); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	rec.Vector = decodeVector(vec)
	return &rec, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM memories WHERE id = ?;`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %d: %w", id, err)
	}
	return rec, nil
}

// getManyChunk caps bind variables per IN query, well under SQLite's
// SQLITE_MAX_VARIABLE_NUMBER (999 in older builds).
const getManyChunk = 500

// GetMany returns the records with the given ids. Missing ids are skipped.
// Large id sets are fetched in chunks of getManyChunk.
func (s *SQLiteStore) GetMany(ctx context.Context, owner string, ids []int64) ([]*Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	recs := make([]*Record, 0, len(ids))
	for start := 0; start < len(ids); start += getManyChunk {
		end := start + getManyChunk
		if end > len(ids) {
			end = len(ids)
		}

		chunk, err := s.getChunk(ctx, owner, ids[start:end])
		if err != nil {
			return nil, err
		}
		recs = append(recs, chunk...)
	}
	return recs, nil
}

func (s *SQLiteStore) getChunk(ctx context.Context, owner string, ids []int64) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM memories WHERE owner = ? AND id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `);`
	args := make([]any, 0, len(ids)+1)
	args = append(args, owner)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get many for %q: %w", owner, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Scan returns up to limit records for the owner, oldest first.
func (s *SQLiteStore) Scan(ctx context.Context, owner string, limit int) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM memories WHERE owner = ? ORDER BY id ASC`
	args := []any{owner}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query+`;`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: scan for %q: %w", owner, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ScanRecent returns the most recent limit records for the owner.
func (s *SQLiteStore) ScanRecent(ctx context.Context, owner string, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM memories WHERE owner = ? ORDER BY ts DESC LIMIT ?;`,
		owner, limit)
	if err != nil {
		return nil, fmt.Errorf("store: scan recent for %q: %w", owner, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Count returns the number of records for the owner.
func (s *SQLiteStore) Count(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM memories WHERE owner = ?;`, owner).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count for %q: %w", owner, err)
	}
	return n, nil
}

// Owners returns all owners with at least one record.
func (s *SQLiteStore) Owners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner FROM memories ORDER BY owner;`)
	if err != nil {
		return nil, fmt.Errorf("store: owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
