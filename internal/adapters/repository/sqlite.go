package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
	_ "modernc.org/sqlite"
)

const backendSQLite = "sqlite"

// sqliteTime is fixed width so created_at sorts lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assessments (
	id             TEXT PRIMARY KEY,
	participant_id TEXT NOT NULL,
	case_id        TEXT NOT NULL,
	competency     TEXT NOT NULL,
	state          TEXT NOT NULL,
	score          REAL,
	level_code     TEXT NOT NULL DEFAULT '',
	cost_usd       REAL,
	created_at     TEXT NOT NULL,
	payload        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_assessments_participant ON assessments(participant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_competency ON assessments(competency);
`

// SQLiteStore keeps records in a SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens path in WAL mode and migrates the schema. The parent
// directory is created when missing.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite sink: create dir: %w", err)
		}
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: open: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	for _, p := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite sink: pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite sink: migration: %w", err)
	}
	s.log.Info(ctx, "sqlite result sink ready", logger.String("path", path))
	return &SQLiteStore{db: db, log: s.log}, nil
}

// Save implements Store. Saving an existing id replaces the row.
func (s *SQLiteStore) Save(ctx context.Context, r Record) (string, error) {
	if err := prepare(&r); err != nil {
		metrics.RecordSinkWrite(backendSQLite, "invalid")
		return "", err
	}
	payload, err := encode(r)
	if err != nil {
		metrics.RecordSinkWrite(backendSQLite, "invalid")
		return "", err
	}
	sum := r.Summary()
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO assessments
			(id, participant_id, case_id, competency, state, score, level_code, cost_usd, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.ParticipantID, sum.CaseID, string(sum.Competency), string(sum.State),
		nullFloat(sum.Score), sum.LevelCode, nullFloat(sum.CostUSD),
		sum.CreatedAt.UTC().Format(sqliteTime), string(payload),
	)
	if err != nil {
		metrics.RecordSinkWrite(backendSQLite, "error")
		return "", fmt.Errorf("sqlite sink: save %s: %w", sum.ID, err)
	}
	metrics.RecordSinkWrite(backendSQLite, "ok")
	return sum.ID, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM assessments WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("sqlite sink: get %s: %w", id, err)
	}
	return decode([]byte(payload))
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Summary, error) {
	f, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if f.Competency != "" {
		where = append(where, "competency = ?")
		args = append(args, string(f.Competency))
	}
	if f.ParticipantID != "" {
		where = append(where, "participant_id = ?")
		args = append(args, f.ParticipantID)
	}
	q := `SELECT id, participant_id, case_id, competency, state, score, level_code, cost_usd, created_at FROM assessments`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: list: %w", err)
	}
	defer rows.Close()
	return scanSQLiteSummaries(rows)
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, participant_id, case_id, competency, state, score, level_code, cost_usd, created_at FROM assessments`)
	if err != nil {
		return Stats{}, fmt.Errorf("sqlite sink: stats: %w", err)
	}
	defer rows.Close()
	sums, err := scanSQLiteSummaries(rows)
	if err != nil {
		return Stats{}, err
	}
	acc := newAccumulator()
	for _, sum := range sums {
		acc.add(sum)
	}
	return acc.result(), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteSummaries(rows *sql.Rows) ([]Summary, error) {
	var out []Summary
	for rows.Next() {
		var (
			sum               Summary
			competency, state string
			score, cost       sql.NullFloat64
			created           string
		)
		if err := rows.Scan(&sum.ID, &sum.ParticipantID, &sum.CaseID, &competency, &state,
			&score, &sum.LevelCode, &cost, &created); err != nil {
			return nil, fmt.Errorf("sqlite sink: scan: %w", err)
		}
		sum.Competency = types.Competency(competency)
		sum.State = types.Stage(state)
		sum.Score = floatPtr(score)
		sum.CostUSD = floatPtr(cost)
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("sqlite sink: created_at %q: %w", created, err)
		}
		sum.CreatedAt = t
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite sink: rows: %w", err)
	}
	return out, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
