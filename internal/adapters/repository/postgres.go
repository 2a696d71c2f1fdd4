package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

const backendPostgres = "postgres"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS assessments (
	id             TEXT PRIMARY KEY,
	participant_id TEXT NOT NULL,
	case_id        TEXT NOT NULL,
	competency     TEXT NOT NULL,
	state          TEXT NOT NULL,
	score          DOUBLE PRECISION,
	level_code     TEXT NOT NULL DEFAULT '',
	cost_usd       DOUBLE PRECISION,
	created_at     TIMESTAMPTZ NOT NULL,
	payload        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_assessments_participant ON assessments(participant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_competency ON assessments(competency);
`

const summaryColumns = `id, participant_id, case_id, competency, state, score, level_code, cost_usd, created_at`

// PostgresStore keeps records in a Postgres table.
type PostgresStore struct {
	db  *pgxpool.Pool
	log logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, pings and migrates the schema.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres sink: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres sink: migration: %w", err)
	}
	s.log.Info(ctx, "postgres result sink ready")
	return &PostgresStore{db: pool, log: s.log}, nil
}

// Save implements Store. Saving an existing id replaces the row.
func (p *PostgresStore) Save(ctx context.Context, r Record) (string, error) {
	if err := prepare(&r); err != nil {
		metrics.RecordSinkWrite(backendPostgres, "invalid")
		return "", err
	}
	payload, err := encode(r)
	if err != nil {
		metrics.RecordSinkWrite(backendPostgres, "invalid")
		return "", err
	}
	sum := r.Summary()
	_, err = p.db.Exec(ctx, `
		INSERT INTO assessments (`+summaryColumns+`, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state, score = EXCLUDED.score, level_code = EXCLUDED.level_code,
			cost_usd = EXCLUDED.cost_usd, payload = EXCLUDED.payload`,
		sum.ID, sum.ParticipantID, sum.CaseID, string(sum.Competency), string(sum.State),
		sum.Score, sum.LevelCode, sum.CostUSD, sum.CreatedAt, payload,
	)
	if err != nil {
		metrics.RecordSinkWrite(backendPostgres, "error")
		return "", fmt.Errorf("postgres sink: save %s: %w", sum.ID, err)
	}
	metrics.RecordSinkWrite(backendPostgres, "ok")
	return sum.ID, nil
}

// Get implements Store.
func (p *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	var payload []byte
	err := p.db.QueryRow(ctx, `SELECT payload FROM assessments WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("postgres sink: get %s: %w", id, err)
	}
	return decode(payload)
}

// List implements Store.
func (p *PostgresStore) List(ctx context.Context, f Filter) ([]Summary, error) {
	f, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if f.Competency != "" {
		args = append(args, string(f.Competency))
		where = append(where, fmt.Sprintf("competency = $%d", len(args)))
	}
	if f.ParticipantID != "" {
		args = append(args, f.ParticipantID)
		where = append(where, fmt.Sprintf("participant_id = $%d", len(args)))
	}
	q := `SELECT ` + summaryColumns + ` FROM assessments`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: list: %w", err)
	}
	return collectSummaries(rows)
}

// Stats implements Store.
func (p *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := p.db.Query(ctx, `SELECT `+summaryColumns+` FROM assessments`)
	if err != nil {
		return Stats{}, fmt.Errorf("postgres sink: stats: %w", err)
	}
	sums, err := collectSummaries(rows)
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
func (p *PostgresStore) Close() error {
	p.db.Close()
	return nil
}

func collectSummaries(rows pgx.Rows) ([]Summary, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var (
			sum               Summary
			competency, state string
			created           time.Time
		)
		err := row.Scan(&sum.ID, &sum.ParticipantID, &sum.CaseID, &competency, &state,
			&sum.Score, &sum.LevelCode, &sum.CostUSD, &created)
		sum.Competency = types.Competency(competency)
		sum.State = types.Stage(state)
		sum.CreatedAt = created.UTC()
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres sink: scan: %w", err)
	}
	return out, nil
}

// Truncate removes every record.
func (p *PostgresStore) Truncate(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `TRUNCATE assessments`)
	return err
}
