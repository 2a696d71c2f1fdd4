// Package repository persists assessment results: an in-memory ring by
// default, or SQLite and Postgres tables holding the full trace as JSON.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// Page limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Record is one stored assessment in any terminal state.
type Record struct {
	State      types.Stage       `json:"state"`
	Error      string            `json:"error,omitempty"`
	Assessment *model.Assessment `json:"assessment"`
}

// Summary is the list view of a Record.
type Summary struct {
	ID            string           `json:"assessment_id"`
	ParticipantID string           `json:"participant_id"`
	CaseID        string           `json:"case_id"`
	Competency    types.Competency `json:"competency"`
	State         types.Stage      `json:"state"`
	Score         *float64         `json:"score,omitempty"`
	LevelCode     string           `json:"level_code,omitempty"`
	CostUSD       *float64         `json:"cost_usd,omitempty"`
	CreatedAt     time.Time        `json:"timestamp"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Competency    types.Competency
	ParticipantID string
	Limit         int
	Offset        int
}

// Stats aggregates everything a Store holds.
type Stats struct {
	Count        int            `json:"count"`
	Scored       int            `json:"scored"`
	MeanScore    float64        `json:"mean_score"`
	Levels       map[string]int `json:"levels"`
	States       map[string]int `json:"states"`
	TotalCostUSD float64        `json:"total_cost_usd"`
}

// Store persists and queries assessment records.
type Store interface {
	// Save stores r and returns its id. A record without an id gets one.
	Save(ctx context.Context, r Record) (string, error)
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Record, error)
	// List returns summaries newest first.
	List(ctx context.Context, f Filter) ([]Summary, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// NewRecord builds a Record from a finished run.
func NewRecord(a *model.Assessment, state types.Stage, runErr error) Record {
	r := Record{State: state, Assessment: a}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// Summary derives the list view.
func (r Record) Summary() Summary {
	a := r.Assessment
	s := Summary{
		ID:            a.ID,
		ParticipantID: a.ParticipantID,
		CaseID:        a.CaseID,
		Competency:    a.Competency,
		State:         r.State,
		CostUSD:       a.CostUSD,
		CreatedAt:     a.CreatedAt,
	}
	if a.Scoring != nil {
		score := a.Scoring.FinalScore
		s.Score = &score
		s.LevelCode = a.Scoring.Level.Code
	}
	return s
}

// prepare checks r and assigns an id and timestamp when missing.
func prepare(r *Record) error {
	if r.Assessment == nil {
		return fmt.Errorf("%w: no assessment", ErrInvalidRecord)
	}
	if r.State == "" {
		return fmt.Errorf("%w: no state", ErrInvalidRecord)
	}
	if r.Assessment.ID == "" {
		r.Assessment.ID = uuid.NewString()
	}
	if r.Assessment.CreatedAt.IsZero() {
		r.Assessment.CreatedAt = time.Now().UTC()
	}
	return nil
}

func normalizeFilter(f Filter) (Filter, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return f, fmt.Errorf("%w: limit %d offset %d", ErrInvalidLimit, f.Limit, f.Offset)
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f, nil
}

func encode(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return data, nil
}

func decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if r.Assessment == nil {
		return Record{}, fmt.Errorf("%w: stored payload has no assessment", ErrInvalidRecord)
	}
	return r, nil
}

// accumulator folds summaries into Stats.
type accumulator struct {
	stats Stats
	sum   float64
}

func newAccumulator() *accumulator {
	return &accumulator{stats: Stats{Levels: map[string]int{}, States: map[string]int{}}}
}

func (a *accumulator) add(s Summary) {
	a.stats.Count++
	a.stats.States[string(s.State)]++
	if s.Score != nil {
		a.stats.Scored++
		a.sum += *s.Score
	}
	if s.LevelCode != "" {
		a.stats.Levels[s.LevelCode]++
	}
	if s.CostUSD != nil {
		a.stats.TotalCostUSD += *s.CostUSD
	}
}

func (a *accumulator) result() Stats {
	out := a.stats
	if out.Scored > 0 {
		out.MeanScore = a.sum / float64(out.Scored)
	}
	return out
}
