// Package rubric holds the competency rubrics: dimensions, weights, level
// anchors and the Stage 1 section schema.
//
// Definitions are read from a blob store as versioned YAML records
// (rubric/<competency>/<version>.yaml, with rubric/<competency>/current
// naming the live version) and fall back to the embedded defaults. Edits
// persist a new version and then publish a fresh immutable Snapshot; callers
// that already hold a Snapshot keep seeing the old one.
package rubric

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// Store is the blob store used for rubric records. Missing keys must yield
// errors matching fs.ErrNotExist.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Snapshot is an immutable view of every competency.
type Snapshot struct {
	byID map[types.Competency]*Competency
}

// Competency returns the definition for id.
func (s *Snapshot) Competency(id types.Competency) (*Competency, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompetency, id)
	}
	return c, nil
}

// All returns every competency in canonical order.
func (s *Snapshot) All() []*Competency {
	out := make([]*Competency, 0, len(s.byID))
	for _, id := range types.Competencies() {
		if c, ok := s.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Registry serves rubric snapshots and applies edits.
type Registry struct {
	store Store
	log   logger.Logger

	mu   sync.Mutex // serialises edits and reloads
	snap atomic.Pointer[Snapshot]
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// New builds a Registry and performs the initial load. A nil store serves
// the embedded defaults only and rejects edits.
func New(ctx context.Context, store Store, opts ...Option) (*Registry, error) {
	r := &Registry{store: store, log: logger.NamedOrNop("rubric")}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Competency returns the current definition for id.
func (r *Registry) Competency(id types.Competency) (*Competency, error) {
	return r.Snapshot().Competency(id)
}

// DimensionsFor returns the ordered dimensions of id.
func (r *Registry) DimensionsFor(id types.Competency) ([]Dimension, error) {
	c, err := r.Competency(id)
	if err != nil {
		return nil, err
	}
	return c.Dimensions, nil
}

// WeightsFor returns dimension weights of id.
func (r *Registry) WeightsFor(id types.Competency) (map[string]float64, error) {
	c, err := r.Competency(id)
	if err != nil {
		return nil, err
	}
	return c.Weights(), nil
}

// Reload re-reads every competency from the store, falling back to the
// embedded default when no record exists.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := &Snapshot{byID: make(map[types.Competency]*Competency)}
	for _, id := range types.Competencies() {
		c, source, err := r.load(ctx, id)
		if err != nil {
			return err
		}
		next.byID[id] = c
		r.log.Debug(ctx, "rubric loaded",
			logger.String("competency", string(id)),
			logger.String("version", c.Version),
			logger.String("from", source),
		)
	}
	r.snap.Store(next)
	return nil
}

func (r *Registry) load(ctx context.Context, id types.Competency) (*Competency, string, error) {
	if r.store != nil {
		current, err := r.store.Get(ctx, currentKey(id))
		switch {
		case err == nil:
			version := strings.TrimSpace(string(current))
			data, err := r.store.Get(ctx, versionKey(id, version))
			if err != nil {
				return nil, "", fmt.Errorf("read rubric %s@%s: %w", id, version, err)
			}
			c, err := decode(data)
			if err != nil {
				return nil, "", fmt.Errorf("rubric %s@%s: %w", id, version, err)
			}
			return c, "store", nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, "", fmt.Errorf("read rubric pointer %s: %w", id, err)
		}
	}
	c, err := Default(id)
	if err != nil {
		return nil, "", err
	}
	return c, "embedded", nil
}

// Default returns the embedded definition of id.
func Default(id types.Competency) (*Competency, error) {
	data, err := defaultsFS.ReadFile("defaults/" + string(id) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompetency, id)
	}
	return decode(data)
}

func decode(data []byte) (*Competency, error) {
	var c Competency
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode rubric: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Update is a rubric edit. Empty Name, Algorithm and Sections keep the
// current values; Dimensions replace the current set when non-empty.
type Update struct {
	Name       string      `json:"name"`
	Source     string      `json:"source"`
	Algorithm  []string    `json:"algorithm"`
	Sections   []Section   `json:"sections"`
	Dimensions []Dimension `json:"dimensions"`
}

// Edit validates and persists a new version of id, then publishes it.
func (r *Registry) Edit(ctx context.Context, id types.Competency, u Update) (*Competency, error) {
	return r.apply(ctx, id, func(c *Competency) {
		if u.Name != "" {
			c.Name = u.Name
		}
		if u.Source != "" {
			c.Source = u.Source
		}
		if len(u.Algorithm) > 0 {
			c.Algorithm = append([]string(nil), u.Algorithm...)
		}
		if len(u.Sections) > 0 {
			c.Sections = append([]Section(nil), u.Sections...)
		}
		if len(u.Dimensions) > 0 {
			c.Dimensions = append([]Dimension(nil), u.Dimensions...)
		}
	}, nil)
}

// SetWeights replaces the weights of id. weights must name exactly the
// current dimensions.
func (r *Registry) SetWeights(ctx context.Context, id types.Competency, weights map[string]float64) (*Competency, error) {
	return r.apply(ctx, id, func(c *Competency) {
		for i := range c.Dimensions {
			c.Dimensions[i].Weight = weights[c.Dimensions[i].Key]
		}
	}, func(c *Competency) []string {
		var problems []string
		for k := range weights {
			if _, ok := c.Dimension(k); !ok {
				problems = append(problems, fmt.Sprintf("unknown dimension %q", k))
			}
		}
		for _, d := range c.Dimensions {
			if _, ok := weights[d.Key]; !ok {
				problems = append(problems, fmt.Sprintf("missing weight for dimension %q", d.Key))
			}
		}
		return problems
	})
}

func (r *Registry) apply(ctx context.Context, id types.Competency, mutate func(*Competency), precheck func(*Competency) []string) (*Competency, error) {
	if r.store == nil {
		return nil, errors.New("rubric registry has no store; edits are disabled")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.Load()
	cur, err := old.Competency(id)
	if err != nil {
		return nil, err
	}
	if precheck != nil {
		if problems := precheck(cur); len(problems) > 0 {
			return nil, &ValidationError{Problems: problems}
		}
	}

	next := cur.clone()
	mutate(next)
	next.ID = id
	next.Version = bumpVersion(cur.Version)
	if err := next.Validate(); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode rubric: %w", err)
	}
	if err := r.store.Put(ctx, versionKey(id, next.Version), data); err != nil {
		return nil, fmt.Errorf("persist rubric %s@%s: %w", id, next.Version, err)
	}
	if err := r.store.Put(ctx, currentKey(id), []byte(next.Version)); err != nil {
		return nil, fmt.Errorf("persist rubric pointer %s: %w", id, err)
	}

	snap := &Snapshot{byID: make(map[types.Competency]*Competency, len(old.byID))}
	for k, v := range old.byID {
		snap.byID[k] = v
	}
	snap.byID[id] = next
	r.snap.Store(snap)

	r.log.Info(ctx, "rubric updated",
		logger.String("competency", string(id)),
		logger.String("from_version", cur.Version),
		logger.String("to_version", next.Version),
	)
	return next, nil
}

// bumpVersion increments the minor part of "major.minor".
func bumpVersion(v string) string {
	major, minor, ok := strings.Cut(v, ".")
	if !ok {
		return v + ".1"
	}
	n, err := strconv.Atoi(minor)
	if err != nil {
		return v + ".1"
	}
	return major + "." + strconv.Itoa(n+1)
}

func currentKey(id types.Competency) string {
	return "rubric/" + string(id) + "/current"
}

func versionKey(id types.Competency, version string) string {
	return "rubric/" + string(id) + "/" + version + ".yaml"
}

// WeightSum returns the sum of a competency's weights.
func WeightSum(c *Competency) float64 {
	var sum float64
	for _, d := range c.Dimensions {
		sum += d.Weight
	}
	return math.Round(sum*1e6) / 1e6
}
