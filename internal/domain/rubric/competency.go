package rubric

import (
	"fmt"
	"math"
	"sort"

	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// WeightTolerance is how far a competency's weights may drift from 1.0.
const WeightTolerance = 0.01

// Level is a discrete score anchor of a dimension.
type Level struct {
	Level       float64  `yaml:"level" json:"level"`
	Description string   `yaml:"description" json:"description"`
	Behaviors   []string `yaml:"behaviors" json:"behaviors"`
}

// Dimension is a scored sub-aspect of a competency.
type Dimension struct {
	Key         string  `yaml:"key" json:"key"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Weight      float64 `yaml:"weight" json:"weight"`
	Levels      []Level `yaml:"levels" json:"levels"`
}

// Section is one of the Stage 1 headings a narrative is split into.
type Section struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
}

// Competency is a full rubric definition. Values handed out by a Registry
// are shared snapshots and must be treated as read-only.
type Competency struct {
	ID         types.Competency `yaml:"id" json:"id"`
	Name       string           `yaml:"name" json:"name"`
	ShortName  string           `yaml:"short_name" json:"short_name"`
	Version    string           `yaml:"version" json:"version"`
	Source     string           `yaml:"source,omitempty" json:"source,omitempty"`
	Algorithm  []string         `yaml:"algorithm" json:"algorithm"`
	Sections   []Section        `yaml:"sections" json:"sections"`
	Dimensions []Dimension      `yaml:"dimensions" json:"dimensions"`
}

// Dimension returns the dimension with key.
func (c *Competency) Dimension(key string) (Dimension, bool) {
	for _, d := range c.Dimensions {
		if d.Key == key {
			return d, true
		}
	}
	return Dimension{}, false
}

// DimensionKeys returns dimension keys in rubric order.
func (c *Competency) DimensionKeys() []string {
	keys := make([]string, len(c.Dimensions))
	for i, d := range c.Dimensions {
		keys[i] = d.Key
	}
	return keys
}

// SectionKeys returns section keys in rubric order.
func (c *Competency) SectionKeys() []string {
	keys := make([]string, len(c.Sections))
	for i, s := range c.Sections {
		keys[i] = s.Key
	}
	return keys
}

// Weights returns dimension key to weight.
func (c *Competency) Weights() map[string]float64 {
	w := make(map[string]float64, len(c.Dimensions))
	for _, d := range c.Dimensions {
		w[d.Key] = d.Weight
	}
	return w
}

// SortedLevels returns the dimension's levels ordered by anchor.
func (d Dimension) SortedLevels() []Level {
	out := make([]Level, len(d.Levels))
	copy(out, d.Levels)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// LevelDescriptionNear returns the description of the anchor closest to
// score*4, where score is a 0-1 dimension score. Ties go to the lower anchor.
func (d Dimension) LevelDescriptionNear(score float64) string {
	scaled := score * 4
	best, bestDist := "", math.Inf(1)
	for _, l := range d.SortedLevels() {
		if dist := math.Abs(l.Level - scaled); dist < bestDist {
			best, bestDist = l.Description, dist
		}
	}
	return best
}

// Validate checks structural invariants and returns a *ValidationError
// listing every problem.
func (c *Competency) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !c.ID.Valid() {
		add("unknown competency id %q", c.ID)
	}
	if c.Name == "" {
		add("name is required")
	}
	if len(c.Dimensions) == 0 {
		add("at least one dimension is required")
	}

	seen := map[string]bool{}
	var sum float64
	for i, d := range c.Dimensions {
		switch {
		case d.Key == "":
			add("dimension %d: key is required", i)
		case seen[d.Key]:
			add("dimension %q: duplicate key", d.Key)
		}
		seen[d.Key] = true
		if d.Name == "" {
			add("dimension %q: name is required", d.Key)
		}
		if d.Weight < 0 || d.Weight > 1 {
			add("dimension %q: weight %.3f outside [0,1]", d.Key, d.Weight)
		}
		sum += d.Weight
		if len(d.Levels) == 0 {
			add("dimension %q: at least one level is required", d.Key)
		}
		for _, l := range d.Levels {
			if l.Level < 0 || l.Level > 4 {
				add("dimension %q: level %.1f outside [0,4]", d.Key, l.Level)
			}
		}
	}
	if len(c.Dimensions) > 0 && math.Abs(sum-1) > WeightTolerance {
		add("weights sum to %.3f, expected 1.0 ± %.2f", sum, WeightTolerance)
	}

	sectionSeen := map[string]bool{}
	for i, s := range c.Sections {
		if s.Key == "" {
			add("section %d: key is required", i)
			continue
		}
		if sectionSeen[s.Key] {
			add("section %q: duplicate key", s.Key)
		}
		sectionSeen[s.Key] = true
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (c *Competency) clone() *Competency {
	out := *c
	out.Algorithm = append([]string(nil), c.Algorithm...)
	out.Sections = append([]Section(nil), c.Sections...)
	out.Dimensions = make([]Dimension, len(c.Dimensions))
	for i, d := range c.Dimensions {
		d.Levels = append([]Level(nil), d.Levels...)
		for j := range d.Levels {
			d.Levels[j].Behaviors = append([]string(nil), d.Levels[j].Behaviors...)
		}
		out.Dimensions[i] = d
	}
	return &out
}
