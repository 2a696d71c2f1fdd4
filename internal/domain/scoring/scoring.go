// Package scoring holds the deterministic half of dimension scoring:
// reading a model's numeric answer, the quote-count fallback, weighted
// aggregation into the 0-4 scale and the templated justifications.
package scoring

import (
	"math"
	"regexp"
	"strconv"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// Scale bounds.
const (
	MaxFinalScore = 4.0
	quantumsPer   = 4 // quarter points
)

// Fallback scores by number of quotes.
const (
	fallbackOneQuote   = 0.5
	fallbackManyQuotes = 0.7
)

var firstNumber = regexp.MustCompile(`(\d+\.?\d*)`)

// ParseScore returns the first unsigned decimal in text clamped to [0,1].
// ok is false when text holds no number.
func ParseScore(text string) (score float64, ok bool) {
	m := firstNumber.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return Clamp(v, 0, 1), true
}

// Fallback scores a dimension from its evidence alone. It never fails.
func Fallback(ev model.Evidence) float64 {
	if !ev.Present {
		return 0
	}
	switch n := len(ev.Quotes); {
	case n == 0:
		return 0
	case n == 1:
		return fallbackOneQuote
	default:
		return fallbackManyQuotes
	}
}

// FinalScore converts the weighted sum of 0-1 dimension scores into the
// 0-4 scale, quantised to quarter points. Halfway cases round to even.
func FinalScore(weightedSum float64) float64 {
	final := weightedSum * MaxFinalScore
	final = math.RoundToEven(final*quantumsPer) / quantumsPer
	return Clamp(final, 0, MaxFinalScore)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Dimension is the per-dimension input to Aggregate.
type Dimension struct {
	Key      string
	Name     string
	Weight   float64
	Score    float64
	Fallback bool
	Evidence model.Evidence
}

// Aggregate builds the ScoringResult for dims, kept in the given order.
func Aggregate(competency types.Competency, dims []Dimension) model.ScoringResult {
	res := model.ScoringResult{
		Competency: competency,
		Scores:     make(map[string]model.DimensionScore, len(dims)),
		Dimensions: make([]string, 0, len(dims)),
		Evidence:   make(map[string]model.Evidence, len(dims)),
	}
	var sum float64
	for _, d := range dims {
		points := d.Score * d.Weight
		sum += points
		res.Dimensions = append(res.Dimensions, d.Key)
		res.Evidence[d.Key] = d.Evidence
		res.Scores[d.Key] = model.DimensionScore{
			Dimension:     d.Key,
			Name:          d.Name,
			Score:         d.Score,
			Weight:        d.Weight,
			Points:        points,
			Justification: Justification(d.Name, d.Score, d.Evidence.Notes),
			Fallback:      d.Fallback,
		}
	}
	res.FinalScore = FinalScore(sum)
	res.Level = types.LevelFor(res.FinalScore)
	return res
}
