package calibration

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// Calibration targets a run is judged against.
const (
	TargetCorrelation    = 0.85
	TargetMAE            = 0.5
	TargetAdjacentLevels = 0.85
	// BiasThreshold is the mean difference beyond which the model is
	// reported as scoring systematically high or low.
	BiasThreshold = 0.2
	// DimensionMAEThreshold flags a dimension whose 0-1 scores drift.
	DimensionMAEThreshold = 0.15
)

// Bias directions reported in Verdict.
const (
	BiasNone  = "none"
	BiasOver  = "over"
	BiasUnder = "under"
)

// AssessorScore is the averaged human rating of one response.
type AssessorScore struct {
	Score     float64 `json:"score"`
	Assessors int     `json:"assessors"`
	// Dimensions holds averaged 0-1 dimension ratings, when the file has them.
	Dimensions map[string]float64 `json:"dimensions,omitempty"`
}

// DimensionAgreement compares one dimension across matched responses.
type DimensionAgreement struct {
	N    int     `json:"n"`
	MAE  float64 `json:"mae"`
	Bias float64 `json:"bias"`
	OK   bool    `json:"ok"`
}

// Verdict reports which calibration targets were reached.
type Verdict struct {
	Correlation    bool   `json:"correlation"`
	MAE            bool   `json:"mae"`
	AdjacentLevels bool   `json:"adjacent_levels"`
	Bias           string `json:"bias"`
	Calibrated     bool   `json:"calibrated"`
}

// Comparison measures agreement between model and assessor scores.
type Comparison struct {
	N int `json:"n"`
	// MeanAssessors is the average number of assessors per matched response.
	MeanAssessors float64 `json:"mean_assessors"`
	// MAE is the mean absolute difference on the 0-4 scale.
	MAE float64 `json:"mae"`
	// PearsonR is nil when fewer than two pairs exist or either side is constant.
	PearsonR *float64 `json:"pearson_r,omitempty"`
	// LevelAgreement is the share of pairs that land in the same A-D level.
	LevelAgreement float64 `json:"level_agreement"`
	// AdjacentLevelAgreement is the share of pairs at most one level apart.
	AdjacentLevelAgreement float64 `json:"adjacent_level_agreement"`

	// Differences are model minus assessor.
	MeanDiff   float64 `json:"mean_diff"`
	MedianDiff float64 `json:"median_diff"`
	// StdDiff is the sample standard deviation, zero for a single pair.
	StdDiff float64 `json:"std_diff"`
	MinDiff float64 `json:"min_diff"`
	MaxDiff float64 `json:"max_diff"`

	Dimensions map[string]DimensionAgreement `json:"dimensions,omitempty"`
	Verdict    Verdict                       `json:"verdict"`

	// Unmatched lists assessor rows with no successful model score.
	Unmatched []string `json:"unmatched,omitempty"`
}

// LoadAssessorCSV opens path and reads it with ReadAssessorCSV.
func LoadAssessorCSV(path string) (map[string]AssessorScore, error) {
	f, err := os.Open(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("open assessor csv: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return ReadAssessorCSV(f)
}

// ReadAssessorCSV parses rows of response_id,assessor,score and averages the
// scores per response. A first row whose score column is not a number is
// treated as a header; columns after score in a header name dimension keys
// rated 0-1. Empty dimension cells are skipped.
func ReadAssessorCSV(r io.Reader) (map[string]AssessorScore, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	type acc struct {
		sum      float64
		count    int
		dimSum   map[string]float64
		dimCount map[string]int
	}
	rows := map[string]*acc{}
	var dims []string
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("%w: line %d: want at least 3 columns, got %d", ErrInvalidCSV, line, len(rec))
		}
		id := strings.TrimSpace(rec[0])
		score, perr := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if perr != nil {
			if line == 1 {
				for _, h := range rec[3:] {
					dims = append(dims, dimensionKey(h))
				}
				continue
			}
			return nil, fmt.Errorf("%w: line %d: score %q is not a number", ErrInvalidCSV, line, rec[2])
		}
		if len(rec) > 3 && dims == nil {
			return nil, fmt.Errorf("%w: line %d: dimension columns need a header", ErrInvalidCSV, line)
		}
		if id == "" {
			return nil, fmt.Errorf("%w: line %d: empty response_id", ErrInvalidCSV, line)
		}
		if score < 0 || score > 4 || math.IsNaN(score) {
			return nil, fmt.Errorf("%w: line %d: score %v outside 0-4", ErrInvalidCSV, line, score)
		}
		a := rows[id]
		if a == nil {
			a = &acc{dimSum: map[string]float64{}, dimCount: map[string]int{}}
			rows[id] = a
		}
		a.sum += score
		a.count++
		for i, key := range dims {
			cell := strings.TrimSpace(rec[3+i])
			if cell == "" || key == "" {
				continue
			}
			v, derr := strconv.ParseFloat(cell, 64)
			if derr != nil || v < 0 || v > 1 {
				return nil, fmt.Errorf("%w: line %d: %s %q is not a 0-1 rating", ErrInvalidCSV, line, key, cell)
			}
			a.dimSum[key] += v
			a.dimCount[key]++
		}
	}

	out := make(map[string]AssessorScore, len(rows))
	for id, a := range rows {
		s := AssessorScore{Score: a.sum / float64(a.count), Assessors: a.count}
		if len(a.dimSum) > 0 {
			s.Dimensions = make(map[string]float64, len(a.dimSum))
			for k, sum := range a.dimSum {
				s.Dimensions[k] = sum / float64(a.dimCount[k])
			}
		}
		out[id] = s
	}
	return out, nil
}

// dimensionKey turns a header such as "Stan docelowy (0-1)" into stan_docelowy.
func dimensionKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if i := strings.Index(h, "("); i >= 0 {
		h = strings.TrimSpace(h[:i])
	}
	return strings.Join(strings.Fields(h), "_")
}

// Compare pairs successful results with assessor scores by response_id.
func Compare(results []Result, assessor map[string]AssessorScore) (*Comparison, error) {
	scored := make(map[string]Result, len(results))
	for _, r := range results {
		if r.Status == StatusSuccess && r.Score != nil {
			scored[r.ResponseID] = r
		}
	}

	ids := make([]string, 0, len(assessor))
	for id := range assessor {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		c             Comparison
		xs, ys, diffs []float64
		absSum        float64
		assessors     int
		sameLevels    int
		nearLevels    int
		dimAbs        = map[string]float64{}
		dimDiff       = map[string]float64{}
		dimN          = map[string]int{}
	)
	for _, id := range ids {
		res, ok := scored[id]
		if !ok {
			c.Unmatched = append(c.Unmatched, id)
			continue
		}
		m, a := *res.Score, assessor[id]
		xs = append(xs, m)
		ys = append(ys, a.Score)
		diffs = append(diffs, m-a.Score)
		absSum += math.Abs(m - a.Score)
		assessors += a.Assessors
		switch d := levelIndex(m) - levelIndex(a.Score); {
		case d == 0:
			sameLevels++
			nearLevels++
		case d == 1 || d == -1:
			nearLevels++
		}
		for key, want := range a.Dimensions {
			got, ok := res.DimensionScores[key]
			if !ok {
				continue
			}
			dimAbs[key] += math.Abs(got - want)
			dimDiff[key] += got - want
			dimN[key]++
		}
	}
	c.N = len(xs)
	if c.N == 0 {
		return &c, ErrNoOverlap
	}
	n := float64(c.N)
	c.MeanAssessors = float64(assessors) / n
	c.MAE = absSum / n
	c.LevelAgreement = float64(sameLevels) / n
	c.AdjacentLevelAgreement = float64(nearLevels) / n
	c.PearsonR = pearson(xs, ys)
	c.MeanDiff, c.MedianDiff, c.StdDiff, c.MinDiff, c.MaxDiff = describe(diffs)

	if len(dimN) > 0 {
		c.Dimensions = make(map[string]DimensionAgreement, len(dimN))
		for key, k := range dimN {
			da := DimensionAgreement{N: k, MAE: dimAbs[key] / float64(k), Bias: dimDiff[key] / float64(k)}
			da.OK = da.MAE < DimensionMAEThreshold
			c.Dimensions[key] = da
		}
	}
	c.Verdict = verdict(&c)
	return &c, nil
}

func verdict(c *Comparison) Verdict {
	v := Verdict{
		Correlation:    c.PearsonR != nil && *c.PearsonR >= TargetCorrelation,
		MAE:            c.MAE <= TargetMAE,
		AdjacentLevels: c.AdjacentLevelAgreement >= TargetAdjacentLevels,
		Bias:           BiasNone,
	}
	switch {
	case c.MeanDiff > BiasThreshold:
		v.Bias = BiasOver
	case c.MeanDiff < -BiasThreshold:
		v.Bias = BiasUnder
	}
	v.Calibrated = v.Correlation && v.MAE && v.AdjacentLevels && v.Bias == BiasNone
	return v
}

// levelIndex orders levels A-D as 0-3.
func levelIndex(score float64) int {
	return int(types.LevelFor(score).Code[0] - 'A')
}

// describe returns mean, median, sample standard deviation, min and max.
func describe(xs []float64) (mean, median, std, lo, hi float64) {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	lo, hi = sorted[0], sorted[n-1]
	for _, x := range sorted {
		mean += x
	}
	mean /= float64(n)
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	if n > 1 {
		var ss float64
		for _, x := range sorted {
			ss += (x - mean) * (x - mean)
		}
		std = math.Sqrt(ss / float64(n-1))
	}
	return mean, median, std, lo, hi
}

func pearson(xs, ys []float64) *float64 {
	if len(xs) < 2 {
		return nil
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(len(xs))
	my /= float64(len(ys))

	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return nil
	}
	r := sxy / math.Sqrt(sxx*syy)
	return &r
}
