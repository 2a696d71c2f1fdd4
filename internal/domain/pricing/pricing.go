// Package pricing converts token usage into USD cost using a per-model
// price table.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	defaultEstimatedInput  = 10000
	defaultEstimatedOutput = 8100
)

// Price holds per-million-token rates for one model family.
type Price struct {
	InputPer1M       float64 `json:"input_per_1m"`
	CachedInputPer1M float64 `json:"cached_input_per_1m"`
	OutputPer1M      float64 `json:"output_per_1m"`
	IsReasoning      bool    `json:"is_reasoning"`
}

// Tokens is the token split a breakdown was computed for.
type Tokens struct {
	Input         int `json:"input"`
	CachedInput   int `json:"cached_input"`
	UncachedInput int `json:"uncached_input"`
	Output        int `json:"output"`
}

// Rates mirrors Price without the reasoning flag.
type Rates struct {
	Input       float64 `json:"input"`
	CachedInput float64 `json:"cached_input"`
	Output      float64 `json:"output"`
}

// Cost is a per-part USD cost, each part rounded to 6 decimal places.
type Cost struct {
	Input       float64 `json:"input"`
	CachedInput float64 `json:"cached_input"`
	Output      float64 `json:"output"`
	Total       float64 `json:"total"`
}

// Breakdown is the cost of one call or evaluation.
type Breakdown struct {
	Model          string `json:"model"`
	RequestedModel string `json:"requested_model"`
	Tokens         Tokens `json:"tokens"`
	RatesPer1M     Rates  `json:"rates_per_1m"`
	CostUSD        Cost   `json:"cost_usd"`
	IsReasoning    bool   `json:"is_reasoning"`
}

// Estimate is the projected cost of count evaluations.
type Estimate struct {
	Model            string    `json:"model"`
	RequestedModel   string    `json:"requested_model"`
	Count            int       `json:"count"`
	CachedInputRatio float64   `json:"cached_input_ratio"`
	PerEvaluation    Breakdown `json:"per_evaluation"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
}

// Table is an immutable price table.
type Table struct {
	prices          map[string]Price
	keys            []string
	estimatedInput  int
	estimatedOutput int
}

// Option configures a Table.
type Option func(*Table)

// WithEstimatedTokens sets the per-evaluation token counts used by
// EstimateEvaluation when the caller does not supply them. Non-positive
// values keep the defaults.
func WithEstimatedTokens(input, output int) Option {
	return func(t *Table) {
		if input > 0 {
			t.estimatedInput = input
		}
		if output > 0 {
			t.estimatedOutput = output
		}
	}
}

// New builds a Table. Model keys are lower-cased.
func New(prices map[string]Price, opts ...Option) *Table {
	t := &Table{
		prices:          make(map[string]Price, len(prices)),
		estimatedInput:  defaultEstimatedInput,
		estimatedOutput: defaultEstimatedOutput,
	}
	for k, p := range prices {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		t.prices[key] = p
		t.keys = append(t.keys, key)
	}
	// Longest first so "gpt-4o-mini-2024" resolves to "gpt-4o-mini", not "gpt-4o".
	sort.Slice(t.keys, func(i, j int) bool {
		if len(t.keys[i]) != len(t.keys[j]) {
			return len(t.keys[i]) > len(t.keys[j])
		}
		return t.keys[i] < t.keys[j]
	})
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Resolve maps a model name to its price key by exact match or "<key>-" prefix.
func (t *Table) Resolve(model string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if _, ok := t.prices[normalized]; ok {
		return normalized, nil
	}
	for _, key := range t.keys {
		if strings.HasPrefix(normalized, key+"-") {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
}

// Lookup returns the price entry for model.
func (t *Table) Lookup(model string) (string, Price, error) {
	key, err := t.Resolve(model)
	if err != nil {
		return "", Price{}, err
	}
	return key, t.prices[key], nil
}

// List returns a copy of the whole table.
func (t *Table) List() map[string]Price {
	out := make(map[string]Price, len(t.prices))
	for k, v := range t.prices {
		out[k] = v
	}
	return out
}

// EstimatedTokens returns the default per-evaluation input and output counts.
func (t *Table) EstimatedTokens() (input, output int) {
	return t.estimatedInput, t.estimatedOutput
}

// Breakdown computes the cost of input, output and cached input tokens.
// cachedInput is part of input and billed at the cached rate.
func (t *Table) Breakdown(model string, input, output, cachedInput int) (Breakdown, error) {
	if input < 0 || output < 0 || cachedInput < 0 {
		return Breakdown{}, fmt.Errorf("%w: negative count", ErrInvalidTokens)
	}
	if cachedInput > input {
		return Breakdown{}, fmt.Errorf("%w: cached input %d exceeds input %d", ErrInvalidTokens, cachedInput, input)
	}
	key, p, err := t.Lookup(model)
	if err != nil {
		return Breakdown{}, err
	}
	uncached := input - cachedInput
	inCost := float64(uncached) / 1e6 * p.InputPer1M
	cachedCost := float64(cachedInput) / 1e6 * p.CachedInputPer1M
	outCost := float64(output) / 1e6 * p.OutputPer1M
	return Breakdown{
		Model:          key,
		RequestedModel: model,
		Tokens:         Tokens{Input: input, CachedInput: cachedInput, UncachedInput: uncached, Output: output},
		RatesPer1M:     Rates{Input: p.InputPer1M, CachedInput: p.CachedInputPer1M, Output: p.OutputPer1M},
		CostUSD: Cost{
			Input:       Round6(inCost),
			CachedInput: Round6(cachedCost),
			Output:      Round6(outCost),
			Total:       Round6(inCost + cachedCost + outCost),
		},
		IsReasoning: p.IsReasoning,
	}, nil
}

// Cost returns only the total of Breakdown.
func (t *Table) Cost(model string, input, output, cachedInput int) (float64, error) {
	b, err := t.Breakdown(model, input, output, cachedInput)
	if err != nil {
		return 0, err
	}
	return b.CostUSD.Total, nil
}

// EstimateEvaluation projects the cost of count evaluations. Zero input or
// output means the table's estimated defaults.
func (t *Table) EstimateEvaluation(model string, count int, cachedRatio float64, input, output int) (Estimate, error) {
	if count < 1 {
		return Estimate{}, fmt.Errorf("%w: count must be >= 1", ErrInvalidEstimate)
	}
	if cachedRatio < 0 || cachedRatio > 1 || math.IsNaN(cachedRatio) {
		return Estimate{}, fmt.Errorf("%w: cached ratio must be within [0, 1]", ErrInvalidEstimate)
	}
	if input <= 0 {
		input = t.estimatedInput
	}
	if output <= 0 {
		output = t.estimatedOutput
	}
	cached := int(math.RoundToEven(float64(input) * cachedRatio))
	per, err := t.Breakdown(model, input, output, cached)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		Model:            per.Model,
		RequestedModel:   per.RequestedModel,
		Count:            count,
		CachedInputRatio: cachedRatio,
		PerEvaluation:    per,
		TotalCostUSD:     Round6(per.CostUSD.Total * float64(count)),
	}, nil
}

// Round6 rounds v to 6 decimal places.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
