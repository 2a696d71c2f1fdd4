// Package pipeline runs a narrative through the four assessment stages:
// structuring, evidence mapping, dimension scoring and feedback.
//
// Conventions:
//   - Stage components are immutable once built by a Factory and may be
//     shared by concurrent callers.
//   - Each stage returns its typed output plus an Exchange describing the
//     prompts it sent and the tokens it spent.
//   - Only the scorer recovers from model failures locally.
package pipeline

import (
	"context"
	"strconv"
	"strings"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	extract "github.com/katarzynaochnikdu/LEM-V1/internal/domain/extract"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

// Call parameters per stage.
const (
	parseTemperature    = 0.1
	parseMaxTokens      = 2000
	mapTemperature      = 0.1
	mapMaxTokens        = 3000
	scoreTemperature    = 0.1
	scoreMaxTokens      = 10
	feedbackTemperature = 0.7
	feedbackMaxTokens   = 3000
)

// Exchange records what one stage sent to the model and what it cost.
type Exchange struct {
	System string `json:"system"`
	User   string `json:"user,omitempty"`
	// PerDimension holds the scorer's prompt per dimension. Dimensions
	// scored without a call carry a note instead.
	PerDimension map[string]string `json:"per_dimension,omitempty"`
	Calls        int               `json:"calls"`
	Usage        model.Usage       `json:"usage"`
	Provider     string            `json:"provider,omitempty"`
	Model        string            `json:"model,omitempty"`
	// ExtractStep is how the JSON answer was recovered.
	ExtractStep extract.Step `json:"extract_step,omitempty"`
}

func newExchange(client llm.Client, system string) Exchange {
	return Exchange{System: system, Provider: client.Provider(), Model: client.Model()}
}

func (e *Exchange) complete(ctx context.Context, client llm.Client, stage types.Stage, req llm.Request) (llm.Response, error) {
	resp, err := client.Complete(ctx, req)
	e.Calls++
	e.Usage.Add(resp.Usage)
	if resp.Model != "" {
		e.Model = resp.Model
	}
	status := "ok"
	if err != nil {
		status = failureKind(err)
	}
	metrics.RecordLLMCall(client.Provider(), string(stage), status)
	return resp, err
}

func (e *Exchange) object(text string) (map[string]any, error) {
	obj, step, err := extract.ObjectWithStep(text)
	if err != nil {
		metrics.RecordExtractionStep("failed")
		return nil, err
	}
	e.ExtractStep = step
	metrics.RecordExtractionStep(string(step))
	return obj, nil
}

// decimal formats v as the prompt templates expect it:
// shortest form, always with a decimal point ("4.0", "2.75").
func decimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
