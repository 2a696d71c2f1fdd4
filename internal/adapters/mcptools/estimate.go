package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// EstimateCostTool handles the lem_estimate_cost MCP tool.
type EstimateCostTool struct {
	backend Backend
}

// NewEstimateCostTool creates an EstimateCostTool.
func NewEstimateCostTool(b Backend) *EstimateCostTool {
	return &EstimateCostTool{backend: b}
}

// Definition returns the MCP tool definition for lem_estimate_cost.
func (t *EstimateCostTool) Definition() mcp.Tool {
	return mcp.NewTool("lem_estimate_cost",
		mcp.WithDescription("Estimate the USD cost of assessing a number of narratives with a given model."),
		mcp.WithString("model",
			mcp.Description("Model name, e.g. gpt-4o-mini (default: the active model)"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of narratives (default: 1)"),
		),
	)
}

// Handle processes the lem_estimate_cost tool call.
func (t *EstimateCostTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := t.backend.Pricing()
	if table == nil {
		return mcp.NewToolResultError("service is not ready"), nil
	}
	modelName := strings.TrimSpace(req.GetString("model", ""))
	if modelName == "" {
		if rt := t.backend.Models(); rt != nil {
			modelName = rt.Info().Model
		}
	}
	count := intArg(req, "count", 1)

	est, err := table.EstimateEvaluation(modelName, count, 0, 0, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	per := est.PerEvaluation
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Cost estimate: %s\n\n", est.Model)
	fmt.Fprintf(&sb, "- **Narratives**: %d\n", est.Count)
	fmt.Fprintf(&sb, "- **Tokens per narrative**: %d in / %d out\n", per.Tokens.Input, per.Tokens.Output)
	fmt.Fprintf(&sb, "- **Per narrative**: $%.6f\n", per.CostUSD.Total)
	fmt.Fprintf(&sb, "- **Total**: $%.4f\n", est.TotalCostUSD)
	return mcp.NewToolResultText(sb.String()), nil
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
