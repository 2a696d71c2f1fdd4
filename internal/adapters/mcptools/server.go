// Package mcptools exposes the assessment pipeline as MCP tools.
//
// Each tool is a struct with its dependencies injected via constructor,
// a Definition that returns the mcp.Tool schema and a Handle that serves
// the call. Domain failures come back as tool errors, never as protocol
// errors.
package mcptools

import (
	"context"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	pricing "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pricing"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	"github.com/mark3labs/mcp-go/server"
)

// Backend is what the tools need from the running service.
type Backend interface {
	Assess(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Rubrics() *rubric.Registry
	Prompts() *prompts.Manager
	Pricing() *pricing.Table
	Models() *llm.Runtime
}

const instructions = "Tools for the LEM managerial competency assessment. " +
	"Use lem_competencies to see what can be assessed, lem_assess to score a narrative, " +
	"lem_prompt_versions to inspect prompt versions and lem_estimate_cost before batch runs."

// New creates the MCP server with every tool registered.
func New(b Backend, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"lem",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	assess := NewAssessTool(b)
	s.AddTool(assess.Definition(), assess.Handle)

	competencies := NewCompetenciesTool(b)
	s.AddTool(competencies.Definition(), competencies.Handle)

	versions := NewPromptVersionsTool(b)
	s.AddTool(versions.Definition(), versions.Handle)

	estimate := NewEstimateCostTool(b)
	s.AddTool(estimate.Definition(), estimate.Handle)

	return s
}
