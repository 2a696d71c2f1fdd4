package mcptools

import (
	"context"
	"fmt"
	"strings"

	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/mark3labs/mcp-go/mcp"
)

// CompetenciesTool handles the lem_competencies MCP tool.
type CompetenciesTool struct {
	backend Backend
}

// NewCompetenciesTool creates a CompetenciesTool.
func NewCompetenciesTool(b Backend) *CompetenciesTool {
	return &CompetenciesTool{backend: b}
}

// Definition returns the MCP tool definition for lem_competencies.
func (t *CompetenciesTool) Definition() mcp.Tool {
	return mcp.NewTool("lem_competencies",
		mcp.WithDescription("List the competencies that can be assessed, with their dimensions and weights."),
	)
}

// Handle processes the lem_competencies tool call.
func (t *CompetenciesTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reg := t.backend.Rubrics()
	if reg == nil {
		return mcp.NewToolResultError("service is not ready"), nil
	}
	var sb strings.Builder
	sb.WriteString("## Competencies\n")
	for _, c := range reg.Snapshot().All() {
		fmt.Fprintf(&sb, "\n### %s (alias: %s, version %s)\n\n", c.Name, c.ID.ShortName(), c.Version)
		fmt.Fprintf(&sb, "id: `%s`\n\n", c.ID)
		for _, d := range c.Dimensions {
			fmt.Fprintf(&sb, "- %s (`%s`): weight %.2f\n", d.Name, d.Key, d.Weight)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// PromptVersionsTool handles the lem_prompt_versions MCP tool.
type PromptVersionsTool struct {
	backend Backend
}

// NewPromptVersionsTool creates a PromptVersionsTool.
func NewPromptVersionsTool(b Backend) *PromptVersionsTool {
	return &PromptVersionsTool{backend: b}
}

// Definition returns the MCP tool definition for lem_prompt_versions.
func (t *PromptVersionsTool) Definition() mcp.Tool {
	mods := types.Modules()
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = string(m)
	}
	return mcp.NewTool("lem_prompt_versions",
		mcp.WithDescription("List the stored prompt versions of one pipeline module and show which is active per competency."),
		mcp.WithString("module",
			mcp.Required(),
			mcp.Enum(names...),
			mcp.Description("Pipeline module: "+strings.Join(names, ", ")),
		),
	)
}

// Handle processes the lem_prompt_versions tool call.
func (t *PromptVersionsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mod := types.Module(req.GetString("module", ""))
	if !mod.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown module %q", mod)), nil
	}
	mgr := t.backend.Prompts()
	if mgr == nil {
		return mcp.NewToolResultError("service is not ready"), nil
	}
	versions, err := mgr.Snapshot().ListVersions(mod)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Prompt versions: %s\n\n", mod)
	if len(versions) == 0 {
		sb.WriteString("No versions stored.\n")
	}
	for _, v := range versions {
		fmt.Fprintf(&sb, "- **%s** (created %s)", v.Name, v.CreatedAt)
		if v.Description != "" {
			fmt.Fprintf(&sb, ": %s", v.Description)
		}
		if len(v.ActiveFor) > 0 {
			fmt.Fprintf(&sb, " [active for: %s]", strings.Join(v.ActiveFor, ", "))
		}
		sb.WriteByte('\n')
	}
	return mcp.NewToolResultText(sb.String()), nil
}
