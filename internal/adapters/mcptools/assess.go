package mcptools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/mark3labs/mcp-go/mcp"
)

// AssessTool handles the lem_assess MCP tool.
type AssessTool struct {
	backend Backend
}

// NewAssessTool creates an AssessTool.
func NewAssessTool(b Backend) *AssessTool {
	return &AssessTool{backend: b}
}

// Definition returns the MCP tool definition for lem_assess.
func (t *AssessTool) Definition() mcp.Tool {
	return mcp.NewTool("lem_assess",
		mcp.WithDescription(
			"Assess a manager's written narrative against a competency rubric. Returns the 0-4 score, "+
				"the A-D level, per-dimension scores and developmental feedback in Polish.",
		),
		mcp.WithString("participant_id",
			mcp.Required(),
			mcp.Description("Identifier of the assessed participant"),
		),
		mcp.WithString("response_text",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("The narrative to assess, at least %d characters", pipeline.MinNarrativeLength)),
		),
		mcp.WithString("competency",
			mcp.Description("Competency id or alias: delegowanie (default), decyzje, priorytety, feedback"),
		),
	)
}

// Handle processes the lem_assess tool call.
func (t *AssessTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	participant := strings.TrimSpace(req.GetString("participant_id", ""))
	text := req.GetString("response_text", "")
	if participant == "" {
		return mcp.NewToolResultError("'participant_id' is required"), nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < pipeline.MinNarrativeLength {
		return mcp.NewToolResultError(fmt.Sprintf("'response_text' must be at least %d characters", pipeline.MinNarrativeLength)), nil
	}
	comp, err := types.ResolveCompetency(req.GetString("competency", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.backend.Assess(ctx, pipeline.Request{
		ParticipantID: participant,
		Competency:    comp,
		ResponseText:  text,
	})
	var rejected *pipeline.RejectedError
	var stage *pipeline.StageError
	switch {
	case errors.As(err, &rejected):
		return mcp.NewToolResultError(fmt.Sprintf(
			"The narrative is incomplete for %s. Missing sections: %s",
			rejected.Competency, strings.Join(rejected.Missing, ", "))), nil
	case errors.As(err, &stage):
		return mcp.NewToolResultError(fmt.Sprintf(
			"Assessment failed in stage %s (%s): %v", stage.Stage, stage.Kind(), stage.Err)), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("assessment failed: %v", err)), nil
	}
	var def *rubric.Competency
	if reg := t.backend.Rubrics(); reg != nil {
		def, _ = reg.Snapshot().Competency(res.Assessment.Competency)
	}
	return mcp.NewToolResultText(formatAssessment(res.Assessment, def)), nil
}

// formatAssessment renders a as Markdown. With def, every dimension is
// listed by name in rubric order next to its closest level anchor.
func formatAssessment(a *model.Assessment, def *rubric.Competency) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Assessment %s\n\n", a.ID)
	fmt.Fprintf(&sb, "- **Competency**: %s\n", a.Competency)
	if s := a.Scoring; s != nil {
		fmt.Fprintf(&sb, "- **Score**: %.2f / 4.0\n", s.FinalScore)
		fmt.Fprintf(&sb, "- **Level**: %s, %s\n", s.Level.Code, s.Level.Label)
	}
	if a.CostUSD != nil {
		fmt.Fprintf(&sb, "- **Cost**: $%.4f (%s)\n", *a.CostUSD, a.Model)
	}

	scores := a.DimensionScores()
	if len(scores) > 0 {
		sb.WriteString("\n### Dimensions\n\n")
		if def != nil {
			for _, d := range def.Dimensions {
				v, ok := scores[d.Key]
				if !ok {
					continue
				}
				fmt.Fprintf(&sb, "- %s: %.2f", d.Name, v)
				if anchor := d.LevelDescriptionNear(v); anchor != "" {
					fmt.Fprintf(&sb, " (%s)", anchor)
				}
				sb.WriteByte('\n')
			}
		} else {
			keys := make([]string, 0, len(scores))
			for k := range scores {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&sb, "- %s: %.2f\n", k, scores[k])
			}
		}
	}

	if fb := a.Feedback; fb != nil {
		sb.WriteString("\n### Feedback\n\n")
		sb.WriteString(fb.Summary)
		sb.WriteString("\n\n**Recommendation**: ")
		sb.WriteString(fb.Recommendation)
		sb.WriteByte('\n')
		writeList(&sb, "Strengths", fb.Strengths)
		writeList(&sb, "Development areas", fb.DevelopmentAreas)
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n**%s**:\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}
