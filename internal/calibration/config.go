package calibration

import (
	"time"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// Result statuses.
const (
	StatusSuccess   = "success"
	StatusRejected  = "rejected"
	StatusError     = "error"
	StatusDuplicate = "duplicate"
)

// CaseID tags assessments produced by calibration runs.
const CaseID = "calibration"

// Config holds configuration for a calibration run.
type Config struct {
	InputDir        string           // Directory with *.txt narratives
	OutputFile      string           // Results file (default: calibration_results_TIMESTAMP.json)
	AssessorCSV     string           // Optional response_id,assessor,score file
	Competency      types.Competency // Competency every narrative is assessed against
	Workers         int              // Number of concurrent workers
	QueueSize       int              // Job queue capacity
	Timeout         time.Duration    // Bound for the whole run
	SlackWebhookURL string           // Optional incoming webhook for the summary
}

// Result is one line of the results file.
type Result struct {
	ResponseID      string                 `json:"response_id"`
	Status          string                 `json:"status"`
	AssessmentID    string                 `json:"assessment_id,omitempty"`
	Score           *float64               `json:"score"`
	Level           string                 `json:"level,omitempty"`
	DimensionScores map[string]float64     `json:"dimension_scores,omitempty"`
	FeedbackQuality *model.FeedbackQuality `json:"feedback_quality,omitempty"`
	CostUSD         *float64               `json:"cost_usd,omitempty"`
	DuplicateOf     string                 `json:"duplicate_of,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// Summary holds run statistics.
type Summary struct {
	RunID      string           `json:"run_id"`
	Competency types.Competency `json:"competency"`
	OutputFile string           `json:"output_file"`

	Total      int `json:"total"`
	Succeeded  int `json:"succeeded"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`

	MeanScore *float64       `json:"mean_score,omitempty"`
	Levels    map[string]int `json:"levels"`
	CostUSD   float64        `json:"cost_usd"`

	Comparison *Comparison `json:"comparison,omitempty"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ns"`
}
