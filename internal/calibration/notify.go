package calibration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

const slackTimeout = 10 * time.Second

// Notifier delivers a finished run's summary.
type Notifier interface {
	Notify(ctx context.Context, s *Summary) error
}

// SlackNotifier posts summaries to a Slack incoming webhook.
type SlackNotifier struct {
	url    string
	client *http.Client
}

// SlackOption configures a SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithHTTPClient replaces the webhook HTTP client.
func WithHTTPClient(c *http.Client) SlackOption {
	return func(n *SlackNotifier) { n.client = c }
}

// NewSlackNotifier creates a notifier for webhookURL.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	n := &SlackNotifier{url: webhookURL, client: &http.Client{Timeout: slackTimeout}}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify posts s as a header block followed by the plain-text summary.
func (n *SlackNotifier) Notify(ctx context.Context, s *Summary) error {
	text := FormatSummary(s)
	msg := &slack.WebhookMessage{
		Text: text,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
				"LEM calibration "+string(s.Competency), false, false)),
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
				"```"+text+"```", false, false), nil, nil),
		}},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.url, n.client, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrNotify, err)
	}
	return nil
}

// FormatSummary renders s as a short multi-line report.
func FormatSummary(s *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", s.RunID, s.Competency)
	fmt.Fprintf(&b, "Narratives: %d, scored: %d, rejected: %d, failed: %d, duplicates: %d\n",
		s.Total, s.Succeeded, s.Rejected, s.Failed, s.Duplicates)
	if s.MeanScore != nil {
		fmt.Fprintf(&b, "Mean score: %.2f\n", *s.MeanScore)
	}
	if len(s.Levels) > 0 {
		codes := make([]string, 0, len(s.Levels))
		for code := range s.Levels {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		parts := make([]string, len(codes))
		for i, code := range codes {
			parts[i] = fmt.Sprintf("%s=%d", code, s.Levels[code])
		}
		fmt.Fprintf(&b, "Levels: %s\n", strings.Join(parts, " "))
	}
	if s.CostUSD > 0 {
		fmt.Fprintf(&b, "Cost: $%.4f\n", s.CostUSD)
	}
	if c := s.Comparison; c != nil {
		r := "n/a"
		if c.PearsonR != nil {
			r = fmt.Sprintf("%.3f", *c.PearsonR)
		}
		fmt.Fprintf(&b, "Assessor agreement: n=%d, MAE=%.3f, r=%s, level agreement=%.0f%%, within one level=%.0f%%, mean diff=%+.3f\n",
			c.N, c.MAE, r, c.LevelAgreement*100, c.AdjacentLevelAgreement*100, c.MeanDiff)
		v := c.Verdict
		fmt.Fprintf(&b, "Targets: r %s, MAE %s, within one level %s, bias %s\n",
			met(v.Correlation), met(v.MAE), met(v.AdjacentLevels), v.Bias)
	}
	fmt.Fprintf(&b, "Duration: %s", s.Duration.Round(time.Millisecond))
	return b.String()
}

func met(ok bool) string {
	if ok {
		return "met"
	}
	return "missed"
}

// PrintSummary writes FormatSummary(s) to w.
func PrintSummary(w io.Writer, s *Summary) {
	fmt.Fprintln(w, "=== Calibration summary ===")
	fmt.Fprintln(w, FormatSummary(s))
}
