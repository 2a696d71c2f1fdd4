package config

import "github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"

// MetricsOptions translates the metrics keys into collector options.
func (c *Config) MetricsOptions() []metrics.Option {
	opts := []metrics.Option{
		metrics.WithNamespace(c.MetricsNamespace),
		metrics.WithSubsystem(c.MetricsSubsystem),
		metrics.WithHistogramBuckets(c.MetricsLatencyBuckets),
	}
	if c.Deployment != "" {
		opts = append(opts, metrics.WithConstLabels(map[string]string{"deployment": c.Deployment}))
	}
	return opts
}
