package worker

import "github.com/katarzynaochnikdu/LEM-V1/pkg/logger"

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithSink persists every assessment that started.
func WithSink(s Sink) Option {
	return func(w *InMemoryWorker) { w.sink = s }
}

// WithReporter receives every outcome.
func WithReporter(r Reporter) Option {
	return func(w *InMemoryWorker) { w.reporter = r }
}
