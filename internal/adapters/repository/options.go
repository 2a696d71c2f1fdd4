package repository

import "github.com/katarzynaochnikdu/LEM-V1/pkg/logger"

// DefaultCapacity bounds the in-memory ring when no capacity is given.
const DefaultCapacity = 1000

type settings struct {
	capacity int
	log      logger.Logger
}

func defaults() settings {
	return settings{capacity: DefaultCapacity, log: logger.NamedOrNop("repository")}
}

// Option applies a configuration option to a Store constructor.
type Option func(*settings)

// WithCapacity sets how many records the in-memory ring keeps.
func WithCapacity(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}
