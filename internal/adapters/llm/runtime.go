package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

// Builder constructs a Client from settings.
type Builder func(ctx context.Context, s Settings) (Client, error)

// Active is an immutable provider selection with its client.
type Active struct {
	Settings Settings
	Client   Client
}

// Info is the public view of the active selection.
type Info struct {
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	BaseURL   string   `json:"base_url,omitempty"`
	HasAPIKey bool     `json:"has_api_key"`
	Providers []string `json:"available_providers"`
}

// Runtime holds the provider and model used by new assessments. Writers are
// serialised; readers take a snapshot with Get.
type Runtime struct {
	mu      sync.Mutex
	current atomic.Pointer[Active]
	base    map[string]Settings
	build   Builder
	log     logger.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithBuilder replaces the client constructor.
func WithBuilder(b Builder) RuntimeOption {
	return func(r *Runtime) { r.build = b }
}

// WithRuntimeLogger sets the logger.
func WithRuntimeLogger(l logger.Logger) RuntimeOption {
	return func(r *Runtime) { r.log = l }
}

// NewRuntime builds the initial client. base holds per-provider defaults
// (keys, endpoints, parameter quirks) used when Set switches provider.
func NewRuntime(ctx context.Context, initial Settings, base map[string]Settings, opts ...RuntimeOption) (*Runtime, error) {
	r := &Runtime{
		base:  make(map[string]Settings, len(base)),
		build: New,
		log:   logger.NamedOrNop("llm"),
	}
	for k, v := range base {
		r.base[strings.ToLower(k)] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	provider, err := NormalizeProvider(initial.Provider)
	if err != nil {
		return nil, err
	}
	initial.Provider = provider
	client, err := r.build(ctx, initial)
	if err != nil {
		return nil, err
	}
	r.current.Store(&Active{Settings: initial, Client: client})
	return r, nil
}

// Get returns the selection for one request. Callers keep using it even if
// Set runs concurrently.
func (r *Runtime) Get() *Active {
	return r.current.Load()
}

// Client is shorthand for Get().Client.
func (r *Runtime) Client() Client {
	return r.current.Load().Client
}

// Info describes the current selection without secrets.
func (r *Runtime) Info() Info {
	a := r.current.Load()
	return Info{
		Provider:  a.Settings.Provider,
		Model:     a.Settings.Model,
		BaseURL:   a.Settings.BaseURL,
		HasAPIKey: a.Settings.APIKey != "",
		Providers: Providers(),
	}
}

// Set switches provider and model. An empty apiKey keeps the configured key
// for that provider. The previous selection stays active if the new client
// cannot be built.
func (r *Runtime) Set(ctx context.Context, provider, modelName, apiKey string) (Info, error) {
	p, err := NormalizeProvider(provider)
	if err != nil {
		return Info{}, err
	}
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return Info{}, fmt.Errorf("%w: model is required", ErrInvalidSettings)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current.Load()
	s, ok := r.base[p]
	if !ok && prev.Settings.Provider == p {
		s = prev.Settings
	}
	s.Provider = p
	s.Model = modelName
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		s.APIKey = apiKey
	}

	client, err := r.build(ctx, s)
	if err != nil {
		return Info{}, err
	}
	r.current.Store(&Active{Settings: s, Client: client})
	metrics.RecordConfigChange("llm")
	r.log.Info(ctx, "llm selection changed",
		logger.String("from_provider", prev.Settings.Provider),
		logger.String("from_model", prev.Settings.Model),
		logger.String("provider", p),
		logger.String("model", modelName))
	return r.Info(), nil
}

// Close releases the current client if it holds resources.
func (r *Runtime) Close() error {
	a := r.current.Load()
	if a == nil {
		return nil
	}
	c := a.Client
	if in, ok := c.(*instrumented); ok {
		c = in.Client
	}
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
