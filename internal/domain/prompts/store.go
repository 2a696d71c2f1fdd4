// Package prompts is the versioned prompt-template store.
//
// Each pipeline module (parse, map, score, feedback) owns a set of named
// template versions and an active pointer per competency. Resolution uses
// the competency's own pointer and falls back to the default competency's.
// Metadata lives in prompts/<module>/_meta.json and content in
// prompts/<module>/<version>.txt. Updates persist first and then swap the
// in-memory snapshot, so readers see either the old or the new state.
package prompts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
)

// Store is the blob store used for prompt records. Missing keys must yield
// errors matching fs.ErrNotExist.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

var versionName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// VersionInfo is one version entry in a module's metadata.
type VersionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Meta is the persisted metadata of one module.
type Meta struct {
	Module      types.Module      `json:"module"`
	Description string            `json:"description"`
	Active      map[string]string `json:"active"`
	Versions    []VersionInfo     `json:"versions"`
}

// UnmarshalJSON also accepts the older single-pointer form, where active is
// a bare version name. That name becomes the default competency's pointer.
func (m *Meta) UnmarshalJSON(data []byte) error {
	type plain Meta
	var raw struct {
		plain
		Active json.RawMessage `json:"active"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Meta(raw.plain)
	m.Active = map[string]string{}

	active := bytes.TrimSpace(raw.Active)
	switch {
	case len(active) == 0, bytes.Equal(active, []byte("null")):
	case active[0] == '"':
		var name string
		if err := json.Unmarshal(active, &name); err != nil {
			return err
		}
		if name != "" {
			m.Active[string(types.DefaultCompetency)] = name
		}
	default:
		if err := json.Unmarshal(active, &m.Active); err != nil {
			return fmt.Errorf("active: %w", err)
		}
	}
	return nil
}

func (m *Meta) version(name string) (VersionInfo, bool) {
	for _, v := range m.Versions {
		if v.Name == name {
			return v, true
		}
	}
	return VersionInfo{}, false
}

// activeFor resolves the competency pointer with default-competency fallback.
func (m *Meta) activeFor(c types.Competency) string {
	if v := m.Active[string(c)]; v != "" {
		return v
	}
	return m.Active[string(types.DefaultCompetency)]
}

func (m *Meta) clone() *Meta {
	out := *m
	out.Active = make(map[string]string, len(m.Active))
	for k, v := range m.Active {
		out.Active[k] = v
	}
	out.Versions = append([]VersionInfo(nil), m.Versions...)
	return &out
}

// PromptVersion is a resolved template.
type PromptVersion struct {
	Module      types.Module     `json:"module"`
	Competency  types.Competency `json:"competency"`
	Version     string           `json:"version"`
	Content     string           `json:"content"`
	System      string           `json:"system_prompt"`
	Description string           `json:"description"`
	CreatedAt   string           `json:"created_at,omitempty"`
	IsActive    bool             `json:"is_active"`
}

// Render fills the template with vars.
func (p PromptVersion) Render(vars map[string]string) (string, error) {
	out, err := Render(p.Content, vars)
	if err != nil {
		return "", fmt.Errorf("%s@%s: %w", p.Module, p.Version, err)
	}
	return out, nil
}

type moduleState struct {
	meta    *Meta
	content map[string]string
}

// Snapshot is an immutable view of every module.
type Snapshot struct {
	modules map[types.Module]*moduleState
}

func (s *Snapshot) module(m types.Module) (*moduleState, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModule, m)
	}
	st, ok := s.modules[m]
	if !ok {
		return &moduleState{meta: emptyMeta(m), content: map[string]string{}}, nil
	}
	return st, nil
}

// Resolve returns the active version of module for competency.
func (s *Snapshot) Resolve(module types.Module, c types.Competency) (PromptVersion, error) {
	return s.Get(module, "", c)
}

// Get returns version of module, or the active one when version is "".
func (s *Snapshot) Get(module types.Module, version string, c types.Competency) (PromptVersion, error) {
	st, err := s.module(module)
	if err != nil {
		return PromptVersion{}, err
	}
	active := st.meta.activeFor(c)
	if version == "" {
		version = active
		if version == "" {
			return PromptVersion{}, fmt.Errorf("%w: module %s, competency %s", ErrNotFound, module, c)
		}
	}
	info, ok := st.meta.version(version)
	if !ok {
		return PromptVersion{}, fmt.Errorf("%w: %s@%s", ErrUnknownVersion, module, version)
	}
	content, ok := st.content[version]
	if !ok {
		return PromptVersion{}, fmt.Errorf("%w: %s@%s", ErrContentMissing, module, version)
	}
	return PromptVersion{
		Module:      module,
		Competency:  c,
		Version:     version,
		Content:     content,
		System:      SystemPrompt(module),
		Description: info.Description,
		CreatedAt:   info.CreatedAt,
		IsActive:    version == active,
	}, nil
}

// ModuleInfo summarises one module.
type ModuleInfo struct {
	Module       types.Module      `json:"module"`
	Description  string            `json:"description"`
	Active       map[string]string `json:"active"`
	VersionCount int               `json:"version_count"`
}

// ListModules summarises every module in pipeline order.
func (s *Snapshot) ListModules() []ModuleInfo {
	out := make([]ModuleInfo, 0, len(types.Modules()))
	for _, m := range types.Modules() {
		st, _ := s.module(m)
		meta := st.meta.clone()
		out = append(out, ModuleInfo{
			Module:       m,
			Description:  meta.Description,
			Active:       meta.Active,
			VersionCount: len(meta.Versions),
		})
	}
	return out
}

// VersionEntry is a version with the competencies it is active for.
type VersionEntry struct {
	VersionInfo
	IsActive  bool     `json:"is_active"`
	ActiveFor []string `json:"active_for"`
}

// ListVersions returns the versions of module in creation order.
func (s *Snapshot) ListVersions(module types.Module) ([]VersionEntry, error) {
	st, err := s.module(module)
	if err != nil {
		return nil, err
	}
	out := make([]VersionEntry, 0, len(st.meta.Versions))
	for _, v := range st.meta.Versions {
		activeFor := []string{}
		for comp, ver := range st.meta.Active {
			if ver == v.Name {
				activeFor = append(activeFor, comp)
			}
		}
		sort.Strings(activeFor)
		out = append(out, VersionEntry{VersionInfo: v, IsActive: len(activeFor) > 0, ActiveFor: activeFor})
	}
	return out, nil
}

// ActiveVersions returns, per module, the version resolved for c.
func (s *Snapshot) ActiveVersions(c types.Competency) map[types.Module]string {
	out := make(map[types.Module]string, len(types.Modules()))
	for _, m := range types.Modules() {
		st, _ := s.module(m)
		out[m] = st.meta.activeFor(c)
	}
	return out
}

// ActivePointers returns every module's raw competency-to-version map.
func (s *Snapshot) ActivePointers() map[types.Module]map[string]string {
	out := make(map[types.Module]map[string]string, len(types.Modules()))
	for _, m := range types.Modules() {
		st, _ := s.module(m)
		out[m] = st.meta.clone().Active
	}
	return out
}

// Manager owns the persisted prompt records and publishes snapshots.
type Manager struct {
	store Store
	log   logger.Logger
	now   func() time.Time

	mu   sync.Mutex // serialises writers
	snap atomic.Pointer[Snapshot]
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager loads every module's records from store.
func NewManager(ctx context.Context, store Store, opts ...Option) (*Manager, error) {
	m := &Manager{store: store, log: logger.NamedOrNop("prompts"), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Snapshot returns the current immutable view.
func (m *Manager) Snapshot() *Snapshot {
	return m.snap.Load()
}

// Resolve returns the active version of module for competency c.
func (m *Manager) Resolve(module types.Module, c types.Competency) (PromptVersion, error) {
	return m.Snapshot().Resolve(module, c)
}

// Get returns version of module, or the active one when version is "".
func (m *Manager) Get(module types.Module, version string, c types.Competency) (PromptVersion, error) {
	return m.Snapshot().Get(module, version, c)
}

// Reload re-reads metadata and content for every module. Content missing
// for a listed version is left out and surfaces as ErrContentMissing.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := &Snapshot{modules: make(map[types.Module]*moduleState)}
	for _, mod := range types.Modules() {
		meta, err := m.readMeta(ctx, mod)
		if err != nil {
			return err
		}
		st := &moduleState{meta: meta, content: make(map[string]string, len(meta.Versions))}
		for _, v := range meta.Versions {
			data, err := m.store.Get(ctx, contentKey(mod, v.Name))
			switch {
			case err == nil:
				st.content[v.Name] = string(data)
			case errors.Is(err, fs.ErrNotExist):
				m.log.Warn(ctx, "prompt content missing",
					logger.String("module", string(mod)),
					logger.String("version", v.Name),
				)
			default:
				return fmt.Errorf("read prompt %s@%s: %w", mod, v.Name, err)
			}
		}
		next.modules[mod] = st
	}
	m.snap.Store(next)
	return nil
}

func emptyMeta(mod types.Module) *Meta {
	return &Meta{Module: mod, Description: moduleDescriptions[mod], Active: map[string]string{}, Versions: []VersionInfo{}}
}

func (m *Manager) readMeta(ctx context.Context, mod types.Module) (*Meta, error) {
	data, err := m.store.Get(ctx, metaKey(mod))
	if errors.Is(err, fs.ErrNotExist) {
		return emptyMeta(mod), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prompt meta %s: %w", mod, err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode prompt meta %s: %w", mod, err)
	}
	meta.Module = mod
	if meta.Active == nil {
		meta.Active = map[string]string{}
	}
	return &meta, nil
}

// SaveRequest creates or updates a version.
type SaveRequest struct {
	Module      types.Module
	Version     string
	Content     string
	Description string
	Activate    bool
	Competency  types.Competency
}

// SaveResult reports what Save did.
type SaveResult struct {
	Module     types.Module     `json:"module"`
	Version    string           `json:"version"`
	Competency types.Competency `json:"competency"`
	IsNew      bool             `json:"is_new"`
	Activated  bool             `json:"activated"`
}

// Save writes the content and metadata of a version. The version becomes
// active for the competency when requested or when the competency has no
// active version of its own. Other competencies' pointers are untouched.
func (m *Manager) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if !req.Module.Valid() {
		return SaveResult{}, fmt.Errorf("%w: %q", ErrInvalidModule, req.Module)
	}
	if !versionName.MatchString(req.Version) {
		return SaveResult{}, fmt.Errorf("%w: %q", ErrInvalidName, req.Version)
	}
	if err := checkPlaceholders(req.Module, req.Content); err != nil {
		return SaveResult{}, err
	}
	if req.Competency == "" {
		req.Competency = types.DefaultCompetency
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.snap.Load()
	st, _ := old.module(req.Module)
	meta := st.meta.clone()
	now := m.now().UTC().Format(time.RFC3339)

	_, exists := meta.version(req.Version)
	if exists {
		for i := range meta.Versions {
			if meta.Versions[i].Name == req.Version {
				meta.Versions[i].Description = req.Description
				meta.Versions[i].UpdatedAt = now
			}
		}
	} else {
		meta.Versions = append(meta.Versions, VersionInfo{Name: req.Version, Description: req.Description, CreatedAt: now})
	}

	comp := string(req.Competency)
	if req.Activate || meta.Active[comp] == "" {
		meta.Active[comp] = req.Version
	}

	if err := m.store.Put(ctx, contentKey(req.Module, req.Version), []byte(req.Content)); err != nil {
		return SaveResult{}, fmt.Errorf("persist prompt %s@%s: %w", req.Module, req.Version, err)
	}
	if err := m.writeMeta(ctx, meta); err != nil {
		return SaveResult{}, err
	}

	content := make(map[string]string, len(st.content)+1)
	for k, v := range st.content {
		content[k] = v
	}
	content[req.Version] = req.Content
	m.publish(old, req.Module, &moduleState{meta: meta, content: content})

	res := SaveResult{
		Module:     req.Module,
		Version:    req.Version,
		Competency: req.Competency,
		IsNew:      !exists,
		Activated:  meta.Active[comp] == req.Version,
	}
	m.log.Info(ctx, "prompt saved",
		logger.String("module", string(req.Module)),
		logger.String("version", req.Version),
		logger.String("competency", comp),
		logger.Bool("is_new", res.IsNew),
		logger.Bool("activated", res.Activated),
	)
	return res, nil
}

// ActivateResult reports a pointer switch.
type ActivateResult struct {
	Module     types.Module     `json:"module"`
	Competency types.Competency `json:"competency"`
	OldActive  string           `json:"old_active"`
	NewActive  string           `json:"new_active"`
}

// Activate points competency c at version after checking that the version
// is listed and its content exists.
func (m *Manager) Activate(ctx context.Context, module types.Module, version string, c types.Competency) (ActivateResult, error) {
	if c == "" {
		c = types.DefaultCompetency
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.snap.Load()
	st, err := old.module(module)
	if err != nil {
		return ActivateResult{}, err
	}
	if _, ok := st.meta.version(version); !ok {
		return ActivateResult{}, fmt.Errorf("%w: %s@%s", ErrUnknownVersion, module, version)
	}
	if _, ok := st.content[version]; !ok {
		return ActivateResult{}, fmt.Errorf("%w: %s@%s", ErrContentMissing, module, version)
	}

	meta := st.meta.clone()
	prev := meta.Active[string(c)]
	meta.Active[string(c)] = version
	if err := m.writeMeta(ctx, meta); err != nil {
		return ActivateResult{}, err
	}
	m.publish(old, module, &moduleState{meta: meta, content: st.content})

	m.log.Info(ctx, "prompt activated",
		logger.String("module", string(module)),
		logger.String("competency", string(c)),
		logger.String("old_active", prev),
		logger.String("new_active", version),
	)
	return ActivateResult{Module: module, Competency: c, OldActive: prev, NewActive: version}, nil
}

// Seed installs the embedded v1 template for every module without versions,
// active for the default competency.
func (m *Manager) Seed(ctx context.Context) error {
	snap := m.Snapshot()
	for _, mod := range types.Modules() {
		st, _ := snap.module(mod)
		if len(st.meta.Versions) > 0 {
			continue
		}
		content, err := defaultTemplate(mod)
		if err != nil {
			return fmt.Errorf("embedded template %s: %w", mod, err)
		}
		if _, err := m.Save(ctx, SaveRequest{
			Module:      mod,
			Version:     seedVersion,
			Content:     content,
			Description: "Wersja bazowa",
			Activate:    true,
			Competency:  types.DefaultCompetency,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) writeMeta(ctx context.Context, meta *Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prompt meta %s: %w", meta.Module, err)
	}
	if err := m.store.Put(ctx, metaKey(meta.Module), data); err != nil {
		return fmt.Errorf("persist prompt meta %s: %w", meta.Module, err)
	}
	return nil
}

// publish must be called with m.mu held.
func (m *Manager) publish(old *Snapshot, mod types.Module, st *moduleState) {
	next := &Snapshot{modules: make(map[types.Module]*moduleState, len(old.modules)+1)}
	for k, v := range old.modules {
		next.modules[k] = v
	}
	next.modules[mod] = st
	m.snap.Store(next)
}

func checkPlaceholders(mod types.Module, content string) error {
	vars := make(map[string]string, len(modulePlaceholders[mod]))
	for _, p := range modulePlaceholders[mod] {
		vars[p] = ""
	}
	_, err := Render(content, vars)
	return err
}

func metaKey(mod types.Module) string {
	return "prompts/" + string(mod) + "/_meta.json"
}

func contentKey(mod types.Module, version string) string {
	return "prompts/" + string(mod) + "/" + version + ".txt"
}
