package api

import (
	"errors"
	"net/http"

	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// PromptHandler serves the prompt version store.
type PromptHandler struct {
	prompts func() *prompts.Manager
}

// NewPromptHandler creates a new prompt handler.
func NewPromptHandler(p func() *prompts.Manager) *PromptHandler {
	return &PromptHandler{prompts: p}
}

type moduleVersionsResponse struct {
	Module        types.Module           `json:"module"`
	Competency    types.Competency       `json:"competency"`
	SystemPrompt  string                 `json:"system_prompt"`
	Placeholders  []string               `json:"placeholders"`
	ActiveVersion string                 `json:"active_version"`
	ActiveContent string                 `json:"active_content,omitempty"`
	Versions      []prompts.VersionEntry `json:"versions"`
}

type savePromptRequest struct {
	VersionName string `json:"version_name" validate:"required,max=64"`
	Content     string `json:"content" validate:"required"`
	Description string `json:"description"`
	Activate    bool   `json:"activate"`
	Competency  string `json:"competency" validate:"omitempty,competency"`
}

type activatePromptRequest struct {
	Version    string `json:"version" validate:"required"`
	Competency string `json:"competency" validate:"omitempty,competency"`
}

type activeResponse struct {
	Competency types.Competency                   `json:"competency,omitempty"`
	Active     map[types.Module]string            `json:"active,omitempty"`
	Pointers   map[types.Module]map[string]string `json:"pointers,omitempty"`
}

func (h *PromptHandler) manager() (*prompts.Manager, error) {
	m := h.prompts()
	if m == nil {
		return nil, ErrUnavailable
	}
	return m, nil
}

func pathModule(r *http.Request) (types.Module, error) {
	mod := types.Module(r.PathValue("module"))
	if !mod.Valid() {
		return "", WrapKind(prompts.ErrInvalidModule, errors.New("unknown prompt module "+string(mod)))
	}
	return mod, nil
}

// queryCompetency resolves ?competency=, defaulting when absent.
func queryCompetency(r *http.Request) (types.Competency, error) {
	return types.ResolveCompetency(r.URL.Query().Get("competency"))
}

// HandleModules handles GET /api/prompts.
func (h *PromptHandler) HandleModules(w http.ResponseWriter, _ *http.Request) {
	m, err := h.manager()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": m.Snapshot().ListModules()})
}

// HandleVersions handles GET /api/prompts/{module}.
func (h *PromptHandler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager()
	if err != nil {
		writeFailure(w, err)
		return
	}
	mod, err := pathModule(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	comp, err := queryCompetency(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	snap := m.Snapshot()
	versions, err := snap.ListVersions(mod)
	if err != nil {
		writeFailure(w, err)
		return
	}
	resp := moduleVersionsResponse{
		Module:       mod,
		Competency:   comp,
		SystemPrompt: prompts.SystemPrompt(mod),
		Placeholders: prompts.AllowedPlaceholders(mod),
		Versions:     versions,
	}
	if active, err := snap.Resolve(mod, comp); err == nil {
		resp.ActiveVersion = active.Version
		resp.ActiveContent = active.Content
	} else if !errors.Is(err, prompts.ErrNotFound) {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleVersion handles GET /api/prompts/{module}/{version}.
func (h *PromptHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager()
	if err != nil {
		writeFailure(w, err)
		return
	}
	mod, err := pathModule(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	comp, err := queryCompetency(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	pv, err := m.Get(mod, r.PathValue("version"), comp)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pv)
}

// HandleSave handles POST /api/prompts/{module}.
func (h *PromptHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager()
	if err != nil {
		writeFailure(w, err)
		return
	}
	mod, err := pathModule(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req savePromptRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	comp, err := types.ResolveCompetency(req.Competency)
	if err != nil {
		writeFailure(w, err)
		return
	}
	res, err := m.Save(r.Context(), prompts.SaveRequest{
		Module:      mod,
		Version:     req.VersionName,
		Content:     req.Content,
		Description: req.Description,
		Activate:    req.Activate,
		Competency:  comp,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	status := http.StatusOK
	if res.IsNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// HandleActivate handles PUT /api/prompts/{module}/activate.
func (h *PromptHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager()
	if err != nil {
		writeFailure(w, err)
		return
	}
	mod, err := pathModule(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req activatePromptRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	comp, err := types.ResolveCompetency(req.Competency)
	if err != nil {
		writeFailure(w, err)
		return
	}
	res, err := m.Activate(r.Context(), mod, req.Version, comp)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleActive handles GET /api/prompts-active. Without ?competency= the
// raw per-competency pointers of every module are returned.
func (h *PromptHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager()
	if err != nil {
		writeFailure(w, err)
		return
	}
	snap := m.Snapshot()
	if r.URL.Query().Get("competency") == "" {
		writeJSON(w, http.StatusOK, activeResponse{Pointers: snap.ActivePointers()})
		return
	}
	comp, err := queryCompetency(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activeResponse{Competency: comp, Active: snap.ActiveVersions(comp)})
}
