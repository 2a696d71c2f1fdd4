package api

import (
	"net/http"
	"strconv"

	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// CompetencyHandler serves rubric reads and edits.
type CompetencyHandler struct {
	rubrics func() *rubric.Registry
}

// NewCompetencyHandler creates a new competency handler.
func NewCompetencyHandler(rubrics func() *rubric.Registry) *CompetencyHandler {
	return &CompetencyHandler{rubrics: rubrics}
}

type competencySummary struct {
	ID              types.Competency `json:"id"`
	ShortID         string           `json:"short_id"`
	Name            string           `json:"name"`
	ShortName       string           `json:"short_name"`
	Version         string           `json:"version"`
	Source          string           `json:"source,omitempty"`
	DimensionsCount int              `json:"dimensions_count"`
	AlgorithmSteps  int              `json:"algorithm_steps"`
}

type dimensionView struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Weight      float64        `json:"weight"`
	LevelsCount int            `json:"levels_count"`
	Levels      []rubric.Level `json:"levels,omitempty"`
}

type dimensionsResponse struct {
	Competency      types.Competency `json:"competency"`
	Name            string           `json:"name"`
	Algorithm       []string         `json:"algorithm"`
	Dimensions      []dimensionView  `json:"dimensions"`
	TotalDimensions int              `json:"total_dimensions"`
}

type weightsRequest struct {
	Weights map[string]float64 `json:"weights" validate:"required,min=1,dive,gte=0,lte=1"`
}

type weightsResponse struct {
	Competency types.Competency   `json:"competency"`
	Version    string             `json:"version"`
	Weights    map[string]float64 `json:"weights"`
}

func (h *CompetencyHandler) registry() (*rubric.Registry, error) {
	r := h.rubrics()
	if r == nil {
		return nil, ErrUnavailable
	}
	return r, nil
}

// lookup resolves the {id} path value, alias aware.
func (h *CompetencyHandler) lookup(r *http.Request, name string) (*rubric.Registry, *rubric.Competency, error) {
	reg, err := h.registry()
	if err != nil {
		return nil, nil, err
	}
	id, err := types.ResolveCompetency(r.PathValue(name))
	if err != nil {
		return nil, nil, err
	}
	c, err := reg.Competency(id)
	if err != nil {
		return nil, nil, err
	}
	return reg, c, nil
}

// HandleList handles GET /api/competencies.
func (h *CompetencyHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	reg, err := h.registry()
	if err != nil {
		writeFailure(w, err)
		return
	}
	all := reg.Snapshot().All()
	out := make([]competencySummary, 0, len(all))
	for _, c := range all {
		out = append(out, competencySummary{
			ID:              c.ID,
			ShortID:         c.ID.ShortName(),
			Name:            c.Name,
			ShortName:       c.ShortName,
			Version:         c.Version,
			Source:          c.Source,
			DimensionsCount: len(c.Dimensions),
			AlgorithmSteps:  len(c.Algorithm),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"competencies": out})
}

// HandleGet handles GET /api/competencies/{id}.
func (h *CompetencyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	_, c, err := h.lookup(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleEdit handles PUT /api/competencies/{id}.
func (h *CompetencyHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	reg, c, err := h.lookup(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	var u rubric.Update
	if err := decode(r, &u); err != nil {
		writeFailure(w, err)
		return
	}
	updated, err := reg.Edit(r.Context(), c.ID, u)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleDimensions handles GET /api/competencies/{id}/dimensions. Levels
// are included unless ?detail=false.
func (h *CompetencyHandler) HandleDimensions(w http.ResponseWriter, r *http.Request) {
	_, c, err := h.lookup(r, "id")
	if err != nil {
		writeFailure(w, err)
		return
	}
	detail := true
	if v := r.URL.Query().Get("detail"); v != "" {
		if detail, err = strconv.ParseBool(v); err != nil {
			writeFailure(w, NewKind(ErrBadRequest, "detail must be a boolean"))
			return
		}
	}
	dims := make([]dimensionView, 0, len(c.Dimensions))
	for _, d := range c.Dimensions {
		v := dimensionView{
			Key:         d.Key,
			Name:        d.Name,
			Description: d.Description,
			Weight:      d.Weight,
			LevelsCount: len(d.Levels),
		}
		if detail {
			v.Levels = d.SortedLevels()
		}
		dims = append(dims, v)
	}
	writeJSON(w, http.StatusOK, dimensionsResponse{
		Competency:      c.ID,
		Name:            c.Name,
		Algorithm:       c.Algorithm,
		Dimensions:      dims,
		TotalDimensions: len(dims),
	})
}

// HandleWeights handles GET /weights, optionally narrowed by ?competency=.
func (h *CompetencyHandler) HandleWeights(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registry()
	if err != nil {
		writeFailure(w, err)
		return
	}
	if q := r.URL.Query().Get("competency"); q != "" {
		id, err := types.ResolveCompetency(q)
		if err != nil {
			writeFailure(w, err)
			return
		}
		weights, err := reg.WeightsFor(id)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[types.Competency]map[string]float64{id: weights})
		return
	}
	out := make(map[types.Competency]map[string]float64)
	for _, c := range reg.Snapshot().All() {
		out[c.ID] = c.Weights()
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSetWeights handles PUT /api/weights/{competency}.
func (h *CompetencyHandler) HandleSetWeights(w http.ResponseWriter, r *http.Request) {
	reg, c, err := h.lookup(r, "competency")
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req weightsRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	updated, err := reg.SetWeights(r.Context(), c.ID, req.Weights)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, weightsResponse{
		Competency: updated.ID,
		Version:    updated.Version,
		Weights:    updated.Weights(),
	})
}
