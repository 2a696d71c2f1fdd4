package api

import (
	"net/http"

	repository "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/repository"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// ResultsHandler serves stored assessments.
type ResultsHandler struct {
	results func() repository.Store
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(results func() repository.Store) *ResultsHandler {
	return &ResultsHandler{results: results}
}

type listResponse struct {
	Items  []repository.Summary `json:"items"`
	Count  int                  `json:"count"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

func (h *ResultsHandler) store() (repository.Store, error) {
	s := h.results()
	if s == nil {
		return nil, ErrUnavailable
	}
	return s, nil
}

// HandleList handles GET /api/db/assessments.
func (h *ResultsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	s, err := h.store()
	if err != nil {
		writeFailure(w, err)
		return
	}
	q := r.URL.Query()
	f := repository.Filter{ParticipantID: q.Get("participant_id")}
	if c := q.Get("competency"); c != "" {
		if f.Competency, err = types.ResolveCompetency(c); err != nil {
			writeFailure(w, err)
			return
		}
	}
	if f.Limit, err = intParam(q.Get("limit"), repository.DefaultLimit); err != nil {
		writeFailure(w, NewKind(ErrBadRequest, "limit must be an integer"))
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil || f.Offset < 0 {
		writeFailure(w, NewKind(ErrBadRequest, "offset must be a non-negative integer"))
		return
	}
	items, err := s.List(r.Context(), f)
	if err != nil {
		writeFailure(w, err)
		return
	}
	f.Limit = min(f.Limit, repository.MaxLimit)
	writeJSON(w, http.StatusOK, listResponse{Items: items, Count: len(items), Limit: f.Limit, Offset: f.Offset})
}

// HandleGet handles GET /api/db/assessments/{id}.
func (h *ResultsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.store()
	if err != nil {
		writeFailure(w, err)
		return
	}
	rec, err := s.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleStats handles GET /api/db/stats.
func (h *ResultsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.store()
	if err != nil {
		writeFailure(w, err)
		return
	}
	st, err := s.Stats(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
