package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/reasoning"
)

func (s *Server) getInstructions(w http.ResponseWriter, r *http.Request) {
	fieldKey := chi.URLParam(r, "fieldKey")
	list, err := s.deps.Instructions.GetInstructions(r.Context(), fieldKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"field_key":    fieldKey,
		"instructions": list,
	})
}

func (s *Server) getReasoning(w http.ResponseWriter, r *http.Request) {
	var res reasoning.Result
	if err := s.deps.Results.GetReasoning(r.Context(), chi.URLParam(r, "patientID"), &res); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type runRequest struct {
	Since string `json:"since,omitempty"`
}

// runReasoning runs a reasoning batch synchronously. Since defaults to the
// last 24 hours.
func (s *Server) runReasoning(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	since := time.Now().Add(-24 * time.Hour)
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: since must be RFC3339", processor.ErrInvalidRequest))
			return
		}
		since = t
	}

	summary, err := s.deps.Reasoner.Run(r.Context(), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type suggestRequest struct {
	Text string `json:"text"`
}

func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, fmt.Errorf("%w: text is empty", processor.ErrInvalidRequest))
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": s.deps.Suggester.Suggest(r.Context(), req.Text),
	})
}
