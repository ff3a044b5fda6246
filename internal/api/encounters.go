package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/scribe/internal/patient"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
)

type processResponse struct {
	Patient  *patient.Record   `json:"patient"`
	Fields   map[string]string `json:"fields"`
	Duration float64           `json:"duration"`
}

// processEncounter handles POST /api/v1/encounters/{patientID}/process
func (s *Server) processEncounter(w http.ResponseWriter, r *http.Request) {
	var req processor.EncounterRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.PatientID = chi.URLParam(r, "patientID")

	rec, res, err := s.deps.Encounters.ProcessEncounter(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{Patient: rec, Fields: res.Fields, Duration: res.Duration})
}

type fieldRequest struct {
	Content string `json:"content"`
}

// saveField handles PUT /api/v1/encounters/{patientID}/fields/{fieldKey}
func (s *Server) saveField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.deps.Encounters.SaveFieldEdit(r.Context(), chi.URLParam(r, "patientID"), chi.URLParam(r, "fieldKey"), req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type jobRequest struct {
	Completed bool `json:"completed"`
}

// setJob handles PUT /api/v1/encounters/{patientID}/jobs/{jobID}
func (s *Server) setJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.Atoi(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: job id must be an integer", processor.ErrInvalidRequest))
		return
	}
	var req jobRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.deps.Encounters.SetJobCompleted(r.Context(), chi.URLParam(r, "patientID"), jobID, req.Completed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs_list":          rec.Jobs,
		"all_jobs_completed": rec.AllJobsCompleted,
	})
}
