package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Templates.ListTemplates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []template.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Templates.GetTemplate(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// createTemplate saves a new template. Without a key one is derived from
// the name; an explicit key that is already taken is a conflict.
func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var t template.Template
	if err := decode(r, &t); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateTemplate(&t); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if t.Key == "" {
		key, err := template.UniqueKey(ctx, t.Name, s.deps.Templates.TemplateExists, time.Now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		t.Key = key
	} else {
		taken, err := s.deps.Templates.TemplateExists(ctx, t.Key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if taken {
			writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("template key %s already exists", t.Key)})
			return
		}
	}

	if err := s.deps.Templates.SaveTemplate(ctx, &t); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// updateTemplate versions the template at {key}; the response carries the
// key now holding the content.
func (s *Server) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var t template.Template
	if err := decode(r, &t); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateTemplate(&t); err != nil {
		s.writeError(w, r, err)
		return
	}
	t.Key = chi.URLParam(r, "key")

	key, err := s.deps.Templates.UpdateTemplate(r.Context(), &t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"template_key": key})
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Templates.SoftDeleteTemplate(r.Context(), chi.URLParam(r, "key")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type generateRequest struct {
	Note string `json:"note"`
	Name string `json:"name,omitempty"`
	Save bool   `json:"save,omitempty"`
}

// generateTemplate derives a template from an example note, saving it when
// asked to.
func (s *Server) generateTemplate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		s.writeError(w, r, fmt.Errorf("%w: note is empty", processor.ErrInvalidRequest))
		return
	}

	t, err := s.deps.Generator.FromNote(r.Context(), req.Note, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Save {
		if err := s.deps.Templates.SaveTemplate(r.Context(), t); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, t)
}

func validateTemplate(t *template.Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: template_name is required", processor.ErrInvalidRequest)
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("%w: template has no fields", processor.ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Key == "" {
			return fmt.Errorf("%w: field without field_key", processor.ErrInvalidRequest)
		}
		if seen[f.Key] {
			return fmt.Errorf("%w: duplicate field_key %s", processor.ErrInvalidRequest, f.Key)
		}
		seen[f.Key] = true
	}
	return nil
}
