package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/patient"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/reasoning"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

type fakeEncounters struct {
	req      processor.EncounterRequest
	err      error
	edits    map[string]string
	jobCalls []int
}

func (f *fakeEncounters) ProcessEncounter(_ context.Context, req processor.EncounterRequest) (*patient.Record, *processor.Result, error) {
	f.req = req
	if f.err != nil {
		return nil, nil, f.err
	}
	fields := map[string]string{"history": "- cough"}
	return &patient.Record{ID: req.PatientID, TemplateData: fields}, &processor.Result{Fields: fields, Duration: 1.5}, nil
}

func (f *fakeEncounters) SaveFieldEdit(_ context.Context, patientID, fieldKey, content string) (*patient.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.edits == nil {
		f.edits = map[string]string{}
	}
	f.edits[fieldKey] = content
	return &patient.Record{ID: patientID, TemplateData: map[string]string{fieldKey: content}}, nil
}

func (f *fakeEncounters) SetJobCompleted(_ context.Context, patientID string, jobID int, completed bool) (*patient.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.jobCalls = append(f.jobCalls, jobID)
	rec := &patient.Record{ID: patientID}
	rec.SetJobs([]patient.Job{{ID: jobID, Job: "bloods", Completed: completed}})
	return rec, nil
}

type fakeTemplates struct {
	templates map[string]*template.Template
	updated   *template.Template
}

func newFakeTemplates(ts ...*template.Template) *fakeTemplates {
	f := &fakeTemplates{templates: map[string]*template.Template{}}
	for _, t := range ts {
		f.templates[t.Key] = t
	}
	return f
}

func (f *fakeTemplates) ListTemplates(context.Context) ([]template.Template, error) {
	var out []template.Template
	for _, t := range f.templates {
		if !t.Deleted {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTemplates) GetTemplate(_ context.Context, key string) (*template.Template, error) {
	t, ok := f.templates[key]
	if !ok || t.Deleted {
		return nil, template.ErrNotFound
	}
	return t, nil
}

func (f *fakeTemplates) SaveTemplate(_ context.Context, t *template.Template) error {
	f.templates[t.Key] = t
	return nil
}

func (f *fakeTemplates) UpdateTemplate(_ context.Context, t *template.Template) (string, error) {
	f.updated = t
	return t.Key + "_v", nil
}

func (f *fakeTemplates) SoftDeleteTemplate(_ context.Context, key string) error {
	t, ok := f.templates[key]
	if !ok {
		return template.ErrNotFound
	}
	t.Deleted = true
	return nil
}

func (f *fakeTemplates) TemplateExists(_ context.Context, key string) (bool, error) {
	_, ok := f.templates[key]
	return ok, nil
}

type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) FromNote(_ context.Context, note, name string) (*template.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &template.Template{
		Key:    "generated_1",
		Name:   name,
		Fields: []template.Field{{Key: "plan", Name: "Plan"}},
	}, nil
}

type fakeInstructions map[string][]string

func (f fakeInstructions) GetInstructions(_ context.Context, fieldKey string) ([]string, error) {
	return f[fieldKey], nil
}

type fakeReasoner struct {
	since time.Time
	err   error
}

func (f *fakeReasoner) Run(_ context.Context, since time.Time) (reasoning.Summary, error) {
	f.since = since
	if f.err != nil {
		return reasoning.Summary{}, f.err
	}
	return reasoning.Summary{Encounters: 2, Succeeded: 2}, nil
}

type fakeSuggester struct{}

func (fakeSuggester) Suggest(context.Context, string) []string {
	return []string{"Ask about fever."}
}

type fakeResults map[string]reasoning.Result

func (f fakeResults) GetReasoning(_ context.Context, patientID string, out any) error {
	res, ok := f[patientID]
	if !ok {
		return patient.ErrNotFound
	}
	*out.(*reasoning.Result) = res
	return nil
}

type fixture struct {
	srv        *Server
	encounters *fakeEncounters
	templates  *fakeTemplates
	generator  *fakeGenerator
	reasoner   *fakeReasoner
}

func newFixture(token string) *fixture {
	f := &fixture{
		encounters: &fakeEncounters{},
		templates: newFakeTemplates(&template.Template{
			Key:    "progress_note_1",
			Name:   "Progress Note",
			Fields: []template.Field{{Key: "history", Name: "History"}},
		}),
		generator: &fakeGenerator{},
		reasoner:  &fakeReasoner{},
	}
	f.srv = NewServer(0, token, Deps{
		Encounters:   f.encounters,
		Templates:    f.templates,
		Generator:    f.generator,
		Instructions: fakeInstructions{"history": {"Be brief"}},
		Reasoner:     f.reasoner,
		Suggester:    fakeSuggester{},
		Results:      fakeResults{"p1": {Summary: "stable"}},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestBearerAuth(t *testing.T) {
	f := newFixture("secret")

	w := f.do(http.MethodGet, "/api/v1/templates", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays open
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)
}

func TestProcessEncounter(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodPost, "/api/v1/encounters/p1/process", `{"text":"cough for 3 days","template_key":"progress_note_1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", f.encounters.req.PatientID)
	assert.Equal(t, "cough for 3 days", f.encounters.req.Text)
	assert.Equal(t, "progress_note_1", f.encounters.req.TemplateKey)

	body := decodeBody(t, w)
	assert.Equal(t, "- cough", body["fields"].(map[string]any)["history"])
	assert.Equal(t, 1.5, body["duration"])
}

func TestProcessEncounter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid", fmt.Errorf("%w: text is empty", processor.ErrInvalidRequest), http.StatusBadRequest},
		{"missing template", template.ErrNotFound, http.StatusNotFound},
		{"schema mismatch", fmt.Errorf("extract field history: %w", llm.ErrSchemaMismatch), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("")
			f.encounters.err = tt.err
			w := f.do(http.MethodPost, "/api/v1/encounters/p1/process", `{"text":"x"}`)

			assert.Equal(t, tt.code, w.Code)
			assert.NotEmpty(t, decodeBody(t, w)["error"])
		})
	}
}

func TestProcessEncounter_BadJSON(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodPost, "/api/v1/encounters/p1/process", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveField(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodPut, "/api/v1/encounters/p1/fields/history", `{"content":"- cough, worse at night"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "- cough, worse at night", f.encounters.edits["history"])
}

func TestSetJob(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodPut, "/api/v1/encounters/p1/jobs/2", `{"completed":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{2}, f.encounters.jobCalls)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["all_jobs_completed"])
	assert.Len(t, body["jobs_list"], 1)

	w = f.do(http.MethodPut, "/api/v1/encounters/p1/jobs/two", `{"completed":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.encounters.err = patient.ErrJobNotFound
	w = f.do(http.MethodPut, "/api/v1/encounters/p1/jobs/9", `{"completed":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplates_ListAndGet(t *testing.T) {
	f := newFixture("")

	w := f.do(http.MethodGet, "/api/v1/templates", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []template.Template
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "progress_note_1", list[0].Key)

	w = f.do(http.MethodGet, "/api/v1/templates/progress_note_1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/templates/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTemplate(t *testing.T) {
	f := newFixture("")

	w := f.do(http.MethodPost, "/api/v1/templates", `{"template_name":"Progress Note","fields":[{"field_key":"history","field_name":"History"}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "progress_note-a_1", decodeBody(t, w)["template_key"])

	w = f.do(http.MethodPost, "/api/v1/templates", `{"template_key":"progress_note_1","template_name":"Dup","fields":[{"field_key":"a"}]}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/v1/templates", `{"template_name":"X","fields":[{"field_key":"a"},{"field_key":"a"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/templates", `{"template_name":"X","fields":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTemplate(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodPut, "/api/v1/templates/progress_note_1", `{"template_key":"ignored","template_name":"Progress Note","fields":[{"field_key":"history"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.templates.updated)
	assert.Equal(t, "progress_note_1", f.templates.updated.Key)
	assert.Equal(t, "progress_note_1_v", decodeBody(t, w)["template_key"])
}

func TestDeleteTemplate(t *testing.T) {
	f := newFixture("")

	w := f.do(http.MethodDelete, "/api/v1/templates/progress_note_1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, f.templates.templates["progress_note_1"].Deleted)

	w = f.do(http.MethodDelete, "/api/v1/templates/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateTemplate(t *testing.T) {
	f := newFixture("")

	w := f.do(http.MethodPost, "/api/v1/templates/generate", `{"note":"History:\n- cough","name":"Clinic","save":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "generated_1", decodeBody(t, w)["template_key"])
	assert.Contains(t, f.templates.templates, "generated_1")

	w = f.do(http.MethodPost, "/api/v1/templates/generate", `{"note":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.generator.err = llm.ErrSchemaMismatch
	w = f.do(http.MethodPost, "/api/v1/templates/generate", `{"note":"x"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetInstructions(t *testing.T) {
	f := newFixture("")

	w := f.do(http.MethodGet, "/api/v1/instructions/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Be brief"}, decodeBody(t, w)["instructions"])

	w = f.do(http.MethodGet, "/api/v1/instructions/plan", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decodeBody(t, w)["instructions"])
}

func TestRunReasoning(t *testing.T) {
	f := newFixture("")

	w := f.do(http.MethodPost, "/api/v1/reasoning/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decodeBody(t, w)["succeeded"])
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), f.reasoner.since, time.Minute)

	w = f.do(http.MethodPost, "/api/v1/reasoning/run", `{"since":"2026-01-02T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), f.reasoner.since.UTC())

	w = f.do(http.MethodPost, "/api/v1/reasoning/run", `{"since":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.reasoner.err = reasoning.ErrAlreadyRunning
	w = f.do(http.MethodPost, "/api/v1/reasoning/run", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetReasoning(t *testing.T) {
	f := newFixture("")

	w := f.do(http.MethodGet, "/api/v1/encounters/p1/reasoning", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stable", decodeBody(t, w)["summary"])

	w = f.do(http.MethodGet, "/api/v1/encounters/p2/reasoning", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSuggest(t *testing.T) {
	f := newFixture("")

	w := f.do(http.MethodPost, "/api/v1/suggestions", `{"text":"cough"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Ask about fever."}, decodeBody(t, w)["suggestions"])

	w = f.do(http.MethodPost, "/api/v1/suggestions", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
