package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/scribe/internal/format"
	"github.com/MikeSquared-Agency/scribe/internal/patient"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "scribe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func progressNote() *template.Template {
	return &template.Template{
		Key:  "progress_note_1",
		Name: "Progress Note",
		Fields: []template.Field{
			{Key: "history", Name: "History", SystemPrompt: "History.", FormatSchema: &format.Schema{Type: format.StyleBullet}},
			{Key: "medications", Name: "Medications", Persistent: true},
			{Key: "plan", Name: "Plan", Required: true, FormatSchema: &format.Schema{Type: format.StyleNumbered}},
		},
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), "mysql", "x")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{postgres: true}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Store{}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestTemplates_SaveGetList(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTemplate(ctx, progressNote()))

	got, err := s.GetTemplate(ctx, "progress_note_1")
	require.NoError(t, err)
	assert.Equal(t, "Progress Note", got.Name)
	assert.Equal(t, progressNote().Fields, got.Fields)
	assert.False(t, got.CreatedAt.IsZero())

	fields, err := s.GetFields(ctx, "progress_note_1")
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "plan", fields[2].Key)

	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetTemplate(ctx, "missing")
	assert.ErrorIs(t, err, template.ErrNotFound)
}

func TestUpdateTemplate_Versioning(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTemplate(ctx, progressNote()))

	key, err := s.UpdateTemplate(ctx, progressNote())
	require.NoError(t, err)
	assert.Equal(t, "progress_note_1", key, "identical content keeps the key")

	changed := progressNote()
	changed.Fields[0].SystemPrompt = "History, briefly."
	key, err = s.UpdateTemplate(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, "progress_note_2", key)

	_, err = s.GetTemplate(ctx, "progress_note_1")
	assert.ErrorIs(t, err, template.ErrNotFound, "old version is soft-deleted")

	exists, err := s.TemplateExists(ctx, "progress_note_1")
	require.NoError(t, err)
	assert.True(t, exists, "soft-deleted key stays reserved")

	latest, err := s.GetTemplate(ctx, "progress_note_2")
	require.NoError(t, err)
	assert.Equal(t, "History, briefly.", latest.Fields[0].SystemPrompt)

	changed.Key = "progress_note_2"
	changed.Fields[1].Persistent = false
	key, err = s.UpdateTemplate(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, "progress_note_3", key)
}

func TestUpdateTemplate_NewKeyIsSaved(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	tmpl := progressNote()
	tmpl.Key = "letter_1"
	key, err := s.UpdateTemplate(ctx, tmpl)
	require.NoError(t, err)
	assert.Equal(t, "letter_1", key)

	_, err = s.GetTemplate(ctx, "letter_1")
	assert.NoError(t, err)
}

func TestUpdateTemplate_RetiredKeyVersionsFromLatest(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTemplate(ctx, progressNote()))

	v2 := progressNote()
	v2.Fields[0].SystemPrompt = "v2"
	key, err := s.UpdateTemplate(ctx, v2)
	require.NoError(t, err)
	require.Equal(t, "progress_note_2", key)

	// a client still holding the first key
	v3 := progressNote()
	v3.Fields[0].SystemPrompt = "v3"
	key, err = s.UpdateTemplate(ctx, v3)
	require.NoError(t, err)
	assert.Equal(t, "progress_note_3", key)

	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "exactly one live version")
	assert.Equal(t, "progress_note_3", list[0].Key)
	assert.Equal(t, "v3", list[0].Fields[0].SystemPrompt)

	var fields string
	var deleted int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT fields, deleted FROM templates WHERE template_key = 'progress_note_1'`).Scan(&fields, &deleted))
	assert.Contains(t, fields, `"History."`, "first version is kept as history")
	assert.Equal(t, 1, deleted)

	// same content through a retired key is a no-op on the live version
	key, err = s.UpdateTemplate(ctx, v3)
	require.NoError(t, err)
	assert.Equal(t, "progress_note_3", key)
}

func TestUpdateTemplate_RetiredWithoutSuccessor(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTemplate(ctx, progressNote()))
	require.NoError(t, s.SoftDeleteTemplate(ctx, "progress_note_1"))

	changed := progressNote()
	changed.Fields[0].SystemPrompt = "revived"
	_, err := s.UpdateTemplate(ctx, changed)
	assert.ErrorIs(t, err, template.ErrNotFound)

	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLatestTemplate(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTemplate(ctx, progressNote()))

	sibling := progressNote()
	sibling.Key = "progress_note-a_1"
	require.NoError(t, s.SaveTemplate(ctx, sibling))

	got, err := s.LatestTemplate(ctx, "progress_note_1")
	require.NoError(t, err)
	assert.Equal(t, "progress_note_1", got.Key)

	changed := progressNote()
	changed.Fields[0].SystemPrompt = "new"
	_, err = s.UpdateTemplate(ctx, changed)
	require.NoError(t, err)

	got, err = s.LatestTemplate(ctx, "progress_note_1")
	require.NoError(t, err)
	assert.Equal(t, "progress_note_2", got.Key)

	_, err = s.LatestTemplate(ctx, "unknown_1")
	assert.ErrorIs(t, err, template.ErrNotFound)
}

func TestSoftDeleteAndReset(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTemplate(ctx, progressNote()))

	require.NoError(t, s.SoftDeleteTemplate(ctx, "progress_note_1"))
	assert.ErrorIs(t, s.SoftDeleteTemplate(ctx, "progress_note_1"), template.ErrNotFound)

	custom := progressNote()
	custom.Key = "custom_1"
	require.NoError(t, s.SaveTemplate(ctx, custom))

	require.NoError(t, s.ResetTemplates(ctx, []template.Template{*progressNote()}))
	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "progress_note_1", list[0].Key)
}

func TestPatients(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) }

	rec := &patient.Record{
		ID:           "p-1",
		Name:         "Jo Smith",
		DOB:          "1980-02-29",
		TemplateKey:  "progress_note_1",
		TemplateData: map[string]string{"history": "• cough"},
		Generated:    map[string]string{"history": "• cough, fever"},
		Jobs:         []patient.Job{{ID: 1, Job: "Check FBC", Completed: true}, {ID: 2, Job: "Refer derm"}},
	}
	require.NoError(t, s.SavePatient(ctx, rec))

	got, err := s.GetPatient(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "• cough", got.TemplateData["history"])
	assert.Equal(t, "• cough, fever", got.Generated["history"])
	assert.Len(t, got.Jobs, 2)
	assert.False(t, got.AllJobsCompleted)
	assert.True(t, s.now().Equal(got.UpdatedAt))

	require.NoError(t, s.UpdateJobs(ctx, "p-1", []patient.Job{{ID: 1, Job: "Check FBC", Completed: true}, {ID: 2, Job: "Refer derm", Completed: true}}))
	got, err = s.GetPatient(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, got.AllJobsCompleted)

	_, err = s.GetPatient(ctx, "nobody")
	assert.ErrorIs(t, err, patient.ErrNotFound)
	assert.ErrorIs(t, s.UpdateJobs(ctx, "nobody", nil), patient.ErrNotFound)
}

func TestListPatientsUpdatedSince(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	day := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "newer"} {
		at := day.Add(time.Duration(i) * 12 * time.Hour)
		s.now = func() time.Time { return at }
		require.NoError(t, s.SavePatient(ctx, &patient.Record{ID: id}))
	}

	recs, err := s.ListPatientsUpdatedSince(ctx, day.Add(6*time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].ID)
	assert.Equal(t, "newer", recs[1].ID)
}

func TestInstructions(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	list, err := s.GetInstructions(ctx, "history")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.SaveInstructions(ctx, DefaultInstructionsKey, []string{"Be brief"}))
	list, err = s.GetInstructions(ctx, "history")
	require.NoError(t, err)
	assert.Equal(t, []string{"Be brief"}, list)

	require.NoError(t, s.SaveInstructions(ctx, "history", []string{"Use 3/7 for days"}))
	list, err = s.GetInstructions(ctx, "history")
	require.NoError(t, err)
	assert.Equal(t, []string{"Use 3/7 for days"}, list)

	require.NoError(t, s.SaveInstructions(ctx, "history", nil))
	list, err = s.GetInstructions(ctx, "history")
	require.NoError(t, err)
	assert.Empty(t, list, "an emptied field list does not fall back to default")
}

func TestReasoning(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	type result struct {
		Summary string `json:"summary"`
	}
	require.NoError(t, s.SaveReasoning(ctx, "p-1", result{Summary: "first"}))
	require.NoError(t, s.SaveReasoning(ctx, "p-1", result{Summary: "second"}))

	var got result
	require.NoError(t, s.GetReasoning(ctx, "p-1", &got))
	assert.Equal(t, "second", got.Summary)

	assert.ErrorIs(t, s.GetReasoning(ctx, "p-2", &got), patient.ErrNotFound)
}
