package hermes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldEditedEventParsing(t *testing.T) {
	raw := `{
		"event_id": "4d7c1b8e-0000-4000-8000-000000000001",
		"patient_id": "p-1",
		"template_key": "progress_note_1",
		"field_key": "history",
		"initial": "Patient reports cough.",
		"modified": "Cough.",
		"edited_at": "2026-10-01T09:30:00Z"
	}`

	var evt FieldEditedEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &evt))
	assert.Equal(t, "p-1", evt.PatientID)
	assert.Equal(t, "history", evt.FieldKey)
	assert.Equal(t, "Cough.", evt.Modified)
	assert.Equal(t, time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC), evt.EditedAt)
}

func TestEncounterProcessedEventKeys(t *testing.T) {
	data, err := json.Marshal(EncounterProcessedEvent{PatientID: "p-1", Fields: []string{"history"}, DurationMs: 1200})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "p-1", m["patient_id"])
	assert.Equal(t, []any{"history"}, m["fields"])
	assert.EqualValues(t, 1200, m["duration_ms"])
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "scribe.field.edited", SubjectFieldEdited)
	assert.Equal(t, "scribe.encounter.processed", SubjectEncounterProcessed)
}

func TestNewEventID(t *testing.T) {
	id := NewEventID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewEventID())
}
