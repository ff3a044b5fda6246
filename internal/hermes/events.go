package hermes

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SubjectFieldEdited carries clinician edits to a field.
	SubjectFieldEdited = "scribe.field.edited"
	// SubjectEncounterProcessed is emitted after an encounter is extracted and saved.
	SubjectEncounterProcessed = "scribe.encounter.processed"
)

// FieldEditedEvent pairs the machine text of a field with the clinician's edit.
type FieldEditedEvent struct {
	EventID     string    `json:"event_id"`
	PatientID   string    `json:"patient_id"`
	TemplateKey string    `json:"template_key"`
	FieldKey    string    `json:"field_key"`
	Initial     string    `json:"initial"`
	Modified    string    `json:"modified"`
	EditedAt    time.Time `json:"edited_at"`
}

// EncounterProcessedEvent reports which fields were regenerated.
type EncounterProcessedEvent struct {
	EventID     string    `json:"event_id"`
	PatientID   string    `json:"patient_id"`
	TemplateKey string    `json:"template_key"`
	Fields      []string  `json:"fields"`
	DurationMs  int64     `json:"duration_ms"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewEventID returns a random event id.
func NewEventID() string {
	return uuid.NewString()
}
