package template

import (
	"fmt"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/format"
)

// DefaultTemplates are the built-in templates restored by a reset.
func DefaultTemplates(prompts *config.Prompts) []Template {
	field := func(key, name string, style format.Style, persistent bool) Field {
		schema := &format.Schema{Type: style}
		return Field{
			Key:          key,
			Name:         name,
			Required:     true,
			Persistent:   persistent,
			SystemPrompt: fmt.Sprintf(prompts.FieldSystem, name, describe(schema)),
			FormatSchema: schema,
		}
	}

	return []Template{
		{
			Key:  "progress_note_1",
			Name: "Progress Note",
			Fields: []Field{
				field("history", "History", format.StyleBullet, false),
				field("examination", "Examination", format.StyleBullet, false),
				field("impression", "Impression", format.StyleNarrative, false),
				PlanField(prompts),
			},
		},
		{
			Key:  "new_patient_1",
			Name: "New Patient",
			Fields: []Field{
				field("presenting_complaint", "Presenting Complaint", format.StyleNarrative, false),
				field("history", "History", format.StyleBullet, false),
				field("past_history", "Past History", format.StyleBullet, true),
				field("medications", "Medications", format.StyleBullet, true),
				field("social_history", "Social History", format.StyleBullet, true),
				field("investigations", "Investigations", format.StyleLabValues, false),
				field("examination", "Examination", format.StyleHeadingWithBullets, false),
				field("impression", "Impression", format.StyleNarrative, false),
				PlanField(prompts),
			},
		},
	}
}
