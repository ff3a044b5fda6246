// Package template defines the reusable field sets notes are extracted
// into, their copy-on-write versioning and generation from an example note.
package template

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/format"
)

// ErrNotFound is returned when no non-deleted template has the requested key.
var ErrNotFound = errors.New("template not found")

// PlanFieldKey is the field whose numbered lines become the jobs list.
const PlanFieldKey = "plan"

// Template is a named, ordered set of fields.
type Template struct {
	Key       string    `json:"template_key"`
	Name      string    `json:"template_name"`
	Fields    []Field   `json:"fields"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Field is one section of a note together with the prompts that fill it.
type Field struct {
	Key             string         `json:"field_key"`
	Name            string         `json:"field_name"`
	Required        bool           `json:"required"`
	Persistent      bool           `json:"persistent"`
	SystemPrompt    string         `json:"system_prompt"`
	InitialPrompt   string         `json:"initial_prompt,omitempty"`
	FormatSchema    *format.Schema `json:"format_schema,omitempty"`
	StyleExample    string         `json:"style_example,omitempty"`
	RefinementRules []string       `json:"refinement_rules,omitempty"`
}

// Field returns the field with key, if present.
func (t *Template) Field(key string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// NonPersistent returns the fields re-extracted on every encounter, in
// template order.
func (t *Template) NonPersistent() []Field {
	return NonPersistent(t.Fields)
}

// NonPersistent filters fields down to those that are not carried over.
func NonPersistent(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if !f.Persistent {
			out = append(out, f)
		}
	}
	return out
}

// ContentEqual reports whether two templates have the same name and field
// definitions. Key, deletion state and timestamps are ignored.
func ContentEqual(a, b *Template) bool {
	if a.Name != b.Name || len(a.Fields) != len(b.Fields) {
		return false
	}
	ja, errA := json.Marshal(a.Fields)
	jb, errB := json.Marshal(b.Fields)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}
