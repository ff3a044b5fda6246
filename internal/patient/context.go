package patient

import "strings"

const (
	KeyName   = "name"
	KeyAge    = "age"
	KeyGender = "gender"
)

// Context carries patient demographics into extraction prompts. Absent keys
// are left out of the prompt.
type Context map[string]string

// SystemMessage renders the context as a short system message, or "" when
// no demographic is known.
func (c Context) SystemMessage() string {
	var parts []string
	if v := strings.TrimSpace(c[KeyName]); v != "" {
		parts = append(parts, "Patient name: "+v)
	}
	if v := strings.TrimSpace(c[KeyAge]); v != "" {
		parts = append(parts, "Age: "+v)
	}
	if v := strings.TrimSpace(c[KeyGender]); v != "" {
		parts = append(parts, "Gender: "+v)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}
