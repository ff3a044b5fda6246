package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// KeyPointsResponse is the structured shape for list-style fields.
type KeyPointsResponse struct {
	KeyPoints []string `json:"key_points" jsonschema:"description=Discrete points in source order"`
}

// NarrativeResponse is the structured shape for single-paragraph fields.
type NarrativeResponse struct {
	Narrative string `json:"narrative" jsonschema:"description=One cohesive paragraph"`
}

// SchemaFor reflects v into an inline JSON schema with no $ref or $schema
// keys, which both backends accept as a response format.
func SchemaFor(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	return s
}

// DecodeStrict parses content into out. Unknown keys, missing or null
// required keys and trailing data are all schema mismatches; nothing is
// coerced.
func DecodeStrict(content string, schema *jsonschema.Schema, out any) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: empty content", ErrSchemaMismatch)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &top); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if schema != nil {
		for _, key := range schema.Required {
			raw, ok := top[key]
			if !ok || string(raw) == "null" {
				return fmt.Errorf("%w: missing required key %q", ErrSchemaMismatch, key)
			}
		}
	}

	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}

// Structured sends req with a response format reflected from T and decodes
// the reply strictly into T.
func Structured[T any](ctx context.Context, c Client, req ChatRequest) (T, error) {
	var out T
	schema := SchemaFor(&out)
	req.Format = schema

	resp, err := c.Chat(ctx, req)
	if err != nil {
		return out, err
	}
	if err := DecodeStrict(resp.Content, schema, &out); err != nil {
		return out, err
	}
	return out, nil
}
