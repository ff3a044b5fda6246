// Package refinement runs the second, style-normalising pass over extracted
// fields and learns per-field instructions from clinician edits.
package refinement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/format"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

// Refiner rewrites raw field content into the field's final shape.
type Refiner struct {
	llm    llm.Client
	config *config.Manager
	logger *slog.Logger
}

func NewRefiner(client llm.Client, cfg *config.Manager, logger *slog.Logger) *Refiner {
	return &Refiner{llm: client, config: cfg, logger: logger}
}

// Refine sends raw through the secondary model and formats the reply with the
// same rules extraction uses. learned are clinician preferences for the field.
// Empty content is returned as is without a model call.
func (r *Refiner) Refine(ctx context.Context, raw string, field template.Field, learned []string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	req := llm.ChatRequest{
		Model:    r.config.Config().LLM.Secondary(),
		Messages: r.messages(raw, field, learned),
		Options:  map[string]any{"temperature": 0},
	}

	var (
		out string
		err error
	)
	if field.FormatSchema.IsNarrative() {
		var resp llm.NarrativeResponse
		resp, err = llm.Structured[llm.NarrativeResponse](ctx, r.llm, req)
		out = strings.TrimSpace(resp.Narrative)
	} else {
		var resp llm.KeyPointsResponse
		resp, err = llm.Structured[llm.KeyPointsResponse](ctx, r.llm, req)
		out = format.Format(resp.KeyPoints, field.FormatSchema)
	}
	if err != nil {
		r.logger.Error("field refinement failed",
			"field_key", field.Key,
			"error", err,
		)
		return "", fmt.Errorf("refine field %s: %w", field.Key, err)
	}
	return out, nil
}

// SystemPrompt picks the prompt for field: the first of its refinement rules
// that names a defined prompt, else the default refinement prompt.
func (r *Refiner) SystemPrompt(field template.Field) string {
	prompts := r.config.Prompts()
	for _, rule := range field.RefinementRules {
		p, err := prompts.RefinementPrompt(rule)
		if err != nil {
			r.logger.Debug("skipping refinement rule", "field_key", field.Key, "rule", rule)
			continue
		}
		return p
	}
	return prompts.Refinement
}

func (r *Refiner) messages(raw string, field template.Field, learned []string) []llm.Message {
	var sb strings.Builder
	sb.WriteString(r.SystemPrompt(field))

	if field.FormatSchema.IsNarrative() {
		sb.WriteString("\n\nReturn a JSON object with a narrative string holding one cohesive paragraph.")
	} else {
		sb.WriteString("\n\nReturn a JSON object with a key_points array, one entry per point, without bullet or number markers.")
	}
	if ex := strings.TrimSpace(field.StyleExample); ex != "" {
		sb.WriteString("\n\nMatch the style of this example:\n")
		sb.WriteString(ex)
	}
	if len(learned) > 0 {
		sb.WriteString("\n\nThe clinician prefers:")
		for _, ins := range learned {
			sb.WriteString("\n- ")
			sb.WriteString(ins)
		}
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: sb.String()},
		{Role: llm.RoleUser, Content: raw},
	}
}
