// Package extractor fills one template field from source text with a single
// structured model call.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/format"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/patient"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

// Result is the formatted, unrefined content of one field.
type Result struct {
	FieldKey string `json:"field_key"`
	Content  string `json:"content"`
}

type Extractor struct {
	llm    llm.Client
	config *config.Manager
	logger *slog.Logger
}

func New(client llm.Client, cfg *config.Manager, logger *slog.Logger) *Extractor {
	return &Extractor{llm: client, config: cfg, logger: logger}
}

// Extract asks the primary model for the key points of field found in text
// and formats them per the field's format schema. Any failure is returned;
// no empty content is substituted.
func (e *Extractor) Extract(ctx context.Context, text string, field template.Field, pc patient.Context) (Result, error) {
	prompts := e.config.Prompts()

	system := strings.TrimSpace(field.SystemPrompt)
	if system == "" {
		system = strings.TrimSpace(field.InitialPrompt)
	}
	if prompts.ExtractionSuffix != "" {
		system += "\n\n" + prompts.ExtractionSuffix
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: system}}
	if ctxMsg := pc.SystemMessage(); ctxMsg != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: ctxMsg})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	e.logger.Debug("extracting field",
		"field_key", field.Key,
		"text_len", len(text),
	)

	out, err := llm.Structured[llm.KeyPointsResponse](ctx, e.llm, llm.ChatRequest{
		Model:    e.config.Config().LLM.Primary(),
		Messages: messages,
		Options:  map[string]any{"temperature": 0},
	})
	if err != nil {
		e.logger.Error("field extraction failed",
			"field_key", field.Key,
			"error", err,
		)
		return Result{}, fmt.Errorf("extract field %s: %w", field.Key, err)
	}

	return Result{
		FieldKey: field.Key,
		Content:  format.Format(out.KeyPoints, field.FormatSchema),
	}, nil
}
