package reasoning

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
)

// FallbackSuggestions are returned whenever the model cannot provide any.
var FallbackSuggestions = []string{
	"Confirm current medications and allergies.",
	"Check whether red flag symptoms were asked about.",
	"Agree a follow-up interval and safety-netting advice.",
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Suggester proposes follow-up questions for an encounter. It never fails.
type Suggester struct {
	llm    llm.Client
	config *config.Manager
	logger *slog.Logger
}

func NewSuggester(client llm.Client, cfg *config.Manager, logger *slog.Logger) *Suggester {
	return &Suggester{llm: client, config: cfg, logger: logger}
}

// Suggest returns follow-up suggestions for text, or FallbackSuggestions on
// any error or empty answer.
func (s *Suggester) Suggest(ctx context.Context, text string) []string {
	fallback := append([]string(nil), FallbackSuggestions...)
	if strings.TrimSpace(text) == "" {
		return fallback
	}

	out, err := llm.Structured[suggestionsResponse](ctx, s.llm, llm.ChatRequest{
		Model: s.config.Config().LLM.Secondary(),
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.config.Prompts().Suggestions},
			{Role: llm.RoleUser, Content: text},
		},
	})
	if err != nil {
		s.logger.Warn("suggestions unavailable, using fallback", "error", err)
		return fallback
	}

	var list []string
	for _, sug := range out.Suggestions {
		if sug = strings.TrimSpace(sug); sug != "" {
			list = append(list, sug)
		}
	}
	if len(list) == 0 {
		return fallback
	}
	return list
}
