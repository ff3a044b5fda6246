package llm

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MikeSquared-Agency/scribe/internal/config"
)

const (
	BackendOllama    = "ollama"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// New builds the client for the configured backend.
func New(cfg config.LLMConfig, logger *slog.Logger) (Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	limiter := newLimiter(cfg.RateLimit)

	switch cfg.Backend {
	case BackendOllama:
		return NewOllamaClient(cfg.BaseURL, timeout, limiter, logger), nil
	case BackendOpenAI:
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, timeout, limiter, logger), nil
	case BackendAnthropic:
		return NewAnthropicClient(cfg.BaseURL, cfg.APIKey, timeout, limiter, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm backend %q", cfg.Backend)
	}
}

// newLimiter returns an unlimited limiter when rps is not positive.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

var thinkBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// stripThinking drops a leading <think>...</think> block emitted by models
// that reason before answering.
func stripThinking(content string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(content, ""))
}

// HTTPError is a non-2xx answer from a backend.
type HTTPError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s api error %d: %s", e.Backend, e.StatusCode, e.Body)
}

func temperature(opts map[string]any) (float64, bool) {
	v, ok := opts["temperature"]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}
