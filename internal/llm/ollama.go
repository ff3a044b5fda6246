package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MikeSquared-Agency/scribe/internal/metrics"
)

// OllamaClient talks to a local Ollama server through /api/chat.
type OllamaClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewOllamaClient(baseURL string, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger) *OllamaClient {
	if limiter == nil {
		limiter = newLimiter(0)
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Format   any            `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
	Tools    []Tool         `json:"tools,omitempty"`
	Think    *bool          `json:"think,omitempty"`
	Stream   bool           `json:"stream"`
}

type ollamaResponse struct {
	Message struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
	Done bool `json:"done"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// Chat sends a non-streaming chat request.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body := ollamaRequest{
		Model:    req.Model.Name,
		Messages: req.Messages,
		Format:   req.Format,
		Options:  req.Options,
		Tools:    req.Tools,
	}
	if req.Model.SupportsExplicitReasoningStep {
		off := false
		body.Think = &off
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	metrics.LLMLatency.WithLabelValues(BackendOllama).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues(BackendOllama, "transport_error").Inc()
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.LLMRequests.WithLabelValues(BackendOllama, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		msg := string(respBody)
		var errResp ollamaError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return nil, &HTTPError{Backend: BackendOllama, StatusCode: resp.StatusCode, Body: msg}
	}
	metrics.LLMRequests.WithLabelValues(BackendOllama, "ok").Inc()

	var apiResp ollamaResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	out := &ChatResponse{Content: apiResp.Message.Content}
	if req.Model.SupportsExplicitReasoningStep {
		out.Content = stripThinking(out.Content)
	}
	for _, tc := range apiResp.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	if strings.TrimSpace(out.Content) == "" && len(out.ToolCalls) == 0 && len(req.Tools) == 0 {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("ollama chat complete",
		"model", req.Model.Name,
		"tool_calls", len(out.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
