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

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint.
// baseURL includes the version segment, e.g. https://api.openai.com/v1.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger) *OpenAIClient {
	if limiter == nil {
		limiter = newLimiter(0)
	}
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Tools          []Tool          `json:"tools,omitempty"`
	Stream         bool            `json:"stream"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string `json:"name"`
	Schema any    `json:"schema"`
	Strict bool   `json:"strict"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			Refusal   string `json:"refusal"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends a non-streaming chat completion.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body := openAIRequest{
		Model:    req.Model.Name,
		Messages: req.Messages,
		Tools:    req.Tools,
	}
	if t, ok := temperature(req.Options); ok {
		body.Temperature = &t
	}
	if req.Format != nil {
		body.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: "response", Schema: req.Format, Strict: true},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	metrics.LLMLatency.WithLabelValues(BackendOpenAI).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues(BackendOpenAI, "transport_error").Inc()
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.LLMRequests.WithLabelValues(BackendOpenAI, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		msg := string(respBody)
		var errResp openAIError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Type + ": " + errResp.Error.Message
		}
		return nil, &HTTPError{Backend: BackendOpenAI, StatusCode: resp.StatusCode, Body: msg}
	}
	metrics.LLMRequests.WithLabelValues(BackendOpenAI, "ok").Inc()

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	msg := apiResp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", msg.Refusal)
	}

	out := &ChatResponse{Content: msg.Content}
	if req.Model.SupportsExplicitReasoningStep {
		out.Content = stripThinking(out.Content)
	}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			return nil, fmt.Errorf("%w: tool %s arguments are not JSON", ErrSchemaMismatch, tc.Function.Name)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{Name: tc.Function.Name, Arguments: args})
	}

	if strings.TrimSpace(out.Content) == "" && len(out.ToolCalls) == 0 && len(req.Tools) == 0 {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("openai chat complete",
		"model", req.Model.Name,
		"tool_calls", len(out.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
