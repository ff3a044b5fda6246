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

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096

	// structuredTool is the forced tool that carries schema-constrained output;
	// the Messages API has no response-format parameter.
	structuredTool = "structured_response"
)

// AnthropicClient talks to the Anthropic Messages API. baseURL includes the
// version segment, e.g. https://api.anthropic.com/v1.
type AnthropicClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewAnthropicClient(baseURL, apiKey string, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger) *AnthropicClient {
	if limiter == nil {
		limiter = newLimiter(0)
	}
	return &AnthropicClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicRequest struct {
	Model       string               `json:"model"`
	MaxTokens   int                  `json:"max_tokens"`
	System      string               `json:"system,omitempty"`
	Messages    []anthropicMessage   `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends one Messages API call. System messages are joined into the
// top-level system prompt. A Format schema is enforced by forcing a single
// tool whose input is returned as the content.
func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body := anthropicRequest{
		Model:     req.Model.Name,
		MaxTokens: anthropicMaxTokens,
	}
	if n, ok := req.Options["max_tokens"].(int); ok && n > 0 {
		body.MaxTokens = n
	}
	if t, ok := temperature(req.Options); ok {
		body.Temperature = &t
	}

	var system []string
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	body.System = strings.Join(system, "\n\n")

	for _, t := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	if req.Format != nil {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        structuredTool,
			Description: "Return the answer in the required structure.",
			InputSchema: req.Format,
		})
		body.ToolChoice = &anthropicToolChoice{Type: "tool", Name: structuredTool}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	metrics.LLMLatency.WithLabelValues(BackendAnthropic).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues(BackendAnthropic, "transport_error").Inc()
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.LLMRequests.WithLabelValues(BackendAnthropic, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		msg := string(respBody)
		var errResp anthropicError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Type + ": " + errResp.Error.Message
		}
		return nil, &HTTPError{Backend: BackendAnthropic, StatusCode: resp.StatusCode, Body: msg}
	}
	metrics.LLMRequests.WithLabelValues(BackendAnthropic, "ok").Inc()

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	out := &ChatResponse{}
	var text []string
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			if block.Name == structuredTool && req.Format != nil {
				out.Content = string(block.Input)
				continue
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: block.Name, Arguments: block.Input})
		}
	}
	if req.Format == nil {
		out.Content = strings.Join(text, "")
		if req.Model.SupportsExplicitReasoningStep {
			out.Content = stripThinking(out.Content)
		}
	}

	if strings.TrimSpace(out.Content) == "" && len(out.ToolCalls) == 0 && len(req.Tools) == 0 {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("anthropic chat complete",
		"model", req.Model.Name,
		"stop_reason", apiResp.StopReason,
		"input_tokens", apiResp.Usage.InputTokens,
		"output_tokens", apiResp.Usage.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
