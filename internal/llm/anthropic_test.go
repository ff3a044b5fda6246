package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/scribe/internal/config"
)

func TestAnthropicChat_StructuredViaForcedTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		assert.Equal(t, "extract\n\npatient context", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, RoleUser, req.Messages[0].Role)
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 0.0, *req.Temperature)
		require.NotNil(t, req.ToolChoice)
		assert.Equal(t, structuredTool, req.ToolChoice.Name)
		require.Len(t, req.Tools, 1)

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "tool_use", "name": structuredTool, "input": map[string]any{"key_points": []string{"a"}}},
			},
			"stop_reason": "tool_use",
		})
	}))
	defer server.Close()

	c := NewAnthropicClient(server.URL+"/v1", "test-key", 5*time.Second, nil, discardLogger())
	out, err := Structured[KeyPointsResponse](context.Background(), c, ChatRequest{
		Model: config.ModelConfig{Name: "claude-test"},
		Messages: []Message{
			{Role: RoleSystem, Content: "extract"},
			{Role: RoleSystem, Content: "patient context"},
			{Role: RoleUser, Content: "cough"},
		},
		Options: map[string]any{"temperature": 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.KeyPoints)
}

func TestAnthropicChat_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.ToolChoice)

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "Adding one."},
				{"type": "tool_use", "name": "add_instruction", "input": map[string]any{"new_instruction": "x"}},
			},
		})
	}))
	defer server.Close()

	c := NewAnthropicClient(server.URL, "k", 5*time.Second, nil, discardLogger())
	resp, err := c.Chat(context.Background(), ChatRequest{
		Model: config.ModelConfig{Name: "claude-test"},
		Tools: []Tool{NewFunctionTool("add_instruction", "", map[string]any{"type": "object"})},
	})
	require.NoError(t, err)
	assert.Equal(t, "Adding one.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.JSONEq(t, `{"new_instruction":"x"}`, string(resp.ToolCalls[0].Arguments))
}

func TestAnthropicChat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "max_tokens is too large"},
		})
	}))
	defer server.Close()

	c := NewAnthropicClient(server.URL, "k", 5*time.Second, nil, discardLogger())
	_, err := c.Chat(context.Background(), ChatRequest{Model: config.ModelConfig{Name: "claude-test"}})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, BackendAnthropic, httpErr.Backend)
	assert.Contains(t, httpErr.Body, "max_tokens is too large")
}

func TestAnthropicChat_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}, "stop_reason": "end_turn"})
	}))
	defer server.Close()

	c := NewAnthropicClient(server.URL, "k", 5*time.Second, nil, discardLogger())
	_, err := c.Chat(context.Background(), ChatRequest{Model: config.ModelConfig{Name: "claude-test"}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
