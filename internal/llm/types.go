// Package llm is the chat interface the extraction pipeline talks to. A
// local Ollama server, any OpenAI-compatible endpoint and the Anthropic
// Messages API implement it; callers never branch on which one is active.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MikeSquared-Agency/scribe/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrSchemaMismatch is returned when structured output does not match the requested schema.
	ErrSchemaMismatch = errors.New("response does not match schema")
	// ErrEmptyResponse is returned when the backend answers without content or tool calls.
	ErrEmptyResponse = errors.New("empty response")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

type FunctionSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// ToolCall is a function invocation returned by the model. Arguments is
// always a JSON object regardless of backend.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatRequest is one chat completion. Format, when set, is a JSON schema the
// response content must validate against.
type ChatRequest struct {
	Model    config.ModelConfig
	Messages []Message
	Format   any
	Options  map[string]any
	Tools    []Tool
}

type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Client sends chat requests to a model backend.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewFunctionTool builds a Tool from a name, description and parameter schema.
func NewFunctionTool(name, description string, parameters any) Tool {
	return Tool{
		Type: "function",
		Function: FunctionSpec{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
