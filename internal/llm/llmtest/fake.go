// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MikeSquared-Agency/scribe/internal/llm"
)

// Handler answers one chat request.
type Handler func(req llm.ChatRequest) (*llm.ChatResponse, error)

// Fake is a concurrency-safe llm.Client that records every request.
type Fake struct {
	mu       sync.Mutex
	handler  Handler
	requests []llm.ChatRequest
}

func New(h Handler) *Fake {
	return &Fake{handler: h}
}

func (f *Fake) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.handler(req)
}

// Calls returns how many requests were made.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of the recorded requests.
func (f *Fake) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// JSON returns a response whose content is v encoded as JSON.
func JSON(v any) *llm.ChatResponse {
	b, _ := json.Marshal(v)
	return &llm.ChatResponse{Content: string(b)}
}

// KeyPoints returns a key_points response.
func KeyPoints(points ...string) *llm.ChatResponse {
	if points == nil {
		points = []string{}
	}
	return JSON(llm.KeyPointsResponse{KeyPoints: points})
}

// Tool returns a response carrying one tool call per call given.
func Tool(calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{ToolCalls: calls}
}

// Call builds a tool call with args encoded as JSON.
func Call(name string, args any) llm.ToolCall {
	b, _ := json.Marshal(args)
	if args == nil {
		b = []byte("{}")
	}
	return llm.ToolCall{Name: name, Arguments: b}
}

// SystemPrompt returns the first system message of req.
func SystemPrompt(req llm.ChatRequest) string {
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			return m.Content
		}
	}
	return ""
}

// UserPrompt returns the last user message of req.
func UserPrompt(req llm.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
