// Package backend provides a unified interface for LLM backends.
package backend

import (
	"context"

	"godex-agent/pkg/protocol"
	"godex-agent/pkg/sse"
)

// ToolCall represents a function call from the model.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string
}

// StreamResult contains the collected output from a streaming response.
type StreamResult struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *protocol.Usage
}

// ModelInfo describes a model available on a backend.
type ModelInfo struct {
	ID          string
	DisplayName string
}

// Backend defines the interface that all LLM backends must implement.
type Backend interface {
	// Name returns the backend identifier (e.g., "codex", "anthropic").
	Name() string

	// StreamResponses sends a request and streams events back via the callback.
	StreamResponses(ctx context.Context, req protocol.ResponsesRequest, onEvent func(sse.Event) error) error

	// StreamAndCollect streams a request and returns collected output.
	StreamAndCollect(ctx context.Context, req protocol.ResponsesRequest) (StreamResult, error)

	// ListModels returns the models available on this backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}
