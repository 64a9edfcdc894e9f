// Package backend holds the registry of generation backends and the router
// that executes requests against them with priority-ordered failover.
package backend

import (
	"context"

	"github.com/wahl-chat/wahl-chat-backend/core"
)

// Client is implemented by every configured generation endpoint. A client is
// constructed once at process start with its credentials, model and sampling
// parameters baked in; the router treats all clients interchangeably.
type Client interface {
	// GenerateText returns a complete text answer.
	GenerateText(ctx context.Context, messages []core.Message) (string, error)
	// GenerateObject returns a structured answer as raw JSON.
	GenerateObject(ctx context.Context, messages []core.Message) ([]byte, error)
	// StreamText opens a streaming answer. Obtaining the stream is the
	// success criterion; errors while draining are the caller's concern.
	StreamText(ctx context.Context, messages []core.Message) (*core.Stream, error)
}
