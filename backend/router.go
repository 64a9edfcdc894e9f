package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/obs"
)

// StatusSignal receives the process-wide notification that every primary
// backend of a pool failed in one batch. Implementations publish the state
// for external monitoring (e.g. the Redis status store).
type StatusSignal interface {
	RateLimitHit(ctx context.Context) error
}

// Router selects candidates from a pool and executes with failover. A failed
// candidate gets its rate-limit flag set and the next one is tried; a
// successful candidate gets its flag cleared. Content-policy rejections are
// not failed over: they are deterministic, so retrying siblings only burns
// quota.
type Router struct {
	logger *slog.Logger
	signal StatusSignal
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithStatusSignal installs the exhaustion signal sink.
func WithStatusSignal(signal StatusSignal) RouterOption {
	return func(r *Router) { r.signal = signal }
}

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter constructs a Router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateText runs a single-shot generation against the pool in pure
// priority order.
func (r *Router) GenerateText(ctx context.Context, pool *Pool, messages []core.Message) (string, error) {
	var text string
	err := r.execute(ctx, pool, "", true, func(ctx context.Context, d *Descriptor) error {
		var err error
		text, err = d.Client.GenerateText(ctx, messages)
		return err
	})
	return text, err
}

// GenerateObject runs a structured generation and decodes the JSON answer
// into out. A candidate whose answer does not decode counts as failed and
// the next candidate is tried.
func (r *Router) GenerateObject(ctx context.Context, pool *Pool, messages []core.Message, out any) error {
	return r.execute(ctx, pool, "", true, func(ctx context.Context, d *Descriptor) error {
		raw, err := d.Client.GenerateObject(ctx, messages)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode structured output: %w", err)
		}
		return nil
	})
}

// StreamText opens a streaming generation, preferring backends of the given
// size. Success means a stream was obtained; failures while draining the
// stream are not retried here.
func (r *Router) StreamText(ctx context.Context, pool *Pool, messages []core.Message, preferred Size, allowPremium bool) (*core.Stream, error) {
	var stream *core.Stream
	err := r.execute(ctx, pool, preferred, allowPremium, func(ctx context.Context, d *Descriptor) error {
		var err error
		stream, err = d.Client.StreamText(ctx, messages)
		return err
	})
	return stream, err
}

func (r *Router) execute(ctx context.Context, pool *Pool, preferred Size, allowPremium bool, invoke func(context.Context, *Descriptor) error) error {
	primary, backup := pool.Select(preferred, allowPremium)

	if err := r.tryCandidates(ctx, primary, invoke); err == nil {
		return nil
	} else if core.IsContentPolicy(err) || ctx.Err() != nil {
		return err
	}

	obs.RecordExhaustion()
	if r.signal != nil {
		if err := r.signal.RateLimitHit(ctx); err != nil {
			r.logger.Warn("writing rate limit status failed", "error", err)
		}
	}

	if len(backup) > 0 {
		if err := r.tryCandidates(ctx, backup, invoke); err == nil {
			return nil
		} else if core.IsContentPolicy(err) || ctx.Err() != nil {
			return err
		}
	}
	return core.NewError(core.ErrBackendExhausted, "all backends are at rate limit")
}

// tryCandidates attempts candidates in order. It returns nil on the first
// success, a terminal error for content policy or context cancellation, and
// the last candidate error once the list is exhausted.
func (r *Router) tryCandidates(ctx context.Context, candidates []*Descriptor, invoke func(context.Context, *Descriptor) error) error {
	err := fmt.Errorf("no candidates")
	for _, d := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Debug("invoking backend", "backend", d.Name)
		if err = invoke(ctx, d); err == nil {
			d.setRateLimited(false)
			return nil
		}
		if core.IsContentPolicy(err) {
			return err
		}
		d.setRateLimited(true)
		obs.RecordFailover(d.Name)
		r.logger.Warn("backend invocation failed", "backend", d.Name, "error", err)
	}
	return err
}
