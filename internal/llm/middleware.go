package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Middleware decorates an LLMClient to inject cross-cutting concerns
// (rate limiting, retries, logging, hooks, etc.).
type Middleware func(LLMClient) LLMClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit limits request rate using the token-bucket rpsLimiter.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLMClient) LLMClient {
		rl := newRPSLimiter(rps, burst) // nil when disabled
		return &rateLimited{next: next, rl: rl}
	}
}

// RateLimitPerMinute is RateLimit expressed in requests per minute with a
// burst equal to the nominal rate.
func RateLimitPerMinute(rpm int) Middleware {
	if rpm <= 0 {
		return RateLimit(0, 0)
	}
	return RateLimit(float64(rpm)/60.0, max1(rpm))
}

type rateLimited struct {
	next LLMClient
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}
func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}
func (c *rateLimited) Complete(ctx context.Context, prompt string, input any) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", err
	}
	return c.next.Complete(ctx, prompt, input)
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// -------- Retry with exponential backoff --------

// Retry retries up to maxAttempts with exponential backoff starting at
// baseDelay. PermanentError and context cancellation stop it immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next LLMClient) LLMClient {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next LLMClient
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.do(ctx, func() error {
		var err error
		out, err = r.next.GenerateJSON(ctx, prompt, input)
		return err
	})
	return out, err
}

func (r *retrying) Complete(ctx context.Context, prompt string, input any) (string, error) {
	var out string
	err := r.do(ctx, func() error {
		var err error
		out, err = r.next.Complete(ctx, prompt, input)
		return err
	})
	return out, err
}

func (r *retrying) do(ctx context.Context, call func() error) error {
	var last error
	for i := 0; i < r.max; i++ {
		err := call()
		if err == nil {
			return nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return err
		}
		last = err
		if i == r.max-1 {
			break
		}
		t := time.NewTimer(r.base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return last
}

// -------- Logging & Hooks --------

// WithLogging logs request size and errors per phase. A nil logger is a no-op.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next LLMClient) LLMClient {
		return &logging{next: next, log: logger.Named("llm")}
	}
}

type logging struct {
	next LLMClient
	log  *zap.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	start := time.Now()
	l.log.Debug("request", zap.String("phase", PhaseFrom(ctx)), zap.String("client", l.next.Name()),
		zap.Int("bytes", len(FormatInput(prompt, input))))
	raw, err := l.next.GenerateJSON(ctx, prompt, input)
	if err != nil {
		l.log.Warn("request failed", zap.String("phase", PhaseFrom(ctx)), zap.Duration("took", time.Since(start)), zap.Error(err))
	}
	return raw, err
}

func (l *logging) Complete(ctx context.Context, prompt string, input any) (string, error) {
	start := time.Now()
	l.log.Debug("completion request", zap.String("phase", PhaseFrom(ctx)), zap.String("client", l.next.Name()),
		zap.Int("bytes", len(FormatInput(prompt, input))))
	out, err := l.next.Complete(ctx, prompt, input)
	if err != nil {
		l.log.Warn("completion failed", zap.String("phase", PhaseFrom(ctx)), zap.Duration("took", time.Since(start)), zap.Error(err))
	}
	return out, err
}

// WithHooks calls HookFrom(ctx).Before/After around every request.
// If no hook is present in the context, it is a no-op.
func WithHooks() Middleware {
	return func(next LLMClient) LLMClient {
		return &hooked{next: next}
	}
}

type hooked struct{ next LLMClient }

func (h *hooked) Name() string { return h.next.Name() }
func (h *hooked) Close() error { return h.next.Close() }

func (h *hooked) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	hook := HookFrom(ctx)
	if hook != nil {
		hook.Before(ctx, PhaseFrom(ctx), prompt, input)
	}
	raw, err := h.next.GenerateJSON(ctx, prompt, input)
	if hook != nil {
		hook.After(ctx, PhaseFrom(ctx), raw, err)
	}
	return raw, err
}

func (h *hooked) Complete(ctx context.Context, prompt string, input any) (string, error) {
	hook := HookFrom(ctx)
	if hook != nil {
		hook.Before(ctx, PhaseFrom(ctx), prompt, input)
	}
	out, err := h.next.Complete(ctx, prompt, input)
	if hook != nil {
		raw, _ := json.Marshal(out)
		hook.After(ctx, PhaseFrom(ctx), raw, err)
	}
	return out, err
}
