package llm

import (
	"context"
	"errors"
	"math"

	"golang.org/x/time/rate"
)

// rateLimitedLLM paces completions with a token bucket shared by every
// generation task and the judge.
type rateLimitedLLM struct {
	next     CoreLLM
	provider string
	limiter  *rate.Limiter
}

// RateLimitMiddleware paces completions to rps requests per second with the
// given burst. A non-positive rps disables pacing and a burst below one is
// raised to one. A request whose context ends while it queues fails with a
// ProviderError of type ErrorTypeCanceled or ErrorTypeTimeout and never
// reaches the provider.
func RateLimitMiddleware(provider string, rps float64, burst int) Middleware {
	if rps <= 0 {
		return func(next CoreLLM) CoreLLM { return next }
	}

	limit := rate.Limit(rps)
	if math.IsInf(rps, 1) {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, max(burst, 1))

	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{next: next, provider: provider, limiter: limiter}
	}
}

// DoRequest waits for a token and then forwards the request.
func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		errType := ErrorTypeTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			errType = ErrorTypeCanceled
		}
		return "", 0, 0, NewProviderError(r.provider, errType, 0, "waiting for a rate limit slot", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (r *rateLimitedLLM) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *rateLimitedLLM) SetModel(m string) { r.next.SetModel(m) }
