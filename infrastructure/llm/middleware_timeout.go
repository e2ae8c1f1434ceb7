package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errAnswerDeadline is the cancel cause attached to a request context when
// the per-answer bound, rather than the caller, ends the request.
var errAnswerDeadline = errors.New("answer deadline reached")

// timeoutLLM bounds each completion with its own deadline.
type timeoutLLM struct {
	next     CoreLLM
	provider string
	timeout  time.Duration
}

// TimeoutMiddleware gives every completion at most timeout to finish. When
// the bound, and not the caller's context, ends a request the failure is
// reported as a ProviderError of type ErrorTypeTimeout naming the model. A
// non-positive timeout disables the middleware.
func TimeoutMiddleware(provider string, timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		if timeout <= 0 {
			return next
		}
		return &timeoutLLM{next: next, provider: provider, timeout: timeout}
	}
}

// DoRequest executes the request under the per-answer deadline.
func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	reqCtx, cancel := context.WithTimeoutCause(ctx, t.timeout, errAnswerDeadline)
	defer cancel()

	text, in, out, err := t.next.DoRequest(reqCtx, prompt, opts)
	if err == nil || ctx.Err() != nil || !errors.Is(context.Cause(reqCtx), errAnswerDeadline) {
		return text, in, out, err
	}

	if !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	model := ExtractOptionalString(opts, OptModel, t.next.GetModel(), IsNonEmptyString)
	return "", in, out, NewProviderError(
		t.provider,
		ErrorTypeTimeout,
		0,
		fmt.Sprintf("%s gave no answer within %s", model, t.timeout),
		err,
	)
}

// GetModel returns the model name from the wrapped implementation.
func (t *timeoutLLM) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *timeoutLLM) SetModel(m string) { t.next.SetModel(m) }
