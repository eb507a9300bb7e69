package modelprovider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/xonecas/symbrt/event"
	"github.com/xonecas/symbrt/message"
)

// RateLimited wraps a Provider with a process-local requests-per-minute
// token bucket, so a caller fanning out many concurrent agent runs
// against one provider config can't burst past a configured call rate.
// RetryPolicy already reacts to a provider's own rate-limit signals;
// this only bounds the outbound call rate.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited returns p wrapped with a limiter allowing up to rpm calls
// per minute, with burst equal to rpm (a caller may use the whole minute's
// budget in one burst after an idle period). rpm <= 0 disables limiting.
func NewRateLimited(p Provider, rpm int) Provider {
	if rpm <= 0 {
		return p
	}
	return &RateLimited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}
}

// Stream waits for limiter capacity before delegating to the wrapped
// Provider.
func (r *RateLimited) Stream(ctx context.Context, model Model, convo message.Context, opts Options) (event.Stream, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.Stream(ctx, model, convo, opts)
}

// Complete waits for limiter capacity before delegating to the wrapped
// Provider.
func (r *RateLimited) Complete(ctx context.Context, model Model, convo message.Context, opts Options) (*message.AssistantMessage, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.Complete(ctx, model, convo, opts)
}
