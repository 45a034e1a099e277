package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	next    Structurer
	limiter *rate.Limiter
}

// RateLimited paces outbound structuring calls. A nil limiter returns next unchanged.
func RateLimited(next Structurer, limiter *rate.Limiter) Structurer {
	if limiter == nil {
		return next
	}
	return &rateLimited{next: next, limiter: limiter}
}

// NewLimiter builds a limiter of rps requests per second; rps <= 0 disables pacing.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (r *rateLimited) Structure(ctx context.Context, docType, rawText string, kind DocKind) (Payload, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Payload{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Structure(ctx, docType, rawText, kind)
}
