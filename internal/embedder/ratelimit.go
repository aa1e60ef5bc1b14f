package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/caselight/cqa-go/internal/rag"
)

// RateLimited wraps a rag.Embedder with a token-bucket limiter so bulk
// ingestion cannot exhaust upstream API quotas. Each Embed call, regardless
// of batch size, consumes one token.
type RateLimited struct {
	inner   rag.Embedder
	limiter *rate.Limiter
}

// WithRateLimit decorates e with a limiter allowing rps calls per second in
// bursts of up to burst. rps <= 0 returns e unchanged.
func WithRateLimit(e rag.Embedder, rps float64, burst int) rag.Embedder {
	if rps <= 0 {
		return e
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		inner:   e,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed waits for limiter headroom, then delegates. A cancelled context
// aborts the wait.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedder: rate limit wait: %w", err)
	}
	return r.inner.Embed(ctx, texts)
}
