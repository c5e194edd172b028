package backoff

import (
	"golang.org/x/time/rate"

	"github.com/BaSui01/bulkflow/bulk"
)

// RateLimitPolicy applies when the admission token bucket is empty.
type RateLimitPolicy struct {
	limiter *rate.Limiter
}

// NewRateLimitPolicy admits perSecond batches on average with the given
// burst.
func NewRateLimitPolicy(perSecond float64, burst int) *RateLimitPolicy {
	return &RateLimitPolicy{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// ShouldApply consumes one token; it applies when none is available.
func (p *RateLimitPolicy) ShouldApply(*bulk.Batch) bool {
	return !p.limiter.Allow()
}

// Register implements Policy.
func (p *RateLimitPolicy) Register(*bulk.Batch) {}

// Deregister implements Policy.
func (p *RateLimitPolicy) Deregister(*bulk.Batch) {}
