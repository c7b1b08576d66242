package pipeline

import (
	"sync"

	"github.com/romanzzaa/crossfeed/internal/model"
)

// RateLimiter is Stage 0 of the pipeline: a guard in front of the
// historical funding-settlement feed. It counts how many individual
// funding_settlement observations from Binance have been admitted and
// stops admitting more once a configured limit is reached, until reset.
// It has no notion of a batch: every observation counts once, so a
// single fetch cycle with more rows than the limit is cut short. This
// protects the rest of the pipeline from a large historical backfill
// flooding downstream stages; live ticker/mark-price/funding-rate
// traffic is never limited here.
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	count     int
}

// NewRateLimiter builds a limiter that admits at most limit
// funding_settlement observations before blocking.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{limit: limit}
}

// Allow reports whether obs should be admitted into Stage 1. Only
// Binance funding_settlement observations are counted against the
// limit; everything else always passes.
func (r *RateLimiter) Allow(obs model.Observation) bool {
	if obs.Exchange != model.ExchangeBinance || obs.DataType != model.DataTypeFundingSettlement {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count >= r.limit {
		return false
	}
	r.count++
	return true
}

// ResetLimit zeroes the admitted count, letting up to limit more
// observations through.
func (r *RateLimiter) ResetLimit() {
	r.mu.Lock()
	r.count = 0
	r.mu.Unlock()
}

// UpdateLimit changes the limit for subsequent Allow calls.
func (r *RateLimiter) UpdateLimit(limit int) {
	r.mu.Lock()
	r.limit = limit
	r.mu.Unlock()
}
