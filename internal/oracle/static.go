// Package oracle provides price readings for oracle-path market resolution.
package oracle

import (
	"context"
	"fmt"
	"sync"

	"predictpool/internal/market"
	"predictpool/pkg/types"
)

// Static serves readings that were pushed into it with Set. Operators use it
// to resolve from a reading taken out of band.
type Static struct {
	mu       sync.RWMutex
	readings map[string]types.PriceReading
}

// NewStatic returns an empty price source.
func NewStatic() *Static {
	return &Static{readings: make(map[string]types.PriceReading)}
}

// Set records the latest reading for feed.
func (s *Static) Set(feed string, r types.PriceReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[feed] = r
}

// Read returns the latest reading for feed.
func (s *Static) Read(ctx context.Context, feed string) (types.PriceReading, error) {
	if err := ctx.Err(); err != nil {
		return types.PriceReading{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.readings[feed]
	if !ok {
		return types.PriceReading{}, fmt.Errorf("feed %q: %w", feed, market.ErrPriceUnavailable)
	}
	return r, nil
}
