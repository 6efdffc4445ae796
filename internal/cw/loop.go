// internal/cw/loop.go
package cw

import (
	"context"
	"time"
)

// KeySource reports the contact state. It is sampled once per tick.
type KeySource interface {
	Closed() bool
}

// Indicator receives the key-down level on every tick (tone, lamp).
type Indicator interface {
	SetActive(active bool)
}

// IndicatorFunc adapts a function to Indicator.
type IndicatorFunc func(active bool)

func (f IndicatorFunc) SetActive(active bool) { f(active) }

// MultiIndicator drives several indicators with the same signal.
type MultiIndicator []Indicator

func (m MultiIndicator) SetActive(active bool) {
	for _, ind := range m {
		if ind != nil {
			ind.SetActive(active)
		}
	}
}

// Run polls src every interval and feeds the decoder until ctx is cancelled.
// The indicator, if any, is driven with the key level on each tick and released on exit.
func Run(ctx context.Context, dec *Decoder, src KeySource, ind Indicator, interval time.Duration) error {
	if src == nil {
		return ErrNilSource
	}
	if interval <= 0 {
		return ErrInvalidPollInterval
	}
	if ind == nil {
		ind = MultiIndicator(nil)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			ind.SetActive(false)
			return ctx.Err()
		case <-ticker.C:
			ind.SetActive(dec.Tick(time.Since(start), src.Closed()))
		}
	}
}
