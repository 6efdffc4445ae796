// internal/cw/timing.go
package cw

// TimingUnit is the adaptive dash estimate in milliseconds.
// It moves at most one millisecond per observation.
type TimingUnit struct {
	dashMs float64
	minMs  float64 // 0 = no floor
	maxMs  float64 // 0 = no ceiling
}

// NewTimingUnit returns a unit starting at initialMs, bounded to [minMs, maxMs] where non-zero.
func NewTimingUnit(initialMs, minMs, maxMs float64) TimingUnit {
	return TimingUnit{dashMs: initialMs, minMs: minMs, maxMs: maxMs}
}

// Dash returns the current dash duration.
func (t *TimingUnit) Dash() float64 {
	return t.dashMs
}

// Dot returns the current dot duration.
func (t *TimingUnit) Dot() float64 {
	return t.dashMs / DashDotRatio
}

// WPM returns the PARIS speed implied by the current dot.
func (t *TimingUnit) WPM() int {
	dot := t.Dot()
	if dot <= 0 {
		return 0
	}
	return int(MillisecondsPerMinute/(dot*DotsPerWord) + 0.5)
}

// Track nudges the estimate after a mark of durationMs was classified.
// Dashes are compared against the dash, dots against the dot.
func (t *TimingUnit) Track(mark Mark, durationMs float64) {
	ref := t.Dash
	if mark == Dot {
		ref = t.Dot
	}
	// Sequential checks against the updated reference.
	if durationMs > ref() {
		t.step(1)
	}
	if durationMs < ref() {
		t.step(-1)
	}
}

func (t *TimingUnit) step(delta float64) {
	next := t.dashMs + delta
	if t.minMs > 0 && next < t.minMs {
		next = t.minMs
	}
	if t.maxMs > 0 && next > t.maxMs {
		next = t.maxMs
	}
	t.dashMs = next
}
