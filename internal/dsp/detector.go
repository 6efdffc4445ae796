// internal/dsp/detector.go
package dsp

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidThreshold  = errors.New("threshold must be between 0.0 and 1.0")
	ErrInvalidHysteresis = errors.New("hysteresis must be non-negative")
	ErrInvalidOverlap    = errors.New("overlap must be between 0 and 99 percent")
	ErrInvalidAGCDecay   = errors.New("agc decay must be between 0.0 and 1.0")
	ErrInvalidAGCAttack  = errors.New("agc attack must be between 0.0 and 1.0")
	ErrInvalidAGCWarmup  = errors.New("agc warmup blocks must be non-negative")
	ErrGoertzelRequired  = errors.New("tone detector needs a goertzel filter")
)

// minAGCPeak keeps the normalizer away from zero.
const minAGCPeak = 0.001

// ToneEvent reports a confirmed change of the detected key level.
type ToneEvent struct {
	ToneOn    bool
	Timestamp time.Time
	Duration  time.Duration // of the preceding level, zero for the first change
	Magnitude float64
}

// ToneCallback runs on the audio thread and must not block.
type ToneCallback func(event ToneEvent)

// DetectorConfig mirrors the threshold, hysteresis, overlap_pct and agc_* settings.
type DetectorConfig struct {
	Threshold       float64
	Hysteresis      int // blocks needed to confirm a change
	OverlapPct      int
	AGCEnabled      bool
	AGCDecay        float64
	AGCAttack       float64
	AGCWarmupBlocks int
}

// Validate reports every invalid field.
func (c DetectorConfig) Validate() error {
	var errs []error
	check := func(bad bool, sentinel error, v any) {
		if bad {
			errs = append(errs, fmt.Errorf("%w: %v", sentinel, v))
		}
	}
	check(c.Threshold < 0 || c.Threshold > 1, ErrInvalidThreshold, c.Threshold)
	check(c.Hysteresis < 0, ErrInvalidHysteresis, c.Hysteresis)
	check(c.OverlapPct < 0 || c.OverlapPct >= 100, ErrInvalidOverlap, c.OverlapPct)
	check(c.AGCDecay < 0 || c.AGCDecay > 1, ErrInvalidAGCDecay, c.AGCDecay)
	check(c.AGCAttack < 0 || c.AGCAttack > 1, ErrInvalidAGCAttack, c.AGCAttack)
	check(c.AGCWarmupBlocks < 0, ErrInvalidAGCWarmup, c.AGCWarmupBlocks)
	return errors.Join(errs...)
}

// gain is the automatic gain control. The first warmupBlocks blocks only
// calibrate the peak.
type gain struct {
	enabled       bool
	attack, decay float64
	warmupBlocks  int

	peak float64
	seen int
}

// warm consumes level as a calibration block. It returns false once warmup is over.
func (g *gain) warm(level float64) bool {
	if g.seen >= g.warmupBlocks {
		return false
	}
	g.seen++
	if g.enabled && level > minAGCPeak && (g.seen == 1 || level > g.peak) {
		g.peak = level
	}
	return true
}

func (g *gain) normalize(level float64) float64 {
	if !g.enabled {
		return level
	}
	if level > g.peak {
		g.peak += g.attack * (level - g.peak)
	} else {
		g.peak *= g.decay
	}
	g.peak = max(g.peak, minAGCPeak)
	return min(level/g.peak, 1)
}

func (g *gain) reset() {
	g.peak = 1
	g.seen = 0
}

// hysteresis confirms a level after need consecutive blocks agree.
type hysteresis struct {
	need      int
	state     bool
	candidate bool
	count     int
}

// step feeds one block and reports whether the confirmed level flipped.
func (h *hysteresis) step(present bool) bool {
	if present == h.state {
		h.candidate, h.count = h.state, 0
		return false
	}
	if present == h.candidate {
		h.count++
	} else {
		h.candidate, h.count = present, 1
	}
	if h.count < h.need {
		return false
	}
	h.state, h.count = present, 0
	return true
}

// Detector turns audio into a debounced tone-present level, which is the key
// state of a keyed-tone source. Process runs on the audio thread; ToneOn may
// be read from any goroutine.
type Detector struct {
	cfg      DetectorConfig
	goertzel *Goertzel
	hop      int
	pending  []float32

	gain  gain
	level hysteresis

	lastChange time.Time
	now        func() time.Time

	toneOn   atomic.Bool
	callback atomic.Pointer[ToneCallback]
}

func NewDetector(cfg DetectorConfig, goertzel *Goertzel) (*Detector, error) {
	if goertzel == nil {
		return nil, ErrGoertzelRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := goertzel.BlockSize()
	return &Detector{
		cfg:      cfg,
		goertzel: goertzel,
		hop:      n - n*cfg.OverlapPct/100,
		pending:  make([]float32, 0, 2*n),
		gain: gain{
			enabled:      cfg.AGCEnabled,
			attack:       cfg.AGCAttack,
			decay:        cfg.AGCDecay,
			warmupBlocks: cfg.AGCWarmupBlocks,
			peak:         1,
		},
		level: hysteresis{need: cfg.Hysteresis},
		now:   time.Now,
	}, nil
}

// SetCallback installs cb for confirmed transitions; nil removes it.
func (d *Detector) SetCallback(cb ToneCallback) {
	if cb == nil {
		d.callback.Store(nil)
		return
	}
	d.callback.Store(&cb)
}

// Process consumes samples in -1.0..1.0. Leftovers shorter than a block are
// kept for the next call.
func (d *Detector) Process(samples []float32) {
	d.pending = append(d.pending, samples...)

	n := d.goertzel.BlockSize()
	for len(d.pending) >= n {
		d.block(d.pending[:n])
		d.pending = d.pending[:copy(d.pending, d.pending[d.hop:])]
	}
}

func (d *Detector) block(samples []float32) {
	m := d.goertzel.level(samples)
	if d.gain.warm(m) {
		return
	}
	m = d.gain.normalize(m)
	if !d.level.step(m > d.cfg.Threshold) {
		return
	}

	now := d.now()
	var held time.Duration
	if !d.lastChange.IsZero() {
		held = now.Sub(d.lastChange)
	}
	d.lastChange = now
	d.toneOn.Store(d.level.state)

	if cb := d.callback.Load(); cb != nil {
		(*cb)(ToneEvent{ToneOn: d.level.state, Timestamp: now, Duration: held, Magnitude: m})
	}
}

// ToneOn reports whether the keyed tone is present.
func (d *Detector) ToneOn() bool {
	return d.toneOn.Load()
}

func (d *Detector) AGCPeak() float64 {
	return d.gain.peak
}

// Reset returns the detector to its initial state. Not safe while Process runs.
func (d *Detector) Reset() {
	d.pending = d.pending[:0]
	d.gain.reset()
	d.level = hysteresis{need: d.cfg.Hysteresis}
	d.lastChange = time.Time{}
	d.toneOn.Store(false)
}

func (d *Detector) Config() DetectorConfig {
	return d.cfg
}
