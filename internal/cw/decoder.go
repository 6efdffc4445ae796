// internal/cw/decoder.go
package cw

import (
	"context"
	"sync"
	"time"

	"github.com/ColonelBlimp/keydecoder/internal/logger"
)

// DecoderConfig holds configuration for a decoding session.
// All adjustable values come from the application config file.
type DecoderConfig struct {
	// InitialDashMs is the starting dash estimate (from config: initial_dash_ms)
	InitialDashMs float64
	// DebounceMs drops closures at or below this length (from config: debounce_ms)
	DebounceMs int64
	// IdleFactor is the silence, in dashes, that flushes a pending symbol (from config: idle_factor)
	IdleFactor float64
	// MinDashMs and MaxDashMs bound the adaptive dash, 0 disables a bound (from config: min_dash_ms, max_dash_ms)
	MinDashMs float64
	MaxDashMs float64
}

// DefaultDecoderConfig returns the reference timing.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		InitialDashMs: DefaultInitialDashMs,
		DebounceMs:    DefaultDebounceMs,
		IdleFactor:    DefaultIdleFactor,
		MinDashMs:     DefaultMinDashMs,
		MaxDashMs:     DefaultMaxDashMs,
	}
}

// DecodedCallback is called for every decoded letter, raw sequence and word separator.
// Must be non-blocking and fast.
type DecodedCallback func(output DecodedOutput)

// DecodedOutput represents decoded text.
type DecodedOutput struct {
	// Text is a letter, the raw mark sequence when unknown, or WordSeparator
	Text string
	// Known is false when Text is an undecodable raw sequence
	Known bool
	// IsWordSpace is true if this represents a word boundary
	IsWordSpace bool
	// At is the session offset of the event that produced the output
	At time.Duration
	// DashMs is the dash estimate at time of decode
	DashMs float64
	// WPM is the estimated speed at time of decode
	WPM int
}

// Decoder is one decoding session. Tick is expected from a single loop goroutine;
// the mutex lets other goroutines read the timing while it runs.
type Decoder struct {
	config DecoderConfig
	mu     sync.Mutex

	timing TimingUnit
	symbol []byte

	// Edge tracking
	prevClosed   bool
	closeStart   time.Duration
	releaseStart time.Duration

	callbackPtr *DecodedCallback
	log         logger.Logger
}

// NewDecoder creates a new session with the given configuration.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	if cfg.MinDashMs < 0 || cfg.MaxDashMs < 0 || (cfg.MaxDashMs > 0 && cfg.MinDashMs > cfg.MaxDashMs) {
		return nil, ErrInvalidDashBounds
	}
	if cfg.InitialDashMs <= 0 ||
		(cfg.MinDashMs > 0 && cfg.InitialDashMs < cfg.MinDashMs) ||
		(cfg.MaxDashMs > 0 && cfg.InitialDashMs > cfg.MaxDashMs) {
		return nil, ErrInvalidInitialDash
	}
	if cfg.DebounceMs < 0 {
		return nil, ErrInvalidDebounce
	}
	if cfg.IdleFactor <= WordGapFactor {
		return nil, ErrInvalidIdleFactor
	}

	return &Decoder{
		config: cfg,
		timing: NewTimingUnit(cfg.InitialDashMs, cfg.MinDashMs, cfg.MaxDashMs),
		symbol: make([]byte, 0, 8),
		log:    logger.Named("cw"),
	}, nil
}

// SetCallback sets the callback for decoded output.
func (d *Decoder) SetCallback(cb DecodedCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb == nil {
		d.callbackPtr = nil
	} else {
		d.callbackPtr = &cb
	}
}

// SetLogger replaces the session logger.
func (d *Decoder) SetLogger(l logger.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l == nil {
		l = logger.Nop()
	}
	d.log = l
}

// Tick samples the contact once. at is the monotonic offset since the session started.
// It returns closed so the caller can drive the key indicators.
func (d *Decoder) Tick(at time.Duration, closed bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if closed != d.prevClosed {
		if closed {
			d.closeStart = at
			d.classifyGap(at, at-d.releaseStart)
		} else {
			d.releaseStart = at
			d.classifyMark(at, at-d.closeStart)
		}
	}

	// Trailing silence: flush without waiting for the next key press.
	if toMs(at-d.releaseStart) > d.timing.Dash()*d.config.IdleFactor {
		d.classifyGap(at, at-d.releaseStart)
	}

	d.prevClosed = closed
	return closed
}

// ClassifyMark classifies one closure, appends it to the pending symbol and adapts the timing.
// ok is false when the closure was dropped as contact bounce.
func (d *Decoder) ClassifyMark(closure time.Duration) (mark Mark, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifyMark(0, closure)
}

// ClassifyGap evaluates one open interval against the letter and word boundaries.
func (d *Decoder) ClassifyGap(gap time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classifyGap(0, gap)
}

// Flush decodes the pending symbol, if any.
func (d *Decoder) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.symbol) > 0 {
		d.flush(0)
	}
}

func (d *Decoder) classifyMark(at, closure time.Duration) (Mark, bool) {
	ms := closure.Milliseconds()
	if ms <= d.config.DebounceMs {
		return 0, false
	}

	durationMs := float64(ms)
	dash := d.timing.Dash()
	dot := d.timing.Dot()

	var mark Mark
	switch {
	case durationMs <= dot:
		mark = Dot
	case durationMs > dash:
		mark = Dash
	case durationMs > (dash+dot)/DashSplitDivisor:
		mark = Dash
	default:
		mark = Dot
	}

	d.timing.Track(mark, durationMs)
	d.symbol = append(d.symbol, byte(mark))

	d.log.Debug(context.Background(), "mark classified",
		logger.String("mark", mark.String()),
		logger.Int64("duration_ms", ms),
		logger.Float64("dash_before_ms", dash),
		logger.Float64("dash_after_ms", d.timing.Dash()),
		logger.Int64("at_ms", at.Milliseconds()))

	return mark, true
}

// classifyGap runs the letter and word checks independently: a word gap flushes and then
// also emits the separator.
func (d *Decoder) classifyGap(at, gap time.Duration) {
	if len(d.symbol) == 0 {
		return
	}

	gapMs := toMs(gap)
	dash := d.timing.Dash()

	if gapMs > dash-dash/LetterGapDivisor {
		d.flush(at)
	}
	if gapMs > dash*WordGapFactor {
		d.flush(at)
		d.emit(DecodedOutput{Text: WordSeparator, Known: true, IsWordSpace: true, At: at})
	}
}

// flush decodes and clears the pending symbol. A second call on an empty symbol does nothing.
func (d *Decoder) flush(at time.Duration) {
	if len(d.symbol) == 0 {
		return
	}
	code := string(d.symbol)
	d.symbol = d.symbol[:0]

	text, known := Decode(code)
	if !known {
		d.log.Debug(context.Background(), "unknown sequence", logger.String("code", code))
	}
	d.emit(DecodedOutput{Text: text, Known: known, At: at})
}

func (d *Decoder) emit(out DecodedOutput) {
	out.DashMs = d.timing.Dash()
	out.WPM = d.timing.WPM()
	if d.callbackPtr != nil {
		(*d.callbackPtr)(out)
	}
}

// Dash returns the current dash estimate in milliseconds.
func (d *Decoder) Dash() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timing.Dash()
}

// Dot returns the current dot estimate in milliseconds.
func (d *Decoder) Dot() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timing.Dot()
}

// CurrentWPM returns the estimated speed.
func (d *Decoder) CurrentWPM() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timing.WPM()
}

// Pending returns the marks keyed since the last flush.
func (d *Decoder) Pending() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.symbol)
}

// Reset clears the pending symbol, the edge state and the timing.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timing = NewTimingUnit(d.config.InitialDashMs, d.config.MinDashMs, d.config.MaxDashMs)
	d.symbol = d.symbol[:0]
	d.prevClosed = false
	d.closeStart = 0
	d.releaseStart = 0
}

func toMs(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

