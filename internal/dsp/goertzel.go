// internal/dsp/goertzel.go
// Package dsp turns keyed audio into a key-down level.
package dsp

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidBlockSize    = errors.New("block size must be positive")
	ErrInvalidSampleRate   = errors.New("sample rate must be positive")
	ErrInvalidFrequency    = errors.New("tone frequency must lie between 0 Hz and the Nyquist frequency")
	ErrInsufficientSamples = errors.New("fewer samples than one block")
)

// GoertzelConfig selects the tone bin. Values come from tone_frequency,
// sample_rate and block_size.
type GoertzelConfig struct {
	TargetFrequency float64
	SampleRate      float64
	BlockSize       int
}

// Validate reports every invalid field.
func (c GoertzelConfig) Validate() error {
	var errs []error
	if c.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidBlockSize, c.BlockSize))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: %g", ErrInvalidSampleRate, c.SampleRate))
	} else if c.TargetFrequency <= 0 || c.TargetFrequency >= c.SampleRate/2 {
		errs = append(errs, fmt.Errorf("%w: %g Hz at %g Hz", ErrInvalidFrequency, c.TargetFrequency, c.SampleRate))
	}
	return errors.Join(errs...)
}

// Goertzel measures the level of the keyed tone, one block at a time.
type Goertzel struct {
	cfg   GoertzelConfig
	coeff float64 // 2cos(w)
	scale float64 // 2/N, so a full-scale sine reads about 1.0
}

func NewGoertzel(cfg GoertzelConfig) (*Goertzel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := 2 * math.Pi * cfg.TargetFrequency / cfg.SampleRate
	return &Goertzel{
		cfg:   cfg,
		coeff: 2 * math.Cos(w),
		scale: 2 / float64(cfg.BlockSize),
	}, nil
}

// Magnitude returns the tone level of the first BlockSize samples.
// Samples past the block are ignored.
func (g *Goertzel) Magnitude(samples []float32) (float64, error) {
	if len(samples) < g.cfg.BlockSize {
		return 0, fmt.Errorf("%w: %d < %d", ErrInsufficientSamples, len(samples), g.cfg.BlockSize)
	}
	return g.level(samples[:g.cfg.BlockSize]), nil
}

// level runs the recurrence over block, which must be exactly one block long.
func (g *Goertzel) level(block []float32) float64 {
	var prev, prev2 float64
	for _, x := range block {
		prev, prev2 = float64(x)+g.coeff*prev-prev2, prev
	}
	power := prev*prev + prev2*prev2 - g.coeff*prev*prev2
	return math.Sqrt(max(power, 0)) * g.scale
}

func (g *Goertzel) BlockSize() int { return g.cfg.BlockSize }

func (g *Goertzel) Config() GoertzelConfig { return g.cfg }
