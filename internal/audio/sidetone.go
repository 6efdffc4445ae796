// internal/audio/sidetone.go
package audio

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	ErrInvalidSidetoneFrequency = errors.New("sidetone frequency must be positive and below Nyquist")
	ErrInvalidSidetoneVolume    = errors.New("sidetone volume must be between 0.0 and 1.0")
	ErrInvalidSidetoneRate      = errors.New("sidetone sample rate must be positive")
)

// rampSeconds shapes key edges to avoid clicks.
const rampSeconds = 0.005

// SidetoneConfig holds sidetone playback configuration.
type SidetoneConfig struct {
	DeviceIndex int // -1 for default device
	SampleRate  uint32
	Frequency   float64 // Hz
	Volume      float64 // 0.0-1.0
}

// Sidetone plays a tone while the key is closed.
// SetActive may be called from any goroutine.
type Sidetone struct {
	config SidetoneConfig
	active atomic.Bool

	// oscillator state, owned by the audio thread
	phase     float64
	phaseStep float64
	gain      float64
	gainStep  float64

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// NewSidetone validates cfg and prepares the oscillator.
func NewSidetone(cfg SidetoneConfig) (*Sidetone, error) {
	if cfg.SampleRate == 0 {
		return nil, ErrInvalidSidetoneRate
	}
	rate := float64(cfg.SampleRate)
	if cfg.Frequency <= 0 || cfg.Frequency >= rate/2 {
		return nil, ErrInvalidSidetoneFrequency
	}
	if cfg.Volume < 0 || cfg.Volume > 1 {
		return nil, ErrInvalidSidetoneVolume
	}

	return &Sidetone{
		config:    cfg,
		phaseStep: 2 * math.Pi * cfg.Frequency / rate,
		gainStep:  1 / (rampSeconds * rate),
	}, nil
}

// SetActive keys the tone on or off.
func (s *Sidetone) SetActive(active bool) {
	s.active.Store(active)
}

// Active reports the current key state.
func (s *Sidetone) Active() bool {
	return s.active.Load()
}

// fill writes mono samples for the given key state.
func (s *Sidetone) fill(out []float32, active bool) {
	volume := s.config.Volume
	for i := range out {
		if active {
			s.gain = math.Min(1, s.gain+s.gainStep)
		} else {
			s.gain = math.Max(0, s.gain-s.gainStep)
		}

		if s.gain == 0 {
			out[i] = 0
			s.phase = 0
			continue
		}

		out[i] = float32(volume * s.gain * math.Sin(s.phase))
		s.phase += s.phaseStep
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
}

func (s *Sidetone) onSendFrames(output, _ []byte, _ uint32) {
	s.fill(bytesAsFloat32(output), s.active.Load())
}

// Start opens the playback device.
func (s *Sidetone) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return ErrAlreadyRunning
	}

	ctx, err := initContext()
	if err != nil {
		return err
	}
	device, err := startDevice(ctx, stream{
		kind:     KindPlayback,
		index:    s.config.DeviceIndex,
		rate:     s.config.SampleRate,
		channels: 1,
	}, s.onSendFrames)
	if err != nil {
		_ = freeContext(ctx)
		return err
	}

	s.ctx = ctx
	s.device = device
	return nil
}

// Close stops playback and releases the device.
func (s *Sidetone) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active.Store(false)
	stopDevice(s.device)
	s.device = nil
	ctx := s.ctx
	s.ctx = nil
	return freeContext(ctx)
}
