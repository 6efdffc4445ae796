// internal/audio/capture.go
package audio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// Config selects the capture device. Values come from device_index,
// sample_rate and buffer_size.
type Config struct {
	DeviceIndex int // -1 for the default device
	SampleRate  uint32
	Channels    uint32
	BufferSize  uint32 // frames per callback
}

func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  48000,
		Channels:    1,
		BufferSize:  512,
	}
}

// SampleCallback receives each captured buffer on the audio thread. The slice
// aliases the device buffer, so copy it to keep it. It must not block.
type SampleCallback func(samples []float32)

// Capture feeds an input device to a SampleCallback. It is the audio end of a
// keyed-tone key source.
type Capture struct {
	cfg Config

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running bool

	closed   atomic.Bool
	consumer atomic.Pointer[SampleCallback]
}

func New(cfg Config) *Capture {
	return &Capture{cfg: cfg}
}

// SetCallback installs the consumer; nil removes it. It may be changed while running.
func (c *Capture) SetCallback(cb SampleCallback) {
	if cb == nil {
		c.consumer.Store(nil)
		return
	}
	c.consumer.Store(&cb)
}

// Init opens the audio backend.
func (c *Capture) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	ctx, err := initContext()
	if err != nil {
		return err
	}
	c.ctx = ctx
	return nil
}

// Start opens the device and captures until Stop, Close or the end of ctx.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.running:
		return ErrAlreadyRunning
	case c.ctx == nil:
		return ErrNotInitialized
	}

	device, err := startDevice(c.ctx, stream{
		kind:     KindCapture,
		index:    c.cfg.DeviceIndex,
		rate:     c.cfg.SampleRate,
		channels: c.cfg.Channels,
		period:   c.cfg.BufferSize,
	}, c.deliver)
	if err != nil {
		return err
	}
	c.device, c.running = device, true

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()
	return nil
}

func (c *Capture) deliver(_, input []byte, _ uint32) {
	if c.closed.Load() {
		return
	}
	cb := c.consumer.Load()
	if cb == nil {
		return
	}
	if samples := bytesAsFloat32(input); len(samples) > 0 {
		(*cb)(samples)
	}
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}
	c.release()
	return nil
}

func (c *Capture) release() {
	stopDevice(c.device)
	c.device, c.running = nil, false
}

// Close stops capture and frees the backend. Safe to call more than once.
func (c *Capture) Close() error {
	c.closed.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.release()
	ctx := c.ctx
	c.ctx = nil
	return freeContext(ctx)
}

func (c *Capture) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
