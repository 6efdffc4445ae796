// internal/audio/device.go
// Package audio wraps malgo for key-tone capture and sidetone playback.
package audio

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("audio device not initialized")
	ErrAlreadyRunning = errors.New("audio device already running")
	ErrNotRunning     = errors.New("audio device not running")
	ErrClosed         = errors.New("audio device closed")
)

// Kind selects capture or playback devices.
type Kind int

const (
	KindCapture Kind = iota
	KindPlayback
)

func (k Kind) String() string {
	if k == KindPlayback {
		return "playback"
	}
	return "capture"
}

func (k Kind) deviceType() malgo.DeviceType {
	if k == KindPlayback {
		return malgo.Playback
	}
	return malgo.Capture
}

// Device describes one enumerated audio endpoint.
type Device struct {
	Index   int
	Name    string
	Default bool
}

// ListDevices enumerates devices of the given kind using a short-lived context.
func ListDevices(kind Kind) ([]Device, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(kind.deviceType())
	if err != nil {
		return nil, fmt.Errorf("enumerate %s devices: %w", kind, err)
	}

	devices := make([]Device, len(infos))
	for i := range infos {
		devices[i] = Device{
			Index:   i,
			Name:    infos[i].Name(),
			Default: infos[i].IsDefault != 0,
		}
	}
	return devices, nil
}

func initContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return ctx, nil
}

func freeContext(ctx *malgo.AllocatedContext) error {
	if ctx == nil {
		return nil
	}
	err := ctx.Uninit()
	ctx.Free()
	if err != nil {
		return fmt.Errorf("uninit context: %w", err)
	}
	return nil
}

// deviceID resolves a device index; -1 selects the backend default (nil).
func deviceID(ctx *malgo.AllocatedContext, kind Kind, index int) (unsafe.Pointer, error) {
	if index < 0 {
		return nil, nil
	}
	infos, err := ctx.Devices(kind.deviceType())
	if err != nil {
		return nil, fmt.Errorf("enumerate %s devices: %w", kind, err)
	}
	if index >= len(infos) {
		return nil, fmt.Errorf("%s device index %d out of range (have %d devices)", kind, index, len(infos))
	}
	return infos[index].ID.Pointer(), nil
}

// stream describes an F32 device to open on an existing context.
type stream struct {
	kind     Kind
	index    int
	rate     uint32
	channels uint32
	period   uint32 // frames per callback, 0 for the backend default
}

// startDevice initializes and starts the stream, calling data from the audio thread.
func startDevice(ctx *malgo.AllocatedContext, st stream, data malgo.DataProc) (*malgo.Device, error) {
	id, err := deviceID(ctx, st.kind, st.index)
	if err != nil {
		return nil, err
	}

	dc := malgo.DefaultDeviceConfig(st.kind.deviceType())
	dc.SampleRate = st.rate
	dc.PeriodSizeInFrames = st.period
	sub := &dc.Capture
	if st.kind == KindPlayback {
		sub = &dc.Playback
	}
	sub.Format = malgo.FormatF32
	sub.Channels = st.channels
	sub.DeviceID = id

	device, err := malgo.InitDevice(ctx.Context, dc, malgo.DeviceCallbacks{Data: data})
	if err != nil {
		return nil, fmt.Errorf("init %s device: %w", st.kind, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start %s device: %w", st.kind, err)
	}
	return device, nil
}

func stopDevice(device *malgo.Device) {
	if device == nil {
		return
	}
	_ = device.Stop()
	device.Uninit()
}

// bytesAsFloat32 reinterprets an F32 device buffer without copying.
// The result aliases data and is only valid for the duration of the callback.
func bytesAsFloat32(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/4)
}
