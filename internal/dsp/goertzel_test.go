// internal/dsp/goertzel_test.go
package dsp

import (
	"errors"
	"math"
	"testing"
)

// 240 samples at 48 kHz hold exactly three cycles of 600 Hz.
const (
	testSampleRate    = 48000.0
	testToneFrequency = 600.0
	testBlockSize     = 240
	testTolerance     = 0.02
)

func sine(frequency float64, n int, amplitude float32) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude * float32(math.Sin(2*math.Pi*frequency*float64(i)/testSampleRate))
	}
	return samples
}

func newTestGoertzel(t testing.TB) *Goertzel {
	t.Helper()
	g, err := NewGoertzel(GoertzelConfig{
		TargetFrequency: testToneFrequency,
		SampleRate:      testSampleRate,
		BlockSize:       testBlockSize,
	})
	if err != nil {
		t.Fatalf("NewGoertzel() error = %v", err)
	}
	return g
}

func TestNewGoertzel_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  GoertzelConfig
		want error
	}{
		{"valid", GoertzelConfig{600, 48000, 256}, nil},
		{"zero block", GoertzelConfig{600, 48000, 0}, ErrInvalidBlockSize},
		{"negative block", GoertzelConfig{600, 48000, -1}, ErrInvalidBlockSize},
		{"zero rate", GoertzelConfig{600, 0, 256}, ErrInvalidSampleRate},
		{"zero frequency", GoertzelConfig{0, 48000, 256}, ErrInvalidFrequency},
		{"at nyquist", GoertzelConfig{24000, 48000, 256}, ErrInvalidFrequency},
		{"above nyquist", GoertzelConfig{30000, 48000, 256}, ErrInvalidFrequency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGoertzel(tt.cfg)
			if (tt.want == nil) != (err == nil) || !errors.Is(err, tt.want) {
				t.Fatalf("NewGoertzel() error = %v, want %v", err, tt.want)
			}
			if err == nil && g.Config() != tt.cfg {
				t.Errorf("Config() = %+v, want %+v", g.Config(), tt.cfg)
			}
		})
	}
}

func TestGoertzelConfig_ValidateReportsAll(t *testing.T) {
	err := GoertzelConfig{TargetFrequency: 600, SampleRate: -1, BlockSize: 0}.Validate()
	for _, want := range []error{ErrInvalidBlockSize, ErrInvalidSampleRate} {
		if !errors.Is(err, want) {
			t.Errorf("Validate() = %v, missing %v", err, want)
		}
	}
	if errors.Is(err, ErrInvalidFrequency) {
		t.Error("frequency cannot be judged without a sample rate")
	}
}

func TestGoertzel_Magnitude(t *testing.T) {
	g := newTestGoertzel(t)

	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"full scale tone", sine(testToneFrequency, testBlockSize, 1.0), 1.0},
		{"half scale tone", sine(testToneFrequency, testBlockSize, 0.5), 0.5},
		{"silence", make([]float32, testBlockSize), 0},
		{"other bin", sine(2000, testBlockSize, 1.0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Magnitude(tt.samples)
			if err != nil {
				t.Fatalf("Magnitude() error = %v", err)
			}
			if math.Abs(got-tt.want) > testTolerance {
				t.Errorf("Magnitude() = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestGoertzel_Magnitude_InsufficientSamples(t *testing.T) {
	g := newTestGoertzel(t)
	if _, err := g.Magnitude(make([]float32, testBlockSize-1)); !errors.Is(err, ErrInsufficientSamples) {
		t.Errorf("Magnitude() error = %v, want %v", err, ErrInsufficientSamples)
	}
}

func TestGoertzel_Magnitude_UsesOneBlock(t *testing.T) {
	g := newTestGoertzel(t)
	samples := append(sine(testToneFrequency, testBlockSize, 1.0), make([]float32, testBlockSize)...)

	got, err := g.Magnitude(samples)
	if err != nil {
		t.Fatalf("Magnitude() error = %v", err)
	}
	if math.Abs(got-1.0) > testTolerance {
		t.Errorf("Magnitude() = %.4f, trailing samples should be ignored", got)
	}
}

func TestGoertzel_Magnitude_NoAlloc(t *testing.T) {
	g := newTestGoertzel(t)
	samples := sine(testToneFrequency, testBlockSize, 1.0)

	allocs := testing.AllocsPerRun(100, func() {
		_, _ = g.Magnitude(samples)
	})
	if allocs != 0 {
		t.Errorf("Magnitude() allocs = %v, want 0", allocs)
	}
}

func BenchmarkGoertzel_Magnitude(b *testing.B) {
	g := newTestGoertzel(b)
	samples := sine(testToneFrequency, testBlockSize, 1.0)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Magnitude(samples)
	}
}
