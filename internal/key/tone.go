// internal/key/tone.go
package key

// ToneDetector reports whether a keyed tone is present. dsp.Detector satisfies it.
type ToneDetector interface {
	ToneOn() bool
}

// Tone reads the key from an audio tone: closed while the tone is present.
type Tone struct {
	det ToneDetector
}

// NewTone wraps a tone detector as a key source.
func NewTone(det ToneDetector) *Tone {
	return &Tone{det: det}
}

func (t *Tone) Closed() bool {
	return t.det.ToneOn()
}
