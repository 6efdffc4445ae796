// internal/display/sink.go
package display

import (
	"io"
	"sync"

	"github.com/ColonelBlimp/keydecoder/internal/cw"
)

// Sink consumes decoded output. Emit runs on the decoder goroutine and must not block for long.
type Sink interface {
	Emit(out cw.DecodedOutput)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(out cw.DecodedOutput)

func (f SinkFunc) Emit(out cw.DecodedOutput) { f(out) }

// Fanout delivers each output to every sink in order. Nil entries are skipped.
type Fanout []Sink

func (f Fanout) Emit(out cw.DecodedOutput) {
	for _, s := range f {
		if s != nil {
			s.Emit(out)
		}
	}
}

// Callback returns f as a decoder callback.
func (f Fanout) Callback() cw.DecodedCallback {
	return f.Emit
}

// Console streams decoded text to a writer like a serial console.
type Console struct {
	mu          sync.Mutex
	w           io.Writer
	linePerWord bool
	err         error
}

// NewConsole writes to w. With linePerWord, word separators become newlines.
func NewConsole(w io.Writer, linePerWord bool) *Console {
	return &Console{w: w, linePerWord: linePerWord}
}

func (c *Console) Emit(out cw.DecodedOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}

	text := out.Text
	if out.IsWordSpace && c.linePerWord {
		text = "\n"
	}
	_, c.err = io.WriteString(c.w, text)
}

// Err returns the first write error. Output stops after it.
func (c *Console) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
