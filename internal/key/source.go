// internal/key/source.go
// Package key provides contact-state sources for the decoder loop.
package key

// Source reports whether the key contact is currently closed.
// Closed is polled from the decoder loop and must not block.
type Source interface {
	Closed() bool
}

// Func adapts a plain function to a Source.
type Func func() bool

func (f Func) Closed() bool { return f() }
