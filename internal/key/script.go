// internal/key/script.go
package key

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ColonelBlimp/keydecoder/internal/cw"
)

var (
	ErrInvalidWPM  = errors.New("script speed must be between 1 and 100 wpm")
	ErrEmptyScript = errors.New("script text has no letters")
	ErrUnencodable = errors.New("character has no morse code")
)

// Ideal keying in dot units.
const (
	maxScriptWPM  = 100
	dashDots      = int(cw.DashDotRatio)
	intraGapDots  = 1
	letterGapDots = 3
	wordGapDots   = 7

	// parisDotSeconds is one dot at 1 WPM.
	parisDotSeconds = 1.2
)

type span struct {
	start, end time.Duration
}

// Script keys a fixed text with ideal timing, as a practice or demo source.
// The timeline starts at the first call to Closed.
type Script struct {
	marks  []span
	dash   time.Duration
	length time.Duration
	now    func() time.Time

	mu    sync.Mutex
	start time.Time
}

// NewScript encodes text (letters and spaces) at wpm using PARIS timing.
func NewScript(text string, wpm int) (*Script, error) {
	if wpm < 1 || wpm > maxScriptWPM {
		return nil, ErrInvalidWPM
	}
	dot := time.Duration(parisDotSeconds / float64(wpm) * float64(time.Second))

	var (
		marks   []span
		at      time.Duration
		gapDots int
	)
	for _, r := range strings.ToUpper(text) {
		if unicode.IsSpace(r) {
			if len(marks) > 0 {
				gapDots = wordGapDots
			}
			continue
		}
		code, ok := cw.Code(r)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnencodable, r)
		}
		if len(marks) > 0 {
			at += time.Duration(max(gapDots, letterGapDots)) * dot
		}
		for i, m := range code {
			if i > 0 {
				at += time.Duration(intraGapDots) * dot
			}
			length := dot
			if cw.Mark(m) == cw.Dash {
				length = time.Duration(dashDots) * dot
			}
			marks = append(marks, span{start: at, end: at + length})
			at += length
		}
		gapDots = 0
	}
	if len(marks) == 0 {
		return nil, ErrEmptyScript
	}

	return &Script{marks: marks, dash: time.Duration(dashDots) * dot, length: at, now: time.Now}, nil
}

// Closed reports the key state at the current point of the timeline.
func (s *Script) Closed() bool {
	s.mu.Lock()
	if s.start.IsZero() {
		s.start = s.now()
	}
	at := s.now().Sub(s.start)
	s.mu.Unlock()
	return s.ClosedAt(at)
}

// ClosedAt reports the key state at offset at from the start of the text.
func (s *Script) ClosedAt(at time.Duration) bool {
	i := sort.Search(len(s.marks), func(i int) bool { return s.marks[i].end > at })
	return i < len(s.marks) && s.marks[i].start <= at
}

// Dash is the keyed dash length.
func (s *Script) Dash() time.Duration {
	return s.dash
}

// Length is the offset of the final release.
func (s *Script) Length() time.Duration {
	return s.length
}

// Finished reports whether the whole text has been keyed.
func (s *Script) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.start.IsZero() && s.now().Sub(s.start) >= s.length
}
