// internal/cw/morse.go
// Package cw decodes a hand-keyed contact into text.
package cw

import "errors"

// Timing ratios used by the classifiers. All thresholds derive from the dash estimate.
const (
	// DashDotRatio is the ratio of dash duration to dot duration.
	DashDotRatio = 3.0
	// DashSplitDivisor places the dot/dash split for closures between one dot and one dash:
	// a closure longer than (dash + dot) / DashSplitDivisor is a dash.
	DashSplitDivisor = 1.9
	// LetterGapDivisor sets the letter boundary just under one dash: dash - dash/LetterGapDivisor.
	LetterGapDivisor = 40.0
	// WordGapFactor is the gap, in dashes, beyond which a word separator is emitted.
	WordGapFactor = 2.0

	// DefaultInitialDashMs is the dash estimate a session starts with.
	DefaultInitialDashMs = 200.0
	// DefaultDebounceMs is the longest closure treated as contact bounce.
	DefaultDebounceMs = 2
	// DefaultIdleFactor is the silence, in dashes, after which a pending symbol is flushed without a key press.
	DefaultIdleFactor = 10.0
	// DefaultMinDashMs and DefaultMaxDashMs bound the adaptive dash estimate.
	DefaultMinDashMs = 20.0
	DefaultMaxDashMs = 2000.0

	// MillisecondsPerMinute is used for WPM calculations.
	MillisecondsPerMinute = 60000.0
	// DotsPerWord is the length of "PARIS" in dot units.
	DotsPerWord = 50.0

	// WordSeparator is emitted at word boundaries.
	WordSeparator = " "
)

var (
	// ErrInvalidInitialDash indicates the starting dash estimate must be positive and inside the bounds
	ErrInvalidInitialDash = errors.New("initial dash duration must be positive and within the dash bounds")
	// ErrInvalidDebounce indicates the debounce limit must be non-negative
	ErrInvalidDebounce = errors.New("debounce must be non-negative")
	// ErrInvalidIdleFactor indicates the idle timeout factor must exceed the word gap factor
	ErrInvalidIdleFactor = errors.New("idle factor must be greater than the word gap factor")
	// ErrInvalidDashBounds indicates min/max dash bounds are inconsistent
	ErrInvalidDashBounds = errors.New("dash bounds must be non-negative and min must not exceed max")
	// ErrInvalidPollInterval indicates the loop interval must be positive
	ErrInvalidPollInterval = errors.New("poll interval must be positive")
	// ErrNilSource indicates Run needs a key source
	ErrNilSource = errors.New("key source is required")
)

// Mark is one element of a symbol.
type Mark byte

const (
	Dot  Mark = '.'
	Dash Mark = '-'
)

func (m Mark) String() string {
	return string(m)
}

// alphabet lists the codes in letter order. Lookups go through morseTable.
var alphabet = [26]string{
	".-",   // A
	"-...", // B
	"-.-.", // C
	"-..",  // D
	".",    // E
	"..-.", // F
	"--.",  // G
	"....", // H
	"..",   // I
	".---", // J
	"-.-",  // K
	".-..", // L
	"--",   // M
	"-.",   // N
	"---",  // O
	".--.", // P
	"--.-", // Q
	".-.",  // R
	"...",  // S
	"-",    // T
	"..-",  // U
	"...-", // V
	".--",  // W
	"-..-", // X
	"-.--", // Y
	"--..", // Z
}

var morseTable = buildTable()

func buildTable() map[string]rune {
	table := make(map[string]rune, len(alphabet))
	for i, code := range alphabet {
		table[code] = rune('A' + i)
	}
	return table
}

// Lookup returns the letter for an exact mark sequence.
func Lookup(code string) (rune, bool) {
	r, ok := morseTable[code]
	return r, ok
}

// Decode returns the letter for code, or code itself when the table has no entry.
func Decode(code string) (text string, known bool) {
	if r, ok := Lookup(code); ok {
		return string(r), true
	}
	return code, false
}

// Code returns the mark sequence for an upper or lower case letter.
func Code(letter rune) (string, bool) {
	if letter >= 'a' && letter <= 'z' {
		letter -= 'a' - 'A'
	}
	if letter < 'A' || letter > 'Z' {
		return "", false
	}
	return alphabet[letter-'A'], true
}

// Letters returns the alphabet in table order as (letter, code) pairs.
func Letters() [][2]string {
	out := make([][2]string, len(alphabet))
	for i, code := range alphabet {
		out[i] = [2]string{string(rune('A' + i)), code}
	}
	return out
}
