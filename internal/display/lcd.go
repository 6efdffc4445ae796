// internal/display/lcd.go
// Package display renders decoded text: a character LCD model, a console stream and a terminal UI.
package display

import (
	"errors"
	"strings"
	"sync"

	"github.com/ColonelBlimp/keydecoder/internal/cw"
	"github.com/mattn/go-runewidth"
)

// ErrInvalidGeometry indicates the LCD needs at least one row and column.
var ErrInvalidGeometry = errors.New("lcd columns and rows must be positive")

const (
	blank = ' '
	// wideTail marks the second cell covered by a double-width rune.
	wideTail = rune(0)
	// substitute replaces runes wider than the whole display.
	substitute = '?'
)

// LCD models a character display with a write cursor. Characters fill each row left to
// right; once every cell is used the next character clears the screen and starts at the origin.
type LCD struct {
	mu    sync.Mutex
	cols  int
	rows  int
	cells [][]rune
	row   int
	col   int
}

// NewLCD creates a blank display of cols x rows cells.
func NewLCD(cols, rows int) (*LCD, error) {
	if cols <= 0 || rows <= 0 {
		return nil, ErrInvalidGeometry
	}
	l := &LCD{cols: cols, rows: rows, cells: make([][]rune, rows)}
	for i := range l.cells {
		l.cells[i] = make([]rune, cols)
	}
	l.clear()
	return l, nil
}

// Emit prints decoded output.
func (l *LCD) Emit(out cw.DecodedOutput) {
	l.Print(out.Text)
}

// Print writes text at the cursor. Zero-width runes are dropped.
func (l *LCD) Print(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range text {
		l.put(r)
	}
}

func (l *LCD) put(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		return
	}
	if w > l.cols {
		r, w = substitute, 1
	}

	if l.col+w > l.cols {
		l.row++
		l.col = 0
	}
	if l.row >= l.rows {
		l.clear()
	}

	l.cells[l.row][l.col] = r
	for i := 1; i < w; i++ {
		l.cells[l.row][l.col+i] = wideTail
	}
	l.col += w
}

// Clear blanks the display and homes the cursor.
func (l *LCD) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clear()
}

func (l *LCD) clear() {
	for _, row := range l.cells {
		for i := range row {
			row[i] = blank
		}
	}
	l.row, l.col = 0, 0
}

// Lines returns the display contents, one string per row.
func (l *LCD) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines := make([]string, l.rows)
	var b strings.Builder
	for i, row := range l.cells {
		b.Reset()
		for _, r := range row {
			if r != wideTail {
				b.WriteRune(r)
			}
		}
		lines[i] = b.String()
	}
	return lines
}

func (l *LCD) String() string {
	return strings.Join(l.Lines(), "\n")
}

// Cursor returns the position the next character would take before wrapping.
func (l *LCD) Cursor() (row, col int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.row, l.col
}

// Size returns the geometry.
func (l *LCD) Size() (cols, rows int) {
	return l.cols, l.rows
}
