// internal/display/view.go
package display

import (
	"fmt"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ColonelBlimp/keydecoder/internal/cw"
)

type (
	decodedMsg  cw.DecodedOutput
	keyStateMsg bool
	resetMsg    struct{}
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	lampOnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF4D4F"))
	lampOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5C5C5C"))
	statsStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// screenStyle draws the LCD as a backlit green panel.
var screenStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#4E9A06")).
	Foreground(lipgloss.Color("#B8F28A")).
	Background(lipgloss.Color("#0B1D0B"))

// ViewConfig controls the terminal view.
type ViewConfig struct {
	// Source names the key source in the title
	Source string
	// Reset, if set, is bound to the r key. It runs off the UI goroutine.
	Reset func()
}

// View is the Bubble Tea model showing the LCD, the key lamp and the timing estimate.
type View struct {
	config ViewConfig
	lcd    *LCD

	keyDown bool
	dashMs  float64
	wpm     int
	letters int
	unknown int

	width  int
	height int
}

// NewView renders lcd. Decoded output and key state arrive through a Bridge.
func NewView(lcd *LCD, cfg ViewConfig) *View {
	return &View{config: cfg, lcd: lcd}
}

// Init implements tea.Model.
func (v *View) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (v *View) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
	case keyStateMsg:
		v.keyDown = bool(msg)
	case decodedMsg:
		v.record(cw.DecodedOutput(msg))
	case resetMsg:
		v.lcd.Clear()
		v.letters, v.unknown = 0, 0
	case tea.KeyMsg:
		return v, v.handleKey(msg)
	}
	return v, nil
}

func (v *View) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return tea.Quit
	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "q":
			return tea.Quit
		case "c":
			v.lcd.Clear()
		case "r":
			if v.config.Reset != nil {
				reset := v.config.Reset
				return func() tea.Msg {
					reset()
					return resetMsg{}
				}
			}
		}
	}
	return nil
}

func (v *View) record(out cw.DecodedOutput) {
	v.lcd.Print(out.Text)
	v.dashMs = out.DashMs
	v.wpm = out.WPM
	switch {
	case out.IsWordSpace:
	case out.Known:
		v.letters++
	default:
		v.unknown++
	}
}

// View implements tea.Model.
func (v *View) View() string {
	title := "keydecoder"
	if v.config.Source != "" {
		title += " · " + v.config.Source
	}

	lamp := lampOffStyle.Render("○ key up  ")
	if v.keyDown {
		lamp = lampOnStyle.Render("● key down")
	}
	stats := "dash --"
	if v.dashMs > 0 {
		stats = fmt.Sprintf("dash %.0fms  %d wpm", v.dashMs, v.wpm)
	}
	stats += fmt.Sprintf("  letters %d  unknown %d", v.letters, v.unknown)

	help := "q quit · c clear"
	if v.config.Reset != nil {
		help += " · r reset timing"
	}

	body := strings.Join([]string{
		titleStyle.Render(title),
		screenStyle.Render(strings.Join(v.lcd.Lines(), "\n")),
		lamp + "  " + statsStyle.Render(stats),
		footerStyle.Render(help),
	}, "\n")

	if v.width == 0 || v.height == 0 {
		return body
	}
	return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, body)
}

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards decoder events to a View. It is both the decoder's sink and
// the loop's visual indicator; key state is sent only when it changes.
type Bridge struct {
	sender Sender
	down   atomic.Bool
}

// NewBridge sends to s.
func NewBridge(s Sender) *Bridge {
	return &Bridge{sender: s}
}

// SetActive implements cw.Indicator.
func (b *Bridge) SetActive(active bool) {
	if b.down.Swap(active) != active {
		b.sender.Send(keyStateMsg(active))
	}
}

// Emit implements Sink.
func (b *Bridge) Emit(out cw.DecodedOutput) {
	b.sender.Send(decodedMsg(out))
}
