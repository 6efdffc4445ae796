// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName       = "keydecoder"
	ConfigType    = "yaml"
	DefaultConfig = `# Key Decoder Configuration

# Key input
source: "serial"        # serial, audio or script
serial_port: "/dev/ttyUSB0"
serial_baud: 9600       # Baud rate of the key interface
script_text: "SOS"      # Text keyed by the script source
script_wpm: 15          # Speed of the script source

# Audio input (source: audio)
device_index: -1        # -1 for default capture device
sample_rate: 48000      # Audio sample rate in Hz
buffer_size: 512        # Frames per audio callback
tone_frequency: 600     # Keyed tone frequency in Hz
block_size: 256         # Goertzel block size (samples per detection window)
overlap_pct: 50         # Block overlap percentage (0-99)
threshold: 0.4          # Detection threshold (0.0-1.0)
hysteresis: 2           # Consecutive blocks required to confirm state change
agc_enabled: true       # Enable automatic gain control
agc_decay: 0.9995       # AGC peak decay rate per block
agc_attack: 0.1         # AGC attack rate (0.0-1.0)
agc_warmup_blocks: 10   # Blocks used to calibrate AGC before detection

# Timing
initial_dash_ms: 200    # Starting dash estimate, adapts 1 ms per mark
debounce_ms: 2          # Closures this short or shorter are contact bounce
idle_factor: 10         # Silence (in dashes) that flushes the last letter
min_dash_ms: 20         # Floor for the dash estimate (0 = none)
max_dash_ms: 2000       # Ceiling for the dash estimate (0 = none)
poll_interval_ms: 1     # Key sampling period

# Indicators
sidetone_enabled: true  # Play a tone while the key is down
sidetone_frequency: 700 # Sidetone pitch in Hz
sidetone_volume: 0.3    # Sidetone amplitude (0.0-1.0)
playback_device_index: -1

# Output
lcd_columns: 16         # Display width in characters
lcd_rows: 2             # Display height in rows
console_line_per_word: false # Break console output after every word
headless: false         # Console only, no terminal display
log_level: "info"       # debug, info, warn, error
log_file: ""            # Log destination in display mode (empty = discard)
debug: false            # Enable debug output
`
)

// Source names accepted by the source setting.
const (
	SourceSerial = "serial"
	SourceAudio  = "audio"
	SourceScript = "script"
)

// Settings holds all application configuration
type Settings struct {
	// Key input
	Source     string `mapstructure:"source"`
	SerialPort string `mapstructure:"serial_port"`
	SerialBaud int    `mapstructure:"serial_baud"`
	ScriptText string `mapstructure:"script_text"`
	ScriptWPM  int    `mapstructure:"script_wpm"`

	// Audio input
	DeviceIndex     int     `mapstructure:"device_index"`
	SampleRate      float64 `mapstructure:"sample_rate"`
	BufferSize      int     `mapstructure:"buffer_size"`
	ToneFrequency   float64 `mapstructure:"tone_frequency"`
	BlockSize       int     `mapstructure:"block_size"`
	OverlapPct      int     `mapstructure:"overlap_pct"`
	Threshold       float64 `mapstructure:"threshold"`
	Hysteresis      int     `mapstructure:"hysteresis"`
	AGCEnabled      bool    `mapstructure:"agc_enabled"`
	AGCDecay        float64 `mapstructure:"agc_decay"`
	AGCAttack       float64 `mapstructure:"agc_attack"`
	AGCWarmupBlocks int     `mapstructure:"agc_warmup_blocks"`

	// Timing
	InitialDashMs  float64 `mapstructure:"initial_dash_ms"`
	DebounceMs     int64   `mapstructure:"debounce_ms"`
	IdleFactor     float64 `mapstructure:"idle_factor"`
	MinDashMs      float64 `mapstructure:"min_dash_ms"`
	MaxDashMs      float64 `mapstructure:"max_dash_ms"`
	PollIntervalMs int     `mapstructure:"poll_interval_ms"`

	// Indicators
	SidetoneEnabled     bool    `mapstructure:"sidetone_enabled"`
	SidetoneFrequency   float64 `mapstructure:"sidetone_frequency"`
	SidetoneVolume      float64 `mapstructure:"sidetone_volume"`
	PlaybackDeviceIndex int     `mapstructure:"playback_device_index"`

	// Output
	LCDColumns         int    `mapstructure:"lcd_columns"`
	LCDRows            int    `mapstructure:"lcd_rows"`
	ConsoleLinePerWord bool   `mapstructure:"console_line_per_word"`
	Headless           bool   `mapstructure:"headless"`
	LogLevel           string `mapstructure:"log_level"`
	LogFile            string `mapstructure:"log_file"`
	Debug              bool   `mapstructure:"debug"`
}

// Init loads defaults, then the first config file found in the current
// directory or the user config dir (.config.yaml before config.yaml). When no
// file exists a commented default is written to the user config dir.
func Init() error {
	for key, v := range defaults {
		viper.SetDefault(key, v)
	}
	viper.SetConfigType(ConfigType)

	home := configHome()
	viper.AddConfigPath(".")
	viper.AddConfigPath(home)

	err := readFirst(".config", "config")
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return nil
	case !errors.As(err, &notFound):
		return fmt.Errorf("read config: %w", err)
	}

	if err := ensureConfigExists(home); err != nil {
		return err
	}
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func configHome() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, AppName)
}

// readFirst reads the first of names that exists. The last name stays selected.
func readFirst(names ...string) error {
	var err error
	for _, name := range names {
		viper.SetConfigName(name)
		if err = viper.ReadInConfig(); err == nil {
			return nil
		}
	}
	return err
}

// defaults matches DefaultConfig so a partial file still yields a full Settings.
var defaults = map[string]any{
	"source":                SourceSerial,
	"serial_port":           "/dev/ttyUSB0",
	"serial_baud":           9600,
	"script_text":           "SOS",
	"script_wpm":            15,
	"device_index":          -1,
	"sample_rate":           48000,
	"buffer_size":           512,
	"tone_frequency":        600,
	"block_size":            256,
	"overlap_pct":           50,
	"threshold":             0.4,
	"hysteresis":            2,
	"agc_enabled":           true,
	"agc_decay":             0.9995,
	"agc_attack":            0.1,
	"agc_warmup_blocks":     10,
	"initial_dash_ms":       200,
	"debounce_ms":           2,
	"idle_factor":           10,
	"min_dash_ms":           20,
	"max_dash_ms":           2000,
	"poll_interval_ms":      1,
	"sidetone_enabled":      true,
	"sidetone_frequency":    700,
	"sidetone_volume":       0.3,
	"playback_device_index": -1,
	"lcd_columns":           16,
	"lcd_rows":              2,
	"console_line_per_word": false,
	"headless":              false,
	"log_level":             "info",
	"log_file":              "",
	"debug":                 false,
}

func ensureConfigExists(dir string) error {
	file := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(file); !errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(file, []byte(DefaultConfig), 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// Get unmarshals and validates the loaded configuration.
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// problems collects validation failures, each naming its setting.
type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

func within[T int | int64 | float64](p *problems, key string, v, lo, hi T) {
	if v < lo || v > hi {
		p.addf("%s must be between %v and %v, got %v", key, lo, hi, v)
	}
}

// Validate reports every out-of-range setting at once.
func (s *Settings) Validate() error {
	var p problems
	s.validateSource(&p)
	s.validateAudio(&p)
	s.validateTiming(&p)

	within(&p, "sidetone_frequency", s.SidetoneFrequency, 100, 3000)
	within(&p, "sidetone_volume", s.SidetoneVolume, 0, 1)
	within(&p, "lcd_columns", s.LCDColumns, 1, 80)
	within(&p, "lcd_rows", s.LCDRows, 1, 24)
	switch s.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		p.addf("log_level must be one of debug, info, warn, error, got %q", s.LogLevel)
	}
	return errors.Join(p...)
}

func (s *Settings) validateSource(p *problems) {
	switch s.Source {
	case SourceSerial:
		if s.SerialPort == "" {
			p.addf("serial_port is required for the serial source")
		}
		if s.SerialBaud <= 0 {
			p.addf("serial_baud must be positive, got %d", s.SerialBaud)
		}
	case SourceAudio:
	case SourceScript:
		within(p, "script_wpm", s.ScriptWPM, 5, 60)
	default:
		p.addf("source must be one of serial, audio, script, got %q", s.Source)
	}
}

// validateAudio covers capture and tone detection. They are checked for every
// source so a config file stays valid when only the source is switched.
func (s *Settings) validateAudio(p *problems) {
	within(p, "sample_rate", s.SampleRate, 8000, 192000)
	within(p, "buffer_size", s.BufferSize, 64, 8192)
	within(p, "tone_frequency", s.ToneFrequency, 100, 3000)
	if nyquist := s.SampleRate / 2; s.ToneFrequency >= nyquist {
		p.addf("tone_frequency %v Hz is not below the Nyquist frequency %v Hz", s.ToneFrequency, nyquist)
	}
	within(p, "block_size", s.BlockSize, 32, 4096)
	if s.BlockSize&(s.BlockSize-1) != 0 {
		p.addf("block_size should be a power of 2, got %d", s.BlockSize)
	}
	within(p, "overlap_pct", s.OverlapPct, 0, 99)
	within(p, "threshold", s.Threshold, 0, 1)
	within(p, "hysteresis", s.Hysteresis, 1, 50)
	within(p, "agc_decay", s.AGCDecay, 0.99, 0.99999)
	within(p, "agc_attack", s.AGCAttack, 0, 1)
	if s.AGCWarmupBlocks < 0 {
		p.addf("agc_warmup_blocks must be non-negative, got %d", s.AGCWarmupBlocks)
	}
}

func (s *Settings) validateTiming(p *problems) {
	if s.MinDashMs < 0 || s.MaxDashMs < 0 || (s.MaxDashMs > 0 && s.MinDashMs > s.MaxDashMs) {
		p.addf("min_dash_ms (%v) and max_dash_ms (%v) must be non-negative with min <= max", s.MinDashMs, s.MaxDashMs)
	}
	if s.InitialDashMs <= 0 ||
		(s.MinDashMs > 0 && s.InitialDashMs < s.MinDashMs) ||
		(s.MaxDashMs > 0 && s.InitialDashMs > s.MaxDashMs) {
		p.addf("initial_dash_ms must be positive and within the dash bounds, got %v", s.InitialDashMs)
	}
	within(p, "debounce_ms", s.DebounceMs, 0, 50)
	if s.IdleFactor <= 2 || s.IdleFactor > 100 {
		p.addf("idle_factor must be greater than 2 and at most 100, got %v", s.IdleFactor)
	}
	within(p, "poll_interval_ms", s.PollIntervalMs, 1, 20)
}
