package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

// isolate points HOME and the working directory at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	resetViper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return tmpDir
}

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestInit_WithDefaults(t *testing.T) {
	tmpDir := isolate(t)
	writeConfig(t, filepath.Join(tmpDir, ".config", AppName), "config.yaml", DefaultConfig)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if got := viper.GetString("source"); got != SourceSerial {
		t.Errorf("source = %q, want %q", got, SourceSerial)
	}
	if got := viper.GetFloat64("initial_dash_ms"); got != 200 {
		t.Errorf("initial_dash_ms = %v, want 200", got)
	}
	if got := viper.GetInt("debounce_ms"); got != 2 {
		t.Errorf("debounce_ms = %d, want 2", got)
	}
	if got := viper.GetFloat64("idle_factor"); got != 10 {
		t.Errorf("idle_factor = %v, want 10", got)
	}
	if got := viper.GetInt("lcd_columns"); got != 16 {
		t.Errorf("lcd_columns = %d, want 16", got)
	}
	if got := viper.GetInt("lcd_rows"); got != 2 {
		t.Errorf("lcd_rows = %d, want 2", got)
	}
	if got := viper.GetBool("sidetone_enabled"); !got {
		t.Error("sidetone_enabled = false, want true")
	}
}

func TestInit_CreatesConfigIfMissing(t *testing.T) {
	tmpDir := isolate(t)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ".config", AppName, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Init() did not create config file at %s: %v", configPath, err)
	}
	if string(data) != DefaultConfig {
		t.Error("created config does not match DefaultConfig")
	}
}

func TestInit_ReadsLocalConfigFirst(t *testing.T) {
	tmpDir := isolate(t)
	writeConfig(t, filepath.Join(tmpDir, ".config", AppName), "config.yaml", "initial_dash_ms: 240")
	writeConfig(t, tmpDir, "config.yaml", "initial_dash_ms: 300")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := viper.GetFloat64("initial_dash_ms"); got != 300 {
		t.Errorf("initial_dash_ms = %v, want 300 (local config)", got)
	}
}

func TestInit_DotConfigTakesPrecedence(t *testing.T) {
	tmpDir := isolate(t)
	writeConfig(t, tmpDir, "config.yaml", "lcd_columns: 20")
	writeConfig(t, tmpDir, ".config.yaml", "lcd_columns: 40")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := viper.GetInt("lcd_columns"); got != 40 {
		t.Errorf("lcd_columns = %d, want 40 (.config.yaml)", got)
	}
}

func TestInit_InvalidConfigFile(t *testing.T) {
	tmpDir := isolate(t)
	writeConfig(t, tmpDir, "config.yaml", "source: [unterminated")

	if err := Init(); err == nil {
		t.Error("Init() with malformed yaml should fail")
	}
}

func TestGet_ReturnsSettings(t *testing.T) {
	tmpDir := isolate(t)
	writeConfig(t, filepath.Join(tmpDir, ".config", AppName), "config.yaml", DefaultConfig)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	s, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if s.Source != SourceSerial || s.SerialPort != "/dev/ttyUSB0" || s.SerialBaud != 9600 {
		t.Errorf("serial settings = %q %q %d", s.Source, s.SerialPort, s.SerialBaud)
	}
	if s.InitialDashMs != 200 || s.DebounceMs != 2 || s.IdleFactor != 10 {
		t.Errorf("timing = %v %d %v, want 200 2 10", s.InitialDashMs, s.DebounceMs, s.IdleFactor)
	}
	if s.MinDashMs != 20 || s.MaxDashMs != 2000 {
		t.Errorf("dash bounds = %v..%v, want 20..2000", s.MinDashMs, s.MaxDashMs)
	}
	if s.LCDColumns != 16 || s.LCDRows != 2 {
		t.Errorf("lcd = %dx%d, want 16x2", s.LCDColumns, s.LCDRows)
	}
	if s.SidetoneFrequency != 700 || s.SidetoneVolume != 0.3 {
		t.Errorf("sidetone = %v Hz %v, want 700 Hz 0.3", s.SidetoneFrequency, s.SidetoneVolume)
	}
	if s.ToneFrequency != 600 || s.BlockSize != 256 || s.Hysteresis != 2 {
		t.Errorf("detector = %v %d %d", s.ToneFrequency, s.BlockSize, s.Hysteresis)
	}
}

func TestGet_InvalidSettings(t *testing.T) {
	tmpDir := isolate(t)
	writeConfig(t, tmpDir, "config.yaml", "lcd_rows: 0")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := Get(); err == nil || !strings.Contains(err.Error(), "lcd_rows") {
		t.Errorf("Get() error = %v, want lcd_rows violation", err)
	}
}

func TestEnsureConfigExists_DoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "custom: true")

	if err := ensureConfigExists(dir); err != nil {
		t.Fatalf("ensureConfigExists() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "custom: true" {
		t.Errorf("existing config overwritten: %q", data)
	}
}

func TestDefaultConfig_MatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType(ConfigType)
	if err := v.ReadConfig(strings.NewReader(DefaultConfig)); err != nil {
		t.Fatalf("DefaultConfig does not parse: %v", err)
	}

	for key, want := range defaults {
		if !v.IsSet(key) {
			t.Errorf("DefaultConfig missing key %q", key)
			continue
		}
		if got := fmt.Sprint(v.Get(key)); got != fmt.Sprint(want) {
			t.Errorf("DefaultConfig %s = %s, default is %v", key, got, want)
		}
	}
	if n := len(v.AllKeys()); n != len(defaults) {
		t.Errorf("DefaultConfig has %d keys, defaults has %d", n, len(defaults))
	}
}

func validSettings() *Settings {
	return &Settings{
		Source:            SourceSerial,
		SerialPort:        "/dev/ttyUSB0",
		SerialBaud:        9600,
		ScriptText:        "SOS",
		ScriptWPM:         15,
		DeviceIndex:       -1,
		SampleRate:        48000,
		BufferSize:        512,
		ToneFrequency:     600,
		BlockSize:         256,
		OverlapPct:        50,
		Threshold:         0.4,
		Hysteresis:        2,
		AGCEnabled:        true,
		AGCDecay:          0.9995,
		AGCAttack:         0.1,
		AGCWarmupBlocks:   10,
		InitialDashMs:     200,
		DebounceMs:        2,
		IdleFactor:        10,
		MinDashMs:         20,
		MaxDashMs:         2000,
		PollIntervalMs:    1,
		SidetoneEnabled:   true,
		SidetoneFrequency: 700,
		SidetoneVolume:    0.3,
		LCDColumns:        16,
		LCDRows:           2,
		LogLevel:          "info",
	}
}

func TestSettings_Validate_ValidSettings(t *testing.T) {
	if err := validSettings().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSettings_Validate_Fields(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Settings)
		wantKey string
	}{
		{"unknown source", func(s *Settings) { s.Source = "keyboard" }, "source"},
		{"missing serial port", func(s *Settings) { s.SerialPort = "" }, "serial_port"},
		{"bad baud", func(s *Settings) { s.SerialBaud = 0 }, "serial_baud"},
		{"script speed", func(s *Settings) { s.Source = SourceScript; s.ScriptWPM = 100 }, "script_wpm"},
		{"sample rate", func(s *Settings) { s.SampleRate = 4000 }, "sample_rate"},
		{"buffer size", func(s *Settings) { s.BufferSize = 16 }, "buffer_size"},
		{"tone frequency", func(s *Settings) { s.ToneFrequency = 50 }, "tone_frequency"},
		{"nyquist", func(s *Settings) { s.SampleRate = 4000; s.ToneFrequency = 2500 }, "Nyquist"},
		{"block size power of two", func(s *Settings) { s.BlockSize = 300 }, "power of 2"},
		{"overlap", func(s *Settings) { s.OverlapPct = 100 }, "overlap_pct"},
		{"threshold", func(s *Settings) { s.Threshold = 1.5 }, "threshold"},
		{"hysteresis", func(s *Settings) { s.Hysteresis = 0 }, "hysteresis"},
		{"agc decay", func(s *Settings) { s.AGCDecay = 0.5 }, "agc_decay"},
		{"agc attack", func(s *Settings) { s.AGCAttack = -0.1 }, "agc_attack"},
		{"agc warmup", func(s *Settings) { s.AGCWarmupBlocks = -1 }, "agc_warmup_blocks"},
		{"initial dash", func(s *Settings) { s.InitialDashMs = 0 }, "initial_dash_ms"},
		{"initial dash outside bounds", func(s *Settings) { s.InitialDashMs = 3000 }, "initial_dash_ms"},
		{"dash bounds", func(s *Settings) { s.MinDashMs = 500; s.MaxDashMs = 100 }, "min_dash_ms"},
		{"debounce", func(s *Settings) { s.DebounceMs = -1 }, "debounce_ms"},
		{"idle factor", func(s *Settings) { s.IdleFactor = 2 }, "idle_factor"},
		{"poll interval", func(s *Settings) { s.PollIntervalMs = 0 }, "poll_interval_ms"},
		{"sidetone frequency", func(s *Settings) { s.SidetoneFrequency = 10 }, "sidetone_frequency"},
		{"sidetone volume", func(s *Settings) { s.SidetoneVolume = 2 }, "sidetone_volume"},
		{"lcd columns", func(s *Settings) { s.LCDColumns = 0 }, "lcd_columns"},
		{"lcd rows", func(s *Settings) { s.LCDRows = 100 }, "lcd_rows"},
		{"log level", func(s *Settings) { s.LogLevel = "trace" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.modify(s)
			err := s.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantKey)
			}
		})
	}
}

func TestSettings_Validate_AudioSourceNeedsNoPort(t *testing.T) {
	s := validSettings()
	s.Source = SourceAudio
	s.SerialPort = ""
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSettings_Validate_UnboundedDash(t *testing.T) {
	s := validSettings()
	s.MinDashMs = 0
	s.MaxDashMs = 0
	s.InitialDashMs = 5000
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSettings_Validate_MultipleErrors(t *testing.T) {
	s := validSettings()
	s.LCDRows = 0
	s.LCDColumns = 0
	s.Threshold = 5

	err := s.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	for _, key := range []string{"lcd_rows", "lcd_columns", "threshold"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("joined error missing %q: %v", key, err)
		}
	}
}
