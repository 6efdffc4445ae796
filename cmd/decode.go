// cmd/decode.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/keydecoder/internal/audio"
	"github.com/ColonelBlimp/keydecoder/internal/config"
	"github.com/ColonelBlimp/keydecoder/internal/cw"
	"github.com/ColonelBlimp/keydecoder/internal/display"
	"github.com/ColonelBlimp/keydecoder/internal/dsp"
	"github.com/ColonelBlimp/keydecoder/internal/key"
	"github.com/ColonelBlimp/keydecoder/internal/logger"
	"github.com/ColonelBlimp/keydecoder/internal/recovery"
)

// scriptTail is the extra time a headless script run waits after the idle flush.
const scriptTail = time.Second

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode the key until interrupted",
	RunE:  runDecode,
}

// session holds what a decode run opened. close releases it in reverse order.
type session struct {
	settings   *config.Settings
	decoder    *cw.Decoder
	source     key.Source
	indicators cw.MultiIndicator
	closers    []func() error
	log        logger.Logger
}

func (s *session) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn(context.Background(), "close failed", logger.Error(err))
		}
	}
}

func runDecode(cmd *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(settings, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s := &session{settings: settings, log: logger.Named("session")}
	defer s.close()

	if s.decoder, err = newDecoder(settings); err != nil {
		return err
	}
	if err := s.openSource(ctx, cancel); err != nil {
		return err
	}
	if settings.SidetoneEnabled {
		s.startSidetone()
	}

	s.log.Info(ctx, "decoding",
		logger.String("source", settings.Source),
		logger.Float64("initial_dash_ms", settings.InitialDashMs),
		logger.Bool("headless", settings.Headless),
	)

	if settings.Headless {
		return s.runHeadless(ctx, cmd.OutOrStdout())
	}
	return s.runTUI(ctx)
}

func setupLogging(s *config.Settings, stderr io.Writer) (func(), error) {
	level := s.LogLevel
	if s.Debug {
		level = "debug"
	}

	var w io.Writer = io.Discard
	closeFn := func() {}
	switch {
	case s.LogFile != "":
		f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	case s.Headless:
		w = stderr
	}

	if err := logger.Init(w, level); err != nil {
		closeFn()
		return nil, err
	}
	return closeFn, nil
}

func newDecoder(s *config.Settings) (*cw.Decoder, error) {
	dec, err := cw.NewDecoder(cw.DecoderConfig{
		InitialDashMs: s.InitialDashMs,
		DebounceMs:    s.DebounceMs,
		IdleFactor:    s.IdleFactor,
		MinDashMs:     s.MinDashMs,
		MaxDashMs:     s.MaxDashMs,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return dec, nil
}

func (s *session) openSource(ctx context.Context, cancel context.CancelCauseFunc) error {
	cfg := s.settings
	switch cfg.Source {
	case config.SourceSerial:
		port, err := key.OpenSerial(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			return err
		}
		s.onClose(port.Close)
		go func() {
			select {
			case <-port.Done():
				if err := port.Err(); err != nil {
					cancel(err)
				}
			case <-ctx.Done():
			}
		}()
		s.source = port

	case config.SourceAudio:
		det, err := newToneDetector(cfg)
		if err != nil {
			return err
		}
		capture := audio.New(audio.Config{
			DeviceIndex: cfg.DeviceIndex,
			SampleRate:  uint32(cfg.SampleRate),
			Channels:    1,
			BufferSize:  uint32(cfg.BufferSize),
		})
		capture.SetCallback(det.Process)
		s.onClose(capture.Close)
		if err := capture.Init(); err != nil {
			return err
		}
		if err := capture.Start(ctx); err != nil {
			return err
		}
		s.source = key.NewTone(det)

	case config.SourceScript:
		script, err := key.NewScript(cfg.ScriptText, cfg.ScriptWPM)
		if err != nil {
			return fmt.Errorf("script source: %w", err)
		}
		s.source = script
	}
	return nil
}

func newToneDetector(cfg *config.Settings) (*dsp.Detector, error) {
	g, err := dsp.NewGoertzel(dsp.GoertzelConfig{
		TargetFrequency: cfg.ToneFrequency,
		SampleRate:      cfg.SampleRate,
		BlockSize:       cfg.BlockSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create goertzel filter: %w", err)
	}
	det, err := dsp.NewDetector(dsp.DetectorConfig{
		Threshold:       cfg.Threshold,
		Hysteresis:      cfg.Hysteresis,
		OverlapPct:      cfg.OverlapPct,
		AGCEnabled:      cfg.AGCEnabled,
		AGCDecay:        cfg.AGCDecay,
		AGCAttack:       cfg.AGCAttack,
		AGCWarmupBlocks: cfg.AGCWarmupBlocks,
	}, g)
	if err != nil {
		return nil, fmt.Errorf("create tone detector: %w", err)
	}

	log := logger.Named("dsp")
	det.SetCallback(func(e dsp.ToneEvent) {
		log.Debug(context.Background(), "tone transition",
			logger.Bool("tone_on", e.ToneOn),
			logger.Int64("prev_ms", e.Duration.Milliseconds()),
			logger.Float64("magnitude", e.Magnitude),
		)
	})
	return det, nil
}

// startSidetone adds the audible indicator. A missing playback device is not fatal.
func (s *session) startSidetone() {
	cfg := s.settings
	tone, err := audio.NewSidetone(audio.SidetoneConfig{
		DeviceIndex: cfg.PlaybackDeviceIndex,
		SampleRate:  uint32(cfg.SampleRate),
		Frequency:   cfg.SidetoneFrequency,
		Volume:      cfg.SidetoneVolume,
	})
	if err == nil {
		err = tone.Start()
	}
	if err != nil {
		s.log.Warn(context.Background(), "sidetone disabled", logger.Error(err))
		return
	}
	s.onClose(tone.Close)
	s.indicators = append(s.indicators, tone)
}

func (s *session) pollInterval() time.Duration {
	return time.Duration(s.settings.PollIntervalMs) * time.Millisecond
}

func (s *session) runHeadless(ctx context.Context, out io.Writer) error {
	console := display.NewConsole(out, s.settings.ConsoleLinePerWord)
	s.decoder.SetCallback(display.Fanout{console}.Callback())

	loopCtx := ctx
	if script, ok := s.source.(*key.Script); ok {
		// The estimate only moves between the initial dash and the script's dash,
		// so the trailing idle flush fires within IdleFactor of the larger one.
		dashMs := max(s.settings.InitialDashMs, float64(script.Dash().Milliseconds()))
		idle := time.Duration(s.settings.IdleFactor*dashMs) * time.Millisecond
		var cancel context.CancelFunc
		loopCtx, cancel = context.WithTimeout(ctx, script.Length()+idle+scriptTail)
		defer cancel()
	}

	err := cw.Run(loopCtx, s.decoder, s.source, s.indicators, s.pollInterval())
	s.decoder.Flush()
	if cerr := console.Err(); cerr != nil {
		return fmt.Errorf("write output: %w", cerr)
	}
	return finish(ctx, err)
}

func (s *session) runTUI(ctx context.Context) error {
	lcd, err := display.NewLCD(s.settings.LCDColumns, s.settings.LCDRows)
	if err != nil {
		return err
	}
	view := display.NewView(lcd, display.ViewConfig{
		Source: s.settings.Source,
		Reset:  s.decoder.Reset,
	})
	program := tea.NewProgram(view, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge := display.NewBridge(program)
	s.decoder.SetCallback(display.Fanout{bridge}.Callback())

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopErr := make(chan error, 1)
	indicators := append(s.indicators, bridge)
	go recovery.Guard("decoder-loop", func() {
		loopErr <- cw.Run(loopCtx, s.decoder, s.source, indicators, s.pollInterval())
	})

	_, err = program.Run()
	stopLoop()
	runErr := <-loopErr

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run display: %w", err)
	}
	return finish(ctx, runErr)
}

// finish maps a loop result to the command result: shutdown is success,
// a failing key source is reported.
func finish(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil &&
		!errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
