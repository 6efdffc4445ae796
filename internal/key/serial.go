// internal/key/serial.go
package key

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ColonelBlimp/keydecoder/internal/logger"
	"github.com/ColonelBlimp/keydecoder/internal/recovery"
	"github.com/tarm/serial"
)

const (
	serialReadTimeout = 50 * time.Millisecond
	// idleBackoff paces retries when the port reports EOF on a read timeout.
	idleBackoff = 5 * time.Millisecond
)

// Bytes understood on the serial line. Anything else is ignored.
const (
	ByteClosed      = '1'
	ByteOpen        = '0'
	ByteClosedRaw   = 0x01
	ByteOpenRaw     = 0x00
	serialReadChunk = 64
)

// Serial follows a key reported by a microcontroller over a serial line.
type Serial struct {
	port   io.ReadCloser
	closed atomic.Bool
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	log    logger.Logger

	mu  sync.Mutex
	err error
}

// OpenSerial opens a serial port and starts following the key.
func OpenSerial(name string, baud int) (*Serial, error) {
	if name == "" {
		return nil, errors.New("serial port name is required")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	s := NewSerial(port)
	s.log.Info(context.Background(), "serial key opened", logger.String("port", name), logger.Int("baud", baud))
	return s, nil
}

// NewSerial starts reading key state from port. The Serial owns port.
func NewSerial(port io.ReadCloser) *Serial {
	s := &Serial{
		port: port,
		stop: make(chan struct{}),
		done: make(chan struct{}),
		log:  logger.Named("key.serial"),
	}
	go recovery.Guard("serial-reader", s.read)
	return s
}

// Closed reports the last state received from the line.
func (s *Serial) Closed() bool {
	return s.closed.Load()
}

// Err returns the error that ended the reader, if any.
func (s *Serial) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the reader exits.
func (s *Serial) Done() <-chan struct{} {
	return s.done
}

// Close stops the reader and closes the port.
func (s *Serial) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.port.Close()
		<-s.done
	})
	return err
}

func (s *Serial) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Serial) read() {
	defer close(s.done)
	defer s.closed.Store(false)

	buf := make([]byte, serialReadChunk)
	for {
		n, err := s.port.Read(buf)
		s.apply(buf[:n])

		switch {
		case err == nil:
			continue
		case s.stopping():
			return
		case errors.Is(err, io.EOF):
			// tarm/serial reports a read timeout as EOF.
			time.Sleep(idleBackoff)
		default:
			s.mu.Lock()
			s.err = fmt.Errorf("read serial key: %w", err)
			s.mu.Unlock()
			s.log.Error(context.Background(), "serial key reader stopped", logger.Error(err))
			return
		}
	}
}

func (s *Serial) apply(data []byte) {
	for _, b := range data {
		switch b {
		case ByteClosed, ByteClosedRaw:
			s.closed.Store(true)
		case ByteOpen, ByteOpenRaw:
			s.closed.Store(false)
		}
	}
}
