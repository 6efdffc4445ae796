// internal/recovery/recovery.go
package recovery

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/ColonelBlimp/keydecoder/internal/logger"
)

// HandlePanic should be deferred at the top of main().
// It logs panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		fatal("main", r, nil)
	}
}

// HandlePanicFunc logs panic details and calls the provided cleanup function.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		fatal("main", r, cleanup)
	}
}

// Guard runs fn and treats a panic inside it as fatal for the process.
// Use it as the body of long-lived goroutines:
//
//	go recovery.Guard("serial-reader", s.read)
func Guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			fatal(name, r, nil)
		}
	}()
	fn()
}

func fatal(where string, r any, cleanup func()) {
	stack := debug.Stack()
	logger.Named("recovery").Error(context.Background(), "panic",
		logger.String("goroutine", where),
		logger.Any("value", r),
	)
	_, _ = fmt.Fprintf(os.Stderr, "FATAL [%s]: %v\n\nStack trace:\n%s\n", where, r, stack)
	if cleanup != nil {
		cleanup()
	}
	os.Exit(1)
}
