// Package recovery turns panics in reporters and background servers into
// log records and errors.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/postalsys/echoping/internal/logging"
)

// PanicError is stored by RecoverToError when a panic is recovered.
type PanicError struct {
	Name  string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Name, e.Value)
}

// RecoverWithLog recovers a panic and logs it with its stack. Defer it at
// the top of a goroutine:
//
//	go func() {
//	    defer recovery.RecoverWithLog(logger, "health-server")
//	    ...
//	}()
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
	}
}

// RecoverToError recovers a panic, logs it and stores a *PanicError in
// *errp. errp is left alone when nothing panicked.
func RecoverToError(logger *slog.Logger, name string, errp *error) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
		if errp != nil {
			*errp = &PanicError{Name: name, Value: r}
		}
	}
}

func logPanic(logger *slog.Logger, name string, r interface{}) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger.Error("panic recovered",
		logging.KeyComponent, name,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()))
}
