// -----------------------------------------------------------------------
// Panic capture - converts a panic in a worker into an ordinary error
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"runtime"

	"github.com/ternarybob/arbor"
)

// PanicError is the error recorded for a unit of work that panicked.
type PanicError struct {
	Name  string
	Value interface{}
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// CapturePanic must be deferred directly. A panic in the calling goroutine
// is logged with its stack and stored in *errp instead of crashing the
// process.
//
// Example:
//
//	func process(path string) (err error) {
//	    defer common.CapturePanic(logger, path, &err)
//	    ...
//	}
func CapturePanic(logger arbor.ILogger, name string, errp *error) {
	r := recover()
	if r == nil {
		return
	}

	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	if logger != nil {
		logger.Error().
			Str("name", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", stack).
			Msg("Recovered from panic")
	}
	*errp = &PanicError{Name: name, Value: r, Stack: stack}
}
