package machine

import "fmt"

// AssertionError is the panic value raised when a kernel invariant is
// violated. These are programming errors and are never recovered by the
// kernel itself.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return "assertion failed: " + e.Message
}

// Assert panics with an *AssertionError when cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(&AssertionError{Message: fmt.Sprintf(format, args...)})
	}
}
