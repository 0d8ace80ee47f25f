package autograd

import (
	"errors"
	"fmt"
)

// ErrShape is wrapped by every shape error raised while building a graph.
var ErrShape = errors.New("shape mismatch")

// OpError reports a failed graph operation. Graph building functions panic
// with an *OpError; use Try to turn it back into an error.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func fail(op string, err error) {
	panic(&OpError{Op: op, Err: fmt.Errorf("%w: %v", ErrShape, err)})
}

// Try runs fn and converts an *OpError panic into an error. Other panics
// propagate.
func Try(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*OpError)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	fn()
	return nil
}
