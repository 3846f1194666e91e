package reflectadapter

import (
	"fmt"

	"github.com/fawkes74/jcon-cpp/internal/code"
)

// ErrArityMismatch is returned when a positional argument list's length
// does not match an operation's declared parameter count.
type ErrArityMismatch struct {
	Op       string
	Want     int
	Got      int
}

func (e *ErrArityMismatch) Error() string {
	return fmt.Sprintf("%s: expected %d argument(s), got %d", e.Op, e.Want, e.Got)
}
func (e *ErrArityMismatch) Code() code.Code { return code.InvalidParams }

// ErrCoerce is returned when a JSON value cannot be converted to a target
// Go type.
type ErrCoerce struct {
	Target string
	Reason string
}

func (e *ErrCoerce) Error() string {
	return fmt.Sprintf("cannot coerce value to %s: %s", e.Target, e.Reason)
}
func (e *ErrCoerce) Code() code.Code { return code.InvalidParams }

// ErrInvocation wraps a panic or error raised while invoking an operation.
type ErrInvocation struct {
	Op  string
	Err error
}

func (e *ErrInvocation) Error() string  { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ErrInvocation) Unwrap() error  { return e.Err }
func (e *ErrInvocation) Code() code.Code { return code.InternalError }
