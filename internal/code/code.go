// Package code defines the JSON-RPC error code taxonomy shared by the
// client, dispatcher and codec. It re-exports the teacher's own
// creachadair/jrpc2/code package rather than reimplementing it, using that
// package's Register extension point to add this framework's three reserved
// codes.
package code

import (
	"errors"
	"fmt"

	upstream "github.com/creachadair/jrpc2/code"
)

// Code is a JSON-RPC error response code. Values from -32768 to -32000 are
// reserved by the JSON-RPC 2.0 specification; the remainder of the space is
// available for application errors.
type Code = upstream.Code

// A Coder is a value that can report an error code. Errorf's errors and the
// error types of the reflectadapter and valuecodec packages implement it.
type Coder interface {
	Code() Code
}

// Pre-defined codes from the JSON-RPC 2.0 specification.
const (
	ParseError     = upstream.ParseError
	InvalidRequest = upstream.InvalidRequest
	MethodNotFound = upstream.MethodNotFound
	InvalidParams  = upstream.InvalidParams
	InternalError  = upstream.InternalError
	NoError        = upstream.NoError
)

// Reserved implementation-defined codes, mirroring §7 of the framework spec.
var (
	Timeout     = upstream.Register(-32001, "timeout")
	Transport   = upstream.Register(-32002, "transport error")
	Unencodable = upstream.Register(-32003, "unencodable value")
)

// messageError pairs a Code with a caller-supplied message. upstream's own
// codeError type always renders a code's registered string, so callers that
// need a specific diagnostic (a bad parameter, an unknown method) go through
// this instead.
type messageError struct {
	code Code
	msg  string
}

func (e *messageError) Error() string { return e.msg }
func (e *messageError) Code() Code    { return e.code }

// Errorf builds an error with code c and a formatted message.
func Errorf(c Code, format string, args ...interface{}) error {
	return &messageError{code: c, msg: fmt.Sprintf(format, args...)}
}

// FromError recovers the Code carried by err: the code of the first Coder in
// err's chain, else upstream's own classification (upstream's ErrCoder,
// context.Canceled, context.DeadlineExceeded, else SystemError).
func FromError(err error) Code {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return upstream.FromError(err)
}
