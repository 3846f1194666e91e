// Package demo provides the sample services shipped with the server: Arith,
// an ordinary method-based service, and Clock, a signal-only service that
// emits a tick on an interval. Both mirror the example services the
// original jcon-cpp library ships in its own test suite.
package demo

import "math"

// Arith exposes basic arithmetic over JSON-RPC, registered under domain
// "math" by the serve command.
type Arith struct{}

// NewArith returns a ready-to-register Arith service.
func NewArith() *Arith { return &Arith{} }

// Add returns x+y.
func (a *Arith) Add(x, y int) int { return x + y }

// Sqrt returns the square root of x.
func (a *Arith) Sqrt(x float64) float64 { return math.Sqrt(x) }

// Greet returns a friendly greeting for name, callable with either a
// positional array or a {"name": ...} object.
func (a *Arith) Greet(name string) string { return "hello " + name }

// ParamNames supplies the real parameter names Go's reflect package cannot
// recover, so Greet is callable with named parameters (§4.5 step 6).
func (a *Arith) ParamNames(method string) []string {
	switch method {
	case "Add":
		return []string{"x", "y"}
	case "Sqrt":
		return []string{"x"}
	case "Greet":
		return []string{"name"}
	}
	return nil
}
