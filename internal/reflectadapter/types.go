// Package reflectadapter is the framework's ReflectionProvider (§4.2,
// §9 "Reflection dependency"): it enumerates a service's callable
// operations and named signal sources using the standard library's reflect
// package, invokes operations by name with a positional argument list, and
// exposes a best-effort coercion between JSON values and the operation's
// declared Go types.
//
// A service is an ordinary Go value. Its exported methods of the form
//
//	func(paramTypes...) (ReturnType, error)
//	func(paramTypes...) ReturnType
//	func(paramTypes...) error
//	func(paramTypes...)
//
// become method-kind OpDescriptors, one per exported method other than the
// Signals and ParamNames hooks below, named after the method with its
// leading letter lowercased (Add becomes add). A service that also implements SignalSource contributes one
// signal-kind OpDescriptor per entry in the map it returns.
package reflectadapter

import "reflect"

// Kind distinguishes an ordinary callable operation from a signal source.
type Kind int

const (
	KindMethod Kind = iota
	KindSignal
)

func (k Kind) String() string {
	if k == KindSignal {
		return "signal"
	}
	return "method"
}

// OpDescriptor describes one operation discovered on a service (§3).
type OpDescriptor struct {
	Name       string
	Kind       Kind
	ParamNames []string
	ParamTypes []reflect.Type
	ReturnType reflect.Type // nil for signals and for void methods

	method reflect.Value // bound method value, for KindMethod
	signal *Signal        // underlying signal source, for KindSignal
}

// Arity is the number of positional parameters the operation declares.
func (d *OpDescriptor) Arity() int { return len(d.ParamTypes) }

// SignalSource is implemented by services that expose named event sources
// in addition to callable methods. Signal names must not collide with
// method names.
type SignalSource interface {
	Signals() map[string]*Signal
}

// ParamNamer is implemented by services whose method parameters need real
// names for named-argument dispatch (§4.5 step 6, "map: coerce by declared
// parameter names"). Go's reflect package does not retain a function's
// declared parameter names, so a service that wants to be callable with a
// JSON object rather than an array supplies them explicitly. A method with
// no entry, or a returned slice shorter than its arity, falls back to the
// synthesised p0, p1, ... names.
type ParamNamer interface {
	ParamNames(method string) []string
}
