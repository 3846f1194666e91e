package reflectadapter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/fawkes74/jcon-cpp/internal/valuecodec"
)

var (
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// Adapter enumerates and invokes the operations of registered services. It
// is the framework's concrete ReflectionProvider (§4.2).
type Adapter struct {
	Registry *valuecodec.Registry
}

// New returns an Adapter backed by a fresh type registry.
func New() *Adapter {
	return &Adapter{Registry: valuecodec.NewRegistry()}
}

// Enumerate returns every method- and signal-kind operation exported by
// service, registering any struct return/parameter types it discovers with
// the codec's type registry so they round-trip through the envelope form.
func (a *Adapter) Enumerate(service interface{}) []*OpDescriptor {
	val := reflect.ValueOf(service)
	typ := val.Type()

	var ops []*OpDescriptor
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if isFrameworkMethod(m.Name) {
			continue
		}
		mv := val.Method(i)
		mt := mv.Type()

		var paramTypes []reflect.Type
		for p := 0; p < mt.NumIn(); p++ {
			paramTypes = append(paramTypes, mt.In(p))
		}

		var returnType reflect.Type
		hasErr := mt.NumOut() > 0 && mt.Out(mt.NumOut()-1) == errType
		valueOuts := mt.NumOut()
		if hasErr {
			valueOuts--
		}
		if valueOuts > 0 {
			returnType = mt.Out(0)
		}

		a.registerTypeIfNamed(returnType)
		for _, pt := range paramTypes {
			a.registerTypeIfNamed(pt)
		}

		ops = append(ops, &OpDescriptor{
			Name:       wireName(m.Name),
			Kind:       KindMethod,
			ParamNames: resolveParamNames(service, m.Name, len(paramTypes)),
			ParamTypes: paramTypes,
			ReturnType: returnType,
			method:     mv,
		})
	}

	if src, ok := service.(SignalSource); ok {
		for name, sig := range src.Signals() {
			ops = append(ops, &OpDescriptor{
				Name:       name,
				Kind:       KindSignal,
				ParamNames: sig.paramNames,
				ParamTypes: sig.paramTypes,
				signal:     sig,
			})
		}
	}

	return ops
}

// isFrameworkMethod excludes the SignalSource and ParamNamer interface
// methods themselves from a service's enumerated operations; they are
// metadata the adapter consumes, not callable RPC operations.
func isFrameworkMethod(name string) bool {
	return name == "Signals" || name == "ParamNames"
}

// registerTypeIfNamed records t under its bare type name if it is a struct
// (or pointer to struct) not already known, satisfying the "Reflection
// Adapter's registered converters" hook used by the codec for envelope
// naming (§4.1).
func (a *Adapter) registerTypeIfNamed(t reflect.Type) {
	if t == nil {
		return
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	if _, ok := a.Registry.NameOf(t); ok {
		return
	}
	a.Registry.Register(t.Name(), t)
}

// WireName lowercases the leading rune of a Go exported method name to
// produce the conventional lowerCamelCase wire method name (Add -> add).
// Exported so callers outside this package (e.g. the Client Correlator,
// binding a local handler method by its Go name) can look up the matching
// OpDescriptor with FindOp.
func WireName(goName string) string {
	return wireName(goName)
}

func wireName(goName string) string {
	r, size := utf8.DecodeRuneInString(goName)
	if r == utf8.RuneError {
		return goName
	}
	return string(unicode.ToLower(r)) + goName[size:]
}

// resolveParamNames prefers names supplied by a ParamNamer, falling back to
// synthesised pN placeholders (Go reflection does not retain parameter
// names).
func resolveParamNames(service interface{}, method string, n int) []string {
	if namer, ok := service.(ParamNamer); ok {
		if names := namer.ParamNames(method); len(names) == n {
			return names
		}
	}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("p%d", i)
	}
	return names
}

// FindOp returns the descriptor named name among ops, or nil.
func FindOp(ops []*OpDescriptor, name string) *OpDescriptor {
	for _, op := range ops {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// CoercePositional coerces a JSON array's elements to op's declared
// parameter types, requiring an exact arity match (§4.5 step 6).
func (a *Adapter) CoercePositional(op *OpDescriptor, params []json.RawMessage) ([]reflect.Value, error) {
	if len(params) != op.Arity() {
		return nil, &ErrArityMismatch{Op: op.Name, Want: op.Arity(), Got: len(params)}
	}
	args := make([]reflect.Value, op.Arity())
	for i, raw := range params {
		v, err := valuecodec.Decode(raw, op.ParamTypes[i], a.Registry)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// CoerceNamed coerces a JSON object's members to op's declared parameter
// types by name, requiring every declared name to be present (§4.5 step 6).
func (a *Adapter) CoerceNamed(op *OpDescriptor, params map[string]json.RawMessage) ([]reflect.Value, error) {
	args := make([]reflect.Value, op.Arity())
	for i, name := range op.ParamNames {
		raw, ok := params[name]
		if !ok {
			return nil, &ErrCoerce{Target: op.Name, Reason: fmt.Sprintf("missing parameter %q", name)}
		}
		v, err := valuecodec.Decode(raw, op.ParamTypes[i], a.Registry)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// Invoke calls op on service with args, recovering from any panic raised by
// the underlying call and reporting it as an InvocationError (§4.2, §7:
// "the dispatcher itself never propagates failures to its caller").
func (a *Adapter) Invoke(op *OpDescriptor, args []reflect.Value) (result reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ErrInvocation{Op: op.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	outs := op.method.Call(args)
	if len(outs) == 0 {
		return reflect.Value{}, nil
	}

	last := outs[len(outs)-1]
	if last.Type() == errType {
		if !last.IsNil() {
			return reflect.Value{}, &ErrInvocation{Op: op.Name, Err: last.Interface().(error)}
		}
		outs = outs[:len(outs)-1]
	}
	if len(outs) == 0 {
		return reflect.Value{}, nil
	}
	return outs[0], nil
}

// Subscribe attaches fn to op's underlying signal and returns a handle used
// to detach it later. It panics if op is not a signal-kind descriptor;
// callers are expected to have checked op.Kind first.
func (a *Adapter) Subscribe(op *OpDescriptor, fn func([]reflect.Value)) SpyHandle {
	return op.signal.attach(fn)
}

// Unsubscribe detaches a previously attached listener.
func (a *Adapter) Unsubscribe(h SpyHandle) {
	h.signal.detach(h.id)
}
