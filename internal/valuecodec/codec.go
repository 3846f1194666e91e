// Package valuecodec implements the framework's Value Codec (C1): the
// bidirectional conversion between JSON documents and internal Go values
// carrying a static type, including the {typename, value} envelope used for
// non-primitive values (§4.1, §3 EnvelopeValue).
package valuecodec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/fawkes74/jcon-cpp/internal/code"
	"github.com/fawkes74/jcon-cpp/internal/wire"
)

// ErrUnconvertible reports that a JSON value could not be coerced to a
// target type. It satisfies code.Coder as InvalidParams.
type ErrUnconvertible struct {
	Target string
	Reason string
}

func (e *ErrUnconvertible) Error() string {
	return fmt.Sprintf("cannot convert value to %s: %s", e.Target, e.Reason)
}
func (e *ErrUnconvertible) Code() code.Code { return code.InvalidParams }

// ErrUnencodable reports that a return value has no JSON representation and
// no registered converter (§7 UnencodableValue).
type ErrUnencodable struct{ Type string }

func (e *ErrUnencodable) Error() string   { return fmt.Sprintf("cannot encode value of type %s", e.Type) }
func (e *ErrUnencodable) Code() code.Code { return code.Unencodable }

// Decode converts a JSON value to a new reflect.Value of type target,
// honouring the envelope form when present (§4.1 "JSON → typed value").
func Decode(raw json.RawMessage, target reflect.Type, reg *Registry) (reflect.Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return reflect.Zero(target), nil
	}

	if env, ok := tryEnvelope(raw); ok {
		t, known := reg.Lookup(env.TypeName)
		if !known {
			return reflect.Value{}, &ErrUnconvertible{Target: target.String(), Reason: fmt.Sprintf("unknown typename %q", env.TypeName)}
		}
		if t != target && !t.AssignableTo(target) {
			return reflect.Value{}, &ErrUnconvertible{Target: target.String(), Reason: fmt.Sprintf("envelope carries %q, not assignable", env.TypeName)}
		}
		return decodeNatural(env.Value, target)
	}

	return decodeNatural(raw, target)
}

// tryEnvelope reports whether raw looks like {"typename":...,"value":...}.
func tryEnvelope(raw json.RawMessage) (*wire.Envelope, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false
	}
	tn, hasType := probe["typename"]
	val, hasVal := probe["value"]
	if !hasType || !hasVal {
		return nil, false
	}
	var env wire.Envelope
	if err := json.Unmarshal(tn, &env.TypeName); err != nil {
		return nil, false
	}
	env.Value = val
	return &env, true
}

// decodeNatural applies the natural JSON->Go mapping with range-checked
// numeric coercion, using mapstructure for weak typing and structural
// (map/slice) binding (§4.1 "coerce the raw JSON to T using natural
// mappings").
func decodeNatural(raw json.RawMessage, target reflect.Type) (reflect.Value, error) {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return reflect.Value{}, &ErrUnconvertible{Target: target.String(), Reason: err.Error()}
	}

	out := reflect.New(target)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out.Interface(),
		TagName:          "json",
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if err := dec.Decode(generic); err != nil {
		return reflect.Value{}, &ErrUnconvertible{Target: target.String(), Reason: err.Error()}
	}

	if err := checkNumericRange(generic, target); err != nil {
		return reflect.Value{}, err
	}

	return out.Elem(), nil
}

// checkNumericRange rejects a numeric value that would silently truncate
// when narrowed to an integer target, since neither encoding/json nor
// mapstructure enforce this on their own.
func checkNumericRange(generic interface{}, target reflect.Type) error {
	f, ok := generic.(float64)
	if !ok {
		return nil
	}
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if f != float64(int64(f)) {
			return &ErrUnconvertible{Target: target.String(), Reason: "value has a fractional part"}
		}
		v := reflect.New(target).Elem()
		v.SetInt(int64(f))
		if v.Int() != int64(f) {
			return &ErrUnconvertible{Target: target.String(), Reason: "value out of range"}
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if f < 0 || f != float64(uint64(f)) {
			return &ErrUnconvertible{Target: target.String(), Reason: "value out of range"}
		}
	}
	return nil
}

// Encode converts a Go value to JSON, envelope-encoding it when its static
// type is not a JSON-native primitive (§4.1 "Typed value → JSON").
func Encode(v reflect.Value, reg *Registry) (json.RawMessage, error) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return json.Marshal(nil)
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return json.Marshal(nil)
	}

	if isPrimitive(v.Type()) {
		return json.Marshal(v.Interface())
	}

	return encodeEnvelope(v, reg)
}

// isPrimitive reports whether t maps directly onto a JSON value without an
// envelope: booleans, numbers, strings, and slices/maps thereof (§4.1
// "Primitives ... map directly").
func isPrimitive(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice, reflect.Array:
		return isPrimitive(t.Elem())
	case reflect.Map:
		return t.Key().Kind() == reflect.String && isPrimitive(t.Elem())
	case reflect.Interface:
		return true // dynamically typed; let json.Marshal decide at runtime
	}
	return false
}

// encodeEnvelope wraps a non-primitive value in {"typename","value"},
// preferring a direct JSON marshal (covering both a struct's object body and
// a non-primitive slice's array body), then a registered map converter, then
// a registered string converter — map > list > string, per §4.1's tie-break.
func encodeEnvelope(v reflect.Value, reg *Registry) (json.RawMessage, error) {
	name, ok := reg.NameOf(v.Type())
	if !ok {
		name = v.Type().String()
	}

	if body, err := json.Marshal(v.Interface()); err == nil && looksStructured(body) {
		return wrapEnvelope(name, body)
	}

	if conv, ok := reg.ConverterFor(v.Type()); ok {
		if conv.ToMap != nil {
			if m, ok := conv.ToMap(v); ok {
				body, err := json.Marshal(m)
				if err != nil {
					return nil, &ErrUnencodable{Type: v.Type().String()}
				}
				return wrapEnvelope(name, body)
			}
		}
		if conv.ToString != nil {
			if s, ok := conv.ToString(v); ok {
				body, _ := json.Marshal(s)
				return wrapEnvelope(name, body)
			}
		}
	}

	return nil, &ErrUnencodable{Type: v.Type().String()}
}

// looksStructured reports whether body is a JSON object or array, the two
// shapes a direct marshal can produce that are worth envelope-wrapping
// as-is rather than falling through to a registered converter.
func looksStructured(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}

func wrapEnvelope(typeName string, body json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(wire.Envelope{TypeName: typeName, Value: body})
}
