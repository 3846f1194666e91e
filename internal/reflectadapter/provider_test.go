package reflectadapter_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fawkes74/jcon-cpp/internal/reflectadapter"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type arith struct {
	tick *reflectadapter.Signal
}

func newArith() *arith {
	return &arith{tick: reflectadapter.NewSignal("tick", []string{"count"}, int(0))}
}

func (a *arith) Add(x, y int) int { return x + y }

func (a *arith) Origin() point { return point{} }

func (a *arith) Explode() (int, error) { return 0, errors.New("boom") }

func (a *arith) Panics() int { panic("nope") }

func (a *arith) Signals() map[string]*reflectadapter.Signal {
	return map[string]*reflectadapter.Signal{"tick": a.tick}
}

func TestEnumerateFindsMethodsAndSignals(t *testing.T) {
	ad := reflectadapter.New()
	svc := newArith()

	ops := ad.Enumerate(svc)

	add := reflectadapter.FindOp(ops, "add")
	require.NotNil(t, add)
	require.Equal(t, reflectadapter.KindMethod, add.Kind)
	require.Equal(t, 2, add.Arity())

	tick := reflectadapter.FindOp(ops, "tick")
	require.NotNil(t, tick)
	require.Equal(t, reflectadapter.KindSignal, tick.Kind)

	origin := reflectadapter.FindOp(ops, "origin")
	require.NotNil(t, origin)
	_, known := ad.Registry.NameOf(origin.ReturnType)
	require.True(t, known, "struct return type should be auto-registered")
}

func TestInvokeCoercesPositionalArgsAndReturnsResult(t *testing.T) {
	ad := reflectadapter.New()
	svc := newArith()
	ops := ad.Enumerate(svc)
	add := reflectadapter.FindOp(ops, "add")

	args, err := ad.CoercePositional(add, []json.RawMessage{
		json.RawMessage(`3`), json.RawMessage(`4`),
	})
	require.NoError(t, err)

	result, err := ad.Invoke(add, args)
	require.NoError(t, err)
	require.Equal(t, 7, result.Interface())
}

func TestInvokeArityMismatch(t *testing.T) {
	ad := reflectadapter.New()
	svc := newArith()
	ops := ad.Enumerate(svc)
	add := reflectadapter.FindOp(ops, "add")

	_, err := ad.CoercePositional(add, []json.RawMessage{json.RawMessage(`3`)})
	require.Error(t, err)
}

func TestInvokePropagatesUnderlyingError(t *testing.T) {
	ad := reflectadapter.New()
	svc := newArith()
	ops := ad.Enumerate(svc)
	explode := reflectadapter.FindOp(ops, "explode")

	_, err := ad.Invoke(explode, nil)
	require.Error(t, err)
}

func TestInvokeRecoversFromPanic(t *testing.T) {
	ad := reflectadapter.New()
	svc := newArith()
	ops := ad.Enumerate(svc)
	panics := reflectadapter.FindOp(ops, "panics")

	_, err := ad.Invoke(panics, nil)
	require.Error(t, err)
}

func TestSubscribeReceivesEmittedArgsAndUnsubscribeStopsThem(t *testing.T) {
	ad := reflectadapter.New()
	svc := newArith()
	ops := ad.Enumerate(svc)
	tick := reflectadapter.FindOp(ops, "tick")

	var got []int
	handle := ad.Subscribe(tick, func(args []reflect.Value) {
		got = append(got, int(args[0].Int()))
	})

	svc.tick.Emit(5)
	require.Equal(t, []int{5}, got)

	ad.Unsubscribe(handle)
	svc.tick.Emit(6)
	require.Equal(t, []int{5}, got, "listener should not fire after unsubscribe")
}
