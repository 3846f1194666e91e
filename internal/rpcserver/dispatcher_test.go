package rpcserver_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fawkes74/jcon-cpp/internal/demo"
	"github.com/fawkes74/jcon-cpp/internal/reflectadapter"
	"github.com/fawkes74/jcon-cpp/internal/rpcserver"
	"github.com/fawkes74/jcon-cpp/internal/signalbus"
	"github.com/fawkes74/jcon-cpp/internal/wire"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []json.RawMessage
}

func (f *fakeSender) Send(doc json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, doc)
	return nil
}

func (f *fakeSender) last(t *testing.T) wire.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	var msg wire.Message
	require.NoError(t, json.Unmarshal(f.sent[len(f.sent)-1], &msg))
	return msg
}

func newDispatcher() *rpcserver.Dispatcher {
	adapter := reflectadapter.New()
	bridge := signalbus.New(adapter, adapter.Registry, nil)
	return rpcserver.New(adapter, bridge, nil)
}

func TestDispatchPositionalAdd(t *testing.T) {
	d := newDispatcher()
	require.NoError(t, d.RegisterService(demo.NewArith(), "math"))

	sender := &fakeSender{}
	d.Dispatch(sender, json.RawMessage(`{"jsonrpc":"2.0","method":"math/add","params":[2,3],"id":"1"}`))

	msg := sender.last(t)
	require.Nil(t, msg.Error)
	require.JSONEq(t, "5", string(msg.Result))
}

func TestDispatchNamedGreet(t *testing.T) {
	d := newDispatcher()
	require.NoError(t, d.RegisterService(demo.NewArith(), "math"))

	sender := &fakeSender{}
	d.Dispatch(sender, json.RawMessage(`{"jsonrpc":"2.0","method":"math/greet","params":{"name":"ada"},"id":"1"}`))

	msg := sender.last(t)
	require.Nil(t, msg.Error)
	require.JSONEq(t, `"hello ada"`, string(msg.Result))
}

func TestDispatchUnknownMethodReturnsMethodNotFound(t *testing.T) {
	d := newDispatcher()
	require.NoError(t, d.RegisterService(demo.NewArith(), "math"))

	sender := &fakeSender{}
	d.Dispatch(sender, json.RawMessage(`{"jsonrpc":"2.0","method":"math/foo","params":[],"id":"1"}`))

	msg := sender.last(t)
	require.NotNil(t, msg.Error)
	require.EqualValues(t, -32601, msg.Error.Code)
	require.Contains(t, msg.Error.Message, "foo")
}

func TestDispatchMathDomainSqrt(t *testing.T) {
	d := newDispatcher()
	require.NoError(t, d.RegisterService(demo.NewArith(), "math"))

	sender := &fakeSender{}
	d.Dispatch(sender, json.RawMessage(`{"jsonrpc":"2.0","method":"math/sqrt","params":[16],"id":"1"}`))

	msg := sender.last(t)
	require.Nil(t, msg.Error)
	require.JSONEq(t, "4", string(msg.Result))
}

func TestRegisterServiceRejectsSlashInDomain(t *testing.T) {
	d := newDispatcher()
	err := d.RegisterService(demo.NewArith(), "a/b")
	require.Error(t, err)
}

func TestRegisterServiceDuplicateDomainIsNoop(t *testing.T) {
	d := newDispatcher()
	require.NoError(t, d.RegisterService(demo.NewArith(), "math"))
	require.NoError(t, d.RegisterService(demo.NewArith(), "math"))
}

func TestNotificationReceivesNoResponse(t *testing.T) {
	d := newDispatcher()
	require.NoError(t, d.RegisterService(demo.NewArith(), "math"))

	sender := &fakeSender{}
	d.Dispatch(sender, json.RawMessage(`{"jsonrpc":"2.0","method":"math/add","params":[1,1]}`))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Empty(t, sender.sent)
}

func TestRegisterSignalHandlerAndFanOut(t *testing.T) {
	d := newDispatcher()
	clock := demo.NewClock()
	require.NoError(t, d.RegisterService(clock, ""))

	sender := &fakeSender{}
	d.Dispatch(sender, json.RawMessage(`{"jsonrpc":"2.0","method":"registerSignalHandler","params":["tick"],"id":"1"}`))

	msg := sender.last(t)
	require.Nil(t, msg.Error)

	var reply struct {
		ResultCode bool   `json:"resultCode"`
		ResultText string `json:"resultText"`
	}
	require.NoError(t, json.Unmarshal(msg.Result, &reply))
	require.True(t, reply.ResultCode)

	clock.Signals()["tick"].Emit()

	notif := sender.last(t)
	require.Equal(t, "tick", notif.Method)
	require.JSONEq(t, "[]", string(notif.Params))
}

func TestRegisterSignalHandlerUnknownSignal(t *testing.T) {
	d := newDispatcher()
	require.NoError(t, d.RegisterService(demo.NewClock(), ""))

	sender := &fakeSender{}
	d.Dispatch(sender, json.RawMessage(`{"jsonrpc":"2.0","method":"registerSignalHandler","params":["ghost"],"id":"1"}`))

	msg := sender.last(t)
	var reply struct {
		ResultCode bool   `json:"resultCode"`
		ResultText string `json:"resultText"`
	}
	require.NoError(t, json.Unmarshal(msg.Result, &reply))
	require.False(t, reply.ResultCode)
}
