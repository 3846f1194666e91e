package rpcclient_test

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fawkes74/jcon-cpp/internal/reflectadapter"
	"github.com/fawkes74/jcon-cpp/internal/rpcclient"
	"github.com/fawkes74/jcon-cpp/internal/transport"
	"github.com/fawkes74/jcon-cpp/internal/wire"
)

func newClientOverPipe(t *testing.T) (*rpcclient.Client, net.Conn) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })

	ep := transport.New(transport.NewLineFramer(clientConn), nil)
	c := rpcclient.New(ep, reflectadapter.New(), nil)
	go ep.Run()
	return c, serverConn
}

// tickWatcher is a local handler object standing in for a real service's
// signal listener: RegisterNotificationHandler binds one of its methods by
// name and synthesises the notification's parameter list from that method's
// declared signature.
type tickWatcher struct {
	got chan int
}

func (w *tickWatcher) OnTick(n int) { w.got <- n }

func readOneLine(t *testing.T, conn net.Conn) wire.Message {
	t.Helper()
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	var msg wire.Message
	require.NoError(t, json.Unmarshal(buf[:n-1], &msg))
	return msg
}

func TestCallResolvesOnMatchingResponse(t *testing.T) {
	c, serverConn := newClientOverPipe(t)

	resultCh := make(chan json.RawMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		raw, err := c.Call("add", []json.RawMessage{json.RawMessage("2"), json.RawMessage("3")}, time.Second)
		resultCh <- raw
		errCh <- err
	}()

	req := readOneLine(t, serverConn)
	require.Equal(t, "add", req.Method)

	resp := wire.NewResult(req.ID, json.RawMessage("5"))
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	_, err = serverConn.Write(append(body, '\n'))
	require.NoError(t, err)

	require.NoError(t, <-errCh)
	require.JSONEq(t, "5", string(<-resultCh))
}

func TestCallTimesOutWhenNoResponseArrives(t *testing.T) {
	c, _ := newClientOverPipe(t)

	_, err := c.Call("slow", nil, 20*time.Millisecond)
	require.Error(t, err)
}

func TestNotificationHandlerReceivesServerPush(t *testing.T) {
	c, serverConn := newClientOverPipe(t)

	watcher := &tickWatcher{got: make(chan int, 1)}
	require.NoError(t, c.RegisterNotificationHandler(watcher, "OnTick", "tick", time.Second, nil))

	// Registration issues its own registerSignalHandler call, at once if the
	// client has already seen Connected or else when Connected fires; drain and
	// answer it before pushing the notification the test actually cares about.
	reg := readOneLine(t, serverConn)
	require.Equal(t, "registerSignalHandler", reg.Method)
	regResp := wire.NewResult(reg.ID, json.RawMessage(`{"resultCode":true,"resultText":""}`))
	body, err := json.Marshal(regResp)
	require.NoError(t, err)
	_, err = serverConn.Write(append(body, '\n'))
	require.NoError(t, err)

	note := wire.NewNotification("tick", json.RawMessage(`[1]`))
	body, err = json.Marshal(note)
	require.NoError(t, err)
	_, err = serverConn.Write(append(body, '\n'))
	require.NoError(t, err)

	select {
	case n := <-watcher.got:
		require.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("notification handler was not invoked")
	}
}

func TestDisconnectFailsAllPendingCalls(t *testing.T) {
	c, serverConn := newClientOverPipe(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Call("add", nil, time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, serverConn.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("pending call was not failed on disconnect")
	}
}
