package transport_test

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fawkes74/jcon-cpp/internal/transport"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestEndpointDeliversObjectsInWireOrder(t *testing.T) {
	client, server := pipePair(t)

	serverEP := transport.New(transport.NewLineFramer(server), nil)
	var mu sync.Mutex
	var received []string
	done := make(chan struct{})
	serverEP.OnObjectReceived(func(raw json.RawMessage) {
		mu.Lock()
		received = append(received, string(raw))
		if len(received) == 3 {
			close(done)
		}
		mu.Unlock()
	})
	go serverEP.Run()

	clientEP := transport.New(transport.NewLineFramer(client), nil)
	go clientEP.Run()

	require.NoError(t, clientEP.Send(json.RawMessage(`{"n":1}`)))
	require.NoError(t, clientEP.Send(json.RawMessage(`{"n":2}`)))
	require.NoError(t, clientEP.Send(json.RawMessage(`{"n":3}`)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all objects")
	}

	require.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, received)
}

func TestEndpointEmitsDisconnectedOnClose(t *testing.T) {
	client, server := pipePair(t)

	serverEP := transport.New(transport.NewLineFramer(server), nil)
	eventCh := make(chan transport.EventKind, 4)
	serverEP.OnEvent(func(kind transport.EventKind, err error) {
		eventCh <- kind
	})
	go serverEP.Run()

	require.NoError(t, client.Close())

	select {
	case kind := <-eventCh:
		require.Equal(t, transport.Connected, kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connected event")
	}

	select {
	case kind := <-eventCh:
		require.Contains(t, []transport.EventKind{transport.Disconnected, transport.Error}, kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
}

func TestEndpointDiscardsMalformedObjectAndKeepsConnectionUp(t *testing.T) {
	client, server := pipePair(t)

	serverEP := transport.New(transport.NewLineFramer(server), nil)
	received := make(chan json.RawMessage, 1)
	serverEP.OnObjectReceived(func(raw json.RawMessage) {
		received <- raw
	})
	go serverEP.Run()

	clientEP := transport.New(transport.NewLineFramer(client), nil)
	go clientEP.Run()

	require.NoError(t, clientEP.Send(json.RawMessage(`not json`)))
	require.NoError(t, clientEP.Send(json.RawMessage(`{"ok":true}`)))

	select {
	case raw := <-received:
		require.JSONEq(t, `{"ok":true}`, string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for well-formed object after malformed one")
	}
}
