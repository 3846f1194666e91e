package rpcserver

import (
	"context"
	"log"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/fawkes74/jcon-cpp/internal/logging"
	"github.com/fawkes74/jcon-cpp/internal/transport"
)

// ListenTCP accepts connections on addr, framing each as line-delimited
// JSON and handing it to d.HandleConnection, until ctx is cancelled.
func (d *Dispatcher) ListenTCP(ctx context.Context, addr string, logger *log.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.Printf("rpcserver: listening on %s (tcp)", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Printf("rpcserver: accept error: %v", err)
				return err
			}
		}
		ep := transport.New(transport.NewLineFramer(conn), logger)
		d.HandleConnection(ep)
		go ep.Run()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ListenWebSocket serves a single WebSocket endpoint at path on addr,
// framing each connection's messages as JSON documents (§3 DOMAIN STACK,
// gorilla/websocket).
func (d *Dispatcher) ListenWebSocket(ctx context.Context, addr, path string, logger *log.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("rpcserver: websocket upgrade failed: %v", err)
			return
		}
		ep := transport.New(transport.NewWebSocketFramer(conn), logger)
		d.HandleConnection(ep)
		go ep.Run()
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Printf("rpcserver: listening on %s%s (websocket)", addr, path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ServeStdio runs a single connection over the given framer (such as a line
// framer over stdin/stdout), blocking until the connection closes.
func (d *Dispatcher) ServeStdio(stdio transport.Framer, logger *log.Logger) {
	ep := transport.New(stdio, logger)
	d.HandleConnection(ep)
	ep.Run()
}
