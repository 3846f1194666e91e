// Package transport implements the framework's Endpoint (C3): a
// per-connection object that frames and parses JSON-RPC documents over an
// underlying byte stream, and reports connection lifecycle events (§4.3).
package transport

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"sync"

	"github.com/fawkes74/jcon-cpp/internal/logging"
)

// EventKind distinguishes the lifecycle events an Endpoint reports besides
// object_received.
type EventKind int

const (
	Connected EventKind = iota
	Disconnected
	Error
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "error"
	}
}

// Framer reads and writes one logical JSON document at a time from an
// underlying stream, without ever splitting one document across two
// ReadMessage calls or merging two documents into one (§4.3 "the Endpoint
// MUST NOT split one logical document across two emissions").
type Framer interface {
	ReadMessage() (json.RawMessage, error)
	WriteMessage(json.RawMessage) error
	Close() error
}

// Endpoint wraps a Framer, serialising writes and delivering received
// documents and lifecycle events to the callbacks set with OnObjectReceived
// and OnEvent in the exact order they occur on the wire (§4.3 ordering
// guarantee).
type Endpoint struct {
	framer Framer
	logger *log.Logger

	writeMu sync.Mutex

	onObject       func(json.RawMessage)
	onEvent        func(EventKind, error)
	closeOnce      sync.Once
	closed         chan struct{}
}

// New wraps framer in an Endpoint. logger defaults to a discard logger.
func New(framer Framer, logger *log.Logger) *Endpoint {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Endpoint{
		framer: framer,
		logger: logger,
		closed: make(chan struct{}),
	}
}

// OnObjectReceived sets the callback invoked once per well-formed top-level
// JSON document received.
func (e *Endpoint) OnObjectReceived(fn func(json.RawMessage)) { e.onObject = fn }

// OnEvent sets the callback invoked for connected/disconnected/error
// lifecycle transitions.
func (e *Endpoint) OnEvent(fn func(EventKind, error)) { e.onEvent = fn }

// Send writes doc through the framer and returns once that write completes,
// without waiting for any reply from the peer. There is no outgoing queue:
// Send blocks for as long as the underlying write blocks (on a net.Pipe,
// until the peer reads). Concurrent Send calls are safe; writes are
// serialised so one document's bytes are never interleaved with another's.
func (e *Endpoint) Send(doc json.RawMessage) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	select {
	case <-e.closed:
		return io.ErrClosedPipe
	default:
	}
	return e.framer.WriteMessage(doc)
}

// Run drives the read loop until the underlying framer reports an error or
// EOF, emitting connected once at the start and disconnected or error once
// at the end. It blocks the calling goroutine; callers run it in its own
// goroutine per connection.
func (e *Endpoint) Run() {
	e.emit(Connected, nil)

	for {
		msg, err := e.framer.ReadMessage()
		if err != nil {
			if err == io.EOF {
				e.emit(Disconnected, nil)
			} else {
				e.emit(Error, err)
			}
			e.Close()
			return
		}

		if !json.Valid(msg) {
			e.logger.Printf("transport: discarding malformed object: %s", msg)
			continue
		}
		if e.onObject != nil {
			e.onObject(msg)
		}
	}
}

func (e *Endpoint) emit(kind EventKind, err error) {
	if e.onEvent != nil {
		e.onEvent(kind, err)
	}
}

// Close shuts down the underlying framer. Safe to call multiple times and
// concurrently with Run.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		err = e.framer.Close()
	})
	return err
}

// lineFramer implements Framer over line-delimited JSON: one document per
// newline-terminated line, the simplest of the two transport-defined
// framings §4.3 allows.
type lineFramer struct {
	r      *bufio.Scanner
	w      io.Writer
	closer io.Closer
	wmu    sync.Mutex
}

// NewLineFramer returns a Framer reading/writing newline-delimited JSON
// documents over rwc.
func NewLineFramer(rwc io.ReadWriteCloser) Framer {
	scanner := bufio.NewScanner(rwc)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &lineFramer{r: scanner, w: rwc, closer: rwc}
}

func (f *lineFramer) ReadMessage() (json.RawMessage, error) {
	if !f.r.Scan() {
		if err := f.r.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	line := f.r.Bytes()
	out := make([]byte, len(line))
	copy(out, line)
	return out, nil
}

func (f *lineFramer) WriteMessage(doc json.RawMessage) error {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	line := make([]byte, 0, len(doc)+1)
	line = append(line, doc...)
	line = append(line, '\n')
	_, err := f.w.Write(line)
	return err
}

func (f *lineFramer) Close() error { return f.closer.Close() }
