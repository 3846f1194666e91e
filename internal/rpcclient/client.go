// Package rpcclient implements the framework's Client Correlator (C4): it
// issues calls and notifications over an Endpoint, correlates responses to
// their originating call by RequestId, and dispatches server-pushed
// notifications to registered handlers (§4.4).
package rpcclient

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/fawkes74/jcon-cpp/internal/code"
	"github.com/fawkes74/jcon-cpp/internal/logging"
	"github.com/fawkes74/jcon-cpp/internal/reflectadapter"
	"github.com/fawkes74/jcon-cpp/internal/transport"
	"github.com/fawkes74/jcon-cpp/internal/wire"
)

// PendingCall tracks one outstanding call awaiting a response (§3
// PendingCall). At most one exists per RequestId at any instant.
type PendingCall struct {
	ID        string
	createdAt time.Time

	mu       sync.Mutex
	done     chan struct{}
	fired    bool
	result   json.RawMessage
	callErr  *wire.Error
}

func newPendingCall(id string) *PendingCall {
	return &PendingCall{ID: id, createdAt: time.Now(), done: make(chan struct{})}
}

func (p *PendingCall) fulfilResult(raw json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired {
		return
	}
	p.fired = true
	p.result = raw
	close(p.done)
}

func (p *PendingCall) fulfilError(e *wire.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired {
		return
	}
	p.fired = true
	p.callErr = e
	close(p.done)
}

// onSignalResult receives the outcome of the automatic registerSignalHandler
// call §4.4 issues after a successful RegisterNotificationHandler, exactly
// once. May be nil if the caller does not need it.
type onSignalResult func(ok bool, text string, err error)

type pendingRegistration struct {
	notificationName string
	timeout          time.Duration
	onResult         onSignalResult
}

// Client is the framework's C4 implementation, one per Endpoint.
type Client struct {
	ep      *transport.Endpoint
	adapter *reflectadapter.Adapter
	logger  *log.Logger

	mu          sync.Mutex
	outstanding map[string]*PendingCall
	handlers    map[string]*reflectadapter.OpDescriptor
	pendingRegs []pendingRegistration
	connected   bool
}

// New wires a Client on top of ep. Call ep.Run in its own goroutine; New
// installs the object/event callbacks ep dispatches into. adapter enumerates
// local handler objects passed to RegisterNotificationHandler, the same
// Reflection Adapter C5 uses server-side (§4.2).
func New(ep *transport.Endpoint, adapter *reflectadapter.Adapter, logger *log.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	if adapter == nil {
		adapter = reflectadapter.New()
	}
	c := &Client{
		ep:          ep,
		adapter:     adapter,
		logger:      logger,
		outstanding: make(map[string]*PendingCall),
		handlers:    make(map[string]*reflectadapter.OpDescriptor),
	}
	ep.OnObjectReceived(c.handleObject)
	ep.OnEvent(c.handleEvent)
	return c
}

func (c *Client) handleEvent(kind transport.EventKind, err error) {
	switch kind {
	case transport.Connected:
		c.mu.Lock()
		c.connected = true
		regs := c.pendingRegs
		c.pendingRegs = nil
		c.mu.Unlock()
		for _, r := range regs {
			go c.sendSignalRegistration(r.notificationName, r.timeout, r.onResult)
		}
	case transport.Disconnected, transport.Error:
		c.failAllPending(&wire.Error{Code: int(code.Transport), Message: "transport disconnected"})
	}
}

// failAllPending fails every PendingCall with e and empties OutstandingMap,
// resolving §9 Open Question (a) as SPEC_FULL requires.
func (c *Client) failAllPending(e *wire.Error) {
	c.mu.Lock()
	pending := c.outstanding
	c.outstanding = make(map[string]*PendingCall)
	c.mu.Unlock()

	for _, pc := range pending {
		pc.fulfilError(e)
	}
}

// handleObject implements the "incoming response" algorithm of §4.4.
func (c *Client) handleObject(raw json.RawMessage) {
	var msg wire.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Printf("rpcclient: dropping unparseable object: %v", err)
		return
	}
	if msg.JSONRPC != wire.Version {
		c.logger.Printf("rpcclient: dropping object with jsonrpc=%q", msg.JSONRPC)
		return
	}

	if msg.Error != nil {
		id := wire.UnquoteID(msg.ID)
		if id == "" {
			c.logger.Printf("rpcclient: error response missing id: %s", raw)
			return
		}
		c.mu.Lock()
		pc, found := c.outstanding[id]
		delete(c.outstanding, id)
		c.mu.Unlock()
		if !found {
			c.logger.Printf("rpcclient: error response for unknown id %q", id)
			return
		}
		pc.fulfilError(msg.Error)
		return
	}

	if len(msg.ID) == 0 {
		c.dispatchNotification(msg.Method, msg.Params)
		return
	}

	if msg.Result == nil {
		c.logger.Printf("rpcclient: malformed response, neither result nor error: %s", raw)
		return
	}

	id := wire.UnquoteID(msg.ID)
	if id == "" {
		c.logger.Printf("rpcclient: response with unparseable id: %s", raw)
		return
	}
	c.mu.Lock()
	pc, found := c.outstanding[id]
	delete(c.outstanding, id)
	c.mu.Unlock()
	if !found {
		c.logger.Printf("rpcclient: response for unknown id %q", id)
		return
	}
	pc.fulfilResult(msg.Result)
}

// dispatchNotification implements §4.4 step 3: decode params member-by-member
// via C1 against the bound local handler's declared parameter types, then
// invoke it through C2.
func (c *Client) dispatchNotification(method string, params json.RawMessage) {
	c.mu.Lock()
	op, ok := c.handlers[method]
	c.mu.Unlock()
	if !ok {
		return
	}

	var positional []json.RawMessage
	if err := json.Unmarshal(params, &positional); err != nil {
		c.logger.Printf("rpcclient: notification %q params not a list: %v", method, err)
		return
	}
	args, err := c.adapter.CoercePositional(op, positional)
	if err != nil {
		c.logger.Printf("rpcclient: failed to decode notification %q params: %v", method, err)
		return
	}
	if _, err := c.adapter.Invoke(op, args); err != nil {
		c.logger.Printf("rpcclient: notification handler for %q failed: %v", method, err)
	}
}

// CallAsync issues method with positional params and returns a handle whose
// sinks fire exactly once (§4.4 call_async).
func (c *Client) CallAsync(method string, params []json.RawMessage) (*PendingCall, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("generating request id: %w", err)
	}

	pc := newPendingCall(id)
	c.mu.Lock()
	c.outstanding[id] = pc
	c.mu.Unlock()

	if params == nil {
		params = []json.RawMessage{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		c.mu.Lock()
		delete(c.outstanding, id)
		c.mu.Unlock()
		return nil, err
	}

	req := wire.NewRequest(id, method, paramsJSON)
	doc, err := json.Marshal(req)
	if err != nil {
		c.mu.Lock()
		delete(c.outstanding, id)
		c.mu.Unlock()
		return nil, err
	}

	if err := c.ep.Send(doc); err != nil {
		c.mu.Lock()
		delete(c.outstanding, id)
		c.mu.Unlock()
		return nil, err
	}
	return pc, nil
}

// Call issues method synchronously, blocking until a response arrives or
// timeout elapses (§4.4 call, §5 "Inside call (sync)").
func (c *Client) Call(method string, params []json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	type issued struct {
		pc  *PendingCall
		err error
	}
	issuedCh := make(chan issued, 1)
	go func() {
		pc, err := c.CallAsync(method, params)
		issuedCh <- issued{pc, err}
	}()

	var pc *PendingCall
	select {
	case r := <-issuedCh:
		if r.err != nil {
			return nil, r.err
		}
		pc = r.pc
	case <-timer.C:
		return nil, code.Timeout.Err()
	}

	select {
	case <-pc.done:
		pc.mu.Lock()
		defer pc.mu.Unlock()
		if pc.callErr != nil {
			return nil, pc.callErr
		}
		return pc.result, nil
	case <-timer.C:
		return nil, code.Timeout.Err()
	}
}

// Notify sends method as a notification (no id), never awaiting a reply.
func (c *Client) Notify(method string, params []json.RawMessage) error {
	if params == nil {
		params = []json.RawMessage{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(wire.NewNotification(method, paramsJSON))
	if err != nil {
		return err
	}
	return c.ep.Send(doc)
}

// RegisterNotificationHandler implements §4.4's
// register_notification_handler(object, op_name, notification_name): it
// binds handlerObj's handlerMethod as the local callback for server-pushed
// notificationName notifications. The parameter list used to decode each
// pushed notification is synthesised from handlerMethod's declared Go
// signature via the Reflection Adapter (mirroring the original's
// QMetaMethod introspection), so handlerObj needs no separate signature
// declaration. The local binding takes effect immediately; if the connection
// is not yet up, the wire registration is deferred and replayed on connect
// (§9 "Deferred registration"); either way, once connected, the client automatically
// issues a registerSignalHandler call for notificationName's wire signature,
// reporting the outcome to onResult exactly once if it is non-nil.
func (c *Client) RegisterNotificationHandler(handlerObj interface{}, handlerMethod, notificationName string, timeout time.Duration, onResult onSignalResult) error {
	ops := c.adapter.Enumerate(handlerObj)
	op := reflectadapter.FindOp(ops, reflectadapter.WireName(handlerMethod))
	if op == nil {
		return fmt.Errorf("rpcclient: handler method %q not found on %T", handlerMethod, handlerObj)
	}

	c.mu.Lock()
	c.handlers[notificationName] = op
	connected := c.connected
	if !connected {
		c.pendingRegs = append(c.pendingRegs, pendingRegistration{
			notificationName: notificationName,
			timeout:          timeout,
			onResult:         onResult,
		})
	}
	c.mu.Unlock()

	if connected {
		go c.sendSignalRegistration(notificationName, timeout, onResult)
	}
	return nil
}

// sendSignalRegistration performs the automatic registerSignalHandler round
// trip in its own goroutine: it runs off the Endpoint's read loop, since that
// loop is what delivers the very response this call blocks on.
func (c *Client) sendSignalRegistration(notificationName string, timeout time.Duration, onResult onSignalResult) {
	ok, text, err := c.RegisterSignalHandler(notificationName, timeout)
	if onResult != nil {
		onResult(ok, text, err)
	}
	if err != nil {
		c.logger.Printf("rpcclient: registerSignalHandler for %q failed: %v", notificationName, err)
	}
}

// RegisterSignalHandler issues the registerSignalHandler call the client
// makes after a successful RegisterNotificationHandler (§4.4 "the client
// additionally issues a registerSignalHandler call"). Exported directly for
// callers that want to manage the wire registration themselves.
func (c *Client) RegisterSignalHandler(signalSignature string, timeout time.Duration) (bool, string, error) {
	sig, err := json.Marshal(signalSignature)
	if err != nil {
		return false, "", err
	}
	raw, err := c.Call("registerSignalHandler", []json.RawMessage{sig}, timeout)
	if err != nil {
		return false, "", err
	}

	var reply struct {
		ResultCode bool   `json:"resultCode"`
		ResultText string `json:"resultText"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return false, "", err
	}
	return reply.ResultCode, reply.ResultText, nil
}
