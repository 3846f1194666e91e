// Package rpcserver implements the framework's Server Dispatcher (C5): it
// registers services under a domain, routes incoming JSON-RPC documents to
// the matching operation, and converts the outcome to a response document,
// delegating signal subscription bookkeeping to the Signal Bridge (§4.5).
package rpcserver

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/fawkes74/jcon-cpp/internal/code"
	"github.com/fawkes74/jcon-cpp/internal/logging"
	"github.com/fawkes74/jcon-cpp/internal/reflectadapter"
	"github.com/fawkes74/jcon-cpp/internal/signalbus"
	"github.com/fawkes74/jcon-cpp/internal/transport"
	"github.com/fawkes74/jcon-cpp/internal/valuecodec"
	"github.com/fawkes74/jcon-cpp/internal/wire"
)

// ServiceEntry is one registered service (§3 ServiceEntry).
type ServiceEntry struct {
	Domain  string
	Service interface{}
	Ops     []*reflectadapter.OpDescriptor
}

// Dispatcher is the framework's C5 implementation, one per server.
type Dispatcher struct {
	adapter *reflectadapter.Adapter
	bridge  *signalbus.Bridge
	logger  *log.Logger

	mu       sync.RWMutex
	services map[string]*ServiceEntry
}

// New returns a Dispatcher that encodes results against adapter.Registry,
// typically the same *valuecodec.Registry passed to signalbus.New.
func New(adapter *reflectadapter.Adapter, bridge *signalbus.Bridge, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		adapter:  adapter,
		bridge:   bridge,
		logger:   logger,
		services: make(map[string]*ServiceEntry),
	}
}

// RegisterService records service under domain, rejecting a domain
// containing "/" and ignoring a duplicate domain with a logged warning (§4.5
// register_service).
func (d *Dispatcher) RegisterService(service interface{}, domain string) error {
	if strings.Contains(domain, "/") {
		return code.Errorf(code.InvalidParams, "domain %q must not contain '/'", domain)
	}

	ops := d.adapter.Enumerate(service)
	if err := validateOps(ops); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.services[domain]; exists {
		d.logger.Printf("rpcserver: domain %q already registered, ignoring", domain)
		return nil
	}
	d.services[domain] = &ServiceEntry{Domain: domain, Service: service, Ops: ops}
	return nil
}

// validateOps aggregates every structurally invalid descriptor into one
// error instead of failing on the first (§2.2 ambient error handling).
func validateOps(ops []*reflectadapter.OpDescriptor) error {
	var result *multierror.Error
	seen := make(map[string]bool)
	for _, op := range ops {
		if op.Name == "" {
			result = multierror.Append(result, fmt.Errorf("operation with empty name"))
			continue
		}
		if seen[op.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate operation name %q", op.Name))
		}
		seen[op.Name] = true
	}
	return result.ErrorOrNil()
}

// Sender is satisfied by *transport.Endpoint; declared as an interface so
// the dispatcher and tests can substitute a fake connection.
type Sender interface {
	Send(json.RawMessage) error
}

var _ Sender = (*transport.Endpoint)(nil)
var _ signalbus.Sender = (*transport.Endpoint)(nil)

// HandleConnection wires ep's object_received and lifecycle events to this
// dispatcher: every received document is dispatched, and disconnection
// reaps any signal subscriptions ep held (§3 Subscription lifecycle).
func (d *Dispatcher) HandleConnection(ep *transport.Endpoint) {
	ep.OnObjectReceived(func(raw json.RawMessage) {
		d.Dispatch(ep, raw)
	})
	ep.OnEvent(func(kind transport.EventKind, err error) {
		if kind == transport.Disconnected || kind == transport.Error {
			d.bridge.Reap(ep)
		}
	})
}

// Dispatch implements the dispatch algorithm of §4.5. It never propagates a
// failure to its caller: every error path ends in either a logged drop or a
// JSON-RPC error response.
func (d *Dispatcher) Dispatch(ep Sender, raw json.RawMessage) {
	var msg wire.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.logger.Printf("rpcserver: dropping unparseable request: %v", err)
		return
	}
	if msg.JSONRPC != wire.Version {
		d.logger.Printf("rpcserver: dropping request with jsonrpc=%q", msg.JSONRPC)
		return
	}
	if msg.Method == "" {
		d.logger.Printf("rpcserver: dropping request with empty method")
		return
	}

	isNotification := len(msg.ID) == 0

	domain, opName, err := splitMethod(msg.Method)
	if err != nil {
		d.respondError(ep, msg.ID, isNotification, code.MethodNotFound, err.Error())
		return
	}

	d.mu.RLock()
	entry, ok := d.services[domain]
	d.mu.RUnlock()
	if !ok {
		d.respondError(ep, msg.ID, isNotification, code.MethodNotFound,
			fmt.Sprintf("no service registered for domain %q", domain))
		return
	}

	if opName == "registerSignalHandler" {
		d.handleRegisterSignalHandler(ep, entry, msg)
		return
	}

	result, invokeErr := d.invokeOverload(entry, opName, msg.Params)
	if invokeErr != nil {
		c := code.FromError(invokeErr)
		d.respondError(ep, msg.ID, isNotification, c, invokeErr.Error())
		return
	}

	if isNotification {
		return
	}
	d.respondResult(ep, msg.ID, result, entry)
}

// splitMethod implements §4.5 step 3.
func splitMethod(method string) (domain, opName string, err error) {
	parts := strings.SplitN(method, "/", 2)
	if len(parts) == 1 {
		return "", parts[0], nil
	}
	if strings.Contains(parts[1], "/") {
		return "", "", fmt.Errorf("method %q has more than one '/'", method)
	}
	return parts[0], parts[1], nil
}

// invokeOverload implements §4.5 step 6: try every op named opName until
// one accepts the params, permitting overload resolution by arity/type.
func (d *Dispatcher) invokeOverload(entry *ServiceEntry, opName string, rawParams json.RawMessage) (interface{}, error) {
	var positional []json.RawMessage
	var named map[string]json.RawMessage
	if err := json.Unmarshal(rawParams, &positional); err != nil {
		positional = nil
		if err := json.Unmarshal(rawParams, &named); err != nil {
			named = nil
		}
	}

	var attempts *multierror.Error
	tried := false
	for _, op := range entry.Ops {
		if op.Kind != reflectadapter.KindMethod || op.Name != opName {
			continue
		}
		tried = true

		reflectArgs, coerceErr := d.coerceParams(op, positional, named)
		if coerceErr != nil {
			attempts = multierror.Append(attempts, coerceErr)
			continue
		}

		result, invokeErr := d.adapter.Invoke(op, reflectArgs)
		if invokeErr != nil {
			return nil, invokeErr
		}
		if !result.IsValid() {
			return nil, nil
		}
		return result.Interface(), nil
	}

	if tried {
		return nil, code.Errorf(code.MethodNotFound,
			"no overload of %q accepted the given arguments: %v", opName, attempts.ErrorOrNil())
	}
	return nil, code.Errorf(code.MethodNotFound, "method %q not found", opName)
}

// coerceParams implements §4.5 step 6's positional-vs-named branch.
func (d *Dispatcher) coerceParams(op *reflectadapter.OpDescriptor, positional []json.RawMessage, named map[string]json.RawMessage) ([]reflect.Value, error) {
	if positional != nil {
		return d.adapter.CoercePositional(op, positional)
	}
	if named != nil {
		return d.adapter.CoerceNamed(op, named)
	}
	return nil, code.Errorf(code.InvalidParams, "params must be a list or an object")
}

// handleRegisterSignalHandler implements §4.5 step 5, forwarding to C6 and
// replying with its {resultCode, resultText} verdict.
func (d *Dispatcher) handleRegisterSignalHandler(ep Sender, entry *ServiceEntry, msg wire.Message) {
	var params []json.RawMessage
	if err := json.Unmarshal(msg.Params, &params); err != nil || len(params) != 1 {
		d.respondError(ep, msg.ID, len(msg.ID) == 0, code.InvalidParams, "registerSignalHandler expects a single signal name argument")
		return
	}
	var signalName string
	if err := json.Unmarshal(params[0], &signalName); err != nil {
		d.respondError(ep, msg.ID, len(msg.ID) == 0, code.InvalidParams, "registerSignalHandler argument must be a string")
		return
	}

	sender, ok := ep.(signalbus.Sender)
	if !ok {
		d.respondError(ep, msg.ID, len(msg.ID) == 0, code.InternalError, "endpoint cannot receive push notifications")
		return
	}

	ok2, text := d.bridge.Register(entry.Domain, entry.Service, entry.Ops, signalName, sender)

	if len(msg.ID) == 0 {
		return
	}
	result := map[string]interface{}{"resultCode": ok2, "resultText": text}
	body, err := json.Marshal(result)
	if err != nil {
		d.respondError(ep, msg.ID, false, code.InternalError, "failed to encode registerSignalHandler reply")
		return
	}
	resp := wire.NewResult(msg.ID, body)
	doc, err := json.Marshal(resp)
	if err != nil {
		d.logger.Printf("rpcserver: failed to marshal response: %v", err)
		return
	}
	if err := ep.Send(doc); err != nil {
		d.logger.Printf("rpcserver: failed to send response: %v", err)
	}
}

// respondResult sends a success response, envelope-encoding result via C1
// against the adapter's type registry (§4.5 step 8).
func (d *Dispatcher) respondResult(ep Sender, id json.RawMessage, result interface{}, entry *ServiceEntry) {
	encoded, err := valuecodec.Encode(reflect.ValueOf(result), d.adapter.Registry)
	if err != nil {
		d.respondError(ep, id, false, code.InvalidRequest, fmt.Sprintf("failed to encode result: %v", err))
		return
	}

	resp := wire.NewResult(id, encoded)
	doc, err := json.Marshal(resp)
	if err != nil {
		d.logger.Printf("rpcserver: failed to marshal response: %v", err)
		return
	}
	if err := ep.Send(doc); err != nil {
		d.logger.Printf("rpcserver: failed to send response: %v", err)
	}
}

// respondError sends an error response, or simply logs when the originating
// message was a notification (§4.5: notifications never receive a reply).
func (d *Dispatcher) respondError(ep Sender, id json.RawMessage, isNotification bool, c code.Code, message string) {
	d.logger.Printf("rpcserver: %s (code %d)", message, c)
	if isNotification {
		return
	}
	resp := wire.NewError(id, int(c), message, nil)
	doc, err := json.Marshal(resp)
	if err != nil {
		d.logger.Printf("rpcserver: failed to marshal error response: %v", err)
		return
	}
	if err := ep.Send(doc); err != nil {
		d.logger.Printf("rpcserver: failed to send error response: %v", err)
	}
}
