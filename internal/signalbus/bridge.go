// Package signalbus implements the framework's Signal Bridge (C6): it
// answers registerSignalHandler calls by attaching a shared spy to a
// service's signal and fans out each emission to every endpoint subscribed
// to it, reaping subscriptions when their endpoint disconnects (§4.6).
package signalbus

import (
	"encoding/json"
	"log"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/fawkes74/jcon-cpp/internal/logging"
	"github.com/fawkes74/jcon-cpp/internal/reflectadapter"
	"github.com/fawkes74/jcon-cpp/internal/valuecodec"
	"github.com/fawkes74/jcon-cpp/internal/wire"
)

// Sender is the minimal surface a subscribed connection must expose: enough
// to push a notification document, and nothing about the connection's own
// lifecycle. The bridge never owns a Sender; it holds it only for as long
// as the owning dispatcher tells it the connection is alive (§3 "the spy is
// shared by all Subscriptions referencing the same (service, op_index)").
type Sender interface {
	Send(json.RawMessage) error
}

type spyKey struct {
	service interface{}
	opIndex int
}

type subscription struct {
	id       string // log correlation key, distinct id space from wire.Request's RequestId
	domain   string
	service  interface{}
	opName   string
	opIndex  int
	endpoint Sender
}

type spyEntry struct {
	handle reflectadapter.SpyHandle
	subs   []*subscription
}

// Bridge is the framework's C6 implementation, one per server.
type Bridge struct {
	adapter *reflectadapter.Adapter
	reg     *valuecodec.Registry
	logger  *log.Logger

	mu           sync.Mutex
	spies        map[spyKey]*spyEntry
	byEndpoint   map[Sender][]*subscription
}

// New returns a Bridge that resolves envelope type names via reg and
// coerces signal parameter types via adapter's Reflection Adapter.
func New(adapter *reflectadapter.Adapter, reg *valuecodec.Registry, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bridge{
		adapter:    adapter,
		reg:        reg,
		logger:     logger,
		spies:      make(map[spyKey]*spyEntry),
		byEndpoint: make(map[Sender][]*subscription),
	}
}

// Register implements the "on registerSignalHandler" algorithm of §4.6.1.
// domain and service identify the owning ServiceEntry; ops is that
// service's full operation list, used to locate the named signal.
func (b *Bridge) Register(domain string, service interface{}, ops []*reflectadapter.OpDescriptor, signalSignature string, endpoint Sender) (bool, string) {
	opIndex := -1
	var op *reflectadapter.OpDescriptor
	for i, o := range ops {
		if o.Kind == reflectadapter.KindSignal && o.Name == signalSignature {
			opIndex = i
			op = o
			break
		}
	}
	if op == nil {
		return false, "Signal not found."
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := spyKey{service: service, opIndex: opIndex}
	entry, ok := b.spies[key]
	if !ok {
		entry = &spyEntry{}
		entry.handle = b.adapter.Subscribe(op, b.fanOutFunc(op, entry))
		b.spies[key] = entry
	}

	sub := &subscription{
		id:       uuid.NewString(),
		domain:   domain,
		service:  service,
		opName:   op.Name,
		opIndex:  opIndex,
		endpoint: endpoint,
	}
	entry.subs = append(entry.subs, sub)
	b.byEndpoint[endpoint] = append(b.byEndpoint[endpoint], sub)

	b.logger.Printf("signalbus: subscription %s registered for %q", sub.id, op.Name)
	return true, "Signal found and registered."
}

// fanOutFunc builds the emission handler for one (service, opIndex) spy,
// implementing §4.6.2. entry.subs is read fresh on every emission so a
// listener installed once at first-subscriber time stays correct as later
// Subscriptions attach to the same spy.
func (b *Bridge) fanOutFunc(op *reflectadapter.OpDescriptor, entry *spyEntry) func([]reflect.Value) {
	return func(rawArgs []reflect.Value) {
		params := make([]json.RawMessage, len(rawArgs))
		for i, a := range rawArgs {
			enc, err := valuecodec.Encode(a, b.reg)
			if err != nil {
				b.logger.Printf("signalbus: failed to encode signal argument %d of %q: %v", i, op.Name, err)
				enc = json.RawMessage("null")
			}
			params[i] = enc
		}
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			b.logger.Printf("signalbus: failed to marshal params for %q: %v", op.Name, err)
			return
		}

		b.mu.Lock()
		subs := make([]*subscription, len(entry.subs))
		copy(subs, entry.subs)
		b.mu.Unlock()

		for _, sub := range subs {
			method := sub.opName
			if sub.domain != "" {
				method = sub.domain + "/" + sub.opName
			}
			doc, err := json.Marshal(wire.NewNotification(method, paramsJSON))
			if err != nil {
				b.logger.Printf("signalbus: failed to build notification for %q: %v", method, err)
				continue
			}
			if err := sub.endpoint.Send(doc); err != nil {
				b.logger.Printf("signalbus: send to subscription %s (%q) failed: %v", sub.id, method, err)
			}
		}
	}
}

// Reap removes every subscription referencing endpoint, detaching any spy
// left with no remaining subscribers (§3 lifecycle, §4.6.3).
func (b *Bridge) Reap(endpoint Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.byEndpoint[endpoint]
	delete(b.byEndpoint, endpoint)

	for _, sub := range subs {
		key := spyKey{service: sub.service, opIndex: sub.opIndex}
		entry, ok := b.spies[key]
		if !ok {
			continue
		}
		entry.subs = removeSub(entry.subs, sub)
		if len(entry.subs) == 0 {
			b.adapter.Unsubscribe(entry.handle)
			delete(b.spies, key)
		}
	}
}

func removeSub(subs []*subscription, target *subscription) []*subscription {
	out := subs[:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
