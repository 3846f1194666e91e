package demo

import "github.com/fawkes74/jcon-cpp/internal/reflectadapter"

// Clock exposes a single signal, tick, emitted on a fixed interval. It is
// registered under the empty domain by the serve command, matching §8
// scenario 5's bare "tick" method name.
//
// Clock itself owns no goroutine and has no lifecycle methods: every
// exported method on a registered service becomes a callable RPC operation
// (§4.2), and start/stop control over the server's ticker is host-side
// plumbing, not a spec operation a remote client should be able to invoke.
// The serve command drives emission directly through the Signal returned by
// Signals.
type Clock struct {
	tick *reflectadapter.Signal
}

// NewClock returns a Clock whose tick signal has not yet started emitting.
func NewClock() *Clock {
	return &Clock{tick: reflectadapter.NewSignal("tick", nil)}
}

// Signals implements reflectadapter.SignalSource.
func (c *Clock) Signals() map[string]*reflectadapter.Signal {
	return map[string]*reflectadapter.Signal{"tick": c.tick}
}
