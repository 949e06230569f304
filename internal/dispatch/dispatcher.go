// Package dispatch is the intent bus between observers, the session
// coordinator, and the transport adapters. Actions are processed
// strictly in dispatch order, one at a time, to completion; an action
// dispatched from inside a handler is queued behind the current one,
// never nested.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler consumes one action. Handlers run serialized; no handler ever
// runs concurrently with another on the same dispatcher.
type Handler func(Action)

type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string]Handler
	queue    []Action
	// active marks a goroutine currently draining the queue. Other
	// dispatchers of the moment just append and return.
	active bool
}

func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds the single handler for an action name. A second
// registration for the same name is a wiring bug.
func (d *Dispatcher) Register(name string, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[name]; ok {
		return fmt.Errorf("dispatch: handler already registered for %q", name)
	}
	d.handlers[name] = h
	return nil
}

// MustRegister is Register for construction-time wiring.
func (d *Dispatcher) MustRegister(name string, h Handler) {
	if err := d.Register(name, h); err != nil {
		panic(err)
	}
}

// Dispatch submits an action. If no drain is in progress the calling
// goroutine drains the queue before returning; otherwise the action is
// left for the active drainer and Dispatch returns immediately.
func (d *Dispatcher) Dispatch(a Action) {
	d.mu.Lock()
	d.queue = append(d.queue, a)
	if d.active {
		d.mu.Unlock()
		return
	}
	d.active = true
	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		h, ok := d.handlers[next.Name()]
		d.mu.Unlock()
		if !ok {
			log.Warn().Str("module", "dispatch").Str("action", next.Name()).Msg("no handler registered")
		} else {
			h(next)
		}
		d.mu.Lock()
	}
	d.active = false
	d.mu.Unlock()
}
