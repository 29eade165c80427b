// Package mock provides a recording events.Publisher for testing.
package mock

import (
	"sync"

	"procodus.dev/lab-services/pkg/events"
)

// Publisher records published events.
type Publisher struct {
	mu sync.Mutex

	events []events.Event
	// CloseError is returned by Close.
	CloseError error
	closeCalls int
}

// NewPublisher creates an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

// Close implements events.Publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	return p.CloseError
}

// Events returns a copy of every event published so far.
func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the type of every event published so far, in order.
func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// CloseCalls returns the number of Close calls.
func (p *Publisher) CloseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

// Reset clears recorded events and calls.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	p.closeCalls = 0
}

// Ensure Publisher implements events.Publisher.
var _ events.Publisher = (*Publisher)(nil)
