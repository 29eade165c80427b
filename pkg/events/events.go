// Package events publishes change notifications for stored files and sensor configs.
package events

import (
	"time"
)

// Event types emitted by the services.
const (
	TypeFileCreated   = "file.created"
	TypeFileUpdated   = "file.updated"
	TypeFileDeleted   = "file.deleted"
	TypeConfigCreated = "sensor.config.created"
	TypeConfigUpdated = "sensor.config.updated"
)

// Event is one change notification. It is published as JSON.
type Event struct {
	Type       string            `json:"type"`
	Subject    string            `json:"subject"`
	Occurred   time.Time         `json:"occurred"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// New builds an event stamped with the current UTC time.
// attrs is read as key/value pairs; a trailing odd key is ignored.
func New(eventType, subject string, attrs ...string) Event {
	ev := Event{
		Type:     eventType,
		Subject:  subject,
		Occurred: time.Now().UTC(),
	}
	if len(attrs) >= 2 {
		ev.Attributes = make(map[string]string, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			ev.Attributes[attrs[i]] = attrs[i+1]
		}
	}
	return ev
}

// Publisher accepts events for asynchronous delivery.
type Publisher interface {
	// Publish enqueues ev without blocking. Delivery is best-effort:
	// events are dropped when the publisher is saturated or closed.
	Publish(ev Event)

	// Close stops delivery and releases the broker connection.
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Ensure the implementations satisfy Publisher.
var (
	_ Publisher = Nop{}
	_ Publisher = (*Client)(nil)
)
