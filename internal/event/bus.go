// Package event fans session lifecycle notifications out to dependent
// subsystems.
//
// Publishing never blocks: a subscriber that stops draining its channel loses
// events (logged) rather than stalling the supervisor. Subscribers that need
// every event size their buffers accordingly.
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates lifecycle events.
type Kind string

const (
	KindSessionOpened        Kind = "session_opened"
	KindSessionClosed        Kind = "session_closed"
	KindCredentialsPersisted Kind = "credentials_persisted"
	KindPairingCode          Kind = "pairing_code"
)

// Event is one lifecycle notification.
type Event struct {
	ID       uuid.UUID
	Kind     Kind
	Identity string
	At       time.Time

	// IsNewSession is set on KindSessionOpened: true when the identity had no
	// stored credential before this connect.
	IsNewSession bool
	// Reason is set on KindSessionClosed.
	Reason string
	// PairingCode is set on KindPairingCode.
	PairingCode string
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	name string
	ch   chan Event
	bus  *Bus
}

// Events returns the subscription's channel. It is closed by Cancel or by the
// bus shutting down.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Cancel detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Cancel() {
	s.bus.remove(s)
}

// Bus delivers events to all current subscribers.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a named subscriber with the given channel buffer.
// Subscribing to a closed bus returns an already-closed subscription.
func (b *Bus) Subscribe(name string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}

	sub := &Subscription{
		name: name,
		ch:   make(chan Event, buffer),
		bus:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}

	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber. A zero ID and timestamp are filled
// in. Full subscriber buffers drop the event.
func (b *Bus) Publish(ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("event subscriber buffer full, dropping event",
				"subscriber", sub.name,
				"kind", ev.Kind,
				"identity", ev.Identity,
			)
		}
	}
}

// Close detaches every subscriber and closes their channels. Publish after
// Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

// remove detaches one subscription. Membership check keeps double Cancel and
// Cancel-after-Close from closing the channel twice.
func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
