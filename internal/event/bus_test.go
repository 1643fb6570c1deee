package event

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	a := bus.Subscribe("a", 4)
	b := bus.Subscribe("b", 4)

	bus.Publish(Event{Kind: KindSessionOpened, Identity: "15550100", IsNewSession: true})
	bus.Publish(Event{Kind: KindSessionClosed, Identity: "15550100", Reason: "stopped"})

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		opened := recvEvent(t, sub)
		if opened.Kind != KindSessionOpened || !opened.IsNewSession {
			t.Errorf("%s: first event = %+v, want session_opened/new", name, opened)
		}
		if opened.ID.String() == "00000000-0000-0000-0000-000000000000" {
			t.Errorf("%s: event ID not assigned", name)
		}
		if opened.At.IsZero() {
			t.Errorf("%s: event timestamp not assigned", name)
		}

		closed := recvEvent(t, sub)
		if closed.Kind != KindSessionClosed || closed.Reason != "stopped" {
			t.Errorf("%s: second event = %+v, want session_closed/stopped", name, closed)
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe("sub", 4)
	keep := bus.Subscribe("keep", 4)

	sub.Cancel()
	sub.Cancel() // second cancel is a no-op

	bus.Publish(Event{Kind: KindPairingCode, Identity: "15550100", PairingCode: "ABCD-1234"})

	if _, ok := <-sub.Events(); ok {
		t.Error("canceled subscription still receives events")
	}

	ev := recvEvent(t, keep)
	if ev.PairingCode != "ABCD-1234" {
		t.Errorf("remaining subscriber got %+v", ev)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe("slow", 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Kind: KindSessionOpened, Identity: "15550100"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	// Exactly the buffered event remains.
	recvEvent(t, sub)
	select {
	case ev := <-sub.Events():
		t.Errorf("expected drops, got extra event %+v", ev)
	default:
	}
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe("sub", 1)

	bus.Close()
	bus.Close() // idempotent

	if _, ok := <-sub.Events(); ok {
		t.Error("subscription channel not closed by bus Close")
	}

	// Publish and Subscribe after Close must not panic.
	bus.Publish(Event{Kind: KindSessionOpened, Identity: "15550100"})

	late := bus.Subscribe("late", 1)
	if _, ok := <-late.Events(); ok {
		t.Error("late subscription should start closed")
	}
	late.Cancel()
}

func recvEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()

	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed while waiting for event")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
