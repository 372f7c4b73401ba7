package events

import (
	"testing"
)

func TestPublishFanOut(t *testing.T) {
	h := NewEventHub()
	a, b := h.Subscribe(), h.Subscribe()
	defer h.Unsubscribe(b)

	h.Publish(DischargeState, DischargeStateEvent{Battery: "BAT0", State: "running", Charge: 42})

	for _, ch := range []chan Event{a, b} {
		ev := <-ch
		if ev.Name != DischargeState {
			t.Fatalf("event name = %s", ev.Name)
		}
		p, err := DecodeAs[DischargeStateEvent](ev)
		if err != nil {
			t.Fatalf("DecodeAs() error = %v", err)
		}
		if p.Battery != "BAT0" || p.State != "running" || p.Charge != 42 {
			t.Fatalf("payload = %+v", p)
		}
	}

	h.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Fatalf("unsubscribed channel must be closed")
	}
	h.Unsubscribe(a)
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < cap(ch)+10; i++ {
		h.Publish(ThresholdsApplied, ThresholdsAppliedEvent{Battery: "BAT0", Stop: i})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered = %d, want %d", len(ch), cap(ch))
	}

	var nilHub *EventHub
	nilHub.Publish(ThresholdsApplied, nil)
}

func TestDecodeAsEmpty(t *testing.T) {
	p, err := DecodeAs[ThresholdsAppliedEvent](Event{Name: ThresholdsApplied})
	if err != nil || p != (ThresholdsAppliedEvent{}) {
		t.Fatalf("DecodeAs(empty) = %+v, %v", p, err)
	}
}

func TestClose(t *testing.T) {
	h := NewEventHub()
	a := h.Subscribe()
	if n := h.Subscribers(); n != 1 {
		t.Fatalf("Subscribers() = %d, want 1", n)
	}

	h.Close()
	if _, ok := <-a; ok {
		t.Fatalf("subscriber must be closed by Close")
	}
	if n := h.Subscribers(); n != 0 {
		t.Fatalf("Subscribers() = %d after Close", n)
	}

	b := h.Subscribe()
	if _, ok := <-b; ok {
		t.Fatalf("subscription on a closed hub must be closed")
	}
	h.Publish(DischargeState, DischargeStateEvent{})
	h.Unsubscribe(a)
	h.Close()
}
