package bus

import (
	"sync"
	"testing"
)

// TestBroadcastReachesSubscribers delivers one event to every
// registered handler.
func TestBroadcastReachesSubscribers(t *testing.T) {
	b := New()

	var mu sync.Mutex
	got := map[string]Event{}
	for _, id := range []string{"a", "b"} {
		id := id
		b.Subscribe(id, func(ev Event) {
			mu.Lock()
			got[id] = ev
			mu.Unlock()
		})
	}

	b.Broadcast("outreach.sent", map[string]any{"user_id": "alice"})

	if len(got) != 2 {
		t.Fatalf("delivered to %d subscribers, want 2", len(got))
	}
	for id, ev := range got {
		if ev.Name != "outreach.sent" {
			t.Errorf("subscriber %s got event %q", id, ev.Name)
		}
		if ev.Payload["user_id"] != "alice" {
			t.Errorf("subscriber %s got payload %v", id, ev.Payload)
		}
	}
}

// TestUnsubscribeStopsDelivery stops events after a subscriber leaves;
// removing an unknown id is a no-op.
func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	var calls int
	b.Subscribe("pet", func(Event) { calls++ })
	b.Broadcast("health", nil)
	b.Unsubscribe("pet")
	b.Unsubscribe("never-registered")
	b.Broadcast("health", nil)

	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

// TestSubscribeReplacesHandler registers the same id twice and expects
// only the later handler to run.
func TestSubscribeReplacesHandler(t *testing.T) {
	b := New()

	var first, second int
	b.Subscribe("pet", func(Event) { first++ })
	b.Subscribe("pet", func(Event) { second++ })
	b.Broadcast("health", nil)

	if first != 0 || second != 1 {
		t.Fatalf("first=%d second=%d, want 0 and 1", first, second)
	}
}

// TestBroadcastConcurrent exercises broadcast racing with subscribe and
// unsubscribe from other goroutines.
func TestBroadcastConcurrent(t *testing.T) {
	b := New()
	b.Subscribe("stable", func(Event) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Broadcast("tick", nil)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Subscribe("churn", func(Event) {})
				b.Unsubscribe("churn")
			}
		}()
	}
	wg.Wait()
}
