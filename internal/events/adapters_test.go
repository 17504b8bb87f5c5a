package events

import (
	"sync"
	"testing"
	"time"
)

func TestBridge_ForwardsMatchingEvents(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	var got []EventType
	bridge := NewBridge(hub, func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	}, EventDeviceArrived, EventDeviceDeparted)
	bridge.Start()
	defer bridge.Stop()

	hub.Publish(Event{Type: EventDeviceArrived})
	hub.Publish(Event{Type: EventLockdownStarted}) // not subscribed
	hub.Publish(Event{Type: EventDeviceDeparted})

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("bridge forwarded %d events, want 2", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != EventDeviceArrived || got[1] != EventDeviceDeparted {
		t.Errorf("unexpected forwarded events: %v", got)
	}
}

func TestBridge_StopDetaches(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	count := 0
	bridge := NewBridge(hub, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	bridge.Start()
	bridge.Stop()

	hub.Publish(Event{Type: EventDeviceArrived})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("bridge handled %d events after Stop", count)
	}
}
