package events

import (
	"sync"
	"testing"
	"time"
)

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()

	// Subscribe to specific event type
	ch := hub.Subscribe(10, EventDeviceArrived)

	// Publish event
	hub.Publish(Event{
		Type:   EventDeviceArrived,
		Source: "test",
		Data:   PresenceData{MAC: "AA:BB:CC:DD:EE:FF", IP: "192.168.0.100", Name: "Redmi Note"},
	})

	// Should receive
	select {
	case e := <-ch:
		if e.Type != EventDeviceArrived {
			t.Errorf("expected EventDeviceArrived, got %s", e.Type)
		}
		data, ok := e.Data.(PresenceData)
		if !ok {
			t.Fatal("expected PresenceData")
		}
		if data.MAC != "AA:BB:CC:DD:EE:FF" {
			t.Errorf("expected MAC AA:BB:CC:DD:EE:FF, got %s", data.MAC)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestHub_GlobalSubscription(t *testing.T) {
	hub := NewHub()

	// Global subscription (no types specified)
	ch := hub.Subscribe(10)

	// Publish different event types
	hub.Publish(Event{Type: EventDeviceArrived, Source: "test"})
	hub.Publish(Event{Type: EventDeviceDeparted, Source: "test"})
	hub.Publish(Event{Type: EventLockdownStarted, Source: "test"})

	// Should receive all 3
	received := 0
	for i := 0; i < 3; i++ {
		select {
		case <-ch:
			received++
		case <-time.After(100 * time.Millisecond):
			break
		}
	}

	if received != 3 {
		t.Errorf("expected 3 events, got %d", received)
	}
}

func TestHub_TypeFiltering(t *testing.T) {
	hub := NewHub()

	// Subscribe only to presence transitions
	ch := hub.Subscribe(10, EventDeviceArrived, EventDeviceDeparted)

	// Publish various types
	hub.Publish(Event{Type: EventDeviceDiscovered, Source: "test"})
	hub.Publish(Event{Type: EventDeviceArrived, Source: "test"})
	hub.Publish(Event{Type: EventLockdownStarted, Source: "test"})
	hub.Publish(Event{Type: EventDeviceDeparted, Source: "test"})

	// Should only receive the 2 transitions
	received := 0
	for {
		select {
		case <-ch:
			received++
		case <-time.After(50 * time.Millisecond):
			goto done
		}
	}
done:

	if received != 2 {
		t.Errorf("expected 2 transition events, got %d", received)
	}
}

func TestHub_NonBlocking(t *testing.T) {
	hub := NewHub()

	// Subscribe with buffer of 1
	ch := hub.Subscribe(1, EventDeviceArrived)
	_ = ch // Consume to avoid unused error

	// Publish more events than buffer
	for i := 0; i < 10; i++ {
		hub.Publish(Event{Type: EventDeviceArrived, Source: "test"})
	}

	// Should not block - just drop overflows
	published, dropped := hub.Stats()
	if published != 10 {
		t.Errorf("expected 10 published, got %d", published)
	}
	if dropped < 9 {
		t.Errorf("expected at least 9 dropped, got %d", dropped)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()

	ch := hub.Subscribe(10, EventDeviceArrived)
	hub.Unsubscribe(ch)

	hub.Publish(Event{Type: EventDeviceArrived, Source: "test"})

	select {
	case <-ch:
		t.Error("received event after Unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Concurrent(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(1000, EventDeviceDeparted)

	var wg sync.WaitGroup
	const numPublishers = 10
	const eventsPerPublisher = 100

	// Concurrent publishers
	for i := 0; i < numPublishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				hub.Publish(Event{Type: EventDeviceDeparted, Source: "test"})
			}
		}()
	}

	wg.Wait()

	// Drain channel
	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			goto done
		}
	}
done:

	if received < numPublishers*eventsPerPublisher/2 {
		t.Errorf("expected at least %d events, got %d", numPublishers*eventsPerPublisher/2, received)
	}
}

func TestHub_EmitHelpers(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10)

	hub.EmitPresence(EventDeviceArrived, "AA:BB:CC:DD:EE:FF", "192.168.0.2", "iPhone", "WiFi 5G", true)
	hub.EmitDiscovered("11:22:33:44:55:66", "192.168.0.3", "Printer", "Ethernet")
	hub.EmitRenamed("11:22:33:44:55:66", "112233445566", "Printer")
	hub.EmitLockdown(EventLockdownStarted, "strict", false, 4, 0, 0)

	types := map[EventType]bool{}
	for i := 0; i < 4; i++ {
		select {
		case e := <-ch:
			types[e.Type] = true
			if e.Timestamp.IsZero() {
				t.Error("Publish should stamp events with a timestamp")
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for emitted events")
		}
	}

	for _, want := range []EventType{EventDeviceArrived, EventDeviceDiscovered, EventDeviceRenamed, EventLockdownStarted} {
		if !types[want] {
			t.Errorf("missing emitted event %s", want)
		}
	}
}
