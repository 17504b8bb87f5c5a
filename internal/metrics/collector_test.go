package metrics

import (
	"testing"
	"time"

	"github.com/chaollapark/homelab/internal/events"
)

func waitFor(t *testing.T, c *Collector, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := c.GetSnapshot()
		if cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	return c.GetSnapshot()
}

func TestCollectorCountsPresenceEvents(t *testing.T) {
	hub := events.NewHub()
	c := NewCollector(hub, nil)
	c.Start()
	defer c.Stop()

	hub.EmitDiscovered("AA:AA:AA:AA:AA:01", "192.168.0.10", "phone", "WiFi 5G")
	hub.EmitPresence(events.EventDeviceArrived, "AA:AA:AA:AA:AA:01", "192.168.0.10", "phone", "WiFi 5G", true)
	hub.EmitPresence(events.EventDeviceDeparted, "AA:AA:AA:AA:AA:01", "192.168.0.10", "phone", "WiFi 5G", true)
	hub.EmitPresence(events.EventDeviceArrived, "AA:AA:AA:AA:AA:01", "192.168.0.10", "phone", "WiFi 5G", true)
	hub.EmitRenamed("AA:AA:AA:AA:AA:01", "AA:AA:AA:AA:AA:01", "phone")

	s := waitFor(t, c, func(s Snapshot) bool {
		return s.Arrivals == 2 && s.Departures == 1 && s.Discoveries == 1 && s.Renames == 1
	})

	if s.Arrivals != 2 {
		t.Errorf("Expected 2 arrivals, got %d", s.Arrivals)
	}
	if s.Departures != 1 {
		t.Errorf("Expected 1 departure, got %d", s.Departures)
	}
	if s.Discoveries != 1 {
		t.Errorf("Expected 1 discovery, got %d", s.Discoveries)
	}
	if s.Renames != 1 {
		t.Errorf("Expected 1 rename, got %d", s.Renames)
	}
	if s.LastEvent.IsZero() {
		t.Error("LastEvent should be set after events flow")
	}
}

func TestCollectorTracksLockdownState(t *testing.T) {
	hub := events.NewHub()
	c := NewCollector(hub, nil)
	c.Start()
	defer c.Stop()

	hub.EmitLockdown(events.EventLockdownStarted, "strict", false, 4, 0, 0)
	s := waitFor(t, c, func(s Snapshot) bool { return s.LockdownActive })
	if !s.LockdownActive {
		t.Fatal("Lockdown should be active")
	}
	if s.LockdownMode != "strict" {
		t.Errorf("Expected strict mode, got %q", s.LockdownMode)
	}

	hub.EmitLockdown(events.EventLockdownStopped, "strict", false, 0, 4, 0)
	s = waitFor(t, c, func(s Snapshot) bool { return !s.LockdownActive })
	if s.LockdownActive {
		t.Error("Lockdown should be inactive after stop event")
	}
	if s.LockdownMode != "" {
		t.Errorf("Mode should clear on stop, got %q", s.LockdownMode)
	}
}

func TestRegistryHelpers(t *testing.T) {
	r := Get()

	// Get must hand back the same registry every time; promauto would
	// panic on re-registration otherwise.
	if Get() != r {
		t.Fatal("Get() should return a singleton")
	}

	r.RecordPoll(12, 5)
	r.RecordPollError("router_unreachable")
	r.RecordTransition("arrived")
	r.RecordRouterRequest("fetch host table", nil)
	r.RecordRouterRequest("fetch host table", errTest)
	r.SetLockdown(true, 3)
	r.SetLockdown(false, 0)
}

var errTest = errTestType{}

type errTestType struct{}

func (errTestType) Error() string { return "test error" }
