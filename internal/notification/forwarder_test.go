package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chaollapark/homelab/internal/config"
	"github.com/chaollapark/homelab/internal/events"
)

func TestForwarderSendsLockdownAlerts(t *testing.T) {
	srv, requests := captureServer(t, 200, "")
	d := dispatcherFor(config.NotificationChannel{Name: "hook", Type: "webhook", URL: srv.URL})

	hub := events.NewHub()
	f := NewForwarder(hub, d)
	f.Start()
	defer f.Stop()

	hub.EmitLockdown(events.EventLockdownStarted, "strict", false, 5, 0, 1)
	assert.Eventually(t, func() bool { return len(requests()) == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Contains(t, requests()[0].Body, "STRICT lockdown active, 5 devices blocked (1 failed)")

	hub.EmitLockdown(events.EventLockdownStopped, "soft", false, 0, 3, 0)
	assert.Eventually(t, func() bool { return len(requests()) == 2 },
		2*time.Second, 10*time.Millisecond)
	assert.Contains(t, requests()[1].Body, "Lockdown ended, 3 devices unblocked")
}

func TestForwarderIgnoresDryRuns(t *testing.T) {
	srv, requests := captureServer(t, 200, "")
	d := dispatcherFor(config.NotificationChannel{Name: "hook", Type: "webhook", URL: srv.URL})

	hub := events.NewHub()
	f := NewForwarder(hub, d)
	f.Start()
	defer f.Stop()

	hub.EmitLockdown(events.EventLockdownStarted, "strict", true, 5, 0, 0)
	hub.EmitLockdown(events.EventLockdownStarted, "strict", false, 2, 0, 0)

	assert.Eventually(t, func() bool { return len(requests()) == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Contains(t, requests()[0].Body, "2 devices blocked")
}