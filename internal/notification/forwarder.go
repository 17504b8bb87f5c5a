package notification

import (
	"github.com/chaollapark/homelab/internal/events"
)

// Forwarder turns lockdown hub events into notifications, so alerts go
// out no matter whether the CLI or the bot flipped the state.
type Forwarder struct {
	dispatcher *Dispatcher
	bridge     *events.Bridge
}

// NewForwarder attaches a forwarder to the hub. Call Start to begin.
func NewForwarder(hub *events.Hub, d *Dispatcher) *Forwarder {
	f := &Forwarder{dispatcher: d}
	f.bridge = events.NewBridge(hub, f.handle,
		events.EventLockdownStarted, events.EventLockdownStopped)
	return f
}

// Start begins consuming events.
func (f *Forwarder) Start() {
	f.bridge.Start()
}

// Stop detaches from the hub.
func (f *Forwarder) Stop() {
	f.bridge.Stop()
}

func (f *Forwarder) handle(e events.Event) {
	data, ok := e.Data.(events.LockdownData)
	if !ok || data.DryRun {
		return
	}

	switch e.Type {
	case events.EventLockdownStarted:
		f.dispatcher.Send(LockdownEngaged(data.Mode, data.Blocked, data.Failed))
	case events.EventLockdownStopped:
		f.dispatcher.Send(LockdownLifted(data.Mode, data.Unblocked, data.Failed))
	}
}
