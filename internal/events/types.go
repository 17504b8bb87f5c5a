// Package events provides a unified pub/sub event bus.
// Presence transitions, lockdown changes, and monitor lifecycle flow
// through this hub so sinks (event log, notifier, metrics) stay decoupled
// from the poll loop.
package events

import "time"

// EventType identifies the category of event.
type EventType string

const (
	// Presence events
	EventDeviceArrived    EventType = "presence.arrived"
	EventDeviceDeparted   EventType = "presence.departed"
	EventDeviceDiscovered EventType = "presence.discovered"
	EventDeviceRenamed    EventType = "presence.renamed"

	// Lockdown events
	EventLockdownStarted EventType = "lockdown.started"
	EventLockdownStopped EventType = "lockdown.stopped"

	// Monitor lifecycle
	EventMonitorStarted EventType = "monitor.started"
	EventMonitorStopped EventType = "monitor.stopped"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"` // Component that emitted: "tracker", "lockdown", "monitor"
	Data      interface{} `json:"data"`   // Type-specific payload
}

// ──────────────────────────────────────────────────────────────────────────────
// Type-Specific Payloads
// ──────────────────────────────────────────────────────────────────────────────

// PresenceData is the payload for presence.* events.
type PresenceData struct {
	MAC            string `json:"mac"`
	IP             string `json:"ip,omitempty"`
	Name           string `json:"name"`
	OldName        string `json:"old_name,omitempty"` // set for presence.renamed
	Medium         string `json:"medium,omitempty"`
	NotifyEligible bool   `json:"notify_eligible,omitempty"`
}

// LockdownData is the payload for lockdown.* events.
type LockdownData struct {
	Mode      string `json:"mode"`
	DryRun    bool   `json:"dry_run,omitempty"`
	Blocked   int    `json:"blocked"`
	Unblocked int    `json:"unblocked,omitempty"`
	Failed    int    `json:"failed,omitempty"`
}

// MonitorData is the payload for monitor.* events.
type MonitorData struct {
	Tracked  int    `json:"tracked"`
	Online   int    `json:"online"`
	Interval string `json:"interval,omitempty"`
}
