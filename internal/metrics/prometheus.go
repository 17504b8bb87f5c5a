package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all monitor metrics.
type Registry struct {
	// Poll loop
	PollCycles prometheus.Counter
	PollErrors *prometheus.CounterVec
	Uptime     prometheus.Gauge

	// Presence
	DevicesTracked prometheus.Gauge
	DevicesOnline  prometheus.Gauge
	Transitions    *prometheus.CounterVec
	Discoveries    prometheus.Counter
	Renames        prometheus.Counter

	// Router session
	RouterRequests *prometheus.CounterVec
	RouterLogins   prometheus.Counter

	// Notifications
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter

	// Lockdown
	LockdownActive  prometheus.Gauge
	LockdownBlocked prometheus.Gauge

	// Bot
	BotCommands *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homelab_poll_cycles_total",
		Help: "Total completed poll cycles",
	})

	r.PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homelab_poll_errors_total",
		Help: "Poll cycles that failed, by reason",
	}, []string{"reason"})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "homelab_uptime_seconds",
		Help: "Monitor uptime in seconds",
	})

	r.DevicesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "homelab_devices_tracked",
		Help: "Devices the tracker has seen at least once",
	})

	r.DevicesOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "homelab_devices_online",
		Help: "Devices currently online",
	})

	r.Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homelab_presence_transitions_total",
		Help: "Presence transitions, by kind",
	}, []string{"kind"})

	r.Discoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homelab_devices_discovered_total",
		Help: "Devices seen for the first time",
	})

	r.Renames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homelab_device_renames_total",
		Help: "Tracked devices whose hostname resolved after first sight",
	})

	r.RouterRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homelab_router_requests_total",
		Help: "HTTP calls against the gateway API, by operation and outcome",
	}, []string{"op", "outcome"})

	r.RouterLogins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homelab_router_logins_total",
		Help: "Full login handshakes performed",
	})

	r.NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homelab_notifications_sent_total",
		Help: "Notifications delivered",
	})

	r.NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homelab_notifications_failed_total",
		Help: "Notification deliveries that failed",
	})

	r.LockdownActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "homelab_lockdown_active",
		Help: "1 while a lockdown is active",
	})

	r.LockdownBlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "homelab_lockdown_blocked_devices",
		Help: "Devices recorded as blocked by the active lockdown",
	})

	r.BotCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homelab_bot_commands_total",
		Help: "Bot commands processed, by command",
	}, []string{"command"})

	return r
}

// RecordPoll records one completed poll cycle and its device counts.
func (r *Registry) RecordPoll(tracked, online int) {
	r.PollCycles.Inc()
	r.DevicesTracked.Set(float64(tracked))
	r.DevicesOnline.Set(float64(online))
}

// RecordPollError records a failed poll cycle.
func (r *Registry) RecordPollError(reason string) {
	r.PollErrors.WithLabelValues(reason).Inc()
}

// RecordTransition records one presence transition.
func (r *Registry) RecordTransition(kind string) {
	r.Transitions.WithLabelValues(kind).Inc()
}

// RecordRouterRequest records one gateway API call.
func (r *Registry) RecordRouterRequest(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.RouterRequests.WithLabelValues(op, outcome).Inc()
}

// SetLockdown updates the lockdown gauges.
func (r *Registry) SetLockdown(active bool, blocked int) {
	if active {
		r.LockdownActive.Set(1)
	} else {
		r.LockdownActive.Set(0)
	}
	r.LockdownBlocked.Set(float64(blocked))
}
