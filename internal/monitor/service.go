// Package monitor runs the presence poll loop: fetch the router's host
// table, feed it to the tracker, append transitions to the history log,
// send alerts, and drain pending bot commands once per interval.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/chaollapark/homelab/internal/clock"
	"github.com/chaollapark/homelab/internal/events"
	"github.com/chaollapark/homelab/internal/logging"
	"github.com/chaollapark/homelab/internal/metrics"
	"github.com/chaollapark/homelab/internal/notification"
	"github.com/chaollapark/homelab/internal/presence"
	"github.com/chaollapark/homelab/internal/router"
)

var (
	errNoGateway = errors.New("monitor: gateway is required")
	errNoTracker = errors.New("monitor: tracker is required")
)

const (
	defaultInterval     = 30 * time.Second
	defaultSummaryEvery = 10

	// errorRetryDelay is the backoff after a failed poll cycle, short
	// enough that a router reboot is picked up quickly.
	errorRetryDelay = 5 * time.Second

	// logoutTimeout bounds the courtesy logout during shutdown.
	logoutTimeout = 5 * time.Second
)

// Gateway is the slice of the router client the monitor needs.
type Gateway interface {
	GetDevices(ctx context.Context) ([]router.Device, error)
	Invalidate()
	Logout(ctx context.Context) error
}

// CommandBot drains pending remote-control commands. The monitor calls
// it once per poll cycle so commands share the loop's pacing.
type CommandBot interface {
	ProcessUpdates(ctx context.Context)
}

// Pinger probes a single address directly, used as a fallback when the
// router's host table is unavailable.
type Pinger interface {
	Present(ctx context.Context, ip string) (bool, int)
}

// Options configures a monitor Service.
type Options struct {
	Gateway    Gateway
	Tracker    *presence.Tracker
	History    *presence.EventLog
	Dispatcher *notification.Dispatcher
	Bot        CommandBot
	Hub        *events.Hub
	Pinger     Pinger

	// PingTargets maps device names to IPs probed when the host table
	// cannot be fetched.
	PingTargets map[string]string

	// NotifyPatterns is only used for the startup notification text;
	// the tracker applies the actual matching.
	NotifyPatterns []string

	Interval     time.Duration
	SummaryEvery int

	Clock  clock.Clock
	Logger *logging.Logger
}

// Service is the long-running presence monitor.
type Service struct {
	gw           Gateway
	tracker      *presence.Tracker
	history      *presence.EventLog
	notify       *notification.Dispatcher
	bot          CommandBot
	hub          *events.Hub
	pinger       Pinger
	pingTargets  map[string]string
	patterns     []string
	interval     time.Duration
	summaryEvery int
	clock        clock.Clock
	log          *logging.Logger

	cycles int
}

// New builds a Service. Gateway and Tracker are required; everything
// else degrades to a no-op when absent.
func New(opts Options) (*Service, error) {
	if opts.Gateway == nil {
		return nil, errNoGateway
	}
	if opts.Tracker == nil {
		return nil, errNoTracker
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	summaryEvery := opts.SummaryEvery
	if summaryEvery <= 0 {
		summaryEvery = defaultSummaryEvery
	}
	cl := opts.Clock
	if cl == nil {
		cl = &clock.RealClock{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.WithComponent("monitor")
	}

	return &Service{
		gw:           opts.Gateway,
		tracker:      opts.Tracker,
		history:      opts.History,
		notify:       opts.Dispatcher,
		bot:          opts.Bot,
		hub:          opts.Hub,
		pinger:       opts.Pinger,
		pingTargets:  opts.PingTargets,
		patterns:     opts.NotifyPatterns,
		interval:     interval,
		summaryEvery: summaryEvery,
		clock:        cl,
		log:          log,
	}, nil
}

// Run polls until ctx is cancelled. The first fetch seeds the tracker,
// so devices already home at startup are discovered without arrival
// alerts. Run only returns after shutdown housekeeping completes.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("starting presence monitor",
		"interval", s.interval.String(),
		"notify_patterns", s.patterns,
	)

	devices, err := s.gw.GetDevices(ctx)
	if err != nil {
		s.log.Error("initial device fetch failed", "error", err)
		metrics.Get().RecordPollError("fetch")
		devices = s.pingFallback(ctx)
	}
	if len(devices) > 0 {
		s.observe(devices)
	}

	tracked, online := s.tracker.Counts()
	s.log.Info("tracking devices", "tracked", tracked, "online", online)

	if s.hub != nil {
		s.hub.Publish(events.Event{
			Type:   events.EventMonitorStarted,
			Source: "monitor",
			Data: events.MonitorData{
				Tracked:  tracked,
				Online:   online,
				Interval: s.interval.String(),
			},
		})
	}
	if s.notify != nil {
		s.notify.Send(notification.MonitorStarted(tracked, online, s.patterns))
	}

	for ctx.Err() == nil {
		pollErr := s.cycle(ctx)

		if s.bot != nil {
			s.bot.ProcessUpdates(ctx)
		}

		delay := s.interval
		if pollErr != nil {
			delay = errorRetryDelay
		}
		if err := s.clock.Sleep(ctx, delay); err != nil {
			break
		}
	}

	s.shutdown()
	return nil
}

// cycle runs one poll iteration. It returns an error only when no
// device snapshot could be produced at all.
func (s *Service) cycle(ctx context.Context) error {
	devices, err := s.gw.GetDevices(ctx)
	if err != nil {
		s.log.Error("device fetch failed", "error", err)
		metrics.Get().RecordPollError("fetch")

		devices = s.pingFallback(ctx)
		if len(devices) == 0 {
			return err
		}
	} else if len(devices) == 0 {
		// An empty host table usually means the session expired
		// server-side. Drop it so the next cycle logs in fresh.
		s.log.Warn("router returned no devices, forcing re-login")
		metrics.Get().RecordPollError("empty")
		s.gw.Invalidate()
		return nil
	}

	s.observe(devices)

	s.cycles++
	if s.summaryEvery > 0 && s.cycles%s.summaryEvery == 0 {
		tracked, online := s.tracker.Counts()
		s.log.Info("status summary", "online", online, "tracked", tracked)
	}

	return nil
}

// observe feeds one snapshot through the tracker and acts on whatever
// changed.
func (s *Service) observe(devices []router.Device) {
	obs := s.tracker.Observe(devices, s.clock.Now())

	for _, d := range obs.Discovered {
		state := "OFFLINE"
		if d.Online {
			state = "ONLINE"
		}
		s.log.Info("discovered device",
			"name", d.Name, "mac", d.MAC, "ip", d.IP, "state", state)
		if s.hub != nil {
			s.hub.EmitDiscovered(d.MAC, d.IP, d.Name, string(d.Medium))
		}
	}

	for _, r := range obs.Renames {
		s.log.Info("device renamed",
			"mac", r.MAC, "old", r.OldName, "new", r.NewName)
		if s.hub != nil {
			s.hub.EmitRenamed(r.MAC, r.OldName, r.NewName)
		}
	}

	for _, tr := range obs.Transitions {
		s.handleTransition(tr)
	}

	metrics.Get().RecordPoll(s.tracker.Counts())
}

func (s *Service) handleTransition(tr presence.Transition) {
	switch tr.Kind {
	case presence.Arrived:
		s.log.Info("device arrived", "name", tr.Name, "ip", tr.IP, "medium", string(tr.Medium))
	case presence.Left:
		s.log.Info("device left", "name", tr.Name, "ip", tr.IP)
	}

	if s.history != nil {
		if err := s.history.Append(tr.Kind, tr.Name, tr.IP, tr.At); err != nil {
			s.log.Error("history append failed", "error", err, "device", tr.Name)
		}
	}

	if s.hub != nil {
		t := events.EventDeviceArrived
		if tr.Kind == presence.Left {
			t = events.EventDeviceDeparted
		}
		s.hub.EmitPresence(t, tr.MAC, tr.IP, tr.Name, string(tr.Medium), tr.NotifyEligible)
	}

	if s.notify != nil && tr.NotifyEligible {
		switch tr.Kind {
		case presence.Arrived:
			s.notify.Send(notification.DeviceArrived(tr.Name, tr.IP))
		case presence.Left:
			s.notify.Send(notification.DeviceLeft(tr.Name, tr.IP))
		}
	}
}

// pingFallback synthesizes a partial snapshot by probing the configured
// targets directly. Devices missing from the snapshot keep their last
// known state in the tracker, so partial results are safe to observe.
func (s *Service) pingFallback(ctx context.Context) []router.Device {
	if s.pinger == nil || len(s.pingTargets) == 0 {
		return nil
	}

	s.log.Warn("falling back to ping detection", "targets", len(s.pingTargets))

	devices := make([]router.Device, 0, len(s.pingTargets))
	for name, ip := range s.pingTargets {
		present, _ := s.pinger.Present(ctx, ip)
		devices = append(devices, router.Device{
			MAC:    ip,
			Name:   name,
			IP:     ip,
			Online: present,
			Medium: router.MediumUnknown,
		})
	}
	return devices
}

func (s *Service) shutdown() {
	s.log.Info("monitor stopped")

	if s.hub != nil {
		tracked, online := s.tracker.Counts()
		s.hub.Publish(events.Event{
			Type:   events.EventMonitorStopped,
			Source: "monitor",
			Data:   events.MonitorData{Tracked: tracked, Online: online},
		})
	}
	if s.notify != nil {
		s.notify.Send(notification.MonitorStopped())
	}

	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	if err := s.gw.Logout(ctx); err != nil {
		s.log.Warn("router logout failed", "error", err)
	}
}
