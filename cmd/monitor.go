package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaollapark/homelab/internal/audit"
	"github.com/chaollapark/homelab/internal/bot"
	"github.com/chaollapark/homelab/internal/events"
	"github.com/chaollapark/homelab/internal/metrics"
	"github.com/chaollapark/homelab/internal/monitor"
	"github.com/chaollapark/homelab/internal/notification"
	"github.com/chaollapark/homelab/internal/ops"
	"github.com/chaollapark/homelab/internal/presence"
)

// RunMonitor runs the presence monitor daemon until SIGINT or SIGTERM.
func RunMonitor(configFile string) error {
	hub := events.NewHub()

	app, err := newApp(configFile, hub)
	if err != nil {
		return err
	}
	cfg := app.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(hub, nil)
	collector.Start()
	defer collector.Stop()

	dispatcher := notification.NewDispatcher(cfg.Notifications, nil)
	forwarder := notification.NewForwarder(hub, dispatcher)
	forwarder.Start()
	defer forwarder.Stop()

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.ListenAddr(), app.Log); err != nil {
				app.Log.Error("metrics server failed", "error", err)
			}
		}()
	}

	patterns := cfg.Monitor.NotificationPatternsLower()
	tracker := presence.NewTracker(patterns)

	history, err := presence.NewEventLog(cfg.Monitor.EventLogPath())
	if err != nil {
		return err
	}

	var pinger monitor.Pinger
	var pingTargets map[string]string
	if cfg.Ping != nil && cfg.Ping.Enabled {
		pinger = presence.NewDetector(cfg.Ping.TimeoutDuration(), cfg.Ping.AttemptCount())
		pingTargets = cfg.Ping.Targets
	}

	var commandBot monitor.CommandBot
	if cfg.Bot != nil && cfg.Bot.Enabled {
		store, err := audit.NewStore(cfg.Bot.AuditLogPath(), 0)
		if err != nil {
			return err
		}
		defer store.Close()

		handler, err := ops.New(ops.Options{
			Gateway:   app.Router,
			Allowlist: app.Allowlist,
			Lockdown:  app.Lockdown,
			Presence:  tracker.Snapshot,
		})
		if err != nil {
			return err
		}

		b, err := bot.New(bot.Options{
			Token:     cfg.Bot.Token,
			ChatID:    cfg.Bot.ChatID,
			Commander: handler,
			History:   history,
			Audit:     store,
		})
		if err != nil {
			return err
		}
		commandBot = b
	}

	svc, err := monitor.New(monitor.Options{
		Gateway:        app.Router,
		Tracker:        tracker,
		History:        history,
		Dispatcher:     dispatcher,
		Bot:            commandBot,
		Hub:            hub,
		Pinger:         pinger,
		PingTargets:    pingTargets,
		NotifyPatterns: patterns,
		Interval:       cfg.Monitor.IntervalDuration(),
		SummaryEvery:   cfg.Monitor.SummaryCycles(),
	})
	if err != nil {
		return err
	}

	return svc.Run(ctx)
}
