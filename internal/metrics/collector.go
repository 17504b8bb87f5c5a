package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaollapark/homelab/internal/events"
	"github.com/chaollapark/homelab/internal/logging"
)

// Collector feeds the Prometheus registry from the event hub and keeps a
// snapshot of the same numbers for in-process consumers (the bot's /stats,
// the status command).
type Collector struct {
	registry *Registry
	logger   *logging.Logger
	bridge   *events.Bridge

	mu    sync.RWMutex
	stats Snapshot
}

// Snapshot is the collector's cached view of activity since start.
type Snapshot struct {
	Arrivals       uint64    `json:"arrivals"`
	Departures     uint64    `json:"departures"`
	Discoveries    uint64    `json:"discoveries"`
	Renames        uint64    `json:"renames"`
	LockdownActive bool      `json:"lockdown_active"`
	LockdownMode   string    `json:"lockdown_mode,omitempty"`
	LastEvent      time.Time `json:"last_event,omitempty"`
}

// NewCollector creates a collector attached to the hub.
func NewCollector(hub *events.Hub, logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}
	c := &Collector{
		registry: Get(),
		logger:   logger,
	}
	c.bridge = events.NewBridge(hub, c.handleEvent)
	return c
}

// Start begins consuming events.
func (c *Collector) Start() {
	c.bridge.Start()
}

// Stop detaches from the hub.
func (c *Collector) Stop() {
	c.bridge.Stop()
}

// GetSnapshot returns the cached activity counters.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Collector) handleEvent(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.LastEvent = e.Timestamp

	switch e.Type {
	case events.EventDeviceArrived:
		c.stats.Arrivals++
		c.registry.RecordTransition("arrived")
	case events.EventDeviceDeparted:
		c.stats.Departures++
		c.registry.RecordTransition("left")
	case events.EventDeviceDiscovered:
		c.stats.Discoveries++
		c.registry.Discoveries.Inc()
	case events.EventDeviceRenamed:
		c.stats.Renames++
		c.registry.Renames.Inc()
	case events.EventLockdownStarted:
		c.stats.LockdownActive = true
		blocked := 0
		if data, ok := e.Data.(events.LockdownData); ok {
			c.stats.LockdownMode = data.Mode
			blocked = data.Blocked
		}
		c.registry.SetLockdown(true, blocked)
	case events.EventLockdownStopped:
		c.stats.LockdownActive = false
		c.stats.LockdownMode = ""
		c.registry.SetLockdown(false, 0)
	}
}

// Serve exposes /metrics on addr until ctx is cancelled. It blocks.
func Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
