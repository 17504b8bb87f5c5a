package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaollapark/homelab/internal/clock"
	"github.com/chaollapark/homelab/internal/config"
	"github.com/chaollapark/homelab/internal/events"
	"github.com/chaollapark/homelab/internal/notification"
	"github.com/chaollapark/homelab/internal/presence"
	"github.com/chaollapark/homelab/internal/router"
)

var testStart = time.Date(2026, 8, 21, 8, 0, 0, 0, time.UTC)

func dev(name, mac, ip string, online bool) router.Device {
	return router.Device{
		MAC:      mac,
		IP:       ip,
		Hostname: name,
		Name:     name,
		Online:   online,
		Medium:   router.MediumWiFi24,
	}
}

// fakeGateway serves scripted snapshots in order. When the script runs
// out it cancels the run context (if set) and keeps returning the last
// snapshot, so Run tests terminate deterministically.
type fakeGateway struct {
	script      []func() ([]router.Device, error)
	calls       int
	invalidated int
	loggedOut   int
	cancel      context.CancelFunc
}

func (f *fakeGateway) GetDevices(ctx context.Context) ([]router.Device, error) {
	if f.calls < len(f.script) {
		step := f.script[f.calls]
		f.calls++
		return step()
	}
	f.calls++
	if f.cancel != nil {
		f.cancel()
	}
	if len(f.script) == 0 {
		return nil, nil
	}
	return f.script[len(f.script)-1]()
}

func (f *fakeGateway) Invalidate() { f.invalidated++ }

func (f *fakeGateway) Logout(ctx context.Context) error {
	f.loggedOut++
	return nil
}

func snapshot(devices ...router.Device) func() ([]router.Device, error) {
	return func() ([]router.Device, error) { return devices, nil }
}

func fetchError(err error) func() ([]router.Device, error) {
	return func() ([]router.Device, error) { return nil, err }
}

type fakeBot struct {
	drains int
}

func (f *fakeBot) ProcessUpdates(ctx context.Context) { f.drains++ }

type fakePinger struct {
	alive  map[string]bool
	probed []string
}

func (f *fakePinger) Present(ctx context.Context, ip string) (bool, int) {
	f.probed = append(f.probed, ip)
	if f.alive[ip] {
		return true, 3
	}
	return false, 0
}

// webhookDispatcher returns a live dispatcher whose single channel posts
// to a capture server, plus an accessor for the captured message texts.
func webhookDispatcher(t *testing.T) (*notification.Dispatcher, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var texts []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(raw, &payload)
		mu.Lock()
		texts = append(texts, payload.Text)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d := notification.NewDispatcher(&config.NotificationsConfig{
		Enabled: true,
		Channels: []config.NotificationChannel{
			{Name: "test", Type: "webhook", URL: srv.URL},
		},
	}, nil)

	return d, func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, len(texts))
		copy(out, texts)
		return out
	}
}

func newEventLog(t *testing.T) *presence.EventLog {
	t.Helper()
	log, err := presence.NewEventLog(filepath.Join(t.TempDir(), "events.csv"))
	require.NoError(t, err)
	return log
}

func TestNewRequiresGatewayAndTracker(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Gateway: &fakeGateway{}})
	require.Error(t, err)

	s, err := New(Options{Gateway: &fakeGateway{}, Tracker: presence.NewTracker(nil)})
	require.NoError(t, err)
	assert.Equal(t, defaultInterval, s.interval)
	assert.Equal(t, defaultSummaryEvery, s.summaryEvery)
}

func TestRunSeedsWithoutArrivalAlerts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &fakeGateway{
		script: []func() ([]router.Device, error){
			snapshot(
				dev("Redmi", "AA:BB:CC:DD:EE:01", "192.168.0.10", true),
				dev("nas", "AA:BB:CC:DD:EE:02", "192.168.0.20", false),
			),
		},
		cancel: cancel,
	}
	history := newEventLog(t)
	hub := events.NewHub()
	firehose := hub.Subscribe(64)
	dispatcher, sent := webhookDispatcher(t)
	bot := &fakeBot{}

	s, err := New(Options{
		Gateway:        gw,
		Tracker:        presence.NewTracker([]string{"redmi"}),
		History:        history,
		Dispatcher:     dispatcher,
		Bot:            bot,
		Hub:            hub,
		NotifyPatterns: []string{"redmi"},
		Interval:       30 * time.Second,
		Clock:          clock.NewMockClock(testStart),
	})
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx))

	// Seeding discovers devices but never records transitions.
	stats, err := history.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEvents)

	var types []events.EventType
	for len(firehose) > 0 {
		types = append(types, (<-firehose).Type)
	}
	assert.Contains(t, types, events.EventMonitorStarted)
	assert.Contains(t, types, events.EventMonitorStopped)
	assert.Contains(t, types, events.EventDeviceDiscovered)
	assert.NotContains(t, types, events.EventDeviceArrived)

	texts := sent()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Presence Monitor Started")
	assert.Contains(t, texts[0], "Tracking 2 devices (1 online)")
	assert.Contains(t, texts[1], "Presence Monitor Stopped")

	assert.Equal(t, 1, gw.loggedOut)
	assert.GreaterOrEqual(t, bot.drains, 1)
}

func TestRunNotifiesEligibleArrival(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seed := snapshot(
		dev("Redmi", "AA:BB:CC:DD:EE:01", "192.168.0.10", false),
		dev("nas", "AA:BB:CC:DD:EE:02", "192.168.0.20", false),
	)
	flipped := snapshot(
		dev("Redmi", "AA:BB:CC:DD:EE:01", "192.168.0.10", true),
		dev("nas", "AA:BB:CC:DD:EE:02", "192.168.0.20", true),
	)

	gw := &fakeGateway{
		script: []func() ([]router.Device, error){seed, flipped},
		cancel: cancel,
	}
	history := newEventLog(t)
	hub := events.NewHub()
	arrivals := hub.Subscribe(16, events.EventDeviceArrived)
	dispatcher, sent := webhookDispatcher(t)

	s, err := New(Options{
		Gateway:        gw,
		Tracker:        presence.NewTracker([]string{"redmi"}),
		History:        history,
		Dispatcher:     dispatcher,
		Hub:            hub,
		NotifyPatterns: []string{"redmi"},
		Interval:       30 * time.Second,
		Clock:          clock.NewMockClock(testStart),
	})
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx))

	// Both devices flipped online, so two history rows.
	stats, err := history.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 2, stats.Arrivals)

	require.Len(t, arrivals, 2)
	first := <-arrivals
	data, ok := first.Data.(events.PresenceData)
	require.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", data.MAC)
	assert.True(t, data.NotifyEligible)
	second := <-arrivals
	data, ok = second.Data.(events.PresenceData)
	require.True(t, ok)
	assert.False(t, data.NotifyEligible)

	// Only the pattern-matched device alerts; nas stays quiet.
	var arrivedTexts []string
	for _, text := range sent() {
		if strings.Contains(text, "Device Arrived") {
			arrivedTexts = append(arrivedTexts, text)
		}
	}
	require.Len(t, arrivedTexts, 1)
	assert.Contains(t, arrivedTexts[0], "Redmi connected (192.168.0.10)")
}

func TestCycleEmptySnapshotForcesRelogin(t *testing.T) {
	gw := &fakeGateway{
		script: []func() ([]router.Device, error){snapshot()},
	}
	tracker := presence.NewTracker(nil)
	tracker.Observe([]router.Device{dev("nas", "AA:BB:CC:DD:EE:02", "192.168.0.20", true)}, testStart)

	s, err := New(Options{Gateway: gw, Tracker: tracker, Clock: clock.NewMockClock(testStart)})
	require.NoError(t, err)

	require.NoError(t, s.cycle(context.Background()))

	assert.Equal(t, 1, gw.invalidated)
	assert.Equal(t, 0, s.cycles)

	// The stale snapshot must not mark tracked devices offline.
	tracked, online := tracker.Counts()
	assert.Equal(t, 1, tracked)
	assert.Equal(t, 1, online)
}

func TestCycleFetchErrorUsesPingFallback(t *testing.T) {
	gw := &fakeGateway{
		script: []func() ([]router.Device, error){fetchError(errors.New("connection refused"))},
	}
	tracker := presence.NewTracker(nil)
	pinger := &fakePinger{alive: map[string]bool{"192.168.0.20": true}}

	s, err := New(Options{
		Gateway:     gw,
		Tracker:     tracker,
		Pinger:      pinger,
		PingTargets: map[string]string{"nas": "192.168.0.20", "printer": "192.168.0.30"},
		Clock:       clock.NewMockClock(testStart),
	})
	require.NoError(t, err)

	require.NoError(t, s.cycle(context.Background()))

	assert.ElementsMatch(t, []string{"192.168.0.20", "192.168.0.30"}, pinger.probed)

	tracked, online := tracker.Counts()
	assert.Equal(t, 2, tracked)
	assert.Equal(t, 1, online)
}

func TestCycleFetchErrorWithoutFallbackFails(t *testing.T) {
	fetchErr := errors.New("connection refused")
	gw := &fakeGateway{
		script: []func() ([]router.Device, error){fetchError(fetchErr)},
	}

	s, err := New(Options{Gateway: gw, Tracker: presence.NewTracker(nil), Clock: clock.NewMockClock(testStart)})
	require.NoError(t, err)

	err = s.cycle(context.Background())
	require.ErrorIs(t, err, fetchErr)
}

func TestRunRetriesQuicklyAfterFailedCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seed := snapshot(dev("nas", "AA:BB:CC:DD:EE:02", "192.168.0.20", true))
	gw := &fakeGateway{
		script: []func() ([]router.Device, error){
			seed,
			fetchError(errors.New("connection refused")),
		},
		cancel: cancel,
	}
	mock := clock.NewMockClock(testStart)

	s, err := New(Options{
		Gateway:  gw,
		Tracker:  presence.NewTracker(nil),
		Interval: 30 * time.Second,
		Clock:    mock,
	})
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx))

	// One failed cycle sleeps the short retry delay, then the script
	// runs out and cancels before any full interval elapses.
	assert.Equal(t, testStart.Add(errorRetryDelay), mock.Now())
}

func TestRunDrainsBotEveryCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seed := snapshot(dev("nas", "AA:BB:CC:DD:EE:02", "192.168.0.20", true))
	gw := &fakeGateway{
		script: []func() ([]router.Device, error){seed, seed, seed},
		cancel: cancel,
	}
	bot := &fakeBot{}

	s, err := New(Options{
		Gateway: gw,
		Tracker: presence.NewTracker(nil),
		Bot:     bot,
		Clock:   clock.NewMockClock(testStart),
	})
	require.NoError(t, err)
	require.NoError(t, s.Run(ctx))

	// Seed call plus two scripted cycles plus the cancelling call.
	assert.Equal(t, 4, gw.calls)
	assert.Equal(t, 3, bot.drains)
}

func TestPingFallbackDisabledWithoutTargets(t *testing.T) {
	s, err := New(Options{
		Gateway: &fakeGateway{},
		Tracker: presence.NewTracker(nil),
		Pinger:  &fakePinger{},
		Clock:   clock.NewMockClock(testStart),
	})
	require.NoError(t, err)
	assert.Nil(t, s.pingFallback(context.Background()))

	s, err = New(Options{
		Gateway:     &fakeGateway{},
		Tracker:     presence.NewTracker(nil),
		PingTargets: map[string]string{"nas": "192.168.0.20"},
		Clock:       clock.NewMockClock(testStart),
	})
	require.NoError(t, err)
	assert.Nil(t, s.pingFallback(context.Background()))
}

func TestSummaryCadence(t *testing.T) {
	seed := snapshot(dev("nas", "AA:BB:CC:DD:EE:02", "192.168.0.20", true))
	gw := &fakeGateway{
		script: []func() ([]router.Device, error){seed, seed, seed, seed},
	}

	s, err := New(Options{
		Gateway:      gw,
		Tracker:      presence.NewTracker(nil),
		SummaryEvery: 2,
		Clock:        clock.NewMockClock(testStart),
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.cycle(context.Background()))
	}
	assert.Equal(t, 4, s.cycles)
}

func TestRenameFlowsToHub(t *testing.T) {
	// A device first seen without a hostname is tracked under its MAC
	// until the router learns the real name.
	anon := router.Device{
		MAC:    "AA:BB:CC:DD:EE:03",
		IP:     "192.168.0.40",
		Name:   "AA:BB:CC:DD:EE:03",
		Online: true,
		Medium: router.MediumEthernet,
	}
	gw := &fakeGateway{
		script: []func() ([]router.Device, error){
			snapshot(anon),
			snapshot(dev("Printer", "AA:BB:CC:DD:EE:03", "192.168.0.40", true)),
		},
	}
	hub := events.NewHub()
	renames := hub.Subscribe(4, events.EventDeviceRenamed)

	s, err := New(Options{
		Gateway: gw,
		Tracker: presence.NewTracker(nil),
		Hub:     hub,
		Clock:   clock.NewMockClock(testStart),
	})
	require.NoError(t, err)

	require.NoError(t, s.cycle(context.Background()))
	require.NoError(t, s.cycle(context.Background()))

	require.Len(t, renames, 1)
	e := <-renames
	data, ok := e.Data.(events.PresenceData)
	require.True(t, ok)
	assert.Equal(t, "Printer", data.Name)
	assert.Equal(t, "AA:BB:CC:DD:EE:03", data.OldName)
}
