// Package notification fans presence and lockdown alerts out to the
// configured channels. Delivery is best-effort: failures are logged and
// never propagate to the poll loop.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaollapark/homelab/internal/config"
	"github.com/chaollapark/homelab/internal/logging"
	"github.com/chaollapark/homelab/internal/metrics"
)

// Level constants
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Notification represents one alert to deliver.
type Notification struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`

	// HTML is an optional rich rendering for channels that support it
	// (Telegram). Channels that do not use it fall back to Message.
	HTML string `json:"-"`
}

// Dispatcher manages notification channels and dispatching.
type Dispatcher struct {
	config *config.NotificationsConfig
	logger *logging.Logger
	hc     *http.Client

	// failures counts deliveries that errored, for the metrics bridge.
	failures atomic.Uint64
	sent     atomic.Uint64
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(cfg *config.NotificationsConfig, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default().WithComponent("notification")
	}
	return &Dispatcher{
		config: cfg,
		logger: logger,
		hc:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether any delivery will happen at all.
func (d *Dispatcher) Enabled() bool {
	return d.config != nil && d.config.Enabled && len(d.config.Channels) > 0
}

// Send dispatches a notification to all enabled channels whose minimum
// level it meets. It blocks until every channel attempt finishes; each
// attempt is bounded by the HTTP client timeout.
func (d *Dispatcher) Send(n Notification) {
	if d.config == nil || !d.config.Enabled {
		return
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	var wg sync.WaitGroup
	for _, ch := range d.config.Channels {
		if !ch.IsEnabled() {
			continue
		}
		if !shouldSend(n.Level, ch.MinLevel) {
			continue
		}

		wg.Add(1)
		go func(channel config.NotificationChannel) {
			defer wg.Done()
			if err := d.sendToChannel(channel, n); err != nil {
				d.failures.Add(1)
				metrics.Get().NotificationsFailed.Inc()
				d.logger.Error("failed to send notification",
					"channel", channel.Name,
					"type", channel.Type,
					"error", err)
				return
			}
			d.sent.Add(1)
			metrics.Get().NotificationsSent.Inc()
		}(ch)
	}
	wg.Wait()
}

// SendSimple is a helper for plain messages.
func (d *Dispatcher) SendSimple(title, message, level string) {
	d.Send(Notification{
		Title:   title,
		Message: message,
		Level:   level,
	})
}

// Counters returns how many deliveries succeeded and failed so far.
func (d *Dispatcher) Counters() (sent, failed uint64) {
	return d.sent.Load(), d.failures.Load()
}

// shouldSend checks if a message level meets the channel's minimum level.
func shouldSend(msgLevel, minLevel string) bool {
	// A channel with no minimum accepts everything.
	if minLevel == "" {
		return true
	}

	levels := map[string]int{
		LevelInfo:     1,
		LevelWarning:  2,
		LevelCritical: 3,
	}

	m := levels[strings.ToLower(msgLevel)]
	c := levels[strings.ToLower(minLevel)]

	return m >= c
}

func (d *Dispatcher) sendToChannel(ch config.NotificationChannel, n Notification) error {
	switch strings.ToLower(ch.Type) {
	case "telegram":
		return d.sendTelegram(ch, n)
	case "webhook", "slack", "discord":
		return d.sendWebhook(ch, n)
	case "ntfy":
		return d.sendNtfy(ch, n)
	default:
		return fmt.Errorf("unknown channel type: %s", ch.Type)
	}
}

// Channel implementations

func (d *Dispatcher) sendWebhook(ch config.NotificationChannel, n Notification) error {
	if ch.URL == "" {
		return fmt.Errorf("missing url")
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("*%s*\n%s\n_Level: %s_", n.Title, n.Message, n.Level),
	}
	if strings.ToLower(ch.Type) == "discord" {
		payload = map[string]interface{}{
			"content": fmt.Sprintf("**%s**\n%s", n.Title, n.Message),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, ch.URL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ch.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook failed with status: %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) sendNtfy(ch config.NotificationChannel, n Notification) error {
	server := ch.Server
	if server == "" {
		server = "https://ntfy.sh"
	}
	if ch.Topic == "" {
		return fmt.Errorf("missing topic for ntfy")
	}

	if !strings.HasSuffix(server, "/") {
		server += "/"
	}
	url := server + ch.Topic

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(n.Message))
	if err != nil {
		return err
	}
	req.Header.Set("Title", n.Title)

	switch n.Level {
	case LevelCritical:
		req.Header.Set("Priority", "high")
		req.Header.Set("Tags", "rotating_light")
	case LevelWarning:
		req.Header.Set("Priority", "default")
		req.Header.Set("Tags", "warning")
	case LevelInfo:
		req.Header.Set("Priority", "low")
		req.Header.Set("Tags", "information_source")
	}

	for k, v := range ch.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ntfy failed with status: %d", resp.StatusCode)
	}
	return nil
}
