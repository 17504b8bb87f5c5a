// Package config defines the HCL configuration surface.
//
// A single file configures the router session, the presence monitor, the
// allowlist, lockdown persistence, notification channels, the Telegram bot,
// metrics, and logging. Secrets can be pulled from the environment with the
// env("NAME") function so the file itself stays shareable.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/chaollapark/homelab/internal/brand"
)

// Config is the root of the configuration file. Only the router block is
// mandatory; everything else has workable defaults.
type Config struct {
	Router        RouterConfig         `hcl:"router,block" json:"router"`
	Monitor       *MonitorConfig       `hcl:"monitor,block" json:"monitor,omitempty"`
	Ping          *PingConfig          `hcl:"ping,block" json:"ping,omitempty"`
	Allowlist     *AllowlistConfig     `hcl:"allowlist,block" json:"allowlist,omitempty"`
	Lockdown      *LockdownConfig      `hcl:"lockdown,block" json:"lockdown,omitempty"`
	Notifications *NotificationsConfig `hcl:"notifications,block" json:"notifications,omitempty"`
	Bot           *BotConfig           `hcl:"bot,block" json:"bot,omitempty"`
	Metrics       *MetricsConfig       `hcl:"metrics,block" json:"metrics,omitempty"`
	Logging       *LoggingConfig       `hcl:"logging,block" json:"logging,omitempty"`
}

// RouterConfig holds the gateway endpoint and credentials.
type RouterConfig struct {
	URL      string `hcl:"url" json:"url"`
	Username string `hcl:"username" json:"username"`
	Password string `hcl:"password" json:"password"`

	// Durations are strings like "10s" so the file stays readable.
	ReadTimeout  string `hcl:"read_timeout,optional" json:"read_timeout,omitempty"`
	WriteTimeout string `hcl:"write_timeout,optional" json:"write_timeout,omitempty"`
}

// ReadTimeoutDuration returns the parsed read timeout (default 10s).
func (c *RouterConfig) ReadTimeoutDuration() time.Duration {
	return parseDuration(c.ReadTimeout, 10*time.Second)
}

// WriteTimeoutDuration returns the parsed write timeout (default 15s).
func (c *RouterConfig) WriteTimeoutDuration() time.Duration {
	return parseDuration(c.WriteTimeout, 15*time.Second)
}

// MonitorConfig controls the poll loop.
// All accessors tolerate a nil receiver so a missing block means defaults.
type MonitorConfig struct {
	Interval       string   `hcl:"interval,optional" json:"interval,omitempty"`
	NotifyPatterns []string `hcl:"notify_patterns,optional" json:"notify_patterns,omitempty"`
	SummaryEvery   int      `hcl:"summary_every,optional" json:"summary_every,omitempty"`
	EventLog       string   `hcl:"event_log,optional" json:"event_log,omitempty"`
}

// IntervalDuration returns the parsed poll interval (default 30s).
func (c *MonitorConfig) IntervalDuration() time.Duration {
	if c == nil {
		return 30 * time.Second
	}
	return parseDuration(c.Interval, 30*time.Second)
}

// SummaryCycles returns how often (in cycles) to emit a tracked-device
// summary. Zero disables summaries.
func (c *MonitorConfig) SummaryCycles() int {
	if c == nil || c.SummaryEvery < 0 {
		return 0
	}
	return c.SummaryEvery
}

// EventLogPath returns the CSV event log location, defaulting under the
// state dir.
func (c *MonitorConfig) EventLogPath() string {
	if c != nil && c.EventLog != "" {
		return c.EventLog
	}
	return filepath.Join(brand.GetStateDir(), "presence_log.csv")
}

// NotificationPatternsLower returns notify_patterns lowercased for
// case-insensitive matching.
func (c *MonitorConfig) NotificationPatternsLower() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.NotifyPatterns))
	for _, p := range c.NotifyPatterns {
		out = append(out, strings.ToLower(p))
	}
	return out
}

// PingConfig enables the ICMP fallback detector for devices whose WiFi
// presence flaps (phones in deep sleep).
type PingConfig struct {
	Enabled  bool              `hcl:"enabled,optional" json:"enabled"`
	Targets  map[string]string `hcl:"targets,optional" json:"targets,omitempty"` // device name -> IP
	Timeout  string            `hcl:"timeout,optional" json:"timeout,omitempty"`
	Attempts int               `hcl:"attempts,optional" json:"attempts,omitempty"`
}

// TimeoutDuration returns the per-attempt ping timeout (default 2s).
func (c *PingConfig) TimeoutDuration() time.Duration {
	if c == nil {
		return 2 * time.Second
	}
	return parseDuration(c.Timeout, 2*time.Second)
}

// AttemptCount returns the number of ping attempts (default 3).
func (c *PingConfig) AttemptCount() int {
	if c == nil || c.Attempts <= 0 {
		return 3
	}
	return c.Attempts
}

// AllowlistConfig holds the allowlist file location and the infrastructure
// devices that must always be present in it.
type AllowlistConfig struct {
	Path    string            `hcl:"path,optional" json:"path,omitempty"`
	Devices []AllowlistDevice `hcl:"device,block" json:"devices,omitempty"`
}

// AllowlistDevice is an infrastructure device seeded into the allowlist.
type AllowlistDevice struct {
	Name   string `hcl:"name,label" json:"name"`
	MAC    string `hcl:"mac" json:"mac"`
	Reason string `hcl:"reason,optional" json:"reason,omitempty"`
}

// FilePath returns the allowlist location, defaulting under the state dir.
func (c *AllowlistConfig) FilePath() string {
	if c != nil && c.Path != "" {
		return c.Path
	}
	return filepath.Join(brand.GetStateDir(), "allowed_devices.json")
}

// SeedDevices returns the configured infrastructure devices.
func (c *AllowlistConfig) SeedDevices() []AllowlistDevice {
	if c == nil {
		return nil
	}
	return c.Devices
}

// LockdownConfig holds lockdown state persistence.
type LockdownConfig struct {
	StatePath string `hcl:"state_path,optional" json:"state_path,omitempty"`
}

// StateFilePath returns the lockdown state location, defaulting under the
// state dir.
func (c *LockdownConfig) StateFilePath() string {
	if c != nil && c.StatePath != "" {
		return c.StatePath
	}
	return filepath.Join(brand.GetStateDir(), "lockdown_state.json")
}

// NotificationsConfig configures outbound alerting.
type NotificationsConfig struct {
	Enabled  bool                  `hcl:"enabled,optional" json:"enabled"`
	Channels []NotificationChannel `hcl:"channel,block" json:"channels,omitempty"`
}

// NotificationChannel is one delivery target.
type NotificationChannel struct {
	Name    string `hcl:"name,label" json:"name"`
	Type    string `hcl:"type" json:"type"` // "telegram", "webhook", "ntfy"
	Enabled *bool  `hcl:"enabled,optional" json:"enabled,omitempty"`

	// Telegram
	Token  string `hcl:"token,optional" json:"token,omitempty"`
	ChatID string `hcl:"chat_id,optional" json:"chat_id,omitempty"`

	// Webhook
	URL     string            `hcl:"url,optional" json:"url,omitempty"`
	Headers map[string]string `hcl:"headers,optional" json:"headers,omitempty"`

	// Ntfy
	Server string `hcl:"server,optional" json:"server,omitempty"`
	Topic  string `hcl:"topic,optional" json:"topic,omitempty"`

	// Minimum severity to deliver: "info", "warning", "critical"
	MinLevel string `hcl:"min_level,optional" json:"min_level,omitempty"`
}

// IsEnabled returns whether the channel should be used. Channels default
// to enabled; set enabled = false to keep one configured but quiet.
func (c *NotificationChannel) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// BotConfig configures the Telegram command bot.
type BotConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled"`
	Token    string `hcl:"token,optional" json:"token,omitempty"`
	ChatID   string `hcl:"chat_id,optional" json:"chat_id,omitempty"`
	AuditLog string `hcl:"audit_log,optional" json:"audit_log,omitempty"`
}

// AuditLogPath returns the bot command audit database location, defaulting
// under the state dir.
func (c *BotConfig) AuditLogPath() string {
	if c != nil && c.AuditLog != "" {
		return c.AuditLog
	}
	return filepath.Join(brand.GetStateDir(), "bot_audit.db")
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `hcl:"enabled,optional" json:"enabled"`
	Listen  string `hcl:"listen,optional" json:"listen,omitempty"`
}

// ListenAddr returns the metrics listen address (default localhost only).
func (c *MetricsConfig) ListenAddr() string {
	if c != nil && c.Listen != "" {
		return c.Listen
	}
	return "127.0.0.1:9321"
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty"`
	File  string `hcl:"file,optional" json:"file,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}

// LevelName returns the configured level, defaulting to "info".
func (c *LoggingConfig) LevelName() string {
	if c == nil || c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
