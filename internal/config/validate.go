package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if any entry has error severity.
func (e ValidationErrors) HasErrors() bool {
	for _, err := range e {
		if err.Severity != "warning" {
			return true
		}
	}
	return false
}

// Warnings returns only the warning-severity entries.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.Severity == "warning" {
			out = append(out, err)
		}
	}
	return out
}

// Validate checks the entire configuration.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, c.validateRouter()...)
	errs = append(errs, c.validateMonitor()...)
	errs = append(errs, c.validatePing()...)
	errs = append(errs, c.validateAllowlist()...)
	errs = append(errs, c.validateNotifications()...)
	errs = append(errs, c.validateBot()...)
	errs = append(errs, c.validateMetrics()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateRouter() ValidationErrors {
	var errs ValidationErrors

	if c.Router.URL == "" {
		errs = append(errs, ValidationError{Field: "router.url", Message: "is required"})
	} else {
		u, err := url.Parse(c.Router.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{Field: "router.url", Message: "must be an http(s) URL"})
		}
	}
	if c.Router.Username == "" {
		errs = append(errs, ValidationError{Field: "router.username", Message: "is required"})
	}
	if c.Router.Password == "" {
		errs = append(errs, ValidationError{
			Field:   "router.password",
			Message: "is empty (did the env() variable resolve?)",
		})
	}
	for field, val := range map[string]string{
		"router.read_timeout":  c.Router.ReadTimeout,
		"router.write_timeout": c.Router.WriteTimeout,
	} {
		if val == "" {
			continue
		}
		if _, err := time.ParseDuration(val); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: "invalid duration"})
		}
	}

	return errs
}

func (c *Config) validateMonitor() ValidationErrors {
	var errs ValidationErrors
	if c.Monitor == nil {
		return errs
	}

	if c.Monitor.Interval != "" {
		d, err := time.ParseDuration(c.Monitor.Interval)
		if err != nil {
			errs = append(errs, ValidationError{Field: "monitor.interval", Message: "invalid duration"})
		} else if d < 10*time.Second {
			errs = append(errs, ValidationError{
				Field:    "monitor.interval",
				Message:  "below 10s hammers the gateway and may evict its single web session",
				Severity: "warning",
			})
		}
	}
	if c.Monitor.SummaryEvery < 0 {
		errs = append(errs, ValidationError{Field: "monitor.summary_every", Message: "must be >= 0"})
	}

	return errs
}

func (c *Config) validatePing() ValidationErrors {
	var errs ValidationErrors
	if c.Ping == nil || !c.Ping.Enabled {
		return errs
	}

	if len(c.Ping.Targets) == 0 {
		errs = append(errs, ValidationError{
			Field:    "ping.targets",
			Message:  "ping fallback enabled without targets",
			Severity: "warning",
		})
	}
	for name, ip := range c.Ping.Targets {
		if net.ParseIP(ip) == nil {
			errs = append(errs, ValidationError{
				Field:   "ping.targets." + name,
				Message: fmt.Sprintf("invalid IP address %q", ip),
			})
		}
	}
	if c.Ping.Timeout != "" {
		if _, err := time.ParseDuration(c.Ping.Timeout); err != nil {
			errs = append(errs, ValidationError{Field: "ping.timeout", Message: "invalid duration"})
		}
	}

	return errs
}

func (c *Config) validateAllowlist() ValidationErrors {
	var errs ValidationErrors
	if c.Allowlist == nil {
		return errs
	}

	for _, d := range c.Allowlist.Devices {
		if d.MAC == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("allowlist.device.%s.mac", d.Name),
				Message: "is required",
			})
			continue
		}
		if _, err := net.ParseMAC(d.MAC); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("allowlist.device.%s.mac", d.Name),
				Message: fmt.Sprintf("invalid MAC address %q", d.MAC),
			})
		}
	}

	return errs
}

func (c *Config) validateNotifications() ValidationErrors {
	var errs ValidationErrors
	if c.Notifications == nil {
		return errs
	}

	if c.Notifications.Enabled && len(c.Notifications.Channels) == 0 {
		errs = append(errs, ValidationError{
			Field:    "notifications",
			Message:  "enabled without channels",
			Severity: "warning",
		})
	}

	for _, ch := range c.Notifications.Channels {
		field := "notifications.channel." + ch.Name
		switch ch.Type {
		case "telegram":
			if ch.Token == "" {
				errs = append(errs, ValidationError{Field: field + ".token", Message: "is required for telegram"})
			}
			if ch.ChatID == "" {
				errs = append(errs, ValidationError{Field: field + ".chat_id", Message: "is required for telegram"})
			}
		case "webhook", "slack", "discord":
			if ch.URL == "" {
				errs = append(errs, ValidationError{Field: field + ".url", Message: "is required for " + ch.Type})
			}
		case "ntfy":
			if ch.Topic == "" {
				errs = append(errs, ValidationError{Field: field + ".topic", Message: "is required for ntfy"})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("unknown type %q (telegram, webhook, slack, discord, ntfy)", ch.Type),
			})
		}
		switch ch.MinLevel {
		case "", "info", "warning", "critical":
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".min_level",
				Message: fmt.Sprintf("unknown level %q (info, warning, critical)", ch.MinLevel),
			})
		}
	}

	return errs
}

func (c *Config) validateBot() ValidationErrors {
	var errs ValidationErrors
	if c.Bot == nil || !c.Bot.Enabled {
		return errs
	}

	if c.Bot.Token == "" {
		errs = append(errs, ValidationError{Field: "bot.token", Message: "is required when bot is enabled"})
	}
	if c.Bot.ChatID == "" {
		errs = append(errs, ValidationError{Field: "bot.chat_id", Message: "is required when bot is enabled"})
	}

	return errs
}

func (c *Config) validateMetrics() ValidationErrors {
	var errs ValidationErrors
	if c.Metrics == nil || !c.Metrics.Enabled || c.Metrics.Listen == "" {
		return errs
	}

	if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
		errs = append(errs, ValidationError{Field: "metrics.listen", Message: "must be host:port"})
	}

	return errs
}

func (c *Config) validateLogging() ValidationErrors {
	var errs ValidationErrors
	if c.Logging == nil {
		return errs
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q (debug, info, warn, error)", c.Logging.Level),
		})
	}

	return errs
}
