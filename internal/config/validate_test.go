package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Router: RouterConfig{
			URL:      "http://192.168.0.1",
			Username: "admin",
			Password: "pw",
		},
	}
}

func TestValidate_MinimalConfig(t *testing.T) {
	errs := validConfig().Validate()
	assert.False(t, errs.HasErrors(), "minimal config should validate: %v", errs)
}

func TestValidate_RouterRequired(t *testing.T) {
	cfg := &Config{}
	errs := cfg.Validate()

	assert.True(t, errs.HasErrors())
	fields := fieldSet(errs)
	assert.Contains(t, fields, "router.url")
	assert.Contains(t, fields, "router.username")
	assert.Contains(t, fields, "router.password")
}

func TestValidate_RouterURLScheme(t *testing.T) {
	cfg := validConfig()
	cfg.Router.URL = "ftp://192.168.0.1"

	errs := cfg.Validate()
	assert.True(t, errs.HasErrors())
	assert.Contains(t, fieldSet(errs), "router.url")
}

func TestValidate_BadDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Router.ReadTimeout = "fast"
	cfg.Monitor = &MonitorConfig{Interval: "never"}

	errs := cfg.Validate()
	fields := fieldSet(errs)
	assert.Contains(t, fields, "router.read_timeout")
	assert.Contains(t, fields, "monitor.interval")
}

func TestValidate_ShortIntervalIsWarning(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor = &MonitorConfig{Interval: "2s"}

	errs := cfg.Validate()
	assert.False(t, errs.HasErrors(), "short interval is a warning, not an error")
	assert.Len(t, errs.Warnings(), 1)
}

func TestValidate_AllowlistMAC(t *testing.T) {
	cfg := validConfig()
	cfg.Allowlist = &AllowlistConfig{
		Devices: []AllowlistDevice{
			{Name: "AP", MAC: "not-a-mac"},
			{Name: "OK", MAC: "AA:BB:CC:DD:EE:FF"},
			{Name: "Empty"},
		},
	}

	errs := cfg.Validate()
	assert.True(t, errs.HasErrors())
	fields := fieldSet(errs)
	assert.Contains(t, fields, "allowlist.device.AP.mac")
	assert.Contains(t, fields, "allowlist.device.Empty.mac")
	assert.NotContains(t, fields, "allowlist.device.OK.mac")
}

func TestValidate_NotificationChannels(t *testing.T) {
	cfg := validConfig()
	cfg.Notifications = &NotificationsConfig{
		Enabled: true,
		Channels: []NotificationChannel{
			{Name: "tg", Type: "telegram"},               // missing token/chat
			{Name: "hook", Type: "webhook"},              // missing url
			{Name: "push", Type: "ntfy"},                 // missing topic
			{Name: "bad", Type: "carrier-pigeon"},        // unknown type
			{Name: "lvl", Type: "ntfy", Topic: "t", MinLevel: "loud"}, // bad level
		},
	}

	errs := cfg.Validate()
	assert.True(t, errs.HasErrors())
	fields := fieldSet(errs)
	assert.Contains(t, fields, "notifications.channel.tg.token")
	assert.Contains(t, fields, "notifications.channel.tg.chat_id")
	assert.Contains(t, fields, "notifications.channel.hook.url")
	assert.Contains(t, fields, "notifications.channel.push.topic")
	assert.Contains(t, fields, "notifications.channel.bad.type")
	assert.Contains(t, fields, "notifications.channel.lvl.min_level")
}

func TestValidate_NotificationsEnabledWithoutChannels(t *testing.T) {
	cfg := validConfig()
	cfg.Notifications = &NotificationsConfig{Enabled: true}

	errs := cfg.Validate()
	assert.False(t, errs.HasErrors())
	assert.Len(t, errs.Warnings(), 1)
}

func TestValidate_Bot(t *testing.T) {
	cfg := validConfig()
	cfg.Bot = &BotConfig{Enabled: true}

	errs := cfg.Validate()
	assert.True(t, errs.HasErrors())
	fields := fieldSet(errs)
	assert.Contains(t, fields, "bot.token")
	assert.Contains(t, fields, "bot.chat_id")

	// Disabled bot skips validation entirely
	cfg.Bot = &BotConfig{Enabled: false}
	assert.False(t, cfg.Validate().HasErrors())
}

func TestValidate_PingTargets(t *testing.T) {
	cfg := validConfig()
	cfg.Ping = &PingConfig{
		Enabled: true,
		Targets: map[string]string{"Phone": "999.1.1.1"},
	}

	errs := cfg.Validate()
	assert.True(t, errs.HasErrors())
	assert.Contains(t, fieldSet(errs), "ping.targets.Phone")
}

func TestValidate_MetricsListen(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics = &MetricsConfig{Enabled: true, Listen: "no-port"}

	errs := cfg.Validate()
	assert.True(t, errs.HasErrors())
	assert.Contains(t, fieldSet(errs), "metrics.listen")
}

func TestValidate_LoggingLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging = &LoggingConfig{Level: "verbose"}

	errs := cfg.Validate()
	assert.True(t, errs.HasErrors())
	assert.Contains(t, fieldSet(errs), "logging.level")
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}
	msg := errs.Error()
	assert.True(t, strings.Contains(msg, "a: bad"))
	assert.True(t, strings.Contains(msg, "b: worse"))

	assert.Empty(t, ValidationErrors{}.Error())
}

func fieldSet(errs ValidationErrors) map[string]bool {
	out := make(map[string]bool, len(errs))
	for _, e := range errs {
		out[e.Field] = true
	}
	return out
}
