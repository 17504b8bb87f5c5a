package notification

import (
	"fmt"
	"html"
	"strings"
)

// Message builders shared by the monitor and the bot. Each returns both a
// plain rendering for webhook/ntfy channels and the HTML rendering Telegram
// users see.

// DeviceArrived announces a device joining the network.
func DeviceArrived(name, ip string) Notification {
	return Notification{
		Title:   "Device Arrived",
		Message: fmt.Sprintf("%s connected (%s)", name, ip),
		Level:   LevelInfo,
		HTML: fmt.Sprintf(
			"📱 <b>Device Arrived!</b>\n\n"+
				"🟢 <b>%s</b>\n"+
				"IP: <code>%s</code>\n"+
				"Status: Connected to network",
			html.EscapeString(name), html.EscapeString(ip)),
		Data: map[string]interface{}{"device": name, "ip": ip, "event": "arrived"},
	}
}

// DeviceLeft announces a device dropping off the network.
func DeviceLeft(name, ip string) Notification {
	return Notification{
		Title:   "Device Left",
		Message: fmt.Sprintf("%s disconnected (%s)", name, ip),
		Level:   LevelInfo,
		HTML: fmt.Sprintf(
			"📱 <b>Device Left!</b>\n\n"+
				"🔴 <b>%s</b>\n"+
				"IP: <code>%s</code>\n"+
				"Status: Disconnected from network",
			html.EscapeString(name), html.EscapeString(ip)),
		Data: map[string]interface{}{"device": name, "ip": ip, "event": "left"},
	}
}

// MonitorStarted is the startup banner.
func MonitorStarted(tracked, online int, patterns []string) Notification {
	return Notification{
		Title: "Presence Monitor Started",
		Message: fmt.Sprintf("Tracking %d devices (%d online), notifying on: %s",
			tracked, online, strings.Join(patterns, ", ")),
		Level: LevelInfo,
		HTML: fmt.Sprintf(
			"🔔 <b>Presence Monitor Started</b>\n\n"+
				"Mode: Router API (reliable)\n"+
				"Tracking: %d devices\n"+
				"Online now: %d\n"+
				"Notify patterns: %s\n\n"+
				"<b>Commands:</b> /status /stats /today /help",
			tracked, online, html.EscapeString(strings.Join(patterns, ", "))),
	}
}

// MonitorStopped is the shutdown notice.
func MonitorStopped() Notification {
	return Notification{
		Title:   "Presence Monitor Stopped",
		Message: "Monitoring has shut down",
		Level:   LevelWarning,
		HTML:    "🔕 <b>Presence Monitor Stopped</b>\n\nMonitoring has shut down.",
	}
}

// LockdownEngaged announces a lockdown start.
func LockdownEngaged(mode string, blocked, failed int) Notification {
	n := Notification{
		Title:   "Lockdown Active",
		Message: fmt.Sprintf("%s lockdown active, %d devices blocked", strings.ToUpper(mode), blocked),
		Level:   LevelWarning,
		Data:    map[string]interface{}{"mode": mode, "blocked": blocked, "failed": failed},
	}
	htmlMsg := fmt.Sprintf("🔒 <b>%s Lockdown Active</b>\n\nBlocked: %d devices",
		strings.ToUpper(mode), blocked)
	if failed > 0 {
		htmlMsg += fmt.Sprintf("\nFailed: %d", failed)
		n.Message += fmt.Sprintf(" (%d failed)", failed)
	}
	if mode == "soft" {
		htmlMsg += "\n\n⚠️ New devices can still connect!"
	}
	n.HTML = htmlMsg
	return n
}

// LockdownLifted announces a lockdown stop.
func LockdownLifted(mode string, unblocked, failed int) Notification {
	n := Notification{
		Title:   "Lockdown Ended",
		Message: fmt.Sprintf("Lockdown ended, %d devices unblocked", unblocked),
		Level:   LevelInfo,
		Data:    map[string]interface{}{"mode": mode, "unblocked": unblocked, "failed": failed},
	}
	htmlMsg := "🔓 <b>Lockdown Ended</b>\n\nAll devices can now connect"
	if mode == "soft" {
		htmlMsg = fmt.Sprintf("🔓 <b>Lockdown Ended</b>\n\nUnblocked: %d devices", unblocked)
		if failed > 0 {
			htmlMsg += fmt.Sprintf("\nFailed: %d", failed)
			n.Message += fmt.Sprintf(" (%d failed)", failed)
		}
	}
	n.HTML = htmlMsg
	return n
}
