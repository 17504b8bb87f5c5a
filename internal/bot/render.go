package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/chaollapark/homelab/internal/brand"
	"github.com/chaollapark/homelab/internal/ops"
	"github.com/chaollapark/homelab/internal/presence"
	"github.com/chaollapark/homelab/internal/router"
)

func escape(s string) string { return html.EscapeString(s) }

func helpText() string {
	return "📱 <b>" + brand.Name + " Monitor</b>\n\n" +
		"<b>📊 Status Commands:</b>\n" +
		"/status - Current device status\n" +
		"/devices - List all devices\n" +
		"/stats - Overall statistics\n" +
		"/today - Today's activity\n" +
		"/week - This week's summary\n\n" +
		"<b>🌐 Site Blocking:</b>\n" +
		"/block &lt;site&gt; - Block a website\n" +
		"/unblock &lt;site&gt; - Unblock a website\n" +
		"/blocklist - Show blocked sites\n\n" +
		"<b>📵 Device Control:</b>\n" +
		"/kick &lt;device&gt; - Kick device off network\n" +
		"/allow &lt;device&gt; - Allow device back\n" +
		"/banned - Show banned devices\n\n" +
		"<b>🔒 Lockdown:</b>\n" +
		"/lockdown - Block all except allowlist\n" +
		"/lockdown soft - Block only visible devices\n" +
		"/unlock - Lift lockdown\n" +
		"/lockstatus - Lockdown state\n\n" +
		"/help - Show this help"
}

func renderStatus(res ops.Result) string {
	if !res.OK {
		return "❌ Status not available"
	}
	var online, offline []router.Device
	for _, d := range res.Devices {
		if d.Online {
			online = append(online, d)
		} else {
			offline = append(offline, d)
		}
	}

	lines := []string{fmt.Sprintf("📱 <b>Device Status</b> (%d/%d online)\n", len(online), len(res.Devices))}

	if len(online) > 0 {
		lines = append(lines, "<b>🟢 Online:</b>")
		for i, d := range online {
			if i == 15 {
				lines = append(lines, fmt.Sprintf("  ... and %d more", len(online)-15))
				break
			}
			lines = append(lines, "  • "+escape(d.Name))
		}
	}

	if n := len(offline); n > 0 && n <= 10 {
		lines = append(lines, "\n<b>🔴 Offline:</b>")
		for _, d := range offline {
			lines = append(lines, "  • "+escape(d.Name))
		}
	}

	return strings.Join(lines, "\n")
}

func renderDevices(res ops.Result) string {
	if !res.OK {
		return "❌ Device list not available"
	}
	lines := []string{fmt.Sprintf("📋 <b>All Devices</b> (%d total)\n", len(res.Devices))}
	for _, d := range res.Devices {
		icon := "🔴"
		if d.Online {
			icon = "🟢"
		}
		lines = append(lines, fmt.Sprintf("%s %s", icon, escape(d.Name)))
	}
	if len(lines) > 50 {
		lines = lines[:50]
	}
	return strings.Join(lines, "\n")
}

func renderBanned(res ops.Result) string {
	if !res.OK {
		return "❌ Failed to get banned devices"
	}
	if len(res.Devices) == 0 {
		return "📵 <b>Banned Devices</b>\n\nNo devices are currently banned."
	}
	lines := []string{fmt.Sprintf("📵 <b>Banned Devices</b> (%d)\n", len(res.Devices))}
	for _, d := range res.Devices {
		lines = append(lines, fmt.Sprintf("🚫 %s (%s)", escape(d.Name), d.MAC))
	}
	return strings.Join(lines, "\n")
}

func renderBlockedSites(res ops.Result) string {
	if !res.OK {
		return "❌ Failed to get blocked sites"
	}
	if len(res.Sites) == 0 {
		return "🌐 <b>Blocked Sites</b>\n\nNo sites are currently blocked."
	}
	lines := []string{fmt.Sprintf("🌐 <b>Blocked Sites</b> (%d)\n", len(res.Sites))}
	for _, site := range res.Sites {
		lines = append(lines, "🚫 "+escape(site))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) renderStats() string {
	if b.history == nil {
		return "📊 No data yet. Check back later!"
	}
	stats, err := b.history.Stats()
	if err != nil || stats.TotalEvents == 0 {
		return "📊 No data yet. Check back later!"
	}
	return fmt.Sprintf(
		"📊 <b>Presence Statistics</b>\n\n"+
			"Total events: %d\n"+
			"Arrivals: %d\n"+
			"Departures: %d\n"+
			"Days tracked: %d\n"+
			"Unique devices: %d",
		stats.TotalEvents, stats.Arrivals, stats.Departures, stats.DaysTracked, stats.UniqueDevices)
}

func (b *Bot) renderToday() string {
	now := b.clock.Now()
	today := now.Format("2006-01-02")
	empty := fmt.Sprintf("📅 No activity recorded today (%s)", today)
	if b.history == nil {
		return empty
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	events, err := b.history.EventsSince(midnight)
	if err != nil || len(events) == 0 {
		return empty
	}

	lines := []string{fmt.Sprintf("📅 <b>Today's Activity</b> (%s)\n", today)}
	start := 0
	if len(events) > 15 {
		start = len(events) - 15
	}
	for _, e := range events[start:] {
		icon := "🔴"
		if e.Event == presence.Arrived {
			icon = "🟢"
		}
		lines = append(lines, fmt.Sprintf("%s %s - %s", icon, e.At.Format("15:04:05"), escape(e.DeviceName)))
	}
	if len(events) > 15 {
		lines = append(lines, fmt.Sprintf("\n... and %d more events", len(events)-15))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) renderWeek() string {
	const empty = "📅 No data for this week yet."
	if b.history == nil {
		return empty
	}
	now := b.clock.Now()
	weekStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -6)
	events, err := b.history.EventsSince(weekStart)
	if err != nil || len(events) == 0 {
		return empty
	}

	type dayCounts struct{ arrivals, departures int }
	byDate := make(map[string]*dayCounts)
	for _, e := range events {
		key := e.At.Format("2006-01-02")
		dc := byDate[key]
		if dc == nil {
			dc = &dayCounts{}
			byDate[key] = dc
		}
		switch e.Event {
		case presence.Arrived:
			dc.arrivals++
		case presence.Left:
			dc.departures++
		}
	}

	lines := []string{"📅 <b>This Week's Summary</b>\n"}
	// Newest day first, today included.
	for i := 0; i < 7; i++ {
		day := now.AddDate(0, 0, -i)
		dc := byDate[day.Format("2006-01-02")]
		if dc == nil || (dc.arrivals == 0 && dc.departures == 0) {
			continue
		}
		lines = append(lines, fmt.Sprintf("<b>%s</b>: %d↑ %d↓", day.Format("Mon 02"), dc.arrivals, dc.departures))
	}
	if len(lines) == 1 {
		return empty
	}
	return strings.Join(lines, "\n")
}
