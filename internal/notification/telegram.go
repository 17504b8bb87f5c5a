package notification

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"

	"github.com/chaollapark/homelab/internal/config"
)

// telegramAPIBase is swappable in tests.
var telegramAPIBase = "https://api.telegram.org"

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// sendTelegram posts a sendMessage call to the Bot API. Messages go out
// with parse_mode=HTML; the rich rendering from Notification.HTML is used
// when present, otherwise Title and Message are escaped and composed.
func (d *Dispatcher) sendTelegram(ch config.NotificationChannel, n Notification) error {
	if ch.Token == "" || ch.ChatID == "" {
		return fmt.Errorf("missing token or chat_id")
	}

	text := n.HTML
	if text == "" {
		text = html.EscapeString(n.Message)
		if n.Title != "" {
			text = fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(n.Title), text)
		}
	}

	form := url.Values{}
	form.Set("chat_id", ch.ChatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, ch.Token)
	resp, err := d.hc.Post(endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var result telegramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("telegram returned status %d with unreadable body", resp.StatusCode)
	}
	if !result.OK {
		if result.Description != "" {
			return fmt.Errorf("telegram rejected message: %s", result.Description)
		}
		return fmt.Errorf("telegram rejected message (status %d)", resp.StatusCode)
	}
	return nil
}
