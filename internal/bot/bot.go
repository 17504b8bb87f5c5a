// Package bot implements the Telegram command interface. It long-polls
// getUpdates once per monitor cycle, honors commands from the configured
// chat only, and answers through the same command layer the CLI uses.
// Every executed command lands in the audit store.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chaollapark/homelab/internal/audit"
	"github.com/chaollapark/homelab/internal/clock"
	"github.com/chaollapark/homelab/internal/logging"
	"github.com/chaollapark/homelab/internal/metrics"
	"github.com/chaollapark/homelab/internal/ops"
	"github.com/chaollapark/homelab/internal/presence"
)

var telegramAPIBase = "https://api.telegram.org"

// Commander is the slice of the command layer the bot drives.
type Commander interface {
	Status(ctx context.Context) ops.Result
	KickDevice(ctx context.Context, name string) ops.Result
	AllowDevice(ctx context.Context, name string) ops.Result
	BlockedDevices(ctx context.Context) ops.Result
	BlockSite(ctx context.Context, site string) ops.Result
	UnblockSite(ctx context.Context, site string) ops.Result
	BlockedSites(ctx context.Context) ops.Result
	LockdownStart(ctx context.Context, strict, dryRun bool) ops.Result
	LockdownStop(ctx context.Context) ops.Result
	LockdownStatus() ops.Result
}

// History is the slice of the presence log the stats commands read.
type History interface {
	Stats() (presence.Stats, error)
	EventsSince(since time.Time) ([]presence.Entry, error)
}

// Options configures a Bot. Token, ChatID, and Commander are required;
// History and Audit degrade gracefully when nil.
type Options struct {
	Token     string
	ChatID    string
	Commander Commander
	History   History
	Audit     *audit.Store
	Clock     clock.Clock
	Logger    *logging.Logger
}

// Bot polls for owner commands and replies in the same chat.
type Bot struct {
	token   string
	chatID  string
	hc      *http.Client
	cmds    Commander
	history History
	audit   *audit.Store
	clock   clock.Clock
	log     *logging.Logger

	// lastUpdateID is only touched from ProcessUpdates, which the monitor
	// calls from its single poll goroutine.
	lastUpdateID int64
}

// New builds a Bot.
func New(opts Options) (*Bot, error) {
	if opts.Token == "" {
		return nil, errors.New("bot: token is required")
	}
	if opts.ChatID == "" {
		return nil, errors.New("bot: chat_id is required")
	}
	if opts.Commander == nil {
		return nil, errors.New("bot: commander is required")
	}
	cl := opts.Clock
	if cl == nil {
		cl = &clock.RealClock{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.WithComponent("bot")
	}
	return &Bot{
		token:   opts.Token,
		chatID:  opts.ChatID,
		hc:      &http.Client{Timeout: 10 * time.Second},
		cmds:    opts.Commander,
		history: opts.History,
		audit:   opts.Audit,
		clock:   cl,
		log:     log,
	}, nil
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// ProcessUpdates drains pending Telegram updates and handles any commands
// from the configured chat. Poll failures are logged and swallowed; the
// next cycle tries again.
func (b *Bot) ProcessUpdates(ctx context.Context) {
	updates, err := b.getUpdates(ctx)
	if err != nil {
		b.log.Warn("update poll failed", "error", err)
		return
	}
	for _, u := range updates {
		b.lastUpdateID = u.UpdateID
		if u.Message == nil {
			continue
		}
		chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
		if chatID != b.chatID {
			b.log.Warn("ignoring message from unknown chat", "chat_id", chatID)
			continue
		}
		text := strings.TrimSpace(u.Message.Text)
		if !strings.HasPrefix(text, "/") {
			continue
		}
		b.handleCommand(ctx, text)
	}
}

func (b *Bot) getUpdates(ctx context.Context) ([]update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(b.lastUpdateID+1, 10))
	q.Set("timeout", "5")
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", telegramAPIBase, b.token, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var ur updatesResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return nil, fmt.Errorf("telegram returned status %d with unreadable body", resp.StatusCode)
	}
	if !ur.OK {
		return nil, fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return ur.Result, nil
}

func (b *Bot) handleCommand(ctx context.Context, text string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return
	}
	command := strings.ToLower(parts[0])
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	args := parts[1:]

	metrics.Get().BotCommands.WithLabelValues(command).Inc()
	b.log.Info("command received", "command", command, "args", strings.Join(args, " "))

	reply, res := b.dispatch(ctx, command, args)
	if reply == "" {
		// Unknown commands are ignored, same as any other chatter.
		return
	}
	b.recordCommand(command, args, res)
	b.reply(ctx, reply)
}

// dispatch runs one command and returns the HTML reply plus the outcome for
// the audit trail. An empty reply means the command is not ours.
func (b *Bot) dispatch(ctx context.Context, command string, args []string) (string, ops.Result) {
	switch command {
	case "/help":
		return helpText(), ops.Result{OK: true, Message: "help shown"}

	case "/status":
		res := b.cmds.Status(ctx)
		return renderStatus(res), res

	case "/devices":
		res := b.cmds.Status(ctx)
		return renderDevices(res), res

	case "/stats":
		return b.renderStats(), ops.Result{OK: true, Message: "stats shown"}

	case "/today":
		return b.renderToday(), ops.Result{OK: true, Message: "today shown"}

	case "/week":
		return b.renderWeek(), ops.Result{OK: true, Message: "week shown"}

	case "/block":
		if len(args) == 0 {
			return "Usage: /block &lt;website&gt;\nExample: /block facebook.com", ops.Result{}
		}
		res := b.cmds.BlockSite(ctx, args[0])
		return escape(res.Message), res

	case "/unblock":
		if len(args) == 0 {
			return "Usage: /unblock &lt;website&gt;\nExample: /unblock facebook.com", ops.Result{}
		}
		res := b.cmds.UnblockSite(ctx, args[0])
		return escape(res.Message), res

	case "/blocklist":
		res := b.cmds.BlockedSites(ctx)
		return renderBlockedSites(res), res

	case "/kick":
		if len(args) == 0 {
			return "Usage: /kick &lt;device_name&gt;\nExample: /kick Samsung", ops.Result{}
		}
		res := b.cmds.KickDevice(ctx, strings.Join(args, " "))
		return escape(res.Message), res

	case "/allow":
		if len(args) == 0 {
			return "Usage: /allow &lt;device_name&gt;\nExample: /allow Samsung", ops.Result{}
		}
		res := b.cmds.AllowDevice(ctx, strings.Join(args, " "))
		return escape(res.Message), res

	case "/banned":
		res := b.cmds.BlockedDevices(ctx)
		return renderBanned(res), res

	case "/lockdown":
		strict := true
		if len(args) > 0 && strings.EqualFold(args[0], "soft") {
			strict = false
		}
		res := b.cmds.LockdownStart(ctx, strict, false)
		return escape(res.Message), res

	case "/unlock":
		res := b.cmds.LockdownStop(ctx)
		return escape(res.Message), res

	case "/lockstatus":
		res := b.cmds.LockdownStatus()
		return escape(res.Message), res
	}
	return "", ops.Result{}
}

func (b *Bot) recordCommand(command string, args []string, res ops.Result) {
	if b.audit == nil {
		return
	}
	err := b.audit.Write(audit.Entry{
		Timestamp: b.clock.Now(),
		ChatID:    b.chatID,
		Command:   command,
		Args:      strings.Join(args, " "),
		OK:        res.OK,
		Message:   res.Message,
	})
	if err != nil {
		b.log.Warn("audit write failed", "error", err)
	}
}

// reply sends an HTML-formatted message back to the owner chat. Failures
// are logged, never returned: a lost reply must not take the monitor down.
func (b *Bot) reply(ctx context.Context, text string) {
	form := url.Values{}
	form.Set("chat_id", b.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		b.log.Warn("reply failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.hc.Do(req)
	if err != nil {
		b.log.Warn("reply failed", "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		b.log.Warn("reply rejected", "status", resp.StatusCode)
	}
}
