// Package ops implements the operational commands shared by the CLI and the
// Telegram bot: device status, kick/allow, site blocking, allowlist edits,
// and lockdown control. Commands report through Result instead of bare
// errors so every caller has a message fit to put in front of a person.
package ops

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chaollapark/homelab/internal/allowlist"
	"github.com/chaollapark/homelab/internal/lockdown"
	"github.com/chaollapark/homelab/internal/logging"
	"github.com/chaollapark/homelab/internal/presence"
	"github.com/chaollapark/homelab/internal/router"
)

// Gateway is the slice of the router client the command layer drives.
type Gateway interface {
	GetDevices(ctx context.Context) ([]router.Device, error)
	FindDeviceMAC(ctx context.Context, name string) (string, error)
	BlockDevice(ctx context.Context, mac, description string) (already bool, err error)
	UnblockDevice(ctx context.Context, mac string) (wasBlocked bool, err error)
	BlockedDevices(ctx context.Context) ([]router.MACFilterEntry, error)
	BlockSite(ctx context.Context, site string) (already bool, err error)
	UnblockSite(ctx context.Context, site string) (wasBlocked bool, err error)
	BlockedSites(ctx context.Context) ([]string, error)
}

// Locker is the slice of the lockdown controller the command layer drives.
type Locker interface {
	Status() *lockdown.State
	Preview(ctx context.Context) ([]router.Device, error)
	Start(ctx context.Context, opts lockdown.StartOptions) (*lockdown.Result, error)
	Stop(ctx context.Context) (*lockdown.Result, error)
}

// Allowlist is the slice of the allowlist store the command layer edits.
type Allowlist interface {
	Devices() ([]allowlist.Device, error)
	Add(name, mac, reason string) (bool, error)
	Remove(mac string) (bool, error)
}

// Result is the outcome of one command. OK false means the command did not
// take effect; Message explains either way.
type Result struct {
	OK      bool
	Message string
	// Devices is whatever the command touched or looked up: the full table
	// for Status, the kicked device for KickDevice, and so on.
	Devices []router.Device
	// Sites is set by the site-filter commands instead of Devices.
	Sites []string
}

// Options configures a Handler. Presence, when set, serves Status and
// Devices from the running monitor's tracker instead of a fresh gateway
// fetch; one-shot CLI invocations leave it nil.
type Options struct {
	Gateway   Gateway
	Allowlist Allowlist
	Lockdown  Locker
	Presence  func() []presence.TrackedDevice
	Logger    *logging.Logger
}

// Handler binds the command set to its collaborators.
type Handler struct {
	gw       Gateway
	allow    Allowlist
	lock     Locker
	presence func() []presence.TrackedDevice
	log      *logging.Logger
}

// New builds a Handler. Gateway, Allowlist, and Lockdown are required.
func New(opts Options) (*Handler, error) {
	if opts.Gateway == nil {
		return nil, errors.New("ops: gateway is required")
	}
	if opts.Allowlist == nil {
		return nil, errors.New("ops: allowlist is required")
	}
	if opts.Lockdown == nil {
		return nil, errors.New("ops: lockdown controller is required")
	}
	log := opts.Logger
	if log == nil {
		log = logging.WithComponent("ops")
	}
	return &Handler{
		gw:       opts.Gateway,
		allow:    opts.Allowlist,
		lock:     opts.Lockdown,
		presence: opts.Presence,
		log:      log,
	}, nil
}

func (h *Handler) errResult(op string, err error) Result {
	h.log.Warn("command failed", "op", op, "error", err)
	return Result{Message: fmt.Sprintf("Error: %v", err)}
}

// Status reports which devices are online right now.
func (h *Handler) Status(ctx context.Context) Result {
	devices, err := h.deviceView(ctx)
	if err != nil {
		return h.errResult("status", err)
	}
	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
	}
	return Result{
		OK:      true,
		Message: fmt.Sprintf("%d/%d devices online", online, len(devices)),
		Devices: devices,
	}
}

// deviceView prefers the monitor's tracker so a bot /status answers from
// state the owner is already watching; without one it asks the gateway.
func (h *Handler) deviceView(ctx context.Context) ([]router.Device, error) {
	if h.presence != nil {
		tracked := h.presence()
		devices := make([]router.Device, 0, len(tracked))
		for _, t := range tracked {
			devices = append(devices, router.Device{
				Name:   t.Name,
				MAC:    t.MAC,
				IP:     t.IP,
				Medium: t.Medium,
				Online: t.Online,
			})
		}
		return devices, nil
	}
	devices, err := h.gw.GetDevices(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(devices, func(i, j int) bool {
		return strings.ToLower(devices[i].Name) < strings.ToLower(devices[j].Name)
	})
	return devices, nil
}

// KickDevice blocks a device, resolved by name against the host table.
func (h *Handler) KickDevice(ctx context.Context, name string) Result {
	mac, err := h.gw.FindDeviceMAC(ctx, name)
	if errors.Is(err, router.ErrDeviceNotFound) {
		return Result{Message: fmt.Sprintf("Device '%s' not found", name)}
	}
	if err != nil {
		return h.errResult("kick", err)
	}
	already, err := h.gw.BlockDevice(ctx, mac, name)
	if err != nil {
		return h.errResult("kick", err)
	}
	affected := []router.Device{{Name: name, MAC: mac}}
	if already {
		return Result{OK: true, Message: fmt.Sprintf("%s (%s) is already blocked", name, mac), Devices: affected}
	}
	h.log.Info("device kicked", "device", name, "mac", mac)
	return Result{OK: true, Message: fmt.Sprintf("🚫 Kicked: %s (%s)", name, mac), Devices: affected}
}

// AllowDevice removes a device's block rule. The name is resolved against
// the live host table first, then against block-rule descriptions: a kicked
// device usually drops out of the host table, so its rule is often the only
// place the name still appears.
func (h *Handler) AllowDevice(ctx context.Context, name string) Result {
	mac, err := h.gw.FindDeviceMAC(ctx, name)
	if err != nil && !errors.Is(err, router.ErrDeviceNotFound) {
		return h.errResult("allow", err)
	}
	if mac == "" {
		blocked, berr := h.gw.BlockedDevices(ctx)
		if berr != nil {
			return h.errResult("allow", berr)
		}
		query := strings.ToLower(name)
		for _, b := range blocked {
			if strings.Contains(strings.ToLower(b.Description), query) {
				mac = strings.ToUpper(b.MACAddress)
				break
			}
		}
	}
	if mac == "" {
		return Result{Message: fmt.Sprintf("Device '%s' not found", name)}
	}
	wasBlocked, err := h.gw.UnblockDevice(ctx, mac)
	if err != nil {
		return h.errResult("allow", err)
	}
	affected := []router.Device{{Name: name, MAC: mac}}
	if !wasBlocked {
		return Result{OK: true, Message: fmt.Sprintf("%s was not blocked", name), Devices: affected}
	}
	h.log.Info("device allowed", "device", name, "mac", mac)
	return Result{OK: true, Message: fmt.Sprintf("✅ Allowed: %s (%s)", name, mac), Devices: affected}
}

// BlockedDevices lists the current block rules.
func (h *Handler) BlockedDevices(ctx context.Context) Result {
	entries, err := h.gw.BlockedDevices(ctx)
	if err != nil {
		return h.errResult("banned", err)
	}
	devices := make([]router.Device, 0, len(entries))
	for _, e := range entries {
		name := e.Description
		if name == "" {
			name = "Unknown"
		}
		devices = append(devices, router.Device{Name: name, MAC: strings.ToUpper(e.MACAddress)})
	}
	if len(devices) == 0 {
		return Result{OK: true, Message: "No devices are currently banned"}
	}
	return Result{OK: true, Message: fmt.Sprintf("%d devices banned", len(devices)), Devices: devices}
}

// BlockSite adds a site to the URL filter.
func (h *Handler) BlockSite(ctx context.Context, site string) Result {
	site = strings.ToLower(strings.TrimSpace(site))
	if site == "" {
		return Result{Message: "No site given"}
	}
	already, err := h.gw.BlockSite(ctx, site)
	if err != nil {
		return h.errResult("block site", err)
	}
	if already {
		return Result{OK: true, Message: fmt.Sprintf("%s is already blocked", site), Sites: []string{site}}
	}
	h.log.Info("site blocked", "site", site)
	return Result{OK: true, Message: fmt.Sprintf("✅ Blocked: %s", site), Sites: []string{site}}
}

// UnblockSite removes a site from the URL filter.
func (h *Handler) UnblockSite(ctx context.Context, site string) Result {
	site = strings.ToLower(strings.TrimSpace(site))
	if site == "" {
		return Result{Message: "No site given"}
	}
	wasBlocked, err := h.gw.UnblockSite(ctx, site)
	if err != nil {
		return h.errResult("unblock site", err)
	}
	if !wasBlocked {
		return Result{OK: true, Message: fmt.Sprintf("%s was not blocked", site), Sites: []string{site}}
	}
	h.log.Info("site unblocked", "site", site)
	return Result{OK: true, Message: fmt.Sprintf("✅ Unblocked: %s", site), Sites: []string{site}}
}

// BlockedSites lists the URL filter contents.
func (h *Handler) BlockedSites(ctx context.Context) Result {
	sites, err := h.gw.BlockedSites(ctx)
	if err != nil {
		return h.errResult("blocklist", err)
	}
	if len(sites) == 0 {
		return Result{OK: true, Message: "No sites are currently blocked"}
	}
	return Result{OK: true, Message: fmt.Sprintf("%d sites blocked", len(sites)), Sites: sites}
}

// LockdownStatus reports the persisted lockdown state without touching the
// gateway.
func (h *Handler) LockdownStatus() Result {
	st := h.lock.Status()
	if !st.Active {
		return Result{OK: true, Message: "🔓 Lockdown is NOT active"}
	}
	msg := fmt.Sprintf("🔒 Lockdown ACTIVE (%s mode) since %s", st.ModeName(), st.StartedAt)
	msg += fmt.Sprintf("\n   Blocked devices: %d", len(st.BlockedDevices))
	return Result{OK: true, Message: msg, Devices: blockedAsDevices(st.BlockedDevices)}
}

// LockdownPreview shows what a lockdown would block, without engaging it.
func (h *Handler) LockdownPreview(ctx context.Context, strict bool) Result {
	devices, err := h.lock.Preview(ctx)
	if err != nil {
		return h.errResult("lockdown preview", err)
	}
	return Result{
		OK:      true,
		Message: fmt.Sprintf("[%s] Would block %d devices", modeLabel(strict), len(devices)),
		Devices: devices,
	}
}

// LockdownStart engages the lockdown and reports what it blocked.
func (h *Handler) LockdownStart(ctx context.Context, strict, dryRun bool) Result {
	res, err := h.lock.Start(ctx, lockdown.StartOptions{Strict: strict, DryRun: dryRun})
	if errors.Is(err, lockdown.ErrAlreadyActive) {
		return Result{Message: "Lockdown already active"}
	}
	if err != nil {
		return h.errResult("lockdown start", err)
	}
	devices := blockedAsDevices(res.Affected)
	if res.DryRun {
		return Result{
			OK:      true,
			Message: fmt.Sprintf("[%s] Would block %d devices", modeLabel(strict), len(devices)),
			Devices: devices,
		}
	}
	if res.Mode == lockdown.ModeStrict {
		msg := fmt.Sprintf("🔒 STRICT Lockdown active: Only %d devices allowed", res.Allowed)
		msg += fmt.Sprintf("\n   %d devices blocked (+ all unknown devices)", len(res.Affected))
		return Result{OK: true, Message: msg, Devices: devices}
	}
	if !res.Activated {
		return Result{OK: true, Message: "No devices to block (all are allowlisted)"}
	}
	msg := fmt.Sprintf("🔒 SOFT Lockdown active: blocked %d devices", len(res.Affected))
	if len(res.Failed) > 0 {
		msg += fmt.Sprintf(" (%d failed)", len(res.Failed))
	}
	msg += "\n   ⚠️ New devices can still connect!"
	return Result{OK: true, Message: msg, Devices: devices}
}

// LockdownStop lifts the lockdown and reports what it unblocked.
func (h *Handler) LockdownStop(ctx context.Context) Result {
	res, err := h.lock.Stop(ctx)
	if errors.Is(err, lockdown.ErrNotActive) {
		return Result{Message: "Lockdown is not active"}
	}
	if err != nil {
		return h.errResult("lockdown stop", err)
	}
	devices := blockedAsDevices(res.Affected)
	if res.Mode == lockdown.ModeStrict {
		return Result{OK: true, Message: "🔓 Lockdown ended: All devices can now connect", Devices: devices}
	}
	msg := fmt.Sprintf("🔓 Lockdown ended: unblocked %d devices", len(res.Affected))
	if len(res.Failed) > 0 {
		msg += fmt.Sprintf(" (%d failed)", len(res.Failed))
	}
	return Result{OK: true, Message: msg, Devices: devices}
}

// AllowlistList reports the devices a lockdown will never block.
func (h *Handler) AllowlistList() Result {
	entries, err := h.allow.Devices()
	if err != nil {
		return h.errResult("allowlist", err)
	}
	devices := make([]router.Device, 0, len(entries))
	for _, d := range entries {
		devices = append(devices, router.Device{Name: d.Name, MAC: strings.ToUpper(d.MAC)})
	}
	return Result{
		OK:      true,
		Message: fmt.Sprintf("%d devices on the allowlist", len(devices)),
		Devices: devices,
	}
}

// AllowlistAdd protects a device from lockdowns.
func (h *Handler) AllowlistAdd(name, mac, reason string) Result {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	if mac == "" {
		return Result{Message: "No MAC address given"}
	}
	added, err := h.allow.Add(name, mac, reason)
	if err != nil {
		return h.errResult("allowlist add", err)
	}
	if !added {
		return Result{OK: true, Message: fmt.Sprintf("%s is already allowlisted", mac)}
	}
	h.log.Info("allowlist entry added", "device", name, "mac", mac)
	return Result{
		OK:      true,
		Message: fmt.Sprintf("✅ Added to allowlist: %s (%s)", name, mac),
		Devices: []router.Device{{Name: name, MAC: mac}},
	}
}

// AllowlistRemove drops a device's lockdown protection.
func (h *Handler) AllowlistRemove(mac string) Result {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	if mac == "" {
		return Result{Message: "No MAC address given"}
	}
	removed, err := h.allow.Remove(mac)
	if err != nil {
		return h.errResult("allowlist remove", err)
	}
	if !removed {
		return Result{OK: true, Message: fmt.Sprintf("%s was not on the allowlist", mac)}
	}
	h.log.Info("allowlist entry removed", "mac", mac)
	return Result{OK: true, Message: fmt.Sprintf("✅ Removed from allowlist: %s", mac)}
}

func modeLabel(strict bool) string {
	if strict {
		return "STRICT"
	}
	return "SOFT"
}

func blockedAsDevices(blocked []lockdown.BlockedDevice) []router.Device {
	devices := make([]router.Device, 0, len(blocked))
	for _, b := range blocked {
		devices = append(devices, router.Device{Name: b.Name, MAC: b.MAC})
	}
	return devices
}
