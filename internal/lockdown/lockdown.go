// Package lockdown blocks every device on the network except allowlisted
// ones, in one of two modes.
//
// Strict mode flips the gateway's MAC filter to allow-list-only: the table
// holds the allowlist with action Allow and allowall=false, so the gateway
// itself rejects any hardware address not in the table, including devices
// that first appear after activation. Soft mode instead writes an individual
// Block rule for each currently visible non-allowlisted device; devices that
// connect later are NOT blocked. That weakness is the documented trade-off
// of soft mode, not something to patch here.
//
// State persists to a JSON file so a restarted controller can still stop a
// lockdown it did not start.
package lockdown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chaollapark/homelab/internal/allowlist"
	"github.com/chaollapark/homelab/internal/clock"
	"github.com/chaollapark/homelab/internal/events"
	"github.com/chaollapark/homelab/internal/logging"
	"github.com/chaollapark/homelab/internal/router"
)

// Mode selects how a lockdown is enforced.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeSoft   Mode = "soft"
)

var (
	// ErrAlreadyActive is returned by Start when a lockdown is in effect.
	ErrAlreadyActive = errors.New("lockdown already active")
	// ErrNotActive is returned by Stop when no lockdown is in effect.
	ErrNotActive = errors.New("lockdown is not active")
)

// BlockedDevice is one device recorded in the state file.
type BlockedDevice struct {
	MAC  string `json:"mac"`
	Name string `json:"name"`
}

// FailedDevice records a device whose block or unblock write failed.
type FailedDevice struct {
	MAC   string `json:"mac"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// State is the persisted lockdown state. Mode is a pointer so an inactive
// state round-trips as JSON null rather than an empty string.
type State struct {
	Active             bool            `json:"active"`
	Mode               *Mode           `json:"mode"`
	BlockedDevices     []BlockedDevice `json:"blocked_devices"`
	AllowlistedDevices []BlockedDevice `json:"allowlisted_devices,omitempty"`
	FailedDevices      []FailedDevice  `json:"failed_devices,omitempty"`
	StartedAt          string          `json:"started_at,omitempty"`
	StoppedAt          string          `json:"stopped_at,omitempty"`
}

// ModeName returns the persisted mode or "" when inactive.
func (s *State) ModeName() string {
	if s.Mode == nil {
		return ""
	}
	return string(*s.Mode)
}

// Gateway is the slice of the router client the controller needs.
type Gateway interface {
	GetDevices(ctx context.Context) ([]router.Device, error)
	BlockDevice(ctx context.Context, mac, description string) (bool, error)
	UnblockDevice(ctx context.Context, mac string) (bool, error)
	WriteMACFilterTable(ctx context.Context, w router.MACFilterWrite) error
}

// Allowlist is the slice of the allowlist store the controller needs.
type Allowlist interface {
	Devices() ([]allowlist.Device, error)
	MACs() ([]string, error)
}

// Options configures a Controller.
type Options struct {
	StatePath string
	Gateway   Gateway
	Allowlist Allowlist
	Clock     clock.Clock     // nil means the system clock
	Hub       *events.Hub     // nil means no events published
	Logger    *logging.Logger // nil means the package default
}

// Controller owns the lockdown state machine. Start and Stop serialize on an
// internal mutex; the state file has a single writer within this process.
type Controller struct {
	statePath string
	gw        Gateway
	allow     Allowlist
	clock     clock.Clock
	hub       *events.Hub
	log       *logging.Logger

	mu sync.Mutex
}

// New builds a Controller.
func New(opts Options) (*Controller, error) {
	if opts.StatePath == "" {
		return nil, errors.New("lockdown: state path required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("lockdown: gateway required")
	}
	if opts.Allowlist == nil {
		return nil, errors.New("lockdown: allowlist required")
	}
	c := &Controller{
		statePath: opts.StatePath,
		gw:        opts.Gateway,
		allow:     opts.Allowlist,
		clock:     opts.Clock,
		hub:       opts.Hub,
		log:       opts.Logger,
	}
	if c.clock == nil {
		c.clock = &clock.RealClock{}
	}
	if c.log == nil {
		c.log = logging.WithComponent("lockdown")
	}
	return c, nil
}

// StartOptions controls Start.
type StartOptions struct {
	// Strict selects allow-list-only enforcement. False means soft mode.
	Strict bool
	// DryRun computes the affected set without touching the gateway or the
	// state file.
	DryRun bool
}

// Result reports what a Start or Stop did.
type Result struct {
	Mode   Mode
	DryRun bool
	// Activated is false when a soft start found nothing to block and left
	// the state machine inactive.
	Activated bool
	// Affected lists blocked devices on start, unblocked devices on stop.
	Affected []BlockedDevice
	Failed   []FailedDevice
	// Allowed is how many allowlist entries a strict start pushed.
	Allowed int
}

func (c *Controller) loadState() *State {
	st := &State{}
	data, err := os.ReadFile(c.statePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("lockdown state unreadable, assuming inactive", "path", c.statePath, "error", err)
		}
		return st
	}
	if err := json.Unmarshal(data, st); err != nil {
		c.log.Warn("lockdown state corrupt, assuming inactive", "path", c.statePath, "error", err)
		return &State{}
	}
	return st
}

func (c *Controller) saveState(st *State) error {
	if err := os.MkdirAll(filepath.Dir(c.statePath), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode lockdown state: %w", err)
	}
	if err := os.WriteFile(c.statePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lockdown state: %w", err)
	}
	return nil
}

// Status reads the persisted state. It never talks to the gateway.
func (c *Controller) Status() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadState()
}

// IsActive reports whether a lockdown is persisted as active.
func (c *Controller) IsActive() bool {
	return c.Status().Active
}

// Preview returns the visible devices that a start would block: everything
// in the gateway's host table whose MAC is not allowlisted. Pure read.
func (c *Controller) Preview(ctx context.Context) ([]router.Device, error) {
	return c.devicesToBlock(ctx)
}

func (c *Controller) devicesToBlock(ctx context.Context) ([]router.Device, error) {
	devices, err := c.gw.GetDevices(ctx)
	if err != nil {
		return nil, err
	}
	macs, err := c.allow.MACs()
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(macs))
	for _, m := range macs {
		allowed[strings.ToUpper(m)] = true
	}

	var toBlock []router.Device
	for _, d := range devices {
		mac := strings.ToUpper(d.MAC)
		if mac == "" || allowed[mac] {
			continue
		}
		toBlock = append(toBlock, d)
	}
	return toBlock, nil
}

// Start activates a lockdown. It fails with ErrAlreadyActive when one is in
// effect, including for dry runs.
func (c *Controller) Start(ctx context.Context, opts StartOptions) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loadState().Active {
		return nil, ErrAlreadyActive
	}

	mode := ModeSoft
	if opts.Strict {
		mode = ModeStrict
	}

	toBlock, err := c.devicesToBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute block set: %w", err)
	}

	if opts.DryRun {
		return &Result{Mode: mode, DryRun: true, Affected: asBlocked(toBlock)}, nil
	}

	if opts.Strict {
		return c.startStrict(ctx, toBlock)
	}
	return c.startSoft(ctx, toBlock)
}

func (c *Controller) startStrict(ctx context.Context, toBlock []router.Device) (*Result, error) {
	allowed, err := c.allow.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to read allowlist: %w", err)
	}

	entries := make([]router.MACFilterEntry, 0, len(allowed))
	snapshot := make([]BlockedDevice, 0, len(allowed))
	for _, d := range allowed {
		mac := strings.ToUpper(d.MAC)
		entries = append(entries, router.MACFilterEntry{
			MACAddress:  mac,
			Description: d.Name,
			Type:        router.FilterAllow,
			AlwaysBlock: "false",
		})
		snapshot = append(snapshot, BlockedDevice{MAC: mac, Name: d.Name})
	}

	// allowall=false is the switch: anything not in the table is refused.
	write := router.MACFilterWrite{
		Enable:   true,
		AllowAll: false,
		Encoding: router.EncodingBulk,
		Entries:  entries,
	}
	if err := c.gw.WriteMACFilterTable(ctx, write); err != nil {
		return nil, fmt.Errorf("strict lockdown write failed: %w", err)
	}

	mode := ModeStrict
	st := &State{
		Active:             true,
		Mode:               &mode,
		BlockedDevices:     asBlocked(toBlock),
		AllowlistedDevices: snapshot,
		StartedAt:          c.now(),
	}
	if err := c.saveState(st); err != nil {
		return nil, err
	}

	c.log.Info("strict lockdown active",
		"allowed", len(entries), "blocked_visible", len(toBlock))
	c.emitLockdown(events.EventLockdownStarted, ModeStrict, len(toBlock), 0, 0)

	return &Result{
		Mode:      ModeStrict,
		Activated: true,
		Affected:  st.BlockedDevices,
		Allowed:   len(entries),
	}, nil
}

func (c *Controller) startSoft(ctx context.Context, toBlock []router.Device) (*Result, error) {
	// Nothing visible to block means nothing to undo later; stay inactive.
	if len(toBlock) == 0 {
		c.log.Info("soft lockdown found nothing to block")
		return &Result{Mode: ModeSoft}, nil
	}

	var blocked []BlockedDevice
	var failed []FailedDevice
	for _, d := range toBlock {
		name := d.Name
		if name == "" {
			name = d.MAC
		}
		if _, err := c.gw.BlockDevice(ctx, d.MAC, name); err != nil {
			c.log.Warn("soft lockdown block failed", "device", name, "mac", d.MAC, "error", err)
			failed = append(failed, FailedDevice{MAC: d.MAC, Name: name, Error: err.Error()})
			continue
		}
		blocked = append(blocked, BlockedDevice{MAC: d.MAC, Name: name})
	}

	mode := ModeSoft
	st := &State{
		Active:         true,
		Mode:           &mode,
		BlockedDevices: blocked,
		FailedDevices:  failed,
		StartedAt:      c.now(),
	}
	if err := c.saveState(st); err != nil {
		return nil, err
	}

	c.log.Info("soft lockdown active", "blocked", len(blocked), "failed", len(failed))
	c.emitLockdown(events.EventLockdownStarted, ModeSoft, len(blocked), 0, len(failed))

	return &Result{
		Mode:      ModeSoft,
		Activated: true,
		Affected:  blocked,
		Failed:    failed,
	}, nil
}

// Stop deactivates the current lockdown. It fails with ErrNotActive when
// none is in effect.
func (c *Controller) Stop(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.loadState()
	if !st.Active {
		return nil, ErrNotActive
	}

	if st.Mode != nil && *st.Mode == ModeStrict {
		return c.stopStrict(ctx, st)
	}
	return c.stopSoft(ctx, st)
}

func (c *Controller) stopStrict(ctx context.Context, st *State) (*Result, error) {
	write := router.MACFilterWrite{
		Enable:   false,
		AllowAll: true,
		Encoding: router.EncodingBulk,
	}
	if err := c.gw.WriteMACFilterTable(ctx, write); err != nil {
		// Disable-plus-empty-table writes often draw a complaint from the
		// firmware even though the filter does switch off. Only transport
		// failures mean the gateway may still be enforcing.
		var perr *router.ProtocolError
		if !errors.As(err, &perr) {
			return nil, fmt.Errorf("failed to lift strict lockdown: %w", err)
		}
		c.log.Warn("gateway complained while lifting lockdown, proceeding", "error", err)
	}

	released := st.BlockedDevices
	if err := c.saveState(&State{StoppedAt: c.now()}); err != nil {
		return nil, err
	}

	c.log.Info("strict lockdown lifted", "previously_blocked", len(released))
	c.emitLockdown(events.EventLockdownStopped, ModeStrict, 0, len(released), 0)

	return &Result{Mode: ModeStrict, Affected: released}, nil
}

func (c *Controller) stopSoft(ctx context.Context, st *State) (*Result, error) {
	var unblocked []BlockedDevice
	var failed []FailedDevice
	for _, d := range st.BlockedDevices {
		// wasBlocked=false means the rule already vanished; that still
		// counts as a successful unblock.
		if _, err := c.gw.UnblockDevice(ctx, d.MAC); err != nil {
			c.log.Warn("soft lockdown unblock failed", "device", d.Name, "mac", d.MAC, "error", err)
			failed = append(failed, FailedDevice{MAC: d.MAC, Name: d.Name, Error: err.Error()})
			continue
		}
		unblocked = append(unblocked, d)
	}

	// Inactive regardless: leftover rules are reported, not retried.
	if err := c.saveState(&State{StoppedAt: c.now()}); err != nil {
		return nil, err
	}

	c.log.Info("soft lockdown lifted", "unblocked", len(unblocked), "failed", len(failed))
	c.emitLockdown(events.EventLockdownStopped, ModeSoft, 0, len(unblocked), len(failed))

	return &Result{Mode: ModeSoft, Affected: unblocked, Failed: failed}, nil
}

func (c *Controller) now() string {
	return c.clock.Now().Format(time.RFC3339)
}

func (c *Controller) emitLockdown(t events.EventType, mode Mode, blocked, unblocked, failed int) {
	if c.hub == nil {
		return
	}
	c.hub.EmitLockdown(t, string(mode), false, blocked, unblocked, failed)
}

func asBlocked(devices []router.Device) []BlockedDevice {
	out := make([]BlockedDevice, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = d.MAC
		}
		out = append(out, BlockedDevice{MAC: strings.ToUpper(d.MAC), Name: name})
	}
	return out
}
