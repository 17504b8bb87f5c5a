// Package allowlist persists the set of devices that must never be blocked:
// the machine running this controller, the wireless access points, and
// whatever else the operator marks as infrastructure. Every blocking path
// consults it before touching the gateway.
package allowlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chaollapark/homelab/internal/brand"
	"github.com/chaollapark/homelab/internal/logging"
)

// Device is one allowlist entry.
type Device struct {
	Name   string `json:"name"`
	MAC    string `json:"mac"`
	Reason string `json:"reason"`
}

type fileFormat struct {
	Devices []Device `json:"devices"`
}

// Store is a JSON-file-backed allowlist. Reads serve from a cache; every
// mutation re-reads the file first so two processes sharing it do not
// clobber each other's additions, then persists synchronously.
type Store struct {
	path  string
	seeds []Device
	log   *logging.Logger

	mu    sync.Mutex
	cache *fileFormat
}

// NewStore builds a Store over path. seeds become the initial contents the
// first time the file is created; DefaultDevices assembles the usual set.
func NewStore(path string, seeds []Device, log *logging.Logger) *Store {
	if log == nil {
		log = logging.Default().WithComponent("allowlist")
	}
	return &Store{path: path, seeds: seeds, log: log}
}

// ControllerMAC detects this machine's own hardware address: the first
// interface that is up, not loopback, and actually has one. Returns "" when
// nothing qualifies.
func ControllerMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return strings.ToUpper(iface.HardwareAddr.String())
	}
	return ""
}

// DefaultDevices is the seed set for a fresh allowlist: this controller
// (when its address is detectable) followed by the configured infrastructure
// devices.
func DefaultDevices(infrastructure []Device) []Device {
	var devices []Device
	if mac := ControllerMAC(); mac != "" {
		devices = append(devices, Device{
			Name:   fmt.Sprintf("This Device (%s)", brand.Name),
			MAC:    mac,
			Reason: "Control device - never block",
		})
	}
	return append(devices, infrastructure...)
}

// load reads the file into the cache. Callers hold s.mu.
func (s *Store) load() (*fileFormat, error) {
	if s.cache != nil {
		return s.cache, nil
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.cache = s.defaults()
		if err := s.save(); err != nil {
			s.cache = nil
			return nil, err
		}
		s.log.Info("created allowlist", "path", s.path, "devices", len(s.cache.Devices))
		return s.cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}
	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		s.log.Warn("allowlist unreadable, using defaults", "path", s.path, "error", err)
		s.cache = s.defaults()
		return s.cache, nil
	}
	s.cache = &f
	return s.cache, nil
}

func (s *Store) defaults() *fileFormat {
	devices := make([]Device, len(s.seeds))
	copy(devices, s.seeds)
	for i := range devices {
		devices[i].MAC = strings.ToUpper(devices[i].MAC)
	}
	return &fileFormat{Devices: devices}
}

// save writes the cache out. Callers hold s.mu and a non-nil cache.
func (s *Store) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create allowlist dir: %w", err)
		}
	}
	raw, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write allowlist: %w", err)
	}
	return nil
}

// Devices returns the allowlisted entries.
func (s *Store) Devices() ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Device, len(f.Devices))
	copy(out, f.Devices)
	return out, nil
}

// MACs returns the allowlisted hardware addresses, uppercased.
func (s *Store) MACs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	macs := make([]string, 0, len(f.Devices))
	for _, d := range f.Devices {
		macs = append(macs, strings.ToUpper(d.MAC))
	}
	return macs, nil
}

// IsAllowed reports whether mac is allowlisted. Comparison is
// case-insensitive.
func (s *Store) IsAllowed(mac string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAllowedLocked(mac)
}

func (s *Store) isAllowedLocked(mac string) (bool, error) {
	f, err := s.load()
	if err != nil {
		return false, err
	}
	mac = strings.ToUpper(mac)
	for _, d := range f.Devices {
		if strings.ToUpper(d.MAC) == mac {
			return true, nil
		}
	}
	return false, nil
}

// Add appends a device and persists. Returns false (and writes nothing) when
// the address is already present. An empty reason records "User added".
func (s *Store) Add(name, mac, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = nil // pick up concurrent edits before mutating
	allowed, err := s.isAllowedLocked(mac)
	if err != nil {
		return false, err
	}
	if allowed {
		return false, nil
	}
	if reason == "" {
		reason = "User added"
	}
	s.cache.Devices = append(s.cache.Devices, Device{
		Name:   name,
		MAC:    strings.ToUpper(mac),
		Reason: reason,
	})
	if err := s.save(); err != nil {
		s.cache = nil
		return false, err
	}
	return true, nil
}

// Remove deletes the entry for mac and persists. Returns false when no entry
// matched.
func (s *Store) Remove(mac string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = nil
	f, err := s.load()
	if err != nil {
		return false, err
	}
	mac = strings.ToUpper(mac)
	kept := f.Devices[:0]
	removed := false
	for _, d := range f.Devices {
		if strings.ToUpper(d.MAC) == mac {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	if !removed {
		return false, nil
	}
	f.Devices = kept
	if err := s.save(); err != nil {
		s.cache = nil
		return false, err
	}
	return true, nil
}
