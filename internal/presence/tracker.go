// Package presence turns router host-table snapshots into arrival and
// departure transitions, and keeps the append-only history log they feed.
package presence

import (
	"sort"
	"strings"
	"time"

	"github.com/chaollapark/homelab/internal/router"
)

// Kind labels a transition. The values double as the event column in the
// history log.
type Kind string

const (
	Arrived Kind = "arrived"
	Left    Kind = "left"
)

// Transition is one device changing state between two poll cycles.
type Transition struct {
	Kind           Kind
	MAC            string
	Name           string
	IP             string
	Medium         router.Medium
	At             time.Time
	NotifyEligible bool
}

// Rename records a tracked device whose placeholder name got replaced by a
// real hostname.
type Rename struct {
	MAC     string
	OldName string
	NewName string
}

// Observation is everything one poll cycle produced.
type Observation struct {
	Transitions []Transition
	Discovered  []router.Device
	Renames     []Rename
}

type trackedDevice struct {
	name     string
	ip       string
	mac      string
	medium   router.Medium
	online   bool
	lastSeen time.Time
}

// TrackedDevice is the reporting view of one tracked device.
type TrackedDevice struct {
	Name     string
	MAC      string
	IP       string
	Medium   router.Medium
	Online   bool
	LastSeen time.Time
}

// Tracker holds per-device presence state, keyed by hardware address. Each
// Observe call compares a full snapshot against the stored states; devices
// missing from a snapshot keep their last known state. The poll loop is the
// single owner; Tracker does no locking of its own.
type Tracker struct {
	devices  map[string]*trackedDevice
	patterns []string
}

// NewTracker builds a Tracker. notifyPatterns are the case-insensitive name
// substrings whose devices get NotifyEligible transitions.
func NewTracker(notifyPatterns []string) *Tracker {
	patterns := make([]string, 0, len(notifyPatterns))
	for _, p := range notifyPatterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Tracker{
		devices:  make(map[string]*trackedDevice),
		patterns: patterns,
	}
}

// NotifyEligible reports whether a device name matches any notify pattern.
func (t *Tracker) NotifyEligible(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range t.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Observe folds one snapshot into the tracker. First sightings seed state
// without a transition, so a restart does not flood the log with arrivals.
// A device whose reported state differs from the stored one yields exactly
// one transition. A tracked name still equal to the MAC upgrades silently
// when the snapshot carries a real hostname.
func (t *Tracker) Observe(snapshot []router.Device, now time.Time) Observation {
	var obs Observation
	for _, d := range snapshot {
		if d.MAC == "" {
			continue
		}
		cur, ok := t.devices[d.MAC]
		if !ok {
			nd := &trackedDevice{
				name:   d.Name,
				ip:     d.IP,
				mac:    d.MAC,
				medium: d.Medium,
				online: d.Online,
			}
			if d.Online {
				nd.lastSeen = now
			}
			t.devices[d.MAC] = nd
			obs.Discovered = append(obs.Discovered, d)
			continue
		}

		cur.ip = d.IP
		cur.medium = d.Medium
		if cur.name == cur.mac && d.Name != d.MAC {
			obs.Renames = append(obs.Renames, Rename{MAC: d.MAC, OldName: cur.name, NewName: d.Name})
			cur.name = d.Name
		}
		if d.Online {
			cur.lastSeen = now
		}
		if d.Online != cur.online {
			kind := Left
			if d.Online {
				kind = Arrived
			}
			obs.Transitions = append(obs.Transitions, Transition{
				Kind:           kind,
				MAC:            cur.mac,
				Name:           cur.name,
				IP:             cur.ip,
				Medium:         cur.medium,
				At:             now,
				NotifyEligible: t.NotifyEligible(cur.name),
			})
			cur.online = d.Online
		}
	}
	return obs
}

// Snapshot returns the tracked devices sorted by name.
func (t *Tracker) Snapshot() []TrackedDevice {
	out := make([]TrackedDevice, 0, len(t.devices))
	for _, d := range t.devices {
		out = append(out, TrackedDevice{
			Name:     d.name,
			MAC:      d.mac,
			IP:       d.ip,
			Medium:   d.medium,
			Online:   d.online,
			LastSeen: d.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Counts reports tracked and currently-online device totals.
func (t *Tracker) Counts() (tracked, online int) {
	tracked = len(t.devices)
	for _, d := range t.devices {
		if d.online {
			online++
		}
	}
	return tracked, online
}
