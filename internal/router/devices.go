package router

import (
	"context"
	"strings"
)

// Medium is the link type the gateway reports for an attached device.
type Medium string

const (
	MediumEthernet Medium = "Ethernet"
	MediumWiFi24   Medium = "WiFi 2.4G"
	MediumWiFi5    Medium = "WiFi 5G"
	MediumWiFi     Medium = "WiFi"
	MediumUnknown  Medium = "Unknown"
)

// Device is one row of the gateway's host table.
type Device struct {
	// MAC is the hardware address, uppercase colon-separated.
	MAC string
	IP  string
	// Hostname is the raw DHCP hostname, possibly empty.
	Hostname string
	// Name is the display name: the hostname when it carries information,
	// otherwise the MAC.
	Name   string
	Online bool
	Medium Medium
}

type hostEntry struct {
	PhysAddress     string `json:"physaddress"`
	IPAddress       string `json:"ipaddress"`
	Hostname        string `json:"hostname"`
	Active          string `json:"active"`
	Layer1Interface string `json:"layer1interface"`
}

type hostResponse struct {
	apiStatus
	Data struct {
		HostTbl []hostEntry `json:"hostTbl"`
	} `json:"data"`
}

// mediumFor maps the firmware's layer1interface value ("WiFi5.SSID.1",
// "Ethernet.3", ...) onto a Medium. SSID.1 is the 2.4GHz radio, SSID.2 the
// 5GHz one on every model observed.
func mediumFor(layer1 string) Medium {
	iface := strings.ToLower(layer1)
	switch {
	case strings.Contains(iface, "wifi"):
		switch {
		case strings.Contains(iface, "ssid.1"):
			return MediumWiFi24
		case strings.Contains(iface, "ssid.2"):
			return MediumWiFi5
		default:
			return MediumWiFi
		}
	case strings.Contains(iface, "ethernet"):
		return MediumEthernet
	default:
		return MediumUnknown
	}
}

// displayName prefers the hostname unless it is empty or just the MAC with
// the colons removed, which is what the firmware reports for devices that
// never sent a DHCP hostname.
func displayName(hostname, mac string) string {
	bare := strings.ToLower(strings.ReplaceAll(mac, ":", ""))
	if hostname == "" || strings.ToLower(hostname) == bare {
		return mac
	}
	return hostname
}

// GetDevices fetches the host table and maps it to Devices. The fetch gets a
// generous timeout; assembling the table is the slowest call this firmware
// serves. A zero-length result with a nil error usually means the session
// died (the gateway answers "ok" with an empty table instead of failing);
// callers should Invalidate and retry next cycle.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sessionLocked(ctx); err != nil {
		return nil, err
	}
	var resp hostResponse
	if err := c.getJSON(ctx, "host", "/api/v1/host", hostFetchTimeout, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, protocolErr("host", "gateway error: %s", resp.detail())
	}

	devices := make([]Device, 0, len(resp.Data.HostTbl))
	for _, h := range resp.Data.HostTbl {
		mac := strings.ToUpper(h.PhysAddress)
		devices = append(devices, Device{
			MAC:      mac,
			IP:       h.IPAddress,
			Hostname: h.Hostname,
			Name:     displayName(h.Hostname, mac),
			Online:   h.Active == "true",
			Medium:   mediumFor(h.Layer1Interface),
		})
	}
	return devices, nil
}

// FindDeviceMAC resolves a human-entered name to a hardware address by
// case-insensitive substring match against host-table hostnames, in either
// direction: "iphone" matches "Johns-iPhone", and "Johns-iPhone-15" matches
// a table entry named "Johns-iPhone". Returns ErrDeviceNotFound when nothing
// matches.
func (c *Client) FindDeviceMAC(ctx context.Context, name string) (string, error) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return "", ErrDeviceNotFound
	}
	devices, err := c.GetDevices(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		hostname := strings.ToLower(d.Hostname)
		if hostname == "" {
			continue
		}
		if strings.Contains(hostname, query) || strings.Contains(query, hostname) {
			return d.MAC, nil
		}
	}
	return "", ErrDeviceNotFound
}
