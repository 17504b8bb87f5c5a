package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Rule types the firmware understands in filter entries.
const (
	FilterAllow = "Allow"
	FilterBlock = "Block"
)

// Encoding selects how a filter-table write goes on the wire. The firmware
// accepts two shapes of the same update: a single JSON-array form field
// replacing the whole table, and per-entry indexed form fields appending
// rows. Single-entry adds use the indexed form (does not clobber the rest of
// the table); wholesale replacements and deletions use the bulk form.
type Encoding int

const (
	EncodingBulk Encoding = iota
	EncodingIndexed
)

// MACFilterEntry is one row of the gateway's MAC filter table. Rows fetched
// from the gateway keep every field the firmware sent, so bulk rewrites
// return them untouched; rows built locally marshal just the fields the
// firmware requires.
type MACFilterEntry struct {
	// ID is the router-assigned numeric identifier, as a string.
	ID          string
	MACAddress  string
	Description string
	// Type is FilterAllow or FilterBlock.
	Type        string
	AlwaysBlock string

	raw map[string]json.RawMessage
}

func (e *MACFilterEntry) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.raw = raw
	e.ID = jsonScalar(raw["__id"])
	e.MACAddress = jsonScalar(raw["macaddress"])
	e.Description = jsonScalar(raw["description"])
	e.Type = jsonScalar(raw["type"])
	e.AlwaysBlock = jsonScalar(raw["alwaysblock"])
	return nil
}

func (e MACFilterEntry) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return json.Marshal(e.raw)
	}
	return json.Marshal(map[string]string{
		"macaddress":  e.MACAddress,
		"description": e.Description,
		"type":        e.Type,
		"alwaysblock": e.AlwaysBlock,
	})
}

// SiteFilterEntry is one row of the gateway's site filter (or trusted-sites)
// table.
type SiteFilterEntry struct {
	ID          string
	Site        string
	BlockMethod string
	AlwaysBlock string

	raw map[string]json.RawMessage
}

func (e *SiteFilterEntry) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.raw = raw
	e.ID = jsonScalar(raw["__id"])
	e.Site = jsonScalar(raw["site"])
	e.BlockMethod = jsonScalar(raw["blockmethod"])
	e.AlwaysBlock = jsonScalar(raw["alwaysblock"])
	return nil
}

func (e SiteFilterEntry) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return json.Marshal(e.raw)
	}
	return json.Marshal(map[string]string{
		"site":        e.Site,
		"blockmethod": e.BlockMethod,
		"alwaysblock": e.AlwaysBlock,
	})
}

// jsonScalar renders a raw JSON scalar as a string. The firmware flips
// between strings and numbers for the same field across models, __id in
// particular.
func jsonScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// nextIndex computes the form index for an indexed append: one past the
// highest numeric identifier currently in the table, or 0 for an empty one.
func nextIndex(ids []string) int {
	next := 0
	for _, id := range ids {
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// MACFilterWrite is one full update of the MAC filter configuration,
// serialized per its Encoding.
type MACFilterWrite struct {
	Enable   bool
	AllowAll bool
	Encoding Encoding
	// Entries is the whole table for EncodingBulk, or the rows to append
	// for EncodingIndexed.
	Entries []MACFilterEntry
	// NextIndex is the first form index for EncodingIndexed.
	NextIndex int
}

func (w MACFilterWrite) formValues() (url.Values, error) {
	v := url.Values{}
	v.Set("enable", boolString(w.Enable))
	v.Set("allowall", boolString(w.AllowAll))
	switch w.Encoding {
	case EncodingIndexed:
		for i, e := range w.Entries {
			prefix := fmt.Sprintf("macfilterTbl[%d]", w.NextIndex+i)
			v.Set(prefix+"[macaddress]", e.MACAddress)
			v.Set(prefix+"[description]", e.Description)
			v.Set(prefix+"[type]", e.Type)
			v.Set(prefix+"[alwaysblock]", e.AlwaysBlock)
			// Schedule fields stay blank; time-window blocking is not
			// exposed here.
			v.Set(prefix+"[starttime]", "")
			v.Set(prefix+"[endtime]", "")
			v.Set(prefix+"[blockdays]", "")
		}
	default:
		blob := "[]"
		if len(w.Entries) > 0 {
			b, err := json.Marshal(w.Entries)
			if err != nil {
				return nil, err
			}
			blob = string(b)
		}
		v.Set("macfilterTbl", blob)
	}
	return v, nil
}

// SiteFilterWrite is one full update of the site filter configuration.
type SiteFilterWrite struct {
	Enable   bool
	Encoding Encoding
	Sites    []SiteFilterEntry
	// Trusted is the trusted-sites table, which the bulk form must carry
	// back unchanged or the firmware clears it.
	Trusted   []SiteFilterEntry
	NextIndex int
}

func (w SiteFilterWrite) formValues() (url.Values, error) {
	v := url.Values{}
	v.Set("enable", boolString(w.Enable))
	switch w.Encoding {
	case EncodingIndexed:
		for i, e := range w.Sites {
			prefix := fmt.Sprintf("sitefilterTbl[%d]", w.NextIndex+i)
			v.Set(prefix+"[site]", e.Site)
			v.Set(prefix+"[blockmethod]", e.BlockMethod)
			v.Set(prefix+"[alwaysblock]", e.AlwaysBlock)
		}
	default:
		sites := "[]"
		if len(w.Sites) > 0 {
			b, err := json.Marshal(w.Sites)
			if err != nil {
				return nil, err
			}
			sites = string(b)
		}
		trusted := "[]"
		if len(w.Trusted) > 0 {
			b, err := json.Marshal(w.Trusted)
			if err != nil {
				return nil, err
			}
			trusted = string(b)
		}
		v.Set("sitefilterTbl", sites)
		v.Set("sitetrustedTbl", trusted)
	}
	return v, nil
}

type macFilterResponse struct {
	apiStatus
	Data struct {
		MACFilterTbl []MACFilterEntry `json:"macfilterTbl"`
	} `json:"data"`
}

type siteFilterResponse struct {
	apiStatus
	Data struct {
		SiteFilterTbl  []SiteFilterEntry `json:"sitefilterTbl"`
		SiteTrustedTbl []SiteFilterEntry `json:"sitetrustedTbl"`
	} `json:"data"`
}

func (c *Client) macFilterLocked(ctx context.Context) ([]MACFilterEntry, error) {
	var resp macFilterResponse
	if err := c.getJSON(ctx, "macfilter", "/api/v1/macfilter", c.readTimeout, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, protocolErr("macfilter", "gateway error: %s", resp.detail())
	}
	return resp.Data.MACFilterTbl, nil
}

func (c *Client) siteFilterLocked(ctx context.Context) (sites, trusted []SiteFilterEntry, err error) {
	var resp siteFilterResponse
	if err := c.getJSON(ctx, "sitefilter", "/api/v1/sitefilter", c.readTimeout, &resp); err != nil {
		return nil, nil, err
	}
	if !resp.ok() {
		return nil, nil, protocolErr("sitefilter", "gateway error: %s", resp.detail())
	}
	return resp.Data.SiteFilterTbl, resp.Data.SiteTrustedTbl, nil
}

// MACFilter returns the MAC filter table as the gateway holds it, padding
// rows included.
func (c *Client) MACFilter(ctx context.Context) ([]MACFilterEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.revalidateLocked(ctx); err != nil {
		return nil, err
	}
	return c.macFilterLocked(ctx)
}

// BlockedDevices returns the MAC filter rows that reference a hardware
// address. The firmware keeps blank placeholder rows around after deletions;
// those are dropped.
func (c *Client) BlockedDevices(ctx context.Context) ([]MACFilterEntry, error) {
	entries, err := c.MACFilter(ctx)
	if err != nil {
		return nil, err
	}
	kept := make([]MACFilterEntry, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.MACAddress) != "" {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

// SiteFilter returns the site filter and trusted-sites tables.
func (c *Client) SiteFilter(ctx context.Context) (sites, trusted []SiteFilterEntry, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.revalidateLocked(ctx); err != nil {
		return nil, nil, err
	}
	return c.siteFilterLocked(ctx)
}

// BlockedSites returns the blocked site names, blank placeholder rows
// dropped.
func (c *Client) BlockedSites(ctx context.Context) ([]string, error) {
	sites, _, err := c.SiteFilter(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(sites))
	for _, s := range sites {
		if strings.TrimSpace(s.Site) != "" {
			names = append(names, s.Site)
		}
	}
	return names, nil
}

// WriteMACFilterTable revalidates the session and pushes one MAC filter
// update. The response's business error is surfaced as a ProtocolError;
// callers replacing the whole table to delete rows may choose to tolerate it
// because the firmware complains about blank rows even when the write took.
func (c *Client) WriteMACFilterTable(ctx context.Context, w MACFilterWrite) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.revalidateLocked(ctx); err != nil {
		return err
	}
	return c.writeMACFilterLocked(ctx, w)
}

func (c *Client) writeMACFilterLocked(ctx context.Context, w MACFilterWrite) error {
	form, err := w.formValues()
	if err != nil {
		return protocolErr("macfilter write", "encode: %v", err)
	}
	var status apiStatus
	if err := c.postForm(ctx, "macfilter write", "/api/v1/macfilter", form, c.writeTimeout, &status); err != nil {
		return err
	}
	if !status.ok() {
		return protocolErr("macfilter write", "gateway rejected update: %s", status.detail())
	}
	return nil
}

// WriteSiteFilterTable is WriteMACFilterTable for the site filter.
func (c *Client) WriteSiteFilterTable(ctx context.Context, w SiteFilterWrite) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.revalidateLocked(ctx); err != nil {
		return err
	}
	return c.writeSiteFilterLocked(ctx, w)
}

func (c *Client) writeSiteFilterLocked(ctx context.Context, w SiteFilterWrite) error {
	form, err := w.formValues()
	if err != nil {
		return protocolErr("sitefilter write", "encode: %v", err)
	}
	var status apiStatus
	if err := c.postForm(ctx, "sitefilter write", "/api/v1/sitefilter", form, c.writeTimeout, &status); err != nil {
		return err
	}
	if !status.ok() {
		return protocolErr("sitefilter write", "gateway rejected update: %s", status.detail())
	}
	return nil
}

// BlockDevice adds a Block rule for mac, labeled with description. Reports
// already=true without writing when a rule for the address exists in any
// form.
func (c *Client) BlockDevice(ctx context.Context, mac, description string) (already bool, err error) {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	if mac == "" {
		return false, protocolErr("block device", "empty hardware address")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.revalidateLocked(ctx); err != nil {
		return false, err
	}
	entries, err := c.macFilterLocked(ctx)
	if err != nil {
		return false, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.ToUpper(e.MACAddress) == mac {
			return true, nil
		}
		ids = append(ids, e.ID)
	}

	w := MACFilterWrite{
		Enable:   true,
		AllowAll: true,
		Encoding: EncodingIndexed,
		Entries: []MACFilterEntry{{
			MACAddress:  mac,
			Description: description,
			Type:        FilterBlock,
			AlwaysBlock: "true",
		}},
		NextIndex: nextIndex(ids),
	}
	if err := c.writeMACFilterLocked(ctx, w); err != nil {
		return false, err
	}
	c.log.Info("device blocked", "mac", mac, "name", description)
	return false, nil
}

// UnblockDevice removes every rule for mac by rewriting the table without
// it. Reports wasBlocked=false without writing when no rule references the
// address. The firmware habitually answers the rewrite with a complaint
// about its own blank rows while still applying it, so only transport
// failures abort; the complaint is logged and ignored.
func (c *Client) UnblockDevice(ctx context.Context, mac string) (wasBlocked bool, err error) {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	if mac == "" {
		return false, protocolErr("unblock device", "empty hardware address")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.revalidateLocked(ctx); err != nil {
		return false, err
	}
	entries, err := c.macFilterLocked(ctx)
	if err != nil {
		return false, err
	}

	found := false
	keep := make([]MACFilterEntry, 0, len(entries))
	for _, e := range entries {
		entryMAC := strings.ToUpper(e.MACAddress)
		if entryMAC == mac {
			found = true
			continue
		}
		if strings.TrimSpace(e.MACAddress) == "" {
			continue
		}
		keep = append(keep, e)
	}
	if !found {
		return false, nil
	}

	w := MACFilterWrite{
		Enable:   len(keep) > 0,
		AllowAll: true,
		Encoding: EncodingBulk,
		Entries:  keep,
	}
	if err := c.writeMACFilterLocked(ctx, w); err != nil {
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			return false, err
		}
		c.log.Warn("gateway complained about filter rewrite, delete usually applies anyway", "mac", mac, "detail", pe.Detail)
	}
	c.log.Info("device unblocked", "mac", mac)
	return true, nil
}

// BlockSite adds a URL-block rule for site (lowercased). Reports
// already=true without writing when the site is present.
func (c *Client) BlockSite(ctx context.Context, site string) (already bool, err error) {
	site = strings.ToLower(strings.TrimSpace(site))
	if site == "" {
		return false, protocolErr("block site", "empty site")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.revalidateLocked(ctx); err != nil {
		return false, err
	}
	sites, _, err := c.siteFilterLocked(ctx)
	if err != nil {
		return false, err
	}

	ids := make([]string, 0, len(sites))
	for _, s := range sites {
		if strings.ToLower(s.Site) == site {
			return true, nil
		}
		ids = append(ids, s.ID)
	}

	w := SiteFilterWrite{
		Enable:   true,
		Encoding: EncodingIndexed,
		Sites: []SiteFilterEntry{{
			Site:        site,
			BlockMethod: "URL",
			AlwaysBlock: "true",
		}},
		NextIndex: nextIndex(ids),
	}
	if err := c.writeSiteFilterLocked(ctx, w); err != nil {
		return false, err
	}
	c.log.Info("site blocked", "site", site)
	return false, nil
}

// UnblockSite removes the rule for site by rewriting the table without it,
// carrying the trusted-sites table back unchanged. Same tolerance for the
// firmware's blank-row complaint as UnblockDevice.
func (c *Client) UnblockSite(ctx context.Context, site string) (wasBlocked bool, err error) {
	site = strings.ToLower(strings.TrimSpace(site))
	if site == "" {
		return false, protocolErr("unblock site", "empty site")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.revalidateLocked(ctx); err != nil {
		return false, err
	}
	sites, trusted, err := c.siteFilterLocked(ctx)
	if err != nil {
		return false, err
	}

	found := false
	keep := make([]SiteFilterEntry, 0, len(sites))
	for _, s := range sites {
		if strings.ToLower(s.Site) == site {
			found = true
			continue
		}
		if strings.TrimSpace(s.Site) == "" {
			continue
		}
		keep = append(keep, s)
	}
	if !found {
		return false, nil
	}

	w := SiteFilterWrite{
		Enable:   len(keep) > 0,
		Encoding: EncodingBulk,
		Sites:    keep,
		Trusted:  trusted,
	}
	if err := c.writeSiteFilterLocked(ctx, w); err != nil {
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			return false, err
		}
		c.log.Warn("gateway complained about filter rewrite, delete usually applies anyway", "site", site, "detail", pe.Detail)
	}
	c.log.Info("site unblocked", "site", site)
	return true, nil
}
