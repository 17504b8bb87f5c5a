package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const macTableFixture = `{
  "error": "ok",
  "data": {
    "macfilterTbl": [
      {"__id":"0","macaddress":"11:22:33:44:55:66","description":"old-phone","type":"Block","alwaysblock":"true"},
      {"__id":3,"macaddress":"77:88:99:AA:BB:CC","description":"tablet","type":"Block","alwaysblock":"true","url":"vendor-extra"},
      {"__id":"5","macaddress":"","description":"","type":""}
    ]
  }
}`

const siteTableFixture = `{
  "error": "ok",
  "data": {
    "sitefilterTbl": [
      {"__id":"2","site":"youtube.com","blockmethod":"URL","alwaysblock":"true"},
      {"__id":"4","site":""}
    ],
    "sitetrustedTbl": [
      {"__id":"0","site":"school.example"}
    ]
  }
}`

func postsTo(reqs []gwRequest, path string) []gwRequest {
	var out []gwRequest
	for _, r := range reqs {
		if r.Method == "POST" && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func TestMACFilterWriteIndexedEncoding(t *testing.T) {
	w := MACFilterWrite{
		Enable:   true,
		AllowAll: true,
		Encoding: EncodingIndexed,
		Entries: []MACFilterEntry{{
			MACAddress:  "AA:BB:CC:DD:EE:FF",
			Description: "kid-tablet",
			Type:        FilterBlock,
			AlwaysBlock: "true",
		}},
		NextIndex: 4,
	}
	form, err := w.formValues()
	require.NoError(t, err)

	assert.Equal(t, "true", form.Get("enable"))
	assert.Equal(t, "true", form.Get("allowall"))
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", form.Get("macfilterTbl[4][macaddress]"))
	assert.Equal(t, "kid-tablet", form.Get("macfilterTbl[4][description]"))
	assert.Equal(t, "Block", form.Get("macfilterTbl[4][type]"))
	assert.Equal(t, "true", form.Get("macfilterTbl[4][alwaysblock]"))
	assert.True(t, form.Has("macfilterTbl[4][starttime]"))
	assert.True(t, form.Has("macfilterTbl[4][endtime]"))
	assert.True(t, form.Has("macfilterTbl[4][blockdays]"))
	assert.False(t, form.Has("macfilterTbl"), "indexed form carries no bulk field")
}

func TestMACFilterWriteBulkEncoding(t *testing.T) {
	w := MACFilterWrite{
		Enable:   true,
		AllowAll: false,
		Encoding: EncodingBulk,
		Entries: []MACFilterEntry{
			{MACAddress: "AA:AA:AA:AA:AA:AA", Description: "ap", Type: FilterAllow, AlwaysBlock: "false"},
		},
	}
	form, err := w.formValues()
	require.NoError(t, err)

	assert.Equal(t, "false", form.Get("allowall"))
	var entries []map[string]string
	require.NoError(t, json.Unmarshal([]byte(form.Get("macfilterTbl")), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "AA:AA:AA:AA:AA:AA", entries[0]["macaddress"])
	assert.Equal(t, "Allow", entries[0]["type"])

	empty := MACFilterWrite{Enable: false, AllowAll: true, Encoding: EncodingBulk}
	form, err = empty.formValues()
	require.NoError(t, err)
	assert.Equal(t, "[]", form.Get("macfilterTbl"))
	assert.Equal(t, "false", form.Get("enable"))
}

func TestSiteFilterWriteEncodings(t *testing.T) {
	indexed := SiteFilterWrite{
		Enable:   true,
		Encoding: EncodingIndexed,
		Sites: []SiteFilterEntry{{
			Site:        "facebook.com",
			BlockMethod: "URL",
			AlwaysBlock: "true",
		}},
		NextIndex: 3,
	}
	form, err := indexed.formValues()
	require.NoError(t, err)
	assert.Equal(t, "facebook.com", form.Get("sitefilterTbl[3][site]"))
	assert.Equal(t, "URL", form.Get("sitefilterTbl[3][blockmethod]"))
	assert.False(t, form.Has("allowall"), "site filter has no allowall toggle")
	assert.False(t, form.Has("sitetrustedTbl"), "indexed adds leave the trusted table alone")

	bulk := SiteFilterWrite{
		Enable:   false,
		Encoding: EncodingBulk,
		Trusted:  []SiteFilterEntry{{Site: "school.example", BlockMethod: "URL", AlwaysBlock: "false"}},
	}
	form, err = bulk.formValues()
	require.NoError(t, err)
	assert.Equal(t, "[]", form.Get("sitefilterTbl"))
	assert.Contains(t, form.Get("sitetrustedTbl"), "school.example",
		"bulk rewrites must carry the trusted table back")
}

func TestFilterEntryRoundTrip(t *testing.T) {
	blob := `{"__id":7,"macaddress":"AA:BB:CC:DD:EE:FF","description":"tv","type":"Block","alwaysblock":"true","leasetime":"86400"}`
	var e MACFilterEntry
	require.NoError(t, json.Unmarshal([]byte(blob), &e))
	assert.Equal(t, "7", e.ID, "numeric identifiers read back as strings")
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", e.MACAddress)

	out, err := json.Marshal(e)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.Contains(t, raw, "leasetime", "vendor fields survive the round trip")
	assert.Contains(t, raw, "__id")

	built := MACFilterEntry{MACAddress: "00:11:22:33:44:55", Description: "x", Type: FilterAllow, AlwaysBlock: "false"}
	out, err = json.Marshal(built)
	require.NoError(t, err)
	var m map[string]string
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Len(t, m, 4, "locally built rows marshal only the required fields")
}

func TestNextIndex(t *testing.T) {
	assert.Equal(t, 0, nextIndex(nil))
	assert.Equal(t, 0, nextIndex([]string{"", "junk"}))
	assert.Equal(t, 4, nextIndex([]string{"0", "3", ""}))
	assert.Equal(t, 1, nextIndex([]string{"0"}))
}

func TestBlockDeviceAppendsAtNextIndex(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.macBody = macTableFixture })
	c := g.client(t)

	already, err := c.BlockDevice(context.Background(), "aa:bb:cc:dd:ee:ff", "kid-tablet")
	require.NoError(t, err)
	assert.False(t, already)

	posts := postsTo(g.recorded(), "/api/v1/macfilter")
	require.Len(t, posts, 1)
	form := posts[0].Form
	assert.Equal(t, "true", form.Get("enable"))
	assert.Equal(t, "true", form.Get("allowall"))
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", form.Get("macfilterTbl[6][macaddress]"),
		"index is one past the highest __id, blank rows included")
	assert.Equal(t, "Block", form.Get("macfilterTbl[6][type]"))
}

func TestBlockDeviceAlreadyBlocked(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.macBody = macTableFixture })
	c := g.client(t)

	already, err := c.BlockDevice(context.Background(), "77:88:99:aa:bb:cc", "tablet")
	require.NoError(t, err)
	assert.True(t, already)
	assert.Empty(t, postsTo(g.recorded(), "/api/v1/macfilter"), "no write for an existing rule")
}

func TestBlockDeviceRejectedWrite(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) {
		g.macBody = macTableFixture
		g.writeResp = `{"error":"error","message":"table full"}`
	})
	c := g.client(t)

	_, err := c.BlockDevice(context.Background(), "aa:bb:cc:dd:ee:ff", "kid-tablet")
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Detail, "table full")
}

func TestUnblockDeviceRewritesTable(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.macBody = macTableFixture })
	c := g.client(t)

	wasBlocked, err := c.UnblockDevice(context.Background(), "11:22:33:44:55:66")
	require.NoError(t, err)
	assert.True(t, wasBlocked)

	posts := postsTo(g.recorded(), "/api/v1/macfilter")
	require.Len(t, posts, 1)
	form := posts[0].Form
	assert.Equal(t, "true", form.Get("enable"), "other rules remain, filter stays on")
	assert.Equal(t, "true", form.Get("allowall"))

	var kept []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(form.Get("macfilterTbl")), &kept))
	require.Len(t, kept, 1, "target removed, blank rows dropped")
	assert.Equal(t, `"77:88:99:AA:BB:CC"`, string(kept[0]["macaddress"]))
	assert.Contains(t, kept[0], "url", "vendor fields ride along untouched")
}

func TestUnblockDeviceLastRuleDisablesFilter(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) {
		g.macBody = `{"error":"ok","data":{"macfilterTbl":[{"__id":"0","macaddress":"11:22:33:44:55:66","description":"only","type":"Block","alwaysblock":"true"}]}}`
	})
	c := g.client(t)

	wasBlocked, err := c.UnblockDevice(context.Background(), "11:22:33:44:55:66")
	require.NoError(t, err)
	assert.True(t, wasBlocked)

	posts := postsTo(g.recorded(), "/api/v1/macfilter")
	require.Len(t, posts, 1)
	assert.Equal(t, "false", posts[0].Form.Get("enable"))
	assert.Equal(t, "[]", posts[0].Form.Get("macfilterTbl"))
}

func TestUnblockDeviceNotBlocked(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.macBody = macTableFixture })
	c := g.client(t)

	wasBlocked, err := c.UnblockDevice(context.Background(), "DE:AD:BE:EF:00:00")
	require.NoError(t, err)
	assert.False(t, wasBlocked)
	assert.Empty(t, postsTo(g.recorded(), "/api/v1/macfilter"))
}

func TestUnblockDeviceToleratesGatewayComplaint(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) {
		g.macBody = macTableFixture
		g.writeResp = `{"error":"error","message":"invalid entry at index 2"}`
	})
	c := g.client(t)

	wasBlocked, err := c.UnblockDevice(context.Background(), "11:22:33:44:55:66")
	require.NoError(t, err, "the rewrite applies despite the complaint")
	assert.True(t, wasBlocked)
}

func TestBlockedDevicesSkipsBlankRows(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.macBody = macTableFixture })
	c := g.client(t)

	entries, err := c.BlockedDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "old-phone", entries[0].Description)
	assert.Equal(t, "3", entries[1].ID)
}

func TestBlockSite(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.siteBody = siteTableFixture })
	c := g.client(t)

	already, err := c.BlockSite(context.Background(), "  Facebook.COM")
	require.NoError(t, err)
	assert.False(t, already)

	posts := postsTo(g.recorded(), "/api/v1/sitefilter")
	require.Len(t, posts, 1)
	form := posts[0].Form
	assert.Equal(t, "facebook.com", form.Get("sitefilterTbl[5][site]"), "lowercased, appended one past the max id")
	assert.Equal(t, "URL", form.Get("sitefilterTbl[5][blockmethod]"))
	assert.Equal(t, "true", form.Get("sitefilterTbl[5][alwaysblock]"))
	assert.Equal(t, "true", form.Get("enable"))
}

func TestBlockSiteAlreadyBlocked(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.siteBody = siteTableFixture })
	c := g.client(t)

	already, err := c.BlockSite(context.Background(), "YouTube.com")
	require.NoError(t, err)
	assert.True(t, already)
	assert.Empty(t, postsTo(g.recorded(), "/api/v1/sitefilter"))
}

func TestUnblockSitePreservesTrustedTable(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.siteBody = siteTableFixture })
	c := g.client(t)

	wasBlocked, err := c.UnblockSite(context.Background(), "youtube.com")
	require.NoError(t, err)
	assert.True(t, wasBlocked)

	posts := postsTo(g.recorded(), "/api/v1/sitefilter")
	require.Len(t, posts, 1)
	form := posts[0].Form
	assert.Equal(t, "false", form.Get("enable"), "last rule removed, filter off")
	assert.Equal(t, "[]", form.Get("sitefilterTbl"))
	assert.Contains(t, form.Get("sitetrustedTbl"), "school.example")
}

func TestUnblockSiteNotBlocked(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.siteBody = siteTableFixture })
	c := g.client(t)

	wasBlocked, err := c.UnblockSite(context.Background(), "missing.example")
	require.NoError(t, err)
	assert.False(t, wasBlocked)
	assert.Empty(t, postsTo(g.recorded(), "/api/v1/sitefilter"))
}

func TestBlockedSites(t *testing.T) {
	g := newFakeGateway(t)
	g.set(func(g *fakeGateway) { g.siteBody = siteTableFixture })
	c := g.client(t)

	sites, err := c.BlockedSites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"youtube.com"}, sites, "blank placeholder rows dropped")
}
