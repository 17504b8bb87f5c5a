// Package router speaks the undocumented HTTP API of Technicolor-based
// residential gateways (VOO and friends). The firmware serves a single-page
// web UI backed by JSON endpoints under /api/v1/; this package reproduces the
// browser's login handshake and drives the same endpoints for device
// inventory, MAC filtering and site filtering.
//
// The gateway holds exactly one web session at a time. Logging in here evicts
// anyone using the web UI, and vice versa, so all callers in one process must
// share a single Client.
package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/chaollapark/homelab/internal/logging"
	"github.com/chaollapark/homelab/internal/metrics"
)

const (
	// saltProbe is the magic password the web UI sends to request the
	// account's salts before the real login attempt.
	saltProbe = "seeksalthash"

	pbkdf2Iterations = 1000
	pbkdf2KeyLength  = 16

	// probeTimeout bounds the cheap session-validity check.
	probeTimeout = 5 * time.Second

	// logoutTimeout bounds the best-effort logout on shutdown.
	logoutTimeout = 5 * time.Second

	// hostFetchTimeout bounds the host-table fetch, which the firmware can
	// take a long time to assemble when many devices are attached.
	hostFetchTimeout = 30 * time.Second
)

// Config carries the connection parameters for a gateway.
type Config struct {
	// URL is the gateway base URL, e.g. "http://192.168.0.1".
	URL      string
	Username string
	Password string

	// ReadTimeout bounds login and read requests. Defaults to 10s.
	ReadTimeout time.Duration
	// WriteTimeout bounds filter-table writes. Defaults to 15s.
	WriteTimeout time.Duration

	Logger *logging.Logger
}

// Client is a session-holding client for one gateway. All methods are safe
// for concurrent use; requests are serialized because the firmware's session
// handling cannot cope with interleaved calls.
type Client struct {
	base     *url.URL
	username string
	password string

	readTimeout  time.Duration
	writeTimeout time.Duration

	log *logging.Logger

	mu       sync.Mutex
	hc       *http.Client
	csrf     string
	loggedIn bool
}

// New builds a Client. It does not touch the network; the first operation
// performs the login handshake.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(cfg.URL, "/")
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("router url %q: %w", cfg.URL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("router url %q: scheme must be http or https", cfg.URL)
	}

	c := &Client{
		base:         base,
		username:     cfg.Username,
		password:     cfg.Password,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		log:          cfg.Logger,
	}
	if c.readTimeout <= 0 {
		c.readTimeout = 10 * time.Second
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = 15 * time.Second
	}
	if c.log == nil {
		c.log = logging.Default().WithComponent("router")
	}
	c.resetSession()
	return c, nil
}

// resetSession discards cookies and CSRF state. Callers hold c.mu.
func (c *Client) resetSession() {
	jar, _ := cookiejar.New(nil)
	c.hc = &http.Client{Jar: jar}
	c.csrf = ""
	c.loggedIn = false
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// newRequest builds a request carrying the headers the web UI sends. The
// firmware rejects API calls without them.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.base.String()+"/")
	if c.csrf != "" {
		req.Header.Set("X-CSRF-TOKEN", c.csrf)
	}
	return req, nil
}

// apiStatus is the envelope every /api/v1/ response carries.
type apiStatus struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s apiStatus) ok() bool { return s.Error == "ok" }

func (s apiStatus) detail() string {
	if s.Message != "" {
		return s.Message
	}
	return s.Error
}

// getJSON issues a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, op, path string, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return transportErr(op, err)
	}
	return c.doJSON(op, req, out)
}

// postForm issues a form-encoded POST and decodes the JSON body into out.
// out may be nil when the caller does not care about the body.
func (c *Client) postForm(ctx context.Context, op, path string, form url.Values, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return transportErr(op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doJSON(op, req, out)
}

func (c *Client) doJSON(op string, req *http.Request, out interface{}) (err error) {
	defer func() { metrics.Get().RecordRouterRequest(op, err) }()

	resp, err := c.hc.Do(req)
	if err != nil {
		return transportErr(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return transportErr(op, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: gateway returned %d for %s", ErrSessionExpired, resp.StatusCode, op)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &ProtocolError{Op: op, Status: resp.StatusCode}
		}
		return protocolErr(op, "malformed response: %v", err)
	}
	return nil
}

// warmup issues a request whose body and status are irrelevant; only
// transport failures matter. The login handshake needs a few of these to
// coax the firmware into issuing session cookies.
func (c *Client) warmup(ctx context.Context, op, method, path string) (err error) {
	defer func() { metrics.Get().RecordRouterRequest(op, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		return transportErr(op, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return transportErr(op, err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	return nil
}

// pbkdf2Hex is one round of the firmware's password scheme: PBKDF2-SHA256,
// 1000 iterations, 16-byte key, hex-encoded.
func pbkdf2Hex(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return hex.EncodeToString(key)
}

// derivePassword computes what the login endpoint expects in the password
// field. Firmware that reports salt "none" wants the plaintext; everything
// else wants the double PBKDF2 construction the web UI performs in
// JavaScript.
func derivePassword(password, salt, saltWebUI string) string {
	if salt == "none" {
		return password
	}
	return pbkdf2Hex(pbkdf2Hex(password, salt), saltWebUI)
}

type loginResponse struct {
	apiStatus
	Salt      string `json:"salt"`
	SaltWebUI string `json:"saltwebui"`
}

// Login performs the full handshake: clear any stale session, request the
// account salts, send the derived password, then pick up the CSRF token the
// firmware sets in the "auth" cookie. It evicts whoever currently holds the
// gateway's single web session.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return fmt.Errorf("%w: username or password not configured", ErrAuthFailure)
	}

	c.resetSession()

	if err := c.warmup(ctx, "login", http.MethodGet, "/"); err != nil {
		return err
	}
	// A logout first clears stale sessions the firmware may still hold for
	// our address; without it a crashed previous run can lock us out until
	// the session times out on its own.
	if err := c.warmup(ctx, "login", http.MethodPost, "/api/v1/session/logout"); err != nil {
		return err
	}
	if err := c.warmup(ctx, "login", http.MethodGet, "/api/v1/session/menu"); err != nil {
		return err
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", saltProbe)
	var salts loginResponse
	if err := c.postForm(ctx, "login", "/api/v1/session/login", form, c.readTimeout, &salts); err != nil {
		return err
	}
	if !salts.ok() {
		return fmt.Errorf("%w: salt request rejected: %s", ErrAuthFailure, salts.detail())
	}

	form = url.Values{}
	form.Set("username", c.username)
	form.Set("password", derivePassword(c.password, salts.Salt, salts.SaltWebUI))
	var result loginResponse
	if err := c.postForm(ctx, "login", "/api/v1/session/login", form, c.readTimeout, &result); err != nil {
		return err
	}
	if !result.ok() {
		return fmt.Errorf("%w: %s", ErrAuthFailure, result.detail())
	}

	c.csrf = c.authCookie()
	if c.csrf == "" {
		c.log.Warn("no auth cookie after login, writes may be rejected")
	}

	// One more menu fetch activates the session server-side.
	if err := c.warmup(ctx, "login", http.MethodGet, "/api/v1/session/menu"); err != nil {
		return err
	}

	c.loggedIn = true
	metrics.Get().RouterLogins.Inc()
	c.log.Debug("session opened", "gateway", c.base.Host, "user", c.username)
	return nil
}

// authCookie returns the value of the "auth" cookie, which doubles as the
// CSRF token.
func (c *Client) authCookie() string {
	for _, ck := range c.hc.Jar.Cookies(c.base) {
		if ck.Name == "auth" {
			return ck.Value
		}
	}
	return ""
}

// probe checks whether the current session is still accepted.
func (c *Client) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/session/menu", nil)
	if err != nil {
		return transportErr("probe", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return transportErr("probe", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: probe returned %d", ErrSessionExpired, resp.StatusCode)
	}
	return nil
}

// EnsureLoggedIn revalidates the session with a cheap probe and performs a
// fresh login when the probe fails. Filter writes call this first because a
// write with a dead session fails in confusing ways.
func (c *Client) EnsureLoggedIn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revalidateLocked(ctx)
}

func (c *Client) revalidateLocked(ctx context.Context) error {
	if c.loggedIn {
		if err := c.probe(ctx); err == nil {
			return nil
		}
		c.log.Debug("session probe failed, re-authenticating")
		c.loggedIn = false
	}
	return c.loginLocked(ctx)
}

// sessionLocked logs in only when no session is held. Reads use this instead
// of revalidateLocked to avoid doubling request volume every poll cycle.
func (c *Client) sessionLocked(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	return c.loginLocked(ctx)
}

// Logout releases the gateway's web session so a human can log into the UI
// without waiting for the session to expire. Local state is cleared even when
// the request fails; the session dies on its own eventually.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn {
		return nil
	}
	defer func() {
		c.loggedIn = false
		c.csrf = ""
	}()
	ctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/session/logout", nil)
	if err != nil {
		return &TransportError{Op: "logout", Err: err}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return &TransportError{Op: "logout", Err: err}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	c.log.Debug("session released")
	return nil
}

// Invalidate marks the session dead without touching the network. The
// monitor calls this when a fetch looks like it came from an expired
// session, forcing a fresh login on the next operation.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedIn = false
}

// LoggedIn reports whether the client believes it holds a session. The
// gateway may disagree; EnsureLoggedIn settles it.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}
