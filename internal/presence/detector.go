package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Detector checks reachability of fixed targets with ICMP echo. It is the
// fallback when the gateway's host table cannot be fetched; the router API
// stays the primary detection path.
type Detector struct {
	timeout  time.Duration
	attempts int
}

// NewDetector builds a Detector. Zero values get the historical defaults:
// 2s per attempt, 3 attempts.
func NewDetector(timeout time.Duration, attempts int) *Detector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &Detector{timeout: timeout, attempts: attempts}
}

// PingFunc sends one echo request and returns nil on a reply. Swappable in
// tests.
var PingFunc = func(ctx context.Context, ip string, timeout time.Duration) error {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return fmt.Errorf("failed to create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return errors.New("packet loss")
	}
	return nil
}

// Present pings ip up to the configured attempts; one reply is enough.
// Returns how many attempts got a reply alongside the verdict.
func (d *Detector) Present(ctx context.Context, ip string) (present bool, replies int) {
	for i := 0; i < d.attempts; i++ {
		if ctx.Err() != nil {
			break
		}
		if err := PingFunc(ctx, ip, d.timeout); err == nil {
			replies++
		}
	}
	return replies > 0, replies
}
