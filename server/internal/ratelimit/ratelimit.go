// Package ratelimit throttles state writes per client IP with a token bucket,
// so a single client cannot flood the store with new rooms.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	idleTimeout     = 10 * time.Minute
	cleanupInterval = 5 * time.Minute
)

// Limiter tracks one token bucket per client key. A zero rate disables limiting.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rps      float64
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter allowing rps sustained requests per second per key,
// with a burst of twice that.
func New(rps float64) *Limiter {
	return &Limiter{
		limiters: make(map[string]*entry),
		rps:      rps,
		now:      time.Now,
	}
}

// Allow reports whether a request from key may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	if l.rps <= 0 {
		l.mu.Unlock()
		return true
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.rps), burst(l.rps))}
		l.limiters[key] = e
	}
	e.lastSeen = l.now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// SetRate changes the per-key rate. Existing buckets are dropped so the new
// rate applies immediately.
func (l *Limiter) SetRate(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rps == l.rps {
		return
	}
	l.rps = rps
	l.limiters = make(map[string]*entry)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Run drops buckets idle for longer than ten minutes. Blocks until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.cleanup(l.now().Add(-idleTimeout))
		}
	}
}

func (l *Limiter) cleanup(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
		}
	}
}

func burst(rps float64) int {
	b := int(rps * 2)
	if b < 1 {
		b = 1
	}
	return b
}

// TrustedProxies is the set of peers allowed to name the client through
// X-Forwarded-For or X-Real-IP. A nil *TrustedProxies trusts nobody.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies parses addresses ("192.0.2.10") and CIDR ranges
// ("10.0.0.0/8"). An empty list yields nil.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	p := &TrustedProxies{prefixes: make([]netip.Prefix, 0, len(entries))}
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			p.prefixes = append(p.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		p.prefixes = append(p.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return p, nil
}

func (p *TrustedProxies) trusts(addr netip.Addr) bool {
	if p == nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address a request is limited under. Forwarding headers
// count only when the connection comes from a trusted proxy. X-Forwarded-For
// is then read right to left and the first hop that is not itself a trusted
// proxy wins. Anything unparsable falls back to the connection's address.
func (p *TrustedProxies) ClientIP(r *http.Request) string {
	host := remoteHost(r.RemoteAddr)
	peer, err := netip.ParseAddr(host)
	if err != nil || !p.trusts(peer) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			client = hop
			if !p.trusts(hop) {
				break
			}
		}
		return client.Unmap().String()
	}
	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return host
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
