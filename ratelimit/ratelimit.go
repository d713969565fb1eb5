// Package ratelimit spaces out outbound requests per target host.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneThreshold bounds the number of tracked hosts before idle limiters
// are dropped.
const pruneThreshold = 1024

// HostLimiter enforces a minimum gap between consecutive requests to the
// same host. Different hosts never wait on each other.
type HostLimiter struct {
	gap time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter with the given minimum gap. A
// non-positive gap disables waiting.
func NewHostLimiter(gap time.Duration) *HostLimiter {
	return &HostLimiter{
		gap:      gap,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host may proceed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || h.gap <= 0 {
		return nil
	}
	return h.limiter(host).Wait(ctx)
}

// Hosts reports how many hosts are currently tracked.
func (h *HostLimiter) Hosts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.limiters)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)

	h.mu.Lock()
	defer h.mu.Unlock()

	if lim, ok := h.limiters[host]; ok {
		return lim
	}
	if len(h.limiters) >= pruneThreshold {
		h.pruneLocked()
	}
	lim := rate.NewLimiter(rate.Every(h.gap), 1)
	h.limiters[host] = lim
	return lim
}

// pruneLocked drops limiters whose gap has fully elapsed; a fresh limiter
// behaves identically.
func (h *HostLimiter) pruneLocked() {
	for host, lim := range h.limiters {
		if lim.Tokens() >= 1 {
			delete(h.limiters, host)
		}
	}
}
