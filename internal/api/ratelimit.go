package api

import (
    "os"
    "strconv"
    "sync"

    "golang.org/x/time/rate"
)

// providerLimiter throttles optimization runs per provider. A run walks the
// whole day's job set, so uncapped callers could pin the store.
type providerLimiter struct {
    mu    sync.Mutex
    lims  map[string]*rate.Limiter
    rps   rate.Limit
    burst int
}

func newProviderLimiter() *providerLimiter {
    rps := 1.0
    burst := 3
    if v := os.Getenv("OPTIMIZE_RPS"); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 { rps = f }
    }
    if v := os.Getenv("OPTIMIZE_BURST"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { burst = n }
    }
    return &providerLimiter{lims: map[string]*rate.Limiter{}, rps: rate.Limit(rps), burst: burst}
}

func (p *providerLimiter) allow(providerID string) bool {
    p.mu.Lock()
    l := p.lims[providerID]
    if l == nil {
        l = rate.NewLimiter(p.rps, p.burst)
        p.lims[providerID] = l
    }
    p.mu.Unlock()
    return l.Allow()
}
