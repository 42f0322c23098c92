package api

import (
	"sync"
)

// LatestLocation holds the latest known position for a field worker.
type LatestLocation struct {
	Provider string  `json:"providerId"`
	WorkerID string  `json:"workerId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	TS       string  `json:"ts"`
}

// WorkerLocationCache stores latest worker positions per provider.
type WorkerLocationCache struct {
	mu sync.Mutex
	// key: provider|workerId
	m map[string]LatestLocation
}

// NewWorkerLocationCache constructs a WorkerLocationCache.
func NewWorkerLocationCache() *WorkerLocationCache { return &WorkerLocationCache{m: map[string]LatestLocation{}} }

func (c *WorkerLocationCache) key(provider, workerID string) string {
	return provider + "|" + workerID
}

// Upsert stores or updates the latest position for a worker.
func (c *WorkerLocationCache) Upsert(provider, workerID string, lat, lng float64, ts string) {
	if provider == "" || workerID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(provider, workerID)] = LatestLocation{Provider: provider, WorkerID: workerID, Lat: lat, Lng: lng, TS: ts}
}

// ListByProvider returns the latest known positions for a provider's workers.
func (c *WorkerLocationCache) ListByProvider(provider string) []LatestLocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []LatestLocation{}
	prefix := provider + "|"
	for k, v := range c.m {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, v)
		}
	}
	return out
}
