package steamapi

import (
	"log/slog"
	"sync/atomic"
)

// KeyRotator round-robins through a pool of Steam Web API keys. The position
// is a monotonic counter with modulo indexing, updated atomically, so it is
// safe under the monitor's bounded fetch concurrency.
type KeyRotator struct {
	keys []string
	pos  atomic.Uint64
}

// NewKeyRotator builds a rotator over the given pool. An empty pool is
// logged once here rather than per request.
func NewKeyRotator(keys []string) *KeyRotator {
	if len(keys) == 0 {
		slog.Warn("steam api key pool is empty; api requests will return no data", slog.String("component", "steamapi"))
	}
	return &KeyRotator{keys: keys}
}

// Len returns the pool size.
func (r *KeyRotator) Len() int { return len(r.keys) }

// Next returns the next key in round-robin order. The position advances on
// every call regardless of whether the eventual request succeeds.
func (r *KeyRotator) Next() string {
	if len(r.keys) == 0 {
		return ""
	}
	n := r.pos.Add(1) - 1
	return r.keys[n%uint64(len(r.keys))]
}

// InRotationOrder returns the full pool reordered to start from the current
// rotation position, advancing the position by one. A resilient request
// iterates the result to try every key at most once, starting from a fresh
// one on each invocation.
func (r *KeyRotator) InRotationOrder() []string {
	if len(r.keys) == 0 {
		return nil
	}
	start := int((r.pos.Add(1) - 1) % uint64(len(r.keys)))
	out := make([]string, 0, len(r.keys))
	out = append(out, r.keys[start:]...)
	out = append(out, r.keys[:start]...)
	return out
}
