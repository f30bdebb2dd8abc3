// Package ttlstore provides the time-boxed key-value stores the A2A
// envelope and the payment flow need: the replay-defence nonce ledger,
// WebAuthn challenges, pm_tokens, step-up sessions, and agent tokens. Every
// store here is safe to call from many goroutines at once and never holds
// its lock across a call that could block on the network; the seen-check
// and the record write happen in one critical section.
package ttlstore

import (
	"context"
	"sync"
	"time"
)

// NonceLedger records nonces it has already seen, scoped per sender, so a
// captured envelope cannot be replayed even if its timestamp is still
// inside the acceptance window.
type NonceLedger interface {
	// CheckAndRecord atomically checks whether (scope, nonce) has been seen
	// before and records it if not. It returns true when the nonce is new
	// (the caller may proceed) and false when it has already been used.
	CheckAndRecord(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error)
}

type memoryEntry struct {
	expiresAt time.Time
}

// MemoryNonceLedger is an in-process NonceLedger backed by a mutex-guarded
// map. It expires entries lazily on access rather than running a
// background sweeper, since the federation's nonce window is short (a few
// minutes) and a live service only ever accumulates a bounded number of
// pending nonces.
type MemoryNonceLedger struct {
	mu      sync.Mutex
	seen    map[string]memoryEntry
}

// NewMemoryNonceLedger creates an empty in-process nonce ledger.
func NewMemoryNonceLedger() *MemoryNonceLedger {
	return &MemoryNonceLedger{seen: make(map[string]memoryEntry)}
}

func (l *MemoryNonceLedger) CheckAndRecord(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error) {
	key := scope + ":" + nonce
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.seen[key]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}
	l.seen[key] = memoryEntry{expiresAt: now.Add(ttl)}

	// Opportunistically sweep expired entries so the map doesn't grow
	// unbounded under sustained traffic. Bounded by map size, never by an
	// outbound call.
	if len(l.seen) > 4096 {
		for k, e := range l.seen {
			if now.After(e.expiresAt) {
				delete(l.seen, k)
			}
		}
	}

	return true, nil
}
