package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard rejects stale and replayed signed requests. Freshness bounds
// the request timestamp to a window around server time; single use is
// enforced by an atomic SET NX with expiry equal to that window, so a nonce
// only needs tracking for as long as its timestamp could still pass the
// freshness check.
type ReplayGuard struct {
	client *redis.Client
	window time.Duration
}

// NewReplayGuard creates a ReplayGuard backed by the given redis client
func NewReplayGuard(client *redis.Client, window time.Duration) *ReplayGuard {
	return &ReplayGuard{
		client: client,
		window: window,
	}
}

// FreshTimestamp reports whether ts (unix seconds) is within the replay
// window of the current server time
func (g *ReplayGuard) FreshTimestamp(ts int64) bool {
	diff := time.Now().Unix() - ts
	if diff < 0 {
		diff = -diff
	}
	return diff <= int64(g.window.Seconds())
}

// ConsumeNonce atomically marks (merchantID, nonce) as used and reports
// whether it was unused. Nonces are scoped per merchant: the same nonce from
// a different merchant is not a collision. The check-and-set must be a single
// operation or two concurrent requests with the same nonce could both pass.
func (g *ReplayGuard) ConsumeNonce(ctx context.Context, merchantID, nonce string) (bool, error) {
	key := fmt.Sprintf("nonce:%s:%s", merchantID, nonce)

	ok, err := g.client.SetNX(ctx, key, "1", g.window).Result()
	if err != nil {
		return false, fmt.Errorf("nonce check failed: %w", err)
	}

	return ok, nil
}
