package reveal

import (
	"context"
	"time"

	"github.com/revealtogether/server/internal/cache"
)

const rateLimitKeyPrefix = "ratelimit:"

// rateLimitWindow is the per-visitor admission window shared by the vote and
// chat paths.
const rateLimitWindow = time.Second

// RateLimiter is a per-visitor sliding admission gate backed by short-lived
// cache keys.
type RateLimiter struct {
	store cache.Store
}

func NewRateLimiter(store cache.Store) *RateLimiter {
	return &RateLimiter{store: store}
}

// Admit reports whether the visitor may proceed. The SET-IF-NOT-EXISTS with
// TTL makes the check-and-mark a single round trip; a visitor is admitted at
// most once per window. Errors surface to the caller, which treats them as
// rejections on admission paths.
func (l *RateLimiter) Admit(ctx context.Context, visitorID string) (bool, error) {
	return l.store.SetNX(ctx, rateLimitKeyPrefix+visitorID, "1", rateLimitWindow)
}
