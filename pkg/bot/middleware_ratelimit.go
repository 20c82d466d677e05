package bot

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/middleware"
)

// senderLimits keeps one token bucket per sender. Buckets are created on
// first sight and never expire; a support desk's sender population is small
// enough that the map stays bounded in practice.
type senderLimits struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func (s *senderLimits) allow(key string) bool {
	s.mu.Lock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

// RateLimitMiddleware drops updates from senders exceeding the configured
// rate. Dropped updates are halted without a reply; answering a flood only
// doubles it. A PerSecond of zero disables the limiter.
func RateLimitMiddleware(cfg config.RateLimitConfig) middleware.Definition[*Context] {
	limits := &senderLimits{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(cfg.PerSecond),
		burst:    cfg.Burst,
	}
	return middleware.Definition[*Context]{
		Name:     "ratelimit",
		Priority: -40,
		Handler: func(ctx context.Context, c *Context, next middleware.Next) error {
			if cfg.PerSecond <= 0 {
				return next()
			}
			key := c.Update.Channel + ":" + c.Update.SenderID
			if !limits.allow(key) {
				logger.DebugCF("ratelimit", "Update dropped", map[string]interface{}{
					"sender":  c.Update.SenderID,
					"channel": c.Update.Channel,
				})
				c.Halt()
				return nil
			}
			return next()
		},
	}
}
