package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/campusmart/backend/config"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// tokenBucket refills one token per interval up to capacity and takes one
// token per call. Returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local interval_ms = tonumber(ARGV[3])
	local ttl_seconds = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + intervals)
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = interval_ms - (now_ms - last_refill)
		if retry_after_ms < 0 then retry_after_ms = 0 end
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP and route. It uses a Redis
// token bucket when a client is configured, so limits hold across
// instances, and per-process limiters otherwise or while Redis is failing.
type RateLimiter struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	now func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) *RateLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &RateLimiter{
		cfg:      cfg,
		rdb:      rdb,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (l *RateLimiter) Handler() gin.HandlerFunc {
	if !l.cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := l.key(c)

		allowed, remaining, retry := l.take(c, key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			abort(c, http.StatusTooManyRequests, "Too many requests")
			return
		}

		c.Next()
	}
}

func (l *RateLimiter) key(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return strings.Join([]string{l.cfg.Prefix, "ip", ip, "route", c.Request.Method + " " + route}, ":")
}

func (l *RateLimiter) take(c *gin.Context, key string) (bool, int64, time.Duration) {
	if l.rdb != nil {
		allowed, remaining, retry, err := l.takeRedis(c, key)
		if err == nil {
			return allowed, remaining, retry
		}
		zap.L().Warn("Rate limiter falling back to local buckets",
			zap.Error(err),
			zap.String("requestID", c.GetString("requestID")),
		)
	}
	return l.takeLocal(key)
}

func (l *RateLimiter) takeRedis(c *gin.Context, key string) (bool, int64, time.Duration, error) {
	interval := l.cfg.RefillInterval
	ttl := time.Duration(l.cfg.Capacity) * interval
	if ttl < time.Second {
		ttl = time.Second
	}

	args := []any{
		l.now().UnixMilli(),
		l.cfg.Capacity,
		interval.Milliseconds(),
		int64(math.Ceil(ttl.Seconds())),
	}

	vals, err := tokenBucket.Run(c.Request.Context(), l.rdb, []string{key}, args...).Int64Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected rate limit script result: %v", vals)
	}
	return vals[0] == 1, vals[1], time.Duration(vals[2]) * time.Millisecond, nil
}

func (l *RateLimiter) takeLocal(key string) (bool, int64, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.cfg.RefillInterval), l.cfg.Capacity)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, 0, d
	}
	return true, int64(v.limiter.TokensAt(now)), 0
}

// sweepLocked drops visitors idle long enough to have refilled completely.
func (l *RateLimiter) sweepLocked(now time.Time) {
	idle := time.Duration(l.cfg.Capacity) * l.cfg.RefillInterval
	if idle < time.Minute {
		idle = time.Minute
	}
	if now.Sub(l.lastSweep) < idle {
		return
	}
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, k)
		}
	}
	l.lastSweep = now
}
