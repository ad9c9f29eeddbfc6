// Package ratelimit throttles inbound updates per client with a fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/julianstephens/salonbot/internal/logger"
)

type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) bool { return true }

// Memory is a single-process fixed-window limiter.
type Memory struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Memory{limit: limit, window: window, now: time.Now, visitors: map[string]*visitor{}}
}

func (m *Memory) Allow(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	v := m.visitors[key]
	if v == nil || now.After(v.resetTime) {
		m.visitors[key] = &visitor{count: 1, resetTime: now.Add(m.window)}
		return true
	}
	if v.count >= m.limit {
		return false
	}
	v.count++
	return true
}

// Sweep drops expired windows.
func (m *Memory) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, v := range m.visitors {
		if now.After(v.resetTime) {
			delete(m.visitors, k)
		}
	}
}

// Redis is a fixed-window limiter shared by every bot instance using the same
// Redis database.
type Redis struct {
	rdb      redis.Scripter
	limit    int
	window   time.Duration
	prefix   string
	failOpen bool
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedis(rdb redis.Scripter, limit int, window time.Duration, prefix string) *Redis {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "salonbot:rl"
	}
	return &Redis{rdb: rdb, limit: limit, window: window, prefix: prefix, failOpen: true}
}

// Allow fails open when Redis is unreachable.
func (r *Redis) Allow(ctx context.Context, key string) bool {
	count, err := r.incr(ctx, r.prefix+":"+key)
	if err != nil {
		logger.Warn("Redis rate limiter error", "error", err)
		return r.failOpen
	}
	return count <= int64(r.limit)
}

func (r *Redis) incr(ctx context.Context, key string) (int64, error) {
	ms := r.window.Milliseconds()
	if ms <= 0 {
		ms = int64(time.Minute / time.Millisecond)
	}
	res, err := fixedWindowScript.Run(ctx, r.rdb, []string{key}, ms).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}

// Dial connects to url and pings it.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rdb, nil
}
