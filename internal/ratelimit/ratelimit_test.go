package ratelimit_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loglens/loglens/internal/ratelimit"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiter_ConcurrentBurst(t *testing.T) {
	const limit, callers = 10, 200
	l := ratelimit.NewMemoryLimiter(limit, time.Minute)
	defer l.Close()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), "k").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Errorf("allowed = %d, want %d", got, limit)
	}
}

func TestMemoryLimiter_KeysIndependent(t *testing.T) {
	l := ratelimit.NewMemoryLimiter(1, time.Minute)
	defer l.Close()
	ctx := context.Background()

	if !l.Allow(ctx, "a").Allowed {
		t.Fatal("first request for a rejected")
	}
	if l.Allow(ctx, "a").Allowed {
		t.Error("second request for a allowed")
	}
	if !l.Allow(ctx, "b").Allowed {
		t.Error("first request for b rejected")
	}
	if l.Keys() != 2 {
		t.Errorf("Keys() = %d, want 2", l.Keys())
	}
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	l := ratelimit.NewMemoryLimiter(2, time.Minute, ratelimit.WithClock(c.Now))
	defer l.Close()
	ctx := context.Background()

	l.Allow(ctx, "k")
	d := l.Allow(ctx, "k")
	if !d.Allowed || d.Remaining() != 0 {
		t.Fatalf("second = %+v, want allowed with 0 remaining", d)
	}
	d = l.Allow(ctx, "k")
	if d.Allowed {
		t.Fatal("third request allowed")
	}
	if got := d.RetryAfter(c.Now()); got != time.Minute {
		t.Errorf("RetryAfter = %v, want 1m", got)
	}

	c.Advance(30 * time.Second)
	if got := l.Allow(ctx, "k").RetryAfter(c.Now()); got != 30*time.Second {
		t.Errorf("RetryAfter after 30s = %v, want 30s", got)
	}

	c.Advance(30 * time.Second)
	d = l.Allow(ctx, "k")
	if !d.Allowed || d.Count != 1 {
		t.Errorf("after reset = %+v, want allowed with count 1", d)
	}
}

func TestMemoryLimiter_ZeroLimitDisables(t *testing.T) {
	l := ratelimit.NewMemoryLimiter(0, time.Minute)
	defer l.Close()
	for i := 0; i < 50; i++ {
		if !l.Allow(context.Background(), "k").Allowed {
			t.Fatalf("request %d rejected with limit 0", i)
		}
	}
}

func TestDecision_RetryAfterFloor(t *testing.T) {
	now := time.Now()
	d := ratelimit.Decision{ResetAt: now.Add(200 * time.Millisecond)}
	if got := d.RetryAfter(now); got != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", got)
	}
	d = ratelimit.Decision{ResetAt: now.Add(-time.Second)}
	if got := d.RetryAfter(now); got != time.Second {
		t.Errorf("RetryAfter(past) = %v, want 1s", got)
	}
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	l := ratelimit.NewRedisLimiterWithClient(client, 1, time.Minute)
	defer l.Close()

	for i := 0; i < 3; i++ {
		if !l.Allow(context.Background(), "k").Allowed {
			t.Fatalf("request %d rejected while redis is unreachable", i)
		}
	}
}

// memRedis answers INCR, EXPIRE and TTL in process through a client hook,
// failing the first failExpire EXPIRE calls.
type memRedis struct {
	mu         sync.Mutex
	counts     map[string]int64
	expiry     map[string]time.Duration
	failExpire int
	expires    int
}

func (m *memRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("memRedis does not dial")
	}
}

func (m *memRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (m *memRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		key, _ := cmd.Args()[1].(string)
		switch c := cmd.(type) {
		case *redis.IntCmd:
			m.counts[key]++
			c.SetVal(m.counts[key])
		case *redis.BoolCmd:
			m.expires++
			if m.expires <= m.failExpire {
				c.SetErr(errors.New("expire failed"))
				return c.Err()
			}
			m.expiry[key] = time.Minute
			c.SetVal(true)
		case *redis.DurationCmd:
			if d, ok := m.expiry[key]; ok {
				c.SetVal(d)
			} else {
				c.SetVal(-1)
			}
		default:
			return next(ctx, cmd)
		}
		return nil
	}
}

func TestRedisLimiter_RestoresLostExpiry(t *testing.T) {
	fake := &memRedis{counts: map[string]int64{}, expiry: map[string]time.Duration{}, failExpire: 1}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	client.AddHook(fake)
	l := ratelimit.NewRedisLimiterWithClient(client, 5, time.Minute)
	defer l.Close()

	d := l.Allow(context.Background(), "k")
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("Allow() = %+v, want first request allowed", d)
	}
	if fake.expires != 2 {
		t.Errorf("EXPIRE calls = %d, want 2 (failed first, reissued after TTL -1)", fake.expires)
	}
	if _, ok := fake.expiry["loglens:ratelimit:k"]; !ok {
		t.Error("key has no expiry after Allow()")
	}

	l.Allow(context.Background(), "k")
	if fake.expires != 2 {
		t.Errorf("EXPIRE calls = %d, want no extra call once the key expires", fake.expires)
	}
}
