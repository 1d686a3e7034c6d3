package gateway

import (
	"sync"
	"time"
)

// RateLimiter 控制私有请求速率，避免触发交易所限流。
type RateLimiter interface {
	Wait(method string)
}

// DecayCounter 按交易所的计数衰减模型限流：每次调用累加权重，
// 计数随时间衰减，超过上限则阻塞等待衰减到阈值以下。
type DecayCounter struct {
	MaxCount int           // 计数上限
	Decay    time.Duration // 每衰减一点所需时间
	Weights  map[string]int

	mu    sync.Mutex
	count int
	last  time.Time
	sleep func(time.Duration)
}

// NewDecayCounter 以交易所公开的默认额度构造限流器。
func NewDecayCounter() *DecayCounter {
	return &DecayCounter{
		MaxCount: 20,
		Decay:    2 * time.Second,
		// AddOrder 不计数，查询类权重为 1
		Weights: map[string]int{"AddOrder": 0},
		sleep:   time.Sleep,
	}
}

func (c *DecayCounter) Wait(method string) {
	c.mu.Lock()
	now := time.Now()
	if !c.last.IsZero() && c.Decay > 0 {
		c.count -= int(now.Sub(c.last) / c.Decay)
		if c.count < 0 {
			c.count = 0
		}
	}
	c.last = now

	weight, ok := c.Weights[method]
	if !ok {
		weight = 1
	}
	c.count += weight

	var wait time.Duration
	if c.count >= c.MaxCount {
		wait = time.Duration(c.count-c.MaxCount+1) * c.Decay
	}
	c.mu.Unlock()

	if wait > 0 {
		c.sleep(wait)
	}
}

// TokenBucketLimiter 是一个简单的令牌桶实现，供不按权重计数的场景使用。
type TokenBucketLimiter struct {
	rate   float64
	burst  int
	tokens float64
	last   time.Time
	mu     sync.Mutex
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

func (l *TokenBucketLimiter) Wait(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(l.last).Seconds()
	l.last = now
	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	if l.tokens < 1 {
		sleep := time.Duration((1-l.tokens)/l.rate*float64(time.Second)) + time.Millisecond
		l.mu.Unlock()
		time.Sleep(sleep)
		l.mu.Lock()
		l.tokens = 0
	} else {
		l.tokens -= 1
	}
}
