package crawlers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 导航速率控制
// 令牌桶容量为1,任意一秒内的请求数不会超过上限;
// 同时记录自启动以来的请求数,用于日志和统计
type RateLimiter struct {
	limiter *rate.Limiter

	mu        sync.Mutex
	requests  int64
	startedAt time.Time
}

// NewRateLimiter 创建速率控制器,rps 为每秒请求上限
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Wait 阻塞直到允许下一次请求
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	if r.startedAt.IsZero() {
		r.startedAt = time.Now()
	}
	r.requests++
	r.mu.Unlock()
	return nil
}

// Requests 自启动以来放行的请求数
func (r *RateLimiter) Requests() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// ObservedRate 自启动以来的平均请求速率
func (r *RateLimiter) ObservedRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startedAt.IsZero() {
		return 0
	}
	elapsed := time.Since(r.startedAt).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return float64(r.requests) / elapsed
}
