package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLimiter 基于内存的固定窗口限流器，单进程有效
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time // 测试时可替换
}

type window struct {
	count   int
	resetAt time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter 创建内存限流器
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow 递增计数并判定是否超限
func (l *MemoryLimiter) Allow(ctx context.Context, rule Rule, key string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	counterKey := fmt.Sprintf("%s:%s", rule.Name, key)

	w, ok := l.windows[counterKey]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(rule.Window)}
		l.windows[counterKey] = w
	}
	w.count++

	if w.count > rule.Limit {
		return &Result{Allowed: false, Remaining: 0, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	return &Result{Allowed: true, Remaining: rule.Limit - w.count}, nil
}
