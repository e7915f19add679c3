package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter 基于 Redis 的固定窗口限流器
//
// 计数键 "ratelimit:<rule>:<key>"，首次计数时设置窗口 TTL。
// 多实例部署下所有实例共享同一计数。
type RedisLimiter struct {
	rdb *redis.Client
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

// Allow 原子递增计数并判定是否超限
func (l *RedisLimiter) Allow(ctx context.Context, rule Rule, key string) (*Result, error) {
	counterKey := fmt.Sprintf("ratelimit:%s:%s", rule.Name, key)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	// NX：仅首次计数时设置过期，避免每次请求刷新窗口
	pipe.ExpireNX(ctx, counterKey, rule.Window)
	ttl := pipe.TTL(ctx, counterKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("ratelimit: redis exec: %w", err)
	}

	count := int(incr.Val())
	retryAfter := ttl.Val()
	if retryAfter < 0 {
		retryAfter = rule.Window
	}

	if count > rule.Limit {
		return &Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}
	return &Result{Allowed: true, Remaining: rule.Limit - count}, nil
}

// NewRedisClient 创建并验证 Redis 连接
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: redis ping: %w", err)
	}
	return rdb, nil
}
