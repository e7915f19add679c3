// Package ratelimit 实现固定窗口限流
//
// 两种实现：
//   - RedisLimiter：生产环境，多实例共享计数（INCR + EXPIRE）
//   - MemoryLimiter：测试与单机开发
//
// 按接口分类限流，窗口到期计数归零。
package ratelimit

import (
	"context"
	"time"
)

// Rule 限流规则：窗口内允许的最大请求数
type Rule struct {
	Name   string // 计数键前缀
	Limit  int
	Window time.Duration
}

// 各接口分类的限流规则
var (
	// RuleAuth 登录/注册等认证接口
	RuleAuth = Rule{Name: "auth", Limit: 5, Window: 15 * time.Minute}

	// RuleAPI 通用 API
	RuleAPI = Rule{Name: "api", Limit: 100, Window: time.Minute}

	// RuleMessage 消息发送
	RuleMessage = Rule{Name: "message", Limit: 10, Window: time.Minute}

	// RuleUpload 文件上传
	RuleUpload = Rule{Name: "upload", Limit: 5, Window: time.Minute}
)

// Result 单次限流判定结果
type Result struct {
	Allowed    bool
	Remaining  int           // 当前窗口剩余配额
	RetryAfter time.Duration // 拒绝时距窗口重置的时长
}

// Limiter 限流器接口
type Limiter interface {
	// Allow 判定 key（通常为客户端 IP 或客户标识）在 rule 下是否放行
	Allow(ctx context.Context, rule Rule, key string) (*Result, error)
}
