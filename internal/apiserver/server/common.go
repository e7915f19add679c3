// Package server 路由配置与核心基础设施
//
// 文件组织：
//   - common.go: Handler 定义、健康检查
//   - middleware.go: 限流、CORS、客户端 IP 提取
//   - handler.go: Router 路由装配
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"clients-admin/internal/apiserver/auth"
	"clients-admin/internal/apiserver/metrics"
	"clients-admin/internal/config"
	"clients-admin/internal/shared/mailer"
	"clients-admin/internal/shared/objstore"
	"clients-admin/internal/shared/ratelimit"
	"clients-admin/internal/shared/storage"
)

// Handler API Server 入口，聚合各领域处理器的依赖
type Handler struct {
	cfg     *config.Config
	store   storage.Store
	files   objstore.Store
	mail    mailer.Mailer
	limiter ratelimit.Limiter
	authCfg auth.Config
	metrics *metrics.Metrics
}

// NewHandler 创建 Handler 实例
func NewHandler(cfg *config.Config, store storage.Store, files objstore.Store,
	mail mailer.Mailer, limiter ratelimit.Limiter) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   store,
		files:   files,
		mail:    mail,
		limiter: limiter,
		authCfg: buildAuthConfig(cfg),
		metrics: metrics.NewMetrics("clients_admin"),
	}
}

// buildAuthConfig 从应用配置推导认证配置，TTL 解析失败时用默认值
func buildAuthConfig(cfg *config.Config) auth.Config {
	ac := auth.DefaultConfig()
	ac.JWTSecret = cfg.Auth.JWTSecret
	ac.CookieSecure = cfg.Env == config.EnvProduction
	ac.DevBypass = cfg.IsDev()
	if d, err := time.ParseDuration(cfg.Auth.ClientTokenTTL); err == nil && d > 0 {
		ac.ClientTokenTTL = d
	}
	if d, err := time.ParseDuration(cfg.Auth.AdminTokenTTL); err == nil && d > 0 {
		ac.AdminTokenTTL = d
	}
	return ac
}

// Metrics 返回指标实例
func (h *Handler) Metrics() *metrics.Metrics {
	return h.metrics
}

// AuthConfig 返回推导出的认证配置
func (h *Handler) AuthConfig() auth.Config {
	return h.authCfg
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Health 健康检查接口
//
// 路由: GET /health
// 返回服务与数据库的可用状态，数据库不可用时整体 degraded 但仍返回 200，
// 负载均衡器据此保留实例（页面有降级渲染）。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 2*time.Second)
	defer cancel()

	status := "ok"
	db := "ok"
	if err := h.store.Ping(ctx); err != nil {
		log.Printf("[server.Health] db ping error: %v", err)
		db = "unavailable"
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"db":      db,
		"storage": h.files.Backend(),
	})
}
