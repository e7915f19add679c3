package server

import (
	"fmt"
	"net/http"

	"clients-admin/internal/apiserver/admin"
	"clients-admin/internal/apiserver/auth"
	"clients-admin/internal/apiserver/client"
	"clients-admin/internal/apiserver/metrics"
	"clients-admin/internal/apiserver/web"
	"clients-admin/internal/shared/ratelimit"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 认证 (auth 包):
//   - POST /auth/client/register, /auth/client/login, /auth/admin/login
//   - POST /auth/logout, /auth/forgot-password, /auth/reset-password/{token}
//   - GET  /auth/verify, /auth/verify-email/{token}
//
// 管理端 (admin 包，需管理员令牌):
//   - /admin/clients 及其子路由、/admin/message(s)、/admin/send-file
//   - /admin/download-file/{fileId}、/admin/view-file/{fileId}、/admin/stats
//
// 客户端 (client 包，需客户令牌或开发模式旁路):
//   - /client/{id}/profile、config、credentials、campaigns、upload、files、
//     send-message、messages、logs
//
// 页面 (web 包):
//   - GET /、/admin、/client/{id}、/auth/*-login、注册与密码重置页
//
// 基础设施:
//   - GET /health、GET /metrics
func (h *Handler) Router() (http.Handler, error) {
	mux := http.NewServeMux()

	// 基础设施
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	adminMW := auth.RequireAdmin(h.authCfg)
	clientMW := auth.RequireClient(h.authCfg, h.store)

	// 限流中间件（开发环境下 rateLimit 返回透传）
	authLimit := h.rateLimit(ratelimit.RuleAuth)
	msgLimit := h.rateLimit(ratelimit.RuleMessage)
	uploadLimit := h.rateLimit(ratelimit.RuleUpload)

	// 认证接口
	authHandler := auth.NewHandler(h.store, h.authCfg, h.mail, h.metrics, h.cfg.Server.BaseURL, authLimit)
	authHandler.RegisterRoutes(mux)

	// 管理端接口
	adminHandler := admin.NewHandler(h.store, h.files, h.metrics, adminMW, msgLimit, uploadLimit)
	adminHandler.RegisterRoutes(mux)

	// 客户端接口
	clientHandler := client.NewHandler(h.store, h.files, h.metrics, clientMW, msgLimit, uploadLimit)
	clientHandler.RegisterRoutes(mux)

	// 渲染页面
	webHandler, err := web.NewHandler(h.store, adminMW)
	if err != nil {
		return nil, fmt.Errorf("init web handler: %w", err)
	}
	webHandler.RegisterRoutes(mux)

	// 通用 API 限流包在整个 mux 外层，认证/消息/上传接口在内层再叠加各自规则
	apiLimited := h.apiLimitMiddleware(mux)

	// 指标采集最外层，CORS 次之
	return h.metrics.Middleware(h.corsMiddleware(apiLimited)), nil
}

// apiLimitMiddleware 通用 API 限流：健康检查与指标端点不计数
func (h *Handler) apiLimitMiddleware(next http.Handler) http.Handler {
	limited := h.rateLimit(ratelimit.RuleAPI)(next.ServeHTTP)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/health", r.URL.Path == "/metrics":
			next.ServeHTTP(w, r)
		default:
			limited(w, r)
		}
	})
}
