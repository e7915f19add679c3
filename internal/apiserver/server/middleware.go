package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"clients-admin/internal/apiserver/auth"
	"clients-admin/internal/shared/ratelimit"
)

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

// clientIP 提取调用方 IP：优先 X-Forwarded-For 首跳，其次 RemoteAddr
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimit 构造按规则限流的中间件
//
// 限流器故障时放行（fail-open）：计数服务挂掉不应放大为全站不可用。
func (h *Handler) rateLimit(rule ratelimit.Rule) auth.Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if h.cfg.RateLimitDisabled || h.limiter == nil {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			res, err := h.limiter.Allow(r.Context(), rule, clientIP(r))
			if err != nil {
				log.Printf("[server.rateLimit] %s error: %v", rule.Name, err)
				next(w, r)
				return
			}
			if !res.Allowed {
				h.metrics.RateLimitDenied.WithLabelValues(rule.Name).Inc()
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter.Seconds())+1))
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "Too many requests, please try again later",
					"code":  "RATE_LIMIT_EXCEEDED",
				})
				return
			}
			next(w, r)
		}
	}
}

// corsMiddleware 按配置的来源白名单放行跨域请求
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(h.cfg.CORS.AllowedOrigins))
	for _, origin := range h.cfg.CORS.AllowedOrigins {
		allowed[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
