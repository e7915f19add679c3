package auth

import (
	"log"
	"net/http"
	"strings"

	"clients-admin/internal/shared/storage"
)

// bearerToken 从 Authorization 头提取 Bearer 令牌
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// wantsLoginRedirect 管理端页面请求（GET /admin*）认证失败时重定向到登录页
func wantsLoginRedirect(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/admin")
}

// RequireAdmin 管理员认证中间件
//
// 令牌来源：Authorization Bearer 头，或 admin_token http-only Cookie（页面请求）。
func RequireAdmin(cfg Config) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if c, err := r.Cookie(CookieName); err == nil {
					token = c.Value
				}
			}

			if token == "" {
				if wantsLoginRedirect(r) {
					http.Redirect(w, r, "/auth/admin-login", http.StatusFound)
					return
				}
				writeError(w, http.StatusUnauthorized, "Admin access required", "NO_ADMIN_TOKEN")
				return
			}

			claims, err := ParseToken(cfg, token)
			if err != nil || claims.Role != "admin" {
				if err != nil {
					log.Printf("[auth.RequireAdmin] token parse error: %v", err)
				}
				if wantsLoginRedirect(r) {
					http.Redirect(w, r, "/auth/admin-login", http.StatusFound)
					return
				}
				writeError(w, http.StatusForbidden, "Admin access denied", "INVALID_ADMIN_TOKEN")
				return
			}

			next(w, r.WithContext(WithAdmin(r.Context(), claims)))
		}
	}
}

// RequireClient 客户认证中间件
//
// 路由必须带 {id} 路径参数（对外 clientId）。令牌中的 clientId 必须与路径一致，
// 认证通过后把客户文档注入 context，handler 无需二次查库。
// 开发环境（cfg.DevBypass）：路径 clientId 可解析时免令牌放行。
func RequireClient(cfg Config, store storage.ClientStore) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			clientID := r.PathValue("id")

			if cfg.DevBypass && clientID != "" {
				client, err := store.GetClientByClientID(r.Context(), clientID)
				if err == nil && client != nil {
					next(w, r.WithContext(WithClient(r.Context(), client)))
					return
				}
			}

			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Client authentication required", "NO_CLIENT_TOKEN")
				return
			}

			claims, err := ParseToken(cfg, token)
			if err != nil {
				writeError(w, http.StatusForbidden, "Invalid client token", "INVALID_CLIENT_TOKEN")
				return
			}

			if claims.ClientID == "" || claims.ClientID != clientID {
				writeError(w, http.StatusForbidden, "Client access denied", "CLIENT_ACCESS_DENIED")
				return
			}

			client, err := store.GetClientByClientID(r.Context(), claims.ClientID)
			if err != nil {
				log.Printf("[auth.RequireClient] lookup %s error: %v", claims.ClientID, err)
				writeError(w, http.StatusInternalServerError, "Authentication error", "AUTH_ERROR")
				return
			}
			if client == nil {
				writeError(w, http.StatusForbidden, "Client access denied", "CLIENT_ACCESS_DENIED")
				return
			}

			next(w, r.WithContext(WithClient(r.Context(), client)))
		}
	}
}
