// Package auth 认证：JWT 令牌管理、密码哈希、HTTP 中间件与认证接口
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/storage"
)

// CookieName 管理端 http-only Cookie 名称
const CookieName = "admin_token"

// contextKey context 键类型
type contextKey string

const (
	ctxKeyClient contextKey = "auth_client"
	ctxKeyAdmin  contextKey = "auth_admin"
)

// Config 认证配置
type Config struct {
	JWTSecret      string
	ClientTokenTTL time.Duration // 客户令牌有效期
	AdminTokenTTL  time.Duration // 管理员令牌有效期
	CookieSecure   bool          // 生产环境 Cookie 仅走 HTTPS
	DevBypass      bool          // 开发环境：路径中的 clientId 可解析时免令牌
}

// DefaultConfig 返回默认认证配置
func DefaultConfig() Config {
	return Config{
		ClientTokenTTL: 7 * 24 * time.Hour,
		AdminTokenTTL:  8 * time.Hour,
	}
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

// CheckPassword 验证密码
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ============================================================================
// JWT Token
// ============================================================================

// Claims JWT 声明
type Claims struct {
	jwt.RegisteredClaims
	ClientID    string   `json:"client_id,omitempty"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"` // "admin" | "client"
	Permissions []string `json:"permissions,omitempty"`
}

// GenerateClientToken 生成客户访问令牌
func GenerateClientToken(cfg Config, c *model.Client) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.ClientTokenTTL)),
		},
		ClientID: c.ClientID,
		Email:    c.Email,
		Role:     "client",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// GenerateAdminToken 生成管理员访问令牌
func GenerateAdminToken(cfg Config, a *model.Admin) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.AdminTokenTTL)),
		},
		Email:       a.Email,
		Role:        "admin",
		Permissions: a.Permissions,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken 解析并验证 JWT
func ParseToken(cfg Config, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithClient 将已认证的客户文档注入 context
func WithClient(ctx context.Context, c *model.Client) context.Context {
	return context.WithValue(ctx, ctxKeyClient, c)
}

// ClientFromContext 获取已认证的客户文档
func ClientFromContext(ctx context.Context) *model.Client {
	c, _ := ctx.Value(ctxKeyClient).(*model.Client)
	return c
}

// WithAdmin 将管理员声明注入 context
func WithAdmin(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyAdmin, claims)
}

// AdminFromContext 获取管理员声明
func AdminFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ctxKeyAdmin).(*Claims)
	return claims
}

// ============================================================================
// 管理员播种
// ============================================================================

// EnsureAdmin 确保管理员账号存在（启动时调用）
//
// 账号已存在时不做任何修改，密码变更需通过重新播种空库完成。
func EnsureAdmin(ctx context.Context, store storage.AdminStore, username, email, password string) error {
	if username == "" || password == "" {
		log.Printf("[auth.EnsureAdmin] admin credentials not configured, skipping seed")
		return nil
	}

	existing, err := store.GetAdminByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("lookup admin: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now()
	admin := &model.Admin{
		ID:           model.NewInternalID("adm"),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         model.AdminRoleSuper,
		Permissions:  model.DefaultAdminPermissions(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil // 并发启动时另一实例已创建
		}
		return fmt.Errorf("create admin: %w", err)
	}
	log.Printf("[auth.EnsureAdmin] seeded admin user: %s", username)
	return nil
}
