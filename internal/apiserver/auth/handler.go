package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"clients-admin/internal/apiserver/metrics"
	"clients-admin/internal/apiserver/validate"
	"clients-admin/internal/shared/mailer"
	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/storage"
)

// resetTokenTTL 密码重置令牌有效期
const resetTokenTTL = 10 * time.Minute

// Middleware handler 级中间件（限流等由 server 注入）
type Middleware func(http.HandlerFunc) http.HandlerFunc

// Handler 认证相关 HTTP 处理器
type Handler struct {
	store   storage.Store
	cfg     Config
	mail    mailer.Mailer
	m       *metrics.Metrics
	baseURL string     // 拼接验证/重置链接
	limit   Middleware // 认证类接口限流
}

// NewHandler 创建认证处理器
func NewHandler(store storage.Store, cfg Config, mail mailer.Mailer, m *metrics.Metrics,
	baseURL string, limit Middleware) *Handler {
	if limit == nil {
		limit = func(next http.HandlerFunc) http.HandlerFunc { return next }
	}
	return &Handler{store: store, cfg: cfg, mail: mail, m: m, baseURL: baseURL, limit: limit}
}

// RegisterRoutes 注册认证路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/client/register", h.limit(h.handleClientRegister))
	mux.HandleFunc("POST /auth/client/login", h.limit(h.handleClientLogin))
	mux.HandleFunc("POST /auth/admin/login", h.limit(h.handleAdminLogin))
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/verify", h.handleVerify)
	mux.HandleFunc("GET /auth/verify-email/{token}", h.handleVerifyEmail)
	mux.HandleFunc("POST /auth/forgot-password", h.limit(h.handleForgotPassword))
	mux.HandleFunc("POST /auth/reset-password/{token}", h.limit(h.handleResetPassword))
}

// ============================================================================
// 客户注册 / 登录
// ============================================================================

// handleClientRegister POST /auth/client/register
func (h *Handler) handleClientRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	name := errs.Name("name", req.Name)
	email := errs.Email("email", req.Email)
	errs.StrongPassword("password", req.Password)
	errs.PasswordsMatch("confirmPassword", req.Password, req.ConfirmPassword)
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	existing, err := h.store.GetClientByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[auth.handleClientRegister] lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed", "REGISTRATION_ERROR")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "Client with this email already exists", "CLIENT_EXISTS")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		log.Printf("[auth.handleClientRegister] hash error: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed", "REGISTRATION_ERROR")
		return
	}

	now := time.Now()
	client := &model.Client{
		ID:       model.NewInternalID("clt"),
		ClientID: model.NewClientID(),
		Name:     name,
		Email:    email,
		Status:   model.ClientStatusActive,
		Plan:     model.PlanFree,
		Credentials: []model.Credential{
			{
				Platform:         model.PlatformAccount,
				Username:         email,
				Password:         hash,
				IsActive:         true,
				ConnectionStatus: model.ConnectionConnected,
			},
		},
		Campaigns:     []model.Campaign{},
		UploadedFiles: []model.UploadedFile{},
		ActivityLogs:  []model.ActivityLog{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.store.CreateClient(r.Context(), client); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Client with this email already exists", "CLIENT_EXISTS")
			return
		}
		log.Printf("[auth.handleClientRegister] create error: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed", "REGISTRATION_ERROR")
		return
	}

	token, err := GenerateClientToken(h.cfg, client)
	if err != nil {
		log.Printf("[auth.handleClientRegister] token error: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed", "REGISTRATION_ERROR")
		return
	}

	h.appendClientLog(r, client.ClientID, model.LogSuccess,
		"Client account created successfully",
		fmt.Sprintf("New client registered with email: %s", email))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Client registered successfully. Please verify your email to activate your account.",
		"data": map[string]interface{}{
			"clientId":        client.ClientID,
			"name":            client.Name,
			"email":           client.Email,
			"status":          client.Status,
			"verificationUrl": fmt.Sprintf("%s/auth/verify-email/%s", h.baseURL, client.ClientID),
			"token":           token,
		},
	})
}

// handleClientLogin POST /auth/client/login
func (h *Handler) handleClientLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	email := errs.Email("email", req.Email)
	errs.NonEmpty("password", req.Password, "Password is required")
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	client, err := h.store.GetClientByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[auth.handleClientLogin] lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed", "LOGIN_ERROR")
		return
	}
	if client == nil {
		h.m.LoginFailures.WithLabelValues("client").Inc()
		writeError(w, http.StatusUnauthorized, "Invalid credentials", "INVALID_CREDENTIALS")
		return
	}

	cred := client.AccountCredential()
	if cred == nil {
		writeError(w, http.StatusUnauthorized, "Account not properly configured", "ACCOUNT_ERROR")
		return
	}
	if !CheckPassword(req.Password, cred.Password) {
		h.m.LoginFailures.WithLabelValues("client").Inc()
		writeError(w, http.StatusUnauthorized, "Invalid credentials", "INVALID_CREDENTIALS")
		return
	}

	// 密码正确后才区分账号状态，避免泄露状态信息
	switch client.Status {
	case model.ClientStatusSuspended:
		writeError(w, http.StatusForbidden, "Account is suspended", "ACCOUNT_SUSPENDED")
		return
	case model.ClientStatusPendingVerification:
		writeError(w, http.StatusForbidden,
			"Account is pending verification. Please verify your email first.", "ACCOUNT_PENDING_VERIFICATION")
		return
	}

	token, err := GenerateClientToken(h.cfg, client)
	if err != nil {
		log.Printf("[auth.handleClientLogin] token error: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed", "LOGIN_ERROR")
		return
	}

	now := time.Now()
	client.LastLogin = &now
	if err := h.store.UpdateClient(r.Context(), client); err != nil {
		log.Printf("[auth.handleClientLogin] update lastLogin error: %v", err)
	}

	h.appendClientLog(r, client.ClientID, model.LogSuccess,
		"Client logged in successfully",
		fmt.Sprintf("Login from IP: %s", r.RemoteAddr))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Login successful",
		"data": map[string]interface{}{
			"clientId": client.ClientID,
			"name":     client.Name,
			"email":    client.Email,
			"status":   client.Status,
			"token":    token,
		},
	})
}

// ============================================================================
// 管理员登录 / 登出
// ============================================================================

// handleAdminLogin POST /auth/admin/login
func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	username := errs.NonEmpty("username", req.Username, "Username is required")
	errs.NonEmpty("password", req.Password, "Password is required")
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	admin, err := h.store.GetAdminByUsername(r.Context(), username)
	if err != nil {
		log.Printf("[auth.handleAdminLogin] lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Admin login failed", "ADMIN_LOGIN_ERROR")
		return
	}
	if admin == nil {
		h.m.LoginFailures.WithLabelValues("admin").Inc()
		writeError(w, http.StatusUnauthorized, "Invalid admin credentials", "INVALID_ADMIN_CREDENTIALS")
		return
	}

	now := time.Now()
	if admin.Locked(now) {
		writeError(w, http.StatusForbidden,
			"Account locked due to too many failed login attempts", "ACCOUNT_LOCKED")
		return
	}

	if !CheckPassword(req.Password, admin.PasswordHash) {
		attempts := admin.LoginAttempts + 1
		var lockUntil *time.Time
		if attempts >= model.AdminMaxLoginAttempts {
			t := now.Add(model.AdminLockDuration)
			lockUntil = &t
			attempts = 0 // 锁定后计数归零，解锁即重新累计
		}
		if err := h.store.UpdateAdminLoginState(r.Context(), admin.ID, attempts, lockUntil); err != nil {
			log.Printf("[auth.handleAdminLogin] update login state error: %v", err)
		}
		h.m.LoginFailures.WithLabelValues("admin").Inc()
		writeError(w, http.StatusUnauthorized, "Invalid admin credentials", "INVALID_ADMIN_CREDENTIALS")
		return
	}

	// 登录成功：清空失败计数与锁定
	if err := h.store.UpdateAdminLoginState(r.Context(), admin.ID, 0, nil); err != nil {
		log.Printf("[auth.handleAdminLogin] reset login state error: %v", err)
	}

	token, err := GenerateAdminToken(h.cfg, admin)
	if err != nil {
		log.Printf("[auth.handleAdminLogin] token error: %v", err)
		writeError(w, http.StatusInternalServerError, "Admin login failed", "ADMIN_LOGIN_ERROR")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.cfg.AdminTokenTTL.Seconds()),
	})

	if err := h.store.AppendAdminActivityLog(r.Context(), admin.ID, model.ActivityLog{
		Type:      model.LogSuccess,
		Message:   "Admin logged in",
		Details:   fmt.Sprintf("Login from IP: %s", r.RemoteAddr),
		Timestamp: now,
		Source:    model.SourceAdmin,
	}); err != nil {
		log.Printf("[auth.handleAdminLogin] append log error: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Admin login successful",
		"data": map[string]interface{}{
			"username":    admin.Username,
			"role":        "admin",
			"token":       token,
			"permissions": admin.Permissions,
		},
	})
}

// handleLogout POST /auth/logout
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

// ============================================================================
// 令牌与邮箱验证
// ============================================================================

// handleVerify GET /auth/verify
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "No token provided", "NO_TOKEN")
		return
	}

	claims, err := ParseToken(h.cfg, token)
	if err != nil {
		writeError(w, http.StatusForbidden, "Invalid token", "INVALID_TOKEN")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"valid": true,
			"user":  claims,
		},
	})
}

// handleVerifyEmail GET /auth/verify-email/{token}
//
// 验证令牌即 clientId：管理员创建的 pending_verification 客户据此激活。
func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	client, err := h.store.GetClientByClientID(r.Context(), token)
	if err != nil {
		log.Printf("[auth.handleVerifyEmail] lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Verification failed", "VERIFICATION_ERROR")
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "Invalid verification token", "INVALID_TOKEN")
		return
	}

	if client.Status != model.ClientStatusPendingVerification {
		writeError(w, http.StatusBadRequest,
			"Account is already verified or has different status", "ALREADY_VERIFIED")
		return
	}

	client.Status = model.ClientStatusActive
	client.EmailVerified = true
	if err := h.store.UpdateClient(r.Context(), client); err != nil {
		log.Printf("[auth.handleVerifyEmail] update error: %v", err)
		writeError(w, http.StatusInternalServerError, "Verification failed", "VERIFICATION_ERROR")
		return
	}

	h.appendClientLog(r, client.ClientID, model.LogSuccess,
		"Email verified successfully",
		fmt.Sprintf("Email verification completed for: %s", client.Email))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Email verified successfully. You can now log in.",
		"data": map[string]interface{}{
			"clientId": client.ClientID,
			"status":   client.Status,
		},
	})
}

// ============================================================================
// 密码重置
// ============================================================================

// handleForgotPassword POST /auth/forgot-password
//
// 无论邮箱是否存在都返回相同的 200 响应，不泄露账号存在性。
func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	const genericMsg = "If an account with that email exists, a password reset link has been sent."

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	client, err := h.store.GetClientByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.handleForgotPassword] lookup error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"An error occurred while sending the password reset email.", "RESET_ERROR")
		return
	}
	if client == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": genericMsg})
		return
	}

	// 生成明文令牌发邮件，库中只存 sha256 哈希
	buf := make([]byte, 32)
	rand.Read(buf)
	resetToken := hex.EncodeToString(buf)
	hashed := sha256.Sum256([]byte(resetToken))

	expires := time.Now().Add(resetTokenTTL)
	client.PasswordResetToken = hex.EncodeToString(hashed[:])
	client.PasswordResetExpires = &expires
	if err := h.store.UpdateClient(r.Context(), client); err != nil {
		log.Printf("[auth.handleForgotPassword] update error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"An error occurred while sending the password reset email.", "RESET_ERROR")
		return
	}

	resetURL := fmt.Sprintf("%s/auth/reset-password/%s", h.baseURL, resetToken)
	if err := h.mail.SendPasswordReset(r.Context(), client.Email, client.Name, resetURL); err != nil {
		log.Printf("[auth.handleForgotPassword] send mail error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"An error occurred while sending the password reset email.", "RESET_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": genericMsg})
}

// handleResetPassword POST /auth/reset-password/{token}
func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	hashed := sha256.Sum256([]byte(r.PathValue("token")))

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	errs.StrongPassword("password", req.Password)
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	client, err := h.store.GetClientByResetToken(r.Context(), hex.EncodeToString(hashed[:]), time.Now())
	if err != nil {
		log.Printf("[auth.handleResetPassword] lookup error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"An error occurred while resetting the password.", "RESET_ERROR")
		return
	}
	if client == nil {
		writeError(w, http.StatusBadRequest,
			"Password reset token is invalid or has expired.", "INVALID_RESET_TOKEN")
		return
	}

	cred := client.AccountCredential()
	if cred == nil {
		writeError(w, http.StatusInternalServerError,
			"Could not find account credentials to update.", "ACCOUNT_ERROR")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		log.Printf("[auth.handleResetPassword] hash error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"An error occurred while resetting the password.", "RESET_ERROR")
		return
	}
	cred.Password = hash
	client.PasswordResetToken = ""
	client.PasswordResetExpires = nil

	if err := h.store.UpdateClient(r.Context(), client); err != nil {
		log.Printf("[auth.handleResetPassword] update error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"An error occurred while resetting the password.", "RESET_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Password has been reset successfully.",
	})
}

// appendClientLog 追加客户审计日志，失败只记日志不影响主流程
// source=system：审计条目不进入客户↔管理员聊天时间线
func (h *Handler) appendClientLog(r *http.Request, clientID string, typ model.LogType, message, details string) {
	entry := model.ActivityLog{
		Type:      typ,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
		Source:    model.SourceSystem,
	}
	if err := h.store.AppendActivityLog(r.Context(), clientID, entry); err != nil {
		log.Printf("[auth] append activity log for %s error: %v", clientID, err)
	}
}
