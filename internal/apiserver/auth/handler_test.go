package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clients-admin/internal/apiserver/metrics"
	"clients-admin/internal/shared/mailer"
	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/storage/memstore"
)

// promauto 只能注册一次，测试共享一个实例
var testMetrics = metrics.NewMetrics("auth_test")

// recordingMailer 记录最后一封重置邮件
type recordingMailer struct {
	to       string
	resetURL string
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	m.to = to
	m.resetURL = resetURL
	return nil
}

var _ mailer.Mailer = (*recordingMailer)(nil)

func testHandler(t *testing.T) (*Handler, *memstore.Store, *recordingMailer) {
	t.Helper()
	store := memstore.NewStore()
	mail := &recordingMailer{}
	h := NewHandler(store, testConfig(), mail, testMetrics, "http://localhost:8080", nil)
	return h, store, mail
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func registerBody(email string) map[string]string {
	return map[string]string{
		"name":            "Alice Smith",
		"email":           email,
		"password":        "Str0ng!pass",
		"confirmPassword": "Str0ng!pass",
	}
}

func TestClientRegisterAndLogin(t *testing.T) {
	h, store, _ := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := postJSON(t, mux, "/auth/client/register", registerBody("alice@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ClientID string `json:"clientId"`
			Status   string `json:"status"`
			Token    string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Regexp(t, `^CLT-\d+-[A-Z0-9]{6}$`, resp.Data.ClientID)
	assert.Equal(t, "active", resp.Data.Status)
	assert.NotEmpty(t, resp.Data.Token)

	// 密码不落明文
	stored, err := store.GetClientByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	cred := stored.AccountCredential()
	require.NotNil(t, cred)
	assert.True(t, model.LooksHashed(cred.Password))
	assert.NotEmpty(t, stored.ActivityLogs)

	// 重复注册
	rec = postJSON(t, mux, "/auth/client/register", registerBody("alice@example.com"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "CLIENT_EXISTS")

	// 登录成功
	rec = postJSON(t, mux, "/auth/client/login", map[string]string{
		"email": "alice@example.com", "password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), resp.Data.ClientID)

	// 密码错误
	rec = postJSON(t, mux, "/auth/client/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")
}

func TestClientRegisterValidation(t *testing.T) {
	h, _, _ := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := postJSON(t, mux, "/auth/client/register", map[string]string{
		"name":            "A",
		"email":           "not-an-email",
		"password":        "weak",
		"confirmPassword": "other",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Code    string `json:"code"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Len(t, resp.Details, 4)
}

func TestClientLoginStatusChecks(t *testing.T) {
	h, store, _ := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	postJSON(t, mux, "/auth/client/register", registerBody("bob@example.com"))

	ctx := context.Background()
	client, err := store.GetClientByEmail(ctx, "bob@example.com")
	require.NoError(t, err)

	client.Status = model.ClientStatusSuspended
	require.NoError(t, store.UpdateClient(ctx, client))
	rec := postJSON(t, mux, "/auth/client/login", map[string]string{
		"email": "bob@example.com", "password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCOUNT_SUSPENDED")

	client.Status = model.ClientStatusPendingVerification
	require.NoError(t, store.UpdateClient(ctx, client))
	rec = postJSON(t, mux, "/auth/client/login", map[string]string{
		"email": "bob@example.com", "password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCOUNT_PENDING_VERIFICATION")
}

func TestAdminLoginLockout(t *testing.T) {
	h, store, _ := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	ctx := context.Background()
	require.NoError(t, EnsureAdmin(ctx, store, "root", "root@example.com", "Adm1n!pass"))

	// 登录成功：返回令牌并设置 Cookie
	rec := postJSON(t, mux, "/auth/admin/login", map[string]string{
		"username": "root", "password": "Adm1n!pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// 连续失败 5 次触发锁定
	for i := 0; i < model.AdminMaxLoginAttempts; i++ {
		rec = postJSON(t, mux, "/auth/admin/login", map[string]string{
			"username": "root", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec = postJSON(t, mux, "/auth/admin/login", map[string]string{
		"username": "root", "password": "Adm1n!pass",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCOUNT_LOCKED")
}

func TestAdminLoginUnknownUser(t *testing.T) {
	h, _, _ := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := postJSON(t, mux, "/auth/admin/login", map[string]string{
		"username": "nobody", "password": "x",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ADMIN_CREDENTIALS")
}

func TestLoginFailureCounter(t *testing.T) {
	h, _, _ := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	postJSON(t, mux, "/auth/client/register", registerBody("dora@example.com"))

	// testMetrics 跨用例共享，只断言增量
	clientBefore := testutil.ToFloat64(testMetrics.LoginFailures.WithLabelValues("client"))
	adminBefore := testutil.ToFloat64(testMetrics.LoginFailures.WithLabelValues("admin"))

	postJSON(t, mux, "/auth/client/login", map[string]string{
		"email": "dora@example.com", "password": "wrong",
	})
	postJSON(t, mux, "/auth/client/login", map[string]string{
		"email": "ghost@example.com", "password": "whatever",
	})
	postJSON(t, mux, "/auth/admin/login", map[string]string{
		"username": "nobody", "password": "x",
	})

	assert.Equal(t, clientBefore+2, testutil.ToFloat64(testMetrics.LoginFailures.WithLabelValues("client")))
	assert.Equal(t, adminBefore+1, testutil.ToFloat64(testMetrics.LoginFailures.WithLabelValues("admin")))
}

func TestVerifyEndpoint(t *testing.T) {
	h, _, _ := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_TOKEN")

	token, err := GenerateClientToken(testConfig(), &model.Client{ID: "clt-1", ClientID: "CLT-1-A"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":true`)
}

func TestVerifyEmailFlow(t *testing.T) {
	h, store, _ := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	ctx := context.Background()
	client := seedClient(t, store)
	client.Status = model.ClientStatusPendingVerification
	require.NoError(t, store.UpdateClient(ctx, client))

	req := httptest.NewRequest(http.MethodGet, "/auth/verify-email/"+client.ClientID, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	verified, err := store.GetClientByClientID(ctx, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, model.ClientStatusActive, verified.Status)
	assert.True(t, verified.EmailVerified)

	// 再次验证 → ALREADY_VERIFIED
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/verify-email/"+client.ClientID, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ALREADY_VERIFIED")

	// 未知令牌
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/verify-email/CLT-0-NOPE", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	h, store, mail := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	postJSON(t, mux, "/auth/client/register", registerBody("carol@example.com"))

	// 未知邮箱也返回 200，不发邮件
	rec := postJSON(t, mux, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, mail.to)

	rec = postJSON(t, mux, "/auth/forgot-password", map[string]string{"email": "carol@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol@example.com", mail.to)
	require.NotEmpty(t, mail.resetURL)

	// 从邮件链接中取出明文令牌
	var token string
	_, err := fmt.Sscanf(mail.resetURL, "http://localhost:8080/auth/reset-password/%s", &token)
	require.NoError(t, err)

	// 库中不存明文令牌
	stored, err := store.GetClientByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, token, stored.PasswordResetToken)
	require.NotNil(t, stored.PasswordResetExpires)

	// 错误令牌被拒绝
	rec = postJSON(t, mux, "/auth/reset-password/deadbeef", map[string]string{"password": "N3w!passwd"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 正确令牌重置密码
	rec = postJSON(t, mux, "/auth/reset-password/"+token, map[string]string{"password": "N3w!passwd"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 旧密码失效、新密码可登录、令牌字段已清除
	rec = postJSON(t, mux, "/auth/client/login", map[string]string{
		"email": "carol@example.com", "password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = postJSON(t, mux, "/auth/client/login", map[string]string{
		"email": "carol@example.com", "password": "N3w!passwd",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	after, err := store.GetClientByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	assert.Empty(t, after.PasswordResetToken)
	assert.Nil(t, after.PasswordResetExpires)

	// 令牌一次性：重放被拒绝
	rec = postJSON(t, mux, "/auth/reset-password/"+token, map[string]string{"password": "An0ther!pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	h, _, _ := testHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := postJSON(t, mux, "/auth/logout", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
