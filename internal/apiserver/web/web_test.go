package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/storage"
	"clients-admin/internal/shared/storage/memstore"
)

func newTestHandler(t *testing.T, store storage.Store) *Handler {
	t.Helper()
	h, err := NewHandler(store, nil)
	require.NoError(t, err)
	return h
}

func get(h *Handler, path string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStaticPages(t *testing.T) {
	h := newTestHandler(t, memstore.NewStore())

	paths := map[string]string{
		"/":                      "Marketing Automation Portal",
		"/auth/client-login":     "Client Login",
		"/auth/client-register":  "Client Registration",
		"/auth/admin-login":      "Admin Login",
		"/auth/forgot-password":  "Forgot Password",
		"/auth/reset-password/x": "Reset Password",
	}
	for path, want := range paths {
		rec := get(h, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), want, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	}
}

func TestResetPasswordTokenEscaped(t *testing.T) {
	h := newTestHandler(t, memstore.NewStore())

	rec := get(h, "/auth/reset-password/%22%3E%3Cscript%3Ealert(1)%3C%2Fscript%3E")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>alert(1)</script>")
}

func TestAdminDashboard(t *testing.T) {
	store := memstore.NewStore()
	now := time.Now()
	require.NoError(t, store.CreateClient(context.Background(), &model.Client{
		ID:        model.NewInternalID("clt"),
		ClientID:  model.NewClientID(),
		Name:      "Acme Corp",
		Email:     "ops@acme.test",
		Status:    model.ClientStatusActive,
		Plan:      model.PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	h := newTestHandler(t, store)

	rec := get(h, "/admin")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Acme Corp")
	assert.Contains(t, body, "ops@acme.test")
	assert.NotContains(t, body, "temporarily unavailable")
}

// failingStore 聚合查询失败的存储替身
type failingStore struct {
	storage.Store
}

func (f *failingStore) Stats(ctx context.Context) (*storage.Stats, error) {
	return nil, errors.New("connection refused")
}

func TestAdminDashboardPlaceholderOnDBError(t *testing.T) {
	h := newTestHandler(t, &failingStore{Store: memstore.NewStore()})

	rec := get(h, "/admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "temporarily unavailable")
}

func TestClientDashboard(t *testing.T) {
	store := memstore.NewStore()
	now := time.Now()
	c := &model.Client{
		ID:        model.NewInternalID("clt"),
		ClientID:  model.NewClientID(),
		Name:      "Acme Corp",
		Email:     "ops@acme.test",
		Status:    model.ClientStatusActive,
		Plan:      model.PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateClient(context.Background(), c))
	h := newTestHandler(t, store)

	rec := get(h, "/client/"+c.ClientID)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Acme Corp")
	assert.Contains(t, body, c.ClientID)

	// 未知 id 也渲染外壳页，数据由脚本按令牌拉取
	rec = get(h, "/client/CLT-0-MISSING")
	require.Equal(t, http.StatusOK, rec.Code)
}
