package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/storage/memstore"
)

func seedClient(t *testing.T, store *memstore.Store) *model.Client {
	t.Helper()
	now := time.Now()
	client := &model.Client{
		ID:        model.NewInternalID("clt"),
		ClientID:  model.NewClientID(),
		Name:      "Test Client",
		Email:     "client@example.com",
		Status:    model.ClientStatusActive,
		Plan:      model.PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateClient(context.Background(), client))
	return client
}

func TestRequireAdmin(t *testing.T) {
	cfg := testConfig()
	admin := &model.Admin{ID: "adm-1", Username: "root", Permissions: model.DefaultAdminPermissions()}
	token, err := GenerateAdminToken(cfg, admin)
	require.NoError(t, err)

	var gotClaims *Claims
	handler := RequireAdmin(cfg)(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = AdminFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/clients", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotClaims)
		assert.Equal(t, "admin", gotClaims.Role)
	})

	t.Run("cookie token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/clients", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token on API route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/message", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "NO_ADMIN_TOKEN")
	})

	t.Run("missing token on page redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/auth/admin-login", rec.Header().Get("Location"))
	})

	t.Run("client token rejected", func(t *testing.T) {
		clientToken, err := GenerateClientToken(cfg, &model.Client{ID: "clt-1", ClientID: "CLT-1-A"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodDelete, "/admin/clients/CLT-1-A", nil)
		req.Header.Set("Authorization", "Bearer "+clientToken)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_ADMIN_TOKEN")
	})
}

func TestRequireClient(t *testing.T) {
	cfg := testConfig()
	store := memstore.NewStore()
	client := seedClient(t, store)
	token, err := GenerateClientToken(cfg, client)
	require.NoError(t, err)

	var gotClient *model.Client
	next := func(w http.ResponseWriter, r *http.Request) {
		gotClient = ClientFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}
	handler := RequireClient(cfg, store)(next)

	newReq := func(clientID, bearer string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/client/"+clientID+"/profile", nil)
		req.SetPathValue("id", clientID)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return req
	}

	t.Run("valid token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, newReq(client.ClientID, token))
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotClient)
		assert.Equal(t, client.ClientID, gotClient.ClientID)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, newReq(client.ClientID, ""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "NO_CLIENT_TOKEN")
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, newReq(client.ClientID, "not-a-jwt"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_CLIENT_TOKEN")
	})

	t.Run("token for another client", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, newReq("CLT-999-XXXXXX", token))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "CLIENT_ACCESS_DENIED")
	})

	t.Run("dev bypass", func(t *testing.T) {
		devCfg := cfg
		devCfg.DevBypass = true
		devHandler := RequireClient(devCfg, store)(next)

		rec := httptest.NewRecorder()
		devHandler(rec, newReq(client.ClientID, ""))
		assert.Equal(t, http.StatusOK, rec.Code)

		// 未知 clientId 仍要求令牌
		rec = httptest.NewRecorder()
		devHandler(rec, newReq("CLT-0-NOPE", ""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
