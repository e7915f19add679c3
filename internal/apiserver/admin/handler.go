// Package admin 管理端 HTTP 接口：客户管理、消息、文件分发、统计
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"clients-admin/internal/apiserver/auth"
	"clients-admin/internal/apiserver/metrics"
	"clients-admin/internal/apiserver/validate"
	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/objstore"
	"clients-admin/internal/shared/storage"
)

// Handler 管理端 HTTP 处理器
type Handler struct {
	store       storage.Store
	files       objstore.Store
	m           *metrics.Metrics
	auth        auth.Middleware // 管理员认证
	msgLimit    auth.Middleware // 消息类接口限流
	uploadLimit auth.Middleware // 上传类接口限流
}

// NewHandler 创建管理端处理器
func NewHandler(store storage.Store, files objstore.Store, m *metrics.Metrics,
	authMW, msgLimit, uploadLimit auth.Middleware) *Handler {
	return &Handler{
		store:       store,
		files:       files,
		m:           m,
		auth:        orIdentity(authMW),
		msgLimit:    orIdentity(msgLimit),
		uploadLimit: orIdentity(uploadLimit),
	}
}

func orIdentity(mw auth.Middleware) auth.Middleware {
	if mw == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}
	return mw
}

// RegisterRoutes 注册管理端路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/clients", h.auth(h.handleListClients))
	mux.HandleFunc("POST /admin/clients", h.auth(h.handleCreateClient))
	mux.HandleFunc("GET /admin/clients/{clientId}", h.auth(h.handleGetClient))
	mux.HandleFunc("PATCH /admin/clients/{clientId}/status", h.auth(h.handleUpdateStatus))
	mux.HandleFunc("DELETE /admin/clients/{clientId}", h.auth(h.handleDeleteClient))
	mux.HandleFunc("POST /admin/message", h.auth(h.msgLimit(h.handleSendMessage)))
	mux.HandleFunc("GET /admin/messages/{clientId}", h.auth(h.handleListMessages))
	mux.HandleFunc("POST /admin/send-file", h.auth(h.uploadLimit(h.handleSendFile)))
	mux.HandleFunc("GET /admin/download-file/{fileId}", h.auth(h.handleDownloadFile))
	mux.HandleFunc("GET /admin/view-file/{fileId}", h.auth(h.handleViewFile))
	mux.HandleFunc("GET /admin/stats", h.auth(h.handleStats))
}

// ============================================================================
// 客户管理
// ============================================================================

// clientSummary 列表页投影
type clientSummary struct {
	ClientID  string             `json:"clientId"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Status    model.ClientStatus `json:"status"`
	Plan      model.ClientPlan   `json:"plan"`
	Files     int                `json:"files"`
	Campaigns int                `json:"campaigns"`
	CreatedAt time.Time          `json:"createdAt"`
	LastLogin *time.Time         `json:"lastLogin,omitempty"`
}

// handleListClients GET /admin/clients?search=&status=
func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	status := r.URL.Query().Get("status")
	if status != "" && !model.ValidClientStatus(status) {
		var errs validate.Errors
		errs.Add("status", "Invalid status filter", status)
		writeValidationErrors(w, errs)
		return
	}

	clients, err := h.store.ListClients(r.Context(), search, status)
	if err != nil {
		log.Printf("[admin.handleListClients] list error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list clients", "SERVER_ERROR")
		return
	}

	summaries := make([]clientSummary, 0, len(clients))
	for _, c := range clients {
		summaries = append(summaries, clientSummary{
			ClientID:  c.ClientID,
			Name:      c.Name,
			Email:     c.Email,
			Status:    c.Status,
			Plan:      c.Plan,
			Files:     len(c.UploadedFiles),
			Campaigns: len(c.Campaigns),
			CreatedAt: c.CreatedAt,
			LastLogin: c.LastLogin,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"clients": summaries,
		"total":   len(summaries),
	})
}

// handleGetClient GET /admin/clients/{clientId}
func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, ok := h.lookupClient(w, r, r.PathValue("clientId"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    client.Redacted(),
	})
}

// handleCreateClient POST /admin/clients
//
// 管理员代建的账号以 pending_verification 状态创建，
// 客户通过验证链接激活后方可登录。
func (h *Handler) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Plan     string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	name := errs.Name("name", req.Name)
	email := errs.Email("email", req.Email)
	errs.StrongPassword("password", req.Password)
	plan := req.Plan
	if plan == "" {
		plan = string(model.PlanBasic)
	}
	if !model.ValidClientPlan(plan) {
		errs.Add("plan", "Invalid plan selected", req.Plan)
	}
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("[admin.handleCreateClient] hash error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create client", "SERVER_ERROR")
		return
	}

	now := time.Now()
	client := &model.Client{
		ID:       model.NewInternalID("clt"),
		ClientID: model.NewClientID(),
		Name:     name,
		Email:    email,
		Status:   model.ClientStatusPendingVerification,
		Plan:     model.ClientPlan(plan),
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
		log.Printf("[admin.handleCreateClient] create error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create client", "SERVER_ERROR")
		return
	}

	h.appendLog(r, client.ClientID, model.LogInfo,
		"Client account created by admin",
		fmt.Sprintf("Account created for %s, pending email verification", email))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"clientId": client.ClientID,
			"name":     client.Name,
			"email":    client.Email,
			"status":   client.Status,
			"plan":     client.Plan,
		},
	})
}

// statusChangeable 管理员可设置的目标状态
var statusChangeable = map[model.ClientStatus]bool{
	model.ClientStatusActive:    true,
	model.ClientStatusInactive:  true,
	model.ClientStatusSuspended: true,
}

// handleUpdateStatus PATCH /admin/clients/{clientId}/status
func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	target := model.ClientStatus(req.Status)
	if !statusChangeable[target] {
		var errs validate.Errors
		errs.Add("status", "Status must be one of: active, inactive, suspended", req.Status)
		writeValidationErrors(w, errs)
		return
	}

	client, ok := h.lookupClient(w, r, r.PathValue("clientId"))
	if !ok {
		return
	}

	previous := client.Status
	client.Status = target
	if err := h.store.UpdateClient(r.Context(), client); err != nil {
		log.Printf("[admin.handleUpdateStatus] update error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update status", "SERVER_ERROR")
		return
	}

	logType := model.LogInfo
	if target == model.ClientStatusSuspended {
		logType = model.LogWarning
	}
	h.appendLog(r, client.ClientID, logType,
		fmt.Sprintf("Account status changed to %s", target),
		fmt.Sprintf("Status changed by admin: %s -> %s", previous, target))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"clientId": client.ClientID,
			"status":   client.Status,
		},
	})
}

// handleDeleteClient DELETE /admin/clients/{clientId}
//
// 级联删除：先按客户前缀清空对象存储（包含文档中没有记录的孤儿对象），
// 再删除文档。
func (h *Handler) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	client, ok := h.lookupClient(w, r, r.PathValue("clientId"))
	if !ok {
		return
	}

	filesRemoved := len(client.UploadedFiles)
	if err := h.files.DeletePrefix(r.Context(), client.ClientID+"/"); err != nil {
		log.Printf("[admin.handleDeleteClient] delete objects for %s error: %v", client.ClientID, err)
	}

	if err := h.store.DeleteClient(r.Context(), client.ClientID); err != nil {
		log.Printf("[admin.handleDeleteClient] delete error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete client", "SERVER_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Client deleted successfully",
		"deletedData": map[string]interface{}{
			"clientId":     client.ClientID,
			"name":         client.Name,
			"email":        client.Email,
			"filesRemoved": filesRemoved,
		},
	})
}

// ============================================================================
// 消息
// ============================================================================

// handleSendMessage POST /admin/message
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"clientId"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	clientID := errs.NonEmpty("clientId", req.ClientID, "Client ID is required")
	message := errs.Message("message", req.Message)
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	client, ok := h.lookupClient(w, r, clientID)
	if !ok {
		return
	}

	entry := model.ActivityLog{
		Type:      model.LogInfo,
		Message:   message,
		Timestamp: time.Now(),
		Source:    model.SourceAdmin,
	}
	if err := h.store.AppendActivityLog(r.Context(), client.ClientID, entry); err != nil {
		log.Printf("[admin.handleSendMessage] append error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to send message", "SERVER_ERROR")
		return
	}
	h.m.MessagesSent.WithLabelValues("admin").Inc()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Message sent successfully",
	})
}

// chatMessage 聊天时间线条目（admin/client 双方的日志消息）
type chatMessage struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// chatMessages 从活动日志中抽取双向消息，时间正序
func chatMessages(logs []model.ActivityLog) []chatMessage {
	msgs := []chatMessage{}
	for _, entry := range logs {
		if entry.Source != model.SourceAdmin && entry.Source != model.SourceClient {
			continue
		}
		msgs = append(msgs, chatMessage{
			From:      string(entry.Source),
			Message:   entry.Message,
			Timestamp: entry.Timestamp.Format(time.RFC3339),
		})
	}
	return msgs
}

// handleListMessages GET /admin/messages/{clientId}
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	client, ok := h.lookupClient(w, r, r.PathValue("clientId"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": chatMessages(client.ActivityLogs),
	})
}

// ============================================================================
// 统计
// ============================================================================

// handleStats GET /admin/stats
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		log.Printf("[admin.handleStats] stats error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute stats", "SERVER_ERROR")
		return
	}

	// 顺带刷新客户状态 Gauge
	for status, count := range stats.ClientsByStatus {
		h.m.ClientsTotal.WithLabelValues(status).Set(float64(count))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stats,
	})
}

// ============================================================================
// 辅助
// ============================================================================

// lookupClient 按 clientId 查找，不存在时写出 404
func (h *Handler) lookupClient(w http.ResponseWriter, r *http.Request, clientID string) (*model.Client, bool) {
	client, err := h.store.GetClientByClientID(r.Context(), clientID)
	if err != nil {
		log.Printf("[admin.lookupClient] %s error: %v", clientID, err)
		writeError(w, http.StatusInternalServerError, "Failed to load client", "SERVER_ERROR")
		return nil, false
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "Client not found", "CLIENT_NOT_FOUND")
		return nil, false
	}
	return client, true
}

// appendLog 追加审计日志，失败只记日志
// source=system：审计条目不进入客户↔管理员聊天时间线
func (h *Handler) appendLog(r *http.Request, clientID string, typ model.LogType, message, details string) {
	entry := model.ActivityLog{
		Type:      typ,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
		Source:    model.SourceSystem,
	}
	if err := h.store.AppendActivityLog(r.Context(), clientID, entry); err != nil {
		log.Printf("[admin] append activity log for %s error: %v", clientID, err)
	}
}
