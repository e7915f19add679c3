// Package client 客户端自助接口：资料、凭据、活动、文件、消息
package client

import (
	"encoding/json"
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

// recentLogLimit /logs 接口返回的最大条数
const recentLogLimit = 50

// Handler 客户端 HTTP 处理器
type Handler struct {
	store       storage.Store
	files       objstore.Store
	m           *metrics.Metrics
	auth        auth.Middleware // 客户认证（含开发模式旁路）
	msgLimit    auth.Middleware
	uploadLimit auth.Middleware
}

// NewHandler 创建客户端处理器
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

// RegisterRoutes 注册客户端路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /client/{id}/profile", h.auth(h.handleProfile))
	mux.HandleFunc("POST /client/{id}/config", h.auth(h.handleConfig))
	mux.HandleFunc("POST /client/{id}/credentials", h.auth(h.handleAddCredential))
	mux.HandleFunc("GET /client/{id}/credentials", h.auth(h.handleListCredentials))
	mux.HandleFunc("POST /client/{id}/campaigns", h.auth(h.handleCreateCampaign))
	mux.HandleFunc("GET /client/{id}/campaigns", h.auth(h.handleListCampaigns))
	mux.HandleFunc("PATCH /client/{id}/campaigns/{campaignId}", h.auth(h.handleUpdateCampaign))
	mux.HandleFunc("POST /client/{id}/upload", h.auth(h.uploadLimit(h.handleUpload)))
	mux.HandleFunc("GET /client/{id}/files", h.auth(h.handleListFiles))
	mux.HandleFunc("GET /client/{id}/files/{fileId}/download", h.auth(h.handleDownloadFile))
	mux.HandleFunc("POST /client/{id}/send-message", h.auth(h.msgLimit(h.handleSendMessage)))
	mux.HandleFunc("GET /client/{id}/messages", h.auth(h.handleListMessages))
	mux.HandleFunc("GET /client/{id}/logs", h.auth(h.handleListLogs))
}

// clientFrom 从认证中间件注入的上下文中取出客户文档
func clientFrom(w http.ResponseWriter, r *http.Request) (*model.Client, bool) {
	c := auth.ClientFromContext(r.Context())
	if c == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required", "NO_CLIENT_TOKEN")
		return nil, false
	}
	return c, true
}

// ============================================================================
// 资料与配置
// ============================================================================

// handleProfile GET /client/{id}/profile
func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    c.Redacted(),
	})
}

// handleConfig POST /client/{id}/config
//
// 仅允许更新 name 和 plan，其余字段忽略。
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	if req.Name != "" {
		c.Name = errs.Name("name", req.Name)
	}
	if req.Plan != "" {
		if !model.ValidClientPlan(req.Plan) {
			errs.Add("plan", "Invalid plan selected", req.Plan)
		} else {
			c.Plan = model.ClientPlan(req.Plan)
		}
	}
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	if err := h.store.UpdateClient(r.Context(), c); err != nil {
		log.Printf("[client.handleConfig] update error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update configuration", "SERVER_ERROR")
		return
	}

	h.appendLog(r, c.ClientID, model.LogInfo, "Configuration updated", "")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"name": c.Name,
			"plan": c.Plan,
		},
	})
}

// ============================================================================
// 凭据
// ============================================================================

// handleAddCredential POST /client/{id}/credentials
//
// 同平台已有条目时整条替换；account 平台密码写入前哈希，
// 其余平台按既定约定保留明文（运营方需要读取）。
func (h *Handler) handleAddCredential(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Platform string `json:"platform"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	errs.Platform("platform", req.Platform)
	username := errs.CredentialUsername("username", req.Username)
	errs.CredentialPassword("password", req.Password)
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	platform := model.CredentialPlatform(req.Platform)
	password := req.Password
	if platform == model.PlatformAccount && !model.LooksHashed(password) {
		hash, err := auth.HashPassword(password)
		if err != nil {
			log.Printf("[client.handleAddCredential] hash error: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to save credential", "SERVER_ERROR")
			return
		}
		password = hash
	}

	cred := model.Credential{
		Platform:         platform,
		Username:         username,
		Password:         password,
		IsActive:         true,
		ConnectionStatus: model.ConnectionPending,
	}
	if platform == model.PlatformAccount {
		cred.ConnectionStatus = model.ConnectionConnected
	}

	replaced := false
	for i := range c.Credentials {
		if c.Credentials[i].Platform == platform {
			c.Credentials[i] = cred
			replaced = true
			break
		}
	}
	if !replaced {
		c.Credentials = append(c.Credentials, cred)
	}

	if err := h.store.UpdateClient(r.Context(), c); err != nil {
		log.Printf("[client.handleAddCredential] update error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save credential", "SERVER_ERROR")
		return
	}

	h.appendLog(r, c.ClientID, model.LogInfo, "Credentials updated for "+req.Platform, "")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"platform":          cred.Platform,
			"username":          cred.Username,
			"connection_status": cred.ConnectionStatus,
		},
	})
}

// handleListCredentials GET /client/{id}/credentials
func (h *Handler) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"credentials": c.Redacted().Credentials,
	})
}

// ============================================================================
// 营销活动
// ============================================================================

// campaignTransitions 允许的状态迁移
var campaignTransitions = map[model.CampaignStatus][]model.CampaignStatus{
	model.CampaignDraft:  {model.CampaignActive},
	model.CampaignActive: {model.CampaignPaused, model.CampaignCompleted, model.CampaignFailed},
	model.CampaignPaused: {model.CampaignActive, model.CampaignCompleted, model.CampaignFailed},
}

func transitionAllowed(from, to model.CampaignStatus) bool {
	for _, s := range campaignTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// handleCreateCampaign POST /client/{id}/campaigns
func (h *Handler) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Name           string `json:"name"`
		AutomationType string `json:"automationType"`
		Instructions   string `json:"instructions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	name := errs.CampaignName("name", req.Name)
	errs.AutomationType("automationType", req.AutomationType)
	instructions := errs.Instructions("instructions", req.Instructions)
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	campaign := model.Campaign{
		ID:             model.NewCampaignID(),
		Name:           name,
		AutomationType: model.AutomationType(req.AutomationType),
		Instructions:   instructions,
		Status:         model.CampaignDraft,
		CreatedAt:      time.Now(),
	}
	c.Campaigns = append(c.Campaigns, campaign)

	if err := h.store.UpdateClient(r.Context(), c); err != nil {
		log.Printf("[client.handleCreateCampaign] update error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create campaign", "SERVER_ERROR")
		return
	}

	h.appendLog(r, c.ClientID, model.LogInfo, "Campaign created: "+name, "")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    campaign,
	})
}

// handleListCampaigns GET /client/{id}/campaigns
func (h *Handler) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"campaigns": c.Campaigns,
	})
}

// handleUpdateCampaign PATCH /client/{id}/campaigns/{campaignId}
//
// 状态按迁移表校验：draft→active，active↔paused，
// active/paused→completed/failed，completed/failed 为终态。
func (h *Handler) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}

	campaignID := r.PathValue("campaignId")
	var campaign *model.Campaign
	for i := range c.Campaigns {
		if c.Campaigns[i].ID == campaignID {
			campaign = &c.Campaigns[i]
			break
		}
	}
	if campaign == nil {
		writeError(w, http.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND")
		return
	}

	var req struct {
		Name         *string `json:"name"`
		Instructions *string `json:"instructions"`
		Status       *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	if req.Name != nil {
		campaign.Name = errs.CampaignName("name", *req.Name)
	}
	if req.Instructions != nil {
		campaign.Instructions = errs.Instructions("instructions", *req.Instructions)
	}
	if req.Status != nil {
		if !model.ValidCampaignStatus(*req.Status) {
			errs.Add("status", "Invalid campaign status", *req.Status)
		} else if target := model.CampaignStatus(*req.Status); target != campaign.Status {
			if !transitionAllowed(campaign.Status, target) {
				writeError(w, http.StatusConflict,
					"Campaign cannot move from "+string(campaign.Status)+" to "+string(target),
					"INVALID_STATUS_TRANSITION")
				return
			}
			campaign.Status = target
		}
	}
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	if err := h.store.UpdateClient(r.Context(), c); err != nil {
		log.Printf("[client.handleUpdateCampaign] update error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update campaign", "SERVER_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    campaign,
	})
}

// ============================================================================
// 消息与日志
// ============================================================================

// handleSendMessage POST /client/{id}/send-message
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return
	}

	var errs validate.Errors
	message := errs.Message("message", req.Message)
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	entry := model.ActivityLog{
		Type:      model.LogInfo,
		Message:   message,
		Timestamp: time.Now(),
		Source:    model.SourceClient,
	}
	if err := h.store.AppendActivityLog(r.Context(), c.ClientID, entry); err != nil {
		log.Printf("[client.handleSendMessage] append error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to send message", "SERVER_ERROR")
		return
	}
	h.m.MessagesSent.WithLabelValues("client").Inc()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Message sent successfully",
	})
}

// chatMessage 聊天时间线条目
type chatMessage struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// handleListMessages GET /client/{id}/messages
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}

	msgs := []chatMessage{}
	for _, entry := range c.ActivityLogs {
		if entry.Source != model.SourceAdmin && entry.Source != model.SourceClient {
			continue
		}
		msgs = append(msgs, chatMessage{
			From:      string(entry.Source),
			Message:   entry.Message,
			Timestamp: entry.Timestamp.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": msgs,
	})
}

// handleListLogs GET /client/{id}/logs
//
// 返回最近 50 条，新的在前。
func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}

	logs := c.ActivityLogs
	if len(logs) > recentLogLimit {
		logs = logs[len(logs)-recentLogLimit:]
	}

	// 倒序拷贝
	out := make([]model.ActivityLog, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		out = append(out, logs[i])
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"logs":    out,
		"total":   len(out),
	})
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
		log.Printf("[client] append activity log for %s error: %v", clientID, err)
	}
}
