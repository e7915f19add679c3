// Package model 定义核心数据模型
//
// client.go 包含客户（租户）相关的数据模型定义：
//   - Client：客户文档（每个租户一条）
//   - Credential：平台登录凭据（内嵌子文档）
//   - Campaign：营销活动配置（内嵌子文档）
//   - UploadedFile：文件附件记录（内嵌子文档）
//   - ActivityLog：活动日志条目（内嵌子文档，只追加）
package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// ClientStatus - 客户状态
// ============================================================================

// ClientStatus 客户状态
type ClientStatus string

const (
	// ClientStatusActive 正常可用
	ClientStatusActive ClientStatus = "active"

	// ClientStatusInactive 已停用
	ClientStatusInactive ClientStatus = "inactive"

	// ClientStatusSuspended 已封禁
	ClientStatusSuspended ClientStatus = "suspended"

	// ClientStatusPendingVerification 等待邮箱验证
	ClientStatusPendingVerification ClientStatus = "pending_verification"
)

// ValidClientStatus 判断状态值是否合法
func ValidClientStatus(s string) bool {
	switch ClientStatus(s) {
	case ClientStatusActive, ClientStatusInactive, ClientStatusSuspended, ClientStatusPendingVerification:
		return true
	}
	return false
}

// ClientPlan 订阅套餐
type ClientPlan string

const (
	PlanFree       ClientPlan = "free"
	PlanBasic      ClientPlan = "basic"
	PlanPremium    ClientPlan = "premium"
	PlanEnterprise ClientPlan = "enterprise"
)

// ValidClientPlan 判断套餐值是否合法
func ValidClientPlan(p string) bool {
	switch ClientPlan(p) {
	case PlanFree, PlanBasic, PlanPremium, PlanEnterprise:
		return true
	}
	return false
}

// ============================================================================
// Credential - 平台登录凭据
// ============================================================================

// CredentialPlatform 凭据所属平台
//
// PlatformAccount 是客户自己的登录账号，密码以 bcrypt 哈希存储；
// 其余平台是共享给运营方的自动化凭据，按既定约定以明文存储。
type CredentialPlatform string

const (
	PlatformAccount   CredentialPlatform = "account"
	PlatformLinkedIn  CredentialPlatform = "linkedin"
	PlatformTwitter   CredentialPlatform = "twitter"
	PlatformEmail     CredentialPlatform = "email"
	PlatformFacebook  CredentialPlatform = "facebook"
	PlatformInstagram CredentialPlatform = "instagram"
)

// ValidCredentialPlatform 判断平台值是否合法
func ValidCredentialPlatform(p string) bool {
	switch CredentialPlatform(p) {
	case PlatformAccount, PlatformLinkedIn, PlatformTwitter, PlatformEmail, PlatformFacebook, PlatformInstagram:
		return true
	}
	return false
}

// ConnectionStatus 凭据连接状态
type ConnectionStatus string

const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionFailed    ConnectionStatus = "failed"
	ConnectionExpired   ConnectionStatus = "expired"
)

// Credential 平台登录凭据
type Credential struct {
	Platform         CredentialPlatform `json:"platform" bson:"platform"`
	Username         string             `json:"username" bson:"username"`
	Password         string             `json:"password,omitempty" bson:"password"` // account 平台写入前必须哈希
	IsActive         bool               `json:"is_active" bson:"is_active"`
	ConnectionStatus ConnectionStatus   `json:"connection_status" bson:"connection_status"`
	LastTested       *time.Time         `json:"last_tested,omitempty" bson:"last_tested,omitempty"`
}

// LooksHashed 判断密码值是否已经是 bcrypt 哈希
// 写入路径据此决定是否需要重新哈希（等价于原系统的 pre-save 钩子）
func LooksHashed(password string) bool {
	return strings.HasPrefix(password, "$2a$") ||
		strings.HasPrefix(password, "$2b$") ||
		strings.HasPrefix(password, "$2y$")
}

// ============================================================================
// Campaign - 营销活动
// ============================================================================

// AutomationType 活动自动化类型
type AutomationType string

const (
	AutomationEnrichment AutomationType = "enrichment"
	AutomationOutreach   AutomationType = "outreach"
	AutomationScraping   AutomationType = "scraping"
)

// ValidAutomationType 判断自动化类型是否合法
func ValidAutomationType(t string) bool {
	switch AutomationType(t) {
	case AutomationEnrichment, AutomationOutreach, AutomationScraping:
		return true
	}
	return false
}

// CampaignStatus 活动状态
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// ValidCampaignStatus 判断活动状态是否合法
func ValidCampaignStatus(s string) bool {
	switch CampaignStatus(s) {
	case CampaignDraft, CampaignActive, CampaignPaused, CampaignCompleted, CampaignFailed:
		return true
	}
	return false
}

// Campaign 营销活动配置
type Campaign struct {
	ID              string                 `json:"id" bson:"id"`
	Name            string                 `json:"name" bson:"name"`
	AutomationType  AutomationType         `json:"automation_type" bson:"automation_type"`
	Instructions    string                 `json:"instructions,omitempty" bson:"instructions,omitempty"`
	Status          CampaignStatus         `json:"status" bson:"status"`
	CreatedAt       time.Time              `json:"created_at" bson:"created_at"`
	LastRun         *time.Time             `json:"last_run,omitempty" bson:"last_run,omitempty"`
	PerformanceData map[string]interface{} `json:"performance_data,omitempty" bson:"performance_data,omitempty"`
}

// ============================================================================
// UploadedFile - 文件附件记录
// ============================================================================

// FileStatus 文件状态
type FileStatus string

const (
	FileUploaded   FileStatus = "uploaded"
	FileProcessing FileStatus = "processing"
	FileProcessed  FileStatus = "processed"
	FileFailed     FileStatus = "failed"
	FileAdminSent  FileStatus = "admin_sent"
)

// FileCategory 文件分类
type FileCategory string

const (
	CategoryDocument    FileCategory = "document"
	CategoryTemplate    FileCategory = "template"
	CategoryReport      FileCategory = "report"
	CategoryInstruction FileCategory = "instruction"
	CategoryData        FileCategory = "data"
	CategoryOther       FileCategory = "other"
)

// ValidFileCategory 判断文件分类是否合法
func ValidFileCategory(c string) bool {
	switch FileCategory(c) {
	case CategoryDocument, CategoryTemplate, CategoryReport, CategoryInstruction, CategoryData, CategoryOther:
		return true
	}
	return false
}

// StorageBackend 文件落盘位置
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageMinIO StorageBackend = "minio"
)

// LogSource 活动来源
type LogSource string

const (
	SourceClient LogSource = "client"
	SourceAdmin  LogSource = "admin"
	SourceSystem LogSource = "system"
)

// UploadedFile 文件附件记录
type UploadedFile struct {
	ID             string         `json:"id" bson:"id"`
	FileName       string         `json:"file_name" bson:"file_name"` // 存储键（对象名或本地文件名）
	OriginalName   string         `json:"original_name" bson:"original_name"`
	FileSize       int64          `json:"file_size" bson:"file_size"`
	FileType       string         `json:"file_type" bson:"file_type"`
	UploadDate     time.Time      `json:"upload_date" bson:"upload_date"`
	Status         FileStatus     `json:"status" bson:"status"`
	Category       FileCategory   `json:"category" bson:"category"`
	AdminMessage   string         `json:"admin_message,omitempty" bson:"admin_message,omitempty"`
	Source         LogSource      `json:"source" bson:"source"`
	StorageBackend StorageBackend `json:"storage_backend" bson:"storage_backend"`
	LocalPath      string         `json:"-" bson:"local_path,omitempty"` // 仅本地存储使用，不对外暴露
	ProcessedRows  int            `json:"processed_rows" bson:"processed_rows"`
	ValidRows      int            `json:"valid_rows" bson:"valid_rows"`
	DownloadCount  int            `json:"download_count" bson:"download_count"`
	LastAccessed   *time.Time     `json:"last_accessed,omitempty" bson:"last_accessed,omitempty"`
}

// ============================================================================
// ActivityLog - 活动日志（兼作客户↔管理员消息时间线）
// ============================================================================

// LogType 日志级别
type LogType string

const (
	LogInfo    LogType = "info"
	LogSuccess LogType = "success"
	LogWarning LogType = "warning"
	LogError   LogType = "error"
)

// ValidLogType 判断日志级别是否合法
func ValidLogType(t string) bool {
	switch LogType(t) {
	case LogInfo, LogSuccess, LogWarning, LogError:
		return true
	}
	return false
}

// LogFileInfo 日志条目附带的文件信息（管理员发送文件时写入）
type LogFileInfo struct {
	FileName     string `json:"file_name,omitempty" bson:"file_name,omitempty"`
	OriginalName string `json:"original_name,omitempty" bson:"original_name,omitempty"`
	Category     string `json:"category,omitempty" bson:"category,omitempty"`
}

// ActivityLog 活动日志条目
//
// 日志列表只追加，不修改：source=admin/client 的条目同时充当聊天消息，
// source=system 的条目是纯审计记录。
type ActivityLog struct {
	Type      LogType      `json:"type" bson:"type"`
	Message   string       `json:"message" bson:"message"`
	Details   string       `json:"details,omitempty" bson:"details,omitempty"`
	Timestamp time.Time    `json:"timestamp" bson:"timestamp"`
	Source    LogSource    `json:"source" bson:"source"`
	FileInfo  *LogFileInfo `json:"file_info,omitempty" bson:"file_info,omitempty"`
}

// ============================================================================
// Client - 客户文档
// ============================================================================

// Client 客户（租户）文档
//
// _id 是内部主键；ClientID 是对外可见的业务标识，二者独立。
// 凭据、活动、文件、日志全部以内嵌数组形式归属于客户文档。
type Client struct {
	ID       string       `json:"id" bson:"_id"`
	ClientID string       `json:"client_id" bson:"client_id"`
	Name     string       `json:"name" bson:"name"`
	Email    string       `json:"email" bson:"email"`
	Status   ClientStatus `json:"status" bson:"status"`
	Plan     ClientPlan   `json:"plan" bson:"plan"`

	Credentials   []Credential   `json:"credentials" bson:"credentials"`
	Campaigns     []Campaign     `json:"campaigns" bson:"campaigns"`
	UploadedFiles []UploadedFile `json:"uploaded_files" bson:"uploaded_files"`
	ActivityLogs  []ActivityLog  `json:"activity_logs" bson:"activity_logs"`

	EmailVerified          bool       `json:"email_verified" bson:"email_verified"`
	EmailVerificationToken string     `json:"-" bson:"email_verification_token,omitempty"`
	PasswordResetToken     string     `json:"-" bson:"password_reset_token,omitempty"`
	PasswordResetExpires   *time.Time `json:"-" bson:"password_reset_expires,omitempty"`

	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty" bson:"last_login,omitempty"`
}

// AccountCredential 返回 account 平台凭据，不存在时返回 nil
func (c *Client) AccountCredential() *Credential {
	for i := range c.Credentials {
		if c.Credentials[i].Platform == PlatformAccount {
			return &c.Credentials[i]
		}
	}
	return nil
}

// FileByID 按子文档 ID 查找文件记录，不存在时返回 nil
func (c *Client) FileByID(fileID string) *UploadedFile {
	for i := range c.UploadedFiles {
		if c.UploadedFiles[i].ID == fileID {
			return &c.UploadedFiles[i]
		}
	}
	return nil
}

// Redacted 返回可安全序列化给前端的副本：account 凭据密码置空
// 平台自动化凭据按约定保留明文（运营方需要读取）
func (c *Client) Redacted() *Client {
	cp := *c
	cp.Credentials = make([]Credential, len(c.Credentials))
	copy(cp.Credentials, c.Credentials)
	for i := range cp.Credentials {
		if cp.Credentials[i].Platform == PlatformAccount {
			cp.Credentials[i].Password = ""
		}
	}
	return &cp
}

// ============================================================================
// ID 生成
// ============================================================================

const clientIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewClientID 生成对外客户标识，格式 CLT-<unix毫秒>-<6位大写字母数字>
func NewClientID() string {
	buf := make([]byte, 6)
	rand.Read(buf)
	suffix := make([]byte, 6)
	for i, b := range buf {
		suffix[i] = clientIDAlphabet[int(b)%len(clientIDAlphabet)]
	}
	return fmt.Sprintf("CLT-%d-%s", time.Now().UnixMilli(), suffix)
}

// NewInternalID 生成内部主键
func NewInternalID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// NewFileID 生成文件子文档 ID
func NewFileID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return "file-" + hex.EncodeToString(buf)
}

// NewCampaignID 生成活动子文档 ID
func NewCampaignID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return "cmp-" + hex.EncodeToString(buf)
}
