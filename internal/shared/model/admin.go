// Package model 定义核心数据模型
//
// admin.go 包含管理员身份/设置文档：
//   - Admin：管理员文档（近似单例，启动时播种）
//   - 登录锁定：连续失败 5 次后锁定固定时长
package model

import "time"

// 管理员登录锁定参数
const (
	AdminMaxLoginAttempts = 5
	AdminLockDuration     = 2 * time.Hour
)

// AdminRole 管理员角色
type AdminRole string

const (
	AdminRoleSuper    AdminRole = "admin"
	AdminRoleOperator AdminRole = "operator"
)

// Admin 管理员文档
//
// 密码以 bcrypt 哈希存储；AutomationAPIKey 是可选的第三方自动化平台密钥。
type Admin struct {
	ID               string        `json:"id" bson:"_id"`
	Username         string        `json:"username" bson:"username"`
	Email            string        `json:"email" bson:"email"`
	PasswordHash     string        `json:"-" bson:"password_hash"` // never expose in JSON
	Role             AdminRole     `json:"role" bson:"role"`
	Permissions      []string      `json:"permissions" bson:"permissions"`
	LoginAttempts    int           `json:"-" bson:"login_attempts"`
	LockUntil        *time.Time    `json:"-" bson:"lock_until,omitempty"`
	ActivityLogs     []ActivityLog `json:"activity_logs" bson:"activity_logs"`
	AutomationAPIKey string        `json:"-" bson:"automation_api_key,omitempty"`
	CreatedAt        time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" bson:"updated_at"`
}

// Locked 判断账号当前是否处于锁定窗口内
func (a *Admin) Locked(now time.Time) bool {
	return a.LockUntil != nil && now.Before(*a.LockUntil)
}

// DefaultAdminPermissions 管理员默认权限列表
func DefaultAdminPermissions() []string {
	return []string{"read", "write", "delete", "manage_clients"}
}
