// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/（生产）、memstore/（测试）
//   - 初始化时通过依赖注入传入实现
package storage

import (
	"context"
	"time"

	"clients-admin/internal/shared/model"
)

// ClientStore 客户文档存取接口
//
// 整文档更新走 UpdateClient（读-改-写，并发写以后写覆盖为准）；
// 活动日志和文件记录的追加使用原子 $push 等价操作，保证日志只追加。
type ClientStore interface {
	CreateClient(ctx context.Context, c *model.Client) error
	GetClient(ctx context.Context, id string) (*model.Client, error)
	GetClientByClientID(ctx context.Context, clientID string) (*model.Client, error)
	GetClientByEmail(ctx context.Context, email string) (*model.Client, error)

	// GetClientByResetToken 按哈希后的重置令牌查找，且令牌必须未过期
	GetClientByResetToken(ctx context.Context, hashedToken string, now time.Time) (*model.Client, error)

	// GetClientByFileID 按文件子文档 ID 反查归属客户
	GetClientByFileID(ctx context.Context, fileID string) (*model.Client, error)

	// ListClients 列出客户；search 对 name/email/clientId 做大小写不敏感子串匹配，
	// status 非空时按状态过滤
	ListClients(ctx context.Context, search, status string) ([]*model.Client, error)

	UpdateClient(ctx context.Context, c *model.Client) error
	DeleteClient(ctx context.Context, clientID string) error

	// AppendActivityLog 原子追加一条活动日志
	AppendActivityLog(ctx context.Context, clientID string, entry model.ActivityLog) error

	// AppendUploadedFile 原子追加一条文件记录
	AppendUploadedFile(ctx context.Context, clientID string, f model.UploadedFile) error

	// AppendUploadedFiles 原子追加一批文件记录，整批要么全部写入要么全部失败
	AppendUploadedFiles(ctx context.Context, clientID string, files []model.UploadedFile) error

	// RecordFileDownload 下载计数 +1 并刷新最后访问时间
	RecordFileDownload(ctx context.Context, clientID, fileID string, at time.Time) error

	// RemoveInvalidActivityLogs 批量清除 type 不在枚举内的日志条目（历史数据迁移）
	RemoveInvalidActivityLogs(ctx context.Context) (int64, error)

	// Stats 聚合统计
	Stats(ctx context.Context) (*Stats, error)
}

// AdminStore 管理员文档存取接口
type AdminStore interface {
	CreateAdmin(ctx context.Context, a *model.Admin) error
	GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error)

	// UpdateAdminLoginState 更新失败计数与锁定截止时间
	UpdateAdminLoginState(ctx context.Context, id string, attempts int, lockUntil *time.Time) error

	AppendAdminActivityLog(ctx context.Context, id string, entry model.ActivityLog) error
}

// Store 持久化存储组合接口
type Store interface {
	ClientStore
	AdminStore

	Ping(ctx context.Context) error
	Close() error
}

// Stats 后台聚合统计结果
type Stats struct {
	TotalClients    int64            `json:"total_clients"`
	ClientsByStatus map[string]int64 `json:"clients_by_status"`
	ClientsByPlan   map[string]int64 `json:"clients_by_plan"`
	TotalFiles      int64            `json:"total_files"`
	TotalFileBytes  int64            `json:"total_file_bytes"`
	TotalCampaigns  int64            `json:"total_campaigns"`
}
