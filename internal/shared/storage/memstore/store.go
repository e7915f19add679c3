// Package memstore 实现基于内存的 storage.Store
//
// 用途：
//   - Handler 单元测试（无外部依赖、毫秒级）
//   - 本地开发在 MongoDB 不可用时的降级运行
//
// 行为与 mongostore 对齐：唯一键冲突返回 storage.ErrDuplicate，
// 未命中返回 storage.ErrNotFound，查询返回深拷贝避免调用方共享内部状态。
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/storage"
)

// Store 内存存储
type Store struct {
	mu      sync.RWMutex
	clients map[string]*model.Client // 内部 _id → 文档
	admins  map[string]*model.Admin
}

// NewStore 创建内存存储实例
func NewStore() *Store {
	return &Store{
		clients: make(map[string]*model.Client),
		admins:  make(map[string]*model.Admin),
	}
}

var _ storage.Store = (*Store)(nil)

// Ping 永远可用
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close 无资源可释放
func (s *Store) Close() error { return nil }

// ============================================================================
// ClientStore
// ============================================================================

func (s *Store) CreateClient(ctx context.Context, c *model.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c.ID]; ok {
		return storage.ErrDuplicate
	}
	for _, existing := range s.clients {
		if existing.ClientID == c.ClientID || existing.Email == c.Email {
			return storage.ErrDuplicate
		}
	}
	s.clients[c.ID] = cloneClient(c)
	return nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.clients[id]; ok {
		return cloneClient(c), nil
	}
	return nil, nil
}

func (s *Store) GetClientByClientID(ctx context.Context, clientID string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.ClientID == clientID {
			return cloneClient(c), nil
		}
	}
	return nil, nil
}

func (s *Store) GetClientByEmail(ctx context.Context, email string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.Email == email {
			return cloneClient(c), nil
		}
	}
	return nil, nil
}

func (s *Store) GetClientByResetToken(ctx context.Context, hashedToken string, now time.Time) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.PasswordResetToken == hashedToken &&
			c.PasswordResetExpires != nil && c.PasswordResetExpires.After(now) {
			return cloneClient(c), nil
		}
	}
	return nil, nil
}

func (s *Store) GetClientByFileID(ctx context.Context, fileID string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		for i := range c.UploadedFiles {
			if c.UploadedFiles[i].ID == fileID {
				return cloneClient(c), nil
			}
		}
	}
	return nil, nil
}

func (s *Store) ListClients(ctx context.Context, search, status string) ([]*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(search)
	result := []*model.Client{}
	for _, c := range s.clients {
		if status != "" && string(c.Status) != status {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(c.Name), q) &&
			!strings.Contains(strings.ToLower(c.Email), q) &&
			!strings.Contains(strings.ToLower(c.ClientID), q) {
			continue
		}
		result = append(result, cloneClient(c))
	}
	return result, nil
}

func (s *Store) UpdateClient(ctx context.Context, c *model.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := cloneClient(c)
	cp.UpdatedAt = time.Now()
	s.clients[c.ID] = cp
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		if c.ClientID == clientID {
			delete(s.clients, id)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) AppendActivityLog(ctx context.Context, clientID string, entry model.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ClientID == clientID {
			c.ActivityLogs = append(c.ActivityLogs, entry)
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) AppendUploadedFile(ctx context.Context, clientID string, f model.UploadedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ClientID == clientID {
			c.UploadedFiles = append(c.UploadedFiles, f)
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) AppendUploadedFiles(ctx context.Context, clientID string, files []model.UploadedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ClientID == clientID {
			c.UploadedFiles = append(c.UploadedFiles, files...)
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) RecordFileDownload(ctx context.Context, clientID, fileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ClientID != clientID {
			continue
		}
		for i := range c.UploadedFiles {
			if c.UploadedFiles[i].ID == fileID {
				c.UploadedFiles[i].DownloadCount++
				t := at
				c.UploadedFiles[i].LastAccessed = &t
				return nil
			}
		}
	}
	return storage.ErrNotFound
}

func (s *Store) RemoveInvalidActivityLogs(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var modified int64
	for _, c := range s.clients {
		kept := c.ActivityLogs[:0]
		removed := false
		for _, e := range c.ActivityLogs {
			if model.ValidLogType(string(e.Type)) {
				kept = append(kept, e)
			} else {
				removed = true
			}
		}
		if removed {
			c.ActivityLogs = kept
			modified++
		}
	}
	return modified, nil
}

func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &storage.Stats{
		ClientsByStatus: map[string]int64{},
		ClientsByPlan:   map[string]int64{},
	}
	for _, c := range s.clients {
		stats.TotalClients++
		stats.ClientsByStatus[string(c.Status)]++
		stats.ClientsByPlan[string(c.Plan)]++
		stats.TotalCampaigns += int64(len(c.Campaigns))
		stats.TotalFiles += int64(len(c.UploadedFiles))
		for i := range c.UploadedFiles {
			stats.TotalFileBytes += c.UploadedFiles[i].FileSize
		}
	}
	return stats, nil
}

// ============================================================================
// AdminStore
// ============================================================================

func (s *Store) CreateAdmin(ctx context.Context, a *model.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[a.ID]; ok {
		return storage.ErrDuplicate
	}
	for _, existing := range s.admins {
		if existing.Username == a.Username {
			return storage.ErrDuplicate
		}
	}
	cp := *a
	s.admins[a.ID] = &cp
	return nil
}

func (s *Store) GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.admins {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) UpdateAdminLoginState(ctx context.Context, id string, attempts int, lockUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.LoginAttempts = attempts
	a.LockUntil = lockUntil
	a.UpdatedAt = time.Now()
	return nil
}

func (s *Store) AppendAdminActivityLog(ctx context.Context, id string, entry model.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.ActivityLogs = append(a.ActivityLogs, entry)
	a.UpdatedAt = time.Now()
	return nil
}

// ============================================================================
// 深拷贝
// ============================================================================

func cloneClient(c *model.Client) *model.Client {
	cp := *c
	cp.Credentials = append([]model.Credential(nil), c.Credentials...)
	cp.Campaigns = append([]model.Campaign(nil), c.Campaigns...)
	cp.UploadedFiles = append([]model.UploadedFile(nil), c.UploadedFiles...)
	cp.ActivityLogs = append([]model.ActivityLog(nil), c.ActivityLogs...)
	return &cp
}
