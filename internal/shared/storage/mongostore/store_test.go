package mongostore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/storage"
)

// 编译期接口检查
var _ storage.Store = (*Store)(nil)

// testStore 创建测试用 Store，MongoDB 不可用时跳过测试
func testStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	dbName := fmt.Sprintf("clients_admin_test_%d", time.Now().UnixNano())

	s, err := NewStore(uri, dbName)
	if err != nil {
		t.Skipf("MongoDB 不可用，跳过: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.db.Drop(ctx)
		_ = s.Close()
	})
	return s
}

func testClient(name string) *model.Client {
	now := time.Now()
	return &model.Client{
		ID:       model.NewInternalID("clt"),
		ClientID: model.NewClientID(),
		Name:     name,
		Email:    name + "@example.com",
		Status:   model.ClientStatusActive,
		Plan:     model.PlanBasic,
		Credentials: []model.Credential{
			{
				Platform:         model.PlatformAccount,
				Username:         name + "@example.com",
				Password:         "$2b$12$xxxxxxxxxxxxxxxxxxxxxx",
				IsActive:         true,
				ConnectionStatus: model.ConnectionConnected,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestClientCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := testClient("alice")
	require.NoError(t, s.CreateClient(ctx, c))

	// 唯一键冲突
	dup := testClient("alice")
	dup.ClientID = c.ClientID
	err := s.CreateClient(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	got, err := s.GetClientByClientID(ctx, c.ClientID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.Email, got.Email)

	byEmail, err := s.GetClientByEmail(ctx, c.Email)
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, c.ClientID, byEmail.ClientID)

	// 不存在返回 (nil, nil)
	missing, err := s.GetClientByClientID(ctx, "CLT-0-XXXXXX")
	require.NoError(t, err)
	assert.Nil(t, missing)

	got.Status = model.ClientStatusSuspended
	require.NoError(t, s.UpdateClient(ctx, got))
	after, err := s.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClientStatusSuspended, after.Status)

	require.NoError(t, s.DeleteClient(ctx, c.ClientID))
	assert.ErrorIs(t, s.DeleteClient(ctx, c.ClientID), storage.ErrNotFound)
}

func TestListClients(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := testClient("acme-corp")
	b := testClient("beta-labs")
	b.Status = model.ClientStatusSuspended
	require.NoError(t, s.CreateClient(ctx, a))
	require.NoError(t, s.CreateClient(ctx, b))

	all, err := s.ListClients(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// 大小写不敏感搜索
	found, err := s.ListClients(ctx, "ACME", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ClientID, found[0].ClientID)

	// 状态过滤
	suspended, err := s.ListClients(ctx, "", string(model.ClientStatusSuspended))
	require.NoError(t, err)
	require.Len(t, suspended, 1)
	assert.Equal(t, b.ClientID, suspended[0].ClientID)

	// 正则元字符按字面值处理
	none, err := s.ListClients(ctx, ".*", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAppendActivityLog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := testClient("logs")
	require.NoError(t, s.CreateClient(ctx, c))

	entry := model.ActivityLog{
		Type:      model.LogInfo,
		Message:   "login success",
		Source:    model.SourceClient,
		Timestamp: time.Now(),
	}
	require.NoError(t, s.AppendActivityLog(ctx, c.ClientID, entry))
	require.NoError(t, s.AppendActivityLog(ctx, c.ClientID, entry))

	got, err := s.GetClientByClientID(ctx, c.ClientID)
	require.NoError(t, err)
	assert.Len(t, got.ActivityLogs, 2)

	err = s.AppendActivityLog(ctx, "CLT-0-XXXXXX", entry)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUploadedFiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := testClient("files")
	require.NoError(t, s.CreateClient(ctx, c))

	f := model.UploadedFile{
		ID:             model.NewFileID(),
		FileName:       "files/leads-123.csv",
		OriginalName:   "leads.csv",
		FileSize:       2048,
		FileType:       "text/csv",
		UploadDate:     time.Now(),
		Status:         model.FileUploaded,
		Category:       model.CategoryData,
		Source:         model.SourceClient,
		StorageBackend: model.StorageLocal,
	}
	require.NoError(t, s.AppendUploadedFile(ctx, c.ClientID, f))

	// 批量追加走单次 $push $each
	batch := []model.UploadedFile{
		{ID: model.NewFileID(), FileName: "files/a-1.csv", OriginalName: "a.csv",
			FileSize: 10, FileType: "text/csv", UploadDate: time.Now(),
			Status: model.FileUploaded, Category: model.CategoryData,
			Source: model.SourceClient, StorageBackend: model.StorageLocal},
		{ID: model.NewFileID(), FileName: "files/b-1.csv", OriginalName: "b.csv",
			FileSize: 20, FileType: "text/csv", UploadDate: time.Now(),
			Status: model.FileUploaded, Category: model.CategoryData,
			Source: model.SourceClient, StorageBackend: model.StorageLocal},
	}
	require.NoError(t, s.AppendUploadedFiles(ctx, c.ClientID, batch))

	byFile, err := s.GetClientByFileID(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, byFile)
	assert.Equal(t, c.ClientID, byFile.ClientID)

	now := time.Now()
	require.NoError(t, s.RecordFileDownload(ctx, c.ClientID, f.ID, now))
	require.NoError(t, s.RecordFileDownload(ctx, c.ClientID, f.ID, now))

	got, err := s.GetClientByClientID(ctx, c.ClientID)
	require.NoError(t, err)
	require.Len(t, got.UploadedFiles, 3)
	assert.Equal(t, 2, got.UploadedFiles[0].DownloadCount)
	assert.NotNil(t, got.UploadedFiles[0].LastAccessed)
}

func TestResetTokenLookup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := testClient("reset")
	expires := time.Now().Add(10 * time.Minute)
	c.PasswordResetToken = "hashed-token"
	c.PasswordResetExpires = &expires
	require.NoError(t, s.CreateClient(ctx, c))

	got, err := s.GetClientByResetToken(ctx, "hashed-token", time.Now())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.ClientID, got.ClientID)

	// 已过期
	expired, err := s.GetClientByResetToken(ctx, "hashed-token", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestRemoveInvalidActivityLogs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := testClient("migrate")
	c.ActivityLogs = []model.ActivityLog{
		{Type: model.LogInfo, Message: "ok", Source: model.SourceClient, Timestamp: time.Now()},
		{Type: "verification", Message: "legacy", Source: model.SourceClient, Timestamp: time.Now()},
	}
	require.NoError(t, s.CreateClient(ctx, c))

	modified, err := s.RemoveInvalidActivityLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	got, err := s.GetClientByClientID(ctx, c.ClientID)
	require.NoError(t, err)
	require.Len(t, got.ActivityLogs, 1)
	assert.Equal(t, model.LogInfo, got.ActivityLogs[0].Type)
}

func TestAdminStore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := &model.Admin{
		ID:           model.NewInternalID("adm"),
		Username:     "root",
		Email:        "root@example.com",
		PasswordHash: "$2b$12$yyyyyyyyyyyyyyyyyyyyyy",
		Role:         model.AdminRoleSuper,
		Permissions:  model.DefaultAdminPermissions(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, s.CreateAdmin(ctx, a))
	assert.ErrorIs(t, s.CreateAdmin(ctx, a), storage.ErrDuplicate)

	got, err := s.GetAdminByUsername(ctx, "root")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.Email, got.Email)

	lock := time.Now().Add(2 * time.Hour)
	require.NoError(t, s.UpdateAdminLoginState(ctx, a.ID, 5, &lock))
	locked, err := s.GetAdminByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 5, locked.LoginAttempts)
	require.NotNil(t, locked.LockUntil)
	assert.True(t, locked.Locked(time.Now()))

	// 解锁：lock_until 被 $unset
	require.NoError(t, s.UpdateAdminLoginState(ctx, a.ID, 0, nil))
	unlocked, err := s.GetAdminByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Nil(t, unlocked.LockUntil)
	assert.False(t, unlocked.Locked(time.Now()))
}

func TestStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := testClient("stat-a")
	a.UploadedFiles = []model.UploadedFile{
		{
			ID:             model.NewFileID(),
			FileName:       "x.csv",
			OriginalName:   "x.csv",
			FileSize:       100,
			FileType:       "text/csv",
			UploadDate:     time.Now(),
			Status:         model.FileUploaded,
			Category:       model.CategoryData,
			Source:         model.SourceClient,
			StorageBackend: model.StorageLocal,
		},
	}
	a.Campaigns = []model.Campaign{
		{
			ID:             model.NewCampaignID(),
			Name:           "outreach-q3",
			AutomationType: model.AutomationOutreach,
			Status:         model.CampaignActive,
			CreatedAt:      time.Now(),
		},
	}
	b := testClient("stat-b")
	b.Status = model.ClientStatusPendingVerification
	b.Plan = model.PlanPremium

	require.NoError(t, s.CreateClient(ctx, a))
	require.NoError(t, s.CreateClient(ctx, b))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalClients)
	assert.Equal(t, int64(1), stats.ClientsByStatus[string(model.ClientStatusActive)])
	assert.Equal(t, int64(1), stats.ClientsByStatus[string(model.ClientStatusPendingVerification)])
	assert.Equal(t, int64(1), stats.TotalFiles)
	assert.Equal(t, int64(100), stats.TotalFileBytes)
	assert.Equal(t, int64(1), stats.TotalCampaigns)
}
