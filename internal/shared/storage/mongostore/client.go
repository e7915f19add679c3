package mongostore

import (
	"context"
	"regexp"
	"time"

	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ClientStore
// ============================================================================

func (s *Store) CreateClient(ctx context.Context, c *model.Client) error {
	return insertOne(ctx, s.col(ColClients), c)
}

func (s *Store) GetClient(ctx context.Context, id string) (*model.Client, error) {
	return findOne[model.Client](ctx, s.col(ColClients), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetClientByClientID(ctx context.Context, clientID string) (*model.Client, error) {
	return findOne[model.Client](ctx, s.col(ColClients), bson.D{{Key: "client_id", Value: clientID}})
}

func (s *Store) GetClientByEmail(ctx context.Context, email string) (*model.Client, error) {
	return findOne[model.Client](ctx, s.col(ColClients), bson.D{{Key: "email", Value: email}})
}

func (s *Store) GetClientByResetToken(ctx context.Context, hashedToken string, now time.Time) (*model.Client, error) {
	filter := bson.D{
		{Key: "password_reset_token", Value: hashedToken},
		{Key: "password_reset_expires", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	return findOne[model.Client](ctx, s.col(ColClients), filter)
}

func (s *Store) GetClientByFileID(ctx context.Context, fileID string) (*model.Client, error) {
	return findOne[model.Client](ctx, s.col(ColClients), bson.D{{Key: "uploaded_files.id", Value: fileID}})
}

func (s *Store) ListClients(ctx context.Context, search, status string) ([]*model.Client, error) {
	filter := bson.D{}
	if search != "" {
		// 大小写不敏感子串匹配，转义用户输入避免正则注入
		re := bson.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "name", Value: re}},
			bson.D{{Key: "email", Value: re}},
			bson.D{{Key: "client_id", Value: re}},
		}})
	}
	if status != "" {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findMany[model.Client](ctx, s.col(ColClients), filter, opts)
}

func (s *Store) UpdateClient(ctx context.Context, c *model.Client) error {
	c.UpdatedAt = time.Now()
	return replaceByID(ctx, s.col(ColClients), c.ID, c)
}

func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	res, err := s.col(ColClients).DeleteOne(ctx, bson.D{{Key: "client_id", Value: clientID}})
	if err != nil {
		return wrapError(err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AppendActivityLog(ctx context.Context, clientID string, entry model.ActivityLog) error {
	return updateOne(ctx, s.col(ColClients),
		bson.D{{Key: "client_id", Value: clientID}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "activity_logs", Value: entry}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now()}}},
		})
}

func (s *Store) AppendUploadedFile(ctx context.Context, clientID string, f model.UploadedFile) error {
	return updateOne(ctx, s.col(ColClients),
		bson.D{{Key: "client_id", Value: clientID}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "uploaded_files", Value: f}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now()}}},
		})
}

func (s *Store) AppendUploadedFiles(ctx context.Context, clientID string, files []model.UploadedFile) error {
	if len(files) == 0 {
		return nil
	}
	return updateOne(ctx, s.col(ColClients),
		bson.D{{Key: "client_id", Value: clientID}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "uploaded_files", Value: bson.D{{Key: "$each", Value: files}}}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now()}}},
		})
}

func (s *Store) RecordFileDownload(ctx context.Context, clientID, fileID string, at time.Time) error {
	return updateOne(ctx, s.col(ColClients),
		bson.D{
			{Key: "client_id", Value: clientID},
			{Key: "uploaded_files.id", Value: fileID},
		},
		bson.D{
			{Key: "$inc", Value: bson.D{{Key: "uploaded_files.$.download_count", Value: 1}}},
			{Key: "$set", Value: bson.D{{Key: "uploaded_files.$.last_accessed", Value: at}}},
		})
}

// RemoveInvalidActivityLogs 清除历史数据中 type 非法的日志条目
//
// 早期版本写入过枚举之外的 type 值（如 "verification"），
// 该操作用于一次性批量修复，返回被修改的文档数。
func (s *Store) RemoveInvalidActivityLogs(ctx context.Context) (int64, error) {
	valid := bson.A{
		string(model.LogInfo),
		string(model.LogSuccess),
		string(model.LogWarning),
		string(model.LogError),
	}
	res, err := s.col(ColClients).UpdateMany(ctx, bson.D{},
		bson.D{{Key: "$pull", Value: bson.D{
			{Key: "activity_logs", Value: bson.D{
				{Key: "type", Value: bson.D{{Key: "$nin", Value: valid}}},
			}},
		}}})
	if err != nil {
		return 0, wrapError(err)
	}
	return res.ModifiedCount, nil
}

// ============================================================================
// Stats - 聚合统计
// ============================================================================

func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{
		ClientsByStatus: map[string]int64{},
		ClientsByPlan:   map[string]int64{},
	}

	total, err := s.col(ColClients).CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, wrapError(err)
	}
	stats.TotalClients = total

	// 按状态 / 套餐分组
	if err := s.groupCount(ctx, "$status", stats.ClientsByStatus); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, "$plan", stats.ClientsByPlan); err != nil {
		return nil, err
	}

	// 文件数量与总字节数
	pipeline := []bson.D{
		{{Key: "$unwind", Value: "$uploaded_files"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "bytes", Value: bson.D{{Key: "$sum", Value: "$uploaded_files.file_size"}}},
		}}},
	}
	cursor, err := s.col(ColClients).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)
	if cursor.Next(ctx) {
		var row struct {
			Count int64 `bson:"count"`
			Bytes int64 `bson:"bytes"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		stats.TotalFiles = row.Count
		stats.TotalFileBytes = row.Bytes
	}

	// 活动总数
	campaignPipeline := []bson.D{
		{{Key: "$unwind", Value: "$campaigns"}},
		{{Key: "$count", Value: "count"}},
	}
	cur, err := s.col(ColClients).Aggregate(ctx, campaignPipeline)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cur.Close(ctx)
	if cur.Next(ctx) {
		var row struct {
			Count int64 `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		stats.TotalCampaigns = row.Count
	}

	return stats, nil
}

// groupCount 执行 $group 计数并写入 out
func (s *Store) groupCount(ctx context.Context, field string, out map[string]int64) error {
	pipeline := []bson.D{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := s.col(ColClients).Aggregate(ctx, pipeline)
	if err != nil {
		return wrapError(err)
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return err
		}
		out[row.ID] = row.Count
	}
	return cursor.Err()
}
