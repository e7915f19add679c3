package mongostore

import (
	"context"
	"time"

	"clients-admin/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ============================================================================
// AdminStore
// ============================================================================

func (s *Store) CreateAdmin(ctx context.Context, a *model.Admin) error {
	return insertOne(ctx, s.col(ColAdmins), a)
}

func (s *Store) GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	return findOne[model.Admin](ctx, s.col(ColAdmins), bson.D{{Key: "username", Value: username}})
}

func (s *Store) UpdateAdminLoginState(ctx context.Context, id string, attempts int, lockUntil *time.Time) error {
	set := bson.D{
		{Key: "login_attempts", Value: attempts},
		{Key: "updated_at", Value: time.Now()},
	}
	update := bson.D{{Key: "$set", Value: set}}
	if lockUntil != nil {
		set = append(set, bson.E{Key: "lock_until", Value: *lockUntil})
		update = bson.D{{Key: "$set", Value: set}}
	} else {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "lock_until", Value: ""}}})
	}
	return updateOne(ctx, s.col(ColAdmins), bson.D{{Key: "_id", Value: id}}, update)
}

func (s *Store) AppendAdminActivityLog(ctx context.Context, id string, entry model.ActivityLog) error {
	return updateOne(ctx, s.col(ColAdmins),
		bson.D{{Key: "_id", Value: id}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "activity_logs", Value: entry}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now()}}},
		})
}
