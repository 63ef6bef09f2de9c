package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/artur/mediasaver/internal/database/models"
)

// UserCounts is the per-tier user breakdown used by admin stats.
type UserCounts struct {
	Total   int64
	Premium int64
	Free    int64
}

// UserRepository handles user persistence in the users collection.
type UserRepository struct {
	users     *mongo.Collection
	freeLimit int
}

// NewUserRepository creates a new UserRepository. freeLimit is used to
// build fail-closed records when the database cannot be reached.
func NewUserRepository(users *mongo.Collection, freeLimit int) *UserRepository {
	return &UserRepository{users: users, freeLimit: freeLimit}
}

// EnsureIndexes creates the unique index on user_id.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user_id index: %w", err)
	}
	return nil
}

// GetOrCreate returns the user record, inserting a fresh free-tier record
// on first contact. The second return value reports whether the record was
// just created. On storage failure it returns a record with zero remaining
// quota together with the error, so an outage can never hand out unlimited
// downloads.
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64) (*models.User, bool, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&user)
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return r.lockedOut(userID), false, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	fresh := models.User{
		UserID:     userID,
		Status:     models.TierFree,
		JoinedDate: time.Now().UTC(),
	}
	res, err := r.users.InsertOne(ctx, &fresh)
	if err != nil {
		// Two first messages can race; the loser re-reads the winner's record.
		if mongo.IsDuplicateKeyError(err) {
			if ferr := r.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&user); ferr == nil {
				return &user, false, nil
			}
		}
		return r.lockedOut(userID), false, fmt.Errorf("failed to create user %d: %w", userID, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		fresh.ID = oid
	}
	return &fresh, true, nil
}

// IncrementDownloads adds one download to a free-tier user. The tier check
// is part of the update filter so a concurrent promotion cannot produce a
// lost update: premium and unknown users are a no-op.
func (r *UserRepository) IncrementDownloads(ctx context.Context, userID int64) error {
	_, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID, "status": models.TierFree},
		bson.M{"$inc": bson.M{"downloads_count": 1}},
	)
	if err != nil {
		return fmt.Errorf("failed to increment downloads for user %d: %w", userID, err)
	}
	return nil
}

// Promote upgrades the user to the premium tier. The record is upserted so
// an admin can approve an id that has never messaged the bot; repeating the
// call is a no-op.
func (r *UserRepository) Promote(ctx context.Context, userID int64) error {
	update := bson.M{
		"$set": bson.M{"status": models.TierPremium},
		"$setOnInsert": bson.M{
			"downloads_count": 0,
			"joined_date":     time.Now().UTC(),
		},
	}
	_, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to promote user %d: %w", userID, err)
	}
	return nil
}

// CountUsers returns the per-tier user totals.
func (r *UserRepository) CountUsers(ctx context.Context) (*UserCounts, error) {
	total, err := r.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	premium, err := r.users.CountDocuments(ctx, bson.M{"status": models.TierPremium})
	if err != nil {
		return nil, fmt.Errorf("failed to count premium users: %w", err)
	}
	return &UserCounts{
		Total:   total,
		Premium: premium,
		Free:    total - premium,
	}, nil
}

// TotalDownloads sums downloads_count across all users.
func (r *UserRepository) TotalDownloads(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$downloads_count"},
		}}},
	}
	cur, err := r.users.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate downloads: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("failed to decode download totals: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

func (r *UserRepository) lockedOut(userID int64) *models.User {
	return &models.User{
		UserID:         userID,
		Status:         models.TierFree,
		DownloadsCount: r.freeLimit,
	}
}
