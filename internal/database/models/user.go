package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tier values stored in the user record.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// User represents a Telegram user stored in the users collection.
// DownloadsCount is cumulative and only ever grows; premium users keep
// their historical count but are no longer counted against it.
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	UserID         int64              `bson:"user_id"`
	Status         string             `bson:"status"`
	DownloadsCount int                `bson:"downloads_count"`
	JoinedDate     time.Time          `bson:"joined_date"`
}

// IsPremium reports whether the user is on the premium tier.
func (u *User) IsPremium() bool {
	return u.Status == TierPremium
}
