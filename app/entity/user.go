package entity

import (
	"database/sql"
	"time"
)

type User struct {
	ID            uint64
	Username      string
	Email         string
	FullName      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL sql.NullString
	RefreshToken  sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Subscription struct {
	ID           uint64
	SubscriberID uint64
	ChannelID    uint64
	CreatedAt    time.Time
}

// ChannelProfile is the read-only aggregate returned by the channel lookup:
// a user's public fields joined with their subscription counts.
type ChannelProfile struct {
	UserID            uint64
	Username          string
	FullName          string
	Email             string
	AvatarURL         string
	CoverImageURL     string
	SubscriberCount   int64
	SubscribedToCount int64
	IsSubscribed      bool
}
