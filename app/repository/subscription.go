package repository

import (
	"context"
	"database/sql"
)

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// CountSubscribers counts users subscribed to the given channel.
func (r *SubscriptionRepository) CountSubscribers(ctx context.Context, channelID uint64) (int64, error) {
	query := `SELECT COUNT(*) FROM subscriptions WHERE channel_id = ?`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, channelID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountSubscribedTo counts channels the given user is subscribed to.
func (r *SubscriptionRepository) CountSubscribedTo(ctx context.Context, subscriberID uint64) (int64, error) {
	query := `SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = ?`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, subscriberID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SubscriptionRepository) IsSubscribed(ctx context.Context, subscriberID, channelID uint64) (bool, error) {
	query := `SELECT 1 FROM subscriptions WHERE subscriber_id = ? AND channel_id = ? LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, query, subscriberID, channelID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
