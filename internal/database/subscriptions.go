package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"solana-fee-ledger-go/internal/models"

	"go.uber.org/zap"
)

// GetSubscription returns the user's subscription record. Users without a
// row are on the free tier; a synthetic active/free record is returned so
// callers never deal with a missing-subscription case.
func (s *Service) GetSubscription(ctx context.Context, userId string) (*models.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, queryGetSubscription, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Subscription{
				UserId: userId,
				Tier:   models.TierFree,
				Status: models.SubscriptionActive,
			}, nil
		}
		return nil, fmt.Errorf("unable to query subscription: %w", err)
	}

	return sub, nil
}

// UpsertSubscription writes the user's subscription state, creating the row
// on first paid upgrade.
func (s *Service) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	_, err := s.db.ExecContext(ctx, queryUpsertSubscription,
		sub.UserId, string(sub.Tier), sub.LastPaid, sub.Expiry, string(sub.Status))
	if err != nil {
		return fmt.Errorf("unable to upsert subscription: %w", err)
	}

	zap.L().Info("Subscription updated",
		zap.String("user_id", sub.UserId),
		zap.String("tier", string(sub.Tier)),
		zap.String("status", string(sub.Status)))
	return nil
}

// ExpiringSubscriptions returns paid, non-expired subscriptions whose expiry
// is at or before the cutoff, the renewal sweep's work queue.
func (s *Service) ExpiringSubscriptions(ctx context.Context, cutoff time.Time) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, queryGetExpiringSubscriptions, cutoff)
	if err != nil {
		return nil, fmt.Errorf("unable to query expiring subscriptions: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}

	return subs, nil
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var lastPaid, expiry sql.NullTime

	err := row.Scan(&sub.UserId, &sub.Tier, &lastPaid, &expiry, &sub.Status, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastPaid.Valid {
		sub.LastPaid = &lastPaid.Time
	}
	if expiry.Valid {
		sub.Expiry = &expiry.Time
	}
	return &sub, nil
}
