package database

import (
	"context"
	"testing"
	"time"

	"solana-fee-ledger-go/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

func TestGetSubscription_DefaultsToFree(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	sub, err := service.GetSubscription(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if sub.Tier != models.TierFree {
		t.Errorf("Expected free tier, got %s", sub.Tier)
	}
	if sub.Status != models.SubscriptionActive {
		t.Errorf("Expected active status, got %s", sub.Status)
	}
	if sub.Expiry != nil {
		t.Error("Expected no expiry on the free tier")
	}
}

func TestUpsertSubscription_RoundTrip(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	expiry := now.AddDate(0, 0, 30)

	sub := &models.Subscription{
		UserId:   "user1",
		Tier:     models.TierPremium,
		LastPaid: &now,
		Expiry:   &expiry,
		Status:   models.SubscriptionActive,
	}
	if err := service.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("UpsertSubscription failed: %v", err)
	}

	got, err := service.GetSubscription(ctx, "user1")
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if got.Tier != models.TierPremium {
		t.Errorf("Expected premium tier, got %s", got.Tier)
	}
	if got.Expiry == nil || !got.Expiry.Equal(expiry) {
		t.Errorf("Expected expiry %v, got %v", expiry, got.Expiry)
	}

	// Second upsert overwrites the same row
	sub.Status = models.SubscriptionGrace
	if err := service.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("Second UpsertSubscription failed: %v", err)
	}
	got, err = service.GetSubscription(ctx, "user1")
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if got.Status != models.SubscriptionGrace {
		t.Errorf("Expected grace status, got %s", got.Status)
	}
}

func TestExpiringSubscriptions(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 10)

	overdue := &models.Subscription{
		UserId: "user-overdue", Tier: models.TierPremium,
		LastPaid: &past, Expiry: &past, Status: models.SubscriptionActive,
	}
	current := &models.Subscription{
		UserId: "user-current", Tier: models.TierPro,
		LastPaid: &now, Expiry: &future, Status: models.SubscriptionActive,
	}
	lapsed := &models.Subscription{
		UserId: "user-lapsed", Tier: models.TierPremium,
		LastPaid: &past, Expiry: &past, Status: models.SubscriptionExpired,
	}
	for _, sub := range []*models.Subscription{overdue, current, lapsed} {
		if err := service.UpsertSubscription(ctx, sub); err != nil {
			t.Fatalf("UpsertSubscription failed: %v", err)
		}
	}

	subs, err := service.ExpiringSubscriptions(ctx, now)
	if err != nil {
		t.Fatalf("ExpiringSubscriptions failed: %v", err)
	}

	// Only the overdue active subscription qualifies: the current one has
	// not reached expiry and the lapsed one is already expired.
	if len(subs) != 1 {
		t.Fatalf("Expected 1 expiring subscription, got %d", len(subs))
	}
	if subs[0].UserId != "user-overdue" {
		t.Errorf("Expected user-overdue, got %s", subs[0].UserId)
	}
}
