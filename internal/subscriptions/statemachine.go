package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/notify"
	"solana-fee-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrUnknownTier   = errors.New("unknown subscription tier")
	ErrPaymentFailed = errors.New("subscription payment failed")
)

// Store is the subscription persistence the state machine needs.
type Store interface {
	GetSubscription(ctx context.Context, userId string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	ExpiringSubscriptions(ctx context.Context, cutoff time.Time) ([]models.Subscription, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
}

// Charger collects a fee from the user's trading wallet. The state machine
// holds the user's lock across every subscription mutation, so calls assume
// the lock is already held. Implemented by the orchestrator's held variant.
type Charger interface {
	Charge(ctx context.Context, userId string, chargeType models.ChargeType, operationId string, baseAmount decimal.Decimal) (*models.ChargeResult, error)
}

// Ledger resolves a charge operation to its recorded entry, so a renewal
// sweep that hits the idempotency backstop can learn the earlier attempt's
// outcome. Implemented by the charge ledger backends.
type Ledger interface {
	FindOperation(ctx context.Context, userId string, chargeType models.ChargeType, operationId string) (*models.LedgerEntry, error)
}

// Locker is the per-user serialization shared with the charge orchestrator.
type Locker interface {
	Lock(userId string)
	Unlock(userId string)
}

// StateMachine drives each user's subscription through its billing cycle:
// active until expiry, grace while renewal keeps failing, expired once the
// grace window closes. Tier benefits survive grace and drop to free only on
// expiry.
type StateMachine struct {
	store    Store
	charger  Charger
	ledger   Ledger
	locks    Locker
	catalog  *Catalog
	notifier notify.Notifier

	billingCycle time.Duration
	gracePeriod  time.Duration

	now func() time.Time
}

func NewStateMachine(store Store, charger Charger, ledger Ledger, locks Locker, catalog *Catalog, notifier notify.Notifier, cfg models.BillingConfig) *StateMachine {
	return &StateMachine{
		store:        store,
		charger:      charger,
		ledger:       ledger,
		locks:        locks,
		catalog:      catalog,
		notifier:     notifier,
		billingCycle: cfg.BillingCycle,
		gracePeriod:  cfg.GracePeriod,
		now:          time.Now,
	}
}

// Subscribe moves a user onto a tier, collecting the tier price plus
// transaction surcharge up front. Subscribing to the free tier cancels any
// paid plan without a charge.
func (m *StateMachine) Subscribe(ctx context.Context, userId string, tier models.Tier) (*models.Subscription, error) {
	info, err := m.catalog.Info(tier)
	if err != nil {
		return nil, err
	}

	// The lock spans charge and subscription write, so a concurrent renewal
	// sweep cannot interleave its own state change with an upgrade.
	m.locks.Lock(userId)
	defer m.locks.Unlock(userId)

	now := m.now().UTC()
	if info.Price.IsZero() {
		sub := &models.Subscription{
			UserId: userId,
			Tier:   tier,
			Status: models.SubscriptionActive,
		}
		if err := m.store.UpsertSubscription(ctx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	operationId := fmt.Sprintf("subscribe:%s:%s", tier, uuid.New().String())
	if _, err := m.charger.Charge(ctx, userId, models.ChargeSubscriptionFee, operationId, info.Price); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	expiry := now.Add(m.billingCycle)
	sub := &models.Subscription{
		UserId:   userId,
		Tier:     tier,
		LastPaid: &now,
		Expiry:   &expiry,
		Status:   models.SubscriptionActive,
	}
	if err := m.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}

	zap.L().Info("Subscription started",
		zap.String("user_id", userId),
		zap.String("tier", string(tier)),
		zap.Time("expiry", expiry))
	return sub, nil
}

// CheckRenewal advances one user's subscription past its expiry: charge and
// extend on success, enter grace on payment failure, expire once the grace
// window has closed. A no-op before expiry and for free-tier users.
func (m *StateMachine) CheckRenewal(ctx context.Context, userId string) (*models.Subscription, error) {
	m.locks.Lock(userId)
	defer m.locks.Unlock(userId)

	sub, err := m.store.GetSubscription(ctx, userId)
	if err != nil {
		return nil, err
	}
	if sub.Tier == models.TierFree || sub.Expiry == nil || sub.Status == models.SubscriptionExpired {
		return sub, nil
	}

	now := m.now().UTC()
	if now.Before(*sub.Expiry) {
		return sub, nil
	}

	info, err := m.catalog.Info(sub.Tier)
	if err != nil {
		return nil, err
	}

	// Deterministic operation id per cycle: a crashed or racing sweep cannot
	// collect the same renewal twice.
	operationId := fmt.Sprintf("renew:%s:%d", sub.Tier, sub.Expiry.Unix())
	_, chargeErr := m.charger.Charge(ctx, userId, models.ChargeSubscriptionFee, operationId, info.Price)
	if chargeErr == nil {
		return m.applyRenewal(ctx, sub, now)
	}

	// An error from the charge is not always a payment failure. A duplicate
	// result means an earlier attempt for this cycle still holds the
	// operation id; an indeterminate one left its entry pending. The ledger
	// entry is the authority: confirmed means the fee was collected, possibly
	// by the reconciler long after the original sweep, so the extension
	// applies. Pending means the outcome is still open and grace must wait.
	if entry, err := m.ledger.FindOperation(ctx, userId, models.ChargeSubscriptionFee, operationId); err == nil {
		switch entry.Status {
		case models.EntryConfirmed:
			zap.L().Info("Renewal already collected by an earlier attempt",
				zap.String("user_id", userId),
				zap.String("operation_id", operationId))
			return m.applyRenewal(ctx, sub, now)
		case models.EntryPending:
			zap.L().Info("Renewal charge still pending",
				zap.String("user_id", userId),
				zap.String("operation_id", operationId))
			return sub, nil
		}
	} else if !errors.Is(err, store.ErrEntryNotFound) {
		return nil, err
	}

	graceEnd := sub.Expiry.Add(m.gracePeriod)
	if now.Before(graceEnd) {
		if sub.Status != models.SubscriptionGrace {
			sub.Status = models.SubscriptionGrace
			if err := m.store.UpsertSubscription(ctx, sub); err != nil {
				return nil, err
			}
			m.notifyUser(ctx, userId, "Subscription payment failed",
				fmt.Sprintf("Your %s subscription renewal failed: %v. Benefits continue until %s; top up your trading wallet to keep them.",
					sub.Tier, chargeErr, graceEnd.Format(time.RFC1123)))
		}

		zap.L().Warn("Subscription in grace",
			zap.String("user_id", userId),
			zap.String("tier", string(sub.Tier)),
			zap.Time("grace_end", graceEnd),
			zap.Error(chargeErr))
		return sub, nil
	}

	sub.Status = models.SubscriptionExpired
	if err := m.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}
	m.notifyUser(ctx, userId, "Subscription expired",
		fmt.Sprintf("Your %s subscription has expired after the grace period. You are now on the free tier.", sub.Tier))

	zap.L().Warn("Subscription expired",
		zap.String("user_id", userId),
		zap.String("tier", string(sub.Tier)))
	return sub, nil
}

// applyRenewal records a collected renewal. The extension runs from the old
// expiry, not from now: a late sweep must not shift the user's billing
// anchor.
func (m *StateMachine) applyRenewal(ctx context.Context, sub *models.Subscription, now time.Time) (*models.Subscription, error) {
	expiry := sub.Expiry.Add(m.billingCycle)
	sub.LastPaid = &now
	sub.Expiry = &expiry
	sub.Status = models.SubscriptionActive
	if err := m.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}

	zap.L().Info("Subscription renewed",
		zap.String("user_id", sub.UserId),
		zap.String("tier", string(sub.Tier)),
		zap.Time("expiry", expiry))
	return sub, nil
}

// EffectiveTier is the tier to gate features on: the paid tier while active
// or in grace, free once expired. Read-only and lock-free: the wallet
// manager calls Limits while already holding the user's lock.
func (m *StateMachine) EffectiveTier(ctx context.Context, userId string) (models.Tier, error) {
	sub, err := m.store.GetSubscription(ctx, userId)
	if err != nil {
		return "", err
	}
	if sub.Status == models.SubscriptionExpired {
		return models.TierFree, nil
	}
	return sub.Tier, nil
}

// Limits returns the feature limits for the user's effective tier.
func (m *StateMachine) Limits(ctx context.Context, userId string) (models.TierLimits, error) {
	tier, err := m.EffectiveTier(ctx, userId)
	if err != nil {
		return models.TierLimits{}, err
	}
	info, err := m.catalog.Info(tier)
	if err != nil {
		return models.TierLimits{}, err
	}
	return info.Limits, nil
}

// SweepRenewals runs CheckRenewal over every subscription at or past expiry.
// Per-user failures are logged and skipped so one bad account cannot stall
// the sweep.
func (m *StateMachine) SweepRenewals(ctx context.Context) error {
	subs, err := m.store.ExpiringSubscriptions(ctx, m.now().UTC())
	if err != nil {
		return fmt.Errorf("unable to list expiring subscriptions: %w", err)
	}

	for _, sub := range subs {
		if _, err := m.CheckRenewal(ctx, sub.UserId); err != nil {
			zap.L().Error("Renewal check failed",
				zap.String("user_id", sub.UserId),
				zap.Error(err))
		}
	}

	zap.L().Debug("Renewal sweep complete", zap.Int("checked", len(subs)))
	return nil
}

func (m *StateMachine) notifyUser(ctx context.Context, userId, subject, body string) {
	event := notify.Event{UserId: userId, Subject: subject, Body: body}
	if user, err := m.store.GetUserById(ctx, userId); err == nil {
		event.Email = user.Email
	}
	m.notifier.Notify(ctx, event)
}
