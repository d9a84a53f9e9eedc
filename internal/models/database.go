package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeType categorizes a fee event.
type ChargeType string

const (
	ChargeWalletCreation  ChargeType = "wallet_creation"
	ChargeTradeFee        ChargeType = "trade_fee"
	ChargeSubscriptionFee ChargeType = "subscription_fee"
)

// Valid reports whether t is one of the known charge types.
func (t ChargeType) Valid() bool {
	switch t {
	case ChargeWalletCreation, ChargeTradeFee, ChargeSubscriptionFee:
		return true
	}
	return false
}

// EntryStatus is the lifecycle state of a ledger entry.
// An entry is created pending and transitions exactly once.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryConfirmed EntryStatus = "confirmed"
	EntryFailed    EntryStatus = "failed"
)

// Tier is a subscription plan name.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// SubscriptionStatus tracks where a paid subscription sits in its billing cycle.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionGrace   SubscriptionStatus = "grace"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// User represents a user in the system. Users are never deleted, only deactivated.
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// TradingWallet is the single wallet per user authorized as a source of funds
// for trades and fees. At most one active record per user at any time.
// EncryptedKey is an opaque blob; this service never sees plaintext key material.
type TradingWallet struct {
	Id           string    `db:"id"`
	UserId       string    `db:"user_id"`
	Address      string    `db:"address"`
	EncryptedKey string    `db:"encrypted_key"`
	Active       bool      `db:"active"`
	ConnectedAt  time.Time `db:"connected_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// AnalysisWallet is a monitored wallet with no charging capability.
// Users may hold any number of them.
type AnalysisWallet struct {
	Id           string    `db:"id"`
	UserId       string    `db:"user_id"`
	Address      string    `db:"address"`
	EncryptedKey string    `db:"encrypted_key"`
	Label        string    `db:"label"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
}

// LedgerEntry is the immutable audit record of one charge attempt.
// (UserId, ChargeType, OperationId) is the idempotency key: at most one
// non-failed entry may exist for it.
type LedgerEntry struct {
	Id            string          `db:"id"`
	UserId        string          `db:"user_id"`
	ChargeType    ChargeType      `db:"charge_type"`
	OperationId   string          `db:"operation_id"`
	BaseAmount    decimal.Decimal `db:"base_amount"`
	FeeAmount     decimal.Decimal `db:"fee_amount"`
	Status        EntryStatus     `db:"status"`
	ChainTxRef    string          `db:"chain_tx_ref"`
	FailureReason string          `db:"failure_reason"`
	CreatedAt     time.Time       `db:"created_at"`
	ConfirmedAt   *time.Time      `db:"confirmed_at"`
}

// Subscription is each user's billing record. Tier keeps the last paid plan
// even after expiry; feature gating must go through the state machine's
// EffectiveTier, which reports free once expired.
type Subscription struct {
	UserId    string             `db:"user_id"`
	Tier      Tier               `db:"tier"`
	LastPaid  *time.Time         `db:"last_paid"`
	Expiry    *time.Time         `db:"expiry"`
	Status    SubscriptionStatus `db:"status"`
	UpdatedAt time.Time          `db:"updated_at"`
}
