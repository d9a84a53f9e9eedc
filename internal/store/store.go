package store

import (
	"context"
	"errors"
	"time"

	"solana-fee-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateOperation = errors.New("duplicate operation")
	ErrInvalidTransition  = errors.New("invalid ledger entry transition")
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrNoTradingWallet    = errors.New("no trading wallet connected")
	ErrAlreadyConnected   = errors.New("trading wallet already connected")
	ErrNotConnected       = errors.New("no trading wallet connected for user")
	ErrInvalidKeyMaterial = errors.New("invalid key material")
)

// BeginParams contains the parameters for opening a pending ledger entry.
type BeginParams struct {
	UserId      string
	ChargeType  models.ChargeType
	OperationId string
	BaseAmount  decimal.Decimal
	FeeAmount   decimal.Decimal
}

// ChargeLedger is the contract every ledger backend (SQLite, Formance, ...)
// must satisfy. Entries are append-only: Begin creates a pending entry,
// Confirm/Fail transition it exactly once, nothing is ever deleted.
//
// Begin must be atomic create-if-absent on (user, charge type, operation id)
// across non-failed entries, returning ErrDuplicateOperation on a hit. This
// backstops idempotency even if the per-user serialization above it is ever
// bypassed.
type ChargeLedger interface {
	Begin(ctx context.Context, params BeginParams) (*models.LedgerEntry, error)

	// MarkSubmitted records the chain transaction reference on a still-pending
	// entry, so reconciliation can query the transfer's fate after a crash or
	// timeout. The entry stays pending.
	MarkSubmitted(ctx context.Context, entryId, chainTxRef string) error

	Confirm(ctx context.Context, entryId, chainTxRef string) error
	Fail(ctx context.Context, entryId, reason string) error

	// FindOperation returns the entry currently holding the idempotency key
	// for (user, charge type, operation id), or ErrEntryNotFound when no
	// non-failed entry exists. Callers that hit ErrDuplicateOperation use
	// this to learn the recorded outcome of the earlier attempt.
	FindOperation(ctx context.Context, userId string, chargeType models.ChargeType, operationId string) (*models.LedgerEntry, error)

	// History returns entries for a user, newest first. Limit/offset
	// pagination keeps the sequence finite and restartable.
	History(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error)

	// PendingOlderThan returns entries that have sat pending for at least age,
	// the reconciler's work queue.
	PendingOlderThan(ctx context.Context, age time.Duration) ([]models.LedgerEntry, error)

	Close()
}
