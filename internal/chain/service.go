package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransferRejected means the chain definitively refused the transfer.
	// Safe to mark the charge failed.
	ErrTransferRejected = errors.New("transfer rejected by chain")

	// ErrTransferIndeterminate means the transfer's fate is unknown: the
	// submission or confirmation timed out. The charge must stay pending
	// until reconciliation resolves it. Never retry on this error.
	ErrTransferIndeterminate = errors.New("transfer outcome indeterminate")

	// ErrTransactionUnknown means the chain has no record of the signature.
	ErrTransactionUnknown = errors.New("transaction not found on chain")
)

// ConfirmationStatus is the chain's verdict on a submitted transfer.
type ConfirmationStatus string

const (
	StatusConfirmed     ConfirmationStatus = "confirmed"
	StatusFailed        ConfirmationStatus = "failed"
	StatusIndeterminate ConfirmationStatus = "indeterminate"
)

// TransferParams describes a value transfer from a user's trading wallet
// to the admin collection wallet.
type TransferParams struct {
	FromAddress  string
	EncryptedKey string
	ToAddress    string
	Amount       decimal.Decimal
}

// Oracle is the chain access contract the billing engine depends on. The
// production implementation speaks JSON-RPC to a node; tests substitute
// a fake.
type Oracle interface {
	// GetBalance returns the spendable balance of an address in token units.
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// Transfer signs and submits a transfer, returning the transaction
	// signature. On ErrTransferIndeterminate the signature is still returned
	// when known, so the caller can persist it for reconciliation.
	Transfer(ctx context.Context, params TransferParams) (string, error)

	// AwaitConfirmation polls until the transaction is finalized, rejected,
	// or the confirmation window closes (ErrTransferIndeterminate).
	AwaitConfirmation(ctx context.Context, signature string) (ConfirmationStatus, error)

	// CheckTransaction returns the current status of a signature without
	// waiting. Used by the reconciler on aged pending charges.
	CheckTransaction(ctx context.Context, signature string) (ConfirmationStatus, error)
}

// Signer turns an encrypted key blob into a signed, wire-ready transaction.
// Key decryption lives behind this interface so the billing engine never
// touches plaintext key material.
type Signer interface {
	SignTransfer(ctx context.Context, params SignParams) (*SignedTransfer, error)
}

// SignParams is the input to transaction signing.
type SignParams struct {
	EncryptedKey    string
	FromAddress     string
	ToAddress       string
	Lamports        uint64
	RecentBlockhash string
}

// SignedTransfer is a serialized transaction ready for submission, plus
// its signature, which is known client-side before the node sees it.
type SignedTransfer struct {
	Signature string
	WireData  string // base64-encoded signed transaction
}

// awaitConfirmation is the shared polling loop over any status-check
// function. Both the RPC oracle and the reconciler path use it.
func awaitConfirmation(
	ctx context.Context,
	signature string,
	timeout, pollInterval time.Duration,
	check func(context.Context, string) (ConfirmationStatus, error),
) (ConfirmationStatus, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := check(ctx, signature)
		if err != nil && !errors.Is(err, ErrTransactionUnknown) {
			return StatusIndeterminate, err
		}
		if err == nil && status != StatusIndeterminate {
			return status, nil
		}

		if time.Now().After(deadline) {
			return StatusIndeterminate, fmt.Errorf("%w: no finality for %s within %v",
				ErrTransferIndeterminate, signature, timeout)
		}

		select {
		case <-ctx.Done():
			return StatusIndeterminate, fmt.Errorf("%w: %v", ErrTransferIndeterminate, ctx.Err())
		case <-ticker.C:
		}
	}
}
