package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"solana-fee-ledger-go/internal/chain"
	"solana-fee-ledger-go/internal/fees"
	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrChargeFailed means the charge was definitively not collected. The
	// ledger entry, if one was opened, is marked failed and the operation
	// may be retried.
	ErrChargeFailed = errors.New("charge failed")

	// ErrChargeIndeterminate means the transfer's fate is unknown. The
	// ledger entry stays pending until the reconciler resolves it. The
	// operation must NOT be retried.
	ErrChargeIndeterminate = errors.New("charge outcome indeterminate")

	// ErrBalanceUnavailable means the pre-check balance query failed. No
	// ledger entry was opened and nothing moved; the operation may be
	// retried as-is.
	ErrBalanceUnavailable = errors.New("balance unavailable")
)

// InsufficientBalanceError reports a balance pre-check rejection. No ledger
// entry is written for these: the user owes nothing and nothing moved.
type InsufficientBalanceError struct {
	UserId    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %s: need %s, have %s (short %s)",
		e.UserId, e.Required.String(), e.Available.String(), e.Shortfall().String())
}

// Shortfall is how much the user must add to cover the charge.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

// WalletStore is the wallet lookup the orchestrator needs.
type WalletStore interface {
	ActiveTradingWallet(ctx context.Context, userId string) (*models.TradingWallet, error)
}

// Orchestrator runs the charge protocol: per-user serialization, balance
// pre-check, ledger entry, on-chain transfer, confirmation. Every amount a
// user is ever charged flows through here.
type Orchestrator struct {
	ledger      store.ChargeLedger
	wallets     WalletStore
	oracle      chain.Oracle
	calc        *fees.Calculator
	adminWallet string
	locks       *UserLocks
}

func NewOrchestrator(ledger store.ChargeLedger, wallets WalletStore, oracle chain.Oracle, calc *fees.Calculator, adminWallet string) (*Orchestrator, error) {
	if adminWallet == "" {
		return nil, fmt.Errorf("admin wallet address cannot be empty")
	}

	return &Orchestrator{
		ledger:      ledger,
		wallets:     wallets,
		oracle:      oracle,
		calc:        calc,
		adminWallet: adminWallet,
		locks:       NewUserLocks(),
	}, nil
}

// Charge collects a fee from the user's trading wallet, holding the user's
// lock for the whole protocol.
func (o *Orchestrator) Charge(ctx context.Context, userId string, chargeType models.ChargeType, operationId string, baseAmount decimal.Decimal) (*models.ChargeResult, error) {
	o.locks.Lock(userId)
	defer o.locks.Unlock(userId)

	return o.ChargeHeld(ctx, userId, chargeType, operationId, baseAmount)
}

// ChargeHeld runs the charge protocol assuming the caller already holds the
// user's lock. Flows that do their own locked work around a charge (wallet
// creation, subscription changes) use this through HeldCharger.
func (o *Orchestrator) ChargeHeld(ctx context.Context, userId string, chargeType models.ChargeType, operationId string, baseAmount decimal.Decimal) (*models.ChargeResult, error) {
	fee, err := o.calc.FeeFor(chargeType, baseAmount)
	if err != nil {
		return nil, err
	}

	result := &models.ChargeResult{
		UserId:     userId,
		ChargeType: chargeType,
		FeeCharged: fee,
	}
	if fee.IsZero() {
		return result, nil
	}

	wallet, err := o.wallets.ActiveTradingWallet(ctx, userId)
	if err != nil {
		return nil, err
	}

	balance, err := o.oracle.GetBalance(ctx, wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}
	if balance.LessThan(fee) {
		return nil, &InsufficientBalanceError{UserId: userId, Required: fee, Available: balance}
	}

	entry, err := o.ledger.Begin(ctx, store.BeginParams{
		UserId:      userId,
		ChargeType:  chargeType,
		OperationId: operationId,
		BaseAmount:  baseAmount,
		FeeAmount:   fee,
	})
	if err != nil {
		return nil, err
	}
	result.EntryId = entry.Id

	txRef, err := o.oracle.Transfer(ctx, chain.TransferParams{
		FromAddress:  wallet.Address,
		EncryptedKey: wallet.EncryptedKey,
		ToAddress:    o.adminWallet,
		Amount:       fee,
	})
	if err != nil {
		if errors.Is(err, chain.ErrTransferIndeterminate) {
			return nil, o.leavePending(ctx, entry.Id, txRef, err)
		}
		return nil, o.failEntry(ctx, entry.Id, err)
	}
	result.ChainTxRef = txRef

	if err := o.ledger.MarkSubmitted(ctx, entry.Id, txRef); err != nil {
		return nil, err
	}

	status, confirmErr := o.oracle.AwaitConfirmation(ctx, txRef)
	switch status {
	case chain.StatusConfirmed:
		if err := o.ledger.Confirm(ctx, entry.Id, txRef); err != nil {
			return nil, err
		}
	case chain.StatusFailed:
		return nil, o.failEntry(ctx, entry.Id, fmt.Errorf("transfer %s failed on chain", txRef))
	default:
		return nil, o.leavePending(ctx, entry.Id, txRef,
			fmt.Errorf("confirmation of %s: %w", txRef, confirmErr))
	}

	result.NewBalance = balance.Sub(fee)

	zap.L().Info("Charge collected",
		zap.String("user_id", userId),
		zap.String("charge_type", string(chargeType)),
		zap.String("operation_id", operationId),
		zap.String("fee", fee.String()),
		zap.String("chain_tx_ref", txRef))
	return result, nil
}

// HeldCharger returns a Charger whose calls assume the user's lock is
// already held. Hand this to components that charge inside their own
// locked sections.
func (o *Orchestrator) HeldCharger() *HeldCharger {
	return &HeldCharger{o: o}
}

// Locks exposes the per-user locks so collaborating flows serialize their
// wallet and subscription mutations against in-flight charges.
func (o *Orchestrator) Locks() *UserLocks {
	return o.locks
}

// HeldCharger adapts ChargeHeld to the plain Charge signature consumers
// expect.
type HeldCharger struct {
	o *Orchestrator
}

func (h *HeldCharger) Charge(ctx context.Context, userId string, chargeType models.ChargeType, operationId string, baseAmount decimal.Decimal) (*models.ChargeResult, error) {
	return h.o.ChargeHeld(ctx, userId, chargeType, operationId, baseAmount)
}

// failEntry marks the ledger entry failed and wraps the cause. A charge that
// cannot even record its failure surfaces the bookkeeping error instead.
func (o *Orchestrator) failEntry(ctx context.Context, entryId string, cause error) error {
	if err := o.ledger.Fail(ctx, entryId, cause.Error()); err != nil {
		return fmt.Errorf("unable to record charge failure (%v): %w", cause, err)
	}
	return fmt.Errorf("%w: %v", ErrChargeFailed, cause)
}

// leavePending records the tx ref when one is known and reports the
// indeterminate outcome. The entry stays pending for the reconciler.
func (o *Orchestrator) leavePending(ctx context.Context, entryId, txRef string, cause error) error {
	if txRef != "" {
		if err := o.ledger.MarkSubmitted(ctx, entryId, txRef); err != nil {
			zap.L().Error("Failed to record tx ref on pending entry",
				zap.String("entry_id", entryId),
				zap.String("chain_tx_ref", txRef),
				zap.Error(err))
		}
	}

	zap.L().Warn("Charge left pending for reconciliation",
		zap.String("entry_id", entryId),
		zap.String("chain_tx_ref", txRef),
		zap.Error(cause))
	return fmt.Errorf("%w: %v", ErrChargeIndeterminate, cause)
}
