package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-fee-ledger-go/internal/chain"
	"solana-fee-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Reconciler resolves charges stranded in pending: crashes mid-protocol and
// confirmation timeouts both leave entries whose on-chain fate must be
// settled from the chain itself.
type Reconciler struct {
	ledger     store.ChargeLedger
	oracle     chain.Oracle
	pendingAge time.Duration
}

func NewReconciler(ledger store.ChargeLedger, oracle chain.Oracle, pendingAge time.Duration) *Reconciler {
	return &Reconciler{
		ledger:     ledger,
		oracle:     oracle,
		pendingAge: pendingAge,
	}
}

// ResolvePending sweeps aged pending entries once. Entries whose transfer
// is still not final are left for the next sweep; per-entry failures never
// stop the sweep.
func (r *Reconciler) ResolvePending(ctx context.Context) error {
	entries, err := r.ledger.PendingOlderThan(ctx, r.pendingAge)
	if err != nil {
		return fmt.Errorf("unable to list pending entries: %w", err)
	}

	var resolved int
	for _, entry := range entries {
		if err := r.resolve(ctx, entry.Id, entry.ChainTxRef); err != nil {
			zap.L().Error("Failed to reconcile entry",
				zap.String("entry_id", entry.Id),
				zap.String("chain_tx_ref", entry.ChainTxRef),
				zap.Error(err))
			continue
		}
		resolved++
	}

	if len(entries) > 0 {
		zap.L().Info("Reconciliation sweep complete",
			zap.Int("pending", len(entries)),
			zap.Int("resolved", resolved))
	}
	return nil
}

func (r *Reconciler) resolve(ctx context.Context, entryId, txRef string) error {
	// No tx ref after the pending-age window means the crash happened before
	// submission: nothing can be on chain.
	if txRef == "" {
		return r.ledger.Fail(ctx, entryId, "transfer never submitted")
	}

	status, err := r.oracle.CheckTransaction(ctx, txRef)
	if err != nil {
		// An aged transaction the chain has no record of will never land:
		// its blockhash has long expired.
		if errors.Is(err, chain.ErrTransactionUnknown) {
			return r.ledger.Fail(ctx, entryId, "transaction not found on chain")
		}
		return err
	}

	switch status {
	case chain.StatusConfirmed:
		return r.ledger.Confirm(ctx, entryId, txRef)
	case chain.StatusFailed:
		return r.ledger.Fail(ctx, entryId, "transfer failed on chain")
	default:
		// Still not final; leave for the next sweep.
		zap.L().Debug("Entry still unresolved",
			zap.String("entry_id", entryId),
			zap.String("chain_tx_ref", txRef))
		return nil
	}
}

// Run sweeps on the given interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zap.L().Info("Reconciler started",
		zap.Duration("interval", interval),
		zap.Duration("pending_age", r.pendingAge))

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Reconciler stopped")
			return
		case <-ticker.C:
			if err := r.ResolvePending(ctx); err != nil {
				zap.L().Error("Reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}
