package formance

import (
	"context"
	"fmt"
	"time"

	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. Metadata set inside the script makes each Formance
// transaction fully self-describing; mutable entry state (status, tx ref,
// failure reason) is layered on afterwards via AddMetadataOnTransaction.
// ---------------------------------------------------------------------------

const numscriptChargeOpen = `vars {
  asset $asset
  number $amount
  account $user_id
  string $user
  string $entry_id
  string $charge_type
  string $operation_id
  string $operation_key
  string $base_amount
  string $fee_amount
}

send [$asset $amount] (
  source = @users:$user_id allowing unbounded overdraft
  destination = @fees:pending
)

set_tx_meta("event_type", "charge_open")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("user_id", $user)
set_tx_meta("charge_type", $charge_type)
set_tx_meta("operation_id", $operation_id)
set_tx_meta("operation_key", $operation_key)
set_tx_meta("base_amount", $base_amount)
set_tx_meta("fee_amount", $fee_amount)
set_tx_meta("status", "pending")
`

const numscriptChargeCollect = `vars {
  asset $asset
  number $amount
  string $entry_id
  string $chain_tx_ref
}

send [$asset $amount] (
  source = @fees:pending
  destination = @fees:collected
)

set_tx_meta("event_type", "charge_collect")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("chain_tx_ref", $chain_tx_ref)
`

const numscriptChargeReversal = `vars {
  asset $asset
  number $amount
  account $user_id
  string $entry_id
  string $failure_reason
}

send [$asset $amount] (
  source = @fees:pending allowing unbounded overdraft
  destination = @users:$user_id
)

set_tx_meta("event_type", "charge_reversal")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("failure_reason", $failure_reason)
`

// Begin opens a pending charge by posting users:<id> → fees:pending. The
// duplicate check scans existing entries for the operation key; failed
// entries do not hold the key, so retries post a fresh transaction.
func (s *Service) Begin(ctx context.Context, params store.BeginParams) (*models.LedgerEntry, error) {
	opKey := operationKey(params.UserId, params.ChargeType, params.OperationId)

	existing, err := s.findByOperationKey(ctx, opKey)
	if err != nil {
		return nil, err
	}
	for _, tx := range existing {
		if tx.Metadata["status"] != string(models.EntryFailed) {
			return nil, fmt.Errorf("%w: operation %s already recorded", store.ErrDuplicateOperation, params.OperationId)
		}
	}

	entryId := uuid.New().String()
	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr("charge:" + entryId),
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptChargeOpen,
				Vars: map[string]string{
					"asset":         feeAsset,
					"amount":        lamportAmount(params.FeeAmount),
					"user_id":       params.UserId,
					"user":          params.UserId,
					"entry_id":      entryId,
					"charge_type":   string(params.ChargeType),
					"operation_id":  params.OperationId,
					"operation_key": opKey,
					"base_amount":   params.BaseAmount.String(),
					"fee_amount":    params.FeeAmount.String(),
				},
			},
		},
	})
	if err != nil {
		if isConflictError(err) {
			return nil, fmt.Errorf("%w: operation %s already recorded", store.ErrDuplicateOperation, params.OperationId)
		}
		return nil, fmt.Errorf("error opening charge entry: %w", err)
	}

	zap.L().Info("Charge entry opened in Formance",
		zap.String("entry_id", entryId),
		zap.String("user_id", params.UserId),
		zap.String("fee_amount", params.FeeAmount.String()))

	return &models.LedgerEntry{
		Id:          entryId,
		UserId:      params.UserId,
		ChargeType:  params.ChargeType,
		OperationId: params.OperationId,
		BaseAmount:  params.BaseAmount,
		FeeAmount:   params.FeeAmount,
		Status:      models.EntryPending,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// MarkSubmitted records the chain tx ref in the entry's metadata. The entry
// stays pending.
func (s *Service) MarkSubmitted(ctx context.Context, entryId, chainTxRef string) error {
	tx, err := s.findByEntryId(ctx, entryId)
	if err != nil {
		return err
	}
	if tx.Metadata["status"] != string(models.EntryPending) {
		return fmt.Errorf("%w: entry %s is %s, not pending", store.ErrInvalidTransition, entryId, tx.Metadata["status"])
	}

	return s.addMetadata(ctx, tx, map[string]string{"chain_tx_ref": chainTxRef})
}

// Confirm settles a pending charge: fees:pending → fees:collected, then the
// entry metadata flips to confirmed.
func (s *Service) Confirm(ctx context.Context, entryId, chainTxRef string) error {
	tx, err := s.findByEntryId(ctx, entryId)
	if err != nil {
		return err
	}
	if tx.Metadata["status"] != string(models.EntryPending) {
		return fmt.Errorf("%w: entry %s is %s, not pending", store.ErrInvalidTransition, entryId, tx.Metadata["status"])
	}

	feeAmount, err := decimal.NewFromString(tx.Metadata["fee_amount"])
	if err != nil {
		return fmt.Errorf("invalid fee amount on entry %s: %w", entryId, err)
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr("collect:" + entryId),
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptChargeCollect,
				Vars: map[string]string{
					"asset":        feeAsset,
					"amount":       lamportAmount(feeAmount),
					"entry_id":     entryId,
					"chain_tx_ref": chainTxRef,
				},
			},
		},
	})
	if err != nil && !isConflictError(err) {
		return fmt.Errorf("error collecting charge: %w", err)
	}

	err = s.addMetadata(ctx, tx, map[string]string{
		"status":       string(models.EntryConfirmed),
		"chain_tx_ref": chainTxRef,
		"confirmed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	zap.L().Info("Charge confirmed in Formance",
		zap.String("entry_id", entryId),
		zap.String("chain_tx_ref", chainTxRef))
	return nil
}

// Fail reverses a pending charge back to the user and flips the entry
// metadata to failed, releasing the operation key for retry.
func (s *Service) Fail(ctx context.Context, entryId, reason string) error {
	tx, err := s.findByEntryId(ctx, entryId)
	if err != nil {
		return err
	}
	if tx.Metadata["status"] != string(models.EntryPending) {
		return fmt.Errorf("%w: entry %s is %s, not pending", store.ErrInvalidTransition, entryId, tx.Metadata["status"])
	}

	feeAmount, err := decimal.NewFromString(tx.Metadata["fee_amount"])
	if err != nil {
		return fmt.Errorf("invalid fee amount on entry %s: %w", entryId, err)
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr("reversal:" + entryId),
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptChargeReversal,
				Vars: map[string]string{
					"asset":          feeAsset,
					"amount":         lamportAmount(feeAmount),
					"user_id":        tx.Metadata["user_id"],
					"entry_id":       entryId,
					"failure_reason": reason,
				},
			},
		},
	})
	if err != nil && !isConflictError(err) {
		return fmt.Errorf("error reversing charge: %w", err)
	}

	err = s.addMetadata(ctx, tx, map[string]string{
		"status":         string(models.EntryFailed),
		"failure_reason": reason,
	})
	if err != nil {
		return err
	}

	zap.L().Warn("Charge failed in Formance",
		zap.String("entry_id", entryId),
		zap.String("reason", reason))
	return nil
}

// FindOperation returns the non-failed entry holding the operation key, if
// any.
func (s *Service) FindOperation(ctx context.Context, userId string, chargeType models.ChargeType, operationId string) (*models.LedgerEntry, error) {
	opKey := operationKey(userId, chargeType, operationId)
	existing, err := s.findByOperationKey(ctx, opKey)
	if err != nil {
		return nil, err
	}
	for _, tx := range existing {
		if tx.Metadata["status"] != string(models.EntryFailed) {
			entry := entryFromTransaction(tx)
			return &entry, nil
		}
	}
	return nil, fmt.Errorf("%w: operation %s", store.ErrEntryNotFound, operationId)
}

// History returns a user's charge entries, newest first.
func (s *Service) History(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error) {
	pageSize := int64(limit + offset)
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{
				"source": "users:" + userId,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list charge history: %w", err)
	}

	var entries []models.LedgerEntry
	skipped := 0
	for _, tx := range resp.V2TransactionsCursorResponse.Cursor.Data {
		if tx.Metadata["event_type"] != "charge_open" {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		entries = append(entries, entryFromTransaction(tx))
		if len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// PendingOlderThan returns charge entries still pending after the given age.
func (s *Service) PendingOlderThan(ctx context.Context, age time.Duration) ([]models.LedgerEntry, error) {
	cutoff := time.Now().UTC().Add(-age)
	pageSize := int64(100)
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{
				"metadata[status]": string(models.EntryPending),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending charges: %w", err)
	}

	var entries []models.LedgerEntry
	for _, tx := range resp.V2TransactionsCursorResponse.Cursor.Data {
		if tx.Metadata["event_type"] != "charge_open" {
			continue
		}
		if tx.Timestamp.After(cutoff) {
			continue
		}
		entries = append(entries, entryFromTransaction(tx))
	}
	return entries, nil
}

// findByEntryId locates the charge_open transaction for an entry.
func (s *Service) findByEntryId(ctx context.Context, entryId string) (*shared.V2Transaction, error) {
	pageSize := int64(1)
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{
				"metadata[entry_id]": entryId,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find entry %s: %w", entryId, err)
	}
	data := resp.V2TransactionsCursorResponse.Cursor.Data
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrEntryNotFound, entryId)
	}
	return &data[0], nil
}

func (s *Service) findByOperationKey(ctx context.Context, opKey string) ([]shared.V2Transaction, error) {
	pageSize := int64(20)
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{
				"metadata[operation_key]": opKey,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate operation: %w", err)
	}
	return resp.V2TransactionsCursorResponse.Cursor.Data, nil
}

func (s *Service) addMetadata(ctx context.Context, tx *shared.V2Transaction, metadata map[string]string) error {
	_, err := s.client.Ledger.V2.AddMetadataOnTransaction(ctx, operations.V2AddMetadataOnTransactionRequest{
		Ledger:      s.ledger,
		ID:          tx.ID,
		RequestBody: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to update entry metadata: %w", err)
	}
	return nil
}

// entryFromTransaction rebuilds a LedgerEntry from a charge_open
// transaction's metadata.
func entryFromTransaction(tx shared.V2Transaction) models.LedgerEntry {
	baseAmount, _ := decimal.NewFromString(tx.Metadata["base_amount"])
	feeAmount, _ := decimal.NewFromString(tx.Metadata["fee_amount"])

	entry := models.LedgerEntry{
		Id:            tx.Metadata["entry_id"],
		UserId:        tx.Metadata["user_id"],
		ChargeType:    models.ChargeType(tx.Metadata["charge_type"]),
		OperationId:   tx.Metadata["operation_id"],
		BaseAmount:    baseAmount,
		FeeAmount:     feeAmount,
		Status:        models.EntryStatus(tx.Metadata["status"]),
		ChainTxRef:    tx.Metadata["chain_tx_ref"],
		FailureReason: tx.Metadata["failure_reason"],
		CreatedAt:     tx.Timestamp,
	}
	if raw := tx.Metadata["confirmed_at"]; raw != "" {
		if confirmedAt, err := time.Parse(time.RFC3339, raw); err == nil {
			entry.ConfirmedAt = &confirmedAt
		}
	}
	return entry
}
