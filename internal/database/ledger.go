/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Begin opens a pending ledger entry for a charge attempt. The partial unique
// index on (user_id, charge_type, operation_id) over non-failed entries makes
// this an atomic create-if-absent even when two requests race past the
// duplicate pre-check.
func (s *Service) Begin(ctx context.Context, params store.BeginParams) (*models.LedgerEntry, error) {
	zap.L().Info("Opening ledger entry",
		zap.String("user_id", params.UserId),
		zap.String("charge_type", string(params.ChargeType)),
		zap.String("operation_id", params.OperationId),
		zap.String("base_amount", params.BaseAmount.String()),
		zap.String("fee_amount", params.FeeAmount.String()))

	var existingId string
	err := s.db.QueryRowContext(ctx, queryCheckDuplicateEntry,
		params.UserId, string(params.ChargeType), params.OperationId).Scan(&existingId)
	if err == nil {
		zap.L().Warn("Duplicate charge operation detected",
			zap.String("operation_id", params.OperationId),
			zap.String("existing_entry_id", existingId))
		return nil, fmt.Errorf("%w: operation %s already recorded", store.ErrDuplicateOperation, params.OperationId)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check for duplicate operation: %w", err)
	}

	entry := &models.LedgerEntry{
		Id:          uuid.New().String(),
		UserId:      params.UserId,
		ChargeType:  params.ChargeType,
		OperationId: params.OperationId,
		BaseAmount:  params.BaseAmount,
		FeeAmount:   params.FeeAmount,
		Status:      models.EntryPending,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, queryInsertLedgerEntry,
		entry.Id, entry.UserId, string(entry.ChargeType), entry.OperationId,
		entry.BaseAmount.String(), entry.FeeAmount.String(), entry.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("%w: operation %s already recorded", store.ErrDuplicateOperation, params.OperationId)
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return entry, nil
}

// MarkSubmitted attaches the chain transaction reference to a pending entry
// so the reconciler can query the transfer's fate later.
func (s *Service) MarkSubmitted(ctx context.Context, entryId, chainTxRef string) error {
	result, err := s.db.ExecContext(ctx, queryMarkEntrySubmitted, chainTxRef, entryId)
	if err != nil {
		return fmt.Errorf("failed to mark entry submitted: %w", err)
	}
	return s.checkTransition(ctx, result, entryId)
}

// Confirm transitions a pending entry to confirmed and records the chain
// transaction reference and confirmation time.
func (s *Service) Confirm(ctx context.Context, entryId, chainTxRef string) error {
	result, err := s.db.ExecContext(ctx, queryConfirmLedgerEntry, chainTxRef, time.Now().UTC(), entryId)
	if err != nil {
		return fmt.Errorf("failed to confirm ledger entry: %w", err)
	}
	if err := s.checkTransition(ctx, result, entryId); err != nil {
		return err
	}

	zap.L().Info("Ledger entry confirmed",
		zap.String("entry_id", entryId),
		zap.String("chain_tx_ref", chainTxRef))
	return nil
}

// Fail transitions a pending entry to failed, recording the reason. Failed
// entries release the idempotency key so the operation can be retried.
func (s *Service) Fail(ctx context.Context, entryId, reason string) error {
	result, err := s.db.ExecContext(ctx, queryFailLedgerEntry, reason, entryId)
	if err != nil {
		return fmt.Errorf("failed to fail ledger entry: %w", err)
	}
	if err := s.checkTransition(ctx, result, entryId); err != nil {
		return err
	}

	zap.L().Warn("Ledger entry failed",
		zap.String("entry_id", entryId),
		zap.String("reason", reason))
	return nil
}

// checkTransition distinguishes a missing entry from a guarded-transition miss
// after a zero-row UPDATE.
func (s *Service) checkTransition(ctx context.Context, result sql.Result, entryId string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	entry, err := s.GetLedgerEntry(ctx, entryId)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: entry %s is %s, not pending", store.ErrInvalidTransition, entryId, entry.Status)
}

func (s *Service) GetLedgerEntry(ctx context.Context, entryId string) (*models.LedgerEntry, error) {
	entry, err := scanLedgerEntry(s.db.QueryRowContext(ctx, queryGetLedgerEntry, entryId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrEntryNotFound, entryId)
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return entry, nil
}

// FindOperation returns the non-failed entry holding the idempotency key for
// (user, charge type, operation id), if any.
func (s *Service) FindOperation(ctx context.Context, userId string, chargeType models.ChargeType, operationId string) (*models.LedgerEntry, error) {
	entry, err := scanLedgerEntry(s.db.QueryRowContext(ctx, queryFindOperationEntry,
		userId, string(chargeType), operationId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: operation %s", store.ErrEntryNotFound, operationId)
		}
		return nil, fmt.Errorf("failed to find operation entry: %w", err)
	}
	return entry, nil
}

// History returns a user's charge records, newest first.
func (s *Service) History(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetLedgerHistory, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	return scanLedgerEntries(rows)
}

// PendingOlderThan returns entries still pending after the given age, the
// reconciler's work queue.
func (s *Service) PendingOlderThan(ctx context.Context, age time.Duration) ([]models.LedgerEntry, error) {
	cutoff := time.Now().UTC().Add(-age)
	rows, err := s.db.QueryContext(ctx, queryGetPendingOlderThan, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	return scanLedgerEntries(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var baseStr, feeStr string
	var confirmedAt sql.NullTime

	err := row.Scan(&entry.Id, &entry.UserId, &entry.ChargeType, &entry.OperationId,
		&baseStr, &feeStr, &entry.Status, &entry.ChainTxRef, &entry.FailureReason,
		&entry.CreatedAt, &confirmedAt)
	if err != nil {
		return nil, err
	}

	entry.BaseAmount, err = decimal.NewFromString(baseStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base amount %q: %w", baseStr, err)
	}
	entry.FeeAmount, err = decimal.NewFromString(feeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fee amount %q: %w", feeStr, err)
	}
	if confirmedAt.Valid {
		entry.ConfirmedAt = &confirmedAt.Time
	}
	return &entry, nil
}

func scanLedgerEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return entries, nil
}
