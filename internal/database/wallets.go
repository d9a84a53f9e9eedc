package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ActiveTradingWallet returns the user's single active trading wallet,
// or store.ErrNoTradingWallet if none is connected.
func (s *Service) ActiveTradingWallet(ctx context.Context, userId string) (*models.TradingWallet, error) {
	var wallet models.TradingWallet
	err := s.db.QueryRowContext(ctx, queryGetActiveTradingWallet, userId).Scan(
		&wallet.Id, &wallet.UserId, &wallet.Address, &wallet.EncryptedKey,
		&wallet.Active, &wallet.ConnectedAt, &wallet.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", store.ErrNoTradingWallet, userId)
		}
		return nil, fmt.Errorf("unable to query trading wallet: %w", err)
	}

	return &wallet, nil
}

// ConnectTradingWallet registers a trading wallet for a user who has none.
// The partial unique index on active rows rejects a second connection even
// under concurrent requests.
func (s *Service) ConnectTradingWallet(ctx context.Context, userId, address, encryptedKey string) (*models.TradingWallet, error) {
	zap.L().Info("Connecting trading wallet",
		zap.String("user_id", userId),
		zap.String("address", address))

	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertTradingWallet, id, userId, address, encryptedKey)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("%w: user %s", store.ErrAlreadyConnected, userId)
		}
		return nil, fmt.Errorf("unable to insert trading wallet: %w", err)
	}

	return s.ActiveTradingWallet(ctx, userId)
}

// ReplaceTradingWallet swaps the user's active trading wallet for a new one.
// Deactivation and insertion happen in a single transaction so the
// one-active-wallet invariant holds at every observable point.
func (s *Service) ReplaceTradingWallet(ctx context.Context, userId, address, encryptedKey string) (*models.TradingWallet, error) {
	zap.L().Info("Replacing trading wallet",
		zap.String("user_id", userId),
		zap.String("new_address", address))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to rollback transaction", zap.Error(err))
		}
	}()

	result, err := tx.ExecContext(ctx, queryDeactivateTradingWallet, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to deactivate trading wallet: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotConnected, userId)
	}

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx, queryInsertTradingWallet, id, userId, address, encryptedKey); err != nil {
		return nil, fmt.Errorf("unable to insert replacement wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit wallet replacement: %w", err)
	}

	return s.ActiveTradingWallet(ctx, userId)
}

// DisconnectTradingWallet deactivates the user's active trading wallet.
// The record is kept for audit.
func (s *Service) DisconnectTradingWallet(ctx context.Context, userId string) error {
	result, err := s.db.ExecContext(ctx, queryDeactivateTradingWallet, userId)
	if err != nil {
		return fmt.Errorf("unable to deactivate trading wallet: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: user %s", store.ErrNotConnected, userId)
	}

	zap.L().Info("Trading wallet disconnected", zap.String("user_id", userId))
	return nil
}

// InsertAnalysisWallet adds a monitored wallet. Analysis wallets have no
// cardinality constraint beyond the user's tier limit, checked by the caller.
func (s *Service) InsertAnalysisWallet(ctx context.Context, userId, address, encryptedKey, label string) (*models.AnalysisWallet, error) {
	wallet := &models.AnalysisWallet{
		Id:           uuid.New().String(),
		UserId:       userId,
		Address:      address,
		EncryptedKey: encryptedKey,
		Label:        label,
		Active:       true,
	}

	_, err := s.db.ExecContext(ctx, queryInsertAnalysisWallet,
		wallet.Id, wallet.UserId, wallet.Address, wallet.EncryptedKey, wallet.Label)
	if err != nil {
		return nil, fmt.Errorf("unable to insert analysis wallet: %w", err)
	}

	zap.L().Info("Analysis wallet added",
		zap.String("user_id", userId),
		zap.String("address", address),
		zap.String("label", label))
	return wallet, nil
}

// ListAnalysisWallets returns the user's monitored wallets, newest first.
func (s *Service) ListAnalysisWallets(ctx context.Context, userId string) ([]models.AnalysisWallet, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAnalysisWallets, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query analysis wallets: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var wallets []models.AnalysisWallet
	for rows.Next() {
		var wallet models.AnalysisWallet
		err := rows.Scan(&wallet.Id, &wallet.UserId, &wallet.Address,
			&wallet.EncryptedKey, &wallet.Label, &wallet.Active, &wallet.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan analysis wallet row: %w", err)
		}
		wallets = append(wallets, wallet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis wallet rows: %w", err)
	}

	return wallets, nil
}

// CountUserWallets returns the number of active wallets a user holds,
// trading and analysis combined. Tier limits are checked against this count.
func (s *Service) CountUserWallets(ctx context.Context, userId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountUserWallets, userId, userId).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count user wallets: %w", err)
	}
	return count, nil
}
