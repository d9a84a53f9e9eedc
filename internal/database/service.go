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
	"fmt"

	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.ChargeLedger.
var _ store.ChargeLedger = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	-- Create users table
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_users_active ON users(active);

	-- Trading wallets: the single charge source per user.
	CREATE TABLE IF NOT EXISTS trading_wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		address TEXT NOT NULL,
		encrypted_key TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		connected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trading_wallets_user ON trading_wallets(user_id);
	-- The one-trading-wallet-per-user invariant, enforced at the storage layer.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trading_wallets_one_active
		ON trading_wallets(user_id) WHERE active = 1;

	-- Analysis wallets: monitored, never a charge source.
	CREATE TABLE IF NOT EXISTS analysis_wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		address TEXT NOT NULL,
		encrypted_key TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_analysis_wallets_user ON analysis_wallets(user_id);
	CREATE INDEX IF NOT EXISTS idx_analysis_wallets_address ON analysis_wallets(address);

	-- Ledger entries: append-only audit trail of every charge attempt.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		charge_type TEXT NOT NULL,
		operation_id TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		fee_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		chain_tx_ref TEXT NOT NULL DEFAULT '',
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		confirmed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_status ON ledger_entries(status);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_created_at ON ledger_entries(created_at);
	-- Idempotency key: at most one non-failed entry per (user, type, operation).
	-- Failed entries release the key so the operation can be retried.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_entries_idempotency
		ON ledger_entries(user_id, charge_type, operation_id) WHERE status != 'failed';

	-- Subscriptions: one row per user, upserted by the state machine.
	CREATE TABLE IF NOT EXISTS subscriptions (
		user_id TEXT PRIMARY KEY REFERENCES users(id),
		tier TEXT NOT NULL DEFAULT 'free',
		last_paid TIMESTAMP,
		expiry TIMESTAMP,
		status TEXT NOT NULL DEFAULT 'active',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_expiry ON subscriptions(expiry);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status);
	`

	_, err := s.db.Exec(schema)
	return err
}
