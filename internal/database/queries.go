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

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, active, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email) VALUES (?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, active, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, active, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	queryDeactivateUser = `
		UPDATE users SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	// Trading wallet queries
	queryGetActiveTradingWallet = `
		SELECT id, user_id, address, encrypted_key, active, connected_at, updated_at
		FROM trading_wallets
		WHERE user_id = ? AND active = 1`

	queryInsertTradingWallet = `
		INSERT INTO trading_wallets (id, user_id, address, encrypted_key, active)
		VALUES (?, ?, ?, ?, 1)`

	queryDeactivateTradingWallet = `
		UPDATE trading_wallets
		SET active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND active = 1`

	queryCountActiveTradingWallets = `
		SELECT COUNT(*) FROM trading_wallets WHERE user_id = ? AND active = 1`

	// Analysis wallet queries
	queryInsertAnalysisWallet = `
		INSERT INTO analysis_wallets (id, user_id, address, encrypted_key, label, active)
		VALUES (?, ?, ?, ?, ?, 1)`

	queryGetAnalysisWallets = `
		SELECT id, user_id, address, encrypted_key, label, active, created_at
		FROM analysis_wallets
		WHERE user_id = ? AND active = 1
		ORDER BY created_at DESC`

	queryCountUserWallets = `
		SELECT
			(SELECT COUNT(*) FROM trading_wallets WHERE user_id = ? AND active = 1) +
			(SELECT COUNT(*) FROM analysis_wallets WHERE user_id = ? AND active = 1)`

	// Ledger queries
	queryCheckDuplicateEntry = `
		SELECT id FROM ledger_entries
		WHERE user_id = ? AND charge_type = ? AND operation_id = ? AND status != 'failed'
		LIMIT 1`

	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (
			id, user_id, charge_type, operation_id, base_amount, fee_amount, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`

	queryGetLedgerEntry = `
		SELECT id, user_id, charge_type, operation_id, base_amount, fee_amount,
		       status, chain_tx_ref, failure_reason, created_at, confirmed_at
		FROM ledger_entries
		WHERE id = ?`

	queryMarkEntrySubmitted = `
		UPDATE ledger_entries
		SET chain_tx_ref = ?
		WHERE id = ? AND status = 'pending'`

	queryConfirmLedgerEntry = `
		UPDATE ledger_entries
		SET status = 'confirmed', chain_tx_ref = ?, confirmed_at = ?
		WHERE id = ? AND status = 'pending'`

	queryFailLedgerEntry = `
		UPDATE ledger_entries
		SET status = 'failed', failure_reason = ?
		WHERE id = ? AND status = 'pending'`

	queryFindOperationEntry = `
		SELECT id, user_id, charge_type, operation_id, base_amount, fee_amount,
		       status, chain_tx_ref, failure_reason, created_at, confirmed_at
		FROM ledger_entries
		WHERE user_id = ? AND charge_type = ? AND operation_id = ? AND status != 'failed'
		ORDER BY created_at DESC
		LIMIT 1`

	queryGetLedgerHistory = `
		SELECT id, user_id, charge_type, operation_id, base_amount, fee_amount,
		       status, chain_tx_ref, failure_reason, created_at, confirmed_at
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryGetPendingOlderThan = `
		SELECT id, user_id, charge_type, operation_id, base_amount, fee_amount,
		       status, chain_tx_ref, failure_reason, created_at, confirmed_at
		FROM ledger_entries
		WHERE status = 'pending' AND created_at <= ?
		ORDER BY created_at`

	// Subscription queries
	queryGetSubscription = `
		SELECT user_id, tier, last_paid, expiry, status, updated_at
		FROM subscriptions
		WHERE user_id = ?`

	queryUpsertSubscription = `
		INSERT INTO subscriptions (user_id, tier, last_paid, expiry, status, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			tier = excluded.tier,
			last_paid = excluded.last_paid,
			expiry = excluded.expiry,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`

	queryGetExpiringSubscriptions = `
		SELECT user_id, tier, last_paid, expiry, status, updated_at
		FROM subscriptions
		WHERE tier != 'free' AND status != 'expired' AND expiry IS NOT NULL AND expiry <= ?
		ORDER BY expiry`
)
