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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"solana-fee-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	balanceTimeout, err := getEnvDuration("CHAIN_BALANCE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	transferTimeout, err := getEnvDuration("CHAIN_TRANSFER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	confirmTimeout, err := getEnvDuration("CHAIN_CONFIRM_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, err
	}

	confirmPollInterval, err := getEnvDuration("CHAIN_CONFIRM_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}

	renewalSweepInterval, err := getEnvDuration("RENEWAL_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	reconcileSweepInterval, err := getEnvDuration("RECONCILE_SWEEP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	reconcilePendingAge, err := getEnvDuration("RECONCILE_PENDING_AGE", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	tradeFeeRate, err := getEnvDecimal("TRADE_FEE_RATE", "0.001")
	if err != nil {
		return nil, err
	}

	subscriptionTxRate, err := getEnvDecimal("SUBSCRIPTION_TX_RATE", "0.001")
	if err != nil {
		return nil, err
	}

	walletCreationFee, err := getEnvDecimal("WALLET_CREATION_FEE", "0.01")
	if err != nil {
		return nil, err
	}

	minimumFee, err := getEnvDecimal("MINIMUM_FEE", "0.001")
	if err != nil {
		return nil, err
	}

	gracePeriodDays := getEnvInt("GRACE_PERIOD_DAYS", 3)
	billingCycleDays := getEnvInt("BILLING_CYCLE_DAYS", 30)

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "feeledger.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Ledger: models.LedgerConfig{
			Backend: getEnvString("LEDGER_BACKEND", "sqlite"),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER_NAME", "trading-fee-ledger"),
		},
		Chain: models.ChainConfig{
			RPCURL:              getEnvString("CHAIN_RPC_URL", "https://api.mainnet-beta.solana.com"),
			AdminWalletAddress:  getEnvString("ADMIN_WALLET_ADDRESS", ""),
			BalanceTimeout:      balanceTimeout,
			TransferTimeout:     transferTimeout,
			ConfirmTimeout:      confirmTimeout,
			ConfirmPollInterval: confirmPollInterval,
		},
		Fees: models.FeeConfig{
			TradeFeeRate:       tradeFeeRate,
			SubscriptionTxRate: subscriptionTxRate,
			WalletCreationFee:  walletCreationFee,
			MinimumFee:         minimumFee,
			TokenDecimals:      int32(getEnvInt("TOKEN_DECIMALS", 9)),
		},
		Billing: models.BillingConfig{
			GracePeriod:            time.Duration(gracePeriodDays) * 24 * time.Hour,
			BillingCycle:           time.Duration(billingCycleDays) * 24 * time.Hour,
			RenewalSweepInterval:   renewalSweepInterval,
			ReconcileSweepInterval: reconcileSweepInterval,
			ReconcilePendingAge:    reconcilePendingAge,
			TiersFile:              getEnvString("TIERS_FILE", "tiers.yaml"),
		},
		Notify: models.NotifyConfig{
			SendgridAPIKey: getEnvString("SENDGRID_API_KEY", ""),
			FromEmail:      getEnvString("NOTIFY_FROM_EMAIL", ""),
		},
		Wallets: models.WalletConfig{
			EncryptionSecret: getEnvString("WALLET_ENCRYPTION_SECRET", ""),
		},
	}, nil
}

// RequireAdminWallet fails when no fee-collection destination is configured.
// Binaries that move value call this before doing anything else.
func RequireAdminWallet(cfg *models.Config) error {
	if cfg.Chain.AdminWalletAddress == "" {
		return fmt.Errorf("ADMIN_WALLET_ADDRESS must be set")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
	}
	return d, nil
}
