package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Ledger   LedgerConfig
	Formance FormanceConfig
	Chain    ChainConfig
	Fees     FeeConfig
	Billing  BillingConfig
	Notify   NotifyConfig
	Wallets  WalletConfig
}

// WalletConfig holds key custody settings. The encryption secret seals
// private key material at rest; it never appears in logs or errors.
type WalletConfig struct {
	EncryptionSecret string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// LedgerConfig selects which charge-ledger backend to run against.
type LedgerConfig struct {
	Backend string // "sqlite" (default) or "formance"
}

// FormanceConfig holds Formance Stack connection settings.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// ChainConfig holds chain RPC node settings. Each call kind carries its own
// timeout; a timeout resumes the caller on the indeterminate path, never into
// an automatic retry of a value transfer.
type ChainConfig struct {
	RPCURL              string
	AdminWalletAddress  string
	BalanceTimeout      time.Duration
	TransferTimeout     time.Duration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
}

// FeeConfig holds fee rates. All rates are configuration, not behavior:
// the source deployments disagree on canonical percentages.
type FeeConfig struct {
	TradeFeeRate       decimal.Decimal // fraction, e.g. 0.001 = 0.1%
	SubscriptionTxRate decimal.Decimal // fraction applied on top of tier price
	WalletCreationFee  decimal.Decimal // flat, in token units
	MinimumFee         decimal.Decimal // floor for any non-zero fee
	TokenDecimals      int32           // smallest denomination, 9 for lamports
}

// BillingConfig holds subscription lifecycle settings.
type BillingConfig struct {
	GracePeriod            time.Duration
	BillingCycle           time.Duration
	RenewalSweepInterval   time.Duration
	ReconcileSweepInterval time.Duration
	ReconcilePendingAge    time.Duration
	TiersFile              string
}

// NotifyConfig holds notification sink settings. Email is used when an API
// key is present, otherwise notifications go to the log only.
type NotifyConfig struct {
	SendgridAPIKey string
	FromEmail      string
}
