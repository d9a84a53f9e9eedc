package wallets

import (
	"context"
	"errors"
	"fmt"

	"solana-fee-ledger-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrWalletLimitReached = errors.New("wallet limit reached for tier")

// Store is the wallet persistence the manager needs.
type Store interface {
	ActiveTradingWallet(ctx context.Context, userId string) (*models.TradingWallet, error)
	ConnectTradingWallet(ctx context.Context, userId, address, encryptedKey string) (*models.TradingWallet, error)
	ReplaceTradingWallet(ctx context.Context, userId, address, encryptedKey string) (*models.TradingWallet, error)
	DisconnectTradingWallet(ctx context.Context, userId string) error
	InsertAnalysisWallet(ctx context.Context, userId, address, encryptedKey, label string) (*models.AnalysisWallet, error)
	ListAnalysisWallets(ctx context.Context, userId string) ([]models.AnalysisWallet, error)
	CountUserWallets(ctx context.Context, userId string) (int, error)
}

// KeyValidator checks user-supplied key material and seals it for storage.
// Validation and encryption live together so plaintext keys never cross a
// package boundary.
type KeyValidator interface {
	ValidateAndEncrypt(ctx context.Context, rawKey string) (encryptedKey string, address string, err error)
}

// KeypairProvider generates a fresh keypair, returning the public address
// and the sealed private key.
type KeypairProvider interface {
	Generate(ctx context.Context) (address string, encryptedKey string, err error)
}

// Charger collects a fee. Calls assume the user's lock is already held.
type Charger interface {
	Charge(ctx context.Context, userId string, chargeType models.ChargeType, operationId string, baseAmount decimal.Decimal) (*models.ChargeResult, error)
}

// Locker is the per-user serialization the manager shares with the charge
// orchestrator.
type Locker interface {
	Lock(userId string)
	Unlock(userId string)
}

// TierLimiter reports the wallet cap for a user's effective tier.
type TierLimiter interface {
	Limits(ctx context.Context, userId string) (models.TierLimits, error)
}

// Manager owns wallet lifecycle: the single trading wallet per user, the
// analysis wallet list, and paid generation of managed wallets. All
// mutations run under the user's lock so they serialize against charges.
type Manager struct {
	store     Store
	validator KeyValidator
	keypairs  KeypairProvider
	charger   Charger
	locks     Locker
	limiter   TierLimiter
}

func NewManager(store Store, validator KeyValidator, keypairs KeypairProvider, charger Charger, locks Locker, limiter TierLimiter) *Manager {
	return &Manager{
		store:     store,
		validator: validator,
		keypairs:  keypairs,
		charger:   charger,
		locks:     locks,
		limiter:   limiter,
	}
}

// Connect registers a user-supplied trading wallet. Fails with
// store.ErrAlreadyConnected when one is already active; the caller must
// Replace instead. The tier wallet cap does not gate this: the trading
// wallet is what pays every fee, so a user at the cap can still connect one.
func (m *Manager) Connect(ctx context.Context, userId, rawKey string) (*models.TradingWallet, error) {
	encryptedKey, address, err := m.validator.ValidateAndEncrypt(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	m.locks.Lock(userId)
	defer m.locks.Unlock(userId)

	return m.store.ConnectTradingWallet(ctx, userId, address, encryptedKey)
}

// Replace swaps the active trading wallet for a new one in a single step.
// The wallet count is unchanged, so no limit check applies.
func (m *Manager) Replace(ctx context.Context, userId, rawKey string) (*models.TradingWallet, error) {
	encryptedKey, address, err := m.validator.ValidateAndEncrypt(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	m.locks.Lock(userId)
	defer m.locks.Unlock(userId)

	return m.store.ReplaceTradingWallet(ctx, userId, address, encryptedKey)
}

// Disconnect deactivates the user's trading wallet. Charges requiring a
// wallet fail until a new one is connected.
func (m *Manager) Disconnect(ctx context.Context, userId string) error {
	m.locks.Lock(userId)
	defer m.locks.Unlock(userId)

	return m.store.DisconnectTradingWallet(ctx, userId)
}

// Current returns the active trading wallet.
func (m *Manager) Current(ctx context.Context, userId string) (*models.TradingWallet, error) {
	return m.store.ActiveTradingWallet(ctx, userId)
}

// AddAnalysisWallet registers an address to monitor. Analysis wallets carry
// no key material unless generated by us, and are never charged.
func (m *Manager) AddAnalysisWallet(ctx context.Context, userId, address, label string) (*models.AnalysisWallet, error) {
	if address == "" {
		return nil, fmt.Errorf("analysis wallet address cannot be empty")
	}

	m.locks.Lock(userId)
	defer m.locks.Unlock(userId)

	if err := m.checkWalletLimit(ctx, userId); err != nil {
		return nil, err
	}
	return m.store.InsertAnalysisWallet(ctx, userId, address, "", label)
}

// ListAnalysisWallets returns the user's monitored wallets.
func (m *Manager) ListAnalysisWallets(ctx context.Context, userId string) ([]models.AnalysisWallet, error) {
	return m.store.ListAnalysisWallets(ctx, userId)
}

// CreateWallet generates a managed wallet for the user, collecting the
// wallet creation fee first. The user's first wallet is free; the fee only
// applies once they have a trading wallet that can pay it.
func (m *Manager) CreateWallet(ctx context.Context, userId, label string) (*models.AnalysisWallet, error) {
	m.locks.Lock(userId)
	defer m.locks.Unlock(userId)

	if err := m.checkWalletLimit(ctx, userId); err != nil {
		return nil, err
	}

	count, err := m.store.CountUserWallets(ctx, userId)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		operationId := fmt.Sprintf("create-wallet:%s", uuid.New().String())
		if _, err := m.charger.Charge(ctx, userId, models.ChargeWalletCreation, operationId, decimal.Zero); err != nil {
			return nil, err
		}
	}

	address, encryptedKey, err := m.keypairs.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to generate keypair: %w", err)
	}

	wallet, err := m.store.InsertAnalysisWallet(ctx, userId, address, encryptedKey, label)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Managed wallet created",
		zap.String("user_id", userId),
		zap.String("address", address),
		zap.Bool("fee_waived", count == 0))
	return wallet, nil
}

func (m *Manager) checkWalletLimit(ctx context.Context, userId string) error {
	limits, err := m.limiter.Limits(ctx, userId)
	if err != nil {
		return err
	}
	count, err := m.store.CountUserWallets(ctx, userId)
	if err != nil {
		return err
	}
	if count >= limits.MaxWallets {
		return fmt.Errorf("%w: %d of %d wallets in use", ErrWalletLimitReached, count, limits.MaxWallets)
	}
	return nil
}
