package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"solana-fee-ledger-go/internal/chain"
	"solana-fee-ledger-go/internal/config"
	"solana-fee-ledger-go/internal/database"
	"solana-fee-ledger-go/internal/fees"
	"solana-fee-ledger-go/internal/formance"
	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/notify"
	"solana-fee-ledger-go/internal/orchestrator"
	"solana-fee-ledger-go/internal/store"
	"solana-fee-ledger-go/internal/subscriptions"
	"solana-fee-ledger-go/internal/wallets"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services bundles the fully wired engine. The ledger backend is chosen by
// configuration: SQLite by default, Formance when LEDGER_BACKEND=formance.
// Users, wallets, and subscriptions always live in SQLite; only the charge
// ledger is swappable.
type Services struct {
	DbService     *database.Service
	Ledger        store.ChargeLedger
	ChainService  *chain.RPCService
	Calculator    *fees.Calculator
	Orchestrator  *orchestrator.Orchestrator
	Reconciler    *orchestrator.Reconciler
	WalletManager *wallets.Manager
	Subscriptions *subscriptions.StateMachine
	Notifier      notify.Notifier
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	if err := config.RequireAdminWallet(cfg); err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	ledger, err := initializeLedger(ctx, cfg, dbService)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	keyring, err := wallets.NewKeyring(cfg.Wallets.EncryptionSecret)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	chainService, err := chain.NewRPCService(cfg.Chain, chain.NewKeySigner(keyring))
	if err != nil {
		dbService.Close()
		return nil, err
	}

	calc, err := fees.NewCalculator(cfg.Fees)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	orch, err := orchestrator.NewOrchestrator(ledger, dbService, chainService, calc, cfg.Chain.AdminWalletAddress)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	catalog, err := loadTierCatalog(cfg.Billing.TiersFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	notifier := notify.FromConfig(cfg.Notify)

	// Both the state machine and the wallet manager hold the user's lock
	// across their whole mutation, so each charges through the held variant.
	stateMachine := subscriptions.NewStateMachine(dbService, orch.HeldCharger(), ledger, orch.Locks(), catalog, notifier, cfg.Billing)
	walletManager := wallets.NewManager(dbService, keyring, keyring, orch.HeldCharger(), orch.Locks(), stateMachine)

	return &Services{
		DbService:     dbService,
		Ledger:        ledger,
		ChainService:  chainService,
		Calculator:    calc,
		Orchestrator:  orch,
		Reconciler:    orchestrator.NewReconciler(ledger, chainService, cfg.Billing.ReconcilePendingAge),
		WalletManager: walletManager,
		Subscriptions: stateMachine,
		Notifier:      notifier,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like querying charge history.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	// With the SQLite backend the ledger is the database service itself;
	// close it once.
	if cs.Ledger != nil {
		if _, isDb := cs.Ledger.(*database.Service); !isDb {
			cs.Ledger.Close()
		}
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func initializeLedger(ctx context.Context, cfg *models.Config, dbService *database.Service) (store.ChargeLedger, error) {
	switch cfg.Ledger.Backend {
	case "", "sqlite":
		return dbService, nil
	case "formance":
		zap.L().Info("Using Formance charge-ledger backend")
		return formance.NewService(ctx, cfg.Formance)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q (expected sqlite or formance)", cfg.Ledger.Backend)
	}
}

// loadTierCatalog falls back to the built-in tiers when the configured file
// is absent, so binaries run out of the box.
func loadTierCatalog(path string) (*subscriptions.Catalog, error) {
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			zap.L().Info("Tiers file not found, using built-in tiers", zap.String("path", path))
			return subscriptions.DefaultCatalog(), nil
		}
	}
	return subscriptions.LoadCatalog(path)
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
