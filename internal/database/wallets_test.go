package database

import (
	"context"
	"errors"
	"testing"

	"solana-fee-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

func TestConnectTradingWallet(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	wallet, err := service.ConnectTradingWallet(ctx, "user1", "addr1", "enc-key-1")
	if err != nil {
		t.Fatalf("ConnectTradingWallet failed: %v", err)
	}
	if !wallet.Active {
		t.Error("Expected connected wallet to be active")
	}
	if wallet.Address != "addr1" {
		t.Errorf("Expected address addr1, got %s", wallet.Address)
	}

	got, err := service.ActiveTradingWallet(ctx, "user1")
	if err != nil {
		t.Fatalf("ActiveTradingWallet failed: %v", err)
	}
	if got.Id != wallet.Id {
		t.Errorf("Expected wallet %s, got %s", wallet.Id, got.Id)
	}
}

func TestConnectTradingWallet_SecondConnectionRejected(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.ConnectTradingWallet(ctx, "user1", "addr1", "enc-key-1"); err != nil {
		t.Fatalf("First ConnectTradingWallet failed: %v", err)
	}

	// The unique index on active rows enforces one wallet per user
	_, err := service.ConnectTradingWallet(ctx, "user1", "addr2", "enc-key-2")
	if !errors.Is(err, store.ErrAlreadyConnected) {
		t.Errorf("Expected ErrAlreadyConnected, got: %v", err)
	}
}

func TestActiveTradingWallet_NoneConnected(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.ActiveTradingWallet(context.Background(), "user1")
	if !errors.Is(err, store.ErrNoTradingWallet) {
		t.Errorf("Expected ErrNoTradingWallet, got: %v", err)
	}
}

func TestReplaceTradingWallet(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	old, err := service.ConnectTradingWallet(ctx, "user1", "addr1", "enc-key-1")
	if err != nil {
		t.Fatalf("ConnectTradingWallet failed: %v", err)
	}

	replacement, err := service.ReplaceTradingWallet(ctx, "user1", "addr2", "enc-key-2")
	if err != nil {
		t.Fatalf("ReplaceTradingWallet failed: %v", err)
	}
	if replacement.Id == old.Id {
		t.Error("Expected replacement to be a new wallet record")
	}
	if replacement.Address != "addr2" {
		t.Errorf("Expected address addr2, got %s", replacement.Address)
	}

	// Exactly one active wallet remains
	var count int
	if err := service.db.QueryRowContext(ctx, queryCountActiveTradingWallets, "user1").Scan(&count); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 active wallet, got %d", count)
	}
}

func TestReplaceTradingWallet_NoneConnected(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.ReplaceTradingWallet(context.Background(), "user1", "addr1", "enc-key-1")
	if !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got: %v", err)
	}
}

func TestDisconnectTradingWallet(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.ConnectTradingWallet(ctx, "user1", "addr1", "enc-key-1"); err != nil {
		t.Fatalf("ConnectTradingWallet failed: %v", err)
	}

	if err := service.DisconnectTradingWallet(ctx, "user1"); err != nil {
		t.Fatalf("DisconnectTradingWallet failed: %v", err)
	}

	_, err := service.ActiveTradingWallet(ctx, "user1")
	if !errors.Is(err, store.ErrNoTradingWallet) {
		t.Errorf("Expected ErrNoTradingWallet after disconnect, got: %v", err)
	}

	// A fresh connect works after disconnecting
	if _, err := service.ConnectTradingWallet(ctx, "user1", "addr2", "enc-key-2"); err != nil {
		t.Errorf("Reconnect after disconnect failed: %v", err)
	}
}

func TestAnalysisWallets(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.InsertAnalysisWallet(ctx, "user1", "watch1", "", "whale"); err != nil {
		t.Fatalf("InsertAnalysisWallet failed: %v", err)
	}
	if _, err := service.InsertAnalysisWallet(ctx, "user1", "watch2", "", "dex"); err != nil {
		t.Fatalf("InsertAnalysisWallet failed: %v", err)
	}

	wallets, err := service.ListAnalysisWallets(ctx, "user1")
	if err != nil {
		t.Fatalf("ListAnalysisWallets failed: %v", err)
	}
	if len(wallets) != 2 {
		t.Fatalf("Expected 2 analysis wallets, got %d", len(wallets))
	}
}

func TestCountUserWallets(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	count, err := service.CountUserWallets(ctx, "user1")
	if err != nil {
		t.Fatalf("CountUserWallets failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 wallets, got %d", count)
	}

	if _, err := service.ConnectTradingWallet(ctx, "user1", "addr1", "enc-key-1"); err != nil {
		t.Fatalf("ConnectTradingWallet failed: %v", err)
	}
	if _, err := service.InsertAnalysisWallet(ctx, "user1", "watch1", "", ""); err != nil {
		t.Fatalf("InsertAnalysisWallet failed: %v", err)
	}

	count, err = service.CountUserWallets(ctx, "user1")
	if err != nil {
		t.Fatalf("CountUserWallets failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 wallets, got %d", count)
	}
}
