package subscriptions

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"solana-fee-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()

	info, err := catalog.Info(models.TierPremium)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if !info.Price.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("Expected premium price 0.1, got %s", info.Price.String())
	}
	if info.Limits.MaxWallets != 3 {
		t.Errorf("Expected premium max wallets 3, got %d", info.Limits.MaxWallets)
	}

	if !catalog.Valid(models.TierFree) {
		t.Error("Expected free tier to be valid")
	}
	if catalog.Valid(models.Tier("platinum")) {
		t.Error("Expected unknown tier to be invalid")
	}
}

func TestLoadCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	content := `tiers:
  free:
    price: "0"
    max_wallets: 1
    max_alerts: 5
  premium:
    price: "0.2"
    max_wallets: 5
    max_alerts: 50
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write tiers file: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	info, err := catalog.Info(models.TierPremium)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if !info.Price.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("Expected price 0.2, got %s", info.Price.String())
	}
	if info.Limits.MaxWallets != 5 {
		t.Errorf("Expected max wallets 5, got %d", info.Limits.MaxWallets)
	}

	// Pro is not in the file, so it is not in the catalog
	if _, err := catalog.Info(models.TierPro); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("Expected ErrUnknownTier for pro, got: %v", err)
	}
}

func TestLoadCatalog_EmptyPathUsesDefaults(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if !catalog.Valid(models.TierPro) {
		t.Error("Expected default catalog to include the pro tier")
	}
}

func TestLoadCatalog_RejectsMissingFreeTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	content := `tiers:
  premium:
    price: "0.1"
    max_wallets: 3
    max_alerts: 20
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write tiers file: %v", err)
	}

	if _, err := LoadCatalog(path); err == nil {
		t.Error("Expected error for catalog without a free tier")
	}
}

func TestLoadCatalog_RejectsBadPrice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	content := `tiers:
  free:
    price: "not-a-number"
    max_wallets: 1
    max_alerts: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write tiers file: %v", err)
	}

	if _, err := LoadCatalog(path); err == nil {
		t.Error("Expected error for unparseable price")
	}
}
