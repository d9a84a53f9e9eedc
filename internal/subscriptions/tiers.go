package subscriptions

import (
	"fmt"
	"os"

	"solana-fee-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// TierInfo is a plan's price and feature limits.
type TierInfo struct {
	Price  decimal.Decimal
	Limits models.TierLimits
}

// Catalog maps tier names to their pricing and limits. Immutable after load.
type Catalog struct {
	tiers map[models.Tier]TierInfo
}

type tierFile struct {
	Tiers map[string]tierSpec `yaml:"tiers"`
}

type tierSpec struct {
	Price      string `yaml:"price"`
	MaxWallets int    `yaml:"max_wallets"`
	MaxAlerts  int    `yaml:"max_alerts"`
}

// DefaultCatalog returns the built-in tier table, used when no tiers file
// is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{tiers: map[models.Tier]TierInfo{
		models.TierFree: {
			Price:  decimal.Zero,
			Limits: models.TierLimits{MaxWallets: 1, MaxAlerts: 5},
		},
		models.TierPremium: {
			Price:  decimal.RequireFromString("0.1"),
			Limits: models.TierLimits{MaxWallets: 3, MaxAlerts: 20},
		},
		models.TierPro: {
			Price:  decimal.RequireFromString("0.5"),
			Limits: models.TierLimits{MaxWallets: 10, MaxAlerts: 100},
		},
	}}
}

// LoadCatalog reads a tier table from a YAML file. An empty path returns
// the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read tiers file: %w", err)
	}

	var file tierFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("unable to parse tiers file: %w", err)
	}
	if len(file.Tiers) == 0 {
		return nil, fmt.Errorf("tiers file %s defines no tiers", path)
	}

	tiers := make(map[models.Tier]TierInfo, len(file.Tiers))
	for name, spec := range file.Tiers {
		price, err := decimal.NewFromString(spec.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for tier %s: %w", spec.Price, name, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("tier %s has negative price %s", name, price.String())
		}
		tiers[models.Tier(name)] = TierInfo{
			Price:  price,
			Limits: models.TierLimits{MaxWallets: spec.MaxWallets, MaxAlerts: spec.MaxAlerts},
		}
	}

	if _, ok := tiers[models.TierFree]; !ok {
		return nil, fmt.Errorf("tiers file %s must define the free tier", path)
	}

	return &Catalog{tiers: tiers}, nil
}

// Info returns the catalog entry for a tier.
func (c *Catalog) Info(tier models.Tier) (TierInfo, error) {
	info, ok := c.tiers[tier]
	if !ok {
		return TierInfo{}, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return info, nil
}

// Valid reports whether the tier exists in the catalog.
func (c *Catalog) Valid(tier models.Tier) bool {
	_, ok := c.tiers[tier]
	return ok
}
