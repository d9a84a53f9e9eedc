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

package fees

import (
	"errors"
	"fmt"

	"solana-fee-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrInvalidChargeType = errors.New("invalid charge type")
	ErrNegativeRate      = errors.New("rate cannot be negative")
)

// Calculator derives fee amounts from configured rates. It is pure
// arithmetic: no I/O, no clock, safe for concurrent use.
type Calculator struct {
	tradeFeeRate       decimal.Decimal
	subscriptionTxRate decimal.Decimal
	walletCreationFee  decimal.Decimal
	minimumFee         decimal.Decimal
	tokenDecimals      int32
}

func NewCalculator(cfg models.FeeConfig) (*Calculator, error) {
	for name, rate := range map[string]decimal.Decimal{
		"trade fee rate":       cfg.TradeFeeRate,
		"subscription tx rate": cfg.SubscriptionTxRate,
		"wallet creation fee":  cfg.WalletCreationFee,
		"minimum fee":          cfg.MinimumFee,
	} {
		if rate.IsNegative() {
			return nil, fmt.Errorf("%w: %s is %s", ErrNegativeRate, name, rate.String())
		}
	}
	if cfg.TokenDecimals < 0 {
		return nil, fmt.Errorf("token decimals cannot be negative, got %d", cfg.TokenDecimals)
	}

	return &Calculator{
		tradeFeeRate:       cfg.TradeFeeRate,
		subscriptionTxRate: cfg.SubscriptionTxRate,
		walletCreationFee:  cfg.WalletCreationFee,
		minimumFee:         cfg.MinimumFee,
		tokenDecimals:      cfg.TokenDecimals,
	}, nil
}

// TradeFee returns the fee on a trade of the given size: the trade rate
// applied to the amount, floored at the minimum fee.
func (c *Calculator) TradeFee(tradeAmount decimal.Decimal) (decimal.Decimal, error) {
	if !tradeAmount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: trade amount %s", ErrNonPositiveAmount, tradeAmount.String())
	}

	fee := c.round(tradeAmount.Mul(c.tradeFeeRate))
	if fee.LessThan(c.minimumFee) {
		fee = c.minimumFee
	}
	return fee, nil
}

// SubscriptionCharge returns the total to collect for a tier purchase: the
// tier price plus the transaction surcharge. A zero price (the free tier)
// charges nothing, with no minimum applied.
func (c *Calculator) SubscriptionCharge(tierPrice decimal.Decimal) (decimal.Decimal, error) {
	if tierPrice.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: tier price %s", ErrNonPositiveAmount, tierPrice.String())
	}
	if tierPrice.IsZero() {
		return decimal.Zero, nil
	}

	charge := c.round(tierPrice.Mul(decimal.NewFromInt(1).Add(c.subscriptionTxRate)))
	if charge.LessThan(c.minimumFee) {
		charge = c.minimumFee
	}
	return charge, nil
}

// WalletCreationFee returns the flat fee for generating a managed wallet.
func (c *Calculator) WalletCreationFee() decimal.Decimal {
	return c.walletCreationFee
}

// FeeFor dispatches on charge type. Trade fees and subscription charges
// scale with the base amount; wallet creation ignores it.
func (c *Calculator) FeeFor(chargeType models.ChargeType, baseAmount decimal.Decimal) (decimal.Decimal, error) {
	switch chargeType {
	case models.ChargeTradeFee:
		return c.TradeFee(baseAmount)
	case models.ChargeSubscriptionFee:
		return c.SubscriptionCharge(baseAmount)
	case models.ChargeWalletCreation:
		return c.walletCreationFee, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidChargeType, chargeType)
	}
}

// round rounds up to the token's smallest representable unit. Rounding up
// keeps dust from silently undercharging.
func (c *Calculator) round(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundUp(c.tokenDecimals)
}
