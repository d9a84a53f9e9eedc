package models

import "github.com/shopspring/decimal"

// ChargeResult is returned by the orchestrator on a confirmed charge.
// FeeCharged is the exact amount moved; callers must display it as-is and
// never recompute it.
type ChargeResult struct {
	EntryId    string
	UserId     string
	ChargeType ChargeType
	FeeCharged decimal.Decimal
	ChainTxRef string
	NewBalance decimal.Decimal
}

// TierLimits are the static feature limits of a tier, consumed by the
// feature-gating layer. This engine looks them up but does not enforce them.
type TierLimits struct {
	MaxWallets int
	MaxAlerts  int
}
