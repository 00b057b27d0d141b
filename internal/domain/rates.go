package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateTable holds the fee and tax rates the engine consumes. Rates are
// configured externally; the engine reads them from the settlement_rates
// table and never manages their lifecycle.
type RateTable struct {
	PlatformFeeRate decimal.Decimal `json:"platform_fee_rate"`
	GSTRate         decimal.Decimal `json:"gst_rate"`
	PSTRate         decimal.Decimal `json:"pst_rate"`
	InstantFee      decimal.Decimal `json:"instant_fee"`
}

// WithPlatformRate returns a copy of the table with the platform fee
// rate replaced. Withdrawals use a zero rate: the fee was already
// deducted at entry creation.
func (r RateTable) WithPlatformRate(rate decimal.Decimal) RateTable {
	r.PlatformFeeRate = rate
	return r
}

// Breakdown is the fee/tax decomposition of a gross amount. GST and PST
// are informational estimates only and are never deducted from Net.
type Breakdown struct {
	Gross       decimal.Decimal `json:"gross"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	InstantFee  decimal.Decimal `json:"instant_fee"`
	GST         decimal.Decimal `json:"gst"`
	PST         decimal.Decimal `json:"pst"`
	Net         decimal.Decimal `json:"net"`
}

// Rate keys as stored in settlement_rates.
const (
	RateKeyPlatformFee = "platform_fee_rate"
	RateKeyGST         = "gst_rate"
	RateKeyPST         = "pst_rate"
	RateKeyInstantFee  = "instant_fee"
)

type RateRow struct {
	Key       string          `db:"rate_key"`
	Value     decimal.Decimal `db:"rate_value"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// DefaultRateTable carries the Saskatchewan launch configuration:
// 5% GST, 6% PST, 10% platform fee and a flat $1.25 instant cashout fee.
func DefaultRateTable() RateTable {
	return RateTable{
		PlatformFeeRate: decimal.NewFromFloat(0.10),
		GSTRate:         decimal.NewFromFloat(0.05),
		PSTRate:         decimal.NewFromFloat(0.06),
		InstantFee:      decimal.NewFromFloat(1.25),
	}
}

// Rows flattens the table into settlement_rates rows for seeding.
func (r RateTable) Rows() []*RateRow {
	now := time.Now()
	return []*RateRow{
		{Key: RateKeyPlatformFee, Value: r.PlatformFeeRate, UpdatedAt: now},
		{Key: RateKeyGST, Value: r.GSTRate, UpdatedAt: now},
		{Key: RateKeyPST, Value: r.PSTRate, UpdatedAt: now},
		{Key: RateKeyInstantFee, Value: r.InstantFee, UpdatedAt: now},
	}
}
