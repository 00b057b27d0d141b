package feecalc

import (
	"settlement-service/internal/domain"
	"settlement-service/pkg/xerrors"

	"github.com/shopspring/decimal"
)

// Compute produces the fee/tax breakdown for a gross amount against a
// rate table. Every intermediate money value is rounded half-up to two
// decimal places before it is carried forward, so repeated small
// breakdowns never accumulate fractional-cent drift.
//
// GST and PST are informational estimates only: they are reported so the
// user can see their expected tax liability, and are never deducted from
// Net. The instant fee is a flat charge added only for instant cashouts.
func Compute(gross decimal.Decimal, rates domain.RateTable, instant bool) (*domain.Breakdown, error) {
	if gross.LessThanOrEqual(decimal.Zero) {
		return nil, xerrors.ErrInvalidAmount
	}

	platformFee := round2(gross.Mul(rates.PlatformFeeRate))

	instantFee := decimal.Zero
	if instant {
		instantFee = round2(rates.InstantFee)
	}

	gst := round2(gross.Mul(rates.GSTRate))
	pst := round2(gross.Mul(rates.PSTRate))

	net := round2(gross.Sub(platformFee).Sub(instantFee))

	return &domain.Breakdown{
		Gross:       round2(gross),
		PlatformFee: platformFee,
		InstantFee:  instantFee,
		GST:         gst,
		PST:         pst,
		Net:         net,
	}, nil
}

// PayoutAmount computes the worker-net amount baked into an escrow entry
// at creation time: gross minus the platform fee, never negative.
func PayoutAmount(gross decimal.Decimal, rates domain.RateTable) (payout, fee decimal.Decimal, err error) {
	b, err := Compute(gross, rates, false)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return b.Net, b.PlatformFee, nil
}

// round2 rounds half-up to two decimal places. decimal.Round rounds half
// away from zero, which is half-up for the non-negative money values
// handled here.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
