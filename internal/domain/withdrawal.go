package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxInstantPerDay caps the number of instant cashouts a user can make
// in a single calendar day, independent of tier.
const MaxInstantPerDay = 6

// WithdrawalRequest is the caller's ask: move some of the user's held
// escrow balance into a payout. It is not persisted; only the resulting
// Payout row is.
type WithdrawalRequest struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsInstant bool            `json:"is_instant"`
}

// WithdrawalResult is returned synchronously to the caller. PlatformFee
// is always zero here: the platform fee was already deducted when each
// escrow entry was created, so the payout amounts being consumed are
// net of it.
type WithdrawalResult struct {
	PayoutCode        string          `json:"payout_code"`
	Gross             decimal.Decimal `json:"gross"`
	PlatformFee       decimal.Decimal `json:"platform_fee"`
	InstantFee        decimal.Decimal `json:"instant_fee"`
	NetAmount         decimal.Decimal `json:"net_amount"`
	GSTEstimate       decimal.Decimal `json:"gst_estimate"`
	PSTEstimate       decimal.Decimal `json:"pst_estimate"`
	CoveredEntryCodes []string        `json:"covered_entry_codes"`
}

// Payout is the persisted record of one completed withdrawal. Daily and
// weekly limit checks and the instant-cashout counter aggregate over
// these rows.
type Payout struct {
	ID         int64           `db:"id"`
	PayoutCode string          `db:"payout_code"`
	UserID     string          `db:"user_id"`
	Amount     decimal.Decimal `db:"amount"`
	InstantFee decimal.Decimal `db:"instant_fee"`
	NetAmount  decimal.Decimal `db:"net_amount"`
	IsInstant  bool            `db:"is_instant"`
	EntryCount int             `db:"entry_count"`
	CreatedAt  time.Time       `db:"created_at"`
}

// PayoutAccount is the read-only verification signal consumed from the
// KYC/banking collaborator. The engine never mutates these rows.
type PayoutAccount struct {
	UserID         string    `db:"user_id"`
	Active         bool      `db:"active"`
	BankVerified   bool      `db:"bank_verified"`
	BankLast4      string    `db:"bank_last4"`
	CompletedTasks int       `db:"completed_tasks"`
	UpdatedAt      time.Time `db:"updated_at"`
}
