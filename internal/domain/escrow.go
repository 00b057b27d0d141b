package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EscrowStatus string

const (
	StatusHeld                EscrowStatus = "held"
	StatusPendingConfirmation EscrowStatus = "pending_confirmation"
	StatusReleased            EscrowStatus = "released"
	StatusDisputed            EscrowStatus = "disputed"
	StatusRefunded            EscrowStatus = "refunded"
)

type ReleaseType string

const (
	ReleaseInstant            ReleaseType = "instant"
	ReleaseAuto72hr           ReleaseType = "auto_72hr"
	ReleaseMutualConfirmation ReleaseType = "mutual_confirmation"
	ReleaseManual             ReleaseType = "manual"
)

type ConfirmingParty string

const (
	PartyPayer ConfirmingParty = "payer"
	PartyPayee ConfirmingParty = "payee"
)

// AutoReleasePeriod is how long a funded entry stays held before the
// sweep releases it when neither party has acted.
const AutoReleasePeriod = 72 * time.Hour

// EscrowEntry represents one funded task payment held against a task.
// PayoutAmount is fixed at creation (gross minus platform fee) and is
// the only amount a withdrawal ever moves. Entries are never deleted;
// released and refunded rows stay for audit.
type EscrowEntry struct {
	ID           int64           `json:"id"`
	EntryCode    string          `json:"entry_code"`
	PayerID      string          `json:"payer_id"`
	PayeeID      string          `json:"payee_id"`
	TaskID       string          `json:"task_id"`
	GrossAmount  decimal.Decimal `json:"gross_amount"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	PayoutAmount decimal.Decimal `json:"payout_amount"`
	Status       EscrowStatus    `json:"status"`
	ReleaseType  *ReleaseType    `json:"release_type,omitempty"`

	PayerConfirmed bool `json:"payer_confirmed"`
	PayeeConfirmed bool `json:"payee_confirmed"`

	CreatedAt     time.Time  `json:"created_at"`
	AutoReleaseAt *time.Time `json:"auto_release_at,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	PayoutAt      *time.Time `json:"payout_at,omitempty"`
}

// Releasable reports whether the entry can still transition to released.
func (e *EscrowEntry) Releasable() bool {
	return e.Status == StatusHeld || e.Status == StatusPendingConfirmation
}

// BothConfirmed reports whether payer and payee have both signed off.
func (e *EscrowEntry) BothConfirmed() bool {
	return e.PayerConfirmed && e.PayeeConfirmed
}
