package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrNotFound       = errors.New("not found")
)

// Withdrawal validation
var (
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrPayoutAccountInactive    = errors.New("payout account inactive")
	ErrLimitExceeded            = errors.New("withdrawal limit exceeded")
	ErrInstantNotEligible       = errors.New("instant cashout not available on current tier")
	ErrInstantLimitReached      = errors.New("daily instant cashout limit reached")
	ErrAmountNotExactlyCoverable = errors.New("amount not exactly coverable by held entries")
)

// Escrow state machine
var (
	ErrAlreadyReleased        = errors.New("entry already released")
	ErrDisputed               = errors.New("entry is disputed")
	ErrNotHeld                = errors.New("entry is not held")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)
