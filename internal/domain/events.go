package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEvent is published on the settlement_events channel whenever
// an escrow entry changes state or a withdrawal completes. Reporting and
// realtime UI consumers subscribe to it; the engine never reads it back.
type SettlementEvent struct {
	EventType   string          `json:"event_type"` // escrow.released, escrow.disputed, withdrawal.completed
	UserID      string          `json:"user_id"`
	EntryCode   string          `json:"entry_code,omitempty"`
	PayoutCode  string          `json:"payout_code,omitempty"`
	ReleaseType string          `json:"release_type,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NotificationRequest is the fire-and-forget side effect handed to the
// external notifier after each release and withdrawal. Delivery is the
// notifier's problem; a failed publish is logged and dropped.
type NotificationRequest struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"` // always "payout" from this service
}
