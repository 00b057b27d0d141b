// settlement-service/internal/pub/pub.go
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"settlement-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	SettlementEventsChannel = "settlement_events"
)

type SettlementEventPublisher struct {
	rdb *redis.Client
}

func NewSettlementEventPublisher(rdb *redis.Client) *SettlementEventPublisher {
	return &SettlementEventPublisher{rdb: rdb}
}

// PublishSettlementEvent publishes a settlement event to Redis.
func (p *SettlementEventPublisher) PublishSettlementEvent(ctx context.Context, event *domain.SettlementEvent) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	event.Timestamp = time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, SettlementEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Printf("[SettlementEvent] Published: %s for user=%s, entry=%s",
		event.EventType, event.UserID, event.EntryCode)

	return nil
}

// PublishEscrowReleased publishes an entry release.
func (p *SettlementEventPublisher) PublishEscrowReleased(ctx context.Context, userID, entryCode string, rt domain.ReleaseType, amount decimal.Decimal) error {
	return p.PublishSettlementEvent(ctx, &domain.SettlementEvent{
		EventType:   "escrow.released",
		UserID:      userID,
		EntryCode:   entryCode,
		ReleaseType: string(rt),
		Amount:      amount,
	})
}

// PublishEscrowDisputed publishes a dispute flag.
func (p *SettlementEventPublisher) PublishEscrowDisputed(ctx context.Context, userID, entryCode string, amount decimal.Decimal) error {
	return p.PublishSettlementEvent(ctx, &domain.SettlementEvent{
		EventType: "escrow.disputed",
		UserID:    userID,
		EntryCode: entryCode,
		Amount:    amount,
	})
}

// PublishWithdrawalCompleted publishes a completed withdrawal.
func (p *SettlementEventPublisher) PublishWithdrawalCompleted(ctx context.Context, userID, payoutCode string, amount decimal.Decimal) error {
	return p.PublishSettlementEvent(ctx, &domain.SettlementEvent{
		EventType:  "withdrawal.completed",
		UserID:     userID,
		PayoutCode: payoutCode,
		Amount:     amount,
	})
}
