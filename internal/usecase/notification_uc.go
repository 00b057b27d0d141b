package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"settlement-service/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	NotificationBatchSize  = 50
	NotificationFlushEvery = 2 * time.Second
)

// ===============================
// NOTIFICATION BATCHER
// ===============================

// NotificationBatcher collects payout notification requests and flushes
// them to the notification topic in batches. Publishing is strictly
// fire-and-forget: a failed flush is logged and the batch dropped, and a
// delivery failure never affects the settlement that triggered it.
type NotificationBatcher struct {
	writer        *kafka.Writer
	logger        *zap.Logger
	batch         []*domain.NotificationRequest
	batchSize     int
	flushInterval time.Duration
	mu            sync.Mutex
	stopChan      chan struct{}
}

func NewNotificationBatcher(writer *kafka.Writer, logger *zap.Logger, batchSize int, interval time.Duration) *NotificationBatcher {
	return &NotificationBatcher{
		writer:        writer,
		logger:        logger,
		batchSize:     batchSize,
		flushInterval: interval,
		stopChan:      make(chan struct{}),
	}
}

func (nb *NotificationBatcher) Start() {
	go nb.worker()
}

func (nb *NotificationBatcher) Stop() {
	close(nb.stopChan)
	nb.flush()
}

func (nb *NotificationBatcher) Add(notif *domain.NotificationRequest) {
	nb.mu.Lock()
	nb.batch = append(nb.batch, notif)
	shouldFlush := len(nb.batch) >= nb.batchSize
	nb.mu.Unlock()

	if shouldFlush {
		nb.flush()
	}
}

// Notify queues a payout notification for a user.
func (nb *NotificationBatcher) Notify(userID, title, message string) {
	if nb == nil {
		return
	}
	nb.Add(&domain.NotificationRequest{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    "payout",
	})
}

func (nb *NotificationBatcher) worker() {
	ticker := time.NewTicker(nb.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			nb.flush()
		case <-nb.stopChan:
			return
		}
	}
}

func (nb *NotificationBatcher) flush() {
	nb.mu.Lock()
	if len(nb.batch) == 0 {
		nb.mu.Unlock()
		return
	}
	batch := nb.batch
	nb.batch = nil
	nb.mu.Unlock()

	if nb.writer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages := make([]kafka.Message, 0, len(batch))
	for _, notif := range batch {
		payload, err := json.Marshal(notif)
		if err != nil {
			nb.logger.Warn("failed to marshal notification", zap.Error(err), zap.String("user_id", notif.UserID))
			continue
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(notif.UserID),
			Value: payload,
			Time:  time.Now(),
		})
	}

	if err := nb.writer.WriteMessages(ctx, messages...); err != nil {
		// Dropped on purpose: notification delivery must never roll back
		// a settlement that already committed.
		nb.logger.Error("failed to send notification batch",
			zap.Error(err),
			zap.Int("batch_size", len(messages)))
		return
	}

	nb.logger.Debug("notification batch sent", zap.Int("count", len(messages)))
}
