package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/pkg/feecalc"
	publisher "settlement-service/internal/pub"
	"settlement-service/internal/repository"
	"settlement-service/pkg/utils"
	"settlement-service/pkg/xerrors"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// withdrawAttempts bounds the automatic retry on concurrent
// modification before the error surfaces to the caller.
const withdrawAttempts = 3

// WithdrawalUsecase orchestrates the whole payout path: balance
// snapshot, tier limit enforcement, FIFO entry selection and the atomic
// settlement. Requests for the same user serialize on an in-process
// keyed mutex; the settlement transaction additionally takes a per-user
// advisory lock in the database, so the aggregate check and the releases
// always observe a consistent set of held entries.
type WithdrawalUsecase struct {
	escrowRepo repository.EscrowRepository
	payoutRepo repository.PayoutRepository
	tierUC     *TierUsecase
	rateUC     *RateUsecase

	codeGen        *utils.CodeGenerator
	redisClient    *redis.Client
	eventPublisher *publisher.SettlementEventPublisher
	notifier       *NotificationBatcher
	logger         *zap.Logger

	userLocks sync.Map // user_id -> *sync.Mutex
}

func NewWithdrawalUsecase(
	escrowRepo repository.EscrowRepository,
	payoutRepo repository.PayoutRepository,
	tierUC *TierUsecase,
	rateUC *RateUsecase,
	codeGen *utils.CodeGenerator,
	redisClient *redis.Client,
	eventPublisher *publisher.SettlementEventPublisher,
	notifier *NotificationBatcher,
	logger *zap.Logger,
) *WithdrawalUsecase {
	return &WithdrawalUsecase{
		escrowRepo:     escrowRepo,
		payoutRepo:     payoutRepo,
		tierUC:         tierUC,
		rateUC:         rateUC,
		codeGen:        codeGen,
		redisClient:    redisClient,
		eventPublisher: eventPublisher,
		notifier:       notifier,
		logger:         logger,
	}
}

// Withdraw converts a requested amount into an atomic release of the
// covering held entries plus a payout record. Concurrent modification is
// the only retried failure; every other error goes straight back to the
// caller.
func (uc *WithdrawalUsecase) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, isInstant bool) (*domain.WithdrawalResult, error) {
	var lastErr error
	for attempt := 1; attempt <= withdrawAttempts; attempt++ {
		result, err := uc.withdrawOnce(ctx, userID, amount, isInstant)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, xerrors.ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
		uc.logger.Warn("withdrawal hit concurrent modification, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt))
	}
	return nil, lastErr
}

func (uc *WithdrawalUsecase) withdrawOnce(ctx context.Context, userID string, amount decimal.Decimal, isInstant bool) (*domain.WithdrawalResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) || !amount.Round(2).Equal(amount) {
		return nil, xerrors.ErrInvalidAmount
	}

	mu := uc.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	// Tier first: no active payout account means no withdrawal at all.
	tier, err := uc.tierUC.TierInfo(ctx, userID)
	if err != nil {
		return nil, err
	}

	held, err := uc.escrowRepo.ListHeldByPayee(ctx, userID)
	if err != nil {
		return nil, err
	}

	available := decimal.Zero
	for _, e := range held {
		available = available.Add(e.PayoutAmount)
	}
	if amount.GreaterThan(available) {
		return nil, xerrors.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	if err := uc.checkLimits(ctx, userID, amount, tier, isInstant, now); err != nil {
		return nil, err
	}

	covered, err := coverExactly(held, amount)
	if err != nil {
		return nil, err
	}

	rates, err := uc.rateUC.GetRates(ctx)
	if err != nil {
		return nil, err
	}

	// The platform fee was deducted when each entry was created, so the
	// withdrawal breakdown runs with a zero platform rate.
	breakdown, err := feecalc.Compute(amount, rates.WithPlatformRate(decimal.Zero), isInstant)
	if err != nil {
		return nil, err
	}

	releaseType := domain.ReleaseManual
	if isInstant {
		releaseType = domain.ReleaseInstant
	}

	payout := &domain.Payout{
		PayoutCode: uc.codeGen.PayoutCode(),
		UserID:     userID,
		Amount:     breakdown.Gross,
		InstantFee: breakdown.InstantFee,
		NetAmount:  breakdown.Net,
		IsInstant:  isInstant,
		EntryCount: len(covered),
		CreatedAt:  now,
	}

	codes := make([]string, len(covered))
	for i, e := range covered {
		codes[i] = e.EntryCode
	}

	if err := uc.payoutRepo.Settle(ctx, payout, codes, releaseType, now); err != nil {
		return nil, err
	}

	uc.afterSettle(ctx, userID, payout, codes)

	return &domain.WithdrawalResult{
		PayoutCode:        payout.PayoutCode,
		Gross:             breakdown.Gross,
		PlatformFee:       decimal.Zero,
		InstantFee:        breakdown.InstantFee,
		NetAmount:         breakdown.Net,
		GSTEstimate:       breakdown.GST,
		PSTEstimate:       breakdown.PST,
		CoveredEntryCodes: codes,
	}, nil
}

func (uc *WithdrawalUsecase) checkLimits(ctx context.Context, userID string, amount decimal.Decimal, tier *domain.TierInfo, isInstant bool, now time.Time) error {
	dayStart := startOfDay(now)
	weekStart := startOfWeek(now)

	withdrawnToday, err := uc.payoutRepo.SumWithdrawnSince(ctx, userID, dayStart)
	if err != nil {
		return err
	}
	if amount.GreaterThan(tier.Limits.DailyLimit.Sub(withdrawnToday)) {
		return xerrors.ErrLimitExceeded
	}

	withdrawnThisWeek, err := uc.payoutRepo.SumWithdrawnSince(ctx, userID, weekStart)
	if err != nil {
		return err
	}
	if amount.GreaterThan(tier.Limits.WeeklyLimit.Sub(withdrawnThisWeek)) {
		return xerrors.ErrLimitExceeded
	}

	if isInstant {
		if !tier.Limits.InstantEnabled {
			return xerrors.ErrInstantNotEligible
		}
		instantToday, err := uc.payoutRepo.CountInstantSince(ctx, userID, dayStart)
		if err != nil {
			return err
		}
		if instantToday >= domain.MaxInstantPerDay {
			return xerrors.ErrInstantLimitReached
		}
	}
	return nil
}

// coverExactly walks the FIFO list accumulating whole entries until the
// running total hits the requested amount exactly. Entries are never
// split: if the prefix sum would overshoot, the amount is not coverable
// and the caller has to pick a different amount.
func coverExactly(held []*domain.EscrowEntry, amount decimal.Decimal) ([]*domain.EscrowEntry, error) {
	running := decimal.Zero
	var covered []*domain.EscrowEntry
	for _, e := range held {
		running = running.Add(e.PayoutAmount)
		covered = append(covered, e)
		switch {
		case running.Equal(amount):
			return covered, nil
		case running.GreaterThan(amount):
			return nil, xerrors.ErrAmountNotExactlyCoverable
		}
	}
	return nil, xerrors.ErrInsufficientFunds
}

func (uc *WithdrawalUsecase) afterSettle(ctx context.Context, userID string, payout *domain.Payout, codes []string) {
	if uc.redisClient != nil {
		_ = uc.redisClient.Del(ctx, fmt.Sprintf("escrow:available:%s", userID)).Err()
		for _, code := range codes {
			_ = uc.redisClient.Del(ctx, fmt.Sprintf("escrow:code:%s", code)).Err()
		}
	}

	if err := uc.eventPublisher.PublishWithdrawalCompleted(ctx, userID, payout.PayoutCode, payout.Amount); err != nil {
		uc.logger.Warn("failed to publish withdrawal event",
			zap.Error(err), zap.String("payout_code", payout.PayoutCode))
	}

	kind := "Withdrawal"
	if payout.IsInstant {
		kind = "Instant cashout"
	}
	uc.notifier.Notify(userID, fmt.Sprintf("%s on the way", kind),
		fmt.Sprintf("$%s is being sent to your bank account.", payout.NetAmount.StringFixed(2)))
}

// PayoutsFor lists the user's payout records, newest first.
func (uc *WithdrawalUsecase) PayoutsFor(ctx context.Context, userID string, limit, offset int) ([]*domain.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return uc.payoutRepo.ListByUser(ctx, userID, limit, offset)
}

func (uc *WithdrawalUsecase) lockFor(userID string) *sync.Mutex {
	mu, _ := uc.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Limit windows are calendar-based in UTC: the day resets at midnight,
// the week on Monday.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return day.AddDate(0, 0, -(weekday - 1))
}
