package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

const (
	entryCacheTTL   = 5 * time.Minute
	balanceCacheTTL = 30 * time.Second
)

// EscrowUsecase owns the escrow entry state machine. All status
// transitions funnel through here; nothing else writes escrow rows
// except the withdrawal settlement.
type EscrowUsecase struct {
	escrowRepo repository.EscrowRepository
	tierUC     *TierUsecase
	rateUC     *RateUsecase

	codeGen        *utils.CodeGenerator
	redisClient    *redis.Client
	eventPublisher *publisher.SettlementEventPublisher
	notifier       *NotificationBatcher
	logger         *zap.Logger
}

func NewEscrowUsecase(
	escrowRepo repository.EscrowRepository,
	tierUC *TierUsecase,
	rateUC *RateUsecase,
	codeGen *utils.CodeGenerator,
	redisClient *redis.Client,
	eventPublisher *publisher.SettlementEventPublisher,
	notifier *NotificationBatcher,
	logger *zap.Logger,
) *EscrowUsecase {
	return &EscrowUsecase{
		escrowRepo:     escrowRepo,
		tierUC:         tierUC,
		rateUC:         rateUC,
		codeGen:        codeGen,
		redisClient:    redisClient,
		eventPublisher: eventPublisher,
		notifier:       notifier,
		logger:         logger,
	}
}

// ===============================
// ENTRY CREATION
// ===============================

// CreateEntry records a freshly captured booking payment as a held
// escrow entry. The platform fee is computed once here, from the payee's
// tier rate (falling back to the configured default when the payee has
// no payout account yet), and never recomputed afterwards.
func (uc *EscrowUsecase) CreateEntry(ctx context.Context, payerID, payeeID, taskID string, gross decimal.Decimal) (*domain.EscrowEntry, error) {
	rates, err := uc.rateUC.GetRates(ctx)
	if err != nil {
		return nil, err
	}

	feeRate := rates.PlatformFeeRate
	if tier, tierErr := uc.tierUC.TierInfo(ctx, payeeID); tierErr == nil {
		feeRate = tier.Limits.FeePercent
	} else if !errors.Is(tierErr, xerrors.ErrPayoutAccountInactive) {
		return nil, tierErr
	}

	payoutAmount, platformFee, err := feecalc.PayoutAmount(gross, rates.WithPlatformRate(feeRate))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	autoReleaseAt := now.Add(domain.AutoReleasePeriod)

	entry := &domain.EscrowEntry{
		EntryCode:     uc.codeGen.EntryCode(),
		PayerID:       payerID,
		PayeeID:       payeeID,
		TaskID:        taskID,
		GrossAmount:   gross.Round(2),
		PlatformFee:   platformFee,
		PayoutAmount:  payoutAmount,
		Status:        domain.StatusHeld,
		CreatedAt:     now,
		AutoReleaseAt: &autoReleaseAt,
	}

	if err := uc.escrowRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	uc.invalidateBalance(ctx, payeeID)
	return entry, nil
}

// ===============================
// READS
// ===============================

// GetEntry retrieves an escrow entry by code with caching.
func (uc *EscrowUsecase) GetEntry(ctx context.Context, code string) (*domain.EscrowEntry, error) {
	cacheKey := fmt.Sprintf("escrow:code:%s", code)

	if uc.redisClient != nil {
		if val, err := uc.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var entry domain.EscrowEntry
			if jsonErr := json.Unmarshal([]byte(val), &entry); jsonErr == nil {
				return &entry, nil
			}
		}
	}

	entry, err := uc.escrowRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if uc.redisClient != nil {
		if data, err := json.Marshal(entry); err == nil {
			_ = uc.redisClient.Set(ctx, cacheKey, data, entryCacheTTL).Err()
		}
	}

	return entry, nil
}

// AvailableBalance sums the payout amounts of the user's held entries.
func (uc *EscrowUsecase) AvailableBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	cacheKey := fmt.Sprintf("escrow:available:%s", userID)

	if uc.redisClient != nil {
		if val, err := uc.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			if cached, parseErr := decimal.NewFromString(val); parseErr == nil {
				return cached, nil
			}
		}
	}

	entries, err := uc.escrowRepo.ListHeldByPayee(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	available := decimal.Zero
	for _, e := range entries {
		available = available.Add(e.PayoutAmount)
	}

	if uc.redisClient != nil {
		_ = uc.redisClient.Set(ctx, cacheKey, available.String(), balanceCacheTTL).Err()
	}

	return available, nil
}

// PayoutHistory lists the user's released entries, newest first.
func (uc *EscrowUsecase) PayoutHistory(ctx context.Context, userID string, limit, offset int) ([]*domain.EscrowEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return uc.escrowRepo.ListReleasedByPayee(ctx, userID, limit, offset)
}

// ===============================
// STATE TRANSITIONS
// ===============================

// Release transitions a single entry to released. The repository CAS
// guard guarantees a second caller gets ErrAlreadyReleased rather than a
// double release.
func (uc *EscrowUsecase) Release(ctx context.Context, code string, rt domain.ReleaseType, at time.Time) error {
	entry, err := uc.escrowRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	if err := uc.escrowRepo.ReleaseCAS(ctx, code, rt, at); err != nil {
		return err
	}

	uc.afterRelease(ctx, entry.PayeeID, code, rt, entry.PayoutAmount)
	return nil
}

// Confirm records a party's sign-off. When both parties have confirmed,
// the entry releases immediately as mutual_confirmation without waiting
// for the sweep.
func (uc *EscrowUsecase) Confirm(ctx context.Context, code string, party domain.ConfirmingParty) (*domain.EscrowEntry, error) {
	entry, err := uc.escrowRepo.SetConfirmed(ctx, code, party)
	if err != nil {
		return nil, err
	}

	if entry.BothConfirmed() {
		now := time.Now()
		err := uc.escrowRepo.ReleaseCAS(ctx, code, domain.ReleaseMutualConfirmation, now)
		switch {
		case err == nil:
			rt := domain.ReleaseMutualConfirmation
			entry.Status = domain.StatusReleased
			entry.ReleaseType = &rt
			entry.ReleasedAt = &now
			entry.PayoutAt = &now
			uc.afterRelease(ctx, entry.PayeeID, code, rt, entry.PayoutAmount)
		case errors.Is(err, xerrors.ErrAlreadyReleased):
			// Lost the race to another release path; the flag update
			// above is still recorded.
		default:
			return nil, err
		}
	}

	uc.invalidateEntry(ctx, code)
	return entry, nil
}

// MarkDisputed freezes a held entry. A disputed entry cannot be released
// until the dispute subsystem resolves it.
func (uc *EscrowUsecase) MarkDisputed(ctx context.Context, code string) error {
	entry, err := uc.escrowRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	if err := uc.escrowRepo.MarkDisputed(ctx, code); err != nil {
		return err
	}

	uc.invalidateEntry(ctx, code)
	uc.invalidateBalance(ctx, entry.PayeeID)

	if err := uc.eventPublisher.PublishEscrowDisputed(ctx, entry.PayeeID, code, entry.PayoutAmount); err != nil {
		uc.logger.Warn("failed to publish dispute event", zap.Error(err), zap.String("entry_code", code))
	}
	return nil
}

// Resolve applies the dispute subsystem's decision: approve releases the
// entry as manual, refund moves it to the terminal refunded state.
func (uc *EscrowUsecase) Resolve(ctx context.Context, code string, approve bool) error {
	entry, err := uc.escrowRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if entry.Status != domain.StatusDisputed {
		return xerrors.ErrNotHeld
	}

	if approve {
		// Resolution is the one path allowed to move disputed -> released.
		now := time.Now()
		if err := uc.escrowRepo.ReleaseFromDispute(ctx, code, now); err != nil {
			return err
		}
		uc.afterRelease(ctx, entry.PayeeID, code, domain.ReleaseManual, entry.PayoutAmount)
		return nil
	}

	if err := uc.escrowRepo.MarkRefunded(ctx, code); err != nil {
		return err
	}
	uc.invalidateEntry(ctx, code)
	uc.notifier.Notify(entry.PayerID, "Dispute resolved", "Your payment was refunded.")
	return nil
}

// ===============================
// AUTO-RELEASE SWEEP
// ===============================

// ReleaseDue releases every held entry whose auto-release deadline has
// passed. Each entry releases independently through the CAS guard, so
// re-running the sweep, or racing a concurrent withdrawal, is harmless.
func (uc *EscrowUsecase) ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := uc.escrowRepo.ListDueAutoRelease(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, entry := range due {
		err := uc.escrowRepo.ReleaseCAS(ctx, entry.EntryCode, domain.ReleaseAuto72hr, now)
		switch {
		case err == nil:
			released++
			uc.afterRelease(ctx, entry.PayeeID, entry.EntryCode, domain.ReleaseAuto72hr, entry.PayoutAmount)
		case errors.Is(err, xerrors.ErrAlreadyReleased), errors.Is(err, xerrors.ErrDisputed):
			// Released by another path or frozen since the list query.
		default:
			return released, err
		}
	}
	return released, nil
}

// ===============================
// SIDE EFFECTS
// ===============================

func (uc *EscrowUsecase) afterRelease(ctx context.Context, payeeID, code string, rt domain.ReleaseType, amount decimal.Decimal) {
	uc.invalidateEntry(ctx, code)
	uc.invalidateBalance(ctx, payeeID)

	if err := uc.eventPublisher.PublishEscrowReleased(ctx, payeeID, code, rt, amount); err != nil {
		uc.logger.Warn("failed to publish release event", zap.Error(err), zap.String("entry_code", code))
	}

	uc.notifier.Notify(payeeID, "Payment released",
		fmt.Sprintf("$%s is now available for withdrawal.", amount.StringFixed(2)))
}

func (uc *EscrowUsecase) invalidateEntry(ctx context.Context, code string) {
	if uc.redisClient == nil {
		return
	}
	_ = uc.redisClient.Del(ctx, fmt.Sprintf("escrow:code:%s", code)).Err()
}

func (uc *EscrowUsecase) invalidateBalance(ctx context.Context, userID string) {
	if uc.redisClient == nil {
		return
	}
	_ = uc.redisClient.Del(ctx, fmt.Sprintf("escrow:available:%s", userID)).Err()
}
