package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/repository"
	"settlement-service/pkg/xerrors"

	"github.com/redis/go-redis/v9"
)

const tierCacheTTL = 5 * time.Minute

// TierUsecase derives a user's withdrawal tier from the payout-account
// verification signals. The tier is never stored; it is recomputed from
// completed task count and bank verification on every (cached) read.
type TierUsecase struct {
	accountRepo repository.PayoutAccountRepository
	redisClient *redis.Client
}

func NewTierUsecase(accountRepo repository.PayoutAccountRepository, redisClient *redis.Client) *TierUsecase {
	return &TierUsecase{
		accountRepo: accountRepo,
		redisClient: redisClient,
	}
}

// TierInfo returns the user's tier, limits and verification progress.
// Returns xerrors.ErrPayoutAccountInactive when the user has no active
// payout account.
func (uc *TierUsecase) TierInfo(ctx context.Context, userID string) (*domain.TierInfo, error) {
	cacheKey := fmt.Sprintf("tier:user:%s", userID)

	if uc.redisClient != nil {
		if val, err := uc.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var cached domain.TierInfo
			if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
				return &cached, nil
			}
		}
	}

	account, err := uc.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrPayoutAccountInactive
		}
		return nil, fmt.Errorf("failed to load payout account: %w", err)
	}
	if !account.Active {
		return nil, xerrors.ErrPayoutAccountInactive
	}

	level := domain.TierFor(account.CompletedTasks, account.BankVerified)
	info := &domain.TierInfo{
		Level:             level,
		Limits:            domain.LimitsFor(level),
		VerificationScore: domain.VerificationScore(account.CompletedTasks, account.BankVerified),
		CompletedTasks:    account.CompletedTasks,
		BankVerified:      account.BankVerified,
	}

	if uc.redisClient != nil {
		if data, err := json.Marshal(info); err == nil {
			_ = uc.redisClient.Set(ctx, cacheKey, data, tierCacheTTL).Err()
		}
	}

	return info, nil
}
