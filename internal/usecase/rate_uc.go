package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/repository"

	"github.com/redis/go-redis/v9"
)

const ratesCacheKey = "settlement:rates"

// RateUsecase serves the read-only rate table with caching. Rates are
// stable configuration, so a relatively long TTL is fine.
type RateUsecase struct {
	rateRepo    repository.RateRepository
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewRateUsecase(rateRepo repository.RateRepository, redisClient *redis.Client, cacheTTL time.Duration) *RateUsecase {
	return &RateUsecase{
		rateRepo:    rateRepo,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// GetRates returns the active rate table.
func (uc *RateUsecase) GetRates(ctx context.Context) (*domain.RateTable, error) {
	if uc.redisClient != nil {
		if val, err := uc.redisClient.Get(ctx, ratesCacheKey).Result(); err == nil {
			var cached domain.RateTable
			if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
				return &cached, nil
			}
		}
	}

	rates, err := uc.rateRepo.LoadRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate table: %w", err)
	}

	if uc.redisClient != nil {
		if data, err := json.Marshal(rates); err == nil {
			_ = uc.redisClient.Set(ctx, ratesCacheKey, data, uc.cacheTTL).Err()
		}
	}

	return rates, nil
}
