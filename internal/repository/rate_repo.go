package repository

import (
	"context"
	"fmt"
	"time"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RateRepository interface {
	LoadRates(ctx context.Context) (*domain.RateTable, error)
	SeedDefaults(ctx context.Context, tx pgx.Tx, rows []*domain.RateRow) map[int]error
}

type rateRepo struct {
	db *pgxpool.Pool
}

func NewRateRepo(db *pgxpool.Pool) RateRepository {
	return &rateRepo{db: db}
}

// LoadRates reads the rate table, falling back to launch defaults for
// any key not yet configured.
func (r *rateRepo) LoadRates(ctx context.Context) (*domain.RateTable, error) {
	rows, err := r.db.Query(ctx, `SELECT rate_key, rate_value FROM settlement_rates`)
	if err != nil {
		return nil, fmt.Errorf("failed to load rates: %w", err)
	}
	defer rows.Close()

	table := domain.DefaultRateTable()
	for rows.Next() {
		var row domain.RateRow
		if err := rows.Scan(&row.Key, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to scan rate row: %w", err)
		}
		switch row.Key {
		case domain.RateKeyPlatformFee:
			table.PlatformFeeRate = row.Value
		case domain.RateKeyGST:
			table.GSTRate = row.Value
		case domain.RateKeyPST:
			table.PSTRate = row.Value
		case domain.RateKeyInstantFee:
			table.InstantFee = row.Value
		}
	}
	return &table, rows.Err()
}

func (r *rateRepo) SeedDefaults(ctx context.Context, tx pgx.Tx, rateRows []*domain.RateRow) map[int]error {
	if tx == nil {
		return map[int]error{0: fmt.Errorf("transaction cannot be nil")}
	}

	errs := make(map[int]error)
	now := time.Now()

	batch := &pgx.Batch{}
	for _, row := range rateRows {
		batch.Queue(`
			INSERT INTO settlement_rates (rate_key, rate_value, updated_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (rate_key) DO NOTHING
		`, row.Key, row.Value, now)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := range rateRows {
		if _, err := br.Exec(); err != nil {
			errs[i] = err
		}
	}
	return errs
}
