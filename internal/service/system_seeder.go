package service

// settlement-service/internal/service/system_seeder.go

import (
	"context"
	"fmt"
	"log"

	"settlement-service/internal/domain"
	"settlement-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SystemSeeder handles initial setup: the settlement schema and the
// default rate table. Seeding is idempotent; existing rates are left
// untouched so operator-tuned values survive restarts.
type SystemSeeder struct {
	rateRepo repository.RateRepository
	db       *pgxpool.Pool
}

func NewSystemSeeder(rateRepo repository.RateRepository, db *pgxpool.Pool) *SystemSeeder {
	return &SystemSeeder{
		rateRepo: rateRepo,
		db:       db,
	}
}

// SeedSystem ensures the schema exists and seeds the default rates.
func (s *SystemSeeder) SeedSystem(ctx context.Context) error {
	log.Println("Starting system seeding...")

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.ensureSchema(ctx, tx); err != nil {
		return err
	}

	if errs := s.rateRepo.SeedDefaults(ctx, tx, domain.DefaultRateTable().Rows()); len(errs) > 0 {
		for i, seedErr := range errs {
			log.Printf("rate seed %d failed: %v", i, seedErr)
		}
		return fmt.Errorf("failed to seed %d rate rows", len(errs))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	log.Println("System seeding completed!")
	return nil
}

func (s *SystemSeeder) ensureSchema(ctx context.Context, tx pgx.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS escrow_entries (
			id BIGSERIAL PRIMARY KEY,
			entry_code TEXT NOT NULL UNIQUE,
			payer_id TEXT NOT NULL,
			payee_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			gross_amount NUMERIC(12,2) NOT NULL CHECK (gross_amount > 0),
			platform_fee NUMERIC(12,2) NOT NULL CHECK (platform_fee >= 0),
			payout_amount NUMERIC(12,2) NOT NULL CHECK (payout_amount >= 0),
			status TEXT NOT NULL DEFAULT 'held',
			release_type TEXT,
			payer_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			payee_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			auto_release_at TIMESTAMPTZ,
			released_at TIMESTAMPTZ,
			payout_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_payee_status
			ON escrow_entries (payee_id, status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_auto_release
			ON escrow_entries (auto_release_at)
			WHERE status = 'held'`,
		`CREATE TABLE IF NOT EXISTS payouts (
			id BIGSERIAL PRIMARY KEY,
			payout_code TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			instant_fee NUMERIC(12,2) NOT NULL DEFAULT 0,
			net_amount NUMERIC(12,2) NOT NULL,
			is_instant BOOLEAN NOT NULL DEFAULT FALSE,
			entry_count INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_user_created
			ON payouts (user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS payout_accounts (
			user_id TEXT PRIMARY KEY,
			active BOOLEAN NOT NULL DEFAULT FALSE,
			bank_verified BOOLEAN NOT NULL DEFAULT FALSE,
			bank_last4 TEXT NOT NULL DEFAULT '',
			completed_tasks INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS settlement_rates (
			rate_key TEXT PRIMARY KEY,
			rate_value NUMERIC(12,6) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
