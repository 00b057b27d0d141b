package repository

import (
	"context"
	"fmt"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/pkg/xerrors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PayoutRepository interface {
	// Settle atomically releases the covering entries and records the
	// payout. All entries must still be held: if any was touched by a
	// concurrent caller the whole settlement rolls back with
	// xerrors.ErrConcurrentModification. The transaction takes a per-user
	// advisory lock so two settlements for the same payee serialize at
	// the database even across service instances.
	Settle(ctx context.Context, payout *domain.Payout, entryCodes []string, rt domain.ReleaseType, at time.Time) error

	SumWithdrawnSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)
	CountInstantSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Payout, error)
}

type payoutRepo struct {
	db *pgxpool.Pool
}

func NewPayoutRepo(db *pgxpool.Pool) PayoutRepository {
	return &payoutRepo{db: db}
}

func (r *payoutRepo) Settle(ctx context.Context, payout *domain.Payout, entryCodes []string, rt domain.ReleaseType, at time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize settlements per payee across all service instances.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, payout.UserID); err != nil {
		return fmt.Errorf("failed to take payee lock: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE escrow_entries
		SET status = 'released', release_type = $3, released_at = $4, payout_at = $4
		WHERE entry_code = ANY($1)
		AND payee_id = $2
		AND status IN ('held','pending_confirmation')
	`, entryCodes, payout.UserID, string(rt), at)
	if err != nil {
		return fmt.Errorf("failed to release entries: %w", err)
	}
	if int(tag.RowsAffected()) != len(entryCodes) {
		// Another caller consumed at least one of these entries between
		// our balance snapshot and this update. Nothing is committed.
		return xerrors.ErrConcurrentModification
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payouts (
			payout_code, user_id, amount, instant_fee, net_amount,
			is_instant, entry_count, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`,
		payout.PayoutCode, payout.UserID, payout.Amount, payout.InstantFee,
		payout.NetAmount, payout.IsInstant, payout.EntryCount, payout.CreatedAt,
	).Scan(&payout.ID)
	if err != nil {
		return fmt.Errorf("failed to record payout: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}

func (r *payoutRepo) SumWithdrawnSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payouts
		WHERE user_id = $1 AND created_at >= $2
	`, userID, since).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum withdrawals: %w", err)
	}
	return sum, nil
}

func (r *payoutRepo) CountInstantSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM payouts
		WHERE user_id = $1 AND is_instant = true AND created_at >= $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count instant cashouts: %w", err)
	}
	return count, nil
}

func (r *payoutRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Payout, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, payout_code, user_id, amount, instant_fee, net_amount,
		       is_instant, entry_count, created_at
		FROM payouts
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*domain.Payout
	for rows.Next() {
		var p domain.Payout
		if err := rows.Scan(
			&p.ID, &p.PayoutCode, &p.UserID, &p.Amount, &p.InstantFee,
			&p.NetAmount, &p.IsInstant, &p.EntryCount, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, &p)
	}
	return payouts, rows.Err()
}
