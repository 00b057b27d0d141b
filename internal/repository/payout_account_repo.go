package repository

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/domain"
	"settlement-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PayoutAccountRepository reads the verification signals owned by the
// KYC/banking subsystem. This service never writes payout_accounts.
type PayoutAccountRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.PayoutAccount, error)
}

type payoutAccountRepo struct {
	db *pgxpool.Pool
}

func NewPayoutAccountRepo(db *pgxpool.Pool) PayoutAccountRepository {
	return &payoutAccountRepo{db: db}
}

func (r *payoutAccountRepo) GetByUserID(ctx context.Context, userID string) (*domain.PayoutAccount, error) {
	var a domain.PayoutAccount
	err := r.db.QueryRow(ctx, `
		SELECT user_id, active, bank_verified, bank_last4, completed_tasks, updated_at
		FROM payout_accounts
		WHERE user_id = $1
	`, userID).Scan(
		&a.UserID, &a.Active, &a.BankVerified, &a.BankLast4, &a.CompletedTasks, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payout account: %w", err)
	}
	return &a, nil
}
