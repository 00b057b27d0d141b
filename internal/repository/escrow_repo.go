package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EscrowRepository interface {
	Create(ctx context.Context, entry *domain.EscrowEntry) error
	GetByCode(ctx context.Context, code string) (*domain.EscrowEntry, error)

	// ListHeldByPayee returns the payee's consumable entries oldest
	// first; withdrawals consume them in exactly this order.
	ListHeldByPayee(ctx context.Context, payeeID string) ([]*domain.EscrowEntry, error)
	ListReleasedByPayee(ctx context.Context, payeeID string, limit, offset int) ([]*domain.EscrowEntry, error)
	ListDueAutoRelease(ctx context.Context, now time.Time, limit int) ([]*domain.EscrowEntry, error)

	// ReleaseCAS transitions a single entry to released iff it is still
	// releasable. The guard is the status predicate in the UPDATE itself,
	// so two concurrent callers resolve to exactly one winner.
	ReleaseCAS(ctx context.Context, code string, rt domain.ReleaseType, at time.Time) error
	// ReleaseFromDispute is the dispute-resolution path: the only
	// transition allowed out of disputed besides refund.
	ReleaseFromDispute(ctx context.Context, code string, at time.Time) error
	MarkDisputed(ctx context.Context, code string) error
	MarkRefunded(ctx context.Context, code string) error
	SetConfirmed(ctx context.Context, code string, party domain.ConfirmingParty) (*domain.EscrowEntry, error)
}

type escrowRepo struct {
	db *pgxpool.Pool
}

func NewEscrowRepo(db *pgxpool.Pool) EscrowRepository {
	return &escrowRepo{db: db}
}

const escrowColumns = `
	id, entry_code, payer_id, payee_id, task_id,
	gross_amount, platform_fee, payout_amount,
	status, release_type, payer_confirmed, payee_confirmed,
	created_at, auto_release_at, released_at, payout_at
`

func scanEscrowEntry(row pgx.Row) (*domain.EscrowEntry, error) {
	var e domain.EscrowEntry
	var releaseType *string
	err := row.Scan(
		&e.ID, &e.EntryCode, &e.PayerID, &e.PayeeID, &e.TaskID,
		&e.GrossAmount, &e.PlatformFee, &e.PayoutAmount,
		&e.Status, &releaseType, &e.PayerConfirmed, &e.PayeeConfirmed,
		&e.CreatedAt, &e.AutoReleaseAt, &e.ReleasedAt, &e.PayoutAt,
	)
	if err != nil {
		return nil, err
	}
	if releaseType != nil {
		rt := domain.ReleaseType(*releaseType)
		e.ReleaseType = &rt
	}
	return &e, nil
}

func (r *escrowRepo) Create(ctx context.Context, entry *domain.EscrowEntry) error {
	query := `
		INSERT INTO escrow_entries (
			entry_code, payer_id, payee_id, task_id,
			gross_amount, platform_fee, payout_amount,
			status, payer_confirmed, payee_confirmed,
			created_at, auto_release_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		entry.EntryCode, entry.PayerID, entry.PayeeID, entry.TaskID,
		entry.GrossAmount, entry.PlatformFee, entry.PayoutAmount,
		entry.Status, entry.PayerConfirmed, entry.PayeeConfirmed,
		entry.CreatedAt, entry.AutoReleaseAt,
	).Scan(&entry.ID)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == "23505" {
			return fmt.Errorf("duplicate entry code %s: %w", entry.EntryCode, err)
		}
		return fmt.Errorf("failed to create escrow entry: %w", err)
	}
	return nil
}

func (r *escrowRepo) GetByCode(ctx context.Context, code string) (*domain.EscrowEntry, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_entries WHERE entry_code = $1`
	entry, err := scanEscrowEntry(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get escrow entry: %w", err)
	}
	return entry, nil
}

func (r *escrowRepo) ListHeldByPayee(ctx context.Context, payeeID string) ([]*domain.EscrowEntry, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrow_entries
		WHERE payee_id = $1 AND status IN ('held','pending_confirmation')
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, payeeID)
}

func (r *escrowRepo) ListReleasedByPayee(ctx context.Context, payeeID string, limit, offset int) ([]*domain.EscrowEntry, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrow_entries
		WHERE payee_id = $1 AND status = 'released'
		ORDER BY released_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, payeeID, limit, offset)
}

func (r *escrowRepo) ListDueAutoRelease(ctx context.Context, now time.Time, limit int) ([]*domain.EscrowEntry, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrow_entries
		WHERE status = 'held'
		AND auto_release_at IS NOT NULL
		AND auto_release_at <= $1
		ORDER BY auto_release_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, now, limit)
}

func (r *escrowRepo) list(ctx context.Context, query string, args ...any) ([]*domain.EscrowEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list escrow entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.EscrowEntry
	for rows.Next() {
		entry, err := scanEscrowEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escrow entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *escrowRepo) ReleaseCAS(ctx context.Context, code string, rt domain.ReleaseType, at time.Time) error {
	query := `
		UPDATE escrow_entries
		SET status = 'released', release_type = $2, released_at = $3, payout_at = $3
		WHERE entry_code = $1 AND status IN ('held','pending_confirmation')
	`
	tag, err := r.db.Exec(ctx, query, code, string(rt), at)
	if err != nil {
		return fmt.Errorf("failed to release entry %s: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.transitionConflict(ctx, code)
}

func (r *escrowRepo) ReleaseFromDispute(ctx context.Context, code string, at time.Time) error {
	query := `
		UPDATE escrow_entries
		SET status = 'released', release_type = $2, released_at = $3, payout_at = $3
		WHERE entry_code = $1 AND status = 'disputed'
	`
	tag, err := r.db.Exec(ctx, query, code, string(domain.ReleaseManual), at)
	if err != nil {
		return fmt.Errorf("failed to release disputed entry %s: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := r.transitionConflict(ctx, code); errors.Is(err, xerrors.ErrNotFound) || errors.Is(err, xerrors.ErrAlreadyReleased) {
		return err
	}
	return xerrors.ErrNotHeld
}

func (r *escrowRepo) MarkDisputed(ctx context.Context, code string) error {
	query := `
		UPDATE escrow_entries
		SET status = 'disputed'
		WHERE entry_code = $1 AND status IN ('held','pending_confirmation')
	`
	tag, err := r.db.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to dispute entry %s: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := r.transitionConflict(ctx, code); errors.Is(err, xerrors.ErrNotFound) {
		return err
	}
	return xerrors.ErrNotHeld
}

func (r *escrowRepo) MarkRefunded(ctx context.Context, code string) error {
	query := `
		UPDATE escrow_entries
		SET status = 'refunded'
		WHERE entry_code = $1 AND status = 'disputed'
	`
	tag, err := r.db.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to refund entry %s: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := r.transitionConflict(ctx, code); errors.Is(err, xerrors.ErrNotFound) {
		return err
	}
	return xerrors.ErrNotHeld
}

func (r *escrowRepo) SetConfirmed(ctx context.Context, code string, party domain.ConfirmingParty) (*domain.EscrowEntry, error) {
	column := "payer_confirmed"
	if party == domain.PartyPayee {
		column = "payee_confirmed"
	}
	query := fmt.Sprintf(`
		UPDATE escrow_entries
		SET %s = true
		WHERE entry_code = $1 AND status IN ('held','pending_confirmation')
		RETURNING `+escrowColumns, column)

	entry, err := scanEscrowEntry(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if cerr := r.transitionConflict(ctx, code); errors.Is(cerr, xerrors.ErrNotFound) {
				return nil, cerr
			}
			return nil, xerrors.ErrNotHeld
		}
		return nil, fmt.Errorf("failed to confirm entry %s: %w", code, err)
	}
	return entry, nil
}

// transitionConflict maps a zero-row CAS update to the taxonomy error
// matching the entry's current status.
func (r *escrowRepo) transitionConflict(ctx context.Context, code string) error {
	var status domain.EscrowStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM escrow_entries WHERE entry_code = $1`, code).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xerrors.ErrNotFound
		}
		return fmt.Errorf("failed to read entry status: %w", err)
	}
	switch status {
	case domain.StatusReleased:
		return xerrors.ErrAlreadyReleased
	case domain.StatusDisputed:
		return xerrors.ErrDisputed
	default:
		return xerrors.ErrNotHeld
	}
}
