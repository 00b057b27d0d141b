package usecase

import (
	"context"
	"sync"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// In-memory repository fakes mirroring the Postgres CAS semantics.

type fakeEscrowRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.EscrowEntry
	order   []string
	nextID  int64
}

func newFakeEscrowRepo() *fakeEscrowRepo {
	return &fakeEscrowRepo{entries: make(map[string]*domain.EscrowEntry)}
}

func copyEntry(e *domain.EscrowEntry) *domain.EscrowEntry {
	c := *e
	return &c
}

func (r *fakeEscrowRepo) Create(_ context.Context, entry *domain.EscrowEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	r.entries[entry.EntryCode] = copyEntry(entry)
	r.order = append(r.order, entry.EntryCode)
	return nil
}

func (r *fakeEscrowRepo) GetByCode(_ context.Context, code string) (*domain.EscrowEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[code]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return copyEntry(e), nil
}

func (r *fakeEscrowRepo) ListHeldByPayee(_ context.Context, payeeID string) ([]*domain.EscrowEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.EscrowEntry
	for _, code := range r.order {
		e := r.entries[code]
		if e.PayeeID == payeeID && e.Releasable() {
			out = append(out, copyEntry(e))
		}
	}
	return out, nil
}

func (r *fakeEscrowRepo) ListReleasedByPayee(_ context.Context, payeeID string, limit, offset int) ([]*domain.EscrowEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.EscrowEntry
	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.entries[r.order[i]]
		if e.PayeeID == payeeID && e.Status == domain.StatusReleased {
			out = append(out, copyEntry(e))
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEscrowRepo) ListDueAutoRelease(_ context.Context, now time.Time, limit int) ([]*domain.EscrowEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.EscrowEntry
	for _, code := range r.order {
		e := r.entries[code]
		if e.Status == domain.StatusHeld && e.AutoReleaseAt != nil && !e.AutoReleaseAt.After(now) {
			out = append(out, copyEntry(e))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeEscrowRepo) conflictErr(e *domain.EscrowEntry) error {
	switch e.Status {
	case domain.StatusReleased:
		return xerrors.ErrAlreadyReleased
	case domain.StatusDisputed:
		return xerrors.ErrDisputed
	default:
		return xerrors.ErrNotHeld
	}
}

func (r *fakeEscrowRepo) ReleaseCAS(_ context.Context, code string, rt domain.ReleaseType, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[code]
	if !ok {
		return xerrors.ErrNotFound
	}
	if !e.Releasable() {
		return r.conflictErr(e)
	}
	release(e, rt, at)
	return nil
}

func release(e *domain.EscrowEntry, rt domain.ReleaseType, at time.Time) {
	e.Status = domain.StatusReleased
	e.ReleaseType = &rt
	releasedAt := at
	e.ReleasedAt = &releasedAt
	payoutAt := at
	e.PayoutAt = &payoutAt
}

func (r *fakeEscrowRepo) ReleaseFromDispute(_ context.Context, code string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[code]
	if !ok {
		return xerrors.ErrNotFound
	}
	if e.Status != domain.StatusDisputed {
		if e.Status == domain.StatusReleased {
			return xerrors.ErrAlreadyReleased
		}
		return xerrors.ErrNotHeld
	}
	release(e, domain.ReleaseManual, at)
	return nil
}

func (r *fakeEscrowRepo) MarkDisputed(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[code]
	if !ok {
		return xerrors.ErrNotFound
	}
	if !e.Releasable() {
		return xerrors.ErrNotHeld
	}
	e.Status = domain.StatusDisputed
	return nil
}

func (r *fakeEscrowRepo) MarkRefunded(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[code]
	if !ok {
		return xerrors.ErrNotFound
	}
	if e.Status != domain.StatusDisputed {
		return xerrors.ErrNotHeld
	}
	e.Status = domain.StatusRefunded
	return nil
}

func (r *fakeEscrowRepo) SetConfirmed(_ context.Context, code string, party domain.ConfirmingParty) (*domain.EscrowEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[code]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if !e.Releasable() {
		return nil, xerrors.ErrNotHeld
	}
	if party == domain.PartyPayer {
		e.PayerConfirmed = true
	} else {
		e.PayeeConfirmed = true
	}
	return copyEntry(e), nil
}

type fakePayoutRepo struct {
	mu      sync.Mutex
	escrow  *fakeEscrowRepo
	payouts []*domain.Payout
	nextID  int64
}

func newFakePayoutRepo(escrow *fakeEscrowRepo) *fakePayoutRepo {
	return &fakePayoutRepo{escrow: escrow}
}

func (r *fakePayoutRepo) Settle(_ context.Context, payout *domain.Payout, entryCodes []string, rt domain.ReleaseType, at time.Time) error {
	r.escrow.mu.Lock()
	defer r.escrow.mu.Unlock()

	for _, code := range entryCodes {
		e, ok := r.escrow.entries[code]
		if !ok || !e.Releasable() || e.PayeeID != payout.UserID {
			return xerrors.ErrConcurrentModification
		}
	}
	for _, code := range entryCodes {
		release(r.escrow.entries[code], rt, at)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	payout.ID = r.nextID
	p := *payout
	r.payouts = append(r.payouts, &p)
	return nil
}

func (r *fakePayoutRepo) SumWithdrawnSince(_ context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, p := range r.payouts {
		if p.UserID == userID && !p.CreatedAt.Before(since) {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (r *fakePayoutRepo) CountInstantSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, p := range r.payouts {
		if p.UserID == userID && p.IsInstant && !p.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakePayoutRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*domain.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Payout
	for i := len(r.payouts) - 1; i >= 0; i-- {
		if r.payouts[i].UserID == userID {
			p := *r.payouts[i]
			out = append(out, &p)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.PayoutAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*domain.PayoutAccount)}
}

func (r *fakeAccountRepo) put(a *domain.PayoutAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.UserID] = a
}

func (r *fakeAccountRepo) GetByUserID(_ context.Context, userID string) (*domain.PayoutAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	c := *a
	return &c, nil
}

type fakeRateRepo struct{}

func (fakeRateRepo) LoadRates(context.Context) (*domain.RateTable, error) {
	t := domain.DefaultRateTable()
	return &t, nil
}

func (fakeRateRepo) SeedDefaults(context.Context, pgx.Tx, []*domain.RateRow) map[int]error {
	return nil
}
