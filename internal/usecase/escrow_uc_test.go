package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/pkg/utils"
	"settlement-service/pkg/xerrors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestEscrowUC(escrow *fakeEscrowRepo, accounts *fakeAccountRepo) *EscrowUsecase {
	tierUC := NewTierUsecase(accounts, nil)
	rateUC := NewRateUsecase(fakeRateRepo{}, nil, time.Minute)
	return NewEscrowUsecase(escrow, tierUC, rateUC, utils.NewCodeGenerator(), nil, nil, nil, zap.NewNop())
}

func seedHeld(t *testing.T, repo *fakeEscrowRepo, payee, amount string, createdAt time.Time) *domain.EscrowEntry {
	t.Helper()
	payout, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("bad amount %q: %v", amount, err)
	}
	autoReleaseAt := createdAt.Add(domain.AutoReleasePeriod)
	entry := &domain.EscrowEntry{
		EntryCode:     utils.NewCodeGenerator().EntryCode(),
		PayerID:       "payer-1",
		PayeeID:       payee,
		TaskID:        "task-1",
		GrossAmount:   payout,
		PlatformFee:   decimal.Zero,
		PayoutAmount:  payout,
		Status:        domain.StatusHeld,
		CreatedAt:     createdAt,
		AutoReleaseAt: &autoReleaseAt,
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return entry
}

func TestCreateEntryComputesPayout(t *testing.T) {
	repo := newFakeEscrowRepo()
	accounts := newFakeAccountRepo()
	accounts.put(&domain.PayoutAccount{UserID: "worker-1", Active: true}) // basic tier, 2.5%
	uc := newTestEscrowUC(repo, accounts)

	entry, err := uc.CreateEntry(context.Background(), "client-1", "worker-1", "task-9", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	if !entry.PlatformFee.Equal(decimal.NewFromFloat(2.50)) {
		t.Errorf("platform fee = %s, want 2.50", entry.PlatformFee)
	}
	if !entry.PayoutAmount.Equal(decimal.NewFromFloat(97.50)) {
		t.Errorf("payout amount = %s, want 97.50", entry.PayoutAmount)
	}
	if !entry.PayoutAmount.Equal(entry.GrossAmount.Sub(entry.PlatformFee)) {
		t.Errorf("payout_amount != gross - fee: %s != %s - %s",
			entry.PayoutAmount, entry.GrossAmount, entry.PlatformFee)
	}
	if entry.Status != domain.StatusHeld {
		t.Errorf("status = %s, want held", entry.Status)
	}
	if entry.AutoReleaseAt == nil {
		t.Fatal("auto_release_at not set")
	}
	if got := entry.AutoReleaseAt.Sub(entry.CreatedAt); got != domain.AutoReleasePeriod {
		t.Errorf("auto release window = %s, want %s", got, domain.AutoReleasePeriod)
	}
}

func TestCreateEntryNoPayoutAccountUsesDefaultRate(t *testing.T) {
	repo := newFakeEscrowRepo()
	uc := newTestEscrowUC(repo, newFakeAccountRepo())

	entry, err := uc.CreateEntry(context.Background(), "client-1", "worker-unknown", "task-9", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	// Configured default is 10%.
	if !entry.PlatformFee.Equal(decimal.NewFromInt(10)) {
		t.Errorf("platform fee = %s, want 10", entry.PlatformFee)
	}
}

func TestCreateEntryRejectsNonPositiveGross(t *testing.T) {
	uc := newTestEscrowUC(newFakeEscrowRepo(), newFakeAccountRepo())

	for _, gross := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		if _, err := uc.CreateEntry(context.Background(), "c", "w", "t", gross); !errors.Is(err, xerrors.ErrInvalidAmount) {
			t.Errorf("gross %s: err = %v, want ErrInvalidAmount", gross, err)
		}
	}
}

func TestConcurrentReleaseWinsOnce(t *testing.T) {
	repo := newFakeEscrowRepo()
	uc := newTestEscrowUC(repo, newFakeAccountRepo())
	entry := seedHeld(t, repo, "worker-1", "40", time.Now())

	const callers = 50
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- uc.Release(context.Background(), entry.EntryCode, domain.ReleaseManual, time.Now())
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, xerrors.ErrAlreadyReleased):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("release succeeded %d times, want exactly 1", wins)
	}
	if losses != callers-1 {
		t.Errorf("got %d AlreadyReleased, want %d", losses, callers-1)
	}
}

func TestMutualConfirmationReleases(t *testing.T) {
	repo := newFakeEscrowRepo()
	uc := newTestEscrowUC(repo, newFakeAccountRepo())
	entry := seedHeld(t, repo, "worker-1", "55", time.Now())

	one, err := uc.Confirm(context.Background(), entry.EntryCode, domain.PartyPayer)
	if err != nil {
		t.Fatalf("payer confirm: %v", err)
	}
	if one.Status != domain.StatusHeld {
		t.Errorf("after one confirmation status = %s, want held", one.Status)
	}

	both, err := uc.Confirm(context.Background(), entry.EntryCode, domain.PartyPayee)
	if err != nil {
		t.Fatalf("payee confirm: %v", err)
	}
	if both.Status != domain.StatusReleased {
		t.Errorf("after both confirmations status = %s, want released", both.Status)
	}
	if both.ReleaseType == nil || *both.ReleaseType != domain.ReleaseMutualConfirmation {
		t.Errorf("release type = %v, want mutual_confirmation", both.ReleaseType)
	}

	stored, err := repo.GetByCode(context.Background(), entry.EntryCode)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if stored.Status != domain.StatusReleased {
		t.Errorf("stored status = %s, want released", stored.Status)
	}
}

func TestDisputeLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("dispute blocks release", func(t *testing.T) {
		repo := newFakeEscrowRepo()
		uc := newTestEscrowUC(repo, newFakeAccountRepo())
		entry := seedHeld(t, repo, "worker-1", "25", time.Now())

		if err := uc.MarkDisputed(ctx, entry.EntryCode); err != nil {
			t.Fatalf("MarkDisputed: %v", err)
		}
		if err := uc.Release(ctx, entry.EntryCode, domain.ReleaseManual, time.Now()); !errors.Is(err, xerrors.ErrDisputed) {
			t.Errorf("release of disputed entry: err = %v, want ErrDisputed", err)
		}
	})

	t.Run("approve resolves to manual release", func(t *testing.T) {
		repo := newFakeEscrowRepo()
		uc := newTestEscrowUC(repo, newFakeAccountRepo())
		entry := seedHeld(t, repo, "worker-1", "25", time.Now())

		if err := uc.MarkDisputed(ctx, entry.EntryCode); err != nil {
			t.Fatalf("MarkDisputed: %v", err)
		}
		if err := uc.Resolve(ctx, entry.EntryCode, true); err != nil {
			t.Fatalf("Resolve approve: %v", err)
		}
		stored, _ := repo.GetByCode(ctx, entry.EntryCode)
		if stored.Status != domain.StatusReleased || stored.ReleaseType == nil || *stored.ReleaseType != domain.ReleaseManual {
			t.Errorf("resolved entry = %s/%v, want released/manual", stored.Status, stored.ReleaseType)
		}
	})

	t.Run("refund resolves to terminal refunded", func(t *testing.T) {
		repo := newFakeEscrowRepo()
		uc := newTestEscrowUC(repo, newFakeAccountRepo())
		entry := seedHeld(t, repo, "worker-1", "25", time.Now())

		if err := uc.MarkDisputed(ctx, entry.EntryCode); err != nil {
			t.Fatalf("MarkDisputed: %v", err)
		}
		if err := uc.Resolve(ctx, entry.EntryCode, false); err != nil {
			t.Fatalf("Resolve refund: %v", err)
		}
		stored, _ := repo.GetByCode(ctx, entry.EntryCode)
		if stored.Status != domain.StatusRefunded {
			t.Errorf("refunded entry status = %s, want refunded", stored.Status)
		}
		if err := uc.Release(ctx, entry.EntryCode, domain.ReleaseManual, time.Now()); !errors.Is(err, xerrors.ErrNotHeld) {
			t.Errorf("release of refunded entry: err = %v, want ErrNotHeld", err)
		}
	})

	t.Run("resolve requires a dispute", func(t *testing.T) {
		repo := newFakeEscrowRepo()
		uc := newTestEscrowUC(repo, newFakeAccountRepo())
		entry := seedHeld(t, repo, "worker-1", "25", time.Now())

		if err := uc.Resolve(ctx, entry.EntryCode, true); !errors.Is(err, xerrors.ErrNotHeld) {
			t.Errorf("resolve of held entry: err = %v, want ErrNotHeld", err)
		}
	})
}

func TestStatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEscrowRepo()
	uc := newTestEscrowUC(repo, newFakeAccountRepo())
	entry := seedHeld(t, repo, "worker-1", "25", time.Now())

	if err := uc.Release(ctx, entry.EntryCode, domain.ReleaseManual, time.Now()); err != nil {
		t.Fatalf("release: %v", err)
	}

	if err := uc.MarkDisputed(ctx, entry.EntryCode); !errors.Is(err, xerrors.ErrNotHeld) {
		t.Errorf("dispute of released entry: err = %v, want ErrNotHeld", err)
	}
	if _, err := uc.Confirm(ctx, entry.EntryCode, domain.PartyPayer); !errors.Is(err, xerrors.ErrNotHeld) {
		t.Errorf("confirm of released entry: err = %v, want ErrNotHeld", err)
	}
	if err := uc.Release(ctx, entry.EntryCode, domain.ReleaseManual, time.Now()); !errors.Is(err, xerrors.ErrAlreadyReleased) {
		t.Errorf("second release: err = %v, want ErrAlreadyReleased", err)
	}
}

func TestAutoReleaseSweep(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEscrowRepo()
	uc := newTestEscrowUC(repo, newFakeAccountRepo())

	now := time.Now()
	due := seedHeld(t, repo, "worker-1", "30", now.Add(-80*time.Hour))
	notDue := seedHeld(t, repo, "worker-1", "40", now.Add(-1*time.Hour))
	frozen := seedHeld(t, repo, "worker-2", "50", now.Add(-80*time.Hour))
	if err := uc.MarkDisputed(ctx, frozen.EntryCode); err != nil {
		t.Fatalf("MarkDisputed: %v", err)
	}

	released, err := uc.ReleaseDue(ctx, now, sweepLimit)
	if err != nil {
		t.Fatalf("ReleaseDue: %v", err)
	}
	if released != 1 {
		t.Errorf("first sweep released %d entries, want 1", released)
	}

	stored, _ := repo.GetByCode(ctx, due.EntryCode)
	if stored.Status != domain.StatusReleased || stored.ReleaseType == nil || *stored.ReleaseType != domain.ReleaseAuto72hr {
		t.Errorf("due entry = %s/%v, want released/auto_72hr", stored.Status, stored.ReleaseType)
	}
	if held, _ := repo.GetByCode(ctx, notDue.EntryCode); held.Status != domain.StatusHeld {
		t.Errorf("undue entry status = %s, want held", held.Status)
	}
	if disputed, _ := repo.GetByCode(ctx, frozen.EntryCode); disputed.Status != domain.StatusDisputed {
		t.Errorf("disputed entry status = %s, want disputed", disputed.Status)
	}

	// Idempotent: a second pass finds nothing to do.
	released, err = uc.ReleaseDue(ctx, now, sweepLimit)
	if err != nil {
		t.Fatalf("second ReleaseDue: %v", err)
	}
	if released != 0 {
		t.Errorf("second sweep released %d entries, want 0", released)
	}
}

const sweepLimit = 500
