package hrest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"settlement-service/internal/domain"
	"settlement-service/internal/pkg/feecalc"
	"settlement-service/internal/usecase"
	"settlement-service/pkg/response"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type SettlementRestHandler struct {
	escrowUC     *usecase.EscrowUsecase
	withdrawalUC *usecase.WithdrawalUsecase
	tierUC       *usecase.TierUsecase
	rateUC       *usecase.RateUsecase
}

func NewSettlementRestHandler(
	escrowUC *usecase.EscrowUsecase,
	withdrawalUC *usecase.WithdrawalUsecase,
	tierUC *usecase.TierUsecase,
	rateUC *usecase.RateUsecase,
) *SettlementRestHandler {
	return &SettlementRestHandler{
		escrowUC:     escrowUC,
		withdrawalUC: withdrawalUC,
		tierUC:       tierUC,
		rateUC:       rateUC,
	}
}

func (h *SettlementRestHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/escrow", func(r chi.Router) {
		r.Post("/", h.CreateEscrow)
		r.Get("/{code}", h.GetEscrow)
		r.Post("/{code}/confirm", h.Confirm)
		r.Post("/{code}/dispute", h.Dispute)
		r.Post("/{code}/resolve", h.Resolve)
	})

	r.Post("/withdrawals", h.Withdraw)
	r.Post("/fees/quote", h.QuoteFees)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/balance", h.GetAvailableBalance)
		r.Get("/payouts", h.GetPayouts)
		r.Get("/releases", h.GetReleaseHistory)
		r.Get("/tier", h.GetTier)
	})

	return r
}

type CreateEscrowJSON struct {
	PayerID     string          `json:"payer_id"`
	PayeeID     string          `json:"payee_id"`
	TaskID      string          `json:"task_id"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

// CreateEscrow records a captured booking payment as a held entry.
// Called by the payment-capture collaborator, not by end users.
func (h *SettlementRestHandler) CreateEscrow(w http.ResponseWriter, r *http.Request) {
	var in CreateEscrowJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.PayerID == "" || in.PayeeID == "" || in.TaskID == "" {
		response.Error(w, http.StatusBadRequest, "payer_id, payee_id and task_id are required")
		return
	}

	entry, err := h.escrowUC.CreateEntry(r.Context(), in.PayerID, in.PayeeID, in.TaskID, in.GrossAmount)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, entry)
}

func (h *SettlementRestHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	entry, err := h.escrowUC.GetEntry(r.Context(), code)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, entry)
}

type ConfirmJSON struct {
	Party domain.ConfirmingParty `json:"party"`
}

func (h *SettlementRestHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var in ConfirmJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Party != domain.PartyPayer && in.Party != domain.PartyPayee {
		response.Error(w, http.StatusBadRequest, "party must be payer or payee")
		return
	}

	entry, err := h.escrowUC.Confirm(r.Context(), chi.URLParam(r, "code"), in.Party)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, entry)
}

func (h *SettlementRestHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	if err := h.escrowUC.MarkDisputed(r.Context(), chi.URLParam(r, "code")); err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, nil)
}

type ResolveJSON struct {
	Approve bool `json:"approve"`
}

// Resolve applies the dispute subsystem's decision.
func (h *SettlementRestHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var in ResolveJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.escrowUC.Resolve(r.Context(), chi.URLParam(r, "code"), in.Approve); err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, nil)
}

type WithdrawJSON struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsInstant bool            `json:"is_instant"`
}

func (h *SettlementRestHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var in WithdrawJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.UserID == "" {
		response.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	result, err := h.withdrawalUC.Withdraw(r.Context(), in.UserID, in.Amount, in.IsInstant)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

type QuoteJSON struct {
	Amount    decimal.Decimal `json:"amount"`
	IsInstant bool            `json:"is_instant"`
}

// QuoteFees returns the fee/tax breakdown for a prospective withdrawal
// so the UI can show it before the user commits.
func (h *SettlementRestHandler) QuoteFees(w http.ResponseWriter, r *http.Request) {
	var in QuoteJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rates, err := h.rateUC.GetRates(r.Context())
	if err != nil {
		handleUsecaseError(w, err)
		return
	}

	breakdown, err := feecalc.Compute(in.Amount, rates.WithPlatformRate(decimal.Zero), in.IsInstant)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, breakdown)
}

func (h *SettlementRestHandler) GetAvailableBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	available, err := h.escrowUC.AvailableBalance(r.Context(), userID)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"available": available,
	})
}

func (h *SettlementRestHandler) GetPayouts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, offset := paginationParams(r)

	payouts, err := h.withdrawalUC.PayoutsFor(r.Context(), userID, limit, offset)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, payouts)
}

func (h *SettlementRestHandler) GetReleaseHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, offset := paginationParams(r)

	entries, err := h.escrowUC.PayoutHistory(r.Context(), userID, limit, offset)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, entries)
}

func (h *SettlementRestHandler) GetTier(w http.ResponseWriter, r *http.Request) {
	info, err := h.tierUC.TierInfo(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, info)
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
