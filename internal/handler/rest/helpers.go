package hrest

import (
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"settlement-service/pkg/response"
	"settlement-service/pkg/xerrors"
)

// ===============================
// ERROR HANDLING
// ===============================

func handleUsecaseError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	// Create a base logger with the original error and function context
	logger := log.WithFields(log.Fields{
		"function":   "handleUsecaseError",
		"error":      err.Error(),
		"error_type": fmt.Sprintf("%T", err),
	})

	switch {
	// ===============================
	// NOT FOUND
	// ===============================
	case errors.Is(err, xerrors.ErrNotFound):
		logger.WithField("http_status", http.StatusNotFound).Warn("resource not found")
		response.Error(w, http.StatusNotFound, err.Error())

	// ===============================
	// INVALID INPUT
	// ===============================
	case errors.Is(err, xerrors.ErrInvalidAmount),
		errors.Is(err, xerrors.ErrInvalidRequest):
		logger.WithField("http_status", http.StatusBadRequest).Warn("invalid request")
		response.Error(w, http.StatusBadRequest, err.Error())

	// ===============================
	// WITHDRAWAL PRECONDITIONS
	// ===============================
	case errors.Is(err, xerrors.ErrInsufficientFunds),
		errors.Is(err, xerrors.ErrPayoutAccountInactive),
		errors.Is(err, xerrors.ErrLimitExceeded),
		errors.Is(err, xerrors.ErrInstantNotEligible),
		errors.Is(err, xerrors.ErrInstantLimitReached),
		errors.Is(err, xerrors.ErrAmountNotExactlyCoverable):
		logger.WithField("http_status", http.StatusUnprocessableEntity).Warn("withdrawal precondition failed")
		response.Error(w, http.StatusUnprocessableEntity, err.Error())

	// ===============================
	// STATE MACHINE CONFLICTS
	// ===============================
	case errors.Is(err, xerrors.ErrAlreadyReleased),
		errors.Is(err, xerrors.ErrDisputed),
		errors.Is(err, xerrors.ErrNotHeld),
		errors.Is(err, xerrors.ErrConcurrentModification):
		logger.WithField("http_status", http.StatusConflict).Warn("escrow state conflict")
		response.Error(w, http.StatusConflict, err.Error())

	default:
		logger.WithField("http_status", http.StatusInternalServerError).Error("unhandled usecase error")
		response.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
