package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"payouts/internal/domain"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, key string, value any) {
	writeJSON(w, status, envelope{"success": true, key: value})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"success": false, "error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrWithdrawalNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrSellerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrAccountExists),
		errors.Is(err, domain.ErrContention),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrDuplicateTransactionID),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}

	switch domain.Kind(err) {
	case domain.KindValidation, domain.KindBusiness:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
