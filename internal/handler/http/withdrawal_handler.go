package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"payouts/internal/domain"
	"payouts/internal/port"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type WithdrawalHandler struct {
	service  port.WithdrawalService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewWithdrawalHandler(service port.WithdrawalService, logger *zap.Logger) *WithdrawalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WithdrawalHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.Named("http"),
	}
}

// fail writes err using the status it maps to. Internal errors are logged
// and hidden from the caller.
func (h *WithdrawalHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func (h *WithdrawalHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Field: "body", Err: fmt.Errorf("malformed json: %w", err)}
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ValidationError{Field: "body", Err: err}
	}
	fe := verrs[0]
	return &domain.ValidationError{
		Field: lowerFirst(fe.Field()),
		Err:   fmt.Errorf("failed %q check", fe.Tag()),
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func caller(r *http.Request) domain.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

// CreateWithdrawal handles POST /api/v1/withdrawals.
func (h *WithdrawalHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateWithdrawalReq
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.SellerID = caller(r).Subject

	created, err := h.service.CreateWithdrawal(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "withdraw", created)
}

func (h *WithdrawalHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListSellerWithdrawals(r.Context(), caller(r).Subject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "withdraws", list)
}

func (h *WithdrawalHandler) Balance(w http.ResponseWriter, r *http.Request) {
	acct, err := h.service.Balance(r.Context(), caller(r).Subject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "balance", acct)
}

// ListAll handles GET /api/v1/admin/withdrawals with an optional status filter.
func (h *WithdrawalHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{Status: domain.WithdrawalStatus(r.URL.Query().Get("status"))}

	list, err := h.service.ListAll(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "withdraws", list)
}

func (h *WithdrawalHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.AggregateStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "stats", st)
}

func withdrawalID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: "id", Err: errors.New("must be a uuid")}
	}
	return id, nil
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := withdrawalID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	wd, err := h.service.GetWithdrawal(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "withdraw", wd)
}

// Finalize handles PUT /api/v1/admin/withdrawals/{id}.
func (h *WithdrawalHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := withdrawalID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req domain.FinalizeReq
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.WithdrawalID = id
	req.AdminID = caller(r).Subject

	updated, err := h.service.Finalize(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "withdraw", updated)
}

// Credit handles POST /api/v1/admin/balances/{sellerId}/credits.
func (h *WithdrawalHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditReq
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	acct, err := h.service.CreditBalance(r.Context(), chi.URLParam(r, "sellerId"), req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "balance", acct)
}
