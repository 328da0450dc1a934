package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/auth"
	"github.com/allosh/allosh-market-service/internal/httpx"
	"github.com/allosh/allosh-market-service/internal/loyalty"
	"github.com/allosh/allosh-market-service/internal/loyalty/dto"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

type LoyaltyHandler struct {
	uc     loyalty.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewLoyaltyHandler(uc loyalty.UseCase, resp *httpx.Responder, log logger.ZapLogger) *LoyaltyHandler {
	return &LoyaltyHandler{uc: uc, resp: resp, logger: log}
}

func (h *LoyaltyHandler) Routes(r chi.Router) {
	r.Use(h.resp.RequireUser)
	r.Get("/{userId}", h.Balance)
	r.Get("/{userId}/transactions", h.History)
}

// canRead lets customers see their own balance and admins see anyone's.
func canRead(r *http.Request, userID string) bool {
	u, ok := auth.FromContext(r.Context())
	return ok && (u.IsAdmin() || u.UserID == userID)
}

func (h *LoyaltyHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !canRead(r, userID) {
		h.resp.Error(w, r, apperror.New(apperror.KindForbidden, ""))
		return
	}

	acc, err := h.uc.Balance(r.Context(), userID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, dto.BalanceResponse{UserID: acc.UserID, Points: acc.Points})
}

func (h *LoyaltyHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !canRead(r, userID) {
		h.resp.Error(w, r, apperror.New(apperror.KindForbidden, ""))
		return
	}

	txns, err := h.uc.History(r.Context(), userID, httpx.QueryInt(r, "limit", 50))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, txns)
}
