package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/coupon"
	"github.com/allosh/allosh-market-service/internal/coupon/dto"
	"github.com/allosh/allosh-market-service/internal/httpx"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

// rejections are reported inside a 200 {valid:false} body instead of as
// HTTP errors.
var rejections = map[apperror.Kind]bool{
	apperror.KindCouponNotFound:       true,
	apperror.KindCouponExpired:        true,
	apperror.KindCouponNotYetValid:    true,
	apperror.KindBelowMinimumOrder:    true,
	apperror.KindUsageLimitExceeded:   true,
	apperror.KindPerUserLimitExceeded: true,
}

type CouponHandler struct {
	uc     coupon.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewCouponHandler(uc coupon.UseCase, resp *httpx.Responder, log logger.ZapLogger) *CouponHandler {
	return &CouponHandler{uc: uc, resp: resp, logger: log}
}

// Routes mounts the storefront endpoints under /coupons.
func (h *CouponHandler) Routes(r chi.Router) {
	r.Post("/validate", h.Validate)
	r.Post("/record-usage", h.RecordUsage)
}

// AdminRoutes mounts coupon CRUD under /admin/coupons.
func (h *CouponHandler) AdminRoutes(r chi.Router) {
	r.Use(h.resp.RequireAdmin)
	r.Get("/", h.ListCoupons)
	r.Post("/", h.CreateCoupon)
	r.Put("/{id}", h.UpdateCoupon)
}

func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var input dto.ValidateCouponInput
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	d, err := h.uc.Validate(r.Context(), &input)
	if err != nil {
		ae := apperror.Classify(err)
		if !rejections[ae.Kind] {
			h.resp.Error(w, r, err)
			return
		}
		h.resp.JSON(w, http.StatusOK, dto.InvalidCouponResponse{
			Valid:   false,
			Error:   string(ae.Kind),
			Message: h.resp.Message(r, ae.Kind, ae.Data),
		})
		return
	}
	h.resp.JSON(w, http.StatusOK, dto.ValidCouponResponse{
		Valid:          true,
		CouponID:       d.CouponID,
		DiscountAmount: d.DiscountAmount,
		FinalTotal:     d.FinalTotal,
	})
}

func (h *CouponHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var input dto.RecordUsageInput
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if err := h.uc.RecordUsage(r.Context(), &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *CouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	page, pageSize := httpx.Pagination(r)
	items, total, err := h.uc.ListCoupons(r.Context(), &dto.CouponFilters{
		ActiveOnly: httpx.QueryBool(r, "activeOnly"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, httpx.ListBody[model.Coupon]{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var input dto.CouponInput
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	c, err := h.uc.CreateCoupon(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusCreated, c)
}

func (h *CouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var input dto.CouponInput
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	c, err := h.uc.UpdateCoupon(r.Context(), chi.URLParam(r, "id"), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, c)
}
