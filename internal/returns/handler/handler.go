package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/allosh/allosh-market-service/internal/auth"
	"github.com/allosh/allosh-market-service/internal/httpx"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/internal/returns"
	"github.com/allosh/allosh-market-service/internal/returns/dto"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

type ReturnHandler struct {
	uc     returns.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewReturnHandler(uc returns.UseCase, resp *httpx.Responder, log logger.ZapLogger) *ReturnHandler {
	return &ReturnHandler{uc: uc, resp: resp, logger: log}
}

func (h *ReturnHandler) Routes(r chi.Router) {
	r.Get("/invoice/{returnCode}", h.GetInvoice)
	r.Get("/{id}", h.GetReturn)

	r.Group(func(r chi.Router) {
		r.Use(h.resp.RequireAdmin)
		r.Get("/", h.ListReturns)
		r.Post("/", h.CreateReturn)
		r.Put("/{id}/approve", h.ApproveReturn)
		r.Put("/{id}/reject", h.RejectReturn)
		r.Put("/{id}/complete", h.CompleteReturn)
		r.Post("/{id}/reconcile", h.ReconcileReturn)
	})
}

func (h *ReturnHandler) ListReturns(w http.ResponseWriter, r *http.Request) {
	page, pageSize := httpx.Pagination(r)
	q := r.URL.Query()
	items, total, err := h.uc.ListReturns(r.Context(), &dto.ReturnFilters{
		Status:   q.Get("status"),
		OrderID:  q.Get("orderId"),
		BranchID: q.Get("branchId"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, httpx.ListBody[model.ReturnRequest]{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *ReturnHandler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	var input dto.CreateReturnInput
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	input.CreatedBy = auth.GetUserID(r.Context())

	rr, err := h.uc.CreateReturn(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusCreated, dto.CreateReturnResponse{
		ID:                rr.ID,
		ReturnCode:        rr.ReturnCode,
		TotalRefundAmount: rr.TotalRefundAmount,
		Status:            string(rr.Status),
	})
}

func (h *ReturnHandler) GetReturn(w http.ResponseWriter, r *http.Request) {
	rr, err := h.uc.GetReturn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, rr)
}

func (h *ReturnHandler) ApproveReturn(w http.ResponseWriter, r *http.Request) {
	var input dto.ApproveReturnInput
	input.ID = chi.URLParam(r, "id")
	if r.ContentLength != 0 {
		if err := h.resp.Decode(r, &input); err != nil {
			h.resp.Error(w, r, err)
			return
		}
	}
	input.ApprovedBy = auth.GetUserID(r.Context())

	rr, err := h.uc.ApproveReturn(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, rr)
}

func (h *ReturnHandler) RejectReturn(w http.ResponseWriter, r *http.Request) {
	var input dto.RejectReturnInput
	input.ID = chi.URLParam(r, "id")
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	rr, err := h.uc.RejectReturn(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, rr)
}

func (h *ReturnHandler) CompleteReturn(w http.ResponseWriter, r *http.Request) {
	rr, err := h.uc.CompleteReturn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, rr)
}

func (h *ReturnHandler) ReconcileReturn(w http.ResponseWriter, r *http.Request) {
	rr, err := h.uc.ReconcileReturn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, rr)
}

func (h *ReturnHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.uc.GetInvoice(r.Context(), chi.URLParam(r, "returnCode"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, inv)
}
