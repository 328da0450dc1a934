package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/branch"
	"github.com/allosh/allosh-market-service/internal/branch/dto"
	"github.com/allosh/allosh-market-service/internal/httpx"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

type BranchHandler struct {
	uc     branch.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewBranchHandler(uc branch.UseCase, resp *httpx.Responder, log logger.ZapLogger) *BranchHandler {
	return &BranchHandler{
		uc:     uc,
		resp:   resp,
		logger: log,
	}
}

func (h *BranchHandler) Routes(r chi.Router) {
	r.Get("/", h.ListBranches)
	r.Get("/nearest", h.NearestBranch)
	r.Get("/{id}", h.GetBranch)

	r.Group(func(r chi.Router) {
		r.Use(h.resp.RequireAdmin)
		r.Post("/", h.CreateBranch)
		r.Put("/{id}", h.UpdateBranch)
	})
}

func (h *BranchHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.uc.ListBranches(r.Context(), !httpx.QueryBool(r, "includeInactive"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, branches)
}

func (h *BranchHandler) GetBranch(w http.ResponseWriter, r *http.Request) {
	b, err := h.uc.GetBranch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, b)
}

func (h *BranchHandler) NearestBranch(w http.ResponseWriter, r *http.Request) {
	lat, okLat := httpx.QueryFloat(r, "lat")
	lng, okLng := httpx.QueryFloat(r, "lng")
	if !okLat || !okLng {
		h.resp.Error(w, r, apperror.New(apperror.KindValidationFailed, "lat and lng are required"))
		return
	}

	res, err := h.uc.NearestBranch(r.Context(), lat, lng)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, res)
}

func (h *BranchHandler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var input dto.CreateBranchInput
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	b, err := h.uc.CreateBranch(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusCreated, b)
}

func (h *BranchHandler) UpdateBranch(w http.ResponseWriter, r *http.Request) {
	var input dto.UpdateBranchInput
	input.ID = chi.URLParam(r, "id")
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	b, err := h.uc.UpdateBranch(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, b)
}
