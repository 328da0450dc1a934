package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/auth"
	"github.com/allosh/allosh-market-service/internal/httpx"
	"github.com/allosh/allosh-market-service/internal/inventory"
	"github.com/allosh/allosh-market-service/internal/inventory/dto"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

const maxImportBytes = 10 << 20

type InventoryHandler struct {
	uc     inventory.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, resp *httpx.Responder, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:     uc,
		resp:   resp,
		logger: log,
	}
}

func (h *InventoryHandler) Routes(r chi.Router) {
	r.Get("/", h.ListInventory)
	r.Get("/low-stock-alerts", h.LowStockAlerts)
	r.Get("/movements", h.ListMovements)
	r.Get("/{productId}/{branchId}", h.GetBranchInventory)

	r.Group(func(r chi.Router) {
		r.Use(h.resp.RequireAdmin)
		r.Put("/{productId}/{branchId}", h.UpdateSettings)
		r.Post("/adjust", h.AdjustInventory)
		r.Post("/transfer", h.TransferStock)
		r.Post("/import", h.ImportInventory)
	})
}

func (h *InventoryHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	page, pageSize := httpx.Pagination(r)
	q := r.URL.Query()
	filters := &dto.InventoryFilters{
		ProductID: q.Get("productId"),
		BranchID:  q.Get("branchId"),
		LowStock:  httpx.QueryBool(r, "lowStock"),
		Page:      page,
		PageSize:  pageSize,
	}

	items, total, err := h.uc.ListInventory(r.Context(), filters)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, httpx.ListBody[model.BranchInventory]{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *InventoryHandler) GetBranchInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.uc.GetBranchInventory(r.Context(), chi.URLParam(r, "productId"), chi.URLParam(r, "branchId"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, inv)
}

func (h *InventoryHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var input dto.UpdateSettingsInput
	input.ProductID = chi.URLParam(r, "productId")
	input.BranchID = chi.URLParam(r, "branchId")
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	inv, err := h.uc.UpdateSettings(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, inv)
}

func (h *InventoryHandler) AdjustInventory(w http.ResponseWriter, r *http.Request) {
	var input dto.AdjustInventoryInput
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	input.UserID = auth.GetUserID(r.Context())

	inv, err := h.uc.AdjustInventory(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, inv)
}

func (h *InventoryHandler) TransferStock(w http.ResponseWriter, r *http.Request) {
	var input dto.TransferInventoryInput
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	input.UserID = auth.GetUserID(r.Context())

	res, err := h.uc.TransferStock(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, res)
}

func (h *InventoryHandler) LowStockAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.uc.LowStockAlerts(r.Context())
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, alerts)
}

func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	page, pageSize := httpx.Pagination(r)
	q := r.URL.Query()
	filters := &dto.MovementFilters{
		ProductID:    q.Get("productId"),
		BranchID:     q.Get("branchId"),
		MovementType: q.Get("movementType"),
		ReferenceID:  q.Get("referenceId"),
		Page:         page,
		PageSize:     pageSize,
	}
	for key, dst := range map[string]**time.Time{"startDate": &filters.StartDate, "endDate": &filters.EndDate} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.resp.Error(w, r, apperror.Newf(apperror.KindValidationFailed, "%s must be RFC3339", key))
			return
		}
		*dst = &t
	}

	items, total, err := h.uc.ListMovements(r.Context(), filters)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, httpx.ListBody[model.StockMovement]{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *InventoryHandler) ImportInventory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		h.resp.Error(w, r, apperror.Wrap(apperror.KindValidationFailed, err, "multipart form expected"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.resp.Error(w, r, apperror.Wrap(apperror.KindValidationFailed, err, "file field is required"))
		return
	}
	defer file.Close()

	res, err := h.uc.ImportInventory(r.Context(), file, auth.GetUserID(r.Context()))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, res)
}
