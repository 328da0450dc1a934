package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/httpx"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/internal/product"
	"github.com/allosh/allosh-market-service/internal/product/dto"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

const maxNameLookup = 200

type ProductHandler struct {
	uc     product.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewProductHandler(uc product.UseCase, resp *httpx.Responder, log logger.ZapLogger) *ProductHandler {
	return &ProductHandler{
		uc:     uc,
		resp:   resp,
		logger: log,
	}
}

func (h *ProductHandler) Routes(r chi.Router) {
	r.Get("/", h.ListProducts)
	r.Get("/names", h.ProductNames)
	r.Get("/{id}", h.GetProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.resp.RequireAdmin)
		r.Post("/", h.CreateProduct)
		r.Put("/{id}", h.UpdateProduct)
	})
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := httpx.Pagination(r)
	q := r.URL.Query()
	filters := &dto.ProductFilters{
		Category:    q.Get("category"),
		SearchQuery: strings.TrimSpace(q.Get("q")),
		SortBy:      q.Get("sortBy"),
		SortOrder:   q.Get("sortOrder"),
		Page:        page,
		PageSize:    pageSize,
	}
	if v := q.Get("isActive"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			h.resp.Error(w, r, apperror.New(apperror.KindValidationFailed, "isActive must be a boolean"))
			return
		}
		filters.IsActive = &active
	}

	items, total, err := h.uc.ListProducts(r.Context(), filters)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, httpx.ListBody[model.Product]{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.uc.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, p)
}

// ProductNames resolves ?ids=a,b,c to display names.
func (h *ProductHandler) ProductNames(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) > maxNameLookup {
		h.resp.Error(w, r, apperror.Newf(apperror.KindValidationFailed, "at most %d ids", maxNameLookup))
		return
	}

	names, err := h.uc.NamesByIDs(r.Context(), ids)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, names)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input dto.CreateProductInput
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	p, err := h.uc.CreateProduct(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var input dto.UpdateProductInput
	input.ID = chi.URLParam(r, "id")
	if err := h.resp.Decode(r, &input); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	p, err := h.uc.UpdateProduct(r.Context(), &input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, p)
}
