package usecase

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/internal/product"
	"github.com/allosh/allosh-market-service/internal/product/dto"
	"github.com/allosh/allosh-market-service/pkg/cache"
	"github.com/allosh/allosh-market-service/pkg/logger"
	"github.com/allosh/allosh-market-service/pkg/search"
)

const (
	indexName   = "products"
	cachePrefix = "products:list:"
)

const indexMapping = `{
	"mappings": {
		"properties": {
			"name": { "type": "text" },
			"nameAr": { "type": "text", "analyzer": "arabic" },
			"sku": { "type": "keyword" },
			"category": { "type": "keyword" },
			"basePrice": { "type": "double" },
			"isActive": { "type": "boolean" },
			"createdAt": { "type": "date" }
		}
	}
}`

var tracer = otel.Tracer("allosh/product")

// Searcher is the subset of the Elasticsearch client the catalog uses.
type Searcher interface {
	CreateIndex(ctx context.Context, index, mapping string) error
	Index(ctx context.Context, index, id string, doc any) error
	Search(ctx context.Context, index string, query map[string]any) (*search.SearchResult, error)
}

type productUseCase struct {
	repo     product.Repository
	cache    cache.Store
	cacheTTL time.Duration
	es       Searcher
	retry    apperror.RetryPolicy
	logger   logger.ZapLogger
	now      func() time.Time
}

// NewProductUseCase accepts a nil store and a nil searcher; listing then goes
// straight to Postgres.
func NewProductUseCase(repo product.Repository, store cache.Store, cacheTTL time.Duration, es Searcher, retry apperror.RetryPolicy, log logger.ZapLogger) product.UseCase {
	return &productUseCase{
		repo:     repo,
		cache:    store,
		cacheTTL: cacheTTL,
		es:       es,
		retry:    retry,
		logger:   log,
		now:      time.Now,
	}
}

// EnsureIndex creates the search index on startup.
func EnsureIndex(ctx context.Context, es Searcher) error {
	return es.CreateIndex(ctx, indexName, indexMapping)
}

func (uc *productUseCase) CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error) {
	ctx, span := tracer.Start(ctx, "product.CreateProduct")
	defer span.End()

	sku := strings.TrimSpace(input.SKU)
	if err := uc.checkSKU(ctx, sku, ""); err != nil {
		return nil, err
	}

	now := uc.now()
	p := &model.Product{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		SKU:       sku,
		Name:      strings.TrimSpace(input.Name),
		NameAr:    strings.TrimSpace(input.NameAr),
		Category:  optional(input.Category),
		BasePrice: model.RoundMoney(input.BasePrice),
		ImageURL:  optional(input.ImageURL),
		IsActive:  true,
	}

	if err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		return uc.repo.Create(ctx, p)
	}); err != nil {
		return nil, err
	}

	uc.invalidateProductCache(ctx)
	uc.syncToElastic(ctx, p)
	uc.logger.Info("product created", zap.String("product_id", p.ID), zap.String("sku", p.SKU))
	return p, nil
}

func (uc *productUseCase) UpdateProduct(ctx context.Context, input *dto.UpdateProductInput) (*model.Product, error) {
	ctx, span := tracer.Start(ctx, "product.UpdateProduct")
	defer span.End()

	p, err := uc.GetProduct(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	sku := strings.TrimSpace(input.SKU)
	if !strings.EqualFold(p.SKU, sku) {
		if err := uc.checkSKU(ctx, sku, p.ID); err != nil {
			return nil, err
		}
	}

	p.SKU = sku
	p.Name = strings.TrimSpace(input.Name)
	p.NameAr = strings.TrimSpace(input.NameAr)
	p.Category = optional(input.Category)
	p.BasePrice = model.RoundMoney(input.BasePrice)
	p.ImageURL = optional(input.ImageURL)
	p.IsActive = input.IsActive
	p.UpdatedAt = uc.now()

	if err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		return uc.repo.Update(ctx, p)
	}); err != nil {
		return nil, err
	}

	uc.invalidateProductCache(ctx)
	uc.syncToElastic(ctx, p)
	return p, nil
}

func (uc *productUseCase) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p *model.Product
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		p, err = uc.repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "product %s", id)
	}
	return p, nil
}

type cachedList struct {
	Products []model.Product `json:"products"`
	Count    int             `json:"count"`
}

// ListProducts reads through the list cache. Free-text queries go to
// Elasticsearch first and fall back to ILIKE in Postgres.
func (uc *productUseCase) ListProducts(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error) {
	ctx, span := tracer.Start(ctx, "product.ListProducts")
	defer span.End()

	cacheKey := uc.generateCacheKey(filters)
	if uc.cache != nil && cacheKey != "" {
		var hit cachedList
		ok, err := uc.cache.GetJSON(ctx, cacheKey, &hit)
		if err != nil {
			uc.logger.Warn("product cache read failed", zap.String("key", cacheKey), zap.Error(err))
		}
		if ok {
			return hit.Products, hit.Count, nil
		}
	}

	var (
		products []model.Product
		count    int
		found    bool
	)
	if filters.SearchQuery != "" && uc.es != nil {
		var err error
		products, count, err = uc.searchElastic(ctx, filters)
		if err == nil {
			found = true
		} else {
			uc.logger.Error("ES search failed, falling back to DB", zap.Error(err))
		}
	}

	if !found {
		err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
			var err error
			products, count, err = uc.repo.FindAll(ctx, filters)
			return err
		})
		if err != nil {
			return nil, 0, err
		}
	}

	if uc.cache != nil && cacheKey != "" {
		if err := uc.cache.SetJSON(ctx, cacheKey, cachedList{Products: products, Count: count}, uc.cacheTTL); err != nil {
			uc.logger.Warn("product cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return products, count, nil
}

func (uc *productUseCase) searchElastic(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error) {
	must := []map[string]any{
		{
			"multi_match": map[string]any{
				"query":     filters.SearchQuery,
				"fields":    []string{"name^3", "nameAr^3", "sku"},
				"fuzziness": "AUTO",
			},
		},
	}
	var filter []map[string]any
	if filters.Category != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"category": filters.Category}})
	}
	if filters.IsActive != nil {
		filter = append(filter, map[string]any{"term": map[string]any{"isActive": *filters.IsActive}})
	}

	q := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"must": must, "filter": filter},
		},
	}
	if filters.PageSize > 0 {
		q["from"] = (max(filters.Page, 1) - 1) * filters.PageSize
		q["size"] = filters.PageSize
	}

	res, err := uc.es.Search(ctx, indexName, q)
	if err != nil {
		return nil, 0, err
	}
	products := make([]model.Product, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		var p model.Product
		if err := json.Unmarshal(hit.Source, &p); err != nil {
			uc.logger.Warn("skipping undecodable search hit", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		products = append(products, p)
	}
	return products, res.Hits.Total.Value, nil
}

func (uc *productUseCase) NamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	var products []model.Product
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		products, err = uc.repo.FindByIDs(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(products))
	for i := range products {
		names[products[i].ID] = products[i].DisplayName()
	}
	return names, nil
}

func (uc *productUseCase) checkSKU(ctx context.Context, sku, excludeID string) error {
	var unique bool
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		unique, err = uc.repo.IsSKUUnique(ctx, sku, excludeID)
		return err
	})
	if err != nil {
		return err
	}
	if !unique {
		return apperror.Newf(apperror.KindConstraintViolation, "sku %s already exists", sku)
	}
	return nil
}

func (uc *productUseCase) syncToElastic(ctx context.Context, p *model.Product) {
	if uc.es == nil {
		return
	}
	if err := uc.es.Index(ctx, indexName, p.ID, p); err != nil {
		uc.logger.Error("failed to index product", zap.String("product_id", p.ID), zap.Error(err))
	}
}

func (uc *productUseCase) generateCacheKey(filters *dto.ProductFilters) string {
	data, err := json.Marshal(filters)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s%x", cachePrefix, md5.Sum(data))
}

func (uc *productUseCase) invalidateProductCache(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		uc.logger.Warn("product cache invalidation failed", zap.Error(err))
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
