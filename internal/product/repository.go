package product

import (
	"context"

	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/internal/product/dto"
)

type Repository interface {
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, id string) (*model.Product, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.Product, error)
	FindAll(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error)
	Update(ctx context.Context, product *model.Product) error

	IsSKUUnique(ctx context.Context, sku, excludeID string) (bool, error)
}
