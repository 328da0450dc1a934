package product

import (
	"context"

	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/internal/product/dto"
)

type UseCase interface {
	CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error)
	UpdateProduct(ctx context.Context, input *dto.UpdateProductInput) (*model.Product, error)

	// NamesByIDs maps product ids to display names. Unknown ids are omitted.
	NamesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}
