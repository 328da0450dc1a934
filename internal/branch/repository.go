package branch

import (
	"context"

	"github.com/allosh/allosh-market-service/internal/model"
)

type Repository interface {
	Create(ctx context.Context, b *model.Branch) error
	Update(ctx context.Context, b *model.Branch) error
	FindByID(ctx context.Context, id string) (*model.Branch, error)
	// FindAll returns branches in creation order; the order breaks distance ties.
	FindAll(ctx context.Context, activeOnly bool) ([]model.Branch, error)
}
