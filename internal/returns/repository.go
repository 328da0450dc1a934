package returns

import (
	"context"
	"time"

	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/internal/returns/dto"
)

// TransitionFunc validates and edits a locked return in place.
type TransitionFunc func(r *model.ReturnRequest) error

type Repository interface {
	// GetOrder loads an order with its items and branch name, nil when missing.
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)

	Create(ctx context.Context, r *model.ReturnRequest) error
	FindByID(ctx context.Context, id string) (*model.ReturnRequest, error)
	FindByCode(ctx context.Context, code string) (*model.ReturnRequest, error)
	FindAll(ctx context.Context, filters *dto.ReturnFilters) ([]model.ReturnRequest, int, error)
	// FindOpenByOrder returns a non-rejected return for the order, if any.
	FindOpenByOrder(ctx context.Context, orderID string) (*model.ReturnRequest, error)

	// Transition locks the row, applies fn and persists the status columns.
	Transition(ctx context.Context, id string, fn TransitionFunc) (*model.ReturnRequest, error)

	MarkRestocked(ctx context.Context, id string, at time.Time) error
	MarkLoyaltyDeducted(ctx context.Context, id string, applied int, at time.Time) error
	// FindPendingSideEffects lists approved or completed returns with an
	// outstanding restock or loyalty deduction, oldest first.
	FindPendingSideEffects(ctx context.Context, limit int) ([]model.ReturnRequest, error)
}
