package returns

import (
	"context"

	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/internal/returns/dto"
)

type UseCase interface {
	CreateReturn(ctx context.Context, input *dto.CreateReturnInput) (*model.ReturnRequest, error)
	ApproveReturn(ctx context.Context, input *dto.ApproveReturnInput) (*model.ReturnRequest, error)
	RejectReturn(ctx context.Context, input *dto.RejectReturnInput) (*model.ReturnRequest, error)
	CompleteReturn(ctx context.Context, id string) (*model.ReturnRequest, error)

	// ReconcileReturn re-runs outstanding restock and loyalty side effects.
	ReconcileReturn(ctx context.Context, id string) (*model.ReturnRequest, error)
	// ReconcilePending sweeps returns whose side effects did not finish.
	ReconcilePending(ctx context.Context) (int, error)

	GetReturn(ctx context.Context, id string) (*model.ReturnRequest, error)
	ListReturns(ctx context.Context, filters *dto.ReturnFilters) ([]model.ReturnRequest, int, error)
	GetInvoice(ctx context.Context, returnCode string) (*model.ReturnInvoice, error)
}
