package branch

import (
	"context"

	"github.com/allosh/allosh-market-service/internal/branch/dto"
	"github.com/allosh/allosh-market-service/internal/model"
)

type UseCase interface {
	CreateBranch(ctx context.Context, input *dto.CreateBranchInput) (*model.Branch, error)
	UpdateBranch(ctx context.Context, input *dto.UpdateBranchInput) (*model.Branch, error)
	GetBranch(ctx context.Context, id string) (*model.Branch, error)
	ListBranches(ctx context.Context, activeOnly bool) ([]model.Branch, error)
	NearestBranch(ctx context.Context, lat, lng float64) (*dto.NearestBranch, error)
}
