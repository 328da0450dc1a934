package loyalty

import (
	"context"

	"github.com/allosh/allosh-market-service/internal/loyalty/dto"
	"github.com/allosh/allosh-market-service/internal/model"
)

type UseCase interface {
	Balance(ctx context.Context, userID string) (*model.LoyaltyAccount, error)
	History(ctx context.Context, userID string, limit int) ([]model.LoyaltyTransaction, error)
	Deduct(ctx context.Context, input *dto.DeductInput) (*model.LoyaltyTransaction, error)
}
