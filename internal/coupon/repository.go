package coupon

import (
	"context"

	"github.com/allosh/allosh-market-service/internal/coupon/dto"
	"github.com/allosh/allosh-market-service/internal/model"
)

// UsageCheck re-validates a locked coupon before a redemption is written.
// userUsage is the number of usages the redeeming user already has.
type UsageCheck func(c *model.Coupon, userUsage int) error

type Repository interface {
	// GetByCode matches case-insensitively. A missing coupon is nil, nil.
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	GetByID(ctx context.Context, id string) (*model.Coupon, error)
	CountUserUsage(ctx context.Context, couponID, userID string) (int, error)

	// RecordUsage locks the coupon row, runs check, inserts the usage and
	// increments used_count in one transaction.
	RecordUsage(ctx context.Context, usage *model.CouponUsage, check UsageCheck) error

	Create(ctx context.Context, c *model.Coupon) error
	Update(ctx context.Context, c *model.Coupon) error
	FindAll(ctx context.Context, filters *dto.CouponFilters) ([]model.Coupon, int, error)
}
