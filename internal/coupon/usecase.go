package coupon

import (
	"context"

	"github.com/allosh/allosh-market-service/internal/coupon/dto"
	"github.com/allosh/allosh-market-service/internal/model"
)

type UseCase interface {
	Validate(ctx context.Context, input *dto.ValidateCouponInput) (*model.CouponDiscount, error)
	RecordUsage(ctx context.Context, input *dto.RecordUsageInput) error

	CreateCoupon(ctx context.Context, input *dto.CouponInput) (*model.Coupon, error)
	UpdateCoupon(ctx context.Context, id string, input *dto.CouponInput) (*model.Coupon, error)
	ListCoupons(ctx context.Context, filters *dto.CouponFilters) ([]model.Coupon, int, error)
}
