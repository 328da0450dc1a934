package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/coupon"
	"github.com/allosh/allosh-market-service/internal/coupon/dto"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

var tracer = otel.Tracer("allosh/coupon")

type couponUseCase struct {
	repo   coupon.Repository
	retry  apperror.RetryPolicy
	logger logger.ZapLogger
	now    func() time.Time
}

func NewCouponUseCase(repo coupon.Repository, retry apperror.RetryPolicy, log logger.ZapLogger) coupon.UseCase {
	return &couponUseCase{repo: repo, retry: retry, logger: log, now: time.Now}
}

// Validate never mutates. Checks run in a fixed order so the first failing
// rule is the one reported.
func (uc *couponUseCase) Validate(ctx context.Context, input *dto.ValidateCouponInput) (*model.CouponDiscount, error) {
	ctx, span := tracer.Start(ctx, "coupon.Validate")
	defer span.End()

	code := model.NormalizeCouponCode(input.Code)
	span.SetAttributes(attribute.String("code", code))
	if code == "" {
		return nil, apperror.New(apperror.KindCouponNotFound, "")
	}
	if input.Subtotal < 0 {
		return nil, apperror.New(apperror.KindValidationFailed, "subtotal must not be negative")
	}

	var c *model.Coupon
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		c, err = uc.repo.GetByCode(ctx, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperror.New(apperror.KindCouponNotFound, "")
	}

	hasUser := input.UserID != ""
	userUsage := 0
	if hasUser && c.PerUserLimit != nil {
		err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
			var err error
			userUsage, err = uc.repo.CountUserUsage(ctx, c.ID, input.UserID)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if err := c.CheckEligibility(input.Subtotal, uc.now(), hasUser, userUsage); err != nil {
		return nil, err
	}
	d := c.Discount(input.Subtotal)
	return &d, nil
}

// RecordUsage is called once the order is confirmed. The limits are checked
// again under the coupon row lock.
func (uc *couponUseCase) RecordUsage(ctx context.Context, input *dto.RecordUsageInput) error {
	ctx, span := tracer.Start(ctx, "coupon.RecordUsage")
	defer span.End()

	if input.CouponID == "" || input.UserID == "" || input.OrderID == "" {
		return apperror.New(apperror.KindValidationFailed, "coupon, user and order are required")
	}
	if input.DiscountAmount < 0 {
		return apperror.New(apperror.KindValidationFailed, "discount amount must not be negative")
	}

	usage := &model.CouponUsage{
		ID:             uuid.New().String(),
		CouponID:       input.CouponID,
		UserID:         input.UserID,
		OrderID:        input.OrderID,
		DiscountAmount: model.RoundMoney(input.DiscountAmount),
		UsedAt:         uc.now(),
	}
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		return uc.repo.RecordUsage(ctx, usage, checkLimits)
	})
	if err != nil {
		uc.logger.Warn("coupon usage not recorded",
			zap.String("coupon_id", input.CouponID),
			zap.String("order_id", input.OrderID),
			zap.Error(err),
		)
		return err
	}

	uc.logger.Info("coupon usage recorded",
		zap.String("coupon_id", input.CouponID),
		zap.String("user_id", input.UserID),
		zap.String("order_id", input.OrderID),
		zap.Float64("discount", usage.DiscountAmount),
	)
	return nil
}

func checkLimits(c *model.Coupon, userUsage int) error {
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return apperror.New(apperror.KindUsageLimitExceeded, "")
	}
	if c.PerUserLimit != nil && userUsage >= *c.PerUserLimit {
		return apperror.New(apperror.KindPerUserLimitExceeded, "")
	}
	return nil
}

func (uc *couponUseCase) CreateCoupon(ctx context.Context, input *dto.CouponInput) (*model.Coupon, error) {
	ctx, span := tracer.Start(ctx, "coupon.CreateCoupon")
	defer span.End()

	now := uc.now()
	c := &model.Coupon{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		IsActive:  true,
	}
	if err := apply(c, input); err != nil {
		return nil, err
	}

	if err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		return uc.repo.Create(ctx, c)
	}); err != nil {
		return nil, err
	}
	uc.logger.Info("coupon created", zap.String("coupon_id", c.ID), zap.String("code", c.Code))
	return c, nil
}

func (uc *couponUseCase) UpdateCoupon(ctx context.Context, id string, input *dto.CouponInput) (*model.Coupon, error) {
	ctx, span := tracer.Start(ctx, "coupon.UpdateCoupon")
	defer span.End()

	var c *model.Coupon
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		c, err = uc.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "coupon %s", id)
	}

	if err := apply(c, input); err != nil {
		return nil, err
	}
	c.UpdatedAt = uc.now()

	if err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		return uc.repo.Update(ctx, c)
	}); err != nil {
		return nil, err
	}
	return c, nil
}

func (uc *couponUseCase) ListCoupons(ctx context.Context, filters *dto.CouponFilters) ([]model.Coupon, int, error) {
	var (
		items []model.Coupon
		total int
	)
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		items, total, err = uc.repo.FindAll(ctx, filters)
		return err
	})
	return items, total, err
}

func apply(c *model.Coupon, input *dto.CouponInput) error {
	code := model.NormalizeCouponCode(input.Code)
	if code == "" {
		return apperror.New(apperror.KindValidationFailed, "code is required")
	}
	kind := model.DiscountType(input.DiscountType)
	switch kind {
	case model.DiscountPercentage:
		if input.DiscountValue > 100 {
			return apperror.New(apperror.KindValidationFailed, "percentage discount cannot exceed 100")
		}
	case model.DiscountFixed:
	default:
		return apperror.Newf(apperror.KindValidationFailed, "unknown discount type %q", input.DiscountType)
	}
	if input.DiscountValue <= 0 {
		return apperror.New(apperror.KindValidationFailed, "discount value must be positive")
	}
	if input.ValidFrom != nil && input.ValidUntil != nil && input.ValidUntil.Before(*input.ValidFrom) {
		return apperror.New(apperror.KindValidationFailed, "validUntil is before validFrom")
	}

	c.Code = code
	c.DiscountType = kind
	c.DiscountValue = model.RoundMoney(input.DiscountValue)
	c.MinOrderValue = model.RoundMoney(input.MinOrderValue)
	c.MaxDiscount = input.MaxDiscount
	c.UsageLimit = input.UsageLimit
	c.PerUserLimit = input.PerUserLimit
	c.ValidFrom = input.ValidFrom
	c.ValidUntil = input.ValidUntil
	if input.IsActive != nil {
		c.IsActive = *input.IsActive
	}
	return nil
}
