package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/allosh/allosh-market-service/internal/apperror"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	BaseModel
	Code          string       `db:"code" json:"code"`
	DiscountType  DiscountType `db:"discount_type" json:"discountType"`
	DiscountValue float64      `db:"discount_value" json:"discountValue"`
	MinOrderValue float64      `db:"min_order_value" json:"minOrderValue"`
	MaxDiscount   *float64     `db:"max_discount" json:"maxDiscount"`
	UsageLimit    *int         `db:"usage_limit" json:"usageLimit"`
	UsedCount     int          `db:"used_count" json:"usedCount"`
	PerUserLimit  *int         `db:"per_user_limit" json:"perUserLimit"`
	ValidFrom     *time.Time   `db:"valid_from" json:"validFrom"`
	ValidUntil    *time.Time   `db:"valid_until" json:"validUntil"`
	IsActive      bool         `db:"is_active" json:"isActive"`
}

type CouponUsage struct {
	ID             string    `db:"id" json:"id"`
	CouponID       string    `db:"coupon_id" json:"couponId"`
	UserID         string    `db:"user_id" json:"userId"`
	OrderID        string    `db:"order_id" json:"orderId"`
	DiscountAmount float64   `db:"discount_amount" json:"discountAmount"`
	UsedAt         time.Time `db:"used_at" json:"usedAt"`
}

type CouponDiscount struct {
	CouponID       string  `json:"couponId"`
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discountAmount"`
	FinalTotal     float64 `json:"finalTotal"`
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckEligibility runs the date, minimum order and usage checks in order.
// userUsage is only consulted when hasUser is set.
func (c *Coupon) CheckEligibility(subtotal float64, now time.Time, hasUser bool, userUsage int) error {
	if !c.IsActive {
		return apperror.New(apperror.KindCouponNotFound, "")
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return apperror.New(apperror.KindCouponNotYetValid, "")
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return apperror.New(apperror.KindCouponExpired, "")
	}
	if subtotal < c.MinOrderValue {
		return apperror.New(apperror.KindBelowMinimumOrder, "").
			WithData("MinOrderValue", decimal.NewFromFloat(c.MinOrderValue).StringFixed(2))
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return apperror.New(apperror.KindUsageLimitExceeded, "")
	}
	if hasUser && c.PerUserLimit != nil && userUsage >= *c.PerUserLimit {
		return apperror.New(apperror.KindPerUserLimitExceeded, "")
	}
	return nil
}

// Discount computes the discount for subtotal. The result is rounded to 2 dp
// and never exceeds the subtotal.
func (c *Coupon) Discount(subtotal float64) CouponDiscount {
	sub := decimal.NewFromFloat(subtotal)
	if sub.IsNegative() {
		sub = decimal.Zero
	}

	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = sub.Mul(decimal.NewFromFloat(c.DiscountValue)).Div(decimal.NewFromInt(100))
		if c.MaxDiscount != nil {
			amount = decimal.Min(amount, decimal.NewFromFloat(*c.MaxDiscount))
		}
	default:
		amount = decimal.NewFromFloat(c.DiscountValue)
	}
	amount = decimal.Min(amount, sub)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	amount = amount.Round(2)

	final := decimal.Max(sub.Sub(amount), decimal.Zero).Round(2)
	return CouponDiscount{
		CouponID:       c.ID,
		Code:           c.Code,
		DiscountAmount: amount.InexactFloat64(),
		FinalTotal:     final.InexactFloat64(),
	}
}
