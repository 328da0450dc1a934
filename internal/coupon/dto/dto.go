package dto

import "time"

type ValidateCouponInput struct {
	Code     string  `json:"code" validate:"required,max=64"`
	Subtotal float64 `json:"subtotal" validate:"gte=0"`
	UserID   string  `json:"userId"`
}

// ValidCouponResponse and InvalidCouponResponse are both returned with 200;
// Valid tells the two outcomes apart.
type ValidCouponResponse struct {
	Valid          bool    `json:"valid"`
	CouponID       string  `json:"couponId"`
	DiscountAmount float64 `json:"discountAmount"`
	FinalTotal     float64 `json:"finalTotal"`
}

type InvalidCouponResponse struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type RecordUsageInput struct {
	CouponID       string  `json:"couponId" validate:"required"`
	UserID         string  `json:"userId" validate:"required"`
	OrderID        string  `json:"orderId" validate:"required"`
	DiscountAmount float64 `json:"discountAmount" validate:"gte=0"`
}

type CouponInput struct {
	Code          string     `json:"code" validate:"required,max=64"`
	DiscountType  string     `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue float64    `json:"discountValue" validate:"gt=0"`
	MinOrderValue float64    `json:"minOrderValue" validate:"gte=0"`
	MaxDiscount   *float64   `json:"maxDiscount" validate:"omitempty,gt=0"`
	UsageLimit    *int       `json:"usageLimit" validate:"omitempty,gt=0"`
	PerUserLimit  *int       `json:"perUserLimit" validate:"omitempty,gt=0"`
	ValidFrom     *time.Time `json:"validFrom"`
	ValidUntil    *time.Time `json:"validUntil"`
	IsActive      *bool      `json:"isActive"`
}

type CouponFilters struct {
	ActiveOnly bool
	Page       int
	PageSize   int
}
