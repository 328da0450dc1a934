package dto

type AdjustInventoryInput struct {
	ProductID      string `json:"productId" validate:"required"`
	BranchID       string `json:"branchId" validate:"required"`
	QuantityChange int    `json:"quantityChange" validate:"ne=0"`
	Reason         string `json:"reason" validate:"max=500"`
	UserID         string `json:"-"`
}

type TransferInventoryInput struct {
	ProductID    string `json:"productId" validate:"required"`
	FromBranchID string `json:"fromBranchId" validate:"required"`
	ToBranchID   string `json:"toBranchId" validate:"required"`
	Quantity     int    `json:"quantity" validate:"gt=0"`
	Notes        string `json:"notes" validate:"max=500"`
	UserID       string `json:"-"`
}

type UpdateSettingsInput struct {
	ProductID     string   `json:"-" validate:"required"`
	BranchID      string   `json:"-" validate:"required"`
	Price         float64  `json:"price" validate:"gte=0"`
	DiscountPrice *float64 `json:"discountPrice" validate:"omitempty,gte=0"`
	MinStockAlert int      `json:"minStockAlert" validate:"gte=0"`
	IsAvailable   bool     `json:"isAvailable"`
	Notes         string   `json:"notes" validate:"max=500"`
}

type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderStockInput struct {
	OrderID  string
	BranchID string
	Lines    []OrderLine
}

type RestockReturnInput struct {
	ReturnID    string
	BranchID    string
	Lines       []OrderLine
	PerformedBy string
}
