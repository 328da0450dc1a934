package dto

type ReturnFilters struct {
	Status   string
	OrderID  string
	BranchID string
	Page     int
	PageSize int
}

type ReturnItemInput struct {
	ProductID        string `json:"productId" validate:"required"`
	ReturnedQuantity int    `json:"returnedQuantity" validate:"gte=0"`
}

type CreateReturnInput struct {
	OrderID   string            `json:"orderId" validate:"required"`
	Items     []ReturnItemInput `json:"items" validate:"dive"`
	Reason    string            `json:"reason" validate:"required,max=1000"`
	Notes     string            `json:"notes" validate:"max=1000"`
	CreatedBy string            `json:"-"`
}

type ApproveReturnInput struct {
	ID           string   `json:"-" validate:"required"`
	RefundAmount *float64 `json:"refundAmount" validate:"omitempty,gte=0"`
	AdminNotes   string   `json:"adminNotes" validate:"max=1000"`
	ApprovedBy   string   `json:"-"`
}

type RejectReturnInput struct {
	ID     string `json:"-" validate:"required"`
	Reason string `json:"reason" validate:"required,max=1000"`
}

type CreateReturnResponse struct {
	ID                string  `json:"id"`
	ReturnCode        string  `json:"returnCode"`
	TotalRefundAmount float64 `json:"totalRefundAmount"`
	Status            string  `json:"status"`
}
