package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/allosh/allosh-market-service/internal/apperror"
)

type ReturnStatus string

const (
	ReturnPending   ReturnStatus = "pending"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
	ReturnCompleted ReturnStatus = "completed"
)

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnPending:  {ReturnApproved, ReturnRejected},
	ReturnApproved: {ReturnCompleted},
}

func (s ReturnStatus) CanTransitionTo(next ReturnStatus) bool {
	for _, allowed := range returnTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ReturnLineItem struct {
	ProductID        string  `json:"productId"`
	Name             string  `json:"name"`
	UnitPrice        float64 `json:"unitPrice"`
	OrderedQuantity  int     `json:"orderedQuantity"`
	ReturnedQuantity int     `json:"returnedQuantity"`
}

func (li ReturnLineItem) Subtotal() float64 {
	return decimal.NewFromFloat(li.UnitPrice).Mul(decimal.NewFromInt(int64(li.ReturnedQuantity))).Round(2).InexactFloat64()
}

// ReturnItems is stored as a JSONB column.
type ReturnItems []ReturnLineItem

func (ri ReturnItems) Value() (driver.Value, error) {
	if ri == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(ri)
}

func (ri *ReturnItems) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*ri = nil
		return nil
	case []byte:
		return json.Unmarshal(v, ri)
	case string:
		return json.Unmarshal([]byte(v), ri)
	default:
		return fmt.Errorf("return items: unsupported scan type %T", src)
	}
}

type ReturnRequest struct {
	ID                    string       `db:"id" json:"id"`
	ReturnCode            string       `db:"return_code" json:"returnCode"`
	OrderID               string       `db:"order_id" json:"orderId"`
	UserID                string       `db:"user_id" json:"userId"`
	BranchID              string       `db:"branch_id" json:"branchId"`
	BranchName            string       `db:"branch_name" json:"branchName"`
	CustomerName          string       `db:"customer_name" json:"customerName"`
	CustomerPhone         string       `db:"customer_phone" json:"customerPhone"`
	Items                 ReturnItems  `db:"items" json:"items"`
	TotalRefundAmount     float64      `db:"total_refund_amount" json:"totalRefundAmount"`
	ApprovedRefundAmount  *float64     `db:"approved_refund_amount" json:"approvedRefundAmount"`
	LoyaltyPointsDeducted int          `db:"loyalty_points_deducted" json:"loyaltyPointsDeducted"`
	// LoyaltyPointsApplied is what the ledger actually took; the invoice
	// keeps showing LoyaltyPointsDeducted as fixed at approval.
	LoyaltyPointsApplied  int          `db:"loyalty_points_applied" json:"loyaltyPointsApplied"`
	Status                ReturnStatus `db:"status" json:"status"`
	Reason                string       `db:"reason" json:"reason"`
	Notes                 string       `db:"notes" json:"notes"`
	AdminNotes            string       `db:"admin_notes" json:"adminNotes"`
	RejectionReason       string       `db:"rejection_reason" json:"rejectionReason"`
	CreatedBy             string       `db:"created_by" json:"createdBy"`
	RestockedAt           *time.Time   `db:"restocked_at" json:"restockedAt"`
	LoyaltyDeductedAt     *time.Time   `db:"loyalty_deducted_at" json:"loyaltyDeductedAt"`
	CreatedAt             time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updatedAt"`
	ApprovedAt            *time.Time   `db:"approved_at" json:"approvedAt"`
	RejectedAt            *time.Time   `db:"rejected_at" json:"rejectedAt"`
	CompletedAt           *time.Time   `db:"completed_at" json:"completedAt"`
}

// SideEffectsPending reports whether restock or loyalty deduction still has
// to run for an approved return.
func (r *ReturnRequest) SideEffectsPending() bool {
	if r.Status != ReturnApproved && r.Status != ReturnCompleted {
		return false
	}
	return r.RestockedAt == nil || r.LoyaltyDeductedAt == nil
}

// RequestedReturnItem is an operator override for one product's quantity.
type RequestedReturnItem struct {
	ProductID        string
	ReturnedQuantity int
}

// BuildReturnItems derives the return lines from the original order. Every
// ordered product starts at its full quantity; overrides may only lower it,
// and zero drops the line. Duplicate order lines for a product are merged.
func BuildReturnItems(orderItems []OrderItem, overrides []RequestedReturnItem) (ReturnItems, float64, error) {
	var items ReturnItems
	index := map[string]int{}
	for _, oi := range orderItems {
		if pos, ok := index[oi.ProductID]; ok {
			items[pos].OrderedQuantity += oi.Quantity
			items[pos].ReturnedQuantity += oi.Quantity
			continue
		}
		index[oi.ProductID] = len(items)
		items = append(items, ReturnLineItem{
			ProductID:        oi.ProductID,
			Name:             oi.Name,
			UnitPrice:        oi.UnitPrice,
			OrderedQuantity:  oi.Quantity,
			ReturnedQuantity: oi.Quantity,
		})
	}

	for _, o := range overrides {
		pos, ok := index[o.ProductID]
		if !ok {
			return nil, 0, apperror.Newf(apperror.KindInvalidReturnQuantity, "product %s is not part of the order", o.ProductID)
		}
		if o.ReturnedQuantity < 0 || o.ReturnedQuantity > items[pos].OrderedQuantity {
			return nil, 0, apperror.Newf(apperror.KindInvalidReturnQuantity, "product %s: ordered %d, requested %d",
				o.ProductID, items[pos].OrderedQuantity, o.ReturnedQuantity)
		}
		items[pos].ReturnedQuantity = o.ReturnedQuantity
	}

	included := items[:0]
	total := decimal.Zero
	for _, li := range items {
		if li.ReturnedQuantity == 0 {
			continue
		}
		included = append(included, li)
		total = total.Add(decimal.NewFromFloat(li.UnitPrice).Mul(decimal.NewFromInt(int64(li.ReturnedQuantity))))
	}
	if len(included) == 0 {
		return nil, 0, apperror.New(apperror.KindInvalidReturnQuantity, "no items left to return")
	}
	return included, total.Round(2).InexactFloat64(), nil
}

// ResolveRefund picks the approved refund: the computed total unless an
// override within [0, total] is supplied.
func ResolveRefund(total float64, override *float64) (float64, error) {
	if override == nil {
		return total, nil
	}
	v := RoundMoney(*override)
	if v < 0 || v > total {
		return 0, apperror.Newf(apperror.KindInvalidRefundAmount, "refund %.2f outside [0, %.2f]", v, total)
	}
	return v, nil
}

// LoyaltyPointsForRefund converts a refund into the points to claw back.
func LoyaltyPointsForRefund(refund, pointsPerEGP float64) int {
	if refund <= 0 || pointsPerEGP <= 0 {
		return 0
	}
	return int(math.Floor(decimal.NewFromFloat(refund).Mul(decimal.NewFromFloat(pointsPerEGP)).InexactFloat64()))
}

var ErrInvoiceNotAvailable = errors.New("invoice is only available for approved returns")

type InvoiceCustomer struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
}

type InvoiceBranch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type InvoiceSummary struct {
	ItemsTotal            float64 `json:"itemsTotal"`
	RefundAmount          float64 `json:"refundAmount"`
	LoyaltyPointsDeducted int     `json:"loyaltyPointsDeducted"`
	Currency              string  `json:"currency"`
}

type InvoiceLine struct {
	ReturnLineItem
	Subtotal float64 `json:"subtotal"`
}

// ReturnInvoice is a read-only snapshot of an approved return.
type ReturnInvoice struct {
	ReturnCode  string          `json:"returnCode"`
	OrderID     string          `json:"orderId"`
	Status      ReturnStatus    `json:"status"`
	Customer    InvoiceCustomer `json:"customer"`
	Branch      InvoiceBranch   `json:"branch"`
	Items       []InvoiceLine   `json:"items"`
	Summary     InvoiceSummary  `json:"summary"`
	Reason      string          `json:"reason"`
	AdminNotes  string          `json:"adminNotes"`
	LoyaltyNote string          `json:"loyaltyNote"`
	CreatedAt   time.Time       `json:"createdAt"`
	ApprovedAt  *time.Time      `json:"approvedAt"`
	CompletedAt *time.Time      `json:"completedAt"`
}

// Invoice renders the snapshot from persisted fields only.
func (r *ReturnRequest) Invoice() (*ReturnInvoice, error) {
	if r.Status != ReturnApproved && r.Status != ReturnCompleted {
		return nil, ErrInvoiceNotAvailable
	}
	refund := r.TotalRefundAmount
	if r.ApprovedRefundAmount != nil {
		refund = *r.ApprovedRefundAmount
	}

	lines := make([]InvoiceLine, 0, len(r.Items))
	for _, li := range r.Items {
		lines = append(lines, InvoiceLine{ReturnLineItem: li, Subtotal: li.Subtotal()})
	}

	return &ReturnInvoice{
		ReturnCode: r.ReturnCode,
		OrderID:    r.OrderID,
		Status:     r.Status,
		Customer:   InvoiceCustomer{UserID: r.UserID, Name: r.CustomerName, Phone: r.CustomerPhone},
		Branch:     InvoiceBranch{ID: r.BranchID, Name: r.BranchName},
		Items:      lines,
		Summary: InvoiceSummary{
			ItemsTotal:            r.TotalRefundAmount,
			RefundAmount:          refund,
			LoyaltyPointsDeducted: r.LoyaltyPointsDeducted,
			Currency:              "EGP",
		},
		Reason:      r.Reason,
		AdminNotes:  r.AdminNotes,
		LoyaltyNote: fmt.Sprintf("تم خصم %d نقطة من رصيد نقاط الولاء", r.LoyaltyPointsDeducted),
		CreatedAt:   r.CreatedAt,
		ApprovedAt:  r.ApprovedAt,
		CompletedAt: r.CompletedAt,
	}, nil
}
