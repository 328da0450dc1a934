package model

import (
	"time"

	"github.com/allosh/allosh-market-service/internal/apperror"
)

// BranchInventory is the stock ledger row for one product at one branch.
// Invariant: 0 <= ReservedQuantity <= StockQuantity.
type BranchInventory struct {
	ProductID        string    `db:"product_id" json:"productId"`
	BranchID         string    `db:"branch_id" json:"branchId"`
	Price            float64   `db:"price" json:"price"`
	DiscountPrice    *float64  `db:"discount_price" json:"discountPrice"`
	StockQuantity    int       `db:"stock_quantity" json:"stockQuantity"`
	ReservedQuantity int       `db:"reserved_quantity" json:"reservedQuantity"`
	MinStockAlert    int       `db:"min_stock_alert" json:"minStockAlert"`
	IsAvailable      bool      `db:"is_available" json:"isAvailable"`
	Notes            string    `db:"notes" json:"notes"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

func (i *BranchInventory) AvailableQuantity() int {
	return i.StockQuantity - i.ReservedQuantity
}

func (i *BranchInventory) IsLowStock() bool {
	return i.IsAvailable && i.StockQuantity < i.MinStockAlert
}

// NewBranchInventory is the zero record created on first assignment of a
// product to a branch.
func NewBranchInventory(productID, branchID string, now time.Time) *BranchInventory {
	return &BranchInventory{
		ProductID:   productID,
		BranchID:    branchID,
		IsAvailable: true,
		UpdatedAt:   now,
	}
}

type MovementType string

const (
	MovementTransfer   MovementType = "TRANSFER"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementReturn     MovementType = "RETURN"
	MovementOrder      MovementType = "ORDER"
)

// StockMovement is an append-only audit row.
type StockMovement struct {
	ID           string       `db:"id" json:"id"`
	ProductID    string       `db:"product_id" json:"productId"`
	FromBranchID *string      `db:"from_branch_id" json:"fromBranchId"`
	ToBranchID   *string      `db:"to_branch_id" json:"toBranchId"`
	Quantity     int          `db:"quantity" json:"quantity"`
	MovementType MovementType `db:"movement_type" json:"movementType"`
	ReferenceID  *string      `db:"reference_id" json:"referenceId"`
	Notes        string       `db:"notes" json:"notes"`
	PerformedBy  string       `db:"performed_by" json:"performedBy"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
}

type LowStockAlert struct {
	ProductID     string `db:"product_id" json:"productId"`
	ProductName   string `db:"product_name" json:"productName"`
	BranchID      string `db:"branch_id" json:"branchId"`
	BranchName    string `db:"branch_name" json:"branchName"`
	StockQuantity int    `db:"stock_quantity" json:"stockQuantity"`
	MinStockAlert int    `db:"min_stock_alert" json:"minStockAlert"`
}

// ApplyTransfer moves qty from src to dst in memory. src may be nil when the
// product was never assigned to the source branch. Only unreserved stock can
// leave the source. On error neither record is touched.
func ApplyTransfer(src, dst *BranchInventory, qty int, now time.Time) error {
	if qty <= 0 {
		return apperror.New(apperror.KindValidationFailed, "quantity must be positive")
	}
	if src == nil {
		return apperror.New(apperror.KindInsufficientStock, "product not stocked at source branch")
	}
	if src.BranchID == dst.BranchID {
		return apperror.New(apperror.KindInvalidBranchPair, "")
	}
	if src.AvailableQuantity() < qty {
		return apperror.Newf(apperror.KindInsufficientStock, "available %d, requested %d", src.AvailableQuantity(), qty)
	}

	src.StockQuantity -= qty
	src.UpdatedAt = now
	dst.StockQuantity += qty
	dst.UpdatedAt = now
	return nil
}

// ApplyAdjustment changes on-hand stock by delta. The result may not drop
// below zero or below what is already reserved.
func ApplyAdjustment(inv *BranchInventory, delta int, now time.Time) error {
	next := inv.StockQuantity + delta
	if next < 0 || next < inv.ReservedQuantity {
		return apperror.Newf(apperror.KindInsufficientStock, "stock %d, reserved %d, delta %d", inv.StockQuantity, inv.ReservedQuantity, delta)
	}
	inv.StockQuantity = next
	inv.UpdatedAt = now
	return nil
}

// ApplyRestock credits returned units back to the branch.
func ApplyRestock(inv *BranchInventory, qty int, now time.Time) error {
	if qty <= 0 {
		return apperror.New(apperror.KindValidationFailed, "quantity must be positive")
	}
	inv.StockQuantity += qty
	inv.UpdatedAt = now
	return nil
}

func ApplyReserve(inv *BranchInventory, qty int, now time.Time) error {
	if qty <= 0 {
		return apperror.New(apperror.KindValidationFailed, "quantity must be positive")
	}
	if inv.AvailableQuantity() < qty {
		return apperror.Newf(apperror.KindInsufficientStock, "available %d, requested %d", inv.AvailableQuantity(), qty)
	}
	inv.ReservedQuantity += qty
	inv.UpdatedAt = now
	return nil
}

// ApplyRelease frees reserved units, never below zero.
func ApplyRelease(inv *BranchInventory, qty int, now time.Time) {
	inv.ReservedQuantity -= min(inv.ReservedQuantity, qty)
	inv.UpdatedAt = now
}

// ApplyFulfil ships qty: stock drops and the matching reservation is consumed.
func ApplyFulfil(inv *BranchInventory, qty int, now time.Time) error {
	if qty <= 0 {
		return apperror.New(apperror.KindValidationFailed, "quantity must be positive")
	}
	if inv.StockQuantity < qty {
		return apperror.Newf(apperror.KindInsufficientStock, "stock %d, requested %d", inv.StockQuantity, qty)
	}
	inv.ReservedQuantity -= min(inv.ReservedQuantity, qty)
	inv.StockQuantity -= qty
	if inv.ReservedQuantity > inv.StockQuantity {
		inv.ReservedQuantity = inv.StockQuantity
	}
	inv.UpdatedAt = now
	return nil
}

type InventoryKey struct {
	ProductID string
	BranchID  string
}

func (i *BranchInventory) Key() InventoryKey {
	return InventoryKey{ProductID: i.ProductID, BranchID: i.BranchID}
}
