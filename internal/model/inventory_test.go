package model

import (
	"testing"
	"time"

	"github.com/allosh/allosh-market-service/internal/apperror"
)

var testNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

func TestApplyTransfer(t *testing.T) {
	tests := []struct {
		name       string
		src        *BranchInventory
		dstStock   int
		qty        int
		wantKind   apperror.Kind
		wantSrc    int
		wantDst    int
	}{
		{"moves stock", &BranchInventory{BranchID: "b1", StockQuantity: 50}, 0, 20, "", 30, 20},
		{"exact stock", &BranchInventory{BranchID: "b1", StockQuantity: 5}, 2, 5, "", 0, 7},
		{"insufficient", &BranchInventory{BranchID: "b1", StockQuantity: 30}, 0, 100, apperror.KindInsufficientStock, 30, 0},
		{"reserved stock is not transferable", &BranchInventory{BranchID: "b1", StockQuantity: 10, ReservedQuantity: 8}, 0, 3, apperror.KindInsufficientStock, 10, 0},
		{"missing source", nil, 4, 1, apperror.KindInsufficientStock, 0, 4},
		{"zero quantity", &BranchInventory{BranchID: "b1", StockQuantity: 10}, 0, 0, apperror.KindValidationFailed, 10, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dst := &BranchInventory{BranchID: "b2", StockQuantity: tc.dstStock}
			before := tc.dstStock
			if tc.src != nil {
				before += tc.src.StockQuantity
			}

			err := ApplyTransfer(tc.src, dst, tc.qty, testNow)
			if got := apperror.KindOf(err); got != tc.wantKind {
				t.Fatalf("kind = %q, want %q (err=%v)", got, tc.wantKind, err)
			}
			if tc.src != nil && tc.src.StockQuantity != tc.wantSrc {
				t.Errorf("source stock = %d, want %d", tc.src.StockQuantity, tc.wantSrc)
			}
			if dst.StockQuantity != tc.wantDst {
				t.Errorf("destination stock = %d, want %d", dst.StockQuantity, tc.wantDst)
			}

			after := dst.StockQuantity
			if tc.src != nil {
				after += tc.src.StockQuantity
			}
			if before != after {
				t.Errorf("stock not conserved: before %d, after %d", before, after)
			}
		})
	}
}

func TestApplyTransfer_SameBranch(t *testing.T) {
	src := &BranchInventory{BranchID: "b1", StockQuantity: 10}
	dst := &BranchInventory{BranchID: "b1", StockQuantity: 10}
	if err := ApplyTransfer(src, dst, 1, testNow); !apperror.IsKind(err, apperror.KindInvalidBranchPair) {
		t.Fatalf("expected InvalidBranchPair, got %v", err)
	}
}

func TestApplyAdjustment(t *testing.T) {
	inv := &BranchInventory{StockQuantity: 10, ReservedQuantity: 4}
	if err := ApplyAdjustment(inv, -7, testNow); !apperror.IsKind(err, apperror.KindInsufficientStock) {
		t.Fatalf("expected InsufficientStock when dropping below reserved, got %v", err)
	}
	if inv.StockQuantity != 10 {
		t.Fatalf("stock changed on failure: %d", inv.StockQuantity)
	}
	if err := ApplyAdjustment(inv, -6, testNow); err != nil {
		t.Fatalf("ApplyAdjustment: %v", err)
	}
	if inv.StockQuantity != 4 {
		t.Fatalf("stock = %d, want 4", inv.StockQuantity)
	}
}

func TestOrderLifecycle(t *testing.T) {
	inv := &BranchInventory{StockQuantity: 10}
	if err := ApplyReserve(inv, 6, testNow); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ApplyReserve(inv, 5, testNow); !apperror.IsKind(err, apperror.KindInsufficientStock) {
		t.Fatalf("expected over-reservation to fail, got %v", err)
	}
	if err := ApplyFulfil(inv, 4, testNow); err != nil {
		t.Fatalf("fulfil: %v", err)
	}
	if inv.StockQuantity != 6 || inv.ReservedQuantity != 2 {
		t.Fatalf("after fulfil stock=%d reserved=%d", inv.StockQuantity, inv.ReservedQuantity)
	}
	ApplyRelease(inv, 5, testNow)
	if inv.ReservedQuantity != 0 {
		t.Fatalf("release should floor at zero, got %d", inv.ReservedQuantity)
	}
}

func TestIsLowStock(t *testing.T) {
	tests := []struct {
		inv  BranchInventory
		want bool
	}{
		{BranchInventory{StockQuantity: 2, MinStockAlert: 5, IsAvailable: true}, true},
		{BranchInventory{StockQuantity: 5, MinStockAlert: 5, IsAvailable: true}, false},
		{BranchInventory{StockQuantity: 2, MinStockAlert: 5, IsAvailable: false}, false},
	}
	for i, tc := range tests {
		if got := tc.inv.IsLowStock(); got != tc.want {
			t.Errorf("case %d: IsLowStock() = %v, want %v", i, got, tc.want)
		}
	}
}
