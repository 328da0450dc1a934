package inventory

import (
	"context"
	"errors"

	"github.com/allosh/allosh-market-service/internal/inventory/dto"
	"github.com/allosh/allosh-market-service/internal/model"
)

// ErrAlreadyApplied is returned by Mutate when a referenced movement was
// recorded before; the whole unit is rolled back and nothing changes.
var ErrAlreadyApplied = errors.New("inventory: movement already applied")

// RowKey names an inventory row to lock. Rows flagged CreateIfMissing are
// inserted at zero before locking, others are absent from the map when missing.
type RowKey struct {
	ProductID       string
	BranchID        string
	CreateIfMissing bool
}

// MutateFunc edits the locked rows in place and returns the movements to log.
type MutateFunc func(rows map[model.InventoryKey]*model.BranchInventory) ([]*model.StockMovement, error)

type Repository interface {
	GetByKey(ctx context.Context, productID, branchID string) (*model.BranchInventory, error)
	FindAll(ctx context.Context, filters *dto.InventoryFilters) ([]model.BranchInventory, int, error)
	UpsertSettings(ctx context.Context, inv *model.BranchInventory) (*model.BranchInventory, error)

	// Mutate locks keys in a single transaction, applies fn and persists the
	// rows and movements it returns.
	Mutate(ctx context.Context, keys []RowKey, fn MutateFunc) ([]model.BranchInventory, error)

	LowStockAlerts(ctx context.Context) ([]model.LowStockAlert, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
}
