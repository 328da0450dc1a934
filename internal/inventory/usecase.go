package inventory

import (
	"context"
	"io"

	"github.com/allosh/allosh-market-service/internal/inventory/dto"
	"github.com/allosh/allosh-market-service/internal/model"
)

type UseCase interface {
	GetBranchInventory(ctx context.Context, productID, branchID string) (*model.BranchInventory, error)
	ListInventory(ctx context.Context, filters *dto.InventoryFilters) ([]model.BranchInventory, int, error)
	UpdateSettings(ctx context.Context, input *dto.UpdateSettingsInput) (*model.BranchInventory, error)
	AdjustInventory(ctx context.Context, input *dto.AdjustInventoryInput) (*model.BranchInventory, error)
	TransferStock(ctx context.Context, input *dto.TransferInventoryInput) (*dto.TransferResult, error)
	LowStockAlerts(ctx context.Context) ([]model.LowStockAlert, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)

	// Order lifecycle, driven by checkout events.
	ReserveOrder(ctx context.Context, input *dto.OrderStockInput) error
	FulfilOrder(ctx context.Context, input *dto.OrderStockInput) error
	ReleaseOrder(ctx context.Context, input *dto.OrderStockInput) error

	// RestockReturn credits returned items once per return.
	RestockReturn(ctx context.Context, input *dto.RestockReturnInput) error

	ImportInventory(ctx context.Context, r io.Reader, performedBy string) (*dto.ImportResult, error)
}
