package dto

import (
	"time"

	"github.com/allosh/allosh-market-service/internal/model"
)

type InventoryFilters struct {
	ProductID string
	BranchID  string
	LowStock  bool
	Page      int
	PageSize  int
}

type MovementFilters struct {
	ProductID    string
	BranchID     string
	MovementType string
	ReferenceID  string
	StartDate    *time.Time
	EndDate      *time.Time
	Page         int
	PageSize     int
}

type TransferResult struct {
	UpdatedSource      model.BranchInventory `json:"updatedSource"`
	UpdatedDestination model.BranchInventory `json:"updatedDestination"`
	Movement           model.StockMovement   `json:"movement"`
}

type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors"`
}
