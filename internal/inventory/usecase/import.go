package usecase

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/inventory"
	"github.com/allosh/allosh-market-service/internal/inventory/dto"
	"github.com/allosh/allosh-market-service/internal/model"
)

var importHeader = []string{"product_id", "branch_id", "price", "discount_price", "stock_quantity", "min_stock_alert", "is_available"}

// ImportInventory reads the first sheet of an xlsx workbook. Each row upserts
// the branch settings and sets on-hand stock through an ADJUSTMENT movement.
// Bad rows are reported and skipped; good rows are applied.
func (uc *inventoryUseCase) ImportInventory(ctx context.Context, r io.Reader, performedBy string) (*dto.ImportResult, error) {
	ctx, span := tracer.Start(ctx, "inventory.ImportInventory")
	defer span.End()

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidationFailed, err, "invalid workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperror.New(apperror.KindValidationFailed, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidationFailed, err, "read sheet")
	}
	if len(rows) == 0 {
		return nil, apperror.New(apperror.KindValidationFailed, "sheet is empty")
	}
	if err := checkHeader(rows[0]); err != nil {
		return nil, err
	}

	result := &dto.ImportResult{Errors: []dto.ImportRowError{}}
	for i, row := range rows[1:] {
		line := i + 2
		if isBlank(row) {
			continue
		}
		rec, err := parseImportRow(row)
		if err == nil {
			err = uc.importRow(ctx, rec, performedBy)
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, dto.ImportRowError{Row: line, Message: err.Error()})
			continue
		}
		result.Imported++
	}

	uc.logger.Info("inventory imported",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.String("performed_by", performedBy),
	)
	return result, nil
}

type importRecord struct {
	settings dto.UpdateSettingsInput
	stock    int
}

func (uc *inventoryUseCase) importRow(ctx context.Context, rec *importRecord, performedBy string) error {
	if _, err := uc.UpdateSettings(ctx, &rec.settings); err != nil {
		return err
	}

	unlock, err := uc.lock(ctx, rec.settings.ProductID, rec.settings.BranchID)
	if err != nil {
		return err
	}
	defer unlock()

	key := model.InventoryKey{ProductID: rec.settings.ProductID, BranchID: rec.settings.BranchID}
	return uc.store(ctx, func(ctx context.Context) error {
		_, err := uc.repo.Mutate(ctx, []inventory.RowKey{{ProductID: key.ProductID, BranchID: key.BranchID, CreateIfMissing: true}},
			func(rows map[model.InventoryKey]*model.BranchInventory) ([]*model.StockMovement, error) {
				now := uc.now()
				inv := rows[key]
				if inv == nil {
					inv = model.NewBranchInventory(key.ProductID, key.BranchID, now)
					inv.IsAvailable = rec.settings.IsAvailable
					rows[key] = inv
				}
				delta := rec.stock - inv.StockQuantity
				if delta == 0 {
					return nil, nil
				}
				if err := model.ApplyAdjustment(inv, delta, now); err != nil {
					return nil, err
				}
				m := uc.newMovement(key.ProductID, model.MovementAdjustment, abs(delta), "inventory import", performedBy, now)
				if delta > 0 {
					m.ToBranchID = &key.BranchID
				} else {
					m.FromBranchID = &key.BranchID
				}
				return []*model.StockMovement{m}, nil
			})
		return err
	})
}

func checkHeader(row []string) error {
	if len(row) < len(importHeader) {
		return apperror.Newf(apperror.KindValidationFailed, "expected columns %s", strings.Join(importHeader, ", "))
	}
	for i, col := range importHeader {
		if strings.ToLower(strings.TrimSpace(row[i])) != col {
			return apperror.Newf(apperror.KindValidationFailed, "column %d must be %s", i+1, col)
		}
	}
	return nil
}

func parseImportRow(row []string) (*importRecord, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	rec := &importRecord{
		settings: dto.UpdateSettingsInput{
			ProductID:   cell(0),
			BranchID:    cell(1),
			IsAvailable: true,
		},
	}
	if rec.settings.ProductID == "" || rec.settings.BranchID == "" {
		return nil, fmt.Errorf("product_id and branch_id are required")
	}

	price, err := strconv.ParseFloat(cell(2), 64)
	if err != nil || price < 0 {
		return nil, fmt.Errorf("invalid price %q", cell(2))
	}
	rec.settings.Price = price

	if v := cell(3); v != "" {
		dp, err := strconv.ParseFloat(v, 64)
		if err != nil || dp < 0 {
			return nil, fmt.Errorf("invalid discount_price %q", v)
		}
		rec.settings.DiscountPrice = &dp
	}

	stock, err := strconv.Atoi(cell(4))
	if err != nil || stock < 0 {
		return nil, fmt.Errorf("invalid stock_quantity %q", cell(4))
	}
	rec.stock = stock

	if v := cell(5); v != "" {
		minAlert, err := strconv.Atoi(v)
		if err != nil || minAlert < 0 {
			return nil, fmt.Errorf("invalid min_stock_alert %q", v)
		}
		rec.settings.MinStockAlert = minAlert
	}

	if v := cell(6); v != "" {
		avail, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return nil, fmt.Errorf("invalid is_available %q", v)
		}
		rec.settings.IsAvailable = avail
	}
	return rec, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
