package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/inventory"
	"github.com/allosh/allosh-market-service/internal/inventory/dto"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/cache"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

var tracer = otel.Tracer("allosh/inventory")

type inventoryUseCase struct {
	repo   inventory.Repository
	locker cache.Locker
	retry  apperror.RetryPolicy
	logger logger.ZapLogger
	now    func() time.Time
}

func NewInventoryUseCase(repo inventory.Repository, locker cache.Locker, retry apperror.RetryPolicy, log logger.ZapLogger) inventory.UseCase {
	return &inventoryUseCase{
		repo:   repo,
		locker: locker,
		retry:  retry,
		logger: log,
		now:    time.Now,
	}
}

func (uc *inventoryUseCase) store(ctx context.Context, fn func(ctx context.Context) error) error {
	return apperror.Retry(ctx, uc.retry, fn)
}

func (uc *inventoryUseCase) GetBranchInventory(ctx context.Context, productID, branchID string) (*model.BranchInventory, error) {
	var inv *model.BranchInventory
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		inv, err = uc.repo.GetByKey(ctx, productID, branchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "product %s is not assigned to branch %s", productID, branchID)
	}
	return inv, nil
}

func (uc *inventoryUseCase) ListInventory(ctx context.Context, filters *dto.InventoryFilters) ([]model.BranchInventory, int, error) {
	var (
		items []model.BranchInventory
		count int
	)
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		items, count, err = uc.repo.FindAll(ctx, filters)
		return err
	})
	return items, count, err
}

func (uc *inventoryUseCase) UpdateSettings(ctx context.Context, input *dto.UpdateSettingsInput) (*model.BranchInventory, error) {
	if input.DiscountPrice != nil && *input.DiscountPrice > input.Price {
		return nil, apperror.New(apperror.KindValidationFailed, "discount price above price")
	}

	inv := &model.BranchInventory{
		ProductID:     input.ProductID,
		BranchID:      input.BranchID,
		Price:         model.RoundMoney(input.Price),
		DiscountPrice: input.DiscountPrice,
		MinStockAlert: input.MinStockAlert,
		IsAvailable:   input.IsAvailable,
		Notes:         input.Notes,
		UpdatedAt:     uc.now(),
	}
	if inv.DiscountPrice != nil {
		dp := model.RoundMoney(*inv.DiscountPrice)
		inv.DiscountPrice = &dp
	}

	var out *model.BranchInventory
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		out, err = uc.repo.UpsertSettings(ctx, inv)
		return err
	})
	return out, err
}

func (uc *inventoryUseCase) AdjustInventory(ctx context.Context, input *dto.AdjustInventoryInput) (*model.BranchInventory, error) {
	ctx, span := tracer.Start(ctx, "inventory.AdjustInventory")
	defer span.End()

	if input.QuantityChange == 0 {
		return nil, apperror.New(apperror.KindValidationFailed, "quantity change must not be zero")
	}

	unlock, err := uc.lock(ctx, input.ProductID, input.BranchID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	key := model.InventoryKey{ProductID: input.ProductID, BranchID: input.BranchID}
	var out []model.BranchInventory
	err = uc.store(ctx, func(ctx context.Context) error {
		var err error
		out, err = uc.repo.Mutate(ctx, []inventory.RowKey{{ProductID: key.ProductID, BranchID: key.BranchID, CreateIfMissing: true}},
			func(rows map[model.InventoryKey]*model.BranchInventory) ([]*model.StockMovement, error) {
				now := uc.now()
				inv := rows[key]
				if inv == nil {
					inv = model.NewBranchInventory(key.ProductID, key.BranchID, now)
					rows[key] = inv
				}
				if err := model.ApplyAdjustment(inv, input.QuantityChange, now); err != nil {
					return nil, err
				}

				m := uc.newMovement(key.ProductID, model.MovementAdjustment, abs(input.QuantityChange), input.Reason, input.UserID, now)
				if input.QuantityChange > 0 {
					m.ToBranchID = &key.BranchID
				} else {
					m.FromBranchID = &key.BranchID
				}
				return []*model.StockMovement{m}, nil
			})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	uc.logger.Info("inventory adjusted",
		zap.String("product_id", input.ProductID),
		zap.String("branch_id", input.BranchID),
		zap.Int("change", input.QuantityChange),
		zap.Int("stock_after", out[0].StockQuantity),
	)
	return &out[0], nil
}

func (uc *inventoryUseCase) TransferStock(ctx context.Context, input *dto.TransferInventoryInput) (*dto.TransferResult, error) {
	ctx, span := tracer.Start(ctx, "inventory.TransferStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("product_id", input.ProductID),
		attribute.String("from_branch_id", input.FromBranchID),
		attribute.String("to_branch_id", input.ToBranchID),
		attribute.Int("quantity", input.Quantity),
	)

	if input.FromBranchID == input.ToBranchID {
		return nil, apperror.New(apperror.KindInvalidBranchPair, "")
	}
	if input.Quantity <= 0 {
		return nil, apperror.New(apperror.KindValidationFailed, "quantity must be positive")
	}

	srcKey := model.InventoryKey{ProductID: input.ProductID, BranchID: input.FromBranchID}
	dstKey := model.InventoryKey{ProductID: input.ProductID, BranchID: input.ToBranchID}
	keys := []inventory.RowKey{
		{ProductID: input.ProductID, BranchID: input.FromBranchID},
		{ProductID: input.ProductID, BranchID: input.ToBranchID, CreateIfMissing: true},
	}

	var (
		out      []model.BranchInventory
		movement model.StockMovement
	)
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		out, err = uc.repo.Mutate(ctx, keys, func(rows map[model.InventoryKey]*model.BranchInventory) ([]*model.StockMovement, error) {
			now := uc.now()
			src := rows[srcKey]
			dst := rows[dstKey]
			if dst == nil {
				dst = model.NewBranchInventory(dstKey.ProductID, dstKey.BranchID, now)
				rows[dstKey] = dst
			}
			if err := model.ApplyTransfer(src, dst, input.Quantity, now); err != nil {
				return nil, err
			}

			m := uc.newMovement(input.ProductID, model.MovementTransfer, input.Quantity, input.Notes, input.UserID, now)
			m.FromBranchID = &srcKey.BranchID
			m.ToBranchID = &dstKey.BranchID
			movement = *m
			return []*model.StockMovement{m}, nil
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		uc.logger.Warn("stock transfer failed",
			zap.String("product_id", input.ProductID),
			zap.String("from_branch_id", input.FromBranchID),
			zap.String("to_branch_id", input.ToBranchID),
			zap.Int("quantity", input.Quantity),
			zap.Error(err),
		)
		return nil, err
	}
	if len(out) != 2 {
		return nil, apperror.New(apperror.KindInternal, "transfer returned unexpected rows")
	}

	uc.logger.Info("stock transferred",
		zap.String("movement_id", movement.ID),
		zap.String("product_id", input.ProductID),
		zap.String("from_branch_id", input.FromBranchID),
		zap.String("to_branch_id", input.ToBranchID),
		zap.Int("quantity", input.Quantity),
	)
	return &dto.TransferResult{
		UpdatedSource:      out[0],
		UpdatedDestination: out[1],
		Movement:           movement,
	}, nil
}

func (uc *inventoryUseCase) LowStockAlerts(ctx context.Context) ([]model.LowStockAlert, error) {
	var alerts []model.LowStockAlert
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		alerts, err = uc.repo.LowStockAlerts(ctx)
		return err
	})
	return alerts, err
}

func (uc *inventoryUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error) {
	var (
		items []model.StockMovement
		count int
	)
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		items, count, err = uc.repo.ListMovements(ctx, filters)
		return err
	})
	return items, count, err
}

func (uc *inventoryUseCase) ReserveOrder(ctx context.Context, input *dto.OrderStockInput) error {
	return uc.applyOrder(ctx, "inventory.ReserveOrder", input, false, func(inv *model.BranchInventory, qty int, now time.Time) (*model.StockMovement, error) {
		return nil, model.ApplyReserve(inv, qty, now)
	})
}

func (uc *inventoryUseCase) ReleaseOrder(ctx context.Context, input *dto.OrderStockInput) error {
	return uc.applyOrder(ctx, "inventory.ReleaseOrder", input, false, func(inv *model.BranchInventory, qty int, now time.Time) (*model.StockMovement, error) {
		model.ApplyRelease(inv, qty, now)
		return nil, nil
	})
}

func (uc *inventoryUseCase) FulfilOrder(ctx context.Context, input *dto.OrderStockInput) error {
	return uc.applyOrder(ctx, "inventory.FulfilOrder", input, true, func(inv *model.BranchInventory, qty int, now time.Time) (*model.StockMovement, error) {
		if err := model.ApplyFulfil(inv, qty, now); err != nil {
			return nil, err
		}
		m := uc.newMovement(inv.ProductID, model.MovementOrder, qty, "order delivered", "system", now)
		m.FromBranchID = &inv.BranchID
		m.ReferenceID = &input.OrderID
		return m, nil
	})
}

type orderLineFunc func(inv *model.BranchInventory, qty int, now time.Time) (*model.StockMovement, error)

// applyOrder applies fn to every line of an order in one unit. Referenced
// movements make a replayed fulfilment a no-op.
func (uc *inventoryUseCase) applyOrder(ctx context.Context, op string, input *dto.OrderStockInput, idempotent bool, fn orderLineFunc) error {
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("order_id", input.OrderID))

	lines := mergeLines(input.Lines)
	if len(lines) == 0 {
		return nil
	}
	keys := make([]inventory.RowKey, 0, len(lines))
	for _, l := range lines {
		keys = append(keys, inventory.RowKey{ProductID: l.ProductID, BranchID: input.BranchID})
	}

	err := uc.store(ctx, func(ctx context.Context) error {
		_, err := uc.repo.Mutate(ctx, keys, func(rows map[model.InventoryKey]*model.BranchInventory) ([]*model.StockMovement, error) {
			now := uc.now()
			var movements []*model.StockMovement
			for _, l := range lines {
				inv := rows[model.InventoryKey{ProductID: l.ProductID, BranchID: input.BranchID}]
				if inv == nil {
					return nil, apperror.Newf(apperror.KindInsufficientStock, "product %s is not stocked at branch %s", l.ProductID, input.BranchID)
				}
				m, err := fn(inv, l.Quantity, now)
				if err != nil {
					return nil, err
				}
				if m != nil {
					movements = append(movements, m)
				}
			}
			return movements, nil
		})
		return err
	})
	if idempotent && errors.Is(err, inventory.ErrAlreadyApplied) {
		uc.logger.Info("order stock already applied", zap.String("op", op), zap.String("order_id", input.OrderID))
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (uc *inventoryUseCase) RestockReturn(ctx context.Context, input *dto.RestockReturnInput) error {
	ctx, span := tracer.Start(ctx, "inventory.RestockReturn")
	defer span.End()
	span.SetAttributes(attribute.String("return_id", input.ReturnID))

	lines := mergeLines(input.Lines)
	if len(lines) == 0 {
		return nil
	}
	keys := make([]inventory.RowKey, 0, len(lines))
	for _, l := range lines {
		keys = append(keys, inventory.RowKey{ProductID: l.ProductID, BranchID: input.BranchID, CreateIfMissing: true})
	}

	err := uc.store(ctx, func(ctx context.Context) error {
		_, err := uc.repo.Mutate(ctx, keys, func(rows map[model.InventoryKey]*model.BranchInventory) ([]*model.StockMovement, error) {
			now := uc.now()
			movements := make([]*model.StockMovement, 0, len(lines))
			for _, l := range lines {
				key := model.InventoryKey{ProductID: l.ProductID, BranchID: input.BranchID}
				inv := rows[key]
				if inv == nil {
					inv = model.NewBranchInventory(key.ProductID, key.BranchID, now)
					rows[key] = inv
				}
				if err := model.ApplyRestock(inv, l.Quantity, now); err != nil {
					return nil, err
				}
				m := uc.newMovement(l.ProductID, model.MovementReturn, l.Quantity, "return approved", input.PerformedBy, now)
				m.ToBranchID = &key.BranchID
				m.ReferenceID = &input.ReturnID
				movements = append(movements, m)
			}
			return movements, nil
		})
		return err
	})
	if errors.Is(err, inventory.ErrAlreadyApplied) {
		uc.logger.Info("return already restocked", zap.String("return_id", input.ReturnID))
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	uc.logger.Info("return restocked", zap.String("return_id", input.ReturnID), zap.String("branch_id", input.BranchID), zap.Int("lines", len(lines)))
	return nil
}

func (uc *inventoryUseCase) lock(ctx context.Context, productID, branchID string) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("lock:inventory:%s:%s", productID, branchID)
	unlock, err := uc.locker.Lock(ctx, lockKey, 5*time.Second)
	if errors.Is(err, cache.ErrLockNotObtained) {
		return nil, apperror.Wrap(apperror.KindBusy, err, lockKey)
	}
	if err != nil {
		// Redis being down must not block stock edits; the row lock still serialises.
		uc.logger.Error("failed to acquire inventory lock", zap.String("key", lockKey), zap.Error(err))
		return func() {}, nil
	}
	return unlock, nil
}

func (uc *inventoryUseCase) newMovement(productID string, mt model.MovementType, qty int, notes, performedBy string, now time.Time) *model.StockMovement {
	if performedBy == "" {
		performedBy = "system"
	}
	return &model.StockMovement{
		ID:           uuid.New().String(),
		ProductID:    productID,
		Quantity:     qty,
		MovementType: mt,
		Notes:        notes,
		PerformedBy:  performedBy,
		CreatedAt:    now,
	}
}

// mergeLines sums quantities per product and drops non-positive lines.
func mergeLines(lines []dto.OrderLine) []dto.OrderLine {
	out := make([]dto.OrderLine, 0, len(lines))
	index := map[string]int{}
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
