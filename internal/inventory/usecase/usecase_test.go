package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/inventory"
	"github.com/allosh/allosh-market-service/internal/inventory/dto"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/cache"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

// memRepo mirrors the Postgres repository semantics: Mutate works on copies
// and commits rows and movements together, or not at all.
type memRepo struct {
	mu        sync.Mutex
	rows      map[model.InventoryKey]model.BranchInventory
	movements []model.StockMovement
	failNext  error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[model.InventoryKey]model.BranchInventory{}}
}

func (r *memRepo) seed(productID, branchID string, stock, reserved, minAlert int) {
	r.rows[model.InventoryKey{ProductID: productID, BranchID: branchID}] = model.BranchInventory{
		ProductID:        productID,
		BranchID:         branchID,
		StockQuantity:    stock,
		ReservedQuantity: reserved,
		MinStockAlert:    minAlert,
		IsAvailable:      true,
	}
}

func (r *memRepo) row(productID, branchID string) (model.BranchInventory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[model.InventoryKey{ProductID: productID, BranchID: branchID}]
	return inv, ok
}

func (r *memRepo) GetByKey(_ context.Context, productID, branchID string) (*model.BranchInventory, error) {
	inv, ok := r.row(productID, branchID)
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (r *memRepo) FindAll(_ context.Context, f *dto.InventoryFilters) ([]model.BranchInventory, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.BranchInventory{}
	for _, inv := range r.rows {
		if f.BranchID != "" && inv.BranchID != f.BranchID {
			continue
		}
		if f.LowStock && !inv.IsLowStock() {
			continue
		}
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (r *memRepo) UpsertSettings(_ context.Context, inv *model.BranchInventory) (*model.BranchInventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[inv.Key()]
	if !ok {
		cur = model.BranchInventory{ProductID: inv.ProductID, BranchID: inv.BranchID}
	}
	cur.Price = inv.Price
	cur.DiscountPrice = inv.DiscountPrice
	cur.MinStockAlert = inv.MinStockAlert
	cur.IsAvailable = inv.IsAvailable
	cur.Notes = inv.Notes
	cur.UpdatedAt = inv.UpdatedAt
	r.rows[inv.Key()] = cur
	return &cur, nil
}

func (r *memRepo) Mutate(_ context.Context, keys []inventory.RowKey, fn inventory.MutateFunc) ([]model.BranchInventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return nil, err
	}

	work := map[model.InventoryKey]*model.BranchInventory{}
	for _, k := range keys {
		key := model.InventoryKey{ProductID: k.ProductID, BranchID: k.BranchID}
		if inv, ok := r.rows[key]; ok {
			c := inv
			work[key] = &c
		} else if k.CreateIfMissing {
			work[key] = model.NewBranchInventory(k.ProductID, k.BranchID, time.Time{})
		}
	}

	movements, err := fn(work)
	if err != nil {
		return nil, err
	}
	for _, m := range movements {
		if m.ReferenceID == nil {
			continue
		}
		for _, existing := range r.movements {
			if existing.ReferenceID != nil && *existing.ReferenceID == *m.ReferenceID &&
				existing.MovementType == m.MovementType && existing.ProductID == m.ProductID {
				return nil, inventory.ErrAlreadyApplied
			}
		}
	}

	for key, inv := range work {
		r.rows[key] = *inv
	}
	for _, m := range movements {
		r.movements = append(r.movements, *m)
	}

	out := []model.BranchInventory{}
	for _, k := range keys {
		if inv, ok := work[model.InventoryKey{ProductID: k.ProductID, BranchID: k.BranchID}]; ok {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *memRepo) LowStockAlerts(_ context.Context) ([]model.LowStockAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alerts := []model.LowStockAlert{}
	for _, inv := range r.rows {
		if inv.IsLowStock() {
			alerts = append(alerts, model.LowStockAlert{
				ProductID:     inv.ProductID,
				BranchID:      inv.BranchID,
				StockQuantity: inv.StockQuantity,
				MinStockAlert: inv.MinStockAlert,
			})
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].BranchID != alerts[j].BranchID {
			return alerts[i].BranchID < alerts[j].BranchID
		}
		return alerts[i].ProductID < alerts[j].ProductID
	})
	return alerts, nil
}

func (r *memRepo) ListMovements(_ context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.StockMovement{}
	for _, m := range r.movements {
		if f.ReferenceID != "" && (m.ReferenceID == nil || *m.ReferenceID != f.ReferenceID) {
			continue
		}
		out = append(out, m)
	}
	return out, len(out), nil
}

func newTestUseCase(repo inventory.Repository) *inventoryUseCase {
	uc := NewInventoryUseCase(repo, cache.NewMemory(), apperror.RetryPolicy{Attempts: 3, BaseWait: time.Millisecond}, logger.NewNop()).(*inventoryUseCase)
	uc.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	return uc
}

func TestTransferStock_MovesUnitsAndLogsMovement(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 50, 0, 0)
	uc := newTestUseCase(repo)

	res, err := uc.TransferStock(context.Background(), &dto.TransferInventoryInput{
		ProductID: "p1", FromBranchID: "A", ToBranchID: "B", Quantity: 20, UserID: "admin-1",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.UpdatedSource.StockQuantity != 30 || res.UpdatedDestination.StockQuantity != 20 {
		t.Fatalf("unexpected result %d/%d", res.UpdatedSource.StockQuantity, res.UpdatedDestination.StockQuantity)
	}

	a, _ := repo.row("p1", "A")
	b, ok := repo.row("p1", "B")
	if !ok || a.StockQuantity != 30 || b.StockQuantity != 20 {
		t.Fatalf("persisted rows wrong: A=%d B=%d", a.StockQuantity, b.StockQuantity)
	}

	if len(repo.movements) != 1 {
		t.Fatalf("expected one movement, got %d", len(repo.movements))
	}
	m := repo.movements[0]
	if m.MovementType != model.MovementTransfer || m.Quantity != 20 || *m.FromBranchID != "A" || *m.ToBranchID != "B" || m.PerformedBy != "admin-1" {
		t.Fatalf("unexpected movement %+v", m)
	}
	if res.Movement.ID != m.ID {
		t.Fatalf("returned movement does not match logged one")
	}
}

func TestTransferStock_InsufficientLeavesStateUntouched(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 10, 0, 0)
	uc := newTestUseCase(repo)

	_, err := uc.TransferStock(context.Background(), &dto.TransferInventoryInput{
		ProductID: "p1", FromBranchID: "A", ToBranchID: "B", Quantity: 15,
	})
	if !apperror.IsKind(err, apperror.KindInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	a, _ := repo.row("p1", "A")
	if a.StockQuantity != 10 {
		t.Fatalf("source changed to %d", a.StockQuantity)
	}
	if _, ok := repo.row("p1", "B"); ok {
		t.Fatalf("destination row must not be created on failure")
	}
	if len(repo.movements) != 0 {
		t.Fatalf("no movement expected, got %d", len(repo.movements))
	}
}

func TestTransferStock_Rejects(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 10, 8, 0)
	uc := newTestUseCase(repo)

	tests := []struct {
		name  string
		input dto.TransferInventoryInput
		kind  apperror.Kind
	}{
		{"same branch", dto.TransferInventoryInput{ProductID: "p1", FromBranchID: "A", ToBranchID: "A", Quantity: 1}, apperror.KindInvalidBranchPair},
		{"zero quantity", dto.TransferInventoryInput{ProductID: "p1", FromBranchID: "A", ToBranchID: "B", Quantity: 0}, apperror.KindValidationFailed},
		{"reserved units stay", dto.TransferInventoryInput{ProductID: "p1", FromBranchID: "A", ToBranchID: "B", Quantity: 3}, apperror.KindInsufficientStock},
		{"unknown source", dto.TransferInventoryInput{ProductID: "p2", FromBranchID: "A", ToBranchID: "B", Quantity: 1}, apperror.KindInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.TransferStock(context.Background(), &tt.input)
			if !apperror.IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestTransferStock_ConservesTotalUnderConcurrency(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 100, 0, 0)
	repo.seed("p1", "B", 100, 0, 0)
	uc := newTestUseCase(repo)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "A", "B"
			if i%2 == 0 {
				from, to = "B", "A"
			}
			_, _ = uc.TransferStock(context.Background(), &dto.TransferInventoryInput{
				ProductID: "p1", FromBranchID: from, ToBranchID: to, Quantity: 7,
			})
		}(i)
	}
	wg.Wait()

	a, _ := repo.row("p1", "A")
	b, _ := repo.row("p1", "B")
	if a.StockQuantity+b.StockQuantity != 200 {
		t.Fatalf("total not conserved: %d", a.StockQuantity+b.StockQuantity)
	}
	if a.StockQuantity < 0 || b.StockQuantity < 0 {
		t.Fatalf("negative stock A=%d B=%d", a.StockQuantity, b.StockQuantity)
	}
}

func TestTransferStock_RetriesConnectionErrors(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 5, 0, 0)
	repo.failNext = apperror.New(apperror.KindConnectionError, "reset")
	uc := newTestUseCase(repo)

	if _, err := uc.TransferStock(context.Background(), &dto.TransferInventoryInput{
		ProductID: "p1", FromBranchID: "A", ToBranchID: "B", Quantity: 5,
	}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(repo.movements) != 1 {
		t.Fatalf("expected exactly one movement, got %d", len(repo.movements))
	}
}

func TestAdjustInventory(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 10, 4, 0)
	uc := newTestUseCase(repo)
	ctx := context.Background()

	inv, err := uc.AdjustInventory(ctx, &dto.AdjustInventoryInput{ProductID: "p1", BranchID: "A", QuantityChange: -5, Reason: "damaged"})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if inv.StockQuantity != 5 {
		t.Fatalf("expected 5, got %d", inv.StockQuantity)
	}

	_, err = uc.AdjustInventory(ctx, &dto.AdjustInventoryInput{ProductID: "p1", BranchID: "A", QuantityChange: -2})
	if !apperror.IsKind(err, apperror.KindInsufficientStock) {
		t.Fatalf("dropping below reserved must fail, got %v", err)
	}

	inv, err = uc.AdjustInventory(ctx, &dto.AdjustInventoryInput{ProductID: "p1", BranchID: "C", QuantityChange: 12})
	if err != nil || inv.StockQuantity != 12 {
		t.Fatalf("adjust on new row: %v %+v", err, inv)
	}

	if len(repo.movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(repo.movements))
	}
	if repo.movements[0].Quantity != 5 || repo.movements[0].FromBranchID == nil {
		t.Fatalf("negative adjustment should log from branch: %+v", repo.movements[0])
	}
}

func TestAdjustInventory_BusyWhenLocked(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 10, 0, 0)
	locker := cache.NewMemory()
	uc := newTestUseCase(repo)
	uc.locker = locker

	unlock, err := locker.Lock(context.Background(), "lock:inventory:p1:A", time.Second)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = uc.AdjustInventory(ctx, &dto.AdjustInventoryInput{ProductID: "p1", BranchID: "A", QuantityChange: 1})
	if !apperror.IsKind(err, apperror.KindBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
}

func TestRestockReturn_Idempotent(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 7, 0, 0)
	uc := newTestUseCase(repo)
	ctx := context.Background()

	input := &dto.RestockReturnInput{
		ReturnID:    "ret-1",
		BranchID:    "A",
		Lines:       []dto.OrderLine{{ProductID: "p1", Quantity: 3}, {ProductID: "p2", Quantity: 1}},
		PerformedBy: "admin-1",
	}
	for i := 0; i < 2; i++ {
		if err := uc.RestockReturn(ctx, input); err != nil {
			t.Fatalf("restock #%d: %v", i+1, err)
		}
	}

	p1, _ := repo.row("p1", "A")
	p2, _ := repo.row("p2", "A")
	if p1.StockQuantity != 10 || p2.StockQuantity != 1 {
		t.Fatalf("unexpected stock p1=%d p2=%d", p1.StockQuantity, p2.StockQuantity)
	}

	moves, _, _ := repo.ListMovements(ctx, &dto.MovementFilters{ReferenceID: "ret-1"})
	if len(moves) != 2 {
		t.Fatalf("expected 2 return movements, got %d", len(moves))
	}
	for _, m := range moves {
		if m.MovementType != model.MovementReturn || *m.ToBranchID != "A" {
			t.Fatalf("unexpected movement %+v", m)
		}
	}
}

func TestOrderLifecycle(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 10, 0, 0)
	uc := newTestUseCase(repo)
	ctx := context.Background()

	order := &dto.OrderStockInput{OrderID: "o-1", BranchID: "A", Lines: []dto.OrderLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p1", Quantity: 2}}}
	if err := uc.ReserveOrder(ctx, order); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	inv, _ := repo.row("p1", "A")
	if inv.ReservedQuantity != 4 {
		t.Fatalf("expected 4 reserved, got %d", inv.ReservedQuantity)
	}

	for i := 0; i < 2; i++ {
		if err := uc.FulfilOrder(ctx, order); err != nil {
			t.Fatalf("fulfil #%d: %v", i+1, err)
		}
	}
	inv, _ = repo.row("p1", "A")
	if inv.StockQuantity != 6 || inv.ReservedQuantity != 0 {
		t.Fatalf("after fulfil stock=%d reserved=%d", inv.StockQuantity, inv.ReservedQuantity)
	}

	cancelled := &dto.OrderStockInput{OrderID: "o-2", BranchID: "A", Lines: []dto.OrderLine{{ProductID: "p1", Quantity: 5}}}
	if err := uc.ReserveOrder(ctx, cancelled); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := uc.ReleaseOrder(ctx, cancelled); err != nil {
		t.Fatalf("release: %v", err)
	}
	inv, _ = repo.row("p1", "A")
	if inv.ReservedQuantity != 0 {
		t.Fatalf("expected release to free stock, got %d", inv.ReservedQuantity)
	}

	err := uc.ReserveOrder(ctx, &dto.OrderStockInput{OrderID: "o-3", BranchID: "A", Lines: []dto.OrderLine{{ProductID: "p1", Quantity: 7}}})
	if !apperror.IsKind(err, apperror.KindInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestLowStockAlerts_ReadOnly(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "B", 2, 0, 5)
	repo.seed("p2", "A", 1, 0, 3)
	repo.seed("p3", "A", 9, 0, 3)
	uc := newTestUseCase(repo)

	first, err := uc.LowStockAlerts(context.Background())
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	second, _ := uc.LowStockAlerts(context.Background())
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 alerts, got %d/%d", len(first), len(second))
	}
	if first[0].BranchID != "A" || first[1].BranchID != "B" {
		t.Fatalf("alerts not ordered by branch: %+v", first)
	}
	if len(repo.movements) != 0 {
		t.Fatalf("alerts must not write")
	}
}

func TestGetBranchInventory_NotFound(t *testing.T) {
	uc := newTestUseCase(newMemRepo())
	_, err := uc.GetBranchInventory(context.Background(), "p1", "A")
	if !apperror.IsKind(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if errors.Is(err, inventory.ErrAlreadyApplied) {
		t.Fatalf("unexpected sentinel")
	}
}
