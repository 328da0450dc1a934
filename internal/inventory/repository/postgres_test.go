package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/allosh/allosh-market-service/internal/inventory"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/postgres/postgrestest"
)

func seed(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, q := range []string{
		`INSERT INTO branches (id, name) VALUES ('A', 'Maadi'), ('B', 'Zamalek')`,
		`INSERT INTO products (id, sku, name) VALUES ('p', 'SKU-P', 'Milk')`,
		`INSERT INTO branch_inventory (product_id, branch_id, stock_quantity) VALUES ('p', 'A', 100), ('p', 'B', 100)`,
	} {
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func transfer(from, to string, qty int, ref *string) inventory.MutateFunc {
	return func(rows map[model.InventoryKey]*model.BranchInventory) ([]*model.StockMovement, error) {
		src := rows[model.InventoryKey{ProductID: "p", BranchID: from}]
		dst := rows[model.InventoryKey{ProductID: "p", BranchID: to}]
		if err := model.ApplyTransfer(src, dst, qty, time.Now()); err != nil {
			return nil, err
		}
		return []*model.StockMovement{{
			ID:           uuid.New().String(),
			ProductID:    "p",
			FromBranchID: &from,
			ToBranchID:   &to,
			Quantity:     qty,
			MovementType: model.MovementTransfer,
			ReferenceID:  ref,
			CreatedAt:    time.Now(),
		}}, nil
	}
}

func keys(from, to string) []inventory.RowKey {
	return []inventory.RowKey{
		{ProductID: "p", BranchID: from},
		{ProductID: "p", BranchID: to, CreateIfMissing: true},
	}
}

func TestMutate_OpposingTransfersConserveStock(t *testing.T) {
	db := postgrestest.Open(t)
	seed(t, db)
	repo := NewPGRepository(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for _, pair := range [][2]string{{"A", "B"}, {"B", "A"}} {
			wg.Add(1)
			go func(from, to string) {
				defer wg.Done()
				if _, err := repo.Mutate(ctx, keys(from, to), transfer(from, to, 3, nil)); err != nil {
					t.Errorf("transfer %s->%s: %v", from, to, err)
				}
			}(pair[0], pair[1])
		}
	}
	wg.Wait()

	a, _ := repo.GetByKey(ctx, "p", "A")
	b, _ := repo.GetByKey(ctx, "p", "B")
	if a.StockQuantity+b.StockQuantity != 200 || a.StockQuantity != 100 {
		t.Fatalf("stock not conserved: A=%d B=%d", a.StockQuantity, b.StockQuantity)
	}
	var moves int
	if err := db.Get(&moves, `SELECT count(*) FROM stock_movements`); err != nil || moves != 40 {
		t.Fatalf("movements %d %v", moves, err)
	}
}

func TestMutate_RepeatedReferenceRollsBack(t *testing.T) {
	db := postgrestest.Open(t)
	seed(t, db)
	repo := NewPGRepository(db)
	ctx := context.Background()
	ref := "o-1"

	if _, err := repo.Mutate(ctx, keys("A", "B"), transfer("A", "B", 10, &ref)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := repo.Mutate(ctx, keys("A", "B"), transfer("A", "B", 10, &ref)); !errors.Is(err, inventory.ErrAlreadyApplied) {
		t.Fatalf("expected ErrAlreadyApplied, got %v", err)
	}

	a, _ := repo.GetByKey(ctx, "p", "A")
	if a.StockQuantity != 90 {
		t.Fatalf("second apply must roll back, A=%d", a.StockQuantity)
	}
}

func TestMutate_CreatesMissingDestination(t *testing.T) {
	db := postgrestest.Open(t)
	seed(t, db)
	if _, err := db.Exec(`INSERT INTO branches (id, name) VALUES ('C', 'Nasr City')`); err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	repo := NewPGRepository(db)
	ctx := context.Background()

	rows, err := repo.Mutate(ctx, keys("A", "C"), transfer("A", "C", 7, nil))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(rows) != 2 || rows[1].BranchID != "C" || rows[1].StockQuantity != 7 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}
