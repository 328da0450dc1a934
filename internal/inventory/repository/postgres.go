package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/allosh/allosh-market-service/internal/inventory"
	"github.com/allosh/allosh-market-service/internal/inventory/dto"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/postgres"
)

const inventoryColumns = `product_id, branch_id, price, discount_price, stock_quantity,
	reserved_quantity, min_stock_alert, is_available, notes, updated_at`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByKey(ctx context.Context, productID, branchID string) (*model.BranchInventory, error) {
	var inv model.BranchInventory
	query := `SELECT ` + inventoryColumns + ` FROM branch_inventory WHERE product_id = $1 AND branch_id = $2`
	err := r.DB.GetContext(ctx, &inv, query, productID, branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get branch inventory")
	}
	return &inv, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.BranchInventory, int, error) {
	items := []model.BranchInventory{}
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.BranchID != "" {
		conditions = append(conditions, "branch_id = :branch_id")
		args["branch_id"] = f.BranchID
	}
	if f.LowStock {
		conditions = append(conditions, "is_available AND stock_quantity < min_stock_alert")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM branch_inventory" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count branch inventory")
	}
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			rows.Close()
			return nil, 0, err
		}
	}
	rows.Close()

	query := "SELECT " + inventoryColumns + " FROM branch_inventory" + whereClause + " ORDER BY branch_id, product_id"
	if f.PageSize > 0 {
		offset := (max(f.Page, 1) - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "prepare list branch inventory")
	}
	defer nstmt.Close()

	if err := nstmt.SelectContext(ctx, &items, args); err != nil {
		return nil, 0, errors.Wrap(err, "list branch inventory")
	}
	return items, count, nil
}

// UpsertSettings writes the admin-editable columns; stock columns are only
// changed through Mutate.
func (r *PGRepository) UpsertSettings(ctx context.Context, inv *model.BranchInventory) (*model.BranchInventory, error) {
	query := `
        INSERT INTO branch_inventory (
            product_id, branch_id, price, discount_price, stock_quantity,
            reserved_quantity, min_stock_alert, is_available, notes, updated_at
        )
        VALUES (
            :product_id, :branch_id, :price, :discount_price, 0,
            0, :min_stock_alert, :is_available, :notes, :updated_at
        )
        ON CONFLICT (product_id, branch_id)
        DO UPDATE SET
            price = EXCLUDED.price,
            discount_price = EXCLUDED.discount_price,
            min_stock_alert = EXCLUDED.min_stock_alert,
            is_available = EXCLUDED.is_available,
            notes = EXCLUDED.notes,
            updated_at = EXCLUDED.updated_at
        RETURNING ` + inventoryColumns

	rows, err := r.DB.NamedQueryContext(ctx, query, inv)
	if err != nil {
		return nil, errors.Wrap(err, "upsert inventory settings")
	}
	defer rows.Close()

	var out model.BranchInventory
	if rows.Next() {
		if err := rows.StructScan(&out); err != nil {
			return nil, err
		}
	}
	return &out, rows.Err()
}

func (r *PGRepository) Mutate(ctx context.Context, keys []inventory.RowKey, fn inventory.MutateFunc) ([]model.BranchInventory, error) {
	// Lock in a stable order so two transfers between the same pair of
	// branches in opposite directions cannot deadlock.
	ordered := make([]inventory.RowKey, len(keys))
	copy(ordered, keys)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ProductID != ordered[j].ProductID {
			return ordered[i].ProductID < ordered[j].ProductID
		}
		return ordered[i].BranchID < ordered[j].BranchID
	})

	var result []model.BranchInventory
	err := postgres.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		for _, k := range ordered {
			if !k.CreateIfMissing {
				continue
			}
			_, err := tx.ExecContext(ctx, `
                INSERT INTO branch_inventory (product_id, branch_id, updated_at)
                VALUES ($1, $2, NOW())
                ON CONFLICT (product_id, branch_id) DO NOTHING`, k.ProductID, k.BranchID)
			if err != nil {
				return errors.Wrapf(err, "create inventory row %s@%s", k.ProductID, k.BranchID)
			}
		}

		rows := make(map[model.InventoryKey]*model.BranchInventory, len(ordered))
		for _, k := range ordered {
			var inv model.BranchInventory
			err := tx.GetContext(ctx, &inv, `SELECT `+inventoryColumns+`
                FROM branch_inventory
                WHERE product_id = $1 AND branch_id = $2
                FOR UPDATE`, k.ProductID, k.BranchID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "lock inventory row %s@%s", k.ProductID, k.BranchID)
			}
			rows[inv.Key()] = &inv
		}

		movements, err := fn(rows)
		if err != nil {
			return err
		}

		for _, inv := range rows {
			_, err := tx.NamedExecContext(ctx, `
                UPDATE branch_inventory
                SET stock_quantity = :stock_quantity,
                    reserved_quantity = :reserved_quantity,
                    updated_at = :updated_at
                WHERE product_id = :product_id AND branch_id = :branch_id`, inv)
			if err != nil {
				return errors.Wrapf(err, "update inventory row %s@%s", inv.ProductID, inv.BranchID)
			}
		}

		for _, m := range movements {
			res, err := tx.NamedExecContext(ctx, `
                INSERT INTO stock_movements (
                    id, product_id, from_branch_id, to_branch_id, quantity,
                    movement_type, reference_id, notes, performed_by, created_at
                )
                VALUES (
                    :id, :product_id, :from_branch_id, :to_branch_id, :quantity,
                    :movement_type, :reference_id, :notes, :performed_by, :created_at
                )
                ON CONFLICT (movement_type, reference_id, product_id) WHERE reference_id IS NOT NULL
                DO NOTHING`, m)
			if err != nil {
				return errors.Wrap(err, "log stock movement")
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return inventory.ErrAlreadyApplied
			}
		}

		result = make([]model.BranchInventory, 0, len(keys))
		for _, k := range keys {
			if inv, ok := rows[model.InventoryKey{ProductID: k.ProductID, BranchID: k.BranchID}]; ok {
				result = append(result, *inv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PGRepository) LowStockAlerts(ctx context.Context) ([]model.LowStockAlert, error) {
	alerts := []model.LowStockAlert{}
	query := `
        SELECT bi.product_id,
               COALESCE(NULLIF(p.name_ar, ''), p.name, bi.product_id) AS product_name,
               bi.branch_id,
               COALESCE(NULLIF(b.name_ar, ''), b.name) AS branch_name,
               bi.stock_quantity,
               bi.min_stock_alert
        FROM branch_inventory bi
        JOIN branches b ON b.id = bi.branch_id
        LEFT JOIN products p ON p.id = bi.product_id
        WHERE bi.is_available AND bi.stock_quantity < bi.min_stock_alert
        ORDER BY bi.branch_id, bi.product_id`
	if err := r.DB.SelectContext(ctx, &alerts, query); err != nil {
		return nil, errors.Wrap(err, "low stock alerts")
	}
	return alerts, nil
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	items := []model.StockMovement{}
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.BranchID != "" {
		conditions = append(conditions, "(from_branch_id = :branch_id OR to_branch_id = :branch_id)")
		args["branch_id"] = f.BranchID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = f.MovementType
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = :reference_id")
		args["reference_id"] = f.ReferenceID
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at < :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM stock_movements" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count stock movements")
	}
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			rows.Close()
			return nil, 0, err
		}
	}
	rows.Close()

	query := "SELECT * FROM stock_movements" + whereClause + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		offset := (max(f.Page, 1) - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "prepare list stock movements")
	}
	defer nstmt.Close()

	if err := nstmt.SelectContext(ctx, &items, args); err != nil {
		return nil, 0, errors.Wrap(err, "list stock movements")
	}
	return items, count, nil
}
