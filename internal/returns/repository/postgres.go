package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/internal/returns"
	"github.com/allosh/allosh-market-service/internal/returns/dto"
	"github.com/allosh/allosh-market-service/pkg/postgres"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var o model.Order
	err := r.DB.GetContext(ctx, &o, `
        SELECT o.id, o.user_id, o.branch_id,
               COALESCE(NULLIF(b.name_ar, ''), b.name, '') AS branch_name,
               o.status, o.total, o.customer_name, o.customer_phone, o.created_at
        FROM orders o
        LEFT JOIN branches b ON b.id = o.branch_id
        WHERE o.id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get order")
	}

	o.Items = []model.OrderItem{}
	err = r.DB.SelectContext(ctx, &o.Items, `
        SELECT order_id, product_id, name, unit_price, quantity
        FROM order_items
        WHERE order_id = $1
        ORDER BY product_id`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order items")
	}
	return &o, nil
}

func (r *PGRepository) Create(ctx context.Context, rr *model.ReturnRequest) error {
	query := `
        INSERT INTO return_requests (
            id, return_code, order_id, user_id, branch_id, branch_name,
            customer_name, customer_phone, items, total_refund_amount,
            loyalty_points_deducted, status, reason, notes, created_by,
            created_at, updated_at
        )
        VALUES (
            :id, :return_code, :order_id, :user_id, :branch_id, :branch_name,
            :customer_name, :customer_phone, :items, :total_refund_amount,
            :loyalty_points_deducted, :status, :reason, :notes, :created_by,
            :created_at, :updated_at
        )`
	_, err := r.DB.NamedExecContext(ctx, query, rr)
	return errors.Wrap(err, "create return request")
}

func (r *PGRepository) findOne(ctx context.Context, where string, arg any) (*model.ReturnRequest, error) {
	var rr model.ReturnRequest
	err := r.DB.GetContext(ctx, &rr, `SELECT * FROM return_requests WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get return request")
	}
	return &rr, nil
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.ReturnRequest, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *PGRepository) FindByCode(ctx context.Context, code string) (*model.ReturnRequest, error) {
	return r.findOne(ctx, `return_code = $1`, code)
}

func (r *PGRepository) FindOpenByOrder(ctx context.Context, orderID string) (*model.ReturnRequest, error) {
	return r.findOne(ctx, `order_id = $1 AND status <> 'rejected' LIMIT 1`, orderID)
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.ReturnFilters) ([]model.ReturnRequest, int, error) {
	items := []model.ReturnRequest{}
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = f.Status
	}
	if f.OrderID != "" {
		conditions = append(conditions, "order_id = :order_id")
		args["order_id"] = f.OrderID
	}
	if f.BranchID != "" {
		conditions = append(conditions, "branch_id = :branch_id")
		args["branch_id"] = f.BranchID
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM return_requests" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count return requests")
	}
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			rows.Close()
			return nil, 0, err
		}
	}
	rows.Close()

	query := "SELECT * FROM return_requests" + whereClause + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		offset := (max(f.Page, 1) - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "prepare list return requests")
	}
	defer nstmt.Close()

	if err := nstmt.SelectContext(ctx, &items, args); err != nil {
		return nil, 0, errors.Wrap(err, "list return requests")
	}
	return items, count, nil
}

func (r *PGRepository) Transition(ctx context.Context, id string, fn returns.TransitionFunc) (*model.ReturnRequest, error) {
	var rr model.ReturnRequest
	err := postgres.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &rr, `SELECT * FROM return_requests WHERE id = $1 FOR UPDATE`, id); err != nil {
			return errors.Wrap(err, "lock return request")
		}
		if err := fn(&rr); err != nil {
			return err
		}

		_, err := tx.NamedExecContext(ctx, `
            UPDATE return_requests SET
                status = :status,
                approved_refund_amount = :approved_refund_amount,
                loyalty_points_deducted = :loyalty_points_deducted,
                admin_notes = :admin_notes,
                rejection_reason = :rejection_reason,
                loyalty_deducted_at = :loyalty_deducted_at,
                approved_at = :approved_at,
                rejected_at = :rejected_at,
                completed_at = :completed_at,
                updated_at = :updated_at
            WHERE id = :id`, &rr)
		return errors.Wrap(err, "update return request")
	})
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

func (r *PGRepository) MarkRestocked(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE return_requests SET restocked_at = $2, updated_at = $2
        WHERE id = $1 AND restocked_at IS NULL`, id, at)
	return errors.Wrap(err, "mark return restocked")
}

func (r *PGRepository) MarkLoyaltyDeducted(ctx context.Context, id string, applied int, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE return_requests
        SET loyalty_points_applied = $2, loyalty_deducted_at = $3, updated_at = $3
        WHERE id = $1 AND loyalty_deducted_at IS NULL`, id, applied, at)
	return errors.Wrap(err, "mark return loyalty deducted")
}

func (r *PGRepository) FindPendingSideEffects(ctx context.Context, limit int) ([]model.ReturnRequest, error) {
	items := []model.ReturnRequest{}
	err := r.DB.SelectContext(ctx, &items, `
        SELECT * FROM return_requests
        WHERE status IN ('approved', 'completed')
          AND (restocked_at IS NULL OR loyalty_deducted_at IS NULL)
        ORDER BY approved_at
        LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list returns with pending side effects")
	}
	return items, nil
}
