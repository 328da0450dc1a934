package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/allosh/allosh-market-service/internal/coupon"
	"github.com/allosh/allosh-market-service/internal/coupon/dto"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/postgres"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var c model.Coupon
	err := r.DB.GetContext(ctx, &c, `SELECT * FROM coupons WHERE lower(code) = lower($1)`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get coupon by code")
	}
	return &c, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*model.Coupon, error) {
	var c model.Coupon
	err := r.DB.GetContext(ctx, &c, `SELECT * FROM coupons WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get coupon")
	}
	return &c, nil
}

func (r *PGRepository) CountUserUsage(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, `
        SELECT count(*) FROM coupon_usages
        WHERE coupon_id = $1 AND user_id = $2`, couponID, userID)
	return n, errors.Wrap(err, "count coupon usage")
}

func (r *PGRepository) RecordUsage(ctx context.Context, usage *model.CouponUsage, check coupon.UsageCheck) error {
	return postgres.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		var c model.Coupon
		err := tx.GetContext(ctx, &c, `SELECT * FROM coupons WHERE id = $1 FOR UPDATE`, usage.CouponID)
		if err != nil {
			return errors.Wrap(err, "lock coupon")
		}

		var userUsage int
		err = tx.GetContext(ctx, &userUsage, `
            SELECT count(*) FROM coupon_usages
            WHERE coupon_id = $1 AND user_id = $2`, usage.CouponID, usage.UserID)
		if err != nil {
			return errors.Wrap(err, "count coupon usage")
		}
		if err := check(&c, userUsage); err != nil {
			return err
		}

		_, err = tx.NamedExecContext(ctx, `
            INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, discount_amount, used_at)
            VALUES (:id, :coupon_id, :user_id, :order_id, :discount_amount, :used_at)`, usage)
		if err != nil {
			return errors.Wrap(err, "insert coupon usage")
		}

		res, err := tx.ExecContext(ctx, `
            UPDATE coupons SET used_count = used_count + 1, updated_at = $2
            WHERE id = $1`, usage.CouponID, usage.UsedAt)
		if err != nil {
			return errors.Wrap(err, "increment coupon usage")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "increment coupon usage")
		}
		if n != 1 {
			return errors.Errorf("increment coupon usage: %d rows affected", n)
		}
		return nil
	})
}

func (r *PGRepository) Create(ctx context.Context, c *model.Coupon) error {
	query := `
        INSERT INTO coupons (
            id, code, discount_type, discount_value, min_order_value, max_discount,
            usage_limit, used_count, per_user_limit, valid_from, valid_until,
            is_active, created_at, updated_at
        )
        VALUES (
            :id, :code, :discount_type, :discount_value, :min_order_value, :max_discount,
            :usage_limit, :used_count, :per_user_limit, :valid_from, :valid_until,
            :is_active, :created_at, :updated_at
        )`
	_, err := r.DB.NamedExecContext(ctx, query, c)
	return errors.Wrap(err, "create coupon")
}

func (r *PGRepository) Update(ctx context.Context, c *model.Coupon) error {
	query := `
        UPDATE coupons SET
            code = :code,
            discount_type = :discount_type,
            discount_value = :discount_value,
            min_order_value = :min_order_value,
            max_discount = :max_discount,
            usage_limit = :usage_limit,
            per_user_limit = :per_user_limit,
            valid_from = :valid_from,
            valid_until = :valid_until,
            is_active = :is_active,
            updated_at = :updated_at
        WHERE id = :id`
	res, err := r.DB.NamedExecContext(ctx, query, c)
	if err != nil {
		return errors.Wrap(err, "update coupon")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.CouponFilters) ([]model.Coupon, int, error) {
	items := []model.Coupon{}
	var count int

	where := ""
	if f.ActiveOnly {
		where = " WHERE is_active"
	}

	if err := r.DB.GetContext(ctx, &count, "SELECT count(*) FROM coupons"+where); err != nil {
		return nil, 0, errors.Wrap(err, "count coupons")
	}

	query := "SELECT * FROM coupons" + where + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		offset := (max(f.Page, 1) - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}
	if err := r.DB.SelectContext(ctx, &items, query); err != nil {
		return nil, 0, errors.Wrap(err, "list coupons")
	}
	return items, count, nil
}
