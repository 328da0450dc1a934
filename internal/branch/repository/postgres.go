package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/allosh/allosh-market-service/internal/model"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, b *model.Branch) error {
	query := `
        INSERT INTO branches (
            id, name, name_ar, address, phone, latitude, longitude,
            is_active, created_at, updated_at
        )
        VALUES (
            :id, :name, :name_ar, :address, :phone, :latitude, :longitude,
            :is_active, :created_at, :updated_at
        )`
	_, err := r.DB.NamedExecContext(ctx, query, b)
	return errors.Wrap(err, "create branch")
}

func (r *PGRepository) Update(ctx context.Context, b *model.Branch) error {
	query := `
        UPDATE branches SET
            name = :name,
            name_ar = :name_ar,
            address = :address,
            phone = :phone,
            latitude = :latitude,
            longitude = :longitude,
            is_active = :is_active,
            updated_at = :updated_at
        WHERE id = :id`
	res, err := r.DB.NamedExecContext(ctx, query, b)
	if err != nil {
		return errors.Wrap(err, "update branch")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Branch, error) {
	var b model.Branch
	err := r.DB.GetContext(ctx, &b, `SELECT * FROM branches WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get branch")
	}
	return &b, nil
}

func (r *PGRepository) FindAll(ctx context.Context, activeOnly bool) ([]model.Branch, error) {
	branches := []model.Branch{}
	query := `SELECT * FROM branches`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at, id`
	if err := r.DB.SelectContext(ctx, &branches, query); err != nil {
		return nil, errors.Wrap(err, "list branches")
	}
	return branches, nil
}
