package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/postgres"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetAccount(ctx context.Context, userID string) (*model.LoyaltyAccount, error) {
	var acc model.LoyaltyAccount
	err := r.DB.GetContext(ctx, &acc, `SELECT user_id, points, updated_at FROM loyalty_accounts WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &model.LoyaltyAccount{UserID: userID}, nil
		}
		return nil, errors.Wrap(err, "get loyalty account")
	}
	return &acc, nil
}

func (r *PGRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]model.LoyaltyTransaction, error) {
	txns := []model.LoyaltyTransaction{}
	err := r.DB.SelectContext(ctx, &txns, `
        SELECT * FROM loyalty_transactions
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list loyalty transactions")
	}
	return txns, nil
}

func (r *PGRepository) Deduct(ctx context.Context, txn *model.LoyaltyTransaction) (*model.LoyaltyTransaction, bool, error) {
	var (
		stored  model.LoyaltyTransaction
		applied bool
	)
	err := postgres.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &stored, `
            SELECT * FROM loyalty_transactions
            WHERE reference_type = $1 AND reference_id = $2`, txn.ReferenceType, txn.ReferenceID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(err, "find loyalty transaction")
		}

		_, err = tx.ExecContext(ctx, `
            INSERT INTO loyalty_accounts (user_id, points, updated_at)
            VALUES ($1, 0, NOW())
            ON CONFLICT (user_id) DO NOTHING`, txn.UserID)
		if err != nil {
			return errors.Wrap(err, "create loyalty account")
		}

		var balance int
		err = tx.GetContext(ctx, &balance, `SELECT points FROM loyalty_accounts WHERE user_id = $1 FOR UPDATE`, txn.UserID)
		if err != nil {
			return errors.Wrap(err, "lock loyalty account")
		}

		stored = *txn
		stored.Points = -min(txn.Points, balance)
		res, err := tx.NamedExecContext(ctx, `
            INSERT INTO loyalty_transactions (id, user_id, points, reason, reference_type, reference_id, created_at)
            VALUES (:id, :user_id, :points, :reason, :reference_type, :reference_id, :created_at)
            ON CONFLICT (reference_type, reference_id) DO NOTHING`, &stored)
		if err != nil {
			return errors.Wrap(err, "insert loyalty transaction")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			// lost a race with a concurrent deduction for the same reference
			return tx.GetContext(ctx, &stored, `
                SELECT * FROM loyalty_transactions
                WHERE reference_type = $1 AND reference_id = $2`, txn.ReferenceType, txn.ReferenceID)
		}

		_, err = tx.ExecContext(ctx, `
            UPDATE loyalty_accounts SET points = points + $1, updated_at = NOW()
            WHERE user_id = $2`, stored.Points, txn.UserID)
		if err != nil {
			return errors.Wrap(err, "update loyalty balance")
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &stored, applied, nil
}
