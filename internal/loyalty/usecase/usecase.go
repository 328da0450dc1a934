package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/loyalty"
	"github.com/allosh/allosh-market-service/internal/loyalty/dto"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

var tracer = otel.Tracer("allosh/loyalty")

type loyaltyUseCase struct {
	repo   loyalty.Repository
	retry  apperror.RetryPolicy
	logger logger.ZapLogger
	now    func() time.Time
}

func NewLoyaltyUseCase(repo loyalty.Repository, retry apperror.RetryPolicy, log logger.ZapLogger) loyalty.UseCase {
	return &loyaltyUseCase{repo: repo, retry: retry, logger: log, now: time.Now}
}

func (uc *loyaltyUseCase) Balance(ctx context.Context, userID string) (*model.LoyaltyAccount, error) {
	if userID == "" {
		return nil, apperror.New(apperror.KindValidationFailed, "user id is required")
	}
	var acc *model.LoyaltyAccount
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		acc, err = uc.repo.GetAccount(ctx, userID)
		return err
	})
	return acc, err
}

func (uc *loyaltyUseCase) History(ctx context.Context, userID string, limit int) ([]model.LoyaltyTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txns []model.LoyaltyTransaction
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		txns, err = uc.repo.ListTransactions(ctx, userID, limit)
		return err
	})
	return txns, err
}

// Deduct is keyed on the reference: replays return the original entry.
func (uc *loyaltyUseCase) Deduct(ctx context.Context, input *dto.DeductInput) (*model.LoyaltyTransaction, error) {
	ctx, span := tracer.Start(ctx, "loyalty.Deduct")
	defer span.End()

	if input.UserID == "" || input.ReferenceType == "" || input.ReferenceID == "" {
		return nil, apperror.New(apperror.KindValidationFailed, "user and reference are required")
	}
	if input.Points < 0 {
		return nil, apperror.New(apperror.KindValidationFailed, "points must not be negative")
	}

	txn := &model.LoyaltyTransaction{
		ID:            uuid.New().String(),
		UserID:        input.UserID,
		Points:        input.Points,
		Reason:        input.Reason,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		CreatedAt:     uc.now(),
	}

	var (
		stored  *model.LoyaltyTransaction
		applied bool
	)
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		stored, applied, err = uc.repo.Deduct(ctx, txn)
		return err
	})
	if err != nil {
		return nil, err
	}

	if applied {
		uc.logger.Info("loyalty points deducted",
			zap.String("user_id", input.UserID),
			zap.Int("requested", input.Points),
			zap.Int("deducted", -stored.Points),
			zap.String("reference", input.ReferenceType+":"+input.ReferenceID),
		)
	}
	return stored, nil
}
