package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/inventory"
	invdto "github.com/allosh/allosh-market-service/internal/inventory/dto"
	"github.com/allosh/allosh-market-service/internal/loyalty"
	loyaltydto "github.com/allosh/allosh-market-service/internal/loyalty/dto"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/internal/returns"
	"github.com/allosh/allosh-market-service/internal/returns/dto"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

const (
	codeAttempts   = 3
	reconcileBatch = 50
	systemActor    = "system"
)

var tracer = otel.Tracer("allosh/returns")

type Config struct {
	LoyaltyPointsPerEGP float64
	Retry               apperror.RetryPolicy
}

type returnUseCase struct {
	repo      returns.Repository
	inventory inventory.UseCase
	loyalty   loyalty.UseCase
	cfg       Config
	logger    logger.ZapLogger
	now       func() time.Time
	newCode   func(time.Time) string
}

func NewReturnUseCase(repo returns.Repository, inv inventory.UseCase, loy loyalty.UseCase, cfg Config, log logger.ZapLogger) returns.UseCase {
	return &returnUseCase{
		repo:      repo,
		inventory: inv,
		loyalty:   loy,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
		newCode:   newReturnCode,
	}
}

// newReturnCode formats RET-YYYYMMDD-XXXXXX.
func newReturnCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("RET-%s-%s", now.Format("20060102"), suffix)
}

func (uc *returnUseCase) store(ctx context.Context, fn func(ctx context.Context) error) error {
	return apperror.Retry(ctx, uc.cfg.Retry, fn)
}

func (uc *returnUseCase) CreateReturn(ctx context.Context, input *dto.CreateReturnInput) (*model.ReturnRequest, error) {
	ctx, span := tracer.Start(ctx, "returns.CreateReturn")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", input.OrderID))

	if strings.TrimSpace(input.Reason) == "" {
		return nil, apperror.New(apperror.KindValidationFailed, "reason is required")
	}

	var order *model.Order
	if err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		order, err = uc.repo.GetOrder(ctx, input.OrderID)
		return err
	}); err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "order %s", input.OrderID)
	}
	if order.Status != model.OrderDelivered {
		return nil, apperror.Newf(apperror.KindOrderNotDelivered, "order status is %s", order.Status)
	}

	var open *model.ReturnRequest
	if err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		open, err = uc.repo.FindOpenByOrder(ctx, order.ID)
		return err
	}); err != nil {
		return nil, err
	}
	if open != nil {
		return nil, apperror.Newf(apperror.KindReturnAlreadyExists, "return %s is already open for this order", open.ReturnCode)
	}

	overrides := make([]model.RequestedReturnItem, 0, len(input.Items))
	for _, it := range input.Items {
		overrides = append(overrides, model.RequestedReturnItem{ProductID: it.ProductID, ReturnedQuantity: it.ReturnedQuantity})
	}
	items, total, err := model.BuildReturnItems(order.Items, overrides)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	rr := &model.ReturnRequest{
		ID:                uuid.New().String(),
		OrderID:           order.ID,
		UserID:            order.UserID,
		BranchID:          order.BranchID,
		BranchName:        order.BranchName,
		CustomerName:      order.CustomerName,
		CustomerPhone:     order.CustomerPhone,
		Items:             items,
		TotalRefundAmount: total,
		Status:            model.ReturnPending,
		Reason:            strings.TrimSpace(input.Reason),
		Notes:             input.Notes,
		CreatedBy:         input.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	for i := 0; i < codeAttempts; i++ {
		rr.ReturnCode = uc.newCode(now)
		err = uc.store(ctx, func(ctx context.Context) error {
			return uc.repo.Create(ctx, rr)
		})
		if !isCodeCollision(err) {
			break
		}
	}
	if err != nil {
		if apperror.IsKind(err, apperror.KindConstraintViolation) {
			// the open-return index caught a concurrent request for the same order
			return nil, apperror.Wrap(apperror.KindReturnAlreadyExists, err, "")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	uc.logger.Info("return created",
		zap.String("return_id", rr.ID),
		zap.String("return_code", rr.ReturnCode),
		zap.String("order_id", rr.OrderID),
		zap.Float64("total_refund_amount", rr.TotalRefundAmount),
	)
	return rr, nil
}

func isCodeCollision(err error) bool {
	return err != nil && apperror.IsKind(err, apperror.KindConstraintViolation) &&
		strings.Contains(apperror.Classify(err).Detail, "return_code")
}

func (uc *returnUseCase) ApproveReturn(ctx context.Context, input *dto.ApproveReturnInput) (*model.ReturnRequest, error) {
	ctx, span := tracer.Start(ctx, "returns.ApproveReturn")
	defer span.End()
	span.SetAttributes(attribute.String("return_id", input.ID))

	current, err := uc.GetReturn(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(model.ReturnApproved) {
		return nil, apperror.Newf(apperror.KindInvalidStatusTransition, "%s -> %s", current.Status, model.ReturnApproved)
	}

	refund, err := model.ResolveRefund(current.TotalRefundAmount, input.RefundAmount)
	if err != nil {
		return nil, err
	}
	points := model.LoyaltyPointsForRefund(refund, uc.cfg.LoyaltyPointsPerEGP)
	if current.UserID != "" && points > 0 {
		acc, err := uc.loyalty.Balance(ctx, current.UserID)
		if err != nil {
			return nil, err
		}
		points = min(points, acc.Points)
	}

	var rr *model.ReturnRequest
	err = uc.store(ctx, func(ctx context.Context) error {
		var err error
		rr, err = uc.repo.Transition(ctx, input.ID, func(r *model.ReturnRequest) error {
			if !r.Status.CanTransitionTo(model.ReturnApproved) {
				return apperror.Newf(apperror.KindInvalidStatusTransition, "%s -> %s", r.Status, model.ReturnApproved)
			}
			now := uc.now()
			r.Status = model.ReturnApproved
			r.ApprovedRefundAmount = &refund
			r.LoyaltyPointsDeducted = points
			r.AdminNotes = input.AdminNotes
			r.ApprovedAt = &now
			r.UpdatedAt = now
			if r.UserID == "" || points == 0 {
				r.LoyaltyDeductedAt = &now
			}
			return nil
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	uc.logger.Info("return approved",
		zap.String("return_id", rr.ID),
		zap.String("return_code", rr.ReturnCode),
		zap.Float64("refund", refund),
		zap.Int("loyalty_points", points),
	)

	actor := input.ApprovedBy
	if actor == "" {
		actor = systemActor
	}
	if err := uc.applySideEffects(ctx, rr, actor); err != nil {
		// approval stands; the reconciler finishes the side effects
		uc.logger.Warn("return side effects incomplete", zap.String("return_id", rr.ID), zap.Error(err))
	}
	return rr, nil
}

// applySideEffects runs the restock and the loyalty deduction independently.
// Both are keyed on the return id, so running them again is safe.
func (uc *returnUseCase) applySideEffects(ctx context.Context, rr *model.ReturnRequest, actor string) error {
	var errs []error

	if rr.RestockedAt == nil {
		lines := make([]invdto.OrderLine, 0, len(rr.Items))
		for _, li := range rr.Items {
			lines = append(lines, invdto.OrderLine{ProductID: li.ProductID, Quantity: li.ReturnedQuantity})
		}
		err := uc.inventory.RestockReturn(ctx, &invdto.RestockReturnInput{
			ReturnID:    rr.ID,
			BranchID:    rr.BranchID,
			Lines:       lines,
			PerformedBy: actor,
		})
		if err == nil {
			now := uc.now()
			err = uc.store(ctx, func(ctx context.Context) error {
				return uc.repo.MarkRestocked(ctx, rr.ID, now)
			})
			if err == nil {
				rr.RestockedAt = &now
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restock: %w", err))
		}
	}

	if rr.LoyaltyDeductedAt == nil {
		txn, err := uc.loyalty.Deduct(ctx, &loyaltydto.DeductInput{
			UserID:        rr.UserID,
			Points:        rr.LoyaltyPointsDeducted,
			Reason:        "return " + rr.ReturnCode,
			ReferenceType: loyaltydto.ReferenceReturn,
			ReferenceID:   rr.ID,
		})
		if err == nil {
			now := uc.now()
			applied := -txn.Points
			err = uc.store(ctx, func(ctx context.Context) error {
				return uc.repo.MarkLoyaltyDeducted(ctx, rr.ID, applied, now)
			})
			if err == nil {
				rr.LoyaltyDeductedAt = &now
				rr.LoyaltyPointsApplied = applied
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("loyalty: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (uc *returnUseCase) RejectReturn(ctx context.Context, input *dto.RejectReturnInput) (*model.ReturnRequest, error) {
	ctx, span := tracer.Start(ctx, "returns.RejectReturn")
	defer span.End()

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, apperror.New(apperror.KindValidationFailed, "rejection reason is required")
	}

	rr, err := uc.transition(ctx, input.ID, model.ReturnRejected, func(r *model.ReturnRequest, now time.Time) {
		r.RejectionReason = reason
		r.RejectedAt = &now
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Info("return rejected", zap.String("return_id", rr.ID), zap.String("return_code", rr.ReturnCode))
	return rr, nil
}

func (uc *returnUseCase) CompleteReturn(ctx context.Context, id string) (*model.ReturnRequest, error) {
	ctx, span := tracer.Start(ctx, "returns.CompleteReturn")
	defer span.End()

	rr, err := uc.transition(ctx, id, model.ReturnCompleted, func(r *model.ReturnRequest, now time.Time) {
		r.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}
	if rr.SideEffectsPending() {
		if err := uc.applySideEffects(ctx, rr, systemActor); err != nil {
			uc.logger.Warn("return side effects incomplete", zap.String("return_id", rr.ID), zap.Error(err))
		}
	}
	return rr, nil
}

func (uc *returnUseCase) transition(ctx context.Context, id string, next model.ReturnStatus, apply func(r *model.ReturnRequest, now time.Time)) (*model.ReturnRequest, error) {
	var rr *model.ReturnRequest
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		rr, err = uc.repo.Transition(ctx, id, func(r *model.ReturnRequest) error {
			if !r.Status.CanTransitionTo(next) {
				return apperror.Newf(apperror.KindInvalidStatusTransition, "%s -> %s", r.Status, next)
			}
			now := uc.now()
			r.Status = next
			r.UpdatedAt = now
			apply(r, now)
			return nil
		})
		return err
	})
	return rr, err
}

func (uc *returnUseCase) ReconcileReturn(ctx context.Context, id string) (*model.ReturnRequest, error) {
	ctx, span := tracer.Start(ctx, "returns.ReconcileReturn")
	defer span.End()

	rr, err := uc.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}
	if rr.Status != model.ReturnApproved && rr.Status != model.ReturnCompleted {
		return nil, apperror.Newf(apperror.KindInvalidStatusTransition, "return is %s", rr.Status)
	}
	if err := uc.applySideEffects(ctx, rr, systemActor); err != nil {
		return nil, err
	}
	return rr, nil
}

func (uc *returnUseCase) ReconcilePending(ctx context.Context) (int, error) {
	var pending []model.ReturnRequest
	if err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		pending, err = uc.repo.FindPendingSideEffects(ctx, reconcileBatch)
		return err
	}); err != nil {
		return 0, err
	}

	done := 0
	for i := range pending {
		if err := uc.applySideEffects(ctx, &pending[i], systemActor); err != nil {
			uc.logger.Warn("reconcile failed", zap.String("return_id", pending[i].ID), zap.Error(err))
			continue
		}
		done++
	}
	if len(pending) > 0 {
		uc.logger.Info("returns reconciled", zap.Int("pending", len(pending)), zap.Int("done", done))
	}
	return done, nil
}

func (uc *returnUseCase) GetReturn(ctx context.Context, id string) (*model.ReturnRequest, error) {
	var rr *model.ReturnRequest
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		rr, err = uc.repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rr == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "return %s", id)
	}
	return rr, nil
}

func (uc *returnUseCase) ListReturns(ctx context.Context, filters *dto.ReturnFilters) ([]model.ReturnRequest, int, error) {
	var (
		items []model.ReturnRequest
		count int
	)
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		items, count, err = uc.repo.FindAll(ctx, filters)
		return err
	})
	return items, count, err
}

func (uc *returnUseCase) GetInvoice(ctx context.Context, returnCode string) (*model.ReturnInvoice, error) {
	var rr *model.ReturnRequest
	err := uc.store(ctx, func(ctx context.Context) error {
		var err error
		rr, err = uc.repo.FindByCode(ctx, returnCode)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rr == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "return %s", returnCode)
	}

	inv, err := rr.Invoice()
	if errors.Is(err, model.ErrInvoiceNotAvailable) {
		return nil, apperror.Wrap(apperror.KindNotFound, err, rr.ReturnCode)
	}
	return inv, err
}
