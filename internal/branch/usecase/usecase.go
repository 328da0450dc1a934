package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/branch"
	"github.com/allosh/allosh-market-service/internal/branch/dto"
	"github.com/allosh/allosh-market-service/internal/model"
	"github.com/allosh/allosh-market-service/pkg/cache"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

const cachePrefix = "branches:list:"

var tracer = otel.Tracer("allosh/branch")

type branchUseCase struct {
	repo     branch.Repository
	cache    cache.Store
	cacheTTL time.Duration
	retry    apperror.RetryPolicy
	logger   logger.ZapLogger
	now      func() time.Time
}

func NewBranchUseCase(repo branch.Repository, store cache.Store, cacheTTL time.Duration, retry apperror.RetryPolicy, log logger.ZapLogger) branch.UseCase {
	return &branchUseCase{
		repo:     repo,
		cache:    store,
		cacheTTL: cacheTTL,
		retry:    retry,
		logger:   log,
		now:      time.Now,
	}
}

func (uc *branchUseCase) CreateBranch(ctx context.Context, input *dto.CreateBranchInput) (*model.Branch, error) {
	ctx, span := tracer.Start(ctx, "branch.CreateBranch")
	defer span.End()

	if err := checkCoordinates(input.Latitude, input.Longitude); err != nil {
		return nil, err
	}

	now := uc.now()
	b := &model.Branch{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		Name:      strings.TrimSpace(input.Name),
		NameAr:    strings.TrimSpace(input.NameAr),
		Address:   input.Address,
		Phone:     input.Phone,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		IsActive:  true,
	}
	if err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		return uc.repo.Create(ctx, b)
	}); err != nil {
		return nil, err
	}

	uc.invalidate(ctx)
	uc.logger.Info("branch created", zap.String("branch_id", b.ID), zap.String("name", b.Name))
	return b, nil
}

func (uc *branchUseCase) UpdateBranch(ctx context.Context, input *dto.UpdateBranchInput) (*model.Branch, error) {
	ctx, span := tracer.Start(ctx, "branch.UpdateBranch")
	defer span.End()

	if err := checkCoordinates(input.Latitude, input.Longitude); err != nil {
		return nil, err
	}

	b, err := uc.GetBranch(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	b.Name = strings.TrimSpace(input.Name)
	b.NameAr = strings.TrimSpace(input.NameAr)
	b.Address = input.Address
	b.Phone = input.Phone
	b.Latitude = input.Latitude
	b.Longitude = input.Longitude
	b.IsActive = input.IsActive
	b.UpdatedAt = uc.now()

	if err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		return uc.repo.Update(ctx, b)
	}); err != nil {
		return nil, err
	}

	uc.invalidate(ctx)
	return b, nil
}

func (uc *branchUseCase) GetBranch(ctx context.Context, id string) (*model.Branch, error) {
	var b *model.Branch
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		b, err = uc.repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "branch %s", id)
	}
	return b, nil
}

// ListBranches serves from the cache when possible. A cache outage only costs
// a database read.
func (uc *branchUseCase) ListBranches(ctx context.Context, activeOnly bool) ([]model.Branch, error) {
	key := cachePrefix + "all"
	if activeOnly {
		key = cachePrefix + "active"
	}

	if uc.cache != nil {
		var cached []model.Branch
		ok, err := uc.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			uc.logger.Warn("branch cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			return cached, nil
		}
	}

	var branches []model.Branch
	err := apperror.Retry(ctx, uc.retry, func(ctx context.Context) error {
		var err error
		branches, err = uc.repo.FindAll(ctx, activeOnly)
		return err
	})
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if err := uc.cache.SetJSON(ctx, key, branches, uc.cacheTTL); err != nil {
			uc.logger.Warn("branch cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return branches, nil
}

func (uc *branchUseCase) NearestBranch(ctx context.Context, lat, lng float64) (*dto.NearestBranch, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, apperror.New(apperror.KindValidationFailed, "coordinates out of range")
	}

	branches, err := uc.ListBranches(ctx, true)
	if err != nil {
		return nil, err
	}
	b, d, ok := model.NearestBranch(branches, lat, lng)
	if !ok {
		return nil, apperror.New(apperror.KindNotFound, "no branch has coordinates")
	}
	return &dto.NearestBranch{Branch: *b, DistanceKm: d}, nil
}

func (uc *branchUseCase) invalidate(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		uc.logger.Warn("branch cache invalidation failed", zap.Error(err))
	}
}

func checkCoordinates(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return apperror.New(apperror.KindValidationFailed, "latitude and longitude must be set together")
	}
	return nil
}
