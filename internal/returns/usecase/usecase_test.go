package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

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

var fixedNow = time.Date(2025, 4, 12, 9, 30, 0, 0, time.UTC)

type memRepo struct {
	mu      sync.Mutex
	orders  map[string]model.Order
	returns map[string]model.ReturnRequest
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[string]model.Order{}, returns: map[string]model.ReturnRequest{}}
}

func (r *memRepo) GetOrder(_ context.Context, id string) (*model.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *memRepo) Create(_ context.Context, rr *model.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.returns[rr.ID] = *rr
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*model.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr, ok := r.returns[id]
	if !ok {
		return nil, nil
	}
	return &rr, nil
}

func (r *memRepo) FindByCode(_ context.Context, code string) (*model.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rr := range r.returns {
		if rr.ReturnCode == code {
			c := rr
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memRepo) FindAll(_ context.Context, f *dto.ReturnFilters) ([]model.ReturnRequest, int, error) {
	out := []model.ReturnRequest{}
	for _, rr := range r.returns {
		if f.Status == "" || string(rr.Status) == f.Status {
			out = append(out, rr)
		}
	}
	return out, len(out), nil
}

func (r *memRepo) FindOpenByOrder(_ context.Context, orderID string) (*model.ReturnRequest, error) {
	for _, rr := range r.returns {
		if rr.OrderID == orderID && rr.Status != model.ReturnRejected {
			c := rr
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memRepo) Transition(_ context.Context, id string, fn returns.TransitionFunc) (*model.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr, ok := r.returns[id]
	if !ok {
		return nil, apperror.New(apperror.KindNotFound, id)
	}
	if err := fn(&rr); err != nil {
		return nil, err
	}
	r.returns[id] = rr
	return &rr, nil
}

func (r *memRepo) MarkRestocked(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr := r.returns[id]
	rr.RestockedAt = &at
	r.returns[id] = rr
	return nil
}

func (r *memRepo) MarkLoyaltyDeducted(_ context.Context, id string, applied int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr := r.returns[id]
	rr.LoyaltyPointsApplied = applied
	rr.LoyaltyDeductedAt = &at
	r.returns[id] = rr
	return nil
}

func (r *memRepo) FindPendingSideEffects(_ context.Context, limit int) ([]model.ReturnRequest, error) {
	out := []model.ReturnRequest{}
	for _, rr := range r.returns {
		if rr.SideEffectsPending() && len(out) < limit {
			out = append(out, rr)
		}
	}
	return out, nil
}

type fakeInventory struct {
	inventory.UseCase
	restocks map[string]invdto.RestockReturnInput
	failures int
}

func (f *fakeInventory) RestockReturn(_ context.Context, in *invdto.RestockReturnInput) error {
	if f.failures > 0 {
		f.failures--
		return apperror.New(apperror.KindConnectionError, "db down")
	}
	if _, ok := f.restocks[in.ReturnID]; !ok {
		f.restocks[in.ReturnID] = *in
	}
	return nil
}

type fakeLoyalty struct {
	loyalty.UseCase
	balances map[string]int
	applied  map[string]int
	failures int
}

func (f *fakeLoyalty) Balance(_ context.Context, userID string) (*model.LoyaltyAccount, error) {
	return &model.LoyaltyAccount{UserID: userID, Points: f.balances[userID]}, nil
}

func (f *fakeLoyalty) Deduct(_ context.Context, in *loyaltydto.DeductInput) (*model.LoyaltyTransaction, error) {
	if f.failures > 0 {
		f.failures--
		return nil, apperror.New(apperror.KindConnectionError, "db down")
	}
	if pts, ok := f.applied[in.ReferenceID]; ok {
		return &model.LoyaltyTransaction{Points: -pts}, nil
	}
	pts := min(in.Points, f.balances[in.UserID])
	f.balances[in.UserID] -= pts
	f.applied[in.ReferenceID] = pts
	return &model.LoyaltyTransaction{UserID: in.UserID, Points: -pts, ReferenceID: in.ReferenceID}, nil
}

type fixture struct {
	repo *memRepo
	inv  *fakeInventory
	loy  *fakeLoyalty
	uc   *returnUseCase
}

func newFixture() *fixture {
	f := &fixture{
		repo: newMemRepo(),
		inv:  &fakeInventory{restocks: map[string]invdto.RestockReturnInput{}},
		loy:  &fakeLoyalty{balances: map[string]int{"u1": 5000}, applied: map[string]int{}},
	}
	f.repo.orders["o-delivered"] = model.Order{
		ID: "o-delivered", UserID: "u1", BranchID: "b1", BranchName: "فرع المعادي", Status: model.OrderDelivered,
		CustomerName: "Mona", CustomerPhone: "0100",
		Items: []model.OrderItem{
			{ProductID: "y", Name: "Yogurt", UnitPrice: 12, Quantity: 3},
			{ProductID: "z", Name: "Zaatar", UnitPrice: 45.5, Quantity: 2},
		},
	}
	f.repo.orders["o-preparing"] = model.Order{ID: "o-preparing", UserID: "u1", BranchID: "b1", Status: model.OrderPreparing,
		Items: []model.OrderItem{{ProductID: "y", UnitPrice: 12, Quantity: 1}}}

	uc := NewReturnUseCase(f.repo, f.inv, f.loy, Config{
		LoyaltyPointsPerEGP: 1,
		Retry:               apperror.RetryPolicy{Attempts: 1},
	}, logger.NewNop()).(*returnUseCase)
	uc.now = func() time.Time { return fixedNow }
	f.uc = uc
	return f
}

func (f *fixture) create(t *testing.T, items ...dto.ReturnItemInput) *model.ReturnRequest {
	t.Helper()
	rr, err := f.uc.CreateReturn(context.Background(), &dto.CreateReturnInput{
		OrderID: "o-delivered", Items: items, Reason: "damaged", CreatedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rr
}

func TestCreateReturn_OrderNotDelivered(t *testing.T) {
	f := newFixture()
	_, err := f.uc.CreateReturn(context.Background(), &dto.CreateReturnInput{OrderID: "o-preparing", Reason: "late"})
	if !apperror.IsKind(err, apperror.KindOrderNotDelivered) {
		t.Fatalf("expected OrderNotDelivered, got %v", err)
	}
	if len(f.repo.returns) != 0 {
		t.Fatalf("no return must be created")
	}
}

func TestCreateReturn(t *testing.T) {
	tests := []struct {
		name      string
		items     []dto.ReturnItemInput
		wantTotal float64
		wantLines int
		wantKind  apperror.Kind
	}{
		{"defaults to full order", nil, 127, 2, ""},
		{"reduced quantity", []dto.ReturnItemInput{{ProductID: "z", ReturnedQuantity: 1}}, 81.5, 2, ""},
		{"zero excludes item", []dto.ReturnItemInput{{ProductID: "z", ReturnedQuantity: 0}}, 36, 1, ""},
		{"more than ordered", []dto.ReturnItemInput{{ProductID: "y", ReturnedQuantity: 4}}, 0, 0, apperror.KindInvalidReturnQuantity},
		{"unknown product", []dto.ReturnItemInput{{ProductID: "q", ReturnedQuantity: 1}}, 0, 0, apperror.KindInvalidReturnQuantity},
		{"nothing left", []dto.ReturnItemInput{{ProductID: "y"}, {ProductID: "z"}}, 0, 0, apperror.KindInvalidReturnQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rr, err := f.uc.CreateReturn(context.Background(), &dto.CreateReturnInput{OrderID: "o-delivered", Items: tt.items, Reason: "damaged"})
			if tt.wantKind != "" {
				if !apperror.IsKind(err, tt.wantKind) {
					t.Fatalf("expected %s, got %v", tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if rr.TotalRefundAmount != tt.wantTotal || len(rr.Items) != tt.wantLines {
				t.Fatalf("total %.2f lines %d", rr.TotalRefundAmount, len(rr.Items))
			}
			if rr.Status != model.ReturnPending || !strings.HasPrefix(rr.ReturnCode, "RET-20250412-") || len(rr.ReturnCode) != 19 {
				t.Fatalf("unexpected return %s %s", rr.Status, rr.ReturnCode)
			}
			if rr.BranchName != "فرع المعادي" {
				t.Fatalf("branch name not snapshotted: %q", rr.BranchName)
			}
		})
	}
}

func TestCreateReturn_OnlyOneOpenPerOrder(t *testing.T) {
	f := newFixture()
	first := f.create(t)

	_, err := f.uc.CreateReturn(context.Background(), &dto.CreateReturnInput{OrderID: "o-delivered", Reason: "again"})
	if !apperror.IsKind(err, apperror.KindReturnAlreadyExists) {
		t.Fatalf("expected ReturnAlreadyExists, got %v", err)
	}

	if _, err := f.uc.RejectReturn(context.Background(), &dto.RejectReturnInput{ID: first.ID, Reason: "not eligible"}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	f.create(t)
}

func TestApproveReturn_RestocksAndDeductsOnce(t *testing.T) {
	f := newFixture()
	rr := f.create(t, dto.ReturnItemInput{ProductID: "z", ReturnedQuantity: 0})
	if rr.TotalRefundAmount != 36 {
		t.Fatalf("expected 3 x 12 = 36, got %.2f", rr.TotalRefundAmount)
	}

	approved, err := f.uc.ApproveReturn(context.Background(), &dto.ApproveReturnInput{ID: rr.ID, AdminNotes: "ok", ApprovedBy: "admin-2"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.ReturnApproved || *approved.ApprovedRefundAmount != 36 || approved.LoyaltyPointsDeducted != 36 {
		t.Fatalf("unexpected approval %+v", approved)
	}
	if approved.RestockedAt == nil || approved.LoyaltyDeductedAt == nil {
		t.Fatalf("side effects not recorded")
	}

	restock := f.inv.restocks[rr.ID]
	if restock.BranchID != "b1" || len(restock.Lines) != 1 || restock.Lines[0].ProductID != "y" || restock.Lines[0].Quantity != 3 {
		t.Fatalf("unexpected restock %+v", restock)
	}
	if restock.PerformedBy != "admin-2" {
		t.Fatalf("restock actor %q", restock.PerformedBy)
	}
	if f.loy.balances["u1"] != 5000-36 {
		t.Fatalf("unexpected balance %d", f.loy.balances["u1"])
	}

	if _, err := f.uc.ReconcileReturn(context.Background(), rr.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if f.loy.balances["u1"] != 5000-36 {
		t.Fatalf("reconcile must not deduct twice, balance %d", f.loy.balances["u1"])
	}

	_, err = f.uc.ApproveReturn(context.Background(), &dto.ApproveReturnInput{ID: rr.ID})
	if !apperror.IsKind(err, apperror.KindInvalidStatusTransition) {
		t.Fatalf("second approval must fail, got %v", err)
	}
}

func TestApproveReturn_RefundOverride(t *testing.T) {
	tests := []struct {
		name       string
		refund     float64
		wantPoints int
		wantKind   apperror.Kind
	}{
		{"partial refund", 100.75, 100, ""},
		{"zero refund", 0, 0, ""},
		{"above total", 127.01, 0, apperror.KindInvalidRefundAmount},
		{"negative", -1, 0, apperror.KindInvalidRefundAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rr := f.create(t)
			refund := tt.refund
			approved, err := f.uc.ApproveReturn(context.Background(), &dto.ApproveReturnInput{ID: rr.ID, RefundAmount: &refund})
			if tt.wantKind != "" {
				if !apperror.IsKind(err, tt.wantKind) {
					t.Fatalf("expected %s, got %v", tt.wantKind, err)
				}
				stored, _ := f.repo.FindByID(context.Background(), rr.ID)
				if stored.Status != model.ReturnPending {
					t.Fatalf("failed approval changed status to %s", stored.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("approve: %v", err)
			}
			if approved.LoyaltyPointsDeducted != tt.wantPoints {
				t.Fatalf("expected %d points, got %d", tt.wantPoints, approved.LoyaltyPointsDeducted)
			}
		})
	}
}

func TestApproveReturn_PointsCappedAtBalance(t *testing.T) {
	f := newFixture()
	f.loy.balances["u1"] = 20
	rr := f.create(t)

	approved, err := f.uc.ApproveReturn(context.Background(), &dto.ApproveReturnInput{ID: rr.ID})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.LoyaltyPointsDeducted != 20 || f.loy.balances["u1"] != 0 {
		t.Fatalf("points %d balance %d", approved.LoyaltyPointsDeducted, f.loy.balances["u1"])
	}
}

func TestApproveReturn_FailedRestockIsReconciled(t *testing.T) {
	f := newFixture()
	f.inv.failures = 1
	rr := f.create(t)

	approved, err := f.uc.ApproveReturn(context.Background(), &dto.ApproveReturnInput{ID: rr.ID})
	if err != nil {
		t.Fatalf("approval should stand when a side effect fails: %v", err)
	}
	if approved.RestockedAt != nil || approved.LoyaltyDeductedAt == nil {
		t.Fatalf("expected only loyalty to be done")
	}

	n, err := f.uc.ReconcilePending(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("reconcile pending: %d %v", n, err)
	}
	stored, _ := f.repo.FindByID(context.Background(), rr.ID)
	if stored.RestockedAt == nil || stored.SideEffectsPending() {
		t.Fatalf("restock not reconciled")
	}
	if _, ok := f.inv.restocks[rr.ID]; !ok {
		t.Fatalf("restock never ran")
	}
}

func TestApproveReturn_LateDeductionKeepsInvoice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.loy.failures = 1
	rr := f.create(t)

	refund := 127.0
	approved, err := f.uc.ApproveReturn(ctx, &dto.ApproveReturnInput{ID: rr.ID, RefundAmount: &refund})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.LoyaltyDeductedAt != nil || approved.LoyaltyPointsDeducted != 127 {
		t.Fatalf("expected pending deduction of 127, got %+v", approved)
	}
	before, err := f.uc.GetInvoice(ctx, rr.ReturnCode)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}

	// the customer spends points before the deduction is retried
	f.loy.balances["u1"] = 10
	if _, err := f.uc.ReconcileReturn(ctx, rr.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	stored, _ := f.repo.FindByID(ctx, rr.ID)
	if stored.LoyaltyDeductedAt == nil || stored.LoyaltyPointsApplied != 10 || stored.LoyaltyPointsDeducted != 127 {
		t.Fatalf("unexpected loyalty columns: deducted=%d applied=%d", stored.LoyaltyPointsDeducted, stored.LoyaltyPointsApplied)
	}
	after, err := f.uc.GetInvoice(ctx, rr.ReturnCode)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if after.Summary.LoyaltyPointsDeducted != 127 || after.LoyaltyNote != before.LoyaltyNote {
		t.Fatalf("invoice changed after approval: %d %q", after.Summary.LoyaltyPointsDeducted, after.LoyaltyNote)
	}
}

func TestRejectAndComplete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rr := f.create(t)

	if _, err := f.uc.RejectReturn(ctx, &dto.RejectReturnInput{ID: rr.ID, Reason: "  "}); !apperror.IsKind(err, apperror.KindValidationFailed) {
		t.Fatalf("blank reason must fail, got %v", err)
	}
	if _, err := f.uc.CompleteReturn(ctx, rr.ID); !apperror.IsKind(err, apperror.KindInvalidStatusTransition) {
		t.Fatalf("pending cannot complete, got %v", err)
	}

	if _, err := f.uc.ApproveReturn(ctx, &dto.ApproveReturnInput{ID: rr.ID}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.uc.RejectReturn(ctx, &dto.RejectReturnInput{ID: rr.ID, Reason: "late"}); !apperror.IsKind(err, apperror.KindInvalidStatusTransition) {
		t.Fatalf("approved cannot be rejected, got %v", err)
	}
	done, err := f.uc.CompleteReturn(ctx, rr.ID)
	if err != nil || done.Status != model.ReturnCompleted || done.CompletedAt == nil {
		t.Fatalf("complete: %v %+v", err, done)
	}
	if len(f.inv.restocks) != 1 {
		t.Fatalf("reject/complete must not restock again")
	}
}

func TestGetInvoice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rr := f.create(t)

	if _, err := f.uc.GetInvoice(ctx, rr.ReturnCode); !apperror.IsKind(err, apperror.KindNotFound) {
		t.Fatalf("pending return has no invoice, got %v", err)
	}

	refund := 100.0
	if _, err := f.uc.ApproveReturn(ctx, &dto.ApproveReturnInput{ID: rr.ID, RefundAmount: &refund}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	first, err := f.uc.GetInvoice(ctx, rr.ReturnCode)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}

	// later changes to the order do not leak into the snapshot
	o := f.repo.orders["o-delivered"]
	o.Items[0].UnitPrice = 99
	f.repo.orders["o-delivered"] = o

	second, _ := f.uc.GetInvoice(ctx, rr.ReturnCode)
	if first.Summary.RefundAmount != 100 || second.Summary.RefundAmount != 100 || second.Items[0].UnitPrice != 12 {
		t.Fatalf("invoice not frozen: %+v", second.Summary)
	}
	if first.Summary.LoyaltyPointsDeducted != 100 || first.Branch.Name != "فرع المعادي" {
		t.Fatalf("unexpected invoice %+v", first)
	}

	if _, err := f.uc.GetInvoice(ctx, "RET-00000000-XXXXXX"); !apperror.IsKind(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewReturnCode(t *testing.T) {
	code := newReturnCode(fixedNow)
	if len(code) != 19 || !strings.HasPrefix(code, "RET-20250412-") {
		t.Fatalf("unexpected code %s", code)
	}
}
