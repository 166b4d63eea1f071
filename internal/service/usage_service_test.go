package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// fakeOperationRepo keeps operations in memory and enforces the same
// count-then-insert admission as the real repository.
type fakeOperationRepo struct {
	ops      map[string]*model.Operation
	countErr error
}

func newFakeOperationRepo() *fakeOperationRepo {
	return &fakeOperationRepo{ops: make(map[string]*model.Operation)}
}

func (f *fakeOperationRepo) CheckAndRecordOperation(_ context.Context, op *model.Operation, dailyLimit int) error {
	if dailyLimit > 0 {
		count := 0
		for _, existing := range f.ops {
			if existing.UserID == op.UserID && existing.OperationDate == op.OperationDate {
				count++
			}
		}
		if count >= dailyLimit {
			return repository.ErrDailyLimitExceeded
		}
	}
	op.CreatedAt = time.Now()
	stored := *op
	f.ops[op.ID] = &stored
	return nil
}

func (f *fakeOperationRepo) CountOperationsOnDate(_ context.Context, userID, date string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, op := range f.ops {
		if op.UserID == userID && op.OperationDate == date {
			count++
		}
	}
	return count, nil
}

func (f *fakeOperationRepo) FinalizeOperation(_ context.Context, id, status string, errorMessage *string) (*model.Operation, error) {
	op, ok := f.ops[id]
	if !ok {
		return nil, repository.ErrOperationNotFound
	}
	if op.Status != model.StatusProcessing {
		return nil, repository.ErrAlreadyFinalized
	}
	now := time.Now()
	op.Status = status
	op.CompletedAt = &now
	op.ErrorMessage = errorMessage
	result := *op
	return &result, nil
}

func (f *fakeOperationRepo) GetOperationByID(_ context.Context, id string) (*model.Operation, error) {
	op, ok := f.ops[id]
	if !ok {
		return nil, nil
	}
	result := *op
	return &result, nil
}

func (f *fakeOperationRepo) ListOperationsByUser(_ context.Context, userID string, limit int) ([]model.Operation, error) {
	var out []model.Operation
	for _, op := range f.ops {
		if op.UserID == userID {
			out = append(out, *op)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeOperationRepo) SweepStaleProcessing(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	swept := 0
	for _, op := range f.ops {
		if op.Status == model.StatusProcessing && op.CreatedAt.Before(cutoff) {
			msg := "timeout"
			now := time.Now()
			op.Status = model.StatusFailed
			op.CompletedAt = &now
			op.ErrorMessage = &msg
			swept++
		}
	}
	return swept, nil
}

// fakeSubscriptionRepo serves a canned subscription, or an error to exercise
// the fail-closed path.
type fakeSubscriptionRepo struct {
	sub *model.UserSubscription
	err error
}

func (f *fakeSubscriptionRepo) GetActiveSubscription(context.Context, string) (*model.UserSubscription, error) {
	return f.sub, f.err
}

func (f *fakeSubscriptionRepo) GetSubscription(context.Context, string) (*model.UserSubscription, error) {
	return f.sub, f.err
}

func (f *fakeSubscriptionRepo) UpsertStripeSubscription(context.Context, string, string, time.Time, time.Time, string, string) error {
	return nil
}

func (f *fakeSubscriptionRepo) DowngradeUserToFreePlan(context.Context, string) error {
	return nil
}

func proSubscription() *model.UserSubscription {
	return &model.UserSubscription{
		UserID:           "user-1",
		PlanID:           model.PlanPro,
		Status:           "active",
		CurrentPeriodEnd: time.Now().Add(24 * time.Hour),
	}
}

func newTestUsageService(opRepo repository.OperationRepository, subRepo repository.SubscriptionRepository) UsageService {
	return NewUsageService(opRepo, subRepo, 5, zerolog.Nop())
}

func TestFreeUserQuotaCountsDown(t *testing.T) {
	opRepo := newFakeOperationRepo()
	svc := newTestUsageService(opRepo, &fakeSubscriptionRepo{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status, err := svc.RemainingOperations(ctx, "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if status.Remaining != 5-i {
			t.Fatalf("before operation %d: expected remaining %d, got %d", i+1, 5-i, status.Remaining)
		}
		if _, err := svc.RecordOperationStart(ctx, "user-1", model.OperationMerge, "a.pdf", 100); err != nil {
			t.Fatalf("operation %d should be admitted: %v", i+1, err)
		}
	}

	status, err := svc.RemainingOperations(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if status.Remaining != 0 {
		t.Fatalf("expected remaining 0 after 5 operations, got %d", status.Remaining)
	}

	if _, err := svc.RecordOperationStart(ctx, "user-1", model.OperationMerge, "a.pdf", 100); !errors.Is(err, repository.ErrDailyLimitExceeded) {
		t.Fatalf("sixth operation should hit the daily limit, got %v", err)
	}
}

func TestFailedOperationsStillCount(t *testing.T) {
	opRepo := newFakeOperationRepo()
	svc := newTestUsageService(opRepo, &fakeSubscriptionRepo{})
	ctx := context.Background()

	op, err := svc.RecordOperationStart(ctx, "user-1", model.OperationCompress, "a.pdf", 100)
	if err != nil {
		t.Fatal(err)
	}
	msg := "processing failed"
	if _, err := svc.FinalizeOperation(ctx, op.ID, model.StatusFailed, &msg); err != nil {
		t.Fatal(err)
	}

	status, err := svc.RemainingOperations(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if status.Remaining != 4 {
		t.Fatalf("a failed operation must still consume quota; expected remaining 4, got %d", status.Remaining)
	}
}

func TestProUserIsUnlimited(t *testing.T) {
	opRepo := newFakeOperationRepo()
	svc := newTestUsageService(opRepo, &fakeSubscriptionRepo{sub: proSubscription()})
	ctx := context.Background()

	status, err := svc.RemainingOperations(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !status.IsProUser || status.Remaining != model.UnlimitedOperations {
		t.Fatalf("expected pro/unlimited, got %+v", status)
	}

	for i := 0; i < 20; i++ {
		if _, err := svc.RecordOperationStart(ctx, "user-1", model.OperationSplit, "a.pdf", 100); err != nil {
			t.Fatalf("pro operation %d should be admitted: %v", i+1, err)
		}
	}
}

func TestSubscriptionLookupFailureFailsClosed(t *testing.T) {
	opRepo := newFakeOperationRepo()
	svc := newTestUsageService(opRepo, &fakeSubscriptionRepo{err: errors.New("billing database down")})
	ctx := context.Background()

	status, err := svc.RemainingOperations(ctx, "user-1")
	if err == nil {
		t.Fatal("expected an error from the billing lookup")
	}
	if status.Remaining != 0 || status.IsProUser {
		t.Fatalf("a billing outage must read as exhausted free tier, got %+v", status)
	}

	if _, err := svc.RecordOperationStart(ctx, "user-1", model.OperationMerge, "a.pdf", 100); err == nil {
		t.Fatal("recording should fail when the plan cannot be determined")
	}
	if len(opRepo.ops) != 0 {
		t.Fatal("no operation row should be written when admission fails")
	}
}

func TestCheckUsageLimitsIsReadOnly(t *testing.T) {
	opRepo := newFakeOperationRepo()
	svc := newTestUsageService(opRepo, &fakeSubscriptionRepo{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, ok, err := svc.CheckUsageLimits(ctx, "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("fresh user should be allowed to proceed")
		}
		if status.Remaining != 5 {
			t.Fatalf("repeated checks must not consume quota, got remaining %d", status.Remaining)
		}
	}
}

func TestLastSlotBoundary(t *testing.T) {
	opRepo := newFakeOperationRepo()
	svc := newTestUsageService(opRepo, &fakeSubscriptionRepo{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := svc.RecordOperationStart(ctx, "user-1", model.OperationMerge, "a.pdf", 100); err != nil {
			t.Fatal(err)
		}
	}

	_, ok, err := svc.CheckUsageLimits(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("remaining == 1 should still admit")
	}

	if _, err := svc.RecordOperationStart(ctx, "user-1", model.OperationMerge, "a.pdf", 100); err != nil {
		t.Fatalf("fifth operation should take the last slot: %v", err)
	}

	_, ok, err = svc.CheckUsageLimits(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("remaining == 0 should deny")
	}
}

func TestFinalizeOperationIsExactlyOnce(t *testing.T) {
	opRepo := newFakeOperationRepo()
	svc := newTestUsageService(opRepo, &fakeSubscriptionRepo{})
	ctx := context.Background()

	op, err := svc.RecordOperationStart(ctx, "user-1", model.OperationMerge, "a.pdf", 100)
	if err != nil {
		t.Fatal(err)
	}

	finalized, err := svc.FinalizeOperation(ctx, op.ID, model.StatusCompleted, nil)
	if err != nil {
		t.Fatal(err)
	}
	if finalized.Status != model.StatusCompleted || finalized.CompletedAt == nil {
		t.Fatalf("unexpected finalized record: %+v", finalized)
	}

	if _, err := svc.FinalizeOperation(ctx, op.ID, model.StatusFailed, nil); !errors.Is(err, repository.ErrAlreadyFinalized) {
		t.Fatalf("second finalize should report ErrAlreadyFinalized, got %v", err)
	}

	if _, err := svc.FinalizeOperation(ctx, "no-such-id", model.StatusCompleted, nil); !errors.Is(err, repository.ErrOperationNotFound) {
		t.Fatalf("unknown id should report ErrOperationNotFound, got %v", err)
	}
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	svc := newTestUsageService(newFakeOperationRepo(), &fakeSubscriptionRepo{})
	if _, err := svc.FinalizeOperation(context.Background(), "id", model.StatusProcessing, nil); err == nil {
		t.Fatal("finalizing to 'processing' must be rejected")
	}
}

func TestRecordRejectsUnknownType(t *testing.T) {
	svc := newTestUsageService(newFakeOperationRepo(), &fakeSubscriptionRepo{})
	if _, err := svc.RecordOperationStart(context.Background(), "user-1", "rotate", "a.pdf", 100); err == nil {
		t.Fatal("unknown operation type must be rejected")
	}
}
