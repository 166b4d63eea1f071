package service

import (
	"context"
	"errors"
	"testing"

	"app/internal/model"
	"app/internal/pdf"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

type stubProcessor struct{}

func (stubProcessor) Merge(context.Context, []pdf.File) ([]byte, error) {
	return []byte("%PDF-merged"), nil
}

func (stubProcessor) Split(context.Context, pdf.File, []string) ([]pdf.OutputFile, error) {
	return nil, errors.New("not used")
}

func (stubProcessor) Compress(context.Context, pdf.File, float64) ([]byte, error) {
	return []byte("%PDF-compressed"), nil
}

func newTestOperationService(opRepo repository.OperationRepository, subRepo repository.SubscriptionRepository) OperationService {
	usage := NewUsageService(opRepo, subRepo, 5, zerolog.Nop())
	return NewOperationService(usage, stubProcessor{}, opRepo, nil, "", nil, "", zerolog.Nop())
}

func TestExecuteInvalidInputFinalizesAsFailed(t *testing.T) {
	opRepo := newFakeOperationRepo()
	svc := newTestOperationService(opRepo, &fakeSubscriptionRepo{})

	_, err := svc.Execute(context.Background(), OperationRequest{
		UserID: "user-1",
		Type:   model.OperationMerge,
		Files: []pdf.File{
			{Name: "a.pdf", Data: []byte("not a pdf")},
			{Name: "b.pdf", Data: []byte("also not a pdf")},
		},
	})
	if !errors.Is(err, pdf.ErrInvalidPDF) {
		t.Fatalf("expected ErrInvalidPDF, got %v", err)
	}

	// The attempt is recorded, failed, and still consumes quota.
	if len(opRepo.ops) != 1 {
		t.Fatalf("expected one recorded operation, got %d", len(opRepo.ops))
	}
	for _, op := range opRepo.ops {
		if op.Status != model.StatusFailed {
			t.Fatalf("expected failed status, got %q", op.Status)
		}
		if op.ErrorMessage == nil || *op.ErrorMessage == "" {
			t.Fatal("failed operation should carry an error message")
		}
	}
}

func TestExecuteOverQuotaRecordsNothing(t *testing.T) {
	opRepo := newFakeOperationRepo()
	svc := newTestOperationService(opRepo, &fakeSubscriptionRepo{})
	ctx := context.Background()

	// Exhaust the daily allowance with pre-existing rows.
	usage := NewUsageService(opRepo, &fakeSubscriptionRepo{}, 5, zerolog.Nop())
	for i := 0; i < 5; i++ {
		if _, err := usage.RecordOperationStart(ctx, "user-1", model.OperationMerge, "a.pdf", 10); err != nil {
			t.Fatal(err)
		}
	}

	_, err := svc.Execute(ctx, OperationRequest{
		UserID: "user-1",
		Type:   model.OperationMerge,
		Files: []pdf.File{
			{Name: "a.pdf", Data: []byte("x")},
			{Name: "b.pdf", Data: []byte("y")},
		},
	})
	if !errors.Is(err, repository.ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got %v", err)
	}
	if len(opRepo.ops) != 5 {
		t.Fatalf("denied request must not add a row, got %d rows", len(opRepo.ops))
	}
}

func TestExecuteRejectsEmptyRequest(t *testing.T) {
	svc := newTestOperationService(newFakeOperationRepo(), &fakeSubscriptionRepo{})
	if _, err := svc.Execute(context.Background(), OperationRequest{UserID: "user-1", Type: model.OperationMerge}); err == nil {
		t.Fatal("request without files should be rejected")
	}
}
