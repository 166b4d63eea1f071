package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UsageService answers "can this user run another operation today" and owns
// the operation record lifecycle around that answer. Days roll over at
// midnight UTC regardless of the user's timezone.
type UsageService interface {
	// RemainingOperations reports the user's quota state. Pro users get
	// Remaining = model.UnlimitedOperations. On a subscription lookup failure
	// the error is returned and the status reads as exhausted, so billing
	// outages can never grant free unlimited usage.
	RemainingOperations(ctx context.Context, userID string) (model.UsageStatus, error)
	// CheckUsageLimits is the read-only admission check; it records nothing.
	CheckUsageLimits(ctx context.Context, userID string) (model.UsageStatus, bool, error)
	// RecordOperationStart atomically admits and records a new operation in
	// 'processing' state. Returns repository.ErrDailyLimitExceeded when the
	// user's daily quota is already spent.
	RecordOperationStart(ctx context.Context, userID, opType, filename string, fileSizeBytes int64) (*model.Operation, error)
	// FinalizeOperation moves the operation to 'completed' or 'failed'. The
	// transition happens at most once; a repeat returns
	// repository.ErrAlreadyFinalized.
	FinalizeOperation(ctx context.Context, operationID, status string, errorMessage *string) (*model.Operation, error)
	GetOperationByID(ctx context.Context, id string) (*model.Operation, error)
	ListOperationsByUser(ctx context.Context, userID string, limit int) ([]model.Operation, error)
	// IsProUser reports whether the user has an effective paid subscription,
	// failing closed on lookup errors.
	IsProUser(ctx context.Context, userID string) (bool, error)
}

type usageService struct {
	opRepo      repository.OperationRepository
	subRepo     repository.SubscriptionRepository
	dailyLimit  int
	now         func() time.Time
	usageLogger zerolog.Logger
}

// NewUsageService creates a new UsageService. dailyLimit is the free-tier
// daily operation allowance.
func NewUsageService(
	opRepo repository.OperationRepository,
	subRepo repository.SubscriptionRepository,
	dailyLimit int,
	logger zerolog.Logger,
) UsageService {
	return &usageService{
		opRepo:      opRepo,
		subRepo:     subRepo,
		dailyLimit:  dailyLimit,
		now:         time.Now,
		usageLogger: logger.With().Str("service", "UsageService").Logger(),
	}
}

// today returns the current calendar day in UTC, the ledger's bucketing key.
func (s *usageService) today() string {
	return s.now().UTC().Format("2006-01-02")
}

func (s *usageService) IsProUser(ctx context.Context, userID string) (bool, error) {
	sub, err := s.subRepo.GetActiveSubscription(ctx, userID)
	if err != nil {
		s.usageLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch subscription, treating user as over quota")
		return false, fmt.Errorf("checking subscription for user %s: %w", userID, err)
	}
	return sub != nil && sub.IsPro(), nil
}

func (s *usageService) RemainingOperations(ctx context.Context, userID string) (model.UsageStatus, error) {
	isPro, err := s.IsProUser(ctx, userID)
	if err != nil {
		// Fail closed: an unknown plan reads as an exhausted free plan.
		return model.UsageStatus{Remaining: 0, IsProUser: false}, err
	}
	if isPro {
		return model.UsageStatus{Remaining: model.UnlimitedOperations, IsProUser: true}, nil
	}

	used, err := s.opRepo.CountOperationsOnDate(ctx, userID, s.today())
	if err != nil {
		s.usageLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to count today's operations")
		return model.UsageStatus{Remaining: 0, IsProUser: false}, err
	}

	remaining := s.dailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return model.UsageStatus{Remaining: remaining, IsProUser: false}, nil
}

func (s *usageService) CheckUsageLimits(ctx context.Context, userID string) (model.UsageStatus, bool, error) {
	status, err := s.RemainingOperations(ctx, userID)
	if err != nil {
		return status, false, err
	}
	return status, status.IsProUser || status.Remaining > 0, nil
}

func (s *usageService) RecordOperationStart(ctx context.Context, userID, opType, filename string, fileSizeBytes int64) (*model.Operation, error) {
	if !model.ValidOperationType(opType) {
		return nil, fmt.Errorf("unknown operation type %q", opType)
	}

	isPro, err := s.IsProUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit := s.dailyLimit
	if isPro {
		limit = 0 // unlimited, skip the count
	}

	op := &model.Operation{
		ID:            uuid.New().String(),
		UserID:        userID,
		Type:          opType,
		Filename:      filename,
		FileSizeBytes: fileSizeBytes,
		Status:        model.StatusProcessing,
		OperationDate: s.today(),
	}
	if err := s.opRepo.CheckAndRecordOperation(ctx, op, limit); err != nil {
		return nil, err
	}

	s.usageLogger.Info().
		Str("operation_id", op.ID).
		Str("user_id", userID).
		Str("type", opType).
		Msg("Operation recorded")
	return op, nil
}

func (s *usageService) FinalizeOperation(ctx context.Context, operationID, status string, errorMessage *string) (*model.Operation, error) {
	if status != model.StatusCompleted && status != model.StatusFailed {
		return nil, fmt.Errorf("invalid terminal status %q", status)
	}
	op, err := s.opRepo.FinalizeOperation(ctx, operationID, status, errorMessage)
	if err != nil {
		return nil, err
	}
	s.usageLogger.Info().
		Str("operation_id", operationID).
		Str("status", status).
		Msg("Operation finalized")
	return op, nil
}

func (s *usageService) GetOperationByID(ctx context.Context, id string) (*model.Operation, error) {
	return s.opRepo.GetOperationByID(ctx, id)
}

func (s *usageService) ListOperationsByUser(ctx context.Context, userID string, limit int) ([]model.Operation, error) {
	return s.opRepo.ListOperationsByUser(ctx, userID, limit)
}
