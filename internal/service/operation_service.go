package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/pdf"
	"app/internal/pubsub"
	"app/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// SplitOutput is one produced document from a split, stored in S3 and served
// through a short-lived download link.
type SplitOutput struct {
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
	Size        int64  `json:"size"`
}

// OperationResult carries the outcome of a processed operation. Merge and
// compress fill Data; split fills Files.
type OperationResult struct {
	Operation *model.Operation
	Data      []byte
	Files     []SplitOutput
}

// OperationRequest is a fully parsed processing request.
type OperationRequest struct {
	UserID     string
	Type       string
	Files      []pdf.File
	PageRanges []string
	Quality    float64
}

// OperationService runs a PDF operation end to end: quota admission, record
// creation, processing, output storage, and exactly-once finalization.
type OperationService interface {
	Execute(ctx context.Context, req OperationRequest) (*OperationResult, error)
	// RunStaleSweeper periodically fails operations stuck in 'processing',
	// covering crashes between record and finalize. Blocks until ctx is done.
	RunStaleSweeper(ctx context.Context, interval, olderThan time.Duration)
}

type operationService struct {
	usage         UsageService
	processor     pdf.DocumentProcessor
	opRepo        repository.OperationRepository
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	publisher     pubsub.Publisher
	eventTopic    string
	opLogger      zerolog.Logger
}

// NewOperationService creates a new OperationService. publisher may be nil
// when lifecycle events are not configured.
func NewOperationService(
	usage UsageService,
	processor pdf.DocumentProcessor,
	opRepo repository.OperationRepository,
	s3Client *s3.Client,
	bucketName string,
	publisher pubsub.Publisher,
	eventTopic string,
	logger zerolog.Logger,
) OperationService {
	svc := &operationService{
		usage:      usage,
		processor:  processor,
		opRepo:     opRepo,
		s3Client:   s3Client,
		bucketName: bucketName,
		publisher:  publisher,
		eventTopic: eventTopic,
		opLogger:   logger.With().Str("service", "OperationService").Logger(),
	}
	if s3Client != nil {
		svc.presignClient = s3.NewPresignClient(s3Client)
	}
	return svc
}

// Execute admits the request against the daily quota, records the operation,
// runs the processor, and finalizes the record on every path. Failed
// operations stay on the ledger: a spent attempt counts whether or not it
// produced output.
func (s *operationService) Execute(ctx context.Context, req OperationRequest) (*OperationResult, error) {
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("no input files provided")
	}

	var totalSize int64
	for _, f := range req.Files {
		totalSize += int64(len(f.Data))
	}

	op, err := s.usage.RecordOperationStart(ctx, req.UserID, req.Type, req.Files[0].Name, totalSize)
	if err != nil {
		return nil, err
	}

	result, procErr := s.process(ctx, op, req)
	if procErr != nil {
		msg := procErr.Error()
		if _, finErr := s.usage.FinalizeOperation(ctx, op.ID, model.StatusFailed, &msg); finErr != nil {
			s.opLogger.Error().Err(finErr).Str("operation_id", op.ID).Msg("Failed to finalize operation as failed")
		}
		s.publishEvent(op, model.StatusFailed, msg)
		return nil, procErr
	}

	finalized, err := s.usage.FinalizeOperation(ctx, op.ID, model.StatusCompleted, nil)
	if err != nil {
		// The work is done but the record could not transition; surface the
		// error rather than hand back output for a record left 'processing'.
		s.opLogger.Error().Err(err).Str("operation_id", op.ID).Msg("Failed to finalize completed operation")
		return nil, fmt.Errorf("finalizing operation %s: %w", op.ID, err)
	}
	result.Operation = finalized
	s.publishEvent(finalized, model.StatusCompleted, "")
	return result, nil
}

func (s *operationService) process(ctx context.Context, op *model.Operation, req OperationRequest) (*OperationResult, error) {
	for _, f := range req.Files {
		if err := pdf.Validate(f); err != nil {
			return nil, err
		}
	}

	switch req.Type {
	case model.OperationMerge:
		if len(req.Files) < 2 {
			return nil, fmt.Errorf("merge requires at least 2 files")
		}
		data, err := s.processor.Merge(ctx, req.Files)
		if err != nil {
			return nil, err
		}
		return &OperationResult{Data: data}, nil

	case model.OperationSplit:
		if len(req.Files) != 1 {
			return nil, fmt.Errorf("split takes exactly one file")
		}
		pages, err := pdf.PageCount(req.Files[0].Data)
		if err != nil {
			return nil, err
		}
		if err := pdf.ValidatePageRanges(req.PageRanges, pages); err != nil {
			return nil, err
		}
		outputs, err := s.processor.Split(ctx, req.Files[0], req.PageRanges)
		if err != nil {
			return nil, err
		}
		stored, err := s.storeOutputs(ctx, op.ID, outputs)
		if err != nil {
			return nil, err
		}
		return &OperationResult{Files: stored}, nil

	case model.OperationCompress:
		if len(req.Files) != 1 {
			return nil, fmt.Errorf("compress takes exactly one file")
		}
		quality := req.Quality
		if quality <= 0 || quality > 1 {
			quality = 0.7
		}
		data, err := s.processor.Compress(ctx, req.Files[0], quality)
		if err != nil {
			return nil, err
		}
		return &OperationResult{Data: data}, nil

	default:
		return nil, fmt.Errorf("unknown operation type %q", req.Type)
	}
}

// storeOutputs uploads split outputs under the operation's S3 prefix and
// returns presigned download links.
func (s *operationService) storeOutputs(ctx context.Context, operationID string, outputs []pdf.OutputFile) ([]SplitOutput, error) {
	if s.s3Client == nil {
		return nil, fmt.Errorf("output storage is not configured")
	}

	var stored []SplitOutput
	for _, out := range outputs {
		key := fmt.Sprintf("operations/%s/%s", operationID, out.Name)
		_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucketName),
			Key:         aws.String(key),
			Body:        bytes.NewReader(out.Data),
			ContentType: aws.String("application/pdf"),
		})
		if err != nil {
			s.opLogger.Error().Err(err).Str("key", key).Msg("Failed to upload split output to S3")
			return nil, fmt.Errorf("storing output %s: %w", out.Name, err)
		}

		resp, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(15*time.Minute))
		if err != nil {
			s.opLogger.Error().Err(err).Str("key", key).Msg("Failed to generate presigned URL for split output")
			return nil, fmt.Errorf("generating download URL for %s: %w", out.Name, err)
		}

		stored = append(stored, SplitOutput{
			Name:        out.Name,
			DownloadURL: resp.URL,
			Size:        int64(len(out.Data)),
		})
	}
	return stored, nil
}

// publishEvent is best-effort: a missed event never fails the operation.
func (s *operationService) publishEvent(op *model.Operation, status, errMsg string) {
	if s.publisher == nil || s.eventTopic == "" {
		return
	}
	ev := pubsub.OperationEvent{
		OperationID: op.ID,
		UserID:      op.UserID,
		Type:        op.Type,
		Status:      status,
		Error:       errMsg,
		OccurredAt:  time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := pubsub.PublishOperationEvent(ctx, s.publisher, s.eventTopic, ev); err != nil {
		s.opLogger.Error().Err(err).Str("operation_id", op.ID).Msg("Failed to publish operation event")
	}
}

func (s *operationService) RunStaleSweeper(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := s.opRepo.SweepStaleProcessing(ctx, olderThan)
			if err != nil {
				s.opLogger.Error().Err(err).Msg("Stale operation sweep failed")
				continue
			}
			if swept > 0 {
				s.opLogger.Warn().Int("count", swept).Msg("Swept stale processing operations")
			}
		}
	}
}
