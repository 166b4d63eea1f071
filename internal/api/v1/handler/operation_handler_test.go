package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/rs/zerolog"
)

type stubOperationService struct {
	executeErr    error
	executeResult *service.OperationResult
}

func (s *stubOperationService) Execute(context.Context, service.OperationRequest) (*service.OperationResult, error) {
	if s.executeErr != nil {
		return nil, s.executeErr
	}
	return s.executeResult, nil
}

func (s *stubOperationService) RunStaleSweeper(context.Context, time.Duration, time.Duration) {}

type stubUsageService struct {
	status model.UsageStatus
	op     *model.Operation
	ops    []model.Operation
}

func (s *stubUsageService) RemainingOperations(context.Context, string) (model.UsageStatus, error) {
	return s.status, nil
}

func (s *stubUsageService) CheckUsageLimits(context.Context, string) (model.UsageStatus, bool, error) {
	return s.status, s.status.IsProUser || s.status.Remaining > 0, nil
}

func (s *stubUsageService) RecordOperationStart(context.Context, string, string, string, int64) (*model.Operation, error) {
	return s.op, nil
}

func (s *stubUsageService) FinalizeOperation(context.Context, string, string, *string) (*model.Operation, error) {
	return s.op, nil
}

func (s *stubUsageService) GetOperationByID(context.Context, string) (*model.Operation, error) {
	return s.op, nil
}

func (s *stubUsageService) ListOperationsByUser(context.Context, string, int) ([]model.Operation, error) {
	return s.ops, nil
}

func (s *stubUsageService) IsProUser(context.Context, string) (bool, error) {
	return s.status.IsProUser, nil
}

func authenticated(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserContextKey, userID))
}

func multipartUpload(t *testing.T, operation string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("operation", operation); err != nil {
		t.Fatal(err)
	}
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return body, w.FormDataContentType()
}

func TestProcessOperationDailyLimitExceeded(t *testing.T) {
	h := NewOperationHandler(
		&stubOperationService{executeErr: repository.ErrDailyLimitExceeded},
		&stubUsageService{},
		zerolog.Nop(),
	)

	body, contentType := multipartUpload(t, "merge", map[string][]byte{
		"a.pdf": []byte("x"),
		"b.pdf": []byte("y"),
	})
	r := httptest.NewRequest("POST", "/operations", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.processOperation(w, authenticated(r, "user-1"))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	var resp dto.ErrorResponseDTO
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "daily_limit_exceeded" {
		t.Fatalf("expected daily_limit_exceeded, got %q", resp.Error)
	}
}

func TestProcessOperationReturnsMergedPDF(t *testing.T) {
	h := NewOperationHandler(
		&stubOperationService{executeResult: &service.OperationResult{Data: []byte("%PDF-out")}},
		&stubUsageService{},
		zerolog.Nop(),
	)

	body, contentType := multipartUpload(t, "merge", map[string][]byte{
		"a.pdf": []byte("x"),
		"b.pdf": []byte("y"),
	})
	r := httptest.NewRequest("POST", "/operations", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.processOperation(w, authenticated(r, "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="merged.pdf"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if w.Body.String() != "%PDF-out" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}

func TestProcessOperationRejectsUnknownType(t *testing.T) {
	h := NewOperationHandler(&stubOperationService{}, &stubUsageService{}, zerolog.Nop())

	body, contentType := multipartUpload(t, "rotate", map[string][]byte{"a.pdf": []byte("x")})
	r := httptest.NewRequest("POST", "/operations", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.processOperation(w, authenticated(r, "user-1"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetOperationHidesOtherUsers(t *testing.T) {
	h := NewOperationHandler(
		&stubOperationService{},
		&stubUsageService{op: &model.Operation{ID: "op-1", UserID: "someone-else", Status: model.StatusCompleted}},
		zerolog.Nop(),
	)

	r := httptest.NewRequest("GET", "/operations/op-1", nil)
	w := httptest.NewRecorder()
	h.getOperation(w, authenticated(r, "user-1"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's operation, got %d", w.Code)
	}
}

func TestGetUsage(t *testing.T) {
	uh := NewUsageHandler(&stubUsageService{status: model.UsageStatus{Remaining: 3}}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/usage", nil)
	w := httptest.NewRecorder()
	uh.getUsage(w, authenticated(r, "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp dto.UsageResponseDTO
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Remaining != 3 || resp.IsProUser {
		t.Fatalf("unexpected usage response %+v", resp)
	}
}
