package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/pdf"
	"app/internal/repository"
	"app/internal/service"

	"github.com/rs/zerolog"
)

const (
	maxUploadBytes   = 100 << 20 // whole form
	maxFileBytes     = 50 << 20  // single input document
	defaultListLimit = 20
	maxListLimit     = 100
)

// OperationHandler handles PDF operation submission and history endpoints.
type OperationHandler struct {
	opSvc    service.OperationService
	usageSvc service.UsageService
	logger   zerolog.Logger
}

// NewOperationHandler creates a new OperationHandler.
func NewOperationHandler(opSvc service.OperationService, usageSvc service.UsageService, logger zerolog.Logger) *OperationHandler {
	return &OperationHandler{opSvc: opSvc, usageSvc: usageSvc, logger: logger}
}

// RegisterRoutes mounts v1 operation routes. Submission and reads sit in
// different rate-limit pools, so each method gets its own middleware chain.
func (h *OperationHandler) RegisterRoutes(mux *http.ServeMux, authMw, pdfLimitMw, readLimitMw func(http.Handler) http.Handler) {
	submit := pdfLimitMw(authMw(http.HandlerFunc(h.processOperation)))
	list := readLimitMw(authMw(http.HandlerFunc(h.listOperations)))
	get := readLimitMw(authMw(http.HandlerFunc(h.getOperation)))

	mux.Handle("/operations", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			submit.ServeHTTP(w, r)
		case http.MethodGet:
			list.ServeHTTP(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	mux.Handle("/operations/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		get.ServeHTTP(w, r)
	}))
}

// processOperation godoc
// @Summary Run a PDF operation (merge, split, or compress)
// @Description Accepts a multipart upload, checks the caller's daily quota, and returns the processed output.
// @Tags operations
// @Accept multipart/form-data
// @Produce json
// @Router /operations [post]
func (h *OperationHandler) processOperation(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not parse multipart form")
		return
	}

	opType := r.FormValue("operation")
	if !model.ValidOperationType(opType) {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown operation type %q", opType))
		return
	}

	files, err := readUploadedFiles(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var pageRanges []string
	if raw := r.FormValue("pageRanges"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &pageRanges); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "pageRanges must be a JSON array of strings")
			return
		}
	}

	quality := 0.0
	if raw := r.FormValue("quality"); raw != "" {
		q, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "quality must be a number")
			return
		}
		quality = q
	}

	result, err := h.opSvc.Execute(r.Context(), service.OperationRequest{
		UserID:     userID,
		Type:       opType,
		Files:      files,
		PageRanges: pageRanges,
		Quality:    quality,
	})
	if err != nil {
		h.writeExecuteError(w, err)
		return
	}

	switch opType {
	case model.OperationSplit:
		resp := dto.SplitResponseDTO{}
		for _, f := range result.Files {
			resp.Files = append(resp.Files, dto.SplitFileDTO{Name: f.Name, DownloadURL: f.DownloadURL, Size: f.Size})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			h.logger.Error().Err(err).Msg("failed to encode split response")
		}
	default:
		name := "merged.pdf"
		if opType == model.OperationCompress {
			name = "compressed.pdf"
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		if _, err := w.Write(result.Data); err != nil {
			h.logger.Error().Err(err).Msg("failed to write pdf response")
		}
	}
}

func (h *OperationHandler) writeExecuteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrDailyLimitExceeded):
		remaining := 0
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(dto.ErrorResponseDTO{
			Error:     "daily_limit_exceeded",
			Message:   "Daily operation limit reached. Upgrade to Pro for unlimited operations.",
			Remaining: &remaining,
		})
	case errors.Is(err, pdf.ErrInvalidPDF):
		writeError(w, http.StatusBadRequest, "invalid_pdf", err.Error())
	default:
		h.logger.Error().Err(err).Msg("operation processing failed")
		writeError(w, http.StatusUnprocessableEntity, "processing_failed", err.Error())
	}
}

func (h *OperationHandler) listOperations(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		limit = n
	}

	ops, err := h.usageSvc.ListOperationsByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list operations")
		http.Error(w, "failed to list operations", http.StatusInternalServerError)
		return
	}

	resp := dto.OperationListResponseDTO{Operations: []dto.OperationResponseDTO{}}
	for _, op := range ops {
		resp.Operations = append(resp.Operations, toOperationDTO(&op))
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode operations response")
	}
}

func (h *OperationHandler) getOperation(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/operations/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	op, err := h.usageSvc.GetOperationByID(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("operation_id", id).Msg("failed to fetch operation")
		http.Error(w, "failed to fetch operation", http.StatusInternalServerError)
		return
	}
	// Hide other users' records behind the same 404 as unknown ids.
	if op == nil || op.UserID != userID {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toOperationDTO(op)); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode operation response")
	}
}

func toOperationDTO(op *model.Operation) dto.OperationResponseDTO {
	return dto.OperationResponseDTO{
		ID:            op.ID,
		Type:          op.Type,
		Filename:      op.Filename,
		FileSize:      op.FileSizeBytes,
		Status:        op.Status,
		OperationDate: op.OperationDate,
		CreatedAt:     op.CreatedAt,
		CompletedAt:   op.CompletedAt,
		ErrorMessage:  op.ErrorMessage,
	}
}

// readUploadedFiles collects inputs from the "files" field, accepting "file"
// as a single-upload alias.
func readUploadedFiles(r *http.Request) ([]pdf.File, error) {
	if r.MultipartForm == nil {
		return nil, fmt.Errorf("no files uploaded")
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("no files uploaded")
	}

	var files []pdf.File
	for _, fh := range headers {
		if fh.Size > maxFileBytes {
			return nil, fmt.Errorf("file %s exceeds the %dMB size limit", fh.Filename, maxFileBytes>>20)
		}
		data, err := readFileHeader(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, pdf.File{Name: fh.Filename, Data: data})
	}
	return files, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening uploaded file %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading uploaded file %s: %w", fh.Filename, err)
	}
	return data, nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponseDTO{Error: code, Message: message})
}
