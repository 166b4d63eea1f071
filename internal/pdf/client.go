package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// serviceClient talks to the external PDF processing service over HTTP.
// Requests are multipart uploads; merge and compress return raw PDF bytes,
// split returns a JSON list of output files.
type serviceClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewServiceClient creates a DocumentProcessor backed by the PDF service at
// baseURL. The timeout bounds a single processing call; callers still pass a
// context for per-request deadlines.
func NewServiceClient(baseURL string, timeout time.Duration, logger zerolog.Logger) DocumentProcessor {
	return &serviceClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("service", "PDFServiceClient").Logger(),
	}
}

func (c *serviceClient) Merge(ctx context.Context, files []File) ([]byte, error) {
	if len(files) < 2 {
		return nil, fmt.Errorf("merge requires at least 2 files, got %d", len(files))
	}
	return c.postForBytes(ctx, "/merge", files, nil)
}

func (c *serviceClient) Split(ctx context.Context, file File, pageRanges []string) ([]OutputFile, error) {
	ranges, err := json.Marshal(pageRanges)
	if err != nil {
		return nil, fmt.Errorf("marshaling page ranges: %w", err)
	}
	fields := map[string]string{"pageRanges": string(ranges)}

	body, contentType, err := buildMultipart([]File{file}, fields)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, "/split", body, contentType)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	var out struct {
		Files []OutputFile `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding split response: %w", err)
	}
	if len(out.Files) == 0 {
		return nil, fmt.Errorf("pdf service returned no split outputs")
	}
	return out.Files, nil
}

func (c *serviceClient) Compress(ctx context.Context, file File, quality float64) ([]byte, error) {
	fields := map[string]string{"quality": strconv.FormatFloat(quality, 'f', -1, 64)}
	return c.postForBytes(ctx, "/compress", []File{file}, fields)
}

func (c *serviceClient) postForBytes(ctx context.Context, path string, files []File, fields map[string]string) ([]byte, error) {
	body, contentType, err := buildMultipart(files, fields)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, path, body, contentType)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading pdf service response: %w", err)
	}
	return data, nil
}

func (c *serviceClient) do(ctx context.Context, path string, body *bytes.Buffer, contentType string) (*http.Response, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request to PDF service: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			c.logger.Warn().Err(readErr).Int("status_code", resp.StatusCode).Msg("Failed to read error body from PDF service")
			return nil, fmt.Errorf("pdf service returned status %d", resp.StatusCode)
		}

		errorMsg := string(bodyBytes)
		c.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("error_body", errorMsg).
			Msg("PDF service returned error")

		return nil, fmt.Errorf("pdf service returned status %d: %s", resp.StatusCode, errorMsg)
	}

	return resp, nil
}

func buildMultipart(files []File, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("creating form file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("writing form file: %w", err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
