// Package client talks to a running control-mapper over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/internal/catalog"
	"github.com/joseph-ayodele/control-mapper/internal/services/configure"
	mapsvc "github.com/joseph-ayodele/control-mapper/internal/services/mapping"
	"github.com/joseph-ayodele/control-mapper/internal/services/upload"
)

const DefaultBaseURL = "http://localhost:8000"

// APIError is a non-2xx answer; Detail is the server's message.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("non-2xx status: %d", e.Status)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Detail)
}

type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient, logger: logger}
}

type Health struct {
	Status          string `json:"status"`
	ClaudeAvailable bool   `json:"claude_available"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	return call[Health](ctx, c, http.MethodGet, "/health", nil, "")
}

func (c *Client) ListProviders(ctx context.Context) ([]catalog.Provider, error) {
	var out struct {
		Providers []catalog.Provider `json:"providers"`
	}
	if err := c.do(ctx, http.MethodGet, "/providers", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Providers, nil
}

type CheckPage struct {
	Provider string          `json:"provider"`
	Total    int             `json:"total"`
	Checks   []catalog.Check `json:"checks"`
}

func (c *Client) SearchChecks(ctx context.Context, provider string, f catalog.Filter) (*CheckPage, error) {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Service != "" {
		q.Set("service", f.Service)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := "/checks/" + url.PathEscape(provider)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return call[CheckPage](ctx, c, http.MethodGet, path, nil, "")
}

// Upload sends the file at path as a multipart form.
func (c *Client) Upload(ctx context.Context, path string) (*upload.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return call[upload.Result](ctx, c, http.MethodPost, "/upload", &body, mw.FormDataContentType())
}

func (c *Client) Configure(ctx context.Context, req configure.Request) (*configure.Result, error) {
	return callJSON[configure.Result](ctx, c, http.MethodPost, "/configure", req)
}

func (c *Client) StartMapping(ctx context.Context, uploadID, configurationID uuid.UUID) (*mapsvc.StartResult, error) {
	req := mapsvc.StartRequest{UploadID: uploadID.String(), ConfigurationID: configurationID.String()}
	return callJSON[mapsvc.StartResult](ctx, c, http.MethodPost, "/map", req)
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (*mapsvc.JobView, error) {
	return call[mapsvc.JobView](ctx, c, http.MethodGet, "/status/"+url.PathEscape(jobID), nil, "")
}

func (c *Client) BatchStatus(ctx context.Context, batchID string) (*mapsvc.BatchView, error) {
	return call[mapsvc.BatchView](ctx, c, http.MethodGet, "/batch/"+url.PathEscape(batchID)+"/status", nil, "")
}

func (c *Client) CancelJob(ctx context.Context, jobID string) (*mapsvc.CancelResult, error) {
	return call[mapsvc.CancelResult](ctx, c, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", nil, "")
}

// Download streams a job artifact ("json" or "excel") into w.
func (c *Client) Download(ctx context.Context, jobID, kind string, w io.Writer) (int64, error) {
	return c.stream(ctx, "/download/"+url.PathEscape(jobID)+"/"+url.PathEscape(kind), w)
}

// DownloadBatch streams the batch ZIP into w.
func (c *Client) DownloadBatch(ctx context.Context, batchID string, w io.Writer) (int64, error) {
	return c.stream(ctx, "/download/batch/"+url.PathEscape(batchID)+"/zip", w)
}

func call[T any](ctx context.Context, c *Client, method, path string, body io.Reader, contentType string) (*T, error) {
	var out T
	if err := c.do(ctx, method, path, body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func callJSON[T any](ctx context.Context, c *Client, method, path string, in any) (*T, error) {
	var out T
	if err := c.doJSON(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	bs, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(bs), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer c.closeBody(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return apiError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) stream(ctx context.Context, path string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return 0, err
	}
	defer c.closeBody(resp)

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(resp.Body)
		return 0, apiError(resp.StatusCode, raw)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	reqID := uuid.NewString()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("client.http.send_error", "req_id", reqID, "path", path, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	c.logger.Debug("client.http.response", "req_id", reqID, "method", method, "path", path,
		"status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Warn("client.http.response_body_close_error", "error", err)
	}
}

func apiError(status int, raw []byte) error {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Detail == "" {
		body.Detail = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: status, Detail: body.Detail}
}
