// Package upstream is the typed client for the scraper/persistence backend.
// Every catalog read, save and long-running operation in this service goes
// through it; the backend owns all storage and all document processing.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
)

const defaultBaseURL = "http://localhost:5000"

// APIError is an application-level failure: the backend answered, with an
// error payload. Its message is the server text verbatim — the UI shows it
// unmodified. Transport failures are returned as ordinary wrapped errors.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the backend API.
type Client struct {
	baseURL string
	client  *http.Client
	// streams must not inherit the request timeout; they stay open for the
	// whole scrape. Cancellation is per-context.
	streamClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the backend base URL (for testing and deployment).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client for request/response calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout sets the per-request timeout for non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// NewClient creates a backend client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CachedData returns the raw cached catalog payload ({"alanlar": …} or
// empty). It is passed through to the shell untouched.
func (c *Client) CachedData(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/get-cached-data", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// TableData returns the flat course table.
func (c *Client) TableData(ctx context.Context) ([]catalog.CourseRow, error) {
	var rows []catalog.CourseRow
	if err := c.getJSON(ctx, "/api/table-data", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Statistics returns the aggregate counters.
func (c *Client) Statistics(ctx context.Context) (catalog.Stats, error) {
	var stats catalog.Stats
	if err := c.getJSON(ctx, "/api/get-statistics", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// AreaBranchOptions returns the selector data for the editor panel.
func (c *Client) AreaBranchOptions(ctx context.Context) (catalog.Options, error) {
	var opts catalog.Options
	if err := c.getJSON(ctx, "/api/alan-dal-options", &opts); err != nil {
		return catalog.Options{}, err
	}
	return opts, nil
}

// loadEnvelope is the {success, data} wrapper on /api/load.
type loadEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// LoadCourse fetches the authoritative course record by ID.
func (c *Client) LoadCourse(ctx context.Context, dersID int) (*catalog.Course, error) {
	var course catalog.Course
	if err := c.load(ctx, "ders", dersID, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

// LoadUnits fetches the learning-unit tree for a course.
func (c *Client) LoadUnits(ctx context.Context, dersID int) ([]catalog.LearningUnit, error) {
	var units []catalog.LearningUnit
	if err := c.load(ctx, "ogrenme_birimi", dersID, &units); err != nil {
		return nil, err
	}
	return units, nil
}

func (c *Client) load(ctx context.Context, typ string, id int, out any) error {
	q := url.Values{"type": {typ}, "id": {strconv.Itoa(id)}}
	var env loadEnvelope
	if err := c.getJSON(ctx, "/api/load?"+q.Encode(), &env); err != nil {
		return err
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("load %s %d failed", typ, id)
		}
		return &APIError{Status: http.StatusOK, Message: msg}
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %d: %w", typ, id, err)
	}
	return nil
}

// UpdateRow patches one course's scalar fields.
func (c *Client) UpdateRow(ctx context.Context, dersID int, updates map[string]any) error {
	body := map[string]any{"ders_id": dersID, "updates": updates}
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	if err := c.postJSON(ctx, "/api/update-table-row", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &APIError{Status: http.StatusOK, Message: nonEmpty(resp.Error, "update rejected")}
	}
	return nil
}

// SaveCourse persists the scalar fields plus the whole unit tree in one
// call. The backend's message is returned for display.
func (c *Client) SaveCourse(ctx context.Context, course catalog.Course) (string, error) {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
		Error   string `json:"error,omitempty"`
	}
	if err := c.postJSON(ctx, "/api/save", course, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &APIError{Status: http.StatusOK, Message: nonEmpty(resp.Error, resp.Message)}
	}
	return resp.Message, nil
}

// CopyRequest duplicates a course into another area/branch.
type CopyRequest struct {
	SourceDersID int            `json:"source_ders_id"`
	TargetAlanID int            `json:"target_alan_id"`
	TargetDalID  int            `json:"target_dal_id"`
	Data         catalog.Course `json:"data"`
}

// CopyCourse copies a course to a new destination.
func (c *Client) CopyCourse(ctx context.Context, req CopyRequest) error {
	var resp struct {
		Error string `json:"error,omitempty"`
	}
	if err := c.postJSON(ctx, "/api/copy-course", req, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return &APIError{Status: http.StatusOK, Message: resp.Error}
	}
	return nil
}

// BulkResult is the outcome of one item of a bulk save.
type BulkResult struct {
	DersID  int    `json:"ders_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkSave saves an edited course set; each item succeeds or fails
// independently.
func (c *Client) BulkSave(ctx context.Context, courses []catalog.Course) ([]BulkResult, error) {
	body := map[string]any{"courses": courses}
	var resp struct {
		Success bool         `json:"success"`
		Results []BulkResult `json:"results"`
		Error   string       `json:"error,omitempty"`
	}
	if err := c.postJSON(ctx, "/api/save-courses-to-db", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success && resp.Error != "" {
		return nil, &APIError{Status: http.StatusOK, Message: resp.Error}
	}
	return resp.Results, nil
}

// Conversion is the result of a DOCX→PDF conversion request.
type Conversion struct {
	Success bool   `json:"success"`
	PdfURL  string `json:"pdf_url"`
	Cached  bool   `json:"cached"`
	Message string `json:"message,omitempty"`
}

// ConvertDoc asks the backend to convert a DOCX/DOC file to PDF. The call is
// idempotent; Cached reports whether a prior result was reused.
func (c *Client) ConvertDoc(ctx context.Context, filePath string) (*Conversion, error) {
	body := map[string]string{"file_path": filePath}
	var conv Conversion
	if err := c.postJSON(ctx, "/api/convert-docx-to-pdf", body, &conv); err != nil {
		return nil, err
	}
	if !conv.Success {
		return nil, &APIError{Status: http.StatusOK, Message: nonEmpty(conv.Message, "conversion failed")}
	}
	return &conv, nil
}

// ImportUnits imports learning units from a source DBF document and returns
// how many were imported.
func (c *Client) ImportUnits(ctx context.Context, dersID int, dbfPath string) (int, error) {
	body := map[string]any{"ders_id": dersID, "dbf_file_path": dbfPath}
	var resp struct {
		Success       bool   `json:"success"`
		ImportedUnits int    `json:"imported_units"`
		Error         string `json:"error,omitempty"`
	}
	if err := c.postJSON(ctx, "/api/import-dbf-learning-units", body, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, &APIError{Status: http.StatusOK, Message: nonEmpty(resp.Error, "import failed")}
	}
	return resp.ImportedUnits, nil
}

// FetchCategory runs a plain (non-streaming) document-category fetch and
// returns the backend's updated/saved count.
func (c *Client) FetchCategory(ctx context.Context, kind string) (int, error) {
	var resp struct {
		UpdatedCount *int   `json:"updated_count"`
		SavedCount   *int   `json:"saved_count"`
		Error        string `json:"error,omitempty"`
	}
	if err := c.getJSON(ctx, "/api/get-"+kind, &resp); err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, &APIError{Status: http.StatusOK, Message: resp.Error}
	}
	switch {
	case resp.UpdatedCount != nil:
		return *resp.UpdatedCount, nil
	case resp.SavedCount != nil:
		return *resp.SavedCount, nil
	}
	return 0, nil
}

// RetryArchive re-runs extraction of a single failed archive. The raw JSON
// result is appended to the console log as-is.
func (c *Client) RetryArchive(ctx context.Context, alanAdi, rarFilename string) (json.RawMessage, error) {
	body := map[string]string{"alan_adi": alanAdi, "rar_filename": rarFilename}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal retry request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/dbf-retry-extract", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create retry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retry extract: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read retry response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Message: string(respBody)}
	}
	return json.RawMessage(respBody), nil
}

// FileURL returns the backend URL serving the given stored file path.
func (c *Client) FileURL(path string) string {
	return c.baseURL + "/api/files/" + url.PathEscape(path)
}

// OpenFile streams raw file bytes from the backend.
func (c *Client) OpenFile(ctx context.Context, path string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FileURL(path), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create file request: %w", err)
	}
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, "", &APIError{Status: resp.StatusCode, Message: string(body)}
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Non-2xx bodies usually carry {"error": …}; keep the server text.
		var appErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &appErr) == nil && (appErr.Error != "" || appErr.Message != "") {
			return &APIError{Status: resp.StatusCode, Message: nonEmpty(appErr.Error, appErr.Message)}
		}
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("backend error %d: %s", resp.StatusCode, respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "operation failed"
}
