// Package client executes test cases against a backend under test and talks
// to the backend's /admin/* endpoints for reset and seeding.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// Options configure the transport.
type Options struct {
	Timeout time.Duration
	// Retries is the number of extra attempts after a connection failure.
	// Responses are never retried, whatever their status.
	Retries int
	// AdminURL overrides the base URL for /admin/* calls.
	AdminURL string
	Logger   zerolog.Logger
}

// Client issues HTTP requests against one backend.
type Client struct {
	BaseURL  string
	AdminURL string

	http *http.Client
	log  zerolog.Logger
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = max(opts.Retries, 0)
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient = &http.Client{Timeout: opts.Timeout}
	rc.Logger = leveledLogger{opts.Logger}
	rc.CheckRetry = retryConnectionErrors

	admin := opts.AdminURL
	if admin == "" {
		admin = baseURL
	}

	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminURL: strings.TrimRight(admin, "/"),
		http:     rc.StandardClient(),
		log:      opts.Logger,
	}
}

// retryConnectionErrors retries transport failures only. A 5xx is a
// legitimate answer to judge, not a reason to ask again.
func retryConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Execute sends the request described by tc and builds the Result from the
// response envelope. An error means no usable result was obtained.
func (c *Client) Execute(ctx context.Context, tc *testcase.TestCase) (*testcase.Result, error) {
	method := tc.HTTPMethod()
	target := c.resolve(tc.URL)

	var body io.Reader
	if tc.Body != nil {
		payload, err := json.Marshal(tc.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	elapsed := time.Since(start)

	c.log.Debug().
		Int("case_id", tc.ID).
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Msg("request complete")

	res, err := ParseResponse(resp.StatusCode, raw)
	if err != nil {
		return nil, err
	}
	res.Duration = elapsed
	return res, nil
}

// ParseResponse builds a Result from a status code and raw envelope body.
//
// Records come from the envelope's "data" member: an array yields one
// record per object, a single object yields one record. A bare top-level
// array is accepted as the record list. warnings, requestWarnings and errors
// may each be a count or a list.
func ParseResponse(status int, raw []byte) (*testcase.Result, error) {
	res := &testcase.Result{StatusCode: status, RawResponseBody: raw}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return res, nil
	}
	if !gjson.ValidBytes(trimmed) {
		if status >= http.StatusBadRequest {
			return res, nil
		}
		return nil, fmt.Errorf("response body is not JSON (status %d)", status)
	}

	doc := gjson.ParseBytes(trimmed)
	data := doc.Get("data")
	if doc.IsArray() {
		data = doc
	}

	switch {
	case data.IsArray():
		for _, item := range data.Array() {
			if !item.IsObject() {
				continue
			}
			rec, err := decodeRecord(item.Raw)
			if err != nil {
				return nil, err
			}
			res.Data = append(res.Data, rec)
		}
	case data.IsObject():
		rec, err := decodeRecord(data.Raw)
		if err != nil {
			return nil, err
		}
		res.Data = []map[string]any{rec}
	}

	if doc.IsObject() {
		res.Warnings = count(doc.Get("warnings"))
		res.RequestWarnings = count(doc.Get("requestWarnings"))
		res.Errors = count(doc.Get("errors"))
	}
	return res, nil
}

func decodeRecord(raw string) (map[string]any, error) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

func count(r gjson.Result) int {
	switch {
	case r.IsArray():
		return len(r.Array())
	case r.Type == gjson.Number:
		return int(r.Int())
	}
	return 0
}

func (c *Client) resolve(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return c.BaseURL + "/" + strings.TrimLeft(u, "/")
}

// Health checks GET /admin/health. Returns (ok, response body or error message).
func (c *Client) Health(ctx context.Context) (bool, string) {
	status, body, err := c.admin(ctx, http.MethodGet, "/admin/health", nil)
	if err != nil {
		return false, err.Error()
	}
	if status == http.StatusOK {
		return true, body
	}
	return false, fmt.Sprintf("status %d: %s", status, body)
}

// Reset calls POST /admin/reset on the backend.
func (c *Client) Reset(ctx context.Context) error {
	status, body, err := c.admin(ctx, http.MethodPost, "/admin/reset", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("reset returned status %d: %s", status, body)
	}
	return nil
}

// Seed POSTs the contents of a JSON file to /admin/state on the backend.
func (c *Client) Seed(ctx context.Context, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	status, body, err := c.admin(ctx, http.MethodPost, "/admin/state", data)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("seed failed (status %d): %s", status, body)
	}
	return nil
}

// State fetches the backend's state snapshot from GET /admin/state.
func (c *Client) State(ctx context.Context) ([]byte, error) {
	status, body, err := c.admin(ctx, http.MethodGet, "/admin/state", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("state returned status %d: %s", status, body)
	}
	return []byte(body), nil
}

func (c *Client) admin(ctx context.Context, method, path string, payload []byte) (int, string, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.AdminURL+path, body)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(b)), nil
}
