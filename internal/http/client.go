package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/handiism/songmesh/internal/songerr"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client wraps HTTP operations against a songmesh node.
//
// Client provides:
//   - JSON and multipart requests with per-call timeouts
//   - Decoding of {"code","message"} error bodies into songerr errors
//   - An optional outbound rate limit
//   - File download with progress tracking
//
// Example usage:
//
//	client := NewClient(WithBaseURL("http://localhost:2790"))
//
//	var out struct{ Link string `json:"link"` }
//	err := client.PostJSON(ctx, "/client/get-song-link", in, &out, 30*time.Second)
//
//	// Download file with progress
//	err = client.DownloadFile(ctx, out.Link, "/path/to/file.mp3", func(written, total int64) {
//	    fmt.Printf("%d / %d\n", written, total)
//	})
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the address relative paths are resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a new HTTP client.
//
// The underlying client has no global timeout; every call is bounded by its
// context or by the timeout passed to it.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		userAgent:  "songmesh",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves path against the base address. Absolute URLs pass through.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// ProgressWriter wraps a writer to track download progress.
//
// Example:
//
//	pw := &ProgressWriter{
//	    Writer: file,
//	    Total:  contentLength,
//	    OnUpdate: func(written, total int64) {
//	        fmt.Printf("%d / %d bytes\n", written, total)
//	    },
//	}
//	io.Copy(pw, response.Body)
type ProgressWriter struct {
	// Writer is the underlying writer to write data to.
	Writer io.Writer

	// Total is the expected total bytes (from Content-Length header).
	Total int64

	// Written is the current number of bytes written.
	Written int64

	// OnUpdate is called after each Write with current progress.
	OnUpdate func(written, total int64)
}

// Write implements io.Writer, tracking progress and calling OnUpdate.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// PostJSON sends in as a JSON body and decodes the response into out.
//
// A positive timeout bounds the whole exchange. Error responses are turned
// into songerr errors; deadline failures become timeout errors.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any, timeout time.Duration) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return classify(c.doJSON(req, out), path)
}

// PostMultipart streams body as a single multipart file field and decodes
// the response into out.
func (c *Client) PostMultipart(ctx context.Context, path, field, filename, contentType string, body io.Reader, out any, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	err = c.doJSON(req, out)
	pr.Close()
	return classify(err, path)
}

// Get performs a GET request and returns the response body as bytes.
//
// Example:
//
//	data, err := client.Get(ctx, "http://node:2790/cover/<hash>")
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Download(ctx, url, &buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetFileSize returns the size of a file at the given URL via HEAD request.
func (c *Client) GetFileSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.URL(url), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.do(req)
	if err != nil {
		return 0, classify(err, "size lookup")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, songerr.Transfer(fmt.Sprintf("HTTP %d for %s", resp.StatusCode, url), nil)
	}
	if resp.ContentLength < 0 {
		return 0, songerr.Transfer("no Content-Length header for "+url, nil)
	}

	return resp.ContentLength, nil
}

// Download streams the body at url into w with an optional progress callback.
func (c *Client) Download(ctx context.Context, url string, w io.Writer, onProgress func(written, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(url), nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return classify(err, "download")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	writer := w
	if onProgress != nil {
		writer = &ProgressWriter{
			Writer:   w,
			Total:    resp.ContentLength,
			OnUpdate: onProgress,
		}
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return classify(err, "download")
	}
	return nil
}

// DownloadFile downloads a file to the specified path with optional progress callback.
//
// The content is streamed directly to disk. A partially written file is
// removed when the transfer fails.
func (c *Client) DownloadFile(ctx context.Context, url, destPath string, onProgress func(written, total int64)) error {
	file, err := os.Create(destPath)
	if err != nil {
		return err
	}

	err = c.Download(ctx, url, file, onProgress)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return err
	}
	return nil
}

// DownloadBytes downloads a file and returns the bytes in memory.
//
// Use this for small files like cover art images. For large files use
// DownloadFile to stream directly to disk.
func (c *Client) DownloadBytes(ctx context.Context, url string) ([]byte, error) {
	return c.Get(ctx, url)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		// Wait fails early when the deadline would pass before a token frees up.
		if err := c.limiter.Wait(req.Context()); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, songerr.Timeout("rate limit wait", err)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	return c.httpClient.Do(req)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return songerr.Transfer("decode response from "+req.URL.Path, err)
	}
	return nil
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body ErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Code != "" {
		return songerr.FromCode(body.Code, body.Message)
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = resp.Status
	}
	return songerr.Transfer(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg), nil)
}

// classify maps a failed exchange onto a songerr kind. Deadlines become
// timeouts, cancellation passes through and anything else unclassified is a
// transfer error.
func classify(err error, phase string) error {
	err = songerr.NormalizeTimeout(err, phase)
	if err == nil || songerr.KindOf(err) != "" || errors.Is(err, context.Canceled) {
		return err
	}
	return songerr.Transfer(phase+" failed", err)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// ErrBudgetExhausted is returned by callers when a RequestTimer has no time
// left for the next phase.
var ErrBudgetExhausted = errors.New("request budget exhausted")

// RequestTimer subdivides one total budget across sequential phases.
//
// Each call returns the time left, capped by the smallest of the given
// limits. A result of zero or less means the budget is spent.
//
//	timer := RequestTimer(5 * time.Minute)
//	linkTimeout := timer(30 * time.Second) // at most 30s
//	transferTimeout := timer()             // whatever remains
func RequestTimer(total time.Duration) func(limits ...time.Duration) time.Duration {
	return newRequestTimer(total, time.Now)
}

func newRequestTimer(total time.Duration, now func() time.Time) func(limits ...time.Duration) time.Duration {
	deadline := now().Add(total)
	return func(limits ...time.Duration) time.Duration {
		left := deadline.Sub(now())
		for _, l := range limits {
			if l > 0 && l < left {
				left = l
			}
		}
		return left
	}
}
