package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/xid"
)

// requestIDHeader is read by the server's request ID middleware, so every
// retry of one call shares a log correlation ID.
const requestIDHeader = "X-Request-Id"

type HTTPOptions struct {
	BaseURL          string
	HTTPClient       *http.Client
	RetryPolicy      RetryPolicy
	UserAgent        string
	MaxResponseBytes uint64
}

// HTTPClient talks to the billing API served by internal/server.
type HTTPClient struct {
	baseURL          *url.URL
	httpClient       *http.Client
	retry            *retrier
	userAgent        string
	maxResponseBytes uint64
}

type HTTPError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return "request failed"
	}
	return e.Message
}

// Unwrap lets a 503 match ErrUnavailable.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusServiceUnavailable {
		return ErrUnavailable
	}
	return nil
}

type requestSpec struct {
	method     string
	path       string
	query      url.Values
	body       []byte
	idempotent bool
}

func NewHTTPClient(opts HTTPOptions) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, ErrInvalidArgument
	}
	if opts.HTTPClient == nil {
		return nil, ErrInvalidArgument
	}
	if opts.MaxResponseBytes == 0 {
		return nil, ErrInvalidArgument
	}
	if err := opts.RetryPolicy.Validate(); err != nil {
		return nil, err
	}

	parsed, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		baseURL:          parsed,
		httpClient:       opts.HTTPClient,
		retry:            newRetrier(opts.RetryPolicy),
		userAgent:        opts.UserAgent,
		maxResponseBytes: opts.MaxResponseBytes,
	}, nil
}

func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// doJSON sends spec and decodes a 2xx JSON body into out.
func (c *HTTPClient) doJSON(ctx context.Context, spec requestSpec, out any) error {
	if ctx == nil {
		return ErrInvalidArgument
	}
	requestID := xid.New().String()
	return c.retry.run(ctx, spec.idempotent, func() error {
		req, err := c.buildRequest(ctx, spec)
		if err != nil {
			return err
		}
		req.Header.Set(requestIDHeader, requestID)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := c.readResponseBody(resp)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := c.readHTTPError(resp.StatusCode, body)
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				httpErr.RequestID = requestID
			}
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return ErrRequestFailed
		}
		return nil
	})
}

func (c *HTTPClient) buildRequest(ctx context.Context, spec requestSpec) (*http.Request, error) {
	var body io.Reader
	if spec.body != nil {
		body = bytes.NewReader(spec.body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, c.buildURL(spec.path, spec.query), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if spec.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *HTTPClient) readHTTPError(status int, body []byte) error {
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err == nil {
		if message, ok := payload["error"]; ok {
			return c.mapHTTPError(status, message)
		}
	}
	return c.mapHTTPError(status, string(body))
}

func (c *HTTPClient) readResponseBody(resp *http.Response) ([]byte, error) {
	reader := io.LimitReader(resp.Body, int64(c.maxResponseBytes))
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if uint64(len(body)) >= c.maxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

func (c *HTTPClient) buildURL(pathSuffix string, query url.Values) string {
	// pathSuffix is already escaped; Path holds the decoded form and
	// RawPath keeps escapes such as %2F intact.
	base := *c.baseURL
	raw := joinURLPath(base.EscapedPath(), pathSuffix)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	base.Path = decoded
	base.RawPath = raw
	if query != nil {
		base.RawQuery = query.Encode()
	}
	return base.String()
}

func joinURLPath(basePath string, suffix string) string {
	basePath = strings.TrimSuffix(basePath, "/")
	suffix = strings.TrimPrefix(suffix, "/")

	if basePath == "" {
		return "/" + suffix
	}
	if suffix == "" {
		return basePath
	}
	return basePath + "/" + suffix
}

func (c *HTTPClient) mapHTTPError(status int, message string) error {
	switch status {
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(message), "out of range") {
			return ErrOutOfRange
		}
		return ErrInvalidArgument
	case http.StatusNotFound:
		if strings.Contains(strings.ToLower(message), "customer") {
			return ErrCustomerNotFound
		}
		return ErrUnsupported
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return ErrUnsupported
	default:
		return &HTTPError{StatusCode: status, Message: message}
	}
}
