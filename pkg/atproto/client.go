package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
)

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "bsky-to-gem/1.0"

// maxErrorBody caps how much of an error response is read
const maxErrorBody = 4096

// Client is an XRPC client bound to one service endpoint
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	logger     logger.Logger
}

// NewClient creates a client for baseURL. A zero timeout leaves the
// request unbounded apart from ctx.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if baseURL == "" {
		baseURL = DefaultServiceURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent": DefaultUserAgent,
			"Accept":     "application/json",
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log,
	}
}

// BaseURL returns the service endpoint the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHeaders sets multiple headers at once
func (c *Client) SetHeaders(headers map[string]string) {
	for key, value := range headers {
		c.headers[key] = value
	}
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errors.Error{
			Kind:    errors.KindNetwork,
			Op:      req.Method + " " + req.URL.Path,
			Message: "request failed",
			Err:     err,
		}
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)
	return resp, nil
}

// Get performs a GET request to the specified absolute URL
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errors.Error{
			Kind:    errors.KindInvalidInput,
			Message: "failed to create request",
			Err:     err,
		}
	}
	return c.doRequest(req)
}

// GetJSON performs a GET request and decodes the JSON response into target.
// The URL may point at any host, which lets the identity package reuse the
// client for DID document fetches.
func (c *Client) GetJSON(ctx context.Context, url string, target interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errors.Error{
			Kind:    errors.KindNetwork,
			Message: "failed to read response body",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return &errors.Error{
			Kind:    errors.KindParsing,
			Message: "failed to parse JSON",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	return nil
}

// checkResponseStatus maps a non-2xx response to a typed error, surfacing
// the XRPC error name and message when the body carries one
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	kind := errors.KindForStatus(resp.StatusCode)
	message := http.StatusText(resp.StatusCode)
	if message == "" {
		message = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var xrpcErr XRPCErrorBody
	if json.Unmarshal(raw, &xrpcErr) == nil && xrpcErr.Error != "" {
		message = xrpcErr.Error
		if xrpcErr.Message != "" {
			message += ": " + xrpcErr.Message
		}
	}

	url := ""
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}
	c.logger.WarnWithFields("XRPC error response", map[string]interface{}{
		"status": resp.StatusCode,
		"kind":   string(kind),
		"url":    url,
		"detail": message,
	})

	return &errors.Error{
		Kind:    kind,
		Message: message,
		Code:    resp.StatusCode,
	}
}

// ResolveHandle resolves handle to its DID
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	url := ResolveHandleURL(c.baseURL, handle)

	c.logger.DebugWithFields("resolving handle", map[string]interface{}{
		"handle": handle,
		"url":    url,
	})

	var response ResolveHandleResponse
	if err := c.GetJSON(ctx, url, &response); err != nil {
		return "", err
	}
	if response.DID == "" {
		return "", &errors.Error{
			Kind:    errors.KindParsing,
			Op:      ResolveHandleMethod,
			Message: "response carried no did",
		}
	}

	return response.DID, nil
}

// ListRecords fetches one page of records
func (c *Client) ListRecords(ctx context.Context, params ListRecordsParams) (*ListRecordsResponse, error) {
	if params.Repo == "" || params.Collection == "" {
		return nil, &errors.Error{
			Kind:    errors.KindInvalidInput,
			Op:      ListRecordsMethod,
			Message: "repo and collection are required",
		}
	}

	url := ListRecordsURL(c.baseURL, params)

	c.logger.DebugWithFields("listing records", map[string]interface{}{
		"repo":       params.Repo,
		"collection": params.Collection,
		"cursor":     params.Cursor,
		"url":        url,
	})

	var response ListRecordsResponse
	if err := c.GetJSON(ctx, url, &response); err != nil {
		return nil, err
	}

	return &response, nil
}
