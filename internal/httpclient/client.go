package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/beevik/etree"
	"github.com/cyp0633/calevents/internal/xml"
)

var (
	// ErrNotFound is wrapped by StatusError for 404 and 410 replies
	ErrNotFound = errors.New("resource not found")
	// ErrPreconditionFailed is wrapped by StatusError when an If-Match or
	// If-None-Match condition does not hold
	ErrPreconditionFailed = errors.New("precondition failed")
)

// StatusError is an unexpected HTTP status
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	}
	return nil
}

// HttpClientWrapper wraps http.Client with CalDAV-specific functionality
type HttpClientWrapper interface {
	DoPROPFIND(ctx context.Context, url string, depth int, props ...string) (*PropfindResponse, error)
	DoREPORT(ctx context.Context, url string, depth int, query *etree.Document) (*xml.MultistatusResponse, error)
	DoGET(ctx context.Context, url string) (data []byte, etag string, err error)
	// DoPUT writes data. An empty etag asks the server to create the resource
	// and fail if it exists.
	DoPUT(ctx context.Context, url string, etag string, data []byte) (newEtag string, err error)
	DoDELETE(ctx context.Context, url string, etag string) error
}

type httpClientWrapper struct {
	client  *http.Client
	baseURL url.URL
	logger  *slog.Logger
}

// resolveURL resolves a URL string against the base URL
func (c *httpClientWrapper) resolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// NewHttpClientWrapper creates a new client wrapper with basic auth and logging
func NewHttpClientWrapper(client *http.Client, baseURL url.URL, logger *slog.Logger) (HttpClientWrapper, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClientWrapper{client: client, baseURL: baseURL, logger: logger}, nil
}

// do sends one request. The caller owns the response body.
func (c *httpClientWrapper) do(ctx context.Context, method, urlStr string, body []byte, header http.Header) (*http.Response, error) {
	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		c.logger.Debug("failed to resolve URL", "url", urlStr, "error", err)
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolvedURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "url", resolvedURL.String(), "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, resolvedURL.String(), err)
	}
	c.logger.Debug("received response", "method", method, "url", resolvedURL.String(), "status", resp.Status)
	return resp, nil
}

// expect closes the body and returns a StatusError unless the reply has one
// of the accepted codes
func expect(resp *http.Response, codes ...int) error {
	for _, code := range codes {
		if resp.StatusCode == code {
			return nil
		}
	}
	if resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	statusErr := &StatusError{Code: resp.StatusCode}
	if resp.Request != nil {
		statusErr.Method = resp.Request.Method
		statusErr.URL = resp.Request.URL.String()
	}
	return statusErr
}

func readMultistatus(body io.Reader) (*xml.MultistatusResponse, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(body); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}
	var ms xml.MultistatusResponse
	if err := ms.Parse(doc); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}
	return &ms, nil
}
