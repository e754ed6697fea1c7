package httpclient

import (
	"context"
	"net/http"
)

// DoDELETE sends a DELETE request with If-Match header for optimistic locking
func (c *httpClientWrapper) DoDELETE(ctx context.Context, urlStr string, etag string) error {
	c.logger.Debug("starting DELETE request", "url", urlStr, "etag", etag)

	header := http.Header{}
	if etag != "" {
		header.Set("If-Match", etag)
	}

	resp, err := c.do(ctx, http.MethodDelete, urlStr, nil, header)
	if err != nil {
		return err
	}
	if err := expect(resp, http.StatusNoContent, http.StatusOK); err != nil {
		c.logger.Debug("unexpected status code", "status", resp.Status)
		return err
	}
	resp.Body.Close()

	c.logger.Debug("DELETE request complete", "status", resp.Status)
	return nil
}
