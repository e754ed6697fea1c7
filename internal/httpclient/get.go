package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DoGET fetches a calendar object resource along with its etag
func (c *httpClientWrapper) DoGET(ctx context.Context, urlStr string) ([]byte, string, error) {
	header := http.Header{}
	header.Set("Accept", "text/calendar")

	resp, err := c.do(ctx, http.MethodGet, urlStr, nil, header)
	if err != nil {
		return nil, "", err
	}
	if err := expect(resp, http.StatusOK); err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body of %s: %w", urlStr, err)
	}
	return data, resp.Header.Get("ETag"), nil
}
