package httpclient

import (
	"context"
	"net/http"
)

func (c *httpClientWrapper) DoPUT(ctx context.Context, urlStr string, etag string, data []byte) (newEtag string, err error) {
	c.logger.Debug("starting PUT request",
		"url", urlStr,
		"etag", etag,
		"data_length", len(data))

	header := http.Header{}
	header.Set("Content-Type", "text/calendar; charset=utf-8")
	if etag != "" {
		header.Set("If-Match", etag)
	} else {
		header.Set("If-None-Match", "*")
	}

	resp, err := c.do(ctx, http.MethodPut, urlStr, data, header)
	if err != nil {
		return "", err
	}
	if err := expect(resp, http.StatusOK, http.StatusCreated, http.StatusNoContent); err != nil {
		c.logger.Debug("unexpected status code", "status", resp.Status)
		return "", err
	}
	resp.Body.Close()

	newEtag = resp.Header.Get("ETag")
	c.logger.Debug("PUT request complete", "status", resp.Status, "new_etag", newEtag)
	return newEtag, nil
}
