package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/beevik/etree"
	"github.com/cyp0633/calevents/internal/xml"
)

// DoREPORT executes a CalDAV REPORT request
func (c *httpClientWrapper) DoREPORT(ctx context.Context, urlStr string, depth int, query *etree.Document) (*xml.MultistatusResponse, error) {
	c.logger.Debug("starting REPORT request", "url", urlStr, "depth", depth)

	body, err := query.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal REPORT query: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/xml; charset=utf-8")
	header.Set("Depth", strconv.Itoa(depth))

	resp, err := c.do(ctx, "REPORT", urlStr, body, header)
	if err != nil {
		return nil, err
	}
	if err := expect(resp, http.StatusMultiStatus, http.StatusOK); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	multiStatus, err := readMultistatus(resp.Body)
	if err != nil {
		c.logger.Debug("failed to decode response", "error", err)
		return nil, err
	}

	c.logger.Debug("REPORT request complete", "response_count", len(multiStatus.Responses))
	return multiStatus, nil
}
