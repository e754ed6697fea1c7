package davclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cyp0633/calevents/eventstore"
	"github.com/cyp0633/calevents/internal/interval"
	"github.com/cyp0633/calevents/internal/xml"
)

// FetchRange lists the events of a calendar overlapping r. Recurring
// events are returned once, as stored, whenever any occurrence overlaps.
func (c *Client) FetchRange(ctx context.Context, calendarID string, r interval.Range) ([]eventstore.Descriptor, error) {
	start, end := r.Start, r.End
	filter := xml.Filter{TimeRange: &xml.TimeRange{Start: &start}}
	// closed range, the time-range end is exclusive and second precise
	if r.End.Before(eventstore.MaxInstant) {
		end = end.Truncate(time.Second).Add(time.Second)
		filter.TimeRange.End = &end
	}
	return c.query(ctx, calendarID, xml.EventQuery(filter))
}

// FetchUID lists every stored event sharing uid: the master and its
// single-edit exceptions
func (c *Client) FetchUID(ctx context.Context, calendarID, uid string) ([]eventstore.Descriptor, error) {
	query := xml.EventQuery(xml.Filter{
		PropFilters: []xml.PropFilter{{Name: "UID", TextMatch: uid, Collation: "i;octet"}},
	})
	descs, err := c.query(ctx, calendarID, query)
	if err != nil {
		return nil, err
	}
	// text-match is a substring match
	matched := descs[:0]
	for _, desc := range descs {
		if desc.UID == uid {
			matched = append(matched, desc)
		}
	}
	return matched, nil
}

func (c *Client) query(ctx context.Context, calendarID string, query *xml.CalendarQuery) ([]eventstore.Descriptor, error) {
	ms, err := c.httpClient.DoREPORT(ctx, collectionHref(calendarID), 1, query.ToXML())
	if err != nil {
		return nil, fmt.Errorf("calendar-query on %s: %w", calendarID, err)
	}

	var descs []eventstore.Descriptor
	for _, resp := range ms.Responses {
		data := resp.PropText("calendar-data")
		if data == "" {
			continue
		}
		objectDescs, err := c.describeObject(calendarID, resp.Href, resp.PropText("getetag"), []byte(data))
		if err != nil {
			c.logger.Warn("skipping unreadable object", "href", resp.Href, "error", err)
			continue
		}
		descs = append(descs, objectDescs...)
	}
	c.logger.Debug("calendar-query complete", "calendar_id", calendarID, "objects", len(ms.Responses), "events", len(descs))
	return descs, nil
}

// CalendarTag returns the collection's change tag. It changes whenever any
// object in the calendar does; servers without getctag report an etag.
func (c *Client) CalendarTag(ctx context.Context, calendarID string) (string, error) {
	href := collectionHref(calendarID)
	resp, err := c.httpClient.DoPROPFIND(ctx, href, 0, "getctag", "getetag")
	if err != nil {
		return "", fmt.Errorf("failed to get calendar tag: %w", err)
	}
	for _, props := range resp.Resources {
		if props.CTag != "" {
			return props.CTag, nil
		}
		if props.Etag != "" {
			return props.Etag, nil
		}
	}
	return "", fmt.Errorf("calendar %s reports neither getctag nor getetag", calendarID)
}
