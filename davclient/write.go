package davclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/cyp0633/calevents/eventactions"
	"github.com/cyp0633/calevents/internal/httpclient"
	"github.com/cyp0633/calevents/internal/xml"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

// storedObject is a calendar object resource as last read from the server
type storedObject struct {
	href string
	etag string
	cal  *ical.Calendar
}

// CreateEvent stores a new VEVENT. A single-edit exception joins the object
// holding its series; anything else gets an object of its own.
func (c *Client) CreateEvent(ctx context.Context, calendarID, memberID string, comp *ical.Component) (eventactions.WriteResult, error) {
	uid, err := comp.Props.Text(ical.PropUID)
	if err != nil || uid == "" {
		return eventactions.WriteResult{}, fmt.Errorf("event without UID")
	}

	if rid := recurrenceIDOf(comp); rid != nil {
		obj, err := c.findObject(ctx, calendarID, uid)
		if err != nil {
			return eventactions.WriteResult{}, err
		}
		if obj != nil {
			if i := findEvent(obj.cal, rid); i >= 0 {
				obj.cal.Children[i] = comp
			} else {
				obj.cal.Children = append(obj.cal.Children, comp)
			}
			return c.store(ctx, calendarID, obj, comp)
		}
		c.logger.Debug("series object not found, storing exception alone", "calendar_id", calendarID, "uid", uid)
	}

	href, err := newObjectHref(calendarID)
	if err != nil {
		return eventactions.WriteResult{}, err
	}
	return c.store(ctx, calendarID, &storedObject{href: href, cal: newCalendar(comp)}, comp)
}

// UpdateEvent replaces the VEVENT named by eventID. Alarms already stored
// on it are kept when comp carries none.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, memberID, eventID string, comp *ical.Component) (eventactions.WriteResult, error) {
	href, rid, err := splitEventID(eventID)
	if err != nil {
		return eventactions.WriteResult{}, fmt.Errorf("malformed event ID %q: %w", eventID, err)
	}
	obj, err := c.getObject(ctx, href)
	if err != nil {
		return eventactions.WriteResult{}, err
	}

	i := findEvent(obj.cal, rid)
	if i < 0 {
		return eventactions.WriteResult{}, fmt.Errorf("event %s: %w", eventID, httpclient.ErrNotFound)
	}
	_, alarms := splitAlarms(obj.cal.Children[i])
	obj.cal.Children[i] = withAlarms(comp, alarms)
	return c.store(ctx, calendarID, obj, obj.cal.Children[i])
}

// DeleteEvent removes the VEVENT named by eventID. Removing the last VEVENT
// of an object deletes the object. Events already gone count as deleted.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	href, rid, err := splitEventID(eventID)
	if err != nil {
		return fmt.Errorf("malformed event ID %q: %w", eventID, err)
	}
	if rid == nil {
		return ignoreNotFound(c.httpClient.DoDELETE(ctx, href, ""))
	}

	obj, err := c.getObject(ctx, href)
	if err != nil {
		return ignoreNotFound(err)
	}
	i := findEvent(obj.cal, rid)
	if i < 0 {
		return nil
	}
	obj.cal.Children = append(obj.cal.Children[:i], obj.cal.Children[i+1:]...)
	if eventCount(obj.cal) == 0 {
		return ignoreNotFound(c.httpClient.DoDELETE(ctx, href, obj.etag))
	}

	data, err := c.encodeCalendar(obj.cal)
	if err != nil {
		return err
	}
	_, err = c.httpClient.DoPUT(ctx, href, obj.etag, data)
	return err
}

// SendReply sends nothing by itself. With implicit CalDAV scheduling the
// server delivers the reply once the attendee's changed PARTSTAT is stored,
// which only happens through the UPDATE action planned after this call. A
// reply whose plan is never executed does not reach the organizer.
func (c *Client) SendReply(ctx context.Context, partstat string, comp *ical.Component) error {
	uid, _ := comp.Props.Text(ical.PropUID)
	c.logger.Info("reply left to server scheduling", "uid", uid, "partstat", partstat)
	return ctx.Err()
}

// store writes obj and describes comp as stored
func (c *Client) store(ctx context.Context, calendarID string, obj *storedObject, comp *ical.Component) (eventactions.WriteResult, error) {
	data, err := c.encodeCalendar(obj.cal)
	if err != nil {
		return eventactions.WriteResult{}, err
	}
	etag, err := c.httpClient.DoPUT(ctx, obj.href, obj.etag, data)
	if err != nil {
		return eventactions.WriteResult{}, err
	}

	res := eventactions.WriteResult{
		EventID:  eventID(obj.href, recurrenceIDOf(comp)),
		Sequence: eventactions.Sequence(comp),
	}
	// without an etag the stored copy is unknown until the next fetch
	if etag != "" {
		desc, err := c.describe(calendarID, obj.href, etag, data, comp)
		if err == nil {
			res.Descriptor = &desc
		}
	}
	return res, nil
}

func (c *Client) getObject(ctx context.Context, href string) (*storedObject, error) {
	data, etag, err := c.httpClient.DoGET(ctx, href)
	if err != nil {
		return nil, err
	}
	cal, err := decodeCalendar(data)
	if err != nil {
		return nil, err
	}
	return &storedObject{href: href, etag: etag, cal: cal}, nil
}

// findObject locates the object storing events of uid, nil when none does
func (c *Client) findObject(ctx context.Context, calendarID, uid string) (*storedObject, error) {
	query := xml.EventQuery(xml.Filter{
		PropFilters: []xml.PropFilter{{Name: "UID", TextMatch: uid, Collation: "i;octet"}},
	})
	ms, err := c.httpClient.DoREPORT(ctx, collectionHref(calendarID), 1, query.ToXML())
	if err != nil {
		return nil, fmt.Errorf("calendar-query on %s: %w", calendarID, err)
	}
	for _, resp := range ms.Responses {
		cal, err := decodeCalendar([]byte(resp.PropText("calendar-data")))
		if err != nil {
			continue
		}
		for _, child := range cal.Children {
			if got, _ := child.Props.Text(ical.PropUID); child.Name == ical.CompEvent && got == uid {
				return &storedObject{href: resp.Href, etag: resp.PropText("getetag"), cal: cal}, nil
			}
		}
	}
	return nil, nil
}

func newObjectHref(calendarID string) (string, error) {
	base, err := url.Parse(collectionHref(calendarID))
	if err != nil {
		return "", fmt.Errorf("failed to parse collection URL: %w", err)
	}
	ref, err := url.Parse(uuid.New().String() + ".ics")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, httpclient.ErrNotFound) {
		return nil
	}
	return err
}
