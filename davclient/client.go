// Package davclient connects the event cache and the action planner to a
// CalDAV server. Calendars are identified by their collection href and
// events by their object href; a single-edit exception stored inside the
// same object gets "#" and its recurrence-id appended.
package davclient

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cyp0633/calevents/eventactions"
	"github.com/cyp0633/calevents/eventstore"
	"github.com/cyp0633/calevents/internal/httpclient"
)

const prodID = "-//github.com/cyp0633/calevents//NONSGML v1.0//EN"

// Client implements eventstore.Fetcher, eventstore.Decrypter and
// eventactions.Writer on top of CalDAV.
type Client struct {
	httpClient httpclient.HttpClientWrapper
	selfEmails []string
	memberID   string
	logger     *slog.Logger
	now        func() time.Time
}

var (
	_ eventstore.Fetcher   = (*Client)(nil)
	_ eventstore.Decrypter = (*Client)(nil)
	_ eventactions.Writer  = (*Client)(nil)
)

// Option configures a Client
type Option func(*Client)

// WithSelfEmails sets the addresses that identify the user as organizer
func WithSelfEmails(emails ...string) Option {
	return func(c *Client) { c.selfEmails = append(c.selfEmails, emails...) }
}

// WithMemberID sets the member personal data such as alarms is filed under
func WithMemberID(id string) Option {
	return func(c *Client) { c.memberID = id }
}

// WithLogger sets the client's logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewDAVClient creates a client on an existing transport wrapper
func NewDAVClient(httpClient httpclient.HttpClientWrapper, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial creates a client talking to serverURL with basic auth
func Dial(serverURL, username, password string, opts ...Option) (*Client, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	c := NewDAVClient(nil, opts...)
	transport := httpclient.NewBasicAuthTransport(username, password, http.DefaultTransport, c.logger)
	wrapper, err := httpclient.NewHttpClientWrapper(&http.Client{Transport: transport, Timeout: time.Minute}, *base, c.logger)
	if err != nil {
		return nil, err
	}
	c.httpClient = wrapper
	return c, nil
}

// isSelf reports whether an ORGANIZER or ATTENDEE value is one of ours
func (c *Client) isSelf(calAddress string) bool {
	email := strings.TrimPrefix(strings.ToLower(calAddress), "mailto:")
	for _, self := range c.selfEmails {
		if strings.EqualFold(self, email) {
			return true
		}
	}
	return false
}

const ridFormat = "20060102T150405Z"

// eventID names a VEVENT stored in the object at href
func eventID(href string, recurrenceID *time.Time) string {
	if recurrenceID == nil {
		return href
	}
	return href + "#" + recurrenceID.UTC().Format(ridFormat)
}

// splitEventID is the inverse of eventID
func splitEventID(id string) (href string, recurrenceID *time.Time, err error) {
	i := strings.LastIndexByte(id, '#')
	if i < 0 {
		return id, nil, nil
	}
	rid, err := time.Parse(ridFormat, id[i+1:])
	if err != nil {
		return "", nil, err
	}
	return id[:i], &rid, nil
}

// collectionHref makes sure a calendar href ends with a slash so object
// names resolve inside it
func collectionHref(calendarID string) string {
	if strings.HasSuffix(calendarID, "/") {
		return calendarID
	}
	return calendarID + "/"
}
