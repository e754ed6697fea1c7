package davclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/cyp0633/calevents/internal/httpclient"
	"github.com/cyp0633/calevents/internal/xml"
	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/require"
)

type storedResource struct {
	data []byte
	etag string
}

// fakeServer is an in-memory CalDAV collection behind HttpClientWrapper
type fakeServer struct {
	mu        sync.Mutex
	resources map[string]storedResource
	revision  int
	calls     []string
	noEtag    bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{resources: make(map[string]storedResource)}
}

func (s *fakeServer) put(href string, data []byte) string {
	s.revision++
	etag := fmt.Sprintf(`"%d"`, s.revision)
	s.resources[href] = storedResource{data: data, etag: etag}
	return etag
}

func (s *fakeServer) DoPROPFIND(_ context.Context, url string, depth int, props ...string) (*httpclient.PropfindResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "PROPFIND "+url)
	return &httpclient.PropfindResponse{Resources: map[string]httpclient.ResourceProps{
		url: {IsCalendar: true, CTag: fmt.Sprintf("ctag-%d", s.revision)},
	}}, nil
}

// DoREPORT answers calendar-queries; a UID text-match is honoured, time
// ranges are not
func (s *fakeServer) DoREPORT(_ context.Context, url string, depth int, query *etree.Document) (*xml.MultistatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "REPORT "+url)

	var uid string
	if match := query.FindElement("//prop-filter[@name='UID']/text-match"); match != nil {
		uid = match.Text()
	}

	hrefs := make([]string, 0, len(s.resources))
	for href := range s.resources {
		if strings.HasPrefix(href, url) {
			hrefs = append(hrefs, href)
		}
	}
	sort.Strings(hrefs)

	ms := &xml.MultistatusResponse{}
	for _, href := range hrefs {
		res := s.resources[href]
		if uid != "" && !strings.Contains(string(res.data), "UID:"+uid) {
			continue
		}
		ms.Responses = append(ms.Responses, xml.Response{
			Href: href,
			PropStats: []xml.PropStat{{
				Status: "HTTP/1.1 200 OK",
				Props: []xml.Property{
					{Name: "getetag", Namespace: xml.DAV, TextContent: res.etag},
					{Name: "calendar-data", Namespace: xml.CalDAV, TextContent: string(res.data)},
				},
			}},
		})
	}
	return ms, nil
}

func (s *fakeServer) DoGET(_ context.Context, url string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "GET "+url)
	res, ok := s.resources[url]
	if !ok {
		return nil, "", &httpclient.StatusError{Method: "GET", URL: url, Code: 404}
	}
	return res.data, res.etag, nil
}

func (s *fakeServer) DoPUT(_ context.Context, url string, etag string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "PUT "+url)
	res, exists := s.resources[url]
	if (etag == "" && exists) || (etag != "" && res.etag != etag) {
		return "", &httpclient.StatusError{Method: "PUT", URL: url, Code: 412}
	}
	newEtag := s.put(url, data)
	if s.noEtag {
		return "", nil
	}
	return newEtag, nil
}

func (s *fakeServer) DoDELETE(_ context.Context, url string, etag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "DELETE "+url)
	res, ok := s.resources[url]
	if !ok {
		return &httpclient.StatusError{Method: "DELETE", URL: url, Code: 404}
	}
	if etag != "" && res.etag != etag {
		return &httpclient.StatusError{Method: "DELETE", URL: url, Code: 412}
	}
	delete(s.resources, url)
	return nil
}

// stored decodes the object at href
func (s *fakeServer) stored(t *testing.T, href string) *ical.Calendar {
	t.Helper()
	s.mu.Lock()
	res, ok := s.resources[href]
	s.mu.Unlock()
	require.True(t, ok, "no object at %s", href)
	cal, err := decodeCalendar(res.data)
	require.NoError(t, err)
	return cal
}

var monday = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func vevent(uid string, start time.Time) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, uid)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, monday)
	comp.Props.SetDateTime(ical.PropDateTimeStart, start)
	comp.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(time.Hour))
	comp.Props.SetText(ical.PropSummary, "Standup")
	return comp
}

func weekly(comp *ical.Component) *ical.Component {
	prop := ical.NewProp(ical.PropRecurrenceRule)
	prop.Value = "FREQ=WEEKLY"
	comp.Props.Set(prop)
	return comp
}

func exception(uid string, rid, start time.Time) *ical.Component {
	comp := vevent(uid, start)
	comp.Props.SetDateTime(ical.PropRecurrenceID, rid)
	return comp
}

func alarm(trigger string) *ical.Component {
	comp := ical.NewComponent(ical.CompAlarm)
	comp.Props.SetText(ical.PropAction, "DISPLAY")
	comp.Props.SetText(ical.PropDescription, "Reminder")
	prop := ical.NewProp(ical.PropTrigger)
	prop.Value = trigger
	comp.Props.Set(prop)
	return comp
}

// seed stores an object holding comps and returns its href
func seed(t *testing.T, s *fakeServer, href string, comps ...*ical.Component) string {
	t.Helper()
	cal := ical.NewCalendar()
	cal.Children = append(cal.Children, comps...)
	c := NewDAVClient(s)
	data, err := c.encodeCalendar(cal)
	require.NoError(t, err)
	s.mu.Lock()
	s.put(href, data)
	s.mu.Unlock()
	return href
}
