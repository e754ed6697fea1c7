package davclient

import (
	"context"
	"testing"
	"time"

	"github.com/cyp0633/calevents/internal/interval"
	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID(t *testing.T) {
	rid := time.Date(2024, 1, 8, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	id := eventID("/cal/work/a.ics", &rid)
	assert.Equal(t, "/cal/work/a.ics#20240108T090000Z", id)

	href, got, err := splitEventID(id)
	require.NoError(t, err)
	assert.Equal(t, "/cal/work/a.ics", href)
	require.NotNil(t, got)
	assert.True(t, got.Equal(rid))

	href, got, err = splitEventID("/cal/work/a.ics")
	require.NoError(t, err)
	assert.Equal(t, "/cal/work/a.ics", href)
	assert.Nil(t, got)

	_, _, err = splitEventID("/cal/work/a.ics#tomorrow")
	assert.Error(t, err)
}

func TestFetchRange(t *testing.T) {
	server := newFakeServer()
	master := weekly(vevent("series", monday))
	master.Props.Set(&ical.Prop{Name: ical.PropOrganizer, Params: ical.Params{}, Value: "mailto:Boss@example.com"})
	seed(t, server, "/cal/work/series.ics", master, exception("series", monday.AddDate(0, 0, 7), monday.AddDate(0, 0, 8)))
	seed(t, server, "/cal/work/lunch.ics", vevent("lunch", monday.Add(2*time.Hour)))
	seed(t, server, "/cal/home/other.ics", vevent("other", monday))

	client := NewDAVClient(server, WithSelfEmails("me@example.com"))
	descs, err := client.FetchRange(context.Background(), "/cal/work", interval.NewRange(monday, monday.AddDate(0, 1, 0)))
	require.NoError(t, err)
	require.Len(t, descs, 3)
	assert.Contains(t, server.calls, "REPORT /cal/work/")

	lunch := descs[0]
	assert.Equal(t, "/cal/work/lunch.ics", lunch.ID)
	assert.Equal(t, "/cal/work", lunch.CalendarID)
	assert.True(t, lunch.IsOrganizer, "events without organizer are ours")
	assert.Equal(t, monday.Add(2*time.Hour), lunch.Start)
	assert.NotEmpty(t, lunch.Revision)
	assert.NotEmpty(t, lunch.Payload)

	series := descs[1]
	assert.Equal(t, "/cal/work/series.ics", series.ID)
	assert.Equal(t, "FREQ=WEEKLY", series.RRule)
	assert.Equal(t, "boss@example.com", series.Author)
	assert.False(t, series.IsOrganizer)

	edit := descs[2]
	assert.Equal(t, "/cal/work/series.ics#20240108T100000Z", edit.ID)
	require.NotNil(t, edit.RecurrenceID)
	assert.True(t, edit.RecurrenceID.Equal(monday.AddDate(0, 0, 7)))
	assert.Equal(t, series.Revision, edit.Revision)
}

func TestFetchUID_ExactMatch(t *testing.T) {
	server := newFakeServer()
	seed(t, server, "/cal/work/a.ics", vevent("standup", monday))
	seed(t, server, "/cal/work/b.ics", vevent("standup-2", monday))

	client := NewDAVClient(server)
	descs, err := client.FetchUID(context.Background(), "/cal/work/", "standup")
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "/cal/work/a.ics", descs[0].ID)
}

func TestDecrypt(t *testing.T) {
	server := newFakeServer()
	master := weekly(vevent("series", monday))
	master.Children = append(master.Children, alarm("-PT15M"))
	edit := exception("series", monday.AddDate(0, 0, 7), monday.AddDate(0, 0, 7).Add(time.Hour))
	edit.Props.SetText(ical.PropSummary, "Moved standup")
	seed(t, server, "/cal/work/series.ics", master, edit)

	client := NewDAVClient(server, WithMemberID("member-1"))
	descs, err := client.FetchUID(context.Background(), "/cal/work", "series")
	require.NoError(t, err)
	require.Len(t, descs, 2)

	decrypted, err := client.Decrypt(context.Background(), descs[0])
	require.NoError(t, err)
	assert.Empty(t, decrypted.Component.Children, "alarms are personal data")
	require.Contains(t, decrypted.Personal, "member-1")
	assert.Len(t, decrypted.Personal["member-1"].Alarms, 1)

	decrypted, err = client.Decrypt(context.Background(), descs[1])
	require.NoError(t, err)
	summary, _ := decrypted.Component.Props.Text(ical.PropSummary)
	assert.Equal(t, "Moved standup", summary)
	assert.Nil(t, decrypted.Personal)

	missing := descs[1]
	other := monday.AddDate(0, 0, 14)
	missing.RecurrenceID = &other
	_, err = client.Decrypt(context.Background(), missing)
	assert.Error(t, err)

	missing.Payload = nil
	_, err = client.Decrypt(context.Background(), missing)
	assert.Error(t, err)
}

func TestCalendarTag(t *testing.T) {
	server := newFakeServer()
	client := NewDAVClient(server)

	before, err := client.CalendarTag(context.Background(), "/cal/work")
	require.NoError(t, err)
	seed(t, server, "/cal/work/a.ics", vevent("a", monday))
	after, err := client.CalendarTag(context.Background(), "/cal/work")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.Contains(t, server.calls, "PROPFIND /cal/work/")
}
