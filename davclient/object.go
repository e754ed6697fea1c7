package davclient

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/cyp0633/calevents/eventstore"
	"github.com/cyp0633/calevents/recurrence"
	"github.com/emersion/go-ical"
)

// decodeCalendar parses one calendar object resource
func decodeCalendar(data []byte) (*ical.Calendar, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar object: %w", err)
	}
	return cal, nil
}

// encodeCalendar serializes a calendar, filling in the properties the
// encoder insists on
func (c *Client) encodeCalendar(cal *ical.Calendar) ([]byte, error) {
	if cal.Props.Get(ical.PropProductID) == nil {
		cal.Props.SetText(ical.PropProductID, prodID)
	}
	if cal.Props.Get(ical.PropVersion) == nil {
		cal.Props.SetText(ical.PropVersion, "2.0")
	}
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent && child.Props.Get(ical.PropDateTimeStamp) == nil {
			child.Props.SetDateTime(ical.PropDateTimeStamp, c.now().UTC())
		}
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// newCalendar wraps a single VEVENT in a VCALENDAR
func newCalendar(comp *ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Children = append(cal.Children, comp)
	return cal
}

func recurrenceIDOf(comp *ical.Component) *time.Time {
	return recurrence.ExtractRecurrenceInfoFromComponent(comp).RecurrenceID
}

func sameRecurrenceID(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// findEvent returns the index of the VEVENT with the given recurrence-id
func findEvent(cal *ical.Calendar, recurrenceID *time.Time) int {
	for i, child := range cal.Children {
		if child.Name == ical.CompEvent && sameRecurrenceID(recurrenceIDOf(child), recurrenceID) {
			return i
		}
	}
	return -1
}

func eventCount(cal *ical.Calendar) int {
	n := 0
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent {
			n++
		}
	}
	return n
}

// splitAlarms returns a copy of comp without VALARMs, and the alarms
func splitAlarms(comp *ical.Component) (*ical.Component, []*ical.Component) {
	stripped := &ical.Component{Name: comp.Name, Props: comp.Props}
	var alarms []*ical.Component
	for _, child := range comp.Children {
		if child.Name == ical.CompAlarm {
			alarms = append(alarms, child)
			continue
		}
		stripped.Children = append(stripped.Children, child)
	}
	return stripped, alarms
}

// withAlarms returns comp carrying the given alarms unless it has its own
func withAlarms(comp *ical.Component, alarms []*ical.Component) *ical.Component {
	if len(alarms) == 0 {
		return comp
	}
	for _, child := range comp.Children {
		if child.Name == ical.CompAlarm {
			return comp
		}
	}
	merged := &ical.Component{Name: comp.Name, Props: comp.Props}
	merged.Children = append(append(merged.Children, comp.Children...), alarms...)
	return merged
}

// describe builds the descriptor of one VEVENT of an object resource
func (c *Client) describe(calendarID, href, etag string, data []byte, comp *ical.Component) (eventstore.Descriptor, error) {
	start, end, ok := recurrence.ExtractBasicTimeInfoFromComponent(comp)
	if !ok {
		return eventstore.Descriptor{}, fmt.Errorf("%s: %w", href, recurrence.ErrInvalidComponent)
	}
	info := recurrence.ExtractRecurrenceInfoFromComponent(comp)

	desc := eventstore.Descriptor{
		ID:           eventID(href, info.RecurrenceID),
		CalendarID:   calendarID,
		Revision:     etag,
		Start:        start.UTC(),
		End:          end.UTC(),
		FullDay:      recurrence.IsAllDay(comp),
		RRule:        info.RRULE,
		ExDates:      info.EXDATE,
		RecurrenceID: info.RecurrenceID,
		Payload:      data,
		IsOrganizer:  true,
	}
	if uid, err := comp.Props.Text(ical.PropUID); err == nil {
		desc.UID = uid
	}
	if organizer := comp.Props.Get(ical.PropOrganizer); organizer != nil && organizer.Value != "" {
		desc.Author = strings.TrimPrefix(strings.ToLower(organizer.Value), "mailto:")
		desc.IsOrganizer = c.isSelf(organizer.Value)
	}
	return desc, nil
}

// describeObject builds descriptors for every VEVENT of an object resource.
// Malformed events are logged and skipped.
func (c *Client) describeObject(calendarID, href, etag string, data []byte) ([]eventstore.Descriptor, error) {
	cal, err := decodeCalendar(data)
	if err != nil {
		return nil, err
	}
	var descs []eventstore.Descriptor
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		desc, err := c.describe(calendarID, href, etag, data, child)
		if err != nil {
			c.logger.Warn("skipping malformed event", "href", href, "error", err)
			continue
		}
		descs = append(descs, desc)
	}
	return descs, nil
}
