package eventstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyp0633/calevents/recurrence"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

var (
	// ErrUnmounted is returned by operations on a cache whose view is gone
	ErrUnmounted = errors.New("event cache is unmounted")
	// ErrEventNotFound is returned when an event is not cached
	ErrEventNotFound = errors.New("event not found in cache")
	// ErrFetch wraps failures of the fetch collaborator
	ErrFetch = errors.New("fetch failed")
	// ErrDecrypt wraps failures of the decrypt collaborator
	ErrDecrypt = errors.New("decrypt failed")
)

// Descriptor is the server-side view of an event. Besides identity it
// carries the plaintext metadata needed to index the event before its
// payload is decrypted.
type Descriptor struct {
	ID          string
	CalendarID  string
	UID         string
	Author      string
	IsOrganizer bool

	// Revision changes whenever the server copy changes (an ETag for
	// CalDAV). Decrypted results survive refetches of the same revision.
	Revision string

	Start        time.Time
	End          time.Time
	FullDay      bool
	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time

	// Payload is opaque to the cache and handed to the Decrypter
	Payload []byte
}

// PersonalData is per-member data attached to an event (alarms, colors)
type PersonalData struct {
	MemberID string
	Alarms   []*ical.Component
}

// DecryptedEvent is the authoritative content of an event
type DecryptedEvent struct {
	Component *ical.Component
	Personal  map[string]PersonalData
}

// Record is one cached event: a single event, a recurring master or a
// single-edit exception. Records handed out by the cache are snapshots;
// their Component must be treated as read-only.
type Record struct {
	UTCStart     time.Time
	UTCEnd       time.Time
	IsAllDay     bool
	IsAllPartDay bool

	Event     Descriptor
	Component *ical.Component

	series     *recurrence.Series
	readResult *mo.Result[DecryptedEvent]
	pending    *decryptCall
}

// NewRecord builds a record from a descriptor's shared metadata
func NewRecord(desc Descriptor) (Record, error) {
	if desc.ID == "" {
		return Record{}, fmt.Errorf("descriptor without ID")
	}
	if desc.End.Before(desc.Start) {
		return Record{}, fmt.Errorf("event %s ends before it starts", desc.ID)
	}
	return recordFromComponent(desc, sharedComponent(desc))
}

func recordFromComponent(desc Descriptor, comp *ical.Component) (Record, error) {
	start, end, ok := recurrence.ExtractBasicTimeInfoFromComponent(comp)
	if !ok {
		return Record{}, fmt.Errorf("event %s: %w", desc.ID, recurrence.ErrInvalidComponent)
	}
	allDay := recurrence.IsAllDay(comp)
	return Record{
		UTCStart:     start.UTC(),
		UTCEnd:       end.UTC(),
		IsAllDay:     allDay,
		IsAllPartDay: !allDay && calendarDays(start.UTC(), end.UTC()) >= 1,
		Event:        desc,
		Component:    comp,
	}, nil
}

// ReadResult returns the decrypt outcome once it is known
func (r Record) ReadResult() mo.Option[mo.Result[DecryptedEvent]] {
	if r.readResult == nil {
		return mo.None[mo.Result[DecryptedEvent]]()
	}
	return mo.Some(*r.readResult)
}

// IsDecrypting reports whether a decrypt is in flight for the record
func (r Record) IsDecrypting() bool {
	return r.pending != nil
}

// UID of the event, falling back to the component when the descriptor has none
func (r Record) UID() string {
	if r.Event.UID != "" {
		return r.Event.UID
	}
	if r.Component != nil {
		if uid, err := r.Component.Props.Text(ical.PropUID); err == nil {
			return uid
		}
	}
	return ""
}

// RecurrenceID returns the recurrence-id of a single-edit exception
func (r Record) RecurrenceID() mo.Option[time.Time] {
	if r.Event.RecurrenceID != nil {
		return mo.Some(*r.Event.RecurrenceID)
	}
	if r.Component != nil {
		if info := recurrence.ExtractRecurrenceInfoFromComponent(r.Component); info.RecurrenceID != nil {
			return mo.Some(*info.RecurrenceID)
		}
	}
	return mo.None[time.Time]()
}

// IsRecurringMaster reports whether the record carries an RRULE and no recurrence-id
func (r Record) IsRecurringMaster() bool {
	if r.RecurrenceID().IsPresent() {
		return false
	}
	if r.Event.RRule != "" {
		return true
	}
	return r.Component != nil && r.Component.Props.Get(ical.PropRecurrenceRule) != nil
}

// sharedComponent rebuilds a minimal VEVENT from plaintext metadata
func sharedComponent(desc Descriptor) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	if desc.UID != "" {
		comp.Props.SetText(ical.PropUID, desc.UID)
	}
	if desc.FullDay {
		comp.Props.SetDate(ical.PropDateTimeStart, desc.Start)
		comp.Props.SetDate(ical.PropDateTimeEnd, desc.End)
	} else {
		comp.Props.SetDateTime(ical.PropDateTimeStart, desc.Start)
		comp.Props.SetDateTime(ical.PropDateTimeEnd, desc.End)
	}
	if desc.RRule != "" {
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = desc.RRule
		comp.Props.Set(prop)
	}
	for _, exdate := range desc.ExDates {
		comp.Props.Add(recurrence.ToExdate(exdate, desc.FullDay))
	}
	if desc.RecurrenceID != nil {
		comp.Props.Set(recurrence.ToRecurrenceID(*desc.RecurrenceID, desc.FullDay))
	}
	return comp
}

func calendarDays(start, end time.Time) int {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	a := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
