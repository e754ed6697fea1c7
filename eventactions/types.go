package eventactions

import (
	"context"
	"strings"
	"time"

	"github.com/cyp0633/calevents/eventstore"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

// RecurringType is the scope of an edit or deletion within a series
type RecurringType int

const (
	RecurringSingle RecurringType = iota + 1
	RecurringFuture
	RecurringAll
)

// String provides a human-readable representation of the RecurringType.
func (t RecurringType) String() string {
	switch t {
	case RecurringSingle:
		return "single"
	case RecurringFuture:
		return "future"
	case RecurringAll:
		return "all"
	default:
		return "unknown"
	}
}

// InviteActionType tells the planner how the user answered an invitation
type InviteActionType int

const (
	InviteNone InviteActionType = iota
	InviteChangePartstat
	InviteDecline
)

// InviteActions carries invitation context through the resolvers
type InviteActions struct {
	Type     InviteActionType
	Partstat string

	// ResetSingleEditsPartstat is filled in by the resolvers
	ResetSingleEditsPartstat bool
}

// Member is a calendar member as listed by the calendar bootstrap
type Member struct {
	ID        string
	Email     string
	AddressID string
}

// CalendarBootstrap is the calendar context needed to write events
type CalendarBootstrap struct {
	CalendarID string
	Members    []Member
}

// Address is one of the user's own addresses
type Address struct {
	ID    string
	Email string
}

// BootstrapFunc returns the bootstrap of a calendar, if it is loaded
type BootstrapFunc func(calendarID string) mo.Option[CalendarBootstrap]

// EditEventData is the editable view of one stored event
type EditEventData struct {
	Event        eventstore.Descriptor
	CalendarID   string
	MemberID     string
	AddressID    string
	Component    *ical.Component
	UID          string
	RecurrenceID *time.Time
}

// SendReplyFunc sends an invitation reply with the given partstat
type SendReplyFunc func(ctx context.Context, partstat string, comp *ical.Component) error

// newEditEventData joins a record with its decrypted content and the
// member writing it
func newEditEventData(rec eventstore.Record, decrypted eventstore.DecryptedEvent, bootstrap CalendarBootstrap, addresses []Address) EditEventData {
	data := EditEventData{
		Event:      rec.Event,
		CalendarID: rec.Event.CalendarID,
		Component:  decrypted.Component,
		UID:        rec.UID(),
	}
	if data.CalendarID == "" {
		data.CalendarID = bootstrap.CalendarID
	}
	if rid, ok := rec.RecurrenceID().Get(); ok {
		data.RecurrenceID = &rid
	}
	data.MemberID, data.AddressID = memberAndAddress(addresses, bootstrap.Members, rec.Event.Author)
	return data
}

// memberAndAddress picks the member and address matching the author, or
// the first member holding one of our addresses
func memberAndAddress(addresses []Address, members []Member, author string) (memberID, addressID string) {
	owned := func(m Member) (Address, bool) {
		for _, a := range addresses {
			if a.ID == m.AddressID || strings.EqualFold(a.Email, m.Email) {
				return a, true
			}
		}
		return Address{}, false
	}

	for _, m := range members {
		if author != "" && strings.EqualFold(m.Email, author) {
			if a, ok := owned(m); ok {
				return m.ID, a.ID
			}
		}
	}
	for _, m := range members {
		if a, ok := owned(m); ok {
			return m.ID, a.ID
		}
	}
	return "", ""
}
