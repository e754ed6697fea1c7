package eventactions

import (
	"strings"

	"github.com/emersion/go-ical"
)

const (
	PartstatNeedsAction = "NEEDS-ACTION"
	PartstatAccepted    = "ACCEPTED"
	PartstatDeclined    = "DECLINED"
	PartstatTentative   = "TENTATIVE"

	statusCancelled = "CANCELLED"
)

func attendeeEmail(prop ical.Prop) string {
	value := strings.TrimSpace(prop.Value)
	if len(value) >= len("mailto:") && strings.EqualFold(value[:len("mailto:")], "mailto:") {
		value = value[len("mailto:"):]
	}
	return strings.ToLower(value)
}

// selfAttendee returns the index of the attendee matching one of emails
func selfAttendee(comp *ical.Component, emails []string) int {
	if comp == nil {
		return -1
	}
	for i, prop := range comp.Props[ical.PropAttendee] {
		email := attendeeEmail(prop)
		for _, own := range emails {
			if strings.EqualFold(email, own) {
				return i
			}
		}
	}
	return -1
}

// AttendeePartstat returns the participation status of the user in comp
func AttendeePartstat(comp *ical.Component, emails []string) (string, bool) {
	i := selfAttendee(comp, emails)
	if i < 0 {
		return "", false
	}
	partstat := comp.Props[ical.PropAttendee][i].Params.Get(ical.ParamParticipationStatus)
	if partstat == "" {
		partstat = PartstatNeedsAction
	}
	return strings.ToUpper(partstat), true
}

// SetAttendeePartstat updates the user's participation status in comp
func SetAttendeePartstat(comp *ical.Component, emails []string, partstat string) bool {
	i := selfAttendee(comp, emails)
	if i < 0 {
		return false
	}
	prop := &comp.Props[ical.PropAttendee][i]
	if prop.Params == nil {
		prop.Params = make(ical.Params)
	}
	prop.Params.Set(ical.ParamParticipationStatus, partstat)
	return true
}

// MustResetPartstat reports whether any single edit has the user DECLINED.
// Tentative and needs-action answers are left alone.
func MustResetPartstat(singleEdits []*ical.Component, emails []string) bool {
	for _, comp := range singleEdits {
		if partstat, ok := AttendeePartstat(comp, emails); ok && partstat == PartstatDeclined {
			return true
		}
	}
	return false
}

// HasNonCancelledSingleEdits reports whether any single edit is still live
func HasNonCancelledSingleEdits(singleEdits []*ical.Component) bool {
	for _, comp := range singleEdits {
		status, _ := comp.Props.Text(ical.PropStatus)
		if !strings.EqualFold(status, statusCancelled) {
			return true
		}
	}
	return false
}
