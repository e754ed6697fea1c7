package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// ExtractRecurrenceInfoFromComponent extracts recurrence information from an iCal component
func ExtractRecurrenceInfoFromComponent(comp *ical.Component) RecurrenceInfo {
	info := RecurrenceInfo{}

	if rruleProp := comp.Props.Get(ical.PropRecurrenceRule); rruleProp != nil && rruleProp.Value != "" {
		info.RRULE = rruleProp.Value
	}

	// EXDATE may appear several times, each with a comma separated list
	for _, exdateProp := range comp.Props[ical.PropExceptionDates] {
		info.EXDATE = append(info.EXDATE, parseDateList(exdateProp)...)
	}

	if recurrenceIDProp := comp.Props.Get(ical.PropRecurrenceID); recurrenceIDProp != nil && recurrenceIDProp.Value != "" {
		if recID, err := recurrenceIDProp.DateTime(time.UTC); err == nil {
			info.RecurrenceID = &recID
		}
	}

	return info
}

// ExtractBasicTimeInfoFromComponent extracts start and end times from an iCal component
func ExtractBasicTimeInfoFromComponent(comp *ical.Component) (start, end time.Time, hasTime bool) {
	dtstart, err := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil {
		return start, end, false
	}
	start = dtstart
	hasTime = true

	if dtend, err := comp.Props.DateTime(ical.PropDateTimeEnd, time.UTC); err == nil {
		end = dtend
		// A DTEND equal to a DATE DTSTART still spans the whole day
		if IsAllDay(comp) && !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
	} else if durationProp := comp.Props.Get(ical.PropDuration); durationProp != nil {
		duration, err := durationProp.Duration()
		if err != nil {
			return start, end, false
		}
		end = start.Add(duration)
	} else if IsAllDay(comp) {
		end = start.AddDate(0, 0, 1)
	} else {
		end = start
	}

	return start, end, hasTime
}

// SeriesFromComponent builds the time shape of a (possibly recurring) event
func SeriesFromComponent(comp *ical.Component) (Series, error) {
	if comp == nil {
		return Series{}, fmt.Errorf("%w: nil component", ErrInvalidComponent)
	}
	start, end, ok := ExtractBasicTimeInfoFromComponent(comp)
	if !ok {
		return Series{}, fmt.Errorf("%w: missing or malformed DTSTART", ErrInvalidComponent)
	}
	if end.Before(start) {
		return Series{}, fmt.Errorf("%w: negative duration", ErrInvalidComponent)
	}

	series := Series{
		Start:  start,
		End:    end,
		AllDay: IsAllDay(comp),
	}
	if uid, err := comp.Props.Text(ical.PropUID); err == nil {
		series.UID = uid
	}

	info := ExtractRecurrenceInfoFromComponent(comp)
	series.ExDates = info.EXDATE
	if info.RRULE != "" {
		rule, err := ParseRule(info.RRULE, start.Location())
		if err != nil {
			return Series{}, err
		}
		rule.Dtstart = start
		series.Rule = rule
	}
	return series, nil
}

// ParseRule parses an RRULE value. Floating UNTIL values are read in loc.
func ParseRule(value string, loc *time.Location) (*rrule.ROption, error) {
	if loc == nil {
		loc = time.UTC
	}
	rule, err := rrule.StrToROptionInLocation(strings.TrimPrefix(value, "RRULE:"), loc)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidRule, value, err)
	}
	if rule.Count < 0 || rule.Interval < 0 {
		return nil, fmt.Errorf("%w %q: negative COUNT or INTERVAL", ErrInvalidRule, value)
	}
	return rule, nil
}

// RuleOf returns the parsed RRULE of a component, or nil without one
func RuleOf(comp *ical.Component) (*rrule.ROption, error) {
	prop := comp.Props.Get(ical.PropRecurrenceRule)
	if prop == nil || prop.Value == "" {
		return nil, nil
	}
	loc := time.UTC
	if start, err := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC); err == nil {
		loc = start.Location()
	}
	return ParseRule(prop.Value, loc)
}

// SetRule replaces the RRULE of a component; a nil rule removes it. Call it
// after DTSTART is final: UNTIL is written as a DATE when DTSTART is one.
func SetRule(comp *ical.Component, rule *rrule.ROption) {
	if rule == nil {
		comp.Props.Del(ical.PropRecurrenceRule)
		return
	}
	prop := ical.NewProp(ical.PropRecurrenceRule)
	prop.Value = ruleValue(*rule, IsAllDay(comp))
	comp.Props.Set(prop)
}

// ruleValue renders a rule. rrule-go always writes UNTIL as a UTC
// DATE-TIME, which is invalid next to a DATE DTSTART.
func ruleValue(rule rrule.ROption, allDay bool) string {
	if !allDay || rule.Until.IsZero() {
		return rule.RRuleString()
	}
	until := rule.Until
	rule.Until = time.Time{}
	return rule.RRuleString() + ";UNTIL=" + until.Format("20060102")
}

// RulesEqual compares two rules by their RRULE representation
func RulesEqual(a, b *rrule.ROption) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.RRuleString() == b.RRuleString()
}

// IsAllDay checks whether DTSTART is a DATE value
func IsAllDay(comp *ical.Component) bool {
	prop := comp.Props.Get(ical.PropDateTimeStart)
	if prop == nil {
		return false
	}
	if strings.EqualFold(prop.Params.Get(ical.ParamValue), string(ical.ValueDate)) {
		return true
	}
	return len(prop.Value) == len("20060102")
}

// ToExdate builds an EXDATE property for the given occurrence
func ToExdate(t time.Time, allDay bool) *ical.Prop {
	return dateProp(ical.PropExceptionDates, t, allDay)
}

// ToRecurrenceID builds a RECURRENCE-ID property for the given occurrence
func ToRecurrenceID(t time.Time, allDay bool) *ical.Prop {
	return dateProp(ical.PropRecurrenceID, t, allDay)
}

func dateProp(name string, t time.Time, allDay bool) *ical.Prop {
	prop := ical.NewProp(name)
	if allDay {
		prop.SetDate(t)
	} else {
		prop.SetDateTime(t)
	}
	return prop
}

// parseDateList parses EXDATE-like properties holding comma separated values
func parseDateList(prop ical.Prop) []time.Time {
	var out []time.Time
	for _, value := range strings.Split(prop.Value, ",") {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		single := prop
		single.Value = value
		if t, err := single.DateTime(time.UTC); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// sameInstant compares a generated instant with a recurrence-id or EXDATE.
// All-day values compare by calendar date only.
func sameInstant(a, b time.Time, allDay bool) bool {
	if allDay {
		ay, am, ad := a.Date()
		by, bm, bd := b.Date()
		return ay == by && am == bm && ad == bd
	}
	return a.Equal(b)
}
