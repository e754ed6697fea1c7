package eventactions

import (
	"strconv"
	"strings"
	"time"

	"github.com/cyp0633/calevents/recurrence"
	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// CloneComponent deep-copies a component so planned writes never alias
// components owned by the cache
func CloneComponent(comp *ical.Component) *ical.Component {
	if comp == nil {
		return nil
	}
	out := &ical.Component{
		Name:  comp.Name,
		Props: make(ical.Props, len(comp.Props)),
	}
	for name, props := range comp.Props {
		copied := make([]ical.Prop, len(props))
		for i, prop := range props {
			copied[i] = prop
			if prop.Params != nil {
				copied[i].Params = make(ical.Params, len(prop.Params))
				for k, v := range prop.Params {
					copied[i].Params[k] = append([]string(nil), v...)
				}
			}
		}
		out.Props[name] = copied
	}
	for _, child := range comp.Children {
		out.Children = append(out.Children, CloneComponent(child))
	}
	return out
}

// Sequence returns the SEQUENCE of a component, 0 when absent
func Sequence(comp *ical.Component) int {
	if comp == nil {
		return 0
	}
	prop := comp.Props.Get(ical.PropSequence)
	if prop == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(prop.Value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func setSequence(comp *ical.Component, n int) {
	prop := ical.NewProp(ical.PropSequence)
	prop.Value = strconv.Itoa(n)
	comp.Props.Set(prop)
}

// WithVeventSequence returns a copy of newComp carrying the sequence of
// oldComp, incremented when the timing of the event changed. Other content
// edits keep the sequence, so attendees' clients do not see them as
// reschedules.
func WithVeventSequence(newComp, oldComp *ical.Component) *ical.Component {
	out := CloneComponent(newComp)
	seq := Sequence(oldComp)
	if HasModifiedTiming(newComp, oldComp) {
		seq++
	}
	setSequence(out, seq)
	return out
}

// HasModifiedTiming reports whether DTSTART, DTEND, DURATION or RRULE differ
func HasModifiedTiming(a, b *ical.Component) bool {
	for _, name := range []string{ical.PropDateTimeStart, ical.PropDateTimeEnd} {
		if !sameDateProp(a.Props.Get(name), b.Props.Get(name)) {
			return true
		}
	}
	if !sameDurationProp(a.Props.Get(ical.PropDuration), b.Props.Get(ical.PropDuration)) {
		return true
	}
	ra, errA := recurrence.RuleOf(a)
	rb, errB := recurrence.RuleOf(b)
	if errA != nil || errB != nil {
		return propValue(a, ical.PropRecurrenceRule) != propValue(b, ical.PropRecurrenceRule)
	}
	return !recurrence.RulesEqual(ra, rb)
}

func sameDateProp(a, b *ical.Prop) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, errA := a.DateTime(time.UTC)
	tb, errB := b.DateTime(time.UTC)
	if errA != nil || errB != nil {
		return a.Value == b.Value
	}
	return ta.Equal(tb) && isDateValue(a) == isDateValue(b)
}

func sameDurationProp(a, b *ical.Prop) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	da, errA := a.Duration()
	db, errB := b.Duration()
	if errA != nil || errB != nil {
		return a.Value == b.Value
	}
	return da == db
}

func isDateValue(prop *ical.Prop) bool {
	return strings.EqualFold(prop.Params.Get(ical.ParamValue), string(ical.ValueDate)) || len(prop.Value) == len("20060102")
}

func propValue(comp *ical.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return prop.Value
	}
	return ""
}

var rruleWeekdays = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// WithRruleWkst sets WKST on weekly rules with several BYDAY values, where
// the week start changes which days group together. Other rules lose WKST.
func WithRruleWkst(comp *ical.Component, weekStart time.Weekday) *ical.Component {
	rule, err := recurrence.RuleOf(comp)
	if err != nil || rule == nil {
		return comp
	}
	if rule.Freq == rrule.WEEKLY && len(rule.Byweekday) > 1 {
		rule.Wkst = rruleWeekdays[weekStart]
	} else {
		rule.Wkst = rrule.MO
	}
	recurrence.SetRule(comp, rule)
	return comp
}

// eventTimes returns the start, end and all-day flag of a component
func eventTimes(comp *ical.Component) (start, end time.Time, allDay bool, err error) {
	series, err := recurrence.SeriesFromComponent(comp)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return series.Start, series.End, series.AllDay, nil
}

// setEventTimes rewrites DTSTART and DTEND, dropping DURATION
func setEventTimes(comp *ical.Component, start, end time.Time, allDay bool) {
	comp.Props.Del(ical.PropDuration)
	if allDay {
		comp.Props.SetDate(ical.PropDateTimeStart, start)
		comp.Props.SetDate(ical.PropDateTimeEnd, end)
		return
	}
	comp.Props.SetDateTime(ical.PropDateTimeStart, start)
	comp.Props.SetDateTime(ical.PropDateTimeEnd, end)
}

func setUID(comp *ical.Component, uid string) {
	comp.Props.SetText(ical.PropUID, uid)
}

func uidOf(comp *ical.Component) string {
	uid, _ := comp.Props.Text(ical.PropUID)
	return uid
}
