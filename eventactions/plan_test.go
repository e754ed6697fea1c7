package eventactions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cyp0633/calevents/eventstore"
	"github.com/cyp0633/calevents/internal/interval"
	"github.com/cyp0633/calevents/recurrence"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	calID   = "cal"
	myEmail = "me@example.com"
)

var monday = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func week(n int) time.Time {
	return monday.AddDate(0, 0, 7*n)
}

func vevent(uid string, start, end time.Time) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, uid)
	comp.Props.SetText(ical.PropSummary, "Standup")
	comp.Props.SetDateTime(ical.PropDateTimeStart, start)
	comp.Props.SetDateTime(ical.PropDateTimeEnd, end)
	return comp
}

func withRule(comp *ical.Component, rule string) *ical.Component {
	prop := ical.NewProp(ical.PropRecurrenceRule)
	prop.Value = rule
	comp.Props.Set(prop)
	return comp
}

func withRecurrenceID(comp *ical.Component, rid time.Time) *ical.Component {
	comp.Props.Set(recurrence.ToRecurrenceID(rid, false))
	return comp
}

func withSequence(comp *ical.Component, n int) *ical.Component {
	setSequence(comp, n)
	return comp
}

func withAttendee(comp *ical.Component, email, partstat string) *ical.Component {
	prop := ical.NewProp(ical.PropAttendee)
	prop.Value = "mailto:" + email
	prop.Params.Set(ical.ParamParticipationStatus, partstat)
	comp.Props.Add(prop)
	return comp
}

func summary(comp *ical.Component) string {
	s, _ := comp.Props.Text(ical.PropSummary)
	return s
}

type fakeFetcher struct {
	mu     sync.Mutex
	events []eventstore.Descriptor
}

func (f *fakeFetcher) FetchRange(_ context.Context, _ string, r interval.Range) ([]eventstore.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []eventstore.Descriptor
	for _, desc := range f.events {
		if interval.NewRange(desc.Start, desc.End).Overlaps(r) {
			out = append(out, desc)
		}
	}
	return out, nil
}

func (f *fakeFetcher) FetchUID(_ context.Context, _ string, uid string) ([]eventstore.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []eventstore.Descriptor
	for _, desc := range f.events {
		if desc.UID == uid {
			out = append(out, desc)
		}
	}
	return out, nil
}

type fakeDecrypter struct {
	mu    sync.Mutex
	comps map[string]*ical.Component
}

func (d *fakeDecrypter) Decrypt(_ context.Context, desc eventstore.Descriptor) (eventstore.DecryptedEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	comp, ok := d.comps[desc.ID]
	if !ok {
		return eventstore.DecryptedEvent{}, errors.New("no session key")
	}
	return eventstore.DecryptedEvent{Component: CloneComponent(comp)}, nil
}

type fixture struct {
	cache     *eventstore.Cache
	fetcher   *fakeFetcher
	decrypter *fakeDecrypter
	planner   *Planner
}

func newFixture(t *testing.T, opts ...PlannerOption) *fixture {
	t.Helper()
	f := &fixture{
		fetcher:   &fakeFetcher{},
		decrypter: &fakeDecrypter{comps: map[string]*ical.Component{}},
	}
	f.cache = eventstore.NewCache(eventstore.Options{Fetcher: f.fetcher, Decrypter: f.decrypter})
	t.Cleanup(f.cache.Unmount)

	bootstrap := func(calendarID string) mo.Option[CalendarBootstrap] {
		if calendarID == "missing" {
			return mo.None[CalendarBootstrap]()
		}
		return mo.Some(CalendarBootstrap{
			CalendarID: calendarID,
			Members:    []Member{{ID: "member-1", Email: myEmail, AddressID: "address-1"}},
		})
	}
	opts = append([]PlannerOption{WithUIDGenerator(func() string { return "new-uid" })}, opts...)
	f.planner = NewPlanner(f.cache, bootstrap, []Address{{ID: "address-1", Email: myEmail}}, opts...)
	return f
}

// add stores comp on the fake server and in cache. Without a component in
// the decrypter the event cannot be read.
func (f *fixture) add(t *testing.T, id string, comp *ical.Component, organizer, readable bool) eventstore.Record {
	t.Helper()
	series, err := recurrence.SeriesFromComponent(comp)
	require.NoError(t, err)
	info := recurrence.ExtractRecurrenceInfoFromComponent(comp)
	desc := eventstore.Descriptor{
		ID:           id,
		CalendarID:   calID,
		UID:          series.UID,
		IsOrganizer:  organizer,
		Revision:     "1",
		Start:        series.Start,
		End:          series.End,
		FullDay:      series.AllDay,
		RRule:        info.RRULE,
		ExDates:      info.EXDATE,
		RecurrenceID: info.RecurrenceID,
	}

	f.fetcher.mu.Lock()
	f.fetcher.events = append(f.fetcher.events, desc)
	f.fetcher.mu.Unlock()
	if readable {
		f.decrypter.mu.Lock()
		f.decrypter.comps[id] = CloneComponent(comp)
		f.decrypter.mu.Unlock()
	}

	require.NoError(t, f.cache.UpsertDescriptor(calID, desc))
	rec, ok := f.cache.GetCachedEvent(calID, id).Get()
	require.True(t, ok)
	return rec
}

func choose[C any](choice RecurringType, seen *C) func(context.Context, C) (RecurringType, error) {
	return func(_ context.Context, c C) (RecurringType, error) {
		if seen != nil {
			*seen = c
		}
		return choice, nil
	}
}

func TestPlanSave_CreateEvent(t *testing.T) {
	f := newFixture(t)
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropSummary, "Kickoff")
	comp.Props.SetDateTime(ical.PropDateTimeStart, monday)
	comp.Props.SetDateTime(ical.PropDateTimeEnd, monday.Add(time.Hour))

	plan, err := f.planner.PlanSave(context.Background(), SaveRequest{
		CalendarID: calID,
		MemberID:   "member-1",
		Component:  comp,
	})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)

	action := plan.Actions[0]
	assert.Equal(t, ActionCreate, action.Type)
	assert.Equal(t, calID, action.CalendarID)
	assert.Empty(t, action.EventID)
	assert.Equal(t, 0, action.Sequence())
	assert.Equal(t, "new-uid", uidOf(action.Component))
	assert.Empty(t, uidOf(comp), "request component must not be modified")
}

func TestPlanSave_SingleEvent(t *testing.T) {
	tests := []struct {
		name     string
		edit     func(*ical.Component)
		calendar string
		wantSeq  int
		want     []ActionType
	}{
		{
			name:    "title only keeps sequence",
			edit:    func(c *ical.Component) { c.Props.SetText(ical.PropSummary, "Renamed") },
			wantSeq: 4,
			want:    []ActionType{ActionUpdate},
		},
		{
			name:    "moved start bumps sequence",
			edit:    func(c *ical.Component) { c.Props.SetDateTime(ical.PropDateTimeStart, monday.Add(30*time.Minute)) },
			wantSeq: 5,
			want:    []ActionType{ActionUpdate},
		},
		{
			name:     "calendar change recreates",
			edit:     func(*ical.Component) {},
			calendar: "work",
			wantSeq:  4,
			want:     []ActionType{ActionCreate, ActionDelete},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			orig := withSequence(vevent("single", monday, monday.Add(time.Hour)), 4)
			rec := f.add(t, "evt-1", orig, true, true)

			edited := CloneComponent(orig)
			tt.edit(edited)
			plan, err := f.planner.PlanSave(context.Background(), SaveRequest{
				Original:   &rec,
				CalendarID: tt.calendar,
				Component:  edited,
			})
			require.NoError(t, err)

			var types []ActionType
			for _, a := range plan.Actions {
				types = append(types, a.Type)
			}
			assert.Equal(t, tt.want, types)
			assert.Equal(t, tt.wantSeq, plan.Actions[0].Sequence())
			assert.Equal(t, "member-1", plan.Actions[0].MemberID)
			if tt.calendar != "" {
				assert.Equal(t, tt.calendar, plan.Actions[0].CalendarID)
				assert.Equal(t, Action{Type: ActionDelete, CalendarID: calID, EventID: "evt-1"}, plan.Actions[1])
			} else {
				assert.Equal(t, "evt-1", plan.Actions[0].EventID)
			}
		})
	}
}

func TestPlanSave_Errors(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "locked", vevent("locked", monday, monday.Add(time.Hour)), true, false)
	ctx := context.Background()

	_, err := f.planner.PlanSave(ctx, SaveRequest{Original: &rec, Component: vevent("locked", monday, monday.Add(time.Hour))})
	assert.ErrorIs(t, err, ErrMissingEventData)
	assert.ErrorIs(t, err, ErrValidation)

	moved := rec
	moved.Event.CalendarID = "missing"
	_, err = f.planner.PlanSave(ctx, SaveRequest{Original: &moved, Component: vevent("locked", monday, monday.Add(time.Hour))})
	assert.ErrorIs(t, err, ErrMissingCalendarBootstrap)

	bad := vevent("bad", monday, monday.Add(time.Hour))
	bad.Props.Del(ical.PropDateTimeStart)
	_, err = f.planner.PlanSave(ctx, SaveRequest{Component: bad})
	assert.ErrorIs(t, err, ErrValidation)

	open := f.add(t, "open", vevent("open", monday, monday.Add(time.Hour)), false, true)
	_, err = f.planner.PlanSave(ctx, SaveRequest{
		Original:      &open,
		Component:     vevent("open", monday, monday.Add(time.Hour)),
		InviteActions: InviteActions{Type: InviteChangePartstat},
	})
	assert.ErrorIs(t, err, ErrMissingPartstat)
}

func TestPlanSave_FutureSplitsUnboundedSeries(t *testing.T) {
	f := newFixture(t)
	masterComp := withRule(vevent("weekly", monday, monday.Add(time.Hour)), "FREQ=WEEKLY")
	rec := f.add(t, "master", masterComp, true, true)
	// a single edit before the split survives, one after it goes away
	f.add(t, "edit-2", withRecurrenceID(vevent("weekly", week(2).Add(time.Hour), week(2).Add(2*time.Hour)), week(2)), true, true)
	f.add(t, "edit-7", withRecurrenceID(vevent("weekly", week(7), week(7).Add(time.Hour)), week(7)), true, true)

	occ := recurrence.Occurrence{RecurrenceID: week(5), Start: week(5), End: week(5).Add(time.Hour)}
	edited := withRule(vevent("weekly", week(5), week(5).Add(time.Hour)), "FREQ=WEEKLY")
	edited.Props.SetText(ical.PropSummary, "Planning")

	var seen SaveConfirmation
	plan, err := f.planner.PlanSave(context.Background(), SaveRequest{
		Original:           &rec,
		Occurrence:         &occ,
		Component:          edited,
		OnSaveConfirmation: choose(RecurringFuture, &seen),
	})
	require.NoError(t, err)
	assert.Equal(t, []RecurringType{RecurringSingle, RecurringFuture, RecurringAll}, seen.Candidates)
	assert.Equal(t, RecurringFuture, plan.Scope)
	require.Len(t, plan.Actions, 3)

	truncated := plan.Actions[0]
	assert.Equal(t, ActionUpdate, truncated.Type)
	assert.Equal(t, "master", truncated.EventID)
	assert.Equal(t, "weekly", uidOf(truncated.Component))
	assert.Contains(t, propValue(truncated.Component, ical.PropRecurrenceRule), "UNTIL=20240205T095959Z")
	assert.Equal(t, 1, truncated.Sequence())
	assert.Equal(t, "Standup", summary(truncated.Component))

	next := plan.Actions[1]
	assert.Equal(t, ActionCreate, next.Type)
	assert.Equal(t, "new-uid", uidOf(next.Component))
	assert.Equal(t, 0, next.Sequence())
	assert.Equal(t, "Planning", summary(next.Component))
	assert.NotContains(t, propValue(next.Component, ical.PropRecurrenceRule), "UNTIL")
	assert.NotContains(t, propValue(next.Component, ical.PropRecurrenceRule), "COUNT")
	start, _, _, err := eventTimes(next.Component)
	require.NoError(t, err)
	assert.True(t, start.Equal(week(5)))

	assert.Equal(t, Action{Type: ActionDelete, CalendarID: calID, EventID: "edit-7"}, plan.Actions[2])
}

func TestPlanSave_FutureKeepsRemainingCount(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "master", withRule(vevent("counted", monday, monday.Add(time.Hour)), "FREQ=WEEKLY;COUNT=10"), true, true)

	occ := recurrence.Occurrence{RecurrenceID: week(4), Start: week(4), End: week(4).Add(time.Hour)}
	plan, err := f.planner.PlanSave(context.Background(), SaveRequest{
		Original:           &rec,
		Occurrence:         &occ,
		Component:          withRule(vevent("counted", week(4), week(4).Add(2*time.Hour)), "FREQ=WEEKLY;COUNT=10"),
		OnSaveConfirmation: choose[SaveConfirmation](RecurringFuture, nil),
	})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)
	assert.Contains(t, propValue(plan.Actions[0].Component, ical.PropRecurrenceRule), "COUNT=4")
	assert.Contains(t, propValue(plan.Actions[1].Component, ical.PropRecurrenceRule), "COUNT=6")
}

func TestPlanSave_SingleOccurrence(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "master", withSequence(withRule(vevent("weekly", monday, monday.Add(time.Hour)), "FREQ=WEEKLY;COUNT=10"), 2), true, true)

	occ := recurrence.Occurrence{RecurrenceID: week(3), Start: week(3), End: week(3).Add(time.Hour)}
	edited := withRule(vevent("weekly", week(3).Add(time.Hour), week(3).Add(2*time.Hour)), "FREQ=WEEKLY;COUNT=10")
	plan, err := f.planner.PlanSave(context.Background(), SaveRequest{
		Original:           &rec,
		Occurrence:         &occ,
		Component:          edited,
		OnSaveConfirmation: choose[SaveConfirmation](RecurringSingle, nil),
	})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)

	action := plan.Actions[0]
	assert.Equal(t, ActionCreate, action.Type)
	assert.Equal(t, "weekly", uidOf(action.Component))
	assert.Nil(t, action.Component.Props.Get(ical.PropRecurrenceRule))
	rid, err := action.Component.Props.DateTime(ical.PropRecurrenceID, time.UTC)
	require.NoError(t, err)
	assert.True(t, rid.Equal(week(3)))
	assert.Equal(t, 3, action.Sequence(), "moved occurrence bumps the master's sequence")
}

func TestPlanSave_AllResetsDeclinedSingleEdits(t *testing.T) {
	f := newFixture(t)
	masterComp := withAttendee(withRule(vevent("invite", monday, monday.Add(time.Hour)), "FREQ=WEEKLY;COUNT=10"), myEmail, PartstatAccepted)
	rec := f.add(t, "master", masterComp, false, true)
	declined := withAttendee(withRecurrenceID(vevent("invite", week(2), week(2).Add(time.Hour)), week(2)), myEmail, PartstatDeclined)
	f.add(t, "edit-2", declined, false, true)
	tentative := withAttendee(withRecurrenceID(vevent("invite", week(6), week(6).Add(time.Hour)), week(6)), myEmail, PartstatTentative)
	f.add(t, "edit-6", tentative, false, true)

	var replied string
	occ := recurrence.Occurrence{RecurrenceID: week(4), Start: week(4), End: week(4).Add(time.Hour)}
	edited := withAttendee(withRule(vevent("invite", week(4), week(4).Add(time.Hour)), "FREQ=WEEKLY;COUNT=10"), myEmail, PartstatAccepted)
	plan, err := f.planner.PlanSave(context.Background(), SaveRequest{
		Original:      &rec,
		Occurrence:    &occ,
		Component:     edited,
		InviteActions: InviteActions{Type: InviteChangePartstat, Partstat: "tentative"},
		SendReply: func(_ context.Context, partstat string, _ *ical.Component) error {
			replied = partstat
			return nil
		},
		OnSaveConfirmation: func(context.Context, SaveConfirmation) (RecurringType, error) {
			t.Fatal("invitations of a whole series are saved without asking")
			return 0, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, PartstatTentative, replied)
	assert.Equal(t, RecurringAll, plan.Scope)
	assert.True(t, plan.InviteActions.ResetSingleEditsPartstat)
	require.Len(t, plan.Actions, 2)

	masterUpdate := plan.Actions[0]
	assert.Equal(t, "master", masterUpdate.EventID)
	start, _, _, err := eventTimes(masterUpdate.Component)
	require.NoError(t, err)
	assert.True(t, start.Equal(monday), "master keeps its own start")
	partstat, _ := AttendeePartstat(masterUpdate.Component, []string{myEmail})
	assert.Equal(t, PartstatTentative, partstat)
	assert.Equal(t, 0, masterUpdate.Sequence())

	reset := plan.Actions[1]
	assert.Equal(t, ActionUpdate, reset.Type)
	assert.Equal(t, "edit-2", reset.EventID)
	partstat, _ = AttendeePartstat(reset.Component, []string{myEmail})
	assert.Equal(t, PartstatNeedsAction, partstat)
}

func TestPlanSave_AllShiftsMasterAndDropsSingleEdits(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "master", withRule(vevent("weekly", monday, monday.Add(time.Hour)), "FREQ=WEEKLY;COUNT=10"), true, true)
	f.add(t, "edit-1", withRecurrenceID(vevent("weekly", week(1), week(1).Add(time.Hour)), week(1)), true, true)

	occ := recurrence.Occurrence{RecurrenceID: week(3), Start: week(3), End: week(3).Add(time.Hour)}
	edited := withRule(vevent("weekly", week(3).Add(2*time.Hour), week(3).Add(3*time.Hour)), "FREQ=WEEKLY;COUNT=10")
	plan, err := f.planner.PlanSave(context.Background(), SaveRequest{
		Original:           &rec,
		Occurrence:         &occ,
		Component:          edited,
		OnSaveConfirmation: choose[SaveConfirmation](RecurringAll, nil),
	})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	start, end, _, err := eventTimes(plan.Actions[0].Component)
	require.NoError(t, err)
	assert.True(t, start.Equal(monday.Add(2*time.Hour)))
	assert.True(t, end.Equal(monday.Add(3*time.Hour)))
	assert.Equal(t, 1, plan.Actions[0].Sequence())
	assert.Equal(t, Action{Type: ActionDelete, CalendarID: calID, EventID: "edit-1"}, plan.Actions[1])
}

func TestPlanSave_AllDropsExdates(t *testing.T) {
	tests := []struct {
		name        string
		rule        string
		touchedRule bool
		wantCount   int
	}{
		{name: "rule untouched", rule: "FREQ=WEEKLY;COUNT=10", wantCount: 10},
		{name: "rule touched but unchanged", rule: "FREQ=WEEKLY;COUNT=10", touchedRule: true, wantCount: 10},
		{name: "rule changed", rule: "FREQ=WEEKLY;COUNT=5", touchedRule: true, wantCount: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			master := withRule(vevent("weekly", monday, monday.Add(time.Hour)), "FREQ=WEEKLY;COUNT=10")
			master.Props.Add(recurrence.ToExdate(week(2), false))
			master.Props.Add(recurrence.ToExdate(week(4), false))
			rec := f.add(t, "master", master, true, true)

			edited := withRule(vevent("weekly", week(3), week(3).Add(time.Hour)), tt.rule)
			edited.Props.SetText(ical.PropSummary, "Sync")
			edited.Props.Add(recurrence.ToExdate(week(2), false))
			occ := recurrence.Occurrence{RecurrenceID: week(3), Start: week(3), End: week(3).Add(time.Hour)}
			plan, err := f.planner.PlanSave(context.Background(), SaveRequest{
				Original:           &rec,
				Occurrence:         &occ,
				Component:          edited,
				HasTouchedRrule:    tt.touchedRule,
				OnSaveConfirmation: choose[SaveConfirmation](RecurringAll, nil),
			})
			require.NoError(t, err)
			require.Len(t, plan.Actions, 1)

			update := plan.Actions[0]
			assert.Equal(t, ActionUpdate, update.Type)
			assert.Equal(t, "Sync", summary(update.Component))
			assert.Empty(t, update.Component.Props.Values(ical.PropExceptionDates))
			rule, err := recurrence.RuleOf(update.Component)
			require.NoError(t, err)
			require.NotNil(t, rule)
			assert.Equal(t, tt.wantCount, rule.Count)
		})
	}
}

func TestPlanSave_SingleEditOutsideSeries(t *testing.T) {
	f := newFixture(t)
	f.add(t, "master", withRule(vevent("weekly", monday, monday.Add(time.Hour)), "FREQ=WEEKLY;COUNT=10"), true, true)
	wednesday := monday.AddDate(0, 0, 2)
	stray := f.add(t, "stray", withRecurrenceID(vevent("weekly", wednesday, wednesday.Add(time.Hour)), wednesday), true, true)

	_, err := f.planner.PlanSave(context.Background(), SaveRequest{
		Original:           &stray,
		Component:          vevent("weekly", wednesday, wednesday.Add(time.Hour)),
		OnSaveConfirmation: choose[SaveConfirmation](RecurringSingle, nil),
	})
	assert.ErrorIs(t, err, ErrConsistency)
}

func TestPlanSave_AbandonedPrompt(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "master", withRule(vevent("weekly", monday, monday.Add(time.Hour)), "FREQ=WEEKLY"), true, true)
	occ := recurrence.Occurrence{RecurrenceID: week(2), Start: week(2), End: week(2).Add(time.Hour)}

	_, err := f.planner.PlanSave(context.Background(), SaveRequest{
		Original:   &rec,
		Occurrence: &occ,
		Component:  withRule(vevent("weekly", week(2), week(2).Add(time.Hour)), "FREQ=WEEKLY"),
		OnSaveConfirmation: func(context.Context, SaveConfirmation) (RecurringType, error) {
			return 0, errors.New("closed")
		},
	})
	assert.ErrorIs(t, err, ErrConfirmationAbandoned)
}

func TestPlanDelete_InvitedSingleEditNeedsNoPrompt(t *testing.T) {
	f := newFixture(t)
	f.add(t, "master", withRule(vevent("invite", monday, monday.Add(time.Hour)), "FREQ=WEEKLY;COUNT=10"), false, true)
	edit := f.add(t, "edit-3", withRecurrenceID(vevent("invite", week(3), week(3).Add(time.Hour)), week(3)), false, true)

	plan, err := f.planner.PlanDelete(context.Background(), DeleteRequest{
		Original: edit,
		OnDeleteConfirmation: func(context.Context, DeleteConfirmation) (RecurringType, error) {
			t.Fatal("unexpected prompt")
			return 0, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, RecurringSingle, plan.Scope)
	assert.Equal(t, []Action{{Type: ActionDelete, CalendarID: calID, EventID: "edit-3"}}, plan.Actions)
}

func TestPlanDelete_SingleOccurrenceAddsExdate(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "master", withSequence(withRule(vevent("weekly", monday, monday.Add(time.Hour)), "FREQ=WEEKLY;COUNT=10"), 1), true, true)
	f.add(t, "edit-3", withRecurrenceID(vevent("weekly", week(3).Add(time.Hour), week(3).Add(2*time.Hour)), week(3)), true, true)

	occ := recurrence.Occurrence{RecurrenceID: week(3), Start: week(3).Add(time.Hour), End: week(3).Add(2 * time.Hour)}
	var seen DeleteConfirmation
	plan, err := f.planner.PlanDelete(context.Background(), DeleteRequest{
		Original:             rec,
		Occurrence:           &occ,
		OnDeleteConfirmation: choose(RecurringSingle, &seen),
	})
	require.NoError(t, err)
	assert.Equal(t, []RecurringType{RecurringSingle, RecurringFuture, RecurringAll}, seen.Candidates)
	assert.True(t, seen.HasNonCancelledSingleEdits)
	require.Len(t, plan.Actions, 2)

	assert.Equal(t, Action{Type: ActionDelete, CalendarID: calID, EventID: "edit-3"}, plan.Actions[0])
	update := plan.Actions[1]
	assert.Equal(t, ActionUpdate, update.Type)
	assert.Equal(t, "master", update.EventID)
	assert.Equal(t, 1, update.Sequence())
	series, err := recurrence.SeriesFromComponent(update.Component)
	require.NoError(t, err)
	require.Len(t, series.ExDates, 1)
	assert.True(t, series.ExDates[0].Equal(week(3)))
}

func TestPlanDelete_Future(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "master", withRule(vevent("weekly", monday, monday.Add(time.Hour)), "FREQ=WEEKLY;COUNT=10"), true, true)
	f.add(t, "edit-1", withRecurrenceID(vevent("weekly", week(1), week(1).Add(time.Hour)), week(1)), true, true)
	f.add(t, "edit-6", withRecurrenceID(vevent("weekly", week(6), week(6).Add(time.Hour)), week(6)), true, true)

	occ := recurrence.Occurrence{RecurrenceID: week(4), Start: week(4), End: week(4).Add(time.Hour)}
	plan, err := f.planner.PlanDelete(context.Background(), DeleteRequest{
		Original:             rec,
		Occurrence:           &occ,
		OnDeleteConfirmation: choose[DeleteConfirmation](RecurringFuture, nil),
	})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)
	assert.Contains(t, propValue(plan.Actions[0].Component, ical.PropRecurrenceRule), "COUNT=4")
	assert.Equal(t, Action{Type: ActionDelete, CalendarID: calID, EventID: "edit-6"}, plan.Actions[1])
}

func TestPlanDelete_UnreadableSeriesDeletesEverything(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "master", withRule(vevent("sealed", monday, monday.Add(time.Hour)), "FREQ=DAILY"), true, false)
	f.add(t, "edit-1", withRecurrenceID(vevent("sealed", monday.AddDate(0, 0, 1), monday.AddDate(0, 0, 1).Add(time.Hour)), monday.AddDate(0, 0, 1)), true, false)

	plan, err := f.planner.PlanDelete(context.Background(), DeleteRequest{Original: rec})
	require.NoError(t, err)
	assert.Equal(t, RecurringAll, plan.Scope)
	assert.Equal(t, []Action{
		{Type: ActionDelete, CalendarID: calID, EventID: "edit-1"},
		{Type: ActionDelete, CalendarID: calID, EventID: "master"},
	}, plan.Actions)
}

func TestPlanDelete_DeclineSendsReply(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "evt", withAttendee(vevent("party", monday, monday.Add(time.Hour)), myEmail, PartstatAccepted), false, true)

	var replied *ical.Component
	plan, err := f.planner.PlanDelete(context.Background(), DeleteRequest{
		Original:      rec,
		InviteActions: InviteActions{Type: InviteDecline},
		SendReply: func(_ context.Context, partstat string, comp *ical.Component) error {
			assert.Equal(t, PartstatDeclined, partstat)
			replied = comp
			return nil
		},
	})
	require.NoError(t, err)
	require.NotNil(t, replied)
	partstat, _ := AttendeePartstat(replied, []string{myEmail})
	assert.Equal(t, PartstatDeclined, partstat)
	assert.Equal(t, []Action{{Type: ActionDelete, CalendarID: calID, EventID: "evt"}}, plan.Actions)
}
