package eventactions

import (
	"context"
	"time"

	"github.com/cyp0633/calevents/recurrence"
	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

func (p *Planner) planRecurringSave(ctx context.Context, req SaveRequest, old EditEventData, bootstrap CalendarBootstrap, target writeTarget, newComp *ical.Component) (*Plan, error) {
	state, err := p.loadSeries(ctx, old.CalendarID, old.UID, bootstrap, true)
	if err != nil {
		return nil, err
	}
	occ, err := p.locate(state, req.Occurrence, old)
	if err != nil {
		return nil, err
	}

	newRule, err := recurrence.RuleOf(newComp)
	if err != nil {
		return nil, newError(KindValidation, err, "invalid recurrence rule")
	}
	isInvitation := !state.master.Event.IsOrganizer
	isSingleEdit := req.Occurrence == nil && old.RecurrenceID != nil
	hasModifiedCalendar := target.calendarID != state.original.CalendarID
	hasModifiedRrule := req.HasTouchedRrule && !recurrence.RulesEqual(state.series.Rule, newRule)
	siblings := state.siblings(old.Event.ID)

	res, err := ResolveSaveType(ctx, SaveTypeInput{
		CanOnlySaveAll:    occ.IsSingleOccurrence || hasModifiedCalendar || (isInvitation && !isSingleEdit),
		CanOnlySaveThis:   isInvitation && isSingleEdit,
		HasModifiedRrule:  hasModifiedRrule,
		HasFutureOption:   occ.HasFutureOption(),
		MustResetPartstat: MustResetPartstat(components(siblings), p.emails()),
		IsInvitation:      isInvitation,
		InviteActions:     req.InviteActions,
	}, req.OnSaveConfirmation)
	if err != nil {
		return nil, err
	}
	if err := interrupted(ctx); err != nil {
		return nil, err
	}
	if err := p.sendReply(ctx, req, newComp); err != nil {
		return nil, err
	}

	plan := &Plan{Scope: res.Type, InviteActions: res.InviteActions}
	switch res.Type {
	case RecurringSingle:
		plan.Actions = p.saveSingle(state, occ, target, newComp)
	case RecurringFuture:
		plan.Actions, err = p.saveFuture(state, occ, target, newComp, hasModifiedRrule)
	case RecurringAll:
		plan.Actions, err = p.saveAll(state, old, occ, target, newComp, res, hasModifiedRrule, hasModifiedCalendar)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Debug("planned recurring save",
		"uid", state.original.UID,
		"scope", res.Type,
		"ordinal", occ.Ordinal,
		"actions", len(plan.Actions),
	)
	return plan, nil
}

// saveSingle writes the edit as a single edit of the occurrence, leaving
// the master untouched
func (p *Planner) saveSingle(state *seriesState, occ recurrence.Occurrence, target writeTarget, newComp *ical.Component) []Action {
	comp := CloneComponent(newComp)
	setUID(comp, state.original.UID)
	comp.Props.Del(ical.PropRecurrenceRule)
	comp.Props.Del(ical.PropExceptionDates)
	comp.Props.Set(recurrence.ToRecurrenceID(occ.RecurrenceID, state.series.AllDay))
	target.calendarID = state.original.CalendarID

	if existing, ok := state.singleEditAt(occ.RecurrenceID); ok {
		return []Action{updateAction(target, existing.record.Event.ID, WithVeventSequence(comp, existing.component))}
	}
	return []Action{createAction(target, WithVeventSequence(comp, occurrenceComponent(state, occ)))}
}

// occurrenceComponent renders a generated occurrence as it would be stored
// as a single edit before any change
func occurrenceComponent(state *seriesState, occ recurrence.Occurrence) *ical.Component {
	comp := CloneComponent(state.original.Component)
	comp.Props.Del(ical.PropRecurrenceRule)
	comp.Props.Del(ical.PropExceptionDates)
	setEventTimes(comp, occ.Start, occ.End, state.series.AllDay)
	comp.Props.Set(recurrence.ToRecurrenceID(occ.RecurrenceID, state.series.AllDay))
	return comp
}

// saveAll rewrites the master. The master start moves by as much as the
// edited occurrence moved. Single edits are dropped when the series shape
// changed, otherwise kept and, if needed, reset to NEEDS-ACTION.
func (p *Planner) saveAll(state *seriesState, old EditEventData, occ recurrence.Occurrence, target writeTarget, newComp *ical.Component, res Resolution, hasModifiedRrule, hasModifiedCalendar bool) ([]Action, error) {
	newStart, newEnd, allDay, err := eventTimes(newComp)
	if err != nil {
		return nil, newError(KindValidation, err, "invalid event")
	}
	shownStart := occ.Start
	if old.RecurrenceID != nil {
		if start, _, _, err := eventTimes(old.Component); err == nil {
			shownStart = start
		}
	}
	masterStart := state.series.Start.Add(newStart.Sub(shownStart)).In(newStart.Location())
	masterEnd := masterStart.Add(newEnd.Sub(newStart))

	comp := CloneComponent(newComp)
	setUID(comp, state.original.UID)
	comp.Props.Del(ical.PropRecurrenceID)
	setEventTimes(comp, masterStart, masterEnd, allDay)
	if !hasModifiedRrule {
		recurrence.SetRule(comp, ruleWithoutStart(state.series))
	}
	comp = WithVeventSequence(comp, state.original.Component)

	masterID := state.master.Event.ID
	if hasModifiedCalendar {
		actions := []Action{createAction(target, comp)}
		for _, edit := range state.singleEdits {
			actions = append(actions, deleteAction(state.original.CalendarID, edit.record.Event.ID))
		}
		return append(actions, deleteAction(state.original.CalendarID, masterID)), nil
	}

	actions := []Action{updateAction(target, masterID, comp)}
	startShifted := !masterStart.Equal(state.series.Start)
	for _, edit := range state.singleEdits {
		switch {
		case startShifted || hasModifiedRrule || edit.record.Event.ID == old.Event.ID:
			actions = append(actions, deleteAction(state.original.CalendarID, edit.record.Event.ID))
		case res.InviteActions.ResetSingleEditsPartstat:
			partstat, ok := AttendeePartstat(edit.component, p.emails())
			if !ok || partstat != PartstatDeclined {
				continue
			}
			reset := CloneComponent(edit.component)
			SetAttendeePartstat(reset, p.emails(), PartstatNeedsAction)
			actions = append(actions, updateAction(target, edit.record.Event.ID, reset))
		}
	}
	return actions, nil
}

// saveFuture splits the series at occ: the master stops right before it
// and a new series with a fresh UID carries the edit from there on
func (p *Planner) saveFuture(state *seriesState, occ recurrence.Occurrence, target writeTarget, newComp *ical.Component, hasModifiedRrule bool) ([]Action, error) {
	if state.series.Rule == nil {
		return nil, newError(KindConsistency, nil, "series %s has no recurrence rule to split", state.original.UID)
	}
	newStart, _, _, err := eventTimes(newComp)
	if err != nil {
		return nil, newError(KindValidation, err, "invalid event")
	}

	masterTarget := writeTarget{}.orDefault(state.original)
	actions := []Action{updateAction(masterTarget, state.master.Event.ID, truncatedMaster(state, occ))}

	next := CloneComponent(newComp)
	setUID(next, p.newUID())
	next.Props.Del(ical.PropRecurrenceID)
	if !hasModifiedRrule {
		rule := recurrence.ContinueFrom(*state.series.Rule, occ, newStart, state.series.AllDay)
		recurrence.SetRule(next, &rule)
	}
	setSequence(next, 0)
	actions = append(actions, createAction(target, next))

	for _, edit := range state.singleEditsFrom(occ.RecurrenceID) {
		actions = append(actions, deleteAction(state.original.CalendarID, edit.record.Event.ID))
	}
	return actions, nil
}

// truncatedMaster returns the master ending right before occ. A series
// left with a single instance loses its rule.
func truncatedMaster(state *seriesState, occ recurrence.Occurrence) *ical.Component {
	comp := CloneComponent(state.original.Component)
	if rule, ok := recurrence.TruncateBefore(*state.series.Rule, occ, state.series.AllDay).Get(); ok {
		rule.Dtstart = time.Time{}
		recurrence.SetRule(comp, &rule)
	} else {
		recurrence.SetRule(comp, nil)
		comp.Props.Del(ical.PropExceptionDates)
	}
	return WithVeventSequence(comp, state.original.Component)
}

func ruleWithoutStart(series recurrence.Series) *rrule.ROption {
	if series.Rule == nil {
		return nil
	}
	rule := *series.Rule
	rule.Dtstart = time.Time{}
	return &rule
}
