package eventactions

import (
	"context"

	"github.com/cyp0633/calevents/eventstore"
	"github.com/cyp0633/calevents/recurrence"
)

// DeleteRequest describes a deletion. Occurrence is set when a generated
// occurrence was deleted.
type DeleteRequest struct {
	Original   eventstore.Record
	Occurrence *recurrence.Occurrence

	InviteActions        InviteActions
	OnDeleteConfirmation OnDeleteConfirmation
	SendReply            SendReplyFunc
}

// PlanDelete computes the writes for a deletion
func (p *Planner) PlanDelete(ctx context.Context, req DeleteRequest) (*Plan, error) {
	orig := req.Original
	bootstrap, ok := p.bootstrap(orig.Event.CalendarID).Get()
	if !ok {
		return nil, ErrMissingCalendarBootstrap
	}
	decrypted, err := p.cache.Decrypt(ctx, orig.Event.CalendarID, orig.Event.ID)
	if err != nil {
		if ctxErr := interrupted(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		p.logger.Debug("deleting event without decrypted content", "event_id", orig.Event.ID, "error", err)
		decrypted = eventstore.DecryptedEvent{}
	}
	old := newEditEventData(orig, decrypted, bootstrap, p.addresses)
	isInvitation := !orig.Event.IsOrganizer

	if req.Occurrence == nil && old.RecurrenceID == nil && !orig.IsRecurringMaster() {
		if err := p.sendDecline(ctx, req, old); err != nil {
			return nil, err
		}
		return &Plan{
			Actions:       []Action{deleteAction(old.CalendarID, old.Event.ID)},
			InviteActions: req.InviteActions,
		}, nil
	}

	state, err := p.loadSeries(ctx, old.CalendarID, old.UID, bootstrap, false)
	if err != nil {
		return nil, err
	}
	hasContent := state.original.Component != nil

	var occ recurrence.Occurrence
	if hasContent {
		if occ, err = p.locate(state, req.Occurrence, old); err != nil {
			return nil, err
		}
	}

	isSingleEdit := req.Occurrence == nil && old.RecurrenceID != nil
	siblings := components(state.siblings(old.Event.ID))
	res, err := ResolveDeleteType(ctx, DeleteTypeInput{
		CanOnlyDeleteAll:           occ.IsSingleOccurrence || (isInvitation && !isSingleEdit),
		CanOnlyDeleteThis:          isInvitation && isSingleEdit,
		HasDecryptedComponent:      hasContent,
		HasFutureOption:            hasContent && occ.HasFutureOption(),
		MustResetPartstat:          MustResetPartstat(siblings, p.emails()),
		HasNonCancelledSingleEdits: HasNonCancelledSingleEdits(siblings),
		IsInvitation:               isInvitation,
		InviteActions:              req.InviteActions,
	}, req.OnDeleteConfirmation)
	if err != nil {
		return nil, err
	}
	if err := interrupted(ctx); err != nil {
		return nil, err
	}
	if err := p.sendDecline(ctx, req, old); err != nil {
		return nil, err
	}

	plan := &Plan{Scope: res.Type, InviteActions: res.InviteActions}
	switch res.Type {
	case RecurringSingle:
		plan.Actions = p.deleteSingle(state, occ, isInvitation)
	case RecurringFuture:
		plan.Actions = p.deleteFuture(state, occ)
	case RecurringAll:
		plan.Actions = p.deleteAll(state, old)
	}

	p.logger.Debug("planned recurring delete",
		"uid", old.UID,
		"scope", res.Type,
		"actions", len(plan.Actions),
	)
	return plan, nil
}

// deleteSingle removes one occurrence: its single edit goes away and the
// master gets an EXDATE. Invitees cannot change the master, so only the
// single edit is removed for them.
func (p *Planner) deleteSingle(state *seriesState, occ recurrence.Occurrence, isInvitation bool) []Action {
	var actions []Action
	if edit, ok := state.singleEditAt(occ.RecurrenceID); ok {
		actions = append(actions, deleteAction(state.original.CalendarID, edit.record.Event.ID))
	}
	if isInvitation || state.master == nil {
		return actions
	}

	comp := CloneComponent(state.original.Component)
	comp.Props.Add(recurrence.ToExdate(occ.RecurrenceID, state.series.AllDay))
	comp = WithVeventSequence(comp, state.original.Component)
	return append(actions, updateAction(writeTarget{}.orDefault(state.original), state.master.Event.ID, comp))
}

// deleteFuture ends the series right before occ
func (p *Planner) deleteFuture(state *seriesState, occ recurrence.Occurrence) []Action {
	actions := []Action{updateAction(writeTarget{}.orDefault(state.original), state.master.Event.ID, truncatedMaster(state, occ))}
	for _, edit := range state.singleEditsFrom(occ.RecurrenceID) {
		actions = append(actions, deleteAction(state.original.CalendarID, edit.record.Event.ID))
	}
	return actions
}

// deleteAll removes the single edits, then the master
func (p *Planner) deleteAll(state *seriesState, old EditEventData) []Action {
	var actions []Action
	for _, edit := range state.singleEdits {
		actions = append(actions, deleteAction(old.CalendarID, edit.record.Event.ID))
	}
	if state.master != nil {
		actions = append(actions, deleteAction(old.CalendarID, state.master.Event.ID))
	}
	return actions
}

// sendDecline answers an invitation the user deletes
func (p *Planner) sendDecline(ctx context.Context, req DeleteRequest, old EditEventData) error {
	if req.InviteActions.Type != InviteDecline || old.Component == nil {
		return nil
	}
	if req.SendReply == nil {
		return newError(KindValidation, nil, "no reply sender configured")
	}
	comp := CloneComponent(old.Component)
	SetAttendeePartstat(comp, p.emails(), PartstatDeclined)
	if err := req.SendReply(ctx, PartstatDeclined, comp); err != nil {
		return newError(KindFetch, err, "sending %s reply", PartstatDeclined)
	}
	return nil
}
