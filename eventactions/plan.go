package eventactions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cyp0633/calevents/eventstore"
	"github.com/cyp0633/calevents/recurrence"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

// ActionType is the kind of write an action performs
type ActionType int

const (
	ActionCreate ActionType = iota + 1
	ActionUpdate
	ActionDelete
)

// String provides a human-readable representation of the ActionType.
func (t ActionType) String() string {
	switch t {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is one planned write. EventID is empty for creations and
// Component is nil for deletions.
type Action struct {
	Type       ActionType
	CalendarID string
	MemberID   string
	AddressID  string
	EventID    string
	Component  *ical.Component
}

// Sequence returns the SEQUENCE the action writes
func (a Action) Sequence() int {
	return Sequence(a.Component)
}

// Plan is the ordered list of writes implementing one user action
type Plan struct {
	Actions       []Action
	Scope         RecurringType // zero for events outside a series
	InviteActions InviteActions
}

// Planner turns saves and deletions into plans. It reads the event cache
// but never writes to it.
type Planner struct {
	cache     *eventstore.Cache
	bootstrap BootstrapFunc
	addresses []Address
	weekStart time.Weekday
	logger    *slog.Logger
	newUID    func() string
}

// PlannerOption customizes a Planner
type PlannerOption func(*Planner)

// WithWeekStart sets the week start used for WKST
func WithWeekStart(day time.Weekday) PlannerOption {
	return func(p *Planner) { p.weekStart = day }
}

// WithLogger sets the planner logger
func WithLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithUIDGenerator replaces the UID generator for new events
func WithUIDGenerator(gen func() string) PlannerOption {
	return func(p *Planner) { p.newUID = gen }
}

// NewPlanner creates a planner over the given cache
func NewPlanner(cache *eventstore.Cache, bootstrap BootstrapFunc, addresses []Address, opts ...PlannerOption) *Planner {
	p := &Planner{
		cache:     cache,
		bootstrap: bootstrap,
		addresses: addresses,
		weekStart: time.Monday,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		newUID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SaveRequest describes a save from the event form. Original is nil for a
// new event; Occurrence is set when a generated occurrence was edited.
type SaveRequest struct {
	Original   *eventstore.Record
	Occurrence *recurrence.Occurrence

	CalendarID string
	MemberID   string
	AddressID  string
	Component  *ical.Component

	HasTouchedRrule    bool
	InviteActions      InviteActions
	OnSaveConfirmation OnSaveConfirmation
	SendReply          SendReplyFunc
}

type writeTarget struct {
	calendarID string
	memberID   string
	addressID  string
}

func (t writeTarget) orDefault(data EditEventData) writeTarget {
	if t.calendarID == "" {
		t.calendarID = data.CalendarID
	}
	if t.memberID == "" {
		t.memberID = data.MemberID
		t.addressID = data.AddressID
	}
	return t
}

func createAction(t writeTarget, comp *ical.Component) Action {
	return Action{Type: ActionCreate, CalendarID: t.calendarID, MemberID: t.memberID, AddressID: t.addressID, Component: comp}
}

func updateAction(t writeTarget, eventID string, comp *ical.Component) Action {
	return Action{Type: ActionUpdate, CalendarID: t.calendarID, MemberID: t.memberID, AddressID: t.addressID, EventID: eventID, Component: comp}
}

func deleteAction(calendarID, eventID string) Action {
	return Action{Type: ActionDelete, CalendarID: calendarID, EventID: eventID}
}

func (p *Planner) emails() []string {
	out := make([]string, 0, len(p.addresses))
	for _, a := range p.addresses {
		out = append(out, strings.ToLower(a.Email))
	}
	return out
}

// PlanSave computes the writes for a save
func (p *Planner) PlanSave(ctx context.Context, req SaveRequest) (*Plan, error) {
	if req.Component == nil {
		return nil, newError(KindValidation, nil, "missing event component")
	}
	newComp := CloneComponent(req.Component)
	newComp.Props.Del(ical.PropExceptionDates)
	newComp.Props.Del(ical.PropRecurrenceID)
	if _, err := recurrence.SeriesFromComponent(newComp); err != nil {
		return nil, newError(KindValidation, err, "invalid event")
	}
	WithRruleWkst(newComp, p.weekStart)
	target := writeTarget{calendarID: req.CalendarID, memberID: req.MemberID, addressID: req.AddressID}

	if req.Original == nil {
		if uidOf(newComp) == "" {
			setUID(newComp, p.newUID())
		}
		setSequence(newComp, 0)
		p.logger.Debug("planned event creation", "calendar_id", target.calendarID, "uid", uidOf(newComp))
		return &Plan{Actions: []Action{createAction(target, newComp)}}, nil
	}

	orig := *req.Original
	bootstrap, ok := p.bootstrap(orig.Event.CalendarID).Get()
	if !ok {
		return nil, ErrMissingCalendarBootstrap
	}
	decrypted, err := p.cache.Decrypt(ctx, orig.Event.CalendarID, orig.Event.ID)
	if err != nil || decrypted.Component == nil {
		return nil, wrap(ErrMissingEventData, err)
	}
	old := newEditEventData(orig, decrypted, bootstrap, p.addresses)
	target = target.orDefault(old)

	if req.Occurrence == nil && old.RecurrenceID == nil && !orig.IsRecurringMaster() {
		if err := p.sendReply(ctx, req, newComp); err != nil {
			return nil, err
		}
		comp := WithVeventSequence(newComp, old.Component)
		plan := &Plan{Actions: singleEventActions(old, target, comp), InviteActions: req.InviteActions}
		p.logger.Debug("planned single event save", "event_id", old.Event.ID, "actions", len(plan.Actions))
		return plan, nil
	}

	return p.planRecurringSave(ctx, req, old, bootstrap, target, newComp)
}

// singleEventActions updates in place, or recreates the event when it
// moves to another calendar
func singleEventActions(old EditEventData, target writeTarget, comp *ical.Component) []Action {
	if target.calendarID != old.CalendarID {
		return []Action{
			createAction(target, comp),
			deleteAction(old.CalendarID, old.Event.ID),
		}
	}
	return []Action{updateAction(target, old.Event.ID, comp)}
}

func (p *Planner) sendReply(ctx context.Context, req SaveRequest, comp *ical.Component) error {
	if req.InviteActions.Type != InviteChangePartstat {
		return nil
	}
	partstat := strings.ToUpper(req.InviteActions.Partstat)
	if partstat == "" {
		return ErrMissingPartstat
	}
	SetAttendeePartstat(comp, p.emails(), partstat)
	if req.SendReply == nil {
		return newError(KindValidation, nil, "no reply sender configured")
	}
	if err := req.SendReply(ctx, partstat, comp); err != nil {
		return newError(KindFetch, err, "sending %s reply", partstat)
	}
	return nil
}

// interrupted turns a cancelled context into an abandoned flow
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return newError(KindAbandoned, err, "planning interrupted")
	}
	return nil
}

// seriesState is the decrypted view of a whole series
type seriesState struct {
	master      *eventstore.Record
	original    EditEventData
	series      recurrence.Series
	singleEdits []singleEdit
}

type singleEdit struct {
	record    eventstore.Record
	component *ical.Component
}

// loadSeries fetches every event of a UID and decrypts the master and
// its single edits. Without requireMaster a missing or unreadable master
// leaves original.Component nil.
func (p *Planner) loadSeries(ctx context.Context, calendarID, uid string, bootstrap CalendarBootstrap, requireMaster bool) (*seriesState, error) {
	records, err := p.cache.LoadSeries(ctx, calendarID, uid)
	if err != nil {
		if ctxErr := interrupted(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newError(KindFetch, err, "loading series %s", uid)
	}

	state := &seriesState{}
	for i := range records {
		rec := records[i]
		if rec.RecurrenceID().IsAbsent() {
			if state.master == nil {
				state.master = &rec
			}
			continue
		}
		comp := rec.Component
		if decrypted, err := p.cache.Decrypt(ctx, calendarID, rec.Event.ID); err == nil && decrypted.Component != nil {
			comp = decrypted.Component
		} else {
			p.logger.Debug("using shared metadata of single edit", "event_id", rec.Event.ID, "error", err)
		}
		state.singleEdits = append(state.singleEdits, singleEdit{record: rec, component: comp})
	}
	if err := interrupted(ctx); err != nil {
		return nil, err
	}

	if state.master == nil {
		if requireMaster {
			return nil, wrap(ErrOriginalEventNotFound, errors.New("no master for uid "+uid))
		}
		return state, nil
	}

	decrypted, err := p.cache.Decrypt(ctx, calendarID, state.master.Event.ID)
	if err != nil || decrypted.Component == nil {
		if requireMaster {
			return nil, wrap(ErrOriginalEventNotFound, err)
		}
		state.original = newEditEventData(*state.master, eventstore.DecryptedEvent{}, bootstrap, p.addresses)
		return state, nil
	}
	state.original = newEditEventData(*state.master, decrypted, bootstrap, p.addresses)
	state.series, err = recurrence.SeriesFromComponent(decrypted.Component)
	if err != nil {
		return nil, newError(KindValidation, err, "invalid master event %s", state.master.Event.ID)
	}
	return state, nil
}

// locate finds the occurrence being edited. A master edited directly
// stands for its first occurrence.
func (p *Planner) locate(state *seriesState, occurrence *recurrence.Occurrence, old EditEventData) (recurrence.Occurrence, error) {
	rid := state.series.Start
	switch {
	case occurrence != nil:
		rid = occurrence.RecurrenceID
	case old.RecurrenceID != nil:
		rid = *old.RecurrenceID
	}
	occ, err := p.cache.Engine().Locate(state.series, rid, nil)
	if err != nil {
		if errors.Is(err, recurrence.ErrNotInSeries) {
			return recurrence.Occurrence{}, newError(KindConsistency, err, "occurrence is not part of series %s", state.original.UID)
		}
		return recurrence.Occurrence{}, newError(KindValidation, err, "expanding series %s", state.original.UID)
	}
	return occ, nil
}

// siblings returns the single edits other than the event being edited
func (s *seriesState) siblings(selfID string) []singleEdit {
	var out []singleEdit
	for _, edit := range s.singleEdits {
		if edit.record.Event.ID != selfID {
			out = append(out, edit)
		}
	}
	return out
}

func components(edits []singleEdit) []*ical.Component {
	out := make([]*ical.Component, 0, len(edits))
	for _, edit := range edits {
		out = append(out, edit.component)
	}
	return out
}

// singleEditAt returns the single edit overriding the occurrence at rid
func (s *seriesState) singleEditAt(rid time.Time) (singleEdit, bool) {
	for _, edit := range s.singleEdits {
		if editRID, ok := edit.record.RecurrenceID().Get(); ok && sameRecurrenceID(editRID, rid, s.series.AllDay) {
			return edit, true
		}
	}
	return singleEdit{}, false
}

// singleEditsFrom returns the single edits at or after rid
func (s *seriesState) singleEditsFrom(rid time.Time) []singleEdit {
	var out []singleEdit
	for _, edit := range s.singleEdits {
		editRID, ok := edit.record.RecurrenceID().Get()
		if !ok {
			continue
		}
		if sameRecurrenceID(editRID, rid, s.series.AllDay) || editRID.After(rid) {
			out = append(out, edit)
		}
	}
	return out
}

func sameRecurrenceID(a, b time.Time, allDay bool) bool {
	if allDay {
		ay, am, ad := a.Date()
		by, bm, bd := b.Date()
		return ay == by && am == bm && ad == bd
	}
	return a.Equal(b)
}
