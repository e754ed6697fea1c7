package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cyp0633/calevents/config"
	"github.com/cyp0633/calevents/davclient"
	"github.com/cyp0633/calevents/eventactions"
	"github.com/cyp0633/calevents/eventstore"
	"github.com/cyp0633/calevents/internal/interval"
	"github.com/cyp0633/calevents/recurrence"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

// app wires the CalDAV client, the event cache and the planner
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *davclient.Client
	cache   *eventstore.Cache
	planner *eventactions.Planner
	now     func() time.Time
}

func (o *options) newApp() (*app, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", o.configPath, err)
	}
	client, err := davclient.Dial(o.cfg.Server.URL, o.cfg.Server.Username, o.cfg.Server.Password,
		davclient.WithSelfEmails(o.cfg.Addresses...),
		davclient.WithMemberID(o.cfg.MemberID),
		davclient.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return newApp(o.cfg, o.logger, client), nil
}

func newApp(cfg *config.Config, logger *slog.Logger, client *davclient.Client) *app {
	a := &app{cfg: cfg, logger: logger, client: client, now: time.Now}
	engine := recurrence.NewEngineWithConfig(cfg.EngineConfig(), logger)
	a.cache = eventstore.NewCache(eventstore.Options{
		Fetcher:   client,
		Decrypter: client,
		Engine:    engine,
		Logger:    logger,
	})

	addresses := make([]eventactions.Address, 0, len(cfg.Addresses))
	for i, email := range cfg.Addresses {
		addresses = append(addresses, eventactions.Address{ID: addressID(i), Email: email})
	}
	a.planner = eventactions.NewPlanner(a.cache, a.bootstrap, addresses,
		eventactions.WithWeekStart(cfg.WeekStartDay()),
		eventactions.WithLogger(logger))
	return a
}

func addressID(i int) string {
	return "address-" + strconv.Itoa(i)
}

func (a *app) close() {
	a.cache.Unmount()
}

// bootstrap knows the configured calendars only. The account is their
// single member, holding the first configured address.
func (a *app) bootstrap(calendarID string) mo.Option[eventactions.CalendarBootstrap] {
	if _, ok := a.cfg.Calendar(calendarID); !ok {
		return mo.None[eventactions.CalendarBootstrap]()
	}
	member := eventactions.Member{ID: a.cfg.MemberID}
	if len(a.cfg.Addresses) > 0 {
		member.Email = a.cfg.Addresses[0]
		member.AddressID = addressID(0)
	}
	return mo.Some(eventactions.CalendarBootstrap{
		CalendarID: calendarID,
		Members:    []eventactions.Member{member},
	})
}

// query fetches r if needed and returns its expanded events
func (a *app) query(ctx context.Context, calendarID string, r interval.Range) ([]eventstore.Entry, error) {
	h, err := a.cache.EnsureRange(ctx, calendarID, r)
	if err != nil {
		return nil, err
	}
	if err := h.Wait(ctx); err != nil {
		return nil, err
	}
	return a.cache.QueryRange(calendarID, r), nil
}

// find returns the entry of eventID. Occurrences of a series are picked by
// their start; without one the event must not be recurring.
func (a *app) find(ctx context.Context, calendarID, eventID string, at *time.Time) (eventstore.Entry, error) {
	r := a.horizon()
	if at != nil {
		r = interval.NewRange(*at, *at)
	}
	entries, err := a.query(ctx, calendarID, r)
	if err != nil {
		return eventstore.Entry{}, err
	}
	for _, e := range entries {
		if e.EventID != eventID {
			continue
		}
		if at != nil && !e.Start.Equal(*at) {
			continue
		}
		if at == nil && e.Occurrence != nil {
			return eventstore.Entry{}, fmt.Errorf("event %s is recurring, pick an occurrence with --at", eventID)
		}
		return e, nil
	}
	if at != nil {
		return eventstore.Entry{}, fmt.Errorf("event %s has no occurrence at %s", eventID, at.Format(time.RFC3339))
	}
	return eventstore.Entry{}, fmt.Errorf("event %s not found within %d days", eventID, a.cfg.HorizonDays)
}

// horizon is the window around now that list and watch look at
func (a *app) horizon() interval.Range {
	now := a.now().In(a.cfg.Location())
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return interval.NewRange(day.AddDate(0, 0, -a.cfg.HorizonDays), day.AddDate(0, 0, a.cfg.HorizonDays))
}

// content returns the decrypted component of an entry, nil when unreadable
func (a *app) content(ctx context.Context, e eventstore.Entry) *ical.Component {
	decrypted, err := a.cache.Decrypt(ctx, e.Record.Event.CalendarID, e.EventID)
	if err != nil {
		a.logger.Debug("event unreadable", "event_id", e.EventID, "error", err)
		return nil
	}
	return decrypted.Component
}

func (a *app) summary(ctx context.Context, e eventstore.Entry) string {
	comp := a.content(ctx, e)
	if comp == nil {
		return "(unreadable)"
	}
	if s, err := comp.Props.Text(ical.PropSummary); err == nil && s != "" {
		return s
	}
	return "(no title)"
}

// execute prints a plan and applies it unless dryRun
func (a *app) execute(ctx context.Context, out io.Writer, plan *eventactions.Plan, dryRun bool) error {
	if plan.Scope != 0 {
		fmt.Fprintf(out, "scope: %s\n", plan.Scope)
	}
	for _, action := range plan.Actions {
		target := action.EventID
		if target == "" {
			target = "(new event)"
		}
		fmt.Fprintf(out, "%s %s in %s\n", action.Type, target, action.CalendarID)
	}
	if dryRun {
		return nil
	}
	results, err := eventactions.Execute(ctx, plan, a.client, a.cache, eventactions.WithExecuteLogger(a.logger))
	if err != nil {
		return err
	}
	for _, res := range results {
		a.logger.Debug("write applied", "event_id", res.EventID, "sequence", res.Sequence)
	}
	fmt.Fprintf(out, "%d change(s) applied\n", len(results))
	return nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime reads a timestamp; values without offset are in loc
func parseTime(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use RFC 3339 or YYYY-MM-DD[ HH:MM]", value)
}

func parseScope(value string) (eventactions.RecurringType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "single", "this", "1":
		return eventactions.RecurringSingle, nil
	case "future", "following", "2":
		return eventactions.RecurringFuture, nil
	case "all", "3":
		return eventactions.RecurringAll, nil
	}
	return 0, fmt.Errorf("unknown scope %q, use single, future or all", value)
}

// scopeChooser answers scope prompts with the --scope flag, or by asking
// on in when the flag is empty
type scopeChooser struct {
	forced string
	in     *bufio.Reader
	out    io.Writer
}

func newScopeChooser(forced string, in io.Reader, out io.Writer) *scopeChooser {
	return &scopeChooser{forced: forced, in: bufio.NewReader(in), out: out}
}

func (s *scopeChooser) choose(ctx context.Context, candidates []eventactions.RecurringType) (eventactions.RecurringType, error) {
	if s.forced != "" {
		return parseScope(s.forced)
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = fmt.Sprintf("%d) %s", i+1, c)
	}
	fmt.Fprintf(s.out, "This is a recurring event. Apply to: %s? ", strings.Join(names, ", "))

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := s.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			return 0, fmt.Errorf("no scope chosen: %w", a.err)
		}
		line := strings.TrimSpace(a.line)
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(candidates) {
			return candidates[n-1], nil
		}
		return parseScope(line)
	}
}

func (s *scopeChooser) onSave(ctx context.Context, c eventactions.SaveConfirmation) (eventactions.RecurringType, error) {
	return s.choose(ctx, c.Candidates)
}

func (s *scopeChooser) onDelete(ctx context.Context, c eventactions.DeleteConfirmation) (eventactions.RecurringType, error) {
	if c.HasNonCancelledSingleEdits {
		fmt.Fprintln(s.out, "Note: some occurrences were edited separately.")
	}
	return s.choose(ctx, c.Candidates)
}

// formatEntry renders one line of the event list
func formatEntry(e eventstore.Entry, summary string, loc *time.Location) string {
	start, end := e.Start.In(loc), e.End.In(loc)
	var when string
	switch {
	case e.Record.IsAllDay:
		when = start.UTC().Format("2006-01-02") + " all day"
	case start.YearDay() == end.YearDay() && start.Year() == end.Year():
		when = start.Format("2006-01-02 15:04") + "-" + end.Format("15:04")
	default:
		when = start.Format("2006-01-02 15:04") + "-" + end.Format("2006-01-02 15:04")
	}

	line := fmt.Sprintf("%s\t%s\t%s", when, summary, e.EventID)
	if e.Occurrence != nil {
		line += "\t(repeats, --at " + e.Start.Format(time.RFC3339) + ")"
	}
	if !e.Record.Event.IsOrganizer {
		line += "\t(invited)"
	}
	return line
}
