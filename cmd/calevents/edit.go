package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/cyp0633/calevents/eventactions"
	"github.com/cyp0633/calevents/recurrence"
	"github.com/emersion/go-ical"
	"github.com/spf13/cobra"
)

// eventChanges are the field flags shared by add and edit
type eventChanges struct {
	summary     string
	location    string
	start       string
	duration    time.Duration
	allDay      bool
	rrule       string
	clearRepeat bool
}

func (c *eventChanges) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.summary, "summary", "", "Event title")
	cmd.Flags().StringVar(&c.location, "location", "", "Event location")
	cmd.Flags().StringVar(&c.start, "start", "", "Start time (RFC 3339 or YYYY-MM-DD[ HH:MM])")
	cmd.Flags().DurationVar(&c.duration, "duration", 0, "Event length, e.g. 1h30m")
	cmd.Flags().BoolVar(&c.allDay, "all-day", false, "Make it an all-day event")
	cmd.Flags().StringVar(&c.rrule, "rrule", "", "Recurrence rule, e.g. FREQ=WEEKLY;BYDAY=MO")
	cmd.Flags().BoolVar(&c.clearRepeat, "no-repeat", false, "Remove the recurrence rule")
}

// touchesRule reports whether the recurrence rule was edited
func (c *eventChanges) touchesRule() bool {
	return c.rrule != "" || c.clearRepeat
}

// apply writes the requested changes onto comp. Moving the start keeps
// the event length unless a duration is given.
func (c *eventChanges) apply(comp *ical.Component, loc *time.Location) error {
	if c.summary != "" {
		comp.Props.SetText(ical.PropSummary, c.summary)
	}
	if c.location != "" {
		comp.Props.SetText(ical.PropLocation, c.location)
	}

	start, end, ok := recurrence.ExtractBasicTimeInfoFromComponent(comp)
	allDay := recurrence.IsAllDay(comp)
	if !ok && c.start == "" {
		return fmt.Errorf("--start is required")
	}
	length := end.Sub(start)
	if c.start != "" {
		t, err := parseTime(c.start, loc)
		if err != nil {
			return err
		}
		start = t
	}
	if c.allDay && !allDay {
		allDay = true
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		length = 24 * time.Hour
	}
	switch {
	case c.duration > 0:
		length = c.duration
	case length <= 0 && allDay:
		length = 24 * time.Hour
	case length <= 0:
		length = time.Hour
	}
	setTimes(comp, start, start.Add(length), allDay)

	switch {
	case c.clearRepeat:
		recurrence.SetRule(comp, nil)
		comp.Props.Del(ical.PropExceptionDates)
	case c.rrule != "":
		rule, err := recurrence.ParseRule(strings.TrimPrefix(c.rrule, "RRULE:"), start.Location())
		if err != nil {
			return err
		}
		recurrence.SetRule(comp, rule)
	}
	return nil
}

func setTimes(comp *ical.Component, start, end time.Time, allDay bool) {
	comp.Props.Del(ical.PropDuration)
	if allDay {
		comp.Props.SetDate(ical.PropDateTimeStart, start)
		comp.Props.SetDate(ical.PropDateTimeEnd, end)
		return
	}
	comp.Props.SetDateTime(ical.PropDateTimeStart, start)
	comp.Props.SetDateTime(ical.PropDateTimeEnd, end)
}

func newAddCmd(opts *options) *cobra.Command {
	var (
		changes eventChanges
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an event",
		Example: `  calevents add --summary "Standup" --start "2024-01-08 09:30" --duration 15m --rrule "FREQ=WEEKLY;BYDAY=MO,WE,FR"
  calevents add --summary "Holiday" --start 2024-08-01 --all-day`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if changes.summary == "" || changes.start == "" {
				return fmt.Errorf("--summary and --start are required")
			}
			calendarID, err := opts.calendarID()
			if err != nil {
				return err
			}
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.close()

			comp := ical.NewComponent(ical.CompEvent)
			if err := changes.apply(comp, opts.cfg.Location()); err != nil {
				return err
			}
			plan, err := a.planner.PlanSave(cmd.Context(), eventactions.SaveRequest{
				CalendarID: calendarID,
				MemberID:   opts.cfg.MemberID,
				Component:  comp,
			})
			if err != nil {
				return err
			}
			return a.execute(cmd.Context(), cmd.OutOrStdout(), plan, dryRun)
		},
	}
	changes.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the planned changes without writing them")
	return cmd
}

func newEditCmd(opts *options) *cobra.Command {
	var (
		changes  eventChanges
		at       string
		scope    string
		partstat string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "edit <event-id>",
		Short: "Change an event or an occurrence",
		Long: `Change an event. For recurring events pick the occurrence with --at; the
change then applies to that occurrence, to it and the following ones, or to
the whole series. The scope is asked for unless --scope is given.

Invitees may only answer: use --partstat ACCEPTED, TENTATIVE or DECLINED.`,
		Example: `  calevents edit /cal/work/standup.ics --at 2024-01-10T09:30:00Z --start "2024-01-10 10:00" --scope single
  calevents edit /cal/work/review.ics --partstat ACCEPTED`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loc := opts.cfg.Location()
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.close()

			calendarID, err := calendarOf(opts, args[0])
			if err != nil {
				return err
			}
			var atTime *time.Time
			if at != "" {
				t, err := parseTime(at, loc)
				if err != nil {
					return err
				}
				atTime = &t
			}
			entry, err := a.find(ctx, calendarID, args[0], atTime)
			if err != nil {
				return err
			}
			content := a.content(ctx, entry)
			if content == nil {
				return fmt.Errorf("event %s cannot be read", args[0])
			}

			comp := eventactions.CloneComponent(content)
			if entry.Occurrence != nil {
				setTimes(comp, entry.Start.In(loc), entry.End.In(loc), entry.Record.IsAllDay)
			}
			if err := changes.apply(comp, loc); err != nil {
				return err
			}

			req := eventactions.SaveRequest{
				Original:           &entry.Record,
				Occurrence:         entry.Occurrence,
				CalendarID:         calendarID,
				Component:          comp,
				HasTouchedRrule:    changes.touchesRule(),
				OnSaveConfirmation: newScopeChooser(scope, cmd.InOrStdin(), cmd.OutOrStdout()).onSave,
				SendReply:          a.client.SendReply,
			}
			if partstat != "" {
				req.InviteActions = eventactions.InviteActions{
					Type:     eventactions.InviteChangePartstat,
					Partstat: strings.ToUpper(partstat),
				}
			}
			plan, err := a.planner.PlanSave(ctx, req)
			if err != nil {
				return err
			}
			return a.execute(ctx, cmd.OutOrStdout(), plan, dryRun)
		},
	}
	changes.register(cmd)
	cmd.Flags().StringVar(&at, "at", "", "Start of the occurrence to change")
	cmd.Flags().StringVar(&scope, "scope", "", "single, future or all; asked for when empty")
	cmd.Flags().StringVar(&partstat, "partstat", "", "Answer an invitation: ACCEPTED, TENTATIVE or DECLINED")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the planned changes without writing them")
	return cmd
}

// calendarOf returns the configured calendar holding eventID, falling
// back to --calendar
func calendarOf(opts *options, eventID string) (string, error) {
	if opts.calendar == "" {
		for _, cal := range opts.cfg.Calendars {
			if strings.HasPrefix(eventID, strings.TrimSuffix(cal.Href, "/")+"/") {
				return cal.Href, nil
			}
		}
	}
	return opts.calendarID()
}
