package main

import (
	"fmt"
	"log/slog"

	"github.com/cyp0633/calevents/config"
	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command
type options struct {
	configPath string
	calendar   string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "calevents",
		Short: "Browse and change events of CalDAV calendars",
		Long: `calevents lists the events of CalDAV calendars and edits or deletes them,
including single occurrences, this-and-future splits and whole series of
recurring events.

Commands:
  calendars  Discover the calendars of the account
  list       List events in a time window
  add        Create an event
  edit       Change an event or an occurrence
  delete     Delete an event or an occurrence
  watch      Refresh calendars on a cron schedule`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "Path of the YAML config file")
	root.PersistentFlags().StringVarP(&opts.calendar, "calendar", "c", "", "Calendar name or href, defaults to the first configured calendar")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newCalendarsCmd(opts),
		newListCmd(opts),
		newAddCmd(opts),
		newEditCmd(opts),
		newDeleteCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.cfg = cfg

	level := cfg.Level()
	if o.verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// calendarIDs returns the calendars a command works on: the one picked
// with --calendar, or all configured ones
func (o *options) calendarIDs() ([]string, error) {
	if o.calendar != "" {
		cal, ok := o.cfg.Calendar(o.calendar)
		if !ok {
			return nil, fmt.Errorf("calendar %q is not configured", o.calendar)
		}
		return []string{cal.Href}, nil
	}
	if len(o.cfg.Calendars) == 0 {
		return nil, fmt.Errorf("no calendars configured, run 'calevents calendars' to find some")
	}
	ids := make([]string, 0, len(o.cfg.Calendars))
	for _, cal := range o.cfg.Calendars {
		ids = append(ids, cal.Href)
	}
	return ids, nil
}

// calendarID returns the single calendar a write goes to
func (o *options) calendarID() (string, error) {
	ids, err := o.calendarIDs()
	if err != nil {
		return "", err
	}
	return ids[0], nil
}
