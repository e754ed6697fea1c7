package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cyp0633/calevents/eventstore"
	"github.com/cyp0633/calevents/internal/interval"
	"github.com/spf13/cobra"
)

func newListCmd(opts *options) *cobra.Command {
	var (
		from string
		days int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List events in a time window",
		Long: `List the events of the configured calendars, recurring events expanded
into their occurrences. The window starts today unless --from is given.`,
		Example: `  calevents list
  calevents list --from 2024-01-01 --days 31 -c work`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loc := opts.cfg.Location()
			calendarIDs, err := opts.calendarIDs()
			if err != nil {
				return err
			}
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.close()

			start := a.now().In(loc)
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
			if from != "" {
				if start, err = parseTime(from, loc); err != nil {
					return err
				}
			}
			if days <= 0 {
				days = opts.cfg.HorizonDays
			}
			r := interval.NewRange(start, start.AddDate(0, 0, days))

			var entries []eventstore.Entry
			for _, id := range calendarIDs {
				found, err := a.query(ctx, id, r)
				if err != nil {
					return fmt.Errorf("calendar %s: %w", id, err)
				}
				entries = append(entries, found...)
			}
			sortEntries(entries)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintln(w, formatEntry(e, a.summary(ctx, e), loc))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no events")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Window start (RFC 3339 or YYYY-MM-DD[ HH:MM])")
	cmd.Flags().IntVar(&days, "days", 0, "Window length in days, defaults to horizon_days")
	return cmd
}

// sortEntries orders by start, then by event ID for a stable listing
func sortEntries(entries []eventstore.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Start.Equal(entries[j].Start) {
			return entries[i].Start.Before(entries[j].Start)
		}
		return entries[i].EventID < entries[j].EventID
	})
}
