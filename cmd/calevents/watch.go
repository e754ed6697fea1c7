package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// watcher refetches calendars whose collection tag moved
type watcher struct {
	app         *app
	out         io.Writer
	calendarIDs []string
	tags        map[string]string
}

func newWatcher(a *app, out io.Writer, calendarIDs []string) *watcher {
	return &watcher{app: a, out: out, calendarIDs: calendarIDs, tags: make(map[string]string)}
}

// refresh checks every calendar once. A failing calendar is logged and
// retried on the next run.
func (w *watcher) refresh(ctx context.Context) {
	for _, id := range w.calendarIDs {
		if ctx.Err() != nil {
			return
		}
		tag, err := w.app.client.CalendarTag(ctx, id)
		if err != nil {
			w.app.logger.Warn("calendar tag unavailable", "calendar_id", id, "error", err)
			continue
		}
		previous, seen := w.tags[id]
		if seen && previous == tag {
			w.app.logger.Debug("calendar unchanged", "calendar_id", id, "tag", tag)
			continue
		}

		if seen {
			w.app.cache.InvalidateCalendar(id)
		}
		entries, err := w.app.query(ctx, id, w.app.horizon())
		if err != nil {
			w.app.logger.Warn("calendar refresh failed", "calendar_id", id, "error", err)
			continue
		}
		w.tags[id] = tag
		if seen {
			fmt.Fprintf(w.out, "%s changed, %d event(s) within %d days\n", id, len(entries), w.app.cfg.HorizonDays)
		} else {
			fmt.Fprintf(w.out, "%s loaded, %d event(s) within %d days\n", id, len(entries), w.app.cfg.HorizonDays)
		}
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Refresh calendars on a cron schedule",
		Long: `Keep the calendars loaded and refetch them whenever the server reports a
change. The schedule is the "refresh" cron expression of the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calendarIDs, err := opts.calendarIDs()
			if err != nil {
				return err
			}
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := newWatcher(a, cmd.OutOrStdout(), calendarIDs)
			w.refresh(ctx)

			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
			if _, err := c.AddFunc(opts.cfg.RefreshCron, func() { w.refresh(ctx) }); err != nil {
				return fmt.Errorf("invalid refresh schedule %q: %w", opts.cfg.RefreshCron, err)
			}
			c.Start()
			a.logger.Info("watching calendars", "calendars", len(calendarIDs), "schedule", opts.cfg.RefreshCron)

			<-ctx.Done()
			<-c.Stop().Done()
			a.logger.Info("watch stopped")
			return nil
		},
	}
}
