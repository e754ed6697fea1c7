package main

import (
	"time"

	"github.com/cyp0633/calevents/eventactions"
	"github.com/spf13/cobra"
)

func newDeleteCmd(opts *options) *cobra.Command {
	var (
		at      string
		scope   string
		decline bool
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:     "delete <event-id>",
		Aliases: []string{"rm"},
		Short:   "Delete an event or an occurrence",
		Long: `Delete an event. For recurring events pick the occurrence with --at and
choose whether to delete only it, it and the following ones, or the whole
series. Invitations can be declined while being removed with --decline.`,
		Example: `  calevents delete /cal/work/standup.ics --at 2024-01-10T09:30:00Z --scope future
  calevents delete /cal/work/party.ics --decline`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
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
				t, err := parseTime(at, opts.cfg.Location())
				if err != nil {
					return err
				}
				atTime = &t
			}
			entry, err := a.find(ctx, calendarID, args[0], atTime)
			if err != nil {
				return err
			}

			req := eventactions.DeleteRequest{
				Original:             entry.Record,
				Occurrence:           entry.Occurrence,
				OnDeleteConfirmation: newScopeChooser(scope, cmd.InOrStdin(), cmd.OutOrStdout()).onDelete,
				SendReply:            a.client.SendReply,
			}
			if decline {
				req.InviteActions = eventactions.InviteActions{
					Type:     eventactions.InviteDecline,
					Partstat: eventactions.PartstatDeclined,
				}
			}
			plan, err := a.planner.PlanDelete(ctx, req)
			if err != nil {
				return err
			}
			return a.execute(ctx, cmd.OutOrStdout(), plan, dryRun)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Start of the occurrence to delete")
	cmd.Flags().StringVar(&scope, "scope", "", "single, future or all; asked for when empty")
	cmd.Flags().BoolVar(&decline, "decline", false, "Decline the invitation before removing it")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the planned changes without writing them")
	return cmd
}
