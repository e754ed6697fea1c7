package main

import (
	"fmt"
	"path"
	"strings"
	"text/tabwriter"

	"github.com/cyp0633/calevents/config"
	"github.com/cyp0633/calevents/davclient"
	"github.com/spf13/cobra"
)

func newCalendarsCmd(opts *options) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "Discover the calendars of the account",
		Long: `Discover the event calendars of the configured account, following DNS SRV
records and /.well-known/caldav when the server URL does not point at the
principal directly. With --save the calendars are added to the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server := opts.cfg.Server
			if server.URL == "" {
				return fmt.Errorf("server.url is not set in %s", opts.configPath)
			}
			dcfg := davclient.DefaultConfig()
			dcfg.Logger = opts.logger
			calendars, err := davclient.FindCalendarsWithConfig(cmd.Context(), server.URL, server.Username, server.Password, dcfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tHREF\tACCESS")
			for _, cal := range calendars {
				access := "read-write"
				if cal.ReadOnly {
					access = "read-only"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", cal.Name, cal.URI, access)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if !save {
				return nil
			}
			added := mergeCalendars(opts.cfg, calendars)
			if err := config.Save(opts.configPath, opts.cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d calendar(s) added to %s\n", added, opts.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Add the discovered calendars to the config file")
	return cmd
}

// mergeCalendars adds discovered calendars missing from cfg. Names are
// made unique so that they can be used with --calendar.
func mergeCalendars(cfg *config.Config, calendars []davclient.CalendarInfo) int {
	taken := make(map[string]bool, len(cfg.Calendars))
	known := make(map[string]bool, len(cfg.Calendars))
	for _, cal := range cfg.Calendars {
		taken[cal.Name] = true
		known[cal.Href] = true
	}

	added := 0
	for _, cal := range calendars {
		if known[cal.URI] {
			continue
		}
		base := strings.ToLower(strings.Join(strings.Fields(cal.Name), "-"))
		if base == "" {
			base = path.Base(strings.TrimSuffix(cal.URI, "/"))
		}
		name := base
		for i := 2; taken[name]; i++ {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		taken[name] = true
		known[cal.URI] = true
		cfg.Calendars = append(cfg.Calendars, config.CalendarConfig{Name: name, Href: cal.URI})
		added++
	}
	return added
}
