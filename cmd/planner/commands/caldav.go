package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tazhate/familyplanner/config"
	"github.com/tazhate/familyplanner/internal/clients/caldav"
)

// NewCalDAVCommand creates the caldav command
func NewCalDAVCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caldav",
		Short: "Inspect the CalDAV mirror",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "calendars",
		Short: "List calendars on the configured CalDAV server",
		RunE:  runListCalendars,
	})
	return cmd
}

func runListCalendars(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.CalDAVURL == "" || cfg.CalDAVUsername == "" {
		return fmt.Errorf("CALDAV_URL and CALDAV_USERNAME are required")
	}

	client := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	calendars, err := client.DiscoverCalendars(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, c := range calendars {
		marker := " "
		if c.Path == cfg.CalDAVCalendar {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %s\n", marker, c.Path, c.DisplayName)
	}
	if len(calendars) == 0 {
		fmt.Fprintln(out, "no calendars found")
	}
	return nil
}
