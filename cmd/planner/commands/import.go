package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewImportCommand creates the import command
func NewImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Import events from an iCalendar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0])
		},
	}
}

func runImport(cmd *cobra.Command, path string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	res, err := a.imports.Import(context.Background(), f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, ev := range res.Events {
		fmt.Fprintf(out, "#%d %s  %s\n", ev.ID, ev.StartAt.In(a.cfg.Timezone).Format("02.01.2006 15:04"), ev.Title)
	}
	fmt.Fprintf(out, "imported %d, skipped %d, truncated %d, duplicates %d\n",
		len(res.Events), res.Skipped, res.Truncated, res.Duplicates)
	return nil
}
