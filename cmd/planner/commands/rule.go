package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/recurrence"
)

// NewRuleCommand creates the rule command with encode and decode subcommands
func NewRuleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Convert between repeat settings and recurrence rules",
	}

	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Build a recurrence rule from repeat settings",
		RunE:  runRuleEncode,
	}
	encodeCmd.Flags().String("preset", "weekly", "none, daily, weekly, monthly, yearly or custom")
	encodeCmd.Flags().String("frequency", "", "frequency of a custom rule")
	encodeCmd.Flags().Int("interval", 1, "repeat every N periods")
	encodeCmd.Flags().IntSlice("weekdays", nil, "weekdays, 0=Sunday..6=Saturday")
	encodeCmd.Flags().String("end", "never", "never, on_date or after_count")
	encodeCmd.Flags().String("until", "", "last date (2006-01-02) for --end on_date")
	encodeCmd.Flags().Int("count", 0, "number of occurrences for --end after_count")
	encodeCmd.Flags().String("start", "", "first occurrence, RFC3339 (default now)")
	encodeCmd.Flags().Bool("all-day", false, "the event lasts whole days")

	decodeCmd := &cobra.Command{
		Use:   "decode <rule>",
		Short: "Show the repeat settings of a stored recurrence rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := json.MarshalIndent(recurrence.Decode(args[0]), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.AddCommand(encodeCmd)
	cmd.AddCommand(decodeCmd)
	return cmd
}

func runRuleEncode(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	preset, _ := flags.GetString("preset")
	frequency, _ := flags.GetString("frequency")
	interval, _ := flags.GetInt("interval")
	weekdays, _ := flags.GetIntSlice("weekdays")
	endMode, _ := flags.GetString("end")
	until, _ := flags.GetString("until")
	count, _ := flags.GetInt("count")
	startText, _ := flags.GetString("start")
	allDay, _ := flags.GetBool("all-day")

	start := time.Now()
	if startText != "" {
		t, err := time.Parse(time.RFC3339, startText)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		start = t
	}

	cfg := domain.RepeatConfig{
		Preset:    domain.RepeatPreset(preset),
		Frequency: frequency,
		Interval:  interval,
		Weekdays:  weekdays,
		EndMode:   domain.RepeatEndMode(endMode),
	}
	if until != "" {
		d, err := time.Parse(time.DateOnly, until)
		if err != nil {
			return fmt.Errorf("invalid --until: %w", err)
		}
		cfg.UntilDate = &d
	}
	if flags.Changed("count") {
		cfg.Count = &count
	}

	rule, ok := recurrence.Build(cfg, start, allDay)
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "(does not repeat)")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), rule.String())
	return nil
}
