package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskplan/internal/app"
	"taskplan/internal/notify"
	"taskplan/internal/plan"
)

var (
	runToday    string
	runDryRun   bool
	runMaxLines int
)

func init() {
	runCmd.Flags().StringVar(&runToday, "today", "", "plan as of this date (YYYY-MM-DD); defaults to the current date")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the schedule without writing it back")
	runCmd.Flags().IntVar(&runMaxLines, "max-lines", 50, "placements to print (0 prints none)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Plan the backlog once and write the dates back",
	Args:  cobra.NoArgs,
	RunE:  runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	today, err := resolveToday(runToday, a.Today())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rep, err := a.RunOnce(ctx, today, runDryRun)
	if err != nil {
		return err
	}
	id := rep.RunID
	if rep.DryRun {
		id = "dry-run"
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), notify.FormatSummary(id, rep.Result, runMaxLines))
	return err
}

// resolveToday parses an explicit --today or falls back to def.
func resolveToday(raw string, def plan.Date) (plan.Date, error) {
	if raw == "" {
		return def, nil
	}
	d, err := plan.ParseDate(raw)
	if err != nil {
		return 0, fmt.Errorf("--today: %w", err)
	}
	return d, nil
}
