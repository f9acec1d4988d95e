package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskplan/internal/app"
	"taskplan/internal/notify"
)

var (
	calendarToday string
	calendarDays  int
)

func init() {
	calendarCmd.Flags().StringVar(&calendarToday, "today", "", "plan as of this date (YYYY-MM-DD); defaults to the current date")
	calendarCmd.Flags().IntVar(&calendarDays, "days", notify.DefaultCalendarDays, "days of load bars to print")
}

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Show per-day workload and chain dates without writing anything",
	Args:  cobra.NoArgs,
	RunE:  runCalendar,
}

func runCalendar(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	today, err := resolveToday(calendarToday, a.Today())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rep, err := a.RunOnce(ctx, today, true)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), notify.FormatCalendar(rep.Result, calendarDays))
	return err
}
