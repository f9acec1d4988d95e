package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"taskplan/internal/app"
	"taskplan/internal/storage"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent planning runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.Store().Runs(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return writeHistory(cmd.OutOrStdout(), runs)
}

func writeHistory(out io.Writer, runs []storage.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs yet.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tTODAY\tSTARTED\tPLACED\tDEGRADED\tDEFERRED\tWARNINGS")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			id, r.Today, humanize.Time(r.StartedAt), r.Placed, r.Degraded, r.Deferred, r.Warnings)
	}
	return w.Flush()
}
