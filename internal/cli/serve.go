package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskplan/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the planner on the daemon schedule",
	Long: `Run the planner on daemon.schedule until interrupted. The config file is
watched and most changes apply without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return a.Serve(ctx)
}
