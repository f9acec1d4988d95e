package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "taskplan",
	Short: "Capacity-aware scheduler for a task backlog",
	Long: `taskplan assigns dates to the tasks in a backlog so that no working day
is overbooked, sequences run in order and deadlines are met where possible.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./taskplan.yaml", "path to config file (yaml or json)")
	rootCmd.AddCommand(runCmd, calendarCmd, serveCmd, validateCmd, importCmd, historyCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
