package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskplan/internal/app"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config and open the store",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Validate(cmd.Context()); err != nil {
		return err
	}
	recs, err := a.Store().LoadRecords(cmd.Context())
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "config ok: %s (%d open tasks)\n", configPath, len(recs))
	return err
}
