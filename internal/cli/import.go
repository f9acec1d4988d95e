package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"taskplan/internal/app"
	"taskplan/internal/storage"
)

var importFrom string

func init() {
	importCmd.Flags().StringVar(&importFrom, "from", "", "backlog file to import (yaml or json)")
	_ = importCmd.MarkFlagRequired("from")
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Merge a backlog file into the configured store",
	Long: `Merge projects and tasks from a backlog file into the configured store.
Projects match by name, tasks by id; tasks without an id are added.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	doc, err := readBacklog(importFrom)
	if err != nil {
		return err
	}

	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Store().Import(cmd.Context(), *doc); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d projects, %d tasks from %s\n",
		len(doc.Projects), len(doc.Tasks), importFrom)
	return err
}

func readBacklog(path string) (*storage.Backlog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var isYAML bool
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		isYAML = true
	case ".json":
	default:
		return nil, fmt.Errorf("%s: unsupported backlog format (want .yaml, .yml or .json)", path)
	}
	doc, err := storage.DecodeBacklog(b, isYAML)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
