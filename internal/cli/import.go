package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
}

// ImportResult is the output of import.
type ImportResult struct {
	Database    string `json:"database"`
	Name        string `json:"name,omitempty"`
	Courses     int    `json:"courses"`
	Classes     int    `json:"classes"`
	Competitors int    `json:"competitors"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <event-dir>",
		Short: "Load an event definition into a database",
		Long: `Validate an event definition and save its courses, classes and start
list into the database, creating it if needed. Importing again updates
existing records; punches and results are kept.

Example:
  sportorg import --db ./cup.db ./events/spring`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, dir string, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)

	def, err := loadDefinition(p, dir)
	if def == nil {
		return err
	}

	st, err := openStore(opts.Database, commandLogger(opts.RootOptions))
	if err != nil {
		return err
	}
	defer st.Close()

	if err := def.Apply(cmd.Context(), st); err != nil {
		_ = p.Error("IMPORT_FAILED", err.Error(), nil)
		return WrapExitError(ExitFailure, "import failed", err)
	}

	res := ImportResult{
		Database:    opts.Database,
		Name:        def.Name,
		Courses:     len(def.Courses),
		Classes:     len(def.Classes),
		Competitors: len(def.Competitors),
	}
	return p.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Imported %d courses, %d classes, %d competitors into %s\n",
			res.Courses, res.Classes, res.Competitors, res.Database)
	})
}
