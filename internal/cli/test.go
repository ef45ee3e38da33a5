package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/sportorg/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Golden string // directory of <name>.golden files
	Update bool   // regenerate golden files
	Filter string // glob on scenario names
	Order  bool   // also check arrival order independence
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
	// OrderIndependent is set with --order.
	OrderIndependent *bool `json:"order_independent,omitempty"`
}

// TestResult is the output of test.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run race scenarios",
		Long: `Run YAML race scenarios: each registers competitors, feeds punches and
commands to a fresh in-memory engine and checks the final statuses,
splits and rankings. With --golden, the final rankings are also compared
with <name>.golden files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  sportorg test ./scenarios
  sportorg test ./scenarios --golden ./golden --filter "penalty*"
  sportorg test ./scenarios --golden ./golden --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only scenarios whose name matches this glob")
	cmd.Flags().BoolVar(&opts.Order, "order", false, "report whether results depend on punch arrival order")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)

	if _, err := os.Stat(dir); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update needs --golden")
	}
	if _, err := filepath.Match(opts.Filter, ""); err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	scenarios, err := harness.LoadDir(dir)
	if err != nil {
		_ = p.Error("SCENARIO_LOAD_FAILED", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}

	res := TestResult{Scenarios: []ScenarioResult{}}
	for _, sc := range scenarios {
		if opts.Filter != "" {
			if ok, _ := filepath.Match(opts.Filter, sc.Name); !ok {
				continue
			}
		}
		sr := runScenario(opts, sc)
		res.Scenarios = append(res.Scenarios, sr)
		res.Total++
		if sr.Pass {
			res.Passed++
		} else {
			res.Failed++
		}
	}

	if err := p.Success(res, func(w io.Writer) { printTests(w, res) }); err != nil {
		return err
	}
	if res.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", res.Failed, res.Total))
	}
	return nil
}

func runScenario(opts *TestOptions, sc *harness.Scenario) ScenarioResult {
	sr := ScenarioResult{Name: sc.Name}
	res, err := harness.Run(sc)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Pass, sr.Errors = res.Pass, res.Errors

	if opts.Golden != "" {
		if err := checkGolden(opts, sc.Name, harness.Render(res)); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, err.Error())
		}
	}

	if opts.Order {
		report, err := harness.CheckOrderIndependence(sc)
		if err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("order check failed: %v", err))
		} else {
			sr.OrderIndependent = &report.Independent
		}
	}
	return sr
}

func checkGolden(opts *TestOptions, name string, got []byte) error {
	path := filepath.Join(opts.Golden, name+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return fmt.Errorf("update golden: %w", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			return fmt.Errorf("update golden: %w", err)
		}
		return nil
	}
	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read golden: %w", err)
	}
	if !bytes.Equal(want, got) {
		return fmt.Errorf("golden mismatch in %s:\n--- want\n%s--- got\n%s", path, want, got)
	}
	return nil
}

func printTests(w io.Writer, res TestResult) {
	if res.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, sr := range res.Scenarios {
		mark := "✓"
		if !sr.Pass {
			mark = "✗"
		}
		line := fmt.Sprintf("%s %s", mark, sr.Name)
		if sr.OrderIndependent != nil && !*sr.OrderIndependent {
			line += " (order dependent)"
		}
		fmt.Fprintln(w, line)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", res.Passed, res.Failed, res.Total)
}
