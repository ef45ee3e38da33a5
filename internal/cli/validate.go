package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/sportorg/internal/eventdef"
)

// ValidationIssue is one problem found in an event definition.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult is the output of validate.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Name        string            `json:"name,omitempty"`
	Files       int               `json:"files,omitempty"`
	Courses     int               `json:"courses,omitempty"`
	Classes     int               `json:"classes,omitempty"`
	Competitors int               `json:"competitors,omitempty"`
	Errors      []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <event-dir>",
		Short: "Check an event definition",
		Long: `Load the CUE files of an event definition and check them against the
event schema and each other: unknown classes and courses, cards held by
two competitors, malformed times.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(newPrinter(rootOpts, cmd), args[0])
		},
	}
}

func runValidate(p *Printer, dir string) error {
	def, errs := loadDefinition(p, dir)
	if def == nil {
		return errs
	}

	res := ValidationResult{
		Valid:       true,
		Name:        def.Name,
		Files:       def.FileCount,
		Courses:     len(def.Courses),
		Classes:     len(def.Classes),
		Competitors: len(def.Competitors),
	}
	return p.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Event valid: %d courses, %d classes, %d competitors\n", res.Courses, res.Classes, res.Competitors)
	})
}

// loadDefinition loads dir and reports any problems. A missing or empty
// directory is a command error; a definition with problems is a failure.
func loadDefinition(p *Printer, dir string) (*eventdef.Definition, error) {
	def, errs := eventdef.LoadDir(dir)
	if len(errs) == 0 {
		p.Logf("loaded %d CUE file(s) from %s", def.FileCount, dir)
		return def, nil
	}

	issues := make([]ValidationIssue, 0, len(errs))
	for _, err := range errs {
		issues = append(issues, issueOf(err))
	}
	if len(issues) == 1 && (issues[0].Code == eventdef.ErrCodeNotFound || issues[0].Code == eventdef.ErrCodeNoFiles) {
		_ = p.Error(issues[0].Code, issues[0].Message, nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", issues[0].Code, issues[0].Message))
	}

	if p.JSON() {
		_ = p.Error(issues[0].Code, issues[0].Message, ValidationResult{Errors: issues})
	} else {
		fmt.Fprintln(p.Out, "✗ Validation failed")
		fmt.Fprintln(p.Out)
		for _, is := range issues {
			if is.Line > 0 {
				fmt.Fprintf(p.Out, "%s:%d\n", is.File, is.Line)
			}
			fmt.Fprintf(p.Out, "  %s: %s\n\n", is.Code, is.Message)
		}
	}
	return nil, NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}

func issueOf(err error) ValidationIssue {
	var le *eventdef.LoadError
	if !errors.As(err, &le) {
		return ValidationIssue{Code: eventdef.ErrCodeGeneric, Message: err.Error()}
	}
	is := ValidationIssue{Code: le.Code, Message: le.Message}
	if le.Pos.IsValid() {
		is.File = le.Pos.Filename()
		is.Line = le.Pos.Line()
	}
	return is
}
