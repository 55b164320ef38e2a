package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/zomboctl/internal/strategy"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Versions []string `json:"versions,omitempty"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [strategies.cue]",
		Short: "Validate a strategy override file",
		Long: `Check a CUE strategy override against the built-in schema and list
the versions the combined table knows. Without an argument the built-in
table is checked.

Example:
  zomboctl validate ./strategies.cue
  zomboctl validate --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	formatter.VerboseLog("Loading strategies (override: %q)", path)
	table, err := strategy.Load(path)
	if err != nil {
		res := ValidationResult{Error: err.Error()}
		var loadErr *strategy.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			res.File = loadErr.Pos.Filename()
			res.Line = loadErr.Pos.Line()
		}
		if outErr := formatter.Error("E_INVALID_STRATEGY", err.Error(), res); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	res := ValidationResult{Valid: true}
	for _, v := range table.Versions() {
		res.Versions = append(res.Versions, string(v))
	}
	if opts.Format == "json" {
		return formatter.Success(res)
	}
	return formatter.Success(fmt.Sprintf("✓ Strategies valid: %v", res.Versions))
}
