package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Detection is one server's detected build.
type Detection struct {
	Server      string `json:"server"`
	ReleaseFile string `json:"release_file"`
	Version     string `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewDetectCommand creates the detect command.
func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [server]...",
		Short: "Show which game build each server runs",
		Long: `Read each server's bundled JRE release file and report the
strategy version it selects (default all servers).

Example:
  zomboctl detect
  zomboctl detect Main --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(rootOpts, args, cmd)
		},
	}
}

func runDetect(opts *RootOptions, names []string, cmd *cobra.Command) error {
	a, err := loadApp(opts, cmd)
	if err != nil {
		return err
	}
	ids, err := a.servers(names)
	if err != nil {
		return err
	}

	detections := make([]Detection, 0, len(ids))
	failed := 0
	for _, id := range ids {
		d := Detection{Server: id.Name, ReleaseFile: id.ReleaseFilePath()}
		strat, err := a.table.Detect(d.ReleaseFile)
		if err != nil {
			d.Error = err.Error()
			failed++
		} else {
			d.Version = string(strat.Version)
		}
		detections = append(detections, d)
	}

	if a.out.Format == "json" {
		if failed > 0 {
			if err := a.out.Error("E_UNKNOWN_VERSION", fmt.Sprintf("%d server(s) undetected", failed), detections); err != nil {
				return err
			}
		} else if err := a.out.Success(detections); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, d := range detections {
			if d.Error != "" {
				fmt.Fprintf(w, "✗ %s: %s\n", d.Server, d.Error)
				continue
			}
			fmt.Fprintf(w, "✓ %s: %s\n", d.Server, d.Version)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d server(s) undetected", failed))
	}
	return nil
}
