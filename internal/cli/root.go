package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the zomboctl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "zomboctl",
		Short: "zomboctl - Project Zomboid server admin",
		Long: `Operate Project Zomboid dedicated servers from the command line.

Player operations (online, heal, teleport, restore-skills) send console
commands and confirm their effect in the server's console log. restart
runs an announced, abortable countdown. serve mirrors every server's
in-game support tickets to a chat channel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $ZOMBOCTL_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewOnlineCommand(opts))
	cmd.AddCommand(NewPlayersCommand(opts))
	cmd.AddCommand(NewHealCommand(opts))
	cmd.AddCommand(NewTeleportCommand(opts))
	cmd.AddCommand(NewRestoreSkillsCommand(opts))
	cmd.AddCommand(NewRestartCommand(opts))
	cmd.AddCommand(NewAbortCommand(opts))
	cmd.AddCommand(NewSayCommand(opts))
	cmd.AddCommand(NewTicketsCommand(opts))
	cmd.AddCommand(NewDetectCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
