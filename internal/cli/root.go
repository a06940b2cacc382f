// Package cli wires the engine packages into the audiosched command line.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the process environment for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // "json" | "text"

	// FS and Now are swapped out by tests.
	FS  afero.Fs
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

const defaultConfigPath = "/etc/audiosched/config.yaml"

// NewRootCommand creates the root command for the audiosched CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{FS: afero.NewOsFs(), Now: time.Now})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audiosched",
		Short: "audiosched - scheduled audio event engine",
		Long: `Plays time-of-day audio events derived from a calendar of base timestamps
plus per-event minute offsets, firing each occurrence at most once.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultConfigPath, "path to config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error); overrides config")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSetOffsetCommand(opts))
	cmd.AddCommand(NewExportICSCommand(opts))
	cmd.AddCommand(NewExecutedCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
