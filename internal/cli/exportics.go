package cli

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"audiosched/internal/ics"
	appLog "audiosched/internal/log"
	"audiosched/internal/model"
)

// ExportICSOptions holds flags for the export-ics command.
type ExportICSOptions struct {
	Out  string
	Days int
}

// NewExportICSCommand creates the export-ics command.
func NewExportICSCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportICSOptions{}

	cmd := &cobra.Command{
		Use:           "export-ics",
		Short:         "Export the upcoming schedule as an iCalendar file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportICS(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&opts.Days, "days", 7, "number of days to export, starting today")

	return cmd
}

func runExportICS(cmd *cobra.Command, rootOpts *RootOptions, opts *ExportICSOptions) error {
	cfg, ec, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	if opts.Days <= 0 {
		opts.Days = 1
	}

	now := rootOpts.Now().In(ec.Location)
	sched, err := buildSchedule(cmd.Context(), rootOpts, cfg, ec, now)
	if err != nil {
		return WrapExitError(ExitFailure, "schedule build failed", err)
	}

	start := today(now, ec.Location)
	var events []model.ScheduledEvent
	for d := 0; d < opts.Days; d++ {
		events = append(events, sched.On(start.AddDate(0, 0, d))...)
	}
	body := ics.Export(events, now)

	if opts.Out == "" {
		_, err := cmd.OutOrStdout().Write(body)
		return err
	}
	if err := afero.WriteFile(rootOpts.FS, opts.Out, body, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write "+opts.Out, err)
	}
	appLog.Info("ics exported", "out", opts.Out, "events", len(events), "days", opts.Days)
	return nil
}
