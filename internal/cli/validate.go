package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"audiosched/internal/calendar"
	appLog "audiosched/internal/log"
	"audiosched/internal/offset"
	"audiosched/internal/schedule"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the calendar table",
		Long: `Validate the configuration, load the calendar table and check every
offset event against every day of the table without running anything.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts)
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions) error {
	w := cmd.OutOrStdout()

	cfg, ec, err := loadConfigStrict(rootOpts)
	if err != nil {
		return err
	}

	table, err := loadTable(cmd.Context(), rootOpts, cfg)
	if err != nil {
		return WrapExitError(ExitFailure, "calendar table", err)
	}

	// Per-day offset problems are skipped at build time; report them here.
	problems := 0
	for _, et := range ec.Events {
		if !et.Enabled || et.Offset == nil || ec.Skipped(et.Name) {
			continue
		}
		for _, entry := range table {
			if err := offset.Validate(entry, *et.Offset); err != nil {
				problems++
				appLog.Warn("offset invalid on calendar day",
					"event", et.Name, "month", entry.Month, "day", entry.Day, "err", err.Error())
			}
		}
	}

	now := rootOpts.Now().In(ec.Location)
	sched, err := schedule.NewBuilder(ec).Build(table, now)
	if err != nil {
		return WrapExitError(ExitFailure, "schedule build failed", err)
	}

	first, last := table[0], table[len(table)-1]
	if _, err := fmt.Fprintf(w, "calendar: %d days (%02d-%02d .. %02d-%02d)\n",
		len(table), first.Month, first.Day, last.Month, last.Day); err != nil {
		return err
	}
	if _, ok := calendar.Find(table, int(now.Month()), now.Day()); !ok {
		fmt.Fprintf(w, "warning: no calendar entry for today (%s)\n", now.Format("2006-01-02"))
	}
	fmt.Fprintf(w, "schedule: %d events in %d\n", sched.Len(), sched.Year())
	for name, rerr := range sched.Rejected() {
		fmt.Fprintf(w, "rejected today: %s: %v\n", name, rerr)
	}
	if problems > 0 {
		fmt.Fprintf(w, "offsets: %d day(s) skipped, see log\n", problems)
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d offset problem(s)", problems)}
	}
	fmt.Fprintln(w, "ok")
	return nil
}
