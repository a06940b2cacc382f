package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"audiosched/internal/calendar"
	appLog "audiosched/internal/log"
	"audiosched/internal/model"
	"audiosched/internal/offset"
)

// NewSetOffsetCommand creates the set-offset command.
func NewSetOffsetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-offset <event> <minutes>",
		Short: "Change an event's minute offset",
		Long: `Change the offset of an offset-based event. The value is checked against
today's calendar entry and rejected, keeping the previous value, when it
violates a bound.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "minutes must be an integer", err)
			}
			return runSetOffset(cmd, rootOpts, args[0], minutes)
		},
	}

	return cmd
}

func runSetOffset(cmd *cobra.Command, rootOpts *RootOptions, name string, minutes int) error {
	cfg, ec, err := loadConfigStrict(rootOpts)
	if err != nil {
		return err
	}

	if _, ok := ec.Event(name); !ok {
		return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("unknown event %q", name)}
	}

	table, err := loadTable(cmd.Context(), rootOpts, cfg)
	if err != nil {
		return WrapExitError(ExitFailure, "calendar table", err)
	}
	now := rootOpts.Now().In(ec.Location)
	entry, haveToday := calendar.Find(table, int(now.Month()), now.Day())
	if !haveToday {
		appLog.Warn("no calendar entry for today; only static bounds are checked", "date", now.Format("2006-01-02"))
	}

	check := func(r model.OffsetRule) error {
		if !haveToday {
			return nil
		}
		return offset.Validate(entry, r)
	}
	if err := cfg.SetOffset(name, minutes, check); err != nil {
		return WrapExitError(ExitFailure, "offset rejected", err)
	}
	if err := cfg.Save(rootOpts.FS, rootOpts.ConfigPath); err != nil {
		return WrapExitError(ExitCommandError, "failed to save config", err)
	}

	appLog.Info("offset updated", "event", model.FoldName(name), "minutes", minutes)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d minutes\n", model.FoldName(name), minutes)
	return err
}
