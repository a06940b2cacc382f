package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"audiosched/internal/ics"
	"audiosched/internal/model"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	Date string
	// ICS reads events from a file written by export-ics instead of building.
	ICS string
}

type eventJSON struct {
	ID    string   `json:"id"`
	At    string   `json:"at"`
	Type  string   `json:"type"`
	Audio []string `json:"audio,omitempty"`
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{}

	cmd := &cobra.Command{
		Use:           "schedule",
		Short:         "Print the events built for one day",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Date, "date", "d", "", "day to print (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&opts.ICS, "ics", "", "print events from an exported .ics file")

	return cmd
}

func runSchedule(cmd *cobra.Command, rootOpts *RootOptions, opts *ScheduleOptions) error {
	cfg, ec, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}

	day := today(rootOpts.Now(), ec.Location)
	if opts.Date != "" {
		day, err = time.ParseInLocation("2006-01-02", opts.Date, ec.Location)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --date", err)
		}
	}

	var events []model.ScheduledEvent
	if opts.ICS != "" {
		events, err = eventsFromICS(rootOpts, opts.ICS, day)
		if err != nil {
			return err
		}
	} else {
		sched, err := buildSchedule(cmd.Context(), rootOpts, cfg, ec, day)
		if err != nil {
			return WrapExitError(ExitFailure, "schedule build failed", err)
		}
		events = sched.On(day)
	}

	if rootOpts.Format == "json" {
		return writeEventsJSON(cmd.OutOrStdout(), events)
	}
	return writeEventsText(cmd.OutOrStdout(), day, events)
}

func eventsFromICS(rootOpts *RootOptions, path string, day time.Time) ([]model.ScheduledEvent, error) {
	body, err := afero.ReadFile(rootOpts.FS, path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot read "+path, err)
	}
	all, err := ics.ParseExport(body, day.Location())
	if err != nil {
		return nil, WrapExitError(ExitFailure, "cannot parse "+path, err)
	}
	var out []model.ScheduledEvent
	for _, ev := range all {
		if ev.At.Year() == day.Year() && ev.At.YearDay() == day.YearDay() {
			out = append(out, ev)
		}
	}
	return out, nil
}

func writeEventsText(w io.Writer, day time.Time, events []model.ScheduledEvent) error {
	if _, err := fmt.Fprintf(w, "# %s %s (%d events)\n", day.Format("2006-01-02"), day.Location(), len(events)); err != nil {
		return err
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-16s %s", ev.At.Format("15:04"), ev.Type, model.JoinManifest(ev.Audio))
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

func writeEventsJSON(w io.Writer, events []model.ScheduledEvent) error {
	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, eventJSON{
			ID:    ev.ID().String(),
			At:    ev.At.Format(time.RFC3339),
			Type:  ev.Type,
			Audio: ev.Audio,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
