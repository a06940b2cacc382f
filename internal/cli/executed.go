package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"audiosched/internal/store"
)

// ExecutedOptions holds flags for the executed command.
type ExecutedOptions struct {
	Prune bool
}

// NewExecutedCommand creates the executed command.
func NewExecutedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecutedOptions{}

	cmd := &cobra.Command{
		Use:           "executed",
		Short:         "List (and optionally prune) recorded EventIDs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecuted(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "drop ids older than prune_after_days first")

	return cmd
}

func runExecuted(cmd *cobra.Command, rootOpts *RootOptions, opts *ExecutedOptions) error {
	ctx := cmd.Context()
	cfg, ec, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg, rootOpts.FS)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open executed-event store", err)
	}
	defer st.Close()

	w := cmd.OutOrStdout()
	if opts.Prune {
		if cfg.PruneAfterDays <= 0 {
			return &ExitError{Code: ExitCommandError, Message: "pruning is disabled (prune_after_days: 0)"}
		}
		cutoff := today(rootOpts.Now(), ec.Location).AddDate(0, 0, -cfg.PruneAfterDays)
		n, err := st.Prune(ctx, cutoff)
		if err != nil {
			return WrapExitError(ExitFailure, "prune failed", err)
		}
		if rootOpts.Format == "text" {
			fmt.Fprintf(w, "# pruned %d id(s) before %s\n", n, cutoff.Format("2006-01-02"))
		}
	}

	ids := st.IDs()
	if rootOpts.Format == "json" {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, id.String())
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}
