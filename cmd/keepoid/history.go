package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/keepoid/keepoid/internal/config"
	"github.com/keepoid/keepoid/internal/core"
	"github.com/keepoid/keepoid/internal/journal"
)

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded retention runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "number of runs to show")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show the snapshots pruned by one run")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return core.WrapError(core.ErrConfigMissing, errors.New("--config is required"))
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return core.WrapError(core.ErrConfigMissing, errors.New("journal.path is not set"))
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return core.WrapError(core.ErrJournalFailed, err)
	}
	defer j.Close()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if historyRun != "" {
		actions, err := j.Actions(cmd.Context(), historyRun)
		if err != nil {
			return core.WrapError(core.ErrJournalFailed, err)
		}
		fmt.Fprintln(tw, "SNAPSHOT\tOUTCOME\tERROR")
		for _, a := range actions {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Snapshot, a.Outcome, a.Error)
		}
		return nil
	}

	runs, err := j.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return core.WrapError(core.ErrJournalFailed, err)
	}

	fmt.Fprintln(tw, "RUN\tSTARTED\tDRY RUN\tKEPT\tPENDING\tPRUNED\tFAILED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Started.Format(time.RFC3339), r.DryRun,
			r.Kept, r.Pending, r.Pruned, r.Failed, r.Error)
	}
	return nil
}
