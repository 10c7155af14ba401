package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keepoid/keepoid/internal/config"
	"github.com/keepoid/keepoid/internal/core"
	"github.com/keepoid/keepoid/internal/journal"
	"github.com/keepoid/keepoid/internal/logging"
	"github.com/keepoid/keepoid/internal/metrics"
	"github.com/keepoid/keepoid/internal/runner"
	"github.com/keepoid/keepoid/internal/zfs"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
	exitList    = 3
	exitDestroy = 4
)

var (
	cfgFile   string
	debug     bool
	dryRun    bool
	nowFlag   string
	snapshots string
	format    string
)

var rootCmd = &cobra.Command{
	Use:   "keepoid",
	Short: "keepoid - ZFS snapshot retention",
	Long: `keepoid decides which ZFS snapshots to keep under a set of interval
retention rules and destroys the rest once they are older than pruneAfter.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return runner.CheckFormat(format)
	},
	RunE: runOnce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (required)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "report the prune set without destroying anything")
	rootCmd.Flags().StringVar(&nowFlag, "now", "", "evaluate as of this RFC3339 time instead of the clock")
	rootCmd.Flags().StringVar(&snapshots, "snapshots", "", "read the snapshot listing from a file ('-' for stdin) instead of zfs")
	rootCmd.Flags().StringVar(&format, "format", runner.FormatText, "report format: text or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "keepoid:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, core.ErrConfigInvalid), errors.Is(err, core.ErrConfigMissing):
		return exitConfig
	case errors.Is(err, core.ErrListFailed):
		return exitList
	case errors.Is(err, core.ErrDestroyFailed):
		return exitDestroy
	default:
		return exitFailure
	}
}

// setup loads the configuration and builds the logger from it.
func setup() (*config.Config, *zap.Logger, error) {
	if cfgFile == "" {
		return nil, nil, core.WrapError(core.ErrConfigMissing, errors.New("--config is required"))
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	log, err := logging.New(cfg.Logging, debug)
	if err != nil {
		return nil, nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	return cfg, log, nil
}

// newRunner wires the collaborators described by cfg. The returned func
// releases them.
func newRunner(cfg *config.Config, log *zap.Logger, reg *metrics.Registry) (*runner.Runner, func(), error) {
	client := zfs.New(cfg.ZFS.Command, log, zfs.WithRetries(cfg.ZFS.DestroyRetries))

	var lister runner.Lister = client
	if snapshots != "" {
		lister = runner.FileLister{Path: snapshots, Log: log}
	}

	opts := []runner.Option{}
	cleanup := func() {}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, nil, core.WrapError(core.ErrJournalFailed, err)
		}
		opts = append(opts, runner.WithJournal(j))
		cleanup = func() { j.Close() }
	}

	if reg == nil && cfg.Metrics.Textfile != "" {
		reg = metrics.NewRegistry(false)
	}
	if reg != nil {
		opts = append(opts, runner.WithMetrics(reg))
	}

	return runner.New(cfg, lister, client, log, opts...), cleanup, nil
}

func parseNow(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--now: %w", err)
	}
	return t, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	now, err := parseNow(nowFlag)
	if err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	r, cleanup, err := newRunner(cfg, log, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = r.Run(cmd.Context(), runner.Options{
		DryRun: dryRun,
		Now:    now,
		Output: cmd.OutOrStdout(),
		Format: format,
	})
	return err
}
