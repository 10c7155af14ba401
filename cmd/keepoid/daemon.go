package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keepoid/keepoid/internal/config"
	"github.com/keepoid/keepoid/internal/core"
	"github.com/keepoid/keepoid/internal/mailbox"
	"github.com/keepoid/keepoid/internal/metrics"
	"github.com/keepoid/keepoid/internal/runner"
	"github.com/keepoid/keepoid/internal/watcher"
	"github.com/keepoid/keepoid/internal/worker"
)

var runAtStart bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run retention on the configured schedule",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&runAtStart, "run-at-start", false, "run once immediately instead of waiting for the first tick")
	rootCmd.AddCommand(daemonCmd)
}

// scheduler keeps a single cron entry in sync with the configured schedule.
type scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string
	submit   func()
}

func (s *scheduler) set(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == s.schedule && s.entry != 0 {
		return nil
	}
	id, err := s.cron.AddFunc(schedule, s.submit)
	if err != nil {
		return err
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = id
	s.schedule = schedule
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Schedule == "" {
		return core.WrapError(core.ErrConfigMissing, errors.New("schedule is required in daemon mode"))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry(true)
	r, cleanup, err := newRunner(cfg, log, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	mb := mailbox.New[worker.Job]()
	w := worker.New(mb, func(ctx context.Context, job worker.Job) error {
		_, err := r.Run(ctx, runner.Options{
			DryRun: dryRun,
			Output: cmd.OutOrStdout(),
			Format: format,
		})
		return err
	}, log)

	c := cron.New(cron.WithLocation(cfg.Location()))
	sched := &scheduler{cron: c, submit: func() { w.Submit(worker.ReasonSchedule) }}
	if err := sched.set(cfg.Schedule); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	c.Start()
	defer c.Stop()

	var (
		reloadMu sync.Mutex
		watch    *watcher.Watcher
	)
	reload := func() {
		reloadMu.Lock()
		defer reloadMu.Unlock()

		newCfg, err := config.Load(cfgFile)
		if err != nil {
			log.Error("config reload failed, keeping previous configuration", zap.Error(err))
			return
		}
		if err := sched.set(newCfg.Schedule); err != nil {
			log.Error("config reload failed, keeping previous configuration", zap.Error(err))
			return
		}

		// journal, metrics listener and zfs settings need a restart
		r.UpdateConfig(newCfg)
		if watch != nil {
			watch.UpdateConfig(newCfg.ConfigReload)
		}
		log.Info("configuration reloaded", zap.String("schedule", newCfg.Schedule))
		w.Submit(worker.ReasonReload)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Start(ctx)
	}()

	if cfg.ConfigReload.Enabled {
		watch = watcher.New(cfgFile, cfg.ConfigReload, log, reload)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watch.Start(ctx); err != nil {
				log.Error("config watcher stopped", zap.Error(err))
			}
		}()
	}

	// Hot reload on SIGHUP
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info("SIGHUP received")
				reload()
			}
		}
	}()

	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Info("metrics listener started", zap.String("addr", cfg.Metrics.Listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	if runAtStart {
		w.Submit(worker.ReasonStartup)
	}
	log.Info("daemon started", zap.String("schedule", cfg.Schedule), zap.Bool("dryRun", dryRun))

	<-ctx.Done()
	log.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics listener shutdown", zap.Error(err))
		}
	}

	wg.Wait()
	log.Info("exit complete")
	return nil
}
