package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/calebsyring/critic/internal/ops"
	"github.com/calebsyring/critic/internal/probe"
	"github.com/calebsyring/critic/internal/sched"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the check scheduler daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func runDaemon(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher, closeDispatcher, err := newDispatcher()
	if err != nil {
		return err
	}
	defer closeDispatcher()

	scheduler := sched.NewScheduler(store, probe.NewHTTPProber(nil), dispatcher, options.Concurrency, log)

	opsServer := ops.NewServer(options.OpsAddr, log)
	opsErr := opsServer.Start()

	log.WithField("tick-interval", options.TickInterval).Info("scheduler daemon started")

	// An immediate tick on startup, then one per interval. A tick that
	// outlives its interval is safe to overlap with the next: the
	// conditional write keeps each due cycle processed at most once.
	tick(ctx, scheduler)
	ticker := time.NewTicker(options.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tick(ctx, scheduler)
		case err := <-opsErr:
			return errors.Wrap(err, "ops server failed")
		case <-ctx.Done():
			log.Info("shutdown signal received")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return opsServer.Shutdown(shutdownCtx)
		}
	}
}

func tick(ctx context.Context, scheduler *sched.Scheduler) {
	started := time.Now()
	processed, err := scheduler.RunDueChecks(ctx, time.Time{})
	if err != nil {
		log.WithError(err).Error("tick failed")
		return
	}
	log.WithFields(logrus.Fields{
		"processed": len(processed),
		"elapsed":   time.Since(started),
	}).Info("tick complete")
}
