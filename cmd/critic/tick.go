package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/calebsyring/critic/internal/probe"
	"github.com/calebsyring/critic/internal/sched"
)

func newTickCommand() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run a single scheduling tick and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var asOfTime time.Time
			if asOf != "" {
				parsed, err := time.Parse(time.RFC3339, asOf)
				if err != nil {
					return errors.Wrapf(err, "invalid --as-of value %q", asOf)
				}
				asOfTime = parsed
			}

			ctx := cmd.Context()
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
			processed, err := scheduler.RunDueChecks(ctx, asOfTime)
			if err != nil {
				return err
			}

			for _, pm := range processed {
				log.WithFields(logrus.Fields{
					"project_id":        pm.Monitor.ProjectID,
					"slug":              pm.Monitor.Slug,
					"state":             pm.Monitor.State,
					"consecutive_fails": pm.Monitor.ConsecutiveFails,
					"next_due_at":       pm.Monitor.NextDueAt.Format(time.RFC3339),
					"alerted":           pm.Alerted,
				}).Info("monitor processed")
			}
			log.WithField("processed", len(processed)).Info("tick complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "Run the tick as of this RFC3339 instant instead of now.")

	return cmd
}
