package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/calebsyring/critic/internal/models"
)

// The seed command bulk-creates (or removes) monitors under one project,
// for load testing and local development.
func newSeedCommand() *cobra.Command {
	var (
		projectID string
		prefix    string
		count     int
		targetURL string
		frequency time.Duration
		remove    bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bulk-create or delete monitors for a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if projectID == "" {
				projectID = uuid.NewString()
			}

			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if remove {
				for i := 1; i <= count; i++ {
					slug := fmt.Sprintf("%s-%04d", prefix, i)
					if err := store.DeleteMonitor(ctx, projectID, slug); err != nil {
						return err
					}
				}
				log.WithField("count", count).Info("monitors deleted")
				return nil
			}

			for i := 1; i <= count; i++ {
				m := models.New(projectID, fmt.Sprintf("%s-%04d", prefix, i), targetURL)
				m.Frequency = frequency
				if err := m.Validate(); err != nil {
					return err
				}
				if err := store.PutMonitor(ctx, &m); err != nil {
					return err
				}
			}
			log.WithFields(logrus.Fields{
				"project_id": projectID,
				"count":      count,
			}).Info("monitors created")
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project ID to seed under. A fresh one is generated when empty.")
	cmd.Flags().StringVar(&prefix, "prefix", "seed", "Slug prefix for generated monitors.")
	cmd.Flags().IntVar(&count, "count", 10, "Number of monitors to create or delete.")
	cmd.Flags().StringVar(&targetURL, "url", "https://example.com", "Target URL for generated monitors.")
	cmd.Flags().DurationVar(&frequency, "frequency", time.Minute, "Check cadence for generated monitors.")
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete previously seeded monitors instead of creating.")

	return cmd
}
