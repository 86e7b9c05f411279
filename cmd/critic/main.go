package main

import (
	"context"
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/calebsyring/critic/internal/alert"
	"github.com/calebsyring/critic/internal/config"
	"github.com/calebsyring/critic/internal/storage"
	"github.com/calebsyring/critic/internal/storage/postgres"
	"github.com/calebsyring/critic/internal/storage/sqlite"
)

var (
	options    = config.NewDefaultOptions()
	configFile string
	debug      bool

	log = logrus.New()
)

// NewRootCommand creates the root command for critic.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "critic",
		Short:         "HTTP uptime monitor scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if debug {
				log.SetLevel(logrus.DebugLevel)
			}
			if configFile != "" {
				log.WithField("config-file", configFile).Debug("loading config file")
				fileOptions, err := config.ReadFile(configFile)
				if err != nil {
					return err
				}
				if err := mergo.Merge(options, fileOptions, mergo.WithOverride); err != nil {
					return errors.Wrap(err, "failed to merge config file")
				}
			}
			return options.Validate()
		},
	}

	options.AddFlags(cmd)
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file.")
	cmd.PersistentFlags().BoolVar(&debug, "debug", debug, "Enable debug logging.")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newTickCommand())
	cmd.AddCommand(newSeedCommand())

	return cmd
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore creates the configured store backend. The returned closer is
// safe to defer.
func openStore(ctx context.Context) (storage.Storer, func(), error) {
	switch options.DatabaseDriver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, options.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := sqlite.New(ctx, options.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}

// newDispatcher creates the alert dispatcher: NATS when a server is
// configured, the log otherwise.
func newDispatcher() (alert.Dispatcher, func(), error) {
	if options.NATSURL == "" {
		return &alert.LogDispatcher{Log: log}, func() {}, nil
	}
	nc, err := nats.Connect(options.NATSURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to nats")
	}
	return alert.NewNATSDispatcher(nc, options.AlertSubjectPrefix), nc.Close, nil
}
