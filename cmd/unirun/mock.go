package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/unirun/internal/logging"
	"github.com/kingrea/unirun/internal/mockserver"
)

func newMockCmd(flags *globalFlags) *cobra.Command {
	var (
		port  int
		seed  int64
		extra int
	)
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve the order API from memory",
		Long: `mock serves the order API with demo users 1, 2 and 3 and a few fixture
orders. The bearer token is the user id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, err := logging.NewStdout(cfg.File.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			settings := mockserver.SettingsFromConfig(cfg)
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}
			if cmd.Flags().Changed("orders") {
				settings.SeedOrders = extra
			}
			if cmd.Flags().Changed("seed") {
				settings.Seed = seed
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveMock(ctx, settings, logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", mockserver.DefaultPort, "listen port")
	cmd.Flags().IntVar(&extra, "orders", 0, "extra random open orders to seed")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for extra orders")
	return cmd
}

// serveMock blocks until ctx is done, then drains the server.
func serveMock(ctx context.Context, settings mockserver.Settings, logger *zap.Logger) error {
	srv := mockserver.NewServer(settings, mockserver.WithLogger(logger))
	group, groupCtx := errgroup.WithContext(ctx)
	if err := srv.Start(groupCtx); err != nil {
		return err
	}
	logger.Info("sign in with --user 1, 2 or 3", zap.String("api", srv.BaseURL()))
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down mock API")
		return shutdownMock(srv)
	})
	return group.Wait()
}
