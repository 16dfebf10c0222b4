package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/unirun/internal/config"
	"github.com/kingrea/unirun/internal/eventbus"
	"github.com/kingrea/unirun/internal/logbook"
	"github.com/kingrea/unirun/internal/logging"
	"github.com/kingrea/unirun/internal/mockserver"
	"github.com/kingrea/unirun/internal/order"
	"github.com/kingrea/unirun/internal/tui"
)

const journeyLogName = "journey.log"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dir    string
	user   string
	token  string
	apiURL string
	save   bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	var withMock bool

	root := &cobra.Command{
		Use:   "unirun",
		Short: "Campus errand marketplace in your terminal",
		Long: `unirun lists open campus errands and opens a live detail screen for each one.
The detail screen polls the order, offers the actions your role allows and
keeps a chat thread with the other party.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClient(cmd.Context(), flags, "", withMock)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.dir, "dir", "", "project directory holding .unirun (default is the current directory)")
	pf.StringVar(&flags.user, "user", "", "signed-in user id")
	pf.StringVar(&flags.token, "token", "", "bearer token (the mock API accepts the user id)")
	pf.StringVar(&flags.apiURL, "api", "", "order API base URL, for example http://127.0.0.1:5000/api")
	pf.BoolVar(&flags.save, "save", false, "persist --user and --token to .unirun/config.yaml")
	root.Flags().BoolVar(&withMock, "mock", false, "serve the mock API in-process and point the client at it")

	root.AddCommand(newOrderCmd(flags), newMockCmd(flags))
	return root
}

func newOrderCmd(flags *globalFlags) *cobra.Command {
	var withMock bool
	cmd := &cobra.Command{
		Use:   "order <id>",
		Short: "Open the detail screen for one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), flags, strings.TrimSpace(args[0]), withMock)
		},
	}
	cmd.Flags().BoolVar(&withMock, "mock", false, "serve the mock API in-process and point the client at it")
	return cmd
}

// loadConfig initializes .unirun and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	dir := strings.TrimSpace(flags.dir)
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		dir = cwd
	}
	if err := config.InitDir(dir); err != nil {
		return nil, fmt.Errorf("initialize .unirun directory: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if url := strings.TrimRight(strings.TrimSpace(flags.apiURL), "/"); url != "" {
		cfg.File.API.BaseURL = url
	}
	if user := strings.TrimSpace(flags.user); user != "" {
		cfg.File.Viewer.UserID = user
		if strings.TrimSpace(flags.token) == "" && cfg.File.API.Token == "" {
			cfg.File.API.Token = user
		}
	}
	if token := strings.TrimSpace(flags.token); token != "" {
		cfg.File.API.Token = token
	}
	if flags.save && cfg.File.Viewer.UserID != "" {
		if err := cfg.SetViewer(cfg.File.Viewer.UserID, cfg.File.API.Token); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// runClient runs the TUI until the user quits. With withMock the mock API is
// served alongside and shut down afterwards.
func runClient(ctx context.Context, flags *globalFlags, orderID string, withMock bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogsDir(), cfg.File.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), journeyLogName))
	if err != nil {
		logger.Warn("journey log unavailable", zap.Error(err))
		lb = nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)

	if withMock {
		srv := mockserver.NewServer(mockserver.SettingsFromConfig(cfg), mockserver.WithLogger(logger.Named("mock")))
		if err := srv.Start(groupCtx); err != nil {
			return err
		}
		cfg.File.API.BaseURL = srv.BaseURL()
		group.Go(func() error {
			<-groupCtx.Done()
			return shutdownMock(srv)
		})
	}

	bus := eventbus.New(eventbus.WithLogger(logging.Printf{L: logger.Named("bus")}))
	opts := []tui.AppOption{
		tui.WithBus(bus),
		tui.WithLogger(logger),
		tui.WithLogbook(lb),
	}
	if orderID != "" {
		opts = append(opts, tui.WithInitialOrder(order.ID(orderID)))
	}
	app, err := tui.NewApp(cfg, opts...)
	if err != nil {
		return err
	}
	logger.Info("client starting",
		zap.String("api", cfg.File.API.BaseURL),
		zap.String("user", cfg.File.Viewer.UserID),
		zap.Bool("mock", withMock),
	)

	group.Go(func() error {
		defer cancel()
		defer app.Close()
		program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(groupCtx))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("run TUI: %w", err)
		}
		return nil
	})
	return group.Wait()
}

func shutdownMock(srv *mockserver.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
