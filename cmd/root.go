// Package cmd defines the geodata CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/geodata/internal/app"
	"github.com/JakeFAU/geodata/internal/config"
	"github.com/JakeFAU/geodata/internal/logging"
	"github.com/JakeFAU/geodata/internal/nuts"
	"github.com/JakeFAU/geodata/internal/osmadmin"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const (
	appKey     appKeyType = "app"
	sessionKey appKeyType = "session"
)

// session carries the App started by a command back to the caller of
// executeContext, which flushes it even when the command fails.
type session struct {
	app App
}

func (s *session) finish(ctx context.Context) {
	if s.app == nil {
		return
	}
	if err := s.app.PushMetrics(context.WithoutCancel(ctx)); err != nil {
		s.app.GetLogger().Warn("metrics push failed", zap.Error(err))
	}
	s.app.Close()
	s.app = nil
}

// App is the set of services the commands use.
type App interface {
	Close()
	GetLogger() *zap.Logger
	NutsLoader() *nuts.Loader
	OSMLoader() *osmadmin.Loader
	InitSchema(ctx context.Context) error
	PushMetrics(ctx context.Context) error
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "geodata",
		Short: "Loads NUTS regions and OSM administrative boundaries",
		Long: `geodata fetches the NUTS region vintages published by GISCO, joins them to
an H3 grid, and collects OpenStreetMap administrative boundaries from a
Geofabrik-style mirror. Tables are written to the configured storage backend.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if s, ok := cmd.Context().Value(sessionKey).(*session); ok {
				s.app = appInstance
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); GEODATA_* environment variables override it")

	cmd.AddCommand(newNutsCmd(), newOSMAdminCmd(), newInitSchemaCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// executeContext runs root and then pushes metrics and closes the App the
// command started, whether or not the command succeeded.
func executeContext(ctx context.Context, root *cobra.Command) error {
	s := &session{}
	err := root.ExecuteContext(context.WithValue(ctx, sessionKey, s))
	s.finish(ctx)
	return err
}

// Execute runs the CLI until it finishes or receives SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := executeContext(ctx, newRootCmd())
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "geodata: %v\n", err)
		os.Exit(1)
	}
}
