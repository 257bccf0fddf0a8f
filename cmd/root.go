// Package cmd defines the linkpipe CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkpipe/internal/app"
	"github.com/JakeFAU/linkpipe/internal/config"
	"github.com/JakeFAU/linkpipe/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it to isolate the
// Prometheus registry.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd builds the command tree. The returned func closes the App built
// by PersistentPreRunE, if any, and must run after Execute whatever its result.
func newRootCmd() (*cobra.Command, func(context.Context) error) {
	var (
		cfgFile     string
		appInstance *app.App
	)
	cmd := &cobra.Command{
		Use:   "linkpipe",
		Short: "Fetch seed pages and stream the links found on them.",
		Long: `linkpipe fetches a list of seed pages concurrently, extracts every anchor
from each page, normalizes the links against the page they were found on and
writes them out as they are produced.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				File:        cfg.Logging.File,
				MaxSizeMB:   cfg.Logging.MaxSizeMB,
				MaxBackups:  cfg.Logging.MaxBackups,
				MaxAgeDays:  cfg.Logging.MaxAgeDays,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err = newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newExtractCmd(), newServeCmd())

	closeApp := func(ctx context.Context) error {
		if appInstance == nil {
			return nil
		}
		err := appInstance.Close(context.WithoutCancel(ctx))
		// Sync fails on terminals; there is nothing left to report it to.
		_ = appInstance.Logger().Sync()
		return err
	}
	return cmd, closeApp
}

// run executes the CLI with args and always releases the App afterwards.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	root, closeApp := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, closeApp(ctx))
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits 1 on error. SIGINT and SIGTERM
// cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
