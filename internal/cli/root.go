// Package cli implements casectl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/app"
	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/observability"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
)

// RootCmd returns the casectl command tree.
func RootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "casectl",
		Short:         "Operate the case service: migrations, SLA sweeps and the notification outbox",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(MigrateCmd())
	root.AddCommand(SweepCmd())
	root.AddCommand(DispatchCmd())
	root.AddCommand(OutboxCmd())
	root.AddCommand(TokenCmd())
	return root
}

func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger.Named("casectl"), nil
}

// withContainer builds the service graph for the duration of fn. SIGINT and
// SIGTERM cancel the context passed to fn.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()
	return fn(ctx, container)
}
