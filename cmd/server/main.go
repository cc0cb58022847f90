package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/tasksync/internal/config"
	"github.com/garyjia/tasksync/internal/container"
	httpapi "github.com/garyjia/tasksync/internal/interfaces/http"
	"github.com/garyjia/tasksync/pkg/utils"
)

var Version = "1.0.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "tasksync",
		Short:         "Household task sync with approvals, recurrence and an offline queue",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(drainCmd())
	rootCmd.AddCommand(exportHistoryCmd())
	rootCmd.AddCommand(importCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger and starts a container
func bootstrap(ctx context.Context, opts container.Options) (*container.Container, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Family:     cfg.Family.ID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	c, err := container.NewContainer(cfg, logger, opts)
	if err != nil {
		return nil, logger, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, logger, fmt.Errorf("failed to start container: %w", err)
	}
	return c, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, logger, err := bootstrap(ctx, container.Options{})
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer c.Close()

			cfg := c.Config()
			logger.Info("Starting tasksync",
				zap.String("version", Version),
				zap.Int("port", cfg.Server.Port),
				zap.Bool("online", c.Connectivity().Online()))

			services := c.Services()
			server := httpapi.NewServer(httpapi.ServerConfig{
				Host:         cfg.Server.Host,
				Port:         cfg.Server.Port,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}, httpapi.Deps{
				Tasks:        services.Tasks,
				Sync:         services.Sync,
				Connectivity: c.Connectivity(),
				Members:      services.Roster,
				Exporter:     c.Exporter(),
				Translator:   c.Translator(),
				IDs:          c.IDs(),
				Location:     c.Location(),
				Health:       func(ctx context.Context) interface{} { return c.Health(ctx) },
				Logger:       utils.NewServiceLogger(logger, "http"),
			})

			if err := server.Start(ctx); err != nil {
				return err
			}
			logger.Info("Server exited successfully")
			return nil
		},
	}
}
