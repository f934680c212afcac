package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/orderwatch/internal/app"
	"github.com/vladislavdragonenkov/orderwatch/internal/push/kafka"
	"github.com/vladislavdragonenkov/orderwatch/internal/version"
)

type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

// setupLogger настраивает формат и уровень логирования. Пустой level — info.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)
	return nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "orderwatch",
		Short:         "Live order list synchronization",
		Long:          "Keeps a paginated order list in sync with the backend over REST and push events.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to orderwatch.yaml")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides config")

	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newEmitCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Mount the order list and log changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if opts.LogLevel != "" {
				level = opts.LogLevel
			}
			if err := setupLogger(level); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.WithFields(log.Fields{
				"api":          cfg.API.BaseURL,
				"push":         cfg.Push.Transport,
				"metrics_addr": cfg.MetricsAddr,
			}).Info("запускаем orderwatch")

			if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("orderwatch остановлен")
			return nil
		},
	}
}

func newEmitCommand(opts *rootOptions) *cobra.Command {
	emit := app.EmitOptions{}

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Publish an order event to Kafka",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := setupLogger(opts.LogLevel); err != nil {
				return err
			}
			return app.Emit(emit)
		},
	}
	cmd.Flags().StringVar(&emit.OrderID, "order-id", "", "order id")
	cmd.Flags().StringVar(&emit.Status, "status", "", "new order status (Pending, Processing, Shipped, Delivered)")
	cmd.Flags().StringVar(&emit.EventName, "event", kafka.EventTypeOrderUpdated, "event name")
	cmd.Flags().StringVar(&emit.Brokers, "brokers", "localhost:9092", "comma-separated kafka brokers")
	cmd.Flags().StringVar(&emit.Topic, "topic", kafka.TopicOrderEvents, "kafka topic")
	_ = cmd.MarkFlagRequired("order-id")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.WithError(err).Fatal("orderwatch завершился с ошибкой")
	}
}
