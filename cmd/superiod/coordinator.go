package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"Superio-Chain/internal/coordinator"
	"Superio-Chain/pkg/logger"
)

func newCoordinatorCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the coin and sentiment data agents",
		Long: `Consume coin and Fear & Greed requests from a shared redis or rabbitmq
bus and reply to the requesting coordinator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Coordinator.Bus == "memory" {
				return errors.New("memory 总线无法跨进程共享，请配置 redis 或 rabbitmq")
			}
			if workers > 0 {
				cfg.Coordinator.Workers = workers
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := openBus(ctx, cfg.Coordinator)
			if err != nil {
				return err
			}
			defer b.Close()

			worker := coordinator.NewWorker(b, a.market, a.sentiment, coordinator.WithWorkerCount(cfg.Coordinator.Workers))
			logger.Named("superiod").Info("数据代理启动", "bus", cfg.Coordinator.Bus, "workers", cfg.Coordinator.Workers)
			if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "consumers per topic, overrides coordinator.workers")
	return cmd
}
