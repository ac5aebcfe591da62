package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"Superio-Chain/internal/api"
	"Superio-Chain/internal/config"
	"Superio-Chain/internal/coordinator"
	"Superio-Chain/internal/observability/metrics"
	"Superio-Chain/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Start the chat, DeFi analysis and history API.

With the in-process memory bus the coordinator workers run inside this
process; with redis or rabbitmq run "superiod coordinator" separately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if addr != "" {
				cfg.Server.Address = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.address")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("superiod")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rt, err := a.newRouter()
	if err != nil {
		return err
	}

	repo, err := openHistory(ctx, cfg.History, cfg.Runtime.DataDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	b, err := openBus(ctx, cfg.Coordinator)
	if err != nil {
		return err
	}
	defer b.Close()

	coord := coordinator.New(b,
		coordinator.WithLLM(a.llm),
		coordinator.WithTimeout(config.Seconds(cfg.Coordinator.TimeoutSeconds)),
		coordinator.WithLLMTimeout(config.Seconds(cfg.LLM.RequestTimeoutSeconds)),
	)

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := coord.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("协调器异常退出", "error", err)
		}
	}()
	if cfg.Coordinator.Bus == "memory" {
		worker := coordinator.NewWorker(b, a.market, a.sentiment, coordinator.WithWorkerCount(cfg.Coordinator.Workers))
		go func() {
			if err := worker.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("数据代理异常退出", "error", err)
			}
		}()
	}
	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(bgCtx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("指标服务异常退出", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, api.Deps{
		Router:      rt,
		Coordinator: coord,
		History:     newHistoryService(repo, a.llm, cfg),
		Market:      a.market,
		Sentiment:   a.sentiment,
		DeFi:        a.defi,
		Charts:      a.charts,
		Chains:      a.chains,
	})
	log.Info("superiod 启动",
		"address", cfg.Server.Address,
		"bus", cfg.Coordinator.Bus,
		"cache", cfg.Cache.Driver,
		"history", cfg.History.Driver,
		"llm", a.llm != nil,
		"chains", a.chains.Chains(),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
