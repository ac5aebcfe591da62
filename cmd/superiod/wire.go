package main

import (
	"context"
	"errors"
	"os"

	"Superio-Chain/internal/config"
	"Superio-Chain/internal/coordinator/bus"
	"Superio-Chain/internal/gateway"
	"Superio-Chain/internal/gateway/blockscout"
	"Superio-Chain/internal/gateway/chartimg"
	"Superio-Chain/internal/gateway/coingecko"
	"Superio-Chain/internal/gateway/defillama"
	"Superio-Chain/internal/gateway/feargreed"
	"Superio-Chain/internal/gateway/httpx"
	"Superio-Chain/internal/history"
	"Superio-Chain/internal/intent"
	"Superio-Chain/internal/knowledge"
	"Superio-Chain/internal/llm"
	"Superio-Chain/internal/llm/openai"
	"Superio-Chain/internal/observability/alerting"
	"Superio-Chain/internal/router"
	"Superio-Chain/internal/storage/mysql"
	"Superio-Chain/internal/storage/redis"
	"Superio-Chain/internal/storage/sqlite"
	"Superio-Chain/internal/web3"
	"Superio-Chain/internal/web3/provider"
	"Superio-Chain/pkg/logger"
)

// app 持有进程内共享的客户端与需要关闭的资源。
type app struct {
	cfg       *config.Config
	llm       llm.Client
	http      *httpx.Client
	cache     gateway.Cache
	market    *coingecko.Client
	sentiment *feargreed.Client
	defi      *defillama.Client
	explorer  *blockscout.Client
	charts    *chartimg.Client
	catalog   web3.Catalog
	chains    *provider.Registry
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	a.llm = newLLMClient(cfg)

	cache, closer, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.cache = cache
	a.onClose(closer)

	g := cfg.Gateways
	a.http = httpx.New(config.Seconds(g.TimeoutSeconds), g.Retries)
	a.market = coingecko.New(a.http, a.cache, coingecko.Config{
		BaseURL:  g.CoinGecko.BaseURL,
		APIKey:   g.CoinGecko.APIKey,
		CacheTTL: config.Seconds(g.CoinGecko.CacheTTLSeconds),
	})
	a.sentiment = feargreed.New(a.http, a.cache, g.FearGreed.BaseURL, config.Seconds(g.FearGreed.CacheTTLSeconds))
	a.defi = defillama.New(a.http, a.cache, defillama.Config{
		APIBase:    g.DefiLlama.APIBase,
		YieldsBase: g.DefiLlama.YieldsBase,
		ProBase:    g.DefiLlama.ProBase,
		APIKey:     g.DefiLlama.APIKey,
		PoolsTTL:   config.Seconds(g.DefiLlama.PoolsTTLSeconds),
	})
	a.explorer = blockscout.New(a.http, a.cache, blockscout.Config{URL: g.Blockscout.URL}, config.Seconds(g.Blockscout.CacheTTLSeconds))
	a.charts = chartimg.New(a.http, chartimg.Config{BaseURL: g.ChartIMG.BaseURL, APIKey: g.ChartIMG.APIKey, Dir: g.ChartIMG.Dir})

	catalog, err := web3.LoadCatalog(cfg.Web3.ChainConfig)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.catalog = catalog
	a.chains = provider.NewRegistry(ctx, catalog)
	a.onClose(func() error {
		a.chains.Close()
		return nil
	})
	return a, nil
}

func (a *app) onClose(fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

// Close 按创建的逆序释放资源。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.L().Warn("释放资源失败", "error", err)
		}
	}
	a.closers = nil
}

// newLLMClient 在缺少 API Key 时返回 nil，路由与协调器会退回关键字与阈值逻辑。
func newLLMClient(cfg *config.Config) llm.Client {
	client, err := openai.NewClient(openai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: config.Seconds(cfg.LLM.TimeoutSeconds),
	})
	if err != nil {
		logger.L().Warn("大模型客户端不可用，使用降级逻辑", "api_key_env", cfg.LLM.APIKeyEnv, "error", err)
		return nil
	}
	return client
}

func openCache(ctx context.Context, cfg config.CacheConfig) (gateway.Cache, func() error, error) {
	switch cfg.Driver {
	case "sqlite":
		c, err := sqlite.Open(cfg.Path, cfg.LockPath)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case "redis":
		c, err := redis.Open(ctx, redis.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return gateway.NopCache{}, nil, nil
	}
}

func openBus(ctx context.Context, cfg config.CoordinatorConfig) (bus.Bus, error) {
	switch cfg.Bus {
	case "redis":
		return bus.OpenRedis(ctx, bus.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	case "rabbitmq":
		return bus.OpenRabbitMQ(bus.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  cfg.RabbitMQ.Durable,
		})
	case "memory":
		return bus.NewMemoryBus(256), nil
	default:
		return nil, errors.New("未知的消息总线: " + cfg.Bus)
	}
}

func openHistory(ctx context.Context, cfg config.HistoryConfig, dataDir string) (mysql.ChatRepository, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.NewSQLChatRepository(ctx, mysql.Config{
			DSN:          cfg.DSN,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
		})
	default:
		return mysql.NewMemoryChatRepository(dataDir)
	}
}

func buildAlerts(cfg config.AlertingConfig, client *httpx.Client) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if !cfg.DisableLog {
		notifiers = append(notifiers, alerting.LogNotifier{})
	}
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    &alerting.SlackWebhook{URL: cfg.SlackWebhookURL, HTTP: client},
			ChannelID: cfg.SlackChannel,
		})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

func loadKnowledge(cfg config.KnowledgeConfig) (knowledge.Provider, error) {
	if cfg.SnippetsPath == "" {
		return knowledge.DefaultProvider(cfg.MaxSnippets), nil
	}
	return knowledge.LoadStaticProvider(cfg.SnippetsPath, cfg.MaxSnippets)
}

func (a *app) newRouter() (*router.Router, error) {
	kp, err := loadKnowledge(a.cfg.Knowledge)
	if err != nil {
		return nil, err
	}
	opts := []router.Option{
		router.WithMarketData(a.market),
		router.WithSentiment(a.sentiment),
		router.WithYields(a.defi),
		router.WithExplorer(a.explorer),
		router.WithCharts(a.charts),
		router.WithKnowledgeProvider(kp),
		router.WithRater(intent.NewRateResolver(a.market, 0)),
		router.WithProbeChains(a.catalog.ProbeChains()),
		router.WithLLMTimeout(config.Seconds(a.cfg.LLM.RequestTimeoutSeconds)),
		router.WithPublicURL(a.cfg.Server.PublicURL),
		router.WithVisionModel(a.cfg.LLM.VisionModel),
	}
	if len(a.chains.Chains()) > 0 {
		opts = append(opts, router.WithBalanceProbe(a.chains))
	}
	if d := buildAlerts(a.cfg.Alerting, a.http); d != nil {
		opts = append(opts, router.WithAlerts(d))
	}
	return router.New(a.llm, opts...), nil
}

func newHistoryService(repo mysql.ChatRepository, client llm.Client, cfg *config.Config) *history.Service {
	return history.NewService(repo, client, history.WithSummaryTimeout(config.Seconds(cfg.LLM.RequestTimeoutSeconds)))
}
