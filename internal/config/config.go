package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Superio-Chain/pkg/logger"
)

// EnvConfigPath 是指定配置文件路径的环境变量。
const EnvConfigPath = "SUPERIO_CONFIG"

// Config 描述了 Superio 在启动阶段需要加载的核心配置。
type Config struct {
	Server      ServerConfig      `json:"server"`
	LLM         LLMConfig         `json:"llm"`
	Gateways    GatewaysConfig    `json:"gateways"`
	Cache       CacheConfig       `json:"cache"`
	History     HistoryConfig     `json:"history"`
	Coordinator CoordinatorConfig `json:"coordinator"`
	Web3        Web3Config        `json:"web3"`
	Runtime     RuntimeConfig     `json:"runtime"`
	Logging     logger.Config     `json:"logging"`
	Alerting    AlertingConfig    `json:"alerting"`
	Knowledge   KnowledgeConfig   `json:"knowledge"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	PublicURL      string `json:"public_url"`
	MetricsAddress string `json:"metrics_address"`
}

// LLMConfig 描述 OpenAI 兼容的对话补全接口。
type LLMConfig struct {
	BaseURL               string `json:"base_url"`
	Model                 string `json:"model"`
	VisionModel           string `json:"vision_model"`
	APIKey                string `json:"api_key"`
	APIKeyEnv             string `json:"api_key_env"`
	TimeoutSeconds        int    `json:"timeout_seconds"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// GatewaysConfig 汇总外部数据源。
type GatewaysConfig struct {
	TimeoutSeconds int              `json:"timeout_seconds"`
	Retries        int              `json:"retries"`
	CoinGecko      CoinGeckoConfig  `json:"coingecko"`
	FearGreed      FearGreedConfig  `json:"feargreed"`
	DefiLlama      DefiLlamaConfig  `json:"defillama"`
	Blockscout     BlockscoutConfig `json:"blockscout"`
	ChartIMG       ChartIMGConfig   `json:"chart_img"`
}

// CoinGeckoConfig 描述行情接口。
type CoinGeckoConfig struct {
	BaseURL         string `json:"base_url"`
	APIKey          string `json:"api_key"`
	APIKeyEnv       string `json:"api_key_env"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

// FearGreedConfig 描述恐惧贪婪指数接口。
type FearGreedConfig struct {
	BaseURL         string `json:"base_url"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

// DefiLlamaConfig 描述 TVL 与收益池接口。
type DefiLlamaConfig struct {
	APIBase         string `json:"api_base"`
	YieldsBase      string `json:"yields_base"`
	ProBase         string `json:"pro_base"`
	APIKey          string `json:"api_key"`
	APIKeyEnv       string `json:"api_key_env"`
	PoolsTTLSeconds int    `json:"pools_ttl_seconds"`
}

// BlockscoutConfig 描述 Blockscout MCP 端点。
type BlockscoutConfig struct {
	URL             string `json:"url"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

// ChartIMGConfig 描述图表渲染接口，Dir 为 PNG 保存目录。
type ChartIMGConfig struct {
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
	Dir       string `json:"dir"`
}

// CacheConfig 选择网关响应缓存：none、sqlite 或 redis。
type CacheConfig struct {
	Driver   string      `json:"driver"`
	Path     string      `json:"path"`
	LockPath string      `json:"lock_path"`
	Redis    RedisConfig `json:"redis"`
}

// RedisConfig 是缓存与总线共用的 Redis 连接参数。
type RedisConfig struct {
	Address     string `json:"address"`
	Password    string `json:"password"`
	PasswordEnv string `json:"password_env"`
	DB          int    `json:"db"`
	Prefix      string `json:"prefix"`
}

// HistoryConfig 选择聊天记录仓库：memory 或 mysql。
type HistoryConfig struct {
	Driver       string `json:"driver"`
	DSN          string `json:"dsn"`
	DSNEnv       string `json:"dsn_env"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// CoordinatorConfig 描述多代理协调器与消息总线。
type CoordinatorConfig struct {
	Bus            string         `json:"bus"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	Workers        int            `json:"workers"`
	Redis          RedisConfig    `json:"redis"`
	RabbitMQ       RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 AMQP 连接。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	URLEnv   string `json:"url_env"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// Web3Config 指向链目录文件。
type Web3Config struct {
	ChainConfig string `json:"chain_config"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// AlertingConfig 描述告警渠道。
type AlertingConfig struct {
	SlackWebhookURL string `json:"slack_webhook_url"`
	SlackWebhookEnv string `json:"slack_webhook_env"`
	SlackChannel    string `json:"slack_channel"`
	DisableLog      bool   `json:"disable_log"`
}

// KnowledgeConfig 描述解释类问题使用的静态知识片段。
type KnowledgeConfig struct {
	SnippetsPath string `json:"snippets_path"`
	MaxSnippets  int    `json:"max_snippets"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault 在 path 与 SUPERIO_CONFIG 均为空时返回全默认配置。
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Default 返回以当前目录为基准的默认配置。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(".")
	return &cfg
}

// Validate 检查枚举类字段。
func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case "none", "sqlite", "redis":
	default:
		return fmt.Errorf("不支持的缓存驱动: %s", c.Cache.Driver)
	}
	switch c.History.Driver {
	case "memory", "mysql":
	default:
		return fmt.Errorf("不支持的聊天记录驱动: %s", c.History.Driver)
	}
	switch c.Coordinator.Bus {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("不支持的消息总线: %s", c.Coordinator.Bus)
	}
	if c.History.Driver == "mysql" && c.History.DSN == "" {
		return errors.New("history.driver 为 mysql 时必须提供 DSN")
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":5001"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:5001"
	}

	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "ASI_API_KEY"
	}
	c.LLM.APIKey = secret(c.LLM.APIKey, c.LLM.APIKeyEnv)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.RequestTimeoutSeconds <= 0 {
		c.LLM.RequestTimeoutSeconds = 30
	}

	g := &c.Gateways
	if g.TimeoutSeconds <= 0 {
		g.TimeoutSeconds = 10
	}
	if g.Retries < 0 {
		g.Retries = 0
	}
	if g.CoinGecko.APIKeyEnv == "" {
		g.CoinGecko.APIKeyEnv = "COINGECKO_API_KEY"
	}
	g.CoinGecko.APIKey = secret(g.CoinGecko.APIKey, g.CoinGecko.APIKeyEnv)
	if g.CoinGecko.CacheTTLSeconds <= 0 {
		g.CoinGecko.CacheTTLSeconds = 60
	}
	if g.FearGreed.CacheTTLSeconds <= 0 {
		g.FearGreed.CacheTTLSeconds = 300
	}
	if g.DefiLlama.APIKeyEnv == "" {
		g.DefiLlama.APIKeyEnv = "DEFILLAMA_API_KEY"
	}
	g.DefiLlama.APIKey = secret(g.DefiLlama.APIKey, g.DefiLlama.APIKeyEnv)
	if g.DefiLlama.PoolsTTLSeconds <= 0 {
		g.DefiLlama.PoolsTTLSeconds = 600
	}
	if g.Blockscout.CacheTTLSeconds <= 0 {
		g.Blockscout.CacheTTLSeconds = 3600
	}
	if g.ChartIMG.APIKeyEnv == "" {
		g.ChartIMG.APIKeyEnv = "CHART_IMG_API_KEY"
	}
	g.ChartIMG.APIKey = secret(g.ChartIMG.APIKey, g.ChartIMG.APIKeyEnv)

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if g.ChartIMG.Dir == "" {
		g.ChartIMG.Dir = filepath.Join(c.Runtime.DataDir, "charts")
	} else if !filepath.IsAbs(g.ChartIMG.Dir) {
		g.ChartIMG.Dir = filepath.Join(baseDir, g.ChartIMG.Dir)
	}

	c.Cache.Driver = strings.ToLower(strings.TrimSpace(c.Cache.Driver))
	if c.Cache.Driver == "" {
		c.Cache.Driver = "none"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(c.Runtime.DataDir, "gateway_cache.db")
	} else if !filepath.IsAbs(c.Cache.Path) {
		c.Cache.Path = filepath.Join(baseDir, c.Cache.Path)
	}
	c.Cache.Redis.Password = secret(c.Cache.Redis.Password, c.Cache.Redis.PasswordEnv)

	c.History.Driver = strings.ToLower(strings.TrimSpace(c.History.Driver))
	if c.History.Driver == "" {
		c.History.Driver = "memory"
	}
	if c.History.DSNEnv == "" {
		c.History.DSNEnv = "MYSQL_DSN"
	}
	c.History.DSN = secret(c.History.DSN, c.History.DSNEnv)

	co := &c.Coordinator
	co.Bus = strings.ToLower(strings.TrimSpace(co.Bus))
	if co.Bus == "" {
		co.Bus = "memory"
	}
	if co.TimeoutSeconds <= 0 {
		co.TimeoutSeconds = 10
	}
	if co.Workers <= 0 {
		co.Workers = 2
	}
	co.Redis.Password = secret(co.Redis.Password, co.Redis.PasswordEnv)
	if co.RabbitMQ.URLEnv == "" {
		co.RabbitMQ.URLEnv = "RABBITMQ_URL"
	}
	co.RabbitMQ.URL = secret(co.RabbitMQ.URL, co.RabbitMQ.URLEnv)

	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}

	if c.Alerting.SlackWebhookEnv == "" {
		c.Alerting.SlackWebhookEnv = "SLACK_WEBHOOK_URL"
	}
	c.Alerting.SlackWebhookURL = secret(c.Alerting.SlackWebhookURL, c.Alerting.SlackWebhookEnv)

	if c.Knowledge.SnippetsPath != "" && !filepath.IsAbs(c.Knowledge.SnippetsPath) {
		c.Knowledge.SnippetsPath = filepath.Join(baseDir, c.Knowledge.SnippetsPath)
	}
	if c.Knowledge.MaxSnippets <= 0 {
		c.Knowledge.MaxSnippets = 3
	}
}

// secret 在 value 为空时读取 env 指向的环境变量。
func secret(value, env string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}

// Seconds 把配置中的秒数转换为 time.Duration。
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
