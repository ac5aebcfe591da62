package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "superio.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("ASI_API_KEY", "sk-test")
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	base := filepath.Dir(path)

	if cfg.Server.Address != ":5001" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("expected api key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Runtime.DataDir != filepath.Join(base, "data") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
	if cfg.Gateways.ChartIMG.Dir != filepath.Join(base, "data", "charts") {
		t.Fatalf("unexpected chart dir: %s", cfg.Gateways.ChartIMG.Dir)
	}
	if cfg.Cache.Driver != "none" || cfg.History.Driver != "memory" || cfg.Coordinator.Bus != "memory" {
		t.Fatalf("unexpected drivers: %+v %+v %+v", cfg.Cache, cfg.History, cfg.Coordinator)
	}
	if cfg.Coordinator.TimeoutSeconds != 10 || cfg.Coordinator.Workers != 2 {
		t.Fatalf("unexpected coordinator defaults: %+v", cfg.Coordinator)
	}
	if cfg.Knowledge.MaxSnippets != 3 {
		t.Fatalf("unexpected max snippets: %d", cfg.Knowledge.MaxSnippets)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, `{
		"runtime": {"data_dir": "state"},
		"web3": {"chain_config": "chains.yaml"},
		"knowledge": {"snippets_path": "kb.yaml"},
		"cache": {"driver": "SQLite", "path": "cache.db"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	base := filepath.Dir(path)
	if cfg.Runtime.DataDir != filepath.Join(base, "state") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
	if cfg.Web3.ChainConfig != filepath.Join(base, "chains.yaml") {
		t.Fatalf("unexpected chain config: %s", cfg.Web3.ChainConfig)
	}
	if cfg.Knowledge.SnippetsPath != filepath.Join(base, "kb.yaml") {
		t.Fatalf("unexpected snippets path: %s", cfg.Knowledge.SnippetsPath)
	}
	if cfg.Cache.Driver != "sqlite" || cfg.Cache.Path != filepath.Join(base, "cache.db") {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
}

func TestSecretsPreferExplicitValue(t *testing.T) {
	t.Setenv("TEST_SUPERIO_RABBIT", "amqp://env")
	path := writeConfig(t, `{
		"llm": {"api_key": "inline"},
		"coordinator": {"bus": "rabbitmq", "rabbitmq": {"url_env": "TEST_SUPERIO_RABBIT"}}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.LLM.APIKey != "inline" {
		t.Fatalf("explicit key should win, got %q", cfg.LLM.APIKey)
	}
	if cfg.Coordinator.RabbitMQ.URL != "amqp://env" {
		t.Fatalf("expected url from env, got %q", cfg.Coordinator.RabbitMQ.URL)
	}
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cases := []string{
		`{"cache": {"driver": "memcached"}}`,
		`{"history": {"driver": "postgres"}}`,
		`{"coordinator": {"bus": "kafka"}}`,
	}
	for _, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("expected validation error for %s", content)
		}
	}

	t.Setenv("MYSQL_DSN", "")
	if _, err := Load(writeConfig(t, `{"history": {"driver": "mysql"}}`)); err == nil {
		t.Fatal("mysql driver without DSN should fail")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, `{`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := LoadOrDefault("")
	if err != nil || cfg.Server.Address != ":5001" {
		t.Fatalf("expected defaults, got %+v %v", cfg, err)
	}

	path := writeConfig(t, `{"server": {"address": ":9000"}}`)
	t.Setenv(EnvConfigPath, path)
	cfg, err = LoadOrDefault("")
	if err != nil || cfg.Server.Address != ":9000" {
		t.Fatalf("expected env config, got %+v %v", cfg, err)
	}
}
