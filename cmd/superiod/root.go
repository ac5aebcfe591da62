package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"Superio-Chain/internal/config"
	"Superio-Chain/pkg/logger"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "superiod",
		Short: "Conversational DeFi tool router",
		Long: `superiod routes natural-language requests to market data, yield pools,
block explorers and transaction-preparation helpers.

Examples:
  superiod serve --config configs/superio.json
  superiod coordinator
  superiod parse "send 0.5 ETH to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e"`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the JSON config (defaults to $"+config.EnvConfigPath+")")

	root.AddCommand(newServeCmd(), newCoordinatorCmd(), newParseCmd())
	return root
}

// loadConfig 读取配置并初始化日志。
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "\n%s %v\n\n", color.RedString("Error:"), err)
}
