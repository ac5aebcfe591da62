package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"Superio-Chain/internal/intent"
)

// parseResult 是离线解析的输出，Send 与 Swap 至多一个非空。
type parseResult struct {
	Kind  string         `json:"kind"`
	Reply string         `json:"reply"`
	Send  *intent.SendUI `json:"send_ui,omitempty"`
	Swap  *intent.SwapUI `json:"swap_ui,omitempty"`
}

func newParseCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Parse a send or swap instruction without the language model",
		Long: `Parse a natural-language send or swap instruction with the built-in
patterns and the static rate table. No network access is needed.

Examples:
  superiod parse "send 0.5 ETH to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
  superiod parse "swap 10 SOL to USDC" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := parseText(cmd.Context(), strings.Join(args, " "), intent.StaticRater{})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printParseResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print the result as JSON")
	return cmd
}

// parseText 先尝试转账再尝试兑换。
func parseText(ctx context.Context, text string, rater intent.Rater) (parseResult, error) {
	if send, ok := intent.ParseSend(text); ok {
		ui := send.UI()
		return parseResult{Kind: "send", Reply: send.Reply(), Send: &ui}, nil
	}
	if swap, ok := intent.ParseSwap(ctx, text, rater); ok {
		ui := swap.UI()
		return parseResult{Kind: "swap", Reply: swap.Reply(), Swap: &ui}, nil
	}
	if intent.DetectSend(text) {
		return parseResult{}, fmt.Errorf("无法解析转账指令\n\n%s", intent.SendGuidance)
	}
	return parseResult{}, fmt.Errorf("未识别到转账或兑换指令: %q", text)
}

func printParseResult(w io.Writer, res parseResult) {
	fmt.Fprintf(w, "\n%s\n\n", color.GreenString(res.Reply))
	switch {
	case res.Send != nil:
		s := res.Send
		fmt.Fprintf(w, "  Amount:   %s %s\n", intent.FormatAmount(s.Amount), color.YellowString(s.Token))
		fmt.Fprintf(w, "  To:       %s\n", color.CyanString(s.ToAddress))
		fmt.Fprintf(w, "  Network:  %s\n", s.Network)
		fmt.Fprintf(w, "  Fee:      ~%s %s\n", intent.FormatAmount(s.EstimatedGas), s.GasSymbol)
		if s.TotalCost != nil {
			fmt.Fprintf(w, "  Total:    %s %s\n", intent.FormatAmount(*s.TotalCost), s.Token)
		}
	case res.Swap != nil:
		s := res.Swap
		fmt.Fprintf(w, "  From:     %s %s\n", intent.FormatAmount(s.FromAmount), color.YellowString(s.FromToken))
		fmt.Fprintf(w, "  To:       %s %s\n", intent.FormatAmount(s.ToAmount), color.YellowString(s.ToToken))
		fmt.Fprintf(w, "  Rate:     %s (%s)\n", intent.FormatAmount(s.ExchangeRate), s.RateSource)
		fmt.Fprintf(w, "  Slippage: %s%%\n", intent.FormatAmount(s.Slippage))
		if s.LowConfidence {
			color.New(color.FgRed).Fprintln(w, "  Rate unavailable, 1:1 estimate shown")
		}
	}
	fmt.Fprintln(w)
}
