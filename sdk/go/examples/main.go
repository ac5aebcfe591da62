package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"Superio-Chain/sdk/go/superio"
)

func main() {
	baseURL := os.Getenv("SUPERIO_URL")
	if baseURL == "" {
		srv := httptest.NewServer(demoMux())
		defer srv.Close()
		baseURL = srv.URL
	}

	client, err := superio.NewClient(baseURL, nil)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const wallet = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	reply, err := client.Chat(ctx, superio.ChatRequest{Message: "swap 1 SOL to USDC", UserID: wallet})
	if err != nil {
		panic(err)
	}
	fmt.Printf("reply: %s\n", reply.Response)
	for _, tool := range reply.ToolsUsed {
		fmt.Printf("  tool %s via %s\n", tool.Name, tool.Source)
	}

	analysis, err := client.AnalyzeDeFi(ctx, superio.AnalysisRequest{CoinID: "bitcoin"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("analysis for %s: %s (partial=%v)\n", analysis.CoinID, analysis.Recommendation, analysis.Partial)

	conv, err := client.History(ctx, wallet)
	if err != nil {
		panic(err)
	}
	fmt.Printf("history: %d messages, summary %q\n", conv.MessageCount, conv.Summary)
}

// demoMux 在没有 SUPERIO_URL 时模拟服务端。
func demoMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(superio.ChatReply{
			Response:  "I'll help you swap 1 SOL for USDC.",
			ToolsUsed: []superio.ToolRecord{{Name: "swap_tokens", Source: "function_call"}},
		})
	})
	mux.HandleFunc("POST /api/defi/analyze", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(superio.AnalysisResponse{CoinID: "bitcoin", Recommendation: "HOLD"})
	})
	mux.HandleFunc("GET /api/chat/history", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(superio.Conversation{
			WalletAddress: r.URL.Query().Get("wallet_address"),
			Summary:       "Swapping SOL to USDC",
			MessageCount:  2,
		})
	})
	return mux
}
