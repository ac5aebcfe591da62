package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway/blockscout"
	"Superio-Chain/internal/gateway/coingecko"
	"Superio-Chain/internal/gateway/defillama"
	"Superio-Chain/internal/gateway/feargreed"
	"Superio-Chain/internal/intent"
	"Superio-Chain/internal/llm"
	"Superio-Chain/internal/observability/alerting"
)

const (
	testAddress = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	testHash    = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
)

// stubLLM 按调用顺序返回预设结果，超出部分重复最后一个。
type stubLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []llm.Request
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if len(s.responses) == 0 {
		return nil, errors.New("no response")
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func toolCall(name string, args string) *llm.Response {
	return &llm.Response{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: name, Arguments: json.RawMessage(args)}}}
}

type stubMarket struct {
	coin coingecko.Coin
	ok   bool
	ids  []string
}

func (s *stubMarket) Coin(_ context.Context, id string) (coingecko.Coin, bool) {
	s.ids = append(s.ids, id)
	return s.coin, s.ok
}

type stubSentiment struct{ index feargreed.Index }

func (s stubSentiment) Index(context.Context, int) (feargreed.Index, bool) { return s.index, true }

type stubYields struct {
	pools []defillama.Pool
	ok    bool
}

func (s stubYields) Pools(context.Context) ([]defillama.Pool, bool) { return s.pools, s.ok }

type stubExplorer struct {
	info      blockscout.AddressInfo
	infoOK    bool
	tokens    []blockscout.TokenHolding
	tokensOK  bool
	txs       []blockscout.Transaction
	txsOK     bool
	tx        blockscout.TransactionInfo
	txErr     error
	panicOnTx bool
	limits    []int
	nfts      []json.RawMessage
	abi       json.RawMessage
	ens       map[string]string
}

func (s *stubExplorer) AddressInfo(context.Context, string, string) (blockscout.AddressInfo, bool) {
	return s.info, s.infoOK
}

func (s *stubExplorer) Tokens(context.Context, string, string) ([]blockscout.TokenHolding, bool) {
	return s.tokens, s.tokensOK
}

func (s *stubExplorer) Transactions(_ context.Context, _ string, _ string, limit int) ([]blockscout.Transaction, bool) {
	s.limits = append(s.limits, limit)
	return s.txs, s.txsOK
}

func (s *stubExplorer) TokenTransfers(context.Context, string, string, int) ([]blockscout.TokenTransfer, bool) {
	return nil, true
}

func (s *stubExplorer) TransactionInfo(context.Context, string, string) (blockscout.TransactionInfo, error) {
	if s.panicOnTx {
		panic("boom")
	}
	return s.tx, s.txErr
}

func (s *stubExplorer) TransactionSummary(context.Context, string, string) string { return "" }

func (s *stubExplorer) NFTs(context.Context, string, string) ([]json.RawMessage, bool) {
	return s.nfts, s.nfts != nil
}

func (s *stubExplorer) ContractABI(context.Context, string, string) (json.RawMessage, bool) {
	return s.abi, s.abi != nil
}

func (s *stubExplorer) ResolveENS(_ context.Context, name string) (string, bool) {
	address, ok := s.ens[name]
	return address, ok
}

func (s *stubExplorer) ProbeChain(context.Context, string, []blockscout.Chain) (blockscout.Chain, blockscout.AddressInfo, bool) {
	return blockscout.Sepolia, s.info, s.infoOK
}

type stubCharts struct {
	file       string
	err        error
	indicators *[]string
}

func (s stubCharts) Render(_ context.Context, _, _, _, indicator string) (string, error) {
	if s.indicators != nil {
		*s.indicators = append(*s.indicators, indicator)
	}
	return s.file, s.err
}

func (s stubCharts) Read(string) ([]byte, error) { return []byte{0x89, 'P', 'N', 'G'}, nil }

type recordingDispatcher struct{ events []alerting.Event }

func (d *recordingDispatcher) Notify(_ context.Context, e alerting.Event) error {
	d.events = append(d.events, e)
	return nil
}

func TestHandleGeneralConversation(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{{Content: "你好，我是 Superio"}}}
	r := New(client)

	reply := r.Handle(context.Background(), Request{Message: "hello", Context: "User: hi"})
	if reply.Response != "你好，我是 Superio" {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
	if len(reply.ToolsUsed) != 1 || reply.ToolsUsed[0].Name != "General Conversation" || reply.ToolsUsed[0].Source != SourceGeneral {
		t.Fatalf("unexpected tools_used: %+v", reply.ToolsUsed)
	}
	if reply.RequestID == "" {
		t.Fatalf("expected request id")
	}
	req := client.requests[0]
	if len(req.Tools) != len(menu) || req.ToolChoice != "auto" {
		t.Fatalf("classifier request missing tool menu: %+v", req)
	}
	if !strings.Contains(req.Messages[1].Content, "Previous conversation:\nUser: hi") {
		t.Fatalf("expected context in user message, got %q", req.Messages[1].Content)
	}
}

func TestHandleSendToolCall(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{
		toolCall("send_token", `{"token":"eth","amount":"0.5","to_address":"`+testAddress+`"}`),
	}}
	r := New(client)

	reply := r.Handle(context.Background(), Request{Message: "send 0.5 eth to " + testAddress})
	if reply.SendUI == nil {
		t.Fatalf("expected send_ui, got %+v", reply)
	}
	if reply.SendUI.Amount != 0.5 || reply.SendUI.Token != "ETH" {
		t.Fatalf("unexpected send ui: %+v", reply.SendUI)
	}
	rec := reply.ToolsUsed[0]
	if rec.Name != "send_token" || rec.Source != SourceFunctionCall {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Arguments["amount"] != "0.5" {
		t.Fatalf("arguments should be echoed verbatim, got %+v", rec.Arguments)
	}
}

func TestHandleSendStablecoinUsesSepolia(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{
		toolCall("send_token", `{"token":"USDC","amount":10,"to_address":"`+testAddress+`"}`),
	}}
	r := New(client)

	reply := r.Handle(context.Background(), Request{Message: "send 10 usdc to " + testAddress})
	if reply.SendUI == nil {
		t.Fatalf("expected send_ui, got %q", reply.Response)
	}
	if reply.SendUI.Token != "USDC" || reply.SendUI.Network != intent.NetworkSepolia || reply.SendUI.Amount != 10 {
		t.Fatalf("unexpected send ui: %+v", reply.SendUI)
	}
}

func TestHandleSendInvalidAddressReturnsGuidance(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{
		toolCall("send_token", `{"amount":1,"to_address":"0x123"}`),
	}}
	r := New(client)

	reply := r.Handle(context.Background(), Request{Message: "send 1 eth to 0x123"})
	if reply.SendUI != nil {
		t.Fatalf("did not expect send ui")
	}
	if reply.ToolsUsed[0].Name != "send_token" || reply.Response == "" {
		t.Fatalf("expected guidance reply, got %+v", reply)
	}
}

func TestHandleUnknownToolReturnsApology(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{toolCall("launch_rocket", `{}`)}}
	r := New(client)

	reply := r.Handle(context.Background(), Request{Message: "launch"})
	if reply.Response != ApologyText {
		t.Fatalf("expected apology, got %q", reply.Response)
	}
	rec := reply.ToolsUsed[0]
	if rec.Name != "Error Handler" || rec.Source != SourceSystem {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !strings.HasPrefix(rec.Error, string(xerrors.CodeClassificationFailure)) {
		t.Fatalf("unexpected error text: %q", rec.Error)
	}
}

func TestHandleEmptyMessage(t *testing.T) {
	r := New(&stubLLM{})
	reply := r.Handle(context.Background(), Request{Message: "   "})
	if reply.Response != ApologyText || !strings.HasPrefix(reply.ToolsUsed[0].Error, string(xerrors.CodeInvalidArgument)) {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestHandleRecoversFromPanic(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{
		toolCall("lookup_transaction", `{"transaction_hash":"`+testHash+`"}`),
	}}
	alerts := &recordingDispatcher{}
	r := New(client, WithExplorer(&stubExplorer{panicOnTx: true}), WithAlerts(alerts))

	reply := r.Handle(context.Background(), Request{Message: "lookup " + testHash})
	if reply.Response != ApologyText {
		t.Fatalf("expected apology, got %q", reply.Response)
	}
	if reply.RequestID == "" {
		t.Fatalf("request id should survive panic")
	}
	rec := reply.ToolsUsed[0]
	if len(reply.ToolsUsed) != 1 || rec.Name != "lookup_transaction" || rec.Source != SourceFunctionCall {
		t.Fatalf("failed tool should keep its record, got %+v", reply.ToolsUsed)
	}
	if rec.Arguments["transaction_hash"] != testHash || !strings.HasPrefix(rec.Error, string(xerrors.CodeUnknown)) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(alerts.events) != 1 || alerts.events[0].Metadata["tool"] != "lookup_transaction" {
		t.Fatalf("expected one alert for the tool, got %+v", alerts.events)
	}
}

func TestHandleClassifierFailureUsesFallback(t *testing.T) {
	client := &stubLLM{errs: []error{errors.New("connection refused")}}
	r := New(client)

	reply := r.Handle(context.Background(), Request{Message: "swap 5 SOL for USDC"})
	if reply.SwapUI == nil {
		t.Fatalf("expected swap ui from fallback, got %+v", reply)
	}
	rec := reply.ToolsUsed[0]
	if rec.Name != "swap_token" || rec.Source != SourceKeyword {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestLookupTransactionInvalidHash(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{toolCall("lookup_transaction", `{"transaction_hash":"0xabc"}`)}}
	r := New(client, WithExplorer(&stubExplorer{}))

	reply := r.Handle(context.Background(), Request{Message: "lookup 0xabc"})
	if reply.Response != invalidHashText {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
}

func TestLookupTransactionReport(t *testing.T) {
	status := "ok"
	raw := json.RawMessage(`{"hash":"` + testHash + `","status":"ok"}`)
	explorer := &stubExplorer{tx: blockscout.TransactionInfo{Hash: testHash, Status: &status, Raw: raw}}
	client := &stubLLM{responses: []*llm.Response{toolCall("lookup_transaction", `{"transaction_hash":"`+testHash+`"}`)}}
	r := New(client, WithExplorer(explorer))

	reply := r.Handle(context.Background(), Request{Message: "lookup"})
	if !strings.Contains(reply.Response, "✅ OK") {
		t.Fatalf("expected status line, got %q", reply.Response)
	}
	if string(reply.TransactionInfo) != string(raw) {
		t.Fatalf("raw transaction should be returned verbatim")
	}
	if rec := reply.ToolsUsed[0]; rec.Source != SourceBlockscout || rec.ChainID != blockscout.Sepolia.ID {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestLookupTransactionDescribesVerifiedContract(t *testing.T) {
	status := "ok"
	explorer := &stubExplorer{
		tx: blockscout.TransactionInfo{
			Hash:   testHash,
			Status: &status,
			To:     &blockscout.AddressRef{Hash: testAddress, IsContract: true},
		},
		abi: json.RawMessage(`[
			{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
			{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
			{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
		]`),
	}
	client := &stubLLM{responses: []*llm.Response{toolCall("lookup_transaction", `{"transaction_hash":"`+testHash+`"}`)}}
	r := New(client, WithExplorer(explorer))

	reply := r.Handle(context.Background(), Request{Message: "lookup"})
	if !strings.Contains(reply.Response, "**Verified Contract:** 2 function(s), 1 event(s)") {
		t.Fatalf("missing contract line: %q", reply.Response)
	}
	if !strings.Contains(reply.Response, "**Functions:** `approve`, `transfer`") {
		t.Fatalf("functions should be sorted: %q", reply.Response)
	}
}

func TestContractABILineRejectsInvalidABI(t *testing.T) {
	if line := ContractABILine(json.RawMessage(`{"not":"abi"}`)); line != "" {
		t.Fatalf("expected empty line, got %q", line)
	}
}

func TestAnalyzeAddressResolvesENSAndCountsNFTs(t *testing.T) {
	explorer := &stubExplorer{
		infoOK:   true,
		tokensOK: true,
		txsOK:    true,
		nfts:     []json.RawMessage{json.RawMessage(`{"id":"1"}`), json.RawMessage(`{"id":"2"}`)},
		ens:      map[string]string{"vitalik.eth": testAddress},
	}
	client := &stubLLM{responses: []*llm.Response{toolCall("analyze_address", `{"address":"vitalik.eth"}`)}}
	r := New(client, WithExplorer(explorer), WithBalanceProbe(stubBalances{}))

	reply := r.Handle(context.Background(), Request{Message: "analyze vitalik.eth"})
	if !strings.Contains(reply.Response, testAddress) {
		t.Fatalf("ENS name should resolve to %s: %q", testAddress, reply.Response)
	}
	if !strings.Contains(reply.Response, "- NFTs Held: **2**") {
		t.Fatalf("missing NFT count: %q", reply.Response)
	}
}

func TestAddressTokensRejectsUnknownENS(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{toolCall("get_address_tokens", `{"address":"nobody.eth"}`)}}
	r := New(client, WithExplorer(&stubExplorer{tokensOK: true}))

	reply := r.Handle(context.Background(), Request{Message: "tokens"})
	if reply.Response != invalidAddressText {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
}

func TestAddressTokensDistinguishesFailureFromEmpty(t *testing.T) {
	args := `{"address":"` + testAddress + `"}`

	failing := New(&stubLLM{responses: []*llm.Response{toolCall("get_address_tokens", args)}},
		WithExplorer(&stubExplorer{tokensOK: false}))
	reply := failing.Handle(context.Background(), Request{Message: "tokens"})
	if !strings.HasPrefix(reply.Response, "⚠️ Failed to get token holdings") {
		t.Fatalf("unexpected failure text: %q", reply.Response)
	}

	empty := New(&stubLLM{responses: []*llm.Response{toolCall("get_address_tokens", args)}},
		WithExplorer(&stubExplorer{tokensOK: true}))
	reply = empty.Handle(context.Background(), Request{Message: "tokens"})
	if !strings.HasPrefix(reply.Response, "No ERC-20 tokens found") {
		t.Fatalf("unexpected empty text: %q", reply.Response)
	}
	if reply.TokenCount != nil {
		t.Fatalf("token_count should be absent for empty holdings")
	}
}

func TestAddressTransactionsClampsLimit(t *testing.T) {
	txs := []blockscout.Transaction{{Hash: testHash}}
	explorer := &stubExplorer{txs: txs, txsOK: true}
	client := &stubLLM{responses: []*llm.Response{
		toolCall("get_address_transactions", `{"address":"`+testAddress+`","limit":500}`),
	}}
	r := New(client, WithExplorer(explorer))

	reply := r.Handle(context.Background(), Request{Message: "history"})
	if len(explorer.limits) != 1 || explorer.limits[0] != maxHistoryLimit {
		t.Fatalf("expected limit clamp to %d, got %v", maxHistoryLimit, explorer.limits)
	}
	if reply.TxCount == nil || *reply.TxCount != 1 {
		t.Fatalf("unexpected transaction_count: %v", reply.TxCount)
	}
}

func TestCryptoInfoAddsSentimentRecord(t *testing.T) {
	market := &stubMarket{ok: true, coin: coingecko.Coin{ID: "ethereum", Name: "Ethereum", CurrentPrice: 3200.5, MarketCap: 1e11}}
	client := &stubLLM{responses: []*llm.Response{
		toolCall("get_crypto_info", `{"coin":"ETH"}`),
		{Content: "ETH 价格稳定"},
	}}
	r := New(client, WithMarketData(market), WithSentiment(stubSentiment{index: feargreed.Index{Value: "71", ValueClassification: "Greed"}}))

	reply := r.Handle(context.Background(), Request{Message: "eth price?"})
	if reply.Response != "ETH 价格稳定" {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
	if len(market.ids) != 1 || market.ids[0] != "ethereum" {
		t.Fatalf("expected alias to resolve to ethereum, got %v", market.ids)
	}
	if len(reply.ToolsUsed) != 2 || reply.ToolsUsed[1].Data["sentiment"] != "Greed" {
		t.Fatalf("expected fear & greed record, got %+v", reply.ToolsUsed)
	}
	if !strings.Contains(client.requests[1].Messages[0].Content, "Market Sentiment: Greed (71/100)") {
		t.Fatalf("sentiment should be injected into prompt")
	}
}

func TestCryptoInfoFallsBackToDataWhenAnswerFails(t *testing.T) {
	market := &stubMarket{ok: true, coin: coingecko.Coin{Name: "Bitcoin", CurrentPrice: 65000}}
	client := &stubLLM{
		responses: []*llm.Response{toolCall("get_crypto_info", `{"coin":"btc","include_sentiment":false}`)},
		errs:      []error{nil, errors.New("overloaded")},
	}
	r := New(client, WithMarketData(market))

	reply := r.Handle(context.Background(), Request{Message: "btc"})
	if !strings.HasPrefix(reply.Response, "Current market data for Bitcoin") {
		t.Fatalf("expected raw market context, got %q", reply.Response)
	}
	if len(reply.ToolsUsed) != 1 {
		t.Fatalf("sentiment should be skipped, got %+v", reply.ToolsUsed)
	}
}

func TestCryptoInfoMarketFailureKeepsRecord(t *testing.T) {
	market := &stubMarket{}
	client := &stubLLM{responses: []*llm.Response{toolCall("get_crypto_info", `{"coin":"sol"}`)}}
	r := New(client, WithMarketData(market))

	reply := r.Handle(context.Background(), Request{Message: "sol price"})
	if reply.Response != "Sorry, couldn't fetch market data for solana." {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
	rec := reply.ToolsUsed[0]
	if rec.Name != "get_crypto_info" || rec.Arguments["coin"] != "sol" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !strings.HasPrefix(rec.Error, string(xerrors.CodeUpstreamUnavailable)) {
		t.Fatalf("expected upstream annotation, got %q", rec.Error)
	}
}

func TestHandlerErrorKeepsToolRecord(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{toolCall("get_crypto_info", `{"coin":"btc"}`)}}
	r := New(client)

	reply := r.Handle(context.Background(), Request{Message: "btc price"})
	if reply.Response != ApologyText {
		t.Fatalf("expected apology, got %q", reply.Response)
	}
	rec := reply.ToolsUsed[0]
	if rec.Name != "get_crypto_info" || rec.Source != SourceFunctionCall || rec.Arguments["coin"] != "btc" {
		t.Fatalf("failed tool should keep its record, got %+v", rec)
	}
	if !strings.HasPrefix(rec.Error, string(xerrors.CodeInitializationFailure)) {
		t.Fatalf("unexpected error annotation: %q", rec.Error)
	}
}

func TestYieldPoolsAttachesFiltersAndKnowledge(t *testing.T) {
	pools := []defillama.Pool{
		{PoolID: "a", Project: "aave-v3", Chain: "Ethereum", Symbol: "USDC", APYBase: 8, TVLUSD: 50_000_000},
		{PoolID: "b", Project: "lido", Chain: "Ethereum", Symbol: "STETH", APYBase: 3, TVLUSD: 900_000_000},
	}
	client := &stubLLM{
		responses: []*llm.Response{toolCall("get_yield_pools", `{"chain":"ethereum"}`)},
		errs:      []error{nil, errors.New("down")},
	}
	r := New(client, WithYields(stubYields{pools: pools, ok: true}))

	reply := r.Handle(context.Background(), Request{Message: "safe yields"})
	rec := reply.ToolsUsed[0]
	if rec.Source != SourceDeFiLlama || rec.ResultsCount == nil || *rec.ResultsCount != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Filters["chain"] != "ethereum" {
		t.Fatalf("filters should echo arguments, got %+v", rec.Filters)
	}
	if len(reply.YieldPools) != 1 || reply.MeTTaKnowledge == nil {
		t.Fatalf("expected pools and knowledge, got %+v", reply)
	}
	if strings.Contains(reply.Response, "**Analysis:**") {
		t.Fatalf("analysis section should be omitted when the model fails")
	}
}

func TestYieldPoolsNoMatchReturnsEmptyKnowledge(t *testing.T) {
	pools := []defillama.Pool{
		{PoolID: "a", Project: "curve", Chain: "Arbitrum", Symbol: "USDC-USDT", APYBase: 9, TVLUSD: 80_000_000},
	}
	client := &stubLLM{responses: []*llm.Response{toolCall("get_yield_pools", `{}`)}}
	r := New(client, WithYields(stubYields{pools: pools, ok: true}))

	reply := r.Handle(context.Background(), Request{Message: "yields"})
	if rec := reply.ToolsUsed[0]; rec.ResultsCount == nil || *rec.ResultsCount != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	body, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `"metta_knowledge":{"graph_data":{"nodes":[],"edges":[]},"safe_pools":[],"facts_count":0,"rules_count":0}`
	if !strings.Contains(string(body), want) {
		t.Fatalf("expected empty knowledge structure, got %s", body)
	}
}

func TestYieldPoolsFetchFailure(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{toolCall("get_yield_pools", `{}`)}}
	r := New(client, WithYields(stubYields{}))

	reply := r.Handle(context.Background(), Request{Message: "yields"})
	if reply.Response != yieldFetchFailed {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
}

func TestChartAnalysisUsesPublicURL(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{
		toolCall("analyze_chart", `{"symbol":"eth"}`),
		{Content: "Uptrend intact. Recommendation: BUY above 3000."},
	}}
	r := New(client, WithCharts(stubCharts{file: "chart_ETH.png"}), WithPublicURL("https://superio.example/"), WithVisionModel("vision-1"))

	reply := r.Handle(context.Background(), Request{Message: "eth chart"})
	if reply.ChartURL != "https://superio.example/api/chart/chart_ETH.png" {
		t.Fatalf("unexpected chart url: %q", reply.ChartURL)
	}
	if rec := reply.ToolsUsed[0]; rec.Recommendation != "BUY" || rec.ChartURL != reply.ChartURL {
		t.Fatalf("unexpected record: %+v", rec)
	}
	vision := client.requests[1]
	if vision.Model != "vision-1" || len(vision.Messages[0].Images) != 1 {
		t.Fatalf("unexpected vision request: %+v", vision)
	}
	if !strings.HasPrefix(vision.Messages[0].Images[0], "data:image/png;base64,") {
		t.Fatalf("expected data url image")
	}
}

func TestChartPassesIndicator(t *testing.T) {
	var indicators []string
	client := &stubLLM{responses: []*llm.Response{
		toolCall("analyze_chart", `{"symbol":"btc","indicator":"rsi"}`),
		{Content: "RSI is overbought, sell the rip."},
	}}
	r := New(client, WithCharts(stubCharts{file: "chart_BTC.png", indicators: &indicators}))

	reply := r.Handle(context.Background(), Request{Message: "btc chart with rsi"})
	if len(indicators) != 1 || indicators[0] != "RSI" {
		t.Fatalf("expected RSI overlay, got %v", indicators)
	}
	if reply.ToolsUsed[0].Recommendation != "SELL" {
		t.Fatalf("unexpected record: %+v", reply.ToolsUsed[0])
	}
}

func TestChartRenderFailure(t *testing.T) {
	client := &stubLLM{responses: []*llm.Response{toolCall("analyze_chart", `{"symbol":"ETH"}`)}}
	r := New(client, WithCharts(stubCharts{err: xerrors.New(xerrors.CodeUpstreamUnavailable, "chart api down")}))

	reply := r.Handle(context.Background(), Request{Message: "eth chart"})
	if !strings.Contains(reply.Response, "❌ Error: chart api down") {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
	if reply.ChartURL != "" || reply.ChartAnalysis != chartFetchFailedText {
		t.Fatalf("unexpected chart fields: %+v", reply)
	}
}

func TestExtractRecommendation(t *testing.T) {
	cases := map[string]Recommendation{
		"strong buy signal":                       RecommendBuy,
		"sell below 2900, buy the retest of 3100": RecommendBuy,
		"take profit and sell into strength":      RecommendSell,
		"sideways range":                          RecommendHold,
	}
	for text, want := range cases {
		if got := ExtractRecommendation(text); got != want {
			t.Fatalf("%q: expected %s, got %s", text, want, got)
		}
	}
}

func TestExplainFallsBackToSnippets(t *testing.T) {
	client := &stubLLM{
		responses: []*llm.Response{toolCall("explain_transaction", `{"topic":"gas fees"}`)},
		errs:      []error{nil, errors.New("timeout")},
	}
	r := New(client)

	reply := r.Handle(context.Background(), Request{Message: "what are gas fees?"})
	if reply.Response == ApologyText || reply.Response == "" {
		t.Fatalf("expected snippet text, got %q", reply.Response)
	}
}

type stubBalances struct {
	chain blockscout.Chain
	ok    bool
}

func (s stubBalances) FirstFunded(context.Context, string, []blockscout.Chain) (blockscout.Chain, bool) {
	return s.chain, s.ok
}

func TestProbeOrderPrefersFundedChain(t *testing.T) {
	r := New(nil, WithBalanceProbe(stubBalances{chain: blockscout.Mainnet, ok: true}))
	order := r.probeOrder(context.Background(), testAddress)
	if len(order) != 2 || order[0].ID != blockscout.Mainnet.ID || order[1].ID != blockscout.Sepolia.ID {
		t.Fatalf("探测顺序不符: %+v", order)
	}

	r = New(nil, WithBalanceProbe(stubBalances{}))
	if order := r.probeOrder(context.Background(), testAddress); order[0].ID != blockscout.Sepolia.ID {
		t.Fatalf("未命中时应保持默认顺序: %+v", order)
	}
}
