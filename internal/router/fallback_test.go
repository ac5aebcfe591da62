package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"Superio-Chain/internal/intent"
	"Superio-Chain/internal/llm"
)

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier(nil)
	cases := []struct {
		text string
		want Tool
	}{
		{"check tx " + testHash, ToolLookupTransaction},
		{"what tokens does " + testAddress + " hold", ToolGetAddressTokens},
		{"show transaction history for " + testAddress, ToolGetAddressTransactions},
		{"analyze " + testAddress, ToolAnalyzeAddress},
		{"what's the price of solana", ToolGetCryptoInfo},
		{"best yield on stablecoins", ToolGetYieldPools},
		{"eth chart please", ToolAnalyzeChart},
		{"explain nonce to me", ToolExplainTransaction},
		{"tell me a joke", ToolGeneral},
	}
	for _, tc := range cases {
		got := k.Classify(context.Background(), tc.text)
		if got.Tool != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.text, tc.want, got.Tool)
		}
	}
}

func TestKeywordClassifierArguments(t *testing.T) {
	k := NewKeywordClassifier(intent.StaticRater{})

	got := k.Classify(context.Background(), "how much is eth worth today")
	var crypto map[string]any
	if err := json.Unmarshal(got.Arguments, &crypto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if crypto["coin"] != "ethereum" {
		t.Fatalf("expected ethereum, got %+v", crypto)
	}

	got = k.Classify(context.Background(), "sol technical analysis")
	var chart map[string]string
	if err := json.Unmarshal(got.Arguments, &chart); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if chart["symbol"] != "SOL" {
		t.Fatalf("expected SOL, got %+v", chart)
	}
}

func TestKeywordClassifierSendAndSwap(t *testing.T) {
	k := NewKeywordClassifier(nil)

	send := k.Classify(context.Background(), "send 0.1 eth to "+testAddress)
	if send.Send == nil || send.Tool != ToolSendToken {
		t.Fatalf("expected send intent, got %+v", send)
	}

	swap := k.Classify(context.Background(), "swap 5 SOL for USDC")
	if swap.Swap == nil || swap.Swap.FromAmount != 5 {
		t.Fatalf("expected swap intent, got %+v", swap)
	}

	unparsed := k.Classify(context.Background(), "send some money")
	if unparsed.Tool != ToolGeneral || unparsed.Guidance != intent.SendGuidance {
		t.Fatalf("expected send guidance, got %+v", unparsed)
	}
}

func TestFallbackDispatchesThroughHandlers(t *testing.T) {
	client := &stubLLM{errs: []error{errors.New("down"), errors.New("down")}}
	r := New(client, WithExplorer(&stubExplorer{tokensOK: true}))

	reply := r.Handle(context.Background(), Request{Message: "tokens of " + testAddress})
	rec := reply.ToolsUsed[0]
	if rec.Name != string(ToolGetAddressTokens) || rec.Source != SourceKeyword {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Arguments["address"] != testAddress {
		t.Fatalf("expected address argument, got %+v", rec.Arguments)
	}
}

func TestFallbackGeneralResponse(t *testing.T) {
	r := New(&stubLLM{responses: []*llm.Response{}, errs: []error{errors.New("down")}})

	reply := r.Handle(context.Background(), Request{Message: "good morning"})
	if reply.Response != FallbackGeneralText {
		t.Fatalf("unexpected response: %q", reply.Response)
	}
	if rec := reply.ToolsUsed[0]; rec.Source != SourceKeyword || rec.Type != "direct_response" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
