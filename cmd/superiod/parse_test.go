package main

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"Superio-Chain/internal/intent"
)

func TestParseTextSend(t *testing.T) {
	res, err := parseText(context.Background(), "send 0.5 ETH to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e", intent.StaticRater{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Kind != "send" || res.Send == nil || res.Send.Token != "ETH" || res.Send.Amount != 0.5 {
		t.Fatalf("unexpected send result: %+v", res)
	}
	if !strings.Contains(res.Reply, "send 0.5 ETH") {
		t.Fatalf("unexpected reply: %s", res.Reply)
	}
}

func TestParseTextSwapUsesStaticRates(t *testing.T) {
	res, err := parseText(context.Background(), "swap 10 SOL to USDC", intent.StaticRater{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Kind != "swap" || res.Swap == nil {
		t.Fatalf("unexpected swap result: %+v", res)
	}
	if math.Abs(res.Swap.ToAmount-1405) > 1e-9 || res.Swap.LowConfidence {
		t.Fatalf("unexpected quote: %+v", res.Swap)
	}

	var buf bytes.Buffer
	printParseResult(&buf, res)
	if !strings.Contains(buf.String(), "1405") {
		t.Fatalf("expected amount in output, got %s", buf.String())
	}
}

func TestParseTextRejectsUnknownInput(t *testing.T) {
	if _, err := parseText(context.Background(), "send some tokens please", intent.StaticRater{}); err == nil || !strings.Contains(err.Error(), "Example") {
		t.Fatalf("expected send guidance, got %v", err)
	}
	if _, err := parseText(context.Background(), "what is the weather", intent.StaticRater{}); err == nil {
		t.Fatal("expected error for unrelated text")
	}
}
