package intent

import (
	"context"
	"testing"
)

type stubFeed struct {
	prices map[string]float64
	ok     bool
	calls  int
}

func (s *stubFeed) SimplePrices(_ context.Context, ids ...string) (map[string]float64, bool) {
	s.calls++
	return s.prices, s.ok
}

func TestParseSwapFallsBackToStaticTable(t *testing.T) {
	resolver := NewRateResolver(&stubFeed{ok: false}, 0)
	got, ok := ParseSwap(context.Background(), "swap 5 sol for usdc", resolver)
	if !ok {
		t.Fatalf("expected swap intent")
	}
	if got.FromToken != "SOL" || got.ToToken != "USDC" || got.FromAmount != 5 {
		t.Fatalf("unexpected intent: %+v", got)
	}
	if got.Rate != 140.5 || got.ToAmount != 702.5 || got.RateSource != RateFallback {
		t.Fatalf("unexpected pricing: %+v", got)
	}
}

func TestParseSwapUsesLivePrices(t *testing.T) {
	feed := &stubFeed{ok: true, prices: map[string]float64{"ethereum": 3000, "usd-coin": 1}}
	got, ok := ParseSwap(context.Background(), "Trade 1.5 ETH into USDC", NewRateResolver(feed, 0))
	if !ok {
		t.Fatalf("expected swap intent")
	}
	if got.RateSource != RateLive || got.Rate != 3000 {
		t.Fatalf("unexpected quote: %+v", got)
	}
	if got.ToAmount != got.FromAmount*got.Rate {
		t.Fatalf("to amount must equal from amount times rate")
	}
}

func TestParseSwapDefaultsTarget(t *testing.T) {
	got, ok := ParseSwap(context.Background(), "convert 100 usdc to", StaticRater{})
	if !ok {
		t.Fatalf("expected swap intent")
	}
	if got.ToToken != "SOL" {
		t.Fatalf("usdc source should default to SOL, got %s", got.ToToken)
	}
	got, ok = ParseSwap(context.Background(), "sell 2 chainlink", StaticRater{})
	if !ok {
		t.Fatalf("expected swap intent")
	}
	if got.FromToken != "LINK" || got.ToToken != "USDC" {
		t.Fatalf("unexpected tokens: %+v", got)
	}
	if !got.LowConfidence || got.Rate != 1 {
		t.Fatalf("expected low confidence 1:1 rate, got %+v", got)
	}
}

func TestParseSwapRejectsNonPositiveAmount(t *testing.T) {
	for _, text := range []string{"swap 0 sol for usdc", "swap 5 doge for usdc", "swap sol"} {
		if got, ok := ParseSwap(context.Background(), text, StaticRater{}); ok {
			t.Fatalf("expected rejection for %q, got %+v", text, got)
		}
	}
}

func TestRateResolverDefaultsWithoutEntry(t *testing.T) {
	quote := NewRateResolver(nil, 0).Rate(context.Background(), "LINK", "ETH", 1)
	if !quote.LowConfidence || quote.Source != RateDefault || quote.Rate != 1 {
		t.Fatalf("expected default quote, got %+v", quote)
	}
}

func TestStaticRateTriesReciprocal(t *testing.T) {
	saved := FallbackRates["usdc_sol"]
	delete(FallbackRates, "usdc_sol")
	t.Cleanup(func() { FallbackRates["usdc_sol"] = saved })

	quote := StaticRate("USDC", "SOL")
	if quote.Source != RateFallback || quote.Rate != 1/140.50 {
		t.Fatalf("unexpected reciprocal quote: %+v", quote)
	}
	live := NewRateResolver(nil, 0).Rate(context.Background(), "USDC", "SOL", 1)
	if !live.LowConfidence {
		t.Fatalf("resolver must not use reciprocal, got %+v", live)
	}
}

func TestRateResolverSkipsUnmappedSymbols(t *testing.T) {
	feed := &stubFeed{ok: true, prices: map[string]float64{}}
	NewRateResolver(feed, 0).Rate(context.Background(), "XYZ", "USDC", 1)
	if feed.calls != 0 {
		t.Fatalf("feed must not be queried for unmapped symbols")
	}
}

func TestBuildSwapFromToolArguments(t *testing.T) {
	got, err := BuildSwap(context.Background(), "eth", "usdc", 2, StaticRater{})
	if err != nil {
		t.Fatalf("build swap: %v", err)
	}
	if got.ToAmount != 6000 || got.FromTokenName != "Ethereum" {
		t.Fatalf("unexpected intent: %+v", got)
	}
	if _, err := BuildSwap(context.Background(), "eth", "", 2, StaticRater{}); err == nil {
		t.Fatalf("expected error for missing target")
	}
	if _, err := BuildSwap(context.Background(), "eth", "usdc", -1, StaticRater{}); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestSwapReplyFlagsLowConfidence(t *testing.T) {
	got, _ := BuildSwap(context.Background(), "link", "jup", 1, StaticRater{})
	if got.Reply() == "I'll help you swap 1 LINK for JUP." {
		t.Fatalf("low confidence must be surfaced in reply")
	}
	if !got.UI().LowConfidence || got.UI().Slippage != 0.5 {
		t.Fatalf("unexpected ui: %+v", got.UI())
	}
}
