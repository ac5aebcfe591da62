package defillama

import (
	"strings"
	"testing"
)

func samplePools() []Pool {
	return []Pool{
		{PoolID: "a", Project: "aave-v3", Chain: "Ethereum", Symbol: "USDC", APYBase: 8, APYReward: 1, TVLUSD: 50_000_000},
		{PoolID: "b", Project: "curve", Chain: "Ethereum", Symbol: "DAI-USDC-USDT", APYBase: 12, APYReward: 2.5, TVLUSD: 25_000_000},
		{PoolID: "c", Project: "pendle", Chain: "Ethereum", Symbol: "WETH", APYBase: 40, APYReward: 0, TVLUSD: 90_000_000},
		{PoolID: "d", Project: "tiny", Chain: "Ethereum", Symbol: "USDT", APYBase: 10, APYReward: 0, TVLUSD: 500_000},
		{PoolID: "e", Project: "raydium", Chain: "Solana", Symbol: "SOL-USDC", APYBase: 11, APYReward: 0, TVLUSD: 80_000_000},
	}
}

func TestDefaultQueryAppliesSafeEthereumFilter(t *testing.T) {
	got := Query{}.Apply(samplePools())
	if len(got) != 2 {
		t.Fatalf("expected 2 safe ethereum pools, got %+v", got)
	}
	for _, p := range got {
		if p.TotalAPY() < 7 || p.TotalAPY() > 15 || p.TVLUSD < 20_000_000 || p.Chain != "Ethereum" {
			t.Fatalf("pool violates default filter: %+v", p)
		}
	}
	if got[0].PoolID != "b" {
		t.Fatalf("safe pools should be sorted by total apy, got %+v", got)
	}
}

func TestQueryNormalize(t *testing.T) {
	q := Query{PoolType: "stable"}.Normalize()
	if q.Chain != "ethereum" || q.MinTVL != 20_000_000 || q.PoolType != PoolStable {
		t.Fatalf("unexpected normalized query: %+v", q)
	}
	if (Query{PoolType: "unknown"}).Normalize().PoolType != PoolSafe {
		t.Fatalf("unknown pool type must fall back to safe")
	}
}

func TestQueryAllChainsAndToken(t *testing.T) {
	got := Query{Chain: "all", Token: "usdc", PoolType: PoolStable, MinTVL: 1}.Apply(samplePools())
	if len(got) != 3 {
		t.Fatalf("expected 3 usdc pools across chains, got %+v", got)
	}
	high := Query{Chain: "all", PoolType: PoolHighAPY, MinTVL: 1}.Apply(samplePools())
	if high[0].PoolID != "c" {
		t.Fatalf("high apy pools must be sorted, got %+v", high)
	}
}

func TestQueryProjectFilter(t *testing.T) {
	got := Query{Chain: "all", Project: "Aave", PoolType: PoolAll, MinTVL: 1}.Apply(samplePools())
	if len(got) != 1 || got[0].PoolID != "a" {
		t.Fatalf("expected only the aave pool, got %+v", got)
	}
}

func TestSummaryFormatsTopFive(t *testing.T) {
	pools := append(samplePools(), samplePools()...)
	text := Summary(pools)
	if !strings.HasPrefix(text, "📊 **Found 10 Yield Pools**\n\n1. **aave-v3** - USDC (Ethereum)\n") {
		t.Fatalf("unexpected summary header: %q", text)
	}
	if !strings.Contains(text, "💰 APY: 9.00% (Base: 8.00% + Rewards: 1.00%)\n📊 TVL: $50,000,000\n🔗 Pool ID: `a`\n") {
		t.Fatalf("unexpected pool block: %q", text)
	}
	if !strings.HasSuffix(text, "\n_... and 5 more pools_") {
		t.Fatalf("unexpected summary tail: %q", text)
	}
	if Summary(nil) != NoPoolsMessage {
		t.Fatalf("unexpected empty summary")
	}
}

func TestViewsRoundsAndLimits(t *testing.T) {
	views := Views([]Pool{{PoolID: "x", APYBase: 1.234, APYReward: 0.1, TVLUSD: 1234.6}}, 10)
	if len(views) != 1 || views[0].APYTotal != 1.33 || views[0].TVL != 1235 || views[0].Project != "Unknown" {
		t.Fatalf("unexpected views: %+v", views)
	}
}
