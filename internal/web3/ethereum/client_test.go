package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type stubBackend struct {
	chainID  *big.Int
	block    uint64
	balances map[common.Address]*big.Int
	err      error
	closed   bool
}

func (s *stubBackend) ChainID(context.Context) (*big.Int, error) { return s.chainID, s.err }

func (s *stubBackend) BlockNumber(context.Context) (uint64, error) { return s.block, s.err }

func (s *stubBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	if b, ok := s.balances[account]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (s *stubBackend) Close() { s.closed = true }

const holder = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func TestClientSnapshotAndBalance(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		chainID:  big.NewInt(11155111),
		block:    0x5a1b2c,
		balances: map[common.Address]*big.Int{common.HexToAddress(holder): big.NewInt(1_500_000_000_000_000_000)},
	}
	client := newClient(Config{Name: "Sepolia", Notes: "testnet"}, stub)

	snap, err := client.FetchChainSnapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ChainID != "11155111" || snap.BlockNumber != "0x5a1b2c" || snap.Notes != "testnet" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	balance, err := client.BalanceAt(context.Background(), holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.String() != "1500000000000000000" {
		t.Fatalf("unexpected balance: %s", balance)
	}

	client.Close()
	if !stub.closed {
		t.Fatal("expected backend to be closed")
	}
	if _, err := client.BalanceAt(context.Background(), holder); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestClientRejectsInvalidAddress(t *testing.T) {
	t.Parallel()

	client := newClient(Config{}, &stubBackend{})
	if _, err := client.BalanceAt(context.Background(), "0x1234"); err == nil {
		t.Fatal("expected invalid address error")
	}
}

func TestClientPropagatesRPCErrors(t *testing.T) {
	t.Parallel()

	client := newClient(Config{}, &stubBackend{err: errors.New("rpc down")})
	if _, err := client.FetchChainSnapshot(context.Background()); err == nil {
		t.Fatal("expected snapshot error")
	}
	if _, err := client.BalanceAt(context.Background(), holder); err == nil {
		t.Fatal("expected balance error")
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty rpc url")
	}
}
