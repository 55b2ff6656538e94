package client

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-dex/engine"
	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/node"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/defistate/defistate-dex/protocols/tokenregistry"
	"github.com/defistate/defistate-dex/storage"
	"github.com/defistate/defistate-dex/streams/jsonrpc/server"
	"github.com/defistate/defistate-dex/streams/jsonrpc/stateops"
	"github.com/defistate/defistate-dex/streams/publisher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForHeight(t *testing.T, c *Client, height uint64) *engine.State {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-c.State():
			if s.Block.Number != nil && s.Block.Number.Uint64() >= height {
				return s
			}
		case err := <-c.Err():
			t.Fatalf("client failed: %v", err)
		case <-deadline:
			t.Fatalf("timed out waiting for height %d", height)
		}
	}
}

func assertPoolsEqual(t *testing.T, want, got []exchange.PoolView) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Address, got[i].Address)
		assert.Equal(t, want[i].Token, got[i].Token)
		assert.Zero(t, want[i].NativeReserve.Cmp(got[i].NativeReserve), "native reserve of pool %d", want[i].ID)
		assert.Zero(t, want[i].TokenReserve.Cmp(got[i].TokenReserve), "token reserve of pool %d", want[i].ID)
		assert.Zero(t, want[i].TotalSupply.Cmp(got[i].TotalSupply), "total supply of pool %d", want[i].ID)
	}
}

func TestClient_FollowsLiveExchange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	alice := common.HexToAddress("0xa11ce")

	rt, err := host.NewRuntime(&host.Config{Store: storage.NewMemory(), Registry: reg, Logger: logger})
	require.NoError(t, err)
	n, err := node.Bootstrap(ctx, rt, &node.Genesis{
		Deployer:     common.HexToAddress("0xde"),
		FactoryFunds: uint256.NewInt(1_000_000),
		Accounts:     []node.GenesisAccount{{Address: alice, Balance: uint256.NewInt(10_000_000)}},
		Tokens: []node.GenesisToken{
			{Name: "Alpha", Symbol: "ALP", Decimals: 18, Supply: big.NewInt(1_000_000), Owner: alice, CreatePool: true},
			{Name: "Beta", Symbol: "BET", Decimals: 6, Supply: big.NewInt(1_000_000), Owner: alice},
		},
	}, logger)
	require.NoError(t, err)

	ops, err := stateops.NewStateOps(logger, reg)
	require.NoError(t, err)
	pub, err := publisher.New(&publisher.Config{
		ChainID: 1337, Backend: rt, Factory: n.Factory(), Differ: ops, Logger: logger, Registry: reg,
	})
	require.NoError(t, err)
	go func() { _ = pub.Run(ctx) }()
	require.Eventually(t, func() bool { return pub.Latest() != nil }, 2*time.Second, 10*time.Millisecond)

	srv, err := server.NewServer(&server.Config{Node: n, Stream: pub, Logger: logger})
	require.NoError(t, err)
	defer srv.Stop()
	ts := httptest.NewServer(srv.WebsocketHandler([]string{"*"}))
	defer ts.Close()

	client, err := NewClient(ctx, Config{
		URL:              "ws://" + strings.TrimPrefix(ts.URL, "http://"),
		ChainID:          1337,
		Registry:         reg,
		Logger:           logger,
		BufferSize:       16,
		StatePatcher:     ops.Patch,
		StateDecoder:     ops.DecodeStateJSON,
		StateDiffDecoder: ops.DecodeStateDiffJSON,
	})
	require.NoError(t, err)

	first := waitForHeight(t, client, pub.Latest().Block.Number.Uint64())
	assertPoolsEqual(t,
		pub.Latest().Protocols[exchange.ProtocolID].Data.([]exchange.PoolView),
		first.Protocols[exchange.ProtocolID].Data.([]exchange.PoolView))

	// list a second token and trade on the first one; the client only sees diffs
	_, _, err = n.CreatePool(ctx, alice, node.GenesisTokenAddress(alice, "BET"))
	require.NoError(t, err)

	alpha, err := n.LookupTokenByID(ctx, 1)
	require.NoError(t, err)
	alphaPool, err := n.LookupPool(ctx, alpha)
	require.NoError(t, err)
	_, err = n.ApproveToken(ctx, alice, alpha, alphaPool, new(uint256.Int).SetAllOne())
	require.NoError(t, err)
	_, _, err = n.AddLiquidity(ctx, alice, alphaPool, uint256.NewInt(100_000), uint256.NewInt(200_000))
	require.NoError(t, err)
	_, receipt, err := n.SwapNativeForTokenExactInput(ctx, alice, alphaPool, uint256.NewInt(10_000), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return pub.Latest().Block.Number.Uint64() >= receipt.Height
	}, 2*time.Second, 10*time.Millisecond)
	want := pub.Latest()
	got := waitForHeight(t, client, receipt.Height)
	require.Equal(t, want.Block.Number.Uint64(), got.Block.Number.Uint64())

	assertPoolsEqual(t,
		want.Protocols[exchange.ProtocolID].Data.([]exchange.PoolView),
		got.Protocols[exchange.ProtocolID].Data.([]exchange.PoolView))
	assert.Equal(t,
		want.Protocols[tokenregistry.ProtocolID].Data,
		got.Protocols[tokenregistry.ProtocolID].Data)

	tokens := got.Protocols[tokenregistry.ProtocolID].Data.([]tokenregistry.Token)
	require.Len(t, tokens, 2)
	assert.Equal(t, "BET", tokens[1].Symbol)
}
