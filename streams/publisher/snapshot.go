package publisher

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-dex/engine"
	"github.com/defistate/defistate-dex/host"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/defistate/defistate-dex/protocols/factory"
	"github.com/defistate/defistate-dex/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	exchangeMeta = engine.ProtocolMeta{Name: "Defistate Exchange", Tags: []string{"dex"}}
	registryMeta = engine.ProtocolMeta{Name: "Defistate Token Registry", Tags: []string{"registry"}}
)

// TokenMetadata is implemented by token programs that expose their name,
// symbol and decimals. Tokens that don't are listed with empty metadata.
type TokenMetadata interface {
	TokenName(env host.Env) string
	TokenSymbol(env host.Env) string
	Decimals(env host.Env) uint8
}

// registrySnapshot is everything read from the ledger in one view.
type registrySnapshot struct {
	height    uint64
	pools     []exchange.PoolView
	poolsErr  error
	tokens    []tokenregistry.Token
	tokensErr error
}

// readRegistry walks the factory registry from id 1 up to the token count.
// env must be a frame executing as the factory.
func readRegistry(env host.Env) *registrySnapshot {
	fac := factory.Factory{}
	snap := &registrySnapshot{height: env.Height() - 1}

	count := fac.TokenCount(env)
	snap.pools = make([]exchange.PoolView, 0, count)
	snap.tokens = make([]tokenregistry.Token, 0, count)
	for id := uint64(1); id <= count; id++ {
		tokenAddr := fac.LookupTokenByID(env, id)
		poolAddr := fac.LookupPool(env, tokenAddr)

		if snap.tokensErr == nil {
			tok, err := readToken(env, id, tokenAddr, poolAddr)
			if err != nil {
				snap.tokensErr = fmt.Errorf("token %d (%s): %w", id, tokenAddr, err)
			} else {
				snap.tokens = append(snap.tokens, tok)
			}
		}
		if snap.poolsErr == nil {
			pool, err := readPool(env, id, tokenAddr, poolAddr)
			if err != nil {
				snap.poolsErr = fmt.Errorf("pool %d (%s): %w", id, poolAddr, err)
			} else {
				snap.pools = append(snap.pools, pool)
			}
		}
	}
	return snap
}

func readToken(env host.Env, id uint64, tokenAddr, poolAddr common.Address) (tokenregistry.Token, error) {
	tok := tokenregistry.Token{ID: id, Address: tokenAddr, Exchange: poolAddr}
	err := env.Call(tokenAddr, nil, func(env host.Env) error {
		code, ok := env.CodeAt(tokenAddr)
		if !ok {
			return fmt.Errorf("no code at token address")
		}
		if md, ok := code.(TokenMetadata); ok {
			tok.Name = md.TokenName(env)
			tok.Symbol = md.TokenSymbol(env)
			tok.Decimals = md.Decimals(env)
		}
		return nil
	})
	return tok, err
}

func readPool(env host.Env, id uint64, tokenAddr, poolAddr common.Address) (exchange.PoolView, error) {
	view := exchange.PoolView{ID: id, Address: poolAddr, Token: tokenAddr}
	err := env.Call(poolAddr, nil, func(env host.Env) error {
		code, ok := env.CodeAt(poolAddr)
		if !ok {
			return fmt.Errorf("no code at pool address")
		}
		pool, ok := code.(exchange.Pool)
		if !ok {
			return fmt.Errorf("code %s is not an exchange pool", code.Name())
		}
		native, token, err := pool.Reserves(env)
		if err != nil {
			return err
		}
		view.NativeReserve = native.ToBig()
		view.TokenReserve = token.ToBig()
		view.TotalSupply = pool.TotalSupply(env).ToBig()
		return nil
	})
	return view, err
}

func protocolState(meta engine.ProtocolMeta, schema engine.ProtocolSchema, height uint64, data any, err error) engine.ProtocolState {
	ps := engine.ProtocolState{
		Meta:              meta,
		SyncedBlockNumber: &height,
		Schema:            schema,
	}
	if err != nil {
		ps.Error = err.Error()
		return ps
	}
	ps.Data = data
	return ps
}

// headerRLP is hashed into the block summary hash.
type headerRLP struct {
	Height    uint64
	Timestamp uint64
	From      common.Address
	To        common.Address
	LogCount  uint64
}

// blockSummary describes height. receipt is used when it belongs to that
// height; after coalescing it may be older.
func blockSummary(height uint64, receipt *host.Receipt, now int64) engine.BlockSummary {
	b := engine.BlockSummary{
		Number:     new(big.Int).SetUint64(height),
		ReceivedAt: now,
		Timestamp:  uint64(now / 1e9),
	}
	if receipt != nil && receipt.Height == height {
		b.Timestamp = receipt.Timestamp
		b.From = receipt.From
		b.To = receipt.To
		b.LogCount = len(receipt.Logs)
	}
	enc, err := rlp.EncodeToBytes(headerRLP{
		Height:    height,
		Timestamp: b.Timestamp,
		From:      b.From,
		To:        b.To,
		LogCount:  uint64(b.LogCount),
	})
	if err == nil {
		b.Hash = crypto.Keccak256Hash(enc)
	}
	return b
}
