// Package factory implements the pool registry: it deploys one exchange pool
// per token and keeps the token <-> pool mapping.
package factory

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/defistate/defistate-dex/host"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Version is mixed into every pool salt.
const Version uint32 = 0

// EndowmentDivisor sets the share of the factory's native balance handed to
// each new pool.
var EndowmentDivisor = uint256.NewInt(10)

var (
	ErrTemplateAlreadySet = errors.New("deployment template already set")
	ErrInvalidTemplate    = errors.New("invalid deployment template")
	ErrTemplateNotSet     = errors.New("deployment template not set")
	ErrInvalidToken       = errors.New("invalid token")
	ErrPoolAlreadyExists  = errors.New("pool already exists")
	ErrDeploymentFailed   = host.ErrDeploymentFailed
)

var (
	keyTemplate   = host.StorageKey([]byte("factory/template"))
	keyTokenCount = host.StorageKey([]byte("factory/tokenCount"))

	prefixTokenToPool = []byte("factory/tokenToPool")
	prefixPoolToToken = []byte("factory/poolToToken")
	prefixIDToToken   = []byte("factory/idToToken")
)

type PoolCreated struct {
	Token common.Address `json:"token"`
	Pool  common.Address `json:"pool"`
	ID    uint64         `json:"id"`
}

func (PoolCreated) EventName() string { return "PoolCreated" }

type TemplateSet struct {
	Template common.Hash `json:"template"`
}

func (TemplateSet) EventName() string { return "TemplateSet" }

// Factory is the registry program.
type Factory struct{}

var _ host.Code = Factory{}

func (Factory) Name() string { return "defistate/factory@v1" }

// Construct accepts either no argument or a 32-byte deployment template to set
// right away.
func (f Factory) Construct(env host.Env, arg []byte) error {
	switch len(arg) {
	case 0:
		return nil
	case common.HashLength:
		return f.SetDeploymentTemplate(env, common.BytesToHash(arg))
	default:
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidTemplate, common.HashLength, len(arg))
	}
}

// Salt derives the deployment salt of the pool for token.
func Salt(token common.Address) [32]byte {
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], Version)
	return crypto.Keccak256Hash(token.Bytes(), v[:])
}

// PoolAddress predicts where the factory at factoryAddr deploys the pool for
// token when using template.
func PoolAddress(factoryAddr common.Address, template common.Hash, token common.Address) common.Address {
	return crypto.CreateAddress2(factoryAddr, Salt(token), template.Bytes())
}

func idKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

// SetDeploymentTemplate stores the pool template. It can only be set once.
func (Factory) SetDeploymentTemplate(env host.Env, template common.Hash) error {
	if current := env.GetState(keyTemplate); current != (common.Hash{}) {
		return fmt.Errorf("%w: %s", ErrTemplateAlreadySet, current)
	}
	if template == (common.Hash{}) {
		return ErrInvalidTemplate
	}
	if err := env.SetState(keyTemplate, template); err != nil {
		return err
	}
	env.Emit(TemplateSet{Template: template})
	return nil
}

func (Factory) Template(env host.Env) common.Hash {
	return env.GetState(keyTemplate)
}

// CreatePool deploys the pool for token, endows it with a tenth of the
// factory's native balance and registers it under the next numeric id.
func (f Factory) CreatePool(env host.Env, token common.Address) (common.Address, error) {
	template := f.Template(env)
	if template == (common.Hash{}) {
		return common.Address{}, ErrTemplateNotSet
	}
	if token == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidToken)
	}
	if existing := f.LookupPool(env, token); existing != (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: token %s has pool %s", ErrPoolAlreadyExists, token, existing)
	}

	endowment := new(uint256.Int).Div(env.Balance(), EndowmentDivisor)
	pool, err := env.Instantiate(template, token.Bytes(), endowment, Salt(token))
	if err != nil {
		if errors.Is(err, ErrDeploymentFailed) {
			return common.Address{}, err
		}
		return common.Address{}, fmt.Errorf("%w: %w", ErrDeploymentFailed, err)
	}

	id := f.TokenCount(env) + 1
	if err := host.StoreUint(env, keyTokenCount, uint256.NewInt(id)); err != nil {
		return common.Address{}, err
	}
	if err := host.StoreAddress(env, host.StorageKey(prefixTokenToPool, token.Bytes()), pool); err != nil {
		return common.Address{}, err
	}
	if err := host.StoreAddress(env, host.StorageKey(prefixPoolToToken, pool.Bytes()), token); err != nil {
		return common.Address{}, err
	}
	if err := host.StoreAddress(env, host.StorageKey(prefixIDToToken, idKey(id)), token); err != nil {
		return common.Address{}, err
	}

	env.Emit(PoolCreated{Token: token, Pool: pool, ID: id})
	return pool, nil
}

// LookupPool returns the pool for token, or the zero address.
func (Factory) LookupPool(env host.Env, token common.Address) common.Address {
	return host.LoadAddress(env, host.StorageKey(prefixTokenToPool, token.Bytes()))
}

// LookupToken returns the token traded by pool, or the zero address.
func (Factory) LookupToken(env host.Env, pool common.Address) common.Address {
	return host.LoadAddress(env, host.StorageKey(prefixPoolToToken, pool.Bytes()))
}

// LookupTokenByID returns the token registered under id, or the zero address.
// Ids start at 1.
func (Factory) LookupTokenByID(env host.Env, id uint64) common.Address {
	return host.LoadAddress(env, host.StorageKey(prefixIDToToken, idKey(id)))
}

// TokenCount is the number of registered tokens, which is also the highest id.
func (Factory) TokenCount(env host.Env) uint64 {
	return host.LoadUint(env, keyTokenCount).Uint64()
}
