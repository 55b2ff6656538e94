package host

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"
)

// MaxShortString is the longest string StoreString can pack into one slot.
const MaxShortString = common.HashLength - 1

// StorageKey derives a slot key from a prefix and any number of key parts.
func StorageKey(prefix []byte, parts ...[]byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	for _, p := range parts {
		h.Write(p)
	}
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

func LoadUint(env Env, key common.Hash) *uint256.Int {
	v := env.GetState(key)
	return new(uint256.Int).SetBytes32(v[:])
}

func StoreUint(env Env, key common.Hash, v *uint256.Int) error {
	return env.SetState(key, common.Hash(v.Bytes32()))
}

func LoadAddress(env Env, key common.Hash) common.Address {
	return common.BytesToAddress(env.GetState(key).Bytes())
}

func StoreAddress(env Env, key common.Hash, addr common.Address) error {
	return env.SetState(key, common.BytesToHash(addr.Bytes()))
}

// LoadString reads a string packed by StoreString.
func LoadString(env Env, key common.Hash) string {
	v := env.GetState(key)
	n := int(v[0])
	if n > MaxShortString {
		n = MaxShortString
	}
	return string(v[1 : 1+n])
}

// StoreString packs s into a single slot as a length byte followed by the
// string bytes.
func StoreString(env Env, key common.Hash, s string) error {
	if len(s) > MaxShortString {
		return fmt.Errorf("string of %d bytes exceeds %d", len(s), MaxShortString)
	}
	var v common.Hash
	v[0] = byte(len(s))
	copy(v[1:], s)
	return env.SetState(key, v)
}
