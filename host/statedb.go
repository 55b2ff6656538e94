package host

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-dex/safemath"
	"github.com/defistate/defistate-dex/storage"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
)

const (
	balancePrefix byte = 'b'
	codePrefix    byte = 'c'
	statePrefix   byte = 's'
	metaPrefix    byte = 'm'
)

var heightKey = string([]byte{metaPrefix, 'h'})

func balanceKey(addr common.Address) string {
	return string(append([]byte{balancePrefix}, addr.Bytes()...))
}

func codeKey(addr common.Address) string {
	return string(append([]byte{codePrefix}, addr.Bytes()...))
}

func stateKey(addr common.Address, key common.Hash) string {
	k := make([]byte, 0, 1+common.AddressLength+common.HashLength)
	k = append(k, statePrefix)
	k = append(k, addr.Bytes()...)
	k = append(k, key.Bytes()...)
	return string(k)
}

type journalEntry struct {
	key     string
	prev    []byte
	present bool
}

type revision struct {
	id           int
	journalIndex int
	logIndex     int
}

// StateDB is a journaled write overlay on top of a storage.KV. Writes stay in
// memory until Commit; snapshots can be taken at any point and reverted in
// LIFO order. An empty value marks a deleted key.
//
// StateDB is not safe for concurrent use; Runtime serializes access.
type StateDB struct {
	kv    storage.KV
	cache *lru.Cache[string, []byte]

	dirty   map[string][]byte
	journal []journalEntry
	logs    []*Log

	validRevisions []revision
	nextRevisionID int

	// dbErr latches the first backend read failure. Reads cannot return
	// errors, so the call that observed it fails when it finishes.
	dbErr error
}

func NewStateDB(kv storage.KV, cacheSize int) (*StateDB, error) {
	if kv == nil {
		return nil, errors.New("statedb: kv cannot be nil")
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("statedb: %w", err)
	}
	return &StateDB{
		kv:    kv,
		cache: cache,
		dirty: make(map[string][]byte),
	}, nil
}

func (s *StateDB) setError(err error) {
	if s.dbErr == nil {
		s.dbErr = err
	}
}

// Error returns the first backend failure observed since the last Commit or
// Discard.
func (s *StateDB) Error() error {
	return s.dbErr
}

func (s *StateDB) get(key string) []byte {
	if v, ok := s.dirty[key]; ok {
		return v
	}
	if v, ok := s.cache.Get(key); ok {
		return v
	}
	v, err := s.kv.Get([]byte(key))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.setError(err)
			return nil
		}
		v = nil
	}
	s.cache.Add(key, v)
	return v
}

func (s *StateDB) set(key string, value []byte) {
	prev, present := s.dirty[key]
	s.journal = append(s.journal, journalEntry{key: key, prev: prev, present: present})
	s.dirty[key] = value
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes(s.get(balanceKey(addr)))
}

func (s *StateDB) SetBalance(addr common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		s.set(balanceKey(addr), nil)
		return
	}
	s.set(balanceKey(addr), amount.Bytes())
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int) error {
	bal, err := safemath.Add(s.GetBalance(addr), amount)
	if err != nil {
		return err
	}
	s.SetBalance(addr, bal)
	return nil
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int) error {
	bal := s.GetBalance(addr)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, addr, bal, amount)
	}
	s.SetBalance(addr, new(uint256.Int).Sub(bal, amount))
	return nil
}

// Transfer moves amount from one account to another. A zero amount is a no-op.
func (s *StateDB) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := s.SubBalance(from, amount); err != nil {
		return err
	}
	return s.AddBalance(to, amount)
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	return common.BytesToHash(s.get(stateKey(addr, key)))
}

func (s *StateDB) SetState(addr common.Address, key, value common.Hash) {
	if value == (common.Hash{}) {
		s.set(stateKey(addr, key), nil)
		return
	}
	s.set(stateKey(addr, key), value.Bytes())
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	return common.BytesToHash(s.get(codeKey(addr)))
}

func (s *StateDB) SetCodeHash(addr common.Address, hash common.Hash) {
	s.set(codeKey(addr), hash.Bytes())
}

func (s *StateDB) getHeight() uint64 {
	return new(uint256.Int).SetBytes(s.get(heightKey)).Uint64()
}

func (s *StateDB) setHeight(h uint64) {
	s.set(heightKey, uint256.NewInt(h).Bytes())
}

func (s *StateDB) AddLog(l *Log) {
	l.Index = uint(len(s.logs))
	s.logs = append(s.logs, l)
}

// Logs returns the logs emitted since the last Commit or Discard.
func (s *StateDB) Logs() []*Log {
	return s.logs
}

func (s *StateDB) Snapshot() int {
	id := s.nextRevisionID
	s.nextRevisionID++
	s.validRevisions = append(s.validRevisions, revision{
		id:           id,
		journalIndex: len(s.journal),
		logIndex:     len(s.logs),
	})
	return id
}

func (s *StateDB) RevertToSnapshot(id int) {
	idx := -1
	for i := len(s.validRevisions) - 1; i >= 0; i-- {
		if s.validRevisions[i].id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic(fmt.Errorf("revision id %v cannot be reverted", id))
	}
	rev := s.validRevisions[idx]

	for i := len(s.journal) - 1; i >= rev.journalIndex; i-- {
		e := s.journal[i]
		if e.present {
			s.dirty[e.key] = e.prev
		} else {
			delete(s.dirty, e.key)
		}
	}
	s.journal = s.journal[:rev.journalIndex]
	s.logs = s.logs[:rev.logIndex]
	s.validRevisions = s.validRevisions[:idx]
}

// Discard drops every pending write, log and latched error.
func (s *StateDB) Discard() {
	s.dirty = make(map[string][]byte)
	s.reset()
}

func (s *StateDB) reset() {
	s.journal = s.journal[:0]
	s.logs = nil
	s.validRevisions = s.validRevisions[:0]
	s.dbErr = nil
}

// Commit writes all pending writes to the backend in a single batch.
func (s *StateDB) Commit() error {
	if s.dbErr != nil {
		return s.dbErr
	}
	batch := s.kv.NewBatch()
	for k, v := range s.dirty {
		var err error
		if len(v) == 0 {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Set([]byte(k), v)
		}
		if err != nil {
			return fmt.Errorf("statedb: staging %x: %w", k, err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("statedb: commit: %w", err)
	}
	for k, v := range s.dirty {
		s.cache.Add(k, v)
	}
	s.dirty = make(map[string][]byte)
	s.reset()
	return nil
}
