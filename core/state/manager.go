package state

import (
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"burnledger/storage"
)

var errTxClosed = errors.New("state: transaction already closed")

// Manager owns the ledger's key-value state. Mutations run inside Update,
// which buffers every write and commits them with a single storage batch.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Update runs fn inside a writable transaction. The buffered writes are
// committed only when fn returns nil; any error discards them.
func (m *Manager) Update(fn func(tx *Tx) error) error {
	tx := m.begin()
	if err := fn(tx); err != nil {
		tx.discard()
		return err
	}
	return tx.commit()
}

// View runs fn against a transaction whose writes are always discarded.
func (m *Manager) View(fn func(tx *Tx) error) error {
	tx := m.begin()
	defer tx.discard()
	return fn(tx)
}

func (m *Manager) begin() *Tx {
	return &Tx{db: m.db, writes: make(map[string][]byte)}
}

// Tx is a buffered view over the database. Reads observe the transaction's
// own pending writes.
type Tx struct {
	db     storage.Database
	writes map[string][]byte
	closed bool
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (tx *Tx) get(hashed []byte) ([]byte, error) {
	if tx.closed {
		return nil, errTxClosed
	}
	if value, ok := tx.writes[string(hashed)]; ok {
		return value, nil
	}
	value, err := tx.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if tx.closed {
		return errTxClosed
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.writes[string(kvKey(key))] = encoded
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := tx.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Pending reports the number of buffered writes.
func (tx *Tx) Pending() int { return len(tx.writes) }

func (tx *Tx) commit() error {
	if tx.closed {
		return errTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.writes))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := tx.db.NewBatch()
	for _, k := range keys {
		batch.Put([]byte(k), tx.writes[k])
	}
	tx.writes = nil
	return batch.Write()
}

func (tx *Tx) discard() {
	tx.closed = true
	tx.writes = nil
}
