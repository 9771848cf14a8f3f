package state

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AppendLog is an append-only, order-preserving sequence stored as one key
// per entry plus a length counter.
type AppendLog struct {
	tx     *Tx
	prefix []byte
}

// NewAppendLog returns the log rooted at prefix.
func NewAppendLog(tx *Tx, prefix []byte) *AppendLog {
	return &AppendLog{tx: tx, prefix: append([]byte(nil), prefix...)}
}

func (l *AppendLog) lenKey() []byte {
	return append(append([]byte(nil), l.prefix...), "/len"...)
}

func (l *AppendLog) entryKey(index uint32) []byte {
	buf := make([]byte, len(l.prefix)+1+4)
	copy(buf, l.prefix)
	buf[len(l.prefix)] = '/'
	binary.BigEndian.PutUint32(buf[len(l.prefix)+1:], index)
	return buf
}

// Len returns the number of entries pushed so far.
func (l *AppendLog) Len() (uint32, error) {
	var n uint32
	if _, err := l.tx.KVGet(l.lenKey(), &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Push appends value to the end of the log.
func (l *AppendLog) Push(value interface{}) error {
	n, err := l.Len()
	if err != nil {
		return err
	}
	if n == math.MaxUint32 {
		return fmt.Errorf("append log: %s is full", l.prefix)
	}
	if err := l.tx.KVPut(l.entryKey(n), value); err != nil {
		return err
	}
	return l.tx.KVPut(l.lenKey(), n+1)
}

// Get decodes the entry at index into out.
func (l *AppendLog) Get(index uint32, out interface{}) (bool, error) {
	return l.tx.KVGet(l.entryKey(index), out)
}

// PageBounds returns the half-open index range covered by page. The range is
// empty when size is zero or the page starts past the end of the log.
func (l *AppendLog) PageBounds(page, size uint32) (uint32, uint32, error) {
	n, err := l.Len()
	if err != nil {
		return 0, 0, err
	}
	start := uint64(page) * uint64(size)
	if size == 0 || start >= uint64(n) {
		return 0, 0, nil
	}
	end := start + uint64(size)
	if end > uint64(n) {
		end = uint64(n)
	}
	return uint32(start), uint32(end), nil
}

func readPage[T any](l *AppendLog, page, size uint32) ([]*T, error) {
	start, end, err := l.PageBounds(page, size)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, end-start)
	for i := start; i < end; i++ {
		entry := new(T)
		ok, err := l.Get(i, entry)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("append log: %s entry %d missing", l.prefix, i)
		}
		out = append(out, entry)
	}
	return out, nil
}
