package burn

import (
	"errors"
	"math/big"

	"burnledger/core/events"
)

type mockState struct {
	ledger  *Ledger
	ranks   map[string]*RankEntry
	claims  map[[20]byte][]*HistoryEntry
	records []*BurnRecord
	viewer  *Viewer
	revoked map[string]bool
	writes  int
}

func newMockState() *mockState {
	return &mockState{
		ranks:   make(map[string]*RankEntry),
		claims:  make(map[[20]byte][]*HistoryEntry),
		revoked: make(map[string]bool),
	}
}

func (m *mockState) BurnLedger() (*Ledger, bool, error) {
	if m.ledger == nil {
		return nil, false, nil
	}
	return m.ledger.Clone(), true, nil
}

func (m *mockState) PutBurnLedger(ledger *Ledger) error {
	m.writes++
	m.ledger = ledger.Clone()
	return nil
}

func (m *mockState) BurnRank(itemID string) (*RankEntry, bool, error) {
	entry, ok := m.ranks[itemID]
	if !ok {
		return nil, false, nil
	}
	return entry.Clone(), true, nil
}

func (m *mockState) PutBurnRank(entry *RankEntry) error {
	m.writes++
	m.ranks[entry.ItemID] = entry.Clone()
	return nil
}

func (m *mockState) AppendClaimHistory(holder [20]byte, entry *HistoryEntry) error {
	m.writes++
	clone := *entry
	clone.Rewards = cloneBigInt(entry.Rewards)
	m.claims[holder] = append(m.claims[holder], &clone)
	return nil
}

func (m *mockState) ClaimHistoryLen(holder [20]byte) (uint32, error) {
	return uint32(len(m.claims[holder])), nil
}

func (m *mockState) ClaimHistoryPage(holder [20]byte, page, size uint32) ([]*HistoryEntry, error) {
	return pageOf(m.claims[holder], page, size), nil
}

func (m *mockState) AppendBurnRecord(record *BurnRecord) error {
	m.writes++
	clone := *record
	m.records = append(m.records, &clone)
	return nil
}

func (m *mockState) BurnRecordLen() (uint32, error) {
	return uint32(len(m.records)), nil
}

func (m *mockState) BurnRecordPage(page, size uint32) ([]*BurnRecord, error) {
	return pageOf(m.records, page, size), nil
}

func (m *mockState) BurnViewer() (*Viewer, bool, error) {
	if m.viewer == nil {
		return nil, false, nil
	}
	clone := *m.viewer
	return &clone, true, nil
}

func (m *mockState) PutBurnViewer(viewer *Viewer) error {
	m.writes++
	clone := *viewer
	m.viewer = &clone
	return nil
}

func (m *mockState) RevokePermit(holder [20]byte, name string) error {
	m.writes++
	m.revoked[string(holder[:])+"/"+name] = true
	return nil
}

func (m *mockState) PermitRevoked(holder [20]byte, name string) (bool, error) {
	return m.revoked[string(holder[:])+"/"+name], nil
}

func pageOf[T any](all []T, page, size uint32) []T {
	if size == 0 {
		return []T{}
	}
	start := uint64(page) * uint64(size)
	if start >= uint64(len(all)) {
		return []T{}
	}
	end := start + uint64(size)
	if end > uint64(len(all)) {
		end = uint64(len(all))
	}
	return append([]T(nil), all[start:end]...)
}

type mockRegistry struct {
	items map[string]*Metadata
	err   error
}

func (r *mockRegistry) ItemMetadata(itemID string) (*Metadata, error) {
	if r.err != nil {
		return nil, r.err
	}
	if meta, ok := r.items[itemID]; ok {
		return meta, nil
	}
	return &Metadata{Name: itemID}, nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType())
	}
	return out
}

var errRegistryDown = errors.New("registry unavailable")

func amount(v int64) *big.Int { return big.NewInt(v) }
