package state

import (
	"fmt"
	"math/big"

	"burnledger/native/burn"
)

var (
	burnLedgerKey      = []byte("burn/ledger")
	burnRankPrefix     = []byte("burn/rank/")
	burnClaimsPrefix   = []byte("burn/claims/")
	burnRecordsKey     = []byte("burn/records")
	burnViewerKey      = []byte("burn/viewer")
	permitRevokePrefix = []byte("permit/revoked/")
)

func burnRankKey(itemID string) []byte {
	buf := make([]byte, len(burnRankPrefix)+len(itemID))
	copy(buf, burnRankPrefix)
	copy(buf[len(burnRankPrefix):], itemID)
	return buf
}

func burnClaimsKey(holder [20]byte) []byte {
	buf := make([]byte, len(burnClaimsPrefix)+len(holder))
	copy(buf, burnClaimsPrefix)
	copy(buf[len(burnClaimsPrefix):], holder[:])
	return buf
}

func permitRevokeKey(holder [20]byte, name string) []byte {
	buf := make([]byte, 0, len(permitRevokePrefix)+len(holder)+1+len(name))
	buf = append(buf, permitRevokePrefix...)
	buf = append(buf, holder[:]...)
	buf = append(buf, '/')
	buf = append(buf, name...)
	return buf
}

type storedPool struct {
	Name           string
	TokenCodeHash  string
	TokenAddress   [20]byte
	TokenName      string
	BaseReward     *big.Int
	BonusHourly    *big.Int
	BurnType       uint8
	RankScheme     uint8
	RankBonusStart *big.Int
	Balance        *big.Int
}

type storedLedger struct {
	Owner            [20]byte
	Active           bool
	RegistryCodeHash string
	RegistryAddress  [20]byte
	RegistryName     string
	Pools            []storedPool
	TraitRestriction string
	BonusClock       uint64
	TotalBurned      uint64
	ContractKey      string
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func newStoredLedger(l *burn.Ledger) (*storedLedger, error) {
	stored := &storedLedger{
		Owner:            l.Owner,
		Active:           l.Active,
		RegistryCodeHash: l.ItemRegistry.CodeHash,
		RegistryAddress:  l.ItemRegistry.Address,
		RegistryName:     l.ItemRegistry.Name,
		Pools:            make([]storedPool, 0, len(l.Pools)),
		TraitRestriction: l.TraitRestriction,
		BonusClock:       l.BonusClock,
		TotalBurned:      l.TotalBurned,
		ContractKey:      l.ContractKey,
	}
	for _, pool := range l.Pools {
		if pool == nil {
			continue
		}
		if pool.Balance != nil && pool.Balance.Sign() < 0 {
			return nil, fmt.Errorf("burn state: pool %s balance negative", pool.Name)
		}
		stored.Pools = append(stored.Pools, storedPool{
			Name:           pool.Name,
			TokenCodeHash:  pool.Token.CodeHash,
			TokenAddress:   pool.Token.Address,
			TokenName:      pool.Token.Name,
			BaseReward:     amountOrZero(pool.BaseReward),
			BonusHourly:    amountOrZero(pool.BonusHourly),
			BurnType:       uint8(pool.BurnType),
			RankScheme:     uint8(pool.RankScheme),
			RankBonusStart: amountOrZero(pool.RankBonusStart),
			Balance:        amountOrZero(pool.Balance),
		})
	}
	return stored, nil
}

func (s *storedLedger) toLedger() *burn.Ledger {
	out := &burn.Ledger{
		Owner:  s.Owner,
		Active: s.Active,
		ItemRegistry: burn.ContractRef{
			CodeHash: s.RegistryCodeHash,
			Address:  s.RegistryAddress,
			Name:     s.RegistryName,
		},
		Pools:            make([]*burn.RewardPool, 0, len(s.Pools)),
		TraitRestriction: s.TraitRestriction,
		BonusClock:       s.BonusClock,
		TotalBurned:      s.TotalBurned,
		ContractKey:      s.ContractKey,
	}
	for _, pool := range s.Pools {
		out.Pools = append(out.Pools, &burn.RewardPool{
			Name: pool.Name,
			Token: burn.ContractRef{
				CodeHash: pool.TokenCodeHash,
				Address:  pool.TokenAddress,
				Name:     pool.TokenName,
			},
			BaseReward:     amountOrZero(pool.BaseReward),
			BonusHourly:    amountOrZero(pool.BonusHourly),
			BurnType:       burn.BurnType(pool.BurnType),
			RankScheme:     burn.RankScheme(pool.RankScheme),
			RankBonusStart: amountOrZero(pool.RankBonusStart),
			Balance:        amountOrZero(pool.Balance),
		})
	}
	return out
}

// BurnLedger loads the ledger singleton.
func (tx *Tx) BurnLedger() (*burn.Ledger, bool, error) {
	var stored storedLedger
	ok, err := tx.KVGet(burnLedgerKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toLedger(), true, nil
}

// PutBurnLedger stores the ledger singleton.
func (tx *Tx) PutBurnLedger(ledger *burn.Ledger) error {
	if ledger == nil {
		return fmt.Errorf("burn state: nil ledger")
	}
	stored, err := newStoredLedger(ledger)
	if err != nil {
		return err
	}
	return tx.KVPut(burnLedgerKey, stored)
}

// BurnRank returns the rank entry stored for itemID.
func (tx *Tx) BurnRank(itemID string) (*burn.RankEntry, bool, error) {
	entry := new(burn.RankEntry)
	ok, err := tx.KVGet(burnRankKey(itemID), entry)
	if err != nil || !ok {
		return nil, ok, err
	}
	return entry, true, nil
}

// PutBurnRank stores entry, replacing any previous entry for the same item.
func (tx *Tx) PutBurnRank(entry *burn.RankEntry) error {
	if entry == nil || entry.ItemID == "" {
		return fmt.Errorf("burn state: rank entry requires an item id")
	}
	return tx.KVPut(burnRankKey(entry.ItemID), entry)
}

// ClaimLog returns the claim history partition of holder.
func (tx *Tx) ClaimLog(holder [20]byte) *AppendLog {
	return NewAppendLog(tx, burnClaimsKey(holder))
}

// BurnLog returns the global burn history.
func (tx *Tx) BurnLog() *AppendLog {
	return NewAppendLog(tx, burnRecordsKey)
}

func (tx *Tx) AppendClaimHistory(holder [20]byte, entry *burn.HistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("burn state: nil history entry")
	}
	return tx.ClaimLog(holder).Push(entry)
}

func (tx *Tx) ClaimHistoryLen(holder [20]byte) (uint32, error) {
	return tx.ClaimLog(holder).Len()
}

func (tx *Tx) ClaimHistoryPage(holder [20]byte, page, size uint32) ([]*burn.HistoryEntry, error) {
	return readPage[burn.HistoryEntry](tx.ClaimLog(holder), page, size)
}

func (tx *Tx) AppendBurnRecord(record *burn.BurnRecord) error {
	if record == nil {
		return fmt.Errorf("burn state: nil burn record")
	}
	return tx.BurnLog().Push(record)
}

func (tx *Tx) BurnRecordLen() (uint32, error) {
	return tx.BurnLog().Len()
}

func (tx *Tx) BurnRecordPage(page, size uint32) ([]*burn.BurnRecord, error) {
	return readPage[burn.BurnRecord](tx.BurnLog(), page, size)
}

// BurnViewer returns the admin viewing credential.
func (tx *Tx) BurnViewer() (*burn.Viewer, bool, error) {
	viewer := new(burn.Viewer)
	ok, err := tx.KVGet(burnViewerKey, viewer)
	if err != nil || !ok {
		return nil, ok, err
	}
	return viewer, true, nil
}

func (tx *Tx) PutBurnViewer(viewer *burn.Viewer) error {
	if viewer == nil {
		return fmt.Errorf("burn state: nil viewer")
	}
	return tx.KVPut(burnViewerKey, viewer)
}

// RevokePermit marks the holder's permit called name as revoked.
func (tx *Tx) RevokePermit(holder [20]byte, name string) error {
	return tx.KVPut(permitRevokeKey(holder, name), true)
}

// PermitRevoked reports whether the holder revoked the permit called name.
func (tx *Tx) PermitRevoked(holder [20]byte, name string) (bool, error) {
	var revoked bool
	ok, err := tx.KVGet(permitRevokeKey(holder, name), &revoked)
	if err != nil || !ok {
		return false, err
	}
	return revoked, nil
}

var _ burn.State = (*Tx)(nil)
