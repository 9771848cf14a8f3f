package burn

import (
	"fmt"

	"burnledger/native/permit"
)

// Info returns the public ledger view. The contract key and pool balances
// are withheld; balances are only served by PoolBalances against the viewing
// key.
func (e *Engine) Info(st State) (*Info, error) {
	ledger, err := loadLedger(st)
	if err != nil {
		return nil, err
	}
	pools := ledger.Clone().Pools
	for _, pool := range pools {
		pool.Balance = nil
	}
	return &Info{
		Owner:            ledger.Owner,
		Active:           ledger.Active,
		ItemRegistry:     ledger.ItemRegistry,
		Pools:            pools,
		TraitRestriction: ledger.TraitRestriction,
		BonusClock:       ledger.BonusClock,
		TotalBurned:      ledger.TotalBurned,
	}, nil
}

// ExpectedRewards estimates, per item, the reward each pool would pay if the
// item were burned now. The result has one row per item in input order.
func (e *Engine) ExpectedRewards(st State, itemIDs []string) ([][]Reward, error) {
	ledger, err := loadLedger(st)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([][]Reward, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		rank, _, err := st.BurnRank(itemID)
		if err != nil {
			return nil, err
		}
		row := make([]Reward, 0, len(ledger.Pools))
		for _, pool := range ledger.Pools {
			row = append(row, Estimate(itemID, pool, rank, now, ledger.BonusClock))
		}
		out = append(out, row)
	}
	return out, nil
}

// Rank returns the rank entry stored for itemID.
func (e *Engine) Rank(st State, itemID string) (*RankEntry, bool, error) {
	if st == nil {
		return nil, false, errNilState
	}
	return st.BurnRank(itemID)
}

// ClaimHistoryCount returns the number of claims recorded for the permit holder.
func (e *Engine) ClaimHistoryCount(st State, p *permit.Permit) (uint32, error) {
	if st == nil {
		return 0, errNilState
	}
	holder, err := e.resolveHolder(st, p)
	if err != nil {
		return 0, err
	}
	return st.ClaimHistoryLen(holder)
}

// ClaimHistory returns one page of the permit holder's claim history.
func (e *Engine) ClaimHistory(st State, p *permit.Permit, page, size uint32) ([]*HistoryEntry, error) {
	if st == nil {
		return nil, errNilState
	}
	holder, err := e.resolveHolder(st, p)
	if err != nil {
		return nil, err
	}
	return st.ClaimHistoryPage(holder, page, size)
}

// BurnHistoryCount returns the length of the global burn history.
func (e *Engine) BurnHistoryCount(st State) (uint32, error) {
	if st == nil {
		return 0, errNilState
	}
	return st.BurnRecordLen()
}

// BurnHistory returns one page of the global burn history.
func (e *Engine) BurnHistory(st State, page, size uint32) ([]*BurnRecord, error) {
	if st == nil {
		return nil, errNilState
	}
	return st.BurnRecordPage(page, size)
}

// PoolBalances returns every pool balance to the holder of the admin viewing
// key.
func (e *Engine) PoolBalances(st State, viewer ViewerCredential) ([]PoolBalance, error) {
	ledger, err := loadLedger(st)
	if err != nil {
		return nil, err
	}
	if err := checkViewer(st, viewer); err != nil {
		return nil, err
	}
	out := make([]PoolBalance, 0, len(ledger.Pools))
	for _, pool := range ledger.Pools {
		if pool == nil {
			return nil, fmt.Errorf("%w: nil pool in ledger", ErrInvalidPool)
		}
		out = append(out, PoolBalance{
			Pool:    pool.Name,
			Token:   pool.Token.Address,
			Balance: cloneBigInt(pool.Balance),
		})
	}
	return out, nil
}
