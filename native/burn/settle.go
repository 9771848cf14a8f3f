package burn

import (
	"fmt"
	"math/big"
	"strings"

	"burnledger/core/events"
)

type poolTally struct {
	pool    *RewardPool
	baseSum *big.Int
	bonus   *big.Int
}

// Settle processes a batch claim relayed by the item registry. caller must be
// the registered registry address and submitter is the owner of the burned
// items. Every validation runs before the first write, so an error leaves st
// untouched.
func (e *Engine) Settle(st State, caller, submitter [20]byte, itemIDs []string, req *ClaimRequest) (*Settlement, error) {
	ledger, err := loadLedger(st)
	if err != nil {
		return nil, err
	}
	if !ledger.Active {
		return nil, ErrInactive
	}
	if caller != ledger.ItemRegistry.Address {
		return nil, ErrUntrustedCaller
	}
	if req == nil {
		return nil, fmt.Errorf("%w: missing claim payload", ErrMalformedRequest)
	}
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("%w: no items submitted", ErrMalformedRequest)
	}
	if err := checkItemIDs(itemIDs); err != nil {
		return nil, err
	}
	expectations, err := indexExpectations(ledger, req.Expectations)
	if err != nil {
		return nil, err
	}
	if e.registry == nil {
		return nil, errNilRegistry
	}

	now := e.now()
	clock := ledger.BonusClock
	tallies := make([]*poolTally, len(ledger.Pools))
	for i, pool := range ledger.Pools {
		tallies[i] = &poolTally{pool: pool, baseSum: big.NewInt(0), bonus: big.NewInt(0)}
	}

	history := make([]*HistoryEntry, 0, len(itemIDs))
	records := make([]*BurnRecord, 0, len(itemIDs))
	for i, itemID := range itemIDs {
		meta, err := e.registry.ItemMetadata(itemID)
		if err != nil {
			return nil, fmt.Errorf("item %s metadata: %w", itemID, err)
		}
		if meta == nil {
			meta = &Metadata{}
		}
		if ledger.TraitRestriction != "" && !meta.HasTrait(ledger.TraitRestriction) {
			return nil, fmt.Errorf("%w: item %s lacks trait %q", ErrIneligibleItem, itemID, ledger.TraitRestriction)
		}

		var rank *RankEntry
		if entry, ok, err := st.BurnRank(itemID); err != nil {
			return nil, err
		} else if ok {
			rank = entry
		}

		total := big.NewInt(0)
		breakdown := make([]PoolAmount, 0, len(tallies))
		for _, tally := range tallies {
			reward := Estimate(itemID, tally.pool, rank, now, clock)
			tally.baseSum.Add(tally.baseSum, reward.Base)
			tally.baseSum.Add(tally.baseSum, reward.Rank)
			if i == 0 {
				tally.bonus.Set(reward.Bonus)
			}
			// The first entry carries the batch's time bonus. Later entries
			// record the running base sum alone.
			amount := new(big.Int).Set(tally.baseSum)
			if i == 0 {
				amount.Add(amount, tally.bonus)
			}
			total.Add(total, amount)
			breakdown = append(breakdown, PoolAmount{Pool: tally.pool.Name, Amount: amount})
		}

		history = append(history, &HistoryEntry{
			ItemID:      itemID,
			Date:        now,
			Rewards:     total,
			PoolRewards: breakdown,
			Memo:        req.Memo,
		})
		records = append(records, &BurnRecord{
			ItemID:    itemID,
			Date:      now,
			Submitter: submitter,
			Memo:      req.Memo,
			Metadata:  *meta,
		})
		ledger.TotalBurned++
	}

	payouts := make([]Payout, 0, len(tallies))
	resetClock := false
	for _, tally := range tallies {
		if exp, ok := expectations[tally.pool.Name]; ok {
			if tally.baseSum.Cmp(exp.Base) < 0 || tally.bonus.Cmp(exp.Bonus) < 0 {
				return nil, fmt.Errorf("%w: pool %s pays base %s bonus %s, expected at least %s and %s",
					ErrExpectationNotMet, tally.pool.Name, tally.baseSum, tally.bonus, exp.Base, exp.Bonus)
			}
		}
		payout := new(big.Int).Add(tally.baseSum, tally.bonus)
		balance := tally.pool.Balance
		if balance == nil {
			balance = big.NewInt(0)
		}
		// Every pool must keep a residual, even one paying nothing.
		if payout.Cmp(balance) >= 0 {
			return nil, fmt.Errorf("%w: pool %s holds %s, payout %s", ErrPoolExhausted, tally.pool.Name, balance, payout)
		}
		if payout.Sign() == 0 {
			continue
		}
		tally.pool.Balance = new(big.Int).Sub(balance, payout)
		if tally.bonus.Sign() > 0 {
			resetClock = true
		}
		payouts = append(payouts, Payout{
			Pool:   tally.pool.Name,
			Base:   new(big.Int).Set(tally.baseSum),
			Bonus:  new(big.Int).Set(tally.bonus),
			Amount: payout,
		})
	}
	if resetClock {
		ledger.BonusClock = now
	}

	if err := st.PutBurnLedger(ledger); err != nil {
		return nil, err
	}
	for _, entry := range history {
		if err := st.AppendClaimHistory(submitter, entry); err != nil {
			return nil, err
		}
	}
	for _, record := range records {
		if err := st.AppendBurnRecord(record); err != nil {
			return nil, err
		}
	}

	settlement := &Settlement{
		Submitter:       submitter,
		Items:           append([]string(nil), itemIDs...),
		Payouts:         payouts,
		BonusClockReset: resetClock,
		TotalBurned:     ledger.TotalBurned,
	}
	for _, payout := range payouts {
		pool, _ := ledger.Pool(payout.Pool)
		settlement.Instructions = append(settlement.Instructions, transferInstruction(pool, submitter, payout.Amount))
		e.emit(events.BurnPoolPaid{
			Pool:      pool.Name,
			Token:     pool.Token.Address,
			Recipient: submitter,
			Base:      payout.Base,
			Bonus:     payout.Bonus,
			Remaining: cloneBigInt(pool.Balance),
		})
	}
	settlement.Instructions = append(settlement.Instructions, destroyInstruction(ledger.ItemRegistry, itemIDs))
	e.emit(events.BurnSettled{
		Submitter:   submitter,
		Items:       len(itemIDs),
		TotalBurned: ledger.TotalBurned,
		BonusClock:  ledger.BonusClock,
		Memo:        req.Memo,
	})
	return settlement, nil
}

func checkItemIDs(itemIDs []string) error {
	seen := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: empty item id", ErrMalformedRequest)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate item %s", ErrMalformedRequest, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func indexExpectations(ledger *Ledger, list []Expectation) (map[string]Expectation, error) {
	out := make(map[string]Expectation, len(list))
	for _, exp := range list {
		if _, ok := ledger.Pool(exp.Pool); !ok {
			return nil, fmt.Errorf("%w: expectation for unknown pool %q", ErrMalformedRequest, exp.Pool)
		}
		if _, dup := out[exp.Pool]; dup {
			return nil, fmt.Errorf("%w: duplicate expectation for pool %q", ErrMalformedRequest, exp.Pool)
		}
		if (exp.Base != nil && exp.Base.Sign() < 0) || (exp.Bonus != nil && exp.Bonus.Sign() < 0) {
			return nil, fmt.Errorf("%w: negative expectation for pool %q", ErrMalformedRequest, exp.Pool)
		}
		out[exp.Pool] = Expectation{Pool: exp.Pool, Base: cloneBigInt(exp.Base), Bonus: cloneBigInt(exp.Bonus)}
	}
	return out, nil
}
