package burn

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"lukechampine.com/blake3"

	"burnledger/core/events"
)

// InstantiateParams configures a new ledger.
type InstantiateParams struct {
	Entropy          []byte
	ItemRegistry     ContractRef
	Pools            []*RewardPool
	TraitRestriction string
	Ranks            []*RankEntry
}

// Instantiate creates the ledger owned by owner. The returned instructions
// subscribe the ledger to registry notifications and register its contract
// key with the registry and every pool token.
func (e *Engine) Instantiate(st State, owner [20]byte, params InstantiateParams) ([]Instruction, error) {
	if st == nil {
		return nil, errNilState
	}
	if _, ok, err := st.BurnLedger(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	if len(params.Entropy) == 0 {
		return nil, fmt.Errorf("%w: entropy required", ErrMalformedRequest)
	}
	if params.ItemRegistry.Address == ([20]byte{}) {
		return nil, fmt.Errorf("%w: item registry address required", ErrMalformedRequest)
	}
	pools, err := normalizePools(params.Pools)
	if err != nil {
		return nil, err
	}
	ranks, err := normalizeRanks(params.Ranks)
	if err != nil {
		return nil, err
	}

	digest := blake3.Sum256(params.Entropy)
	ledger := &Ledger{
		Owner:            owner,
		Active:           true,
		ItemRegistry:     params.ItemRegistry,
		Pools:            pools,
		TraitRestriction: strings.TrimSpace(params.TraitRestriction),
		BonusClock:       e.now(),
		ContractKey:      base64.StdEncoding.EncodeToString(digest[:]),
	}
	if err := st.PutBurnLedger(ledger); err != nil {
		return nil, err
	}
	for _, rank := range ranks {
		if err := st.PutBurnRank(rank); err != nil {
			return nil, err
		}
	}

	instructions := []Instruction{
		registerReceiverInstruction(ledger.ItemRegistry),
		viewingKeyInstruction(ledger.ItemRegistry, ledger.ContractKey),
	}
	for _, pool := range ledger.Pools {
		instructions = append(instructions, viewingKeyInstruction(pool.Token, ledger.ContractKey))
	}
	return instructions, nil
}

// ReplacePools installs a new pool set. Every existing pool must be empty.
func (e *Engine) ReplacePools(st State, caller [20]byte, pools []*RewardPool) ([]Instruction, error) {
	ledger, err := loadLedger(st)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(ledger, caller); err != nil {
		return nil, err
	}
	for _, pool := range ledger.Pools {
		if pool.Balance != nil && pool.Balance.Sign() != 0 {
			return nil, fmt.Errorf("%w: pool %s holds %s", ErrPoolBusy, pool.Name, pool.Balance)
		}
	}
	next, err := normalizePools(pools)
	if err != nil {
		return nil, err
	}
	ledger.Pools = next
	if err := st.PutBurnLedger(ledger); err != nil {
		return nil, err
	}

	instructions := make([]Instruction, 0, len(next))
	names := make([]string, 0, len(next))
	for _, pool := range next {
		instructions = append(instructions, viewingKeyInstruction(pool.Token, ledger.ContractKey))
		names = append(names, pool.Name)
	}
	e.emit(events.BurnPoolsReplaced{Caller: caller, Pools: names})
	return instructions, nil
}

// WithdrawAll transfers every pool balance to to and zeroes the pools.
func (e *Engine) WithdrawAll(st State, caller, to [20]byte) ([]Instruction, error) {
	ledger, err := loadLedger(st)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(ledger, caller); err != nil {
		return nil, err
	}
	var instructions []Instruction
	var names []string
	for _, pool := range ledger.Pools {
		if pool.Balance == nil || pool.Balance.Sign() == 0 {
			pool.Balance = big.NewInt(0)
			continue
		}
		instructions = append(instructions, transferInstruction(pool, to, pool.Balance))
		names = append(names, pool.Name)
		pool.Balance = big.NewInt(0)
	}
	if err := st.PutBurnLedger(ledger); err != nil {
		return nil, err
	}
	e.emit(events.BurnPoolsWithdrawn{Caller: caller, Recipient: to, Pools: names})
	return instructions, nil
}

// UpsertRanks stores the entries, replacing any existing entry for the same
// item wholesale.
func (e *Engine) UpsertRanks(st State, caller [20]byte, entries []*RankEntry) error {
	ledger, err := loadLedger(st)
	if err != nil {
		return err
	}
	if err := requireOwner(ledger, caller); err != nil {
		return err
	}
	ranks, err := normalizeRanks(entries)
	if err != nil {
		return err
	}
	for _, rank := range ranks {
		if err := st.PutBurnRank(rank); err != nil {
			return err
		}
	}
	e.emit(events.BurnRanksUpdated{Caller: caller, Count: len(ranks)})
	return nil
}

// SetActive toggles whether batch claims are accepted.
func (e *Engine) SetActive(st State, caller [20]byte, active bool) error {
	ledger, err := loadLedger(st)
	if err != nil {
		return err
	}
	if err := requireOwner(ledger, caller); err != nil {
		return err
	}
	ledger.Active = active
	if err := st.PutBurnLedger(ledger); err != nil {
		return err
	}
	e.emit(events.BurnActiveChanged{Caller: caller, Active: active})
	return nil
}

// ResetBonusClock restarts the hourly bonus accrual at the current time.
func (e *Engine) ResetBonusClock(st State, caller [20]byte) error {
	ledger, err := loadLedger(st)
	if err != nil {
		return err
	}
	if err := requireOwner(ledger, caller); err != nil {
		return err
	}
	ledger.BonusClock = e.now()
	if err := st.PutBurnLedger(ledger); err != nil {
		return err
	}
	e.emit(events.BurnBonusClockReset{Caller: caller, BonusClock: ledger.BonusClock})
	return nil
}

// SetViewingKey registers the owner's admin viewing key. Rotation overwrites
// the previous key.
func (e *Engine) SetViewingKey(st State, caller [20]byte, key string) error {
	ledger, err := loadLedger(st)
	if err != nil {
		return err
	}
	if err := requireOwner(ledger, caller); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: empty viewing key", ErrMalformedRequest)
	}
	viewer := &Viewer{Address: caller, KeyDigest: viewingKeyDigest(key)}
	if err := st.PutBurnViewer(viewer); err != nil {
		return err
	}
	e.emit(events.BurnViewerRotated{Viewer: caller})
	return nil
}

// RevokePermit revokes the caller's own permit called name.
func (e *Engine) RevokePermit(st State, caller [20]byte, name string) error {
	if st == nil {
		return errNilState
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: permit name required", ErrMalformedRequest)
	}
	if err := st.RevokePermit(caller, name); err != nil {
		return err
	}
	e.emit(events.BurnPermitRevoked{Holder: caller, Name: name})
	return nil
}

// ReceiveDeposit credits amount to the pool whose token contract is caller.
func (e *Engine) ReceiveDeposit(st State, caller, from [20]byte, amount *big.Int, req *DepositRequest) error {
	ledger, err := loadLedger(st)
	if err != nil {
		return err
	}
	if req == nil {
		return fmt.Errorf("%w: missing deposit payload", ErrMalformedRequest)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", ErrMalformedRequest)
	}
	pool, ok := ledger.PoolByToken(caller)
	if !ok {
		return ErrUnknownToken
	}
	pool.Balance = new(big.Int).Add(cloneBigInt(pool.Balance), amount)
	if err := st.PutBurnLedger(ledger); err != nil {
		return err
	}
	e.emit(events.BurnPoolFunded{
		Pool:    pool.Name,
		Token:   caller,
		From:    from,
		Amount:  new(big.Int).Set(amount),
		Balance: cloneBigInt(pool.Balance),
	})
	return nil
}

func normalizePools(pools []*RewardPool) ([]*RewardPool, error) {
	out := make([]*RewardPool, 0, len(pools))
	names := make(map[string]struct{}, len(pools))
	tokens := make(map[[20]byte]struct{}, len(pools))
	for _, pool := range pools {
		if pool == nil {
			return nil, fmt.Errorf("%w: nil pool", ErrInvalidPool)
		}
		clone := pool.Clone()
		clone.Name = strings.TrimSpace(clone.Name)
		if clone.Name == "" {
			return nil, fmt.Errorf("%w: name required", ErrInvalidPool)
		}
		if _, dup := names[clone.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate pool %s", ErrInvalidPool, clone.Name)
		}
		if clone.Token.Address == ([20]byte{}) {
			return nil, fmt.Errorf("%w: pool %s token address required", ErrInvalidPool, clone.Name)
		}
		if _, dup := tokens[clone.Token.Address]; dup {
			return nil, fmt.Errorf("%w: pool %s shares a token with another pool", ErrInvalidPool, clone.Name)
		}
		if clone.BaseReward.Sign() < 0 || clone.BonusHourly.Sign() < 0 || clone.RankBonusStart.Sign() < 0 {
			return nil, fmt.Errorf("%w: pool %s has a negative amount", ErrInvalidPool, clone.Name)
		}
		if clone.BurnType != BurnTypeNormal && clone.BurnType != BurnTypeRank {
			return nil, fmt.Errorf("%w: pool %s burn type %s", ErrInvalidPool, clone.Name, clone.BurnType)
		}
		if clone.RankScheme != RankSchemeTable && clone.RankScheme != RankSchemeOffset {
			return nil, fmt.Errorf("%w: pool %s rank scheme %s", ErrInvalidPool, clone.Name, clone.RankScheme)
		}
		clone.Balance = big.NewInt(0)
		names[clone.Name] = struct{}{}
		tokens[clone.Token.Address] = struct{}{}
		out = append(out, clone)
	}
	return out, nil
}

func normalizeRanks(entries []*RankEntry) ([]*RankEntry, error) {
	out := make([]*RankEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			return nil, fmt.Errorf("%w: nil entry", ErrInvalidRank)
		}
		clone := entry.Clone()
		clone.ItemID = strings.TrimSpace(clone.ItemID)
		if clone.ItemID == "" {
			return nil, fmt.Errorf("%w: item id required", ErrInvalidRank)
		}
		for _, reward := range clone.Rewards {
			if reward.Amount.Sign() < 0 {
				return nil, fmt.Errorf("%w: item %s pool %s negative reward", ErrInvalidRank, clone.ItemID, reward.Pool)
			}
		}
		out = append(out, clone)
	}
	return out, nil
}
