package burn

import (
	"errors"
	"math/big"
	"testing"

	"burnledger/core/events"
	"burnledger/crypto"
	"burnledger/native/permit"
)

const (
	testStart = int64(1_700_000_000)
	testChain = "burnledger-test"
)

func addr(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

var (
	ownerAddr    = addr(0x01)
	registryAddr = addr(0x02)
	tokenA       = addr(0x0a)
	tokenB       = addr(0x0b)
	userAddr     = addr(0x33)
	ledgerAddr   = addr(0x77)
)

type harness struct {
	engine   *Engine
	state    *mockState
	registry *mockRegistry
	emitter  *captureEmitter
	now      int64
}

func newHarness(t *testing.T, pools ...*RewardPool) *harness {
	t.Helper()
	h := &harness{
		engine:   NewEngine(),
		state:    newMockState(),
		registry: &mockRegistry{items: make(map[string]*Metadata)},
		emitter:  &captureEmitter{},
		now:      testStart,
	}
	h.engine.SetAddress(ledgerAddr)
	h.engine.SetRegistry(h.registry)
	h.engine.SetVerifier(permit.NewVerifier(testChain))
	h.engine.SetEmitter(h.emitter)
	h.engine.SetNowFunc(func() int64 { return h.now })

	_, err := h.engine.Instantiate(h.state, ownerAddr, InstantiateParams{
		Entropy:      []byte("entropy"),
		ItemRegistry: ContractRef{Address: registryAddr, Name: "items"},
		Pools:        pools,
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return h
}

func (h *harness) fund(t *testing.T, token [20]byte, v int64) {
	t.Helper()
	if err := h.engine.ReceiveDeposit(h.state, token, ownerAddr, amount(v), &DepositRequest{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (h *harness) advance(hours int64) { h.now += hours * SecondsPerHour }

func (h *harness) ledger(t *testing.T) *Ledger {
	t.Helper()
	ledger, ok, err := h.state.BurnLedger()
	if err != nil || !ok {
		t.Fatalf("ledger missing: ok=%v err=%v", ok, err)
	}
	return ledger
}

func poolA() *RewardPool {
	return &RewardPool{
		Name:        "sscrt",
		Token:       ContractRef{Address: tokenA, Name: "sscrt"},
		BaseReward:  amount(50000000),
		BonusHourly: amount(25000000),
	}
}

func poolB() *RewardPool {
	return &RewardPool{
		Name:       "gems",
		Token:      ContractRef{Address: tokenB, Name: "gems"},
		BaseReward: amount(10),
		BurnType:   BurnTypeRank,
		RankScheme: RankSchemeTable,
	}
}

func TestInstantiate(t *testing.T) {
	h := newHarness(t, poolA())
	ledger := h.ledger(t)
	if ledger.Owner != ownerAddr || !ledger.Active {
		t.Fatalf("unexpected ledger %+v", ledger)
	}
	if ledger.BonusClock != uint64(testStart) {
		t.Fatalf("bonus clock = %d", ledger.BonusClock)
	}
	if ledger.ContractKey == "" {
		t.Fatalf("contract key not derived")
	}
	if ledger.Pools[0].Balance.Sign() != 0 {
		t.Fatalf("new pool must start empty")
	}

	_, err := h.engine.Instantiate(h.state, ownerAddr, InstantiateParams{
		Entropy:      []byte("x"),
		ItemRegistry: ContractRef{Address: registryAddr},
	})
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestInstantiateInstructions(t *testing.T) {
	engine := NewEngine()
	st := newMockState()
	instructions, err := engine.Instantiate(st, ownerAddr, InstantiateParams{
		Entropy:      []byte("seed"),
		ItemRegistry: ContractRef{Address: registryAddr},
		Pools:        []*RewardPool{poolA(), poolB()},
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if len(instructions) != 4 {
		t.Fatalf("expected 4 instructions, got %d", len(instructions))
	}
	if instructions[0].Kind != InstructionRegisterReceiver || instructions[0].Contract.Address != registryAddr {
		t.Fatalf("first instruction must register the receiver: %+v", instructions[0])
	}
	for _, inst := range instructions[1:] {
		if inst.Kind != InstructionSetViewingKey || inst.Key != st.ledger.ContractKey {
			t.Fatalf("unexpected instruction %+v", inst)
		}
	}
}

func TestSettleSingleItemDailyBonus(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 1000000000)
	h.advance(24)

	settlement, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"item-1"}, &ClaimRequest{Memo: "bye"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(settlement.Payouts) != 1 || settlement.Payouts[0].Amount.Cmp(amount(650000000)) != 0 {
		t.Fatalf("unexpected payouts %+v", settlement.Payouts)
	}
	if !settlement.BonusClockReset {
		t.Fatalf("paying a time bonus must reset the clock")
	}
	ledger := h.ledger(t)
	if ledger.Pools[0].Balance.Cmp(amount(350000000)) != 0 {
		t.Fatalf("balance = %s, want 350000000", ledger.Pools[0].Balance)
	}
	if ledger.BonusClock != uint64(h.now) || ledger.TotalBurned != 1 {
		t.Fatalf("clock %d burned %d", ledger.BonusClock, ledger.TotalBurned)
	}
	history := h.state.claims[userAddr]
	if len(history) != 1 || history[0].Rewards.Cmp(amount(650000000)) != 0 || history[0].Memo != "bye" {
		t.Fatalf("unexpected history %+v", history)
	}

	if len(settlement.Instructions) != 2 {
		t.Fatalf("expected transfer and destroy, got %+v", settlement.Instructions)
	}
	transfer := settlement.Instructions[0]
	if transfer.Kind != InstructionTransfer || transfer.Recipient != userAddr || transfer.Contract.Address != tokenA {
		t.Fatalf("unexpected transfer %+v", transfer)
	}
	destroy := settlement.Instructions[1]
	if destroy.Kind != InstructionDestroy || len(destroy.ItemIDs) != 1 || destroy.ItemIDs[0] != "item-1" {
		t.Fatalf("unexpected destroy %+v", destroy)
	}
}

func TestSettleBonusAttributedToFirstItemOnly(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 10000000000)
	h.advance(24)

	items := []string{"a", "b", "c"}
	settlement, err := h.engine.Settle(h.state, registryAddr, userAddr, items, &ClaimRequest{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	// 3 * base + one day of bonus.
	if got := settlement.Payouts[0].Amount; got.Cmp(amount(750000000)) != 0 {
		t.Fatalf("payout = %s, want 750000000", got)
	}
	history := h.state.claims[userAddr]
	want := []int64{650000000, 100000000, 150000000}
	for i, entry := range history {
		if entry.Rewards.Cmp(amount(want[i])) != 0 {
			t.Fatalf("entry %d rewards = %s, want %d", i, entry.Rewards, want[i])
		}
	}
	if len(h.state.records) != 3 || h.state.records[2].ItemID != "c" || h.state.records[0].Submitter != userAddr {
		t.Fatalf("unexpected burn records %+v", h.state.records)
	}
}

func TestSettleStrictDrain(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 650000000)
	h.advance(24)
	before := h.state.writes

	_, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"item-1"}, &ClaimRequest{})
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if h.state.writes != before {
		t.Fatalf("rejected settlement wrote state")
	}

	h.fund(t, tokenA, 1)
	if _, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"item-1"}, &ClaimRequest{}); err != nil {
		t.Fatalf("settle with residual: %v", err)
	}
	if got := h.ledger(t).Pools[0].Balance; got.Cmp(amount(1)) != 0 {
		t.Fatalf("residual = %s, want 1", got)
	}
}

func TestSettleExpectationRejectionIsAtomic(t *testing.T) {
	h := newHarness(t, poolA(), poolB())
	h.fund(t, tokenA, 1000000000)
	h.fund(t, tokenB, 1000)
	h.advance(2)
	before := h.ledger(t)
	writes := h.state.writes
	emitted := len(h.emitter.events)

	req := &ClaimRequest{Expectations: []Expectation{
		{Pool: "sscrt", Base: amount(100000000)},
		{Pool: "gems", Base: amount(21)},
	}}
	_, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"x", "y"}, req)
	if !errors.Is(err, ErrExpectationNotMet) {
		t.Fatalf("expected ErrExpectationNotMet, got %v", err)
	}
	after := h.ledger(t)
	for i := range before.Pools {
		if before.Pools[i].Balance.Cmp(after.Pools[i].Balance) != 0 {
			t.Fatalf("pool %s balance changed", before.Pools[i].Name)
		}
	}
	if after.TotalBurned != before.TotalBurned || after.BonusClock != before.BonusClock {
		t.Fatalf("ledger counters changed")
	}
	if h.state.writes != writes || len(h.state.claims[userAddr]) != 0 || len(h.state.records) != 0 {
		t.Fatalf("rejected settlement left history behind")
	}
	if len(h.emitter.events) != emitted {
		t.Fatalf("rejected settlement emitted events")
	}
}

func TestSettleExpectationIsFloor(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 1000000000)
	h.advance(3)
	req := &ClaimRequest{Expectations: []Expectation{{Pool: "sscrt", Base: amount(40000000), Bonus: amount(75000000)}}}
	if _, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"x"}, req); err != nil {
		t.Fatalf("settle: %v", err)
	}

	req = &ClaimRequest{Expectations: []Expectation{{Pool: "sscrt", Bonus: amount(1)}}}
	if _, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"y"}, req); !errors.Is(err, ErrExpectationNotMet) {
		t.Fatalf("bonus floor after reset must fail, got %v", err)
	}
}

func TestSettleRankPoolUsesTable(t *testing.T) {
	h := newHarness(t, poolB())
	h.fund(t, tokenB, 1000)
	err := h.engine.UpsertRanks(h.state, ownerAddr, []*RankEntry{
		{ItemID: "rare", Rank: 1, Rewards: []RankReward{{Pool: "gems", Amount: amount(90)}}},
	})
	if err != nil {
		t.Fatalf("upsert ranks: %v", err)
	}
	settlement, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"rare", "plain"}, &ClaimRequest{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := settlement.Payouts[0].Amount; got.Cmp(amount(110)) != 0 {
		t.Fatalf("payout = %s, want 110", got)
	}
	if settlement.BonusClockReset {
		t.Fatalf("clock reset without a time bonus")
	}
}

func TestSettleRejectsZeroPayoutFromEmptyPool(t *testing.T) {
	idle := &RewardPool{Name: "bonus", Token: ContractRef{Address: tokenB}, BonusHourly: amount(25)}
	h := newHarness(t, poolA(), idle)
	h.fund(t, tokenA, 1000000000)
	before := h.state.writes

	_, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"x"}, &ClaimRequest{})
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if h.state.writes != before {
		t.Fatalf("rejected settlement wrote state")
	}
	if h.ledger(t).TotalBurned != 0 {
		t.Fatalf("total burned advanced on rejection")
	}
}

func TestSettleOmitsTransferForZeroPayout(t *testing.T) {
	idle := &RewardPool{Name: "idle", Token: ContractRef{Address: tokenB}}
	h := newHarness(t, poolA(), idle)
	h.fund(t, tokenA, 1000000000)
	h.fund(t, tokenB, 1)

	settlement, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"x"}, &ClaimRequest{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(settlement.Payouts) != 1 || settlement.Payouts[0].Pool != "sscrt" {
		t.Fatalf("unexpected payouts %+v", settlement.Payouts)
	}
	for _, in := range settlement.Instructions {
		if in.Kind == InstructionTransfer && in.Contract.Address == tokenB {
			t.Fatalf("transfer emitted for zero payout")
		}
	}
	if got := h.ledger(t).Pools[1].Balance; got.Cmp(amount(1)) != 0 {
		t.Fatalf("idle balance = %s, want 1", got)
	}
}

func TestSettleWithoutPoolsStillBurns(t *testing.T) {
	h := newHarness(t)
	settlement, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"x", "y"}, &ClaimRequest{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(settlement.Instructions) != 1 || settlement.Instructions[0].Kind != InstructionDestroy {
		t.Fatalf("expected a single destroy, got %+v", settlement.Instructions)
	}
	if h.ledger(t).TotalBurned != 2 || len(h.state.claims[userAddr]) != 2 {
		t.Fatalf("history not recorded")
	}
}

func TestSettlePreconditions(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 1000000000)

	cases := []struct {
		name   string
		caller [20]byte
		items  []string
		req    *ClaimRequest
		want   error
	}{
		{"untrusted caller", userAddr, []string{"x"}, &ClaimRequest{}, ErrUntrustedCaller},
		{"missing payload", registryAddr, []string{"x"}, nil, ErrMalformedRequest},
		{"no items", registryAddr, nil, &ClaimRequest{}, ErrMalformedRequest},
		{"duplicate items", registryAddr, []string{"x", "x"}, &ClaimRequest{}, ErrMalformedRequest},
		{"unknown pool", registryAddr, []string{"x"}, &ClaimRequest{Expectations: []Expectation{{Pool: "nope"}}}, ErrMalformedRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := h.state.writes
			_, err := h.engine.Settle(h.state, tc.caller, userAddr, tc.items, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if h.state.writes != before {
				t.Fatalf("rejected settlement wrote state")
			}
		})
	}

	if err := h.engine.SetActive(h.state, ownerAddr, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"x"}, &ClaimRequest{}); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestSettleTraitRestriction(t *testing.T) {
	engine := NewEngine()
	st := newMockState()
	registry := &mockRegistry{items: map[string]*Metadata{
		"ok":  {Name: "ok", Attributes: []Trait{{TraitType: "Burnable", Value: "yes"}}},
		"bad": {Name: "bad"},
	}}
	engine.SetRegistry(registry)
	if _, err := engine.Instantiate(st, ownerAddr, InstantiateParams{
		Entropy:          []byte("e"),
		ItemRegistry:     ContractRef{Address: registryAddr},
		TraitRestriction: "Burnable",
	}); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	writes := st.writes
	if _, err := engine.Settle(st, registryAddr, userAddr, []string{"ok", "bad"}, &ClaimRequest{}); !errors.Is(err, ErrIneligibleItem) {
		t.Fatalf("expected ErrIneligibleItem, got %v", err)
	}
	if st.writes != writes {
		t.Fatalf("ineligible batch wrote state")
	}
	if _, err := engine.Settle(st, registryAddr, userAddr, []string{"ok"}, &ClaimRequest{}); err != nil {
		t.Fatalf("settle eligible item: %v", err)
	}
	if st.records[0].Metadata.Attributes[0].TraitType != "Burnable" {
		t.Fatalf("metadata snapshot missing")
	}

	registry.err = errRegistryDown
	if _, err := engine.Settle(st, registryAddr, userAddr, []string{"ok2"}, &ClaimRequest{}); !errors.Is(err, errRegistryDown) {
		t.Fatalf("expected registry error, got %v", err)
	}
}

func TestReplacePoolsRequiresEmptyPools(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 500)

	if _, err := h.engine.ReplacePools(h.state, ownerAddr, []*RewardPool{poolB()}); !errors.Is(err, ErrPoolBusy) {
		t.Fatalf("expected ErrPoolBusy, got %v", err)
	}
	if _, err := h.engine.WithdrawAll(h.state, userAddr, userAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	instructions, err := h.engine.WithdrawAll(h.state, ownerAddr, ownerAddr)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if len(instructions) != 1 || instructions[0].Amount.Cmp(amount(500)) != 0 || instructions[0].Recipient != ownerAddr {
		t.Fatalf("unexpected withdraw instructions %+v", instructions)
	}

	instructions, err = h.engine.ReplacePools(h.state, ownerAddr, []*RewardPool{poolB()})
	if err != nil {
		t.Fatalf("replace after withdraw: %v", err)
	}
	if len(instructions) != 1 || instructions[0].Kind != InstructionSetViewingKey || instructions[0].Contract.Address != tokenB {
		t.Fatalf("unexpected replace instructions %+v", instructions)
	}
	ledger := h.ledger(t)
	if len(ledger.Pools) != 1 || ledger.Pools[0].Name != "gems" {
		t.Fatalf("pools not replaced: %+v", ledger.Pools)
	}
}

func TestReplacePoolsValidates(t *testing.T) {
	h := newHarness(t)
	dup := []*RewardPool{poolA(), poolA()}
	if _, err := h.engine.ReplacePools(h.state, ownerAddr, dup); !errors.Is(err, ErrInvalidPool) {
		t.Fatalf("expected ErrInvalidPool for duplicates, got %v", err)
	}
	negative := poolA()
	negative.BaseReward = amount(-1)
	if _, err := h.engine.ReplacePools(h.state, ownerAddr, []*RewardPool{negative}); !errors.Is(err, ErrInvalidPool) {
		t.Fatalf("expected ErrInvalidPool for negative reward, got %v", err)
	}
	if _, err := h.engine.ReplacePools(h.state, userAddr, []*RewardPool{poolA()}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestReceiveDeposit(t *testing.T) {
	h := newHarness(t, poolA())
	if err := h.engine.ReceiveDeposit(h.state, userAddr, userAddr, amount(5), &DepositRequest{}); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if err := h.engine.ReceiveDeposit(h.state, tokenA, userAddr, amount(5), nil); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest, got %v", err)
	}
	h.fund(t, tokenA, 5)
	h.fund(t, tokenA, 7)
	if got := h.ledger(t).Pools[0].Balance; got.Cmp(amount(12)) != 0 {
		t.Fatalf("balance = %s, want 12", got)
	}
	last := h.emitter.events[len(h.emitter.events)-1]
	if last.EventType() != events.TypeBurnPoolFunded || last.Event().Attributes["balance"] != "12" {
		t.Fatalf("unexpected event %+v", last.Event())
	}
}

func TestOwnerOnlyCommands(t *testing.T) {
	h := newHarness(t, poolA())
	if err := h.engine.SetActive(h.state, userAddr, false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("set active: %v", err)
	}
	if err := h.engine.ResetBonusClock(h.state, userAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("reset clock: %v", err)
	}
	if err := h.engine.UpsertRanks(h.state, userAddr, []*RankEntry{{ItemID: "x"}}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("upsert ranks: %v", err)
	}
	if err := h.engine.SetViewingKey(h.state, userAddr, "k"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("set viewing key: %v", err)
	}

	h.advance(5)
	if err := h.engine.ResetBonusClock(h.state, ownerAddr); err != nil {
		t.Fatalf("reset clock: %v", err)
	}
	if got := h.ledger(t).BonusClock; got != uint64(h.now) {
		t.Fatalf("bonus clock = %d, want %d", got, h.now)
	}
}

func TestUpsertRanksReplacesWholesale(t *testing.T) {
	h := newHarness(t, poolB())
	first := &RankEntry{ItemID: "x", Rank: 4, Rewards: []RankReward{{Pool: "gems", Amount: amount(3)}, {Pool: "other", Amount: amount(1)}}}
	second := &RankEntry{ItemID: "x", Rank: 9}
	if err := h.engine.UpsertRanks(h.state, ownerAddr, []*RankEntry{first}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := h.engine.UpsertRanks(h.state, ownerAddr, []*RankEntry{second}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	entry, ok, err := h.engine.Rank(h.state, "x")
	if err != nil || !ok {
		t.Fatalf("rank lookup: ok=%v err=%v", ok, err)
	}
	if entry.Rank != 9 || len(entry.Rewards) != 0 {
		t.Fatalf("entry merged instead of replaced: %+v", entry)
	}
	if err := h.engine.UpsertRanks(h.state, ownerAddr, []*RankEntry{{ItemID: " "}}); !errors.Is(err, ErrInvalidRank) {
		t.Fatalf("expected ErrInvalidRank, got %v", err)
	}
}

func TestPoolBalancesRequireViewingKey(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 42)

	if _, err := h.engine.PoolBalances(h.state, ViewerCredential{Address: ownerAddr, Key: "k"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before key is set, got %v", err)
	}
	if err := h.engine.SetViewingKey(h.state, ownerAddr, "secret"); err != nil {
		t.Fatalf("set viewing key: %v", err)
	}
	if _, err := h.engine.PoolBalances(h.state, ViewerCredential{Address: ownerAddr, Key: "wrong"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong key, got %v", err)
	}
	if _, err := h.engine.PoolBalances(h.state, ViewerCredential{Address: userAddr, Key: "secret"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong address, got %v", err)
	}
	balances, err := h.engine.PoolBalances(h.state, ViewerCredential{Address: ownerAddr, Key: "secret"})
	if err != nil {
		t.Fatalf("pool balances: %v", err)
	}
	if len(balances) != 1 || balances[0].Balance.Cmp(amount(42)) != 0 {
		t.Fatalf("unexpected balances %+v", balances)
	}

	if err := h.engine.SetViewingKey(h.state, ownerAddr, "rotated"); err != nil {
		t.Fatalf("rotate viewing key: %v", err)
	}
	if _, err := h.engine.PoolBalances(h.state, ViewerCredential{Address: ownerAddr, Key: "secret"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old key must stop working after rotation, got %v", err)
	}
}

func signPermit(t *testing.T, key *crypto.PrivateKey, name string, perms ...permit.Permission) *permit.Permit {
	t.Helper()
	p, err := permit.Sign(permit.Params{
		Name:             name,
		AllowedAddresses: []string{crypto.FormatAddress(ledgerAddr)},
		ChainID:          testChain,
		Permissions:      perms,
	}, key)
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}
	return p
}

func TestClaimHistoryThroughPermit(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 10000000000)

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	holder := key.PubKey().Address().Array()
	for _, batch := range [][]string{{"a", "b"}, {"c"}, {"d", "e"}} {
		if _, err := h.engine.Settle(h.state, registryAddr, holder, batch, &ClaimRequest{}); err != nil {
			t.Fatalf("settle: %v", err)
		}
	}

	p := signPermit(t, key, "mine", permit.PermissionOwner)
	count, err := h.engine.ClaimHistoryCount(h.state, p)
	if err != nil || count != 5 {
		t.Fatalf("count = %d err = %v", count, err)
	}
	page, err := h.engine.ClaimHistory(h.state, p, 1, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page) != 2 || page[0].ItemID != "c" || page[1].ItemID != "d" {
		t.Fatalf("unexpected page %+v", page)
	}
	if page, _ := h.engine.ClaimHistory(h.state, p, 9, 2); len(page) != 0 {
		t.Fatalf("out of range page returned %d entries", len(page))
	}

	noOwner := signPermit(t, key, "narrow", permit.Permission("balance"))
	if _, err := h.engine.ClaimHistoryCount(h.state, noOwner); !errors.Is(err, ErrUnauthorized) || !errors.Is(err, permit.ErrMissingPermission) {
		t.Fatalf("expected missing permission, got %v", err)
	}

	if err := h.engine.RevokePermit(h.state, holder, "mine"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := h.engine.ClaimHistory(h.state, p, 0, 10); !errors.Is(err, permit.ErrPermitRevoked) {
		t.Fatalf("expected revoked permit, got %v", err)
	}
}

func TestBurnHistoryPagination(t *testing.T) {
	h := newHarness(t)
	items := []string{"a", "b", "c", "d", "e"}
	if _, err := h.engine.Settle(h.state, registryAddr, userAddr, items, &ClaimRequest{Memo: "m"}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	count, err := h.engine.BurnHistoryCount(h.state)
	if err != nil || count != uint32(len(items)) {
		t.Fatalf("count = %d err = %v", count, err)
	}
	page, err := h.engine.BurnHistory(h.state, 2, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page) != 1 || page[0].ItemID != "e" {
		t.Fatalf("unexpected last page %+v", page)
	}
	if page, _ := h.engine.BurnHistory(h.state, 0, 0); len(page) != 0 {
		t.Fatalf("zero page size must be empty")
	}
}

func TestExpectedRewardsMatchesSettlement(t *testing.T) {
	h := newHarness(t, poolA(), poolB())
	h.fund(t, tokenA, 10000000000)
	h.fund(t, tokenB, 10000)
	h.advance(6)
	rewards, err := h.engine.ExpectedRewards(h.state, []string{"x"})
	if err != nil {
		t.Fatalf("expected rewards: %v", err)
	}
	if len(rewards) != 1 || len(rewards[0]) != 2 {
		t.Fatalf("unexpected shape %+v", rewards)
	}
	settlement, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"x"}, &ClaimRequest{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	for i, reward := range rewards[0] {
		if reward.Total.Cmp(settlement.Payouts[i].Amount) != 0 {
			t.Fatalf("pool %s estimate %s, paid %s", reward.Pool, reward.Total, settlement.Payouts[i].Amount)
		}
	}
}

func TestSettleEmitsEvents(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 10000000000)
	h.emitter.events = nil
	if _, err := h.engine.Settle(h.state, registryAddr, userAddr, []string{"x"}, &ClaimRequest{}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	got := h.emitter.types()
	if len(got) != 2 || got[0] != events.TypeBurnPoolPaid || got[1] != events.TypeBurnSettled {
		t.Fatalf("unexpected events %v", got)
	}
	paid := h.emitter.events[0].Event()
	if paid.Attributes["amount"] != big.NewInt(50000000).String() {
		t.Fatalf("unexpected paid event %+v", paid)
	}
}

func TestInfoWithholdsBalances(t *testing.T) {
	h := newHarness(t, poolA())
	h.fund(t, tokenA, 99)
	info, err := h.engine.Info(h.state)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if len(info.Pools) != 1 || info.Pools[0].Balance != nil {
		t.Fatalf("info must not expose balances: %+v", info.Pools)
	}
	if got := h.ledger(t).Pools[0].Balance; got.Cmp(amount(99)) != 0 {
		t.Fatalf("stored balance = %s", got)
	}
}
