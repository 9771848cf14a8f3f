package events

import (
	"math/big"
	"strconv"

	"burnledger/core/types"
)

const (
	TypeBurnSettled         = "burn.settled"
	TypeBurnPoolPaid        = "burn.pool.paid"
	TypeBurnPoolFunded      = "burn.pool.funded"
	TypeBurnPoolsReplaced   = "burn.pools.replaced"
	TypeBurnPoolsWithdrawn  = "burn.pools.withdrawn"
	TypeBurnRanksUpdated    = "burn.ranks.updated"
	TypeBurnActiveChanged   = "burn.active.changed"
	TypeBurnBonusClockReset = "burn.bonus_clock.reset"
	TypeBurnViewerRotated   = "burn.viewer.rotated"
	TypeBurnPermitRevoked   = "burn.permit.revoked"
)

// BurnSettled is emitted once per committed batch claim.
type BurnSettled struct {
	Submitter   [20]byte
	Items       int
	TotalBurned uint64
	BonusClock  uint64
	Memo        string
}

func (BurnSettled) EventType() string { return TypeBurnSettled }

func (e BurnSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeBurnSettled,
		Attributes: map[string]string{
			"submitter":   formatAddress(e.Submitter),
			"items":       strconv.Itoa(e.Items),
			"totalBurned": uintToString(e.TotalBurned),
			"bonusClock":  uintToString(e.BonusClock),
			"memo":        e.Memo,
		},
	}
}

// BurnPoolPaid records a single pool payout inside a settlement.
type BurnPoolPaid struct {
	Pool      string
	Token     [20]byte
	Recipient [20]byte
	Base      *big.Int
	Bonus     *big.Int
	Remaining *big.Int
}

func (BurnPoolPaid) EventType() string { return TypeBurnPoolPaid }

func (e BurnPoolPaid) Event() *types.Event {
	payout := new(big.Int)
	if e.Base != nil {
		payout.Add(payout, e.Base)
	}
	if e.Bonus != nil {
		payout.Add(payout, e.Bonus)
	}
	return &types.Event{
		Type: TypeBurnPoolPaid,
		Attributes: map[string]string{
			"pool":      e.Pool,
			"token":     formatAddress(e.Token),
			"recipient": formatAddress(e.Recipient),
			"base":      formatAmount(e.Base),
			"bonus":     formatAmount(e.Bonus),
			"amount":    payout.String(),
			"remaining": formatAmount(e.Remaining),
		},
	}
}

// BurnPoolFunded is emitted when a token source deposit credits a pool.
type BurnPoolFunded struct {
	Pool    string
	Token   [20]byte
	From    [20]byte
	Amount  *big.Int
	Balance *big.Int
}

func (BurnPoolFunded) EventType() string { return TypeBurnPoolFunded }

func (e BurnPoolFunded) Event() *types.Event {
	return &types.Event{
		Type: TypeBurnPoolFunded,
		Attributes: map[string]string{
			"pool":    e.Pool,
			"token":   formatAddress(e.Token),
			"from":    formatAddress(e.From),
			"amount":  formatAmount(e.Amount),
			"balance": formatAmount(e.Balance),
		},
	}
}

// BurnPoolsReplaced is emitted when the owner installs a new pool set.
type BurnPoolsReplaced struct {
	Caller [20]byte
	Pools  []string
}

func (BurnPoolsReplaced) EventType() string { return TypeBurnPoolsReplaced }

func (e BurnPoolsReplaced) Event() *types.Event {
	return &types.Event{
		Type: TypeBurnPoolsReplaced,
		Attributes: map[string]string{
			"caller": formatAddress(e.Caller),
			"pools":  joinNames(e.Pools),
		},
	}
}

// BurnPoolsWithdrawn is emitted when every pool balance is swept.
type BurnPoolsWithdrawn struct {
	Caller    [20]byte
	Recipient [20]byte
	Pools     []string
}

func (BurnPoolsWithdrawn) EventType() string { return TypeBurnPoolsWithdrawn }

func (e BurnPoolsWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeBurnPoolsWithdrawn,
		Attributes: map[string]string{
			"caller":    formatAddress(e.Caller),
			"recipient": formatAddress(e.Recipient),
			"pools":     joinNames(e.Pools),
		},
	}
}

type BurnRanksUpdated struct {
	Caller [20]byte
	Count  int
}

func (BurnRanksUpdated) EventType() string { return TypeBurnRanksUpdated }

func (e BurnRanksUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBurnRanksUpdated,
		Attributes: map[string]string{
			"caller": formatAddress(e.Caller),
			"count":  strconv.Itoa(e.Count),
		},
	}
}

type BurnActiveChanged struct {
	Caller [20]byte
	Active bool
}

func (BurnActiveChanged) EventType() string { return TypeBurnActiveChanged }

func (e BurnActiveChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeBurnActiveChanged,
		Attributes: map[string]string{
			"caller": formatAddress(e.Caller),
			"active": strconv.FormatBool(e.Active),
		},
	}
}

type BurnBonusClockReset struct {
	Caller     [20]byte
	BonusClock uint64
}

func (BurnBonusClockReset) EventType() string { return TypeBurnBonusClockReset }

func (e BurnBonusClockReset) Event() *types.Event {
	return &types.Event{
		Type: TypeBurnBonusClockReset,
		Attributes: map[string]string{
			"caller":     formatAddress(e.Caller),
			"bonusClock": uintToString(e.BonusClock),
		},
	}
}

// BurnViewerRotated never carries key material.
type BurnViewerRotated struct {
	Viewer [20]byte
}

func (BurnViewerRotated) EventType() string { return TypeBurnViewerRotated }

func (e BurnViewerRotated) Event() *types.Event {
	return &types.Event{
		Type:       TypeBurnViewerRotated,
		Attributes: map[string]string{"viewer": formatAddress(e.Viewer)},
	}
}

type BurnPermitRevoked struct {
	Holder [20]byte
	Name   string
}

func (BurnPermitRevoked) EventType() string { return TypeBurnPermitRevoked }

func (e BurnPermitRevoked) Event() *types.Event {
	return &types.Event{
		Type: TypeBurnPermitRevoked,
		Attributes: map[string]string{
			"holder": formatAddress(e.Holder),
			"name":   e.Name,
		},
	}
}
