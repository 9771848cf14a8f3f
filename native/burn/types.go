package burn

import (
	"fmt"
	"math/big"
	"strings"
)

// BurnType selects how a pool rewards burned items.
type BurnType uint8

const (
	// BurnTypeNormal pays the base reward plus the hourly bonus.
	BurnTypeNormal BurnType = iota
	// BurnTypeRank additionally pays a rank bonus according to the pool's RankScheme.
	BurnTypeRank
)

func (t BurnType) String() string {
	switch t {
	case BurnTypeNormal:
		return "normal"
	case BurnTypeRank:
		return "rank"
	default:
		return fmt.Sprintf("burnType(%d)", uint8(t))
	}
}

// ParseBurnType maps the textual burn type used in configuration files.
func ParseBurnType(s string) (BurnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return BurnTypeNormal, nil
	case "rank":
		return BurnTypeRank, nil
	default:
		return 0, fmt.Errorf("%w: unknown burn type %q", ErrInvalidPool, s)
	}
}

// RankScheme declares how a rank pool encodes its rank bonus.
type RankScheme uint8

const (
	// RankSchemeTable looks the bonus up in the item's rank entry by pool name.
	RankSchemeTable RankScheme = iota
	// RankSchemeOffset pays max(0, RankBonusStart - rank).
	RankSchemeOffset
)

func (s RankScheme) String() string {
	switch s {
	case RankSchemeTable:
		return "table"
	case RankSchemeOffset:
		return "offset"
	default:
		return fmt.Sprintf("rankScheme(%d)", uint8(s))
	}
}

// ParseRankScheme maps the textual rank scheme used in configuration files.
func ParseRankScheme(s string) (RankScheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return RankSchemeTable, nil
	case "offset":
		return RankSchemeOffset, nil
	default:
		return 0, fmt.Errorf("%w: unknown rank scheme %q", ErrInvalidPool, s)
	}
}

// ContractRef identifies an external contract the ledger talks to.
type ContractRef struct {
	CodeHash string   `json:"codeHash"`
	Address  [20]byte `json:"address"`
	Name     string   `json:"name"`
}

// RewardPool is one reward-paying token source.
type RewardPool struct {
	Name           string      `json:"name"`
	Token          ContractRef `json:"token"`
	BaseReward     *big.Int    `json:"baseReward"`
	BonusHourly    *big.Int    `json:"bonusHourly"`
	BurnType       BurnType    `json:"burnType"`
	RankScheme     RankScheme  `json:"rankScheme"`
	RankBonusStart *big.Int    `json:"rankBonusStart"`
	Balance        *big.Int    `json:"balance"`
}

// Clone returns a deep copy of the pool with nil amounts normalised to zero.
func (p *RewardPool) Clone() *RewardPool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.BaseReward = cloneBigInt(p.BaseReward)
	clone.BonusHourly = cloneBigInt(p.BonusHourly)
	clone.RankBonusStart = cloneBigInt(p.RankBonusStart)
	clone.Balance = cloneBigInt(p.Balance)
	return &clone
}

// Ledger is the singleton configuration and balance record.
type Ledger struct {
	Owner            [20]byte      `json:"owner"`
	Active           bool          `json:"active"`
	ItemRegistry     ContractRef   `json:"itemRegistry"`
	Pools            []*RewardPool `json:"pools"`
	TraitRestriction string        `json:"traitRestriction"`
	BonusClock       uint64        `json:"bonusClock"`
	TotalBurned      uint64        `json:"totalBurned"`
	// ContractKey is the viewing key the ledger registers with the item
	// registry and every pool token. It is never returned by queries.
	ContractKey string `json:"-"`
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Pools = make([]*RewardPool, len(l.Pools))
	for i, pool := range l.Pools {
		clone.Pools[i] = pool.Clone()
	}
	return &clone
}

// Pool returns the pool registered under name.
func (l *Ledger) Pool(name string) (*RewardPool, bool) {
	if l == nil {
		return nil, false
	}
	for _, pool := range l.Pools {
		if pool != nil && pool.Name == name {
			return pool, true
		}
	}
	return nil, false
}

// PoolByToken returns the pool funded by the given token contract.
func (l *Ledger) PoolByToken(token [20]byte) (*RewardPool, bool) {
	if l == nil {
		return nil, false
	}
	for _, pool := range l.Pools {
		if pool != nil && pool.Token.Address == token {
			return pool, true
		}
	}
	return nil, false
}

// RankReward is the per-pool rank bonus attached to a rank entry.
type RankReward struct {
	Pool   string   `json:"pool"`
	Amount *big.Int `json:"amount"`
}

// RankEntry is the owner-curated score of a single item.
type RankEntry struct {
	ItemID  string       `json:"itemId"`
	Rank    uint64       `json:"rank"`
	Rewards []RankReward `json:"rewards"`
}

// RewardFor returns the rank bonus configured for pool, or nil.
func (r *RankEntry) RewardFor(pool string) *big.Int {
	if r == nil {
		return nil
	}
	for _, reward := range r.Rewards {
		if reward.Pool == pool {
			return reward.Amount
		}
	}
	return nil
}

// Clone returns a deep copy of the entry.
func (r *RankEntry) Clone() *RankEntry {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Rewards = make([]RankReward, len(r.Rewards))
	for i, reward := range r.Rewards {
		clone.Rewards[i] = RankReward{Pool: reward.Pool, Amount: cloneBigInt(reward.Amount)}
	}
	return &clone
}

// Trait is one public attribute of an item.
type Trait struct {
	TraitType string `json:"traitType" yaml:"trait_type"`
	Value     string `json:"value" yaml:"value"`
}

// Metadata is the public metadata the item registry reports for an item.
type Metadata struct {
	TokenURI    string  `json:"tokenUri,omitempty" yaml:"token_uri"`
	Name        string  `json:"name,omitempty" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Image       string  `json:"image,omitempty" yaml:"image"`
	Attributes  []Trait `json:"attributes,omitempty" yaml:"attributes"`
}

// HasTrait reports whether the metadata carries an attribute of the given type.
func (m *Metadata) HasTrait(traitType string) bool {
	if m == nil {
		return false
	}
	for _, attr := range m.Attributes {
		if attr.TraitType == traitType {
			return true
		}
	}
	return false
}

// PoolAmount pairs a pool name with an amount.
type PoolAmount struct {
	Pool   string   `json:"pool"`
	Amount *big.Int `json:"amount"`
}

// HistoryEntry is one record of a submitter's claim history.
type HistoryEntry struct {
	ItemID      string       `json:"itemId"`
	Date        uint64       `json:"date"`
	Rewards     *big.Int     `json:"rewards"`
	PoolRewards []PoolAmount `json:"poolRewards"`
	Memo        string       `json:"memo"`
}

// BurnRecord is one record of the global burn history. The metadata snapshot
// preserves the item's public data after the item itself is destroyed.
type BurnRecord struct {
	ItemID    string   `json:"itemId"`
	Date      uint64   `json:"date"`
	Submitter [20]byte `json:"submitter"`
	Memo      string   `json:"memo"`
	Metadata  Metadata `json:"metadata"`
}

// Viewer is the stored admin viewing credential.
type Viewer struct {
	Address   [20]byte
	KeyDigest [32]byte
}

// ViewerCredential is presented by callers of balance queries.
type ViewerCredential struct {
	Address [20]byte
	Key     string
}

// Expectation is the caller's reward floor for one pool.
type Expectation struct {
	Pool  string   `json:"pool"`
	Base  *big.Int `json:"base"`
	Bonus *big.Int `json:"bonus"`
}

// ClaimRequest is the payload attached to a batch submission.
type ClaimRequest struct {
	Expectations []Expectation `json:"expectations"`
	Memo         string        `json:"memo"`
}

// DepositRequest is the payload attached to a token deposit notification.
type DepositRequest struct {
	Memo string `json:"memo"`
}

// Reward is the expected reward of one item from one pool.
type Reward struct {
	ItemID string   `json:"itemId"`
	Pool   string   `json:"pool"`
	Base   *big.Int `json:"base"`
	Rank   *big.Int `json:"rank"`
	Bonus  *big.Int `json:"bonus"`
	Total  *big.Int `json:"total"`
	// RankValue is the item's rank when the pool consulted a rank entry.
	RankValue *uint64 `json:"rankValue,omitempty"`
}

// Payout is the amount a settlement debited from one pool.
type Payout struct {
	Pool   string   `json:"pool"`
	Base   *big.Int `json:"base"`
	Bonus  *big.Int `json:"bonus"`
	Amount *big.Int `json:"amount"`
}

// Settlement describes a committed batch claim.
type Settlement struct {
	Submitter       [20]byte      `json:"submitter"`
	Items           []string      `json:"items"`
	Payouts         []Payout      `json:"payouts"`
	BonusClockReset bool          `json:"bonusClockReset"`
	TotalBurned     uint64        `json:"totalBurned"`
	Instructions    []Instruction `json:"instructions"`
}

// Info is the public view of the ledger.
type Info struct {
	Owner            [20]byte      `json:"owner"`
	Active           bool          `json:"active"`
	ItemRegistry     ContractRef   `json:"itemRegistry"`
	Pools            []*RewardPool `json:"pools"`
	TraitRestriction string        `json:"traitRestriction,omitempty"`
	BonusClock       uint64        `json:"bonusClock"`
	TotalBurned      uint64        `json:"totalBurned"`
}

// PoolBalance is returned by the credential-gated balance query.
type PoolBalance struct {
	Pool    string   `json:"pool"`
	Token   [20]byte `json:"token"`
	Balance *big.Int `json:"balance"`
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
