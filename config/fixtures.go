package config

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"burnledger/crypto"
	"burnledger/native/burn"
)

// poolFile mirrors the YAML representation of a reward pool.
type poolFile struct {
	Name           string `yaml:"name"`
	Token          string `yaml:"token"`
	TokenName      string `yaml:"token_name"`
	CodeHash       string `yaml:"code_hash"`
	BaseReward     string `yaml:"base_reward"`
	BonusHourly    string `yaml:"bonus_hourly"`
	BurnType       string `yaml:"burn_type"`
	RankScheme     string `yaml:"rank_scheme"`
	RankBonusStart string `yaml:"rank_bonus_start"`
}

// rankFile mirrors the YAML representation of a rank entry.
type rankFile struct {
	ItemID  string            `yaml:"item_id"`
	Rank    uint64            `yaml:"rank"`
	Rewards map[string]string `yaml:"rewards"`
}

func decodeYAML(path string, out interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// LoadPools reads reward pool definitions from a YAML file. Balances are not
// part of the file; new pools always start empty.
func LoadPools(path string) ([]*burn.RewardPool, error) {
	var entries []poolFile
	if err := decodeYAML(path, &entries); err != nil {
		return nil, err
	}
	pools := make([]*burn.RewardPool, 0, len(entries))
	for i, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("pool %d: name required", i)
		}
		token, err := crypto.ParseAddress(crypto.BurnPrefix, entry.Token)
		if err != nil {
			return nil, fmt.Errorf("pool %s token: %w", name, err)
		}
		burnType, err := burn.ParseBurnType(entry.BurnType)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", name, err)
		}
		scheme, err := burn.ParseRankScheme(entry.RankScheme)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", name, err)
		}
		base, err := parseAmount(entry.BaseReward)
		if err != nil {
			return nil, fmt.Errorf("pool %s base_reward: %w", name, err)
		}
		hourly, err := parseAmount(entry.BonusHourly)
		if err != nil {
			return nil, fmt.Errorf("pool %s bonus_hourly: %w", name, err)
		}
		start, err := parseAmount(entry.RankBonusStart)
		if err != nil {
			return nil, fmt.Errorf("pool %s rank_bonus_start: %w", name, err)
		}
		tokenName := strings.TrimSpace(entry.TokenName)
		if tokenName == "" {
			tokenName = name
		}
		pools = append(pools, &burn.RewardPool{
			Name:           name,
			Token:          burn.ContractRef{CodeHash: strings.TrimSpace(entry.CodeHash), Address: token, Name: tokenName},
			BaseReward:     base,
			BonusHourly:    hourly,
			BurnType:       burnType,
			RankScheme:     scheme,
			RankBonusStart: start,
			Balance:        big.NewInt(0),
		})
	}
	return pools, nil
}

// LoadRanks reads rank entries from a YAML file.
func LoadRanks(path string) ([]*burn.RankEntry, error) {
	var entries []rankFile
	if err := decodeYAML(path, &entries); err != nil {
		return nil, err
	}
	ranks := make([]*burn.RankEntry, 0, len(entries))
	for i, entry := range entries {
		itemID := strings.TrimSpace(entry.ItemID)
		if itemID == "" {
			return nil, fmt.Errorf("rank %d: item_id required", i)
		}
		rank := &burn.RankEntry{ItemID: itemID, Rank: entry.Rank}
		for _, pool := range sortedKeys(entry.Rewards) {
			amount, err := parseAmount(entry.Rewards[pool])
			if err != nil {
				return nil, fmt.Errorf("rank %s pool %s: %w", itemID, pool, err)
			}
			rank.Rewards = append(rank.Rewards, burn.RankReward{Pool: pool, Amount: amount})
		}
		ranks = append(ranks, rank)
	}
	return ranks, nil
}

// LoadItems reads the item metadata served by the local item registry.
func LoadItems(path string) (map[string]*burn.Metadata, error) {
	var items map[string]*burn.Metadata
	if err := decodeYAML(path, &items); err != nil {
		return nil, err
	}
	out := make(map[string]*burn.Metadata, len(items))
	for id, meta := range items {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("item metadata: empty item id")
		}
		if meta == nil {
			meta = &burn.Metadata{}
		}
		out[id] = meta
	}
	return out, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return value, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
