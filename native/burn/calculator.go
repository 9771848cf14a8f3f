package burn

import "math/big"

// SecondsPerHour is the granularity of the time-decaying bonus. Partial hours
// never count.
const SecondsPerHour = 3600

// Estimate computes the expected reward of itemID from pool. rank may be nil
// when the item has no rank entry. The function is pure: the same inputs
// always yield the same reward.
func Estimate(itemID string, pool *RewardPool, rank *RankEntry, now, bonusClock uint64) Reward {
	reward := Reward{
		ItemID: itemID,
		Base:   big.NewInt(0),
		Rank:   big.NewInt(0),
		Bonus:  big.NewInt(0),
		Total:  big.NewInt(0),
	}
	if pool == nil {
		return reward
	}
	reward.Pool = pool.Name
	if pool.BaseReward != nil {
		reward.Base.Set(pool.BaseReward)
	}

	if pool.BurnType == BurnTypeRank && rank != nil {
		value := rank.Rank
		reward.RankValue = &value
		reward.Rank = rankBonus(pool, rank)
	}

	reward.Bonus = timeBonus(pool.BonusHourly, now, bonusClock)

	reward.Total.Add(reward.Base, reward.Rank)
	reward.Total.Add(reward.Total, reward.Bonus)
	return reward
}

func rankBonus(pool *RewardPool, rank *RankEntry) *big.Int {
	switch pool.RankScheme {
	case RankSchemeOffset:
		if pool.RankBonusStart == nil {
			return big.NewInt(0)
		}
		bonus := new(big.Int).Sub(pool.RankBonusStart, new(big.Int).SetUint64(rank.Rank))
		if bonus.Sign() < 0 {
			return big.NewInt(0)
		}
		return bonus
	default:
		if amount := rank.RewardFor(pool.Name); amount != nil {
			return new(big.Int).Set(amount)
		}
		return big.NewInt(0)
	}
}

func timeBonus(hourly *big.Int, now, bonusClock uint64) *big.Int {
	if hourly == nil || hourly.Sign() <= 0 || now <= bonusClock {
		return big.NewInt(0)
	}
	hours := (now - bonusClock) / SecondsPerHour
	return new(big.Int).Mul(new(big.Int).SetUint64(hours), hourly)
}
