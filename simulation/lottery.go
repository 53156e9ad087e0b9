package simulation

import (
	"math/rand"

	"dag-consensus-sim/miner"
)

// Lottery picks which miners generate a transaction on a tick. Winners are
// returned as miner ids in generation order.
type Lottery interface {
	Winners(tick int, miners []*miner.Miner, rng *rand.Rand) []int
}

// WeightedLottery gives every miner one trial per tick with probability
// proportional to its share of the total power, so that on average one
// transaction appears every TargetTicks ticks. Several miners can win the
// same tick.
type WeightedLottery struct {
	TargetTicks float64
}

func (l WeightedLottery) Winners(_ int, miners []*miner.Miner, rng *rand.Rand) []int {
	total := 0.0
	for _, m := range miners {
		total += m.Power()
	}
	if total <= 0 || l.TargetTicks <= 0 {
		return nil
	}

	var winners []int
	for _, m := range miners {
		if rng.Float64() < m.Power()/total/l.TargetTicks {
			winners = append(winners, m.ID())
		}
	}
	return winners
}

// Script is a fixed generation schedule: tick to the ids of the miners that
// generate on it.
type Script map[int][]int

func (s Script) Winners(tick int, _ []*miner.Miner, _ *rand.Rand) []int {
	return s[tick]
}
