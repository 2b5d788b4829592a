// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package accounts

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
)

// allegraStartEpoch is when the shared-reward-account bug was fixed on
// mainnet; before it, only the lowest pool id sharing a reward account
// was paid
const allegraStartEpoch = 236

// floorRat truncates a non-negative rational to an integer lovelace
// amount
func floorRat(r *big.Rat) types.Lovelace {
	q := new(big.Int).Quo(r.Num(), r.Denom())
	if !q.IsUint64() {
		return 0
	}
	return q.Uint64()
}

func ratFromUint(v uint64) *big.Rat {
	return new(big.Rat).SetInt(new(big.Int).SetUint64(v))
}

// CalculateRewards runs the end-of-epoch pool reward calculation for the
// epoch that just ended. The performance snapshot is from epoch i-1 (its
// block counts earn the rewards); the staking snapshot is from epoch i-2
// ("go", the distribution the rewards are shared by); the registration
// filter uses the registered set at calculation time, per the spec's
// current-dstate rule.
func CalculateRewards(
	epoch uint64,
	performance *types.EpochSnapshot,
	staking *types.EpochSnapshot,
	params *types.ShelleyParams,
	stakeRewards types.Lovelace,
	registered map[address.StakeAddress]bool,
) (*types.RewardsResult, error) {
	result := &types.RewardsResult{
		Epoch:      epoch,
		Rewards:    make(map[types.PoolID][]types.RewardDetail),
		SPORewards: make(map[types.PoolID]types.SPORewards),
	}

	// No blocks last epoch means no rewards to share
	if performance.Blocks == 0 {
		return result, nil
	}

	if params.StakePoolTargetNum == 0 {
		return nil, errors.New("rewards: k is zero")
	}

	// Total supply is max supply minus reserves, the denominator for
	// sigma and s
	totalSupply := ratFromUint(
		params.MaxLovelaceSupply - performance.Pots.Reserves,
	)
	totalActiveStake := ratFromUint(staking.TotalActiveStake())
	rewardsPot := ratFromUint(stakeRewards)

	// z0 = 1/k
	z0 := new(big.Rat).SetFrac64(1, int64(params.StakePoolTargetNum))
	a0 := params.PoolPledgeInfluence.Rat()

	for operator, spo := range staking.SPOs {
		blocksProduced := uint64(0)
		if performanceSPO, ok := performance.SPOs[operator]; ok {
			blocksProduced = performanceSPO.BlocksProduced
		}
		if blocksProduced == 0 {
			continue
		}

		// Leader rewards are paid only if the pool's reward account is
		// registered in the current dstate, not per historical snapshots
		payToRewardAccount := registered[spo.RewardAccount]

		// Pre-Allegra shared-reward-account bug: when several pools
		// share a reward account, only the lowest operator id (byte
		// comparison) is paid
		if epoch < allegraStartEpoch && payToRewardAccount {
			for other, otherSPO := range staking.SPOs {
				if otherSPO.RewardAccount != spo.RewardAccount {
					continue
				}
				if bytes.Compare(other.Bytes(), operator.Bytes()) >= 0 {
					continue
				}
				otherBlocks := uint64(0)
				if performanceSPO, ok := performance.SPOs[other]; ok {
					otherBlocks = performanceSPO.BlocksProduced
				}
				if otherBlocks > 0 {
					payToRewardAccount = false
					break
				}
			}
		}

		rewards, unpaid := calculateSPORewards(spoRewardInput{
			operator:         operator,
			spo:              spo,
			blocksProduced:   blocksProduced,
			totalBlocks:      performance.Blocks,
			rewardsPot:       rewardsPot,
			totalSupply:      totalSupply,
			totalActiveStake: totalActiveStake,
			z0:               z0,
			a0:               a0,
			params:           params,
			staking:          staking,
			payLeader:        payToRewardAccount,
		})
		result.TotalUnpaidLeaderRewards += unpaid

		if len(rewards) == 0 {
			continue
		}
		summary := types.SPORewards{}
		for _, reward := range rewards {
			if reward.Type == types.RewardLeader {
				summary.OperatorRewards += reward.Amount
			}
			summary.TotalRewards += reward.Amount
			result.TotalPaid += reward.Amount
		}
		result.Rewards[operator] = rewards
		result.SPORewards[operator] = summary
	}

	return result, nil
}

type spoRewardInput struct {
	operator         types.PoolID
	spo              types.SnapshotSPO
	blocksProduced   uint64
	totalBlocks      uint64
	rewardsPot       *big.Rat
	totalSupply      *big.Rat
	totalActiveStake *big.Rat
	z0               *big.Rat
	a0               *big.Rat
	params           *types.ShelleyParams
	staking          *types.EpochSnapshot
	payLeader        bool
}

// calculateSPORewards implements rewardOnePool (Shelley figure 48): the
// maxPool optimum, apparent performance scaling, the operator and member
// reward split, and the aggregating union of Errata 17.4.
func calculateSPORewards(
	in spoRewardInput,
) ([]types.RewardDetail, types.Lovelace) {
	if in.spo.TotalStake == 0 {
		return nil, 0
	}
	poolStake := ratFromUint(in.spo.TotalStake)

	// The pledge must be met by the owners' actual delegated stake, else
	// maxP = 0 and the pool earns nothing
	ownerStake := in.staking.StakeDelegatedBy(in.operator, in.spo.PoolOwners)
	if ownerStake < in.spo.Pledge {
		return nil, 0
	}

	// maxPool (figure 46):
	// sigma' = min(sigma, z0), p' = min(pledge/supply, z0)
	sigma := new(big.Rat).Quo(poolStake, in.totalSupply)
	sigmaCapped := minRat(sigma, in.z0)
	pledge := new(big.Rat).Quo(ratFromUint(in.spo.Pledge), in.totalSupply)
	pledgeCapped := minRat(pledge, in.z0)

	// R/(1+a0) * (sigma' + p'*a0*(sigma' - p'*(z0-sigma')/z0)/z0)
	onePlusA0 := new(big.Rat).Add(big.NewRat(1, 1), in.a0)
	inner := new(big.Rat).Sub(
		sigmaCapped,
		new(big.Rat).Mul(
			pledgeCapped,
			new(big.Rat).Quo(
				new(big.Rat).Sub(in.z0, sigmaCapped),
				in.z0,
			),
		),
	)
	optimum := new(big.Rat).Mul(
		new(big.Rat).Quo(in.rewardsPot, onePlusA0),
		new(big.Rat).Add(
			sigmaCapped,
			new(big.Rat).Quo(
				new(big.Rat).Mul(pledgeCapped, new(big.Rat).Mul(in.a0, inner)),
				in.z0,
			),
		),
	)
	optimumFloor := ratFromUint(floorRat(optimum))

	// Apparent performance (figure 46): 1 under d >= 0.8, else
	// beta / sigma_a with sigma_a relative to the active stake
	var performance *big.Rat
	if in.params.Decentralisation.Cmp(types.Ratio{Num: 8, Den: 10}) >= 0 {
		performance = big.NewRat(1, 1)
	} else {
		relativeBlocks := new(big.Rat).SetFrac(
			new(big.Int).SetUint64(in.blocksProduced),
			new(big.Int).SetUint64(in.totalBlocks),
		)
		relativeActiveStake := new(big.Rat).Quo(poolStake, in.totalActiveStake)
		performance = new(big.Rat).Quo(relativeBlocks, relativeActiveStake)
	}

	poolRewards := floorRat(new(big.Rat).Mul(optimumFloor, performance))
	fixedCost := in.spo.FixedCost

	// Aggregating union (Errata 17.4): accumulate per account; the
	// leader flag wins for the reward type
	type aggregated struct {
		amount types.Lovelace
		leader bool
	}
	aggregator := make(map[address.StakeAddress]*aggregated)
	add := func(account address.StakeAddress, amount types.Lovelace, leader bool) {
		entry, ok := aggregator[account]
		if !ok {
			entry = &aggregated{}
			aggregator[account] = entry
		}
		entry.amount += amount
		entry.leader = entry.leader || leader
	}

	var operatorBenefit types.Lovelace
	if poolRewards <= fixedCost {
		// roperator: the whole reward goes to the operator
		operatorBenefit = poolRewards
	} else {
		margin := in.spo.Margin.Rat()
		oneMinusMargin := new(big.Rat).Sub(big.NewRat(1, 1), margin)
		afterCost := ratFromUint(poolRewards - fixedCost)

		// roperator = c + floor((f-c) * (m + (1-m)*s/sigma)); the
		// total-supply denominators of s and sigma cancel
		ownerShare := new(big.Rat).Quo(ratFromUint(ownerStake), poolStake)
		marginCost := floorRat(new(big.Rat).Mul(
			afterCost,
			new(big.Rat).Add(margin, new(big.Rat).Mul(oneMinusMargin, ownerShare)),
		))
		operatorBenefit = fixedCost + marginCost

		// rmember = floor((f-c) * (1-m) * t/sigma), excluding pool
		// owners, whose share is carried by the s/sigma term above. The
		// pool's reward account is NOT excluded: its member rewards
		// aggregate with the leader reward per Errata 17.4.
		toDelegators := new(big.Rat).Mul(afterCost, oneMinusMargin)
		if toDelegators.Sign() > 0 {
			for delegator, stake := range in.spo.Delegators {
				if isPoolOwner(delegator, in.spo.PoolOwners) {
					continue
				}
				proportion := new(big.Rat).Quo(ratFromUint(stake), poolStake)
				amount := floorRat(new(big.Rat).Mul(toDelegators, proportion))
				if amount == 0 {
					continue
				}
				add(delegator, amount, false)
			}
		}
	}

	var unpaidLeaderRewards types.Lovelace
	if in.payLeader {
		add(in.spo.RewardAccount, operatorBenefit, true)
	} else {
		// Withheld leader rewards stay in reserves (delta-r2); they are
		// distinct from unregRU, which covers accounts deregistered
		// between calculation and application
		unpaidLeaderRewards = operatorBenefit
	}

	rewards := make([]types.RewardDetail, 0, len(aggregator))
	for account, entry := range aggregator {
		if entry.amount == 0 {
			continue
		}
		rewardType := types.RewardMember
		if entry.leader {
			rewardType = types.RewardLeader
		}
		rewards = append(rewards, types.RewardDetail{
			Account: account,
			Type:    rewardType,
			Amount:  entry.amount,
			Pool:    in.operator,
		})
	}
	return rewards, unpaidLeaderRewards
}

func minRat(a, b *big.Rat) *big.Rat {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func isPoolOwner(
	addr address.StakeAddress,
	owners []address.StakeAddress,
) bool {
	for _, owner := range owners {
		if owner == addr {
			return true
		}
	}
	return false
}
