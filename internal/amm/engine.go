// Package amm prices outcome shares and splits trade fees.
//
// Share issuance preserves a product-style invariant across every outcome
// pool other than the one being bought. Intermediate products are computed
// with math/big; only the final pool value is range-checked to 128 bits.
package amm

import (
	"TrueMarket/internal/fault"
	"TrueMarket/internal/num"
	"math/big"
	"sync"
)

var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

// CalcBuyAmount returns the shares issued for paying amount into outcome
// target, given the available pool of every outcome.
//
//	ending := pools[target]
//	for i in index order, i != target:
//	    ending = ceil(ending * pools[i] / (pools[i] + amount))
//	shares = pools[target] + amount - ending
//
// Iteration is in ascending outcome index; a different order can change
// rounding by one unit per outcome.
func CalcBuyAmount(pools []num.U128, target int, amount num.U128) (num.U128, error) {
	if target < 0 || target >= len(pools) {
		return num.Zero, fault.Validation("outcome %d out of range [0,%d)", target, len(pools))
	}

	ending := pools[target].Big()
	amt := amount.Big()

	prod := getBig()
	denom := getBig()
	rem := getBig()
	defer func() {
		putBig(prod)
		putBig(denom)
		putBig(rem)
	}()

	for i, pool := range pools {
		if i == target {
			continue
		}
		p := pool.Big()
		denom.Add(p, amt)
		if denom.Sign() == 0 {
			// empty pool and zero payment: nothing to rebalance against
			continue
		}
		prod.Mul(ending, p)
		ending.QuoRem(prod, denom, rem)
		if rem.Sign() != 0 {
			ending.Add(ending, big.NewInt(1))
		}
	}

	endingU, err := num.FromBig(ending)
	if err != nil {
		return num.Zero, fault.Arithmetic("ending balance out of range: %v", err)
	}

	gross, err := pools[target].Add(amount)
	if err != nil {
		return num.Zero, err
	}
	shares, err := gross.Sub(endingU)
	if err != nil {
		return num.Zero, fault.Arithmetic("share issuance underflow: pool=%s amount=%s ending=%s",
			pools[target], amount, endingU)
	}
	return shares, nil
}

// Quote is a read-only preview of a buy.
type Quote struct {
	Fees   FeeSplit `json:"fees"`
	Shares num.U128 `json:"shares"`
}

// QuoteBuy splits fees off value and prices the residual against pools.
func QuoteBuy(pools []num.U128, target int, value num.U128, fees Fees) (Quote, error) {
	split, err := fees.Split(value)
	if err != nil {
		return Quote{}, err
	}
	shares, err := CalcBuyAmount(pools, target, split.Residual)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Fees: split, Shares: shares}, nil
}
