package amm

import (
	"TrueMarket/internal/fault"
	"TrueMarket/internal/num"
)

const (
	// FeeDenominator is the fixed base fee rates are expressed in.
	FeeDenominator = 10_000
	// MaxFee bounds each fee component individually (5%).
	MaxFee = 500
)

// Fees is one fee schedule. Rates are parts of FeeDenominator.
type Fees struct {
	Fee            uint64 `json:"fee"`
	TreasuryFee    uint64 `json:"treasury_fee"`
	DistributorFee uint64 `json:"distributor_fee"`
}

// Validate checks that every component is within MaxFee, which also keeps
// the sum far below FeeDenominator so the residual cannot underflow.
func (f Fees) Validate() error {
	if f.Fee > MaxFee {
		return fault.Validation("protocol fee %d exceeds max %d", f.Fee, MaxFee)
	}
	if f.TreasuryFee > MaxFee {
		return fault.Validation("treasury fee %d exceeds max %d", f.TreasuryFee, MaxFee)
	}
	if f.DistributorFee > MaxFee {
		return fault.Validation("distributor fee %d exceeds max %d", f.DistributorFee, MaxFee)
	}
	return nil
}

// FeeSplit is the breakdown of a trade value.
type FeeSplit struct {
	Protocol    num.U128 `json:"protocol"`
	Treasury    num.U128 `json:"treasury"`
	Distributor num.U128 `json:"distributor"`
	Residual    num.U128 `json:"residual"`
}

// Split computes each component as value*rate/FeeDenominator, truncating, and
// the residual by checked subtraction.
func (f Fees) Split(value num.U128) (FeeSplit, error) {
	s := FeeSplit{
		Protocol:    value.MulDiv(f.Fee, FeeDenominator),
		Treasury:    value.MulDiv(f.TreasuryFee, FeeDenominator),
		Distributor: value.MulDiv(f.DistributorFee, FeeDenominator),
	}

	residual, err := value.Sub(s.Protocol)
	if err != nil {
		return FeeSplit{}, err
	}
	if residual, err = residual.Sub(s.Treasury); err != nil {
		return FeeSplit{}, err
	}
	if residual, err = residual.Sub(s.Distributor); err != nil {
		return FeeSplit{}, err
	}
	s.Residual = residual
	return s, nil
}
