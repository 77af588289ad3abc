package state

import (
	"TrueMarket/internal/amm"
	"TrueMarket/internal/event"
	"TrueMarket/internal/fault"
	"TrueMarket/internal/num"
	"fmt"
	"time"
)

const (
	MinOutcomes = 2
	MaxOutcomes = 32
)

// ValidateCreate checks a CreateMarket request against the block time.
func ValidateCreate(op *event.CreateMarket, now time.Time) error {
	if op.Value.IsZero() {
		return fault.Validation("initial value must be non-zero")
	}
	if !op.ClosesAt.After(now) {
		return fault.Validation("closing time %s is not after block time %s",
			op.ClosesAt.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	if op.Outcomes < MinOutcomes || op.Outcomes > MaxOutcomes {
		return fault.Validation("outcome count %d outside [%d,%d]", op.Outcomes, MinOutcomes, MaxOutcomes)
	}
	if err := op.BuyFees.Validate(); err != nil {
		return fmt.Errorf("buy fees: %w", err)
	}
	if err := op.SellFees.Validate(); err != nil {
		return fmt.Errorf("sell fees: %w", err)
	}
	return nil
}

// NewMarket builds an Open market with id and seeds it with the whole
// initial value on every outcome. The request must already be validated.
func NewMarket(id uint64, creator event.Owner, op *event.CreateMarket) (*Market, error) {
	m := &Market{
		ID:             id,
		ClosesAt:       op.ClosesAt,
		State:          MarketOpen,
		BuyFees:        op.BuyFees,
		SellFees:       op.SellFees,
		Treasury:       op.Treasury,
		Distributor:    op.Distributor,
		Question:       op.Question,
		QuestionID:     fmt.Sprintf("q_%d_%s", id, op.Question),
		Arbitrator:     op.Arbitrator,
		DisputeTimeout: op.DisputeTimeout,
		OutcomeCount:   op.Outcomes,
		Outcomes:       make([]MarketOutcome, op.Outcomes),
		Token:          op.Token,
		Manager:        op.Manager,
		Creator:        creator,
		Image:          op.Image,
		Distribution:   op.Distribution,
	}
	for i := range m.Outcomes {
		m.Outcomes[i].ID = uint32(i)
	}

	if err := m.addInitialLiquidity(op.Value); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Market) addInitialLiquidity(units num.U128) error {
	liquidity, err := m.Liquidity.Add(units)
	if err != nil {
		return err
	}
	m.Liquidity = liquidity
	return m.AddShares(units)
}

// AddShares adds units to every outcome pool and total, to the market's
// available shares once per outcome, and to the collateral balance.
func (m *Market) AddShares(units num.U128) error {
	var err error
	for i := range m.Outcomes {
		o := &m.Outcomes[i]
		if o.SharesAvailable, err = o.SharesAvailable.Add(units); err != nil {
			return err
		}
		if o.SharesTotal, err = o.SharesTotal.Add(units); err != nil {
			return err
		}
		if m.SharesAvailable, err = m.SharesAvailable.Add(units); err != nil {
			return err
		}
	}
	if m.Balance, err = m.Balance.Add(units); err != nil {
		return err
	}
	return nil
}

// Trade is the result of a buy applied to a market.
type Trade struct {
	Shares num.U128
	Fees   amm.FeeSplit
}

// ApplyBuy executes a buy of value units on outcome. Fees are split off the
// gross value; the AMM prices only the residual, which is then added back to
// every pool before the issued shares leave the target pool.
func (m *Market) ApplyBuy(outcome uint32, value, minShares num.U128) (Trade, error) {
	if m.State != MarketOpen {
		return Trade{}, fault.Validation("market %d is %s, not Open", m.ID, m.State)
	}
	if m.Paused {
		return Trade{}, fault.Validation("market %d is paused", m.ID)
	}
	if outcome >= m.OutcomeCount {
		return Trade{}, fault.Validation("outcome %d out of range for market %d with %d outcomes",
			outcome, m.ID, m.OutcomeCount)
	}

	split, err := m.BuyFees.Split(value)
	if err != nil {
		return Trade{}, err
	}

	shares, err := amm.CalcBuyAmount(m.Pools(), int(outcome), split.Residual)
	if err != nil {
		return Trade{}, err
	}
	if shares.Lt(minShares) {
		return Trade{}, fault.Slippage("market %d outcome %d: %s shares below minimum %s",
			m.ID, outcome, shares, minShares)
	}

	if m.FeeAccumulator, err = m.FeeAccumulator.Add(split.Protocol); err != nil {
		return Trade{}, err
	}
	if err := m.AddShares(split.Residual); err != nil {
		return Trade{}, err
	}

	o := &m.Outcomes[outcome]
	if o.SharesAvailable, err = o.SharesAvailable.Sub(shares); err != nil {
		return Trade{}, err
	}
	if m.SharesAvailable, err = m.SharesAvailable.Sub(shares); err != nil {
		return Trade{}, err
	}

	return Trade{Shares: shares, Fees: split}, nil
}

// SetPaused toggles the buy gate. Only the manager may do this.
func (m *Market) SetPaused(signer event.Owner, paused bool) error {
	if signer == "" || signer != m.Manager {
		return fault.Authentication("signer %q is not the manager of market %d", signer, m.ID)
	}
	m.Paused = paused
	return nil
}
