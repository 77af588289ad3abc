package state

import (
	"TrueMarket/internal/amm"
	"TrueMarket/internal/event"
	"TrueMarket/internal/num"
	"encoding/json"
	"fmt"
	"time"
)

// MarketState is the lifecycle state of a market. Only Open is ever set here;
// Closed and Resolved exist for resolution logic that lives elsewhere.
type MarketState int32

const (
	MarketOpen MarketState = iota
	MarketClosed
	MarketResolved
)

func (s MarketState) String() string {
	switch s {
	case MarketOpen:
		return "Open"
	case MarketClosed:
		return "Closed"
	case MarketResolved:
		return "Resolved"
	default:
		return "Unknown"
	}
}

func (s MarketState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *MarketState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "Open":
		*s = MarketOpen
	case "Closed":
		*s = MarketClosed
	case "Resolved":
		*s = MarketResolved
	default:
		return fmt.Errorf("unknown market state %q", name)
	}
	return nil
}

// MarketOutcome is one outcome's share pool.
type MarketOutcome struct {
	ID              uint32   `json:"id"`
	SharesTotal     num.U128 `json:"shares_total"`
	SharesAvailable num.U128 `json:"shares_available"`
}

// Market is the authoritative market record, owned by the market chain.
type Market struct {
	ID              uint64      `json:"id"`
	ClosesAt        time.Time   `json:"closes_at"`
	Balance         num.U128    `json:"balance"`
	Liquidity       num.U128    `json:"liquidity"`
	SharesAvailable num.U128    `json:"shares_available"`
	State           MarketState `json:"state"`

	BuyFees        amm.Fees    `json:"buy_fees"`
	SellFees       amm.Fees    `json:"sell_fees"`
	Treasury       event.Owner `json:"treasury"`
	Distributor    event.Owner `json:"distributor"`
	FeeAccumulator num.U128    `json:"fee_accumulator"`

	Question       string      `json:"question"`
	QuestionID     string      `json:"question_id"`
	Arbitrator     event.Owner `json:"arbitrator"`
	DisputeTimeout uint32      `json:"dispute_timeout"`

	OutcomeCount uint32          `json:"outcome_count"`
	Outcomes     []MarketOutcome `json:"outcomes"`

	Token        event.ApplicationID `json:"token"`
	Manager      event.Owner         `json:"manager"`
	Creator      event.Owner         `json:"creator"`
	Paused       bool                `json:"paused"`
	Image        string              `json:"image"`
	Distribution []uint64            `json:"distribution,omitempty"`
}

// Pools returns the available pool of every outcome in index order.
func (m *Market) Pools() []num.U128 {
	out := make([]num.U128, len(m.Outcomes))
	for i, o := range m.Outcomes {
		out[i] = o.SharesAvailable
	}
	return out
}

// Clone returns a copy that shares no slices with m.
func (m *Market) Clone() *Market {
	c := *m
	c.Outcomes = append([]MarketOutcome(nil), m.Outcomes...)
	c.Distribution = append([]uint64(nil), m.Distribution...)
	return &c
}
