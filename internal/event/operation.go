package event

import (
	"TrueMarket/internal/amm"
	"TrueMarket/internal/num"
	"time"
)

// OperationKind discriminator for operation payloads
type OperationKind int32

const (
	OperationUnknown OperationKind = iota
	OperationCreateMarket
	OperationBuy
	OperationSetMarketPaused
	OperationTokenTransfer
	OperationTokenMint
)

func (k OperationKind) String() string {
	switch k {
	case OperationCreateMarket:
		return "CreateMarket"
	case OperationBuy:
		return "Buy"
	case OperationSetMarketPaused:
		return "SetMarketPaused"
	case OperationTokenTransfer:
		return "TokenTransfer"
	case OperationTokenMint:
		return "TokenMint"
	default:
		return "Unknown"
	}
}

// ParseOperationKind is the inverse of OperationKind.String.
func ParseOperationKind(s string) OperationKind {
	for k := OperationCreateMarket; k <= OperationTokenMint; k++ {
		if k.String() == s {
			return k
		}
	}
	return OperationUnknown
}

// Operation is a caller-initiated, chain-local request. The set of
// implementations is closed; handlers switch over the concrete types.
type Operation interface {
	OperationKind() OperationKind
	isOperation()
}

// CreateMarket opens a new market on the market chain, seeded with Value
// units of the creator's collateral.
type CreateMarket struct {
	Value          num.U128      `json:"value"`
	ClosesAt       time.Time     `json:"closes_at"`
	Outcomes       uint32        `json:"outcomes"`
	Token          ApplicationID `json:"token"`
	Distribution   []uint64      `json:"distribution,omitempty"`
	Question       string        `json:"question"`
	Image          string        `json:"image"`
	Arbitrator     Owner         `json:"arbitrator"`
	BuyFees        amm.Fees      `json:"buy_fees"`
	SellFees       amm.Fees      `json:"sell_fees"`
	Treasury       Owner         `json:"treasury"`
	Distributor    Owner         `json:"distributor"`
	DisputeTimeout uint32        `json:"dispute_timeout"`
	Manager        Owner         `json:"manager"`
}

// Buy purchases shares of one outcome. Token names the collateral application
// so a chain without the market's state can still push funds.
type Buy struct {
	MarketID  uint64        `json:"market_id"`
	OutcomeID uint32        `json:"outcome_id"`
	MinShares num.U128      `json:"min_outcome_shares_to_buy"`
	Value     num.U128      `json:"value"`
	Token     ApplicationID `json:"token"`
}

// SetMarketPaused toggles the buy gate of a market. Manager only.
type SetMarketPaused struct {
	MarketID uint64 `json:"market_id"`
	Paused   bool   `json:"paused"`
}

// TokenTransfer moves Amount of Token from Owner to Target, crossing chains
// through a TokenCredit message when Target is remote.
type TokenTransfer struct {
	Token  ApplicationID `json:"token"`
	Owner  Owner         `json:"owner"`
	Amount num.U128      `json:"amount"`
	Target Account       `json:"target_account"`
}

// TokenMint credits Amount of Token to Owner on the current chain.
type TokenMint struct {
	Token  ApplicationID `json:"token"`
	Owner  Owner         `json:"owner"`
	Amount num.U128      `json:"amount"`
}

func (*CreateMarket) OperationKind() OperationKind    { return OperationCreateMarket }
func (*Buy) OperationKind() OperationKind             { return OperationBuy }
func (*SetMarketPaused) OperationKind() OperationKind { return OperationSetMarketPaused }
func (*TokenTransfer) OperationKind() OperationKind   { return OperationTokenTransfer }
func (*TokenMint) OperationKind() OperationKind       { return OperationTokenMint }

func (*CreateMarket) isOperation()    {}
func (*Buy) isOperation()             {}
func (*SetMarketPaused) isOperation() {}
func (*TokenTransfer) isOperation()   {}
func (*TokenMint) isOperation()       {}
