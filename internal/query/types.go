package query

import (
	"TrueMarket/internal/amm"
	"TrueMarket/internal/event"
	"TrueMarket/internal/ledger"
	"TrueMarket/internal/num"
	"TrueMarket/internal/state"
)

// ChainStatus describes the head of the chain serving queries.
type ChainStatus struct {
	ChainID     event.ChainID `json:"chain_id"`
	MarketChain event.ChainID `json:"market_chain"`
	Height      uint64        `json:"height"`
	Tip         string        `json:"tip"`
}

// MarketResponse is a market record as of a chain height.
type MarketResponse struct {
	Market     *state.Market `json:"market"`
	AsOfHeight uint64        `json:"as_of_height"`
}

// HoldingsResponse lists ledger entries for one market.
type HoldingsResponse struct {
	MarketID   uint64           `json:"market_id"`
	Holdings   []ledger.Holding `json:"holdings"`
	AsOfHeight uint64           `json:"as_of_height"`
}

// QuoteResponse previews a buy without executing it.
type QuoteResponse struct {
	MarketID   uint64       `json:"market_id"`
	OutcomeID  uint32       `json:"outcome_id"`
	Value      num.U128     `json:"value"`
	Fees       amm.FeeSplit `json:"fees"`
	Shares     num.U128     `json:"shares"`
	AsOfHeight uint64       `json:"as_of_height"`
}

// BalanceResponse is one owner's token balance on this chain.
type BalanceResponse struct {
	Token      event.ApplicationID `json:"token"`
	Owner      event.Owner         `json:"owner"`
	Balance    num.U128            `json:"balance"`
	AsOfHeight uint64              `json:"as_of_height"`
}
