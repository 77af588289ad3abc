package query

import (
	"TrueMarket/internal/amm"
	"TrueMarket/internal/event"
	"TrueMarket/internal/fault"
	"TrueMarket/internal/ledger"
	"TrueMarket/internal/num"
	"TrueMarket/internal/observability"
	"TrueMarket/internal/persistence"
	"TrueMarket/internal/state"
	"TrueMarket/internal/storage"
	"context"
	"encoding/hex"
	"time"
)

// Head is the part of a chain the query side needs.
type Head interface {
	Height() uint64
	Tip() [32]byte
}

// Service provides read-only access to one chain's view. Reads go straight to
// the store and never see an uncommitted handler.
type Service struct {
	chain       event.ChainID
	marketChain event.ChainID
	store       storage.Store
	head        Head
	blocks      *persistence.BlockLog
	metrics     *observability.Metrics
}

// NewService creates a query service. blocks may be nil when the node keeps no
// block log; metrics may be nil.
func NewService(
	chain, marketChain event.ChainID,
	store storage.Store,
	head Head,
	blocks *persistence.BlockLog,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		chain:       chain,
		marketChain: marketChain,
		store:       store,
		head:        head,
		blocks:      blocks,
		metrics:     metrics,
	}
}

// Status returns the current chain head.
func (s *Service) Status(ctx context.Context) (ChainStatus, error) {
	defer s.observe("Status", time.Now(), nil)
	tip := s.head.Tip()
	return ChainStatus{
		ChainID:     s.chain,
		MarketChain: s.marketChain,
		Height:      s.head.Height(),
		Tip:         hex.EncodeToString(tip[:]),
	}, nil
}

// Market returns the market record. Only the market chain holds markets.
func (s *Service) Market(ctx context.Context, id uint64) (resp *MarketResponse, err error) {
	defer s.observe("Market", time.Now(), &err)
	height := s.head.Height()
	m, err := state.LoadMarket(storage.Begin(ctx, s.store), id)
	if err != nil {
		return nil, err
	}
	return &MarketResponse{Market: m, AsOfHeight: height}, nil
}

// Markets returns every market in id order.
func (s *Service) Markets(ctx context.Context) (markets []*state.Market, err error) {
	defer s.observe("Markets", time.Now(), &err)
	return state.ListMarkets(storage.Begin(ctx, s.store))
}

// Holders returns the global share ledger of a market, ordered by outcome then
// owner.
func (s *Service) Holders(ctx context.Context, marketID uint64) (resp *HoldingsResponse, err error) {
	defer s.observe("Holders", time.Now(), &err)
	height := s.head.Height()
	holdings, err := ledger.NewShareLedger(storage.Begin(ctx, s.store)).HoldersOf(marketID)
	if err != nil {
		return nil, err
	}
	return &HoldingsResponse{MarketID: marketID, Holdings: holdings, AsOfHeight: height}, nil
}

// MyShares returns the receipts this chain has been credited for a market.
// The cache only moves when a receipt arrives, so a lost receipt leaves it
// behind the market chain's ledger.
func (s *Service) MyShares(ctx context.Context, marketID uint64) (resp *HoldingsResponse, err error) {
	defer s.observe("MyShares", time.Now(), &err)
	height := s.head.Height()
	holdings, err := ledger.NewShareLedger(storage.Begin(ctx, s.store)).LocalReceipts(marketID)
	if err != nil {
		return nil, err
	}
	return &HoldingsResponse{MarketID: marketID, Holdings: holdings, AsOfHeight: height}, nil
}

// Quote prices a buy of value on outcome against the current pools.
func (s *Service) Quote(ctx context.Context, marketID uint64, outcome uint32, value num.U128) (resp *QuoteResponse, err error) {
	defer s.observe("Quote", time.Now(), &err)
	height := s.head.Height()
	m, err := state.LoadMarket(storage.Begin(ctx, s.store), marketID)
	if err != nil {
		return nil, err
	}
	if outcome >= m.OutcomeCount {
		return nil, fault.Validation("outcome %d out of range for market %d with %d outcomes",
			outcome, marketID, m.OutcomeCount)
	}
	q, err := amm.QuoteBuy(m.Pools(), int(outcome), value, m.BuyFees)
	if err != nil {
		return nil, err
	}
	return &QuoteResponse{
		MarketID:   marketID,
		OutcomeID:  outcome,
		Value:      value,
		Fees:       q.Fees,
		Shares:     q.Shares,
		AsOfHeight: height,
	}, nil
}

// Blocks pages through this chain's block log after a height.
func (s *Service) Blocks(ctx context.Context, after uint64, limit int) (rows []persistence.BlockRow, err error) {
	defer s.observe("Blocks", time.Now(), &err)
	if s.blocks == nil {
		return nil, fault.NotFound("block log is not kept by this node")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.blocks.Read(ctx, string(s.chain), after, limit)
}

func (s *Service) observe(method string, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	s.metrics.QueryRequests.WithLabelValues(method, fault.KindOf(err)).Inc()
	s.metrics.QueryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
