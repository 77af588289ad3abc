package server

import (
	"TrueMarket/internal/core"
	"TrueMarket/internal/event"
	"TrueMarket/internal/fault"
	"TrueMarket/internal/observability"
	"TrueMarket/internal/query"
	"TrueMarket/internal/transport"
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Executor runs operations on the local chain. *core.Chain implements it.
type Executor interface {
	ExecuteOperation(ctx context.Context, signer event.Owner, op event.Operation) (core.Block, error)
}

type nodeService struct {
	exec    Executor
	qs      *query.Service
	log     zerolog.Logger
	metrics *observability.Metrics
}

func (s *nodeService) SubmitOperation(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	start := time.Now()
	op, err := transport.DecodeOperation(req.Kind, req.Payload)
	if err != nil {
		s.record("SubmitOperation", start, fault.Validation("%v", err))
		return nil, status.Errorf(codes.InvalidArgument, "decode operation: %v", err)
	}

	b, err := s.exec.ExecuteOperation(ctx, event.Owner(req.Signer), op)
	s.record("SubmitOperation", start, err)
	if err != nil {
		s.log.Debug().Err(err).Str("kind", req.Kind).Str("signer", req.Signer).Msg("operation rejected")
		return nil, statusFromError(err)
	}
	return &SubmitResponse{
		BlockID:   b.ID.String(),
		Height:    b.Height,
		Kind:      b.Kind,
		StateHash: hex.EncodeToString(b.StateHash[:]),
		Outgoing:  len(b.Outgoing),
	}, nil
}

func (s *nodeService) GetStatus(ctx context.Context, _ *Empty) (*query.ChainStatus, error) {
	st, err := s.qs.Status(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &st, nil
}

func (s *nodeService) GetMarket(ctx context.Context, req *MarketRequest) (*query.MarketResponse, error) {
	resp, err := s.qs.Market(ctx, req.MarketID)
	if err != nil {
		return nil, statusFromError(err)
	}
	return resp, nil
}

func (s *nodeService) ListMarkets(ctx context.Context, _ *Empty) (*MarketsResponse, error) {
	markets, err := s.qs.Markets(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &MarketsResponse{Markets: markets}, nil
}

func (s *nodeService) GetQuote(ctx context.Context, req *QuoteRequest) (*query.QuoteResponse, error) {
	resp, err := s.qs.Quote(ctx, req.MarketID, req.OutcomeID, req.Value)
	if err != nil {
		return nil, statusFromError(err)
	}
	return resp, nil
}

func (s *nodeService) ListHolders(ctx context.Context, req *MarketRequest) (*query.HoldingsResponse, error) {
	resp, err := s.qs.Holders(ctx, req.MarketID)
	if err != nil {
		return nil, statusFromError(err)
	}
	return resp, nil
}

func (s *nodeService) GetMyShares(ctx context.Context, req *MarketRequest) (*query.HoldingsResponse, error) {
	resp, err := s.qs.MyShares(ctx, req.MarketID)
	if err != nil {
		return nil, statusFromError(err)
	}
	return resp, nil
}

func (s *nodeService) GetBalance(ctx context.Context, req *BalanceRequest) (*query.BalanceResponse, error) {
	resp, err := s.qs.Balance(ctx, event.ApplicationID(req.Token), event.Owner(req.Owner))
	if err != nil {
		return nil, statusFromError(err)
	}
	return resp, nil
}

func (s *nodeService) ListBlocks(ctx context.Context, req *BlocksRequest) (*BlocksResponse, error) {
	rows, err := s.qs.Blocks(ctx, req.After, req.Limit)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &BlocksResponse{Blocks: rows}, nil
}

func (s *nodeService) record(method string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryRequests.WithLabelValues(method, fault.KindOf(err)).Inc()
	s.metrics.QueryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// statusFromError maps a handler fault to a gRPC status.
func statusFromError(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, fault.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, fault.ErrAuthentication):
		code = codes.PermissionDenied
	case errors.Is(err, fault.ErrSlippage):
		code = codes.Aborted
	case errors.Is(err, fault.ErrArithmetic):
		code = codes.OutOfRange
	case errors.Is(err, fault.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// kindFromCode is the inverse of statusFromError for HTTP error bodies.
func kindFromCode(code codes.Code) string {
	switch code {
	case codes.InvalidArgument:
		return "validation"
	case codes.PermissionDenied:
		return "authentication"
	case codes.Aborted:
		return "slippage"
	case codes.OutOfRange:
		return "arithmetic"
	case codes.NotFound:
		return "not_found"
	default:
		return "internal"
	}
}
