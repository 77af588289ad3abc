package server

import (
	"TrueMarket/internal/num"
	"TrueMarket/internal/persistence"
	"TrueMarket/internal/query"
	"TrueMarket/internal/state"
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	serviceName = "truemarket.v1.Node"
	codecName   = "json"
)

// The node API carries plain JSON messages. Clients select the codec with
// grpc.CallContentSubtype(codecName), which NodeClient does for them.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// --- Messages ---

type Empty struct{}

// SubmitRequest carries one operation in its wire form. Signer is the
// authenticated owner the operation executes as.
type SubmitRequest struct {
	Kind    string          `json:"kind"`
	Signer  string          `json:"signer"`
	Payload json.RawMessage `json:"payload"`
}

// SubmitResponse describes the block the operation committed.
type SubmitResponse struct {
	BlockID   string `json:"block_id"`
	Height    uint64 `json:"height"`
	Kind      string `json:"kind"`
	StateHash string `json:"state_hash"`
	Outgoing  int    `json:"outgoing"`
}

type MarketRequest struct {
	MarketID uint64 `json:"market_id"`
}

type MarketsResponse struct {
	Markets []*state.Market `json:"markets"`
}

type QuoteRequest struct {
	MarketID  uint64   `json:"market_id"`
	OutcomeID uint32   `json:"outcome_id"`
	Value     num.U128 `json:"value"`
}

type BalanceRequest struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
}

type BlocksRequest struct {
	After uint64 `json:"after"`
	Limit int    `json:"limit"`
}

type BlocksResponse struct {
	Blocks []persistence.BlockRow `json:"blocks"`
}

// NodeServer is the gRPC surface of a chain node.
type NodeServer interface {
	SubmitOperation(context.Context, *SubmitRequest) (*SubmitResponse, error)
	GetStatus(context.Context, *Empty) (*query.ChainStatus, error)
	GetMarket(context.Context, *MarketRequest) (*query.MarketResponse, error)
	ListMarkets(context.Context, *Empty) (*MarketsResponse, error)
	GetQuote(context.Context, *QuoteRequest) (*query.QuoteResponse, error)
	ListHolders(context.Context, *MarketRequest) (*query.HoldingsResponse, error)
	GetMyShares(context.Context, *MarketRequest) (*query.HoldingsResponse, error)
	GetBalance(context.Context, *BalanceRequest) (*query.BalanceResponse, error)
	ListBlocks(context.Context, *BlocksRequest) (*BlocksResponse, error)
}

// NodeServiceDesc registers a NodeServer on a grpc.Server.
var NodeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitOperation", NodeServer.SubmitOperation),
		unary("GetStatus", NodeServer.GetStatus),
		unary("GetMarket", NodeServer.GetMarket),
		unary("ListMarkets", NodeServer.ListMarkets),
		unary("GetQuote", NodeServer.GetQuote),
		unary("ListHolders", NodeServer.ListHolders),
		unary("GetMyShares", NodeServer.GetMyShares),
		unary("GetBalance", NodeServer.GetBalance),
		unary("ListBlocks", NodeServer.ListBlocks),
	},
	Streams: []grpc.StreamDesc{},
}

func unary[Req, Resp any](name string, call func(NodeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(NodeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(NodeServer), ctx, req.(*Req))
			})
		},
	}
}

// NodeClient calls a node over gRPC.
type NodeClient struct {
	cc grpc.ClientConnInterface
}

func NewNodeClient(cc grpc.ClientConnInterface) *NodeClient {
	return &NodeClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NodeClient) SubmitOperation(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error) {
	return invoke[SubmitResponse](ctx, c.cc, "SubmitOperation", in, opts)
}

func (c *NodeClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*query.ChainStatus, error) {
	return invoke[query.ChainStatus](ctx, c.cc, "GetStatus", &Empty{}, opts)
}

func (c *NodeClient) GetMarket(ctx context.Context, in *MarketRequest, opts ...grpc.CallOption) (*query.MarketResponse, error) {
	return invoke[query.MarketResponse](ctx, c.cc, "GetMarket", in, opts)
}

func (c *NodeClient) ListMarkets(ctx context.Context, opts ...grpc.CallOption) (*MarketsResponse, error) {
	return invoke[MarketsResponse](ctx, c.cc, "ListMarkets", &Empty{}, opts)
}

func (c *NodeClient) GetQuote(ctx context.Context, in *QuoteRequest, opts ...grpc.CallOption) (*query.QuoteResponse, error) {
	return invoke[query.QuoteResponse](ctx, c.cc, "GetQuote", in, opts)
}

func (c *NodeClient) ListHolders(ctx context.Context, in *MarketRequest, opts ...grpc.CallOption) (*query.HoldingsResponse, error) {
	return invoke[query.HoldingsResponse](ctx, c.cc, "ListHolders", in, opts)
}

func (c *NodeClient) GetMyShares(ctx context.Context, in *MarketRequest, opts ...grpc.CallOption) (*query.HoldingsResponse, error) {
	return invoke[query.HoldingsResponse](ctx, c.cc, "GetMyShares", in, opts)
}

func (c *NodeClient) GetBalance(ctx context.Context, in *BalanceRequest, opts ...grpc.CallOption) (*query.BalanceResponse, error) {
	return invoke[query.BalanceResponse](ctx, c.cc, "GetBalance", in, opts)
}

func (c *NodeClient) ListBlocks(ctx context.Context, in *BlocksRequest, opts ...grpc.CallOption) (*BlocksResponse, error) {
	return invoke[BlocksResponse](ctx, c.cc, "ListBlocks", in, opts)
}
