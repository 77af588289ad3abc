package server_test

import (
	"TrueMarket/internal/core"
	"TrueMarket/internal/event"
	"TrueMarket/internal/num"
	"TrueMarket/internal/observability"
	"TrueMarket/internal/query"
	"TrueMarket/internal/server"
	"TrueMarket/internal/storage"
	"TrueMarket/internal/transport"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// --- Test helpers ---

type node struct {
	t      *testing.T
	ctx    context.Context
	conn   *grpc.ClientConn
	client *server.NodeClient
}

// startNode serves a market chain over an in-memory listener.
func startNode(t *testing.T) *node {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := storage.NewMemoryStore()
	chain, err := core.NewChain(ctx, core.Config{ChainID: "market", MarketChain: "market", Application: "truemarket"}, core.Deps{
		Store:  store,
		Outbox: transport.NewLocalNetwork(),
		Logger: zerolog.Nop(),
		Clock:  func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	srv := server.NewGRPCServer("", "", &server.ServerDeps{
		Executor:     chain,
		QueryService: query.NewService("market", "market", store, chain, nil, metrics),
		Metrics:      metrics,
		Logger:       zerolog.Nop(),
	})
	lis := bufconn.Listen(1 << 20)
	go srv.Serve(ctx, lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &node{t: t, ctx: ctx, conn: conn, client: server.NewNodeClient(conn)}
}

func (n *node) submit(kind, signer string, payload any) (*server.SubmitResponse, error) {
	n.t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		n.t.Fatalf("marshal: %v", err)
	}
	return n.client.SubmitOperation(n.ctx, &server.SubmitRequest{Kind: kind, Signer: signer, Payload: data})
}

func (n *node) mustSubmit(kind, signer string, payload any) *server.SubmitResponse {
	n.t.Helper()
	resp, err := n.submit(kind, signer, payload)
	if err != nil {
		n.t.Fatalf("%s: %v", kind, err)
	}
	return resp
}

// seed opens a 100/100 market managed by alice and funds bob with 50.
func (n *node) seed() {
	n.t.Helper()
	n.mustSubmit("TokenMint", "alice", event.TokenMint{Token: "usdc", Owner: "alice", Amount: num.FromUint64(100)})
	n.mustSubmit("CreateMarket", "alice", event.CreateMarket{
		Value:    num.FromUint64(100),
		ClosesAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Outcomes: 2,
		Token:    "usdc",
		Question: "Will it rain?",
		Manager:  "alice",
	})
	n.mustSubmit("TokenMint", "bob", event.TokenMint{Token: "usdc", Owner: "bob", Amount: num.FromUint64(50)})
}

// ============================================================================
// Test: gRPC
// ============================================================================

func TestSubmitOperation_CommitsBlock(t *testing.T) {
	n := startNode(t)
	n.seed()

	resp := n.mustSubmit("Buy", "bob", event.Buy{MarketID: 0, OutcomeID: 0, Value: num.FromUint64(50), Token: "usdc"})
	if resp.Height != 4 || resp.Kind != "operation/Buy" || len(resp.StateHash) != 64 {
		t.Errorf("response: %+v", resp)
	}

	holders, err := n.client.ListHolders(n.ctx, &server.MarketRequest{MarketID: 0})
	if err != nil {
		t.Fatalf("holders: %v", err)
	}
	if len(holders.Holdings) != 1 || holders.Holdings[0].Amount.String() != "83" {
		t.Errorf("holders: %+v", holders.Holdings)
	}
}

func TestSubmitOperation_ErrorCodes(t *testing.T) {
	n := startNode(t)
	n.seed()

	tests := []struct {
		name    string
		kind    string
		signer  string
		payload any
		want    codes.Code
	}{
		{"unknown kind", "Sell", "bob", map[string]int{}, codes.InvalidArgument},
		{"slippage", "Buy", "bob", event.Buy{MarketID: 0, Value: num.FromUint64(50), MinShares: num.FromUint64(84), Token: "usdc"}, codes.Aborted},
		{"not manager", "SetMarketPaused", "bob", event.SetMarketPaused{MarketID: 0, Paused: true}, codes.PermissionDenied},
		{"missing market", "SetMarketPaused", "alice", event.SetMarketPaused{MarketID: 7, Paused: true}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.submit(tt.kind, tt.signer, tt.payload)
			if got := status.Code(err); got != tt.want {
				t.Errorf("code: got %s, want %s (%v)", got, tt.want, err)
			}
		})
	}
}

func TestGetQuoteAndBalance(t *testing.T) {
	n := startNode(t)
	n.seed()

	q, err := n.client.GetQuote(n.ctx, &server.QuoteRequest{MarketID: 0, OutcomeID: 1, Value: num.FromUint64(50)})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Shares.String() != "83" {
		t.Errorf("quote shares: %s", q.Shares)
	}

	bal, err := n.client.GetBalance(n.ctx, &server.BalanceRequest{Token: "usdc", Owner: "bob"})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Balance.String() != "50" {
		t.Errorf("balance: %s", bal.Balance)
	}

	if _, err := n.client.ListBlocks(n.ctx, &server.BlocksRequest{}); status.Code(err) != codes.NotFound {
		t.Errorf("blocks without a log: %v", err)
	}
}

func TestHealthService(t *testing.T) {
	n := startNode(t)
	resp, err := healthpb.NewHealthClient(n.conn).Check(n.ctx, &healthpb.HealthCheckRequest{Service: "truemarket.v1.Node"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status: %s", resp.Status)
	}
}

// ============================================================================
// Test: HTTP gateway
// ============================================================================

func newGateway(t *testing.T, n *node) *httptest.Server {
	t.Helper()
	hc := observability.NewHealthChecker()
	hc.SetReady(true)
	h, err := server.NewGatewayHandler(n.client, hc)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestGateway_Routes(t *testing.T) {
	n := startNode(t)
	ts := newGateway(t, n)

	body, _ := json.Marshal(map[string]any{
		"kind":    "TokenMint",
		"signer":  "alice",
		"payload": event.TokenMint{Token: "usdc", Owner: "alice", Amount: num.FromUint64(100)},
	})
	resp, err := http.Post(ts.URL+"/v1/operations", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d", resp.StatusCode)
	}
	n.mustSubmit("CreateMarket", "alice", event.CreateMarket{
		Value:    num.FromUint64(100),
		ClosesAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Outcomes: 2,
		Token:    "usdc",
		Manager:  "alice",
	})

	var market query.MarketResponse
	if code := getJSON(t, ts.URL+"/v1/markets/0", &market); code != http.StatusOK {
		t.Fatalf("market: status %d", code)
	}
	if market.Market.SharesAvailable.String() != "200" {
		t.Errorf("shares available: %s", market.Market.SharesAvailable)
	}

	var quote query.QuoteResponse
	if code := getJSON(t, ts.URL+"/v1/markets/0/quote?outcome=0&value=50", &quote); code != http.StatusOK || quote.Shares.String() != "83" {
		t.Errorf("quote: status %d shares %s", code, quote.Shares)
	}

	var bal query.BalanceResponse
	if code := getJSON(t, ts.URL+"/v1/balances/usdc?owner=app:truemarket", &bal); code != http.StatusOK || bal.Balance.String() != "100" {
		t.Errorf("custody balance: status %d balance %s", code, bal.Balance)
	}

	var st query.ChainStatus
	if code := getJSON(t, ts.URL+"/v1/status", &st); code != http.StatusOK || st.Height != 2 {
		t.Errorf("status: %d %+v", code, st)
	}
}

func TestGateway_Errors(t *testing.T) {
	n := startNode(t)
	ts := newGateway(t, n)

	var e struct {
		Kind string `json:"kind"`
	}
	if code := getJSON(t, ts.URL+"/v1/markets/9", &e); code != http.StatusNotFound || e.Kind != "not_found" {
		t.Errorf("missing market: status %d kind %q", code, e.Kind)
	}
	if code := getJSON(t, ts.URL+"/v1/markets/x", &e); code != http.StatusBadRequest || e.Kind != "validation" {
		t.Errorf("bad id: status %d kind %q", code, e.Kind)
	}
	if code := getJSON(t, ts.URL+"/v1/markets/0/quote?outcome=0&value=1x", &e); code != http.StatusBadRequest {
		t.Errorf("bad value: status %d", code)
	}
	if code := getJSON(t, ts.URL+"/healthz", nil); code != http.StatusOK {
		t.Errorf("healthz: %d", code)
	}
	if code := getJSON(t, ts.URL+"/readyz", nil); code != http.StatusOK {
		t.Errorf("readyz: %d", code)
	}
}
