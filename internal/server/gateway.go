package server

import (
	"TrueMarket/internal/num"
	"TrueMarket/internal/observability"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxBodyBytes = 1 << 20

type gateway struct {
	client *NodeClient
}

// NewGatewayHandler maps the HTTP/JSON routes onto the node's gRPC methods
// and adds /healthz and /readyz.
func NewGatewayHandler(client *NodeClient, hc *observability.HealthChecker) (http.Handler, error) {
	gw := &gateway{client: client}
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/operations", gw.submit},
		{http.MethodGet, "/v1/status", gw.status},
		{http.MethodGet, "/v1/markets", gw.markets},
		{http.MethodGet, "/v1/markets/{market_id}", gw.market},
		{http.MethodGet, "/v1/markets/{market_id}/quote", gw.quote},
		{http.MethodGet, "/v1/markets/{market_id}/holders", gw.holders},
		{http.MethodGet, "/v1/shares/{market_id}", gw.shares},
		// owner goes in the query string; custody owners contain ':'.
		{http.MethodGet, "/v1/balances/{token}", gw.balance},
		{http.MethodGet, "/v1/blocks", gw.blocks},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	if hc != nil {
		httpMux.HandleFunc("/healthz", hc.LivenessHandler)
		httpMux.HandleFunc("/readyz", hc.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	httpMux.Handle("/", mux)
	return httpMux, nil
}

func (g *gateway) submit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeBadRequest(w, "decode body: %v", err)
		return
	}
	resp, err := g.client.SubmitOperation(r.Context(), &req)
	reply(w, resp, err)
}

func (g *gateway) status(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.client.GetStatus(r.Context())
	reply(w, resp, err)
}

func (g *gateway) markets(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.client.ListMarkets(r.Context())
	reply(w, resp, err)
}

func (g *gateway) market(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := marketID(w, params)
	if !ok {
		return
	}
	resp, err := g.client.GetMarket(r.Context(), &MarketRequest{MarketID: id})
	reply(w, resp, err)
}

func (g *gateway) quote(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := marketID(w, params)
	if !ok {
		return
	}
	q := r.URL.Query()
	outcome, err := strconv.ParseUint(q.Get("outcome"), 10, 32)
	if err != nil {
		writeBadRequest(w, "outcome: %v", err)
		return
	}
	value, err := num.Parse(q.Get("value"))
	if err != nil {
		writeBadRequest(w, "value: %v", err)
		return
	}
	resp, err := g.client.GetQuote(r.Context(), &QuoteRequest{MarketID: id, OutcomeID: uint32(outcome), Value: value})
	reply(w, resp, err)
}

func (g *gateway) holders(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := marketID(w, params)
	if !ok {
		return
	}
	resp, err := g.client.ListHolders(r.Context(), &MarketRequest{MarketID: id})
	reply(w, resp, err)
}

func (g *gateway) shares(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := marketID(w, params)
	if !ok {
		return
	}
	resp, err := g.client.GetMyShares(r.Context(), &MarketRequest{MarketID: id})
	reply(w, resp, err)
}

func (g *gateway) balance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	resp, err := g.client.GetBalance(r.Context(), &BalanceRequest{
		Token: params["token"],
		Owner: r.URL.Query().Get("owner"),
	})
	reply(w, resp, err)
}

func (g *gateway) blocks(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	var req BlocksRequest
	if s := q.Get("after"); s != "" {
		after, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeBadRequest(w, "after: %v", err)
			return
		}
		req.After = after
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			writeBadRequest(w, "limit: %v", err)
			return
		}
		req.Limit = limit
	}
	resp, err := g.client.ListBlocks(r.Context(), &req)
	reply(w, resp, err)
}

// --- helpers ---

func marketID(w http.ResponseWriter, params map[string]string) (uint64, bool) {
	id, err := strconv.ParseUint(params["market_id"], 10, 64)
	if err != nil {
		writeBadRequest(w, "market_id: %v", err)
		return 0, false
	}
	return id, true
}

type errorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func reply(w http.ResponseWriter, resp any, err error) {
	if err != nil {
		st := status.Convert(err)
		writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), errorBody{
			Code:    st.Code().String(),
			Kind:    kindFromCode(st.Code()),
			Message: st.Message(),
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeBadRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Code:    codes.InvalidArgument.String(),
		Kind:    "validation",
		Message: fmt.Sprintf(format, args...),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
