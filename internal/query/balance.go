package query

import (
	"TrueMarket/internal/event"
	"TrueMarket/internal/fault"
	"TrueMarket/internal/storage"
	"TrueMarket/internal/token"
	"context"
	"time"
)

// Balance returns owner's balance of a token application on this chain.
// Unknown owners have a zero balance.
func (s *Service) Balance(ctx context.Context, app event.ApplicationID, owner event.Owner) (resp *BalanceResponse, err error) {
	defer s.observe("Balance", time.Now(), &err)
	if app == "" || owner == "" {
		return nil, fault.Validation("token and owner are required")
	}
	height := s.head.Height()
	bal, err := token.NewLedger(app, storage.Begin(ctx, s.store)).Balance(owner)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{Token: app, Owner: owner, Balance: bal, AsOfHeight: height}, nil
}
