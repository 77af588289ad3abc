package core

import (
	"TrueMarket/internal/event"
	"TrueMarket/internal/fault"
	"TrueMarket/internal/ledger"
	"TrueMarket/internal/num"
	"TrueMarket/internal/state"
	"TrueMarket/internal/storage"
	"TrueMarket/internal/token"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// execution is the state of one running handler. It implements token.Sender
// so token transfers can queue their Credit messages with the rest.
type execution struct {
	cfg      Config
	tx       *storage.Tx
	now      time.Time
	signer   event.Owner
	origin   event.ChainID
	outgoing []event.MessageEnvelope
	log      zerolog.Logger

	// applied to metrics only when the block commits
	effects struct {
		trades         []string
		receipts       []string
		marketsCreated int
	}
}

func (x *execution) Send(target event.ChainID, msg event.Message) {
	x.outgoing = append(x.outgoing, event.MessageEnvelope{Target: target, Message: msg})
}

func (x *execution) onMarketChain() bool {
	return x.cfg.ChainID == x.cfg.MarketChain
}

// call is the token call context of the market application: the block's
// signer plus the application's own custody identity.
func (x *execution) call() token.Call {
	return token.Call{Chain: x.cfg.ChainID, Signer: x.signer, Caller: x.cfg.Application.Owner()}
}

func (x *execution) custody(chain event.ChainID) event.Account {
	return event.Account{Chain: chain, Owner: x.cfg.Application.Owner()}
}

func (x *execution) handleOperation(op event.Operation) error {
	switch op := op.(type) {
	case *event.CreateMarket:
		return x.createMarket(op)
	case *event.Buy:
		return x.buy(op)
	case *event.SetMarketPaused:
		return x.setMarketPaused(op)
	case *event.TokenTransfer:
		return x.tokenTransfer(op)
	case *event.TokenMint:
		return x.tokenMint(op)
	default:
		panic(fmt.Sprintf("FATAL: unhandled operation type %T", op))
	}
}

func (x *execution) handleMessage(msg event.Message) error {
	switch msg := msg.(type) {
	case *event.BuyInstruction:
		return x.executeInstruction(msg)
	case *event.ShareMinted:
		return x.creditReceipt(msg)
	case *event.TokenCredit:
		return token.NewLedger(msg.Token, x.tx).Credit(msg.Owner, msg.Amount)
	default:
		panic(fmt.Sprintf("FATAL: unhandled message type %T", msg))
	}
}

// --- Market lifecycle ---

func (x *execution) createMarket(op *event.CreateMarket) error {
	if !x.onMarketChain() {
		return fault.Validation("markets are created on %s, not %s", x.cfg.MarketChain, x.cfg.ChainID)
	}
	if x.signer == "" {
		return fault.Authentication("create market requires a signer")
	}
	if err := state.ValidateCreate(op, x.now); err != nil {
		return err
	}

	id, err := state.MarketIndex(x.tx)
	if err != nil {
		return err
	}
	m, err := state.NewMarket(id, x.signer, op)
	if err != nil {
		return err
	}

	tokens := token.NewLedger(op.Token, x.tx)
	if err := tokens.Transfer(x.call(), x.signer, op.Value, x.custody(x.cfg.ChainID), x); err != nil {
		return fmt.Errorf("pull creator collateral: %w", err)
	}

	mustHoldInvariants(nil, m)
	if err := state.SaveMarket(x.tx, m); err != nil {
		return err
	}
	if err := state.SetMarketIndex(x.tx, id+1); err != nil {
		return err
	}

	x.effects.marketsCreated++
	x.log.Info().
		Uint64("market_id", id).
		Uint32("outcomes", m.OutcomeCount).
		Str("liquidity", m.Liquidity.String()).
		Str("creator", string(x.signer)).
		Msg("market created")
	return nil
}

func (x *execution) setMarketPaused(op *event.SetMarketPaused) error {
	if !x.onMarketChain() {
		return fault.Validation("market %d is managed on %s, not %s", op.MarketID, x.cfg.MarketChain, x.cfg.ChainID)
	}
	m, err := state.LoadMarket(x.tx, op.MarketID)
	if err != nil {
		return err
	}
	if err := m.SetPaused(x.signer, op.Paused); err != nil {
		return err
	}
	return state.SaveMarket(x.tx, m)
}

// --- Settlement ---

// buy picks the local path on the market chain and the remote path anywhere
// else.
func (x *execution) buy(op *event.Buy) error {
	if x.signer == "" {
		return fault.Authentication("buy requires a signer")
	}
	if x.onMarketChain() {
		return x.buyLocal(op)
	}
	return x.buyRemote(op)
}

// buyLocal pulls the buyer's funds into custody, trades, and credits the
// receipt on this chain.
func (x *execution) buyLocal(op *event.Buy) error {
	m, err := state.LoadMarket(x.tx, op.MarketID)
	if err != nil {
		return err
	}
	if op.Token != "" && op.Token != m.Token {
		return fault.Validation("market %d settles in %s, not %s", m.ID, m.Token, op.Token)
	}

	tokens := token.NewLedger(m.Token, x.tx)
	if err := tokens.Transfer(x.call(), x.signer, op.Value, x.custody(x.cfg.ChainID), x); err != nil {
		return fmt.Errorf("pull buyer funds: %w", err)
	}

	shares, err := x.trade(m, op.OutcomeID, op.Value, op.MinShares, x.signer)
	if err != nil {
		return err
	}
	if _, err := ledger.NewShareLedger(x.tx).RecordLocalReceipt(m.ID, op.OutcomeID, shares); err != nil {
		return err
	}

	x.effects.trades = append(x.effects.trades, "local")
	x.effects.receipts = append(x.effects.receipts, "local")
	return nil
}

// buyRemote pushes the funds to custody on the market chain and sends the
// instruction after them. Both travel on the same channel, so the credit is
// handled first.
func (x *execution) buyRemote(op *event.Buy) error {
	if op.Token == "" {
		return fault.Validation("remote buy of market %d needs the collateral token", op.MarketID)
	}

	tokens := token.NewLedger(op.Token, x.tx)
	if err := tokens.Transfer(x.call(), x.signer, op.Value, x.custody(x.cfg.MarketChain), x); err != nil {
		return fmt.Errorf("push buyer funds: %w", err)
	}

	x.Send(x.cfg.MarketChain, &event.BuyInstruction{
		MarketID:    op.MarketID,
		OutcomeID:   op.OutcomeID,
		MinShares:   op.MinShares,
		Owner:       x.signer,
		Value:       op.Value,
		ReturnChain: x.cfg.ChainID,
	})

	x.log.Debug().
		Uint64("market_id", op.MarketID).
		Uint32("outcome_id", op.OutcomeID).
		Str("value", op.Value.String()).
		Msg("remote buy sent")
	return nil
}

// executeInstruction runs a remote buy on the market chain. The funds already
// sit in custody.
func (x *execution) executeInstruction(msg *event.BuyInstruction) error {
	if !x.onMarketChain() {
		return fault.Validation("buy instruction for market %d delivered to %s, not %s",
			msg.MarketID, x.cfg.ChainID, x.cfg.MarketChain)
	}
	if msg.Owner == "" || x.signer != msg.Owner {
		return fault.Authentication("buy instruction for %s signed by %q", msg.Owner, x.signer)
	}

	m, err := state.LoadMarket(x.tx, msg.MarketID)
	if err != nil {
		return err
	}
	shares, err := x.trade(m, msg.OutcomeID, msg.Value, msg.MinShares, msg.Owner)
	if err != nil {
		return err
	}
	x.effects.trades = append(x.effects.trades, "remote")

	if msg.ReturnChain == x.cfg.ChainID {
		if _, err := ledger.NewShareLedger(x.tx).RecordLocalReceipt(m.ID, msg.OutcomeID, shares); err != nil {
			return err
		}
		x.effects.receipts = append(x.effects.receipts, "local")
		return nil
	}

	x.Send(msg.ReturnChain, &event.ShareMinted{MarketID: m.ID, OutcomeID: msg.OutcomeID, Amount: shares})
	return nil
}

// creditReceipt accepts a receipt only from the market chain.
func (x *execution) creditReceipt(msg *event.ShareMinted) error {
	if x.origin != x.cfg.MarketChain {
		return fault.Authentication("forged receipt: market %d receipt from %s, market chain is %s",
			msg.MarketID, x.origin, x.cfg.MarketChain)
	}
	if _, err := ledger.NewShareLedger(x.tx).RecordLocalReceipt(msg.MarketID, msg.OutcomeID, msg.Amount); err != nil {
		return err
	}
	x.effects.receipts = append(x.effects.receipts, "remote")
	return nil
}

// trade applies a buy to m on the market chain: AMM and fees, fee payouts,
// the owner's ledger entry and the market record.
func (x *execution) trade(m *state.Market, outcome uint32, value, minShares num.U128, owner event.Owner) (num.U128, error) {
	before := m.Clone()
	t, err := m.ApplyBuy(outcome, value, minShares)
	if err != nil {
		return num.Zero, err
	}
	mustHoldInvariants(before, m)

	if err := x.payFee(m, m.Treasury, t.Fees.Treasury, "treasury"); err != nil {
		return num.Zero, err
	}
	if err := x.payFee(m, m.Distributor, t.Fees.Distributor, "distributor"); err != nil {
		return num.Zero, err
	}

	if _, err := ledger.NewShareLedger(x.tx).RecordPurchase(m.ID, outcome, owner, t.Shares); err != nil {
		return num.Zero, err
	}
	if err := state.SaveMarket(x.tx, m); err != nil {
		return num.Zero, err
	}

	x.log.Info().
		Uint64("market_id", m.ID).
		Uint32("outcome_id", outcome).
		Str("owner", string(owner)).
		Str("value", value.String()).
		Str("shares", t.Shares.String()).
		Str("protocol_fee", t.Fees.Protocol.String()).
		Msg("trade executed")
	return t.Shares, nil
}

// payFee moves a non-zero fee from custody to recipient on this chain.
func (x *execution) payFee(m *state.Market, recipient event.Owner, amount num.U128, role string) error {
	if amount.IsZero() {
		return nil
	}
	if recipient == "" {
		return fault.Validation("market %d charges a %s fee but has no %s", m.ID, role, role)
	}
	tokens := token.NewLedger(m.Token, x.tx)
	target := event.Account{Chain: x.cfg.ChainID, Owner: recipient}
	if err := tokens.Transfer(x.call(), x.cfg.Application.Owner(), amount, target, x); err != nil {
		return fmt.Errorf("pay %s fee: %w", role, err)
	}
	return nil
}

// mustHoldInvariants panics when a mutation that succeeded left the market
// inconsistent.
func mustHoldInvariants(before, after *state.Market) {
	if err := after.CheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}
	if before == nil {
		return
	}
	if err := state.CheckTotalsGrew(before, after); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}
}

// --- Token application ---

// tokenTransfer is a direct user call, so only the signer authorizes it.
func (x *execution) tokenTransfer(op *event.TokenTransfer) error {
	if op.Target.Owner == "" {
		return fault.Validation("transfer target owner is required")
	}
	target := op.Target
	if target.Chain == "" {
		target.Chain = x.cfg.ChainID
	}
	call := token.Call{Chain: x.cfg.ChainID, Signer: x.signer}
	return token.NewLedger(op.Token, x.tx).Transfer(call, op.Owner, op.Amount, target, x)
}

func (x *execution) tokenMint(op *event.TokenMint) error {
	if op.Owner == "" {
		return fault.Validation("mint owner is required")
	}
	if op.Token == "" {
		return fault.Validation("mint token is required")
	}
	return token.NewLedger(op.Token, x.tx).Mint(op.Owner, op.Amount)
}
