// Package token is the fungible-token application every chain hosts. It holds
// balances per owner and moves them between chains with Credit messages.
package token

import (
	"TrueMarket/internal/event"
	"TrueMarket/internal/fault"
	"TrueMarket/internal/num"
	"TrueMarket/internal/storage"
	"fmt"
	"net/url"
)

// Sender queues an outgoing message from the current handler.
type Sender interface {
	Send(target event.ChainID, msg event.Message)
}

// Call identifies who is invoking the token application.
type Call struct {
	// Chain executing the call
	Chain event.ChainID
	// Authenticated signer of the block, empty when there is none
	Signer event.Owner
	// Custody identity of the calling application, empty for direct user calls
	Caller event.Owner
}

// Ledger is the balance book of one token application on one chain.
type Ledger struct {
	app event.ApplicationID
	tx  *storage.Tx
}

func NewLedger(app event.ApplicationID, tx *storage.Tx) *Ledger {
	return &Ledger{app: app, tx: tx}
}

func (l *Ledger) App() event.ApplicationID { return l.app }

func balanceKey(app event.ApplicationID, owner event.Owner) string {
	return fmt.Sprintf("token/%s/balances/%s", url.PathEscape(string(app)), url.PathEscape(string(owner)))
}

func (l *Ledger) Balance(owner event.Owner) (num.U128, error) {
	var v num.U128
	if _, err := storage.GetJSON(l.tx, balanceKey(l.app, owner), &v); err != nil {
		return num.Zero, err
	}
	return v, nil
}

// Credit adds amount to owner, saturating at the maximum.
func (l *Ledger) Credit(owner event.Owner, amount num.U128) error {
	bal, err := l.Balance(owner)
	if err != nil {
		return err
	}
	return storage.PutJSON(l.tx, balanceKey(l.app, owner), bal.SaturatingAdd(amount))
}

// Debit removes amount from owner, failing when the balance is short.
func (l *Ledger) Debit(owner event.Owner, amount num.U128) error {
	bal, err := l.Balance(owner)
	if err != nil {
		return err
	}
	next, err := bal.Sub(amount)
	if err != nil {
		return fault.Validation("insufficient %s balance for %s: have %s, need %s", l.app, owner, bal, amount)
	}
	return storage.PutJSON(l.tx, balanceKey(l.app, owner), next)
}

// Transfer debits owner on the calling chain and credits target, locally or
// through a Credit message when target is on another chain. The call must be
// signed by owner, or made by the application that owner identifies.
func (l *Ledger) Transfer(call Call, owner event.Owner, amount num.U128, target event.Account, send Sender) error {
	if !authorized(call, owner) {
		return fault.Authentication("transfer from %s not authorized (signer=%q caller=%q)", owner, call.Signer, call.Caller)
	}
	if err := l.Debit(owner, amount); err != nil {
		return err
	}
	if target.Chain == call.Chain {
		return l.Credit(target.Owner, amount)
	}
	send.Send(target.Chain, &event.TokenCredit{Token: l.app, Owner: target.Owner, Amount: amount})
	return nil
}

// Mint credits amount to owner. Minting is open.
func (l *Ledger) Mint(owner event.Owner, amount num.U128) error {
	return l.Credit(owner, amount)
}

func authorized(call Call, owner event.Owner) bool {
	if owner == "" {
		return false
	}
	return owner == call.Signer || owner == call.Caller
}
