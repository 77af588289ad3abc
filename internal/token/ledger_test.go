package token_test

import (
	"TrueMarket/internal/event"
	"TrueMarket/internal/fault"
	"TrueMarket/internal/num"
	"TrueMarket/internal/storage"
	"TrueMarket/internal/token"
	"context"
	"errors"
	"testing"
)

type sent struct {
	target event.ChainID
	msg    event.Message
}

type recorder struct{ msgs []sent }

func (r *recorder) Send(target event.ChainID, msg event.Message) {
	r.msgs = append(r.msgs, sent{target: target, msg: msg})
}

func newTokenLedger(t *testing.T) *token.Ledger {
	t.Helper()
	l := token.NewLedger("usdc", storage.Begin(context.Background(), storage.NewMemoryStore()))
	if err := l.Mint("alice", num.FromUint64(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return l
}

func balance(t *testing.T, l *token.Ledger, owner event.Owner) string {
	t.Helper()
	b, err := l.Balance(owner)
	if err != nil {
		t.Fatalf("balance %s: %v", owner, err)
	}
	return b.String()
}

func TestTransfer_SameChain(t *testing.T) {
	l := newTokenLedger(t)
	r := &recorder{}
	call := token.Call{Chain: "user", Signer: "alice"}

	err := l.Transfer(call, "alice", num.FromUint64(300), event.Account{Chain: "user", Owner: "bob"}, r)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := balance(t, l, "alice"); got != "700" {
		t.Errorf("alice: got %s, want 700", got)
	}
	if got := balance(t, l, "bob"); got != "300" {
		t.Errorf("bob: got %s, want 300", got)
	}
	if len(r.msgs) != 0 {
		t.Errorf("local transfer sent %d messages", len(r.msgs))
	}
}

func TestTransfer_CrossChainSendsCredit(t *testing.T) {
	l := newTokenLedger(t)
	r := &recorder{}
	call := token.Call{Chain: "user", Signer: "alice"}
	custody := event.ApplicationID("truemarket").Owner()

	err := l.Transfer(call, "alice", num.FromUint64(50), event.Account{Chain: "market", Owner: custody}, r)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := balance(t, l, "alice"); got != "950" {
		t.Errorf("alice: got %s, want 950", got)
	}
	if len(r.msgs) != 1 || r.msgs[0].target != "market" {
		t.Fatalf("got %+v, want one message to market", r.msgs)
	}
	credit, ok := r.msgs[0].msg.(*event.TokenCredit)
	if !ok {
		t.Fatalf("got %T, want *event.TokenCredit", r.msgs[0].msg)
	}
	if credit.Owner != custody || credit.Amount.String() != "50" || credit.Token != "usdc" {
		t.Errorf("got %+v", credit)
	}
}

func TestTransfer_Authorization(t *testing.T) {
	l := newTokenLedger(t)
	r := &recorder{}
	to := event.Account{Chain: "user", Owner: "bob"}

	err := l.Transfer(token.Call{Chain: "user", Signer: "mallory"}, "alice", num.FromUint64(1), to, r)
	if !errors.Is(err, fault.ErrAuthentication) {
		t.Errorf("foreign signer: got %v, want authentication fault", err)
	}

	custody := event.ApplicationID("truemarket").Owner()
	_ = l.Mint(custody, num.FromUint64(10))
	err = l.Transfer(token.Call{Chain: "user", Signer: "alice", Caller: custody}, custody, num.FromUint64(10), to, r)
	if err != nil {
		t.Errorf("application moving its own custody: %v", err)
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	l := newTokenLedger(t)
	err := l.Transfer(token.Call{Chain: "user", Signer: "alice"}, "alice", num.FromUint64(1_001),
		event.Account{Chain: "user", Owner: "bob"}, &recorder{})
	if !errors.Is(err, fault.ErrValidation) {
		t.Errorf("got %v, want validation fault", err)
	}
}

func TestCredit_Saturates(t *testing.T) {
	l := newTokenLedger(t)
	if err := l.Credit("alice", num.Max()); err != nil {
		t.Fatalf("credit: %v", err)
	}
	b, _ := l.Balance("alice")
	if b.Cmp(num.Max()) != 0 {
		t.Errorf("got %s, want max", b)
	}
}
