package ledger

import (
	"TrueMarket/internal/event"
	"TrueMarket/internal/num"
	"TrueMarket/internal/state"
	"TrueMarket/internal/storage"
	"fmt"
	"net/url"
	"strings"
)

const (
	marketSharesPrefix = "truemarket/market_shares/"
	mySharesPrefix     = "truemarket/my_shares/"
)

// MarketSharesKey is the global ledger key for (market, outcome, owner).
// Owners are path-escaped so that '/' in an identity cannot collide.
func MarketSharesKey(market uint64, outcome uint32, owner event.Owner) string {
	return fmt.Sprintf("%s%020d/%02d/%s", marketSharesPrefix, market, outcome, url.PathEscape(string(owner)))
}

// MySharesKey is the local receipt cache key for (market, outcome).
func MySharesKey(market uint64, outcome uint32) string {
	return fmt.Sprintf("%s%020d/%02d", mySharesPrefix, market, outcome)
}

// ShareLedger tracks cumulative purchased shares. The global entries live on
// the market chain; the receipt cache lives on whichever chain bought.
// Entries are only ever incremented.
type ShareLedger struct {
	tx *storage.Tx
}

func NewShareLedger(tx *storage.Tx) *ShareLedger {
	return &ShareLedger{tx: tx}
}

// RecordPurchase adds delta to the (market, outcome, owner) entry, creating it
// at zero if absent. Overflow is an arithmetic fault.
func (l *ShareLedger) RecordPurchase(market uint64, outcome uint32, owner event.Owner, delta num.U128) (num.U128, error) {
	return l.add(MarketSharesKey(market, outcome, owner), delta)
}

// RecordLocalReceipt adds delta to the local (market, outcome) receipt entry.
func (l *ShareLedger) RecordLocalReceipt(market uint64, outcome uint32, delta num.U128) (num.U128, error) {
	return l.add(MySharesKey(market, outcome), delta)
}

func (l *ShareLedger) add(key string, delta num.U128) (num.U128, error) {
	current, err := l.read(key)
	if err != nil {
		return num.Zero, err
	}
	next, err := current.Add(delta)
	if err != nil {
		return num.Zero, fmt.Errorf("share overflow at %s: %w", key, err)
	}
	if err := storage.PutJSON(l.tx, key, next); err != nil {
		return num.Zero, err
	}
	return next, nil
}

func (l *ShareLedger) read(key string) (num.U128, error) {
	var v num.U128
	if _, err := storage.GetJSON(l.tx, key, &v); err != nil {
		return num.Zero, err
	}
	return v, nil
}

// Purchased returns the global entry for (market, outcome, owner).
func (l *ShareLedger) Purchased(market uint64, outcome uint32, owner event.Owner) (num.U128, error) {
	return l.read(MarketSharesKey(market, outcome, owner))
}

// LocalReceipt returns the local receipt entry for (market, outcome).
func (l *ShareLedger) LocalReceipt(market uint64, outcome uint32) (num.U128, error) {
	return l.read(MySharesKey(market, outcome))
}

// Holding is one non-zero ledger entry.
type Holding struct {
	MarketID  uint64      `json:"market_id"`
	OutcomeID uint32      `json:"outcome_id"`
	Owner     event.Owner `json:"owner,omitempty"`
	Amount    num.U128    `json:"amount"`
}

// LocalReceipts returns the non-zero receipt entries for market. Every
// possible outcome slot is checked, since the buying chain does not hold the
// market record and cannot know its outcome count.
func (l *ShareLedger) LocalReceipts(market uint64) ([]Holding, error) {
	var out []Holding
	for outcome := uint32(0); outcome < state.MaxOutcomes; outcome++ {
		amount, err := l.LocalReceipt(market, outcome)
		if err != nil {
			return nil, err
		}
		if !amount.IsZero() {
			out = append(out, Holding{MarketID: market, OutcomeID: outcome, Amount: amount})
		}
	}
	return out, nil
}

// HoldersOf returns every global entry recorded for market, ordered by
// outcome then owner.
func (l *ShareLedger) HoldersOf(market uint64) ([]Holding, error) {
	prefix := fmt.Sprintf("%s%020d/", marketSharesPrefix, market)
	kvs, err := l.tx.Scan(prefix)
	if err != nil {
		return nil, fmt.Errorf("scan holders: %w", err)
	}
	out := make([]Holding, 0, len(kvs))
	for _, kv := range kvs {
		parts := strings.SplitN(strings.TrimPrefix(kv.Key, prefix), "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed ledger key %q", kv.Key)
		}
		var outcome uint32
		if _, err := fmt.Sscanf(parts[0], "%d", &outcome); err != nil {
			return nil, fmt.Errorf("malformed outcome in %q: %w", kv.Key, err)
		}
		owner, err := url.PathUnescape(parts[1])
		if err != nil {
			return nil, fmt.Errorf("malformed owner in %q: %w", kv.Key, err)
		}
		var amount num.U128
		if err := amount.UnmarshalJSON(kv.Value); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kv.Key, err)
		}
		out = append(out, Holding{MarketID: market, OutcomeID: outcome, Owner: event.Owner(owner), Amount: amount})
	}
	return out, nil
}
