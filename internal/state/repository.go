package state

import (
	"TrueMarket/internal/fault"
	"TrueMarket/internal/storage"
	"encoding/json"
	"fmt"
)

const (
	marketIndexKey = "truemarket/market_index"
	marketPrefix   = "truemarket/markets/"
)

// MarketKey pads the id so that key order is id order.
func MarketKey(id uint64) string {
	return fmt.Sprintf("%s%020d", marketPrefix, id)
}

// LoadMarket reads market id, failing with a not-found fault when absent.
func LoadMarket(tx *storage.Tx, id uint64) (*Market, error) {
	var m Market
	ok, err := storage.GetJSON(tx, MarketKey(id), &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.NotFound("market %d", id)
	}
	return &m, nil
}

func SaveMarket(tx *storage.Tx, m *Market) error {
	return storage.PutJSON(tx, MarketKey(m.ID), m)
}

// ListMarkets returns every market in id order.
func ListMarkets(tx *storage.Tx) ([]*Market, error) {
	kvs, err := tx.Scan(marketPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan markets: %w", err)
	}
	out := make([]*Market, 0, len(kvs))
	for _, kv := range kvs {
		var m Market
		if err := json.Unmarshal(kv.Value, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kv.Key, err)
		}
		out = append(out, &m)
	}
	return out, nil
}

// MarketIndex is the id the next market will receive.
func MarketIndex(tx *storage.Tx) (uint64, error) {
	var idx uint64
	if _, err := storage.GetJSON(tx, marketIndexKey, &idx); err != nil {
		return 0, err
	}
	return idx, nil
}

func SetMarketIndex(tx *storage.Tx, idx uint64) error {
	return storage.PutJSON(tx, marketIndexKey, idx)
}
