package storage

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tx stages writes over a Store for the duration of one handler. Reads see
// staged values first. Nothing reaches the store until the caller applies
// Writes(); dropping the Tx discards everything.
type Tx struct {
	ctx    context.Context
	store  Store
	staged map[string][]byte
}

func Begin(ctx context.Context, store Store) *Tx {
	return &Tx{ctx: ctx, store: store, staged: make(map[string][]byte)}
}

func (t *Tx) Context() context.Context { return t.ctx }

func (t *Tx) Get(key string) ([]byte, bool, error) {
	if v, ok := t.staged[key]; ok {
		return v, true, nil
	}
	return t.store.Get(t.ctx, key)
}

func (t *Tx) Put(key string, value []byte) {
	t.staged[key] = value
}

// Scan merges staged entries over stored ones, ordered by key.
func (t *Tx) Scan(prefix string) ([]KV, error) {
	stored, err := t.store.Scan(t.ctx, prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string][]byte, len(stored))
	for _, kv := range stored {
		merged[kv.Key] = kv.Value
	}
	for k, v := range t.staged {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	out := make([]KV, 0, len(merged))
	for k, v := range merged {
		out = append(out, KV{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Writes returns the staged write set ordered by key.
func (t *Tx) Writes() []KV {
	out := make([]KV, 0, len(t.staged))
	for k, v := range t.staged {
		out = append(out, KV{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Digest hashes the ordered write set. Equal write sets give equal digests.
func (t *Tx) Digest() []byte {
	h := sha256.New()
	var lenBuf [8]byte
	for _, kv := range t.Writes() {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(kv.Key)))
		h.Write(lenBuf[:])
		h.Write([]byte(kv.Key))
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(kv.Value)))
		h.Write(lenBuf[:])
		h.Write(kv.Value)
	}
	return h.Sum(nil)
}

// GetJSON decodes the value at key into v. It reports false when absent.
func GetJSON(t *Tx, key string, v any) (bool, error) {
	raw, ok, err := t.Get(key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON stages the JSON encoding of v at key.
func PutJSON(t *Tx, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	t.Put(key, raw)
	return nil
}
