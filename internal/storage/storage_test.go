package storage_test

import (
	"TrueMarket/internal/storage"
	"bytes"
	"context"
	"testing"
)

func TestTx_ReadYourWrites(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Apply(ctx, []storage.KV{{Key: "a", Value: []byte("1")}}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	tx := storage.Begin(ctx, store)
	tx.Put("a", []byte("2"))
	tx.Put("b", []byte("3"))

	v, ok, err := tx.Get("a")
	if err != nil || !ok || string(v) != "2" {
		t.Fatalf("got %q ok=%v err=%v, want staged value", v, ok, err)
	}

	// store untouched until applied
	v, _, _ = store.Get(ctx, "a")
	if string(v) != "1" {
		t.Errorf("store leaked staged write: %q", v)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d entries, want 1", store.Len())
	}
}

func TestTx_ScanMergesStaged(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Apply(ctx, []storage.KV{
		{Key: "p/1", Value: []byte("old")},
		{Key: "p/3", Value: []byte("x")},
		{Key: "q/1", Value: []byte("y")},
	})

	tx := storage.Begin(ctx, store)
	tx.Put("p/1", []byte("new"))
	tx.Put("p/2", []byte("z"))

	got, err := tx.Scan("p/")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []storage.KV{
		{Key: "p/1", Value: []byte("new")},
		{Key: "p/2", Value: []byte("z")},
		{Key: "p/3", Value: []byte("x")},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key != want[i].Key || !bytes.Equal(got[i].Value, want[i].Value) {
			t.Errorf("entry %d: got %s=%s, want %s=%s", i, got[i].Key, got[i].Value, want[i].Key, want[i].Value)
		}
	}
}

func TestTx_DigestIsOrderIndependent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	a := storage.Begin(ctx, store)
	a.Put("x", []byte("1"))
	a.Put("y", []byte("2"))

	b := storage.Begin(ctx, store)
	b.Put("y", []byte("2"))
	b.Put("x", []byte("1"))

	if !bytes.Equal(a.Digest(), b.Digest()) {
		t.Error("digest depends on write order")
	}

	b.Put("x", []byte("9"))
	if bytes.Equal(a.Digest(), b.Digest()) {
		t.Error("digest ignores values")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	tx := storage.Begin(ctx, storage.NewMemoryStore())

	type rec struct {
		N int `json:"n"`
	}
	var r rec
	ok, err := storage.GetJSON(tx, "missing", &r)
	if err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := storage.PutJSON(tx, "k", rec{N: 7}); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = storage.GetJSON(tx, "k", &r)
	if err != nil || !ok || r.N != 7 {
		t.Errorf("got %+v ok=%v err=%v", r, ok, err)
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := storage.NewMemoryStore()
	_ = store.Close()
	if _, _, err := store.Get(context.Background(), "a"); err != storage.ErrClosed {
		t.Errorf("got %v, want ErrClosed", err)
	}
}
