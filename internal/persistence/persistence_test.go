package persistence_test

import (
	"TrueMarket/internal/core"
	"TrueMarket/internal/event"
	"TrueMarket/internal/num"
	"TrueMarket/internal/observability"
	"TrueMarket/internal/persistence"
	"TrueMarket/internal/storage"
	"TrueMarket/internal/testutil"
	"TrueMarket/internal/transport"
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// --- Test helpers ---

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := persistence.Open(persistence.SQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func migrated(t *testing.T) *sql.DB {
	t.Helper()
	db := openSQLite(t)
	m := persistence.NewMigrator(db, persistence.SQLite, persistence.Migrations(), "migrations", zerolog.Nop())
	if _, err := m.Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// ============================================================================
// Test: migrator
// ============================================================================

func TestMigrator_UpDown(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	m := persistence.NewMigrator(db, persistence.SQLite, persistence.Migrations(), "migrations", zerolog.Nop())

	n, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if n != 2 {
		t.Errorf("first up applied %d, want 2", n)
	}
	if n, err := m.Up(ctx); err != nil || n != 0 {
		t.Errorf("second up: applied %d err %v, want 0 nil", n, err)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if len(applied) != 2 || applied[0] != "0001" || applied[1] != "0002" {
		t.Errorf("applied: %v", applied)
	}

	rolled, err := m.Down(ctx)
	if err != nil || !rolled {
		t.Fatalf("down: rolled %v err %v", rolled, err)
	}
	if _, err := db.Exec(`SELECT 1 FROM chain_blocks`); err == nil {
		t.Error("chain_blocks should be dropped")
	}
	if n, err := m.Up(ctx); err != nil || n != 1 {
		t.Errorf("re-up: applied %d err %v, want 1 nil", n, err)
	}
}

func TestParseDialect(t *testing.T) {
	if d, err := persistence.ParseDialect("Postgres"); err != nil || d != persistence.Postgres {
		t.Errorf("postgres: %v %v", d, err)
	}
	if _, err := persistence.ParseDialect("mysql"); err == nil {
		t.Error("mysql should be rejected")
	}
	if persistence.Postgres.Placeholder(3) != "$3" || persistence.SQLite.Placeholder(3) != "?" {
		t.Error("placeholders")
	}
}

// ============================================================================
// Test: SQL view store
// ============================================================================

func TestSQLStore_ApplyGetScan(t *testing.T) {
	ctx := context.Background()
	db := migrated(t)
	a := persistence.NewSQLStore(db, persistence.SQLite, "a")
	b := persistence.NewSQLStore(db, persistence.SQLite, "b")

	if err := a.Apply(ctx, []storage.KV{
		{Key: "m/2", Value: []byte(`"two"`)},
		{Key: "m/1", Value: []byte(`"one"`)},
		{Key: "n/1", Value: []byte(`"other"`)},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := a.Apply(ctx, []storage.KV{{Key: "m/1", Value: []byte(`"uno"`)}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	v, ok, err := a.Get(ctx, "m/1")
	if err != nil || !ok || string(v) != `"uno"` {
		t.Errorf("get: %q %v %v", v, ok, err)
	}
	if _, ok, _ := b.Get(ctx, "m/1"); ok {
		t.Error("chains must not see each other's entries")
	}

	kvs, err := a.Scan(ctx, "m/")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(kvs) != 2 || kvs[0].Key != "m/1" || kvs[1].Key != "m/2" {
		t.Errorf("scan: %+v", kvs)
	}
}

func TestSQLStore_BacksChainAcrossRestart(t *testing.T) {
	ctx := context.Background()
	db := migrated(t)
	store := persistence.NewSQLStore(db, persistence.SQLite, "market")
	cfg := core.Config{ChainID: "market", MarketChain: "market", Application: "truemarket"}
	deps := core.Deps{Store: store, Outbox: transport.NewLocalNetwork(), Logger: zerolog.Nop()}

	c, err := core.NewChain(ctx, cfg, deps)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.ExecuteOperation(ctx, "alice", &event.TokenMint{Token: "usdc", Owner: "alice", Amount: num.FromUint64(10)}); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}

	again, err := core.NewChain(ctx, cfg, deps)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if again.Height() != 3 || again.Tip() != c.Tip() {
		t.Errorf("restart: height %d, want 3", again.Height())
	}
}

// ============================================================================
// Test: block log
// ============================================================================

func TestBlockWorker_WritesCommittedBlocks(t *testing.T) {
	ctx := context.Background()
	db := migrated(t)
	blocks := make(chan core.Block, 8)
	net := transport.NewLocalNetwork()

	c, err := core.NewChain(ctx, core.Config{ChainID: "user", MarketChain: "market", Application: "truemarket"}, core.Deps{
		Store:  storage.NewMemoryStore(),
		Outbox: net,
		Logger: zerolog.Nop(),
		Clock:  func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
		Blocks: blocks,
	})
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	if _, err := c.ExecuteOperation(ctx, "bob", &event.TokenMint{Token: "usdc", Owner: "bob", Amount: num.FromUint64(50)}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := c.ExecuteOperation(ctx, "bob", &event.Buy{MarketID: 0, Value: num.FromUint64(50), Token: "usdc"}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	close(blocks)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	w := persistence.NewBlockWorker(db, persistence.SQLite, blocks, 10, time.Hour, zerolog.Nop(), metrics)
	if err := w.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	log := persistence.NewBlockLog(db, persistence.SQLite)
	rows, err := log.Read(ctx, "user", 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(rows))
	}
	if rows[1].PrevHash != rows[0].StateHash {
		t.Error("stored blocks do not chain")
	}
	if rows[1].Kind != "operation/Buy" || rows[1].Signer != "bob" {
		t.Errorf("row: %+v", rows[1])
	}

	var outgoing []json.RawMessage
	if err := json.Unmarshal(rows[1].Outgoing, &outgoing); err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if len(outgoing) != 2 {
		t.Fatalf("outgoing: got %d messages, want 2", len(outgoing))
	}
	env, err := transport.DecodeEnvelope(outgoing[1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := env.Message.(*event.BuyInstruction); !ok {
		t.Errorf("second message: got %T", env.Message)
	}

	if rows, _ := log.Read(ctx, "user", 1, 10); len(rows) != 1 || rows[0].Height != 2 {
		t.Errorf("read after height 1: %+v", rows)
	}
}

func TestSQLStore_Postgres(t *testing.T) {
	testutil.RequireIntegration(t)
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	s := persistence.NewSQLStore(db, persistence.Postgres, "pg")
	if err := s.Apply(ctx, []storage.KV{{Key: "a/1", Value: []byte("1")}, {Key: "a/2", Value: []byte("2")}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(ctx, []storage.KV{{Key: "a/1", Value: []byte("one")}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	kvs, err := s.Scan(ctx, "a/")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(kvs) != 2 || string(kvs[0].Value) != "one" {
		t.Errorf("scan: %+v", kvs)
	}
}
