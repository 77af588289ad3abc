package main

import (
	"TrueMarket/internal/cache"
	"TrueMarket/internal/config"
	"TrueMarket/internal/core"
	"TrueMarket/internal/event"
	"TrueMarket/internal/observability"
	"TrueMarket/internal/persistence"
	"TrueMarket/internal/query"
	"TrueMarket/internal/server"
	"TrueMarket/internal/storage"
	"TrueMarket/internal/transport"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// viewStore is what the node keeps its chain view in.
type viewStore struct {
	storage.Store
	db      *sql.DB
	dialect persistence.Dialect
	ping    func(context.Context) error
	close   func() error
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: TrueMarket starting...")

	cfg, err := config.Load(os.Getenv("TRUEMARKET_DOTENV"))
	if err != nil {
		log.Fatalf("FATAL: config: %v", err)
	}
	observability.ConfigureLogging(cfg.LogLevel, cfg.LogFormat)

	// --- Context with graceful shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()

	// --- View store ---
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("FATAL: open %s store: %v", cfg.StoreBackend, err)
	}
	defer store.close()
	healthChecker.SetDependency("store", true)
	log.Printf("INFO: %s view store ready", cfg.StoreBackend)

	// --- NATS ---
	nc, js, err := transport.ConnectNATS(cfg.NATSURL, observability.NewLogger("nats"))
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	healthChecker.SetDependency("nats", true)
	log.Println("INFO: NATS connected")

	if err := transport.EnsureStream(ctx, js, cfg.StreamMaxAge); err != nil {
		log.Fatalf("FATAL: ensure NATS stream: %v", err)
	}
	bus := transport.NewNATSBus(js, observability.NewLogger("transport"))

	// --- Chain ---
	// The block log lives next to SQL views; other backends keep none.
	var blocks chan core.Block
	if store.db != nil {
		blocks = make(chan core.Block, cfg.BlockChanSize)
	}

	chainID := event.ChainID(cfg.ChainID)
	chain, err := core.NewChain(ctx, core.Config{
		ChainID:     chainID,
		MarketChain: event.ChainID(cfg.MarketChain),
		Application: event.ApplicationID(cfg.Application),
	}, core.Deps{
		Store:   store,
		Outbox:  bus,
		Logger:  observability.NewLogger("chain"),
		Metrics: metrics,
		Blocks:  blocks,
	})
	if err != nil {
		log.Fatalf("FATAL: start chain: %v", err)
	}

	var blockLog *persistence.BlockLog
	if store.db != nil {
		blockLog = persistence.NewBlockLog(store.db, store.dialect)
	}
	queryService := query.NewService(chainID, event.ChainID(cfg.MarketChain), store, chain, blockLog, metrics)

	grpcServer := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Executor:      chain,
		QueryService:  queryService,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        observability.NewLogger("server"),
	})

	// --- Start goroutines ---
	g, gctx := errgroup.WithContext(ctx)

	// 1. Block log worker
	if blocks != nil {
		worker := persistence.NewBlockWorker(store.db, store.dialect, blocks, cfg.BlockBatchSize, cfg.BlockFlushTimeout,
			observability.NewLogger("block-worker"), metrics)
		g.Go(func() error { return ignoreCanceled(worker.Run(gctx)) })
	}

	// 2. Inbox -> chain. The consumer is stopped before the chain loop exits.
	inbox := make(chan transport.Inbound, cfg.InboxChanSize)
	if err := bus.Subscribe(gctx, chainID, inbox); err != nil {
		log.Fatalf("FATAL: subscribe inbox: %v", err)
	}
	g.Go(func() error {
		defer bus.Stop()
		return ignoreCanceled(chain.Run(gctx, inbox))
	})

	// 3. gRPC server
	g.Go(func() error { return grpcServer.StartGRPC(gctx) })

	// 4. HTTP/JSON gateway
	g.Go(func() error { return grpcServer.StartHTTPGateway(gctx) })

	// 5. Prometheus metrics server
	g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, cfg.ShutdownPeriod) })

	// 6. Dependency probes for /readyz
	g.Go(func() error {
		probeDependencies(gctx, healthChecker, store, nc)
		return nil
	})

	healthChecker.SetReady(true)
	log.Printf("INFO: TrueMarket ready (chain=%s, market_chain=%s, height=%d, grpc=%s, http=%s, metrics=%s)",
		cfg.ChainID, cfg.MarketChain, chain.Height(), cfg.GRPCAddr, cfg.HTTPAddr, cfg.MetricsAddr)

	if err := g.Wait(); err != nil {
		log.Printf("ERROR: goroutine failed: %v", err)
	}
	healthChecker.SetReady(false)
	log.Println("INFO: TrueMarket shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config) (*viewStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		mem := storage.NewMemoryStore()
		return &viewStore{
			Store: mem,
			ping:  func(context.Context) error { return nil },
			close: mem.Close,
		}, nil

	case config.BackendSQLite, config.BackendPostgres:
		dialect, err := persistence.ParseDialect(cfg.StoreBackend)
		if err != nil {
			return nil, err
		}
		dsn := cfg.PostgresDSN
		if dialect == persistence.SQLite {
			dsn = cfg.SQLiteDSN
		}
		db, err := persistence.Open(dialect, dsn)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
		migrator := persistence.NewMigrator(db, dialect, persistence.Migrations(), "migrations", observability.NewLogger("migrate"))
		n, err := migrator.Up(ctx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Printf("INFO: %d migrations applied", n)

		sqlStore := persistence.NewSQLStore(db, dialect, cfg.ChainID)
		return &viewStore{
			Store:   sqlStore,
			db:      db,
			dialect: dialect,
			ping:    sqlStore.Ping,
			close:   db.Close,
		}, nil

	case config.BackendRedis:
		rdb, err := cache.NewClient(ctx, cache.ClientConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err != nil {
			return nil, err
		}
		redisStore := cache.NewRedisStore(rdb, cfg.ChainID)
		return &viewStore{
			Store: redisStore,
			ping:  redisStore.Ping,
			close: rdb.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.StoreBackend)
	}
}

func serveMetrics(ctx context.Context, addr string, shutdownPeriod time.Duration) error {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
		defer cancel()
		metricsServer.Shutdown(shutCtx)
	}()
	log.Printf("INFO: Metrics server listening on %s/metrics", addr)
	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func probeDependencies(ctx context.Context, hc *observability.HealthChecker, store *viewStore, nc *nats.Conn) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := store.ping(pingCtx)
			cancel()
			if err != nil {
				log.Printf("WARN: store ping failed: %v", err)
			}
			hc.SetDependency("store", err == nil)
			hc.SetDependency("nats", nc.IsConnected())
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
