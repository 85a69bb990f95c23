package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/catalog"
	"github.com/ariefcatur/go-order-ledger/internal/config"
	"github.com/ariefcatur/go-order-ledger/internal/httpx"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/loyalty"
	"github.com/ariefcatur/go-order-ledger/internal/notify"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/ariefcatur/go-order-ledger/internal/platform/observability"
	"github.com/ariefcatur/go-order-ledger/internal/postgres"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelCfg := observability.Config{
		ServiceName: cfg.ServiceName,
		Version:     version,
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    true,
	}
	logExport, stopLogs, err := observability.SetupLogExport(ctx, otelCfg)
	if err != nil {
		zap.NewExample().Fatal("log export setup", zap.Error(err))
	}
	log := observability.NewLogger(cfg.ServiceName, cfg.LogLevel, logExport)
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := observability.SetupTracing(ctx, otelCfg)
	if err != nil {
		log.Fatal("tracing setup", zap.Error(err))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, int32(cfg.PGMaxConns))
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, db, log); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}

	// Redis
	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic, cfg.ProducerBuffer, log.Named("producer"))
	prod.Start()

	stock := inventory.NewLedger(inventory.LedgerDeps{Store: &inventory.PGStore{DB: db}, Logger: log.Named("inventory")})
	points := loyalty.NewLedger(loyalty.LedgerDeps{Store: &loyalty.PGStore{DB: db}, Logger: log.Named("loyalty")})
	products := &catalog.Postgres{DB: db}

	svc := orders.NewService(orders.ServiceDeps{
		Repo:           &orders.PGRepo{DB: db},
		Catalog:        products,
		Stock:          stock,
		Points:         points,
		Locker:         redisx.NewLocker(rdb, cfg.LockTTL, log.Named("lock")),
		Notifier:       &notify.KafkaNotifier{Pub: prod, Producer: cfg.ServiceName},
		Idempotency:    redisx.Idempotency{RDB: rdb},
		IdempotencyTTL: cfg.IdempotencyTTL,
		Observer:       orders.LogObserver{Log: log.Named("orders")},
		Logger:         log.Named("orders"),
	})

	router := httpx.NewRouter(log.Named("http"))
	oh := &httpx.OrdersHandler{
		Orders:   svc,
		Products: products,
		Stock:    stock,
		Points:   points,
		Log:      log.Named("http"),
	}
	oh.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.Handler(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	prod.Close()      // tutup inbox -> flush
	prod.WaitClosed() // drain
	if err := shutdownTracing(ctx2); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	_ = log.Sync()
	_ = stopLogs(ctx2)
}
