package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/config"
	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/notify"
	"github.com/ariefcatur/go-order-ledger/internal/platform/observability"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	name := cfg.ServiceName + "-notifier"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelCfg := observability.Config{
		ServiceName: name,
		Version:     version,
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    true,
	}
	logExport, stopLogs, err := observability.SetupLogExport(ctx, otelCfg)
	if err != nil {
		zap.NewExample().Fatal("log export setup", zap.Error(err))
	}
	log := observability.NewLogger(name, cfg.LogLevel, logExport)
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := observability.SetupTracing(ctx, otelCfg)
	if err != nil {
		log.Fatal("tracing setup", zap.Error(err))
	}

	// Redis (dedup + status cache)
	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	h := &notify.Handler{
		Dedup:  redisx.Dedup{RDB: rdb, Consumer: cfg.NotifierGroup},
		Status: redisx.StatusCache{RDB: rdb},
		Sink:   notify.LogSink{Log: log.Named("sink")},
		Log:    log.Named("handler"),
	}
	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, cfg.OrderEventsTopic, cfg.NotifierWorkers, log.Named("consumer"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier consumer started",
			zap.String("group", cfg.NotifierGroup),
			zap.String("topic", cfg.OrderEventsTopic),
			zap.Int("workers", cfg.NotifierWorkers),
		)
		if err := cons.Start(ctx, h.Handle); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel() // stop fetch, worker selesaikan pesan yg sedang jalan
	<-done
	if err := shutdownTracing(context.Background()); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	_ = log.Sync()
	_ = stopLogs(context.Background())
}
