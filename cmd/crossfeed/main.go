package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/romanzzaa/crossfeed/internal/admin"
	"github.com/romanzzaa/crossfeed/internal/config"
	"github.com/romanzzaa/crossfeed/internal/eventlog"
	"github.com/romanzzaa/crossfeed/internal/funding"
	"github.com/romanzzaa/crossfeed/internal/httpapi"
	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/romanzzaa/crossfeed/internal/pipeline"
	"github.com/romanzzaa/crossfeed/internal/pool"
	"github.com/romanzzaa/crossfeed/internal/store"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[Main] Received shutdown signal")
		cancel()
	}()

	cfg := config.Load()
	log.Printf("[Main] Running in %s mode", cfg.Env)

	var eventLog *eventlog.Log
	if cfg.EventLogDSN != "" {
		var err error
		eventLog, err = eventlog.Open(cfg.EventLogDSN)
		if err != nil {
			log.Fatalf("[Main] Failed to open event log: %v", err)
		}
		defer eventLog.Close()
		log.Println("[Main] Connected to PostgreSQL event log")
	} else {
		log.Println("[Main] WARNING: EVENT_LOG_DSN not set, cross-platform events are not persisted")
	}

	dataStore := store.New()

	pipe := pipeline.New(cfg.HistoricalLimit, func(record model.CrossPlatform) {
		if eventLog != nil {
			eventLog.Append(ctx, record)
		}
	})
	pipe.Start()
	defer pipe.Stop()

	dataStore.SetSink(pipe.Ingest)

	binancePool := pool.NewExchangePool(
		model.ExchangeBinance, cfg.Binance.WSURL, cfg.Binance.HeartbeatSymbol,
		cfg.Binance.Shards, cfg.Binance.Symbols, dataStore.Put,
	)
	okxPool := pool.NewExchangePool(
		model.ExchangeOKX, cfg.OKX.WSURL, cfg.OKX.HeartbeatSymbol,
		cfg.OKX.Shards, cfg.OKX.Symbols, dataStore.Put,
	)

	poolManager := admin.New([]*pool.ExchangePool{binancePool, okxPool}, cfg.MonitorInterval, cfg.SlotCooldown, dataStore.SetConnectionStatus)
	poolManager.Start()
	defer poolManager.Stop()

	fetcher := funding.New(cfg.Binance.RESTURL, cfg.ManualFetchCap, dataStore.Put, pipe.ResetHistoricalRateLimit)
	go fetcher.RunPeriodic(ctx, cfg.HistoricalDelay, cfg.HistoricalInterval, cfg.Binance.Symbols)

	server := httpapi.New(dataStore, poolManager, fetcher, pipe, cfg.Binance.Symbols)

	dataStore.MarkReady()
	log.Printf("[Main] HTTP introspection surface listening on :%s", cfg.Port)

	go func() {
		if err := server.Run(":" + cfg.Port); err != nil {
			log.Printf("[Main] HTTP server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[Main] Shutting down...")
}
