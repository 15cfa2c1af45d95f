package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pluteo/webshop/internal/catalog"
	"github.com/pluteo/webshop/internal/config"
	"github.com/pluteo/webshop/internal/logx"
	"github.com/pluteo/webshop/internal/postgres"
	"github.com/pluteo/webshop/internal/stock"
	"github.com/pluteo/webshop/internal/supplier"
)

func main() {
	once := flag.Bool("once", false, "run a single sync pass and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.Init(cfg.ServiceName + "-stocksync")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	client := supplier.NewClient(cfg.SupplierBaseURL, cfg.SupplierAPIKey, cfg.SupplierTimeout,
		cfg.CarrierPriority, cfg.DefaultCarrier, log)
	syncer := &stock.Syncer{
		Catalog: &catalog.Store{DB: db},
		Feed:    client,
		Log:     log,
	}

	if *once {
		if err := syncer.RunOnce(ctx); err != nil {
			log.Fatal("stock sync", zap.Error(err))
		}
		return
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down...")
		cancel()
	}()

	log.Info("stock sync loop started", zap.Duration("interval", cfg.StockSyncInterval))
	syncer.Run(ctx, cfg.StockSyncInterval)
}
