package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fogtrack/internal/cache"
	"fogtrack/internal/clients/location"
	"fogtrack/internal/clients/wireless"
	"fogtrack/internal/config"
	"fogtrack/internal/server"
	"fogtrack/internal/services"
	"fogtrack/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open store at %s: %v", cfg.Storage.Path, err)
	}
	defer store.Close()

	snapshots := cache.NewSnapshots()
	revealed, err := services.NewRevealedService(store, snapshots, &cfg.Tracking, log)
	if err != nil {
		log.Fatalf("Failed to initialize revealed geometry: %v", err)
	}

	source := location.NewPushSource()
	tracker := services.NewTrackerService(revealed, source, &cfg.Tracking, log)

	peers := make([]wireless.Peer, len(cfg.Sharing.KnownPeers))
	for i, p := range cfg.Sharing.KnownPeers {
		peers[i] = wireless.Peer{ID: p.ID, Name: p.Name}
	}
	transport := wireless.NewWebsocketTransport(peers)
	exchange := services.NewExchangeService(revealed, store, transport, &cfg.Sharing, log)

	srv := server.New(&cfg.Server, revealed, tracker, exchange, store, source, snapshots, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := tracker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("Tracker stopped: %v", err)
		}
	}()

	srv.Start()
	log.Infof("fogtrack started (db=%s, port=%d)", cfg.Storage.Path, cfg.Server.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Infof("Shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Errorf("Shutdown error: %v", err)
	}
}
