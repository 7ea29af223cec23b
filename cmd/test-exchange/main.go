package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"fogtrack/internal/cache"
	"fogtrack/internal/clients/wireless"
	"fogtrack/internal/config"
	"fogtrack/internal/services"
	"fogtrack/internal/storage"
)

// Spins up two in-memory devices with synthetic histories and runs a full
// loopback exchange between them, printing the protocol outcome.
func main() {
	points := flag.Int("points", 5, "Synthetic history points per device")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	dir, err := os.MkdirTemp("", "fogtrack-exchange-*")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	transport := wireless.NewLoopbackTransport()
	ctx := context.Background()

	alice := mustDevice(log, transport, filepath.Join(dir, "alice.db"))
	bob := mustDevice(log, transport, filepath.Join(dir, "bob.db"))

	// Alice walks north through San Francisco, Bob through Berkeley.
	for i := 0; i < *points; i++ {
		step := float64(i) * 0.0015
		if err := alice.revealed.AddVisitedLocation(ctx, 37.7749+step, -122.4194); err != nil {
			log.Fatalf("Failed to seed alice: %v", err)
		}
		if err := bob.revealed.AddVisitedLocation(ctx, 37.8715+step, -122.2730); err != nil {
			log.Fatalf("Failed to seed bob: %v", err)
		}
	}

	bobConn := transport.Register(wireless.Peer{ID: "bob", Name: "Bob's device"}, wireless.DefaultMTU)
	go func() {
		if _, err := bob.exchange.Serve(ctx, bobConn); err != nil {
			log.Errorf("Serve side failed: %v", err)
		}
	}()

	start := time.Now()
	result, err := alice.exchange.Exchange(ctx, "bob")
	if err != nil {
		log.Fatalf("Exchange failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("Exchange %s completed in %v\n", result.ExchangeID, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Sent:     %d points\n", result.Sent)
	fmt.Printf("  Received: %d points\n", result.Received)
	fmt.Printf("  Imported: %d points\n", result.Imported)

	personal, shared := alice.revealed.Metadata()
	fmt.Printf("Alice now holds %d personal and %d shared points\n", personal.PointCount, shared.PointCount)
}

type device struct {
	revealed *services.RevealedService
	exchange *services.ExchangeService
}

func mustDevice(log *zap.SugaredLogger, transport wireless.Transport, path string) *device {
	store, err := storage.Open(path)
	if err != nil {
		log.Fatalf("Failed to open store %s: %v", path, err)
	}
	cfg := config.DefaultConfig()
	cfg.Sharing.WriteDelay = time.Millisecond
	cfg.Sharing.PollInterval = 5 * time.Millisecond

	revealed, err := services.NewRevealedService(store, cache.NewSnapshots(), &cfg.Tracking, log)
	if err != nil {
		log.Fatalf("Failed to initialize geometry for %s: %v", path, err)
	}
	return &device{
		revealed: revealed,
		exchange: services.NewExchangeService(revealed, store, transport, &cfg.Sharing, log),
	}
}
