package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fogtrack/internal/clients/wireless"
	"fogtrack/internal/config"
	"fogtrack/internal/lib/sharing"
	"fogtrack/internal/storage"
)

// ErrExchangeBusy is returned when an exchange is already in flight. Only
// one exchange runs at a time per device.
var ErrExchangeBusy = errors.New("exchange already in progress")

// ExchangeResult summarizes one completed exchange.
type ExchangeResult struct {
	ExchangeID string `json:"exchange_id"`
	PeerID     string `json:"peer_id"`
	Sent       int    `json:"sent"`
	Received   int    `json:"received"`
	Imported   int    `json:"imported"`
}

// ExchangeService runs bidirectional history swaps with nearby peers: it
// exports the personal history, receives the peer's, and merges peer
// points into the shared slot with exact-duplicate suppression.
type ExchangeService struct {
	revealed  *RevealedService
	store     storage.Store
	transport wireless.Transport
	config    *config.SharingConfig
	log       *zap.SugaredLogger

	// busy enforces the single-in-flight rule. TryLock, never wait: a
	// second request fails fast with ErrExchangeBusy.
	busy sync.Mutex
}

func NewExchangeService(revealed *RevealedService, store storage.Store, transport wireless.Transport, cfg *config.SharingConfig, log *zap.SugaredLogger) *ExchangeService {
	return &ExchangeService{
		revealed:  revealed,
		store:     store,
		transport: transport,
		config:    cfg,
		log:       log,
	}
}

// ExportHistory snapshots the personal (source=self) history as a wire
// record. Shared points are never re-exported; data travels at most one
// hop from its origin.
func (s *ExchangeService) ExportHistory(ctx context.Context) (sharing.LocationExportData, error) {
	rows, err := s.store.ListVisited(ctx, storage.SourceSelf)
	if err != nil {
		return sharing.LocationExportData{}, fmt.Errorf("failed to export history: %w", err)
	}
	locations := make([]sharing.ExportableLocation, len(rows))
	for i, row := range rows {
		locations[i] = sharing.ExportableLocation{
			Latitude:  row.Latitude,
			Longitude: row.Longitude,
			Timestamp: row.Timestamp,
		}
	}
	return sharing.LocationExportData{Version: sharing.ExportVersion, Locations: locations}, nil
}

// ImportShared merges peer locations into the shared slot. Points whose
// exact (lat, lon, ts) tuple already exists are skipped. Returns the
// number of points actually applied.
func (s *ExchangeService) ImportShared(ctx context.Context, data sharing.LocationExportData) (int, error) {
	imported := 0
	for _, loc := range data.Locations {
		seen, err := s.store.HasVisited(ctx, loc.Latitude, loc.Longitude, loc.Timestamp)
		if err != nil {
			return imported, fmt.Errorf("failed to check for duplicate point: %w", err)
		}
		if seen {
			continue
		}
		if err := s.revealed.AddSharedLocation(ctx, loc.Latitude, loc.Longitude, loc.Timestamp); err != nil {
			return imported, fmt.Errorf("failed to import shared point: %w", err)
		}
		imported++
	}
	return imported, nil
}

// Scan discovers nearby peers. The scan stops on its own after
// wireless.ScanTimeout even if ctx stays open.
func (s *ExchangeService) Scan(ctx context.Context) ([]wireless.Peer, error) {
	scanCtx, cancel := context.WithTimeout(ctx, wireless.ScanTimeout)
	defer cancel()

	stream, err := s.transport.Scan(scanCtx, "fogtrack")
	if err != nil {
		return nil, fmt.Errorf("failed to start peer scan: %w", err)
	}
	var peers []wireless.Peer
	for peer := range stream {
		peers = append(peers, peer)
	}
	return peers, nil
}

// Exchange connects to a peer, sends the personal history, requests and
// receives the peer's history, and imports it. The connection is closed
// on every path.
func (s *ExchangeService) Exchange(ctx context.Context, peerID string) (*ExchangeResult, error) {
	if !s.busy.TryLock() {
		return nil, ErrExchangeBusy
	}
	defer s.busy.Unlock()

	exchangeID := uuid.NewString()
	s.log.Infow("Starting exchange", "exchange_id", exchangeID, "peer_id", peerID)

	connectCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	conn, err := s.transport.Connect(connectCtx, peerID, s.MTUHint())
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to peer %s: %w", peerID, err)
	}
	defer conn.Close()

	export, err := s.ExportHistory(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := sharing.Encode(export)
	if err != nil {
		return nil, err
	}

	opts := s.options()
	if err := sharing.SendPayload(ctx, conn, payload, opts); err != nil {
		return nil, fmt.Errorf("failed to send history to peer %s: %w", peerID, err)
	}
	s.log.Infow("Sent history", "exchange_id", exchangeID, "points", len(export.Locations))

	received, err := sharing.ReceivePayload(ctx, conn, true, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to receive history from peer %s: %w", peerID, err)
	}

	result := &ExchangeResult{
		ExchangeID: exchangeID,
		PeerID:     peerID,
		Sent:       len(export.Locations),
	}
	if received == nil {
		// Peer had nothing to send; the exchange still succeeded.
		s.log.Infow("Exchange complete, peer sent no data", "exchange_id", exchangeID)
		return result, nil
	}

	data, err := sharing.Decode(received)
	if err != nil {
		return nil, err
	}
	result.Received = len(data.Locations)

	imported, err := s.ImportShared(ctx, data)
	result.Imported = imported
	if err != nil {
		return result, err
	}
	s.log.Infow("Exchange complete", "exchange_id", exchangeID,
		"sent", result.Sent, "received", result.Received, "imported", result.Imported)
	return result, nil
}

// Serve handles the passive side of an exchange on an already-accepted
// connection: receive the peer's history, import it, then answer the
// peer's REQUEST with our own history. Closes the connection.
func (s *ExchangeService) Serve(ctx context.Context, conn wireless.Conn) (*ExchangeResult, error) {
	defer conn.Close()

	exchangeID := uuid.NewString()
	result := &ExchangeResult{ExchangeID: exchangeID}
	opts := s.options()

	received, err := sharing.ReceivePayload(ctx, conn, false, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to receive peer history: %w", err)
	}
	if received != nil {
		data, err := sharing.Decode(received)
		if err != nil {
			return nil, err
		}
		result.Received = len(data.Locations)
		imported, err := s.ImportShared(ctx, data)
		result.Imported = imported
		if err != nil {
			return result, err
		}
	}

	if err := sharing.AwaitRequest(ctx, conn, opts); err != nil {
		return result, fmt.Errorf("peer never requested our history: %w", err)
	}

	export, err := s.ExportHistory(ctx)
	if err != nil {
		return result, err
	}
	payload, err := sharing.Encode(export)
	if err != nil {
		return result, err
	}
	if err := sharing.SendPayload(ctx, conn, payload, opts); err != nil {
		return result, fmt.Errorf("failed to send history to peer: %w", err)
	}
	result.Sent = len(export.Locations)
	s.log.Infow("Served exchange", "exchange_id", exchangeID,
		"sent", result.Sent, "received", result.Received, "imported", result.Imported)
	return result, nil
}

// MTUHint is the frame size requested from the link on connect or accept.
func (s *ExchangeService) MTUHint() int {
	if s.config.MTUHint > 0 {
		return s.config.MTUHint
	}
	return wireless.DefaultMTU
}

func (s *ExchangeService) options() sharing.Options {
	return sharing.Options{
		ChunkSize:       s.config.ChunkSize,
		WriteDelay:      s.config.WriteDelay,
		PollInterval:    s.config.PollInterval,
		MaxPollAttempts: s.config.MaxPollAttempts,
	}
}
