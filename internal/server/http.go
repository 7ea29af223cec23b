// Package server exposes the tracking engine over HTTP for the map
// renderer and for operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"

	"fogtrack/internal/cache"
	"fogtrack/internal/clients/location"
	"fogtrack/internal/clients/wireless"
	"fogtrack/internal/config"
	"fogtrack/internal/lib/geometry"
	"fogtrack/internal/lib/sharing"
	"fogtrack/internal/services"
	"fogtrack/internal/storage"
)

type Server struct {
	httpServer *http.Server
	router     *mux.Router

	revealed  *services.RevealedService
	tracker   *services.TrackerService
	exchange  *services.ExchangeService
	store     storage.Store
	source    *location.PushSource
	snapshots *cache.Snapshots
	log       *zap.SugaredLogger
}

func New(cfg *config.ServerConfig, revealed *services.RevealedService, tracker *services.TrackerService, exchange *services.ExchangeService, store storage.Store, source *location.PushSource, snapshots *cache.Snapshots, log *zap.SugaredLogger) *Server {
	router := mux.NewRouter()
	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		router:    router,
		revealed:  revealed,
		tracker:   tracker,
		exchange:  exchange,
		store:     store,
		source:    source,
		snapshots: snapshots,
		log:       log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/geometry/revealed", s.handleGeometry("revealed", s.revealedGeometry)).Methods("GET")
	api.HandleFunc("/geometry/shared", s.handleGeometry("shared", s.sharedGeometry)).Methods("GET")
	api.HandleFunc("/geometry/all", s.handleGeometry("all", s.revealed.All)).Methods("GET")
	api.HandleFunc("/geometry/shared-only", s.handleGeometry("shared-only", s.revealed.SharedOnly)).Methods("GET")
	api.HandleFunc("/location", s.handleCurrentLocation).Methods("GET")
	api.HandleFunc("/location/current", s.handleCurrentLocation).Methods("GET")
	api.HandleFunc("/location", s.handleManualLocation).Methods("POST")
	api.HandleFunc("/location/fix", s.handleFixIntake).Methods("POST")
	api.HandleFunc("/location/offset", s.handleOffset).Methods("POST")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/track.polyline", s.handleTrackPolyline).Methods("GET")
	api.HandleFunc("/export.kml", s.handleExportKML).Methods("GET")
	api.HandleFunc("/export", s.handleExport).Methods("GET")
	api.HandleFunc("/import", s.handleImport).Methods("POST")
	api.HandleFunc("/clear", s.handleClear).Methods("POST")
	api.HandleFunc("/peers", s.handlePeers).Methods("GET")
	api.HandleFunc("/exchange", s.handleExchange).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	s.router.HandleFunc("/ws/exchange", s.handleExchangeSocket)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Infof("HTTP server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()
}

// Stop shuts the server down, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) revealedGeometry() (*geometry.Geometry, error) {
	return s.revealed.Revealed(), nil
}

func (s *Server) sharedGeometry() (*geometry.Geometry, error) {
	return s.revealed.Shared(), nil
}

// handleGeometry serves a GeoJSON snapshot, cached until the next
// geometry mutation invalidates it.
func (s *Server) handleGeometry(key string, snapshot func() (*geometry.Geometry, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload, ok := s.snapshots.Get(key); ok {
			writeGeoJSON(w, payload)
			return
		}
		g, err := snapshot()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		if g == nil {
			writeGeoJSON(w, []byte(`{"type":"MultiPolygon","coordinates":[]}`))
			return
		}
		payload, err := geometry.MarshalGeoJSON(g)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.snapshots.Set(key, payload)
		writeGeoJSON(w, payload)
	}
}

func (s *Server) handleCurrentLocation(w http.ResponseWriter, r *http.Request) {
	fix, err := s.source.Current(r.Context())
	if err != nil {
		if errors.Is(err, location.ErrUnavailable) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fix)
}

func (s *Server) handleManualLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	accepted, err := s.tracker.AddManualLocation(r.Context(), body.Latitude, body.Longitude)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

// handleFixIntake feeds a live fix into the location source. The tracker
// picks it up asynchronously and applies the significance filter.
func (s *Server) handleFixIntake(w http.ResponseWriter, r *http.Request) {
	var fix location.Fix
	if err := json.NewDecoder(r.Body).Decode(&fix); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if fix.Timestamp == 0 {
		fix.Timestamp = time.Now().UnixMilli()
	}
	s.source.Publish(fix)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleOffset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DLat float64 `json:"d_lat"`
		DLng float64 `json:"d_lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	accepted, err := s.tracker.Offset(r.Context(), body.DLat, body.DLng)
	if err != nil {
		if errors.Is(err, location.ErrUnavailable) {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	source := storage.SourceSelf
	if v := r.URL.Query().Get("source"); v != "" {
		source = storage.Source(v)
	}
	rows, err := s.store.ListVisited(r.Context(), source)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []storage.VisitedLocation{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

// handleTrackPolyline renders the personal track as an encoded polyline,
// compact enough for map URLs.
func (s *Server) handleTrackPolyline(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListVisited(r.Context(), storage.SourceSelf)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	coords := make([][]float64, len(rows))
	for i, row := range rows {
		coords[i] = []float64{row.Latitude, row.Longitude}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(polyline.EncodeCoords(coords))
}

func (s *Server) handleExportKML(w http.ResponseWriter, r *http.Request) {
	g, err := s.revealed.All()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if g == nil {
		s.writeError(w, http.StatusNotFound, errors.New("no revealed geometry"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="revealed.kml"`)
	if err := geometry.EncodeKML(g, "Revealed Area", w); err != nil {
		s.log.Errorf("Failed to encode KML: %v", err)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := s.exchange.ExportHistory(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	payload, err := sharing.Encode(export)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="fogtrack-export.json"`)
	w.Write(payload)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err))
		return
	}
	data, err := sharing.Decode(payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	imported, err := s.exchange.ImportShared(r.Context(), data)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		s.writeError(w, http.StatusBadRequest, errors.New("clear requires confirm=true"))
		return
	}
	if err := s.revealed.ClearAll(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.tracker.ResetFilters()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.exchange.Scan(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if peers == nil {
		peers = []wireless.Peer{}
	}
	s.writeJSON(w, http.StatusOK, peers)
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PeerID string `json:"peer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PeerID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("peer_id is required"))
		return
	}
	result, err := s.exchange.Exchange(r.Context(), body.PeerID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrExchangeBusy):
			s.writeError(w, http.StatusConflict, err)
		case errors.Is(err, sharing.ErrExchangeTimeout):
			s.writeError(w, http.StatusGatewayTimeout, err)
		default:
			s.writeError(w, http.StatusBadGateway, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleExchangeSocket is the passive exchange endpoint: a peer on the
// local network dials this websocket and the full exchange protocol runs
// over it.
func (s *Server) handleExchangeSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wireless.ServeExchange(w, r, s.exchange.MTUHint())
	if err != nil {
		s.log.Errorf("Failed to accept exchange socket: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.exchange.Serve(ctx, conn); err != nil {
			s.log.Warnf("Exchange with %s failed: %v", r.RemoteAddr, err)
		}
	}()
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	personal, shared := s.revealed.Metadata()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"personal": personal,
		"shared":   shared,
		"tracker":  s.tracker.Stats(),
		"cache":    s.snapshots.Stats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("Failed to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Warnf("Request failed (%d): %v", status, err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeGeoJSON(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Write(payload)
}
