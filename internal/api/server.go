// Package api is the host-facing control surface: a small JSON API for
// starting, steering and stopping guidance sessions, plus a websocket feed
// for high-frequency position samples.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stride-data/waypoint/internal/geo"
	"github.com/stride-data/waypoint/internal/monitoring"
	"github.com/stride-data/waypoint/internal/route"
	"github.com/stride-data/waypoint/internal/session"
	"github.com/stride-data/waypoint/internal/tracker"
	"github.com/stride-data/waypoint/internal/tripdb"
)

var logf = monitoring.Component("api")

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Server exposes the session controller over HTTP and records trips as they
// run.
type Server struct {
	ctl *session.Controller
	db  *tripdb.DB

	mu     sync.Mutex
	tripID string
}

func NewServer(ctl *session.Controller, db *tripdb.DB) *Server {
	return &Server{ctl: ctl, db: db}
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/navigate", s.handleNavigate)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/position", s.handlePosition)
	mux.HandleFunc("/api/trips", s.handleTrips)
	mux.HandleFunc("/api/trip-cues", s.handleTripCues)
	mux.HandleFunc("/ws/position", s.handlePositionFeed)
	return mux
}

// CurrentTripID returns the open trip record ID, or "" when no trip is
// being recorded. The cue recorder uses this to attribute engine events.
func (s *Server) CurrentTripID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripID
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf("encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

type navigateRequest struct {
	DestLat float64 `json:"dest_lat"`
	DestLon float64 `json:"dest_lon"`
	Mode    string  `json:"mode"`
}

type stepSummary struct {
	Instruction string  `json:"instruction"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DistanceM   float64 `json:"distance_m"`
}

type routeSummary struct {
	RouteID   string        `json:"route_id"`
	TripID    string        `json:"trip_id,omitempty"`
	DistanceM float64       `json:"distance_m"`
	DurationS float64       `json:"duration_s"`
	Steps     []stepSummary `json:"steps"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	mode := tracker.ModeVisual
	if req.Mode != "" {
		var err error
		if mode, err = tracker.ParseMode(req.Mode); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	dest := geo.Point{Lat: req.DestLat, Lon: req.DestLon}
	planned, err := s.ctl.Navigate(r.Context(), dest, mode)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoCurrentPosition):
			s.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, tracker.ErrNavigationActive):
			s.writeError(w, http.StatusConflict, err)
		case errors.Is(err, route.ErrNoRouteFound):
			s.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, session.ErrCalculationTimeout):
			s.writeError(w, http.StatusGatewayTimeout, err)
		default:
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	summary := routeSummary{
		RouteID:   planned.ID(),
		DistanceM: planned.TotalDistanceM(),
		DurationS: planned.TotalDurationS(),
	}
	for _, st := range planned.Steps() {
		summary.Steps = append(summary.Steps, stepSummary{
			Instruction: st.Instruction,
			Lat:         st.Anchor.Lat,
			Lon:         st.Anchor.Lon,
			DistanceM:   st.DistanceM,
		})
	}

	summary.TripID = s.openTrip(planned, dest, mode)
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) openTrip(planned *route.Route, dest geo.Point, mode tracker.Mode) string {
	if s.db == nil {
		return ""
	}
	origin := geo.Point{}
	if lk := s.ctl.Snapshot().LastKnown; lk != nil {
		origin = *lk
	}
	tripID, err := s.db.StartTrip(planned.ID(), mode.String(), origin, dest, planned.TotalDistanceM())
	if err != nil {
		logf("opening trip record: %v", err)
		return ""
	}
	s.mu.Lock()
	s.tripID = tripID
	s.mu.Unlock()
	return tripID
}

func (s *Server) closeTrip(outcome string) {
	s.mu.Lock()
	tripID := s.tripID
	s.tripID = ""
	s.mu.Unlock()
	if tripID == "" || s.db == nil {
		return
	}
	if err := s.db.EndTrip(tripID, outcome); err != nil {
		logf("closing trip record: %v", err)
	}
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	mode, err := tracker.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctl.SetMode(mode); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctl.State())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	arrived := s.ctl.State().Phase == tracker.PhaseArrived
	s.ctl.Stop()
	if arrived {
		s.closeTrip("arrived")
	} else {
		s.closeTrip("stopped")
	}
	s.writeJSON(w, http.StatusOK, s.ctl.State())
}

type positionSample struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AccuracyM float64 `json:"accuracy_m"`
	// Unix milliseconds; zero means "now".
	TimestampMs int64 `json:"timestamp_ms"`
}

func (ps positionSample) point() geo.Point {
	p := geo.Point{Lat: ps.Lat, Lon: ps.Lon, HorizontalAccuracyM: ps.AccuracyM}
	if ps.TimestampMs > 0 {
		p.Timestamp = time.UnixMilli(ps.TimestampMs)
	} else {
		p.Timestamp = time.Now()
	}
	return p
}

// ingest pushes one sample through the session and the trip recorder.
func (s *Server) ingest(p geo.Point) {
	s.ctl.UpdatePosition(p)

	s.mu.Lock()
	tripID := s.tripID
	s.mu.Unlock()
	if tripID != "" && s.db != nil {
		if err := s.db.RecordPosition(tripID, p); err != nil {
			logf("recording position: %v", err)
		}
	}
	if s.ctl.State().Phase == tracker.PhaseArrived {
		s.closeTrip("arrived")
	}
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var sample positionSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding sample: %w", err))
		return
	}
	s.ingest(sample.point())
	s.writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

// handlePositionFeed accepts a websocket stream of position samples, one
// JSON object per message. A single read loop keeps delivery order intact.
func (s *Server) handlePositionFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	logf("position feed connected from %s", r.RemoteAddr)

	for {
		var sample positionSample
		if err := conn.ReadJSON(&sample); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logf("position feed closed: %v", err)
			}
			return
		}
		s.ingest(sample.point())
	}
}

func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		s.writeError(w, http.StatusNotFound, errors.New("trip recording disabled"))
		return
	}
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil {
			limit = v
		}
	}
	trips, err := s.db.Trips(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("loading trips: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, trips)
}

func (s *Server) handleTripCues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		s.writeError(w, http.StatusNotFound, errors.New("trip recording disabled"))
		return
	}
	tripID := r.URL.Query().Get("trip_id")
	if tripID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("trip_id is required"))
		return
	}
	cues, err := s.db.TripCues(tripID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("loading cues: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, cues)
}
