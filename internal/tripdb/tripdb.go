// Package tripdb persists completed and in-progress guidance sessions: one
// row per trip plus the position trail and every feedback cue that fired.
// The tracker itself stays persistence-free; the host wires its snapshots
// and cue events in here.
package tripdb

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/stride-data/waypoint/internal/geo"
	"github.com/stride-data/waypoint/internal/monitoring"
)

var logf = monitoring.Component("tripdb")

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trips (
			trip_id           TEXT PRIMARY KEY,
			route_id          TEXT,
			mode              TEXT,
			origin_lat        DOUBLE,
			origin_lon        DOUBLE,
			dest_lat          DOUBLE,
			dest_lon          DOUBLE,
			planned_m         DOUBLE,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			ended_at          TIMESTAMP,
			outcome           TEXT
		);
		CREATE TABLE IF NOT EXISTS positions (
			position_id       INTEGER PRIMARY KEY AUTOINCREMENT,
			trip_id           TEXT,
			lat               DOUBLE,
			lon               DOUBLE,
			accuracy_m        DOUBLE,
			at                TIMESTAMP,
			FOREIGN KEY(trip_id) REFERENCES trips(trip_id)
		);
		CREATE TABLE IF NOT EXISTS cue_events (
			cue_id            INTEGER PRIMARY KEY AUTOINCREMENT,
			trip_id           TEXT,
			kind              TEXT,
			channel           TEXT,
			detail            TEXT,
			at                TIMESTAMP,
			FOREIGN KEY(trip_id) REFERENCES trips(trip_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// StartTrip opens a new trip record and returns its ID.
func (db *DB) StartTrip(routeID, mode string, origin, dest geo.Point, plannedM float64) (string, error) {
	tripID := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO trips (trip_id, route_id, mode, origin_lat, origin_lon, dest_lat, dest_lon, planned_m)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tripID, routeID, mode, origin.Lat, origin.Lon, dest.Lat, dest.Lon, plannedM)
	if err != nil {
		return "", fmt.Errorf("starting trip: %w", err)
	}
	return tripID, nil
}

// EndTrip closes a trip with an outcome, "arrived" or "stopped".
func (db *DB) EndTrip(tripID, outcome string) error {
	res, err := db.Exec(
		`UPDATE trips SET ended_at = CURRENT_TIMESTAMP, outcome = ? WHERE trip_id = ? AND ended_at IS NULL`,
		outcome, tripID)
	if err != nil {
		return fmt.Errorf("ending trip: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trip %s not open", tripID)
	}
	return nil
}

// RecordPosition appends one accepted or rejected sample to the trip trail.
func (db *DB) RecordPosition(tripID string, p geo.Point) error {
	at := p.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO positions (trip_id, lat, lon, accuracy_m, at) VALUES (?, ?, ?, ?, ?)`,
		tripID, p.Lat, p.Lon, p.HorizontalAccuracyM, at.UTC())
	if err != nil {
		return fmt.Errorf("recording position: %w", err)
	}
	return nil
}

// RecordCue appends one feedback cue. channel is "haptic" when the pattern
// ran on hardware and "fallback" when it was delegated.
func (db *DB) RecordCue(tripID, kind, channel, detail string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO cue_events (trip_id, kind, channel, detail, at) VALUES (?, ?, ?, ?, ?)`,
		tripID, kind, channel, detail, at.UTC())
	if err != nil {
		return fmt.Errorf("recording cue: %w", err)
	}
	return nil
}

// Trip is one guidance session row.
type Trip struct {
	TripID    string     `json:"trip_id"`
	RouteID   string     `json:"route_id"`
	Mode      string     `json:"mode"`
	Origin    geo.Point  `json:"origin"`
	Dest      geo.Point  `json:"dest"`
	PlannedM  float64    `json:"planned_m"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
}

func (t *Trip) String() string {
	return fmt.Sprintf("Trip %s: route=%s mode=%s outcome=%s", t.TripID, t.RouteID, t.Mode, t.Outcome)
}

// Trips returns the most recent trips, newest first.
func (db *DB) Trips(limit int) ([]Trip, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT trip_id, route_id, mode, origin_lat, origin_lon, dest_lat, dest_lon, planned_m, started_at, ended_at, outcome
		 FROM trips ORDER BY started_at DESC, trip_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []Trip
	for rows.Next() {
		var t Trip
		var endedAt sql.NullTime
		var outcome sql.NullString
		if err := rows.Scan(&t.TripID, &t.RouteID, &t.Mode,
			&t.Origin.Lat, &t.Origin.Lon, &t.Dest.Lat, &t.Dest.Lon,
			&t.PlannedM, &t.StartedAt, &endedAt, &outcome); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			ended := endedAt.Time
			t.EndedAt = &ended
		}
		t.Outcome = outcome.String
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return trips, nil
}

// Cue is one recorded feedback event of a trip.
type Cue struct {
	Kind    string    `json:"kind"`
	Channel string    `json:"channel"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// TripCues returns a trip's cue events in firing order.
func (db *DB) TripCues(tripID string) ([]Cue, error) {
	rows, err := db.Query(
		`SELECT kind, channel, detail, at FROM cue_events WHERE trip_id = ? ORDER BY cue_id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cues []Cue
	for rows.Next() {
		var c Cue
		var detail sql.NullString
		if err := rows.Scan(&c.Kind, &c.Channel, &detail, &c.At); err != nil {
			return nil, err
		}
		c.Detail = detail.String
		cues = append(cues, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cues, nil
}

// TripPositions returns a trip's position trail in delivery order.
func (db *DB) TripPositions(tripID string) ([]geo.Point, error) {
	rows, err := db.Query(
		`SELECT lat, lon, accuracy_m, at FROM positions WHERE trip_id = ? ORDER BY position_id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lat, &p.Lon, &p.HorizontalAccuracyM, &p.Timestamp); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// AttachAdminRoutes mounts the trip database debug handlers.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("trip-backup", "Create and download a backup of the trip database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("trip-backup-%d.db", time.Now().Unix())
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				logf("failed to remove backup file: %v", err)
			}
		}()

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			logf("failed to stream backup: %v", err)
		}
	}))
}
